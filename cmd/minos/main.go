// Command minos is the CLI for the minos eval platform.
package main

import (
	"fmt"
	"os"

	"github.com/instantcocoa/minos/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
