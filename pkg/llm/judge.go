package llm

import "strings"

// ExtractJSON pulls the first balanced-looking JSON object out of free-form
// judge output. Judge models often wrap their verdict in prose or markdown
// fences; the parser boundary stays tolerant so a chatty judge still yields
// a usable document. Returns the raw input unchanged if no braces are found.
func ExtractJSON(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return raw
	}
	end := strings.LastIndex(raw, "}")
	if end < start {
		return raw
	}
	return raw[start : end+1]
}

// ExtractJSONArray is the array-form counterpart of ExtractJSON, used for
// generated question lists.
func ExtractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	if start < 0 {
		return raw
	}
	end := strings.LastIndex(raw, "]")
	if end < start {
		return raw
	}
	return raw[start : end+1]
}
