package cache

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != "localhost:6379" {
		t.Errorf("Addr = %v, want %v", cfg.Addr, "localhost:6379")
	}
	if cfg.DB != 0 {
		t.Errorf("DB = %v, want %v", cfg.DB, 0)
	}
	if cfg.PoolSize != 10 {
		t.Errorf("PoolSize = %v, want %v", cfg.PoolSize, 10)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %v, want %v", cfg.MaxRetries, 3)
	}
	if cfg.ReadTimeout != 3*time.Second {
		t.Errorf("ReadTimeout = %v, want %v", cfg.ReadTimeout, 3*time.Second)
	}
}

func TestClient_PrefixedKey(t *testing.T) {
	tests := []struct {
		name      string
		keyPrefix string
		key       string
		want      string
	}{
		{"no prefix", "", "mykey", "mykey"},
		{"with prefix", "minos", "mykey", "minos:mykey"},
		{"empty key", "prefix", "", "prefix:"},
		{"nested key", "minos", "run_status:abc", "minos:run_status:abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{keyPrefix: tt.keyPrefix}
			got := c.prefixedKey(tt.key)
			if got != tt.want {
				t.Errorf("prefixedKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestConnect_InvalidAddress(t *testing.T) {
	cfg := &Config{
		Addr:         "invalid:99999",
		PoolSize:     1,
		MaxRetries:   0,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if err == nil {
		t.Error("expected error when connecting to invalid address")
	}
}
