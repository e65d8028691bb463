package mongodb

import "testing"

func TestCustomerFromKey(t *testing.T) {
	tests := map[string]string{
		"pipeline:c1:segment":      "c1",
		"pipeline:c1:safety:error": "c1",
		"pipeline:a@b.com:summary": "a@b.com",
		"pipeline:x:y:variants":    "x:y",
	}
	for key, want := range tests {
		if got := customerFromKey(key); got != want {
			t.Errorf("customerFromKey(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.MaxPoolSize < cfg.MinPoolSize {
		t.Errorf("max pool %d below min %d", cfg.MaxPoolSize, cfg.MinPoolSize)
	}
	if cfg.ConnectTimeout <= 0 {
		t.Error("connect timeout must be positive")
	}
}
