package config

import (
	"os"
	"testing"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("GEXSTREAM_CLIENT_ID", "client-123")
	t.Setenv("GEXSTREAM_CLIENT_SECRET", "secret-456")
	t.Setenv("GEXSTREAM_REFRESH_TOKEN", "refresh-789")
}

func TestLoadWithCredentials(t *testing.T) {
	setCredentials(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected config to load with credentials, got error: %v", err)
	}

	if cfg.Auth.ClientID != "client-123" {
		t.Errorf("expected client_id 'client-123', got '%s'", cfg.Auth.ClientID)
	}

	if cfg.Auth.AuthHost != "https://api.tastytrade.com" {
		t.Errorf("expected default auth host, got '%s'", cfg.Auth.AuthHost)
	}

	if cfg.Feed.WindowSec != 15 {
		t.Errorf("expected 15s window by default, got %d", cfg.Feed.WindowSec)
	}

	if cfg.Feed.KeepaliveSec != 60 {
		t.Errorf("expected 60s keepalive by default, got %d", cfg.Feed.KeepaliveSec)
	}
}

func TestLoadWithoutCredentials(t *testing.T) {
	_ = os.Unsetenv("GEXSTREAM_CLIENT_ID")
	_ = os.Unsetenv("GEXSTREAM_CLIENT_SECRET")
	_ = os.Unsetenv("GEXSTREAM_REFRESH_TOKEN")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when credentials are missing")
	}
}

func TestPresetFor(t *testing.T) {
	p, ok := PresetFor("SPX")
	if !ok {
		t.Fatal("expected SPX preset")
	}
	if p.Prefix != "SPXW" || p.Increment != 5 {
		t.Errorf("unexpected SPX preset: %+v", p)
	}

	if _, ok := PresetFor("XYZ"); ok {
		t.Error("did not expect preset for XYZ")
	}
}

func TestValidateUnderlyings(t *testing.T) {
	if err := ValidateUnderlyings([]string{"SPX", "QQQ"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateUnderlyings([]string{"SPX", "XYZ"}); err == nil {
		t.Error("expected error for unknown underlying")
	}
	if err := ValidateUnderlyings(nil); err == nil {
		t.Error("expected error for empty underlyings")
	}
}

func TestValidateExpiration(t *testing.T) {
	if err := ValidateExpiration("251219"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"25121", "2512199", "25121x", ""} {
		if err := ValidateExpiration(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
