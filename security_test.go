package redismigrate

import (
	"crypto/tls"
	"testing"
)

// TestSecureTLSConfig tests the secure TLS defaults helper
func TestSecureTLSConfig(t *testing.T) {
	cfg := SecureTLSConfig("redis.example.com")

	if cfg == nil {
		t.Fatal("TLS config should not be nil")
	}

	// Check ServerName
	if cfg.ServerName != "redis.example.com" {
		t.Errorf("Expected ServerName to be 'redis.example.com', got %s", cfg.ServerName)
	}

	// Check InsecureSkipVerify is false
	if cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should be false for secure TLS")
	}

	// Check MinVersion is at least TLS 1.2
	if cfg.MinVersion < tls.VersionTLS12 {
		t.Errorf("Expected MinVersion of at least TLS 1.2, got %d", cfg.MinVersion)
	}

	// Check that cipher suites are configured
	if len(cfg.CipherSuites) == 0 {
		t.Error("Cipher suites should be configured")
	}
}

// TestAuthOptions tests the per-side authentication options
func TestAuthOptions(t *testing.T) {
	cfg := defaultConfig()
	cfg.source = Endpoint{Host: "localhost", Port: 6379, Password: "old"}
	cfg.target = Endpoint{Host: "localhost", Port: 6380}

	if err := WithSourceAuth("source-secret")(cfg); err != nil {
		t.Fatalf("WithSourceAuth failed: %v", err)
	}
	if cfg.source.Password != "source-secret" {
		t.Errorf("Expected source password to be overridden, got %q", cfg.source.Password)
	}

	if err := WithTargetAuth("target-secret")(cfg); err != nil {
		t.Fatalf("WithTargetAuth failed: %v", err)
	}
	if cfg.target.Password != "target-secret" {
		t.Errorf("Expected target password to be set, got %q", cfg.target.Password)
	}
}

// TestTLSOptions tests the per-side TLS options with the secure defaults
func TestTLSOptions(t *testing.T) {
	cfg := defaultConfig()
	cfg.source = Endpoint{Host: "source.example.com", Port: 6379}
	cfg.target = Endpoint{Host: "target.example.com", Port: 6379}

	if err := WithSourceTLS(SecureTLSConfig("source.example.com"))(cfg); err != nil {
		t.Fatalf("WithSourceTLS failed: %v", err)
	}
	if cfg.source.TLS == nil || cfg.source.TLS.ServerName != "source.example.com" {
		t.Errorf("Source TLS config not applied: %+v", cfg.source.TLS)
	}

	if err := WithTargetTLS(SecureTLSConfig("target.example.com"))(cfg); err != nil {
		t.Fatalf("WithTargetTLS failed: %v", err)
	}
	if cfg.target.TLS == nil || cfg.target.TLS.ServerName != "target.example.com" {
		t.Errorf("Target TLS config not applied: %+v", cfg.target.TLS)
	}

	// The target side keeps its own config; the two must not alias
	if cfg.source.TLS == cfg.target.TLS {
		t.Error("Source and target TLS configs should be distinct")
	}
}
