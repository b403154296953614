package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKeychainSealRoundTrip(t *testing.T) {
	keychain, err := OpenKeychain(t.TempDir())
	if err != nil {
		t.Fatalf("open keychain: %v", err)
	}

	envelope, err := keychain.Seal("hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(envelope) {
		t.Fatalf("envelope %q not marked sealed", envelope)
	}
	if strings.Contains(envelope, "hunter2") {
		t.Fatal("envelope leaks the plaintext")
	}

	plain, err := keychain.Open(envelope)
	if err != nil {
		t.Fatalf("open envelope: %v", err)
	}
	if plain != "hunter2" {
		t.Fatalf("plain = %q, want hunter2", plain)
	}

	again, err := keychain.Seal("hunter2")
	if err != nil {
		t.Fatalf("seal again: %v", err)
	}
	if again == envelope {
		t.Fatal("sealing twice produced identical envelopes")
	}
}

func TestKeychainRejectsForeignEnvelope(t *testing.T) {
	first, err := OpenKeychain(t.TempDir())
	if err != nil {
		t.Fatalf("open first keychain: %v", err)
	}
	second, err := OpenKeychain(t.TempDir())
	if err != nil {
		t.Fatalf("open second keychain: %v", err)
	}

	envelope, err := first.Seal("secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := second.Open(envelope); err == nil {
		t.Fatal("expected decryption failure with a different keychain")
	}
}

func TestLoadOpensSealedCredentials(t *testing.T) {
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")

	keychain, err := OpenKeychain(dataDir)
	if err != nil {
		t.Fatalf("open keychain: %v", err)
	}
	sealed, err := keychain.Seal("secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q

[primary]
username = "tester"
password = %q
`, dataDir, sealed)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Primary.Password != "secret" {
		t.Fatalf("password = %q, want the opened plaintext", cfg.Primary.Password)
	}
}

func TestSealCredentialsFileRewritesPlaintext(t *testing.T) {
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")

	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q

[primary]
username = "tester"
password = "secret"

[[hosts]]
name = "mirror"
enabled = true
base_url = "https://mirror.example"
auth = "api_key"
api_key = "key-material"
`, dataDir)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	sealed, err := SealCredentialsFile(path)
	if err != nil {
		t.Fatalf("seal file: %v", err)
	}
	if sealed != 2 {
		t.Fatalf("sealed %d values, want 2", sealed)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config back: %v", err)
	}
	text := string(raw)
	if strings.Contains(text, "secret") || strings.Contains(text, "key-material") {
		t.Fatal("config file still contains plaintext credentials")
	}
	if !strings.Contains(text, sealedPrefix) {
		t.Fatal("config file has no sealed envelopes")
	}

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("load sealed config: %v", err)
	}
	if cfg.Primary.Password != "secret" {
		t.Fatalf("password = %q, want secret", cfg.Primary.Password)
	}
	if cfg.Hosts[0].APIKey != "key-material" {
		t.Fatalf("api key = %q, want key-material", cfg.Hosts[0].APIKey)
	}

	// Nothing left to seal on a second pass.
	again, err := SealCredentialsFile(path)
	if err != nil {
		t.Fatalf("second seal: %v", err)
	}
	if again != 0 {
		t.Fatalf("second seal touched %d values, want 0", again)
	}
}
