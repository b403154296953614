package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// sealedPrefix marks a credential value sealed by the local keychain.
const sealedPrefix = "enc:"

const (
	keychainFileName = "credentials.key"
	saltLength       = 16
	nonceLength      = 24

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Keychain seals credential values with per-value keys derived from a
// machine-local master secret. The secret never leaves the data directory,
// so a config file with sealed credentials can be copied or backed up
// without exposing them.
type Keychain struct {
	master []byte
}

// OpenKeychain loads the master secret under dir, creating it on first use.
func OpenKeychain(dir string) (*Keychain, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("keychain directory must be set")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure keychain directory: %w", err)
	}

	path := filepath.Join(dir, keychainFileName)
	master, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(master) != 32 {
			return nil, fmt.Errorf("keychain file %s has unexpected size %d", path, len(master))
		}
	case errors.Is(err, fs.ErrNotExist):
		master = make([]byte, 32)
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("generate keychain secret: %w", err)
		}
		if err := os.WriteFile(path, master, 0o600); err != nil {
			return nil, fmt.Errorf("write keychain secret: %w", err)
		}
	default:
		return nil, fmt.Errorf("read keychain secret: %w", err)
	}
	return &Keychain{master: master}, nil
}

// IsSealed reports whether value is a sealed credential envelope.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// Seal encrypts one credential into an envelope string. Each call uses a
// fresh salt and nonce, so sealing the same value twice yields different
// envelopes.
func (k *Keychain) Seal(plain string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key, err := k.derive(salt)
	if err != nil {
		return "", err
	}

	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(append(salt, sealed...)), nil
}

// Open decrypts an envelope produced by Seal.
func (k *Keychain) Open(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed credential: %w", err)
	}
	if len(raw) < saltLength+nonceLength {
		return "", errors.New("sealed credential truncated")
	}

	key, err := k.derive(raw[:saltLength])
	if err != nil {
		return "", err
	}
	var nonce [nonceLength]byte
	copy(nonce[:], raw[saltLength:saltLength+nonceLength])
	plain, ok := secretbox.Open(nil, raw[saltLength+nonceLength:], &nonce, key)
	if !ok {
		return "", errors.New("credential decryption failed; the keychain does not match the config file")
	}
	return string(plain), nil
}

func (k *Keychain) derive(salt []byte) (*[32]byte, error) {
	raw, err := scrypt.Key(k.master, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// credentialFields returns pointers to every secret value in the config.
// Usernames stay plaintext; they are identifiers, not secrets.
func (c *Config) credentialFields() []*string {
	fields := []*string{&c.Primary.Password}
	for i := range c.Hosts {
		fields = append(fields, &c.Hosts[i].APIKey, &c.Hosts[i].Password)
	}
	return fields
}

// SealCredentials encrypts every plaintext credential in place and returns
// how many values were sealed. Already-sealed and empty values are left
// alone.
func (c *Config) SealCredentials(k *Keychain) (int, error) {
	sealed := 0
	for _, field := range c.credentialFields() {
		if *field == "" || IsSealed(*field) {
			continue
		}
		envelope, err := k.Seal(*field)
		if err != nil {
			return sealed, err
		}
		*field = envelope
		sealed++
	}
	return sealed, nil
}

// openCredentials decrypts sealed credential values in place. A config with
// no sealed values never touches the keychain.
func (c *Config) openCredentials() error {
	var keychain *Keychain
	for _, field := range c.credentialFields() {
		if !IsSealed(*field) {
			continue
		}
		if keychain == nil {
			k, err := OpenKeychain(c.Paths.DataDir)
			if err != nil {
				return err
			}
			keychain = k
		}
		plain, err := keychain.Open(*field)
		if err != nil {
			return err
		}
		*field = plain
	}
	return nil
}

// SealCredentialsFile rewrites the config file at path with every plaintext
// credential sealed against the keychain in the configured data directory.
// The file is re-rendered from the parsed config, so defaulted sections
// become explicit and comments are not preserved.
func SealCredentialsFile(path string) (int, error) {
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("no config file at %s", resolvedPath)
	}

	cfg := Default()
	file, err := os.Open(resolvedPath)
	if err != nil {
		return 0, fmt.Errorf("open config: %w", err)
	}
	decoder := toml.NewDecoder(file)
	err = decoder.Decode(&cfg)
	file.Close()
	if err != nil {
		return 0, fmt.Errorf("parse config: %w", err)
	}

	dataDir, err := expandPath(cfg.Paths.DataDir)
	if err != nil {
		return 0, fmt.Errorf("paths.data_dir: %w", err)
	}
	keychain, err := OpenKeychain(dataDir)
	if err != nil {
		return 0, err
	}

	sealed, err := cfg.SealCredentials(keychain)
	if err != nil {
		return 0, err
	}
	if sealed == 0 {
		return 0, nil
	}

	rendered, err := toml.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("render config: %w", err)
	}
	if err := os.WriteFile(resolvedPath, rendered, 0o600); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	return sealed, nil
}
