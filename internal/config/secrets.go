package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the keyring service name for sfexplain secrets.
	KeyringService = "sfexplain"
	apiKeyUser     = "openai_api_key"

	// APIKeyEnv takes precedence over the keyring.
	APIKeyEnv = "OPENAI_API_KEY"
)

// Where an API key came from.
const (
	SourceEnv     = "environment"
	SourceKeyring = "keyring"
	SourceNone    = "none"
)

// APIKey returns the OpenAI API key and where it came from. A missing key is
// not an error; the caller decides whether it needs one.
func APIKey(getenv func(string) string) (string, string, error) {
	if k := strings.TrimSpace(getenv(APIKeyEnv)); k != "" {
		return k, SourceEnv, nil
	}
	k, err := keyring.Get(KeyringService, apiKeyUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", SourceNone, nil
		}
		return "", SourceNone, fmt.Errorf("failed to read API key from keyring: %w", err)
	}
	return k, SourceKeyring, nil
}

// SetAPIKey stores the key in the OS keyring.
func SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key must not be empty")
	}
	if err := keyring.Set(KeyringService, apiKeyUser, key); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored key. Deleting a missing key succeeds.
func DeleteAPIKey() error {
	if err := keyring.Delete(KeyringService, apiKeyUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return nil
}

// MaskKey shows only the last four characters of a key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
