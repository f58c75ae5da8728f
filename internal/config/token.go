package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Keychain abstracts the platform secret store for values the CLI both
// reads and writes.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return keychainStore{}
}

type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSetExec(service, account, value)
}

// GetAPIToken returns the bearer token protecting the local HTTP API.
// ADOPS_API_TOKEN overrides; otherwise the token lives in the platform
// secret store and is generated on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if t := os.Getenv("ADOPS_API_TOKEN"); t != "" {
		return t, nil
	}
	if t, err := kc.Get("adops", "api_token"); err == nil && t != "" {
		return t, nil
	}
	token := uuid.NewString()
	if err := kc.Set("adops", "api_token", token); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return token, nil
}
