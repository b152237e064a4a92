package config

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name secrets are stored under in the OS keychain.
const KeyringService = "trainerbot"

const keyringPrefix = "keyring:"

// ResolveSecret returns value unchanged unless it has the form "keyring:<account>",
// in which case the secret is read from the OS keychain.
func ResolveSecret(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, keyringPrefix) {
		return value, nil
	}
	account := strings.TrimSpace(strings.TrimPrefix(trimmed, keyringPrefix))
	if account == "" {
		return "", fmt.Errorf("empty keyring account")
	}
	secret, err := keyring.Get(KeyringService, account)
	if err != nil {
		return "", fmt.Errorf("keyring lookup %q: %w", account, err)
	}
	return secret, nil
}
