// Package support – keyring.go provides credential storage using the
// operating system's native keyring (Linux: Secret Service/GNOME Keyring,
// macOS: Keychain, Windows: Credential Manager).
//
// Priority for resolving secrets:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (OPENAI_API_KEY, TRELLO_API_KEY, etc.)
//  3. .env file (loaded by godotenv)
//  4. config.yaml value (least secure — plaintext on disk)
package support

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "supportd"

	// Key names for the stored secrets.
	KeyAssistantAPIKey = "assistant_api_key"
	KeyTrackerAPIKey   = "tracker_api_key"
	KeyTrackerToken    = "tracker_token"
	KeyMailPassword    = "mail_password"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__supportd_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveCredentials overrides config secrets with keyring values when
// present. Values already resolved from env/config are kept otherwise.
func ResolveCredentials(cfg *Config, logger *slog.Logger) {
	resolve := func(target *string, key, name string) {
		if val := GetKeyring(key); val != "" {
			*target = val
			logger.Debug("credential loaded from OS keyring", "credential", name)
			return
		}
		if *target != "" && !IsEnvReference(*target) {
			logger.Debug("credential loaded from config/env", "credential", name)
		}
	}

	resolve(&cfg.Assistant.APIKey, KeyAssistantAPIKey, "assistant api key")
	resolve(&cfg.Tracker.APIKey, KeyTrackerAPIKey, "tracker api key")
	resolve(&cfg.Tracker.Token, KeyTrackerToken, "tracker token")
	resolve(&cfg.Mail.Password, KeyMailPassword, "mail password")

	if cfg.Assistant.APIKey == "" || IsEnvReference(cfg.Assistant.APIKey) {
		logger.Warn("no assistant API key found. Set one with: supportd config set-key")
	}
}

// MigrateKeyToKeyring moves a secret from config/env to the OS keyring.
func MigrateKeyToKeyring(key, value string, logger *slog.Logger) error {
	if err := StoreKeyring(key, value); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	logger.Info("credential stored in OS keyring",
		"service", keyringService,
		"key", key,
		"hint", "You can now remove it from .env and config.yaml")
	return nil
}
