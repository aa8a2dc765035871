// Package support – loader.go handles loading configuration from YAML
// files with credential resolution via environment variables and .env files.
package support

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Automatically loads .env files and expands environment variables.
func LoadConfigFromFile(path string) (*Config, error) {
	// Load .env files (silently ignore if not found).
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in YAML before parsing.
	expanded := expandEnvVars(string(data))

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)

	return cfg, nil
}

// LoadConfigFromEnv builds a Config from defaults plus environment
// variables, for first runs without a config file.
func LoadConfigFromEnv() *Config {
	loadEnvFiles()
	cfg := DefaultConfig()
	resolveSecrets(cfg)
	return cfg
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML to the specified path.
// Secrets are replaced with environment variable references.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.Assistant.APIKey = sanitizeSecret(cfg.Assistant.APIKey, "OPENAI_API_KEY")
	sanitized.Tracker.APIKey = sanitizeSecret(cfg.Tracker.APIKey, "TRELLO_API_KEY")
	sanitized.Tracker.Token = sanitizeSecret(cfg.Tracker.Token, "TRELLO_TOKEN")
	sanitized.Mail.Password = sanitizeSecret(cfg.Mail.Password, "MAIL_PASSWORD")

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Write with restricted permissions (owner read/write only).
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"supportd.yaml",
		"supportd.yml",
		"configs/config.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		// godotenv.Load does NOT overwrite existing env vars.
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and $VAR references in a string
// with their environment variable values.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}

		// Return original if env var not set (allows placeholder to remain).
		return match
	})
}

// resolveSecrets fills in config secrets from environment variables
// when the config value is empty or an unexpanded placeholder.
func resolveSecrets(cfg *Config) {
	set := func(target *string, envVars ...string) {
		if *target != "" && !IsEnvReference(*target) {
			return
		}
		for _, v := range envVars {
			if val := os.Getenv(v); val != "" {
				*target = val
				return
			}
		}
	}

	set(&cfg.Assistant.APIKey, "SUPPORTD_API_KEY", "OPENAI_API_KEY")
	set(&cfg.Tracker.APIKey, "TRELLO_API_KEY")
	set(&cfg.Tracker.Token, "TRELLO_TOKEN")
	set(&cfg.Tracker.ListID, "TRELLO_LIST_ID")
	set(&cfg.Mail.Username, "MAIL_USERNAME")
	set(&cfg.Mail.Password, "MAIL_PASSWORD")
}

// sanitizeSecret replaces a real secret with an env var reference
// for safe storage in config files.
func sanitizeSecret(value, envVar string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	if os.Getenv(envVar) == value {
		return "${" + envVar + "}"
	}
	return value
}

// IsEnvReference checks if a string is an environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}
