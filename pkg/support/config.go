// Package support – config.go defines all configuration structures
// for the supportd chat backend.
package support

import "time"

// Config holds all service configuration.
type Config struct {
	// Name is the service name shown in logs and the assistant profile.
	Name string `yaml:"name"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Assistant configures the remote conversational-AI service.
	Assistant AssistantConfig `yaml:"assistant"`

	// Storage configures the message/escalation store.
	Storage StorageConfig `yaml:"storage"`

	// Tracker configures the Trello escalation target.
	Tracker TrackerConfig `yaml:"tracker"`

	// Mail configures the escalation mail relay.
	Mail MailConfig `yaml:"mail"`

	// Scheduler configures the periodic tracker sync.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Address is the listen address (default ":5000").
	Address string `yaml:"address"`

	// CORSOrigins restricts allowed origins; empty means allow all.
	CORSOrigins []string `yaml:"cors_origins"`
}

// AssistantConfig holds settings for the hosted assistant service.
type AssistantConfig struct {
	// BaseURL is the API base (default "https://api.openai.com/v1").
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the assistant service.
	APIKey string `yaml:"api_key"`

	// Model is the model backing the assistant (e.g. "gpt-4.1-nano").
	Model string `yaml:"model"`

	// Instructions is the assistant system prompt. Empty uses the
	// built-in support prompt.
	Instructions string `yaml:"instructions"`

	// KnowledgeDir holds documents uploaded to the vector store at
	// startup. Empty disables knowledge provisioning.
	KnowledgeDir string `yaml:"knowledge_dir"`

	// AssistantID pins an existing remote assistant. When set, startup
	// provisioning is skipped.
	AssistantID string `yaml:"assistant_id"`

	// Poll tunes the run status polling loop.
	Poll PollConfig `yaml:"poll"`
}

// PollConfig bounds the run polling loop.
type PollConfig struct {
	// Interval is the first wait between status checks.
	Interval time.Duration `yaml:"interval"`

	// MaxInterval caps the backoff growth.
	MaxInterval time.Duration `yaml:"max_interval"`

	// Timeout is the total budget for one run.
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects and configures the store backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// Path is the database file path (sqlite).
	Path string `yaml:"path"`

	// DSN is the connection string (postgres).
	DSN string `yaml:"dsn"`
}

// TrackerConfig holds Trello API settings.
type TrackerConfig struct {
	// BaseURL is the tracker API base (default "https://api.trello.com/1").
	BaseURL string `yaml:"base_url"`

	// APIKey and Token authenticate card creation.
	APIKey string `yaml:"api_key"`
	Token  string `yaml:"token"`

	// ListID is the board list receiving conversation cards.
	ListID string `yaml:"list_id"`
}

// MailConfig holds SMTP settings for escalation notifications.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// From defaults to Username when empty.
	From string `yaml:"from"`

	// Recipients receive escalation notifications.
	Recipients []string `yaml:"recipients"`

	// SSL selects implicit TLS (port 465). Plain submission otherwise.
	SSL bool `yaml:"ssl"`
}

// SchedulerConfig configures the periodic bulk sync job.
type SchedulerConfig struct {
	// Enabled turns the cron sync on/off.
	Enabled bool `yaml:"enabled"`

	// SyncSchedule is the cron expression for bulk tracker sync
	// (default "@hourly").
	SyncSchedule string `yaml:"sync_schedule"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "supportd",
		Server: ServerConfig{
			Address: ":5000",
		},
		Assistant: AssistantConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4.1-nano",
			Poll: PollConfig{
				Interval:    500 * time.Millisecond,
				MaxInterval: 5 * time.Second,
				Timeout:     120 * time.Second,
			},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./data/support.db",
		},
		Tracker: TrackerConfig{
			BaseURL: "https://api.trello.com/1",
		},
		Mail: MailConfig{
			Host: "smtp.gmail.com",
			Port: 465,
			SSL:  true,
		},
		Scheduler: SchedulerConfig{
			Enabled:      false,
			SyncSchedule: "@hourly",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
