// Package config loads rejectfewer settings from a YAML file, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. REJECTFEWER_MAILBOX_MAX_MESSAGES.
const EnvPrefix = "REJECTFEWER"

// Mailbox providers.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// Config is the top-level configuration.
type Config struct {
	Account string        `mapstructure:"account"`
	DryRun  bool          `mapstructure:"dry_run"`
	Mailbox MailboxConfig `mapstructure:"mailbox"`
	Google  GoogleConfig  `mapstructure:"google"`
	IMAP    IMAPConfig    `mapstructure:"imap"`
	Agent   AgentConfig   `mapstructure:"agent"`
	History HistoryConfig `mapstructure:"history"`
	Log     LogConfig     `mapstructure:"log"`
}

// MailboxConfig selects and tunes the mailbox source.
type MailboxConfig struct {
	Provider    string        `mapstructure:"provider"`
	Query       string        `mapstructure:"query"`
	MaxMessages int64         `mapstructure:"max_messages"`
	FetchDelay  time.Duration `mapstructure:"fetch_delay"`
}

// GoogleConfig locates OAuth client credentials and cached tokens.
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenDir        string `mapstructure:"token_dir"`
}

// IMAPConfig holds IMAP connection settings.
type IMAPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	TLS          bool   `mapstructure:"tls"`
	TrashMailbox string `mapstructure:"trash_mailbox"`
}

// AgentConfig configures the classification model.
type AgentConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	MaxBodyChars  int           `mapstructure:"max_body_chars"`
	SessionDelay  time.Duration `mapstructure:"session_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxIterations int           `mapstructure:"max_iterations"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File receives logs in UI mode, where stderr belongs to the terminal UI.
	File string `mapstructure:"file"`
}

// Dir returns ~/.config/rejectfewer.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rejectfewer")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "rejectfewer")
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", ".cache")
	}
	return filepath.Join(dir, "rejectfewer")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account", "default")
	v.SetDefault("dry_run", false)

	v.SetDefault("mailbox.provider", ProviderGmail)
	v.SetDefault("mailbox.query", "in:inbox is:unread category:primary")
	v.SetDefault("mailbox.max_messages", 15)
	v.SetDefault("mailbox.fetch_delay", 100*time.Millisecond)

	v.SetDefault("google.credentials_file", filepath.Join(Dir(), "credentials.json"))
	v.SetDefault("google.token_dir", cacheDir())

	v.SetDefault("imap.host", "")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.trash_mailbox", "[Gmail]/Trash")

	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("agent.model", "gemini-2.0-flash")
	v.SetDefault("agent.max_body_chars", 5000)
	v.SetDefault("agent.session_delay", time.Second)
	v.SetDefault("agent.timeout", 60*time.Second)
	v.SetDefault("agent.max_iterations", 4)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", filepath.Join(dataDir(), "history.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", filepath.Join(cacheDir(), "rejectfewer.log"))
}

// Load reads path (DefaultPath when empty), then .env from the working
// directory, then the environment. A missing config or .env file is not an
// error. GOOGLE_API_KEY is honoured as agent.api_key.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("agent.api_key", EnvPrefix+"_AGENT_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding api key env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and provider-specific requirements.
func (c *Config) Validate() error {
	switch c.Mailbox.Provider {
	case ProviderGmail:
	case ProviderIMAP:
		if c.IMAP.Host == "" || c.IMAP.Username == "" {
			return errors.New("imap provider requires imap.host and imap.username")
		}
	default:
		return fmt.Errorf("unknown mailbox provider %q (want %s or %s)", c.Mailbox.Provider, ProviderGmail, ProviderIMAP)
	}
	if c.Mailbox.MaxMessages <= 0 {
		return fmt.Errorf("mailbox.max_messages must be positive, got %d", c.Mailbox.MaxMessages)
	}
	if c.Agent.MaxBodyChars <= 0 {
		return fmt.Errorf("agent.max_body_chars must be positive, got %d", c.Agent.MaxBodyChars)
	}
	if c.Agent.Timeout <= 0 {
		return errors.New("agent.timeout must be positive")
	}
	if c.Mailbox.FetchDelay < 0 || c.Agent.SessionDelay < 0 {
		return errors.New("delays must not be negative")
	}
	return nil
}
