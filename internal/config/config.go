package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/sipchat/internal/engine"
)

// Config represents the complete sipchat configuration
type Config struct {
	Account  AccountConfig   `mapstructure:"account" yaml:"account"`
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Engine   EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Chat     ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Logging  LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Shutdown ShutdownConfig  `mapstructure:"shutdown" yaml:"shutdown"`
	Console  ConsoleConfig   `mapstructure:"console" yaml:"console"`
}

// AccountConfig is one local identity
type AccountConfig struct {
	// ID names the account for --account. Defaults to user@domain.
	ID          string `mapstructure:"id" yaml:"id,omitempty"`
	User        string `mapstructure:"user" yaml:"user"`
	Domain      string `mapstructure:"domain" yaml:"domain"`
	DisplayName string `mapstructure:"display_name" yaml:"display_name"`
	// Port is the port peers reach this account on (0 means 5060)
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	// Register reports the listener as a registration
	Register bool `mapstructure:"register" yaml:"register"`
}

// EngineConfig controls the session engine
type EngineConfig struct {
	// ListenAddress overrides the host:port the engine listens on
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
	// DTMFRate is the maximum number of DTMF digits sent per second
	DTMFRate float64 `mapstructure:"dtmf_rate" yaml:"dtmf_rate"`
	// EchoTailMs is the initial echo cancellation tail length in milliseconds
	EchoTailMs int `mapstructure:"echo_tail_ms" yaml:"echo_tail_ms"`
}

// ChatConfig controls chat transcripts
type ChatConfig struct {
	// HistoryDirectory is where transcripts are written; empty disables them
	HistoryDirectory string `mapstructure:"history_directory" yaml:"history_directory"`
}

// LoggingConfig controls the debug log
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Directory holds sipchat.log; empty means the config directory
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// ShutdownConfig bounds the shutdown phases
type ShutdownConfig struct {
	SessionTimeout    time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
	UnregisterTimeout time.Duration `mapstructure:"unregister_timeout" yaml:"unregister_timeout"`
	// CalmingDelay is how long a phase may run before a progress message is printed
	CalmingDelay time.Duration `mapstructure:"calming_delay" yaml:"calming_delay"`
}

// ConsoleConfig controls the terminal
type ConsoleConfig struct {
	// PromptColor is a lipgloss color for the prompt (ANSI number or hex)
	PromptColor string `mapstructure:"prompt_color" yaml:"prompt_color"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	user := os.Getenv("USER")
	if user == "" {
		user = "sipchat"
	}
	return &Config{
		Account: AccountConfig{
			User:     user,
			Domain:   "localhost",
			Port:     engine.DefaultPort,
			Register: true,
		},
		Accounts: []AccountConfig{},
		Engine: EngineConfig{
			DTMFRate:   8,
			EchoTailMs: 200,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Shutdown: ShutdownConfig{
			SessionTimeout:    3 * time.Second,
			UnregisterTimeout: time.Second,
			CalmingDelay:      time.Second,
		},
		Console: ConsoleConfig{
			PromptColor: "12",
		},
	}
}

// EchoTail returns the echo tail length as a time.Duration
func (c *EngineConfig) EchoTail() time.Duration {
	return time.Duration(c.EchoTailMs) * time.Millisecond
}

// Key returns the account's ID, or user@domain when no ID is set.
func (a AccountConfig) Key() string {
	if a.ID != "" {
		return a.ID
	}
	return a.User + "@" + a.Domain
}

// EngineAccount converts the account for the engine.
func (a AccountConfig) EngineAccount() engine.Account {
	return engine.Account{
		ID: a.Key(),
		URI: engine.URI{
			User:    a.User,
			Host:    a.Domain,
			Port:    a.Port,
			Display: a.DisplayName,
		},
		DisplayName: a.DisplayName,
		Password:    a.Password,
		Register:    a.Register,
	}
}

// AllAccounts returns the default account followed by the extra ones.
func (c *Config) AllAccounts() []AccountConfig {
	return append([]AccountConfig{c.Account}, c.Accounts...)
}

// SelectAccount picks the account named by query: an exact ID match, or
// the only account whose ID contains query. An empty query selects the
// default account.
func (c *Config) SelectAccount(query string) (AccountConfig, error) {
	if query == "" {
		return c.Account, nil
	}

	all := c.AllAccounts()
	for _, a := range all {
		if a.Key() == query {
			return a, nil
		}
	}

	var matches []AccountConfig
	for _, a := range all {
		if strings.Contains(a.Key(), query) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return AccountConfig{}, fmt.Errorf("no account matches %q", query)
	default:
		keys := make([]string, len(matches))
		for i, a := range matches {
			keys[i] = a.Key()
		}
		return AccountConfig{}, fmt.Errorf("account %q is ambiguous: %s", query, strings.Join(keys, ", "))
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Account defaults
	viper.SetDefault("account.user", defaults.Account.User)
	viper.SetDefault("account.domain", defaults.Account.Domain)
	viper.SetDefault("account.display_name", defaults.Account.DisplayName)
	viper.SetDefault("account.port", defaults.Account.Port)
	viper.SetDefault("account.password", defaults.Account.Password)
	viper.SetDefault("account.register", defaults.Account.Register)
	viper.SetDefault("accounts", defaults.Accounts)

	// Engine defaults
	viper.SetDefault("engine.listen_address", defaults.Engine.ListenAddress)
	viper.SetDefault("engine.dtmf_rate", defaults.Engine.DTMFRate)
	viper.SetDefault("engine.echo_tail_ms", defaults.Engine.EchoTailMs)

	// Chat defaults
	viper.SetDefault("chat.history_directory", defaults.Chat.HistoryDirectory)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.directory", defaults.Logging.Directory)

	// Shutdown defaults
	viper.SetDefault("shutdown.session_timeout", defaults.Shutdown.SessionTimeout)
	viper.SetDefault("shutdown.unregister_timeout", defaults.Shutdown.UnregisterTimeout)
	viper.SetDefault("shutdown.calming_delay", defaults.Shutdown.CalmingDelay)

	// Console defaults
	viper.SetDefault("console.prompt_color", defaults.Console.PromptColor)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sipchat")
	}
	// Fall back to ~/.config/sipchat
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sipchat"
	}
	return filepath.Join(home, ".config", "sipchat")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LogDir returns the configured log directory, defaulting to ConfigDir.
func (c *Config) LogDir() string {
	if c.Logging.Directory != "" {
		return c.Logging.Directory
	}
	return ConfigDir()
}
