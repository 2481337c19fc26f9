package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Account.Domain != "localhost" {
		t.Errorf("Account.Domain = %q, want localhost", cfg.Account.Domain)
	}
	if cfg.Account.Port != 5060 {
		t.Errorf("Account.Port = %d, want 5060", cfg.Account.Port)
	}
	if !cfg.Account.Register {
		t.Error("Account.Register should default to true")
	}
	if cfg.Account.User == "" {
		t.Error("Account.User should never be empty")
	}
	if len(cfg.Accounts) != 0 {
		t.Errorf("Accounts = %v, want empty", cfg.Accounts)
	}

	if cfg.Engine.DTMFRate != 8 {
		t.Errorf("Engine.DTMFRate = %v, want 8", cfg.Engine.DTMFRate)
	}
	if cfg.Engine.EchoTail() != 200*time.Millisecond {
		t.Errorf("Engine.EchoTail() = %v, want 200ms", cfg.Engine.EchoTail())
	}
	if cfg.Chat.HistoryDirectory != "" {
		t.Errorf("Chat.HistoryDirectory = %q, want empty", cfg.Chat.HistoryDirectory)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Shutdown.SessionTimeout != 3*time.Second {
		t.Errorf("Shutdown.SessionTimeout = %v, want 3s", cfg.Shutdown.SessionTimeout)
	}
	if cfg.Shutdown.UnregisterTimeout != time.Second {
		t.Errorf("Shutdown.UnregisterTimeout = %v, want 1s", cfg.Shutdown.UnregisterTimeout)
	}
	if cfg.Console.PromptColor == "" {
		t.Error("Console.PromptColor should have a default")
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should be valid, got %v", ValidationErrors(errs))
	}
}

func TestDefault_NoUserEnv(t *testing.T) {
	t.Setenv("USER", "")
	if got := Default().Account.User; got != "sipchat" {
		t.Errorf("Account.User = %q, want sipchat", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		if got := ConfigDir(); got != filepath.Join("/tmp/xdg", "sipchat") {
			t.Errorf("ConfigDir() = %q", got)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		if got := ConfigDir(); got != filepath.Join(home, ".config", "sipchat") {
			t.Errorf("ConfigDir() = %q", got)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := ConfigFile(); got != filepath.Join("/tmp/xdg", "sipchat", "config.yaml") {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestLogDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	cfg := Default()
	if got := cfg.LogDir(); got != ConfigDir() {
		t.Errorf("LogDir() = %q, want %q", got, ConfigDir())
	}
	cfg.Logging.Directory = "/var/log/sipchat"
	if got := cfg.LogDir(); got != "/var/log/sipchat" {
		t.Errorf("LogDir() = %q", got)
	}
}

func TestLoad(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	viper.SetConfigType("yaml")
	yaml := `
account:
  user: alice
  domain: example.com
  port: 5070
accounts:
  - id: work
    user: alice
    domain: work.example.com
shutdown:
  session_timeout: 5s
engine:
  echo_tail_ms: 250
`
	if err := viper.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Account.User != "alice" || cfg.Account.Domain != "example.com" || cfg.Account.Port != 5070 {
		t.Errorf("Account = %+v", cfg.Account)
	}
	if !cfg.Account.Register {
		t.Error("Account.Register should keep its default")
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].ID != "work" {
		t.Errorf("Accounts = %+v", cfg.Accounts)
	}
	if cfg.Shutdown.SessionTimeout != 5*time.Second {
		t.Errorf("Shutdown.SessionTimeout = %v, want 5s", cfg.Shutdown.SessionTimeout)
	}
	if cfg.Shutdown.CalmingDelay != time.Second {
		t.Errorf("Shutdown.CalmingDelay = %v, want default 1s", cfg.Shutdown.CalmingDelay)
	}
	if cfg.Engine.EchoTailMs != 250 {
		t.Errorf("Engine.EchoTailMs = %d, want 250", cfg.Engine.EchoTailMs)
	}
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.Set("engine.dtmf_rate", 0)
	viper.Set("logging.level", "verbose")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail on invalid values")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Load() error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
	}
}

func TestGet_FallsBackToDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.Set("account.port", -1)

	cfg := Get()
	if cfg.Account.Port != 5060 {
		t.Errorf("Get() with invalid config should return defaults, got port %d", cfg.Account.Port)
	}
}

func TestEngineAccount(t *testing.T) {
	a := AccountConfig{
		User:        "alice",
		Domain:      "example.com",
		DisplayName: "Alice",
		Port:        5070,
		Register:    true,
	}
	got := a.EngineAccount()
	if got.ID != "alice@example.com" {
		t.Errorf("ID = %q, want alice@example.com", got.ID)
	}
	if got.URI.String() != "alice@example.com:5070" {
		t.Errorf("URI = %q", got.URI.String())
	}
	if got.URI.Format() != "Alice (alice@example.com)" {
		t.Errorf("URI.Format() = %q", got.URI.Format())
	}
	if !got.Register {
		t.Error("Register should be carried over")
	}
}

func TestSelectAccount(t *testing.T) {
	cfg := Default()
	cfg.Account = AccountConfig{User: "alice", Domain: "example.com"}
	cfg.Accounts = []AccountConfig{
		{ID: "work", User: "alice", Domain: "work.example.com"},
		{ID: "workshop", User: "al", Domain: "shop.example.com"},
		{User: "bob", Domain: "example.org"},
	}

	tests := []struct {
		name    string
		query   string
		wantKey string
		wantErr string
	}{
		{"empty selects default", "", "alice@example.com", ""},
		{"exact id", "work", "work", ""},
		{"exact beats substring", "work", "work", ""},
		{"unique substring", "shop", "workshop", ""},
		{"implicit id", "bob@", "bob@example.org", ""},
		{"ambiguous", "example", "", "ambiguous"},
		{"no match", "carol", "", "no account matches"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.SelectAccount(tt.query)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("SelectAccount(%q) error = %v, want %q", tt.query, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectAccount(%q) error = %v", tt.query, err)
			}
			if got.Key() != tt.wantKey {
				t.Errorf("SelectAccount(%q) = %q, want %q", tt.query, got.Key(), tt.wantKey)
			}
		})
	}
}
