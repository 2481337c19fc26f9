package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sipchat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View sipchat configuration",
	Long: `View sipchat configuration.

Without arguments, displays the current configuration.
Use subcommands to create a config file or find where it lives.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/sipchat/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

const configHeader = `# sipchat configuration
#
# account is the default identity; further identities go in accounts and
# are picked with --account. Durations use Go syntax (3s, 500ms).
# Every key can be overridden with SIPCHAT_<SECTION>_<KEY>, e.g.
# SIPCHAT_ACCOUNT_DOMAIN.

`

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}
	return writeConfig(out, maskSecrets(cfg))
}

// maskSecrets returns a copy of cfg with passwords hidden.
func maskSecrets(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Account = maskAccount(cfg.Account)
	masked.Accounts = make([]config.AccountConfig, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		masked.Accounts[i] = maskAccount(a)
	}
	return &masked
}

func maskAccount(a config.AccountConfig) config.AccountConfig {
	if a.Password != "" {
		a.Password = "********"
	}
	return a
}

// writeConfig renders cfg as YAML.
func writeConfig(w io.Writer, cfg *config.Config) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.ConfigFile()
	if err := initConfigFile(afero.NewOsFs(), path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to set your account.")
	return nil
}

// initConfigFile writes the default configuration to path. It refuses to
// overwrite an existing file.
func initConfigFile(fs afero.Fs, path string) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return fmt.Errorf("failed to check config file: %w", err)
	}
	if exists {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	if err := writeConfig(&buf, config.Default()); err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else if _, err := os.Stat(configFile); err != nil {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	} else {
		fmt.Fprintf(out, "Default path: %s\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintf(out, "  2. $HOME/.config/sipchat/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: SIPCHAT_* (e.g., SIPCHAT_ACCOUNT_DOMAIN)")
	return nil
}
