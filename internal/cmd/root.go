package cmd

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/sipchat/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sipchat [target] [streams...]",
	Short: "Console chat and call client",
	Long: `sipchat is an interactive console client for chat and audio sessions.

Without arguments it waits for incoming session requests. With a target it
places an outgoing session right away, e.g.:

  sipchat bob@example.org +chat
  sipchat bob audio chat

Type :help inside the client for commands and shortcuts.`,
	Args:         cobra.ArbitraryArgs,
	RunE:         runClient,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/sipchat/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	flags := rootCmd.Flags()
	flags.StringP("account", "a", "", "account to use (id or unique part of it)")
	flags.Bool("no-register", false, "do not register the account")
	flags.BoolP("trace-sip", "s", false, "print signalling frames")
	flags.BoolP("trace-msrp", "m", false, "print chat frames")
	flags.Bool("trace-notifications", false, "print every engine notification")
	flags.String("listen", "", "listen address (host:port), overrides engine.listen_address")
	_ = viper.BindPFlag("engine.listen_address", flags.Lookup("listen"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/sipchat")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SIPCHAT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SIPCHAT_ACCOUNT_DOMAIN for account.domain
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// watchConfig re-applies the logging level whenever the config file
// changes. Other settings take effect on the next start.
func watchConfig(onLevel func(level string)) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onLevel(viper.GetString("logging.level"))
	})
	viper.WatchConfig()
}
