package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meko-christian/mail-listener/internal/config"
	"github.com/meko-christian/mail-listener/internal/credential"
)

const envFile = ".env"

var rootCmd = &cobra.Command{
	Use:   "mail-listener",
	Short: "Watch a mailbox folder and process incoming mails",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Setup logger after flag parsing
		setupLogger()
	},
	SilenceUsage: true,
}

func init() {
	// Add persistent flag to enable verbose logging
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose (info/debug) logging")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.PersistentFlags().String("log-level", "error", "Log level when not verbose (debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load env file", "file", envFile, "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Warn("No config.yaml found in current directory.",
				"hint", "Run `mail-listener init` to create one interactively.")
		} else {
			slog.Error("Failed to read config", "error", err)
		}
	}
}

// loadConfig decodes the viper state, fills passwords from the keyring and
// validates the result.
func loadConfig() (*config.Config, error) {
	if !viper.InConfig("imap") {
		return nil, fmt.Errorf(`configuration missing or incomplete.

Create a config.yaml file by running:
  mail-listener init

The configuration file should be in your current directory and contain
at least the IMAP server settings of the mailbox to watch.`)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if cfg.IMAP.Password == "" || (cfg.SMTP.Username != "" && cfg.SMTP.Password == "") {
		store, err := credential.Open()
		if err != nil {
			slog.Warn("Keyring unavailable", "error", err)
		} else if err := cfg.ResolvePasswords(store); err != nil {
			return nil, fmt.Errorf("failed to read passwords from keyring: %w", err)
		}
	}

	if errs := config.NewConfigValidator().ValidateConfig(cfg); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("Invalid configuration", "problem", e)
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

func setupLogger() {
	var level slog.Level
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	} else {
		switch viper.GetString("log_level") {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		default:
			level = slog.LevelError
		}
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
