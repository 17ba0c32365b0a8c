package main

import (
	"log/slog"
	"os"

	"github.com/meko-christian/mail-listener/cmd"
)

func main() {
	// JSON logs until the root command applies --verbose / --log-level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Run the command-line interface
	if err := cmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
