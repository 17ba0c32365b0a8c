package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/meko-christian/mail-listener/internal/config"
	"github.com/meko-christian/mail-listener/internal/listener"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Extract all unseen mails once and hand them to the processor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyScrapeFlags(cmd.Flags(), cfg)

		session, x, err := openSession(cfg)
		if err != nil {
			return err
		}
		defer logout(session)

		h, release, err := buildProcessor(cfg)
		if err != nil {
			return err
		}
		defer release()

		results, err := listener.Scrape(session, x, cfg.ScrapeOptions())
		if err != nil {
			return fmt.Errorf("scrape failed: %w", err)
		}

		if err := h.Process(cmd.Context(), session, results); err != nil {
			return fmt.Errorf("failed to process scraped messages: %w", err)
		}

		fmt.Printf("Processed %d message(s) from %s\n", len(results), session.Folder())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	addScrapeFlags(scrapeCmd.Flags())
}

func addScrapeFlags(fs *pflag.FlagSet) {
	fs.String("move", "", "Move processed mails to this folder (created on demand)")
	fs.Bool("unread", false, "Leave processed mails unread")
	fs.Bool("delete", false, "Soft delete processed mails with the configured label")
}

// applyScrapeFlags lets explicitly set flags override listener settings.
func applyScrapeFlags(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("move") {
		cfg.Listener.Move, _ = fs.GetString("move")
	}
	if fs.Changed("unread") {
		cfg.Listener.MarkUnread, _ = fs.GetBool("unread")
	}
	if fs.Changed("delete") {
		cfg.Listener.Delete, _ = fs.GetBool("delete")
	}
}

func openSession(cfg *config.Config) (*listener.Session, *listener.Extractor, error) {
	x, err := cfg.Extractor()
	if err != nil {
		return nil, nil, err
	}

	session, err := listener.Dial(cfg.IMAPConfig())
	if err != nil {
		return nil, nil, err
	}
	session.DeleteLabel = cfg.Listener.DeleteLabel

	return session, x, nil
}

func logout(s *listener.Session) {
	if err := s.Logout(); err != nil {
		slog.Warn("Logout failed", "error", err)
	}
}

