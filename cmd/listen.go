package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/meko-christian/mail-listener/internal/config"
	"github.com/meko-christian/mail-listener/internal/listener"
	"github.com/meko-christian/mail-listener/internal/web"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Watch the mailbox folder until the timeout and process new mails",
	Long: `Watch the configured folder with IMAP IDLE and process every unseen mail
as it arrives. The timeout is either a number of minutes from now (e.g. 30)
or a time of day (e.g. 13:30, today or tomorrow).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyScrapeFlags(cmd.Flags(), cfg)

		if cmd.Flags().Changed("timeout") {
			cfg.Listener.Timeout, _ = cmd.Flags().GetString("timeout")
		}
		timeout, err := cfg.Timeout()
		if err != nil {
			return err
		}
		deadline, err := timeout.Resolve(time.Now())
		if err != nil {
			return err
		}

		runID := uuid.New().String()
		slog.SetDefault(slog.Default().With("run_id", runID))
		slog.Info("Starting listen mode", "timeout", timeout.String(), "deadline", deadline)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		status := listener.NewStatus()
		statusAddr, _ := cmd.Flags().GetString("status-addr")
		if statusAddr == "" {
			statusAddr = cfg.Web.Addr
		}
		webDone, err := startStatusServer(ctx, statusAddr, cfg, status)
		if err != nil {
			return err
		}

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

		opts := listener.ListenOptions{
			Scrape:        cfg.ScrapeOptions(),
			CheckInterval: cfg.Listener.CheckInterval,
			OnCycle:       status.Observe,
		}

		status.Begin(session.Folder(), deadline)
		err = listener.ListenUntil(ctx, session, x, deadline, opts, h)
		status.End(err)

		stop()
		if webErr := <-webDone; webErr != nil {
			slog.Error("Status server failed", "error", webErr)
		}

		if err != nil {
			return fmt.Errorf("listen failed: %w", err)
		}

		fmt.Printf("Stopped listening on %s (run %s)\n", session.Folder(), runID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
	addScrapeFlags(listenCmd.Flags())
	listenCmd.Flags().String("timeout", "", "Minutes to listen (e.g. 30) or a time of day to stop at (e.g. 13:30)")
	listenCmd.Flags().String("status-addr", "", "Serve the status dashboard on this address (default web.addr)")
}

// startStatusServer runs the dashboard until ctx is done. The returned
// channel yields the server's error once it has stopped.
func startStatusServer(ctx context.Context, addr string, cfg *config.Config, status *listener.Status) (<-chan error, error) {
	done := make(chan error, 1)
	if addr == "" {
		done <- nil
		return done, nil
	}

	srv, err := web.NewServer(addr, cfg, status)
	if err != nil {
		return nil, err
	}

	go func() {
		err := srv.Start(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		done <- err
	}()

	return done, nil
}
