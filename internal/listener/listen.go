package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultCheckInterval is how long the loop waits in IDLE before it drains
// the folder without having been notified.
const DefaultCheckInterval = 30 * time.Second

// Handler processes the records of one scrape cycle. It runs on the listen
// goroutine and may use the session.
type Handler interface {
	Process(ctx context.Context, s *Session, results ResultSet) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, s *Session, results ResultSet) error

// Process calls f.
func (f HandlerFunc) Process(ctx context.Context, s *Session, results ResultSet) error {
	return f(ctx, s, results)
}

// WakeReason tells why the loop left IDLE.
type WakeReason string

const (
	WakeNotified WakeReason = "notified"
	WakeInterval WakeReason = "interval"
)

// Cycle describes one completed drain.
type Cycle struct {
	Number   int
	Reason   WakeReason
	Messages int
	At       time.Time
	Deadline time.Time
}

// ListenOptions configures Listen.
type ListenOptions struct {
	Scrape ScrapeOptions
	// CheckInterval bounds a single wait in IDLE. Zero means DefaultCheckInterval.
	CheckInterval time.Duration
	// OnCycle, when set, is called after the handler of every cycle.
	OnCycle func(Cycle)
}

// Listen resolves timeout against the current time and runs ListenUntil.
// An invalid timeout fails before any mailbox command is issued.
func Listen(ctx context.Context, s *Session, x *Extractor, timeout Timeout, opts ListenOptions, h Handler) error {
	deadline, err := timeout.Resolve(time.Now())
	if err != nil {
		return err
	}
	return ListenUntil(ctx, s, x, deadline, opts, h)
}

// ListenUntil waits for mail in IDLE and runs a scrape cycle followed by h
// every time the server reports activity or the check interval elapses.
// It returns nil once deadline has passed or ctx is cancelled, and the
// first scrape or handler error otherwise.
func ListenUntil(ctx context.Context, s *Session, x *Extractor, deadline time.Time, opts ListenOptions, h Handler) error {
	t, err := s.conn()
	if err != nil {
		return err
	}

	interval := opts.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	slog.Info("Listening for new mail", "folder", s.Folder(), "deadline", deadline, "check_interval", interval)

	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			slog.Info("Listen cancelled")
			return nil
		}
		if !time.Now().Before(deadline) {
			slog.Info("Listen deadline reached", "deadline", deadline)
			return nil
		}

		reason, err := waitForActivity(ctx, t, time.Until(deadline), interval)
		if err != nil {
			return fmt.Errorf("%w: idle failed: %w", ErrMailboxOperation, err)
		}
		if reason == "" {
			slog.Info("Listen cancelled")
			return nil
		}

		slog.Debug("Draining folder", "reason", reason, "cycle", cycle)

		results, err := Scrape(s, x, opts.Scrape)
		if err != nil {
			return err
		}

		if err := h.Process(ctx, s, results); err != nil {
			return fmt.Errorf("failed to process scraped messages: %w", err)
		}

		if opts.OnCycle != nil {
			opts.OnCycle(Cycle{
				Number:   cycle,
				Reason:   reason,
				Messages: len(results),
				At:       time.Now(),
				Deadline: deadline,
			})
		}
	}
}

// waitForActivity idles until the server signals activity, the wait bound
// elapses or ctx is done. The IDLE command is always terminated before it
// returns. An empty reason means ctx was cancelled.
func waitForActivity(ctx context.Context, t Transport, remaining, interval time.Duration) (WakeReason, error) {
	// Signals from before this wait were already covered by the last scrape
	select {
	case <-t.Wake():
	default:
	}

	wait := interval
	if remaining < wait {
		wait = remaining
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- t.Idle(stop)
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var reason WakeReason
	select {
	case <-t.Wake():
		reason = WakeNotified
	case <-timer.C:
		reason = WakeInterval
	case <-ctx.Done():
	case err := <-done:
		if err == nil {
			err = errors.New("idle ended without being stopped")
		}
		return "", err
	}

	close(stop)
	if err := <-done; err != nil {
		return "", err
	}

	return reason, nil
}
