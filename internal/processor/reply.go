package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meko-christian/mail-listener/internal/listener"
	"github.com/meko-christian/mail-listener/internal/responder"
)

// Replier sends a composed reply and returns the raw message.
type Replier interface {
	SendRich(reply responder.Reply) ([]byte, error)
}

// AutoReply answers every scraped message once. Keys it has answered are
// remembered for the lifetime of the value, so messages left unread and
// scraped again on a later cycle get no second reply.
//
// Subject and Body may contain {subject} and {from}, which are replaced with
// the original message's values. An empty Subject means "Re: {subject}".
type AutoReply struct {
	Responder Replier
	Subject   string
	Body      string
	// SentFolder, when set, receives a copy of every reply.
	SentFolder string

	answered map[string]struct{}
}

// Process implements listener.Handler.
func (a *AutoReply) Process(_ context.Context, s *listener.Session, results listener.ResultSet) error {
	if a.answered == nil {
		a.answered = make(map[string]struct{})
	}

	for _, key := range sortedKeys(results) {
		rec := results[key]
		if rec.From == listener.UnknownSender {
			slog.Info("Skipping reply to unknown sender", "key", key)
			continue
		}
		if _, ok := a.answered[key]; ok {
			slog.Debug("Already replied", "key", key)
			continue
		}

		fill := strings.NewReplacer("{subject}", rec.Subject, "{from}", rec.From)

		subject := a.Subject
		if subject == "" {
			subject = "Re: {subject}"
		}

		raw, err := a.Responder.SendRich(responder.Reply{
			To:      rec.From,
			Subject: fill.Replace(subject),
			Text:    fill.Replace(a.Body),
		})
		if err != nil {
			return fmt.Errorf("failed to reply to %s: %w", key, err)
		}
		a.answered[key] = struct{}{}

		if a.SentFolder == "" {
			continue
		}
		if err := s.AppendSent(a.SentFolder, raw); err != nil {
			return err
		}
	}

	return nil
}
