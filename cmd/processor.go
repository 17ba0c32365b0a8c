package cmd

import (
	"fmt"

	"github.com/meko-christian/mail-listener/internal/config"
	"github.com/meko-christian/mail-listener/internal/listener"
	"github.com/meko-christian/mail-listener/internal/processor"
	"github.com/meko-christian/mail-listener/internal/responder"
)

// buildProcessor returns the handler for processor.kind and a function that
// releases whatever it holds open.
func buildProcessor(cfg *config.Config) (listener.Handler, func(), error) {
	noop := func() {}

	switch cfg.Processor.Kind {
	case config.KindText:
		return processor.TextWriter{Dir: cfg.Processor.OutputDir}, noop, nil

	case config.KindJSON:
		return processor.JSONWriter{Dir: cfg.Processor.OutputDir}, noop, nil

	case config.KindSQLite:
		sink, err := processor.NewSQLiteSink(cfg.Processor.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil

	case config.KindReply:
		r := responder.New(cfg.SMTPConfig())
		if err := r.Login(); err != nil {
			return nil, nil, err
		}
		h := &processor.AutoReply{
			Responder:  r,
			Subject:    cfg.Processor.ReplySubject,
			Body:       cfg.Processor.ReplyBody,
			SentFolder: cfg.Processor.SaveToSent,
		}
		return h, func() { _ = r.Logout() }, nil

	case config.KindNone:
		return processor.Discard, noop, nil
	}

	return nil, nil, fmt.Errorf("unknown processor kind %q", cfg.Processor.Kind)
}
