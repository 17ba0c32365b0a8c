package listener

import (
	"bytes"
	"fmt"
	"log/slog"
)

// ScrapeOptions controls what happens to each message after extraction.
type ScrapeOptions struct {
	// Move is the destination folder. It takes precedence over Delete.
	Move string
	// MarkUnread removes the \Seen flag that fetching sets.
	MarkUnread bool
	// Delete soft deletes the message when Move is empty.
	Delete bool
}

// Scrape extracts every unseen message in the session's folder.
//
// The first extraction or mailbox failure aborts the cycle; messages handled
// before it keep whatever flags, moves and attachment files were applied.
func Scrape(s *Session, x *Extractor, opts ScrapeOptions) (ResultSet, error) {
	uids, err := s.Unseen()
	if err != nil {
		return nil, err
	}

	results := make(ResultSet, len(uids))
	if len(uids) == 0 {
		slog.Debug("No unseen messages", "folder", s.Folder())
		return results, nil
	}

	slog.Info("Found unseen messages", "folder", s.Folder(), "count", len(uids))

	messages, err := s.FetchRaw(uids)
	if err != nil {
		return nil, err
	}

	for _, msg := range messages {
		rec, err := x.Extract(bytes.NewReader(msg.Body))
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", msg.UID, err)
		}
		rec.UID = msg.UID

		slog.Info("Processing message", "uid", msg.UID, "from", rec.From, "subject", rec.Subject)

		results[rec.Key()] = rec

		if err := postProcess(s, msg.UID, opts); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func postProcess(s *Session, uid uint32, opts ScrapeOptions) error {
	if opts.MarkUnread {
		if err := s.MarkUnread(uid); err != nil {
			return err
		}
	}

	switch {
	case opts.Move != "":
		return s.MoveTo(uid, opts.Move)
	case opts.Delete:
		return s.SoftDelete(uid)
	}

	return nil
}
