package listener

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap"
)

// DefaultDeleteLabel is the Gmail label that moves a message to the trash.
const DefaultDeleteLabel = `\Trash`

// Session is an authenticated mailbox connection with one folder selected.
// A Session must not be shared between goroutines.
type Session struct {
	transport Transport
	folder    string

	// DeleteLabel is applied by SoftDelete.
	DeleteLabel string
}

// NewSession wraps an already logged-in transport whose folder is selected.
func NewSession(t Transport, folder string) *Session {
	return &Session{
		transport:   t,
		folder:      folder,
		DeleteLabel: DefaultDeleteLabel,
	}
}

// Folder returns the selected folder, or "" when disconnected.
func (s *Session) Folder() string {
	if s == nil || s.transport == nil {
		return ""
	}
	return s.folder
}

// Connected reports whether the session can issue mailbox operations.
func (s *Session) Connected() bool {
	return s != nil && s.transport != nil
}

func (s *Session) conn() (Transport, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}
	return s.transport, nil
}

// Logout ends the session. Logging out a disconnected session is a no-op.
func (s *Session) Logout() error {
	if !s.Connected() {
		return nil
	}

	err := s.transport.Logout()
	s.transport = nil
	s.folder = ""

	slog.Info("Logged out from IMAP server")

	return err
}

// Unseen returns the UIDs of every unseen message in the selected folder.
func (s *Session) Unseen() ([]uint32, error) {
	t, err := s.conn()
	if err != nil {
		return nil, err
	}

	uids, err := t.SearchUnseen()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMailboxOperation, err)
	}
	return uids, nil
}

// FetchRaw returns the raw content of the given messages, ordered by UID.
func (s *Session) FetchRaw(uids []uint32) ([]RawMessage, error) {
	t, err := s.conn()
	if err != nil {
		return nil, err
	}

	msgs, err := t.Fetch(uids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMailboxOperation, err)
	}
	return msgs, nil
}

// MarkUnread removes the \Seen flag.
func (s *Session) MarkUnread(uid uint32) error {
	t, err := s.conn()
	if err != nil {
		return err
	}

	slog.Debug("Marking message as unread", "uid", uid)

	if err := t.RemoveFlags(uid, imap.SeenFlag); err != nil {
		return fmt.Errorf("%w: failed to mark message %d as unread: %w", ErrMailboxOperation, uid, err)
	}
	return nil
}

// MarkRead adds the \Seen flag.
func (s *Session) MarkRead(uid uint32) error {
	t, err := s.conn()
	if err != nil {
		return err
	}

	slog.Debug("Marking message as seen", "uid", uid)

	if err := t.AddFlags(uid, imap.SeenFlag); err != nil {
		return fmt.Errorf("%w: failed to mark message %d as \\Seen: %w", ErrMailboxOperation, uid, err)
	}
	return nil
}

// MoveTo moves a message to folder. When the folder does not exist it is
// created and the move is retried once.
func (s *Session) MoveTo(uid uint32, folder string) error {
	t, err := s.conn()
	if err != nil {
		return err
	}

	err = t.Move(uid, folder)
	if errors.Is(err, ErrNoSuchMailbox) {
		slog.Info("Destination folder missing, creating it", "folder", folder)

		if err := t.CreateFolder(folder); err != nil {
			return fmt.Errorf("%w: failed to create folder %q: %w", ErrMailboxOperation, folder, err)
		}
		err = t.Move(uid, folder)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to move message %d to %q: %w", ErrMailboxOperation, uid, folder, err)
	}

	slog.Debug("Moved message", "uid", uid, "folder", folder)
	return nil
}

// SoftDelete applies DeleteLabel to the message instead of expunging it.
// What the label does is up to the provider; Gmail moves the message to
// its trash.
func (s *Session) SoftDelete(uid uint32) error {
	t, err := s.conn()
	if err != nil {
		return err
	}

	label := s.DeleteLabel
	if label == "" {
		label = DefaultDeleteLabel
	}

	if err := t.AddLabels(uid, label); err != nil {
		return fmt.Errorf("%w: failed to label message %d as %s: %w", ErrMailboxOperation, uid, label, err)
	}

	slog.Debug("Soft deleted message", "uid", uid, "label", label)
	return nil
}

// AppendSent stores a sent message in folder with the \Seen flag.
func (s *Session) AppendSent(folder string, raw []byte) error {
	t, err := s.conn()
	if err != nil {
		return err
	}

	if err := t.Append(folder, []string{imap.SeenFlag}, raw); err != nil {
		return fmt.Errorf("%w: failed to append to %s folder: %w", ErrMailboxOperation, folder, err)
	}
	return nil
}
