package listener

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap"
	idle "github.com/emersion/go-imap-idle"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/commands"
)

// IMAPConfig holds what is needed to open a mailbox session.
type IMAPConfig struct {
	Server   string
	Port     int
	Security string // ssl, starttls or none
	Username string
	Password string
	Folder   string

	InsecureSkipVerify bool
	// PollInterval is used instead of IDLE when the server lacks it.
	PollInterval time.Duration
}

// Dial connects to the IMAP server, logs in and selects the configured
// folder in read-write mode.
func Dial(cfg IMAPConfig) (*Session, error) {
	c, err := connectAndLogin(cfg)
	if err != nil {
		slog.Error("IMAP login failed", "error", err)
		return nil, err
	}

	folder := cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}

	return NewSession(newIMAPTransport(c, cfg.PollInterval), folder), nil
}

// connectAndLogin establishes a connection to the IMAP server, logs in using
// the configured credentials, and selects the folder.
func connectAndLogin(cfg IMAPConfig) (*client.Client, error) {
	address := fmt.Sprintf("%s:%d", cfg.Server, cfg.Port)

	tlsConfig := &tls.Config{
		ServerName:         cfg.Server,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	var (
		c   *client.Client
		err error
	)
	switch strings.ToLower(cfg.Security) {
	case "", "ssl", "tls":
		c, err = client.DialTLS(address, tlsConfig)
	case "starttls":
		c, err = client.Dial(address)
		if err == nil {
			if err = c.StartTLS(tlsConfig); err != nil {
				_ = c.Logout()
			}
		}
	case "none":
		c, err = client.Dial(address)
	default:
		return nil, fmt.Errorf("unknown IMAP security %q", cfg.Security)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	folder := cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}

	// false = read-write, flags and moves need it
	if _, err := c.Select(folder, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to select %s: %w", folder, err)
	}

	slog.Info("Connected to IMAP server", "address", address, "folder", folder)

	return c, nil
}

// imapTransport implements Transport on top of a go-imap client.
type imapTransport struct {
	c            *client.Client
	idler        *idle.Client
	pollInterval time.Duration

	updates chan client.Update
	wake    chan struct{}
	idling  atomic.Bool
}

func newIMAPTransport(c *client.Client, pollInterval time.Duration) *imapTransport {
	t := &imapTransport{
		c:            c,
		idler:        idle.NewClient(c),
		pollInterval: pollInterval,
		// buffered so the reader goroutine never waits on us for long
		updates: make(chan client.Update, 64),
		wake:    make(chan struct{}, 1),
	}
	c.Updates = t.updates

	go t.pumpUpdates()

	return t
}

// pumpUpdates drains unilateral server updates for the lifetime of the
// connection. The client blocks when nobody reads them.
func (t *imapTransport) pumpUpdates() {
	for {
		select {
		case update := <-t.updates:
			if !t.idling.Load() {
				slog.Debug("Ignoring update received outside IDLE", "type", fmt.Sprintf("%T", update))
				continue
			}

			if u, ok := update.(*client.MailboxUpdate); ok {
				slog.Info("New mail detected", "exists", u.Mailbox.Messages, "recent", u.Mailbox.Recent)
			} else {
				slog.Debug("Server sent update", "type", fmt.Sprintf("%T", update))
			}

			select {
			case t.wake <- struct{}{}:
			default:
			}
		case <-t.c.LoggedOut():
			return
		}
	}
}

func (t *imapTransport) Wake() <-chan struct{} {
	return t.wake
}

func (t *imapTransport) Idle(stop <-chan struct{}) error {
	t.idling.Store(true)
	defer t.idling.Store(false)

	slog.Debug("Connection is now in IDLE mode")

	return t.idler.IdleWithFallback(stop, t.pollInterval)
}

func (t *imapTransport) SearchUnseen() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := t.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return uids, nil
}

func (t *imapTransport) Fetch(uids []uint32) ([]RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// BODY[] without PEEK, so fetched messages become \Seen
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- t.c.UidFetch(seqset, items, messages)
	}()

	var (
		results []RawMessage
		readErr error
	)
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			if readErr == nil {
				readErr = fmt.Errorf("no body returned for message %d", msg.Uid)
			}
			continue
		}

		data, err := io.ReadAll(body)
		if err != nil && readErr == nil {
			readErr = fmt.Errorf("failed to read message %d: %w", msg.Uid, err)
		}
		results = append(results, RawMessage{UID: msg.Uid, Body: data})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}

	sort.Slice(results, func(i, j int) bool { return results[i].UID < results[j].UID })

	return results, nil
}

func (t *imapTransport) AddFlags(uid uint32, flags ...string) error {
	return t.storeFlags(uid, imap.AddFlags, flags)
}

func (t *imapTransport) RemoveFlags(uid uint32, flags ...string) error {
	return t.storeFlags(uid, imap.RemoveFlags, flags)
}

func (t *imapTransport) storeFlags(uid uint32, op imap.FlagsOp, flags []string) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(op, true) // true = silent update
	values := make([]interface{}, len(flags))
	for i, f := range flags {
		values[i] = f
	}

	return t.c.UidStore(seqset, item, values, nil)
}

func (t *imapTransport) Move(uid uint32, folder string) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	ok, err := t.c.Support("MOVE")
	if err != nil {
		return err
	}
	if !ok {
		return t.moveFallback(seqset, folder)
	}

	// Executed directly so the TRYCREATE response code is not lost
	status, err := t.c.Execute(&commands.Uid{Cmd: &commands.Move{SeqSet: seqset, Mailbox: folder}}, nil)
	if err != nil {
		return err
	}
	return t.classify(status, folder)
}

// moveFallback uses COPY, STORE and EXPUNGE for servers without MOVE.
func (t *imapTransport) moveFallback(seqset *imap.SeqSet, folder string) error {
	status, err := t.c.Execute(&commands.Uid{Cmd: &commands.Copy{SeqSet: seqset, Mailbox: folder}}, nil)
	if err != nil {
		return err
	}
	if err := t.classify(status, folder); err != nil {
		return err
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := t.c.UidStore(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return err
	}
	return t.c.Expunge(nil)
}

// classify maps a tagged response for a command targeting folder to an error.
func (t *imapTransport) classify(status *imap.StatusResp, folder string) error {
	err := status.Err()
	if err == nil {
		return nil
	}

	if status.Code == imap.CodeTryCreate {
		return fmt.Errorf("%w: %s", ErrNoSuchMailbox, folder)
	}

	// Not every server sends TRYCREATE
	if exists, listErr := t.folderExists(folder); listErr == nil && !exists {
		return fmt.Errorf("%w: %s", ErrNoSuchMailbox, folder)
	}

	return err
}

func (t *imapTransport) folderExists(folder string) (bool, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- t.c.List("", folder, mailboxes)
	}()

	found := false
	for m := range mailboxes {
		if m.Name == folder {
			found = true
		}
	}

	return found, <-done
}

func (t *imapTransport) CreateFolder(folder string) error {
	return t.c.Create(folder)
}

func (t *imapTransport) AddLabels(uid uint32, labels ...string) error {
	ok, err := t.c.Support("X-GM-EXT-1")
	if err != nil {
		return err
	}
	if !ok {
		return ErrLabelsUnsupported
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	values := make([]interface{}, len(labels))
	for i, l := range labels {
		values[i] = labelArg(l)
	}

	return t.c.UidStore(seqset, imap.StoreItem("+X-GM-LABELS"), values, nil)
}

// labelArg leaves system labels such as \Trash as atoms and quotes the rest.
func labelArg(label string) interface{} {
	if strings.HasPrefix(label, `\`) && !strings.ContainsAny(label, ` "()`) {
		return label
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(label)
	return imap.RawString(`"` + escaped + `"`)
}

func (t *imapTransport) Append(folder string, flags []string, raw []byte) error {
	return t.c.Append(folder, flags, time.Now(), bytes.NewReader(raw))
}

func (t *imapTransport) Logout() error {
	return t.c.Logout()
}
