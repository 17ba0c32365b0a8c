package responder

import (
	"bytes"
	"errors"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"
)

type sentMessage struct {
	from string
	to   []string
	raw  string
}

type fakeSender struct {
	sent    []sentMessage
	closed  bool
	sendErr error
}

func (f *fakeSender) Send(from string, to []string, msg io.WriterTo) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{from: from, to: to, raw: buf.String()})
	return nil
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestResponder(s *fakeSender) *Responder {
	return &Responder{
		from: "listener@example.com",
		dial: func() (gomail.SendCloser, error) { return s, nil },
		now:  func() time.Time { return fixedNow },
	}
}

func TestSendBeforeLogin(t *testing.T) {
	t.Parallel()

	r := newTestResponder(&fakeSender{})

	assert.ErrorIs(t, r.SendPlain("bob@example.com", "hi", "body"), ErrTransportNotConnected)
	_, err := r.SendRich(Reply{To: "bob@example.com", Text: "body"})
	assert.ErrorIs(t, err, ErrTransportNotConnected)
}

func TestLoginLogout(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	r := newTestResponder(s)

	require.NoError(t, r.Login())
	assert.True(t, r.Connected())

	require.NoError(t, r.Logout())
	assert.True(t, s.closed)
	assert.False(t, r.Connected())
	assert.NoError(t, r.Logout())

	assert.ErrorIs(t, r.SendPlain("bob@example.com", "hi", "body"), ErrTransportNotConnected)
}

func TestLoginFailure(t *testing.T) {
	t.Parallel()

	r := &Responder{dial: func() (gomail.SendCloser, error) { return nil, errors.New("535 bad credentials") }}

	err := r.Login()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535 bad credentials")
	assert.False(t, r.Connected())
}

func TestNewDefaultsFromToUsername(t *testing.T) {
	t.Parallel()

	r := New(Config{Server: "smtp.example.com", Port: 465, Security: "ssl", Username: "me@example.com"})
	assert.Equal(t, "me@example.com", r.From())

	r = New(Config{Server: "smtp.example.com", Port: 587, Username: "me", From: "Me <me@example.com>"})
	assert.Equal(t, "Me <me@example.com>", r.From())
}

func TestSendPlain(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	r := newTestResponder(s)
	require.NoError(t, r.Login())

	require.NoError(t, r.SendPlain("bob@example.com", "Thanks", "Got it."))

	require.Len(t, s.sent, 1)
	assert.Equal(t, "listener@example.com", s.sent[0].from)
	assert.Equal(t, []string{"bob@example.com"}, s.sent[0].to)

	entity, err := message.Read(strings.NewReader(s.sent[0].raw))
	require.NoError(t, err)

	h := mail.Header{Header: entity.Header}
	subject, err := h.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Thanks", subject)

	mediaType, _, err := entity.Header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mediaType)

	body, err := io.ReadAll(entity.Body)
	require.NoError(t, err)
	assert.Equal(t, "Got it.", string(body))
}

func TestSendRichReturnsSentBytes(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	r := newTestResponder(s)
	require.NoError(t, r.Login())

	raw, err := r.SendRich(Reply{To: "bob@example.com", Subject: "Re: hi", Text: "hello"})
	require.NoError(t, err)

	require.Len(t, s.sent, 1)
	assert.Equal(t, string(raw), s.sent[0].raw)
	assert.Equal(t, []string{"bob@example.com"}, s.sent[0].to)
}

func TestSendRichTransportError(t *testing.T) {
	t.Parallel()

	s := &fakeSender{sendErr: errors.New("554 rejected")}
	r := newTestResponder(s)
	require.NoError(t, r.Login())

	_, err := r.SendRich(Reply{To: "bob@example.com", Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "554 rejected")
}

func TestSendRichReconnectsDroppedSession(t *testing.T) {
	t.Parallel()

	stale := &fakeSender{sendErr: io.EOF}
	fresh := &fakeSender{}
	senders := []*fakeSender{stale, fresh}
	dials := 0

	r := newTestResponder(nil)
	r.dial = func() (gomail.SendCloser, error) {
		s := senders[dials]
		dials++
		return s, nil
	}
	require.NoError(t, r.Login())

	_, err := r.SendRich(Reply{To: "bob@example.com", Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, 2, dials)
	assert.True(t, stale.closed)
	require.Len(t, fresh.sent, 1)
	assert.Equal(t, []string{"bob@example.com"}, fresh.sent[0].to)
	assert.True(t, r.Connected())
}

func TestSendPlainReconnectsAfter421(t *testing.T) {
	t.Parallel()

	stale := &fakeSender{sendErr: &textproto.Error{Code: 421, Msg: "timeout, closing connection"}}
	fresh := &fakeSender{}
	senders := []*fakeSender{stale, fresh}
	dials := 0

	r := newTestResponder(nil)
	r.dial = func() (gomail.SendCloser, error) {
		s := senders[dials]
		dials++
		return s, nil
	}
	require.NoError(t, r.Login())

	require.NoError(t, r.SendPlain("bob@example.com", "Thanks", "Got it."))
	assert.Len(t, fresh.sent, 1)
}

func TestSendRejectionIsNotRetried(t *testing.T) {
	t.Parallel()

	s := &fakeSender{sendErr: &textproto.Error{Code: 550, Msg: "mailbox unavailable"}}
	dials := 0

	r := newTestResponder(nil)
	r.dial = func() (gomail.SendCloser, error) {
		dials++
		return s, nil
	}
	require.NoError(t, r.Login())

	_, err := r.SendRich(Reply{To: "bob@example.com", Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox unavailable")
	assert.Equal(t, 1, dials)
	assert.False(t, s.closed)
}

func TestSendReconnectFailure(t *testing.T) {
	t.Parallel()

	stale := &fakeSender{sendErr: io.EOF}
	dials := 0

	r := newTestResponder(nil)
	r.dial = func() (gomail.SendCloser, error) {
		dials++
		if dials > 1 {
			return nil, errors.New("connection refused")
		}
		return stale, nil
	}
	require.NoError(t, r.Login())

	_, err := r.SendRich(Reply{To: "bob@example.com", Text: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, r.Connected())
}

// part is a flattened view of one MIME entity for structure assertions.
type part struct {
	path        string
	mediaType   string
	disposition string
	filename    string
	contentID   string
	body        string
}

func flatten(t *testing.T, raw []byte) []part {
	t.Helper()

	entity, err := message.Read(bytes.NewReader(raw))
	require.NoError(t, err)

	var parts []part
	err = entity.Walk(func(path []int, e *message.Entity, err error) error {
		require.NoError(t, err)

		mediaType, _, _ := e.Header.ContentType()
		disp, params, _ := e.Header.ContentDisposition()

		p := part{
			path:        fmtPath(path),
			mediaType:   mediaType,
			disposition: disp,
			filename:    params["filename"],
			contentID:   e.Header.Get("Content-ID"),
		}
		if !strings.HasPrefix(mediaType, "multipart/") {
			body, err := io.ReadAll(e.Body)
			require.NoError(t, err)
			p.body = string(body)
		}
		parts = append(parts, p)
		return nil
	})
	require.NoError(t, err)
	return parts
}

func fmtPath(path []int) string {
	var sb strings.Builder
	for i, n := range path {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestComposeFullTree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logo := writeFile(t, dir, "logo.png", "\x89PNG\r\n\x1a\nfake")
	photo := writeFile(t, dir, "photo.jpg", "jpeg bytes")
	report := writeFile(t, dir, "report.txt", "the report")

	raw, err := Compose("listener@example.com", Reply{
		To:          "Bob <bob@example.com>",
		Subject:     "Your request",
		Text:        "plain body",
		HTML:        `<p>html body <img src="cid:image0"></p>`,
		Images:      []string{logo, photo},
		Attachments: []string{report},
	}, fixedNow)
	require.NoError(t, err)

	parts := flatten(t, raw)

	var shape []string
	for _, p := range parts {
		shape = append(shape, p.path+" "+p.mediaType)
	}
	assert.Equal(t, []string{
		" multipart/mixed",
		"0 multipart/alternative",
		"0.0 text/plain",
		"0.1 multipart/related",
		"0.1.0 text/html",
		"0.1.1 image/png",
		"0.1.2 image/jpeg",
		"1 text/plain",
	}, shape)

	assert.Equal(t, "plain body", parts[2].body)
	assert.Equal(t, `<p>html body <img src="cid:image0"></p>`, parts[4].body)

	assert.Equal(t, "<image0>", parts[5].contentID)
	assert.Equal(t, "inline", parts[5].disposition)
	assert.Equal(t, "\x89PNG\r\n\x1a\nfake", parts[5].body)
	assert.Equal(t, "<image1>", parts[6].contentID)

	assert.Equal(t, "attachment", parts[7].disposition)
	assert.Equal(t, "report.txt", parts[7].filename)
	assert.Equal(t, "the report", parts[7].body)

	entity, err := message.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	h := mail.Header{Header: entity.Header}
	to, err := h.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "bob@example.com", to[0].Address)
	date, err := h.Date()
	require.NoError(t, err)
	assert.True(t, fixedNow.Equal(date))
	assert.True(t, h.Has("Message-Id"))
}

func TestComposeTextOnly(t *testing.T) {
	t.Parallel()

	raw, err := Compose("listener@example.com", Reply{To: "bob@example.com", Subject: "s", Text: "only text"}, fixedNow)
	require.NoError(t, err)

	parts := flatten(t, raw)
	require.Len(t, parts, 3)
	assert.Equal(t, "multipart/alternative", parts[1].mediaType)
	assert.Equal(t, "text/plain", parts[2].mediaType)
	assert.Equal(t, "only text", parts[2].body)
}

func TestComposeImagesNeedHTML(t *testing.T) {
	t.Parallel()

	logo := writeFile(t, t.TempDir(), "logo.png", "png")

	raw, err := Compose("listener@example.com", Reply{To: "bob@example.com", Text: "text", Images: []string{logo}}, fixedNow)
	require.NoError(t, err)

	for _, p := range flatten(t, raw) {
		assert.NotEqual(t, "multipart/related", p.mediaType)
		assert.Empty(t, p.contentID)
	}
}

func TestComposeMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Compose("listener@example.com", Reply{
		To:          "bob@example.com",
		Text:        "text",
		Attachments: []string{filepath.Join(t.TempDir(), "gone.pdf")},
	}, fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.pdf")
}

func TestComposeInvalidRecipient(t *testing.T) {
	t.Parallel()

	_, err := Compose("listener@example.com", Reply{To: "not an address", Text: "text"}, fixedNow)
	require.Error(t, err)
}
