package responder

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/textproto"
	"strings"
	"time"

	gomail "gopkg.in/gomail.v2"
)

// ErrTransportNotConnected is returned when a message is sent before Login.
var ErrTransportNotConnected = errors.New("smtp transport is not connected")

// Config holds the SMTP account replies are sent from.
type Config struct {
	Server   string
	Port     int
	Security string // ssl, starttls or none
	Username string
	Password string
	// From defaults to Username.
	From string

	InsecureSkipVerify bool
}

// Responder sends replies over one authenticated SMTP session.
type Responder struct {
	from   string
	dial   func() (gomail.SendCloser, error)
	sender gomail.SendCloser
	now    func() time.Time
}

// New returns a Responder for cfg. No connection is made until Login.
func New(cfg Config) *Responder {
	dialer := gomail.NewDialer(cfg.Server, cfg.Port, cfg.Username, cfg.Password)

	// Enable secure transport if configured
	switch strings.ToLower(cfg.Security) {
	case "ssl", "tls":
		dialer.SSL = true
	}
	dialer.TLSConfig = &tls.Config{
		ServerName:         cfg.Server,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	return &Responder{
		from: from,
		dial: dialer.Dial,
		now:  time.Now,
	}
}

// From returns the address replies are sent from.
func (r *Responder) From() string {
	return r.from
}

// Connected reports whether Login succeeded and Logout has not been called.
func (r *Responder) Connected() bool {
	return r.sender != nil
}

// Login dials the SMTP server and authenticates.
func (r *Responder) Login() error {
	if r.sender != nil {
		return nil
	}

	s, err := r.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	r.sender = s

	slog.Info("Connected to SMTP server", "from", r.from)
	return nil
}

// Logout closes the SMTP session. It is a no-op when not logged in.
func (r *Responder) Logout() error {
	if r.sender == nil {
		return nil
	}

	err := r.sender.Close()
	r.sender = nil

	slog.Info("Logged out from SMTP server")
	return err
}

// SendPlain sends a single-part text/plain message.
func (r *Responder) SendPlain(recipient, subject, body string) error {
	if r.sender == nil {
		return ErrTransportNotConnected
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", r.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetDateHeader("Date", r.now())
	msg.SetBody("text/plain", body)

	err := r.send(func(s gomail.SendCloser) error {
		return gomail.Send(s, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	slog.Info("Sent reply", "to", recipient, "subject", subject)
	return nil
}

// SendRich composes reply as a multipart message, sends it and returns the
// raw bytes that were sent.
func (r *Responder) SendRich(reply Reply) ([]byte, error) {
	if r.sender == nil {
		return nil, ErrTransportNotConnected
	}

	raw, err := Compose(r.from, reply, r.now())
	if err != nil {
		return nil, err
	}

	err = r.send(func(s gomail.SendCloser) error {
		return s.Send(r.from, []string{reply.To}, bytes.NewReader(raw))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send mail: %w", err)
	}

	slog.Info("Sent reply", "to", reply.To, "subject", reply.Subject,
		"images", len(reply.Images), "attachments", len(reply.Attachments))
	return raw, nil
}

// send runs fn on the current session. Servers drop sessions that sat idle
// between replies, so a failure that is not a definite rejection closes the
// session, dials again and retries once.
func (r *Responder) send(fn func(gomail.SendCloser) error) error {
	err := fn(r.sender)
	if err == nil || !reconnectable(err) {
		return err
	}

	slog.Warn("SMTP send failed, reconnecting", "error", err)

	_ = r.sender.Close()
	r.sender = nil

	s, dialErr := r.dial()
	if dialErr != nil {
		return fmt.Errorf("%w (reconnect failed: %w)", err, dialErr)
	}
	r.sender = s

	return fn(r.sender)
}

// reconnectable reports whether err may be cured by a fresh session: anything
// but an SMTP reply, or a 421 "closing transmission channel".
func reconnectable(err error) bool {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		return reply.Code == 421
	}
	return true
}
