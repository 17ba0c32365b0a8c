package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/meko-christian/mail-listener/internal/credential"
	"github.com/meko-christian/mail-listener/internal/listener"
	"github.com/meko-christian/mail-listener/internal/responder"
)

// Account is a mail server login.
type Account struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Security string `mapstructure:"security"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

type IMAP struct {
	Account `mapstructure:",squash"`
	Folder  string `mapstructure:"folder"`
}

type SMTP struct {
	Account `mapstructure:",squash"`
	From    string `mapstructure:"from"`
}

type Listener struct {
	AttachmentDir       string        `mapstructure:"attachment_dir"`
	Timeout             any           `mapstructure:"timeout"`
	Move                string        `mapstructure:"move"`
	MarkUnread          bool          `mapstructure:"mark_unread"`
	Delete              bool          `mapstructure:"delete"`
	DeleteLabel         string        `mapstructure:"delete_label"`
	AttachmentCollision string        `mapstructure:"attachment_collision"`
	CheckInterval       time.Duration `mapstructure:"check_interval"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
}

type Processor struct {
	Kind         string `mapstructure:"kind"`
	OutputDir    string `mapstructure:"output_dir"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	ReplySubject string `mapstructure:"reply_subject"`
	ReplyBody    string `mapstructure:"reply_body"`
	SaveToSent   string `mapstructure:"save_to_sent"`
}

type Web struct {
	Addr         string `mapstructure:"addr"`
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// Config is the typed form of config.yaml.
type Config struct {
	IMAP      IMAP      `mapstructure:"imap"`
	SMTP      SMTP      `mapstructure:"smtp"`
	Listener  Listener  `mapstructure:"listener"`
	Processor Processor `mapstructure:"processor"`
	Web       Web       `mapstructure:"web"`
}

// Processor kinds.
const (
	KindText   = "text"
	KindJSON   = "json"
	KindSQLite = "sqlite"
	KindReply  = "reply"
	KindNone   = "none"
)

// SetDefaults registers the default value of every optional key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.security", "ssl")
	v.SetDefault("imap.folder", "INBOX")

	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.security", "ssl")

	v.SetDefault("listener.attachment_dir", ".")
	v.SetDefault("listener.timeout", 30)
	v.SetDefault("listener.delete_label", listener.DefaultDeleteLabel)
	v.SetDefault("listener.attachment_collision", string(listener.CollisionOverwrite))
	v.SetDefault("listener.check_interval", listener.DefaultCheckInterval)
	v.SetDefault("listener.poll_interval", time.Minute)

	v.SetDefault("processor.kind", KindText)
	v.SetDefault("processor.output_dir", ".")
	v.SetDefault("processor.sqlite_path", "mail-listener.db")

	v.SetDefault("web.username", "admin")
}

// Load decodes the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// SecretGetter looks up a stored password.
type SecretGetter interface {
	Get(key string) (string, error)
}

// ResolvePasswords fills empty passwords from store. Missing entries are
// left empty for validation to report.
func (c *Config) ResolvePasswords(store SecretGetter) error {
	resolve := func(a *Account, key string) error {
		if a.Password != "" || a.Username == "" {
			return nil
		}

		pw, err := store.Get(key)
		if errors.Is(err, credential.ErrNotFound) {
			slog.Debug("No password in keyring", "key", key)
			return nil
		}
		if err != nil {
			return err
		}

		a.Password = pw
		return nil
	}

	if err := resolve(&c.IMAP.Account, credential.IMAPKey(c.IMAP.Username)); err != nil {
		return err
	}
	return resolve(&c.SMTP.Account, credential.SMTPKey(c.SMTP.Username))
}

// IMAPConfig returns the session settings for listener.Dial.
func (c *Config) IMAPConfig() listener.IMAPConfig {
	return listener.IMAPConfig{
		Server:             c.IMAP.Server,
		Port:               c.IMAP.Port,
		Security:           c.IMAP.Security,
		Username:           c.IMAP.Username,
		Password:           c.IMAP.Password,
		Folder:             c.IMAP.Folder,
		InsecureSkipVerify: c.IMAP.InsecureSkipVerify,
		PollInterval:       c.Listener.PollInterval,
	}
}

// SMTPConfig returns the responder settings.
func (c *Config) SMTPConfig() responder.Config {
	return responder.Config{
		Server:             c.SMTP.Server,
		Port:               c.SMTP.Port,
		Security:           c.SMTP.Security,
		Username:           c.SMTP.Username,
		Password:           c.SMTP.Password,
		From:               c.SMTP.From,
		InsecureSkipVerify: c.SMTP.InsecureSkipVerify,
	}
}

// Extractor builds the message extractor for the listener settings.
func (c *Config) Extractor() (*listener.Extractor, error) {
	policy, err := listener.ParseCollisionPolicy(c.Listener.AttachmentCollision)
	if err != nil {
		return nil, err
	}
	return &listener.Extractor{Dir: c.Listener.AttachmentDir, Collision: policy}, nil
}

// Timeout parses listener.timeout.
func (c *Config) Timeout() (listener.Timeout, error) {
	return listener.ParseTimeout(c.Listener.Timeout)
}

// ScrapeOptions returns the post-processing settings.
func (c *Config) ScrapeOptions() listener.ScrapeOptions {
	return listener.ScrapeOptions{
		Move:       c.Listener.Move,
		MarkUnread: c.Listener.MarkUnread,
		Delete:     c.Listener.Delete,
	}
}

// Redacted returns a copy without passwords or password hashes.
func (c *Config) Redacted() Config {
	r := *c
	if r.IMAP.Password != "" {
		r.IMAP.Password = "********"
	}
	if r.SMTP.Password != "" {
		r.SMTP.Password = "********"
	}
	if r.Web.PasswordHash != "" {
		r.Web.PasswordHash = "********"
	}
	return r
}
