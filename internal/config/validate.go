package config

import (
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/meko-christian/mail-listener/internal/listener"
)

// ConfigValidator collects every problem in a Config instead of stopping at
// the first one.
type ConfigValidator struct {
	errors []string
}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{errors: make([]string, 0)}
}

// ValidateConfig checks everything the listen and scrape commands need.
// SMTP settings are only checked when the processor sends replies.
func (cv *ConfigValidator) ValidateConfig(cfg *Config) []string {
	cv.errors = make([]string, 0)

	cv.validateAccount("IMAP", cfg.IMAP.Account, []string{"ssl", "tls", "starttls", "none"})
	cv.validateListener(cfg.Listener)
	cv.validateProcessor(cfg.Processor)
	if cfg.Processor.Kind == KindReply {
		cv.validateSMTP(cfg.SMTP)
	}

	return cv.errors
}

// ValidateSMTP checks the settings the reply command needs.
func (cv *ConfigValidator) ValidateSMTP(cfg *Config) []string {
	cv.errors = make([]string, 0)
	cv.validateSMTP(cfg.SMTP)
	return cv.errors
}

func (cv *ConfigValidator) addError(message string) {
	cv.errors = append(cv.errors, message)
	slog.Debug("Config validation error", "error", message)
}

func (cv *ConfigValidator) validateAccount(name string, a Account, security []string) {
	if a.Server == "" {
		cv.addError(name + " server is required")
	}

	if a.Port <= 0 || a.Port > 65535 {
		cv.addError(name + " port must be between 1 and 65535")
	}

	if !slices.Contains(security, strings.ToLower(a.Security)) {
		cv.addError(fmt.Sprintf("%s security must be one of: %s", name, strings.Join(security, ", ")))
	}

	if a.Username == "" {
		cv.addError(name + " username is required")
	}

	if a.Password == "" {
		cv.addError(name + " password is required (in config.yaml or the keyring)")
	}
}

func (cv *ConfigValidator) validateSMTP(s SMTP) {
	cv.validateAccount("SMTP", s.Account, []string{"ssl", "tls", "starttls", "none"})

	from := s.From
	if from == "" {
		from = s.Username
	}
	if from != "" {
		if _, err := mail.ParseAddress(from); err != nil {
			cv.addError(fmt.Sprintf("Invalid email format in SMTP sender: %s", from))
		}
	}
}

func (cv *ConfigValidator) validateListener(l Listener) {
	cv.validateDir("Attachment directory", l.AttachmentDir)

	if _, err := listener.ParseTimeout(l.Timeout); err != nil {
		cv.addError(fmt.Sprintf("Invalid listener timeout: %v", err))
	}

	if _, err := listener.ParseCollisionPolicy(l.AttachmentCollision); err != nil {
		cv.addError(err.Error())
	}

	cv.validateInterval("check_interval", l.CheckInterval)
	cv.validateInterval("poll_interval", l.PollInterval)

	if l.Move != "" && l.Delete {
		slog.Warn("Both listener.move and listener.delete are set; messages are moved and not deleted")
	}
}

// MinInterval is the shortest accepted check or poll interval. A bare YAML
// number decodes as nanoseconds, which lands far below it.
const MinInterval = time.Second

func (cv *ConfigValidator) validateInterval(key string, d time.Duration) {
	if d < MinInterval {
		cv.addError(fmt.Sprintf("Listener %s must be at least %s, got %s (use a unit, e.g. \"30s\" or \"1m\")",
			key, MinInterval, d))
	}
}

func (cv *ConfigValidator) validateProcessor(p Processor) {
	switch p.Kind {
	case KindText, KindJSON:
		cv.validateDir("Processor output directory", p.OutputDir)
	case KindSQLite:
		if p.SQLitePath == "" {
			cv.addError("Processor sqlite_path is required for the sqlite processor")
		}
	case KindReply:
		if strings.TrimSpace(p.ReplyBody) == "" {
			cv.addError("Processor reply_body is required for the reply processor")
		}
	case KindNone:
	default:
		cv.addError(fmt.Sprintf("Processor kind must be one of: %s, %s, %s, %s, %s",
			KindText, KindJSON, KindSQLite, KindReply, KindNone))
	}
}

func (cv *ConfigValidator) validateDir(name, dir string) {
	if dir == "" {
		cv.addError(name + " is required")
		return
	}

	info, err := os.Stat(dir)
	switch {
	case err != nil:
		cv.addError(fmt.Sprintf("%s %s is not accessible: %v", name, dir, err))
	case !info.IsDir():
		cv.addError(fmt.Sprintf("%s %s is not a directory", name, dir))
	}
}
