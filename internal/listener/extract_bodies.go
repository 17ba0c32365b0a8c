package listener

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// HTMLToText renders an HTML body as readable plain text.
type HTMLToText func(html string) (string, error)

// Extractor turns fetched raw messages into Records, saving attachments
// into Dir as it goes.
type Extractor struct {
	Dir       string
	Collision CollisionPolicy
	// HTMLToText defaults to a markdown rendering of the HTML.
	HTMLToText HTMLToText
}

// Extract parses one raw RFC 822 message.
//
// Attachments are written as soon as they are reached; a failure further
// down the message leaves the files written so far in place.
func (x *Extractor) Extract(raw io.Reader) (Record, error) {
	entity, err := message.Read(raw)
	if err != nil && !isRecoverable(err) {
		return Record{}, fmt.Errorf("%w: failed to parse MIME message: %v", ErrExtraction, err)
	}

	header := mail.Header{Header: entity.Header}
	rec := Record{
		Subject: subjectOf(header),
		From:    senderOf(header),
	}

	// Get content type of the top-level entity (e.g. multipart/mixed)
	mediaType, _, _ := entity.Header.ContentType()

	if !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			return Record{}, fmt.Errorf("%w: failed to read body: %v", ErrExtraction, err)
		}
		rec.PlainText = string(body)
		return rec, nil
	}

	// Walk every leaf part; container parts only hold other parts
	err = entity.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil && !isRecoverable(err) {
			return err
		}

		partMediaType, _, _ := part.Header.ContentType()
		if strings.HasPrefix(partMediaType, "multipart/") {
			return nil
		}
		if partMediaType == "" {
			partMediaType = "text/plain"
		}

		slog.Debug("Extracting part", "path", path, "content_type", partMediaType)

		return x.extractPart(&rec, part, partMediaType)
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	return rec, nil
}

func (x *Extractor) extractPart(rec *Record, part *message.Entity, mediaType string) error {
	attachment := mail.AttachmentHeader{Header: part.Header}
	if filename, _ := attachment.Filename(); filename != "" {
		path, err := saveAttachment(x.Dir, filename, part.Body, x.Collision)
		if err != nil {
			return err
		}
		rec.Attachments = append(rec.Attachments, path)
		return nil
	}

	switch mediaType {
	case "text/html":
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return fmt.Errorf("failed to read html part: %w", err)
		}
		text, err := x.htmlToText()(string(body))
		if err != nil {
			return fmt.Errorf("failed to render html part: %w", err)
		}
		rec.HTML = string(body)
		rec.PlainHTML = text
	case "text/plain":
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return fmt.Errorf("failed to read text part: %w", err)
		}
		rec.PlainText = string(body)
	}

	return nil
}

func (x *Extractor) htmlToText() HTMLToText {
	if x.HTMLToText != nil {
		return x.HTMLToText
	}
	return func(html string) (string, error) {
		return htmltomarkdown.ConvertString(html)
	}
}

// isRecoverable reports whether go-message still returned a readable entity.
func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func subjectOf(h mail.Header) string {
	if !h.Has("Subject") {
		return NoSubject
	}
	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	return strings.TrimSpace(subject)
}

func senderOf(h mail.Header) string {
	if addrs, err := h.AddressList("From"); err == nil {
		for _, addr := range addrs {
			if addr.Address != "" {
				return addr.Address
			}
		}
	}

	// Malformed lists still often carry a bare address
	for _, field := range strings.FieldsFunc(h.Get("From"), func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '<' || r == '>' || r == '"'
	}) {
		if strings.Contains(field, "@") {
			return field
		}
	}

	return UnknownSender
}
