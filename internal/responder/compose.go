package responder

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Reply is an outgoing multipart message. Images and Attachments are file
// paths. Images are only sent when HTML is set; the HTML refers to them as
// cid:image0, cid:image1 and so on, in order.
type Reply struct {
	To          string
	Subject     string
	Text        string
	HTML        string
	Images      []string
	Attachments []string
}

// Compose renders reply as
//
//	multipart/mixed
//	  multipart/alternative
//	    text/plain
//	    multipart/related
//	      text/html
//	      inline images
//	  attachments
//
// leaving out the parts that have no content.
func Compose(from string, reply Reply, date time.Time) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	toAddr, err := mail.ParseAddress(reply.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", reply.To, err)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})
	h.SetSubject(reply.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("multipart/mixed", nil)

	var buf bytes.Buffer
	mw, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	if reply.Text != "" || reply.HTML != "" {
		if err := writeBody(mw, reply); err != nil {
			return nil, err
		}
	}

	for _, path := range reply.Attachments {
		if err := writeFilePart(mw, path, "attachment", ""); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeBody(mw *message.Writer, reply Reply) error {
	var h message.Header
	h.SetContentType("multipart/alternative", nil)

	aw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	if reply.Text != "" {
		if err := writeTextPart(aw, "text/plain", reply.Text); err != nil {
			return err
		}
	}

	if reply.HTML != "" {
		var rh message.Header
		rh.SetContentType("multipart/related", nil)

		rw, err := aw.CreatePart(rh)
		if err != nil {
			return err
		}
		if err := writeTextPart(rw, "text/html", reply.HTML); err != nil {
			return err
		}
		for i, path := range reply.Images {
			if err := writeFilePart(rw, path, "inline", fmt.Sprintf("<image%d>", i)); err != nil {
				return err
			}
		}
		if err := rw.Close(); err != nil {
			return err
		}
	}

	return aw.Close()
}

func writeTextPart(parent *message.Writer, mediaType, body string) error {
	var h message.Header
	h.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := parent.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func writeFilePart(parent *message.Writer, path, disposition, contentID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	name := filepath.Base(path)
	mediaType := mime.TypeByExtension(filepath.Ext(name))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}

	var h message.Header
	h.Set("Content-Type", mediaType)
	h.SetContentDisposition(disposition, map[string]string{"filename": name})
	h.Set("Content-Transfer-Encoding", "base64")
	if contentID != "" {
		h.Set("Content-ID", contentID)
	}

	w, err := parent.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}
