package processor

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meko-christian/mail-listener/internal/listener"
)

// TextWriter writes one <key>.txt file per record into Dir. Each file holds
// "Section\n\nvalue\n\n\n" blocks, Subject first. Records whose file
// already exists are skipped.
type TextWriter struct {
	Dir string
}

// Process implements listener.Handler.
func (w TextWriter) Process(_ context.Context, _ *listener.Session, results listener.ResultSet) error {
	_, err := w.Write(results)
	return err
}

// Write writes results and returns the paths of the files it created.
func (w TextWriter) Write(results listener.ResultSet) ([]string, error) {
	var created []string

	for _, key := range sortedKeys(results) {
		path, err := outputPath(w.Dir, key, ".txt")
		if err != nil {
			return created, err
		}

		f, ok, err := createNew(path)
		if err != nil {
			return created, err
		}
		if !ok {
			slog.Info("File has already been created", "path", path)
			continue
		}

		bw := bufio.NewWriter(f)
		writeRecordText(bw, results[key])
		err = bw.Flush()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return created, fmt.Errorf("failed to write %s: %w", path, err)
		}

		created = append(created, path)
	}

	return created, nil
}

func writeRecordText(w *bufio.Writer, rec listener.Record) {
	fmt.Fprintf(w, "Subject\n\n%s\n\n\n", rec.Subject)

	section := func(name, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "%s\n\n%s\n\n\n", name, strings.TrimSpace(value))
	}

	section("Plain_Text", rec.PlainText)
	section("Plain_HTML", rec.PlainHTML)
	section("HTML", rec.HTML)
	if len(rec.Attachments) > 0 {
		section("attachments", strings.Join(rec.Attachments, "\n"))
	}
}
