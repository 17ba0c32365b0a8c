// Package processor holds handlers that consume the records of a scrape
// cycle: file dumps, a SQLite sink and an automatic reply.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/meko-christian/mail-listener/internal/listener"
)

// Chain runs handlers in order and stops at the first error.
func Chain(handlers ...listener.Handler) listener.Handler {
	return listener.HandlerFunc(func(ctx context.Context, s *listener.Session, results listener.ResultSet) error {
		for _, h := range handlers {
			if err := h.Process(ctx, s, results); err != nil {
				return err
			}
		}
		return nil
	})
}

// Discard ignores every result set.
var Discard listener.Handler = listener.HandlerFunc(func(context.Context, *listener.Session, listener.ResultSet) error {
	return nil
})

// sortedKeys returns the keys of results in a stable order.
func sortedKeys(results listener.ResultSet) []string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// createNew creates path for writing, reporting ok=false when it already exists.
func createNew(path string) (f *os.File, ok bool, err error) {
	f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, true, nil
}

var keyReplacer = strings.NewReplacer("/", "_", `\`, "_", "..", "_", "\x00", "_")

// outputPath returns dir/<key><ext>. The key carries the sender address, so
// separators and dot-dot sequences are replaced and the result must stay a
// direct child of dir.
func outputPath(dir, key, ext string) (string, error) {
	name := keyReplacer.Replace(key) + ext
	path := filepath.Join(dir, name)

	rel, err := filepath.Rel(dir, path)
	if err != nil || rel != name || filepath.Base(path) != name {
		return "", fmt.Errorf("refusing to write record %q outside %s", key, dir)
	}
	return path, nil
}
