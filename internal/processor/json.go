package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/meko-christian/mail-listener/internal/listener"
)

// JSONWriter writes one <key>.json file per record into Dir, skipping
// records whose file already exists.
type JSONWriter struct {
	Dir string
}

// Process implements listener.Handler.
func (w JSONWriter) Process(_ context.Context, _ *listener.Session, results listener.ResultSet) error {
	_, err := w.Write(results)
	return err
}

// Write writes results and returns the paths of the files it created.
func (w JSONWriter) Write(results listener.ResultSet) ([]string, error) {
	var created []string

	for _, key := range sortedKeys(results) {
		path, err := outputPath(w.Dir, key, ".json")
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

		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(results[key])
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
