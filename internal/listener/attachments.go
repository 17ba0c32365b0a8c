package listener

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CollisionPolicy decides what happens when an attachment file with the same
// name already exists in the attachment directory.
type CollisionPolicy string

const (
	// CollisionOverwrite replaces the existing file.
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionSuffix writes to "name (1).ext", "name (2).ext", ...
	CollisionSuffix CollisionPolicy = "suffix"
	// CollisionFail aborts extraction with ErrAttachmentExists.
	CollisionFail CollisionPolicy = "fail"
)

// ParseCollisionPolicy maps a config value to a policy. An empty value
// selects CollisionOverwrite.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CollisionOverwrite, nil
	case CollisionOverwrite, CollisionSuffix, CollisionFail:
		return p, nil
	default:
		return "", fmt.Errorf("unknown attachment collision policy %q (want overwrite, suffix or fail)", s)
	}
}

// maxSuffix bounds the search for a free name under CollisionSuffix.
const maxSuffix = 1000

// saveAttachment writes r to dir/<base of filename> and returns the path written.
func saveAttachment(dir, filename string, r io.Reader, policy CollisionPolicy) (string, error) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, `\`, "/")))
	if name == "/" || name == "." || name == "" {
		name = "attachment"
	}
	path := filepath.Join(dir, name)

	var (
		f   *os.File
		err error
	)
	switch policy {
	case CollisionFail:
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrAttachmentExists, path)
		}
	case CollisionSuffix:
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for i := 0; i < maxSuffix; i++ {
			if i > 0 {
				path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
			}
			f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if !errors.Is(err, fs.ErrExist) {
				break
			}
		}
	default:
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create attachment file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write attachment %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close attachment %s: %w", path, err)
	}

	return path, nil
}
