package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ConfigBackup handles creating and restoring configuration backups
type ConfigBackup struct {
	configPath string
	backupDir  string
	now        func() time.Time
}

// NewConfigBackup keeps backups of configPath in a config_backups directory
// next to it.
func NewConfigBackup(configPath string) *ConfigBackup {
	return &ConfigBackup{
		configPath: configPath,
		backupDir:  filepath.Join(filepath.Dir(configPath), "config_backups"),
		now:        time.Now,
	}
}

// CreateBackup copies the current config file and returns the backup path.
func (cb *ConfigBackup) CreateBackup(reason string) (string, error) {
	if err := os.MkdirAll(cb.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := cb.now().Format("2006-01-02_15-04-05")
	backupName := fmt.Sprintf("config_%s_%s.yaml", timestamp, sanitizeFilename(reason))
	backupPath := filepath.Join(cb.backupDir, backupName)

	if err := copyFile(cb.configPath, backupPath); err != nil {
		return "", fmt.Errorf("failed to copy config to backup: %w", err)
	}

	slog.Info("Configuration backup created", "path", backupPath, "reason", reason)
	return backupPath, nil
}

// ListBackups returns the backup file names, oldest first.
func (cb *ConfigBackup) ListBackups() ([]string, error) {
	if _, err := os.Stat(cb.backupDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	files, err := os.ReadDir(cb.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".yaml") {
			backups = append(backups, file.Name())
		}
	}
	sort.Strings(backups)

	return backups, nil
}

// RestoreBackup replaces the config file with a backup, backing up the
// current file first.
func (cb *ConfigBackup) RestoreBackup(backupName string) error {
	backupPath := filepath.Join(cb.backupDir, filepath.Base(backupName))

	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup file does not exist: %s", backupName)
	}

	if _, err := cb.CreateBackup("pre_restore"); err != nil {
		slog.Warn("Failed to create pre-restore backup", "error", err)
	}

	if err := copyFile(backupPath, cb.configPath); err != nil {
		return fmt.Errorf("failed to restore config: %w", err)
	}

	slog.Info("Configuration restored from backup", "backup", backupName)
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := srcFile.Close(); err != nil {
			slog.Error("Failed to close source file", "error", err)
		}
	}()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	return dstFile.Close()
}

func sanitizeFilename(name string) string {
	// Replace problematic characters with underscores
	sanitized := strings.NewReplacer(
		" ", "_",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	).Replace(name)

	// Limit length
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}

	return sanitized
}
