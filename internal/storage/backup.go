package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupPath returns a timestamped backup location next to the database.
func (s *SQLiteStorage) BackupPath(prefix string, now time.Time) string {
	dir := filepath.Join(filepath.Dir(s.dbPath), "backups")
	return filepath.Join(dir, fmt.Sprintf("%s-%s.db", prefix, now.Format("20060102-150405")))
}

// Backup writes a consistent copy of the database to destPath.
func (s *SQLiteStorage) Backup(ctx context.Context, destPath string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if s.dbPath == MemoryPath {
		return fmt.Errorf("%w: in-memory databases cannot be backed up", ErrInvalidDestPath)
	}
	if strings.ContainsAny(destPath, `'";`) || !filepath.IsAbs(destPath) || strings.Contains(destPath, "..") {
		return fmt.Errorf("%w: %s", ErrInvalidDestPath, destPath)
	}
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("%w: %s already exists", ErrInvalidDestPath, destPath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", classifyError(err))
	}

	// #nosec G201 - destPath is validated above
	query := fmt.Sprintf("VACUUM INTO '%s'", destPath)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to back up database: %w", classifyError(err))
	}
	return nil
}
