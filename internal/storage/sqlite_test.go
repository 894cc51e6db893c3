package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/mattn/go-sqlite3"
)

func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func createTestEntry(description string, singlePhase bool) model.LearnedEntry {
	v := model.Verdict{
		SinglePhase:   model.TristateOf(singlePhase),
		SuggestedCode: "22029900",
		Rationale:     "classified externally",
		Source:        model.SourceExternal,
	}
	return model.NewLearnedEntry(description, v, model.OriginExternal,
		time.Date(2025, 12, 30, 9, 15, 0, 0, time.UTC))
}

// findEntry loads the store and returns the entry with key.
func findEntry(t *testing.T, store *SQLiteStorage, key string) (model.LearnedEntry, bool) {
	t.Helper()
	entries, err := store.LoadLearned(context.Background())
	if err != nil {
		t.Fatalf("Failed to load entries: %v", err)
	}
	for _, e := range entries {
		if e.Key == key {
			return e, true
		}
	}
	return model.LearnedEntry{}, false
}

func countEntries(t *testing.T, store *SQLiteStorage) int {
	t.Helper()
	entries, err := store.LoadLearned(context.Background())
	if err != nil {
		t.Fatalf("Failed to load entries: %v", err)
	}
	return len(entries)
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open in-memory storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	entry := createTestEntry("OBSCURE ENERGY DRINK X", true)
	if err := store.SaveLearned(ctx, &entry); err != nil {
		t.Fatalf("Failed to save entry: %v", err)
	}

	if count := countEntries(t, store); count != 1 {
		t.Errorf("stored %d entries, want 1", count)
	}
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "learned.db")

	store, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	entry := createTestEntry("Vh Bco Por Casal Garcia Sweet 750ml", false)
	if err := store.SaveLearned(ctx, &entry); err != nil {
		t.Fatalf("Failed to save entry: %v", err)
	}
	if err := store.RecordHit(ctx, entry.Key); err != nil {
		t.Fatalf("Failed to record hit: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	reopened, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok := findEntry(t, reopened, "VH BCO POR CASAL GARCIA SWEET 750ML")
	if !ok {
		t.Fatal("entry missing after reopen")
	}
	if got.SinglePhase {
		t.Error("SinglePhase = true after reopen, want false")
	}
	if got.Hits != 1 {
		t.Errorf("Hits = %d, want 1", got.Hits)
	}
	if !got.LearnedAt.Equal(entry.LearnedAt) {
		t.Errorf("LearnedAt = %v, want %v", got.LearnedAt, entry.LearnedAt)
	}

	saved, err := reopened.SavedCalls(ctx)
	if err != nil {
		t.Fatalf("Failed to read saved calls: %v", err)
	}
	if saved != 1 {
		t.Errorf("SavedCalls() = %d, want 1", saved)
	}
}

func TestSQLiteStorage_MigrateIdempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to read version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", version, ExpectedSchemaVersion)
	}
}

func TestSQLiteStorage_NewerSchemaRejected(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.db.ExecContext(ctx, "PRAGMA user_version = 99"); err != nil {
		t.Fatalf("Failed to bump version: %v", err)
	}
	if err := store.Migrate(ctx); err == nil {
		t.Error("Migrate() succeeded on a newer schema, want error")
	}
}

func TestSQLiteStorage_Backup(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	entry := createTestEntry("HEINEKEN 600ML", true)
	if err := store.SaveLearned(ctx, &entry); err != nil {
		t.Fatalf("Failed to save entry: %v", err)
	}

	dest := store.BackupPath("pre-import", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if filepath.Base(dest) != "pre-import-20260102-030405.db" {
		t.Errorf("BackupPath() = %s", dest)
	}
	if err := store.Backup(ctx, dest); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	copied, err := Open(ctx, dest)
	if err != nil {
		t.Fatalf("Failed to open backup: %v", err)
	}
	defer func() { _ = copied.Close() }()

	if _, ok := findEntry(t, copied, entry.Key); !ok {
		t.Error("Backup is missing entry")
	}

	if err := store.Backup(ctx, dest); !errors.Is(err, ErrInvalidDestPath) {
		t.Errorf("Backup to existing file error = %v, want ErrInvalidDestPath", err)
	}
	if err := store.Backup(ctx, "relative.db"); !errors.Is(err, ErrInvalidDestPath) {
		t.Errorf("Backup to relative path error = %v, want ErrInvalidDestPath", err)
	}
}

func TestClassifyError(t *testing.T) {
	busy := classifyError(sqlite3.Error{Code: sqlite3.ErrBusy})
	if !common.IsRetryable(busy) {
		t.Error("busy error should be retryable")
	}
	if !errors.Is(busy, common.ErrBusy) {
		t.Error("busy error should wrap common.ErrBusy")
	}

	corrupt := classifyError(sqlite3.Error{Code: sqlite3.ErrCorrupt})
	if !errors.Is(corrupt, common.ErrDatabaseCorrupted) {
		t.Error("corrupt error should wrap common.ErrDatabaseCorrupted")
	}
	if common.IsRetryable(corrupt) {
		t.Error("corrupt error should not be retryable")
	}

	plain := errors.New("boom")
	if classifyError(plain) != plain {
		t.Error("non-sqlite errors should pass through")
	}
}
