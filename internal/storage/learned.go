package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
)

const savedCallsCounter = "saved_calls"

// LoadLearned returns every learned entry ordered by key.
func (s *SQLiteStorage) LoadLearned(ctx context.Context) ([]model.LearnedEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	entries, err := s.loadLearnedTx(ctx, s.db)
	if err != nil {
		return nil, classifyError(err)
	}
	return entries, nil
}

func (s *SQLiteStorage) loadLearnedTx(ctx context.Context, q queryable) ([]model.LearnedEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT key, description, single_phase, suggested_code, category, rationale, origin, learned_at, hits
		FROM learned_entries
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LearnedEntry
	for rows.Next() {
		var (
			entry  model.LearnedEntry
			origin string
		)
		if err := rows.Scan(
			&entry.Key,
			&entry.Description,
			&entry.SinglePhase,
			&entry.SuggestedCode,
			&entry.Category,
			&entry.Rationale,
			&origin,
			&entry.LearnedAt,
			&entry.Hits,
		); err != nil {
			return nil, fmt.Errorf("failed to scan learned entry: %w", err)
		}
		entry.Origin = model.LearnedOrigin(origin)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learned entries: %w", err)
	}
	return entries, nil
}

// SaveLearned inserts or replaces an entry in a single transaction.
func (s *SQLiteStorage) SaveLearned(ctx context.Context, entry *model.LearnedEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLearnedEntry(entry); err != nil {
		return err
	}
	if entry.LearnedAt.IsZero() {
		entry.LearnedAt = time.Now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveLearnedTx(ctx, tx, entry)
	})
}

func (s *SQLiteStorage) saveLearnedTx(ctx context.Context, q queryable, entry *model.LearnedEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO learned_entries (key, description, single_phase, suggested_code, category, rationale, origin, learned_at, hits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			description = excluded.description,
			single_phase = excluded.single_phase,
			suggested_code = excluded.suggested_code,
			category = excluded.category,
			rationale = excluded.rationale,
			origin = excluded.origin,
			learned_at = excluded.learned_at,
			hits = excluded.hits
	`, entry.Key, entry.Description, entry.SinglePhase, entry.SuggestedCode, entry.Category,
		entry.Rationale, string(entry.Origin), entry.LearnedAt, entry.Hits)
	if err != nil {
		return fmt.Errorf("failed to save learned entry: %w", err)
	}
	return nil
}

// ImportLearned saves many entries in one transaction. Either all are written or none.
func (s *SQLiteStorage) ImportLearned(ctx context.Context, entries []model.LearnedEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for i := range entries {
		if err := validateLearnedEntry(&entries[i]); err != nil {
			return fmt.Errorf("entry at index %d: %w", i, err)
		}
		if entries[i].LearnedAt.IsZero() {
			entries[i].LearnedAt = time.Now()
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range entries {
			if err := s.saveLearnedTx(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteLearned removes an entry by key.
func (s *SQLiteStorage) DeleteLearned(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM learned_entries WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("failed to delete learned entry: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("learned entry %q: %w", key, common.ErrNotFound)
		}
		return nil
	})
}

// RecordHit bumps the entry's hit count and the saved calls counter together.
func (s *SQLiteStorage) RecordHit(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE learned_entries SET hits = hits + 1 WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to update hit count: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE counters SET value = value + 1 WHERE name = ?`, savedCallsCounter); err != nil {
			return fmt.Errorf("failed to update saved calls: %w", err)
		}
		return nil
	})
}

// SavedCalls returns the number of external calls avoided by cache hits.
func (s *SQLiteStorage) SavedCalls(ctx context.Context) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE name = ?`, savedCallsCounter).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, classifyError(fmt.Errorf("failed to read saved calls: %w", err))
	}
	return value, nil
}
