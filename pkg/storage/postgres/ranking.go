package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/storage"
)

// ReplaceRanking deletes every ranked entry and inserts entries in one
// transaction, so readers see either the previous ranking or the new one
func (s *Store) ReplaceRanking(ctx context.Context, entries []analytics.RankedEntry) (err error) {
	ctx, done := s.op(ctx, "ReplaceRanking", "ranked_entries", attribute.Int("entries", len(entries)))
	defer func() { done(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ranked_entries"); err != nil {
		return fmt.Errorf("failed to clear ranking: %w", err)
	}

	if len(entries) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ranked_entries (id, generation, video_id, score, rank, calculated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare ranking insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ID, e.Generation, e.VideoID, e.Score, e.Rank, e.CalculatedAt); err != nil {
				return fmt.Errorf("failed to insert ranked entry %d: %w", e.Rank, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ranking: %w", err)
	}
	return nil
}

const rankedEntryColumns = `id, generation, video_id, score, rank, calculated_at, warmed_at, warm_failed, COALESCE(warm_error, '')`

func scanRankedEntry(row interface{ Scan(...interface{}) error }) (analytics.RankedEntry, error) {
	var (
		e        analytics.RankedEntry
		warmedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.Generation, &e.VideoID, &e.Score, &e.Rank, &e.CalculatedAt,
		&warmedAt, &e.WarmFailed, &e.WarmError)
	if err != nil {
		return e, err
	}
	if warmedAt.Valid {
		t := warmedAt.Time.UTC()
		e.WarmedAt = &t
	}
	return e, nil
}

// ListRanking returns the current ranking by rank
func (s *Store) ListRanking(ctx context.Context) (_ []analytics.RankedEntry, err error) {
	return s.listRanking(ctx, "ListRanking", "")
}

// ListUnwarmedEntries returns ranked entries with no warm outcome yet
func (s *Store) ListUnwarmedEntries(ctx context.Context) (_ []analytics.RankedEntry, err error) {
	return s.listRanking(ctx, "ListUnwarmedEntries", "WHERE warmed_at IS NULL AND NOT warm_failed")
}

func (s *Store) listRanking(ctx context.Context, name, where string) (_ []analytics.RankedEntry, err error) {
	ctx, done := s.op(ctx, name, "ranked_entries")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, "SELECT "+rankedEntryColumns+" FROM ranked_entries "+where+" ORDER BY rank")
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking: %w", err)
	}
	defer rows.Close()

	entries := []analytics.RankedEntry{}
	for rows.Next() {
		e, err := scanRankedEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ranked entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkWarmed records a successful priming request
func (s *Store) MarkWarmed(ctx context.Context, entryID string, at time.Time) (err error) {
	ctx, done := s.op(ctx, "MarkWarmed", "ranked_entries")
	defer func() { done(err) }()

	res, err := s.db.ExecContext(ctx,
		"UPDATE ranked_entries SET warmed_at = $2, warm_failed = FALSE, warm_error = NULL WHERE id = $1",
		entryID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark entry %s warmed: %w", entryID, err)
	}
	return requireRow(res, entryID)
}

// MarkWarmFailed records a failed priming request
func (s *Store) MarkWarmFailed(ctx context.Context, entryID, reason string) (err error) {
	ctx, done := s.op(ctx, "MarkWarmFailed", "ranked_entries")
	defer func() { done(err) }()

	res, err := s.db.ExecContext(ctx,
		"UPDATE ranked_entries SET warm_failed = TRUE, warm_error = $2 WHERE id = $1",
		entryID, reason)
	if err != nil {
		return fmt.Errorf("failed to mark entry %s warm failure: %w", entryID, err)
	}
	return requireRow(res, entryID)
}

// requireRow maps a zero-row update to ErrNotFound. The entry may have been
// replaced by a newer trending run since the event was published.
func requireRow(res sql.Result, entryID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ranked entry %s: %w", entryID, storage.ErrNotFound)
	}
	return nil
}
