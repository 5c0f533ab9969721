package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/storage"
)

// activityColumns maps an activity field to its typed column and the key
// legacy clients used inside the profile document
var activityColumns = map[analytics.ActivityField]struct{ column, profileKey string }{
	analytics.ActivityLastLogin: {"last_login_at", "lastLoginAt"},
	analytics.ActivityUpdated:   {"updated_at", "updatedAt"},
}

// activityExpr is the SQL timestamp for field: the typed column, else the
// legacy profile value (epoch millis or a {seconds, nanoseconds} pair)
func activityExpr(field analytics.ActivityField) (string, error) {
	cols, ok := activityColumns[field]
	if !ok {
		return "", fmt.Errorf("unknown activity field %q", field)
	}
	legacy := fmt.Sprintf("profile->'%s'", cols.profileKey)
	return fmt.Sprintf(`COALESCE(%s, CASE jsonb_typeof(%s)
			WHEN 'number' THEN to_timestamp((%s)::text::double precision / 1000)
			WHEN 'object' THEN to_timestamp(
				COALESCE(%s->>'seconds', %s->>'_seconds')::double precision
				+ COALESCE(%s->>'nanoseconds', %s->>'_nanoseconds', '0')::double precision / 1e9)
		END)`, cols.column, legacy, legacy, legacy, legacy, legacy, legacy), nil
}

// ListAPICalls returns call records created in [from, to)
func (s *Store) ListAPICalls(ctx context.Context, from, to time.Time) (_ []analytics.APICall, err error) {
	ctx, done := s.op(ctx, "ListAPICalls", "api_call_records")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT function_name, duration_ms, is_error, created_at
		FROM api_call_records
		WHERE created_at >= $1 AND created_at < $2
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list api calls: %w", err)
	}
	defer rows.Close()

	var calls []analytics.APICall
	for rows.Next() {
		var c analytics.APICall
		if err := rows.Scan(&c.FunctionName, &c.DurationMs, &c.IsError, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api call: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// CountActiveUsers counts users whose field is at or after since
func (s *Store) CountActiveUsers(ctx context.Context, field analytics.ActivityField, since time.Time) (_ int, err error) {
	ctx, done := s.op(ctx, "CountActiveUsers", "users", attribute.String("activity.field", string(field)))
	defer func() { done(err) }()

	expr, err := activityExpr(field)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.reader().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE "+expr+" >= $1", since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users by %s: %w", field, err)
	}
	return n, nil
}

// ListUserIDsCreatedBetween returns ids of users created in [from, to), oldest first
func (s *Store) ListUserIDsCreatedBetween(ctx context.Context, from, to time.Time) (_ []string, err error) {
	ctx, done := s.op(ctx, "ListUserIDsCreatedBetween", "users")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT id FROM users
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list cohort: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetUserActivity returns activity timestamps for ids. Typed columns are
// returned as time.Time; otherwise the raw legacy profile value is decoded
// with json.Number preserved.
func (s *Store) GetUserActivity(ctx context.Context, ids []string) (_ []analytics.UserActivity, err error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, done := s.op(ctx, "GetUserActivity", "users", attribute.Int("users", len(ids)))
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT id, last_login_at, updated_at, profile->'lastLoginAt', profile->'updatedAt'
		FROM users
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get user activity: %w", err)
	}
	defer rows.Close()

	var out []analytics.UserActivity
	for rows.Next() {
		var (
			u                         analytics.UserActivity
			lastLogin, updated        sql.NullTime
			legacyLogin, legacyUpdate []byte
		)
		if err := rows.Scan(&u.ID, &lastLogin, &updated, &legacyLogin, &legacyUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan user activity: %w", err)
		}
		u.LastLoginAt = pickTimestamp(lastLogin, legacyLogin)
		u.UpdatedAt = pickTimestamp(updated, legacyUpdate)
		out = append(out, u)
	}
	return out, rows.Err()
}

func pickTimestamp(typed sql.NullTime, legacy []byte) interface{} {
	if typed.Valid {
		return typed.Time
	}
	if len(legacy) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(legacy))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// ListUserGeo returns the location of every user with a country code
func (s *Store) ListUserGeo(ctx context.Context) (_ []analytics.UserGeo, err error) {
	ctx, done := s.op(ctx, "ListUserGeo", "users")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT country_code, COALESCE(region, '')
		FROM users
		WHERE country_code IS NOT NULL AND country_code <> ''
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user locations: %w", err)
	}
	defer rows.Close()

	var out []analytics.UserGeo
	for rows.Next() {
		var g analytics.UserGeo
		if err := rows.Scan(&g.CountryCode, &g.Region); err != nil {
			return nil, fmt.Errorf("failed to scan user location: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountVideosCreatedBetween counts uploads in [from, to)
func (s *Store) CountVideosCreatedBetween(ctx context.Context, from, to time.Time) (_ int, err error) {
	ctx, done := s.op(ctx, "CountVideosCreatedBetween", "videos")
	defer func() { done(err) }()

	var n int
	err = s.reader().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM videos WHERE created_at >= $1 AND created_at < $2", from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return n, nil
}

const videoColumns = `id, status, likes_count, comments_count, shares_count,
		visibility, manifest_path, asset_key, created_at, updated_at`

func scanVideo(row interface{ Scan(...interface{}) error }) (analytics.Video, error) {
	var v analytics.Video
	err := row.Scan(&v.ID, &v.Status, &v.Likes, &v.Comments, &v.Shares,
		&v.Visibility, &v.ManifestPath, &v.AssetKey, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// ListReadyVideosCreatedSince returns up to limit ready videos created at or
// after since, newest first
func (s *Store) ListReadyVideosCreatedSince(ctx context.Context, since time.Time, limit int) (_ []analytics.Video, err error) {
	ctx, done := s.op(ctx, "ListReadyVideosCreatedSince", "videos", attribute.Int("limit", limit))
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE status = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, analytics.StatusReady, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready videos: %w", err)
	}
	defer rows.Close()

	var out []analytics.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountVideoStatusesUpdatedSince tallies videos updated at or after since by status
func (s *Store) CountVideoStatusesUpdatedSince(ctx context.Context, since time.Time) (_ analytics.StatusCounts, err error) {
	ctx, done := s.op(ctx, "CountVideoStatusesUpdatedSince", "videos")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM videos
		WHERE updated_at >= $1
		GROUP BY status
	`, since)
	if err != nil {
		return analytics.StatusCounts{}, fmt.Errorf("failed to count video statuses: %w", err)
	}
	defer rows.Close()

	var counts analytics.StatusCounts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return analytics.StatusCounts{}, fmt.Errorf("failed to scan status count: %w", err)
		}
		switch status {
		case analytics.StatusReady:
			counts.Ready += n
		case analytics.StatusFailed:
			counts.Failed += n
		case analytics.StatusProcessing:
			counts.Processing += n
		}
		counts.Total += n
	}
	return counts, rows.Err()
}

// GetVideo returns one video by id
func (s *Store) GetVideo(ctx context.Context, id string) (_ analytics.Video, err error) {
	ctx, done := s.op(ctx, "GetVideo", "videos")
	defer func() { done(err) }()

	v, err := scanVideo(s.reader().QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return analytics.Video{}, fmt.Errorf("video %s: %w", id, storage.ErrNotFound)
	} else if err != nil {
		return analytics.Video{}, fmt.Errorf("failed to get video %s: %w", id, err)
	}
	return v, nil
}

// ListWatchEvents returns playback records created in [from, to)
func (s *Store) ListWatchEvents(ctx context.Context, from, to time.Time) (_ []analytics.WatchEvent, err error) {
	ctx, done := s.op(ctx, "ListWatchEvents", "watch_events")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT video_id, user_id, watch_duration_seconds, completed, created_at
		FROM watch_events
		WHERE created_at >= $1 AND created_at < $2
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch events: %w", err)
	}
	defer rows.Close()

	var out []analytics.WatchEvent
	for rows.Next() {
		var e analytics.WatchEvent
		if err := rows.Scan(&e.VideoID, &e.UserID, &e.WatchDurationSeconds, &e.Completed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watch event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
