package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
)

// InsertAlerts appends alerts in one transaction
func (s *Store) InsertAlerts(ctx context.Context, alerts []analytics.Alert) (err error) {
	if len(alerts) == 0 {
		return nil
	}

	ctx, done := s.op(ctx, "InsertAlerts", "alerts", attribute.Int("alerts", len(alerts)))
	defer func() { done(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range alerts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alerts (id, type, severity, message, threshold, current_value, acknowledged, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, a.ID, string(a.Type), string(a.Severity), a.Message, a.Threshold, a.CurrentValue, a.Acknowledged, a.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert %s alert: %w", a.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	return nil
}

// ListRecentAlerts returns up to limit alerts, newest first
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) (_ []analytics.Alert, err error) {
	ctx, done := s.op(ctx, "ListRecentAlerts", "alerts")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, severity, message, threshold, current_value, acknowledged, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []analytics.Alert{}
	for rows.Next() {
		var (
			a                   analytics.Alert
			alertType, severity string
		)
		if err := rows.Scan(&a.ID, &alertType, &severity, &a.Message, &a.Threshold, &a.CurrentValue, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Type = analytics.AlertType(alertType)
		a.Severity = analytics.Severity(severity)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
