package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"geocdn/internal/domain"
)

// AppendHistory は履歴を追記します
func (s *Store) AppendHistory(ctx context.Context, e domain.HistoryEntry) error {
	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO distribution_history(distribution_id, timestamp, action, user, version, previous_status, new_status, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DistributionID, formatTime(e.Timestamp), string(e.Action), e.User, e.Version,
		string(e.PreviousStatus), string(e.NewStatus), details)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListHistory は新しい順に履歴を返します
func (s *Store) ListHistory(ctx context.Context, distributionID string, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT distribution_id, timestamp, action, user, version, previous_status, new_status, details
		FROM distribution_history WHERE distribution_id = ? ORDER BY timestamp DESC, id DESC`
	args := []any{distributionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e                   domain.HistoryEntry
			ts, action          string
			previous, newStatus string
			details             sql.NullString
		)
		if err := rows.Scan(&e.DistributionID, &ts, &action, &e.User, &e.Version, &previous, &newStatus, &details); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.Action = domain.HistoryAction(action)
		e.PreviousStatus = domain.Status(previous)
		e.NewStatus = domain.Status(newStatus)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode history details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
