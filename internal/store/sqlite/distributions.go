package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"geocdn/internal/domain"
	"geocdn/internal/store"
)

const distributionColumns = `distribution_id, provider_id, name, description, status, domain_name, arn, is_multi_origin,
  multi_origin_config, edge_function_id, access_identity_id, config, version, created_by, created_at, updated_at`

// PutDistribution はディストリビューションを登録します
func (s *Store) PutDistribution(ctx context.Context, d domain.Distribution) error {
	var multi sql.NullString
	if d.MultiOrigin != nil {
		b, err := json.Marshal(d.MultiOrigin)
		if err != nil {
			return err
		}
		multi = sql.NullString{String: string(b), Valid: true}
	}
	var cfg sql.NullString
	if len(d.Config) > 0 {
		cfg = sql.NullString{String: string(d.Config), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO distributions(`+distributionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DistributionID, d.ProviderID, d.Name, d.Description, string(d.Status), d.DomainName, d.ARN,
		boolInt(d.IsMultiOrigin), multi, d.EdgeFunctionID, d.AccessIdentityID, cfg, d.Version,
		d.CreatedBy, formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}

// GetDistribution はディストリビューションを取得します
func (s *Store) GetDistribution(ctx context.Context, distributionID string) (domain.Distribution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+distributionColumns+` FROM distributions WHERE distribution_id = ?`, distributionID)
	d, err := scanDistribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Distribution{}, store.ErrNotFound
	}
	return d, err
}

// ListDistributions はディストリビューションを作成順に返します
func (s *Store) ListDistributions(ctx context.Context) ([]domain.Distribution, error) {
	return s.queryDistributions(ctx, `SELECT `+distributionColumns+` FROM distributions ORDER BY created_at, distribution_id`)
}

// ListByStatus は指定した状態のディストリビューションを返します
func (s *Store) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Distribution, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	query := `SELECT ` + distributionColumns + ` FROM distributions WHERE status IN (` + strings.Join(placeholders, ", ") + `) ORDER BY created_at, distribution_id`
	return s.queryDistributions(ctx, query, args...)
}

// UpdateStatus はバージョン一致を条件に状態を更新します
func (s *Store) UpdateStatus(ctx context.Context, distributionID string, expectedVersion int64, status domain.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE distributions SET status = ?, version = version + 1, updated_at = ? WHERE distribution_id = ? AND version = ?`,
		string(status), formatTime(at), distributionID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update distribution status: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	return s.missingOrConflict(ctx, distributionID)
}

// UpdateMetadata は名前と説明を更新します
func (s *Store) UpdateMetadata(ctx context.Context, distributionID, name, description string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE distributions SET name = ?, description = ?, updated_at = ? WHERE distribution_id = ?`,
		name, description, formatTime(at), distributionID)
	if err != nil {
		return fmt.Errorf("update distribution metadata: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteDistribution はディストリビューションを削除します
func (s *Store) DeleteDistribution(ctx context.Context, distributionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM distributions WHERE distribution_id = ?`, distributionID)
	if err != nil {
		return fmt.Errorf("delete distribution: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// 条件付き更新が0件だった理由を判別する
func (s *Store) missingOrConflict(ctx context.Context, distributionID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM distributions WHERE distribution_id = ?`, distributionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrConflict
}

func (s *Store) queryDistributions(ctx context.Context, query string, args ...any) ([]domain.Distribution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDistribution(row scanner) (domain.Distribution, error) {
	var (
		d                    domain.Distribution
		status               string
		multiOrigin          int
		multi, cfg           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&d.DistributionID, &d.ProviderID, &d.Name, &d.Description, &status, &d.DomainName, &d.ARN,
		&multiOrigin, &multi, &d.EdgeFunctionID, &d.AccessIdentityID, &cfg, &d.Version,
		&d.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return domain.Distribution{}, err
	}
	d.Status = domain.Status(status)
	d.IsMultiOrigin = multiOrigin == 1
	if multi.Valid && multi.String != "" {
		var mc domain.MultiOriginConfig
		if err := json.Unmarshal([]byte(multi.String), &mc); err != nil {
			return domain.Distribution{}, fmt.Errorf("decode multi_origin_config: %w", err)
		}
		d.MultiOrigin = &mc
	}
	if cfg.Valid && cfg.String != "" {
		d.Config = json.RawMessage(cfg.String)
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return d, nil
}
