package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geocdn/internal/domain"
	"geocdn/internal/store"
)

const originColumns = `origin_id, name, description, bucket_name, region, access_control_id, website_enabled, created_by, created_at, updated_at`

// PutOrigin はオリジンを登録します
func (s *Store) PutOrigin(ctx context.Context, o domain.Origin) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO origins(`+originColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OriginID, o.Name, o.Description, o.BucketName, o.Region, o.AccessControlID,
		boolInt(o.WebsiteEnabled), o.CreatedBy, formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert origin: %w", err)
	}
	for _, arn := range o.AssociatedDistributions {
		if err := s.AddAssociation(ctx, o.OriginID, arn, o.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

// GetOrigin はオリジンを取得します
func (s *Store) GetOrigin(ctx context.Context, originID string) (domain.Origin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+originColumns+` FROM origins WHERE origin_id = ?`, originID)
	o, err := scanOrigin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Origin{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Origin{}, err
	}
	assoc, err := s.associations(ctx, originID)
	if err != nil {
		return domain.Origin{}, err
	}
	o.AssociatedDistributions = assoc
	return o, nil
}

// ListOrigins はオリジンを作成順に返します
func (s *Store) ListOrigins(ctx context.Context) ([]domain.Origin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+originColumns+` FROM origins ORDER BY created_at, origin_id`)
	if err != nil {
		return nil, err
	}
	var origins []domain.Origin
	for rows.Next() {
		o, err := scanOrigin(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		origins = append(origins, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range origins {
		assoc, err := s.associations(ctx, origins[i].OriginID)
		if err != nil {
			return nil, err
		}
		origins[i].AssociatedDistributions = assoc
	}
	return origins, nil
}

// UpdateOrigin は関連付け以外の属性を書き換えます
func (s *Store) UpdateOrigin(ctx context.Context, o domain.Origin) error {
	res, err := s.db.ExecContext(ctx, `UPDATE origins SET name = ?, description = ?, access_control_id = ?, website_enabled = ?, updated_at = ? WHERE origin_id = ?`,
		o.Name, o.Description, o.AccessControlID, boolInt(o.WebsiteEnabled), formatTime(o.UpdatedAt), o.OriginID)
	if err != nil {
		return fmt.Errorf("update origin: %w", err)
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

// DeleteOrigin はオリジンを削除します
func (s *Store) DeleteOrigin(ctx context.Context, originID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM origins WHERE origin_id = ?`, originID)
	if err != nil {
		return fmt.Errorf("delete origin: %w", err)
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

// AddAssociation はオリジンにディストリビューションARNを関連付けます。重複は無視します
func (s *Store) AddAssociation(ctx context.Context, originID, distributionArn string, at time.Time) error {
	if err := s.originExists(ctx, originID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO origin_associations(origin_id, distribution_arn, created_at) VALUES (?, ?, ?)`,
		originID, distributionArn, formatTime(at))
	if err != nil {
		return fmt.Errorf("add association: %w", err)
	}
	return s.touchOrigin(ctx, originID, at)
}

// RemoveAssociation は関連付けを解除します。未関連付けでもエラーにしません
func (s *Store) RemoveAssociation(ctx context.Context, originID, distributionArn string, at time.Time) error {
	if err := s.originExists(ctx, originID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM origin_associations WHERE origin_id = ? AND distribution_arn = ?`, originID, distributionArn)
	if err != nil {
		return fmt.Errorf("remove association: %w", err)
	}
	return s.touchOrigin(ctx, originID, at)
}

func (s *Store) originExists(ctx context.Context, originID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM origins WHERE origin_id = ?`, originID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) touchOrigin(ctx context.Context, originID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE origins SET updated_at = ? WHERE origin_id = ?`, formatTime(at), originID)
	return err
}

func (s *Store) associations(ctx context.Context, originID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT distribution_arn FROM origin_associations WHERE origin_id = ? ORDER BY created_at, distribution_arn`, originID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	arns := []string{}
	for rows.Next() {
		var arn string
		if err := rows.Scan(&arn); err != nil {
			return nil, err
		}
		arns = append(arns, arn)
	}
	return arns, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrigin(row scanner) (domain.Origin, error) {
	var (
		o                    domain.Origin
		website              int
		createdAt, updatedAt string
	)
	err := row.Scan(&o.OriginID, &o.Name, &o.Description, &o.BucketName, &o.Region, &o.AccessControlID,
		&website, &o.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return domain.Origin{}, err
	}
	o.WebsiteEnabled = website == 1
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	o.AssociatedDistributions = []string{}
	return o, nil
}
