package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"geocdn/internal/domain"
	"geocdn/internal/store"
)

const edgeFunctionColumns = `function_id, function_name, function_arn, versioned_arn, code_content, origins, region_mapping,
  preset_key, status, created_by, created_at, updated_at`

// PutEdgeFunction はエッジ関数を登録します
func (s *Store) PutEdgeFunction(ctx context.Context, f domain.EdgeFunction) error {
	origins, err := json.Marshal(f.Origins)
	if err != nil {
		return err
	}
	mapping, err := json.Marshal(f.RegionMapping)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO edge_functions(`+edgeFunctionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FunctionID, f.FunctionName, f.FunctionARN, f.VersionedARN, f.CodeContent, string(origins), string(mapping),
		f.PresetKey, f.Status, f.CreatedBy, formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert edge function: %w", err)
	}
	return nil
}

// GetEdgeFunction はエッジ関数を取得します
func (s *Store) GetEdgeFunction(ctx context.Context, functionID string) (domain.EdgeFunction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+edgeFunctionColumns+` FROM edge_functions WHERE function_id = ?`, functionID)
	f, err := scanEdgeFunction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EdgeFunction{}, store.ErrNotFound
	}
	return f, err
}

// ListEdgeFunctions はエッジ関数を作成順に返します
func (s *Store) ListEdgeFunctions(ctx context.Context) ([]domain.EdgeFunction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+edgeFunctionColumns+` FROM edge_functions ORDER BY created_at, function_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.EdgeFunction
	for rows.Next() {
		f, err := scanEdgeFunction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateEdgeFunctionStatus はエッジ関数の状態を更新します
func (s *Store) UpdateEdgeFunctionStatus(ctx context.Context, functionID, status string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE edge_functions SET status = ?, updated_at = ? WHERE function_id = ?`, status, formatTime(at), functionID)
	if err != nil {
		return fmt.Errorf("update edge function: %w", err)
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

// DeleteEdgeFunction はエッジ関数を削除します
func (s *Store) DeleteEdgeFunction(ctx context.Context, functionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM edge_functions WHERE function_id = ?`, functionID)
	if err != nil {
		return fmt.Errorf("delete edge function: %w", err)
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

func scanEdgeFunction(row scanner) (domain.EdgeFunction, error) {
	var (
		f                    domain.EdgeFunction
		origins, mapping     string
		createdAt, updatedAt string
	)
	err := row.Scan(&f.FunctionID, &f.FunctionName, &f.FunctionARN, &f.VersionedARN, &f.CodeContent, &origins, &mapping,
		&f.PresetKey, &f.Status, &f.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return domain.EdgeFunction{}, err
	}
	if err := json.Unmarshal([]byte(origins), &f.Origins); err != nil {
		return domain.EdgeFunction{}, fmt.Errorf("decode origins: %w", err)
	}
	if err := json.Unmarshal([]byte(mapping), &f.RegionMapping); err != nil {
		return domain.EdgeFunction{}, fmt.Errorf("decode region_mapping: %w", err)
	}
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return f, nil
}
