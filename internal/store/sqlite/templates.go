package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"geocdn/internal/domain"
	"geocdn/internal/store"
)

const templateColumns = `template_id, name, description, category, config, created_by, created_at, updated_at`

// PutTemplate はテンプレートを登録します
func (s *Store) PutTemplate(ctx context.Context, t domain.Template) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO templates(`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TemplateID, t.Name, t.Description, t.Category, string(t.Config), t.CreatedBy,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetTemplate はテンプレートを取得します
func (s *Store) GetTemplate(ctx context.Context, templateID string) (domain.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE template_id = ?`, templateID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Template{}, store.ErrNotFound
	}
	return t, err
}

// ListTemplates はテンプレートを作成順に返します
func (s *Store) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY created_at, template_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTemplate はテンプレートの内容を書き換えます
func (s *Store) UpdateTemplate(ctx context.Context, t domain.Template) error {
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET name = ?, description = ?, category = ?, config = ?, updated_at = ? WHERE template_id = ?`,
		t.Name, t.Description, t.Category, string(t.Config), formatTime(t.UpdatedAt), t.TemplateID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
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

// DeleteTemplate はテンプレートを削除します
func (s *Store) DeleteTemplate(ctx context.Context, templateID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE template_id = ?`, templateID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
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

func scanTemplate(row scanner) (domain.Template, error) {
	var (
		t                    domain.Template
		config               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.TemplateID, &t.Name, &t.Description, &t.Category, &config, &t.CreatedBy, &createdAt, &updatedAt); err != nil {
		return domain.Template{}, err
	}
	t.Config = []byte(config)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

