package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"geocdn/internal/clock"
	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/distribution"
	"geocdn/internal/store"
)

// Registry はテンプレートカタログ
type Registry struct {
	store   store.Templates
	creator Creator
	clock   clock.Clock
	logger  *slog.Logger
}

// NewRegistry は Registry を作成します
func NewRegistry(st store.Templates, creator Creator, opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{store: st, creator: creator, clock: opts.Clock, logger: opts.Logger}
}

// Create はテンプレートを登録します。証明書が指定されていれば config に反映します
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*domain.Template, error) {
	if req.Name == "" {
		return nil, common.NewValidationError("テンプレート名は必須です")
	}
	cfg, err := prepareConfig(req.Config, req.Certificate)
	if err != nil {
		return nil, err
	}
	category := req.Category
	if category == "" {
		category = domain.DefaultTemplateCategory
	}
	now := r.clock.Now()
	t := domain.Template{
		TemplateID:  domain.NewID("tmpl"),
		Name:        req.Name,
		Description: req.Description,
		Category:    category,
		Config:      cfg,
		CreatedBy:   req.User,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.PutTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("テンプレートの保存に失敗: %w", err)
	}
	r.logger.Info("template registered", "template", t.TemplateID, "name", t.Name)
	return &t, nil
}

// Get はテンプレートを取得します
func (r *Registry) Get(ctx context.Context, templateID string) (*domain.Template, error) {
	t, err := r.store.GetTemplate(ctx, templateID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NewNotFoundError("テンプレート", templateID)
	}
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗: %w", err)
	}
	return &t, nil
}

// List はテンプレート一覧を返します。filter は名前に対する部分一致またはglobです
func (r *Registry) List(ctx context.Context, filter string) ([]domain.Template, error) {
	templates, err := r.store.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("テンプレート一覧の取得に失敗: %w", err)
	}
	return common.FilterBy(templates, filter, func(t domain.Template) string { return t.Name }), nil
}

// Update は名前と config を置き換えます
func (r *Registry) Update(ctx context.Context, templateID string, req UpdateRequest) (*domain.Template, error) {
	if req.Name == "" {
		return nil, common.NewValidationError("テンプレート名は必須です")
	}
	cfg, err := prepareConfig(req.Config, req.Certificate)
	if err != nil {
		return nil, err
	}
	t, err := r.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	t.Name = req.Name
	t.Config = cfg
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Category != nil {
		t.Category = *req.Category
		if t.Category == "" {
			t.Category = domain.DefaultTemplateCategory
		}
	}
	t.UpdatedAt = r.clock.Now()

	err = r.store.UpdateTemplate(ctx, *t)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NewNotFoundError("テンプレート", templateID)
	}
	if err != nil {
		return nil, fmt.Errorf("テンプレートの更新に失敗: %w", err)
	}
	return t, nil
}

// Delete はテンプレートを削除します。作成済みのディストリビューションには影響しません
func (r *Registry) Delete(ctx context.Context, templateID string) error {
	err := r.store.DeleteTemplate(ctx, templateID)
	if errors.Is(err, store.ErrNotFound) {
		return common.NewNotFoundError("テンプレート", templateID)
	}
	if err != nil {
		return fmt.Errorf("テンプレートの削除に失敗: %w", err)
	}
	r.logger.Info("template deleted", "template", templateID)
	return nil
}

// Apply はテンプレートの構成に上書きを重ねてディストリビューションを作成します
func (r *Registry) Apply(ctx context.Context, templateID string, req ApplyRequest) common.Result {
	res := r.apply(ctx, templateID, req)
	if !res.Success {
		return res.WithExtra("templateId", templateID)
	}
	return res
}

func (r *Registry) apply(ctx context.Context, templateID string, req ApplyRequest) common.Result {
	if req.Name == "" {
		return common.Fail("テンプレートの適用に失敗しました", common.NewValidationError("ディストリビューション名は必須です"))
	}
	t, err := r.Get(ctx, templateID)
	if err != nil {
		return common.Fail("テンプレートの適用に失敗しました", err)
	}
	cfg, err := decodeObject(t.Config)
	if err != nil {
		return common.Fail("テンプレートの適用に失敗しました", fmt.Errorf("保存済みの config が壊れています: %w", err))
	}
	cfg["Comment"] = req.Name
	if len(req.Overrides) > 0 {
		overrides, err := decodeObject(req.Overrides)
		if err != nil {
			return common.Fail("テンプレートの適用に失敗しました", err)
		}
		for k, v := range overrides {
			cfg[k] = v
		}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return common.Fail("テンプレートの適用に失敗しました", err)
	}

	res := r.creator.CreateDistribution(ctx, distribution.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		Config:      raw,
		MultiOrigin: req.MultiOrigin,
		User:        req.User,
	})
	if !res.Success {
		return res.WithExtra("templateName", t.Name)
	}
	d, _ := res.Data.(*domain.Distribution)
	r.logger.Info("template applied", "template", t.TemplateID, "name", req.Name)
	return common.Succeed(http.StatusCreated, "テンプレートからディストリビューションを作成しました", &Applied{
		Distribution: d,
		TemplateID:   t.TemplateID,
		TemplateName: t.Name,
	})
}
