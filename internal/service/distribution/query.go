package distribution

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/store"
)

// DefaultHistoryLimit は Get で返す履歴の件数
const DefaultHistoryLimit = 10

// Get はレコードと直近の履歴を返します
func (o *Orchestrator) Get(ctx context.Context, distributionID string, historyLimit int) (*Detail, error) {
	d, err := o.load(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	history, err := o.store.ListHistory(ctx, distributionID, historyLimit)
	if err != nil {
		o.logger.Warn("history unavailable", "distribution", distributionID, "error", err)
		history = nil
	}
	return &Detail{Distribution: d, History: history}, nil
}

// List は名前がフィルタに一致するディストリビューションを作成日時の新しい順に返します
func (o *Orchestrator) List(ctx context.Context, filter string) ([]domain.Distribution, error) {
	all, err := o.store.ListDistributions(ctx)
	if err != nil {
		return nil, fmt.Errorf("ディストリビューション一覧の取得に失敗: %w", err)
	}
	out := common.FilterBy(all, filter, func(d domain.Distribution) string { return d.Name })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// History は履歴を新しい順に返します。limit が 0 以下なら全件です
func (o *Orchestrator) History(ctx context.Context, distributionID string, limit int) ([]domain.HistoryEntry, error) {
	if _, err := o.load(ctx, distributionID); err != nil {
		return nil, err
	}
	return o.store.ListHistory(ctx, distributionID, limit)
}

// MetadataUpdate は UpdateMetadata の入力。nil の項目は変更しません
type MetadataUpdate struct {
	Name        *string
	Description *string
	User        string
}

// UpdateMetadata は名前と説明だけを更新します。CloudFront側の構成は変更しません
func (o *Orchestrator) UpdateMetadata(ctx context.Context, distributionID string, req MetadataUpdate) (*domain.Distribution, error) {
	d, err := o.load(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	if req.Name == nil && req.Description == nil {
		return nil, common.NewValidationError("name か description のどちらかを指定してください")
	}
	details := map[string]string{}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, common.NewValidationError("ディストリビューション名は空にできません")
		}
		details["name"] = *req.Name
		d.Name = *req.Name
	}
	if req.Description != nil {
		details["description"] = *req.Description
		d.Description = *req.Description
	}

	now := o.clock.Now()
	err = o.store.UpdateMetadata(ctx, d.DistributionID, d.Name, d.Description, now)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NewNotFoundError("ディストリビューション", distributionID)
	}
	if err != nil {
		return nil, fmt.Errorf("メタデータの更新に失敗: %w", err)
	}
	d.UpdatedAt = now

	user := req.User
	if user == "" {
		user = domain.SystemUser
	}
	entry := domain.HistoryEntry{
		DistributionID: d.DistributionID,
		Timestamp:      now,
		Action:         domain.ActionUpdateAttempted,
		User:           user,
		Version:        d.Version,
		Details:        details,
	}
	if err := o.store.AppendHistory(ctx, entry); err != nil {
		o.logger.Warn("history append failed", "distribution", d.DistributionID, "error", err)
	}
	return &d, nil
}
