// Package reconcile はローカルに保存したディストリビューションの状態をCloudFrontの実状態に追従させます。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"

	"geocdn/internal/clock"
	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/store"
)

// CloudFrontAPI は cloudfront.Client のうち状態照合で使う操作
type CloudFrontAPI interface {
	GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)
	GetDistributionConfig(ctx context.Context, params *cloudfront.GetDistributionConfigInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionConfigOutput, error)
	UpdateDistribution(ctx context.Context, params *cloudfront.UpdateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error)
}

// Store は照合で読み書きするレコード
type Store interface {
	store.Distributions
	store.History
}

// Outcome は1回の照合結果
type Outcome struct {
	DistributionID string        `json:"distributionId"`
	PreviousStatus domain.Status `json:"previousStatus"`
	Status         domain.Status `json:"status"`
	Changed        bool          `json:"changed"`
	Version        int64         `json:"version"`
	Nudged         bool          `json:"nudged"`
}

// Reconciler は状態照合器
type Reconciler struct {
	cf     CloudFrontAPI
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewReconciler は Reconciler を作成します
func NewReconciler(cf CloudFrontAPI, st Store, c clock.Clock, logger *slog.Logger) *Reconciler {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cf: cf, store: st, clock: c, logger: logger}
}

// Reconcile はCloudFrontの現在の状態を読み、変化があれば保存して履歴を追記します。
// 状態が変わっていなければ何も書き込みません
func (r *Reconciler) Reconcile(ctx context.Context, distributionID string) (*Outcome, error) {
	d, err := r.load(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	if d.ProviderID == "" {
		return nil, common.NewValidationError("ディストリビューション '%s' にはCloudFront IDがありません", distributionID)
	}
	live, enabled, err := r.liveStatus(ctx, d.ProviderID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{DistributionID: d.DistributionID, PreviousStatus: d.Status, Status: d.Status, Version: d.Version}
	if live == d.Status {
		r.logger.Debug("status unchanged", "distribution", d.DistributionID, "status", live)
		return outcome, nil
	}

	applied, err := r.Transition(ctx, d, live, domain.SystemUser, nil)
	if err != nil {
		return nil, err
	}
	outcome.Status = live
	if !applied {
		// 競合した照合が同じ遷移を先に書き込んだ
		return outcome, nil
	}
	outcome.Changed = true
	outcome.Version = d.Version + 1

	if d.NeedsPropagationNudge(d.Status, live) {
		if !enabled {
			// 無効化済みは削除待ちなので、設定を書き換えて再デプロイさせない
			r.logger.Info("nudge skipped for disabled distribution", "distribution", d.DistributionID, "cloudfrontId", d.ProviderID)
			return outcome, nil
		}
		if err := r.Nudge(ctx, d.ProviderID); err != nil {
			r.logger.Warn("edge propagation nudge failed", "distribution", d.DistributionID, "cloudfrontId", d.ProviderID, "error", err)
		} else {
			outcome.Nudged = true
		}
	}
	return outcome, nil
}

// Transition はバージョンを条件に状態を書き換え、STATUS_CHANGED 履歴を追記します。
// 他の照合が先に書き込んでいた場合は false を返し、履歴は追記しません
func (r *Reconciler) Transition(ctx context.Context, d domain.Distribution, to domain.Status, user string, details map[string]string) (bool, error) {
	return r.TransitionWith(ctx, d, to, domain.ActionStatusChanged, user, details)
}

// TransitionWith は履歴の操作種別を指定して Transition を行います
func (r *Reconciler) TransitionWith(ctx context.Context, d domain.Distribution, to domain.Status, action domain.HistoryAction, user string, details map[string]string) (bool, error) {
	now := r.clock.Now()
	err := r.store.UpdateStatus(ctx, d.DistributionID, d.Version, to, now)
	switch {
	case errors.Is(err, store.ErrConflict):
		r.logger.Info("status already updated by another reconciliation", "distribution", d.DistributionID, "expectedVersion", d.Version)
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		return false, common.NewNotFoundError("ディストリビューション", d.DistributionID)
	case err != nil:
		return false, fmt.Errorf("状態の保存に失敗: %w", err)
	}

	entry := domain.HistoryEntry{
		DistributionID: d.DistributionID,
		Timestamp:      now,
		Action:         action,
		User:           user,
		Version:        d.Version + 1,
		PreviousStatus: d.Status,
		NewStatus:      to,
		Details:        details,
	}
	if err := r.store.AppendHistory(ctx, entry); err != nil {
		r.logger.Warn("history append failed", "distribution", d.DistributionID, "error", err)
	}
	r.logger.Info("status changed", "distribution", d.DistributionID, "from", d.Status, "to", to, "version", d.Version+1)
	return true, nil
}

// Nudge はコメント欄のマーカーだけを書き換える設定更新を行い、エッジ関数の再レプリケーションを促します
func (r *Reconciler) Nudge(ctx context.Context, providerID string) error {
	got, err := r.cf.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{Id: aws.String(providerID)})
	if err != nil {
		return common.NewProviderError("ディストリビューション設定の取得に失敗", err)
	}
	cfg := got.DistributionConfig
	cfg.Comment = aws.String(NudgeComment(aws.ToString(cfg.Comment), r.clock.Now()))
	_, err = r.cf.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(providerID),
		IfMatch:            got.ETag,
		DistributionConfig: cfg,
	})
	if err != nil {
		return common.NewProviderError("ディストリビューション設定の更新に失敗", err)
	}
	r.logger.Info("edge propagation nudged", "cloudfrontId", providerID, "comment", aws.ToString(cfg.Comment))
	return nil
}

// StatusView は状態照会の結果
type StatusView struct {
	DistributionID string        `json:"distributionId"`
	ProviderID     string        `json:"cloudfrontId"`
	Status         domain.Status `json:"status"`
	Enabled        *bool         `json:"enabled,omitempty"`
	Live           bool          `json:"live"`
	Version        int64         `json:"version"`
}

// Status はCloudFrontの現在の状態を返します。取得できない場合は保存済みの状態を返します
func (r *Reconciler) Status(ctx context.Context, distributionID string) (*StatusView, error) {
	d, err := r.load(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	view := &StatusView{DistributionID: d.DistributionID, ProviderID: d.ProviderID, Status: d.Status, Version: d.Version}
	if d.ProviderID == "" {
		return view, nil
	}
	live, enabled, err := r.liveStatus(ctx, d.ProviderID)
	if err != nil {
		r.logger.Warn("live status unavailable, using stored status", "distribution", d.DistributionID, "error", err)
		return view, nil
	}
	view.Status = live
	view.Enabled = &enabled
	view.Live = true
	return view, nil
}

func (r *Reconciler) load(ctx context.Context, distributionID string) (domain.Distribution, error) {
	d, err := r.store.GetDistribution(ctx, distributionID)
	if errors.Is(err, store.ErrNotFound) {
		return d, common.NewNotFoundError("ディストリビューション", distributionID)
	}
	if err != nil {
		return d, fmt.Errorf("ディストリビューションの取得に失敗: %w", err)
	}
	return d, nil
}

func (r *Reconciler) liveStatus(ctx context.Context, providerID string) (domain.Status, bool, error) {
	out, err := r.cf.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(providerID)})
	if err != nil {
		return "", false, common.NewProviderError("ディストリビューションの取得に失敗", err)
	}
	enabled := false
	if out.Distribution.DistributionConfig != nil {
		enabled = aws.ToBool(out.Distribution.DistributionConfig.Enabled)
	}
	return domain.Status(aws.ToString(out.Distribution.Status)), enabled, nil
}
