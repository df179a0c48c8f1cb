package distribution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
)

// 無効化の待機設定
const (
	InvalidationCompleted       = "Completed"
	DefaultInvalidationInterval = 10 * time.Second
	DefaultInvalidationTimeout  = 15 * time.Minute
)

// InvalidateRequest はキャッシュ無効化の入力
type InvalidateRequest struct {
	Paths           []string
	CallerReference string
	User            string
}

// Invalidate はディストリビューションのキャッシュを無効化します
func (o *Orchestrator) Invalidate(ctx context.Context, distributionID string, req InvalidateRequest) (*Invalidation, error) {
	if len(req.Paths) == 0 {
		return nil, common.NewValidationError("無効化するパスを1つ以上指定してください")
	}
	for _, p := range req.Paths {
		if !strings.HasPrefix(p, "/") {
			return nil, common.NewValidationError("パスは / で始めてください: %s", p)
		}
	}
	d, err := o.load(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	if d.ProviderID == "" {
		return nil, common.NewConflictError("ディストリビューション %s にCloudFront IDがありません", distributionID)
	}

	now := o.clock.Now()
	callerRef := req.CallerReference
	if callerRef == "" {
		callerRef = fmt.Sprintf("geocdn-%d", now.UnixMilli())
	}
	out, err := o.cf.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(d.ProviderID),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(callerRef),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(int32(len(req.Paths))),
				Items:    req.Paths,
			},
		},
	})
	if err != nil {
		return nil, common.NewProviderError("キャッシュ無効化の作成に失敗", err)
	}
	inv := &Invalidation{
		DistributionID: d.DistributionID,
		InvalidationID: aws.ToString(out.Invalidation.Id),
		Status:         aws.ToString(out.Invalidation.Status),
		Paths:          req.Paths,
		CreateTime:     aws.ToTime(out.Invalidation.CreateTime),
	}

	user := req.User
	if user == "" {
		user = domain.SystemUser
	}
	entry := domain.HistoryEntry{
		DistributionID: d.DistributionID,
		Timestamp:      now,
		Action:         domain.ActionInvalidationCreated,
		User:           user,
		Version:        d.Version,
		Details: map[string]string{
			"invalidationId": inv.InvalidationID,
			"paths":          strings.Join(req.Paths, ","),
		},
	}
	if err := o.store.AppendHistory(ctx, entry); err != nil {
		o.logger.Warn("history append failed", "distribution", d.DistributionID, "error", err)
	}
	o.logger.Info("invalidation created", "distribution", d.DistributionID, "invalidation", inv.InvalidationID, "paths", len(req.Paths))
	return inv, nil
}

// WaitOptions は無効化の待機設定
type WaitOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	OnPoll   func(status string)
}

// WaitForInvalidation は無効化が Completed になるまで待機します
func (o *Orchestrator) WaitForInvalidation(ctx context.Context, providerID, invalidationID string, opts WaitOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInvalidationInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultInvalidationTimeout
	}
	deadline := o.clock.Now().Add(opts.Timeout)
	for {
		out, err := o.cf.GetInvalidation(ctx, &cloudfront.GetInvalidationInput{
			DistributionId: aws.String(providerID),
			Id:             aws.String(invalidationID),
		})
		if err != nil {
			return common.NewProviderError("キャッシュ無効化の取得に失敗", err)
		}
		status := aws.ToString(out.Invalidation.Status)
		if opts.OnPoll != nil {
			opts.OnPoll(status)
		}
		if status == InvalidationCompleted {
			return nil
		}
		if !o.clock.Now().Before(deadline) {
			return fmt.Errorf("キャッシュ無効化 %s が %s 以内に完了しませんでした (status: %s)", invalidationID, opts.Timeout, status)
		}
		o.clock.Sleep(opts.Interval)
	}
}
