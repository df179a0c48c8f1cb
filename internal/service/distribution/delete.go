package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/store"
)

const errNoSuchDistribution = "NoSuchDistribution"

// DeleteDistribution はディストリビューションを削除します。
// 有効なディストリビューションは無効化を要求して 202 を返し、Deployed になった後の再実行で削除します
func (o *Orchestrator) DeleteDistribution(ctx context.Context, distributionID, user string) common.Result {
	if user == "" {
		user = domain.SystemUser
	}
	d, err := o.load(ctx, distributionID)
	if err != nil {
		return common.Fail("ディストリビューションの削除に失敗しました", err)
	}
	log := o.logger.With("distribution", d.DistributionID, "cloudfrontId", d.ProviderID)

	if d.ProviderID == "" {
		report, err := o.finishDelete(ctx, log, d, user, true)
		if err != nil {
			return common.Fail("ディストリビューションレコードの削除に失敗しました", err)
		}
		return common.Succeed(http.StatusOK, "ディストリビューションレコードを削除しました", report)
	}

	got, err := o.cf.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(d.ProviderID)})
	if common.IsAPIErrorCode(err, errNoSuchDistribution) {
		log.Info("distribution already absent at provider, removing local record")
		report, err := o.finishDelete(ctx, log, d, user, true)
		if err != nil {
			return common.Fail("ディストリビューションレコードの削除に失敗しました", err)
		}
		return common.Succeed(http.StatusOK, "CloudFront上に存在しないためローカルレコードを削除しました", report)
	}
	if err != nil {
		return common.Fail("ディストリビューションの削除に失敗しました", common.NewProviderError("ディストリビューションの取得に失敗", err))
	}

	cfg := got.Distribution.DistributionConfig
	if cfg != nil && aws.ToBool(cfg.Enabled) {
		cfg.Enabled = aws.Bool(false)
		_, err := o.cf.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
			Id:                 aws.String(d.ProviderID),
			IfMatch:            got.ETag,
			DistributionConfig: cfg,
		})
		if err != nil {
			return common.Fail("ディストリビューションの無効化に失敗しました", common.NewProviderError("ディストリビューションの無効化に失敗", err))
		}
		if _, err := o.statuses.TransitionWith(ctx, d, domain.StatusDisabling, domain.ActionDisableRequested, user, nil); err != nil {
			log.Warn("disabling status not recorded", "error", err)
		}
		log.Info("distribution disable requested")
		return common.Succeed(http.StatusAccepted, "ディストリビューションを無効化しています。デプロイ完了後に再度削除してください", DeleteReport{DistributionID: d.DistributionID})
	}

	live := domain.Status(aws.ToString(got.Distribution.Status))
	if live != domain.StatusDeployed {
		return common.Fail("ディストリビューションの削除に失敗しました",
			common.NewConflictError("ディストリビューションはまだ %s です。Deployed になってから削除してください", live))
	}

	_, err = o.cf.DeleteDistribution(ctx, &cloudfront.DeleteDistributionInput{
		Id:      aws.String(d.ProviderID),
		IfMatch: got.ETag,
	})
	if err != nil && !common.IsAPIErrorCode(err, errNoSuchDistribution) {
		return common.Fail("ディストリビューションの削除に失敗しました", common.NewProviderError("ディストリビューションの削除に失敗", err))
	}
	report, err := o.finishDelete(ctx, log, d, user, false)
	if err != nil {
		return common.Fail("ディストリビューションレコードの削除に失敗しました", err)
	}
	report.ProviderDeleted = true
	return common.Succeed(http.StatusOK, "ディストリビューションを削除しました", report)
}

// finishDelete は付随リソースを片付けてからローカルレコードを削除します。
// 付随リソースの失敗は警告として残し、レコード削除の失敗だけをエラーにします
func (o *Orchestrator) finishDelete(ctx context.Context, log *slog.Logger, d domain.Distribution, user string, absent bool) (*DeleteReport, error) {
	report := &DeleteReport{DistributionID: d.DistributionID, ProviderAbsent: absent}
	warn := func(msg string, err error) {
		log.Warn(msg, "error", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	if d.EdgeFunctionID != "" {
		o.teardownEdge(ctx, d.EdgeFunctionID, warn)
	}

	var originIDs []string
	if d.MultiOrigin != nil {
		originIDs = d.MultiOrigin.OriginIDs()
	}
	if d.AccessIdentityID != "" {
		origins := o.resolveEach(ctx, originIDs)
		if len(origins) > 0 {
			for item, msg := range common.FailedItems(o.access.RevokeOrigins(ctx, origins, d.AccessIdentityID)) {
				warn("bucket policy not revoked for "+item, errors.New(msg))
			}
		}
		if err := o.access.DeleteIdentity(ctx, d.AccessIdentityID); err != nil {
			warn("access identity not deleted", err)
		}
	}
	if len(originIDs) > 0 && d.ARN != "" {
		for item, msg := range common.FailedItems(o.origins.Dissociate(ctx, originIDs, d.ARN)) {
			warn("origin association not removed for "+item, errors.New(msg))
		}
	}

	if err := o.store.DeleteDistribution(ctx, d.DistributionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("ディストリビューションレコードの削除に失敗: %w", err)
	}
	entry := domain.HistoryEntry{
		DistributionID: d.DistributionID,
		Timestamp:      o.clock.Now(),
		Action:         domain.ActionDeleted,
		User:           user,
		Version:        d.Version,
		PreviousStatus: d.Status,
		Details:        map[string]string{"cloudfrontId": d.ProviderID},
	}
	if err := o.store.AppendHistory(ctx, entry); err != nil {
		log.Warn("history append failed", "error", err)
	}
	log.Info("distribution deleted", "providerAbsent", absent, "warnings", len(report.Warnings))
	return report, nil
}

// teardownEdge はエッジ関数を削除します。レプリカが残っていて削除できない場合はレコードを孤立扱いにします
func (o *Orchestrator) teardownEdge(ctx context.Context, functionID string, warn func(string, error)) {
	fn, err := o.store.GetEdgeFunction(ctx, functionID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		warn("edge function record not loaded", err)
		return
	}
	if err := o.deployer.Teardown(ctx, fn.FunctionName); err != nil {
		warn("edge function not deleted, marking orphaned", err)
		if err := o.store.UpdateEdgeFunctionStatus(ctx, functionID, domain.EdgeFunctionOrphan, o.clock.Now()); err != nil {
			warn("edge function record not marked orphaned", err)
		}
		return
	}
	if err := o.store.DeleteEdgeFunction(ctx, functionID); err != nil {
		warn("edge function record not deleted", err)
	}
}

// resolveEach は存在するオリジンだけを返します。削除済みのオリジンは無視します
func (o *Orchestrator) resolveEach(ctx context.Context, originIDs []string) []domain.Origin {
	var out []domain.Origin
	for _, id := range originIDs {
		resolved, err := o.origins.Resolve(ctx, []string{id})
		if err != nil {
			o.logger.Debug("origin skipped during cleanup", "origin", id, "error", err)
			continue
		}
		out = append(out, resolved...)
	}
	return out
}

func (o *Orchestrator) load(ctx context.Context, distributionID string) (domain.Distribution, error) {
	d, err := o.store.GetDistribution(ctx, distributionID)
	if errors.Is(err, store.ErrNotFound) {
		return d, common.NewNotFoundError("ディストリビューション", distributionID)
	}
	if err != nil {
		return d, fmt.Errorf("ディストリビューションの取得に失敗: %w", err)
	}
	return d, nil
}
