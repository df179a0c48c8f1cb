package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"

	"geocdn/internal/clock"
	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/edge"
	"geocdn/internal/service/routing"
	"geocdn/internal/service/workflow"
)

// Orchestrator はディストリビューションのライフサイクルをまとめて実行します
type Orchestrator struct {
	cf            CloudFrontAPI
	store         Store
	origins       OriginCatalog
	access        AccessProvisioner
	deployer      EdgeDeployer
	statuses      Transitioner
	trigger       workflow.Trigger
	cachePolicyID string
	clock         clock.Clock
	logger        *slog.Logger
}

// NewOrchestrator は Orchestrator を作成します
func NewOrchestrator(d Deps) *Orchestrator {
	if d.Trigger == nil {
		d.Trigger = workflow.Noop{}
	}
	if d.CachePolicyID == "" {
		d.CachePolicyID = DefaultCachePolicyID
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Orchestrator{
		cf:            d.CloudFront,
		store:         d.Store,
		origins:       d.Origins,
		access:        d.Access,
		deployer:      d.Deployer,
		statuses:      d.Statuses,
		trigger:       d.Trigger,
		cachePolicyID: d.CachePolicyID,
		clock:         d.Clock,
		logger:        d.Logger,
	}
}

// CreateDistribution はディストリビューションを作成します。
// 失敗は例外ではなく分類付きの Result として返し、取り残されたリソースは Details に載せます
func (o *Orchestrator) CreateDistribution(ctx context.Context, req CreateRequest) common.Result {
	var (
		d      *domain.Distribution
		extras map[string]string
		err    error
	)
	if req.MultiOrigin != nil {
		d, extras, err = o.createMulti(ctx, req)
	} else {
		d, err = o.createSingle(ctx, req)
	}
	if err != nil {
		res := common.Fail("ディストリビューションの作成に失敗しました", err)
		for k, v := range extras {
			res = res.WithExtra(k, v)
		}
		return res
	}
	return common.Succeed(http.StatusCreated, "ディストリビューションの作成を開始しました", d)
}

func validateName(name string) error {
	if name == "" {
		return common.NewValidationError("ディストリビューション名は必須です")
	}
	return nil
}

func (o *Orchestrator) createSingle(ctx context.Context, req CreateRequest) (*domain.Distribution, error) {
	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	now := o.clock.Now()
	var cfg *cftypes.DistributionConfig
	switch {
	case len(req.Config) > 0:
		parsed, err := o.parseConfig(req.Name, req.Config, now)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	case req.OriginDomain != "":
		cfg = o.singleOriginConfig(req.Name, req.OriginDomain, req.OriginPath, now)
	default:
		return nil, common.NewValidationError("config か originDomain のどちらかを指定してください")
	}

	out, err := o.cf.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{DistributionConfig: cfg})
	if err != nil {
		return nil, common.NewProviderError("CloudFrontディストリビューションの作成に失敗", err)
	}
	d := o.newRecord(req, out.Distribution, cfg, now)
	if err := o.store.PutDistribution(ctx, d); err != nil {
		return nil, fmt.Errorf("ディストリビューションレコードの保存に失敗 (CloudFront ID: %s): %w", d.ProviderID, err)
	}
	o.afterCreate(ctx, d)
	return &d, nil
}

func (o *Orchestrator) createMulti(ctx context.Context, req CreateRequest) (*domain.Distribution, map[string]string, error) {
	if err := validateName(req.Name); err != nil {
		return nil, nil, err
	}
	mc := req.MultiOrigin
	if mc.DefaultOriginID == "" {
		return nil, nil, common.NewValidationError("multiOriginConfig.defaultOriginId は必須です")
	}
	if mc.PresetKey == "" {
		return nil, nil, common.NewValidationError("multiOriginConfig.preset は必須です")
	}
	now := o.clock.Now()
	var base *cftypes.DistributionConfig
	if len(req.Config) > 0 {
		parsed, err := o.parseConfig(req.Name, req.Config, now)
		if err != nil {
			return nil, nil, err
		}
		base = parsed
	}

	origins, err := o.origins.Resolve(ctx, mc.OriginIDs())
	if err != nil {
		return nil, nil, err
	}
	// 生成は純粋関数なので、リモートの変更より前にオリジン数を検証できる
	plan, err := routing.Generate(routing.Input{
		Default:       origins[0],
		Additional:    origins[1:],
		PresetKey:     mc.PresetKey,
		StorageSuffix: o.origins.StorageSuffix(),
	})
	if err != nil {
		return nil, nil, err
	}

	log := o.logger.With("distribution", req.Name, "preset", mc.PresetKey)
	identity, err := o.access.CreateIdentity(ctx, req.Name, fmt.Sprintf("%s-oai-%d", req.Name, now.UnixMilli()))
	if err != nil {
		return nil, nil, err
	}
	extras := map[string]string{"accessIdentityId": identity.IdentityID}

	functionID := domain.NewID("func")
	functionName := edge.FunctionName(req.Name, functionID)
	extras["edgeFunctionId"] = functionID
	extras["edgeFunctionName"] = functionName

	fn := domain.EdgeFunction{
		FunctionID:    functionID,
		FunctionName:  functionName,
		CodeContent:   plan.Code,
		Origins:       plan.Snapshots(),
		RegionMapping: plan.Table,
		PresetKey:     plan.PresetKey,
		Status:        domain.EdgeFunctionActive,
		CreatedBy:     req.User,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	dep, err := o.deployer.Deploy(ctx, functionName, plan.Code)
	if err != nil {
		if dep == nil {
			log.Error("edge function deployment failed, access identity left in place", "identity", identity.IdentityID, "error", err)
			return nil, extras, err
		}
		// 関数は作成済みなので孤立レコードとして残す
		log.Error("edge function created but not activated; resources left for manual cleanup",
			"function", functionID, "name", functionName, "identity", identity.IdentityID, "error", err)
		fn.FunctionARN = dep.FunctionARN
		fn.VersionedARN = dep.VersionedARN
		fn.Status = domain.EdgeFunctionOrphan
		if perr := o.store.PutEdgeFunction(ctx, fn); perr != nil {
			log.Warn("orphaned edge function record not stored", "function", functionID, "error", perr)
		}
		return nil, extras, err
	}

	fn.FunctionName = dep.FunctionName
	fn.FunctionARN = dep.FunctionARN
	fn.VersionedARN = dep.VersionedARN
	if err := o.store.PutEdgeFunction(ctx, fn); err != nil {
		log.Warn("edge function record not stored", "function", functionID, "error", err)
	}

	cfg := o.multiOriginConfig(req.Name, base, origins, identity, dep, now)
	out, err := o.cf.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{DistributionConfig: cfg})
	if err != nil {
		o.markOrphaned(ctx, log, functionID, identity.IdentityID)
		return nil, extras, common.NewProviderError("CloudFrontディストリビューションの作成に失敗", err)
	}
	d := o.newRecord(req, out.Distribution, cfg, now)
	d.IsMultiOrigin = true
	d.MultiOrigin = mc
	d.EdgeFunctionID = functionID
	d.AccessIdentityID = identity.IdentityID
	extras["cloudfrontId"] = d.ProviderID

	granted, failed := common.CollectResults(o.access.GrantOrigins(ctx, origins, identity.IdentityID, d.ARN))
	log.Info("bucket policies updated", "granted", granted, "failed", failed)
	if _, failed := common.CollectResults(o.origins.Associate(ctx, mc.OriginIDs(), d.ARN)); failed > 0 {
		log.Warn("some origin associations were not recorded", "failed", failed)
	}

	if err := d.Validate(); err != nil {
		o.markOrphaned(ctx, log, functionID, identity.IdentityID)
		return nil, extras, fmt.Errorf("ディストリビューションレコードが不正です: %w", err)
	}
	if err := o.store.PutDistribution(ctx, d); err != nil {
		o.markOrphaned(ctx, log, functionID, identity.IdentityID)
		return nil, extras, fmt.Errorf("ディストリビューションレコードの保存に失敗 (CloudFront ID: %s): %w", d.ProviderID, err)
	}
	o.afterCreate(ctx, d)
	return &d, nil, nil
}

// markOrphaned は作成途中で失敗したエッジ関数をカタログ上で孤立扱いにします。削除は運用者に委ねます
func (o *Orchestrator) markOrphaned(ctx context.Context, log *slog.Logger, functionID, identityID string) {
	log.Error("distribution creation failed after edge deployment; resources left for manual cleanup",
		"function", functionID, "identity", identityID)
	if err := o.store.UpdateEdgeFunctionStatus(ctx, functionID, domain.EdgeFunctionOrphan, o.clock.Now()); err != nil {
		log.Warn("edge function record not marked orphaned", "function", functionID, "error", err)
	}
}

func (o *Orchestrator) newRecord(req CreateRequest, dist *cftypes.Distribution, cfg *cftypes.DistributionConfig, now time.Time) domain.Distribution {
	snapshot, err := json.Marshal(cfg)
	if err != nil {
		o.logger.Warn("config snapshot not serialisable", "error", err)
	}
	status := domain.Status(aws.ToString(dist.Status))
	if status == "" {
		status = domain.StatusCreating
	}
	return domain.Distribution{
		DistributionID: domain.NewDistributionID(),
		ProviderID:     aws.ToString(dist.Id),
		Name:           req.Name,
		Description:    req.Description,
		Status:         status,
		DomainName:     aws.ToString(dist.DomainName),
		ARN:            aws.ToString(dist.ARN),
		Config:         snapshot,
		Version:        1,
		CreatedBy:      req.User,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// afterCreate は作成履歴の追記と監視ワークフローの起動を行います。どちらも失敗しても作成は成功のままです
func (o *Orchestrator) afterCreate(ctx context.Context, d domain.Distribution) {
	entry := domain.HistoryEntry{
		DistributionID: d.DistributionID,
		Timestamp:      d.CreatedAt,
		Action:         domain.ActionCreated,
		User:           d.CreatedBy,
		Version:        d.Version,
		NewStatus:      d.Status,
		Details:        map[string]string{"cloudfrontId": d.ProviderID},
	}
	if entry.User == "" {
		entry.User = domain.SystemUser
	}
	if err := o.store.AppendHistory(ctx, entry); err != nil {
		o.logger.Warn("history append failed", "distribution", d.DistributionID, "error", err)
	}
	err := o.trigger.Start(ctx, workflow.Request{
		DistributionID: d.DistributionID,
		ProviderID:     d.ProviderID,
		MultiOrigin:    d.IsMultiOrigin,
		RequestedAt:    o.clock.Now(),
	})
	if err != nil {
		o.logger.Warn("monitor workflow not started", "distribution", d.DistributionID, "error", err)
	}
	o.logger.Info("distribution created", "distribution", d.DistributionID, "cloudfrontId", d.ProviderID, "multiOrigin", d.IsMultiOrigin)
}
