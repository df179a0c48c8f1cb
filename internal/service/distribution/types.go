// Package distribution はオリジン、ルーティング関数、アクセス制御をまとめて1つのCloudFront
// ディストリビューションとして作成・削除し、そのローカルレコードを管理します。
package distribution

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudfront"

	"geocdn/internal/clock"
	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/edge"
	"geocdn/internal/service/workflow"
	"geocdn/internal/store"
)

// DefaultCachePolicyID は CachingOptimized マネージドキャッシュポリシー
const DefaultCachePolicyID = "658327ea-f89d-4fab-a63d-7e88639e58f6"

// CloudFrontAPI は cloudfront.Client のうちディストリビューション管理で使う操作
type CloudFrontAPI interface {
	CreateDistribution(ctx context.Context, params *cloudfront.CreateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateDistributionOutput, error)
	GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)
	UpdateDistribution(ctx context.Context, params *cloudfront.UpdateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error)
	DeleteDistribution(ctx context.Context, params *cloudfront.DeleteDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteDistributionOutput, error)
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
	GetInvalidation(ctx context.Context, params *cloudfront.GetInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetInvalidationOutput, error)
}

// Store はオーケストレーターが読み書きするレコード
type Store interface {
	store.Distributions
	store.EdgeFunctions
	store.History
}

// OriginCatalog はオリジンの解決と関連付け
type OriginCatalog interface {
	Resolve(ctx context.Context, originIDs []string) ([]domain.Origin, error)
	Associate(ctx context.Context, originIDs []string, distributionArn string) []common.ProcessResult
	Dissociate(ctx context.Context, originIDs []string, distributionArn string) []common.ProcessResult
	StorageSuffix() string
}

// AccessProvisioner はOAIとバケットポリシーの管理
type AccessProvisioner interface {
	CreateIdentity(ctx context.Context, distributionName, callerReference string) (domain.AccessIdentity, error)
	DeleteIdentity(ctx context.Context, identityID string) error
	GrantOrigins(ctx context.Context, origins []domain.Origin, identityID, distributionArn string) []common.ProcessResult
	RevokeOrigins(ctx context.Context, origins []domain.Origin, identityID string) []common.ProcessResult
}

// EdgeDeployer はルーティング関数の公開と削除。
// Deploy は関数の作成後に失敗した場合、作成済みの Deployment をエラーと一緒に返します
type EdgeDeployer interface {
	Deploy(ctx context.Context, name, code string) (*edge.Deployment, error)
	Teardown(ctx context.Context, functionName string) error
}

// Transitioner は条件付きの状態遷移を行います
type Transitioner interface {
	TransitionWith(ctx context.Context, d domain.Distribution, to domain.Status, action domain.HistoryAction, user string, details map[string]string) (bool, error)
}

// Deps は Orchestrator の依存
type Deps struct {
	CloudFront    CloudFrontAPI
	Store         Store
	Origins       OriginCatalog
	Access        AccessProvisioner
	Deployer      EdgeDeployer
	Statuses      Transitioner
	Trigger       workflow.Trigger
	CachePolicyID string
	Clock         clock.Clock
	Logger        *slog.Logger
}

// CreateRequest はディストリビューション作成の入力。
// MultiOrigin が nil なら単一オリジン、そうでなければマルチオリジンとして作成します
type CreateRequest struct {
	Name         string                    `json:"name"`
	Description  string                    `json:"description,omitempty"`
	OriginDomain string                    `json:"originDomain,omitempty"`
	OriginPath   string                    `json:"originPath,omitempty"`
	Config       json.RawMessage           `json:"config,omitempty"`
	MultiOrigin  *domain.MultiOriginConfig `json:"multiOriginConfig,omitempty"`
	User         string                    `json:"-"`
}

// DeleteReport は削除処理の結果
type DeleteReport struct {
	DistributionID  string   `json:"distributionId"`
	ProviderDeleted bool     `json:"cloudfrontDeleted"`
	ProviderAbsent  bool     `json:"cloudfrontAbsent"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Detail はレコードと直近の履歴
type Detail struct {
	Distribution domain.Distribution   `json:"distribution"`
	History      []domain.HistoryEntry `json:"history"`
}

// Invalidation はキャッシュ無効化の結果
type Invalidation struct {
	DistributionID string    `json:"distributionId"`
	InvalidationID string    `json:"invalidationId"`
	Status         string    `json:"status"`
	Paths          []string  `json:"paths"`
	CreateTime     time.Time `json:"createTime"`
}
