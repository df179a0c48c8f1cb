package distribution

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/edge"
)

const (
	singleOriginID     = "default-origin"
	defaultRootObject  = "index.html"
	multiOriginComment = "Multi-origin distribution: "
)

// normalizeOriginPath は先頭に / を付け、末尾の / を取り除きます。/ だけなら空文字です
func normalizeOriginPath(p string) string {
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p == "/" {
		return ""
	}
	return strings.TrimSuffix(p, "/")
}

func callerReference(name string, now time.Time) string {
	return fmt.Sprintf("%s-%d", name, now.UnixMilli())
}

func methods(ms ...cftypes.Method) []cftypes.Method { return ms }

// singleOriginConfig はオリジンドメイン1つ分の既定構成を作ります
func (o *Orchestrator) singleOriginConfig(name, originDomain, originPath string, now time.Time) *cftypes.DistributionConfig {
	allowed := methods(cftypes.MethodGet, cftypes.MethodHead, cftypes.MethodOptions, cftypes.MethodPut, cftypes.MethodPost, cftypes.MethodPatch, cftypes.MethodDelete)
	cached := methods(cftypes.MethodGet, cftypes.MethodHead, cftypes.MethodOptions)
	return &cftypes.DistributionConfig{
		CallerReference:   aws.String(callerReference(name, now)),
		Comment:           aws.String(name),
		Enabled:           aws.Bool(true),
		DefaultRootObject: aws.String(defaultRootObject),
		Origins: &cftypes.Origins{
			Quantity: aws.Int32(1),
			Items: []cftypes.Origin{{
				Id:         aws.String(singleOriginID),
				DomainName: aws.String(originDomain),
				OriginPath: aws.String(normalizeOriginPath(originPath)),
				CustomOriginConfig: &cftypes.CustomOriginConfig{
					HTTPPort:             aws.Int32(80),
					HTTPSPort:            aws.Int32(443),
					OriginProtocolPolicy: cftypes.OriginProtocolPolicyHttpsOnly,
					OriginSslProtocols: &cftypes.OriginSslProtocols{
						Quantity: aws.Int32(1),
						Items:    []cftypes.SslProtocol{cftypes.SslProtocolTLSv12},
					},
					OriginReadTimeout:      aws.Int32(30),
					OriginKeepaliveTimeout: aws.Int32(5),
				},
			}},
		},
		DefaultCacheBehavior: &cftypes.DefaultCacheBehavior{
			TargetOriginId:       aws.String(singleOriginID),
			ViewerProtocolPolicy: cftypes.ViewerProtocolPolicyRedirectToHttps,
			AllowedMethods: &cftypes.AllowedMethods{
				Quantity:      aws.Int32(int32(len(allowed))),
				Items:         allowed,
				CachedMethods: &cftypes.CachedMethods{Quantity: aws.Int32(int32(len(cached))), Items: cached},
			},
			CachePolicyId:  aws.String(o.cachePolicyID),
			Compress:       aws.Bool(false),
			TrustedSigners: &cftypes.TrustedSigners{Enabled: aws.Bool(false), Quantity: aws.Int32(0)},
		},
		PriceClass:  cftypes.PriceClassPriceClass100,
		HttpVersion: cftypes.HttpVersionHttp2and3,
	}
}

// parseConfig は利用者が渡したCloudFront構成を読み込み、必須項目を補います
func (o *Orchestrator) parseConfig(name string, raw json.RawMessage, now time.Time) (*cftypes.DistributionConfig, error) {
	var cfg cftypes.DistributionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, common.NewValidationError("config がCloudFrontの構成として読み込めません: %v", err)
	}
	cfg.CallerReference = aws.String(callerReference(name, now))
	if cfg.Enabled == nil {
		cfg.Enabled = aws.Bool(true)
	}
	if cfg.Comment == nil {
		cfg.Comment = aws.String(name)
	}
	if cfg.DefaultCacheBehavior != nil && cfg.DefaultCacheBehavior.CachePolicyId == nil && cfg.DefaultCacheBehavior.ForwardedValues == nil {
		cfg.DefaultCacheBehavior.CachePolicyId = aws.String(o.cachePolicyID)
		cfg.DefaultCacheBehavior.Compress = aws.Bool(false)
	}
	return &cfg, nil
}

// multiOriginConfig は全オリジンが同じOAIを共有し、既定のキャッシュ動作の
// origin-request にルーティング関数の公開バージョンを関連付けた構成を作ります
func (o *Orchestrator) multiOriginConfig(name string, base *cftypes.DistributionConfig, origins []domain.Origin, identity domain.AccessIdentity, dep *edge.Deployment, now time.Time) *cftypes.DistributionConfig {
	cfg := base
	if cfg == nil {
		cfg = &cftypes.DistributionConfig{}
	}
	cfg.CallerReference = aws.String(callerReference(name, now))
	if cfg.Comment == nil {
		cfg.Comment = aws.String(multiOriginComment + name)
	}
	if cfg.Enabled == nil {
		cfg.Enabled = aws.Bool(true)
	}
	if cfg.DefaultRootObject == nil {
		cfg.DefaultRootObject = aws.String(defaultRootObject)
	}
	if cfg.PriceClass == "" {
		cfg.PriceClass = cftypes.PriceClassPriceClass100
	}
	if cfg.HttpVersion == "" {
		cfg.HttpVersion = cftypes.HttpVersionHttp2and3
	}

	items := make([]cftypes.Origin, 0, len(origins))
	for _, origin := range origins {
		items = append(items, cftypes.Origin{
			Id:         aws.String(origin.OriginID),
			DomainName: aws.String(origin.StorageDomain(o.origins.StorageSuffix())),
			OriginPath: aws.String(""),
			S3OriginConfig: &cftypes.S3OriginConfig{
				OriginAccessIdentity: aws.String("origin-access-identity/cloudfront/" + identity.IdentityID),
			},
			ConnectionAttempts: aws.Int32(3),
			ConnectionTimeout:  aws.Int32(10),
			OriginShield:       &cftypes.OriginShield{Enabled: aws.Bool(false)},
		})
	}
	cfg.Origins = &cftypes.Origins{Quantity: aws.Int32(int32(len(items))), Items: items}

	viewerPolicy := cftypes.ViewerProtocolPolicyRedirectToHttps
	if base != nil && base.DefaultCacheBehavior != nil && base.DefaultCacheBehavior.ViewerProtocolPolicy != "" {
		viewerPolicy = base.DefaultCacheBehavior.ViewerProtocolPolicy
	}
	getHead := methods(cftypes.MethodGet, cftypes.MethodHead)
	cfg.DefaultCacheBehavior = &cftypes.DefaultCacheBehavior{
		TargetOriginId:       aws.String(origins[0].OriginID),
		ViewerProtocolPolicy: viewerPolicy,
		AllowedMethods: &cftypes.AllowedMethods{
			Quantity:      aws.Int32(2),
			Items:         getHead,
			CachedMethods: &cftypes.CachedMethods{Quantity: aws.Int32(2), Items: getHead},
		},
		CachePolicyId: aws.String(o.cachePolicyID),
		Compress:      aws.Bool(false),
		LambdaFunctionAssociations: &cftypes.LambdaFunctionAssociations{
			Quantity: aws.Int32(1),
			Items: []cftypes.LambdaFunctionAssociation{{
				LambdaFunctionARN: aws.String(dep.VersionedARN),
				EventType:         cftypes.EventTypeOriginRequest,
				IncludeBody:       aws.Bool(false),
			}},
		},
		TrustedSigners:   &cftypes.TrustedSigners{Enabled: aws.Bool(false), Quantity: aws.Int32(0)},
		TrustedKeyGroups: &cftypes.TrustedKeyGroups{Enabled: aws.Bool(false), Quantity: aws.Int32(0)},
	}
	return cfg
}
