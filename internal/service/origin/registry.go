package origin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"geocdn/internal/clock"
	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/store"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Options は Registry の任意設定
type Options struct {
	// AccessControl が nil のときOrigin Access Controlは作成しません
	AccessControl AccessControlAPI
	StorageSuffix string
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Registry はオリジンカタログ
type Registry struct {
	store  store.Origins
	s3For  S3For
	cf     AccessControlAPI
	suffix string
	clock  clock.Clock
	logger *slog.Logger
}

// NewRegistry は Registry を作成します
func NewRegistry(st store.Origins, s3For S3For, opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StorageSuffix == "" {
		opts.StorageSuffix = domain.DefaultStorageSuffix
	}
	return &Registry{store: st, s3For: s3For, cf: opts.AccessControl, suffix: opts.StorageSuffix, clock: opts.Clock, logger: opts.Logger}
}

// StorageSuffix は配信ドメインのサフィックスを返します
func (r *Registry) StorageSuffix() string { return r.suffix }

// Create はバケットを作成し、オリジンとして登録します
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*domain.Origin, error) {
	if req.Name == "" {
		return nil, common.NewValidationError("オリジン名は必須です")
	}
	if !bucketNamePattern.MatchString(req.BucketName) {
		return nil, common.NewValidationError("バケット名 '%s' が不正です（3〜63文字の小文字英数字、ハイフン、ドット）", req.BucketName)
	}
	if req.Region == "" {
		return nil, common.NewValidationError("リージョンは必須です")
	}

	client := r.s3For(req.Region)
	input := &s3.CreateBucketInput{Bucket: aws.String(req.BucketName)}
	// us-east-1 は LocationConstraint を受け付けない
	if req.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(req.Region),
		}
	}
	if _, err := client.CreateBucket(ctx, input); err != nil {
		if common.IsAPIErrorCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
			return nil, common.NewConflictError("バケット '%s' は既に存在します", req.BucketName)
		}
		return nil, common.NewProviderError("バケットの作成に失敗", err)
	}
	r.logger.Info("bucket created", "bucket", req.BucketName, "region", req.Region)

	if req.WebsiteEnabled {
		website := DefaultWebsite
		if req.Website != nil {
			website = *req.Website
		}
		cors := req.CORSRules
		if len(cors) == 0 {
			cors = DefaultCORS
		}
		if err := r.configureWebsite(ctx, client, req.BucketName, website, cors); err != nil {
			return nil, err
		}
	}

	now := r.clock.Now()
	o := domain.Origin{
		OriginID:                domain.NewID("origin"),
		Name:                    req.Name,
		Description:             req.Description,
		BucketName:              req.BucketName,
		Region:                  req.Region,
		WebsiteEnabled:          req.WebsiteEnabled,
		AssociatedDistributions: []string{},
		CreatedBy:               req.CreatedBy,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if req.CreateAccessControl && r.cf != nil {
		id, err := r.createAccessControl(ctx, o)
		if err != nil {
			return nil, err
		}
		o.AccessControlID = id
	}

	if err := r.store.PutOrigin(ctx, o); err != nil {
		return nil, fmt.Errorf("オリジンの保存に失敗: %w", err)
	}
	r.logger.Info("origin registered", "origin", o.OriginID, "bucket", o.BucketName)
	return &o, nil
}

// Get はオリジンを取得します
func (r *Registry) Get(ctx context.Context, originID string) (*domain.Origin, error) {
	o, err := r.store.GetOrigin(ctx, originID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NewNotFoundError("オリジン", originID)
	}
	if err != nil {
		return nil, fmt.Errorf("オリジンの取得に失敗: %w", err)
	}
	return &o, nil
}

// List はオリジン一覧を返します。filter は名前に対する部分一致またはglobです
func (r *Registry) List(ctx context.Context, filter string) ([]domain.Origin, error) {
	origins, err := r.store.ListOrigins(ctx)
	if err != nil {
		return nil, fmt.Errorf("オリジン一覧の取得に失敗: %w", err)
	}
	return common.FilterBy(origins, filter, func(o domain.Origin) string { return o.Name }), nil
}

// Resolve はID順にオリジンを取得します。1つでも存在しなければ NotFoundError を返します
func (r *Registry) Resolve(ctx context.Context, originIDs []string) ([]domain.Origin, error) {
	origins := make([]domain.Origin, 0, len(originIDs))
	for _, id := range originIDs {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		origins = append(origins, *o)
	}
	return origins, nil
}

// Update はメタデータを更新し、必要に応じてバケットのウェブサイト設定を変更します
func (r *Registry) Update(ctx context.Context, originID string, req UpdateRequest) (*domain.Origin, error) {
	o, err := r.Get(ctx, originID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, common.NewValidationError("オリジン名は空にできません")
		}
		o.Name = *req.Name
	}
	if req.Description != nil {
		o.Description = *req.Description
	}

	client := r.s3For(o.Region)
	websiteEnabled := o.WebsiteEnabled
	if req.WebsiteEnabled != nil {
		websiteEnabled = *req.WebsiteEnabled
	}
	switch {
	case websiteEnabled && (!o.WebsiteEnabled || req.Website != nil || len(req.CORSRules) > 0):
		website := DefaultWebsite
		if req.Website != nil {
			website = *req.Website
		}
		cors := req.CORSRules
		if len(cors) == 0 {
			cors = DefaultCORS
		}
		if err := r.configureWebsite(ctx, client, o.BucketName, website, cors); err != nil {
			return nil, err
		}
	case !websiteEnabled && o.WebsiteEnabled:
		if err := r.removeWebsite(ctx, client, o.BucketName); err != nil {
			return nil, err
		}
	}
	o.WebsiteEnabled = websiteEnabled
	o.UpdatedAt = r.clock.Now()

	if err := r.store.UpdateOrigin(ctx, *o); err != nil {
		return nil, fmt.Errorf("オリジンの更新に失敗: %w", err)
	}
	return o, nil
}

// Delete はバケットを空にして削除し、オリジンの登録を取り消します。
// ディストリビューションから参照されている間は ConflictError を返します
func (r *Registry) Delete(ctx context.Context, originID string) (*DeleteReport, error) {
	o, err := r.Get(ctx, originID)
	if err != nil {
		return nil, err
	}
	if o.IsReferenced() {
		return nil, common.NewConflictError("オリジン '%s' は %d 個のディストリビューションから参照されています。先にディストリビューションを削除してください", originID, len(o.AssociatedDistributions))
	}

	report := &DeleteReport{OriginID: o.OriginID, BucketName: o.BucketName}
	client := r.s3For(o.Region)

	deleted, err := r.emptyBucket(ctx, client, o.BucketName)
	report.ObjectsDeleted = deleted
	if err != nil && !common.IsAPIErrorCode(err, "NoSuchBucket") {
		return report, common.NewProviderError(fmt.Sprintf("バケット %s を空にできませんでした", o.BucketName), err)
	}

	_, err = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(o.BucketName)})
	switch {
	case err == nil:
		report.BucketDeleted = true
	case common.IsAPIErrorCode(err, "NoSuchBucket"):
		report.BucketDeleted = true
		report.Warnings = append(report.Warnings, fmt.Sprintf("バケット %s は既に存在しません", o.BucketName))
	default:
		return report, common.NewProviderError(fmt.Sprintf("バケット %s の削除に失敗", o.BucketName), err)
	}

	if o.AccessControlID != "" && r.cf != nil {
		if err := r.deleteAccessControl(ctx, o.AccessControlID); err != nil {
			r.logger.Warn("origin access control cleanup failed", "origin", o.OriginID, "error", err)
			report.Warnings = append(report.Warnings, err.Error())
		}
	}

	if err := r.store.DeleteOrigin(ctx, o.OriginID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return report, fmt.Errorf("オリジンの登録削除に失敗: %w", err)
	}
	r.logger.Info("origin deleted", "origin", o.OriginID, "bucket", o.BucketName, "objects", deleted)
	return report, nil
}

// Associate は各オリジンにディストリビューションARNを関連付けます
func (r *Registry) Associate(ctx context.Context, originIDs []string, distributionArn string) []common.ProcessResult {
	return r.eachOrigin(originIDs, func(id string) error {
		return r.store.AddAssociation(ctx, id, distributionArn, r.clock.Now())
	})
}

// Dissociate は各オリジンからディストリビューションARNの関連付けを外します
func (r *Registry) Dissociate(ctx context.Context, originIDs []string, distributionArn string) []common.ProcessResult {
	return r.eachOrigin(originIDs, func(id string) error {
		return r.store.RemoveAssociation(ctx, id, distributionArn, r.clock.Now())
	})
}

func (r *Registry) eachOrigin(originIDs []string, fn func(id string) error) []common.ProcessResult {
	results := make([]common.ProcessResult, 0, len(originIDs))
	for _, id := range originIDs {
		err := fn(id)
		if err != nil {
			r.logger.Warn("origin association update failed", "origin", id, "error", err)
		}
		results = append(results, common.ProcessResult{Item: id, Success: err == nil, Error: err})
	}
	return results
}

func (r *Registry) configureWebsite(ctx context.Context, client S3API, bucket string, website WebsiteConfig, rules []CORSRule) error {
	cfg := &s3types.WebsiteConfiguration{
		IndexDocument: &s3types.IndexDocument{Suffix: aws.String(website.IndexDocument)},
	}
	if website.ErrorDocument != "" {
		cfg.ErrorDocument = &s3types.ErrorDocument{Key: aws.String(website.ErrorDocument)}
	}
	if _, err := client.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
		Bucket:               aws.String(bucket),
		WebsiteConfiguration: cfg,
	}); err != nil {
		return common.NewProviderError(fmt.Sprintf("バケット %s のウェブサイト設定に失敗", bucket), err)
	}

	corsRules := make([]s3types.CORSRule, 0, len(rules))
	for _, rule := range rules {
		corsRules = append(corsRules, s3types.CORSRule{
			AllowedOrigins: rule.AllowedOrigins,
			AllowedMethods: rule.AllowedMethods,
			AllowedHeaders: rule.AllowedHeaders,
			ExposeHeaders:  rule.ExposeHeaders,
			MaxAgeSeconds:  aws.Int32(rule.MaxAgeSeconds),
		})
	}
	if _, err := client.PutBucketCors(ctx, &s3.PutBucketCorsInput{
		Bucket:            aws.String(bucket),
		CORSConfiguration: &s3types.CORSConfiguration{CORSRules: corsRules},
	}); err != nil {
		return common.NewProviderError(fmt.Sprintf("バケット %s のCORS設定に失敗", bucket), err)
	}
	r.logger.Info("bucket website configured", "bucket", bucket, "index", website.IndexDocument)
	return nil
}

func (r *Registry) removeWebsite(ctx context.Context, client S3API, bucket string) error {
	if _, err := client.DeleteBucketWebsite(ctx, &s3.DeleteBucketWebsiteInput{Bucket: aws.String(bucket)}); err != nil {
		return common.NewProviderError(fmt.Sprintf("バケット %s のウェブサイト設定削除に失敗", bucket), err)
	}
	if _, err := client.DeleteBucketCors(ctx, &s3.DeleteBucketCorsInput{Bucket: aws.String(bucket)}); err != nil &&
		!common.IsAPIErrorCode(err, "NoSuchCORSConfiguration") {
		return common.NewProviderError(fmt.Sprintf("バケット %s のCORS設定削除に失敗", bucket), err)
	}
	return nil
}

func (r *Registry) createAccessControl(ctx context.Context, o domain.Origin) (string, error) {
	out, err := r.cf.CreateOriginAccessControl(ctx, &cloudfront.CreateOriginAccessControlInput{
		OriginAccessControlConfig: &cftypes.OriginAccessControlConfig{
			Name:                          aws.String(fmt.Sprintf("%s-%s", o.BucketName, o.OriginID)),
			Description:                   aws.String("OAC for origin " + o.Name),
			OriginAccessControlOriginType: cftypes.OriginAccessControlOriginTypesS3,
			SigningBehavior:               cftypes.OriginAccessControlSigningBehaviorsAlways,
			SigningProtocol:               cftypes.OriginAccessControlSigningProtocolsSigv4,
		},
	})
	if err != nil {
		return "", common.NewProviderError("Origin Access Controlの作成に失敗", err)
	}
	return aws.ToString(out.OriginAccessControl.Id), nil
}

func (r *Registry) deleteAccessControl(ctx context.Context, id string) error {
	got, err := r.cf.GetOriginAccessControl(ctx, &cloudfront.GetOriginAccessControlInput{Id: aws.String(id)})
	if err != nil {
		if common.IsAPIErrorCode(err, "NoSuchOriginAccessControl") {
			return nil
		}
		return common.NewProviderError("Origin Access Controlの取得に失敗", err)
	}
	_, err = r.cf.DeleteOriginAccessControl(ctx, &cloudfront.DeleteOriginAccessControlInput{Id: aws.String(id), IfMatch: got.ETag})
	if err != nil && !common.IsAPIErrorCode(err, "NoSuchOriginAccessControl") {
		return common.NewProviderError("Origin Access Controlの削除に失敗", err)
	}
	return nil
}

// emptyBucket はバージョンと削除マーカーを含めてバケットの中身をすべて削除し、削除件数を返します
func (r *Registry) emptyBucket(ctx context.Context, client S3API, bucket string) (int, error) {
	var keyMarker, versionIDMarker *string
	deleted := 0
	for {
		out, err := client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
			Bucket:          aws.String(bucket),
			KeyMarker:       keyMarker,
			VersionIdMarker: versionIDMarker,
		})
		if err != nil {
			return deleted, err
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(out.Versions)+len(out.DeleteMarkers))
		for _, v := range out.Versions {
			objects = append(objects, s3types.ObjectIdentifier{Key: v.Key, VersionId: v.VersionId})
		}
		for _, m := range out.DeleteMarkers {
			objects = append(objects, s3types.ObjectIdentifier{Key: m.Key, VersionId: m.VersionId})
		}

		for start := 0; start < len(objects); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(objects))
			batch := objects[start:end]
			res, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(bucket),
				Delete: &s3types.Delete{Objects: batch, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return deleted, err
			}
			for _, e := range res.Errors {
				r.logger.Warn("object delete failed", "bucket", bucket, "key", aws.ToString(e.Key), "version", aws.ToString(e.VersionId), "message", aws.ToString(e.Message))
			}
			deleted += len(batch) - len(res.Errors)
		}

		if !aws.ToBool(out.IsTruncated) {
			return deleted, nil
		}
		keyMarker = out.NextKeyMarker
		versionIDMarker = out.NextVersionIdMarker
	}
}
