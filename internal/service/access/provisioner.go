// Package access はディストリビューション共有のOrigin Access Identityを作成し、
// 各オリジンのバケットポリシーにその読み取り許可を付け外しします。
package access

import (
	"context"
	"fmt"
	"log/slog"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// CloudFrontAPI は cloudfront.Client のうちOAI管理で使う操作
type CloudFrontAPI interface {
	CreateCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.CreateCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateCloudFrontOriginAccessIdentityOutput, error)
	GetCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.GetCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetCloudFrontOriginAccessIdentityOutput, error)
	DeleteCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.DeleteCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteCloudFrontOriginAccessIdentityOutput, error)
}

// BucketPolicyAPI は s3.Client のうちバケットポリシー操作
type BucketPolicyAPI interface {
	GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	DeleteBucketPolicy(ctx context.Context, params *s3.DeleteBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error)
}

// BucketPolicyFor はリージョンに対応するS3クライアントを返す関数
type BucketPolicyFor func(region string) BucketPolicyAPI

// Provisioner はOAIとバケットポリシーを管理します
type Provisioner struct {
	cf     CloudFrontAPI
	s3For  BucketPolicyFor
	logger *slog.Logger
}

// NewProvisioner は Provisioner を作成します
func NewProvisioner(cf CloudFrontAPI, s3For BucketPolicyFor, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{cf: cf, s3For: s3For, logger: logger}
}

// CreateIdentity はディストリビューション名をコメントに付けたOAIを作成します
func (p *Provisioner) CreateIdentity(ctx context.Context, distributionName string, callerReference string) (domain.AccessIdentity, error) {
	out, err := p.cf.CreateCloudFrontOriginAccessIdentity(ctx, &cloudfront.CreateCloudFrontOriginAccessIdentityInput{
		CloudFrontOriginAccessIdentityConfig: &cftypes.CloudFrontOriginAccessIdentityConfig{
			CallerReference: aws.String(callerReference),
			Comment:         aws.String("OAI for multi-origin distribution: " + distributionName),
		},
	})
	if err != nil {
		return domain.AccessIdentity{}, common.NewProviderError("OAIの作成に失敗", err)
	}
	identity := domain.AccessIdentity{
		IdentityID:      aws.ToString(out.CloudFrontOriginAccessIdentity.Id),
		CanonicalUserID: aws.ToString(out.CloudFrontOriginAccessIdentity.S3CanonicalUserId),
	}
	p.logger.Info("origin access identity created", "identity", identity.IdentityID, "distribution", distributionName)
	return identity, nil
}

// DeleteIdentity はOAIを削除します。存在しない場合は成功として扱います
func (p *Provisioner) DeleteIdentity(ctx context.Context, identityID string) error {
	if identityID == "" {
		return nil
	}
	got, err := p.cf.GetCloudFrontOriginAccessIdentity(ctx, &cloudfront.GetCloudFrontOriginAccessIdentityInput{Id: aws.String(identityID)})
	if err != nil {
		if common.IsAPIErrorCode(err, "NoSuchCloudFrontOriginAccessIdentity") {
			return nil
		}
		return common.NewProviderError("OAIの取得に失敗", err)
	}
	_, err = p.cf.DeleteCloudFrontOriginAccessIdentity(ctx, &cloudfront.DeleteCloudFrontOriginAccessIdentityInput{
		Id:      aws.String(identityID),
		IfMatch: got.ETag,
	})
	if err != nil && !common.IsAPIErrorCode(err, "NoSuchCloudFrontOriginAccessIdentity") {
		return common.NewProviderError("OAIの削除に失敗", err)
	}
	p.logger.Info("origin access identity deleted", "identity", identityID)
	return nil
}

// GrantOrigins は各オリジンのバケットポリシーにOAIの読み取り許可を追加します。
// 1つのオリジンの失敗は記録して次のオリジンへ進みます
func (p *Provisioner) GrantOrigins(ctx context.Context, origins []domain.Origin, identityID, distributionArn string) []common.ProcessResult {
	results := make([]common.ProcessResult, 0, len(origins))
	for _, o := range origins {
		err := p.grant(ctx, o, identityID)
		if err != nil {
			p.logger.Warn("bucket policy grant failed", "bucket", o.BucketName, "identity", identityID, "distribution", distributionArn, "error", err)
		} else {
			p.logger.Info("bucket policy granted", "bucket", o.BucketName, "identity", identityID, "distribution", distributionArn)
		}
		results = append(results, common.ProcessResult{Item: o.BucketName, Success: err == nil, Error: err})
	}
	return results
}

// RevokeOrigins は各オリジンのバケットポリシーからOAIを取り除きます。
// ステートメントが残らなければポリシー自体を削除します
func (p *Provisioner) RevokeOrigins(ctx context.Context, origins []domain.Origin, identityID string) []common.ProcessResult {
	results := make([]common.ProcessResult, 0, len(origins))
	for _, o := range origins {
		err := p.revoke(ctx, o, identityID)
		if err != nil {
			p.logger.Warn("bucket policy revoke failed", "bucket", o.BucketName, "identity", identityID, "error", err)
		}
		results = append(results, common.ProcessResult{Item: o.BucketName, Success: err == nil, Error: err})
	}
	return results
}

func (p *Provisioner) grant(ctx context.Context, o domain.Origin, identityID string) error {
	client := p.s3For(o.Region)
	doc, err := p.readPolicy(ctx, client, o.BucketName)
	if err != nil {
		return err
	}
	doc.Grant(o.BucketName, identityID)
	_, err = client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(o.BucketName),
		Policy: aws.String(doc.String()),
	})
	if err != nil {
		return common.NewProviderError(fmt.Sprintf("バケット %s のポリシー更新に失敗", o.BucketName), err)
	}
	return nil
}

func (p *Provisioner) revoke(ctx context.Context, o domain.Origin, identityID string) error {
	client := p.s3For(o.Region)
	doc, err := p.readPolicy(ctx, client, o.BucketName)
	if err != nil {
		return err
	}
	if !doc.Revoke(identityID) {
		return nil
	}
	if doc.IsEmpty() {
		_, err = client.DeleteBucketPolicy(ctx, &s3.DeleteBucketPolicyInput{Bucket: aws.String(o.BucketName)})
		if err != nil {
			return common.NewProviderError(fmt.Sprintf("バケット %s のポリシー削除に失敗", o.BucketName), err)
		}
		p.logger.Info("bucket policy deleted", "bucket", o.BucketName)
		return nil
	}
	_, err = client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(o.BucketName),
		Policy: aws.String(doc.String()),
	})
	if err != nil {
		return common.NewProviderError(fmt.Sprintf("バケット %s のポリシー更新に失敗", o.BucketName), err)
	}
	return nil
}

// ポリシーが未設定のバケットは空のポリシーとして扱う
func (p *Provisioner) readPolicy(ctx context.Context, client BucketPolicyAPI, bucket string) (*PolicyDocument, error) {
	out, err := client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: aws.String(bucket)})
	if err != nil {
		if common.IsAPIErrorCode(err, "NoSuchBucketPolicy") {
			return ParsePolicy("")
		}
		return nil, common.NewProviderError(fmt.Sprintf("バケット %s のポリシー取得に失敗", bucket), err)
	}
	return ParsePolicy(aws.ToString(out.Policy))
}
