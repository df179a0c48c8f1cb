// Package origin はS3オリジンのカタログと、その実体であるバケットの作成・設定・削除を扱います。
package origin

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API は s3.Client のうちオリジン管理で使う操作
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	PutBucketWebsite(ctx context.Context, params *s3.PutBucketWebsiteInput, optFns ...func(*s3.Options)) (*s3.PutBucketWebsiteOutput, error)
	DeleteBucketWebsite(ctx context.Context, params *s3.DeleteBucketWebsiteInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketWebsiteOutput, error)
	PutBucketCors(ctx context.Context, params *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error)
	DeleteBucketCors(ctx context.Context, params *s3.DeleteBucketCorsInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketCorsOutput, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3For はリージョンに対応するS3クライアントを返す関数
type S3For func(region string) S3API

// AccessControlAPI は cloudfront.Client のうちOrigin Access Control管理で使う操作
type AccessControlAPI interface {
	CreateOriginAccessControl(ctx context.Context, params *cloudfront.CreateOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateOriginAccessControlOutput, error)
	GetOriginAccessControl(ctx context.Context, params *cloudfront.GetOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetOriginAccessControlOutput, error)
	DeleteOriginAccessControl(ctx context.Context, params *cloudfront.DeleteOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteOriginAccessControlOutput, error)
}

// WebsiteConfig は静的ウェブサイトホスティングの設定
type WebsiteConfig struct {
	IndexDocument string `json:"indexDocument"`
	ErrorDocument string `json:"errorDocument"`
}

// CORSRule はバケットに設定するCORSルール
type CORSRule struct {
	AllowedOrigins []string `json:"allowedOrigins"`
	AllowedMethods []string `json:"allowedMethods"`
	AllowedHeaders []string `json:"allowedHeaders,omitempty"`
	ExposeHeaders  []string `json:"exposeHeaders,omitempty"`
	MaxAgeSeconds  int32    `json:"maxAgeSeconds,omitempty"`
}

// CreateRequest はオリジン作成の入力
type CreateRequest struct {
	Name                string
	Description         string
	BucketName          string
	Region              string
	WebsiteEnabled      bool
	Website             *WebsiteConfig
	CORSRules           []CORSRule
	CreateAccessControl bool
	CreatedBy           string
}

// UpdateRequest はオリジン更新の入力。nil の項目は変更しません
type UpdateRequest struct {
	Name           *string
	Description    *string
	WebsiteEnabled *bool
	Website        *WebsiteConfig
	CORSRules      []CORSRule
}

// DeleteReport はオリジン削除の結果
type DeleteReport struct {
	OriginID       string   `json:"originId"`
	BucketName     string   `json:"bucketName"`
	ObjectsDeleted int      `json:"objectsDeleted"`
	BucketDeleted  bool     `json:"bucketDeleted"`
	Warnings       []string `json:"warnings,omitempty"`
}

// デフォルトのウェブサイト設定とCORS
var (
	DefaultWebsite = WebsiteConfig{IndexDocument: "index.html", ErrorDocument: "error.html"}
	DefaultCORS    = []CORSRule{{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD"},
		AllowedHeaders: []string{"*"},
		ExposeHeaders:  []string{"ETag"},
		MaxAgeSeconds:  3000,
	}}
)

// deleteBatchSize は DeleteObjects の1回あたりの上限
const deleteBatchSize = 1000
