package aws

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// DefaultEdgeRegion はLambda@Edgeの作成が許可されている唯一のリージョン
const DefaultEdgeRegion = "us-east-1"

// Clients AwsClients はAWS設定と各サービスクライアントを管理
type Clients struct {
	cfg        aws.Config
	edgeRegion string

	mu sync.Mutex

	// 遅延初期化されるクライアント群
	cloudfront  *cloudfront.Client
	lambda      *lambda.Client
	s3ByRegion  map[string]*s3.Client
	dynamodb    *dynamodb.Client
	eventbridge *eventbridge.Client
	scheduler   *scheduler.Client
	iam         *iam.Client
	ssm         *ssm.Client
	cloudwatch  *cloudwatch.Client
}

// NewAwsClients は認証情報からAWS設定を読み込んでクライアント管理構造体を作成
func NewAwsClients(ctx context.Context, awsCtx Context) (*Clients, error) {
	cfg, err := LoadAwsConfig(ctx, awsCtx)
	if err != nil {
		return nil, err
	}
	return NewClientsFromConfig(cfg, awsCtx.EdgeRegion), nil
}

// NewClientsFromConfig は読み込み済みのAWS設定からクライアント管理構造体を作成
func NewClientsFromConfig(cfg aws.Config, edgeRegion string) *Clients {
	if edgeRegion == "" {
		edgeRegion = DefaultEdgeRegion
	}
	return &Clients{cfg: cfg, edgeRegion: edgeRegion, s3ByRegion: map[string]*s3.Client{}}
}

// Region は既定のリージョンを返します
func (c *Clients) Region() string { return c.cfg.Region }

// CloudFront は遅延初期化でCloudFrontクライアントを取得
func (c *Clients) CloudFront() *cloudfront.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cloudfront == nil {
		c.cloudfront = cloudfront.NewFromConfig(c.cfg)
	}
	return c.cloudfront
}

// Lambda はエッジリージョン固定のLambdaクライアントを取得
func (c *Clients) Lambda() *lambda.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lambda == nil {
		region := c.edgeRegion
		c.lambda = lambda.NewFromConfig(c.cfg, func(o *lambda.Options) {
			o.Region = region
		})
	}
	return c.lambda
}

// S3 はリージョンごとにキャッシュされたS3クライアントを取得
func (c *Clients) S3(region string) *s3.Client {
	if region == "" {
		region = c.cfg.Region
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.s3ByRegion[region]
	if !ok {
		client = s3.NewFromConfig(c.cfg, func(o *s3.Options) {
			o.Region = region
		})
		c.s3ByRegion[region] = client
	}
	return client
}

// DynamoDB は遅延初期化でDynamoDBクライアントを取得
func (c *Clients) DynamoDB() *dynamodb.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dynamodb == nil {
		c.dynamodb = dynamodb.NewFromConfig(c.cfg)
	}
	return c.dynamodb
}

// EventBridge は遅延初期化でEventBridgeクライアントを取得
func (c *Clients) EventBridge() *eventbridge.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eventbridge == nil {
		c.eventbridge = eventbridge.NewFromConfig(c.cfg)
	}
	return c.eventbridge
}

// Scheduler は遅延初期化でEventBridge Schedulerクライアントを取得
func (c *Clients) Scheduler() *scheduler.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler == nil {
		c.scheduler = scheduler.NewFromConfig(c.cfg)
	}
	return c.scheduler
}

// IAM は遅延初期化でIAMクライアントを取得
func (c *Clients) IAM() *iam.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.iam == nil {
		c.iam = iam.NewFromConfig(c.cfg)
	}
	return c.iam
}

// SSM は遅延初期化でSSMクライアントを取得
func (c *Clients) SSM() *ssm.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ssm == nil {
		c.ssm = ssm.NewFromConfig(c.cfg)
	}
	return c.ssm
}

// CloudWatch は遅延初期化でCloudWatchクライアントを取得
func (c *Clients) CloudWatch() *cloudwatch.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cloudwatch == nil {
		c.cloudwatch = cloudwatch.NewFromConfig(c.cfg)
	}
	return c.cloudwatch
}
