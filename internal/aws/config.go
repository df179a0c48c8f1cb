package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAwsConfig は認証情報からAWS設定を読み込む
func LoadAwsConfig(ctx context.Context, awsCtx Context) (aws.Config, error) {
	opts := make([]func(*config.LoadOptions) error, 0)

	if awsCtx.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(awsCtx.Profile))
	}
	if awsCtx.Region != "" {
		opts = append(opts, config.WithRegion(awsCtx.Region))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}
