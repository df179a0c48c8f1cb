package edge

import (
	"context"
	"fmt"
	"log/slog"

	"geocdn/internal/service/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdkiam "github.com/aws/aws-sdk-go-v2/service/iam"
)

// BasicExecutionPolicyArn はCloudWatch Logsへの書き込みを許可する管理ポリシー
const BasicExecutionPolicyArn = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"

const edgeTrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {
        "Service": ["lambda.amazonaws.com", "edgelambda.amazonaws.com"]
      },
      "Action": "sts:AssumeRole"
    }
  ]
}`

// EnsureRole はLambda@Edge実行ロールを取得し、なければ作成してARNを返します
func EnsureRole(ctx context.Context, client IAMAPI, roleName string, logger *slog.Logger) (arn string, created bool, err error) {
	if client == nil {
		return "", false, fmt.Errorf("iam client is nil")
	}
	if roleName == "" {
		return "", false, common.NewValidationError("ロール名は必須です")
	}
	if logger == nil {
		logger = slog.Default()
	}

	got, err := client.GetRole(ctx, &sdkiam.GetRoleInput{RoleName: aws.String(roleName)})
	if err == nil {
		return aws.ToString(got.Role.Arn), false, nil
	}
	if !common.IsAPIErrorCode(err, "NoSuchEntity") {
		return "", false, common.NewProviderError("IAMロールの取得に失敗", err)
	}

	out, err := client.CreateRole(ctx, &sdkiam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(edgeTrustPolicy),
		Description:              aws.String("geocdn Lambda@Edge execution role"),
	})
	if err != nil {
		return "", false, common.NewProviderError("IAMロールの作成に失敗", err)
	}

	_, err = client.AttachRolePolicy(ctx, &sdkiam.AttachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(BasicExecutionPolicyArn),
	})
	if err != nil {
		return "", true, common.NewProviderError("ポリシーのアタッチに失敗", err)
	}

	logger.Info("edge execution role created", "role", roleName)
	return aws.ToString(out.Role.Arn), true, nil
}
