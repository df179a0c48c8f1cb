package edge

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

// EdgeInvokePrincipal はLambda@Edgeを呼び出すサービスプリンシパル
const EdgeInvokePrincipal = "edgelambda.amazonaws.com"

// 既定値
const (
	DefaultRuntime            = "nodejs18.x"
	DefaultHandler            = "index.handler"
	DefaultActivationTimeout  = 60 * time.Second
	DefaultActivationInterval = 2 * time.Second
	DefaultFunctionTimeout    = 5
	DefaultMemorySize         = 128
)

// LambdaAPI は lambda.Client のうちデプロイで使う操作
type LambdaAPI interface {
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)
	DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

// IAMAPI は iam.Client のうち実行ロールの準備で使う操作
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
}

// Deployment は公開済み関数の情報
type Deployment struct {
	FunctionName string `json:"functionName"`
	FunctionARN  string `json:"functionArn"`
	Version      string `json:"version"`
	VersionedARN string `json:"versionArn"`
}
