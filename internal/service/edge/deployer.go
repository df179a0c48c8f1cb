package edge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"geocdn/internal/clock"
	"geocdn/internal/service/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

var numericVersion = regexp.MustCompile(`^\d+$`)

// DeployerOptions はデプロイの設定
type DeployerOptions struct {
	RoleArn  string
	Runtime  string
	Timeout  time.Duration // Active になるまでの待機上限
	Interval time.Duration // 状態確認の間隔
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Deployer はルーティング関数をエッジリージョンに公開します
type Deployer struct {
	client LambdaAPI
	opts   DeployerOptions
}

// NewDeployer は Deployer を作成します。client はエッジリージョン固定のクライアントを渡します
func NewDeployer(client LambdaAPI, opts DeployerOptions) *Deployer {
	if opts.Runtime == "" {
		opts.Runtime = DefaultRuntime
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultActivationTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultActivationInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Deployer{client: client, opts: opts}
}

// Deploy は関数を作成して即時公開し、Active になるのを待ってから呼び出し権限を付与します
func (d *Deployer) Deploy(ctx context.Context, name, code string) (*Deployment, error) {
	if name == "" {
		return nil, common.NewValidationError("関数名が空です")
	}
	if d.opts.RoleArn == "" {
		return nil, common.NewValidationError("Lambda@Edge実行ロールのARNが設定されていません")
	}

	archive, err := Package(code)
	if err != nil {
		return nil, fmt.Errorf("関数コードのパッケージングに失敗: %w", err)
	}

	log := d.opts.Logger.With("function", name)
	log.Info("creating edge function", "runtime", d.opts.Runtime)

	out, err := d.client.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(name),
		Runtime:      types.Runtime(d.opts.Runtime),
		Role:         aws.String(d.opts.RoleArn),
		Handler:      aws.String(DefaultHandler),
		Code:         &types.FunctionCode{ZipFile: archive},
		Description:  aws.String("geocdn multi-origin router"),
		Timeout:      aws.Int32(DefaultFunctionTimeout),
		MemorySize:   aws.Int32(DefaultMemorySize),
		Publish:      true,
	})
	if err != nil {
		return nil, common.NewProviderError("Lambda関数の作成に失敗", err)
	}

	functionArn := aws.ToString(out.FunctionArn)
	// ここから先の失敗では関数が既に存在するため、呼び出し側へ dep も返す
	dep := &Deployment{
		FunctionName: name,
		FunctionARN:  functionArn,
		Version:      aws.ToString(out.Version),
	}
	versioned, err := VersionedArn(functionArn, dep.Version)
	if err != nil {
		return dep, common.NewProviderError("公開バージョンの取得に失敗", err)
	}
	dep.VersionedARN = versioned

	if err := d.waitActive(ctx, name); err != nil {
		return dep, err
	}

	_, err = d.client.AddPermission(ctx, &lambda.AddPermissionInput{
		FunctionName: aws.String(name),
		StatementId:  aws.String(fmt.Sprintf("cloudfront-invoke-%d", d.opts.Clock.Now().UnixMilli())),
		Action:       aws.String("lambda:InvokeFunction"),
		Principal:    aws.String(EdgeInvokePrincipal),
	})
	if err != nil {
		return dep, common.NewProviderError("呼び出し権限の付与に失敗", err)
	}

	log.Info("edge function published", "versionArn", versioned)
	return dep, nil
}

// waitActive は関数が Active になるまで一定間隔で状態を確認します。
// 作成直後は取得に失敗したり Pending を返したりするため、期限まではエラーでも待ち続けます
func (d *Deployer) waitActive(ctx context.Context, name string) error {
	deadline := d.opts.Clock.Now().Add(d.opts.Timeout)
	var lastErr error
	for {
		out, err := d.client.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)})
		switch {
		case err != nil:
			lastErr = err
		case out.Configuration != nil && out.Configuration.State == types.StateActive:
			return nil
		case out.Configuration != nil && out.Configuration.State == types.StateFailed:
			return common.NewProviderError("Lambda関数の有効化に失敗",
				fmt.Errorf("%s: %s", out.Configuration.StateReasonCode, aws.ToString(out.Configuration.StateReason)))
		case out.Configuration != nil:
			lastErr = fmt.Errorf("state=%s", out.Configuration.State)
		}

		if !d.opts.Clock.Now().Before(deadline) {
			return common.NewDeploymentTimeout(name, lastErr)
		}
		d.opts.Clock.Sleep(d.opts.Interval)
	}
}

// Teardown は関数を削除します。存在しない場合は成功として扱います
func (d *Deployer) Teardown(ctx context.Context, functionName string) error {
	if functionName == "" {
		return nil
	}
	_, err := d.client.DeleteFunction(ctx, &lambda.DeleteFunctionInput{FunctionName: aws.String(functionName)})
	if err != nil {
		if common.IsAPIErrorCode(err, "ResourceNotFoundException") {
			d.opts.Logger.Info("edge function already absent", "function", functionName)
			return nil
		}
		return common.NewProviderError("Lambda関数の削除に失敗", err)
	}
	d.opts.Logger.Info("edge function deleted", "function", functionName)
	return nil
}

// VersionedArn は関数ARNに数値バージョンを付けたARNを返します。
// すでに同じバージョンで終わっている場合はそのまま返します
func VersionedArn(functionArn, version string) (string, error) {
	if !numericVersion.MatchString(version) {
		return "", fmt.Errorf("公開バージョンではありません: %q", version)
	}
	if functionArn == "" {
		return "", fmt.Errorf("関数ARNが空です")
	}
	if strings.HasSuffix(functionArn, ":"+version) {
		return functionArn, nil
	}
	return functionArn + ":" + version, nil
}

// FunctionName はディストリビューション名と関数IDからLambda関数名を組み立てます。
// Lambda の関数名上限64文字に収まるよう名前部分を切り詰めます
func FunctionName(distributionName, functionID string) string {
	base := sanitize(distributionName)
	suffix := "-multi-origin-" + functionID
	if limit := 64 - len(suffix); len(base) > limit {
		base = strings.TrimRight(base[:limit], "-_")
	}
	return base + suffix
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func sanitize(name string) string {
	s := invalidNameChars.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "geocdn"
	}
	return s
}
