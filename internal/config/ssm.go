package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMPrefix が付いた値はパラメータストアから解決されます
const SSMPrefix = "ssm:"

// ParameterGetter は ssm.Client の GetParameter を抽象化します
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveParameters は "ssm:" で始まる設定値をパラメータストアの値に置き換えます
func (c *Config) ResolveParameters(ctx context.Context, client ParameterGetter) error {
	targets := []*string{
		&c.Edge.ExecutionRoleArn,
		&c.CachePolicyID,
		&c.Schedule.TargetArn,
		&c.Schedule.RoleArn,
		&c.Monitor.EventBusName,
		&c.Monitor.KafkaTopic,
	}
	for _, target := range targets {
		if !strings.HasPrefix(*target, SSMPrefix) {
			continue
		}
		if client == nil {
			return fmt.Errorf("%s を解決するSSMクライアントがありません", *target)
		}
		name := strings.TrimPrefix(*target, SSMPrefix)
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("SSMパラメータ %s の取得に失敗: %w", name, err)
		}
		if out.Parameter == nil || out.Parameter.Value == nil {
			return fmt.Errorf("SSMパラメータ %s に値がありません", name)
		}
		*target = aws.ToString(out.Parameter.Value)
	}
	return nil
}

// NeedsParameters は SSM 解決が必要な値を含むかを返します
func (c *Config) NeedsParameters() bool {
	for _, v := range []string{c.Edge.ExecutionRoleArn, c.CachePolicyID, c.Schedule.TargetArn, c.Schedule.RoleArn, c.Monitor.EventBusName, c.Monitor.KafkaTopic} {
		if strings.HasPrefix(v, SSMPrefix) {
			return true
		}
	}
	return false
}
