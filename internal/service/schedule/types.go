// Package schedule は保留中ディストリビューションの定期スキャンを EventBridge Scheduler に登録します。
package schedule

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/scheduler"
)

// スケジュールの状態
const (
	StateEnabled  = "ENABLED"
	StateDisabled = "DISABLED"
)

// DefaultExpression は既定のスキャン間隔
const DefaultExpression = "rate(5 minutes)"

// SchedulerAPI は scheduler.Client のうちスケジュール管理で使う操作
type SchedulerAPI interface {
	GetSchedule(ctx context.Context, params *scheduler.GetScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.GetScheduleOutput, error)
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	UpdateSchedule(ctx context.Context, params *scheduler.UpdateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.UpdateScheduleOutput, error)
	DeleteSchedule(ctx context.Context, params *scheduler.DeleteScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error)
}

// Spec は登録するスケジュールの内容
type Spec struct {
	Name       string
	Expression string
	TargetArn  string // スキャナーLambdaのARN
	RoleArn    string // Scheduler がターゲットを呼び出すためのロール
	Input      string // ターゲットに渡すJSON（空ならスキャン全体）
}

// Schedule は登録済みスケジュールの情報
type Schedule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	State      string `json:"state"`
	Target     string `json:"target"`
	Arn        string `json:"arn"`
}
