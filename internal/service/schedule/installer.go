package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedtypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"

	"geocdn/internal/service/common"
)

const errResourceNotFound = "ResourceNotFoundException"

// Installer はスキャナーのスケジュールを作成・更新・削除します
type Installer struct {
	client SchedulerAPI
	logger *slog.Logger
}

// NewInstaller は Installer を作成します
func NewInstaller(client SchedulerAPI, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{client: client, logger: logger}
}

// Install はスケジュールを作成します。既に存在する場合は内容を更新し、有効化します。
// 作成した場合は true を返します
func (i *Installer) Install(ctx context.Context, spec Spec) (bool, error) {
	if spec.Name == "" {
		return false, common.NewValidationError("スケジュール名は必須です")
	}
	if spec.TargetArn == "" || spec.RoleArn == "" {
		return false, common.NewValidationError("スケジュールにはターゲットARNとロールARNが必要です")
	}
	if spec.Expression == "" {
		spec.Expression = DefaultExpression
	}
	input := spec.Input
	if input == "" {
		input = "{}"
	}
	target := &schedtypes.Target{
		Arn:     aws.String(spec.TargetArn),
		RoleArn: aws.String(spec.RoleArn),
		Input:   aws.String(input),
	}
	window := &schedtypes.FlexibleTimeWindow{Mode: schedtypes.FlexibleTimeWindowModeOff}
	description := aws.String("geocdn pending distribution scan")

	_, err := i.client.GetSchedule(ctx, &scheduler.GetScheduleInput{Name: aws.String(spec.Name)})
	switch {
	case common.IsAPIErrorCode(err, errResourceNotFound):
		_, err = i.client.CreateSchedule(ctx, &scheduler.CreateScheduleInput{
			Name:               aws.String(spec.Name),
			ScheduleExpression: aws.String(spec.Expression),
			State:              schedtypes.ScheduleStateEnabled,
			Target:             target,
			FlexibleTimeWindow: window,
			Description:        description,
		})
		if err != nil {
			return false, common.NewProviderError("スケジュールの作成に失敗", err)
		}
		i.logger.Info("schedule created", "name", spec.Name, "expression", spec.Expression)
		return true, nil
	case err != nil:
		return false, common.NewProviderError("スケジュールの取得に失敗", err)
	}

	_, err = i.client.UpdateSchedule(ctx, &scheduler.UpdateScheduleInput{
		Name:               aws.String(spec.Name),
		ScheduleExpression: aws.String(spec.Expression),
		State:              schedtypes.ScheduleStateEnabled,
		Target:             target,
		FlexibleTimeWindow: window,
		Description:        description,
	})
	if err != nil {
		return false, common.NewProviderError("スケジュールの更新に失敗", err)
	}
	i.logger.Info("schedule updated", "name", spec.Name, "expression", spec.Expression)
	return false, nil
}

// Get は登録済みスケジュールを返します
func (i *Installer) Get(ctx context.Context, name string) (*Schedule, error) {
	out, err := i.client.GetSchedule(ctx, &scheduler.GetScheduleInput{Name: aws.String(name)})
	if common.IsAPIErrorCode(err, errResourceNotFound) {
		return nil, common.NewNotFoundError("スケジュール", name)
	}
	if err != nil {
		return nil, common.NewProviderError("スケジュールの取得に失敗", err)
	}
	s := &Schedule{
		Name:       aws.ToString(out.Name),
		Expression: aws.ToString(out.ScheduleExpression),
		State:      string(out.State),
		Arn:        aws.ToString(out.Arn),
	}
	if out.Target != nil {
		s.Target = aws.ToString(out.Target.Arn)
	}
	return s, nil
}

// SetState は現在の設定を保ったまま有効・無効を切り替えます
func (i *Installer) SetState(ctx context.Context, name string, enabled bool) error {
	current, err := i.client.GetSchedule(ctx, &scheduler.GetScheduleInput{Name: aws.String(name)})
	if common.IsAPIErrorCode(err, errResourceNotFound) {
		return common.NewNotFoundError("スケジュール", name)
	}
	if err != nil {
		return common.NewProviderError("スケジュールの取得に失敗", err)
	}
	state := schedtypes.ScheduleStateDisabled
	if enabled {
		state = schedtypes.ScheduleStateEnabled
	}
	if current.State == state {
		return nil
	}
	_, err = i.client.UpdateSchedule(ctx, &scheduler.UpdateScheduleInput{
		Name:               aws.String(name),
		ScheduleExpression: current.ScheduleExpression,
		State:              state,
		Target:             current.Target,
		FlexibleTimeWindow: current.FlexibleTimeWindow,
		Description:        current.Description,
		GroupName:          current.GroupName,
	})
	if err != nil {
		return common.NewProviderError(fmt.Sprintf("スケジュールの%sに失敗", stateLabel(enabled)), err)
	}
	i.logger.Info("schedule state changed", "name", name, "state", state)
	return nil
}

// Remove はスケジュールを削除します。存在しない場合は何もしません
func (i *Installer) Remove(ctx context.Context, name string) error {
	_, err := i.client.DeleteSchedule(ctx, &scheduler.DeleteScheduleInput{Name: aws.String(name)})
	if common.IsAPIErrorCode(err, errResourceNotFound) {
		return nil
	}
	if err != nil {
		return common.NewProviderError("スケジュールの削除に失敗", err)
	}
	i.logger.Info("schedule removed", "name", name)
	return nil
}

func stateLabel(enabled bool) string {
	if enabled {
		return "有効化"
	}
	return "無効化"
}
