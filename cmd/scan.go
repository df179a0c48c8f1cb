package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"geocdn/internal/service/common"
	"geocdn/internal/service/schedule"
)

var (
	scanScheduleExpression string
	scanScheduleTarget     string
	scanScheduleRole       string
)

// ScanCmd はscanコマンドを表す
var ScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "照合待ちディストリビューションのスキャン",
	Long:  `InProgress / Creating のディストリビューションをまとめて照合し、定期実行のスケジュールを管理するコマンド群です。`,
}

var scanRunCmd = &cobra.Command{
	Use:   "run",
	Short: "照合待ちディストリビューションを今すぐ照合",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s 照合待ちディストリビューションを検索中...\n", common.SearchIcon)
		report, err := geo.Scanner.Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s スキャンに失敗: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s %d件中 %d件成功、%d件失敗、%d件スキップ\n", common.InfoIcon, report.TotalFound, report.Succeeded, report.Failed, len(report.Skipped))
		for id, msg := range report.Failures {
			fmt.Printf("  %s %s: %s\n", common.WarningIcon, id, msg)
		}
		return nil
	},
}

// ScanScheduleCmd はスキャンスケジュールの管理コマンド
var ScanScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "スキャナーLambdaの定期実行スケジュール管理",
}

var scanScheduleInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "スケジュールを作成または更新",
	Long: `EventBridge Scheduler にスキャナーLambdaの定期実行を登録します。既にあれば更新して有効化します。

例:
  ` + AppName + ` scan schedule install --target-arn arn:aws:lambda:...:function:geocdn-scanner --role-arn arn:aws:iam::...:role/geocdn-scheduler`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := geo.Config.Schedule
		spec := schedule.Spec{
			Name:       cfg.Name,
			Expression: firstNonEmpty(scanScheduleExpression, cfg.Expression),
			TargetArn:  firstNonEmpty(scanScheduleTarget, cfg.TargetArn),
			RoleArn:    firstNonEmpty(scanScheduleRole, cfg.RoleArn),
		}
		created, err := geo.Schedules.Install(cmd.Context(), spec)
		if err != nil {
			return fmt.Errorf("%s スケジュールの登録に失敗: %w", common.ErrorIcon, err)
		}
		if created {
			fmt.Printf("%s スケジュール %s を作成しました (%s)\n", common.SuccessIcon, spec.Name, spec.Expression)
		} else {
			fmt.Printf("%s スケジュール %s を更新しました (%s)\n", common.SuccessIcon, spec.Name, spec.Expression)
		}
		return nil
	},
}

var scanScheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "スケジュールを表示",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := geo.Schedules.Get(cmd.Context(), geo.Config.Schedule.Name)
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		schedule.DisplaySchedule(s)
		return nil
	},
}

var scanScheduleEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "スケジュールを有効化",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleState(cmd, true)
	},
}

var scanScheduleDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "スケジュールを無効化",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleState(cmd, false)
	},
}

func setScheduleState(cmd *cobra.Command, enabled bool) error {
	name := geo.Config.Schedule.Name
	if err := geo.Schedules.SetState(cmd.Context(), name, enabled); err != nil {
		return fmt.Errorf("%s %w", common.ErrorIcon, err)
	}
	state := schedule.StateDisabled
	if enabled {
		state = schedule.StateEnabled
	}
	fmt.Printf("%s スケジュール %s を %s にしました\n", common.SuccessIcon, name, state)
	return nil
}

var scanScheduleRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "スケジュールを削除",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := geo.Config.Schedule.Name
		if err := geo.Schedules.Remove(cmd.Context(), name); err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s スケジュール %s を削除しました\n", common.SuccessIcon, name)
		return nil
	},
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}

func init() {
	RootCmd.AddCommand(ScanCmd)
	ScanCmd.AddCommand(scanRunCmd, ScanScheduleCmd)
	ScanScheduleCmd.AddCommand(scanScheduleInstallCmd, scanScheduleShowCmd, scanScheduleEnableCmd, scanScheduleDisableCmd, scanScheduleRemoveCmd)

	scanScheduleInstallCmd.Flags().StringVar(&scanScheduleExpression, "expression", "", "スケジュール式（既定: rate(5 minutes)）")
	scanScheduleInstallCmd.Flags().StringVar(&scanScheduleTarget, "target-arn", "", "スキャナーLambdaのARN")
	scanScheduleInstallCmd.Flags().StringVar(&scanScheduleRole, "role-arn", "", "Scheduler が使うIAMロールのARN")
}
