package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"geocdn/internal/app"
	"geocdn/internal/config"
)

// AppName はコマンド名
const AppName = "geocdn"

// offlineAnnotation が付いたコマンドはAWS設定とストアを使いません
const offlineAnnotation = "offline"

var (
	region     string
	profile    string
	configFile string
	logLevel   string

	v   *viper.Viper
	geo *app.App
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   AppName,
	Short: "S3オリジンとCloudFrontで地理ルーティング配信を構築するCLI",
	Long: `複数リージョンのS3オリジンを1つのCloudFrontディストリビューションにまとめ、
Lambda@Edgeで閲覧者の国・地域に応じたオリジンへ振り分けます。

【主なコマンド】
  ` + AppName + ` origin create   オリジン（S3バケット）を登録
  ` + AppName + ` dist create     ディストリビューションを作成
  ` + AppName + ` dist wait       デプロイ完了まで待機
  ` + AppName + ` scan run        照合待ちディストリビューションを一括照合`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	v = config.New()

	RootCmd.PersistentFlags().StringVarP(&region, "region", "R", "", "AWSリージョン（既定: ap-northeast-1）")
	RootCmd.PersistentFlags().StringVarP(&profile, "profile", "P", "", "AWSプロファイル")
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "設定ファイル(YAML)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ログレベル (debug|info|warn|error)")

	_ = v.BindPFlag("region", RootCmd.PersistentFlags().Lookup("region"))
	_ = v.BindPFlag("log.level", RootCmd.PersistentFlags().Lookup("log-level"))

	// コマンド実行前に共通でプロファイルチェックとサービスの組み立てを行う
	RootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Annotations[offlineAnnotation] == "true" {
			return nil
		}
		if err := checkAndSetProfile(cmd); err != nil {
			return err
		}
		return setupApp(cmd)
	}
	RootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if geo == nil {
			return nil
		}
		err := geo.Close()
		geo = nil
		return err
	}
}

// checkAndSetProfile はプロファイルの確認と設定を行うプライベート関数
func checkAndSetProfile(cmd *cobra.Command) error {
	// プロファイルがすでに指定されている場合は何もしない
	if profile != "" {
		return nil
	}
	// 環境変数からプロファイル取得を試みる
	envProfile := os.Getenv("AWS_PROFILE")
	if envProfile == "" {
		// プロファイルが見つからない場合はエラー
		cmd.SilenceUsage = true // エラー時のUsage表示を抑制
		return errors.New("❌ エラー: プロファイルが指定されていません。-Pオプションまたは AWS_PROFILE 環境変数を指定してください")
	}
	// 環境変数からプロファイルを設定
	profile = envProfile
	cmd.Println("🔍 環境変数 AWS_PROFILE の値 '" + profile + "' を使用します")
	return nil
}

// setupApp は設定を読み込み、サービス群を組み立てます
func setupApp(cmd *cobra.Command) error {
	if err := config.ReadFile(v, configFile); err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("❌ 設定エラー: %w", err)
	}
	cfg.Profile = profile

	logger, err := app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	slog.SetDefault(logger)

	geo, err = app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("❌ 初期化エラー: %w", err)
	}
	return nil
}
