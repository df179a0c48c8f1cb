// Package config はプロセス起動時に一度だけ構築される設定を扱います。
// 値は既定値、設定ファイル、GEOCDN_ 環境変数、フラグの順に上書きされます。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix は環境変数のプレフィックス
const EnvPrefix = "GEOCDN"

// ストアのバックエンド
const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// 監視ワークフローの起動方式
const (
	MonitorNone        = "none"
	MonitorEventBridge = "eventbridge"
	MonitorKafka       = "kafka"
)

// Config はアプリケーション全体の設定
type Config struct {
	Profile    string
	Region     string
	EdgeRegion string

	Store    StoreConfig
	Edge     EdgeConfig
	Monitor  MonitorConfig
	Schedule ScheduleConfig

	CachePolicyID    string
	StorageSuffix    string
	ScanWorkers      int
	MetricsNamespace string

	LogLevel  string
	LogFormat string
}

// StoreConfig は永続化先の設定
type StoreConfig struct {
	Backend            string
	SQLitePath         string
	OriginsTable       string
	DistributionsTable string
	EdgeFunctionsTable string
	HistoryTable       string
	TemplatesTable     string
}

// EdgeConfig はLambda@Edgeのデプロイ設定
type EdgeConfig struct {
	ExecutionRoleArn   string
	RoleName           string
	Runtime            string
	ActivationTimeout  time.Duration
	ActivationInterval time.Duration
}

// MonitorConfig は作成後の非同期監視の起動設定
type MonitorConfig struct {
	Kind         string
	EventBusName string
	Source       string
	KafkaBrokers []string
	KafkaTopic   string
}

// ScheduleConfig は定期スキャンのスケジュール設定
type ScheduleConfig struct {
	Name       string
	Expression string
	TargetArn  string
	RoleArn    string
}

// SetDefaults は既定値を登録します
func SetDefaults(v *viper.Viper) {
	v.SetDefault("region", "ap-northeast-1")
	v.SetDefault("edge-region", "us-east-1")

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.sqlite-path", ".geocdn/geocdn.db")
	v.SetDefault("store.origins-table", "geocdn-origins")
	v.SetDefault("store.distributions-table", "geocdn-distributions")
	v.SetDefault("store.edge-functions-table", "geocdn-edge-functions")
	v.SetDefault("store.history-table", "geocdn-distribution-history")
	v.SetDefault("store.templates-table", "geocdn-templates")

	v.SetDefault("edge.role-name", "geocdn-edge-execution")
	v.SetDefault("edge.runtime", "nodejs18.x")
	v.SetDefault("edge.activation-timeout", 60*time.Second)
	v.SetDefault("edge.activation-interval", 2*time.Second)

	v.SetDefault("monitor.kind", MonitorNone)
	v.SetDefault("monitor.event-bus", "default")
	v.SetDefault("monitor.source", "geocdn.distributions")
	v.SetDefault("monitor.kafka-topic", "geocdn-distribution-monitor")

	v.SetDefault("schedule.name", "geocdn-pending-scan")
	v.SetDefault("schedule.expression", "rate(5 minutes)")

	v.SetDefault("cache-policy-id", "658327ea-f89d-4fab-a63d-7e88639e58f6")
	v.SetDefault("storage-suffix", "amazonaws.com")
	v.SetDefault("scan-workers", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// BindEnv は GEOCDN_ プレフィックスの環境変数を有効化します
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// New は既定値と環境変数を設定済みの viper を返します
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// ReadFile は設定ファイル(YAML)を読み込みます
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
	}
	return nil
}

// Load は viper から Config を構築して検証します
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Profile:    v.GetString("profile"),
		Region:     v.GetString("region"),
		EdgeRegion: v.GetString("edge-region"),
		Store: StoreConfig{
			Backend:            strings.ToLower(v.GetString("store.backend")),
			SQLitePath:         v.GetString("store.sqlite-path"),
			OriginsTable:       v.GetString("store.origins-table"),
			DistributionsTable: v.GetString("store.distributions-table"),
			EdgeFunctionsTable: v.GetString("store.edge-functions-table"),
			HistoryTable:       v.GetString("store.history-table"),
			TemplatesTable:     v.GetString("store.templates-table"),
		},
		Edge: EdgeConfig{
			ExecutionRoleArn:   v.GetString("edge.role-arn"),
			RoleName:           v.GetString("edge.role-name"),
			Runtime:            v.GetString("edge.runtime"),
			ActivationTimeout:  v.GetDuration("edge.activation-timeout"),
			ActivationInterval: v.GetDuration("edge.activation-interval"),
		},
		Monitor: MonitorConfig{
			Kind:         strings.ToLower(v.GetString("monitor.kind")),
			EventBusName: v.GetString("monitor.event-bus"),
			Source:       v.GetString("monitor.source"),
			KafkaBrokers: splitList(v.GetStringSlice("monitor.kafka-brokers")),
			KafkaTopic:   v.GetString("monitor.kafka-topic"),
		},
		Schedule: ScheduleConfig{
			Name:       v.GetString("schedule.name"),
			Expression: v.GetString("schedule.expression"),
			TargetArn:  v.GetString("schedule.target-arn"),
			RoleArn:    v.GetString("schedule.role-arn"),
		},
		CachePolicyID:    v.GetString("cache-policy-id"),
		StorageSuffix:    v.GetString("storage-suffix"),
		ScanWorkers:      v.GetInt("scan-workers"),
		MetricsNamespace: v.GetString("metrics-namespace"),
		LogLevel:         v.GetString("log.level"),
		LogFormat:        v.GetString("log.format"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite-path が空です")
		}
	case BackendDynamoDB:
	default:
		return fmt.Errorf("未対応のストアバックエンドです: %q", c.Store.Backend)
	}

	switch c.Monitor.Kind {
	case MonitorNone, MonitorEventBridge:
	case MonitorKafka:
		if len(c.Monitor.KafkaBrokers) == 0 {
			return fmt.Errorf("monitor.kind=kafka には monitor.kafka-brokers が必要です")
		}
	default:
		return fmt.Errorf("未対応の監視方式です: %q", c.Monitor.Kind)
	}

	if c.Edge.ActivationTimeout <= 0 || c.Edge.ActivationInterval <= 0 {
		return fmt.Errorf("edge.activation-timeout と edge.activation-interval は正の値である必要があります")
	}
	if c.ScanWorkers <= 0 {
		return fmt.Errorf("scan-workers は1以上である必要があります")
	}
	if c.EdgeRegion == "" {
		return fmt.Errorf("edge-region が空です")
	}
	return nil
}

// 環境変数ではカンマ区切りの1要素として渡されるため分割し直す
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
