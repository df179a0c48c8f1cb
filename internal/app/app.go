// Package app は設定からストア、AWSクライアント、各サービスを組み立てます。
// CLI とスキャナーLambdaの両方がこのパッケージを通じて同じ構成を使います。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"geocdn/internal/aws"
	"geocdn/internal/clock"
	"geocdn/internal/config"
	"geocdn/internal/service/access"
	"geocdn/internal/service/distribution"
	"geocdn/internal/service/edge"
	"geocdn/internal/service/origin"
	"geocdn/internal/service/reconcile"
	"geocdn/internal/service/schedule"
	"geocdn/internal/service/template"
	"geocdn/internal/service/workflow"
	"geocdn/internal/store"
	"geocdn/internal/store/dynamo"
	"geocdn/internal/store/sqlite"
)

// App は組み立て済みのサービス群
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Clients *aws.Clients
	Store   store.Store

	Origins       *origin.Registry
	Access        *access.Provisioner
	Deployer      *edge.Deployer
	Reconciler    *reconcile.Reconciler
	Scanner       *reconcile.Scanner
	Distributions *distribution.Orchestrator
	Schedules     *schedule.Installer
	Templates     *template.Registry

	trigger workflow.Trigger
}

// New は設定に従って App を組み立てます。"ssm:" の値はここで解決します
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	clients, err := aws.NewAwsClients(ctx, aws.Context{Profile: cfg.Profile, Region: cfg.Region, EdgeRegion: cfg.EdgeRegion})
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗: %w", err)
	}
	if cfg.NeedsParameters() {
		if err := cfg.ResolveParameters(ctx, clients.SSM()); err != nil {
			return nil, err
		}
	}
	return Build(cfg, clients, clock.Real(), logger)
}

// Build は読み込み済みのクライアントから App を組み立てます
func Build(cfg *config.Config, clients *aws.Clients, c clock.Clock, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := OpenStore(cfg, clients)
	if err != nil {
		return nil, err
	}
	trigger, err := NewTrigger(cfg, clients)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Clock: c, Clients: clients, Store: st, trigger: trigger}

	a.Origins = origin.NewRegistry(st, func(region string) origin.S3API { return clients.S3(region) }, origin.Options{
		AccessControl: clients.CloudFront(),
		StorageSuffix: cfg.StorageSuffix,
		Clock:         c,
		Logger:        logger.With("component", "origin"),
	})
	a.Access = access.NewProvisioner(clients.CloudFront(), func(region string) access.BucketPolicyAPI { return clients.S3(region) }, logger.With("component", "access"))
	a.Deployer = edge.NewDeployer(clients.Lambda(), edge.DeployerOptions{
		RoleArn:  cfg.Edge.ExecutionRoleArn,
		Runtime:  cfg.Edge.Runtime,
		Timeout:  cfg.Edge.ActivationTimeout,
		Interval: cfg.Edge.ActivationInterval,
		Clock:    c,
		Logger:   logger.With("component", "edge"),
	})
	a.Reconciler = reconcile.NewReconciler(clients.CloudFront(), st, c, logger.With("component", "reconcile"))

	var metrics reconcile.MetricsPublisher
	if cfg.MetricsNamespace != "" {
		metrics = reconcile.NewCloudWatchMetrics(clients.CloudWatch(), cfg.MetricsNamespace, c)
	}
	a.Scanner = reconcile.NewScanner(st, a.Reconciler, reconcile.ScannerOptions{
		Workers: cfg.ScanWorkers,
		Metrics: metrics,
		Logger:  logger.With("component", "scanner"),
	})
	a.Distributions = distribution.NewOrchestrator(distribution.Deps{
		CloudFront:    clients.CloudFront(),
		Store:         st,
		Origins:       a.Origins,
		Access:        a.Access,
		Deployer:      a.Deployer,
		Statuses:      a.Reconciler,
		Trigger:       trigger,
		CachePolicyID: cfg.CachePolicyID,
		Clock:         c,
		Logger:        logger.With("component", "distribution"),
	})
	a.Templates = template.NewRegistry(st, a.Distributions, template.Options{
		Clock:  c,
		Logger: logger.With("component", "template"),
	})
	a.Schedules = schedule.NewInstaller(clients.Scheduler(), logger.With("component", "schedule"))
	return a, nil
}

// Close はストアと監視トリガーを閉じます
func (a *App) Close() error {
	if closer, ok := a.trigger.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn("monitor trigger close failed", "error", err)
		}
	}
	return a.Store.Close()
}

// OpenStore は設定されたバックエンドのストアを開きます
func OpenStore(cfg *config.Config, clients *aws.Clients) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		return dynamo.New(clients.DynamoDB(), dynamo.Tables{
			Origins:       cfg.Store.OriginsTable,
			Distributions: cfg.Store.DistributionsTable,
			EdgeFunctions: cfg.Store.EdgeFunctionsTable,
			History:       cfg.Store.HistoryTable,
			Templates:     cfg.Store.TemplatesTable,
		}), nil
	case config.BackendSQLite, "":
		st, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("SQLiteストアを開けません (%s): %w", cfg.Store.SQLitePath, err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("未対応のストアバックエンドです: %q", cfg.Store.Backend)
	}
}

// NewTrigger は設定された方式の監視トリガーを作成します
func NewTrigger(cfg *config.Config, clients *aws.Clients) (workflow.Trigger, error) {
	switch cfg.Monitor.Kind {
	case config.MonitorEventBridge:
		return workflow.NewEventBridge(clients.EventBridge(), cfg.Monitor.EventBusName, cfg.Monitor.Source), nil
	case config.MonitorKafka:
		return workflow.NewKafka(cfg.Monitor.KafkaBrokers, cfg.Monitor.KafkaTopic)
	case config.MonitorNone, "":
		return workflow.Noop{}, nil
	default:
		return nil, fmt.Errorf("未対応の監視方式です: %q", cfg.Monitor.Kind)
	}
}

// NewLogger はレベルと形式を指定して slog.Logger を作成します。形式が json 以外ならテキストです
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("未対応のログレベルです: %q", level)
	}
	opts := &slog.HandlerOptions{Level: lv}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
