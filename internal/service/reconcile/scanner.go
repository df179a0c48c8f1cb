package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/store"
)

// DefaultWorkers はスキャン時の同時照合数
const DefaultWorkers = 10

// Reconcilable は1件のディストリビューションを照合できるもの
type Reconcilable interface {
	Reconcile(ctx context.Context, distributionID string) (*Outcome, error)
}

// ScanReport はスキャン1回分の結果
type ScanReport struct {
	TotalFound   int                    `json:"totalFound"`
	ProcessedIDs []string               `json:"processedIds"`
	Skipped      []string               `json:"skipped,omitempty"`
	Succeeded    int                    `json:"succeeded"`
	Failed       int                    `json:"failed"`
	Failures     map[string]string      `json:"failures,omitempty"`
	Results      []common.ProcessResult `json:"-"`
}

// Scanner は照合待ちのディストリビューションを並列に照合します
type Scanner struct {
	store      store.Distributions
	reconciler Reconcilable
	workers    int
	metrics    MetricsPublisher
	logger     *slog.Logger
}

// ScannerOptions は Scanner の任意設定
type ScannerOptions struct {
	Workers int
	// Metrics が nil のときメトリクスは送信しません
	Metrics MetricsPublisher
	Logger  *slog.Logger
}

// NewScanner は Scanner を作成します
func NewScanner(st store.Distributions, reconciler Reconcilable, opts ScannerOptions) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scanner{store: st, reconciler: reconciler, workers: opts.Workers, metrics: opts.Metrics, logger: opts.Logger}
}

// Scan は InProgress / Creating のディストリビューションを照合します。
// 1件の失敗は他の照合に影響せず、バッチ全体のエラーにもなりません
func (s *Scanner) Scan(ctx context.Context) (*ScanReport, error) {
	pending, err := s.store.ListByStatus(ctx, domain.PendingStatuses...)
	if err != nil {
		return nil, fmt.Errorf("照合待ちディストリビューションの取得に失敗: %w", err)
	}

	report := &ScanReport{TotalFound: len(pending), ProcessedIDs: []string{}}
	for _, d := range pending {
		if d.ProviderID == "" {
			report.Skipped = append(report.Skipped, d.DistributionID)
			continue
		}
		report.ProcessedIDs = append(report.ProcessedIDs, d.DistributionID)
	}
	s.logger.Info("scan started", "found", report.TotalFound, "processing", len(report.ProcessedIDs), "workers", s.workers)

	report.Results = common.RunEach(report.ProcessedIDs, s.workers, func(id string) error {
		_, err := s.reconciler.Reconcile(ctx, id)
		if err != nil {
			s.logger.Warn("reconcile failed", "distribution", id, "error", err)
		}
		return err
	})
	report.Succeeded, report.Failed = common.CollectResults(report.Results)
	if report.Failed > 0 {
		report.Failures = common.FailedItems(report.Results)
	}
	s.logger.Info("scan finished", "succeeded", report.Succeeded, "failed", report.Failed)

	if s.metrics != nil {
		if err := s.metrics.Publish(ctx, report); err != nil {
			s.logger.Warn("scan metrics publish failed", "error", err)
		}
	}
	return report, nil
}
