package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"geocdn/internal/service/reconcile"
)

// 実行モード
const (
	modeScan      = "scan"
	modeReconcile = "reconcile"
)

type reconciler interface {
	Reconcile(ctx context.Context, distributionID string) (*reconcile.Outcome, error)
}

type scanner interface {
	Scan(ctx context.Context) (*reconcile.ScanReport, error)
}

type handler struct {
	reconciler reconciler
	scanner    scanner
	logger     *slog.Logger
}

// response はLambdaの戻り値
type response struct {
	Mode    string                `json:"mode"`
	Outcome *reconcile.Outcome    `json:"outcome,omitempty"`
	Report  *reconcile.ScanReport `json:"report,omitempty"`
}

// invocation は直接呼び出しとEventBridgeイベントの両方を表します
type invocation struct {
	DistributionID string `json:"distributionId"`
	Detail         *struct {
		DistributionID string `json:"distributionId"`
	} `json:"detail"`
}

// targetID はイベントから照合対象のディストリビューションIDを取り出します。空ならスキャンです
func targetID(payload json.RawMessage) (string, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return "", nil
	}
	var in invocation
	if err := json.Unmarshal(payload, &in); err != nil {
		return "", fmt.Errorf("イベントを解析できません: %w", err)
	}
	if in.DistributionID != "" {
		return in.DistributionID, nil
	}
	if in.Detail != nil {
		return in.Detail.DistributionID, nil
	}
	return "", nil
}

// Handle はイベントに distributionId があれば1件を照合し、なければスキャンします
func (h *handler) Handle(ctx context.Context, payload json.RawMessage) (*response, error) {
	id, err := targetID(payload)
	if err != nil {
		return nil, err
	}
	if id != "" {
		outcome, err := h.reconciler.Reconcile(ctx, id)
		if err != nil {
			h.logger.Error("reconcile failed", "distribution", id, "error", err)
			return nil, err
		}
		return &response{Mode: modeReconcile, Outcome: outcome}, nil
	}

	report, err := h.scanner.Scan(ctx)
	if err != nil {
		h.logger.Error("scan failed", "error", err)
		return nil, err
	}
	h.logger.Info("scan finished", "found", report.TotalFound, "succeeded", report.Succeeded, "failed", report.Failed)
	return &response{Mode: modeScan, Report: report}, nil
}
