package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocdn/internal/domain"
	"geocdn/internal/service/reconcile"
)

type stubReconciler struct {
	ids []string
	err error
}

func (s *stubReconciler) Reconcile(_ context.Context, id string) (*reconcile.Outcome, error) {
	s.ids = append(s.ids, id)
	if s.err != nil {
		return nil, s.err
	}
	return &reconcile.Outcome{DistributionID: id, Status: domain.StatusDeployed, Changed: true}, nil
}

type stubScanner struct{ calls int }

func (s *stubScanner) Scan(context.Context) (*reconcile.ScanReport, error) {
	s.calls++
	return &reconcile.ScanReport{TotalFound: 2, Succeeded: 2}, nil
}

func newHandler() (*handler, *stubReconciler, *stubScanner) {
	r := &stubReconciler{}
	s := &stubScanner{}
	return &handler{reconciler: r, scanner: s, logger: slog.Default()}, r, s
}

func TestTargetID(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{``, ""},
		{`{}`, ""},
		{`{"distributionId":"d-1"}`, "d-1"},
		{`{"detail-type":"DistributionMonitorRequested","detail":{"distributionId":"d-2"}}`, "d-2"},
		{`{"detail":{}}`, ""},
	}
	for _, tc := range cases {
		got, err := targetID(json.RawMessage(tc.payload))
		require.NoError(t, err, tc.payload)
		assert.Equal(t, tc.want, got, tc.payload)
	}

	_, err := targetID(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestHandleScheduledScan(t *testing.T) {
	h, r, s := newHandler()
	resp, err := h.Handle(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, modeScan, resp.Mode)
	assert.Equal(t, 2, resp.Report.Succeeded)
	assert.Equal(t, 1, s.calls)
	assert.Empty(t, r.ids)
}

func TestHandleMonitorEvent(t *testing.T) {
	h, r, s := newHandler()
	resp, err := h.Handle(context.Background(), json.RawMessage(`{"detail":{"distributionId":"d-9","cloudfrontId":"E9"}}`))
	require.NoError(t, err)
	assert.Equal(t, modeReconcile, resp.Mode)
	assert.Equal(t, []string{"d-9"}, r.ids)
	assert.True(t, resp.Outcome.Changed)
	assert.Zero(t, s.calls)
}

func TestHandleReconcileError(t *testing.T) {
	h, r, _ := newHandler()
	r.err = errors.New("boom")
	_, err := h.Handle(context.Background(), json.RawMessage(`{"distributionId":"d-1"}`))
	assert.Error(t, err)
}
