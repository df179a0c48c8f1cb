package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocdn/internal/clock"
	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/store/sqlite"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeCloudFront struct {
	mu        sync.Mutex
	statuses  map[string][]string
	disabled  map[string]bool
	getErr    map[string]error
	comment   string
	updateErr error
	updates   []*cloudfront.UpdateDistributionInput
}

func (f *fakeCloudFront) GetDistribution(_ context.Context, in *cloudfront.GetDistributionInput, _ ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.Id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	seq := f.statuses[id]
	status := seq[0]
	if len(seq) > 1 {
		f.statuses[id] = seq[1:]
	}
	return &cloudfront.GetDistributionOutput{
		Distribution: &cftypes.Distribution{
			Id:                 in.Id,
			Status:             aws.String(status),
			DistributionConfig: &cftypes.DistributionConfig{Enabled: aws.Bool(!f.disabled[id])},
		},
		ETag: aws.String("ETAG1"),
	}, nil
}

func (f *fakeCloudFront) GetDistributionConfig(_ context.Context, in *cloudfront.GetDistributionConfigInput, _ ...func(*cloudfront.Options)) (*cloudfront.GetDistributionConfigOutput, error) {
	return &cloudfront.GetDistributionConfigOutput{
		DistributionConfig: &cftypes.DistributionConfig{Comment: aws.String(f.comment), Enabled: aws.Bool(true)},
		ETag:               aws.String("ETAG2"),
	}, nil
}

func (f *fakeCloudFront) UpdateDistribution(_ context.Context, in *cloudfront.UpdateDistributionInput, _ ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	return &cloudfront.UpdateDistributionOutput{}, f.updateErr
}

type fixture struct {
	store *sqlite.Store
	cf    *fakeCloudFront
	clock *clock.FakeClock
	rec   *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "geocdn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cf := &fakeCloudFront{statuses: map[string][]string{}, disabled: map[string]bool{}, getErr: map[string]error{}, comment: "Multi-origin distribution: site"}
	c := clock.Fake(start)
	return &fixture{store: st, cf: cf, clock: c, rec: NewReconciler(cf, st, c, nil)}
}

func (f *fixture) put(t *testing.T, id string, status domain.Status, multi bool) domain.Distribution {
	t.Helper()
	d := domain.Distribution{
		DistributionID: id,
		ProviderID:     "E" + strings.ToUpper(id),
		Name:           "site-" + id,
		Status:         status,
		Version:        1,
		CreatedAt:      start,
		UpdatedAt:      start,
	}
	if multi {
		d.IsMultiOrigin = true
		d.EdgeFunctionID = "func-1"
		d.AccessIdentityID = "OAI1"
		d.MultiOrigin = &domain.MultiOriginConfig{DefaultOriginID: "origin-1", PresetKey: "asia-us"}
	}
	require.NoError(t, f.store.PutDistribution(context.Background(), d))
	return d
}

func (f *fixture) history(t *testing.T, id string) []domain.HistoryEntry {
	t.Helper()
	entries, err := f.store.ListHistory(context.Background(), id, 0)
	require.NoError(t, err)
	return entries
}

func TestReconcileUnchangedWritesNothing(t *testing.T) {
	f := newFixture(t)
	d := f.put(t, "a", domain.StatusInProgress, true)
	f.cf.statuses[d.ProviderID] = []string{"InProgress"}

	outcome, err := f.rec.Reconcile(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, outcome.Changed)

	got, err := f.store.GetDistribution(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, start, got.UpdatedAt)
	assert.Empty(t, f.history(t, "a"))
	assert.Empty(t, f.cf.updates)
}

func TestReconcileInProgressToDeployedNudgesMultiOrigin(t *testing.T) {
	f := newFixture(t)
	d := f.put(t, "a", domain.StatusInProgress, true)
	f.cf.statuses[d.ProviderID] = []string{"Deployed"}

	outcome, err := f.rec.Reconcile(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.True(t, outcome.Nudged)
	assert.Equal(t, int64(2), outcome.Version)

	got, err := f.store.GetDistribution(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeployed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	entries := f.history(t, "a")
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionStatusChanged, entries[0].Action)
	assert.Equal(t, domain.SystemUser, entries[0].User)
	assert.Equal(t, domain.StatusInProgress, entries[0].PreviousStatus)
	assert.Equal(t, domain.StatusDeployed, entries[0].NewStatus)
	assert.Equal(t, int64(2), entries[0].Version)

	require.Len(t, f.cf.updates, 1)
	assert.Equal(t, "ETAG2", aws.ToString(f.cf.updates[0].IfMatch))
	assert.Equal(t, fmt.Sprintf("Multi-origin distribution: site [Replication: %d]", start.UnixMilli()),
		aws.ToString(f.cf.updates[0].DistributionConfig.Comment))
}

func TestReconcileSkipsNudgeForDisabledDistribution(t *testing.T) {
	f := newFixture(t)
	d := f.put(t, "a", domain.StatusInProgress, true)
	f.cf.statuses[d.ProviderID] = []string{"Deployed"}
	f.cf.disabled[d.ProviderID] = true

	outcome, err := f.rec.Reconcile(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.False(t, outcome.Nudged)
	assert.Equal(t, domain.StatusDeployed, outcome.Status)
	assert.Empty(t, f.cf.updates)
}

func TestNudgeOnlyOnInProgressToDeployedMultiOrigin(t *testing.T) {
	cases := []struct {
		name   string
		from   domain.Status
		to     string
		multi  bool
		nudged bool
	}{
		{"creating to deployed", domain.StatusCreating, "Deployed", true, false},
		{"single origin", domain.StatusInProgress, "Deployed", false, false},
		{"in progress to failed", domain.StatusInProgress, "Failed", true, false},
		{"creating to in progress", domain.StatusCreating, "InProgress", true, false},
		{"in progress to deployed", domain.StatusInProgress, "Deployed", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.put(t, "a", tc.from, tc.multi)
			f.cf.statuses[d.ProviderID] = []string{tc.to}

			outcome, err := f.rec.Reconcile(context.Background(), "a")
			require.NoError(t, err)
			assert.True(t, outcome.Changed)
			assert.Equal(t, tc.nudged, outcome.Nudged)
			assert.Equal(t, tc.nudged, len(f.cf.updates) == 1)
		})
	}
}

func TestNudgeFailureDoesNotFailReconcile(t *testing.T) {
	f := newFixture(t)
	d := f.put(t, "a", domain.StatusInProgress, true)
	f.cf.statuses[d.ProviderID] = []string{"Deployed"}
	f.cf.updateErr = &smithy.GenericAPIError{Code: "PreconditionFailed"}

	outcome, err := f.rec.Reconcile(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.False(t, outcome.Nudged)
	assert.Len(t, f.history(t, "a"), 1)
}

func TestTransitionLosingRaceAppendsNoHistory(t *testing.T) {
	f := newFixture(t)
	d := f.put(t, "a", domain.StatusInProgress, false)

	applied, err := f.rec.Transition(context.Background(), d, domain.StatusDeployed, domain.SystemUser, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	// 古いバージョンのままの2回目の書き込みは競合として扱われる
	applied, err = f.rec.Transition(context.Background(), d, domain.StatusDeployed, domain.SystemUser, nil)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, f.history(t, "a"), 1)
}

func TestReconcileErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.Reconcile(context.Background(), "missing")
	assert.True(t, common.IsKind(err, common.KindNotFound))

	d := f.put(t, "a", domain.StatusInProgress, false)
	f.cf.getErr[d.ProviderID] = &smithy.GenericAPIError{Code: "AccessDenied"}
	_, err = f.rec.Reconcile(context.Background(), "a")
	assert.True(t, common.IsKind(err, common.KindProvider))
	assert.Equal(t, "AccessDenied", common.ErrorCode(err))
}

func TestStatusFallsBackToStored(t *testing.T) {
	f := newFixture(t)
	d := f.put(t, "a", domain.StatusInProgress, false)
	f.cf.getErr[d.ProviderID] = errors.New("network down")

	view, err := f.rec.Status(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, view.Live)
	assert.Equal(t, domain.StatusInProgress, view.Status)

	delete(f.cf.getErr, d.ProviderID)
	f.cf.statuses[d.ProviderID] = []string{"Deployed"}
	view, err = f.rec.Status(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, view.Live)
	assert.Equal(t, domain.StatusDeployed, view.Status)
	assert.True(t, *view.Enabled)
}

func TestNudgeComment(t *testing.T) {
	now := time.UnixMilli(1714564800000)
	cases := map[string]string{
		"":                                    "[Replication: 1714564800000]",
		"site":                                "site [Replication: 1714564800000]",
		"site [Replication: 1700000000000]":   "site [Replication: 1714564800000]",
		"site [Lambda@Edge Associated: 1234]": "site [Replication: 1714564800000]",
		"site [R:1700000000000]":              "site [Replication: 1714564800000]",
	}
	for in, want := range cases {
		assert.Equal(t, want, NudgeComment(in, now), in)
	}

	long := strings.Repeat("あ", 120)
	got := NudgeComment(long+" [Replication: 1]", now)
	assert.Equal(t, strings.Repeat("あ", 100)+" [R:1714564800000]", got)
	assert.LessOrEqual(t, len([]rune(got)), 128)
}

type fakeReconciler struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeReconciler) Reconcile(_ context.Context, id string) (*Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if id == f.failOn {
		return nil, errors.New("boom")
	}
	if id == "panic" {
		panic("unexpected")
	}
	return &Outcome{DistributionID: id}, nil
}

type fakeMetrics struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeMetrics) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestScanIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a", domain.StatusInProgress, false)
	f.put(t, "b", domain.StatusCreating, false)
	f.put(t, "panic", domain.StatusInProgress, false)
	f.put(t, "done", domain.StatusDeployed, false)
	require.NoError(t, f.store.PutDistribution(context.Background(), domain.Distribution{
		DistributionID: "no-provider", Name: "x", Status: domain.StatusCreating, Version: 1, CreatedAt: start, UpdatedAt: start,
	}))

	rec := &fakeReconciler{failOn: "b"}
	metrics := &fakeMetrics{}
	scanner := NewScanner(f.store, rec, ScannerOptions{Metrics: NewCloudWatchMetrics(metrics, "GeoCDN", f.clock)})

	report, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.TotalFound)
	assert.ElementsMatch(t, []string{"a", "b", "panic"}, report.ProcessedIDs)
	assert.Equal(t, []string{"no-provider"}, report.Skipped)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Contains(t, report.Failures, "b")
	assert.Contains(t, report.Failures, "panic")
	assert.ElementsMatch(t, []string{"a", "b", "panic"}, rec.calls)

	require.Len(t, metrics.inputs, 1)
	data := metrics.inputs[0].MetricData
	require.Len(t, data, 3)
	assert.Equal(t, "PendingDistributions", aws.ToString(data[0].MetricName))
	assert.Equal(t, 4.0, aws.ToFloat64(data[0].Value))
	assert.Equal(t, 2.0, aws.ToFloat64(data[2].Value))
}

func TestWaitUntilTerminal(t *testing.T) {
	f := newFixture(t)
	d := f.put(t, "a", domain.StatusInProgress, false)
	f.cf.statuses[d.ProviderID] = []string{"InProgress", "InProgress", "Deployed"}

	polls := 0
	outcome, err := f.rec.WaitUntilTerminal(context.Background(), "a", WaitOptions{
		Timeout:  time.Minute,
		Interval: 10 * time.Second,
		OnPoll:   func(*Outcome) { polls++ },
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeployed, outcome.Status)
	assert.Equal(t, 3, polls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, f.clock.Sleeps())
}

func TestWaitUntilTerminalTimesOut(t *testing.T) {
	f := newFixture(t)
	d := f.put(t, "a", domain.StatusInProgress, false)
	f.cf.statuses[d.ProviderID] = []string{"InProgress"}

	_, err := f.rec.WaitUntilTerminal(context.Background(), "a", WaitOptions{Timeout: 30 * time.Second, Interval: 10 * time.Second})
	assert.True(t, common.IsKind(err, common.KindDeploymentTimeout))
}
