package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocdn/internal/domain"
	"geocdn/internal/store"
)

var _ store.Store = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "geocdn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testOrigin(id string) domain.Origin {
	return domain.Origin{
		OriginID:   id,
		Name:       "assets-" + id,
		BucketName: "bucket-" + id,
		Region:     "ap-northeast-1",
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, Migrate(s.db))

	var version int
	require.NoError(t, s.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, 2, version)
}

func TestOriginAssociations(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutOrigin(ctx, testOrigin("origin-1")))
	arn := "arn:aws:cloudfront::123456789012:distribution/E1"

	require.NoError(t, s.AddAssociation(ctx, "origin-1", arn, baseTime.Add(time.Minute)))
	require.NoError(t, s.AddAssociation(ctx, "origin-1", arn, baseTime.Add(2*time.Minute)))

	got, err := s.GetOrigin(ctx, "origin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{arn}, got.AssociatedDistributions)
	assert.True(t, got.IsReferenced())
	assert.Equal(t, baseTime.Add(2*time.Minute), got.UpdatedAt)

	require.NoError(t, s.RemoveAssociation(ctx, "origin-1", arn, baseTime.Add(3*time.Minute)))
	require.NoError(t, s.RemoveAssociation(ctx, "origin-1", arn, baseTime.Add(4*time.Minute)))
	got, err = s.GetOrigin(ctx, "origin-1")
	require.NoError(t, err)
	assert.Empty(t, got.AssociatedDistributions)

	assert.ErrorIs(t, s.AddAssociation(ctx, "missing", arn, baseTime), store.ErrNotFound)
}

func TestOriginListUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutOrigin(ctx, testOrigin("origin-1")))
	second := testOrigin("origin-2")
	second.CreatedAt = baseTime.Add(time.Second)
	second.AssociatedDistributions = []string{"arn:a"}
	require.NoError(t, s.PutOrigin(ctx, second))

	list, err := s.ListOrigins(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "origin-1", list[0].OriginID)
	assert.Equal(t, []string{"arn:a"}, list[1].AssociatedDistributions)

	updated := list[0]
	updated.Description = "static assets"
	updated.WebsiteEnabled = true
	require.NoError(t, s.UpdateOrigin(ctx, updated))
	got, err := s.GetOrigin(ctx, "origin-1")
	require.NoError(t, err)
	assert.Equal(t, "static assets", got.Description)
	assert.True(t, got.WebsiteEnabled)

	require.NoError(t, s.DeleteOrigin(ctx, "origin-2"))
	assert.ErrorIs(t, s.DeleteOrigin(ctx, "origin-2"), store.ErrNotFound)
	_, err = s.GetOrigin(ctx, "origin-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDistribution(id string, status domain.Status) domain.Distribution {
	return domain.Distribution{
		DistributionID:   id,
		ProviderID:       "E" + id,
		Name:             "site-" + id,
		Status:           status,
		DomainName:       "d123.cloudfront.net",
		ARN:              "arn:aws:cloudfront::123456789012:distribution/E" + id,
		IsMultiOrigin:    true,
		MultiOrigin:      &domain.MultiOriginConfig{DefaultOriginID: "origin-1", AdditionalOriginIDs: []string{"origin-2"}, PresetKey: "asia-us"},
		EdgeFunctionID:   "func-1",
		AccessIdentityID: "E2OAI",
		Config:           json.RawMessage(`{"Enabled":true}`),
		Version:          1,
		CreatedAt:        baseTime,
		UpdatedAt:        baseTime,
	}
}

func TestDistributionRoundTripAndStatusFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutDistribution(ctx, testDistribution("a", domain.StatusInProgress)))
	require.NoError(t, s.PutDistribution(ctx, testDistribution("b", domain.StatusDeployed)))
	c := testDistribution("c", domain.StatusCreating)
	c.IsMultiOrigin = false
	c.MultiOrigin = nil
	c.Config = nil
	require.NoError(t, s.PutDistribution(ctx, c))

	got, err := s.GetDistribution(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.MultiOrigin)
	assert.Equal(t, []string{"origin-1", "origin-2"}, got.MultiOrigin.OriginIDs())
	assert.JSONEq(t, `{"Enabled":true}`, string(got.Config))
	assert.Equal(t, baseTime, got.CreatedAt)

	pending, err := s.ListByStatus(ctx, domain.PendingStatuses...)
	require.NoError(t, err)
	ids := []string{}
	for _, d := range pending {
		ids = append(ids, d.DistributionID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	all, err := s.ListDistributions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.GetDistribution(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateStatusIsConditionalOnVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.PutDistribution(ctx, testDistribution("a", domain.StatusInProgress)))

	require.NoError(t, s.UpdateStatus(ctx, "a", 1, domain.StatusDeployed, baseTime.Add(time.Minute)))
	assert.ErrorIs(t, s.UpdateStatus(ctx, "a", 1, domain.StatusFailed, baseTime.Add(2*time.Minute)), store.ErrConflict)
	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", 1, domain.StatusDeployed, baseTime), store.ErrNotFound)

	got, err := s.GetDistribution(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeployed, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, baseTime.Add(time.Minute), got.UpdatedAt)
}

func TestUpdateMetadataAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.PutDistribution(ctx, testDistribution("a", domain.StatusDeployed)))

	require.NoError(t, s.UpdateMetadata(ctx, "a", "renamed", "docs", baseTime.Add(time.Hour)))
	got, err := s.GetDistribution(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "docs", got.Description)
	assert.Equal(t, int64(1), got.Version)

	assert.ErrorIs(t, s.UpdateMetadata(ctx, "missing", "x", "", baseTime), store.ErrNotFound)
	require.NoError(t, s.DeleteDistribution(ctx, "a"))
	assert.ErrorIs(t, s.DeleteDistribution(ctx, "a"), store.ErrNotFound)
}

func TestEdgeFunctions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	f := domain.EdgeFunction{
		FunctionID:    "func-1",
		FunctionName:  "site-multi-origin-func-1",
		FunctionARN:   "arn:aws:lambda:us-east-1:123456789012:function:site-multi-origin-func-1",
		VersionedARN:  "arn:aws:lambda:us-east-1:123456789012:function:site-multi-origin-func-1:1",
		CodeContent:   "exports.handler = async () => {}",
		Origins:       []domain.OriginSnapshot{{OriginID: "origin-1", BucketName: "b1", Region: "us-east-1", Domain: "b1.s3.us-east-1.amazonaws.com"}},
		RegionMapping: map[string]string{"JP": "ap-northeast-1"},
		PresetKey:     "asia-us",
		Status:        domain.EdgeFunctionActive,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
	require.NoError(t, s.PutEdgeFunction(ctx, f))

	got, err := s.GetEdgeFunction(ctx, "func-1")
	require.NoError(t, err)
	assert.Equal(t, f, got)

	require.NoError(t, s.UpdateEdgeFunctionStatus(ctx, "func-1", domain.EdgeFunctionOrphan, baseTime.Add(time.Minute)))
	list, err := s.ListEdgeFunctions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.EdgeFunctionOrphan, list[0].Status)

	require.NoError(t, s.DeleteEdgeFunction(ctx, "func-1"))
	_, err = s.GetEdgeFunction(ctx, "func-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateEdgeFunctionStatus(ctx, "func-1", domain.EdgeFunctionActive, baseTime), store.ErrNotFound)
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.AppendHistory(ctx, domain.HistoryEntry{DistributionID: "a", Timestamp: baseTime, Action: domain.ActionCreated, User: "alice", Version: 1}))
	require.NoError(t, s.AppendHistory(ctx, domain.HistoryEntry{
		DistributionID: "a", Timestamp: baseTime.Add(time.Minute), Action: domain.ActionStatusChanged, User: domain.SystemUser,
		Version: 2, PreviousStatus: domain.StatusInProgress, NewStatus: domain.StatusDeployed,
	}))
	require.NoError(t, s.AppendHistory(ctx, domain.HistoryEntry{
		DistributionID: "a", Timestamp: baseTime.Add(2 * time.Minute), Action: domain.ActionInvalidationCreated, User: "alice",
		Details: map[string]string{"invalidationId": "I123"},
	}))
	require.NoError(t, s.AppendHistory(ctx, domain.HistoryEntry{DistributionID: "b", Timestamp: baseTime, Action: domain.ActionCreated, User: "bob"}))

	entries, err := s.ListHistory(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.ActionInvalidationCreated, entries[0].Action)
	assert.Equal(t, "I123", entries[0].Details["invalidationId"])
	assert.Equal(t, domain.StatusDeployed, entries[1].NewStatus)
	assert.Equal(t, domain.ActionCreated, entries[2].Action)

	limited, err := s.ListHistory(ctx, "a", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUpdateStatusConflictWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE distributions SET status = ?, version = version + 1, updated_at = ? WHERE distribution_id = ? AND version = ?`)).
		WithArgs("Deployed", sqlmock.AnyArg(), "a", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM distributions WHERE distribution_id = ?`)).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	s := New(db)
	err = s.UpdateStatus(context.Background(), "a", 3, domain.StatusDeployed, baseTime)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tmpl := domain.Template{
		TemplateID: "tmpl-1",
		Name:       "static-site",
		Category:   domain.DefaultTemplateCategory,
		Config:     json.RawMessage(`{"Comment":"static"}`),
		CreatedBy:  "alice",
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
	require.NoError(t, s.PutTemplate(ctx, tmpl))
	assert.Error(t, s.PutTemplate(ctx, tmpl))

	got, err := s.GetTemplate(ctx, "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, "static-site", got.Name)
	assert.JSONEq(t, `{"Comment":"static"}`, string(got.Config))
	assert.True(t, baseTime.Equal(got.CreatedAt))

	got.Name = "renamed"
	got.Config = json.RawMessage(`{"Comment":"changed"}`)
	got.UpdatedAt = baseTime.Add(time.Hour)
	require.NoError(t, s.UpdateTemplate(ctx, got))

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Name)
	assert.Equal(t, "alice", list[0].CreatedBy)
	assert.JSONEq(t, `{"Comment":"changed"}`, string(list[0].Config))

	require.NoError(t, s.DeleteTemplate(ctx, "tmpl-1"))
	assert.ErrorIs(t, s.DeleteTemplate(ctx, "tmpl-1"), store.ErrNotFound)
	_, err = s.GetTemplate(ctx, "tmpl-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTemplate(ctx, got), store.ErrNotFound)
}
