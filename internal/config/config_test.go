package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.EdgeRegion)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "nodejs18.x", cfg.Edge.Runtime)
	assert.Equal(t, 60*time.Second, cfg.Edge.ActivationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Edge.ActivationInterval)
	assert.Equal(t, "658327ea-f89d-4fab-a63d-7e88639e58f6", cfg.CachePolicyID)
	assert.Equal(t, 10, cfg.ScanWorkers)
	assert.Equal(t, MonitorNone, cfg.Monitor.Kind)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GEOCDN_STORE_BACKEND", "dynamodb")
	t.Setenv("GEOCDN_STORE_DISTRIBUTIONS_TABLE", "dists")
	t.Setenv("GEOCDN_MONITOR_KIND", "kafka")
	t.Setenv("GEOCDN_MONITOR_KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("GEOCDN_SCAN_WORKERS", "4")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, BackendDynamoDB, cfg.Store.Backend)
	assert.Equal(t, "dists", cfg.Store.DistributionsTable)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Monitor.KafkaBrokers)
	assert.Equal(t, 4, cfg.ScanWorkers)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geocdn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("edge:\n  role-arn: arn:aws:iam::123456789012:role/edge\nstorage-suffix: amazonaws.com.cn\n"), 0o600))

	v := New()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:iam::123456789012:role/edge", cfg.Edge.ExecutionRoleArn)
	assert.Equal(t, "amazonaws.com.cn", cfg.StorageSuffix)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	v := New()
	v.Set("store.backend", "postgres")
	_, err := Load(v)
	require.Error(t, err)

	v = New()
	v.Set("monitor.kind", "kafka")
	_, err = Load(v)
	require.Error(t, err)

	v = New()
	v.Set("edge.activation-timeout", 0)
	_, err = Load(v)
	require.Error(t, err)
}

type fakeParameters struct {
	values map[string]string
	calls  []string
}

func (f *fakeParameters) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(in.Name)
	f.calls = append(f.calls, name)
	v, ok := f.values[name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

func TestResolveParameters(t *testing.T) {
	v := New()
	v.Set("edge.role-arn", "ssm:/geocdn/edge-role")
	cfg, err := Load(v)
	require.NoError(t, err)
	require.True(t, cfg.NeedsParameters())

	params := &fakeParameters{values: map[string]string{"/geocdn/edge-role": "arn:aws:iam::123456789012:role/edge"}}
	require.NoError(t, cfg.ResolveParameters(context.Background(), params))

	assert.Equal(t, "arn:aws:iam::123456789012:role/edge", cfg.Edge.ExecutionRoleArn)
	assert.Equal(t, []string{"/geocdn/edge-role"}, params.calls)
	assert.False(t, cfg.NeedsParameters())
}

func TestResolveParametersMissing(t *testing.T) {
	v := New()
	v.Set("cache-policy-id", "ssm:/missing")
	cfg, err := Load(v)
	require.NoError(t, err)

	err = cfg.ResolveParameters(context.Background(), &fakeParameters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/missing")
}
