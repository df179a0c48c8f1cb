package app

import (
	"bytes"
	"path/filepath"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocdn/internal/aws"
	"geocdn/internal/clock"
	"geocdn/internal/config"
	"geocdn/internal/service/workflow"
	"geocdn/internal/store/dynamo"
	"geocdn/internal/store/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := config.New()
	v.Set("store.sqlite-path", filepath.Join(t.TempDir(), "geocdn.db"))
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func testClients() *aws.Clients {
	return aws.NewClientsFromConfig(sdkaws.Config{Region: "ap-northeast-1"}, "")
}

func TestBuildWithSQLite(t *testing.T) {
	cfg := testConfig(t)
	a, err := Build(cfg, testClients(), clock.Real(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.NotNil(t, a.Logger)
	assert.IsType(t, &sqlite.Store{}, a.Store)
	assert.NotNil(t, a.Distributions)
	assert.NotNil(t, a.Templates)
	assert.NotNil(t, a.Scanner)
	assert.NotNil(t, a.Schedules)
	assert.IsType(t, workflow.Noop{}, a.trigger)
	assert.Equal(t, "amazonaws.com", a.Origins.StorageSuffix())
}

func TestOpenStoreDynamo(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendDynamoDB
	st, err := OpenStore(cfg, testClients())
	require.NoError(t, err)
	assert.IsType(t, &dynamo.Store{}, st)
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "postgres"
	_, err := OpenStore(cfg, testClients())
	assert.Error(t, err)
}

func TestNewTrigger(t *testing.T) {
	cfg := testConfig(t)

	cfg.Monitor.Kind = config.MonitorEventBridge
	tr, err := NewTrigger(cfg, testClients())
	require.NoError(t, err)
	assert.IsType(t, &workflow.EventBridge{}, tr)

	cfg.Monitor.Kind = config.MonitorKafka
	cfg.Monitor.KafkaBrokers = []string{"localhost:9092"}
	tr, err = NewTrigger(cfg, testClients())
	require.NoError(t, err)
	assert.IsType(t, &workflow.Kafka{}, tr)
	require.NoError(t, tr.(*workflow.Kafka).Close())

	cfg.Monitor.Kind = "sqs"
	_, err = NewTrigger(cfg, testClients())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&buf, "verbose", "text")
	assert.Error(t, err)
}
