package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRequest = Request{
	DistributionID: "5f0c7c6e-0d2a-4c57-9d6c-0a7c1c1e2f10",
	ProviderID:     "E2ABCDEF123",
	MultiOrigin:    true,
	RequestedAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
}

type fakeEventBridge struct {
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
}

func (f *fakeEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestEventBridgeStart(t *testing.T) {
	fake := &fakeEventBridge{}
	trigger := NewEventBridge(fake, "", "geocdn.distribution")

	require.NoError(t, trigger.Start(context.Background(), testRequest))
	require.Len(t, fake.inputs, 1)
	entry := fake.inputs[0].Entries[0]
	assert.Equal(t, "default", aws.ToString(entry.EventBusName))
	assert.Equal(t, DetailType, aws.ToString(entry.DetailType))

	var got Request
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &got))
	assert.Equal(t, testRequest, got)
}

func TestEventBridgeRejectedEntry(t *testing.T) {
	fake := &fakeEventBridge{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []ebtypes.PutEventsResultEntry{{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try later")}},
	}}
	err := NewEventBridge(fake, "bus", "src").Start(context.Background(), testRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InternalFailure")
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.messages = append(f.messages, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaStartKeysByDistribution(t *testing.T) {
	w := &fakeWriter{}
	trigger := NewKafkaWithWriter(w, "geocdn-monitor")

	require.NoError(t, trigger.Start(context.Background(), testRequest))
	require.Len(t, w.messages, 1)
	assert.Equal(t, testRequest.DistributionID, string(w.messages[0].Key))
	assert.Equal(t, testRequest.RequestedAt, w.messages[0].Time)

	require.NoError(t, trigger.Close())
	assert.True(t, w.closed)
}

func TestKafkaStartWrapsError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	err := NewKafkaWithWriter(w, "geocdn-monitor").Start(context.Background(), testRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocdn-monitor")
}

func TestNewKafkaValidates(t *testing.T) {
	_, err := NewKafka(nil, "topic")
	assert.Error(t, err)
	_, err = NewKafka([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var trigger Trigger = Noop{}
	assert.NoError(t, trigger.Start(context.Background(), testRequest))
}
