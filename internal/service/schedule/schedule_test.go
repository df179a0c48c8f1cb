package schedule

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedtypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocdn/internal/service/common"
)

type fakeScheduler struct {
	existing *scheduler.GetScheduleOutput
	created  []*scheduler.CreateScheduleInput
	updated  []*scheduler.UpdateScheduleInput
	deleted  []string
}

func notFound() error {
	return &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "schedule not found"}
}

func (f *fakeScheduler) GetSchedule(_ context.Context, in *scheduler.GetScheduleInput, _ ...func(*scheduler.Options)) (*scheduler.GetScheduleOutput, error) {
	if f.existing == nil {
		return nil, notFound()
	}
	return f.existing, nil
}

func (f *fakeScheduler) CreateSchedule(_ context.Context, in *scheduler.CreateScheduleInput, _ ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error) {
	f.created = append(f.created, in)
	return &scheduler.CreateScheduleOutput{ScheduleArn: aws.String("arn:aws:scheduler:::schedule/default/" + aws.ToString(in.Name))}, nil
}

func (f *fakeScheduler) UpdateSchedule(_ context.Context, in *scheduler.UpdateScheduleInput, _ ...func(*scheduler.Options)) (*scheduler.UpdateScheduleOutput, error) {
	f.updated = append(f.updated, in)
	return &scheduler.UpdateScheduleOutput{}, nil
}

func (f *fakeScheduler) DeleteSchedule(_ context.Context, in *scheduler.DeleteScheduleInput, _ ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error) {
	if f.existing == nil {
		return nil, notFound()
	}
	f.deleted = append(f.deleted, aws.ToString(in.Name))
	return &scheduler.DeleteScheduleOutput{}, nil
}

func scanSchedule() Spec {
	return Spec{
		Name:      "geocdn-pending-scan",
		TargetArn: "arn:aws:lambda:ap-northeast-1:123456789012:function:geocdn-scanner",
		RoleArn:   "arn:aws:iam::123456789012:role/geocdn-scheduler",
	}
}

func TestInstallCreatesMissingSchedule(t *testing.T) {
	f := &fakeScheduler{}
	created, err := NewInstaller(f, nil).Install(context.Background(), scanSchedule())
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, f.created, 1)
	assert.Equal(t, DefaultExpression, aws.ToString(f.created[0].ScheduleExpression))
	assert.Equal(t, "{}", aws.ToString(f.created[0].Target.Input))
	assert.Equal(t, schedtypes.FlexibleTimeWindowModeOff, f.created[0].FlexibleTimeWindow.Mode)
	assert.Empty(t, f.updated)
}

func TestInstallUpdatesExistingSchedule(t *testing.T) {
	f := &fakeScheduler{existing: &scheduler.GetScheduleOutput{Name: aws.String("geocdn-pending-scan"), State: schedtypes.ScheduleStateDisabled}}
	s := scanSchedule()
	s.Expression = "rate(1 minute)"
	created, err := NewInstaller(f, nil).Install(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, f.updated, 1)
	assert.Equal(t, "rate(1 minute)", aws.ToString(f.updated[0].ScheduleExpression))
	assert.Equal(t, schedtypes.ScheduleStateEnabled, f.updated[0].State)
	assert.Empty(t, f.created)
}

func TestInstallValidates(t *testing.T) {
	_, err := NewInstaller(&fakeScheduler{}, nil).Install(context.Background(), Spec{Name: "x"})
	assert.True(t, common.IsKind(err, common.KindValidation))
}

func TestSetStateKeepsConfiguration(t *testing.T) {
	f := &fakeScheduler{existing: &scheduler.GetScheduleOutput{
		Name:               aws.String("geocdn-pending-scan"),
		ScheduleExpression: aws.String("rate(5 minutes)"),
		State:              schedtypes.ScheduleStateEnabled,
		Target:             &schedtypes.Target{Arn: aws.String("arn:target")},
	}}
	inst := NewInstaller(f, nil)

	require.NoError(t, inst.SetState(context.Background(), "geocdn-pending-scan", true))
	assert.Empty(t, f.updated)

	require.NoError(t, inst.SetState(context.Background(), "geocdn-pending-scan", false))
	require.Len(t, f.updated, 1)
	assert.Equal(t, schedtypes.ScheduleStateDisabled, f.updated[0].State)
	assert.Equal(t, "arn:target", aws.ToString(f.updated[0].Target.Arn))
}

func TestGetAndRemove(t *testing.T) {
	f := &fakeScheduler{}
	inst := NewInstaller(f, nil)

	_, err := inst.Get(context.Background(), "missing")
	assert.True(t, common.IsKind(err, common.KindNotFound))
	require.NoError(t, inst.Remove(context.Background(), "missing"))

	f.existing = &scheduler.GetScheduleOutput{
		Name:               aws.String("geocdn-pending-scan"),
		ScheduleExpression: aws.String("rate(5 minutes)"),
		State:              schedtypes.ScheduleStateEnabled,
		Target:             &schedtypes.Target{Arn: aws.String("arn:target")},
	}
	s, err := inst.Get(context.Background(), "geocdn-pending-scan")
	require.NoError(t, err)
	assert.Equal(t, StateEnabled, s.State)
	assert.Equal(t, "arn:target", s.Target)

	require.NoError(t, inst.Remove(context.Background(), "geocdn-pending-scan"))
	assert.Equal(t, []string{"geocdn-pending-scan"}, f.deleted)
}
