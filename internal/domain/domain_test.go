package domain

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClassification(t *testing.T) {
	assert.True(t, StatusDeployed.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.False(t, StatusDisabling.IsTerminal())

	assert.True(t, StatusCreating.IsPending())
	assert.True(t, StatusInProgress.IsPending())
	assert.False(t, StatusDisabling.IsPending())
}

func TestOriginStorageDomain(t *testing.T) {
	o := Origin{BucketName: "b1", Region: "eu-west-1"}
	assert.Equal(t, "b1.s3.eu-west-1.amazonaws.com", o.StorageDomain(""))
	assert.Equal(t, "b1.s3.eu-west-1.amazonaws.com.cn", o.StorageDomain("amazonaws.com.cn"))
}

func TestDistributionValidate(t *testing.T) {
	d := Distribution{DistributionID: "d1", Version: 1, IsMultiOrigin: true}
	require.Error(t, d.Validate())

	d.EdgeFunctionID = "func-1"
	d.AccessIdentityID = "E123"
	d.MultiOrigin = &MultiOriginConfig{DefaultOriginID: "o-1"}
	require.NoError(t, d.Validate())

	d.Version = 0
	require.Error(t, d.Validate())
}

func TestNeedsPropagationNudge(t *testing.T) {
	multi := Distribution{IsMultiOrigin: true, EdgeFunctionID: "func-1"}
	assert.True(t, multi.NeedsPropagationNudge(StatusInProgress, StatusDeployed))
	assert.False(t, multi.NeedsPropagationNudge(StatusCreating, StatusDeployed))
	assert.False(t, multi.NeedsPropagationNudge(StatusDeployed, StatusInProgress))

	single := Distribution{}
	assert.False(t, single.NeedsPropagationNudge(StatusInProgress, StatusDeployed))

	noEdge := Distribution{IsMultiOrigin: true}
	assert.False(t, noEdge.NeedsPropagationNudge(StatusInProgress, StatusDeployed))
}

func TestNewID(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^origin-[0-9a-f]{8}$`), NewID("origin"))
	assert.NotEqual(t, NewID("func"), NewID("func"))
}
