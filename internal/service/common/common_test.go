package common

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatusCodes(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:        http.StatusBadRequest,
		KindNotFound:          http.StatusNotFound,
		KindConflict:          http.StatusConflict,
		KindProvider:          http.StatusBadGateway,
		KindDeploymentTimeout: http.StatusGatewayTimeout,
		KindUnhandled:         http.StatusInternalServerError,
	}
	for kind, code := range cases {
		assert.Equal(t, code, kind.StatusCode(), kind)
	}
}

func TestProviderErrorKeepsCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "NoSuchDistribution", Message: "The specified distribution does not exist."}
	err := NewProviderError("GetDistribution", fmt.Errorf("operation error: %w", apiErr))

	assert.Equal(t, KindProvider, KindOf(err))
	assert.Equal(t, "NoSuchDistribution", ErrorCode(err))
	assert.True(t, IsAPIErrorCode(err, "Other", "NoSuchDistribution"))
	assert.Contains(t, err.Error(), "The specified distribution does not exist.")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnhandled, KindOf(errors.New("boom")))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("wrapped: %w", NewValidationError("name is required"))))
	assert.False(t, IsKind(nil, KindUnhandled))
}

func TestFailCarriesCategoryAndCause(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	res := Fail("ディストリビューションの作成に失敗しました", NewProviderError("CreateDistribution", apiErr))

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	require.NotNil(t, res.Details)
	assert.Equal(t, "ProviderError", res.Details.Category)
	assert.Equal(t, "AccessDenied", res.Details.Code)
	assert.Contains(t, res.Details.Cause, "denied")
	assert.NotEmpty(t, res.Error)
	require.Error(t, res.Err())

	res = res.WithExtra("edgeFunctionId", "func-1")
	assert.Equal(t, "func-1", res.Details.Extra["edgeFunctionId"])
}

func TestFailUnhandled(t *testing.T) {
	res := Fail("予期しないエラー", errors.New("nil pointer"))
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "Unhandled", res.Details.Category)
	assert.Equal(t, "nil pointer", res.Error)
}

func TestSucceedDefaultsTo200(t *testing.T) {
	res := Succeed(0, "ok", map[string]string{"id": "x"})
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NoError(t, res.Err())
}

func TestRunEachIsolatesFailures(t *testing.T) {
	var running, peak int32
	items := []string{"a", "b", "c", "d", "e", "f"}

	results := RunEach(items, 2, func(item string) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		switch item {
		case "b":
			return errors.New("failed")
		case "d":
			panic("unexpected")
		}
		return nil
	})

	require.Len(t, results, len(items))
	for i, r := range results {
		assert.Equal(t, items[i], r.Item)
	}
	ok, failed := CollectResults(results)
	assert.Equal(t, 4, ok)
	assert.Equal(t, 2, failed)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Contains(t, FailedItems(results), "d")
}

func TestMatchesFilter(t *testing.T) {
	assert.True(t, MatchesFilter("prod-web", "", false))
	assert.True(t, MatchesFilter("prod-web", "WEB", false))
	assert.False(t, MatchesFilter("prod-web", "WEB", true))
	assert.True(t, MatchesFilter("prod-web", "prod-*", false))
	assert.False(t, MatchesFilter("dev-web", "prod-*", false))
	assert.True(t, MatchesFilter("prod-web", "{dev,prod}-web", false))

	names := FilterBy([]string{"a-1", "b-1", "a-2"}, "a-*", func(s string) string { return s })
	assert.Equal(t, []string{"a-1", "a-2"}, names)
}

func TestFprintTableUsesDisplayWidth(t *testing.T) {
	var buf bytes.Buffer
	FprintTable(&buf, "", []TableColumn{{Header: "名前"}, {Header: "ID"}}, [][]string{{"東京", "o-1"}, {"eu", "o-22"}})

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "名前 ID   ", string(lines[0]))
	assert.Equal(t, "---- ---- ", string(lines[1]))
	assert.Equal(t, "東京 o-1  ", string(lines[2]))
	assert.Equal(t, "eu   o-22 ", string(lines[3]))
}
