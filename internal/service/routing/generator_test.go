package routing

import (
	"fmt"
	"strings"
	"testing"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	defaultOrigin = domain.Origin{OriginID: "o-default", Region: "us-east-1", BucketName: "b1"}
	euOrigin      = domain.Origin{OriginID: "o-2", Region: "eu-west-1", BucketName: "b2"}
	apOrigin      = domain.Origin{OriginID: "o-3", Region: "ap-northeast-1", BucketName: "b3"}
)

func TestGenerateAsiaUSExample(t *testing.T) {
	plan, err := Generate(Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin}, PresetKey: "asia-us"})
	require.NoError(t, err)

	assert.Equal(t, "b1.s3.us-east-1.amazonaws.com", plan.DefaultDomain)
	assert.Equal(t, "b2.s3.eu-west-1.amazonaws.com", plan.Resolve("DE"))
	assert.Equal(t, "o-2", plan.OriginFor("DE"))
	assert.Equal(t, "b1.s3.us-east-1.amazonaws.com", plan.Resolve(""))
	assert.Equal(t, "o-default", plan.OriginFor(""))
}

func TestPresetSlotWinsOverNearestRegion(t *testing.T) {
	plan, err := Generate(Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin}, PresetKey: "asia-us"})
	require.NoError(t, err)

	// ap-northeast-1 の優先順では us-east-1 が先に見つかるが、プリセットは追加オリジン1を指定している
	assert.Equal(t, "o-2", plan.OriginFor("JP"))
	assert.Equal(t, "o-2", plan.OriginFor("IN"))
	assert.Equal(t, "o-default", plan.OriginFor("BR"))
	assert.Equal(t, "o-2", plan.OriginFor("DE"))
	assert.Contains(t, plan.Code, "mapped !== DEFAULT_DOMAIN")
}

func TestGenerateGlobalThreeRequiresThreeOrigins(t *testing.T) {
	_, err := Generate(Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin}, PresetKey: "global-three"})
	require.Error(t, err)
	assert.Equal(t, common.KindValidation, common.KindOf(err))
	assert.Contains(t, err.Error(), "requires 3 origins")
	assert.Contains(t, err.Error(), "only 2 provided")
}

func TestGenerateRejectsUnknownPresetAndIncompleteOrigin(t *testing.T) {
	_, err := Generate(Input{Default: defaultOrigin, PresetKey: "nope"})
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	_, err = Generate(Input{Default: domain.Origin{OriginID: "x"}, PresetKey: "geographic"})
	assert.Equal(t, common.KindValidation, common.KindOf(err))
}

func TestEveryPresetKeyMapsToSuppliedOrigin(t *testing.T) {
	origins := []domain.Origin{
		euOrigin,
		apOrigin,
		{OriginID: "o-4", Region: "sa-east-1", BucketName: "b4"},
	}
	for _, preset := range Presets() {
		for n := preset.RequiredOrigins - 1; n <= len(origins); n++ {
			t.Run(fmt.Sprintf("%s/%d", preset.Key, n), func(t *testing.T) {
				plan, err := Generate(Input{Default: defaultOrigin, Additional: origins[:n], PresetKey: preset.Key})
				require.NoError(t, err)

				domains := map[string]bool{}
				for _, target := range plan.Targets {
					domains[target.Domain] = true
				}
				for _, key := range preset.Keys() {
					assert.True(t, domains[plan.Lookup(key)], key)
				}
				assert.Equal(t, plan.DefaultDomain, plan.Lookup("zz-unknown-1"))
				assert.True(t, domains[plan.Resolve("BR")])
			})
		}
	}
}

func TestRegionPresetSlots(t *testing.T) {
	plan, err := Generate(Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin, apOrigin}, PresetKey: "global-three"})
	require.NoError(t, err)

	assert.Equal(t, euOrigin.StorageDomain(""), plan.Lookup("ap-northeast-1"))
	assert.Equal(t, apOrigin.StorageDomain(""), plan.Lookup("us-west-2"))
	assert.Equal(t, defaultOrigin.StorageDomain(""), plan.Lookup("eu-central-1"))
}

func TestMissingSlotFallsBackToDefault(t *testing.T) {
	plan, err := Generate(Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin}, PresetKey: "asia-us"})
	require.NoError(t, err)

	assert.Equal(t, euOrigin.StorageDomain(""), plan.Lookup("ap-southeast-1"))
	assert.Equal(t, defaultOrigin.StorageDomain(""), plan.Lookup("eu-west-1"))
}

func TestGeographicPrefersNearestOrigin(t *testing.T) {
	plan, err := Generate(Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin, apOrigin}, PresetKey: "geographic"})
	require.NoError(t, err)

	assert.Equal(t, KeyCountry, plan.KeyKind)
	assert.Equal(t, "o-3", plan.OriginFor("jp"))
	assert.Equal(t, "o-3", plan.OriginFor("SG"))
	assert.Equal(t, "o-2", plan.OriginFor("FR"))
	assert.Equal(t, "o-default", plan.OriginFor("CA"))
	assert.Equal(t, "o-default", plan.OriginFor("ZZ"))
	assert.Equal(t, apOrigin.StorageDomain(""), plan.Table["KR"])
}

func TestGenerateIsDeterministic(t *testing.T) {
	in := Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin, apOrigin}, PresetKey: "global-three"}
	a, err := Generate(in)
	require.NoError(t, err)
	b, err := Generate(in)
	require.NoError(t, err)

	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Table, b.Table)
}

func TestGeneratedCodeEmbedsTables(t *testing.T) {
	plan, err := Generate(Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin}, PresetKey: "asia-us", StorageSuffix: "amazonaws.com"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plan.Code, "'use strict';"))
	assert.Contains(t, plan.Code, `const DEFAULT_DOMAIN = "b1.s3.us-east-1.amazonaws.com";`)
	assert.Contains(t, plan.Code, `"eu-west-1":"b2.s3.eu-west-1.amazonaws.com"`)
	assert.Contains(t, plan.Code, `"DE":"eu-central-1"`)
	assert.Contains(t, plan.Code, "cloudfront-viewer-country")
	assert.Contains(t, plan.Code, "origin-access-identity")
	assert.Contains(t, plan.Code, "exports.handler")
}

func TestPresetCatalog(t *testing.T) {
	p, ok := LookupPreset("asia-us")
	require.True(t, ok)
	assert.Equal(t, 2, p.RequiredOrigins)
	slot, ok := p.SlotOf("ap-south-1")
	require.True(t, ok)
	assert.Equal(t, 1, slot)

	p, ok = LookupPreset("global-three")
	require.True(t, ok)
	assert.Equal(t, 3, p.RequiredOrigins)
	slot, _ = p.SlotOf("sa-east-1")
	assert.Equal(t, 2, slot)

	_, err := parsePresets([]byte("presets:\n  - key: x\n    requiredOrigins: 1\n    groups:\n      - slot: 2\n        keys: [a]\n"))
	require.Error(t, err)
}

func TestPreviewSummarisesPlan(t *testing.T) {
	plan, err := Generate(Input{Default: defaultOrigin, Additional: []domain.Origin{euOrigin, apOrigin}, PresetKey: "global-three"})
	require.NoError(t, err)

	pv := plan.Preview(false)
	assert.Equal(t, "global-three", pv.PresetKey)
	assert.Equal(t, 3, pv.OriginsProvided)
	assert.Equal(t, 3, pv.OriginsRequired)
	assert.Equal(t, len(plan.Table), pv.TotalKeys)
	assert.Empty(t, pv.CodeContent)

	assert.Equal(t, plan.Code, plan.Preview(true).CodeContent)
}
