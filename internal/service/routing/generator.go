// Package routing はオリジン集合とプリセットからLambda@Edge用のルーティング関数を生成します。
// 生成は純粋関数で、同じ入力からは常に同じバイト列が得られます。
package routing

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
)

//go:embed routing.js.tmpl
var routingTemplate string

var codeTemplate = template.Must(template.New("routing").Funcs(template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}).Parse(routingTemplate))

// Input は生成の入力
type Input struct {
	Default       domain.Origin
	Additional    []domain.Origin
	PresetKey     string
	StorageSuffix string
}

// Target はルーティング先のオリジン
type Target struct {
	Slot     int    `json:"slot"`
	OriginID string `json:"originId"`
	Bucket   string `json:"bucketName"`
	Region   string `json:"region"`
	Domain   string `json:"domain"`
}

// Plan は生成結果。Code と Table は同じ入力から決定的に作られます
type Plan struct {
	PresetKey       string            `json:"preset"`
	PresetName      string            `json:"presetName"`
	KeyKind         KeyKind           `json:"keyKind"`
	RequiredOrigins int               `json:"requiredOrigins"`
	DefaultDomain   string            `json:"defaultDomain"`
	Targets         []Target          `json:"origins"`
	Table           map[string]string `json:"regionMapping"`
	Code            string            `json:"codeContent"`
}

// Generate は入力を検証し、ルーティング表と関数コードを生成します
func Generate(in Input) (*Plan, error) {
	preset, ok := LookupPreset(in.PresetKey)
	if !ok {
		return nil, common.NewValidationError("未知のプリセットです: %s (利用可能: %s)", in.PresetKey, strings.Join(presetKeys(), ", "))
	}
	provided := len(in.Additional) + 1
	if provided < preset.RequiredOrigins {
		return nil, common.NewValidationError("Preset %s requires %d origins, but only %d provided", preset.Key, preset.RequiredOrigins, provided)
	}

	targets := make([]Target, 0, provided)
	for i, o := range append([]domain.Origin{in.Default}, in.Additional...) {
		if o.BucketName == "" || o.Region == "" {
			return nil, common.NewValidationError("オリジン %q にバケット名とリージョンが必要です", o.OriginID)
		}
		targets = append(targets, Target{
			Slot:     i,
			OriginID: o.OriginID,
			Bucket:   o.BucketName,
			Region:   o.Region,
			Domain:   o.StorageDomain(in.StorageSuffix),
		})
	}

	plan := &Plan{
		PresetKey:       preset.Key,
		PresetName:      preset.Name,
		KeyKind:         preset.KeyKind,
		RequiredOrigins: preset.RequiredOrigins,
		DefaultDomain:   targets[0].Domain,
		Targets:         targets,
	}
	plan.Table = plan.buildTable(preset)

	code, err := plan.render()
	if err != nil {
		return nil, err
	}
	plan.Code = code
	return plan, nil
}

func (p *Plan) buildTable(preset Preset) map[string]string {
	table := map[string]string{}
	if preset.KeyKind == KeyCountry {
		for _, country := range Countries() {
			if d, ok := p.nearest(CountryRegion(country)); ok {
				table[country] = d
			} else {
				table[country] = p.DefaultDomain
			}
		}
		return table
	}
	for _, g := range preset.Groups {
		for _, key := range g.Keys {
			table[key] = p.slotDomain(g.Slot)
		}
	}
	return table
}

// 存在しないスロットはデフォルトオリジンに倒す
func (p *Plan) slotDomain(slot int) string {
	if slot > 0 && slot < len(p.Targets) {
		return p.Targets[slot].Domain
	}
	return p.DefaultDomain
}

// originsByRegion はリージョンごとに最初に宣言されたオリジンのドメインを返します
func (p *Plan) originsByRegion() map[string]string {
	out := map[string]string{}
	for _, t := range p.Targets {
		if _, ok := out[t.Region]; !ok {
			out[t.Region] = t.Domain
		}
	}
	return out
}

func (p *Plan) nearest(targetRegion string) (string, bool) {
	byRegion := p.originsByRegion()
	for _, r := range RegionPreferences(targetRegion) {
		if d, ok := byRegion[r]; ok {
			return d, true
		}
	}
	return "", false
}

// Lookup はルーティングキーの行き先を返します。表にないキーはデフォルトオリジンです
func (p *Plan) Lookup(key string) string {
	if d, ok := p.Table[key]; ok {
		return d
	}
	return p.DefaultDomain
}

// Resolve はビューアの国コードから行き先ドメインを求めます。
// 生成される関数と同じ手順で、プリセット表が追加オリジンを明示していればそれを使い、
// そうでなければ国→リージョン→優先リージョン順で最寄りのオリジン、最後にデフォルトを返します
func (p *Plan) Resolve(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = DefaultCountry
	}
	target := CountryRegion(country)
	key := target
	if p.KeyKind == KeyCountry {
		key = country
	}
	if d, ok := p.Table[key]; ok && d != p.DefaultDomain {
		return d
	}
	if d, ok := p.nearest(target); ok {
		return d
	}
	return p.DefaultDomain
}

// OriginFor は Resolve の結果に対応するオリジンIDを返します
func (p *Plan) OriginFor(country string) string {
	d := p.Resolve(country)
	for _, t := range p.Targets {
		if t.Domain == d {
			return t.OriginID
		}
	}
	return ""
}

// Snapshots はエッジ関数レコードに保存するオリジン情報を返します
func (p *Plan) Snapshots() []domain.OriginSnapshot {
	out := make([]domain.OriginSnapshot, 0, len(p.Targets))
	for _, t := range p.Targets {
		out = append(out, domain.OriginSnapshot{OriginID: t.OriginID, BucketName: t.Bucket, Region: t.Region, Domain: t.Domain})
	}
	return out
}

func (p *Plan) render() (string, error) {
	var buf bytes.Buffer
	err := codeTemplate.Execute(&buf, map[string]any{
		"PresetKey":         p.PresetKey,
		"KeyKind":           p.KeyKind,
		"Targets":           p.Targets,
		"DefaultDomain":     p.DefaultDomain,
		"OriginsByRegion":   p.originsByRegion(),
		"Table":             p.Table,
		"CountryToRegion":   countryToRegion,
		"RegionPreferences": regionPreferences,
		"FallbackRegion":    DefaultRegion,
		"FallbackCountry":   DefaultCountry,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func presetKeys() []string {
	keys := make([]string, 0, len(catalog))
	for _, p := range catalog {
		keys = append(keys, p.Key)
	}
	return keys
}

// Preview はルーティング関数を公開せずに確認するための要約
type Preview struct {
	PresetKey       string            `json:"preset"`
	PresetName      string            `json:"presetName"`
	TotalKeys       int               `json:"totalKeys"`
	OriginsProvided int               `json:"originsProvided"`
	OriginsRequired int               `json:"originsRequired"`
	RegionMapping   map[string]string `json:"regionMapping"`
	CodeContent     string            `json:"codeContent,omitempty"`
}

// Preview は生成結果の要約を返します。withCode が false ならコードは含めません
func (p *Plan) Preview(withCode bool) Preview {
	pv := Preview{
		PresetKey:       p.PresetKey,
		PresetName:      p.PresetName,
		TotalKeys:       len(p.Table),
		OriginsProvided: len(p.Targets),
		OriginsRequired: p.RequiredOrigins,
		RegionMapping:   p.Table,
	}
	if withCode {
		pv.CodeContent = p.Code
	}
	return pv
}
