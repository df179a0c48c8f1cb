package routing

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// KeyKind はルーティングキーの種類
type KeyKind string

const (
	KeyRegion  KeyKind = "region"
	KeyCountry KeyKind = "country"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset はルーティングキーからオリジンスロットへの静的な対応表
type Preset struct {
	Key             string  `yaml:"key" json:"key"`
	Name            string  `yaml:"name" json:"name"`
	Description     string  `yaml:"description" json:"description"`
	KeyKind         KeyKind `yaml:"keyKind" json:"keyKind"`
	RequiredOrigins int     `yaml:"requiredOrigins" json:"requiredOrigins"`
	Groups          []Group `yaml:"groups" json:"groups,omitempty"`
}

// Group は同じスロットに振り分けるキーの集合
type Group struct {
	Slot int      `yaml:"slot" json:"slot"`
	Keys []string `yaml:"keys" json:"keys"`
}

// SlotOf はキーに対応するスロットを返します
func (p Preset) SlotOf(key string) (int, bool) {
	for _, g := range p.Groups {
		for _, k := range g.Keys {
			if k == key {
				return g.Slot, true
			}
		}
	}
	return 0, false
}

// Keys はプリセットが扱う全キーをソートして返します
func (p Preset) Keys() []string {
	if p.KeyKind == KeyCountry {
		return Countries()
	}
	var keys []string
	for _, g := range p.Groups {
		keys = append(keys, g.Keys...)
	}
	sort.Strings(keys)
	return keys
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

var catalog = mustLoadPresets(presetsYAML)

func mustLoadPresets(data []byte) []Preset {
	presets, err := parsePresets(data)
	if err != nil {
		panic(err)
	}
	return presets
}

func parsePresets(data []byte) ([]Preset, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("プリセット定義の読み込みに失敗: %w", err)
	}
	seen := map[string]bool{}
	for _, p := range f.Presets {
		if p.Key == "" || seen[p.Key] {
			return nil, fmt.Errorf("プリセットキーが不正です: %q", p.Key)
		}
		seen[p.Key] = true
		if p.RequiredOrigins < 1 {
			return nil, fmt.Errorf("プリセット %s の requiredOrigins が不正です", p.Key)
		}
		for _, g := range p.Groups {
			if g.Slot < 0 || g.Slot >= p.RequiredOrigins {
				return nil, fmt.Errorf("プリセット %s のスロット %d は範囲外です", p.Key, g.Slot)
			}
		}
	}
	return f.Presets, nil
}

// Presets は組み込みプリセットの一覧を返します
func Presets() []Preset {
	return append([]Preset(nil), catalog...)
}

// LookupPreset はキーに対応するプリセットを返します
func LookupPreset(key string) (Preset, bool) {
	for _, p := range catalog {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}
