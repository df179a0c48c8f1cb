package common

import (
	"strings"

	"github.com/gobwas/glob"
)

// MatchesFilter は name がフィルタに一致するかを判定します。
// ワイルドカード（* ? [ { ）を含む場合はglob形式、含まない場合は部分一致で判定し、
// exact が false なら大文字小文字を区別しません
func MatchesFilter(name, filter string, exact bool) bool {
	if filter == "" {
		return true
	}
	if !exact {
		name = strings.ToLower(name)
		filter = strings.ToLower(filter)
	}
	if strings.ContainsAny(filter, "*?[{") {
		g, err := glob.Compile(filter)
		if err != nil {
			return false
		}
		return g.Match(name)
	}
	return strings.Contains(name, filter)
}

// FilterBy は filter に一致する要素だけを返します
func FilterBy[T any](items []T, filter string, name func(T) string) []T {
	if filter == "" {
		return items
	}
	var out []T
	for _, item := range items {
		if MatchesFilter(name(item), filter, false) {
			out = append(out, item)
		}
	}
	return out
}
