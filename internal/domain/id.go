package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID は "prefix-xxxxxxxx" 形式の短いIDを生成します
func NewID(prefix string) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return short
	}
	return prefix + "-" + short
}

// NewDistributionID はディストリビューションの内部IDを生成します
func NewDistributionID() string {
	return uuid.NewString()
}
