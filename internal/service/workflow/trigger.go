// Package workflow は作成済みディストリビューションの監視を外部の長時間ワークフローへ依頼します。
// 依頼は投げっぱなしで、失敗しても作成処理は失敗させません。
package workflow

import (
	"context"
	"encoding/json"
	"time"
)

// Request は監視依頼の内容
type Request struct {
	DistributionID string    `json:"distributionId"`
	ProviderID     string    `json:"cloudfrontId"`
	MultiOrigin    bool      `json:"isMultiOrigin"`
	RequestedAt    time.Time `json:"requestedAt"`
}

// DetailType はイベントの種別名
const DetailType = "DistributionMonitorRequested"

// Trigger は監視ワークフローの起動口
type Trigger interface {
	Start(ctx context.Context, req Request) error
}

// Noop は何もしないトリガー
type Noop struct{}

// Start は何もしません
func (Noop) Start(context.Context, Request) error { return nil }

func (r Request) payload() ([]byte, error) {
	return json.Marshal(r)
}
