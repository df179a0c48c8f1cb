package workflow

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"geocdn/internal/service/common"
)

// EventBridgeAPI は eventbridge.Client のうちイベント送信で使う操作
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridge はイベントバスへ監視依頼を送信します
type EventBridge struct {
	client  EventBridgeAPI
	busName string
	source  string
}

// NewEventBridge は EventBridge トリガーを作成します
func NewEventBridge(client EventBridgeAPI, busName, source string) *EventBridge {
	if busName == "" {
		busName = "default"
	}
	return &EventBridge{client: client, busName: busName, source: source}
}

// Start は監視依頼イベントを1件送信します
func (e *EventBridge) Start(ctx context.Context, req Request) error {
	body, err := req.payload()
	if err != nil {
		return err
	}
	out, err := e.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(e.busName),
			Source:       aws.String(e.source),
			DetailType:   aws.String(DetailType),
			Detail:       aws.String(string(body)),
			Resources:    []string{req.ProviderID},
		}},
	})
	if err != nil {
		return common.NewProviderError("監視イベントの送信に失敗", err)
	}
	if out.FailedEntryCount > 0 && len(out.Entries) > 0 {
		entry := out.Entries[0]
		return fmt.Errorf("監視イベントが拒否されました: %s %s", aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
	}
	return nil
}
