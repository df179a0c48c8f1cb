package domain

import "time"

// HistoryAction は履歴の操作種別
type HistoryAction string

const (
	ActionCreated             HistoryAction = "CREATED"
	ActionStatusChanged       HistoryAction = "STATUS_CHANGED"
	ActionUpdateAttempted     HistoryAction = "UPDATE_ATTEMPTED"
	ActionDisableRequested    HistoryAction = "DISABLE_REQUESTED"
	ActionDeleted             HistoryAction = "DELETED"
	ActionInvalidationCreated HistoryAction = "INVALIDATION_CREATED"
)

// SystemUser は自動処理による操作者名
const SystemUser = "system"

// HistoryEntry はディストリビューションの追記専用監査ログ
type HistoryEntry struct {
	DistributionID string            `json:"distributionId"`
	Timestamp      time.Time         `json:"timestamp"`
	Action         HistoryAction     `json:"action"`
	User           string            `json:"user"`
	Version        int64             `json:"version,omitempty"`
	PreviousStatus Status            `json:"previousStatus,omitempty"`
	NewStatus      Status            `json:"newStatus,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
}
