package domain

// Status はディストリビューションのライフサイクル状態
type Status string

const (
	StatusCreating   Status = "Creating"
	StatusInProgress Status = "InProgress"
	StatusDeployed   Status = "Deployed"
	StatusDisabling  Status = "Disabling"
	StatusDeleting   Status = "Deleting"
	StatusFailed     Status = "Failed"
)

// PendingStatuses は定期スキャンで照合対象となる状態
var PendingStatuses = []Status{StatusInProgress, StatusCreating}

// IsTerminal はポーリングを終了してよい状態かを返します
func (s Status) IsTerminal() bool {
	return s == StatusDeployed || s == StatusFailed
}

// IsPending は照合待ちの状態かを返します
func (s Status) IsPending() bool {
	for _, p := range PendingStatuses {
		if s == p {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
