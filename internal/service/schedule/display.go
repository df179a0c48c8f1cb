package schedule

import (
	"fmt"

	"geocdn/internal/service/common"
)

// DisplaySchedule はスケジュール情報を表示します
func DisplaySchedule(s *Schedule) {
	state := s.State
	switch s.State {
	case StateEnabled:
		state = "🟢 " + s.State
	case StateDisabled:
		state = "🔴 " + s.State
	}
	columns := []common.TableColumn{
		{Header: "Name"},
		{Header: "Schedule"},
		{Header: "State"},
		{Header: "Target"},
	}
	common.PrintTable("📅 スキャンスケジュール", columns, [][]string{{s.Name, s.Expression, state, s.Target}})
	fmt.Println()
}
