package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CloudFrontのコメント欄の上限文字数
const maxCommentLength = 128

// nudgeTruncateAt は上限を超えたときに残す元コメントの文字数
const nudgeTruncateAt = 100

var nudgeMarkers = []*regexp.Regexp{
	regexp.MustCompile(`\s*\[Replication:\s*\d+\]$`),
	regexp.MustCompile(`\s*\[Lambda@Edge Associated:\s*\d+\]$`),
	regexp.MustCompile(`\s*\[R:\s*\d+\]$`),
}

// NudgeComment は以前のレプリケーションマーカーを取り除き、現在時刻のマーカーを付け直したコメントを返します
func NudgeComment(comment string, now time.Time) string {
	base := comment
	for _, re := range nudgeMarkers {
		base = re.ReplaceAllString(base, "")
	}
	ms := now.UnixMilli()
	next := strings.TrimSpace(fmt.Sprintf("%s [Replication: %d]", base, ms))
	if len([]rune(next)) <= maxCommentLength {
		return next
	}
	runes := []rune(base)
	if len(runes) > nudgeTruncateAt {
		runes = runes[:nudgeTruncateAt]
	}
	return strings.TrimSpace(fmt.Sprintf("%s [R:%d]", string(runes), ms))
}
