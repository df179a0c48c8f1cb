package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// FormatTime は時刻を表示用にフォーマットします
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "不明"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// GenerateFilteredTitle はフィルタ条件に基づいてタイトルを生成
func GenerateFilteredTitle(resourceType string, conditions ...string) string {
	var validConditions []string
	for _, cond := range conditions {
		if cond != "" {
			validConditions = append(validConditions, cond)
		}
	}
	if len(validConditions) == 0 {
		return fmt.Sprintf("%s一覧", resourceType)
	}
	return fmt.Sprintf("%s%s一覧", strings.Join(validConditions, ""), resourceType)
}

// FormatListError はリスト取得エラーを統一フォーマットで返す
func FormatListError(resource string, err error) error {
	return fmt.Errorf("%s %s一覧取得でエラー: %w", ErrorIcon, resource, err)
}

// PrintTable はテーブル形式でデータを表示する
func PrintTable(title string, columns []TableColumn, data [][]string) {
	FprintTable(os.Stdout, title, columns, data)
}

// FprintTable は w にテーブルを書き出します。全角文字の表示幅を考慮します
func FprintTable(w io.Writer, title string, columns []TableColumn, data [][]string) {
	if title != "" {
		fmt.Fprintf(w, "\n%s:\n", title)
	}

	// 各列の最大幅を計算（ヘッダーとデータの中で最大値を取得）
	colWidths := make([]int, len(columns))
	for i, col := range columns {
		colWidths[i] = max(col.Width, runewidth.StringWidth(col.Header))
	}
	for _, row := range data {
		for i, cell := range row {
			if i < len(colWidths) {
				colWidths[i] = max(colWidths[i], runewidth.StringWidth(cell))
			}
		}
	}

	for i, col := range columns {
		fmt.Fprintf(w, "%s ", runewidth.FillRight(col.Header, colWidths[i]))
	}
	fmt.Fprintln(w)

	for i := range columns {
		fmt.Fprintf(w, "%s ", strings.Repeat("-", colWidths[i]))
	}
	fmt.Fprintln(w)

	for _, row := range data {
		for i, cell := range row {
			if i < len(columns) {
				fmt.Fprintf(w, "%s ", runewidth.FillRight(cell, colWidths[i]))
			}
		}
		fmt.Fprintln(w)
	}
}

// DisplayList は汎用的なリスト表示関数
func DisplayList[T any](
	items []T,
	title string,
	toTableData func([]T) ([]TableColumn, [][]string),
	opts *DisplayOptions,
) {
	if opts == nil {
		opts = &DisplayOptions{}
	}
	if opts.EmptyMessage == "" {
		opts.EmptyMessage = "リソースが見つかりませんでした"
	}

	if len(opts.FilterMessages) > 0 {
		title = GenerateFilteredTitle(title, opts.FilterMessages...)
	}

	if len(items) == 0 {
		fmt.Println(opts.EmptyMessage)
		return
	}

	columns, data := toTableData(items)
	PrintTable(title, columns, data)

	if opts.ShowCount {
		fmt.Printf("\n合計: %d件\n", len(items))
	}
}
