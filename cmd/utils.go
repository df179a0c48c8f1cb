package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"geocdn/internal/service/common"
)

// printJSON は値を整形したJSONで表示します
func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// readJSONFile はJSONファイルを読み込みます
func readJSONFile(path string) (json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s 構成ファイルの読み込みに失敗: %w", common.ErrorIcon, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%s 構成ファイル %s はJSONではありません", common.ErrorIcon, path)
	}
	return raw, nil
}

// printResult は構造化された結果を表示し、失敗ならエラーを返します
func printResult(res common.Result) error {
	if !res.Success {
		fmt.Printf("%s %s (%d %s)\n", common.ErrorIcon, res.Message, res.StatusCode, categoryOf(res))
		if res.Error != "" {
			fmt.Printf("   %s\n", res.Error)
		}
		if res.Details != nil {
			for k, val := range res.Details.Extra {
				fmt.Printf("   %s: %s\n", k, val)
			}
		}
		return res.Err()
	}
	icon := common.SuccessIcon
	if res.StatusCode == 202 {
		icon = common.WaitIcon
	}
	fmt.Printf("%s %s\n", icon, res.Message)
	if res.Data != nil {
		return printJSON(res.Data)
	}
	return nil
}

func categoryOf(res common.Result) string {
	if res.Details == nil {
		return ""
	}
	return res.Details.Category
}

// changedString はフラグが指定された場合だけ値のポインタを返します
func changedString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	val, _ := cmd.Flags().GetString(name)
	return &val
}

// changedBool はフラグが指定された場合だけ値のポインタを返します
func changedBool(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	val, _ := cmd.Flags().GetBool(name)
	return &val
}

// currentUser は履歴に残す操作者名を返します
func currentUser() string {
	for _, key := range []string{"GEOCDN_USER", "USER", "USERNAME"} {
		if u := strings.TrimSpace(os.Getenv(key)); u != "" {
			return u
		}
	}
	return "cli"
}

// confirm は y/N の確認を求めます
func confirm(message string) bool {
	fmt.Printf("%s %s [y/N]: ", common.WarningIcon, message)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
