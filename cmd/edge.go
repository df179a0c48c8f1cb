package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/edge"
	"geocdn/internal/service/routing"
	"geocdn/internal/store"
)

var (
	edgeDefaultOrigin string
	edgeOrigins       []string
	edgePreset        string
	edgeShowCode      bool
	edgeCountries     []string
	edgeRoleName      string
)

// EdgeCmd はedgeコマンドを表す
var EdgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Lambda@Edgeルーティング関数の管理コマンド",
	Long:  `地理ルーティング関数のプレビュー、公開済み関数の一覧、実行ロールの準備を行うコマンド群です。`,
}

var edgePresetsCmd = &cobra.Command{
	Use:         "presets",
	Short:       "ルーティングプリセットの一覧を表示",
	Annotations: map[string]string{offlineAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		columns := []common.TableColumn{
			{Header: "Key"},
			{Header: "Name"},
			{Header: "Key Kind"},
			{Header: "Origins"},
			{Header: "Description"},
		}
		var data [][]string
		for _, p := range routing.Presets() {
			data = append(data, []string{p.Key, p.Name, string(p.KeyKind), fmt.Sprint(p.RequiredOrigins), p.Description})
		}
		common.PrintTable("ルーティングプリセット", columns, data)
		return nil
	},
}

var edgePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "ルーティング関数を生成して確認（デプロイしません）",
	Long: `登録済みオリジンとプリセットからルーティング関数を生成し、ルーティング表とコードを表示します。

例:
  ` + AppName + ` edge preview --default-origin origin-aaaa1111 --origins origin-bbbb2222 --preset asia-us
  ` + AppName + ` edge preview --default-origin origin-aaaa1111 --preset geographic --country JP,DE,US`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if edgeDefaultOrigin == "" || edgePreset == "" {
			return fmt.Errorf("%s --default-origin と --preset は必須です", common.ErrorIcon)
		}
		mc := domain.MultiOriginConfig{DefaultOriginID: edgeDefaultOrigin, AdditionalOriginIDs: edgeOrigins, PresetKey: edgePreset}
		origins, err := geo.Origins.Resolve(cmd.Context(), mc.OriginIDs())
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		plan, err := routing.Generate(routing.Input{
			Default:       origins[0],
			Additional:    origins[1:],
			PresetKey:     edgePreset,
			StorageSuffix: geo.Origins.StorageSuffix(),
		})
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}

		if len(edgeCountries) > 0 {
			columns := []common.TableColumn{{Header: "Country"}, {Header: "Origin"}, {Header: "Domain"}}
			var data [][]string
			for _, c := range edgeCountries {
				c = strings.ToUpper(strings.TrimSpace(c))
				data = append(data, []string{c, plan.OriginFor(c), plan.Resolve(c)})
			}
			common.PrintTable("振り分け先", columns, data)
			fmt.Println()
		}
		return printJSON(plan.Preview(edgeShowCode))
	},
}

var edgeLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "公開済みのルーティング関数を一覧表示",
	RunE: func(cmd *cobra.Command, args []string) error {
		fns, err := geo.Store.ListEdgeFunctions(cmd.Context())
		if err != nil {
			return common.FormatListError("エッジ関数", err)
		}
		sort.SliceStable(fns, func(i, j int) bool { return fns[i].CreatedAt.After(fns[j].CreatedAt) })
		common.DisplayList(fns, "エッジ関数", edgeTable, &common.DisplayOptions{
			ShowCount:    true,
			EmptyMessage: "エッジ関数が見つかりませんでした",
		})
		return nil
	},
}

func edgeTable(fns []domain.EdgeFunction) ([]common.TableColumn, [][]string) {
	columns := []common.TableColumn{
		{Header: "ID"},
		{Header: "Function"},
		{Header: "Preset"},
		{Header: "Origins"},
		{Header: "Status"},
		{Header: "Created"},
	}
	data := make([][]string, 0, len(fns))
	for _, f := range fns {
		status := f.Status
		if status == domain.EdgeFunctionOrphan {
			status = common.WarningIcon + " " + status
		}
		data = append(data, []string{f.FunctionID, f.FunctionName, f.PresetKey, fmt.Sprint(len(f.Origins)), status, common.FormatTime(f.CreatedAt)})
	}
	return columns, data
}

var edgeGetCmd = &cobra.Command{
	Use:   "get FUNCTION_ID",
	Short: "ルーティング関数の詳細を表示",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fn, err := geo.Store.GetEdgeFunction(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s %w", common.ErrorIcon, common.NewNotFoundError("エッジ関数", args[0]))
		}
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		if !edgeShowCode {
			fn.CodeContent = ""
		}
		return printJSON(fn)
	},
}

var edgeRoleCmd = &cobra.Command{
	Use:   "role",
	Short: "Lambda@Edge実行ロールの管理",
}

var edgeRoleEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Lambda@Edge実行ロールがなければ作成",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := edgeRoleName
		if name == "" {
			name = geo.Config.Edge.RoleName
		}
		arn, created, err := edge.EnsureRole(cmd.Context(), geo.Clients.IAM(), name, geo.Logger)
		if err != nil {
			return fmt.Errorf("%s 実行ロールの準備に失敗: %w", common.ErrorIcon, err)
		}
		if created {
			fmt.Printf("%s 実行ロールを作成しました: %s\n", common.SuccessIcon, arn)
		} else {
			fmt.Printf("%s 実行ロールは既に存在します: %s\n", common.InfoIcon, arn)
		}
		fmt.Printf("   設定例: export GEOCDN_EDGE_ROLE_ARN=%s\n", arn)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(EdgeCmd)
	EdgeCmd.AddCommand(edgePresetsCmd, edgePreviewCmd, edgeLsCmd, edgeGetCmd, edgeRoleCmd)
	edgeRoleCmd.AddCommand(edgeRoleEnsureCmd)

	edgePreviewCmd.Flags().StringVar(&edgeDefaultOrigin, "default-origin", "", "既定オリジンID")
	edgePreviewCmd.Flags().StringSliceVar(&edgeOrigins, "origins", nil, "追加オリジンID（カンマ区切り）")
	edgePreviewCmd.Flags().StringVar(&edgePreset, "preset", "", "ルーティングプリセット")
	edgePreviewCmd.Flags().BoolVar(&edgeShowCode, "code", false, "生成したコードも表示する")
	edgePreviewCmd.Flags().StringSliceVar(&edgeCountries, "country", nil, "振り分け先を確認する国コード（カンマ区切り）")

	edgeGetCmd.Flags().BoolVar(&edgeShowCode, "code", false, "関数コードも表示する")

	edgeRoleEnsureCmd.Flags().StringVar(&edgeRoleName, "name", "", "ロール名（既定: 設定の edge.role-name）")
}
