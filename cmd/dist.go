package cmd

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/distribution"
	"geocdn/internal/service/reconcile"
)

var (
	distDescription    string
	distOriginDomain   string
	distOriginPath     string
	distConfigFile     string
	distDefaultOrigin  string
	distOrigins        []string
	distPreset         string
	distFilter         string
	distHistoryLimit   int
	distWaitTimeout    time.Duration
	distWaitInterval   time.Duration
	distPaths          []string
	distCallerRef      string
	distInvalidateWait bool
	distForce          bool
)

// DistCmd はdistコマンドを表す
var DistCmd = &cobra.Command{
	Use:   "dist",
	Short: "CloudFrontディストリビューション管理コマンド",
	Long:  `単一オリジンまたは地理ルーティング付きマルチオリジンのディストリビューションを管理するためのコマンド群です。`,
}

var distCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "ディストリビューションを作成",
	Long: `ディストリビューションを作成します。--preset を指定するとマルチオリジン構成になり、
ルーティング関数のデプロイ、OAIの作成、バケットポリシーの付与をまとめて行います。

例:
  ` + AppName + ` dist create docs --origin-domain docs.example.com
  ` + AppName + ` dist create site --default-origin origin-aaaa1111 --origins origin-bbbb2222 --preset asia-us
  ` + AppName + ` dist create custom --config-file ./distribution-config.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := distribution.CreateRequest{
			Name:         args[0],
			Description:  distDescription,
			OriginDomain: distOriginDomain,
			OriginPath:   distOriginPath,
			User:         currentUser(),
		}
		if distConfigFile != "" {
			raw, err := readJSONFile(distConfigFile)
			if err != nil {
				return err
			}
			req.Config = raw
		}
		if distPreset != "" || distDefaultOrigin != "" {
			req.MultiOrigin = &domain.MultiOriginConfig{
				DefaultOriginID:     distDefaultOrigin,
				AdditionalOriginIDs: distOrigins,
				PresetKey:           distPreset,
			}
			fmt.Printf("%s マルチオリジンディストリビューション '%s' を作成します (preset: %s)...\n", common.StartIcon, req.Name, distPreset)
		} else {
			fmt.Printf("%s ディストリビューション '%s' を作成します...\n", common.StartIcon, req.Name)
		}
		return printResult(geo.Distributions.CreateDistribution(cmd.Context(), req))
	},
}

var distLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "ディストリビューション一覧を表示",
	RunE: func(cmd *cobra.Command, args []string) error {
		dists, err := geo.Distributions.List(cmd.Context(), distFilter)
		if err != nil {
			return common.FormatListError("ディストリビューション", err)
		}
		var conditions []string
		if distFilter != "" {
			conditions = append(conditions, fmt.Sprintf("フィルタ '%s' に一致する", distFilter))
		}
		common.DisplayList(dists, "ディストリビューション", distTable, &common.DisplayOptions{
			ShowCount:      true,
			EmptyMessage:   "ディストリビューションが見つかりませんでした",
			FilterMessages: conditions,
		})
		return nil
	},
}

func distTable(dists []domain.Distribution) ([]common.TableColumn, [][]string) {
	columns := []common.TableColumn{
		{Header: "ID"},
		{Header: "Name"},
		{Header: "CloudFront ID"},
		{Header: "Status"},
		{Header: "Domain"},
		{Header: "Preset"},
		{Header: "Created"},
	}
	data := make([][]string, 0, len(dists))
	for _, d := range dists {
		preset := "-"
		if d.MultiOrigin != nil {
			preset = d.MultiOrigin.PresetKey
		}
		data = append(data, []string{
			d.DistributionID, d.Name, d.ProviderID, string(d.Status), d.DomainName, preset, common.FormatTime(d.CreatedAt),
		})
	}
	return columns, data
}

var distGetCmd = &cobra.Command{
	Use:   "get DISTRIBUTION_ID",
	Short: "ディストリビューションの詳細と直近の履歴を表示",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := geo.Distributions.Get(cmd.Context(), args[0], distHistoryLimit)
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		return printJSON(detail)
	},
}

var distHistoryCmd = &cobra.Command{
	Use:   "history DISTRIBUTION_ID",
	Short: "ディストリビューションの変更履歴を表示",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := geo.Distributions.History(cmd.Context(), args[0], distHistoryLimit)
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		common.DisplayList(entries, "履歴", historyTable, &common.DisplayOptions{ShowCount: true, EmptyMessage: "履歴がありません"})
		return nil
	},
}

func historyTable(entries []domain.HistoryEntry) ([]common.TableColumn, [][]string) {
	columns := []common.TableColumn{
		{Header: "Timestamp"},
		{Header: "Action"},
		{Header: "User"},
		{Header: "Version"},
		{Header: "Status"},
	}
	data := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := string(e.NewStatus)
		if e.PreviousStatus != "" {
			status = fmt.Sprintf("%s → %s", e.PreviousStatus, e.NewStatus)
		}
		data = append(data, []string{common.FormatTime(e.Timestamp), string(e.Action), e.User, fmt.Sprint(e.Version), status})
	}
	return columns, data
}

var distStatusCmd = &cobra.Command{
	Use:   "status DISTRIBUTION_ID",
	Short: "CloudFront上の現在の状態を表示",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := geo.Reconciler.Status(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		if !view.Live {
			fmt.Printf("%s CloudFrontから取得できなかったため保存済みの状態を表示します\n", common.WarningIcon)
		}
		return printJSON(view)
	},
}

var distReconcileCmd = &cobra.Command{
	Use:   "reconcile DISTRIBUTION_ID",
	Short: "CloudFrontの状態をレコードに反映",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := geo.Reconciler.Reconcile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s 照合に失敗: %w", common.ErrorIcon, err)
		}
		if outcome.Changed {
			fmt.Printf("%s %s → %s (version %d)\n", common.ProcessIcon, outcome.PreviousStatus, outcome.Status, outcome.Version)
		} else {
			fmt.Printf("%s 変更はありません (%s)\n", common.InfoIcon, outcome.Status)
		}
		return nil
	},
}

var distWaitCmd = &cobra.Command{
	Use:   "wait DISTRIBUTION_ID",
	Short: "デプロイが完了するまで待機",
	Long: `一定間隔で照合を繰り返し、Deployed または Failed になるまで待機します。

例:
  ` + AppName + ` dist wait 6f1c... --timeout 30m --interval 30s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s ディストリビューション %s のデプロイ完了を待機しています...\n", common.WaitIcon, args[0])
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("待機中..."),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)
		outcome, err := geo.Reconciler.WaitUntilTerminal(cmd.Context(), args[0], reconcile.WaitOptions{
			Timeout:  distWaitTimeout,
			Interval: distWaitInterval,
			OnPoll: func(o *reconcile.Outcome) {
				bar.Describe(fmt.Sprintf("status: %s", o.Status))
				_ = bar.Add(1)
			},
		})
		_ = bar.Finish()
		fmt.Println()
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		if outcome.Status == domain.StatusFailed {
			return fmt.Errorf("%s デプロイに失敗しました", common.ErrorIcon)
		}
		fmt.Printf("%s デプロイが完了しました (%s)\n", common.SuccessIcon, outcome.Status)
		return nil
	},
}

var distUpdateCmd = &cobra.Command{
	Use:   "update DISTRIBUTION_ID",
	Short: "名前と説明を更新（CloudFrontの構成は変更しません）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := geo.Distributions.UpdateMetadata(cmd.Context(), args[0], distribution.MetadataUpdate{
			Name:        changedString(cmd, "name"),
			Description: changedString(cmd, "description"),
			User:        currentUser(),
		})
		if err != nil {
			return fmt.Errorf("%s 更新に失敗: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s %s を更新しました\n", common.SuccessIcon, d.DistributionID)
		return nil
	},
}

var distRmCmd = &cobra.Command{
	Use:   "rm DISTRIBUTION_ID",
	Short: "ディストリビューションを削除",
	Long: `ディストリビューションを削除します。有効な場合はまず無効化を要求して終了します。
無効化のデプロイが完了してから（dist wait）再度実行すると削除されます。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !distForce && !confirm(fmt.Sprintf("ディストリビューション %s を削除します。よろしいですか？", args[0])) {
			fmt.Println("中止しました")
			return nil
		}
		return printResult(geo.Distributions.DeleteDistribution(cmd.Context(), args[0], currentUser()))
	},
}

var distInvalidateCmd = &cobra.Command{
	Use:   "invalidate DISTRIBUTION_ID",
	Short: "キャッシュを無効化",
	Long: `ディストリビューションのキャッシュを無効化します。

例:
  ` + AppName + ` dist invalidate 6f1c...                   # 全体を無効化（/*）
  ` + AppName + ` dist invalidate 6f1c... -p "/images/*" -w # 完了まで待機`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s キャッシュを無効化します...\n", common.StartIcon)
		fmt.Printf("   対象パス: %v\n", distPaths)
		inv, err := geo.Distributions.Invalidate(cmd.Context(), args[0], distribution.InvalidateRequest{
			Paths:           distPaths,
			CallerReference: distCallerRef,
			User:            currentUser(),
		})
		if err != nil {
			return fmt.Errorf("%s キャッシュ無効化エラー: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s キャッシュ無効化を開始しました (ID: %s)\n", common.SuccessIcon, inv.InvalidationID)

		if distInvalidateWait {
			fmt.Printf("%s 無効化の完了を待機しています...\n", common.WaitIcon)
			detail, err := geo.Distributions.Get(cmd.Context(), args[0], 1)
			if err != nil {
				return fmt.Errorf("%s %w", common.ErrorIcon, err)
			}
			err = geo.Distributions.WaitForInvalidation(cmd.Context(), detail.Distribution.ProviderID, inv.InvalidationID, distribution.WaitOptions{
				OnPoll: func(status string) { fmt.Printf("   現在のステータス: %s\n", status) },
			})
			if err != nil {
				return fmt.Errorf("%s 無効化待機エラー: %w", common.ErrorIcon, err)
			}
			fmt.Printf("%s キャッシュ無効化が完了しました\n", common.SuccessIcon)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(DistCmd)
	DistCmd.AddCommand(distCreateCmd, distLsCmd, distGetCmd, distHistoryCmd, distStatusCmd,
		distReconcileCmd, distWaitCmd, distUpdateCmd, distRmCmd, distInvalidateCmd)

	distCreateCmd.Flags().StringVarP(&distDescription, "description", "d", "", "説明")
	distCreateCmd.Flags().StringVar(&distOriginDomain, "origin-domain", "", "単一オリジンのドメイン")
	distCreateCmd.Flags().StringVar(&distOriginPath, "origin-path", "", "単一オリジンのパス")
	distCreateCmd.Flags().StringVar(&distConfigFile, "config-file", "", "CloudFront DistributionConfig のJSONファイル")
	distCreateCmd.Flags().StringVar(&distDefaultOrigin, "default-origin", "", "マルチオリジンの既定オリジンID")
	distCreateCmd.Flags().StringSliceVar(&distOrigins, "origins", nil, "追加オリジンID（カンマ区切り）")
	distCreateCmd.Flags().StringVar(&distPreset, "preset", "", "ルーティングプリセット（edge presets で一覧）")

	distLsCmd.Flags().StringVarP(&distFilter, "filter", "f", "", "名前のフィルタ（部分一致またはglob）")
	distGetCmd.Flags().IntVarP(&distHistoryLimit, "history", "n", distribution.DefaultHistoryLimit, "表示する履歴の件数")
	distHistoryCmd.Flags().IntVarP(&distHistoryLimit, "limit", "n", 0, "表示する件数（0で全件）")

	distWaitCmd.Flags().DurationVar(&distWaitTimeout, "timeout", 30*time.Minute, "待機の上限")
	distWaitCmd.Flags().DurationVar(&distWaitInterval, "interval", 30*time.Second, "照合の間隔")

	distUpdateCmd.Flags().String("name", "", "新しい名前")
	distUpdateCmd.Flags().String("description", "", "新しい説明")

	distRmCmd.Flags().BoolVarP(&distForce, "force", "f", false, "確認せずに削除する")

	distInvalidateCmd.Flags().StringSliceVarP(&distPaths, "path", "p", []string{"/*"}, "無効化するパス")
	distInvalidateCmd.Flags().StringVar(&distCallerRef, "caller-reference", "", "呼び出し元参照（冪等性キー）")
	distInvalidateCmd.Flags().BoolVarP(&distInvalidateWait, "wait", "w", false, "無効化完了まで待機")
}
