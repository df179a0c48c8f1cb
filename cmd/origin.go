package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/origin"
)

var (
	originBucket        string
	originRegion        string
	originDescription   string
	originWebsite       bool
	originAccessControl bool
	originFilter        string
	originForce         bool
)

// OriginCmd はoriginコマンドを表す
var OriginCmd = &cobra.Command{
	Use:   "origin",
	Short: "オリジン（S3バケット）管理コマンド",
	Long:  `ディストリビューションから参照するS3オリジンを登録・管理するためのコマンド群です。`,
}

var originCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "S3バケットを作成してオリジンとして登録",
	Long: `S3バケットを作成し、オリジンとして登録します。

例:
  ` + AppName + ` origin create tokyo --bucket my-site-tokyo --bucket-region ap-northeast-1
  ` + AppName + ` origin create virginia --bucket my-site-us --bucket-region us-east-1 --website`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s オリジン '%s' (s3://%s, %s) を作成します...\n", common.StartIcon, args[0], originBucket, originRegion)
		o, err := geo.Origins.Create(cmd.Context(), origin.CreateRequest{
			Name:                args[0],
			Description:         originDescription,
			BucketName:          originBucket,
			Region:              originRegion,
			WebsiteEnabled:      originWebsite,
			CreateAccessControl: originAccessControl,
			CreatedBy:           currentUser(),
		})
		if err != nil {
			return fmt.Errorf("%s オリジンの作成に失敗: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s オリジンを作成しました (ID: %s)\n", common.SuccessIcon, o.OriginID)
		return printJSON(o)
	},
}

var originLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "オリジン一覧を表示",
	Long: `登録済みのオリジン一覧を表示します。

例:
  ` + AppName + ` origin ls
  ` + AppName + ` origin ls --filter "site-*"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		origins, err := geo.Origins.List(cmd.Context(), originFilter)
		if err != nil {
			return common.FormatListError("オリジン", err)
		}
		var conditions []string
		if originFilter != "" {
			conditions = append(conditions, fmt.Sprintf("フィルタ '%s' に一致する", originFilter))
		}
		common.DisplayList(origins, "オリジン", originTable, &common.DisplayOptions{
			ShowCount:      true,
			EmptyMessage:   "オリジンが見つかりませんでした",
			FilterMessages: conditions,
		})
		return nil
	},
}

func originTable(origins []domain.Origin) ([]common.TableColumn, [][]string) {
	columns := []common.TableColumn{
		{Header: "ID"},
		{Header: "Name"},
		{Header: "Bucket"},
		{Header: "Region"},
		{Header: "Website"},
		{Header: "Distributions"},
		{Header: "Created"},
	}
	data := make([][]string, 0, len(origins))
	for _, o := range origins {
		website := "-"
		if o.WebsiteEnabled {
			website = "on"
		}
		data = append(data, []string{
			o.OriginID, o.Name, o.BucketName, o.Region, website,
			fmt.Sprint(len(o.AssociatedDistributions)), common.FormatTime(o.CreatedAt),
		})
	}
	return columns, data
}

var originGetCmd = &cobra.Command{
	Use:   "get ORIGIN_ID",
	Short: "オリジンの詳細を表示",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := geo.Origins.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		return printJSON(o)
	},
}

var originUpdateCmd = &cobra.Command{
	Use:   "update ORIGIN_ID",
	Short: "オリジンの名前・説明・ウェブサイト設定を更新",
	Long: `指定した項目だけを更新します。

例:
  ` + AppName + ` origin update origin-1a2b3c4d --name tokyo-main
  ` + AppName + ` origin update origin-1a2b3c4d --website=false`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := geo.Origins.Update(cmd.Context(), args[0], origin.UpdateRequest{
			Name:           changedString(cmd, "name"),
			Description:    changedString(cmd, "description"),
			WebsiteEnabled: changedBool(cmd, "website"),
		})
		if err != nil {
			return fmt.Errorf("%s オリジンの更新に失敗: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s オリジン %s を更新しました\n", common.SuccessIcon, o.OriginID)
		return printJSON(o)
	},
}

var originRmCmd = &cobra.Command{
	Use:   "rm ORIGIN_ID",
	Short: "オリジンとS3バケットを削除",
	Long: `バケット内の全オブジェクト（全バージョン）を削除してからバケットとオリジンを削除します。
ディストリビューションから参照されているオリジンは削除できません。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !originForce && !confirm(fmt.Sprintf("オリジン %s とバケット内の全データを削除します。よろしいですか？", args[0])) {
			fmt.Println("中止しました")
			return nil
		}
		report, err := geo.Origins.Delete(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s オリジンの削除に失敗: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s オリジン %s を削除しました（オブジェクト %d 件）\n", common.SuccessIcon, report.OriginID, report.ObjectsDeleted)
		if len(report.Warnings) > 0 {
			fmt.Printf("%s 一部の後処理に失敗しました:\n   %s\n", common.WarningIcon, strings.Join(report.Warnings, "\n   "))
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(OriginCmd)
	OriginCmd.AddCommand(originCreateCmd, originLsCmd, originGetCmd, originUpdateCmd, originRmCmd)

	originCreateCmd.Flags().StringVarP(&originBucket, "bucket", "b", "", "S3バケット名")
	originCreateCmd.Flags().StringVar(&originRegion, "bucket-region", "", "バケットのリージョン")
	originCreateCmd.Flags().StringVarP(&originDescription, "description", "d", "", "説明")
	originCreateCmd.Flags().BoolVar(&originWebsite, "website", false, "静的ウェブサイトホスティングを有効にする")
	originCreateCmd.Flags().BoolVar(&originAccessControl, "access-control", false, "Origin Access Controlを作成する")
	_ = originCreateCmd.MarkFlagRequired("bucket")
	_ = originCreateCmd.MarkFlagRequired("bucket-region")

	originLsCmd.Flags().StringVarP(&originFilter, "filter", "f", "", "名前のフィルタ（部分一致またはglob）")

	originUpdateCmd.Flags().String("name", "", "新しい名前")
	originUpdateCmd.Flags().String("description", "", "新しい説明")
	originUpdateCmd.Flags().Bool("website", false, "静的ウェブサイトホスティングの有効・無効")

	originRmCmd.Flags().BoolVarP(&originForce, "force", "f", false, "確認せずに削除する")
}
