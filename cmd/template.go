package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/template"
)

var (
	tmplDescription   string
	tmplCategory      string
	tmplConfigFile    string
	tmplCertArn       string
	tmplDomains       []string
	tmplViewerPolicy  string
	tmplMinTLS        string
	tmplFilter        string
	tmplOverridesFile string
	tmplDefaultOrigin string
	tmplOrigins       []string
	tmplPreset        string
	tmplForce         bool
)

// TemplateCmd はtemplateコマンドを表す
var TemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "ディストリビューション構成テンプレート管理コマンド",
	Long:  `CloudFrontの構成をテンプレートとして保存し、ディストリビューション作成に再利用するためのコマンド群です。`,
}

// certificateFromFlags は証明書系のフラグを Certificate にまとめます。指定がなければ nil です
func certificateFromFlags() *template.Certificate {
	if tmplCertArn == "" && len(tmplDomains) == 0 && tmplViewerPolicy == "" && tmplMinTLS == "" {
		return nil
	}
	return &template.Certificate{
		ARN:            tmplCertArn,
		Domains:        tmplDomains,
		ViewerProtocol: tmplViewerPolicy,
		MinTLSVersion:  tmplMinTLS,
	}
}

var tmplCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "構成ファイルからテンプレートを登録",
	Long: `CloudFront DistributionConfig のJSONファイルをテンプレートとして登録します。
--certificate-arn と --domains を指定すると独自ドメインのSSL設定を構成に反映します。

例:
  ` + AppName + ` template create static-site --config-file ./site.json --category Web
  ` + AppName + ` template create branded --config-file ./site.json --certificate-arn arn:aws:acm:... --domains cdn.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readJSONFile(tmplConfigFile)
		if err != nil {
			return err
		}
		t, err := geo.Templates.Create(cmd.Context(), template.CreateRequest{
			Name:        args[0],
			Description: tmplDescription,
			Category:    tmplCategory,
			Config:      raw,
			Certificate: certificateFromFlags(),
			User:        currentUser(),
		})
		if err != nil {
			return fmt.Errorf("%s テンプレートの作成に失敗: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s テンプレートを作成しました (ID: %s)\n", common.SuccessIcon, t.TemplateID)
		return printJSON(t)
	},
}

var tmplLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "テンプレート一覧を表示",
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := geo.Templates.List(cmd.Context(), tmplFilter)
		if err != nil {
			return common.FormatListError("テンプレート", err)
		}
		var conditions []string
		if tmplFilter != "" {
			conditions = append(conditions, fmt.Sprintf("フィルタ '%s' に一致する", tmplFilter))
		}
		common.DisplayList(templates, "テンプレート", templateTable, &common.DisplayOptions{
			ShowCount:      true,
			EmptyMessage:   "テンプレートが見つかりませんでした",
			FilterMessages: conditions,
		})
		return nil
	},
}

func templateTable(templates []domain.Template) ([]common.TableColumn, [][]string) {
	columns := []common.TableColumn{
		{Header: "ID"},
		{Header: "Name"},
		{Header: "Category"},
		{Header: "CreatedBy"},
		{Header: "Updated"},
	}
	data := make([][]string, 0, len(templates))
	for _, t := range templates {
		data = append(data, []string{t.TemplateID, t.Name, t.Category, t.CreatedBy, common.FormatTime(t.UpdatedAt)})
	}
	return columns, data
}

var tmplGetCmd = &cobra.Command{
	Use:   "get TEMPLATE_ID",
	Short: "テンプレートの詳細を表示",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := geo.Templates.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s %w", common.ErrorIcon, err)
		}
		return printJSON(t)
	},
}

var tmplUpdateCmd = &cobra.Command{
	Use:   "update TEMPLATE_ID NAME",
	Short: "テンプレートの名前と構成を置き換え",
	Long: `名前と構成ファイルは必須です。説明と分類は指定した場合だけ変更します。

例:
  ` + AppName + ` template update tmpl-1a2b3c4d static-site-v2 --config-file ./site.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readJSONFile(tmplConfigFile)
		if err != nil {
			return err
		}
		t, err := geo.Templates.Update(cmd.Context(), args[0], template.UpdateRequest{
			Name:        args[1],
			Config:      raw,
			Description: changedString(cmd, "description"),
			Category:    changedString(cmd, "category"),
			Certificate: certificateFromFlags(),
		})
		if err != nil {
			return fmt.Errorf("%s テンプレートの更新に失敗: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s テンプレート %s を更新しました\n", common.SuccessIcon, t.TemplateID)
		return printJSON(t)
	},
}

var tmplRmCmd = &cobra.Command{
	Use:   "rm TEMPLATE_ID",
	Short: "テンプレートを削除",
	Long:  `テンプレートを削除します。テンプレートから作成済みのディストリビューションには影響しません。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tmplForce && !confirm(fmt.Sprintf("テンプレート %s を削除します。よろしいですか？", args[0])) {
			fmt.Println("中止しました")
			return nil
		}
		if err := geo.Templates.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("%s テンプレートの削除に失敗: %w", common.ErrorIcon, err)
		}
		fmt.Printf("%s テンプレート %s を削除しました\n", common.SuccessIcon, args[0])
		return nil
	},
}

var tmplApplyCmd = &cobra.Command{
	Use:   "apply TEMPLATE_ID NAME",
	Short: "テンプレートからディストリビューションを作成",
	Long: `テンプレートの構成に --overrides-file の最上位キーを上書きしてディストリビューションを作成します。
--preset を指定するとマルチオリジン構成になります。

例:
  ` + AppName + ` template apply tmpl-1a2b3c4d shop
  ` + AppName + ` template apply tmpl-1a2b3c4d shop --default-origin origin-aaaa1111 --origins origin-bbbb2222 --preset asia-us`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := template.ApplyRequest{
			Name:        args[1],
			Description: tmplDescription,
			User:        currentUser(),
		}
		if tmplOverridesFile != "" {
			raw, err := readJSONFile(tmplOverridesFile)
			if err != nil {
				return err
			}
			req.Overrides = raw
		}
		if tmplPreset != "" || tmplDefaultOrigin != "" {
			req.MultiOrigin = &domain.MultiOriginConfig{
				DefaultOriginID:     tmplDefaultOrigin,
				AdditionalOriginIDs: tmplOrigins,
				PresetKey:           tmplPreset,
			}
		}
		fmt.Printf("%s テンプレート %s からディストリビューション '%s' を作成します...\n", common.StartIcon, args[0], req.Name)
		return printResult(geo.Templates.Apply(cmd.Context(), args[0], req))
	},
}

func init() {
	RootCmd.AddCommand(TemplateCmd)
	TemplateCmd.AddCommand(tmplCreateCmd, tmplLsCmd, tmplGetCmd, tmplUpdateCmd, tmplRmCmd, tmplApplyCmd)

	for _, c := range []*cobra.Command{tmplCreateCmd, tmplUpdateCmd} {
		c.Flags().StringVar(&tmplConfigFile, "config-file", "", "CloudFront DistributionConfig のJSONファイル")
		c.Flags().StringVarP(&tmplDescription, "description", "d", "", "説明")
		c.Flags().StringVar(&tmplCategory, "category", "", "分類（既定: "+domain.DefaultTemplateCategory+"）")
		c.Flags().StringVar(&tmplCertArn, "certificate-arn", "", "ACM証明書のARN（us-east-1）")
		c.Flags().StringSliceVar(&tmplDomains, "domains", nil, "独自ドメイン（カンマ区切り）")
		c.Flags().StringVar(&tmplViewerPolicy, "viewer-protocol", "", "ビューワープロトコルポリシー（既定: "+template.DefaultViewerProtocol+"）")
		c.Flags().StringVar(&tmplMinTLS, "min-tls", "", "最低TLSバージョン（既定: "+template.DefaultMinTLSVersion+"）")
		_ = c.MarkFlagRequired("config-file")
	}

	tmplLsCmd.Flags().StringVarP(&tmplFilter, "filter", "f", "", "名前のフィルタ（部分一致またはglob）")
	tmplRmCmd.Flags().BoolVarP(&tmplForce, "force", "f", false, "確認せずに削除する")

	tmplApplyCmd.Flags().StringVarP(&tmplDescription, "description", "d", "", "説明")
	tmplApplyCmd.Flags().StringVar(&tmplOverridesFile, "overrides-file", "", "構成を上書きするJSONファイル")
	tmplApplyCmd.Flags().StringVar(&tmplDefaultOrigin, "default-origin", "", "マルチオリジンの既定オリジンID")
	tmplApplyCmd.Flags().StringSliceVar(&tmplOrigins, "origins", nil, "追加オリジンID（カンマ区切り）")
	tmplApplyCmd.Flags().StringVar(&tmplPreset, "preset", "", "ルーティングプリセット（edge presets で一覧）")
}
