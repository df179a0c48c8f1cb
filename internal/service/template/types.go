// Package template は名前付きのCloudFront構成を管理し、ディストリビューション作成に適用します。
package template

import (
	"context"
	"encoding/json"
	"log/slog"

	"geocdn/internal/clock"
	"geocdn/internal/domain"
	"geocdn/internal/service/common"
	"geocdn/internal/service/distribution"
)

const (
	// DefaultMinTLSVersion は証明書を設定するときの最低TLSバージョン
	DefaultMinTLSVersion = "TLSv1.2_2021"
	// DefaultViewerProtocol は独自ドメイン使用時のビューワープロトコルポリシー
	DefaultViewerProtocol = "redirect-to-https"
)

// Creator はテンプレート適用時のディストリビューション作成
type Creator interface {
	CreateDistribution(ctx context.Context, req distribution.CreateRequest) common.Result
}

// Options は Registry の任意設定
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Certificate は独自ドメインに割り当てるACM証明書
type Certificate struct {
	ARN            string   `json:"certificateArn"`
	Domains        []string `json:"customDomains"`
	ViewerProtocol string   `json:"viewerProtocolPolicy,omitempty"`
	MinTLSVersion  string   `json:"minimumProtocolVersion,omitempty"`
}

// CreateRequest はテンプレート作成の入力
type CreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Config      json.RawMessage `json:"config"`
	Certificate *Certificate    `json:"ssl,omitempty"`
	User        string          `json:"-"`
}

// UpdateRequest はテンプレート更新の入力。Description と Category は nil なら変更しません
type UpdateRequest struct {
	Name        string          `json:"name"`
	Config      json.RawMessage `json:"config"`
	Description *string         `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Certificate *Certificate    `json:"ssl,omitempty"`
}

// ApplyRequest はテンプレート適用の入力。Overrides はテンプレート構成の最上位キーを上書きします
type ApplyRequest struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Overrides   json.RawMessage           `json:"customizations,omitempty"`
	MultiOrigin *domain.MultiOriginConfig `json:"multiOriginConfig,omitempty"`
	User        string                    `json:"-"`
}

// Applied は適用結果
type Applied struct {
	Distribution *domain.Distribution `json:"distribution"`
	TemplateID   string               `json:"templateId"`
	TemplateName string               `json:"templateName"`
}
