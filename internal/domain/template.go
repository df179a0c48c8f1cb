package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// DefaultTemplateCategory は分類を指定しなかったテンプレートの分類
const DefaultTemplateCategory = "General"

// Template は名前付きのCloudFront構成。適用時にディストリビューション作成の config になります
type Template struct {
	TemplateID  string          `json:"templateId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Config      json.RawMessage `json:"config"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Validate は保存前の必須項目を確認します
func (t Template) Validate() error {
	if t.TemplateID == "" {
		return errors.New("templateId is required")
	}
	if t.Name == "" {
		return errors.New("name is required")
	}
	if len(t.Config) == 0 {
		return errors.New("config is required")
	}
	return nil
}
