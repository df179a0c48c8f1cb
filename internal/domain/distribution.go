package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// MultiOriginConfig はマルチオリジン構成の宣言内容
type MultiOriginConfig struct {
	DefaultOriginID     string   `json:"defaultOriginId" dynamodbav:"defaultOriginId"`
	AdditionalOriginIDs []string `json:"additionalOriginIds" dynamodbav:"additionalOriginIds"`
	PresetKey           string   `json:"preset" dynamodbav:"preset"`
}

// OriginIDs はデフォルトを先頭にした全オリジンIDを返します
func (c MultiOriginConfig) OriginIDs() []string {
	ids := make([]string, 0, len(c.AdditionalOriginIDs)+1)
	ids = append(ids, c.DefaultOriginID)
	return append(ids, c.AdditionalOriginIDs...)
}

// Distribution はCloudFrontディストリビューションのローカルレコード
type Distribution struct {
	DistributionID   string             `json:"distributionId"`
	ProviderID       string             `json:"cloudfrontId"`
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	Status           Status             `json:"status"`
	DomainName       string             `json:"domainName"`
	ARN              string             `json:"arn"`
	IsMultiOrigin    bool               `json:"isMultiOrigin"`
	MultiOrigin      *MultiOriginConfig `json:"multiOriginConfig,omitempty"`
	EdgeFunctionID   string             `json:"lambdaEdgeFunctionId,omitempty"`
	AccessIdentityID string             `json:"oaiId,omitempty"`
	Config           json.RawMessage    `json:"config,omitempty"`
	Version          int64              `json:"version"`
	CreatedBy        string             `json:"createdBy,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Validate はレコードの不変条件を検証します
func (d Distribution) Validate() error {
	if d.DistributionID == "" {
		return errors.New("distributionId is required")
	}
	if d.Version < 1 {
		return errors.New("version must start at 1")
	}
	if d.IsMultiOrigin {
		if d.EdgeFunctionID == "" || d.AccessIdentityID == "" {
			return errors.New("multi-origin distribution requires edge function and access identity")
		}
		if d.MultiOrigin == nil {
			return errors.New("multi-origin distribution requires multiOriginConfig")
		}
	}
	return nil
}

// NeedsPropagationNudge は遷移後にエッジ関数の再レプリケーションが必要かを返します
func (d Distribution) NeedsPropagationNudge(from, to Status) bool {
	return from == StatusInProgress && to == StatusDeployed && d.IsMultiOrigin && d.EdgeFunctionID != ""
}
