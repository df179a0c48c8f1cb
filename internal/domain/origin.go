package domain

import (
	"fmt"
	"slices"
	"time"
)

// DefaultStorageSuffix はS3エンドポイントのドメインサフィックス
const DefaultStorageSuffix = "amazonaws.com"

// Origin はディストリビューションが参照するS3オリジン
type Origin struct {
	OriginID                string    `json:"originId"`
	Name                    string    `json:"name"`
	Description             string    `json:"description,omitempty"`
	BucketName              string    `json:"bucketName"`
	Region                  string    `json:"region"`
	AccessControlID         string    `json:"accessControlId,omitempty"`
	WebsiteEnabled          bool      `json:"websiteEnabled"`
	AssociatedDistributions []string  `json:"associatedDistributions"`
	CreatedBy               string    `json:"createdBy,omitempty"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// StorageDomain はオリジンの配信ドメイン {bucket}.s3.{region}.{suffix} を返します
func (o Origin) StorageDomain(suffix string) string {
	if suffix == "" {
		suffix = DefaultStorageSuffix
	}
	return fmt.Sprintf("%s.s3.%s.%s", o.BucketName, o.Region, suffix)
}

// IsReferenced はいずれかのディストリビューションに関連付けられているかを返します
func (o Origin) IsReferenced() bool {
	return len(o.AssociatedDistributions) > 0
}

// HasAssociation は指定ARNが関連付け済みかを返します
func (o Origin) HasAssociation(arn string) bool {
	return slices.Contains(o.AssociatedDistributions, arn)
}
