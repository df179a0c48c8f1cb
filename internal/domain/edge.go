package domain

import "time"

// EdgeFunction ステータス
const (
	EdgeFunctionActive = "active"
	EdgeFunctionOrphan = "orphaned"
)

// AccessIdentity はCloudFront Origin Access Identity
type AccessIdentity struct {
	IdentityID      string `json:"identityId"`
	CanonicalUserID string `json:"canonicalUserId"`
}

// OriginSnapshot はエッジ関数生成時点のオリジン情報
type OriginSnapshot struct {
	OriginID   string `json:"originId" dynamodbav:"originId"`
	BucketName string `json:"bucketName" dynamodbav:"bucketName"`
	Region     string `json:"region" dynamodbav:"region"`
	Domain     string `json:"domain" dynamodbav:"domain"`
}

// EdgeFunction は公開済みのLambda@Edgeルーティング関数
type EdgeFunction struct {
	FunctionID    string            `json:"functionId"`
	FunctionName  string            `json:"functionName"`
	FunctionARN   string            `json:"functionArn"`
	VersionedARN  string            `json:"versionArn"`
	CodeContent   string            `json:"codeContent"`
	Origins       []OriginSnapshot  `json:"origins"`
	RegionMapping map[string]string `json:"regionMapping"`
	PresetKey     string            `json:"preset"`
	Status        string            `json:"status"`
	CreatedBy     string            `json:"createdBy,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
