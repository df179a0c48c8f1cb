// Package store はオリジン、ディストリビューション、エッジ関数、履歴、テンプレートの永続化を抽象化します。
// すべての更新は単一レコードに対する操作で、レコードをまたぐトランザクションは前提にしません。
package store

import (
	"context"
	"errors"
	"time"

	"geocdn/internal/domain"
)

var (
	// ErrNotFound はキーに対応するレコードがないことを表します
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict は条件付き更新の前提（バージョン）が一致しなかったことを表します
	ErrConflict = errors.New("store: version conflict")
)

// Origins はオリジンカタログ
type Origins interface {
	PutOrigin(ctx context.Context, o domain.Origin) error
	GetOrigin(ctx context.Context, originID string) (domain.Origin, error)
	ListOrigins(ctx context.Context) ([]domain.Origin, error)
	UpdateOrigin(ctx context.Context, o domain.Origin) error
	DeleteOrigin(ctx context.Context, originID string) error
	AddAssociation(ctx context.Context, originID, distributionArn string, at time.Time) error
	RemoveAssociation(ctx context.Context, originID, distributionArn string, at time.Time) error
}

// Distributions はディストリビューションレコード
type Distributions interface {
	PutDistribution(ctx context.Context, d domain.Distribution) error
	GetDistribution(ctx context.Context, distributionID string) (domain.Distribution, error)
	ListDistributions(ctx context.Context) ([]domain.Distribution, error)
	ListByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Distribution, error)
	// UpdateStatus は保存済みのバージョンが expectedVersion のときだけ状態を書き換え、
	// バージョンを1つ進めます。一致しない場合は ErrConflict を返します
	UpdateStatus(ctx context.Context, distributionID string, expectedVersion int64, status domain.Status, at time.Time) error
	UpdateMetadata(ctx context.Context, distributionID, name, description string, at time.Time) error
	DeleteDistribution(ctx context.Context, distributionID string) error
}

// EdgeFunctions はエッジ関数カタログ
type EdgeFunctions interface {
	PutEdgeFunction(ctx context.Context, f domain.EdgeFunction) error
	GetEdgeFunction(ctx context.Context, functionID string) (domain.EdgeFunction, error)
	ListEdgeFunctions(ctx context.Context) ([]domain.EdgeFunction, error)
	UpdateEdgeFunctionStatus(ctx context.Context, functionID, status string, at time.Time) error
	DeleteEdgeFunction(ctx context.Context, functionID string) error
}

// History はディストリビューションごとの追記専用ログ
type History interface {
	AppendHistory(ctx context.Context, e domain.HistoryEntry) error
	// ListHistory は新しい順に最大 limit 件を返します。limit <= 0 は全件です
	ListHistory(ctx context.Context, distributionID string, limit int) ([]domain.HistoryEntry, error)
}

// Templates はディストリビューション構成テンプレート
type Templates interface {
	PutTemplate(ctx context.Context, t domain.Template) error
	GetTemplate(ctx context.Context, templateID string) (domain.Template, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	// UpdateTemplate は作成者と作成日時以外を書き換えます
	UpdateTemplate(ctx context.Context, t domain.Template) error
	DeleteTemplate(ctx context.Context, templateID string) error
}

// Store はすべてのストアをまとめたもの
type Store interface {
	Origins
	Distributions
	EdgeFunctions
	History
	Templates
	Close() error
}
