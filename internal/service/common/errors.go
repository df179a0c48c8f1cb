package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
)

// 出力メッセージの絵文字定数
const (
	ErrorIcon   = "❌"
	SuccessIcon = "✅"
	WarningIcon = "⚠️"
	SearchIcon  = "🔍"
	InfoIcon    = "📋"
	ProcessIcon = "🔄"
	StartIcon   = "🚀"
	WaitIcon    = "⏳"
)

// Kind はエラーの分類
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindNotFound          Kind = "NotFoundError"
	KindConflict          Kind = "ConflictError"
	KindProvider          Kind = "ProviderError"
	KindDeploymentTimeout Kind = "DeploymentTimeout"
	KindUnhandled         Kind = "Unhandled"
)

// StatusCode は分類に対応するHTTP相当のステータスコードを返します
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindProvider:
		return http.StatusBadGateway
	case KindDeploymentTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error は分類付きのエラー
type Error struct {
	Kind    Kind
	Code    string // プロバイダのエラーコード（ProviderErrorのみ）
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidationError は入力不備のエラーを作成
func NewValidationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError は参照先が存在しないエラーを作成
func NewNotFoundError(resource, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s '%s' が見つかりません", resource, id)}
}

// NewConflictError は現在の状態では実行できない操作のエラーを作成
func NewConflictError(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewDeploymentTimeout はエッジ関数の有効化待ちがタイムアウトしたエラーを作成
func NewDeploymentTimeout(functionName string, err error) error {
	return &Error{Kind: KindDeploymentTimeout, Message: fmt.Sprintf("関数 %s が時間内にActiveになりませんでした", functionName), Err: err}
}

// NewProviderError はAWS APIのエラーをコードとメッセージを保ったまま包みます
func NewProviderError(operation string, err error) error {
	if err == nil {
		return nil
	}
	e := &Error{Kind: KindProvider, Message: operation, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		e.Code = apiErr.ErrorCode()
	}
	return e
}

// KindOf はエラーの分類を返します。分類のないエラーは Unhandled です
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnhandled
}

// IsKind はエラーが指定の分類かを返します
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrorCode はAWS APIエラーのコードを返します
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsAPIErrorCode はAWS APIエラーのコードがいずれかに一致するかを返します
func IsAPIErrorCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	code := ErrorCode(err)
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}
