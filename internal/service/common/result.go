package common

import (
	"errors"
	"net/http"
)

// Result は各操作が返す構造化された結果
type Result struct {
	StatusCode int           `json:"statusCode"`
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	Data       any           `json:"data,omitempty"`
	Error      string        `json:"error,omitempty"`
	Details    *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails は失敗時の診断情報
type ErrorDetails struct {
	Category string            `json:"category"`
	Code     string            `json:"code,omitempty"`
	Cause    string            `json:"cause,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Succeed は成功結果を作成します
func Succeed(statusCode int, message string, data any) Result {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	return Result{StatusCode: statusCode, Success: true, Message: message, Data: data}
}

// Fail はエラーの分類から失敗結果を作成します
func Fail(message string, err error) Result {
	if err == nil {
		err = errors.New(message)
	}
	kind := KindOf(err)
	res := Result{
		StatusCode: kind.StatusCode(),
		Success:    false,
		Message:    message,
		Error:      err.Error(),
		Details: &ErrorDetails{
			Category: string(kind),
			Code:     ErrorCode(err),
		},
	}
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		res.Details.Cause = e.Err.Error()
	}
	return res
}

// WithExtra は失敗結果に補足情報を追加します
func (r Result) WithExtra(key, value string) Result {
	if r.Details == nil {
		r.Details = &ErrorDetails{}
	}
	if r.Details.Extra == nil {
		r.Details.Extra = map[string]string{}
	}
	r.Details.Extra[key] = value
	return r
}

// Err は失敗結果をエラーとして返します。成功時は nil です
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	if r.Error != "" {
		return errors.New(r.Message + ": " + r.Error)
	}
	return errors.New(r.Message)
}
