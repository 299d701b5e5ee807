// Package port file: internal/core/port/errors.go
package port

import (
	"errors"
	"fmt"
)

// 查询引擎的错误分类。调用方只应通过 errors.Is 判断这些哨兵错误，
// 不会看到任何后端驱动的原始错误类型。
var (
	ErrValidation         = errors.New("请求参数校验失败")
	ErrBackendUnavailable = errors.New("后端暂不可用")
	ErrBackendQuery       = errors.New("后端查询失败")
	ErrCancelled          = errors.New("查询已被同一客户端的新请求取代")
	ErrStaleCursor        = errors.New("实时游标已过期，需要重新开始轮询")

	ErrResourceNotFound = errors.New("指定的查询资源未找到")
	ErrSourceNotFound   = errors.New("指定的数据源未找到")
)

// ValidationError 指出某个字段的值不符合其声明的类型或比较方式
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("字段 '%s' 无效: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("字段 '%s' 的值 '%s' 无效: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError 创建一个校验错误
func NewValidationError(field, value, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// BackendError 是已分类的后端 I/O 错误。Kind 必须是
// ErrBackendUnavailable、ErrBackendQuery 或 ErrCancelled 之一。
type BackendError struct {
	Backend string
	Code    string
	Kind    error
	Err     error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Backend, e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Is(target error) bool { return target == e.Kind }

func (e *BackendError) Unwrap() error { return e.Err }

// Unavailable 把连接层错误包装为可重试的不可用错误
func Unavailable(backend string, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: ErrBackendUnavailable, Err: err}
}

// QueryFailed 把后端拒绝执行的错误包装为不可重试的查询错误
func QueryFailed(backend, code string, err error) *BackendError {
	return &BackendError{Backend: backend, Code: code, Kind: ErrBackendQuery, Err: err}
}

// Cancelled 表示查询被主动取消
func Cancelled(backend string, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: ErrCancelled, Err: err}
}

// Retryable 报告错误是否值得在新连接上重试
func Retryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
