// 错误分类与处理
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorLevel 错误级别
type ErrorLevel int

const (
	// L1Recoverable 可恢复错误 - 自动重试
	L1Recoverable ErrorLevel = iota + 1
	// L2Intervention 需要人工干预
	L2Intervention
	// L3Fatal 致命错误 - 中止构建
	L3Fatal
)

func (l ErrorLevel) String() string {
	switch l {
	case L1Recoverable:
		return "L1_RECOVERABLE"
	case L2Intervention:
		return "L2_INTERVENTION"
	case L3Fatal:
		return "L3_FATAL"
	default:
		return "UNKNOWN"
	}
}

// Temporal 不可重试错误类型
const (
	TypeStructuralError = "StructuralError"
	TypeValidationError = "ValidationError"
)

// 预定义错误类型
var (
	ErrStructural           = errors.New("structural input error")
	ErrAssumptionsInvalid   = errors.New("invalid forecast assumptions")
	ErrValuationUnavailable = errors.New("valuation unavailable")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrCacheUnavailable     = errors.New("cache unavailable")
	ErrLLMUnavailable       = errors.New("LLM service unavailable")
)

// ModelBuildError 结构性错误：报表序列为空、某类报表完全缺失、数值越过上游校验等
type ModelBuildError struct {
	Reason    string
	Statement string
}

func (e *ModelBuildError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("model build failed (%s): %s", e.Statement, e.Reason)
	}
	return "model build failed: " + e.Reason
}

// Unwrap 使 errors.Is(err, ErrStructural) 成立
func (e *ModelBuildError) Unwrap() error {
	return ErrStructural
}

// NewModelBuildError 创建结构性错误
func NewModelBuildError(statement, format string, args ...interface{}) *ModelBuildError {
	return &ModelBuildError{Statement: statement, Reason: fmt.Sprintf(format, args...)}
}

// ClassifiedError 分类后的错误
type ClassifiedError struct {
	Level      ErrorLevel
	Code       string
	Message    string
	Cause      error
	Retryable  bool
	MaxRetries int
	Metadata   map[string]interface{}
}

func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ClassifyError 对错误进行分类
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	// 检查是否已经是 ClassifiedError
	var classifiedErr *ClassifiedError
	if errors.As(err, &classifiedErr) {
		return classifiedErr
	}

	switch {
	case errors.Is(err, ErrStructural):
		return &ClassifiedError{
			Level:     L3Fatal,
			Code:      "STRUCTURAL",
			Message:   "Malformed or empty financial statements",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrAssumptionsInvalid):
		return &ClassifiedError{
			Level:     L2Intervention,
			Code:      "ASSUMPTIONS_INVALID",
			Message:   "Forecast assumptions rejected",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrValuationUnavailable):
		return &ClassifiedError{
			Level:     L2Intervention,
			Code:      "VALUATION_UNAVAILABLE",
			Message:   "Valuation could not be computed",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, context.DeadlineExceeded):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "TIMEOUT",
			Message:    "Operation timed out",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
		}

	case errors.Is(err, ErrCacheUnavailable):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "CACHE_UNAVAILABLE",
			Message:    "Cache service unavailable",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
		}

	case errors.Is(err, ErrLLMUnavailable):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "LLM_UNAVAILABLE",
			Message:    "LLM service unavailable",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 2,
			Metadata:   map[string]interface{}{"use_fallback_thesis": true},
		}

	case errors.Is(err, ErrConfigInvalid):
		return &ClassifiedError{
			Level:     L3Fatal,
			Code:      "FATAL_CONFIG",
			Message:   "Fatal configuration error",
			Cause:     err,
			Retryable: false,
		}

	default:
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "UNKNOWN",
			Message:    "Unknown error",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 1,
		}
	}
}

// NewClassifiedError 创建分类错误
func NewClassifiedError(level ErrorLevel, code, message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Level:   level,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithLevel 包装错误并指定级别
func WrapWithLevel(err error, level ErrorLevel, message string) *ClassifiedError {
	classified := ClassifyError(err)
	classified.Level = level
	if message != "" {
		classified.Message = message
	}
	return classified
}
