// Package xerrors 定义统一错误码
package xerrors

import (
	"errors"
	"fmt"
)

// Code 错误码
type Code string

// 错误码定义
const (
	CodeOK           Code = "OK"
	CodeUnknown      Code = "UNKNOWN"
	CodeInvalidParam Code = "INVALID_PARAM"
	CodeInternal     Code = "INTERNAL"
	CodeUnavailable  Code = "UNAVAILABLE"
	CodeTimeout      Code = "TIMEOUT"

	// 订单生命周期 (4xxx)
	CodeDuplicateClientOrderId Code = "DUPLICATE_CLIENT_ORDER_ID"
	CodeOrderNotFound          Code = "ORDER_NOT_FOUND"
	CodeExchangeIdAssigned     Code = "EXCHANGE_ID_ASSIGNED"
	CodeOverFill               Code = "OVER_FILL"
	CodeInvalidStateForFill    Code = "INVALID_STATE_FOR_FILL"
	CodeInvalidStateForCancel  Code = "INVALID_STATE_FOR_CANCEL"
	CodeOrderNotTerminal       Code = "ORDER_NOT_TERMINAL"
	CodeInvalidPrice           Code = "INVALID_PRICE"
	CodeInvalidQuantity        Code = "INVALID_QUANTITY"
	CodeQtyTooSmall            Code = "QTY_TOO_SMALL"

	// 风控 (5xxx)
	CodeRiskRejected  Code = "RISK_REJECTED"
	CodeTradingHalted Code = "TRADING_HALTED"

	// 交易所交互 (6xxx)
	CodeOrderRejected Code = "ORDER_REJECTED"
	CodeSubmitFailed  Code = "SUBMIT_FAILED"
	CodeSystemBusy    Code = "SYSTEM_BUSY"
)

// Error 业务错误
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// New 创建错误
func New(code Code, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: isRetryable(code),
	}
}

// Newf 创建格式化错误
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装底层错误并保留错误码
func Wrap(code Code, err error) *Error {
	return New(code, err.Error())
}

// CodeOf 提取错误码，非业务错误返回 UNKNOWN
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	// 非业务错误视为传输层故障，可重试
	return true
}

// isRetryable 判断错误码是否可重试
func isRetryable(code Code) bool {
	switch code {
	case CodeTimeout, CodeUnavailable, CodeSystemBusy, CodeSubmitFailed:
		return true
	default:
		return false
	}
}

// 预定义错误
var (
	ErrOrderNotFound = New(CodeOrderNotFound, "order not found")
	ErrSystemBusy    = New(CodeSystemBusy, "system busy, please retry")
)
