// internal/dex/cpmm/errors.go
package cpmm

import (
	"errors"
	"fmt"
)

// Machine-readable error codes shared by every operation in this package.
const (
	ErrCodeMissingSigner         = "MISSING_SIGNER"
	ErrCodeInvalidMintAddresses  = "INVALID_MINT_ADDRESSES"
	ErrCodeInvalidAmount         = "INVALID_AMOUNT"
	ErrCodeMissingPoolIdentifier = "MISSING_POOL_IDENTIFIER"
	ErrCodePoolNotFound          = "POOL_NOT_FOUND"
	ErrCodeInvalidPoolType       = "INVALID_POOL_TYPE"
	ErrCodeNoPoolsFound          = "NO_POOLS_FOUND"
	ErrCodeInvalidSlippageRange  = "INVALID_SLIPPAGE_RANGE"
	ErrCodeInvalidFeeConfigIndex = "INVALID_FEE_CONFIG_INDEX"
	ErrCodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	ErrCodeNoLpBalance           = "NO_LP_BALANCE"
	ErrCodeInsufficientLpBalance = "INSUFFICIENT_LP_BALANCE"
	ErrCodeLockNotFound          = "LOCK_NOT_FOUND"
	ErrCodeInvalidInputMint      = "INVALID_INPUT_MINT"
	ErrCodeInvalidOutputMint     = "INVALID_OUTPUT_MINT"
	ErrCodeInvalidReserve        = "INVALID_RESERVE"
	ErrCodeInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	ErrCodeSDKInitFailed         = "SDK_INIT_FAILED"
	ErrCodeExecutionFailed       = "TRANSACTION_EXECUTION_FAILED"
)

// OperationError is the single structured error type of the package: a
// human-readable message, a machine code for UIs, the operation that raised
// it, and an optional nested cause.
type OperationError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

func (e *OperationError) Unwrap() error { return e.Err }

func newOpError(op, code, message string) *OperationError {
	return &OperationError{Op: op, Code: code, Message: message}
}

func wrapOpError(op, code, message string, err error) *OperationError {
	return &OperationError{Op: op, Code: code, Message: message, Err: err}
}

// ErrorCode extracts the machine code from err, or returns "" when err does
// not carry an OperationError anywhere in its chain.
func ErrorCode(err error) string {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return ""
}
