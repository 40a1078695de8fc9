package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the filesystem. Access-check failures are mapped
// to ErrFileNotFound at the retrieval boundary so callers cannot probe for
// the existence of restricted files.
var (
	ErrFileNotFound        = errors.New("file not found")
	ErrInsufficientStorage = errors.New("insufficient storage nodes available")
	ErrEscrow              = errors.New("escrow payment failed")
	ErrAssembly            = errors.New("file assembly failed")
	ErrContract            = errors.New("storage contract error")
	ErrNetwork             = errors.New("network error")
	ErrAccessDenied        = errors.New("access denied")
	ErrEncryption          = errors.New("encryption error")
	ErrKey                 = errors.New("key management error")
	ErrGroupNotFound       = errors.New("group not found")
	ErrUserNotFound        = errors.New("user not found")
)

// InsufficientFundsError reports a ledger balance short of the amount a
// store or retrieve operation requires.
type InsufficientFundsError struct {
	Required  uint64
	Available uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d, have %d", e.Required, e.Available)
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError.
func IsInsufficientFunds(err error) bool {
	var ife *InsufficientFundsError
	return errors.As(err, &ife)
}
