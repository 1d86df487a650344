package domain

import "fmt"

// ValidationError reports malformed or missing caller input. The caller must
// correct the request before retrying.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError indicates an unknown wallet, escrow or payment method.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// InsufficientFundsError is a business outcome, not a defect: the wallet's
// available balance cannot cover the requested movement.
type InsufficientFundsError struct {
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, requested %d", e.Available, e.Requested)
}

// InvalidStateError reports an escrow state-machine precondition violation,
// often the result of racing another actor on the same escrow.
type InvalidStateError struct {
	Current  EscrowStatus
	Required EscrowStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("escrow is %s, operation requires %s", e.Current, e.Required)
}

// NotAuthorizedError indicates the caller is not the party expected to perform
// the transition.
type NotAuthorizedError struct {
	Reason string
}

func (e *NotAuthorizedError) Error() string {
	return e.Reason
}

// StoreError wraps a failed unit of work. The store guarantees full rollback,
// so the caller may retry when Retryable is set.
type StoreError struct {
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("store: %v (retryable)", e.Err)
	}
	return fmt.Sprintf("store: %v", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
