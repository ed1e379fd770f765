// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates an entity with the same key is already registered.
var ErrDuplicate = errors.New("duplicate registration")

// ErrValidation indicates input that failed structural or schema validation.
var ErrValidation = errors.New("validation failed")

// ErrStaleWrite indicates a write carrying an older timestamp than the
// record it tried to replace.
var ErrStaleWrite = errors.New("stale write rejected")

// ErrDenied indicates the guard pipeline refused the requested action.
var ErrDenied = errors.New("denied by policy")

// ErrApprovalTimeout indicates a required human approval did not arrive in time.
var ErrApprovalTimeout = errors.New("approval timed out")

// ErrRateLimited indicates the caller exhausted its admission budget.
var ErrRateLimited = errors.New("rate limited")

// ErrCredentialReleased indicates use of a credential handle after its
// backing secret was erased.
var ErrCredentialReleased = errors.New("credential released")

// ErrTimeout indicates tool execution exceeded its deadline.
var ErrTimeout = errors.New("execution timed out")
