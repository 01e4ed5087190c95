package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of the entity it concerns
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindResourceUnavailable Kind = "RESOURCE_UNAVAILABLE"
	KindPolicyViolation     Kind = "POLICY_VIOLATION"
	KindInvalidState        Kind = "INVALID_STATE"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindInternal            Kind = "INTERNAL"
)

// Error is a circulation error carrying a stable kind and code
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors by code so wrapped copies compare equal to sentinels
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// NotFound errors
var (
	ErrBookNotFound       = newError(KindNotFound, "BOOK_NOT_FOUND", "book not found")
	ErrCopyNotFound       = newError(KindNotFound, "COPY_NOT_FOUND", "book copy not found")
	ErrLoanNotFound       = newError(KindNotFound, "LOAN_NOT_FOUND", "loan not found")
	ErrQueueEntryNotFound = newError(KindNotFound, "QUEUE_ENTRY_NOT_FOUND", "queue entry not found")
	ErrRequestNotFound    = newError(KindNotFound, "REQUEST_NOT_FOUND", "book request not found")
	ErrUserNotFound       = newError(KindNotFound, "USER_NOT_FOUND", "user not found")
)

// Conflict errors
var (
	ErrDuplicateActiveLoan     = newError(KindConflict, "DUPLICATE_ACTIVE_LOAN", "user already has an active loan for this book")
	ErrAlreadyQueued           = newError(KindConflict, "ALREADY_QUEUED", "user is already in the queue for this book")
	ErrDuplicatePendingRequest = newError(KindConflict, "DUPLICATE_PENDING_REQUEST", "user already has a pending request for this book")
	ErrBookCurrentlyAvailable  = newError(KindConflict, "BOOK_CURRENTLY_AVAILABLE", "book has available copies, borrow it directly")
)

// ResourceUnavailable errors
var (
	ErrBookNotAvailable = newError(KindResourceUnavailable, "BOOK_NOT_AVAILABLE", "no copy of this book is available")
)

// PolicyViolation errors
var (
	ErrNoActiveMembership     = newError(KindPolicyViolation, "NO_ACTIVE_MEMBERSHIP", "user has no active membership")
	ErrLoanLimitExceeded      = newError(KindPolicyViolation, "LOAN_LIMIT_EXCEEDED", "loan limit exceeded")
	ErrRenewalLimitExceeded   = newError(KindPolicyViolation, "RENEWAL_LIMIT_EXCEEDED", "renewal limit exceeded")
	ErrRenewalBlockedByDemand = newError(KindPolicyViolation, "RENEWAL_BLOCKED_BY_DEMAND", "another user is waiting for this book")
	ErrRenewalTooSoon         = newError(KindPolicyViolation, "RENEWAL_TOO_SOON", "loan was renewed too recently")
)

// InvalidState errors
var (
	ErrInvalidLoanState    = newError(KindInvalidState, "INVALID_LOAN_STATE", "loan is not in a valid state for this action")
	ErrInvalidQueueState   = newError(KindInvalidState, "INVALID_QUEUE_STATE", "queue entry is not in a valid state for this action")
	ErrInvalidRequestState = newError(KindInvalidState, "INVALID_REQUEST_STATE", "book request is not in a valid state for this action")
)

// Unauthorized errors
var (
	ErrNotBorrower  = newError(KindUnauthorized, "NOT_BORROWER", "only the borrower can perform this action")
	ErrUnauthorized = newError(KindUnauthorized, "UNAUTHORIZED", "not allowed to act on this resource")
)

// InvalidInput errors
var (
	ErrInvalidInput = newError(KindInvalidInput, "INVALID_INPUT", "invalid input")
)

// LoanLimitExceeded reports the cap the user hit
func LoanLimitExceeded(maxBooks int) error {
	return fmt.Errorf("%w: maximum %d concurrent loans", ErrLoanLimitExceeded, maxBooks)
}

// RenewalLimitExceeded reports the renewal cap the loan hit
func RenewalLimitExceeded(limit int) error {
	return fmt.Errorf("%w: maximum %d renewals", ErrRenewalLimitExceeded, limit)
}

// InvalidInput wraps ErrInvalidInput with a reason
func InvalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}
