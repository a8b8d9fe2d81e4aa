package shared

import "errors"

var (
	// ErrInvalidIdentity indicates the null identity was used where a real
	// principal is required.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrUnauthorized indicates the caller lacks the required role.
	ErrUnauthorized = errors.New("caller not authorized")
	// ErrPolicyDenied indicates the transfer policy rejected the operation.
	ErrPolicyDenied = errors.New("denied by policy")
	// ErrAlreadyMember indicates the identity already holds the role.
	ErrAlreadyMember = errors.New("already a role member")
	// ErrNotMember indicates the identity does not hold the role.
	ErrNotMember = errors.New("not a role member")
	// ErrExpiredPermission indicates a permission record whose expiry is not
	// in the future at write time.
	ErrExpiredPermission = errors.New("permission already expired")
	// ErrInsufficientBalance indicates a debit larger than the holder balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance indicates spending beyond the approved amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrPaused indicates the ledger is paused.
	ErrPaused = errors.New("ledger paused")
	// ErrNotPaused indicates unpause was called while active.
	ErrNotPaused = errors.New("ledger not paused")
	// ErrAlreadyPaused indicates pause was called while already paused.
	ErrAlreadyPaused = errors.New("ledger already paused")
	// ErrIssuanceClosed indicates issuance has been permanently finished.
	ErrIssuanceClosed = errors.New("issuance closed")
	// ErrIssuanceAlreadyClosed indicates finishIssuance on a closed ledger.
	ErrIssuanceAlreadyClosed = errors.New("issuance already closed")
	// ErrSelfTransfer indicates an issuership transfer to the caller itself.
	ErrSelfTransfer = errors.New("self transfer rejected")
	// ErrAmountOverflow indicates checked arithmetic would wrap.
	ErrAmountOverflow = errors.New("amount overflow")
	// ErrNilPolicy indicates an attempt to install an unreachable policy.
	ErrNilPolicy = errors.New("nil policy")
	// ErrControllerLimit indicates a controller operation exceeding the
	// subject's balance. Raised by the service pre-check, before any ledger
	// call, so it surfaces as an authorization failure rather than a ledger
	// failure.
	ErrControllerLimit = errors.New("controller amount exceeds holder balance")
)
