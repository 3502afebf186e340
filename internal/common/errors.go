// Package common defines sentinel errors shared by the ledger, mirror and
// service layers of poapgate. Callers should use errors.Is to match these
// values; concrete failures wrap them with a human-readable cause.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrInvalidInput   = errors.New("invalid input")

	// Auth errors (invalid or malformed token, bad wallet signature).
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrChallengeExpired = errors.New("challenge expired")

	// Action errors surfaced to users.
	ErrNotEligible           = errors.New("not eligible: credential required")
	ErrTransactionSubmission = errors.New("transaction submission failed")
	ErrDuplicateAction       = errors.New("already performed")
	ErrMirrorWrite           = errors.New("mirror write failed")
	ErrLedgerQuery           = errors.New("ledger query failed")
	ErrProposalPending       = errors.New("proposal not yet confirmed on ledger")
)
