package domain

import "errors"

// Decision-pipeline errors. Each maps to a specific skip or failure reason
// recorded on the copy decision for the trade that triggered it.
var (
	ErrUnparsableTrade        = errors.New("unparsable trade")
	ErrNoMatch                = errors.New("no matching target market")
	ErrAmbiguousMatch         = errors.New("ambiguous target market match")
	ErrInsufficientSizingData = errors.New("insufficient sizing data")
	ErrExposureLimitExceeded  = errors.New("exposure limit exceeded")
	ErrDuplicateTrade         = errors.New("duplicate trade")
	ErrExecutionTransient     = errors.New("transient execution failure")
	ErrExecutionPermanent     = errors.New("permanent execution failure")
	ErrFeedUnavailable        = errors.New("trade feed unavailable")
	ErrIndexStale             = errors.New("market index stale")
)

// Infrastructure errors shared across stores, caches, and platform clients.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")
)
