package services

import "errors"

// Error taxonomy. Every public operation resolves to one of these; the HTTP
// layer maps them to the {ok:false, error:{kind,message}} envelope and
// nothing else crosses the boundary.
var (
	// ErrNotAuthenticated: no user identity on the request.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidRedemptionAmount: the requested amount is not in the
	// redemption table. Rejected before any write.
	ErrInvalidRedemptionAmount = errors.New("invalid redemption amount")

	// ErrInsufficientBalance: the conditional balance update matched no
	// row because it would have gone negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateEvent: the idempotency key was already recorded. An
	// internal no-op signal, never user-facing.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrCodeGenerationExhausted: ran out of attempts to mint a unique code.
	ErrCodeGenerationExhausted = errors.New("code generation exhausted")

	// ErrRedemptionFailed: a downstream step failed after the balance was
	// decremented; the decrement has been compensated.
	ErrRedemptionFailed = errors.New("redemption failed")

	// ErrStoreUnavailable: transient backing-store failure; safe to retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound: referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: unique-constraint violation, surfaced by stores so
	// services can decide between retry (code collision) and no-op
	// (idempotent replay).
	ErrConflict = errors.New("conflict")
)

// ErrorKind returns the wire name for an error, for the response envelope.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "NotAuthenticated"
	case errors.Is(err, ErrInvalidRedemptionAmount):
		return "InvalidRedemptionAmount"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrDuplicateEvent):
		return "DuplicateEvent"
	case errors.Is(err, ErrCodeGenerationExhausted):
		return "CodeGenerationExhausted"
	case errors.Is(err, ErrRedemptionFailed):
		return "RedemptionFailed"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	default:
		return "StoreUnavailable"
	}
}
