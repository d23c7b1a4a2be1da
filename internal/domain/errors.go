package domain

import "errors"

// Error taxonomy. Adapters and services wrap these with %w; callers match with errors.Is.
var (
	// ErrProviderUnavailable: market, trading or research API unreachable, throttled or 5xx.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrValidation: malformed listing, out-of-range price or size, bad token id.
	ErrValidation = errors.New("validation error")
	// ErrInsufficientFunds: the budget cannot cover the requested size.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrRiskDenied: a ledger rule refused the reservation.
	ErrRiskDenied = errors.New("risk denied")
	// ErrSigningFailure: wallet credentials absent or invalid.
	ErrSigningFailure = errors.New("signing failure")
	// ErrStaleEstimate: estimate missing or older than its TTL.
	ErrStaleEstimate = errors.New("stale estimate")
	// ErrLowConfidence: estimate confidence below the configured floor.
	ErrLowConfidence = errors.New("low confidence estimate")
	// ErrOrderRejectedByVenue: the venue refused the order.
	ErrOrderRejectedByVenue = errors.New("order rejected by venue")
	ErrNotFound             = errors.New("not found")
	ErrLockHeld             = errors.New("lock held")
)
