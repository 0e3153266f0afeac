// internal/services/errors.go
package services

import "errors"

var (
	// ErrNotAuthorized means the acting user is neither the order's buyer
	// nor its vendor (nor an admin) for the requested operation. Rejected
	// with no side effects.
	ErrNotAuthorized = errors.New("not authorized for this order")

	// ErrEscrowFrozen means a non-terminal dispute references the order, so
	// no release may execute regardless of the auto-release clock.
	ErrEscrowFrozen = errors.New("escrow frozen by open dispute")

	// ErrEscrowNotReleasable means the escrow is not in the funded state.
	// Covers double-release and double-refund attempts.
	ErrEscrowNotReleasable = errors.New("escrow not in a releasable state")

	// ErrDisputeAlreadyOpen enforces the one-open-dispute-per-order rule.
	ErrDisputeAlreadyOpen = errors.New("order already has an open dispute")

	// ErrProductUnavailable means checkout referenced a product that is not
	// active.
	ErrProductUnavailable = errors.New("product is not available for purchase")
)
