package engine

import "errors"

var (
	// ErrLeaseHeld is returned when a device tries to start checkout while
	// another device already owns the lease. The caller can take over.
	ErrLeaseHeld = errors.New("checkout already in progress on another device")

	// ErrLeaseNotOwned is returned when a lease-mutating call arrives from a
	// device that lost ownership to a concurrent takeover. The caller must
	// re-fetch status and decide whether to take over again.
	ErrLeaseNotOwned = errors.New("device does not own the checkout lease")

	// ErrLeaseMissing is returned when heartbeat, update or complete find no
	// active lease; it already expired or was cancelled.
	ErrLeaseMissing = errors.New("no active checkout lease")

	// ErrCheckoutIncomplete rejects completion without a payment method.
	ErrCheckoutIncomplete = errors.New("payment method not selected")

	ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

	// ErrOrderCreation marks retryable collaborator failures during
	// completion. The lease is kept so the owner can retry.
	ErrOrderCreation = errors.New("order creation failed")
)
