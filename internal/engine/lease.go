package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/ar363/restaurant-live-ordering/internal/orders"
	"github.com/ar363/restaurant-live-ordering/internal/repository"
)

// loadLeaseLocked fetches the persisted lease on first access for the
// account. Caller must hold st.mu.
func (e *Engine) loadLeaseLocked(ctx context.Context, st *accountState, accountID string) error {
	if st.leaseLoaded {
		return nil
	}
	lease, err := e.leases.GetLease(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrLeaseNotFound) {
			st.lease = nil
			st.leaseLoaded = true
			return nil
		}
		return err
	}
	st.lease = lease
	st.leaseLoaded = true
	return nil
}

// expireLeaseLocked reclaims a lease that outlived its TTL and tells every
// waiting device. Caller must hold st.mu.
func (e *Engine) expireLeaseLocked(ctx context.Context, st *accountState, accountID string) {
	if st.lease == nil || !st.lease.Expired(e.now()) {
		return
	}
	log.Printf("expiring abandoned checkout lease account=%s owner=%s", accountID, st.lease.OwnerDeviceID)
	if err := e.leases.DeleteLease(ctx, accountID); err != nil {
		log.Printf("failed to delete expired lease for account %s: %v", accountID, err)
	}
	st.lease = nil
	e.broadcast.Broadcast(accountID, domain.NewCheckoutStatusEvent(domain.IdleLease(accountID)))
}

// CheckoutStatus returns a consistent snapshot of the lease, expiring it
// lazily first. Reconnecting devices use this to resynchronize without
// waiting for a broadcast.
func (e *Engine) CheckoutStatus(ctx context.Context, accountID string) (*domain.Lease, error) {
	st := e.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.loadLeaseLocked(ctx, st, accountID); err != nil {
		return nil, err
	}
	e.expireLeaseLocked(ctx, st, accountID)

	if st.lease == nil {
		return domain.IdleLease(accountID), nil
	}
	return st.lease.Clone(), nil
}

// AcquireCheckout starts a checkout session for the device. When no lease is
// active it always succeeds. When the same device already owns the lease the
// call renews it. When another device owns it the caller gets the current
// lease and ErrLeaseHeld, and may force progress with TakeoverCheckout.
func (e *Engine) AcquireCheckout(ctx context.Context, accountID, deviceID string) (*domain.Lease, error) {
	st := e.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.loadLeaseLocked(ctx, st, accountID); err != nil {
		return nil, err
	}
	e.expireLeaseLocked(ctx, st, accountID)

	if st.lease != nil {
		if st.lease.OwnerDeviceID != deviceID {
			return st.lease.Clone(), ErrLeaseHeld
		}
		return e.renewLeaseLocked(ctx, st)
	}

	lease := &domain.Lease{
		AccountID:     accountID,
		OwnerDeviceID: deviceID,
		PaymentMethod: domain.PaymentUnselected,
		State:         domain.LeaseActive,
		LeaseExpiry:   e.now().Add(e.leaseTTL),
	}
	if err := e.leases.UpsertLease(ctx, lease); err != nil {
		return nil, err
	}
	st.lease = lease

	e.broadcast.Broadcast(accountID, domain.NewCheckoutStatusEvent(lease))
	return lease.Clone(), nil
}

// Heartbeat renews the owning device's lease. Non-owners get
// ErrLeaseNotOwned; a missing or expired lease gets ErrLeaseMissing.
func (e *Engine) Heartbeat(ctx context.Context, accountID, deviceID string) (*domain.Lease, error) {
	st := e.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.ownedLeaseLocked(ctx, st, accountID, deviceID); err != nil {
		return nil, err
	}
	return e.renewLeaseLocked(ctx, st)
}

// UpdateCheckout mutates the payment method and/or special instructions of
// the owned lease and pushes the change to every device. Activity counts as
// liveness, so the lease is renewed as well.
func (e *Engine) UpdateCheckout(ctx context.Context, accountID, deviceID string, paymentMethod *domain.PaymentMethod, instructions *string) (*domain.Lease, error) {
	st := e.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.ownedLeaseLocked(ctx, st, accountID, deviceID); err != nil {
		return nil, err
	}

	if paymentMethod != nil {
		st.lease.PaymentMethod = *paymentMethod
	}
	if instructions != nil {
		st.lease.SpecialInstructions = *instructions
	}
	st.lease.LeaseExpiry = e.now().Add(e.leaseTTL)

	if err := e.leases.UpsertLease(ctx, st.lease); err != nil {
		return nil, err
	}

	e.broadcast.Broadcast(accountID, domain.NewCheckoutStatusEvent(st.lease))
	return st.lease.Clone(), nil
}

// CancelCheckout releases the owned lease and unlocks waiting devices.
func (e *Engine) CancelCheckout(ctx context.Context, accountID, deviceID string) error {
	st := e.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.ownedLeaseLocked(ctx, st, accountID, deviceID); err != nil {
		return err
	}

	if err := e.leases.DeleteLease(ctx, accountID); err != nil {
		return err
	}
	st.lease = nil

	e.broadcast.Broadcast(accountID, domain.NewCheckoutStatusEvent(domain.IdleLease(accountID)))
	return nil
}

// TakeoverCheckout forcibly reassigns the lease to the requesting device: a
// cancel of the current owner followed by a fresh acquire. The prior owner's
// unsubmitted payment method and instructions are discarded; they were never
// committed to an order. The displaced device learns about the change from
// the broadcast.
func (e *Engine) TakeoverCheckout(ctx context.Context, accountID, deviceID string) (*domain.Lease, error) {
	st := e.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.loadLeaseLocked(ctx, st, accountID); err != nil {
		return nil, err
	}
	e.expireLeaseLocked(ctx, st, accountID)

	lease := &domain.Lease{
		AccountID:     accountID,
		OwnerDeviceID: deviceID,
		PaymentMethod: domain.PaymentUnselected,
		State:         domain.LeaseActive,
		LeaseExpiry:   e.now().Add(e.leaseTTL),
	}
	if err := e.leases.UpsertLease(ctx, lease); err != nil {
		return nil, err
	}
	st.lease = lease

	e.broadcast.Broadcast(accountID, domain.NewCheckoutStatusEvent(lease))
	return lease.Clone(), nil
}

// CompleteCheckout finalizes the checkout: it snapshots the cart, prices the
// lines through the catalog, hands the order to the order service, announces
// the created order, clears the cart and returns the lease to idle. Any
// collaborator failure is retryable; the lease and cart are left untouched.
func (e *Engine) CompleteCheckout(ctx context.Context, accountID, deviceID string, tableNumber int, paymentMethod domain.PaymentMethod, instructions string) (string, error) {
	st := e.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.ownedLeaseLocked(ctx, st, accountID, deviceID); err != nil {
		return "", err
	}

	// Resolve the effective selections without touching the lease: a
	// rejected completion must leave checkout state exactly as it was.
	effectivePayment := st.lease.PaymentMethod
	if paymentMethod.Selected() {
		effectivePayment = paymentMethod
	}
	effectiveInstructions := st.lease.SpecialInstructions
	if instructions != "" {
		effectiveInstructions = instructions
	}
	if !effectivePayment.Selected() {
		return "", ErrCheckoutIncomplete
	}

	if err := e.loadCartLocked(ctx, st, accountID); err != nil {
		return "", err
	}
	if st.cart.Empty() {
		return "", ErrEmptyCart
	}

	order, err := e.buildOrder(ctx, st, accountID, tableNumber, effectivePayment, effectiveInstructions)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOrderCreation, err)
	}

	orderID, err := e.creator.Create(ctx, order)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOrderCreation, err)
	}

	if err := e.leases.DeleteLease(ctx, accountID); err != nil {
		log.Printf("failed to delete completed lease for account %s: %v", accountID, err)
	}
	st.lease = nil

	e.broadcast.Broadcast(accountID, domain.NewCheckoutCompleteEvent(orderID))
	e.broadcast.Broadcast(accountID, domain.NewCheckoutStatusEvent(domain.IdleLease(accountID)))
	e.clearCartLocked(ctx, st, accountID)
	e.publishOrderPlaced(order, orderID)

	return orderID, nil
}

// buildOrder snapshots the cart at completion time with catalog pricing.
func (e *Engine) buildOrder(ctx context.Context, st *accountState, accountID string, tableNumber int, paymentMethod domain.PaymentMethod, instructions string) (*orders.Order, error) {
	refs := make([]string, len(st.cart.Lines))
	for i, line := range st.cart.Lines {
		refs[i] = line.ItemRef
	}

	items, err := e.resolver.Resolve(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog items: %w", err)
	}

	var total float64
	lines := make([]orders.Line, len(st.cart.Lines))
	for i, line := range st.cart.Lines {
		item := items[line.ItemRef]
		subtotal := item.Price * float64(line.Quantity)
		lines[i] = orders.Line{
			ItemRef:      line.ItemRef,
			Name:         item.Name,
			Quantity:     line.Quantity,
			PriceAtOrder: item.Price,
			Subtotal:     subtotal,
		}
		total += subtotal
	}

	return &orders.Order{
		AccountID:           accountID,
		TableNumber:         tableNumber,
		Lines:               lines,
		PaymentMethod:       paymentMethod,
		SpecialInstructions: instructions,
		TotalAmount:         total,
	}, nil
}

func (e *Engine) publishOrderPlaced(order *orders.Order, orderID string) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event := &orders.PlacedEvent{
		OrderID:             orderID,
		AccountID:           order.AccountID,
		TableNumber:         order.TableNumber,
		Lines:               order.Lines,
		TotalAmount:         order.TotalAmount,
		PaymentMethod:       order.PaymentMethod,
		SpecialInstructions: order.SpecialInstructions,
		PlacedAt:            e.now(),
	}
	if err := e.publisher.PublishOrderPlaced(ctx, event); err != nil {
		log.Printf("failed to publish order event for order %s: %v", orderID, err)
	}
}

// ownedLeaseLocked loads the lease, expires it lazily, and verifies the
// device owns it. Caller must hold st.mu.
func (e *Engine) ownedLeaseLocked(ctx context.Context, st *accountState, accountID, deviceID string) error {
	if err := e.loadLeaseLocked(ctx, st, accountID); err != nil {
		return err
	}
	e.expireLeaseLocked(ctx, st, accountID)

	if st.lease == nil {
		return ErrLeaseMissing
	}
	if st.lease.OwnerDeviceID != deviceID {
		return ErrLeaseNotOwned
	}
	return nil
}

// renewLeaseLocked extends the lease expiry by one TTL. Caller must hold
// st.mu with an owned lease present.
func (e *Engine) renewLeaseLocked(ctx context.Context, st *accountState) (*domain.Lease, error) {
	st.lease.LeaseExpiry = e.now().Add(e.leaseTTL)
	if err := e.leases.UpsertLease(ctx, st.lease); err != nil {
		return nil, err
	}
	return st.lease.Clone(), nil
}
