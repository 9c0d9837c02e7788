package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar363/restaurant-live-ordering/internal/catalog"
	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/ar363/restaurant-live-ordering/internal/orders"
)

func seedCart(t *testing.T, f *fixture, accountID string) *domain.Cart {
	t.Helper()
	cart, applied, err := f.engine.SubmitCart(context.Background(), accountID, "dev-a",
		[]domain.CartLine{{ItemRef: "dosa", Quantity: 2}, {ItemRef: "chai", Quantity: 1}}, 1)
	require.NoError(t, err)
	require.True(t, applied)
	return cart
}

func TestAcquireCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lease, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")

	require.NoError(t, err)
	assert.Equal(t, "dev-a", lease.OwnerDeviceID)
	assert.Equal(t, domain.LeaseActive, lease.State)
	assert.Equal(t, domain.PaymentUnselected, lease.PaymentMethod)
	assert.Equal(t, f.clock.Now().Add(DefaultLeaseTTL), lease.LeaseExpiry)

	stored := f.leases.stored("acct-1")
	require.NotNil(t, stored)
	assert.Equal(t, "dev-a", stored.OwnerDeviceID)

	statuses := f.broadcast.checkoutStatuses("acct-1")
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.LeaseActive, statuses[0].State)
}

func TestAcquireCheckoutHeldByOtherDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	lease, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-b")

	assert.ErrorIs(t, err, ErrLeaseHeld)
	require.NotNil(t, lease)
	// The rejected caller still learns who holds the lease.
	assert.Equal(t, "dev-a", lease.OwnerDeviceID)
}

func TestAcquireCheckoutOwnerRenews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	renewed, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")

	require.NoError(t, err)
	assert.Equal(t, "dev-a", renewed.OwnerDeviceID)
	assert.True(t, renewed.LeaseExpiry.After(first.LeaseExpiry))
}

func TestHeartbeatExtendsLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lease, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	f.clock.Advance(15 * time.Second)
	renewed, err := f.engine.Heartbeat(ctx, "acct-1", "dev-a")

	require.NoError(t, err)
	assert.Equal(t, lease.LeaseExpiry.Add(15*time.Second), renewed.LeaseExpiry)
}

func TestHeartbeatRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	_, err = f.engine.Heartbeat(ctx, "acct-1", "dev-b")
	assert.ErrorIs(t, err, ErrLeaseNotOwned)
}

func TestHeartbeatWithoutLease(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Heartbeat(context.Background(), "acct-1", "dev-a")
	assert.ErrorIs(t, err, ErrLeaseMissing)
}

func TestLeaseExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	f.clock.Advance(DefaultLeaseTTL + time.Second)

	status, err := f.engine.CheckoutStatus(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LeaseIdle, status.State)

	// Heartbeats from the former owner no longer revive the lease.
	_, err = f.engine.Heartbeat(ctx, "acct-1", "dev-a")
	assert.ErrorIs(t, err, ErrLeaseMissing)

	// Another device acquires cleanly.
	lease, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-b")
	require.NoError(t, err)
	assert.Equal(t, "dev-b", lease.OwnerDeviceID)
}

func TestUpdateCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	pm := domain.PaymentUPI
	notes := "less spicy"
	lease, err := f.engine.UpdateCheckout(ctx, "acct-1", "dev-a", &pm, &notes)

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUPI, lease.PaymentMethod)
	assert.Equal(t, "less spicy", lease.SpecialInstructions)

	stored := f.leases.stored("acct-1")
	assert.Equal(t, domain.PaymentUPI, stored.PaymentMethod)

	statuses := f.broadcast.checkoutStatuses("acct-1")
	require.Len(t, statuses, 2) // acquire + update
	assert.Equal(t, domain.PaymentUPI, statuses[1].PaymentMethod)
}

func TestUpdateCheckoutPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	pm := domain.PaymentCard
	_, err = f.engine.UpdateCheckout(ctx, "acct-1", "dev-a", &pm, nil)
	require.NoError(t, err)

	// Updating only the instructions leaves the payment method alone.
	notes := "no onions"
	lease, err := f.engine.UpdateCheckout(ctx, "acct-1", "dev-a", nil, &notes)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCard, lease.PaymentMethod)
	assert.Equal(t, "no onions", lease.SpecialInstructions)
}

func TestUpdateCheckoutRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	pm := domain.PaymentCash
	_, err = f.engine.UpdateCheckout(ctx, "acct-1", "dev-b", &pm, nil)
	assert.ErrorIs(t, err, ErrLeaseNotOwned)
}

func TestCancelCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelCheckout(ctx, "acct-1", "dev-a"))

	assert.Nil(t, f.leases.stored("acct-1"))

	status, err := f.engine.CheckoutStatus(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LeaseIdle, status.State)

	statuses := f.broadcast.checkoutStatuses("acct-1")
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.LeaseIdle, statuses[1].State)

	// Once released, anyone may acquire.
	lease, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-b")
	require.NoError(t, err)
	assert.Equal(t, "dev-b", lease.OwnerDeviceID)
}

func TestTakeoverCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)
	pm := domain.PaymentUPI
	notes := "extra chutney"
	_, err = f.engine.UpdateCheckout(ctx, "acct-1", "dev-a", &pm, &notes)
	require.NoError(t, err)

	lease, err := f.engine.TakeoverCheckout(ctx, "acct-1", "dev-b")

	require.NoError(t, err)
	assert.Equal(t, "dev-b", lease.OwnerDeviceID)
	assert.Equal(t, domain.LeaseActive, lease.State)
	// The previous owner's unsubmitted selections do not carry over.
	assert.Equal(t, domain.PaymentUnselected, lease.PaymentMethod)
	assert.Empty(t, lease.SpecialInstructions)

	stored := f.leases.stored("acct-1")
	assert.Equal(t, "dev-b", stored.OwnerDeviceID)

	statuses := f.broadcast.checkoutStatuses("acct-1")
	require.Len(t, statuses, 3)
	assert.Equal(t, "dev-b", statuses[2].OwnerDeviceID)

	// The displaced device can no longer mutate the checkout.
	_, err = f.engine.Heartbeat(ctx, "acct-1", "dev-a")
	assert.ErrorIs(t, err, ErrLeaseNotOwned)
}

func TestCompleteCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.resolver.items = map[string]catalog.Item{
		"dosa": {ItemRef: "dosa", Name: "Masala Dosa", Price: 80, Available: true},
		"chai": {ItemRef: "chai", Name: "Chai", Price: 20, Available: true},
	}
	seedCart(t, f, "acct-1")
	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	orderID, err := f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 7, domain.PaymentUPI, "less spicy")

	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)

	assert.Equal(t, 1, f.creator.calls)
	order := f.creator.last
	require.NotNil(t, order)
	assert.Equal(t, "acct-1", order.AccountID)
	assert.Equal(t, 7, order.TableNumber)
	assert.Equal(t, domain.PaymentUPI, order.PaymentMethod)
	assert.Equal(t, "less spicy", order.SpecialInstructions)
	assert.Equal(t, []orders.Line{
		{ItemRef: "dosa", Name: "Masala Dosa", Quantity: 2, PriceAtOrder: 80, Subtotal: 160},
		{ItemRef: "chai", Name: "Chai", Quantity: 1, PriceAtOrder: 20, Subtotal: 20},
	}, order.Lines)
	assert.Equal(t, float64(180), order.TotalAmount)

	// Lease is released and the cart cleared for the next round of ordering.
	assert.Nil(t, f.leases.stored("acct-1"))
	cart, err := f.engine.CartStatus(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	completions := f.broadcast.completions("acct-1")
	require.Len(t, completions, 1)
	assert.Equal(t, "order-1", completions[0].OrderID)

	statuses := f.broadcast.checkoutStatuses("acct-1")
	assert.Equal(t, domain.LeaseIdle, statuses[len(statuses)-1].State)
}

func TestCompleteCheckoutRequiresPaymentMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedCart(t, f, "acct-1")
	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	_, err = f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 7, domain.PaymentUnselected, "")

	assert.ErrorIs(t, err, ErrCheckoutIncomplete)
	assert.Zero(t, f.creator.calls)
	// Lease survives so the device can pick a method and retry.
	assert.NotNil(t, f.leases.stored("acct-1"))
}

func TestRejectedCompleteLeavesLeaseUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedCart(t, f, "acct-1")
	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	_, err = f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 7, domain.PaymentUnselected, "call the waiter")
	require.ErrorIs(t, err, ErrCheckoutIncomplete)

	// The instructions from the rejected call must not stick to the lease.
	status, err := f.engine.CheckoutStatus(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnselected, status.PaymentMethod)
	assert.Empty(t, status.SpecialInstructions)

	stored := f.leases.stored("acct-1")
	require.NotNil(t, stored)
	assert.Empty(t, stored.SpecialInstructions)
}

func TestEmptyCartCompleteLeavesLeaseUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	_, err = f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 7, domain.PaymentCard, "no cutlery")
	require.ErrorIs(t, err, ErrEmptyCart)

	status, err := f.engine.CheckoutStatus(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnselected, status.PaymentMethod)
	assert.Empty(t, status.SpecialInstructions)
}

func TestCompleteCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	_, err = f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 7, domain.PaymentCash, "")

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, f.creator.calls)
}

func TestCompleteCheckoutRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedCart(t, f, "acct-1")
	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	_, err = f.engine.CompleteCheckout(ctx, "acct-1", "dev-b", 7, domain.PaymentCash, "")
	assert.ErrorIs(t, err, ErrLeaseNotOwned)
}

func TestCompleteCheckoutCreatorFailureKeepsLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart := seedCart(t, f, "acct-1")
	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)
	f.creator.err = assert.AnError

	_, err = f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 7, domain.PaymentCard, "")

	assert.ErrorIs(t, err, ErrOrderCreation)

	// Cart and lease are untouched; the whole call is retryable.
	lease := f.leases.stored("acct-1")
	require.NotNil(t, lease)
	assert.Equal(t, "dev-a", lease.OwnerDeviceID)
	stored := f.carts.stored("acct-1")
	assert.Equal(t, cart.Lines, stored.Lines)

	// Retry succeeds once the order service recovers.
	f.creator.err = nil
	orderID, err := f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 7, domain.PaymentCard, "")
	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)
}

func TestCompleteCheckoutResolverFailureKeepsLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedCart(t, f, "acct-1")
	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)
	f.resolver.err = assert.AnError

	_, err = f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 7, domain.PaymentUPI, "")

	assert.ErrorIs(t, err, ErrOrderCreation)
	assert.Zero(t, f.creator.calls)
	assert.NotNil(t, f.leases.stored("acct-1"))
}

func TestCompleteCheckoutPublishesOrderEvent(t *testing.T) {
	publisher := &mockPublisher{}
	f := newFixture(t, WithEventPublisher(publisher))
	ctx := context.Background()

	seedCart(t, f, "acct-1")
	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)

	orderID, err := f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 4, domain.PaymentCash, "")
	require.NoError(t, err)

	publisher.m.Lock()
	defer publisher.m.Unlock()
	require.Len(t, publisher.events, 1)
	assert.Equal(t, orderID, publisher.events[0].OrderID)
	assert.Equal(t, "acct-1", publisher.events[0].AccountID)
	assert.Equal(t, 4, publisher.events[0].TableNumber)
}

func TestCompleteCheckoutUsesEarlierSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedCart(t, f, "acct-1")
	_, err := f.engine.AcquireCheckout(ctx, "acct-1", "dev-a")
	require.NoError(t, err)
	pm := domain.PaymentCard
	notes := "birthday table"
	_, err = f.engine.UpdateCheckout(ctx, "acct-1", "dev-a", &pm, &notes)
	require.NoError(t, err)

	// Complete without restating the selections made earlier in the flow.
	_, err = f.engine.CompleteCheckout(ctx, "acct-1", "dev-a", 2, domain.PaymentUnselected, "")
	require.NoError(t, err)

	require.NotNil(t, f.creator.last)
	assert.Equal(t, domain.PaymentCard, f.creator.last.PaymentMethod)
	assert.Equal(t, "birthday table", f.creator.last.SpecialInstructions)
}
