package domain

// Event type discriminators carried in the "type" field of every push frame.
const (
	EventCartUpdate       = "cart_update"
	EventCheckoutStatus   = "checkout_status"
	EventCheckoutComplete = "checkout_complete"
)

// CartUpdateEvent notifies every device of the new canonical cart.
type CartUpdateEvent struct {
	Type    string     `json:"type"`
	Lines   []CartLine `json:"lines"`
	Version int64      `json:"version"`
}

func NewCartUpdateEvent(cart *Cart) CartUpdateEvent {
	return CartUpdateEvent{
		Type:    EventCartUpdate,
		Lines:   cart.Lines,
		Version: cart.Version,
	}
}

// CheckoutStatusEvent mirrors the lease so non-owning devices can render
// read-only checkout progress.
type CheckoutStatusEvent struct {
	Type                string        `json:"type"`
	State               LeaseState    `json:"state"`
	OwnerDeviceID       string        `json:"owner_device_id"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	SpecialInstructions string        `json:"special_instructions"`
}

func NewCheckoutStatusEvent(lease *Lease) CheckoutStatusEvent {
	return CheckoutStatusEvent{
		Type:                EventCheckoutStatus,
		State:               lease.State,
		OwnerDeviceID:       lease.OwnerDeviceID,
		PaymentMethod:       lease.PaymentMethod,
		SpecialInstructions: lease.SpecialInstructions,
	}
}

// CheckoutCompleteEvent carries the identifier of the order that was created.
type CheckoutCompleteEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
}

func NewCheckoutCompleteEvent(orderID string) CheckoutCompleteEvent {
	return CheckoutCompleteEvent{Type: EventCheckoutComplete, OrderID: orderID}
}
