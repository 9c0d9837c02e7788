package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/ar363/restaurant-live-ordering/internal/engine"
)

// Coordinator is the slice of the engine the HTTP layer needs.
type Coordinator interface {
	CartStatus(ctx context.Context, accountID string) (*domain.Cart, error)
	SubmitCart(ctx context.Context, accountID, deviceID string, lines []domain.CartLine, version int64) (*domain.Cart, bool, error)
	CheckoutStatus(ctx context.Context, accountID string) (*domain.Lease, error)
	AcquireCheckout(ctx context.Context, accountID, deviceID string) (*domain.Lease, error)
	Heartbeat(ctx context.Context, accountID, deviceID string) (*domain.Lease, error)
	UpdateCheckout(ctx context.Context, accountID, deviceID string, paymentMethod *domain.PaymentMethod, instructions *string) (*domain.Lease, error)
	CancelCheckout(ctx context.Context, accountID, deviceID string) error
	TakeoverCheckout(ctx context.Context, accountID, deviceID string) (*domain.Lease, error)
	CompleteCheckout(ctx context.Context, accountID, deviceID string, tableNumber int, paymentMethod domain.PaymentMethod, instructions string) (string, error)
}

type Handler struct {
	coordinator Coordinator
}

func NewHandler(coordinator Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

const maxLineQuantity = 99

type lineDTO struct {
	ItemRef  string `json:"item_ref"`
	Quantity int    `json:"quantity"`
}

type submitCartRequest struct {
	Lines   []lineDTO `json:"lines"`
	Version int64     `json:"version"`
}

type cartResponse struct {
	AccountID string            `json:"account_id"`
	Lines     []domain.CartLine `json:"lines"`
	Version   int64             `json:"version"`
	Applied   bool              `json:"applied"`
}

type updateCheckoutRequest struct {
	PaymentMethod       *string `json:"payment_method"`
	SpecialInstructions *string `json:"special_instructions"`
}

type completeCheckoutRequest struct {
	PaymentMethod       string `json:"payment_method"`
	SpecialInstructions string `json:"special_instructions"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.coordinator.CartStatus(r.Context(), identity.AccountID)
	if err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse{
		AccountID: cart.AccountID,
		Lines:     cart.Lines,
		Version:   cart.Version,
		Applied:   false,
	})
}

func (h *Handler) SubmitCart(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req submitCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	lines := make([]domain.CartLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.ItemRef == "" {
			respondError(w, http.StatusBadRequest, "invalid_item_ref", "item_ref must not be empty")
			return
		}
		if l.Quantity > maxLineQuantity {
			respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
			return
		}
		lines = append(lines, domain.CartLine{ItemRef: l.ItemRef, Quantity: l.Quantity})
	}

	cart, applied, err := h.coordinator.SubmitCart(r.Context(), identity.AccountID, deviceIDFromContext(r.Context()), lines, req.Version)
	if err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse{
		AccountID: cart.AccountID,
		Lines:     cart.Lines,
		Version:   cart.Version,
		Applied:   applied,
	})
}

func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	lease, err := h.coordinator.CheckoutStatus(r.Context(), identity.AccountID)
	if err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, lease)
}

func (h *Handler) AcquireCheckout(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	lease, err := h.coordinator.AcquireCheckout(r.Context(), identity.AccountID, deviceIDFromContext(r.Context()))
	if errors.Is(err, engine.ErrLeaseHeld) {
		// The caller sees who holds the lease and may take over.
		respondJSON(w, http.StatusConflict, lease)
		return
	}
	if err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, lease)
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	lease, err := h.coordinator.Heartbeat(r.Context(), identity.AccountID, deviceIDFromContext(r.Context()))
	if err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, lease)
}

func (h *Handler) UpdateCheckout(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req updateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var paymentMethod *domain.PaymentMethod
	if req.PaymentMethod != nil {
		pm := domain.PaymentMethod(*req.PaymentMethod)
		if !pm.Valid() {
			respondError(w, http.StatusBadRequest, "invalid_payment_method", "payment_method must be one of unselected, upi, card, cash")
			return
		}
		paymentMethod = &pm
	}

	lease, err := h.coordinator.UpdateCheckout(r.Context(), identity.AccountID, deviceIDFromContext(r.Context()), paymentMethod, req.SpecialInstructions)
	if err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, lease)
}

func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.coordinator.CancelCheckout(r.Context(), identity.AccountID, deviceIDFromContext(r.Context())); err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.IdleLease(identity.AccountID))
}

func (h *Handler) TakeoverCheckout(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	lease, err := h.coordinator.TakeoverCheckout(r.Context(), identity.AccountID, deviceIDFromContext(r.Context()))
	if err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, lease)
}

func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req completeCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	paymentMethod := domain.PaymentMethod(req.PaymentMethod)
	if req.PaymentMethod != "" && !paymentMethod.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_payment_method", "payment_method must be one of unselected, upi, card, cash")
		return
	}

	orderID, err := h.coordinator.CompleteCheckout(
		r.Context(),
		identity.AccountID,
		deviceIDFromContext(r.Context()),
		identity.TableNumber,
		paymentMethod,
		req.SpecialInstructions,
	)
	if err != nil {
		handleEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleEngineError maps engine sentinels onto the HTTP error envelope.
// Reconciliation outcomes are not errors and never reach here.
func handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrLeaseHeld):
		respondError(w, http.StatusConflict, "checkout_held", err.Error())
	case errors.Is(err, engine.ErrLeaseNotOwned):
		respondError(w, http.StatusConflict, "lease_not_owned", err.Error())
	case errors.Is(err, engine.ErrLeaseMissing):
		respondError(w, http.StatusConflict, "lease_missing", err.Error())
	case errors.Is(err, engine.ErrCheckoutIncomplete):
		respondError(w, http.StatusBadRequest, "payment_method_required", err.Error())
	case errors.Is(err, engine.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, engine.ErrOrderCreation):
		respondError(w, http.StatusBadGateway, "order_creation_failed", err.Error())
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
