package httpapi

import (
	"net/http"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the REST surface plus the websocket endpoint. The
// websocket handler sits outside the auth middleware because its token
// travels in the query string.
func NewRouter(h *Handler, wsHandler http.Handler, verifier *auth.TokenVerifier, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/ws", wsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(Authenticate(verifier))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Put("/", h.SubmitCart)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", h.GetCheckout)
			r.Post("/", h.AcquireCheckout)
			r.Patch("/", h.UpdateCheckout)
			r.Delete("/", h.CancelCheckout)
			r.Post("/heartbeat", h.Heartbeat)
			r.Post("/takeover", h.TakeoverCheckout)
			r.Post("/complete", h.CompleteCheckout)
		})
	})

	return r
}
