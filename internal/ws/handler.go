package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/auth"
	"github.com/ar363/restaurant-live-ordering/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Close codes sent when the upgrade is accepted but authentication fails,
// so the client can distinguish auth failures from transport errors.
const (
	closeMissingToken = 4001
	closeInvalidToken = 4003
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades device connections and registers them for broadcasts.
// Auth rides in the query string because browsers cannot set headers on a
// websocket handshake: GET /ws?token=<jwt>&device_id=<id>
type Handler struct {
	verifier *auth.TokenVerifier
	registry *session.Registry
}

func NewHandler(verifier *auth.TokenVerifier, registry *session.Registry) *Handler {
	return &Handler{verifier: verifier, registry: registry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsc, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		closeWithCode(wsc, closeMissingToken, "missing token")
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		closeWithCode(wsc, closeInvalidToken, "invalid token")
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	c := newConn(wsc)
	go c.writePump()

	h.registry.Register(identity.AccountID, deviceID, c)

	// Blocks until the device disconnects or goes silent.
	c.readPump()
	h.registry.Unregister(identity.AccountID, deviceID, c)
}

func closeWithCode(wsc *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	wsc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	wsc.Close()
}
