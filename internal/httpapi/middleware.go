package httpapi

import (
	"context"
	"net/http"

	"github.com/ar363/restaurant-live-ordering/internal/auth"
	"github.com/google/uuid"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	deviceIDKey contextKey = "device_id"
)

// Authenticate validates the bearer token and binds the caller's identity
// and device id to the request context. The device id is client-generated;
// one is minted for clients that omit it.
func Authenticate(verifier *auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			identity, err := verifier.Verify(token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing auth token")
				return
			}

			deviceID := r.Header.Get("X-Device-ID")
			if deviceID == "" {
				deviceID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			ctx = context.WithValue(ctx, deviceIDKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return header
}

func identityFromContext(ctx context.Context) *auth.Identity {
	if identity, ok := ctx.Value(identityKey).(*auth.Identity); ok {
		return identity
	}
	return nil
}

func deviceIDFromContext(ctx context.Context) string {
	if deviceID, ok := ctx.Value(deviceIDKey).(string); ok {
		return deviceID
	}
	return ""
}
