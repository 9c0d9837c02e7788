package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing auth token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Identity is what the identity collaborator supplies for an authenticated
// connection. The engine trusts these values and performs no authentication
// of its own beyond verifying the token signature.
type Identity struct {
	AccountID   string
	TableNumber int
}

// TokenVerifier validates HS256 JWTs issued by the identity service. Claims:
// user_id (required), table_number (optional, bound at QR scan).
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	accountID := claimString(claims, "user_id")
	if accountID == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		AccountID:   accountID,
		TableNumber: claimInt(claims, "table_number"),
	}, nil
}

// claimString tolerates both string and numeric ids; the identity service
// issues numeric user ids.
func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func claimInt(claims jwt.MapClaims, key string) int {
	switch v := claims[key].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Sign issues a token for the given identity. The identity service owns
// issuance in production; this exists for local development and tests.
func Sign(secret, accountID string, tableNumber int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":      accountID,
		"table_number": tableNumber,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
