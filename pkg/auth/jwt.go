package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
)

// JWTSecretKey for signing client tokens
// REQUIRED: Application will panic if not set
var JWTSecretKey string

func init() {
	// JWT_SECRET_KEY is REQUIRED (min 32 chars) - app will panic if not configured
	JWTSecretKey = env.MustGetEnvString("JWT_SECRET_KEY")
}

// ClientTokenClaims represents the claims in a client JWT
type ClientTokenClaims struct {
	ClientID string `json:"client_id"`
	APIKeyID int64  `json:"api_key_id"`
	jwt.RegisteredClaims
}

// GenerateClientToken creates a JWT bound to an API key. Revocation works
// through the key: deactivating or deleting the key kills the token.
func GenerateClientToken(clientID string, apiKeyID int64, ttl time.Duration) (string, error) {
	if JWTSecretKey == "" {
		return "", errors.New("JWT_SECRET_KEY not configured")
	}

	now := time.Now()
	claims := ClientTokenClaims{
		ClientID: clientID,
		APIKeyID: apiKeyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(JWTSecretKey))
}

// ValidateClientToken validates a client JWT and returns the claims
func ValidateClientToken(tokenString string) (*ClientTokenClaims, error) {
	if JWTSecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &ClientTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(JWTSecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*ClientTokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
