package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential is returned for any credential that cannot be verified.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the verified caller.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
}

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier validates HMAC-signed tokens carrying sub and email claims.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a verifier for the shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token.
func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" || len(v.secret) == 0 {
		return Identity{}, ErrInvalidCredential
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidCredential
	}

	identity := Identity{
		SubjectID: claimString(claims, "sub", "user_id", "uid"),
		Email:     strings.ToLower(claimString(claims, "email")),
		Name:      claimString(claims, "name"),
	}
	if identity.SubjectID == "" {
		return Identity{}, ErrInvalidCredential
	}

	return identity, nil
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		value, ok := claims[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
