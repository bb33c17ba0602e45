// Package auth resolves bearer tokens into user identities.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Resolver validates HMAC signed tokens and mints new ones.
type Resolver struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewResolver(secretKey string, ttl time.Duration) *Resolver {
	return &Resolver{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue mints a token for userID.
func (r *Resolver) Issue(userID, role string) (string, error) {
	if userID == "" {
		return "", models.Invalidf("userId is required")
	}
	now := r.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secretKey)
}

// Resolve exchanges a token for an identity. Every failure is an
// authentication error.
func (r *Resolver) Resolve(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errors.Wrap(models.ErrUnauthenticated, "missing token")
	}

	parser := jwt.Parser{}
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return r.secretKey, nil
	})
	if err != nil {
		return Identity{}, errors.Wrap(models.ErrUnauthenticated, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errors.Wrap(models.ErrUnauthenticated, "invalid token")
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Identity{}, errors.Wrap(models.ErrUnauthenticated, "token carries no user")
	}
	return Identity{UserID: userID, Role: claims.Role}, nil
}

// TokenFromRequest reads the bearer token from the Authorization header, falling
// back to the token query parameter used by browser socket clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return strings.TrimSpace(h[len("bearer "):])
		}
	}
	return r.URL.Query().Get("token")
}
