// Package auth resolves the caller identity for Connect and websocket
// requests. With a secret configured the identity is the subject of an
// HS256 bearer token; without one the X-Banpick-Identity header is trusted.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
	"github.com/mcdev12/banpick/go/internal/rpc"
)

const IdentityHeader = "X-Banpick-Identity"

type contextKey string

const identityKey contextKey = "identity"

// Verifier validates bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue signs a token for identity. Used by tooling and tests.
func (v *Verifier) Issue(identity string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) parse(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token claims")
	}
	return claims.Subject, nil
}

// Identity returns the caller identity carried by h. An empty identity with
// a nil error means the request is anonymous.
func (v *Verifier) Identity(h http.Header) (string, error) {
	if len(v.secret) == 0 {
		return strings.TrimSpace(h.Get(IdentityHeader)), nil
	}
	authHeader := h.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", drafterr.ErrUnauthenticated
	}
	identity, err := v.parse(parts[1])
	if err != nil {
		log.Debug().Err(err).Msg("token validation failed")
		return "", drafterr.ErrUnauthenticated
	}
	return identity, nil
}

// Interceptor stores the caller identity in the request context.
func (v *Verifier) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			identity, err := v.Identity(req.Header())
			if err != nil {
				return nil, rpc.ToConnectError(err)
			}
			return next(WithIdentity(ctx, identity), req)
		}
	}
}

// Middleware is the net/http form of Interceptor, used by the websocket
// gateway.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := v.Identity(r.Header)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom returns the identity stored by Interceptor or Middleware.
func IdentityFrom(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey).(string)
	return identity
}
