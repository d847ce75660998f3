package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Alexcyl0107/clinique/internal/appointment"
)

const tokenIssuer = "clinique"

// Claims identify the caller: the subject is the actor id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IssueToken signs an HS256 token for actor.
func IssueToken(secret []byte, actor appointment.Actor, ttl time.Duration) (string, error) {
	if actor.Anonymous() {
		return "", errors.New("cannot issue a token without a role")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func parseToken(secret []byte, raw string) (appointment.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return appointment.Actor{}, err
	}

	role, ok := appointment.ParseRole(claims.Role)
	if !ok {
		return appointment.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	if claims.Subject == "" {
		return appointment.Actor{}, errors.New("token has no subject")
	}
	return appointment.Actor{ID: claims.Subject, Role: role}, nil
}

// ActorMiddleware resolves the caller from the bearer token. A request without
// an Authorization header is an anonymous guest; a bad token is rejected.
func ActorMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "expected a Bearer token")
				return
			}

			actor, err := parseToken(secret, strings.TrimSpace(raw))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the caller, or an anonymous actor.
func ActorFromContext(ctx context.Context) appointment.Actor {
	if a, ok := ctx.Value(actorKey).(appointment.Actor); ok {
		return a
	}
	return appointment.Actor{}
}
