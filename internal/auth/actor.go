package auth

import (
	"context"
	"net/http"
	"strings"
)

// Actor is the authenticated caller as asserted by the upstream identity
// layer. bookd does not re-authenticate; it only reads these values.
type Actor struct {
	ID   string
	Role string
}

const (
	RoleClient = "CLIENT"
	RoleStaff  = "STAFF"
	RoleAdmin  = "ADMIN"
)

// Operator reports whether the actor may act on appointments it does not own.
func (a Actor) Operator() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

type actorCtxKey struct{}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(Actor)
	return a, ok && a.ID != ""
}

// Middleware resolves the request actor. With a secret configured it verifies
// a Bearer token; otherwise it trusts the gateway-injected identity headers,
// matching how the rest of the platform forwards identity.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := resolveActor(r, secret)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

func resolveActor(r *http.Request, secret string) (Actor, bool) {
	if secret != "" {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(raw, "Bearer ") {
			return Actor{}, false
		}
		claims, err := ParseAndVerifyHS256(strings.TrimPrefix(raw, "Bearer "), secret)
		if err != nil || claims.Sub == "" {
			return Actor{}, false
		}
		role := claims.Role
		if role == "" {
			role = RoleClient
		}
		return Actor{ID: claims.Sub, Role: role}, true
	}

	id := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	if id == "" {
		return Actor{}, false
	}
	role := strings.TrimSpace(r.Header.Get("X-Actor-Role"))
	if role == "" {
		role = RoleClient
	}
	return Actor{ID: id, Role: role}, true
}
