package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyHS256(t *testing.T) {
	claims := Claims{
		Sub:  "client-1",
		Role: RoleClient,
		Exp:  time.Now().Add(time.Hour).Unix(),
		Iat:  time.Now().Unix(),
	}
	token, err := SignHS256(claims, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parsed, err := ParseAndVerifyHS256(token, "secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if parsed.Sub != "client-1" || parsed.Role != RoleClient {
		t.Fatalf("unexpected claims: %+v", parsed)
	}

	if _, err := ParseAndVerifyHS256(token, "other-secret"); err == nil {
		t.Fatal("wrong secret should fail verification")
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "client-1", Exp: time.Now().Add(-time.Minute).Unix()}, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "secret"); err == nil {
		t.Fatal("expired token should fail verification")
	}
}

func TestMiddleware_HeaderFallback(t *testing.T) {
	var got Actor
	h := Middleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-Id", "client-9")
	req.Header.Set("X-Actor-Role", RoleAdmin)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.ID != "client-9" || got.Role != RoleAdmin {
		t.Fatalf("unexpected actor: %+v", got)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing identity should be 401, got %d", rec.Code)
	}
}

func TestMiddleware_BearerToken(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "client-2", Role: RoleStaff, Exp: time.Now().Add(time.Hour).Unix()}, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var got Actor
	h := Middleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got.ID != "client-2" || !got.Operator() {
		t.Fatalf("unexpected actor: %+v", got)
	}
}
