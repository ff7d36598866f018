package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(captured **Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFromContext(r.Context()); ok {
			*captured = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_DisabledWhenNoKeys(t *testing.T) {
	a := NewAuthenticator(nil, nil)
	if a.Enabled() {
		t.Fatal("authenticator with no keys should be disabled")
	}

	var principal *Principal
	rec := httptest.NewRecorder()
	a.Middleware(okHandler(&principal)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/rerank", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if principal == nil || principal.Method != "none" {
		t.Errorf("expected a 'none' principal, got %+v", principal)
	}
}

func TestMiddleware_APIKey(t *testing.T) {
	a := NewAuthenticator([]string{"secret-key", " padded-key "}, nil)

	cases := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"valid key", "secret-key", http.StatusOK},
		{"trimmed key", "padded-key", http.StatusOK},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"missing credentials", "", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var principal *Principal
			req := httptest.NewRequest(http.MethodPost, "/v1/rerank", nil)
			if tc.key != "" {
				req.Header.Set(APIKeyHeader, tc.key)
			}

			rec := httptest.NewRecorder()
			a.Middleware(okHandler(&principal)).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantStatus == http.StatusOK {
				if principal == nil || principal.Method != "api_key" || principal.Subject != tc.key {
					t.Errorf("unexpected principal: %+v", principal)
				}
			}
		})
	}
}

func TestMiddleware_SkipPaths(t *testing.T) {
	a := NewAuthenticator([]string{"secret-key"}, nil)

	for _, path := range []string{"/healthz", "/readyz", "/v1/token"} {
		var principal *Principal
		rec := httptest.NewRecorder()
		a.Middleware(okHandler(&principal)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected bypass, got %d", path, rec.Code)
		}
	}
}

func TestMiddleware_BearerToken(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))
	a := NewAuthenticator([]string{"secret-key"}, manager)

	token, _, err := manager.GenerateToken("secret-key")
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	var principal *Principal
	req := httptest.NewRequest(http.MethodPost, "/v1/rerank", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	a.Middleware(okHandler(&principal)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if principal == nil || principal.Method != "jwt" || principal.Subject != "secret-key" {
		t.Errorf("unexpected principal: %+v", principal)
	}
}

func TestMiddleware_RejectsBadBearerToken(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))
	a := NewAuthenticator([]string{"secret-key"}, manager)

	req := httptest.NewRequest(http.MethodPost, "/v1/rerank", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")

	rec := httptest.NewRecorder()
	a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run for an invalid token")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTManager_RoundTrip(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := manager.GenerateToken("caller-1")
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("expiry should be in the future")
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("validating token: %v", err)
	}
	if claims.Subject != "caller-1" {
		t.Errorf("expected subject caller-1, got %q", claims.Subject)
	}
	if claims.Issuer != "rerankd" {
		t.Errorf("expected issuer rerankd, got %q", claims.Issuer)
	}
}

func TestJWTManager_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewJWTManager(DefaultJWTConfig("secret-a")).GenerateToken("caller-1")
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	_, err = NewJWTManager(DefaultJWTConfig("secret-b")).ValidateToken(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTManager_RejectsExpiredToken(t *testing.T) {
	// NewJWTManager clamps non-positive expiry, so build the signer directly
	// to mint an already-expired token.
	signer := &JWTManager{config: &JWTConfig{
		Secret:        "test-secret",
		Expiry:        -time.Minute,
		Issuer:        "rerankd",
		SigningMethod: DefaultJWTConfig("test-secret").SigningMethod,
	}}

	token, _, err := signer.GenerateToken("caller-1")
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	_, err = NewJWTManager(DefaultJWTConfig("test-secret")).ValidateToken(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}
