package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash, err := HashKey("s3cret")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		hash       string
		authHeader string
		wantStatus int
	}{
		{"valid key", hash, "Bearer s3cret", http.StatusOK},
		{"wrong key", hash, "Bearer nope", http.StatusUnauthorized},
		{"missing header", hash, "", http.StatusUnauthorized},
		{"malformed header", hash, "s3cret", http.StatusUnauthorized},
		{"basic scheme", hash, "Basic s3cret", http.StatusUnauthorized},
		{"no hash configured", "", "Bearer s3cret", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AdminAuthMiddleware(tt.hash)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/plans", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
