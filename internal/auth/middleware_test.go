package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func protected(t *testing.T, svc *TokenService) http.Handler {
	t.Helper()
	return RequireAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		if !ok {
			t.Error("handler reached without a user ID")
		}
		_, _ = w.Write([]byte(id))
	}))
}

func TestRequireAuth(t *testing.T) {
	svc := newTestTokenService(t)
	token, _, _ := svc.Issue("user-1")

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			protected(t, svc).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != "user-1" {
				t.Errorf("body = %q, want user-1", rec.Body.String())
			}
		})
	}
}

func TestRequireAuth_ErrorBody(t *testing.T) {
	svc := newTestTokenService(t)
	rec := httptest.NewRecorder()

	protected(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["error"] != "unauthorized" || body["message"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestBearerWinsOverCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})

	if got := TokenFromRequest(req); got != "from-header" {
		t.Errorf("TokenFromRequest() = %q, want from-header", got)
	}
}
