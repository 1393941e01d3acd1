package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "mcp-a2a/internal/errors"
)

func okHandler(t *testing.T, wantSubject bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := SubjectFromContext(r.Context()); (got != nil) != wantSubject {
			t.Errorf("unexpected subject: %+v", got)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestGuardDisabledPassesThrough(t *testing.T) {
	guard := NewGuard([]string{"", "  "})
	if guard.Enabled() {
		t.Fatalf("blank tokens should not enable the guard")
	}
	rec := httptest.NewRecorder()
	guard.Middleware(okHandler(t, false)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestGuardAuthenticate(t *testing.T) {
	guard := NewGuard([]string{"alpha", " beta "})

	cases := []struct {
		name   string
		header string
		want   error
	}{
		{"missing", "", ErrMissingToken},
		{"wrong scheme", "Basic alpha", ErrInvalidToken},
		{"empty token", "Bearer ", ErrInvalidToken},
		{"unknown", "Bearer gamma", ErrInvalidToken},
		{"first", "Bearer alpha", nil},
		{"trimmed", "bearer beta", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subject, err := guard.Authenticate(tc.header)
			if tc.want == nil {
				if err != nil || subject == nil || len(subject.ID) != 8 {
					t.Fatalf("expected subject, got %+v err=%v", subject, err)
				}
				return
			}
			if err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !xerrors.HasCode(err, xerrors.CodeUnauthenticated) {
				t.Fatalf("unexpected code: %v", xerrors.CodeOf(err))
			}
		})
	}
}

func TestMiddlewareRejectsAndAllowsPublicPaths(t *testing.T) {
	guard := NewGuard([]string{"alpha"}, "/healthz")

	rec := httptest.NewRecorder()
	guard.Middleware(okHandler(t, false)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("missing challenge header")
	}

	rec = httptest.NewRecorder()
	guard.Middleware(okHandler(t, false)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("public path should pass, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer alpha")
	rec = httptest.NewRecorder()
	guard.Middleware(okHandler(t, true)).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("authorised request should pass, got %d", rec.Code)
	}
}
