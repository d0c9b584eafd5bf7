package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(method, "/match", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, called
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	w, called := serveCORS([]string{"*"}, http.MethodGet, "https://app.example")
	if !called {
		t.Fatal("next handler not called")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard must not allow credentials")
	}
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	w, _ := serveCORS([]string{"https://app.example"}, http.MethodGet, "https://app.example")
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("explicit origin should allow credentials")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	w, called := serveCORS([]string{"https://app.example"}, http.MethodGet, "https://evil.example")
	if !called {
		t.Fatal("request should still reach the handler")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin must not be allowed")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	w, called := serveCORS([]string{"*"}, http.MethodOptions, "https://app.example")
	if called {
		t.Fatal("preflight must not reach the handler")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
