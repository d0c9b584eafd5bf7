package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/pairline/internal/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "alice", want: "alice"},
		{in: "  bob@example.com ", want: "bob@example.com"},
		{in: "", wantErr: domain.ErrMissingIdentity},
		{in: "   ", wantErr: domain.ErrMissingIdentity},
		{in: "김철수", want: "김철수"},
		{in: "ユーザー", want: "ユーザー"},
		{in: "user name", want: "user name"},
		{in: "user#1", want: "user#1"},
		{in: strings.Repeat("한", 128), want: strings.Repeat("한", 128)},
		{in: strings.Repeat("x", 129), wantErr: domain.ErrInvalidIdentity},
		{in: "bad\x00id", wantErr: domain.ErrInvalidIdentity},
		{in: "line\nbreak", wantErr: domain.ErrInvalidIdentity},
		{in: "\xff\xfe", wantErr: domain.ErrInvalidIdentity},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Normalize(%q) error = %v, want %v", tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("Normalize(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestFromRequestPrefersQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/match?userId=query-user", nil)
	req.Header.Set(HeaderName, "header-user")

	if got := FromRequest(req); got != "query-user" {
		t.Fatalf("expected query-user, got %q", got)
	}
}

func TestFromRequestFallsBackToHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/match?userId=bad%00id", nil)
	req.Header.Set(HeaderName, "header-user")

	if got := FromRequest(req); got != "header-user" {
		t.Fatalf("expected header-user, got %q", got)
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	var seen string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderName, "carol")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "carol" {
		t.Fatalf("expected carol in context, got %q", seen)
	}
}
