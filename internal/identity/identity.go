// Package identity validates client-supplied user identities and carries them
// through request contexts.
package identity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/pairline/internal/domain"
)

const (
	// HeaderName carries the caller's identity on HTTP requests.
	HeaderName = "X-User-ID"
	// QueryParam carries the caller's identity on HTTP requests and websocket upgrades.
	QueryParam = "userId"
	// maxLength is counted in runes.
	maxLength = 128
)

type contextKey int

const userIDKey contextKey = iota

// Normalize trims id and validates it. Identities are opaque: any printable
// text is accepted. Empty input yields domain.ErrMissingIdentity; invalid
// UTF-8, control characters or overlong input yield domain.ErrInvalidIdentity.
func Normalize(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrMissingIdentity
	}
	if !utf8.ValidString(id) || utf8.RuneCountInString(id) > maxLength || strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidIdentity, truncate(id))
	}
	return id, nil
}

func truncate(id string) string {
	if r := []rune(id); len(r) > 32 {
		return string(r[:32]) + "..."
	}
	return id
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// FromRequest reads the identity from the userId query parameter or the
// X-User-ID header, in that order. It returns "" when neither is valid.
func FromRequest(r *http.Request) string {
	for _, candidate := range []string{r.URL.Query().Get(QueryParam), r.Header.Get(HeaderName)} {
		if id, err := Normalize(candidate); err == nil {
			return id
		}
	}
	return ""
}

// Middleware attaches the request identity, when present, to the context.
// Handlers decide whether an identity is required.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := FromRequest(r); id != "" {
				r = r.WithContext(WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
