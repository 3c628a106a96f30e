package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const keyID ctxKey = 0

// Store is a static in-memory admin key store: secret -> keyID
type Store struct {
	header   string
	bySecret map[string]string
}

// NewStatic creates a new static key store.
// header: HTTP header to read the key from (e.g., "X-Admin-Key")
// pairs: map of secret -> keyID
func NewStatic(header string, pairs map[string]string) *Store {
	h := header
	if h == "" {
		h = "X-Admin-Key"
	}
	return &Store{header: h, bySecret: pairs}
}

func (s *Store) keyIDFor(secret string) (string, bool) {
	id, ok := s.bySecret[secret]
	return id, ok
}

// Open reports whether the store holds no keys, in which case guarded
// endpoints accept anonymous callers.
func (s *Store) Open() bool {
	return len(s.bySecret) == 0
}

// WithKeyID injects the key ID into context.
func WithKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyID, id)
}

// KeyIDFrom extracts the key ID from context (if present).
func KeyIDFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(keyID)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// Require wraps a single handler with admin-key validation and writes
// JSON errors on failure. An open store passes everything through.
func (s *Store) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Open() {
			next.ServeHTTP(w, r)
			return
		}

		secret := strings.TrimSpace(r.Header.Get(s.header))
		if secret == "" {
			writeJSON(w, http.StatusUnauthorized, "missing_admin_key", "Provide admin key in "+s.header)
			return
		}
		id, ok := s.keyIDFor(secret)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, "invalid_admin_key", "Admin key not recognized")
			return
		}
		ctx := WithKeyID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + errCode + `","message":"` + msg + `"}}`))
}
