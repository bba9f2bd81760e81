package auth

import (
	"net/http"
	"strings"
)

// Middleware validates JWTs and enforces RBAC.
type Middleware struct {
	Verifier *Verifier
	Policy   Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(verifier *Verifier, policy Policy) *Middleware {
	return &Middleware{Verifier: verifier, Policy: policy}
}

// Wrap applies auth and RBAC to the handler. A middleware without a verifier
// passes every request through.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil || m.Verifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		claims, err := m.Verifier.Verify(token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		officeID, role, subject := claims.Identity()
		ctx := WithIdentity(r.Context(), officeID, role, subject)
		if !RoleAtLeast(role, required) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
