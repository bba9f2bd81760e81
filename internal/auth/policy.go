package auth

import (
	"net/http"
	"strings"
)

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case strings.HasPrefix(path, "/api/v1/outlets/"):
		switch method {
		case http.MethodGet, http.MethodHead:
			return RoleViewer, true
		case http.MethodDelete:
			if isDeleteAll(r) {
				return RoleAdmin, true
			}
			return RoleOperator, true
		}
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/virtual-outlets/"):
		if method == http.MethodGet {
			return RoleViewer, true
		}
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/gate-changes/"), strings.HasPrefix(path, "/api/v1/turbine-changes/"):
		if method == http.MethodGet {
			if strings.Contains(path, "/export.") {
				return RoleOperator, true
			}
			return RoleViewer, true
		}
		if isOverride(r) {
			return RoleAdmin, true
		}
		return RoleOperator, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return RoleViewer, true
		}
		return RoleOperator, true
	}
	return "", false
}

func isDeleteAll(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("method")), "DELETE_ALL")
}

func isOverride(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("override-protection")), "true")
}
