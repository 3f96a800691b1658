package auth

import (
	"net/http"

	"vidshare/httputil"
)

// Capability is a coarse-grained permission consulted uniformly by the
// routing layer, instead of ad-hoc role checks inside each handler.
type Capability string

const (
	// CapRead covers listing and fetching publicly visible records.
	CapRead Capability = "read"
	// CapWrite covers submitting videos, liking, and editing own records.
	CapWrite Capability = "write"
	// CapModerate covers approval state and account administration.
	CapModerate Capability = "moderate"
)

// Can reports whether the identity holds the capability. Anonymous callers
// (zero Identity) hold only read; authenticated users add write; staff add
// moderate.
func (id Identity) Can(c Capability) bool {
	switch c {
	case CapRead:
		return true
	case CapWrite:
		return id.UserID != ""
	case CapModerate:
		return id.UserID != "" && id.IsStaff
	default:
		return false
	}
}

// RequireCapability wraps Middleware and additionally enforces a capability,
// answering 403 when an authenticated caller lacks it.
func (h *Handler) RequireCapability(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := ExtractIdentity(r)
			if !id.Can(c) {
				httputil.Error(w, 403, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
