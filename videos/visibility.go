package videos

import (
	"net/http"
	"strings"

	"vidshare/auth"
)

// Moderation states for a video. A submission starts pending and a
// moderator moves it to exactly one of approved or denied; the three
// states are mutually exclusive.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

var allStatuses = []string{StatusPending, StatusApproved, StatusDenied}

// ValidStatus reports whether s names a moderation state.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusApproved || s == StatusDenied
}

// ListFilter captures which videos a caller may see, resolved from the
// caller's capabilities and the supplied query parameters. It is a pure
// value: building the WHERE clause has no side effects.
type ListFilter struct {
	// Statuses is the set of moderation states included in the result.
	// Empty means the filters contradicted each other and nothing matches.
	Statuses []string
	// Category1 and Category2 are intersected when both are present.
	Category1 string
	Category2 string
}

// FilterFromRequest resolves the visibility filter for a request.
//
// Non-staff (and anonymous) callers always get approved-only, regardless of
// query parameters. Staff default to all three states and may narrow with
// ?status=, or with the legacy ?approved= / ?denied= booleans, which map
// onto the tri-state: approved=true keeps only approved, approved=false
// drops it, and likewise for denied. Contradictory combinations yield an
// empty status set (and therefore an empty listing).
func FilterFromRequest(r *http.Request, id auth.Identity) ListFilter {
	f := ListFilter{
		Category1: r.URL.Query().Get("category_1"),
		Category2: r.URL.Query().Get("category_2"),
	}

	if !id.Can(auth.CapModerate) {
		f.Statuses = []string{StatusApproved}
		return f
	}

	included := map[string]bool{StatusPending: true, StatusApproved: true, StatusDenied: true}

	if s := r.URL.Query().Get("status"); ValidStatus(s) {
		for st := range included {
			included[st] = st == s
		}
	}
	if v := r.URL.Query().Get("approved"); v != "" {
		keep := strings.EqualFold(v, "true")
		if keep {
			for st := range included {
				included[st] = included[st] && st == StatusApproved
			}
		} else {
			included[StatusApproved] = false
		}
	}
	if v := r.URL.Query().Get("denied"); v != "" {
		keep := strings.EqualFold(v, "true")
		if keep {
			for st := range included {
				included[st] = included[st] && st == StatusDenied
			}
		} else {
			included[StatusDenied] = false
		}
	}

	for _, st := range allStatuses {
		if included[st] {
			f.Statuses = append(f.Statuses, st)
		}
	}
	return f
}

// WhereClause renders the filter as a SQL fragment over table alias v,
// with its bind arguments. Callers prepend "WHERE ".
func (f ListFilter) WhereClause() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if len(f.Statuses) == 0 {
		// Contradictory filters: match nothing.
		return "1 = 0", nil
	}
	ph := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		ph[i] = "?"
		args = append(args, s)
	}
	clauses = append(clauses, "v.status IN ("+strings.Join(ph, ", ")+")")

	for _, cat := range []string{f.Category1, f.Category2} {
		if cat == "" {
			continue
		}
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM video_categories vc WHERE vc.video_id = v.id AND vc.category_id = ?)")
		args = append(args, cat)
	}

	return strings.Join(clauses, " AND "), args
}
