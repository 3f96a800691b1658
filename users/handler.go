package users

import (
	"net/http"

	"vidshare/auth"
	"vidshare/db"
	"vidshare/httputil"

	"github.com/go-chi/chi/v5"
)

// Handler holds dependencies for profile and account-administration endpoints.
type Handler struct {
	DB *db.CompatDB
}

// HandleGetProfile returns the authenticated caller's own account.
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)

	var username, email, createdAt string
	var isStaff, isActive int
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT username, email, is_staff, is_active, created_at FROM users WHERE id = ?`,
		id.UserID).Scan(&username, &email, &isStaff, &isActive, &createdAt)
	if err != nil {
		httputil.Error(w, 404, "user not found")
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"id": id.UserID, "username": username, "email": email,
		"is_staff": isStaff == 1, "is_active": isActive == 1,
		"created_at": createdAt,
	})
}

// HandleList returns all accounts with their role and active flags.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.QueryContext(r.Context(),
		`SELECT id, username, is_staff, is_active FROM users ORDER BY id ASC`)
	if err != nil {
		httputil.Error(w, 500, "failed to list users")
		return
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, username string
		var isStaff, isActive int
		if err := rows.Scan(&id, &username, &isStaff, &isActive); err != nil {
			continue
		}
		out = append(out, map[string]interface{}{
			"id": id, "username": username,
			"is_staff": isStaff == 1, "is_active": isActive == 1,
		})
	}
	httputil.WriteJSON(w, 200, out)
}

// HandleToggleStaff flips the target account's staff flag.
func (h *Handler) HandleToggleStaff(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "is_staff", "admin status updated successfully")
}

// HandleToggleActive flips the target account's active flag. Deactivated
// accounts lose access on their next request, not at token expiry.
func (h *Handler) HandleToggleActive(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "is_active", "account status updated successfully")
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, column, detail string) {
	targetID := chi.URLParam(r, "id")

	// Column names come from the two callers above, never from input.
	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET `+column+` = CASE `+column+` WHEN 1 THEN 0 ELSE 1 END WHERE id = ?`,
		targetID)
	if err != nil {
		httputil.Error(w, 500, "failed to update user")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.Error(w, 404, "user not found")
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"detail": detail})
}
