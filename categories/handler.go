package categories

import (
	"encoding/json"
	"net/http"

	"vidshare/db"
	"vidshare/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Category is a tag a video can carry. Names are not unique; the original
// data model never enforced that and downstream logic works on names as-is.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Handler holds dependencies for category endpoints.
type Handler struct {
	DB *db.CompatDB
}

type categoryRequest struct {
	Name string `json:"name"`
}

// HandleList returns all categories, id ascending.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.QueryContext(r.Context(), `SELECT id, name FROM categories ORDER BY id ASC`)
	if err != nil {
		httputil.Error(w, 500, "failed to list categories")
		return
	}
	defer rows.Close()

	cats := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			continue
		}
		cats = append(cats, c)
	}
	httputil.WriteJSON(w, 200, cats)
}

// HandleCreate adds a category.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		httputil.Error(w, 400, "name is required")
		return
	}

	c := Category{ID: uuid.New().String(), Name: req.Name}
	if _, err := h.DB.ExecContext(r.Context(),
		`INSERT INTO categories (id, name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Name, db.NowUTC()); err != nil {
		httputil.Error(w, 500, "failed to create category")
		return
	}
	httputil.WriteJSON(w, 201, c)
}

// HandleGet returns a single category.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var c Category
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name); err != nil {
		httputil.Error(w, 404, "category not found")
		return
	}
	httputil.WriteJSON(w, 200, c)
}

// HandleUpdate renames a category.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		httputil.Error(w, 400, "name is required")
		return
	}

	res, err := h.DB.ExecContext(r.Context(), `UPDATE categories SET name = ? WHERE id = ?`, req.Name, id)
	if err != nil {
		httputil.Error(w, 500, "failed to update category")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.Error(w, 404, "category not found")
		return
	}
	httputil.WriteJSON(w, 200, Category{ID: id, Name: req.Name})
}

// HandleDelete removes a category. Attached videos lose the tag via the
// video_categories cascade but are otherwise untouched.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.DB.ExecContext(r.Context(), `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		httputil.Error(w, 500, "failed to delete category")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.Error(w, 404, "category not found")
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"status": "deleted"})
}
