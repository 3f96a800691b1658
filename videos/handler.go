package videos

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"vidshare/auth"
	"vidshare/categories"
	"vidshare/db"
	"vidshare/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Video is the API representation of a submission. Approved and Denied are
// derived from the tri-state status so existing clients keep working.
type Video struct {
	ID          string                `json:"id"`
	Link        string                `json:"link"`
	Description string                `json:"description"`
	Categories  []categories.Category `json:"categories"`
	User        string                `json:"user"`
	Status      string                `json:"status"`
	Approved    bool                  `json:"approved"`
	Denied      bool                  `json:"denied"`
	Likes       int                   `json:"likes"`
	CreatedAt   string                `json:"created_at"`

	userID string
}

// Handler holds dependencies for video endpoints.
type Handler struct {
	DB *db.CompatDB
}

type createRequest struct {
	Link        string   `json:"link"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

type updateRequest struct {
	Link        *string   `json:"link"`
	Description *string   `json:"description"`
	Categories  *[]string `json:"categories"`
	Status      *string   `json:"status"`
}

const videoSelect = `
	SELECT v.id, v.link, v.description, v.status, v.like_count, v.created_at, v.user_id, u.username
	FROM videos v
	JOIN users u ON u.id = v.user_id`

// HandleList returns the videos the caller may see, id ascending.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)
	filter := FilterFromRequest(r, id)

	where, args := filter.WhereClause()
	rows, err := h.DB.QueryContext(r.Context(), videoSelect+" WHERE "+where+" ORDER BY v.id ASC", args...)
	if err != nil {
		httputil.Error(w, 500, "failed to list videos")
		return
	}
	defer rows.Close()

	vids := scanVideos(rows)
	if err := h.attachCategories(r.Context(), vids); err != nil {
		httputil.Error(w, 500, "failed to list videos")
		return
	}
	httputil.WriteJSON(w, 200, vids)
}

// HandleCreate submits a new video. It starts in the pending state.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, 400, "invalid request body")
		return
	}
	if err := ValidateLink(req.Link); err != nil {
		httputil.Error(w, 400, err.Error())
		return
	}
	if err := ValidateCategoryCount(req.Categories); err != nil {
		httputil.Error(w, 400, err.Error())
		return
	}
	if err := h.checkCategoriesExist(r.Context(), req.Categories); err != nil {
		httputil.Error(w, 400, err.Error())
		return
	}

	var exists int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT 1 FROM videos WHERE link = ?`, req.Link).Scan(&exists); err == nil {
		httputil.Error(w, 400, ErrDuplicateLink.Error())
		return
	}

	videoID := uuid.New().String()
	now := db.NowUTC()
	err := db.WithTx(r.Context(), h.DB, func(conn *db.CompatConn) error {
		if _, err := conn.ExecContext(r.Context(),
			`INSERT INTO videos (id, link, description, user_id, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			videoID, req.Link, req.Description, id.UserID, StatusPending, now); err != nil {
			return err
		}
		for _, cat := range req.Categories {
			if _, err := conn.ExecContext(r.Context(),
				`INSERT INTO video_categories (video_id, category_id) VALUES (?, ?)`, videoID, cat); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Link uniqueness is ultimately enforced by the schema; a race
		// between the pre-check and the insert lands here.
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate key") {
			httputil.Error(w, 400, ErrDuplicateLink.Error())
			return
		}
		httputil.Error(w, 500, "failed to create video")
		return
	}

	v, err := h.loadVideo(r.Context(), videoID)
	if err != nil {
		httputil.Error(w, 500, "failed to load video")
		return
	}
	httputil.WriteJSON(w, 201, v)
}

// HandleGet returns one video. Unapproved submissions are visible only to
// their owner and to moderators.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)
	v, err := h.loadVideo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, 404, ErrNotFound.Error())
		return
	}
	if v.Status != StatusApproved && v.userID != id.UserID && !id.Can(auth.CapModerate) {
		httputil.Error(w, 404, ErrNotFound.Error())
		return
	}
	httputil.WriteJSON(w, 200, v)
}

// HandleUpdate edits a submission. Only the owner or a moderator may edit;
// the link and creation time are immutable, and only moderators may touch
// the moderation status here.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)
	videoID := chi.URLParam(r, "id")

	v, err := h.loadVideo(r.Context(), videoID)
	if err != nil {
		httputil.Error(w, 404, ErrNotFound.Error())
		return
	}
	if v.userID != id.UserID && !id.Can(auth.CapModerate) {
		httputil.Error(w, 403, ErrForbidden.Error())
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, 400, "invalid request body")
		return
	}
	if req.Link != nil && *req.Link != v.Link {
		httputil.Error(w, 400, ErrImmutableField.Error())
		return
	}
	if req.Status != nil && !id.Can(auth.CapModerate) {
		httputil.Error(w, 403, ErrForbidden.Error())
		return
	}
	if req.Status != nil && !ValidStatus(*req.Status) {
		httputil.Error(w, 400, ErrInvalidStatus.Error())
		return
	}
	if req.Categories != nil {
		if err := ValidateCategoryCount(*req.Categories); err != nil {
			httputil.Error(w, 400, err.Error())
			return
		}
		if err := h.checkCategoriesExist(r.Context(), *req.Categories); err != nil {
			httputil.Error(w, 400, err.Error())
			return
		}
	}

	err = db.WithTx(r.Context(), h.DB, func(conn *db.CompatConn) error {
		if req.Description != nil {
			if _, err := conn.ExecContext(r.Context(),
				`UPDATE videos SET description = ? WHERE id = ?`, *req.Description, videoID); err != nil {
				return err
			}
		}
		if req.Status != nil {
			if _, err := conn.ExecContext(r.Context(),
				`UPDATE videos SET status = ? WHERE id = ?`, *req.Status, videoID); err != nil {
				return err
			}
		}
		if req.Categories != nil {
			if _, err := conn.ExecContext(r.Context(),
				`DELETE FROM video_categories WHERE video_id = ?`, videoID); err != nil {
				return err
			}
			for _, cat := range *req.Categories {
				if _, err := conn.ExecContext(r.Context(),
					`INSERT INTO video_categories (video_id, category_id) VALUES (?, ?)`, videoID, cat); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		httputil.Error(w, 500, "failed to update video")
		return
	}

	v, err = h.loadVideo(r.Context(), videoID)
	if err != nil {
		httputil.Error(w, 500, "failed to load video")
		return
	}
	httputil.WriteJSON(w, 200, v)
}

// HandleDelete removes a submission. Owner or moderator only.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)
	videoID := chi.URLParam(r, "id")

	v, err := h.loadVideo(r.Context(), videoID)
	if err != nil {
		httputil.Error(w, 404, ErrNotFound.Error())
		return
	}
	if v.userID != id.UserID && !id.Can(auth.CapModerate) {
		httputil.Error(w, 403, ErrForbidden.Error())
		return
	}

	if _, err := h.DB.ExecContext(r.Context(), `DELETE FROM videos WHERE id = ?`, videoID); err != nil {
		httputil.Error(w, 500, "failed to delete video")
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"status": "deleted"})
}

type moderateRequest struct {
	Status string `json:"status"`
}

// HandleModerate sets the moderation status of a video.
func (h *Handler) HandleModerate(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !ValidStatus(req.Status) {
		httputil.Error(w, 400, ErrInvalidStatus.Error())
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE videos SET status = ? WHERE id = ?`, req.Status, videoID)
	if err != nil {
		httputil.Error(w, 500, "failed to update status")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.Error(w, 404, ErrNotFound.Error())
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"id": videoID, "status": req.Status})
}

// HandleUserVideos lists the caller's own submissions, newest first,
// regardless of moderation state.
func (h *Handler) HandleUserVideos(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)

	rows, err := h.DB.QueryContext(r.Context(),
		videoSelect+` WHERE v.user_id = ? ORDER BY v.created_at DESC, v.id ASC`, id.UserID)
	if err != nil {
		httputil.Error(w, 500, "failed to list videos")
		return
	}
	defer rows.Close()

	vids := scanVideos(rows)
	if err := h.attachCategories(r.Context(), vids); err != nil {
		httputil.Error(w, 500, "failed to list videos")
		return
	}
	httputil.WriteJSON(w, 200, vids)
}

func (h *Handler) loadVideo(ctx context.Context, id string) (*Video, error) {
	row := h.DB.QueryRowContext(ctx, videoSelect+` WHERE v.id = ?`, id)
	v, err := scanVideo(row)
	if err != nil {
		return nil, err
	}
	vids := []*Video{v}
	if err := h.attachCategories(ctx, vids); err != nil {
		return nil, err
	}
	return v, nil
}

func (h *Handler) checkCategoriesExist(ctx context.Context, ids []string) error {
	for _, catID := range ids {
		var one int
		if err := h.DB.QueryRowContext(ctx,
			`SELECT 1 FROM categories WHERE id = ?`, catID).Scan(&one); err != nil {
			return ErrUnknownCategory
		}
	}
	return nil
}

// attachCategories fills in Categories for a batch of videos in one query.
func (h *Handler) attachCategories(ctx context.Context, vids []*Video) error {
	for _, v := range vids {
		v.Categories = make([]categories.Category, 0, 2)
	}
	if len(vids) == 0 {
		return nil
	}

	byID := make(map[string]*Video, len(vids))
	ph := make([]string, len(vids))
	args := make([]interface{}, len(vids))
	for i, v := range vids {
		byID[v.ID] = v
		ph[i] = "?"
		args[i] = v.ID
	}

	rows, err := h.DB.QueryContext(ctx,
		`SELECT vc.video_id, c.id, c.name
		 FROM video_categories vc
		 JOIN categories c ON c.id = vc.category_id
		 WHERE vc.video_id IN (`+strings.Join(ph, ",")+`)
		 ORDER BY c.id ASC`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var videoID string
		var c categories.Category
		if err := rows.Scan(&videoID, &c.ID, &c.Name); err != nil {
			continue
		}
		if v, ok := byID[videoID]; ok {
			v.Categories = append(v.Categories, c)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var v Video
	if err := row.Scan(&v.ID, &v.Link, &v.Description, &v.Status, &v.Likes,
		&v.CreatedAt, &v.userID, &v.User); err != nil {
		return nil, err
	}
	v.Approved = v.Status == StatusApproved
	v.Denied = v.Status == StatusDenied
	return &v, nil
}

func scanVideos(rows *sql.Rows) []*Video {
	vids := make([]*Video, 0)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			continue
		}
		vids = append(vids, v)
	}
	return vids
}
