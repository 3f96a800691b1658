package likes

import (
	"errors"
	"net/http"
	"strings"

	"vidshare/auth"
	"vidshare/db"
	"vidshare/httputil"

	"github.com/go-chi/chi/v5"
)

// Handler holds dependencies for like endpoints.
type Handler struct {
	DB     *db.CompatDB
	Ledger *Ledger
}

// HandleLike records a like for the authenticated user.
func (h *Handler) HandleLike(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)
	videoID := chi.URLParam(r, "id")

	switch err := h.Ledger.Like(r.Context(), id.UserID, videoID); {
	case err == nil:
		httputil.WriteJSON(w, 200, map[string]string{"detail": "video liked successfully"})
	case errors.Is(err, ErrAlreadyLiked):
		httputil.Error(w, 400, err.Error())
	case errors.Is(err, ErrVideoNotFound):
		httputil.Error(w, 404, err.Error())
	default:
		httputil.Error(w, 500, "failed to like video")
	}
}

// HandleUnlike removes the authenticated user's like.
func (h *Handler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)
	videoID := chi.URLParam(r, "id")

	switch err := h.Ledger.Unlike(r.Context(), id.UserID, videoID); {
	case err == nil:
		httputil.WriteJSON(w, 200, map[string]string{"detail": "video unliked successfully"})
	case errors.Is(err, ErrNotLiked):
		httputil.Error(w, 400, err.Error())
	case errors.Is(err, ErrVideoNotFound):
		httputil.Error(w, 404, err.Error())
	default:
		httputil.Error(w, 500, "failed to unlike video")
	}
}

// HandleLikedVideos lists the caller's liked videos, most recent like first.
func (h *Handler) HandleLikedVideos(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.link, v.description, v.status, v.like_count, v.created_at, u.username, l.created_at
		FROM likes l
		JOIN videos v ON v.id = l.video_id
		JOIN users u ON u.id = v.user_id
		WHERE l.user_id = ?
		ORDER BY l.created_at DESC`, id.UserID)
	if err != nil {
		httputil.Error(w, 500, "failed to list liked videos")
		return
	}
	defer rows.Close()

	vids := make([]map[string]interface{}, 0)
	var videoIDs []string
	for rows.Next() {
		var vid, link, description, status, createdAt, username, likedAt string
		var likeCount int
		if err := rows.Scan(&vid, &link, &description, &status, &likeCount, &createdAt, &username, &likedAt); err != nil {
			continue
		}
		videoIDs = append(videoIDs, vid)
		vids = append(vids, map[string]interface{}{
			"id": vid, "link": link, "description": description,
			"status": status, "approved": status == "approved", "denied": status == "denied",
			"likes": likeCount, "user": username, "created_at": createdAt,
			"liked_at": likedAt, "categories": []map[string]string{},
		})
	}

	if len(videoIDs) > 0 {
		ph := make([]string, len(videoIDs))
		args := make([]interface{}, len(videoIDs))
		byID := make(map[string]map[string]interface{}, len(vids))
		for i, vid := range videoIDs {
			ph[i] = "?"
			args[i] = vid
			byID[vid] = vids[i]
		}
		catRows, err := h.DB.QueryContext(r.Context(), `
			SELECT vc.video_id, c.id, c.name
			FROM video_categories vc
			JOIN categories c ON c.id = vc.category_id
			WHERE vc.video_id IN (`+strings.Join(ph, ",")+`)
			ORDER BY c.id ASC`, args...)
		if err == nil {
			defer catRows.Close()
			for catRows.Next() {
				var vid, cid, name string
				if catRows.Scan(&vid, &cid, &name) != nil {
					continue
				}
				if v, ok := byID[vid]; ok {
					v["categories"] = append(v["categories"].([]map[string]string),
						map[string]string{"id": cid, "name": name})
				}
			}
		}
	}

	httputil.WriteJSON(w, 200, vids)
}

// HandleReconcile repairs drifted like counters from the ledger.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.Ledger.Reconcile(r.Context())
	if err != nil {
		httputil.Error(w, 500, "failed to reconcile like counters")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"repaired": repaired})
}
