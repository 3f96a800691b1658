package recommend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vidshare/auth"
	"vidshare/db"
	"vidshare/httputil"
)

// Handler holds dependencies for the recommendation endpoint.
type Handler struct {
	DB *db.CompatDB
}

// HandleRecommend derives the caller's favorite category from their recent
// likes and returns up to five of the most-liked approved videos in that
// category that the caller has never liked.
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.ExtractIdentity(r)

	recent, err := h.loadRecentLikes(r.Context(), id.UserID)
	if err != nil {
		httputil.Error(w, 500, "failed to load likes")
		return
	}

	favorite, err := FavoriteCategory(recent)
	if err != nil {
		if errors.Is(err, ErrNoFavoriteCategory) {
			httputil.Error(w, 404, err.Error())
			return
		}
		httputil.Error(w, 500, "failed to compute favorite category")
		return
	}

	vids, err := h.loadCandidates(r.Context(), id.UserID, favorite)
	if err != nil {
		httputil.Error(w, 500, "failed to load recommendations")
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"favorite_category": favorite,
		"videos":            vids,
	})
}

// loadRecentLikes returns the user's most recently liked videos with their
// category names, most recent like first.
func (h *Handler) loadRecentLikes(ctx context.Context, userID string) ([]LikedVideo, error) {
	rows, err := h.DB.QueryContext(ctx, `
		SELECT video_id FROM likes
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, sampleSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recent []LikedVideo
	for rows.Next() {
		var lv LikedVideo
		if err := rows.Scan(&lv.VideoID); err != nil {
			continue
		}
		recent = append(recent, lv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return recent, nil
	}

	ph := make([]string, len(recent))
	args := make([]interface{}, len(recent))
	byID := make(map[string]*LikedVideo, len(recent))
	for i := range recent {
		ph[i] = "?"
		args[i] = recent[i].VideoID
		byID[recent[i].VideoID] = &recent[i]
	}

	catRows, err := h.DB.QueryContext(ctx, `
		SELECT vc.video_id, c.name
		FROM video_categories vc
		JOIN categories c ON c.id = vc.category_id
		WHERE vc.video_id IN (`+strings.Join(ph, ",")+`)
		ORDER BY c.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer catRows.Close()

	for catRows.Next() {
		var videoID, name string
		if catRows.Scan(&videoID, &name) != nil {
			continue
		}
		if lv, ok := byID[videoID]; ok {
			lv.Categories = append(lv.Categories, name)
		}
	}
	return recent, catRows.Err()
}

// loadCandidates ranks approved videos in the favorite category that the
// user has never liked, by like count descending with id ascending as the
// deterministic tiebreak.
func (h *Handler) loadCandidates(ctx context.Context, userID, favorite string) ([]map[string]interface{}, error) {
	rows, err := h.DB.QueryContext(ctx, `
		SELECT v.id, v.link, v.description, v.like_count, v.created_at, u.username
		FROM videos v
		JOIN users u ON u.id = v.user_id
		WHERE v.status = 'approved'
		  AND EXISTS (
			SELECT 1 FROM video_categories vc
			JOIN categories c ON c.id = vc.category_id
			WHERE vc.video_id = v.id AND c.name = ?
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM likes l WHERE l.user_id = ? AND l.video_id = v.id
		  )
		ORDER BY v.like_count DESC, v.id ASC
		LIMIT ?`, favorite, userID, resultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vids := make([]map[string]interface{}, 0, resultLimit)
	for rows.Next() {
		var id, link, description, createdAt, username string
		var likeCount int
		if err := rows.Scan(&id, &link, &description, &likeCount, &createdAt, &username); err != nil {
			continue
		}
		vids = append(vids, map[string]interface{}{
			"id": id, "link": link, "description": description,
			"likes": likeCount, "created_at": createdAt, "user": username,
		})
	}
	return vids, rows.Err()
}
