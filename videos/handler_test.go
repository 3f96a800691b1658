package videos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidshare/auth"
	"vidshare/db"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *db.CompatDB {
	t.Helper()
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)
	if _, err := raw.Exec("PRAGMA foreign_keys=ON"); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if err := db.RunMigrations(raw, db.DialectSQLite); err != nil {
		t.Fatalf("schema migration: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return db.NewCompatDB(raw, db.DialectSQLite)
}

func seedUser(t *testing.T, d *db.CompatDB, id string) {
	t.Helper()
	_, err := d.Exec(`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, 'x', ?)`,
		id, id, id+"@test.com", db.NowUTC())
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func seedCategory(t *testing.T, d *db.CompatDB, id, name string) {
	t.Helper()
	if _, err := d.Exec(`INSERT INTO categories (id, name) VALUES (?, ?)`, id, name); err != nil {
		t.Fatalf("seed category %s: %v", id, err)
	}
}

func seedVideo(t *testing.T, d *db.CompatDB, id, owner, status string, cats ...string) {
	t.Helper()
	_, err := d.Exec(`INSERT INTO videos (id, link, description, user_id, status, created_at)
		VALUES (?, ?, '', ?, ?, ?)`,
		id, "https://www.youtube.com/watch?v="+id, owner, status, db.NowUTC())
	if err != nil {
		t.Fatalf("seed video %s: %v", id, err)
	}
	for _, c := range cats {
		if _, err := d.Exec(`INSERT INTO video_categories (video_id, category_id) VALUES (?, ?)`, id, c); err != nil {
			t.Fatalf("seed video category: %v", err)
		}
	}
}

// withIdentity stores an authenticated identity on the request, the way the
// auth middleware does in production.
func withIdentity(r *http.Request, id auth.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), auth.IdentityKey, id))
}

// withChiParam injects a URL parameter so handlers can be tested without a
// full router.
func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeVideos(t *testing.T, rec *httptest.ResponseRecorder) []Video {
	t.Helper()
	var vids []Video
	if err := json.NewDecoder(rec.Body).Decode(&vids); err != nil {
		t.Fatalf("decode videos: %v", err)
	}
	return vids
}

func videoIDs(vids []Video) []string {
	ids := make([]string, len(vids))
	for i, v := range vids {
		ids[i] = v.ID
	}
	return ids
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	h := &Handler{DB: d}

	body := `{"link":"https://www.youtube.com/watch?v=abc123","description":"a song","categories":["c1"]}`
	req := withIdentity(httptest.NewRequest("POST", "/videos", strings.NewReader(body)),
		auth.Identity{UserID: "u1", Username: "u1"})
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	var v Video
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Status != StatusPending {
		t.Errorf("new submission status = %q, want pending", v.Status)
	}
	if v.Approved || v.Denied {
		t.Error("pending video must report approved=false denied=false")
	}
	if len(v.Categories) != 1 || v.Categories[0].Name != "Music" {
		t.Errorf("categories = %+v, want [Music]", v.Categories)
	}
	if v.User != "u1" {
		t.Errorf("user = %q, want u1", v.User)
	}
}

func TestCreate_RejectsNonYouTubeLink(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	h := &Handler{DB: d}

	body := `{"link":"https://vimeo.com/12345","categories":["c1"]}`
	req := withIdentity(httptest.NewRequest("POST", "/videos", strings.NewReader(body)),
		auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreate_DuplicateLink(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	h := &Handler{DB: d}

	body := `{"link":"https://www.youtube.com/watch?v=v1","categories":["c1"]}`
	req := withIdentity(httptest.NewRequest("POST", "/videos", strings.NewReader(body)),
		auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already") {
		t.Errorf("body = %s, want a duplicate-link message", rec.Body.String())
	}
}

func TestCreate_CategoryCountLimits(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	for i := 1; i <= 3; i++ {
		seedCategory(t, d, fmt.Sprintf("c%d", i), fmt.Sprintf("Cat%d", i))
	}
	h := &Handler{DB: d}

	for _, cats := range []string{`[]`, `["c1","c2","c3"]`} {
		body := `{"link":"https://youtu.be/xyz","categories":` + cats + `}`
		req := withIdentity(httptest.NewRequest("POST", "/videos", strings.NewReader(body)),
			auth.Identity{UserID: "u1"})
		rec := httptest.NewRecorder()
		h.HandleCreate(rec, req)
		if rec.Code != 400 {
			t.Errorf("categories %s: status = %d, want 400", cats, rec.Code)
		}
	}
}

func TestCreate_UnknownCategory(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	h := &Handler{DB: d}

	body := `{"link":"https://youtu.be/xyz","categories":["nope"]}`
	req := withIdentity(httptest.NewRequest("POST", "/videos", strings.NewReader(body)),
		auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- List ---

func TestList_RegularSeesOnlyApproved(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	seedVideo(t, d, "v2", "u1", StatusPending, "c1")
	seedVideo(t, d, "v3", "u1", StatusDenied, "c1")
	h := &Handler{DB: d}

	req := withIdentity(httptest.NewRequest("GET", "/videos", nil), auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	got := videoIDs(decodeVideos(t, rec))
	if len(got) != 1 || got[0] != "v1" {
		t.Errorf("visible videos = %v, want [v1]", got)
	}
}

func TestList_StaffSeesEverything(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	seedVideo(t, d, "v2", "u1", StatusPending, "c1")
	seedVideo(t, d, "v3", "u1", StatusDenied, "c1")
	h := &Handler{DB: d}

	req := withIdentity(httptest.NewRequest("GET", "/videos", nil),
		auth.Identity{UserID: "mod", IsStaff: true})
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	got := videoIDs(decodeVideos(t, rec))
	if len(got) != 3 {
		t.Errorf("staff sees %v, want all three", got)
	}
}

func TestList_StaffStatusFilter(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	seedVideo(t, d, "v2", "u1", StatusPending, "c1")
	h := &Handler{DB: d}

	req := withIdentity(httptest.NewRequest("GET", "/videos?status=pending", nil),
		auth.Identity{UserID: "mod", IsStaff: true})
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	got := videoIDs(decodeVideos(t, rec))
	if len(got) != 1 || got[0] != "v2" {
		t.Errorf("pending filter returned %v, want [v2]", got)
	}
}

func TestList_CategoryIntersection(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedCategory(t, d, "c2", "Science")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	seedVideo(t, d, "v2", "u1", StatusApproved, "c1", "c2")
	seedVideo(t, d, "v3", "u1", StatusApproved, "c2")
	h := &Handler{DB: d}

	req := httptest.NewRequest("GET", "/videos?category_1=c1&category_2=c2", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	got := videoIDs(decodeVideos(t, rec))
	if len(got) != 1 || got[0] != "v2" {
		t.Errorf("intersection returned %v, want [v2]", got)
	}
}

func TestList_AnonymousIsServed(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	seedVideo(t, d, "v2", "u1", StatusPending, "c1")
	h := &Handler{DB: d}

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/videos", nil))

	got := videoIDs(decodeVideos(t, rec))
	if len(got) != 1 || got[0] != "v1" {
		t.Errorf("anonymous sees %v, want [v1]", got)
	}
}

// --- Get ---

func TestGet_PendingHiddenFromOthers(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "owner")
	seedUser(t, d, "other")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "owner", StatusPending, "c1")
	h := &Handler{DB: d}

	cases := []struct {
		name string
		id   auth.Identity
		want int
	}{
		{"owner", auth.Identity{UserID: "owner"}, 200},
		{"moderator", auth.Identity{UserID: "mod", IsStaff: true}, 200},
		{"other user", auth.Identity{UserID: "other"}, 404},
		{"anonymous", auth.Identity{}, 404},
	}
	for _, tc := range cases {
		req := withChiParam(httptest.NewRequest("GET", "/videos/v1", nil), "id", "v1")
		if tc.id.UserID != "" {
			req = withIdentity(req, tc.id)
		}
		rec := httptest.NewRecorder()
		h.HandleGet(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	h := &Handler{DB: newTestDB(t)}
	req := withChiParam(httptest.NewRequest("GET", "/videos/nope", nil), "id", "nope")
	rec := httptest.NewRecorder()
	h.HandleGet(rec, req)
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// --- Update ---

func TestUpdate_OwnerEditsDescription(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	h := &Handler{DB: d}

	body := `{"description":"updated"}`
	req := withIdentity(withChiParam(httptest.NewRequest("PUT", "/videos/v1", strings.NewReader(body)), "id", "v1"),
		auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleUpdate(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	var v Video
	json.NewDecoder(rec.Body).Decode(&v)
	if v.Description != "updated" {
		t.Errorf("description = %q, want updated", v.Description)
	}
}

func TestUpdate_StrangerForbidden(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedUser(t, d, "u2")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	h := &Handler{DB: d}

	body := `{"description":"hijacked"}`
	req := withIdentity(withChiParam(httptest.NewRequest("PUT", "/videos/v1", strings.NewReader(body)), "id", "v1"),
		auth.Identity{UserID: "u2"})
	rec := httptest.NewRecorder()
	h.HandleUpdate(rec, req)

	if rec.Code != 403 {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestUpdate_LinkIsImmutable(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	h := &Handler{DB: d}

	body := `{"link":"https://www.youtube.com/watch?v=other"}`
	req := withIdentity(withChiParam(httptest.NewRequest("PUT", "/videos/v1", strings.NewReader(body)), "id", "v1"),
		auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleUpdate(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdate_StatusChangeRequiresModerator(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusPending, "c1")
	h := &Handler{DB: d}

	body := `{"status":"approved"}`
	req := withIdentity(withChiParam(httptest.NewRequest("PUT", "/videos/v1", strings.NewReader(body)), "id", "v1"),
		auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleUpdate(rec, req)
	if rec.Code != 403 {
		t.Errorf("owner setting status: %d, want 403", rec.Code)
	}

	req = withIdentity(withChiParam(httptest.NewRequest("PUT", "/videos/v1", strings.NewReader(body)), "id", "v1"),
		auth.Identity{UserID: "mod", IsStaff: true})
	rec = httptest.NewRecorder()
	h.HandleUpdate(rec, req)
	if rec.Code != 200 {
		t.Fatalf("moderator setting status: %d; body: %s", rec.Code, rec.Body.String())
	}
	var v Video
	json.NewDecoder(rec.Body).Decode(&v)
	if v.Status != StatusApproved || !v.Approved {
		t.Errorf("status = %q approved = %v, want approved/true", v.Status, v.Approved)
	}
}

func TestUpdate_ReplaceCategories(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedCategory(t, d, "c2", "Science")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	h := &Handler{DB: d}

	body := `{"categories":["c2"]}`
	req := withIdentity(withChiParam(httptest.NewRequest("PUT", "/videos/v1", strings.NewReader(body)), "id", "v1"),
		auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleUpdate(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var v Video
	json.NewDecoder(rec.Body).Decode(&v)
	if len(v.Categories) != 1 || v.Categories[0].ID != "c2" {
		t.Errorf("categories = %+v, want [c2]", v.Categories)
	}
}

// --- Delete ---

func TestDelete_OwnerAndStranger(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedUser(t, d, "u2")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	h := &Handler{DB: d}

	req := withIdentity(withChiParam(httptest.NewRequest("DELETE", "/videos/v1", nil), "id", "v1"),
		auth.Identity{UserID: "u2"})
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)
	if rec.Code != 403 {
		t.Errorf("stranger delete: %d, want 403", rec.Code)
	}

	req = withIdentity(withChiParam(httptest.NewRequest("DELETE", "/videos/v1", nil), "id", "v1"),
		auth.Identity{UserID: "u1"})
	rec = httptest.NewRecorder()
	h.HandleDelete(rec, req)
	if rec.Code != 200 {
		t.Errorf("owner delete: %d, want 200", rec.Code)
	}

	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM videos WHERE id = 'v1'`).Scan(&n); err != nil || n != 0 {
		t.Errorf("video still present after delete (n=%d, err=%v)", n, err)
	}
}

// --- Moderate ---

func TestModerate_SetsStatus(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusPending, "c1")
	h := &Handler{DB: d}

	for _, status := range []string{StatusApproved, StatusDenied, StatusPending} {
		body := fmt.Sprintf(`{"status":%q}`, status)
		req := withChiParam(httptest.NewRequest("PATCH", "/videos/v1/moderate", strings.NewReader(body)), "id", "v1")
		rec := httptest.NewRecorder()
		h.HandleModerate(rec, req)
		if rec.Code != 200 {
			t.Fatalf("set %s: status = %d", status, rec.Code)
		}
		var got string
		d.QueryRow(`SELECT status FROM videos WHERE id = 'v1'`).Scan(&got)
		if got != status {
			t.Errorf("stored status = %q, want %q", got, status)
		}
	}
}

func TestModerate_InvalidStatus(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusPending, "c1")
	h := &Handler{DB: d}

	req := withChiParam(httptest.NewRequest("PATCH", "/videos/v1/moderate", strings.NewReader(`{"status":"published"}`)), "id", "v1")
	rec := httptest.NewRecorder()
	h.HandleModerate(rec, req)
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestModerate_UnknownVideo(t *testing.T) {
	h := &Handler{DB: newTestDB(t)}
	req := withChiParam(httptest.NewRequest("PATCH", "/videos/nope/moderate", strings.NewReader(`{"status":"approved"}`)), "id", "nope")
	rec := httptest.NewRecorder()
	h.HandleModerate(rec, req)
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// --- User videos ---

func TestUserVideos_AllStatesOwnOnly(t *testing.T) {
	d := newTestDB(t)
	seedUser(t, d, "u1")
	seedUser(t, d, "u2")
	seedCategory(t, d, "c1", "Music")
	seedVideo(t, d, "v1", "u1", StatusApproved, "c1")
	seedVideo(t, d, "v2", "u1", StatusPending, "c1")
	seedVideo(t, d, "v3", "u2", StatusApproved, "c1")
	h := &Handler{DB: d}

	req := withIdentity(httptest.NewRequest("GET", "/api/user-videos", nil), auth.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	h.HandleUserVideos(rec, req)

	got := videoIDs(decodeVideos(t, rec))
	if len(got) != 2 {
		t.Fatalf("own videos = %v, want v1 and v2", got)
	}
	for _, id := range got {
		if id == "v3" {
			t.Error("another user's video leaked into user-videos")
		}
	}
}
