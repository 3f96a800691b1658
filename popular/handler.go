package popular

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"vidshare/httputil"
)

// Handler fetches trending videos from an external metadata provider and
// condenses their descriptions through an external summarization provider.
// Both are opaque collaborators reached over plain HTTP; there is no retry
// policy and no caching.
type Handler struct {
	MetadataURL   string
	SummarizerURL string
	Client        *http.Client
}

// PopularVideo is one item from the metadata provider, with its description
// replaced by a summary when the summarizer is reachable.
type PopularVideo struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Summarized  bool   `json:"summarized"`
}

func (h *Handler) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// HandleGetPopular returns the provider's trending list. A summarizer
// failure degrades to the original description; a metadata-provider failure
// fails the request.
func (h *Handler) HandleGetPopular(w http.ResponseWriter, r *http.Request) {
	if h.MetadataURL == "" {
		httputil.Error(w, 503, "popular videos are not configured")
		return
	}

	items, err := h.fetchTrending()
	if err != nil {
		log.Printf("popular: metadata provider failed: %v", err)
		httputil.Error(w, 502, "video metadata provider unavailable")
		return
	}

	for i := range items {
		summary, err := h.summarize(items[i].Description)
		if err != nil {
			// Degrade to the provider's original description.
			log.Printf("popular: summarizer failed for %q: %v", items[i].Link, err)
			continue
		}
		if summary != "" {
			items[i].Description = summary
			items[i].Summarized = true
		}
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{"videos": items})
}

func (h *Handler) fetchTrending() ([]PopularVideo, error) {
	resp, err := h.client().Get(h.MetadataURL + "/trending")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("metadata request failed: status=%d", resp.StatusCode)
	}

	var items []PopularVideo
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	return items, nil
}

func (h *Handler) summarize(text string) (string, error) {
	if h.SummarizerURL == "" || text == "" {
		return "", nil
	}

	body, _ := json.Marshal(map[string]string{"text": text})
	resp, err := h.client().Post(h.SummarizerURL+"/summarize", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("summarizer request failed: status=%d", resp.StatusCode)
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summarizer response: %w", err)
	}
	return out.Summary, nil
}
