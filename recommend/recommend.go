package recommend

import "errors"

// ErrNoFavoriteCategory is returned when the user has no likes to derive a
// favorite category from.
var ErrNoFavoriteCategory = errors.New("no liked videos to derive a favorite category from")

// sampleSize is how many of the user's most recent likes feed the favorite
// computation; resultLimit caps the recommendation list.
const (
	sampleSize  = 7
	resultLimit = 5
)

// LikedVideo is one liked video's category names, ordered most recent like
// first by the caller.
type LikedVideo struct {
	VideoID    string
	Categories []string
}

// FavoriteCategory flattens the categories of the sampled likes into a
// multiset and returns the most frequent name. Ties go to the name
// encountered first while scanning from the most recent like, which makes
// the result deterministic for a given like history.
func FavoriteCategory(recent []LikedVideo) (string, error) {
	if len(recent) > sampleSize {
		recent = recent[:sampleSize]
	}

	counts := make(map[string]int)
	var order []string
	for _, lv := range recent {
		for _, name := range lv.Categories {
			if counts[name] == 0 {
				order = append(order, name)
			}
			counts[name]++
		}
	}
	if len(order) == 0 {
		return "", ErrNoFavoriteCategory
	}

	best := order[0]
	for _, name := range order[1:] {
		if counts[name] > counts[best] {
			best = name
		}
	}
	return best, nil
}
