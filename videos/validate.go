package videos

import (
	"errors"
	"regexp"
)

// Only YouTube links are accepted; the pattern matches youtube.com (with or
// without www.), youtu.be, and the scheme-less forms users paste.
var youtubeLinkRe = regexp.MustCompile(`^(https?://)?((www\.)?youtube\.com|youtu\.be)/.+$`)

var (
	ErrNotYouTubeLink   = errors.New("this is not a valid YouTube link")
	ErrDuplicateLink    = errors.New("this video link has already been submitted")
	ErrBadCategoryCount = errors.New("a video must have 1 or 2 categories")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrNotFound         = errors.New("video not found")
	ErrForbidden        = errors.New("permission denied")
	ErrInvalidStatus    = errors.New("status must be pending, approved or denied")
	ErrImmutableField   = errors.New("link cannot be changed after submission")
)

// ValidateLink checks the YouTube-only link policy. Global uniqueness is
// checked against the store separately.
func ValidateLink(link string) error {
	if !youtubeLinkRe.MatchString(link) {
		return ErrNotYouTubeLink
	}
	return nil
}

// ValidateCategoryCount enforces the 1–2 categories submission rule.
func ValidateCategoryCount(ids []string) error {
	if len(ids) < 1 || len(ids) > 2 {
		return ErrBadCategoryCount
	}
	return nil
}
