package domain

import "time"

// ContentKind identifies the media type of an Instagram post.
type ContentKind string

const (
	ContentImage ContentKind = "image"
	ContentVideo ContentKind = "video"
	ContentReel  ContentKind = "reel"
)

// PostCandidate is a post surfaced by discovery for one account. Candidates
// arrive in grid order, not timestamp order, and may include pinned posts.
type PostCandidate struct {
	// UnitID is the platform's shortcode for the post.
	UnitID string

	// URL is the canonical post URL.
	URL string

	// Kind is the media type as detected from the grid.
	Kind ContentKind

	// PublishedAt is when the post was published.
	PublishedAt time.Time

	// IsPinned reports whether the post is pinned to the top of the grid.
	// Pinned status affects discovery inclusion only, never eligibility.
	IsPinned bool
}

// VisualPayload carries the media captured for the selected post: a single
// screenshot for images, or several frames for videos and reels.
type VisualPayload struct {
	Screenshot []byte
	Frames     [][]byte
}

// Empty reports whether no visual content was captured.
func (v VisualPayload) Empty() bool {
	return len(v.Screenshot) == 0 && len(v.Frames) == 0
}

// PostDetail is the expensive per-post data fetched lazily, only for the
// single candidate that survived selection.
type PostDetail struct {
	UnitID        string
	URL           string
	Caption       string
	CaptionLength int
	PublishedAt   time.Time
	Visual        VisualPayload
	Kind          ContentKind
}
