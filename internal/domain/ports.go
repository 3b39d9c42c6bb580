package domain

import "context"

// PostSource discovers recent post candidates for an account.
type PostSource interface {
	// Discover returns up to a small fixed window of recent posts for the
	// account, mixed pinned/unpinned, in no guaranteed order.
	Discover(ctx context.Context, account string) ([]PostCandidate, error)
}

// DetailFetcher loads the expensive detail for a single post.
type DetailFetcher interface {
	// FetchDetail returns the detail for the post at url, or nil if the
	// post cannot be loaded. A nil detail is a miss, not an error.
	FetchDetail(ctx context.Context, url string) (*PostDetail, error)
}

// CommentGenerator turns a caption and its visual payload into a comment.
type CommentGenerator interface {
	Generate(ctx context.Context, caption string, visual VisualPayload) (string, error)
}

// CommentSubmitter posts a comment on the platform.
type CommentSubmitter interface {
	Submit(ctx context.Context, url, text string) error
}

// CommentLedger is the durable record of past engagements and the source of
// truth for the at-most-once guarantee.
type CommentLedger interface {
	// HasRecorded reports whether a record exists for the tuple. It must
	// observe all prior successful inserts from any process sharing the
	// store; a stale read here breaks the at-most-once guarantee.
	HasRecorded(ctx context.Context, platform, account, unitID string) (bool, error)

	// Insert appends a record. It returns false with a nil error when the
	// tuple already exists; uniqueness is enforced by the storage layer,
	// not by a check-then-insert.
	Insert(ctx context.Context, rec *CommentRecord) (bool, error)

	// Stats aggregates records within the trailing windowDays. An empty
	// account aggregates across all accounts.
	Stats(ctx context.Context, account string, windowDays int) (LedgerStats, error)

	// RecentRecords returns the most recent records, newest first.
	RecentRecords(ctx context.Context, limit int) ([]CommentRecord, error)
}
