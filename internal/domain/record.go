package domain

import "time"

// CommentRecord is the durable ledger entry for one engagement attempt. The
// tuple (Platform, Account, UnitID) is unique across all records; that
// uniqueness is the sole mechanism preventing duplicate engagement. Records
// are append-only and never mutated after insert.
type CommentRecord struct {
	Platform      string            `json:"platform"`
	Account       string            `json:"account"`
	UnitID        string            `json:"unitId"`
	URL           string            `json:"url"`
	CaptionLength int               `json:"captionLength"`
	Caption       string            `json:"caption"`
	CommentText   string            `json:"commentText"`
	Succeeded     bool              `json:"succeeded"`
	RecordedAt    time.Time         `json:"recordedAt"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// LedgerStats is an aggregate over CommentRecord.RecordedAt within a
// trailing window.
type LedgerStats struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}
