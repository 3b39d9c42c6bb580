package domain

// Action classifies the terminal outcome of one account's pipeline run.
type Action string

const (
	// ActionEngaged means a comment was submitted and recorded.
	ActionEngaged Action = "engaged"

	// ActionSkipped means no eligible work was found. Skips are successful
	// outcomes, not errors.
	ActionSkipped Action = "skipped"

	// ActionFailed means a collaborator or the ledger failed for this
	// account. Failures never abort sibling accounts.
	ActionFailed Action = "failed"
)

// CommentResult is the transient per-account outcome returned up the call
// chain. It is never persisted as-is.
type CommentResult struct {
	Account       string `json:"account"`
	Succeeded     bool   `json:"succeeded"`
	Action        Action `json:"action"`
	Reason        string `json:"reason,omitempty"`
	UnitID        string `json:"unitId,omitempty"`
	URL           string `json:"url,omitempty"`
	CaptionLength int    `json:"captionLength,omitempty"`
	CommentText   string `json:"commentText,omitempty"`
}

// Skipped builds a successful no-work result.
func Skipped(account, reason string) CommentResult {
	return CommentResult{
		Account:   account,
		Succeeded: true,
		Action:    ActionSkipped,
		Reason:    reason,
	}
}

// Failed builds a failure result for one account.
func Failed(account, reason string) CommentResult {
	return CommentResult{
		Account: account,
		Action:  ActionFailed,
		Reason:  reason,
	}
}
