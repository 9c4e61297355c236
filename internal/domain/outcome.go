package domain

import "time"

// OutcomeStatus is the terminal disposition of one mention in one cycle.
type OutcomeStatus string

const (
	OutcomePublished      OutcomeStatus = "published"
	OutcomeRewriteSkipped OutcomeStatus = "rewrite_skipped"
	OutcomePublishFailed  OutcomeStatus = "publish_failed"
	OutcomeNotReply       OutcomeStatus = "not_reply"
	OutcomeUnresolvable   OutcomeStatus = "unresolvable"
	OutcomeSkipSelf       OutcomeStatus = "skip_self"
)

// ItemOutcome records how a single mention was disposed of.
type ItemOutcome struct {
	ID        string
	CycleID   string
	MentionID string
	Status    OutcomeStatus
	Detail    string
	CreatedAt time.Time
}

// CycleReport summarizes one completed poll cycle.
type CycleReport struct {
	CycleID      string
	Fetched      int
	Counts       map[OutcomeStatus]int
	OldWatermark time.Time
	NewWatermark time.Time
	Advanced     bool
}

// Count returns the number of items disposed with the given status.
func (r *CycleReport) Count(status OutcomeStatus) int {
	if r == nil || r.Counts == nil {
		return 0
	}
	return r.Counts[status]
}

// OutcomeStats aggregates the persisted outcome history.
type OutcomeStats struct {
	Total    int64                   `json:"total"`
	ByStatus map[OutcomeStatus]int64 `json:"by_status"`
}
