package domain

// ResolutionStatus classifies a single mention after resolution.
type ResolutionStatus string

const (
	// ResolutionProcess marks a genuine reply-mention with a resolved task.
	ResolutionProcess ResolutionStatus = "process"
	// ResolutionNotReply marks a mention that does not reply to any post.
	ResolutionNotReply ResolutionStatus = "not_reply"
	// ResolutionUnresolvable marks a reply whose original post or author
	// could not be located in the reference graph.
	ResolutionUnresolvable ResolutionStatus = "unresolvable"
	// ResolutionSkipSelf marks a reply to the bot's own output.
	ResolutionSkipSelf ResolutionStatus = "skip_self"
)

// ResolvedTask is the actionable unit derived from a reply-mention.
// It lives only for the duration of one cycle.
type ResolvedTask struct {
	MentionID      string
	OriginalText   string
	OriginalAuthor string // handle of the author whose post gets rewritten
	ReplyToAuthor  string // handle of the user who mentioned the bot
}

// Resolution is the tagged outcome of resolving one mention.
// Task is non-nil only when Status is ResolutionProcess.
type Resolution struct {
	Mention *Mention
	Status  ResolutionStatus
	Task    *ResolvedTask
}
