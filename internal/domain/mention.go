package domain

import "time"

// Mention represents one fetched post by an external actor that references
// the bot account.
type Mention struct {
	ID              string
	AuthorID        string
	Text            string
	CreatedAt       time.Time
	InReplyToUserID string
	RepliedToID     string // post this mention replies to; empty when the mention is not a reply
}

// IsReply reports whether the mention references a previous post.
func (m *Mention) IsReply() bool {
	return m.RepliedToID != ""
}

// ReferencedPost is a post returned in the batch side-table, referenced by
// one or more mentions.
type ReferencedPost struct {
	ID       string
	AuthorID string
	Text     string
}

// ReferencedUser is an author profile returned in the batch side-table.
type ReferencedUser struct {
	ID       string
	Username string
}

// Batch is the set of mentions fetched in one poll cycle together with the
// reference graph needed to resolve them.
type Batch struct {
	Mentions []*Mention
	Posts    []*ReferencedPost
	Users    []*ReferencedUser
}

// Empty reports whether the batch carries no mentions.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Mentions) == 0
}

// NewestCreatedAt returns the maximum creation time across the batch.
// The zero time is returned for an empty batch.
func (b *Batch) NewestCreatedAt() time.Time {
	var newest time.Time
	if b == nil {
		return newest
	}
	for _, m := range b.Mentions {
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}
	return newest
}
