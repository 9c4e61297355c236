package resolver

import (
	"strings"

	"github.com/nvctranslator/nvcbot/internal/domain"
)

// Resolver classifies a fetched batch of mentions into actionable tasks.
type Resolver interface {
	// Resolve produces exactly one Resolution per mention, in arrival order.
	Resolve(batch *domain.Batch) []*domain.Resolution
}

// mentionResolver implements Resolver for the reply-mention pipeline
type mentionResolver struct {
	botHandle string
}

// NewResolver creates a new mention resolver. botHandle is the bot's own
// username, used to guard against rewriting the bot's own output.
func NewResolver(botHandle string) Resolver {
	return &mentionResolver{botHandle: botHandle}
}

// batchIndex provides O(1) lookups into the batch's reference graph.
// Built once per batch instead of scanning the side-tables per mention.
type batchIndex struct {
	posts map[string]*domain.ReferencedPost
	users map[string]*domain.ReferencedUser
}

func newBatchIndex(batch *domain.Batch) *batchIndex {
	idx := &batchIndex{
		posts: make(map[string]*domain.ReferencedPost, len(batch.Posts)),
		users: make(map[string]*domain.ReferencedUser, len(batch.Users)),
	}
	for _, p := range batch.Posts {
		idx.posts[p.ID] = p
	}
	for _, u := range batch.Users {
		idx.users[u.ID] = u
	}
	return idx
}

// Resolve classifies every mention in the batch. Partial or malformed
// reference graphs are the normal case: a mention whose references cannot
// be located is classified, never dropped and never an error.
func (r *mentionResolver) Resolve(batch *domain.Batch) []*domain.Resolution {
	if batch.Empty() {
		return nil
	}

	idx := newBatchIndex(batch)
	resolutions := make([]*domain.Resolution, 0, len(batch.Mentions))

	for _, m := range batch.Mentions {
		resolutions = append(resolutions, r.resolveOne(m, idx))
	}
	return resolutions
}

func (r *mentionResolver) resolveOne(m *domain.Mention, idx *batchIndex) *domain.Resolution {
	if !m.IsReply() {
		return &domain.Resolution{Mention: m, Status: domain.ResolutionNotReply}
	}

	// The referenced post existed in the API's graph traversal but may be
	// absent from the side-table, e.g. when it has since been deleted.
	post, ok := idx.posts[m.RepliedToID]
	if !ok {
		return &domain.Resolution{Mention: m, Status: domain.ResolutionUnresolvable}
	}

	author, ok := idx.users[post.AuthorID]
	if !ok || author.Username == "" {
		return &domain.Resolution{Mention: m, Status: domain.ResolutionUnresolvable}
	}

	// Never feed the bot's own output back into the rewriter.
	if strings.EqualFold(author.Username, r.botHandle) {
		return &domain.Resolution{Mention: m, Status: domain.ResolutionSkipSelf}
	}

	// The replying user's handle may legitimately be missing from the
	// side-table; it is informational and never guessed.
	replyTo := ""
	if u, ok := idx.users[m.AuthorID]; ok {
		replyTo = u.Username
	}

	return &domain.Resolution{
		Mention: m,
		Status:  domain.ResolutionProcess,
		Task: &domain.ResolvedTask{
			MentionID:      m.ID,
			OriginalText:   post.Text,
			OriginalAuthor: author.Username,
			ReplyToAuthor:  replyTo,
		},
	}
}
