package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nvctranslator/nvcbot/internal/domain"
	apperrors "github.com/nvctranslator/nvcbot/internal/errors"
)

const defaultBaseURL = "https://api.twitter.com"

// Fetcher retrieves the bot's new mentions since a watermark.
type Fetcher interface {
	// FetchMentions returns the mentions created at or after since,
	// together with the referenced posts and authors needed to resolve
	// them. An empty batch is returned when nothing new exists.
	FetchMentions(ctx context.Context, since time.Time) (*domain.Batch, error)
}

// Publisher posts a reply referencing a source item.
type Publisher interface {
	PublishReply(ctx context.Context, inReplyTo, text string) error
}

// Credentials carries the token material for the Twitter API. The fields
// mirror the deployment's environment configuration and are opaque here.
type Credentials struct {
	BearerToken       string
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Client implements Fetcher and Publisher against the Twitter v2 API
type Client struct {
	baseURL     string
	userID      string
	readClient  *http.Client
	writeClient *http.Client
	rateLimiter RateLimiter
}

// NewClient creates a new Twitter API client for the given bot user.
// Reads use the app-only bearer token; writes use the user-context access
// token when present, falling back to the bearer token.
func NewClient(userID string, creds Credentials) *Client {
	ctx := context.Background()

	readTS := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.BearerToken})
	writeToken := creds.AccessToken
	if writeToken == "" {
		writeToken = creds.BearerToken
	}
	writeTS := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: writeToken})

	return &Client{
		baseURL:     defaultBaseURL,
		userID:      userID,
		readClient:  oauth2.NewClient(ctx, readTS),
		writeClient: oauth2.NewClient(ctx, writeTS),
		rateLimiter: NewRateLimiter(),
	}
}

// SetBaseURL overrides the API base URL. Used in tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// FetchMentions retrieves mentions of the bot account since the watermark
func (c *Client) FetchMentions(ctx context.Context, since time.Time) (*domain.Batch, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("start_time", since.UTC().Format(time.RFC3339))
	params.Set("tweet.fields", "created_at,author_id,in_reply_to_user_id,referenced_tweets")
	params.Set("expansions", "referenced_tweets.id,author_id,in_reply_to_user_id")
	params.Set("user.fields", "username")
	params.Set("max_results", "100")

	endpoint := fmt.Sprintf("%s/2/users/%s/mentions?%s", c.baseURL, c.userID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.readClient.Do(req)
	if err != nil {
		return nil, apperrors.NewUnavailableError("mentions fetch failed", err)
	}
	defer resp.Body.Close()

	c.updateRateLimitFromResponse(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "mentions fetch")
	}

	var payload mentionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.NewInternalError("failed to decode mentions response", err)
	}

	return toBatch(&payload), nil
}

// toBatch converts the wire payload into the domain batch
func toBatch(payload *mentionsResponse) *domain.Batch {
	batch := &domain.Batch{}

	for _, t := range payload.Data {
		m := &domain.Mention{
			ID:              t.ID,
			AuthorID:        t.AuthorID,
			Text:            t.Text,
			InReplyToUserID: t.InReplyToUserID,
		}
		if created, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			m.CreatedAt = created.UTC()
		}
		for _, ref := range t.ReferencedTweets {
			if ref.Type == "replied_to" {
				m.RepliedToID = ref.ID
				break
			}
		}
		batch.Mentions = append(batch.Mentions, m)
	}

	for _, t := range payload.Includes.Tweets {
		batch.Posts = append(batch.Posts, &domain.ReferencedPost{
			ID:       t.ID,
			AuthorID: t.AuthorID,
			Text:     t.Text,
		})
	}

	for _, u := range payload.Includes.Users {
		batch.Users = append(batch.Users, &domain.ReferencedUser{
			ID:       u.ID,
			Username: u.Username,
		})
	}

	return batch
}

// PublishReply posts a reply to the given tweet
func (c *Client) PublishReply(ctx context.Context, inReplyTo, text string) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(createTweetRequest{
		Text:  text,
		Reply: &replyBlock{InReplyToTweetID: inReplyTo},
	})
	if err != nil {
		return apperrors.NewInternalError("failed to encode reply", err)
	}

	endpoint := c.baseURL + "/2/tweets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.writeClient.Do(req)
	if err != nil {
		return apperrors.NewUnavailableError("reply publish failed", err)
	}
	defer resp.Body.Close()

	c.updateRateLimitFromResponse(resp)

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
		return nil
	}
	return c.statusError(resp, "reply publish")
}

// statusError maps a non-2xx response to the application error taxonomy
func (c *Client) statusError(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr apiError
	detail := ""
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		detail = apiErr.Detail
		if detail == "" && len(apiErr.Errors) > 0 {
			detail = apiErr.Errors[0].Message
		}
	}
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}

	msg := fmt.Sprintf("%s: status %d: %s", op, resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewUnauthorizedError(msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimitedError(msg)
	case resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(detail), "duplicate"):
		return apperrors.NewDuplicateError(msg)
	case resp.StatusCode == http.StatusForbidden:
		return apperrors.NewUnauthorizedError(msg)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError(op + " target")
	default:
		return apperrors.NewInternalError(msg, nil)
	}
}

// updateRateLimitFromResponse updates the rate limiter from API response headers
func (c *Client) updateRateLimitFromResponse(resp *http.Response) {
	remaining, err := strconv.Atoi(resp.Header.Get("x-rate-limit-remaining"))
	if err != nil {
		return
	}
	resetUnix, err := strconv.ParseInt(resp.Header.Get("x-rate-limit-reset"), 10, 64)
	if err != nil {
		return
	}
	c.rateLimiter.UpdateLimit(remaining, time.Unix(resetUnix, 0))
}
