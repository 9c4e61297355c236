package twitter

// Wire types for the Twitter v2 API surface the bot touches.

// mentionsResponse is the GET /2/users/:id/mentions payload.
type mentionsResponse struct {
	Data     []tweetObject    `json:"data"`
	Includes includesObject   `json:"includes"`
	Meta     mentionsMeta     `json:"meta"`
	Errors   []apiErrorDetail `json:"errors"`
}

type tweetObject struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	AuthorID         string            `json:"author_id"`
	CreatedAt        string            `json:"created_at"`
	InReplyToUserID  string            `json:"in_reply_to_user_id"`
	ReferencedTweets []referencedTweet `json:"referenced_tweets"`
}

type referencedTweet struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type includesObject struct {
	Tweets []tweetObject `json:"tweets"`
	Users  []userObject  `json:"users"`
}

type userObject struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type mentionsMeta struct {
	ResultCount int    `json:"result_count"`
	NewestID    string `json:"newest_id"`
	OldestID    string `json:"oldest_id"`
}

// createTweetRequest is the POST /2/tweets payload.
type createTweetRequest struct {
	Text  string      `json:"text"`
	Reply *replyBlock `json:"reply,omitempty"`
}

type replyBlock struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

// apiError is the error envelope for non-2xx responses.
type apiError struct {
	Title  string           `json:"title"`
	Detail string           `json:"detail"`
	Type   string           `json:"type"`
	Status int              `json:"status"`
	Errors []apiErrorDetail `json:"errors"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}
