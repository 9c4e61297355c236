package rewriter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nvctranslator/nvcbot/pkg/logging"
)

// Result is the tagged outcome of one rewrite call: rewritten text, or
// none. Absence signals "skip this item", not a hard failure.
type Result struct {
	Text string
	OK   bool
}

// None returns the absent result.
func None() Result {
	return Result{}
}

// Rewriter converts source text into its rewritten form.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) Result
}

// client implements Rewriter against the nvctranslator endpoint
type client struct {
	url        string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient creates a new rewrite service client
func NewClient(url string, logger logging.Logger) Rewriter {
	return &client{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// rephrasedPattern extracts the rewritten segments embedded in the
// service's translation field.
var rephrasedPattern = regexp.MustCompile(`rephrased_txt: "(.*?)"`)

// translationPayload is the service's ad-hoc response shape: an array
// whose first element carries the translation.
type translationPayload []struct {
	Translation string `json:"translation"`
}

// Rewrite sends text to the rewrite service and normalizes the response.
// Every failure mode short-circuits to the absent result; retries belong
// to the outer poll cycle, not to individual items.
func (c *client) Rewrite(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("no text provided to rewrite")
		return None()
	}

	// Embedded paragraph breaks confuse the service; flatten them.
	text = strings.ReplaceAll(text, "\n\n", " ")

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		c.logger.Error("failed to encode rewrite request", logging.Err(err))
		return None()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("failed to build rewrite request", logging.Err(err))
		return None()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("rewrite request failed", logging.Err(err))
		return None()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("rewrite service returned error status", logging.F("status", resp.StatusCode))
		return None()
	}

	var payload translationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Error("failed to decode rewrite response", logging.Err(err))
		return None()
	}
	if len(payload) == 0 {
		c.logger.Warn("rewrite response carried no translation")
		return None()
	}

	matches := rephrasedPattern.FindAllStringSubmatch(payload[0].Translation, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m[1])
	}

	rewritten := strings.TrimSpace(strings.Join(parts, " "))
	if rewritten == "" {
		c.logger.Warn("rewrite response carried no rephrased text")
		return None()
	}

	return Result{Text: rewritten, OK: true}
}
