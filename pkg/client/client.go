package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the API client for the nvcbot status server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status is the bot's current pipeline status
type Status struct {
	Watermark *string `json:"watermark"`
	Stats     struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
	} `json:"stats"`
}

// Outcome is one recorded item disposition
type Outcome struct {
	ID        string    `json:"id"`
	CycleID   string    `json:"cycle_id"`
	MentionID string    `json:"mention_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetStatus retrieves the current watermark and outcome statistics
func (c *Client) GetStatus() (*Status, error) {
	var response struct {
		Data *Status `json:"data"`
	}
	if err := c.get("/api/v1/status", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetOutcomes retrieves the most recent item outcomes
func (c *Client) GetOutcomes(limit int) ([]*Outcome, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*Outcome `json:"data"`
	}
	if err := c.get("/api/v1/outcomes", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
