package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"peercall/native/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client fetches interview details from the REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an API client for baseURL. A nil httpClient uses a
// client with a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// FetchInterview calls GET /api/v1/interview/{room_id} with the bearer token.
func (c *Client) FetchInterview(ctx context.Context, token, roomID string) (*domain.Interview, error) {
	endpoint := c.baseURL + "/api/v1/interview/" + url.PathEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var interview domain.Interview
	if err := json.Unmarshal(body, &interview); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if interview.RoomID == "" {
		interview.RoomID = roomID
	}
	return &interview, nil
}
