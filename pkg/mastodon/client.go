package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Mastodon REST client covering the endpoints the bot
// needs: trending statuses, the local timeline, reblogging, search-resolve,
// and profile updates.
type Client struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

// NewClient creates a client for the given instance. The server may be a bare
// hostname or a full https URL. An empty access token yields an
// unauthenticated client, which is enough for public trending endpoints.
func NewClient(server, accessToken string) *Client {
	base := server
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Client{
		baseURL:     strings.TrimRight(base, "/"),
		accessToken: accessToken,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the Mastodon API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("mastodon: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("mastodon: status %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsPermissionDenied reports whether err is a 401/403 from the API.
func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// TrendingStatuses fetches the instance's trending statuses (public endpoint).
func (c *Client) TrendingStatuses(ctx context.Context, limit int) ([]*Status, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var statuses []*Status
	if err := c.get(ctx, "/api/v1/trends/statuses", q, &statuses); err != nil {
		return nil, fmt.Errorf("fetch trending statuses: %w", err)
	}
	return statuses, nil
}

// LocalTimeline fetches the most recent statuses from the instance's local
// public timeline.
func (c *Client) LocalTimeline(ctx context.Context, limit int) ([]*Status, error) {
	q := url.Values{}
	q.Set("local", "true")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var statuses []*Status
	if err := c.get(ctx, "/api/v1/timelines/public", q, &statuses); err != nil {
		return nil, fmt.Errorf("fetch local timeline: %w", err)
	}
	return statuses, nil
}

// Reblog boosts the status with the given local ID.
func (c *Client) Reblog(ctx context.Context, id string) (*Status, error) {
	var boosted Status
	path := fmt.Sprintf("/api/v1/statuses/%s/reblog", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &boosted); err != nil {
		return nil, err
	}
	return &boosted, nil
}

// ResolveStatus federates a remote status into the local instance via
// search with resolve=true and returns the local copy, or nil when the
// search came back empty.
func (c *Client) ResolveStatus(ctx context.Context, uri string) (*Status, error) {
	q := url.Values{}
	q.Set("q", uri)
	q.Set("type", "statuses")
	q.Set("resolve", "true")

	var result struct {
		Statuses []*Status `json:"statuses"`
	}
	if err := c.get(ctx, "/api/v2/search", q, &result); err != nil {
		return nil, fmt.Errorf("resolve status %s: %w", uri, err)
	}
	if len(result.Statuses) == 0 {
		return nil, nil
	}
	return result.Statuses[0], nil
}

// ProfileField is a name/value pair shown on the bot's profile.
type ProfileField struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// UpdateCredentials updates the bot account's profile note and metadata
// fields, and marks the account as a discoverable bot.
func (c *Client) UpdateCredentials(ctx context.Context, note string, fields []ProfileField) error {
	form := url.Values{}
	form.Set("note", note)
	form.Set("bot", "true")
	form.Set("discoverable", "true")
	for i, f := range fields {
		form.Set(fmt.Sprintf("fields_attributes[%d][name]", i), f.Name)
		form.Set(fmt.Sprintf("fields_attributes[%d][value]", i), f.Value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/api/v1/accounts/update_credentials", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create update credentials request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, target, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &payload)
	return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
}
