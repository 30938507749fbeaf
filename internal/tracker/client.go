// Package tracker is a minimal client for the issue tracker's REST API.
// It covers the endpoints the import pipeline needs: project issue-type
// discovery, user search, and batch issue creation.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/meridianhq/issueboard/internal/config"
)

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an issue tracker API client
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient HTTPDoer
}

// NewClient creates a new tracker API client. Requests use basic auth
// with the account email and API token. No retries are performed: a
// failed call surfaces immediately and the caller decides whether to
// re-initiate the whole operation.
func NewClient(cfg config.TrackerConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// APIError is a non-2xx response from the tracker
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker API error (status %d): %s", e.StatusCode, e.Body)
}

// doRequest makes an HTTP request to the tracker API
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// GetProjectIssueTypes fetches the issue types permitted in a project
func (c *Client) GetProjectIssueTypes(ctx context.Context, projectID string) ([]IssueType, error) {
	params := url.Values{}
	params.Set("projectId", projectID)

	body, err := c.doRequest(ctx, http.MethodGet, "/issuetype/project", params, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching issue types for project %s: %w", projectID, err)
	}

	var types []IssueType
	if err := json.Unmarshal(body, &types); err != nil {
		return nil, fmt.Errorf("parsing issue types response: %w", err)
	}

	return types, nil
}

// SearchUsers queries user search with the given text (typically an email).
// maxResults <= 0 uses the server default.
func (c *Client) SearchUsers(ctx context.Context, query string, maxResults int) ([]User, error) {
	params := url.Values{}
	params.Set("query", query)
	if maxResults > 0 {
		params.Set("maxResults", strconv.Itoa(maxResults))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/user/search", params, nil)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}

	var users []User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("parsing user search response: %w", err)
	}

	return users, nil
}

// BulkCreateIssues submits all payloads as one batch-create call.
// A transport or auth failure means nothing was created. A 2xx response
// can still carry per-element rejections in the returned Errors list.
func (c *Client) BulkCreateIssues(ctx context.Context, payloads []IssuePayload) (*BulkCreateResponse, error) {
	req := BulkCreateRequest{IssueUpdates: payloads}

	body, err := c.doRequest(ctx, http.MethodPost, "/issue/bulk", nil, req)
	if err != nil {
		return nil, fmt.Errorf("bulk create: %w", err)
	}

	var resp BulkCreateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing bulk create response: %w", err)
	}

	return &resp, nil
}

// Ping verifies the tracker is reachable with the configured credentials.
// Used by the health check; any authenticated endpoint would do.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("query", c.email)
	params.Set("maxResults", "1")
	_, err := c.doRequest(ctx, http.MethodGet, "/user/search", params, nil)
	return err
}
