// Package remote provides the HTTP client for the central sync API.
package remote

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/models"
)

// AcceptedMessage is the explicit acceptance marker of a push response.
const AcceptedMessage = "accepted"

// DefaultPageLimit is the page size requested from pull endpoints.
const DefaultPageLimit = 100

// RequestStatus is the server view of a push request.
type RequestStatus string

const (
	StatusSuccess  RequestStatus = "success"
	StatusFailed   RequestStatus = "failed"
	StatusPending  RequestStatus = "pending"
	StatusNotFound RequestStatus = "not_found"
)

// SortOrder is the order of pulled records by update time.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Config holds the remote client configuration.
type Config struct {
	BaseURL    string
	Token      string
	DeviceID   string
	TenantID   string
	LocationID string
	Timeout    time.Duration
}

// Client talks to the central sync API.
type Client struct {
	baseURL    string
	token      string
	deviceID   string
	tenantID   string
	locationID string
	httpClient *http.Client
}

// NewClient creates a new Client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		deviceID:   cfg.DeviceID,
		tenantID:   cfg.TenantID,
		locationID: cfg.LocationID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HTTPClient returns the underlying http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type pushBody struct {
	RequestID  string              `json:"requestId"`
	Operations []*models.Operation `json:"operations"`
}

type pushResponse struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Status RequestStatus `json:"status"`
}

// PullQuery selects one page of server-authored records.
type PullQuery struct {
	UpdatedSince time.Time
	Page         int
	Limit        int
	Sort         SortOrder
}

// PullPage is one page of a pull response. Count is the server-side total.
type PullPage struct {
	Results []stdjson.RawMessage `json:"results"`
	Count   int                  `json:"count"`
}

// Push transmits one batch of operations under requestID.
// Any response other than the acceptance marker is a PUSH_FAILED error.
func (c *Client) Push(ctx context.Context, entity, requestID string, ops []*models.Operation) error {
	body, err := json.Marshal(&pushBody{RequestID: requestID, Operations: ops})
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode push body", err)
	}

	var resp pushResponse
	status, err := c.do(ctx, http.MethodPost, "/sync/"+url.PathEscape(entity)+"/push", nil, body, &resp)
	if err != nil {
		if errors.Is(err, errors.ErrRemoteRejected) {
			return errors.Wrap(errors.ErrPushFailed, fmt.Sprintf("push of %s rejected", entity), err)
		}
		return err
	}
	if resp.Message != AcceptedMessage {
		return errors.Newf(errors.ErrPushFailed, "push of %s not accepted (status %d, message %q)", entity, status, resp.Message)
	}
	return nil
}

// PushStatus asks the server how it resolved requestID.
// A 404 is reported as StatusNotFound.
func (c *Client) PushStatus(ctx context.Context, requestID string) (RequestStatus, error) {
	var resp statusResponse
	status, err := c.do(ctx, http.MethodGet, "/sync/requests/"+url.PathEscape(requestID), nil, nil, &resp)
	if status == http.StatusNotFound {
		return StatusNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if resp.Status == "" {
		return StatusNotFound, nil
	}
	return resp.Status, nil
}

// Pull fetches one page of records of entity updated since q.UpdatedSince.
func (c *Client) Pull(ctx context.Context, entity string, q PullQuery) (*PullPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	sort := q.Sort
	if sort == "" {
		sort = SortAsc
	}

	params := url.Values{}
	params.Set("updatedSince", q.UpdatedSince.UTC().Format(time.RFC3339Nano))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", string(sort))
	if c.tenantID != "" {
		params.Set("tenantId", c.tenantID)
	}
	if c.locationID != "" {
		params.Set("locationId", c.locationID)
	}

	var page PullPage
	if _, err := c.do(ctx, http.MethodGet, "/sync/"+url.PathEscape(entity), params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Health reports whether the API answers its health endpoint with a 2xx.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
	return err
}

// do sends a request and decodes a JSON response into out when out is non-nil.
// Network failures map to TRANSPORT_FAILED and non-2xx responses to REMOTE_REJECTED.
// The HTTP status is returned whenever a response was received.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, out interface{}) (int, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(errors.ErrTransport, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(errors.ErrTransport, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errors.Newf(errors.ErrRemoteRejected, "%s %s returned %d: %s",
			method, path, resp.StatusCode, truncate(string(data), 200))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, errors.Wrap(errors.ErrRemoteRejected, fmt.Sprintf("invalid JSON from %s %s", method, path), err)
	}
	return resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsTransport reports whether err is a connectivity failure rather than a server answer.
func IsTransport(err error) bool {
	return errors.Is(err, errors.ErrTransport) || stderrors.Is(err, context.DeadlineExceeded)
}
