// Package kiyoh talks to the Kiyoh publication and invite APIs.
package kiyoh

import (
	"bytes"
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

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
)

const (
	DefaultBaseURL  = "https://www.kiyoh.com"
	DefaultTenantID = "98"
	DefaultLimit    = 50
	DefaultLanguage = "en"

	tokenHeader  = "X-Publication-Api-Token"
	statsEntries = 64
)

var ErrMissingCredentials = errors.New("Kiyoh API credentials not configured")

// APIError is a non-2xx reply from Kiyoh.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

type Client struct {
	baseURL    string
	httpClient *http.Client
	stats      *expirable.LRU[string, *Statistics]
}

// NewClient builds a client. statsTTL of zero disables statistics caching.
func NewClient(baseURL string, timeout, statsTTL time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	if statsTTL > 0 {
		c.stats = expirable.NewLRU[string, *Statistics](statsEntries, nil, statsTTL)
	}
	return c
}

// FetchReviews lists reviews for the location, newest first by default.
func (c *Client) FetchReviews(ctx context.Context, creds Credentials, opts FetchOptions) (*ReviewsResponse, error) {
	if creds.APIKey == "" || creds.LocationID == "" {
		return nil, ErrMissingCredentials
	}

	q := url.Values{}
	q.Set("locationId", creds.LocationID)
	q.Set("tenantId", creds.tenant())
	if opts.DateSince != nil {
		q.Set("dateSince", opts.DateSince.Format(time.RFC3339))
	}
	if opts.UpdatedSince != nil {
		q.Set("updatedSince", opts.UpdatedSince.Format(time.RFC3339))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "CREATE_DATE"
	}
	q.Set("orderBy", orderBy)
	sortOrder := opts.SortOrder
	if sortOrder == "" {
		sortOrder = "DESC"
	}
	q.Set("sortOrder", sortOrder)

	var out ReviewsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/publication/review/external?"+q.Encode(), creds.APIKey, nil, &out); err != nil {
		return nil, err
	}
	logger.Infof("[Kiyoh] Fetched %d reviews for location %s", len(out.Reviews), creds.LocationID)
	return &out, nil
}

// PostResponse publishes a reply to a review.
func (c *Client) PostResponse(ctx context.Context, creds Credentials, reviewID, text string, responseType ResponseType, sendEmail bool) error {
	if creds.APIKey == "" || creds.LocationID == "" {
		return ErrMissingCredentials
	}
	if responseType == "" {
		responseType = ResponsePublic
	}
	body := map[string]string{
		"locationId":         creds.LocationID,
		"tenantId":           creds.tenant(),
		"reviewId":           reviewID,
		"response":           text,
		"reviewResponseType": string(responseType),
		"responseEmail":      strconv.FormatBool(sendEmail),
	}
	if err := c.do(ctx, http.MethodPut, "/v1/publication/review/response", creds.APIKey, body, nil); err != nil {
		return err
	}
	logger.Infof("[Kiyoh] Published %s response for review %s", responseType, reviewID)
	return nil
}

// SendInvite asks Kiyoh to email a review invitation.
func (c *Client) SendInvite(ctx context.Context, creds Credentials, inv Invite) error {
	if creds.APIKey == "" || creds.LocationID == "" {
		return ErrMissingCredentials
	}
	if inv.Language == "" {
		inv.Language = DefaultLanguage
	}
	body := struct {
		LocationID string `json:"location_id"`
		Invite
	}{creds.LocationID, inv}
	return c.do(ctx, http.MethodPost, "/v1/invite/external", creds.APIKey, body, nil)
}

// LocationStatistics returns aggregate rating data, served from cache when fresh.
func (c *Client) LocationStatistics(ctx context.Context, creds Credentials) (*Statistics, error) {
	if creds.APIKey == "" || creds.LocationID == "" {
		return nil, ErrMissingCredentials
	}
	key := creds.tenant() + "/" + creds.LocationID
	if c.stats != nil {
		if s, ok := c.stats.Get(key); ok {
			return s, nil
		}
	}

	var out Statistics
	path := "/v1/publication/review/external/location/statistics?locationId=" + url.QueryEscape(creds.LocationID)
	if err := c.do(ctx, http.MethodGet, path, creds.APIKey, nil, &out); err != nil {
		return nil, err
	}
	if c.stats != nil {
		c.stats.Add(key, &out)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal kiyoh request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(tokenHeader, token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warnf("[Kiyoh] %s %s failed: %v", method, req.URL.Path, err)
		return fmt.Errorf("kiyoh request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read kiyoh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
		logger.Warnf("[Kiyoh] %s %s returned %d: %s", method, req.URL.Path, resp.StatusCode, apiErr.Message)
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode kiyoh response: %w", err)
	}
	return nil
}

func errorMessage(status int, data []byte) string {
	var e apiError
	if json.Unmarshal(data, &e) == nil {
		if len(e.DetailedError) > 0 && e.DetailedError[0].Message != "" {
			return e.DetailedError[0].Message
		}
		if e.ErrorCode != "" {
			return e.ErrorCode
		}
	}
	return fmt.Sprintf("Kiyoh API error: %d", status)
}
