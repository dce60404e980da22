package iqserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults for the shared HTTP transport. The client is used concurrently by
// the whole worker pool, so the pool sizes follow the fetch concurrency rather
// than net/http's conservative per-host default.
const (
	DefaultRequestTimeout = 30 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 20
	defaultIdleConnTimeout     = 30 * time.Second
)

// APIError is the uniform failure signal for every client operation. Callers
// must treat it as "no data available" for the request in question; the raw
// transport error, if any, is preserved for logging via Unwrap.
type APIError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s failed: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("GET %s failed: %v", e.Endpoint, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Client is a thin typed wrapper over the IQ server's v2 REST API. It issues
// authenticated GETs with a bounded timeout and no retries. Safe for
// concurrent use.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient builds a client for the given server. The base URL is used as-is
// after trailing-slash trimming; credentials are sent as basic auth on every
// request.
func NewClient(baseURL, username, password string, logger *zap.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   DefaultRequestTimeout,
		},
		log: logger.Named("iqserver"),
	}
}

// get issues one authenticated GET and returns the response body. Transport
// errors and non-2xx statuses both come back as *APIError.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	url := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	c.log.Debug("Issuing request", zap.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("Request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}

	c.log.Debug("Request completed",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("Request returned error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	return body, nil
}

// GetApplications lists every application visible to the credentials,
// optionally scoped to one organization. A response body without the
// "applications" key decodes as an empty list.
func (c *Client) GetApplications(ctx context.Context, orgID string) ([]Application, error) {
	endpoint := "/api/v2/applications"
	if orgID != "" {
		endpoint = "/api/v2/applications/organization/" + orgID
	}

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Applications []Application `json:"applications"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}

	c.log.Debug("Retrieved applications", zap.Int("count", len(payload.Applications)))
	return payload.Applications, nil
}

// GetOrganizations lists every organization. A response body without the
// "organizations" key decodes as an empty list.
func (c *Client) GetOrganizations(ctx context.Context) ([]Organization, error) {
	const endpoint = "/api/v2/organizations"

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Organizations []Organization `json:"organizations"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}

	c.log.Debug("Retrieved organizations", zap.Int("count", len(payload.Organizations)))
	return payload.Organizations, nil
}

// GetLatestReportInfo returns the most recent report info for one application,
// or nil when the server has no reports for it. The server returns the report
// list most recent first.
func (c *Client) GetLatestReportInfo(ctx context.Context, appID string) (*ReportInfo, error) {
	endpoint := "/api/v2/reports/applications/" + appID

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var reports []ReportInfo
	if err := json.Unmarshal(body, &reports); err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// GetPolicyViolations fetches the raw violation payload for one
// (publicId, reportId) pair. The body is returned undecoded so it can be
// staged on disk exactly as received.
func (c *Client) GetPolicyViolations(ctx context.Context, publicID, reportID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("/api/v2/applications/%s/reports/%s/policy?includeViolationTimes=true", publicID, reportID)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &APIError{Endpoint: endpoint, Err: fmt.Errorf("invalid JSON in response body")}
	}
	return json.RawMessage(body), nil
}
