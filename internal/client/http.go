package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Endpoint paths, relative to the user-supplied server URL.
const (
	PathConsentRegister = "/v1/consent/register"
	PathIncidentStart   = "/v1/incident/start"
	PathIncidentUpdate  = "/v1/incident/update"
	PathIncidentStop    = "/v1/incident/stop"
)

const defaultTimeout = 10 * time.Second

var defaultHTTP = &http.Client{Timeout: defaultTimeout}

// HTTPClient makes REST calls to a Lifeline incident server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g.
// "https://lifeline.example.org"). A non-empty token is attached to every
// request as a bearer credential.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  defaultHTTP,
	}
}

// RegisterConsent sends POST /v1/consent/register. It is the only call made
// without a bearer token.
func (c *HTTPClient) RegisterConsent(ctx context.Context, rec ConsentRecord) (*ConsentResponse, error) {
	var out ConsentResponse
	if err := c.do(ctx, http.MethodPost, PathConsentRegister, false, rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartIncident sends POST /v1/incident/start.
func (c *HTTPClient) StartIncident(ctx context.Context, body IncidentStart) error {
	return c.do(ctx, http.MethodPost, PathIncidentStart, true, body, nil)
}

// UpdateIncident sends POST /v1/incident/update.
func (c *HTTPClient) UpdateIncident(ctx context.Context, body IncidentUpdate) error {
	return c.do(ctx, http.MethodPost, PathIncidentUpdate, true, body, nil)
}

// StopIncident sends POST /v1/incident/stop. The returned report is empty if
// the server did not include one.
func (c *HTTPClient) StopIncident(ctx context.Context, body IncidentStop) (*StopResponse, error) {
	var out StopResponse
	if err := c.do(ctx, http.MethodPost, PathIncidentStop, true, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReport fetches GET /v1/incident/{id}/report.
func (c *HTTPClient) GetReport(ctx context.Context, incidentID string) (*ReportResponse, error) {
	var out ReportResponse
	path := "/v1/incident/" + url.PathEscape(incidentID) + "/report"
	if err := c.do(ctx, http.MethodGet, path, true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, auth bool, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return newNetworkError(method, path, 0, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return newNetworkError(method, path, 0, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		c.setAuth(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return newNetworkError(method, path, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return newNetworkError(method, path, resp.StatusCode, statusError(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return newNetworkError(method, path, resp.StatusCode, err)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
