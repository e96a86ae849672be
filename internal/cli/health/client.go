// Package health queries the health endpoints of a running "dittobtt serve".
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Response is the envelope returned by /health and /health/ready.
type Response struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Liveness is the data of a /health response.
type Liveness struct {
	Service   string `json:"service"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
}

// Readiness is the data of a healthy /health/ready response.
type Readiness struct {
	State    string `json:"state"`
	LBASize  uint32 `json:"lba_size"`
	NLBA     uint64 `json:"nlba"`
	ReadOnly bool   `json:"read_only"`
}

// Status combines both probes.
type Status struct {
	Running   bool       `json:"running" yaml:"running"`
	Ready     bool       `json:"ready" yaml:"ready"`
	Message   string     `json:"message" yaml:"message"`
	Liveness  *Liveness  `json:"liveness,omitempty" yaml:"liveness,omitempty"`
	Readiness *Readiness `json:"readiness,omitempty" yaml:"readiness,omitempty"`
}

// Client probes a server at BaseURL.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client with a short timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

// Check calls /health and then /health/ready. A server that cannot be
// reached is reported as not running rather than as an error.
func (c *Client) Check(ctx context.Context) *Status {
	status := &Status{Message: "Server is not running"}

	live, err := c.get(ctx, "/health")
	if err != nil {
		return status
	}
	status.Running = true

	var l Liveness
	if err := json.Unmarshal(live.Data, &l); err != nil {
		status.Message = "Server is running but health response invalid"
		return status
	}
	status.Liveness = &l

	ready, err := c.get(ctx, "/health/ready")
	if err != nil {
		status.Message = fmt.Sprintf("Server is running but readiness check failed: %v", err)
		return status
	}
	if ready.Status != "healthy" {
		status.Message = fmt.Sprintf("Server is running but not ready: %s", ready.Error)
		return status
	}

	var r Readiness
	if err := json.Unmarshal(ready.Data, &r); err != nil {
		status.Message = "Server is running but readiness response invalid"
		return status
	}
	status.Ready = true
	status.Readiness = &r
	status.Message = "Server is running and the device is ready"
	return status
}

// get decodes the envelope regardless of status code; 503 carries a body.
func (c *Client) get(ctx context.Context, path string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &out, nil
}
