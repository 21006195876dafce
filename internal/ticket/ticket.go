// Package ticket is the client for the Dude service-order API.
//
// The API takes a normalized three-slot filter (date, status, equipment)
// plus the user's original request text, and answers with a textual
// description of matching orders. Unused filter slots carry the sentinel
// EmptyField, which the API expects literally.
package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/weftworks/loombot/internal/log"
)

// EmptyField marks an unused filter slot on the wire.
const EmptyField = "vazio"

// DefaultTimeout bounds a search request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Filter holds the normalized search criteria. Empty fields are replaced
// by EmptyField when the request is built.
type Filter struct {
	Date      string // "YYYY-MM-DDThh-mm-ss" or empty
	Status    string // canonical order status or empty
	Equipment string // canonical equipment name or empty
}

// IsEmpty reports whether no criterion is set.
func (f Filter) IsEmpty() bool {
	return f.Date == "" && f.Status == "" && f.Equipment == ""
}

// Slots returns the wire-order [date, status, equipment] triple with
// EmptyField in place of unset fields.
func (f Filter) Slots() [3]string {
	slots := [3]string{EmptyField, EmptyField, EmptyField}
	if f.Date != "" {
		slots[0] = f.Date
	}
	if f.Status != "" {
		slots[1] = f.Status
	}
	if f.Equipment != "" {
		slots[2] = f.Equipment
	}
	return slots
}

// Client is a lightweight Dude API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Dude client for the given endpoint.
// The API key may be empty when the endpoint is unauthenticated.
func New(baseURL, apiKey string, timeout time.Duration, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ticket: base URL is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "ticket"),
	}, nil
}

type searchRequest struct {
	Filter [3]string `json:"filter"`
	Input  string    `json:"input"`
}

// Search queries the API for service orders matching the filter and returns
// the response body text. The raw user input travels with the request so the
// API can apply its own interpretation on top of the structured filter.
func (c *Client) Search(ctx context.Context, filter Filter, rawInput string) (string, error) {
	payload, err := json.Marshal(searchRequest{
		Filter: filter.Slots(),
		Input:  rawInput,
	})
	if err != nil {
		return "", fmt.Errorf("marshal search request: %w", err)
	}

	url := c.baseURL + "/orders/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("dude API error (status %d): %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("service order search completed",
		"date", filter.Slots()[0],
		"status", filter.Slots()[1],
		"equipment", filter.Slots()[2],
		"response_length", len(body))

	return string(body), nil
}
