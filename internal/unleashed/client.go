package unleashed

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stockyard/api/internal/platform/config"
)

const defaultFetchTimeout = 30 * time.Second

// Endpoint names a logical catalog collection on the upstream API.
type Endpoint string

const (
	EndpointProducts   Endpoint = "Products"
	EndpointWarehouses Endpoint = "Warehouses"
)

var (
	// ErrNotConfigured indicates the API identity or key is missing.
	ErrNotConfigured = errors.New("unleashed: api id and api key are required")
	// ErrTimeout indicates the upstream call exceeded the fetch timeout.
	ErrTimeout = errors.New("unleashed: request timed out")
)

// APIError reports a non-2xx response from the upstream catalog API.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("unleashed: api error %d: %s", e.Status, e.Body)
}

// QueryParams are the supported request parameters. Zero values are omitted
// from the serialized query string.
type QueryParams struct {
	Page        int
	PageSize    int
	ProductCode string
}

// RawRecord is one upstream catalog record prior to normalization.
type RawRecord map[string]any

// Page is a normalized slice of one paginated upstream response.
// TotalPages is zero when the upstream omitted a page-count hint.
type Page struct {
	Records    []RawRecord
	TotalPages int
}

// Client issues signed GET requests against the Unleashed catalog API.
type Client struct {
	endpoint string
	apiID    string
	apiKey   []byte
	http     *http.Client
}

// NewClient validates the credentials and constructs a Client.
func NewClient(cfg config.UnleashedConfig) (*Client, error) {
	apiID := strings.TrimSpace(cfg.APIID)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiID == "" || apiKey == "" {
		return nil, ErrNotConfigured
	}

	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiID:    apiID,
		apiKey:   []byte(apiKey),
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// BuildQuery serializes the parameters in their fixed declared order, omitting
// absent fields and the leading '?'. The signature is computed over this exact
// string, so the order must never change.
func BuildQuery(params QueryParams) string {
	var parts []string
	if params.Page > 0 {
		parts = append(parts, "page="+strconv.Itoa(params.Page))
	}
	if params.PageSize > 0 {
		parts = append(parts, "pageSize="+strconv.Itoa(params.PageSize))
	}
	if code := strings.TrimSpace(params.ProductCode); code != "" {
		parts = append(parts, "productCode="+url.QueryEscape(code))
	}
	return strings.Join(parts, "&")
}

// Sign computes the base64 HMAC-SHA256 signature over the query string. An
// empty query string is valid and still signed.
func (c *Client) Sign(query string) string {
	mac := hmac.New(sha256.New, c.apiKey)
	_, _ = mac.Write([]byte(query))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// FetchPage retrieves one page of raw catalog records.
func (c *Client) FetchPage(ctx context.Context, endpoint Endpoint, params QueryParams) (Page, error) {
	if c == nil {
		return Page{}, ErrNotConfigured
	}

	query := BuildQuery(params)
	url := fmt.Sprintf("%s/%s", c.endpoint, endpoint)
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("unleashed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-auth-id", c.apiID)
	req.Header.Set("api-auth-signature", c.Sign(query))

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Page{}, fmt.Errorf("%w: %s %s", ErrTimeout, endpoint, query)
		}
		return Page{}, fmt.Errorf("unleashed: fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("unleashed: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return normalizePage(endpoint, body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
