// Package catalog is the HTTP client for the product catalog backend.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hpungsan/skumate/internal/enrich"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// Wildcard is the query that lists every product.
const Wildcard = "*"

const userAgent = "skumate/1.0"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Config holds backend connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the catalog backend's /api endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New creates a catalog client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     logger,
	}, nil
}

// writeResponse is the body returned by add_product and update_product.
type writeResponse struct {
	Status string           `json:"status"`
	Data   []product.Record `json:"data"`
}

// errorResponse is the body of every non-2xx backend response.
type errorResponse struct {
	Error string `json:"error"`
}

// Search returns products whose SKU or name matches q. Wildcard lists all.
// A blank query returns no results without calling the backend.
func (c *Client) Search(ctx context.Context, q string) ([]product.Record, error) {
	q = strings.ToUpper(strings.TrimSpace(q))
	if q == "" {
		return nil, nil
	}

	var records []product.Record
	if err := c.do(ctx, "search", http.MethodGet, "/api/search?q="+url.QueryEscape(q), nil, &records); err != nil {
		return nil, err
	}
	c.logger.Debug("catalog search", "query", q, "results", len(records))
	return records, nil
}

// Add creates a product and returns the record as stored by the backend.
func (c *Client) Add(ctx context.Context, r product.Record) (product.Record, error) {
	return c.write(ctx, "add_product", http.MethodPost, "/api/add_product", r)
}

// Update overwrites the product identified by r.SKU.
func (c *Client) Update(ctx context.Context, r product.Record) (product.Record, error) {
	return c.write(ctx, "update_product", http.MethodPut, "/api/update_product", r)
}

func (c *Client) write(ctx context.Context, call, method, path string, r product.Record) (product.Record, error) {
	r = product.Normalize(r)

	var resp writeResponse
	if err := c.do(ctx, call, method, path, wireRecord(r), &resp); err != nil {
		return product.Record{}, err
	}
	if len(resp.Data) == 0 {
		// Backend accepted but did not echo; fall back to what was sent.
		c.logger.Debug("catalog write returned no data", "call", call, "sku", r.SKU)
		return r, nil
	}
	return product.Normalize(resp.Data[0]), nil
}

// Enrich asks the backend to look up details for req.SKU with an AI provider.
func (c *Client) Enrich(ctx context.Context, req enrich.Request) (product.Record, error) {
	sku := product.NormalizeSKU(req.SKU)
	if sku == "" {
		return product.Record{}, errors.NewValidation(product.KeySKU, "SKU is required")
	}

	q := url.Values{}
	q.Set("sku", sku)
	if req.NameHint != "" {
		q.Set("name_hint", req.NameHint)
	}
	if req.Provider != "" {
		q.Set("provider", req.Provider)
	}

	var res enrich.Result
	if err := c.do(ctx, "enrich_with_ai", http.MethodGet, "/api/enrich_with_ai?"+q.Encode(), nil, &res); err != nil {
		return product.Record{}, err
	}
	return res.Record(sku), nil
}

// wireRecord sends an absent price as an empty string, which the backend
// stores as NULL.
func wireRecord(r product.Record) map[string]string {
	price, _ := r.Get(product.KeyPrice)
	return map[string]string{
		product.KeySKU:         r.SKU,
		product.KeyItemName:    r.ItemName,
		product.KeyCategory:    r.Category,
		product.KeyBrandName:   r.BrandName,
		product.KeyVariantName: r.VariantName,
		product.KeyPrice:       price,
	}
}

func (c *Client) do(ctx context.Context, call, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternal(fmt.Errorf("marshaling %s request: %w", call, err))
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("creating %s request: %w", call, err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return errors.NewCancelled(call)
		}
		c.logger.Warn("catalog request failed", "call", call, "error", err)
		return errors.NewUpstream(call, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("catalog returned error", "call", call, "status", resp.StatusCode, "duration", time.Since(start))
		return parseErrorResponse(call, resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewUpstream(call, fmt.Sprintf("invalid response from %s: %v", call, err))
	}
	c.logger.Debug("catalog request", "call", call, "status", resp.StatusCode, "duration", time.Since(start))
	return nil
}

// parseErrorResponse surfaces the backend's {"error": msg} unchanged.
func parseErrorResponse(call string, status int, body []byte) error {
	var e errorResponse
	_ = json.Unmarshal(body, &e) // best effort
	msg := strings.TrimSpace(e.Error)
	if msg == "" {
		msg = fmt.Sprintf("%s failed with status %d", call, status)
	}
	err := errors.NewUpstream(call, msg)
	err.Details["status"] = status
	return err
}

// IsDuplicate reports whether err is a backend rejection of a SKU that
// already exists.
func IsDuplicate(err error) bool {
	if !errors.Is(err, errors.ErrUpstream) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "already exists")
}
