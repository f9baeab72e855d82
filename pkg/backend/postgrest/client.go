// Package postgrest implements backend.Client against a PostgREST endpoint
// such as the REST interface of a hosted Supabase project.
package postgrest

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

	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/options"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 8 << 20
	maxErrorBytes    = 32 << 10
)

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to /rest/v1/{table}.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ backend.Client = (*Client)(nil)

// New creates a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("postgrest: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("postgrest: API key is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("postgrest: invalid URL %q", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Rows runs a GET with select, filter, order, limit and offset parameters.
// With Count set the total is read from the Content-Range header.
func (c *Client) Rows(ctx context.Context, req backend.Request) (backend.Result, error) {
	params, err := encodeQuery(req)
	if err != nil {
		return backend.Result{}, err
	}
	endpoint := c.tableURL(req.Table)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return backend.Result{}, fmt.Errorf("postgrest: create request: %w", err)
	}
	c.setHeaders(httpReq)
	if req.Count {
		httpReq.Header.Set("Prefer", "count=exact")
	}

	body, header, err := c.do(httpReq)
	if err != nil {
		return backend.Result{}, err
	}

	var rows []backend.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return backend.Result{}, fmt.Errorf("postgrest: decode %s: %w", req.Table, err)
	}
	total := -1
	if req.Count {
		total = parseContentRange(header.Get("Content-Range"))
	}
	return backend.Result{Rows: rows, Total: total}, nil
}

// Insert posts one row and returns the stored representation.
func (c *Client) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("postgrest: marshal row: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(table), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("postgrest: create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "return=representation")

	body, _, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	var rows []backend.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("postgrest: decode insert into %s: %w", table, err)
	}
	if len(rows) == 0 {
		return backend.Row{}, nil
	}
	return rows[0], nil
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/rest/v1/%s", c.baseURL, url.PathEscape(table))
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("postgrest: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		apiErr := decodeError(resp.StatusCode, raw)
		c.logger.Debug("postgrest request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, nil, apiErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("postgrest: read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, nil, fmt.Errorf("postgrest: response exceeds %d bytes", maxResponseBytes)
	}
	return body, resp.Header, nil
}

func decodeError(status int, raw []byte) *backend.Error {
	var payload struct {
		Message string              `json:"message"`
		Error   string              `json:"error"`
		Details string              `json:"details"`
		Errors  map[string][]string `json:"errors"`
	}
	out := &backend.Error{Status: status}
	if err := json.Unmarshal(raw, &payload); err != nil {
		out.Message = strings.TrimSpace(string(raw))
		return out
	}
	out.Message = payload.Message
	if out.Message == "" {
		out.Message = payload.Error
	}
	out.Fields = payload.Errors
	return out
}

func encodeQuery(req backend.Request) (url.Values, error) {
	params := url.Values{}
	if len(req.Columns) > 0 {
		params.Set("select", strings.Join(req.Columns, ","))
	}
	for _, filter := range req.Filters {
		switch op := filter.Operator(); op {
		case options.OpEq, options.OpNeq:
			params.Add(filter.Column, op+"."+filter.Value)
		case options.OpILike:
			params.Add(filter.Column, "ilike."+strings.ReplaceAll(filter.Value, "%", "*"))
		case options.OpIn:
			values := strings.Split(filter.Value, ",")
			for i := range values {
				values[i] = strings.TrimSpace(values[i])
			}
			params.Add(filter.Column, "in.("+strings.Join(values, ",")+")")
		default:
			return nil, fmt.Errorf("postgrest: unsupported operator %q", filter.Op)
		}
	}
	if column, asc := backend.OrderSpec(req.Order); column != "" {
		dir := "asc"
		if !asc {
			dir = "desc"
		}
		params.Set("order", column+"."+dir)
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		params.Set("offset", strconv.Itoa(req.Offset))
	}
	return params, nil
}

// parseContentRange reads the total from "0-499/1234" or "*/0". Unknown
// totals ("0-499/*") return -1.
func parseContentRange(header string) int {
	_, total, ok := strings.Cut(strings.TrimSpace(header), "/")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(total)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
