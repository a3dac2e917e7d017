// Package apiclient is a generic REST invoker for api_call steps. It
// layers variable formatting, default browser-class headers, pluggable
// authentication, bounded retry with backoff, a process-wide TTL cache,
// and response transformation over net/http.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kimjoonhwaan/metaworkflow/internal/format"
)

// DefaultTimeout bounds one HTTP call unless the request says otherwise.
const DefaultTimeout = 30 * time.Second

// responseBodyLimit caps how much of a response body is read.
const responseBodyLimit = 16 << 20 // 16 MiB

// Client invokes REST calls. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	formatter  *format.Formatter
	cache      *Cache
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCache sets the response cache. Without one, cache-enabled
// requests run uncached.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithFormatter sets the variable formatter.
func WithFormatter(f *format.Formatter) Option {
	return func(c *Client) {
		c.formatter = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		formatter:  format.New(),
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes one REST call. Variables are substituted into query
// parameter values, header values, and the body before anything hits
// the wire. Do never returns an error across its boundary; failures
// come back inside the Result.
func (c *Client) Do(ctx context.Context, req Request, variables map[string]any) *Result {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return errorResult(fmt.Sprintf("unsupported HTTP method %q", req.Method), 0)
	}

	rawURL := c.formatter.Format(req.URL, variables)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid URL %q: %v", rawURL, err), 0)
	}
	if parsed.RawQuery != "" {
		return errorResult("url must not embed a query string; use query_params", 0)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errorResult(fmt.Sprintf("URL %q must be absolute", rawURL), 0)
	}

	query := url.Values{}
	for name, value := range req.QueryParams {
		query.Set(name, c.formatter.Format(format.Stringify(value), variables))
	}

	headers := c.defaultHeaders(parsed)
	for name, value := range req.Headers {
		headers[http.CanonicalHeaderKey(name)] = c.formatter.Format(value, variables)
	}

	body := c.formatter.FormatValue(req.Body, variables)

	if err := applyAuth(req.Auth, query, headers); err != nil {
		return errorResult(err.Error(), 0)
	}

	cacheable := c.cache != nil && req.Cache.Enabled && method == http.MethodGet
	var cacheKey string
	if cacheable {
		cacheKey = buildCacheKey(method, parsed.String(), query, body, req.Auth)
		if cached, ok := c.cache.Get(cacheKey); ok {
			c.logger.Debug("api cache hit", "method", method, "url", parsed.String())
			return cached
		}
	}

	result := c.doWithRetry(ctx, method, parsed, query, headers, body, req)

	if cacheable && result.Success {
		ttl := time.Duration(req.Cache.TTLSeconds) * time.Second
		c.cache.Put(cacheKey, result, ttl)
	}
	return result
}

// doWithRetry runs the attempt loop. Attempt k (k >= 1) sleeps
// delay × backoff^(k-1) first. Network errors and statuses in the retry
// set are retried; anything else returns immediately.
func (c *Client) doWithRetry(ctx context.Context, method string, parsed *url.URL,
	query url.Values, headers map[string]string, body any, req Request) *Result {

	retry := req.Retry
	if retry.BackoffFactor <= 0 {
		retry.BackoffFactor = 1
	}
	retryStatuses := retry.RetryOnStatus
	if len(retryStatuses) == 0 {
		retryStatuses = defaultRetryStatuses
	}

	var last *Result
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(retry.DelaySeconds *
				math.Pow(retry.BackoffFactor, float64(attempt-1)) * float64(time.Second))
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return errorResult(fmt.Sprintf("request cancelled: %v", ctx.Err()), 0)
				}
			}
			c.logger.Debug("retrying api call",
				"attempt", attempt, "max_retries", retry.MaxRetries, "url", parsed.String())
		}

		result, retryable := c.attempt(ctx, method, parsed, query, headers, body, req)
		last = result
		if result.Success || !retryable {
			return result
		}
		if !statusRetryable(result.Output.StatusCode, retryStatuses) && result.Output.StatusCode != 0 {
			return result
		}
	}
	return last
}

// attempt performs a single HTTP round trip. The second return value
// reports whether the failure class is retryable at all (network errors
// and HTTP errors are; malformed requests are not).
func (c *Client) attempt(ctx context.Context, method string, parsed *url.URL,
	query url.Values, headers map[string]string, body any, req Request) (*Result, bool) {

	callCtx, cancel := context.WithTimeout(ctx, req.Timeout(c.timeout))
	defer cancel()

	target := *parsed
	target.RawQuery = query.Encode()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errorResult(fmt.Sprintf("failed to serialize request body: %v", err), 0), false
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, method, target.String(), bodyReader)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to build request: %v", err), 0), false
	}
	for name, value := range headers {
		httpReq.Header.Set(name, value)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts count as network errors and are retryable.
		return errorResult(fmt.Sprintf("network error: %v", err), 0), true
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return errorResult(fmt.Sprintf("failed to read response body: %v", err), resp.StatusCode), true
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		respHeaders[name] = resp.Header.Get(name)
	}

	data := decodeBody(raw, resp.Header.Get("Content-Type"))

	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bodyExcerpt(raw))
		return &Result{
			Success: false,
			Output: Output{
				Data:       data,
				StatusCode: resp.StatusCode,
				Headers:    respHeaders,
				Status:     "error",
				Error:      msg,
			},
			Error: msg,
		}, true
	}

	if req.Response != nil {
		data, err = applyTransform(data, req.Response)
		if err != nil {
			msg := fmt.Sprintf("response transform failed: %v", err)
			return &Result{
				Success: false,
				Output: Output{
					StatusCode: resp.StatusCode,
					Headers:    respHeaders,
					Status:     "error",
					Error:      msg,
				},
				Error: msg,
			}, false
		}
	}

	return &Result{
		Success: true,
		Output: Output{
			Data:       data,
			StatusCode: resp.StatusCode,
			Headers:    respHeaders,
			Status:     "success",
		},
	}, false
}

// defaultHeaders returns the browser-class header set injected unless
// the caller overrides individual entries. The point is to defeat
// trivial WAF rules on public data APIs.
func (c *Client) defaultHeaders(u *url.URL) map[string]string {
	referer := u.Scheme + "://" + u.Host
	return map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9,ko-KR;q=0.8",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
		"Referer":         referer,
	}
}

// decodeBody parses the body as JSON unless the Content-Type says it is
// not; undecodable bodies come back as raw strings.
func decodeBody(raw []byte, contentType string) any {
	if len(raw) == 0 {
		return nil
	}
	ct := strings.ToLower(contentType)
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "text/plain") {
		return string(raw)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

// bodyExcerpt trims the body for inclusion in an error message.
func bodyExcerpt(raw []byte) string {
	excerpt := strings.TrimSpace(string(raw))
	if len(excerpt) > 300 {
		excerpt = excerpt[:300] + "..."
	}
	if excerpt == "" {
		return "(empty body)"
	}
	return excerpt
}

// statusRetryable reports whether the status code is in the retry set.
// Code 0 marks a network error, always retryable.
func statusRetryable(code int, retryStatuses []int) bool {
	if code == 0 {
		return true
	}
	for _, s := range retryStatuses {
		if s == code {
			return true
		}
	}
	return false
}

// errorResult builds a uniform failed result.
func errorResult(message string, statusCode int) *Result {
	return &Result{
		Success: false,
		Output: Output{
			StatusCode: statusCode,
			Headers:    map[string]string{},
			Status:     "error",
			Error:      message,
		},
		Error: message,
	}
}

// sortedQueryString renders query params in sorted-key order for cache
// key canonicalization.
func sortedQueryString(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(query.Get(k))
	}
	return b.String()
}
