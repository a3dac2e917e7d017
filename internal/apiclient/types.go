package apiclient

import "time"

// AuthType selects the authentication scheme for a request.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthOAuth  AuthType = "oauth"
	AuthJWT    AuthType = "jwt"
	AuthBasic  AuthType = "basic"
	AuthCustom AuthType = "custom"
)

// AuthConfig carries the parameters for one auth scheme. Only the
// fields relevant to Type are consulted.
type AuthConfig struct {
	Type AuthType `json:"type" mapstructure:"type"`

	// api_key
	Key     string `json:"key,omitempty" mapstructure:"key"`
	KeyName string `json:"key_name,omitempty" mapstructure:"key_name"`
	In      string `json:"in,omitempty" mapstructure:"in"` // "query" or "header"

	// basic
	Username string `json:"username,omitempty" mapstructure:"username"`
	Password string `json:"password,omitempty" mapstructure:"password"`

	// oauth / jwt
	Token string `json:"token,omitempty" mapstructure:"token"`

	// custom
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
}

// RetryConfig bounds the attempt loop. Attempt k (k >= 1) waits
// DelaySeconds × BackoffFactor^(k-1) before running.
type RetryConfig struct {
	MaxRetries    int     `json:"max_retries" mapstructure:"max_retries"`
	DelaySeconds  float64 `json:"delay_seconds" mapstructure:"delay_seconds"`
	BackoffFactor float64 `json:"backoff_factor" mapstructure:"backoff_factor"`
	RetryOnStatus []int   `json:"retry_on_status,omitempty" mapstructure:"retry_on_status"`
}

// defaultRetryStatuses is used when RetryOnStatus is empty.
var defaultRetryStatuses = []int{429, 500, 502, 503, 504}

// CacheConfig enables TTL caching for one request. Caching is GET-only;
// non-idempotent methods are never cached.
type CacheConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	TTLSeconds int  `json:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// TransformConfig reshapes the decoded response body. Extract walks a
// dotted key path first; Map then projects named paths into a new
// object.
type TransformConfig struct {
	Extract string            `json:"extract,omitempty" mapstructure:"extract"`
	Map     map[string]string `json:"map,omitempty" mapstructure:"map"`
}

// Request describes one REST call. URL must carry no query string; all
// parameters go through QueryParams so values can be formatted and
// encoded uniformly.
type Request struct {
	Method         string            `json:"method" mapstructure:"method"`
	URL            string            `json:"url" mapstructure:"url"`
	QueryParams    map[string]any    `json:"query_params,omitempty" mapstructure:"query_params"`
	Headers        map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Body           any               `json:"body,omitempty" mapstructure:"body"`
	Auth           AuthConfig        `json:"auth,omitempty" mapstructure:"auth"`
	Retry          RetryConfig       `json:"retry,omitempty" mapstructure:"retry"`
	Cache          CacheConfig       `json:"cache,omitempty" mapstructure:"cache"`
	Response       *TransformConfig  `json:"response,omitempty" mapstructure:"response"`
	TimeoutSeconds int               `json:"timeout,omitempty" mapstructure:"timeout"`
}

// Timeout returns the per-call timeout, or fallback when unset.
func (r *Request) Timeout(fallback time.Duration) time.Duration {
	if r.TimeoutSeconds > 0 {
		return time.Duration(r.TimeoutSeconds) * time.Second
	}
	return fallback
}

// Output is the invariant payload every call produces. All fields live
// here so step output mappings can address data, status_code, headers,
// and status uniformly.
type Output struct {
	Data       any               `json:"data"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
}

// Result is the outcome of one call.
type Result struct {
	Success bool   `json:"success"`
	Output  Output `json:"output"`
	Error   string `json:"error,omitempty"`
}

// ToMap renders the result in the uniform step-output shape.
func (r *Result) ToMap() map[string]any {
	out := map[string]any{
		"data":        r.Output.Data,
		"status_code": r.Output.StatusCode,
		"headers":     r.Output.Headers,
		"status":      r.Output.Status,
	}
	if r.Output.Error != "" {
		out["error"] = r.Output.Error
	} else {
		out["error"] = nil
	}
	return out
}
