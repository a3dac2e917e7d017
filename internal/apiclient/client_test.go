package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoGetWithQuerySubstitution(t *testing.T) {
	var gotQuery url.Values
	var gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[1,2,3]}`))
	}))
	defer server.Close()

	client := New()
	result := client.Do(context.Background(), Request{
		Method: "GET",
		URL:    server.URL + "/v1/items",
		QueryParams: map[string]any{
			"q":     "{term}",
			"limit": 10,
		},
		Auth: AuthConfig{Type: AuthNone},
	}, map[string]any{"term": "alpha beta"})

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, 200, result.Output.StatusCode)
	assert.Equal(t, "success", result.Output.Status)
	assert.Equal(t, map[string]any{"items": []any{float64(1), float64(2), float64(3)}}, result.Output.Data)

	assert.Equal(t, "alpha beta", gotQuery.Get("q"))
	assert.Equal(t, "10", gotQuery.Get("limit"))
	assert.Equal(t, server.URL, gotReferer, "Referer defaults to scheme+authority")
}

func TestDoRejectsEmbeddedQueryString(t *testing.T) {
	client := New()
	result := client.Do(context.Background(), Request{
		Method: "GET",
		URL:    "https://api.example.test/v1/items?q=embedded",
	}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "query_params")
}

func TestDoRetryExhaustsThenFails(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"server blew up"}`))
	}))
	defer server.Close()

	client := New()
	result := client.Do(context.Background(), Request{
		Method: "GET",
		URL:    server.URL,
		Retry: RetryConfig{
			MaxRetries:    2,
			DelaySeconds:  0,
			BackoffFactor: 1,
			RetryOnStatus: []int{500},
		},
	}, nil)

	assert.Equal(t, int32(3), attempts.Load(), "max_retries=2 means three total attempts")
	assert.False(t, result.Success)
	assert.Equal(t, 500, result.Output.StatusCode)
	assert.Equal(t, "error", result.Output.Status)
	assert.Contains(t, result.Error, "HTTP 500")
}

func TestDoNonRetryableStatusReturnsImmediately(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New()
	result := client.Do(context.Background(), Request{
		Method: "GET",
		URL:    server.URL,
		Retry:  RetryConfig{MaxRetries: 3},
	}, nil)

	assert.Equal(t, int32(1), attempts.Load())
	assert.False(t, result.Success)
	assert.Equal(t, 404, result.Output.StatusCode)
}

func TestDoRetriesNetworkErrors(t *testing.T) {
	// A server that is already closed produces connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := New()
	result := client.Do(context.Background(), Request{
		Method: "GET",
		URL:    serverURL,
		Retry:  RetryConfig{MaxRetries: 1},
	}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "network error")
	assert.Equal(t, 0, result.Output.StatusCode)
}

func TestDoOutputInvariantFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "abc-123")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New()
	result := client.Do(context.Background(), Request{Method: "GET", URL: server.URL}, nil)

	require.True(t, result.Success)
	out := result.ToMap()
	for _, key := range []string{"data", "status_code", "headers", "status"} {
		assert.Contains(t, out, key)
	}
	assert.IsType(t, 0, out["status_code"])
	headers, ok := out["headers"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "abc-123", headers["X-Request-Id"])
}

func TestDoDefaultHeadersCallerOverride(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New()
	result := client.Do(context.Background(), Request{
		Method:  "GET",
		URL:     server.URL,
		Headers: map[string]string{"User-Agent": "custom-agent/1.0"},
	}, nil)

	require.True(t, result.Success)
	assert.Equal(t, "custom-agent/1.0", gotUA, "caller headers win over defaults")
	assert.Equal(t, "application/json, text/plain, */*", gotAccept)
}

func TestDoBodyFormatting(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":true}`))
	}))
	defer server.Close()

	client := New()
	result := client.Do(context.Background(), Request{
		Method: "POST",
		URL:    server.URL,
		Body: map[string]any{
			"title":  "report for {user}",
			"nested": map[string]any{"tag": "{tag}"},
		},
	}, map[string]any{"user": "kim", "tag": "daily"})

	require.True(t, result.Success)
	assert.Equal(t, 201, result.Output.StatusCode)
	assert.Equal(t, "report for kim", gotBody["title"])
	assert.Equal(t, "daily", gotBody["nested"].(map[string]any)["tag"])
}

func TestDoAuthSchemes(t *testing.T) {
	var gotHeaders http.Header
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New()

	tests := []struct {
		name  string
		auth  AuthConfig
		check func(t *testing.T)
	}{
		{
			name: "api key in query",
			auth: AuthConfig{Type: AuthAPIKey, Key: "k123", KeyName: "apiKey", In: "query"},
			check: func(t *testing.T) {
				assert.Equal(t, "k123", gotQuery.Get("apiKey"))
			},
		},
		{
			name: "api key in header",
			auth: AuthConfig{Type: AuthAPIKey, Key: "k456", KeyName: "X-Api-Key"},
			check: func(t *testing.T) {
				assert.Equal(t, "k456", gotHeaders.Get("X-Api-Key"))
			},
		},
		{
			name: "basic",
			auth: AuthConfig{Type: AuthBasic, Username: "user", Password: "pass"},
			check: func(t *testing.T) {
				// base64("user:pass")
				assert.Equal(t, "Basic dXNlcjpwYXNz", gotHeaders.Get("Authorization"))
			},
		},
		{
			name: "jwt bearer",
			auth: AuthConfig{Type: AuthJWT, Token: "tok"},
			check: func(t *testing.T) {
				assert.Equal(t, "Bearer tok", gotHeaders.Get("Authorization"))
			},
		},
		{
			name: "custom headers",
			auth: AuthConfig{Type: AuthCustom, Headers: map[string]string{"X-Custom-Auth": "v"}},
			check: func(t *testing.T) {
				assert.Equal(t, "v", gotHeaders.Get("X-Custom-Auth"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := client.Do(context.Background(), Request{
				Method: "GET",
				URL:    server.URL,
				Auth:   tt.auth,
			}, nil)
			require.True(t, result.Success, "error: %s", result.Error)
			tt.check(t)
		})
	}
}

func TestDoResponseTransform(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"user":{"name":"kim","email":"kim@example.test","age":30}}}`))
	}))
	defer server.Close()

	client := New()
	result := client.Do(context.Background(), Request{
		Method: "GET",
		URL:    server.URL,
		Response: &TransformConfig{
			Extract: "data.user",
			Map: map[string]string{
				"who":     "name",
				"contact": "email",
				"missing": "does.not.exist",
			},
		},
	}, nil)

	require.True(t, result.Success, "error: %s", result.Error)
	data, ok := result.Output.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "kim", data["who"])
	assert.Equal(t, "kim@example.test", data["contact"])
	assert.Nil(t, data["missing"], "missing paths map to nil")
}

func TestDoUnsupportedMethod(t *testing.T) {
	client := New()
	result := client.Do(context.Background(), Request{Method: "TRACE", URL: "https://example.test"}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unsupported HTTP method")
}
