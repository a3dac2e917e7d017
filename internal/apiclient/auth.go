package apiclient

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
)

// applyAuth mutates the outgoing query parameters and headers according
// to the configured auth scheme.
func applyAuth(auth AuthConfig, query url.Values, headers map[string]string) error {
	switch auth.Type {
	case "", AuthNone:
		return nil

	case AuthAPIKey:
		if auth.Key == "" {
			return fmt.Errorf("api_key auth requires a key")
		}
		name := auth.KeyName
		if name == "" {
			name = "api_key"
		}
		if auth.In == "query" {
			query.Set(name, auth.Key)
		} else {
			headers[name] = auth.Key
		}
		return nil

	case AuthBasic:
		if auth.Username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
		credentials := base64.StdEncoding.EncodeToString(
			[]byte(auth.Username + ":" + auth.Password))
		headers["Authorization"] = "Basic " + credentials
		return nil

	case AuthOAuth, AuthJWT:
		if auth.Token == "" {
			return fmt.Errorf("%s auth requires a token", auth.Type)
		}
		headers["Authorization"] = "Bearer " + auth.Token
		return nil

	case AuthCustom:
		for name, value := range auth.Headers {
			headers[name] = value
		}
		return nil

	default:
		return fmt.Errorf("unknown auth type %q", auth.Type)
	}
}

// authPrincipal returns a stable identifier for the authenticated
// principal; it feeds the cache key so responses never leak across
// credentials.
func authPrincipal(auth AuthConfig) string {
	switch auth.Type {
	case AuthAPIKey:
		return "api_key:" + auth.Key
	case AuthBasic:
		return "basic:" + auth.Username + ":" + auth.Password
	case AuthOAuth, AuthJWT:
		return "bearer:" + auth.Token
	case AuthCustom:
		// Headers carry the credential; fold them all in.
		principal := "custom"
		for _, name := range sortedKeys(auth.Headers) {
			principal += ":" + name + "=" + auth.Headers[name]
		}
		return principal
	default:
		return "none"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
