package apiclient

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// applyTransform reshapes the decoded response body: Extract walks a
// dotted key path first, then Map projects named source paths into a
// new object. Missing paths yield nil for that entry rather than an
// error.
func applyTransform(data any, cfg *TransformConfig) (any, error) {
	if cfg == nil {
		return data, nil
	}

	result := data
	if cfg.Extract != "" {
		value, err := walkPath(result, cfg.Extract)
		if err != nil {
			return nil, fmt.Errorf("extract %q: %w", cfg.Extract, err)
		}
		result = value
	}

	if len(cfg.Map) > 0 {
		mapped := make(map[string]any, len(cfg.Map))
		for dst, srcPath := range cfg.Map {
			value, err := walkPath(result, srcPath)
			if err != nil {
				return nil, fmt.Errorf("map %q from %q: %w", dst, srcPath, err)
			}
			mapped[dst] = value
		}
		result = mapped
	}

	return result, nil
}

// walkPath resolves a dotted key path (optionally already in JSONPath
// form) against data. Unmatched paths resolve to nil.
func walkPath(data any, path string) (any, error) {
	expr, err := jp.ParseString(toJSONPath(path))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	results := expr.Get(data)
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// toJSONPath normalizes "a.b.c" into "$.a.b.c"; paths that already
// start with $ pass through so callers may use full JSONPath syntax
// (array indexing, wildcards).
func toJSONPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "$") {
		return trimmed
	}
	return "$." + trimmed
}
