// Package format implements {name} template substitution over
// heterogeneous variable values. It backs API call configs, notification
// texts, and anywhere else step configs reference workflow variables.
package format

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {name} references. Whitespace inside the
// braces is tolerated and normalized away before lookup.
var placeholderPattern = regexp.MustCompile(`\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}`)

// Formatter substitutes workflow variables into templates. Missing names
// stay literal and are logged; substitution never fails.
type Formatter struct {
	logger *slog.Logger
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithLogger sets the logger used for missing-variable warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Formatter) {
		f.logger = logger
	}
}

// New creates a Formatter.
func New(opts ...Option) *Formatter {
	f := &Formatter{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format replaces every {name} occurrence in template with the
// stringification of vars[name]. Unknown names are left literal so a
// later pass (or the remote service) can still see them.
func (f *Formatter) Format(template string, vars map[string]any) string {
	if template == "" {
		return template
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[1 : len(match)-1])
		value, ok := vars[name]
		if !ok {
			f.logger.Warn("template variable not found, leaving placeholder literal", "name", name)
			return match
		}
		return Stringify(value)
	})
}

// FormatValue applies Format recursively: strings are substituted, map
// values and slice elements are walked, everything else passes through
// unchanged.
func (f *Formatter) FormatValue(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		return f.Format(v, vars)
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, item := range v {
			result[key] = f.FormatValue(item, vars)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = f.FormatValue(item, vars)
		}
		return result
	default:
		return value
	}
}

// FormatStringMap substitutes into every value of a string-valued map,
// the shape headers and query parameters arrive in.
func (f *Formatter) FormatStringMap(m map[string]string, vars map[string]any) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	for key, value := range m {
		result[key] = f.Format(value, vars)
	}
	return result
}

// Stringify converts a value to its canonical string form: numbers in
// decimal notation, booleans as true/false, structured values as compact
// JSON, nil as null.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
