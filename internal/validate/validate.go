// Package validate performs static checks on generated Python script
// bodies before they are persisted. Validation is a pure function over
// the source text and never executes code.
package validate

import (
	"fmt"
	"strings"
)

// Severity classifies an issue. Errors block persistence; warnings are
// surfaced but non-blocking.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding produced by validation.
type Issue struct {
	Severity   Severity `json:"severity"`
	Line       int      `json:"line"`
	Column     int      `json:"column"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Result is the outcome of validating one script body. OK is true when
// no error-severity issue was found.
type Result struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues,omitempty"`
}

// HasErrors reports whether any issue is fatal.
func (r Result) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the fatal issues.
func (r Result) Errors() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// Validator checks script bodies. The zero value is not usable; call New.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate runs all checks over code and returns the aggregate result.
//
// Fatal checks:
//  1. Lexical structure: unterminated strings, unbalanced brackets,
//     mixed tab/space indentation.
//  2. F-string quote nesting: a placeholder expression using the same
//     quote kind as its enclosing literal fails only at runtime, after
//     the agent has already persisted the script.
//
// Warnings:
//  3. The script does not parse --variables / --variables-file.
//  4. No structured JSON is emitted on stdout.
//  5. No try/except guards the main body.
func (v *Validator) Validate(code string) Result {
	var issues []Issue

	if strings.TrimSpace(code) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Line:     1,
			Column:   1,
			Message:  "script body is empty",
		})
		return Result{OK: false, Issues: issues}
	}

	lex := newLexer(code)
	issues = append(issues, lex.scan()...)
	issues = append(issues, checkFStringQuoteNesting(code)...)
	issues = append(issues, checkIndentation(code)...)
	issues = append(issues, checkConventions(code, lex.stripped())...)

	result := Result{Issues: issues}
	result.OK = !result.HasErrors()
	return result
}

// checkConventions emits the non-blocking warnings about the script
// protocol. stripped is the source with string literal contents and
// comments blanked, so matches cannot come from inside strings.
func checkConventions(code, stripped string) []Issue {
	var issues []Issue

	// Argument names are string literals in argparse calls, so this one
	// check runs over the raw source.
	usesVariables := strings.Contains(code, "--variables") ||
		strings.Contains(code, "variables_file")
	if !usesVariables {
		issues = append(issues, Issue{
			Severity:   SeverityWarning,
			Line:       1,
			Column:     1,
			Message:    "script does not parse --variables or --variables-file arguments",
			Suggestion: "accept workflow variables via argparse: parser.add_argument('--variables-file')",
		})
	}

	emitsJSON := strings.Contains(stripped, "json.dumps") ||
		strings.Contains(stripped, "json.dump(")
	if !emitsJSON {
		issues = append(issues, Issue{
			Severity:   SeverityWarning,
			Line:       1,
			Column:     1,
			Message:    "script does not emit structured JSON on stdout",
			Suggestion: "print exactly one JSON document at the end: print(json.dumps(result))",
		})
	}

	if !strings.Contains(stripped, "try") || !strings.Contains(stripped, "except") {
		issues = append(issues, Issue{
			Severity:   SeverityWarning,
			Line:       1,
			Column:     1,
			Message:    "no try/except guards the main body",
			Suggestion: "wrap the main body in try/except and exit non-zero with the error on stderr",
		})
	}

	if strings.Contains(stripped, "json.") && !containsImport(stripped, "json") {
		issues = append(issues, Issue{
			Severity:   SeverityWarning,
			Line:       1,
			Column:     1,
			Message:    "json module is referenced but never imported",
			Suggestion: "add: import json",
		})
	}
	if strings.Contains(stripped, "sys.") && !containsImport(stripped, "sys") {
		issues = append(issues, Issue{
			Severity:   SeverityWarning,
			Line:       1,
			Column:     1,
			Message:    "sys module is referenced but never imported",
			Suggestion: "add: import sys",
		})
	}

	return issues
}

// containsImport reports whether stripped source imports module at the
// start of any line, directly or via "from module import".
func containsImport(stripped, module string) bool {
	for _, line := range strings.Split(stripped, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import "+module) ||
			strings.HasPrefix(trimmed, "from "+module+" import") {
			return true
		}
		// "import json, sys" style
		if strings.HasPrefix(trimmed, "import ") {
			rest := strings.TrimPrefix(trimmed, "import ")
			for _, part := range strings.Split(rest, ",") {
				if strings.TrimSpace(part) == module {
					return true
				}
			}
		}
	}
	return false
}

// checkIndentation rejects lines whose leading whitespace mixes tabs
// and spaces, the classic Python TabError source.
func checkIndentation(code string) []Issue {
	var issues []Issue
	for i, line := range strings.Split(code, "\n") {
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if strings.Contains(indent, " \t") || strings.Contains(indent, "\t ") {
			issues = append(issues, Issue{
				Severity:   SeverityError,
				Line:       i + 1,
				Column:     1,
				Message:    "indentation mixes tabs and spaces",
				Suggestion: "use spaces only for indentation",
			})
		}
	}
	return issues
}

// checkFStringQuoteNesting detects placeholders inside f-strings whose
// expression reuses the enclosing quote character, e.g.
// f"value: {obj["key"]}". Python (< 3.12) rejects these at parse time,
// and the agent-authored scripts target older interpreters too.
func checkFStringQuoteNesting(code string) []Issue {
	var issues []Issue
	line, col := 1, 1
	i := 0

	for i < len(code) {
		c := code[i]
		if c == '\n' {
			line++
			col = 1
			i++
			continue
		}

		// Comment: skip to end of line.
		if c == '#' {
			for i < len(code) && code[i] != '\n' {
				i++
			}
			continue
		}

		if (c == 'f' || c == 'F') && i+1 < len(code) && (code[i+1] == '"' || code[i+1] == '\'') {
			quote := code[i+1]
			// Triple-quoted f-strings tolerate both quote kinds in
			// expressions; skip them.
			if i+3 < len(code) && code[i+2] == quote && code[i+3] == quote {
				i += 4
				col += 4
				continue
			}

			startLine, startCol := line, col
			j := i + 2
			depth := 0
			for j < len(code) && code[j] != '\n' {
				ch := code[j]
				if ch == '\\' {
					j += 2
					continue
				}
				if ch == '{' {
					if j+1 < len(code) && code[j+1] == '{' {
						j += 2
						continue
					}
					depth++
				} else if ch == '}' {
					if depth == 0 && j+1 < len(code) && code[j+1] == '}' {
						j += 2
						continue
					}
					if depth > 0 {
						depth--
					}
				} else if ch == quote {
					if depth > 0 {
						issues = append(issues, Issue{
							Severity: SeverityError,
							Line:     startLine,
							Column:   startCol,
							Message: fmt.Sprintf(
								"f-string placeholder nests the same quote kind (%c) as its enclosing literal", quote),
							Suggestion: "use the other quote kind inside the placeholder expression",
						})
					}
					break
				}
				j++
			}
			col += j - i
			i = j + 1
			col++
			continue
		}

		// Plain string literal: skip its contents so quotes inside do
		// not confuse the scan.
		if c == '"' || c == '\'' {
			quote := c
			if i+2 < len(code) && code[i+1] == quote && code[i+2] == quote {
				end := strings.Index(code[i+3:], strings.Repeat(string(quote), 3))
				if end < 0 {
					break
				}
				segment := code[i : i+3+end+3]
				line += strings.Count(segment, "\n")
				i += len(segment)
				continue
			}
			j := i + 1
			for j < len(code) && code[j] != quote && code[j] != '\n' {
				if code[j] == '\\' {
					j++
				}
				j++
			}
			col += j - i
			i = j + 1
			col++
			continue
		}

		i++
		col++
	}

	return issues
}
