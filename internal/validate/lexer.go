package validate

import (
	"fmt"
	"strings"
)

// lexer performs a lightweight structural scan of a Python script body:
// string literal boundaries, comments, and bracket balance. It is not a
// full parser; it catches the failure modes agent-generated scripts
// actually exhibit before the interpreter ever sees them.
type lexer struct {
	src     string
	blanked []byte
	issues  []Issue
	scanned bool
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

// stripped returns the source with string literal contents and comments
// replaced by spaces. Structure (quotes, newlines) is preserved so line
// and column arithmetic still holds.
func (l *lexer) stripped() string {
	if !l.scanned {
		l.scan()
	}
	return string(l.blanked)
}

type bracket struct {
	char byte
	line int
	col  int
}

// scan walks the source once, recording structural errors.
func (l *lexer) scan() []Issue {
	if l.scanned {
		return l.issues
	}
	l.scanned = true
	l.blanked = []byte(l.src)

	var stack []bracket
	line, col := 1, 1
	i := 0

	blank := func(from, to int) {
		for k := from; k < to && k < len(l.blanked); k++ {
			if l.blanked[k] != '\n' {
				l.blanked[k] = ' '
			}
		}
	}

	for i < len(l.src) {
		c := l.src[i]

		switch {
		case c == '\n':
			line++
			col = 1
			i++

		case c == '#':
			start := i
			for i < len(l.src) && l.src[i] != '\n' {
				i++
			}
			blank(start, i)

		case c == '"' || c == '\'':
			quote := c
			startLine, startCol := line, col

			// Triple-quoted string.
			if i+2 < len(l.src) && l.src[i+1] == quote && l.src[i+2] == quote {
				end := strings.Index(l.src[i+3:], strings.Repeat(string(quote), 3))
				if end < 0 {
					l.issues = append(l.issues, Issue{
						Severity: SeverityError,
						Line:     startLine,
						Column:   startCol,
						Message:  fmt.Sprintf("unterminated triple-quoted string (opened with %c%c%c)", quote, quote, quote),
					})
					blank(i+3, len(l.src))
					i = len(l.src)
					break
				}
				segment := l.src[i : i+3+end+3]
				blank(i+3, i+3+end)
				line += strings.Count(segment, "\n")
				i += len(segment)
				col++
				break
			}

			// Single-line string.
			j := i + 1
			terminated := false
			for j < len(l.src) && l.src[j] != '\n' {
				if l.src[j] == '\\' {
					j += 2
					continue
				}
				if l.src[j] == quote {
					terminated = true
					break
				}
				j++
			}
			if !terminated {
				l.issues = append(l.issues, Issue{
					Severity:   SeverityError,
					Line:       startLine,
					Column:     startCol,
					Message:    fmt.Sprintf("unterminated string literal (opened with %c)", quote),
					Suggestion: "close the string on the same line or use a triple-quoted string",
				})
				blank(i+1, j)
				col += j - i
				i = j
				break
			}
			blank(i+1, j)
			col += j - i + 1
			i = j + 1

		case c == '(' || c == '[' || c == '{':
			stack = append(stack, bracket{char: c, line: line, col: col})
			i++
			col++

		case c == ')' || c == ']' || c == '}':
			expected := map[byte]byte{')': '(', ']': '[', '}': '{'}[c]
			if len(stack) == 0 {
				l.issues = append(l.issues, Issue{
					Severity: SeverityError,
					Line:     line,
					Column:   col,
					Message:  fmt.Sprintf("unmatched closing bracket %q", string(c)),
				})
			} else if stack[len(stack)-1].char != expected {
				open := stack[len(stack)-1]
				l.issues = append(l.issues, Issue{
					Severity: SeverityError,
					Line:     line,
					Column:   col,
					Message: fmt.Sprintf("mismatched bracket: %q closes %q opened at line %d",
						string(c), string(open.char), open.line),
				})
				stack = stack[:len(stack)-1]
			} else {
				stack = stack[:len(stack)-1]
			}
			i++
			col++

		default:
			i++
			col++
		}
	}

	for _, open := range stack {
		l.issues = append(l.issues, Issue{
			Severity: SeverityError,
			Line:     open.line,
			Column:   open.col,
			Message:  fmt.Sprintf("unclosed bracket %q", string(open.char)),
		})
	}

	return l.issues
}
