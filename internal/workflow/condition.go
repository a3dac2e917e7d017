package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// Condition evaluation for step gates and condition steps.
//
// Expressions are parsed by a recursive descent parser over a restricted
// grammar:
//
//   - Names resolve against the workflow variables only; dotted paths
//     ("payload.items") descend into map values, and [] indexes arrays
//     and maps.
//   - Comparison operators: ==, !=, <, >, <=, >=
//   - Boolean operators: &&, ||, !
//   - Literals: true, false, numbers, quoted strings
//   - Parentheses for grouping
//   - Built-in functions: len(), empty(), exists(), str(), int(),
//     float(), bool()
//
// Expression examples:
//
//	status == "ok" && len(items) > 0
//	!empty(report) || retries < 3
//	int(count) >= threshold
//
// There is no attribute access on arbitrary objects, no arithmetic, and
// no user code: an expression either reads variables or it fails.

// ConditionFunc is a function callable inside expressions.
type ConditionFunc func(args []any) (any, error)

// ConditionEvaluator parses and evaluates gate expressions.
type ConditionEvaluator struct {
	functions map[string]ConditionFunc
}

// NewConditionEvaluator creates an evaluator with the built-in
// functions registered.
func NewConditionEvaluator() *ConditionEvaluator {
	evaluator := &ConditionEvaluator{
		functions: make(map[string]ConditionFunc),
	}

	evaluator.RegisterFunction("len", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len() requires exactly 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		case nil:
			return float64(0), nil
		default:
			return nil, fmt.Errorf("len() requires string, array, or map argument")
		}
	})

	evaluator.RegisterFunction("empty", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("empty() requires exactly 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case string:
			return len(v) == 0, nil
		case []any:
			return len(v) == 0, nil
		case map[string]any:
			return len(v) == 0, nil
		case nil:
			return true, nil
		default:
			return false, nil
		}
	})

	evaluator.RegisterFunction("exists", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("exists() requires exactly 1 argument, got %d", len(args))
		}
		return args[0] != nil, nil
	})

	evaluator.RegisterFunction("str", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("str() requires exactly 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case nil:
			return "", nil
		case string:
			return v, nil
		case bool:
			return strconv.FormatBool(v), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	})

	evaluator.RegisterFunction("int", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("int() requires exactly 1 argument, got %d", len(args))
		}
		num, ok := toNumber(args[0])
		if !ok {
			return nil, fmt.Errorf("int() cannot convert %T", args[0])
		}
		return float64(int64(num)), nil
	})

	evaluator.RegisterFunction("float", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("float() requires exactly 1 argument, got %d", len(args))
		}
		num, ok := toNumber(args[0])
		if !ok {
			return nil, fmt.Errorf("float() cannot convert %T", args[0])
		}
		return num, nil
	})

	evaluator.RegisterFunction("bool", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("bool() requires exactly 1 argument, got %d", len(args))
		}
		return truthy(args[0]), nil
	})

	return evaluator
}

// RegisterFunction adds a custom function callable in expressions.
func (ce *ConditionEvaluator) RegisterFunction(name string, fn ConditionFunc) {
	ce.functions[name] = fn
}

// Evaluate parses and evaluates expr against the workflow variables.
// The result is coerced to boolean by truthiness, so "count" with
// count=3 gates true the same way "count > 0" does.
func (ce *ConditionEvaluator) Evaluate(expr string, variables map[string]any) (bool, error) {
	tokens, err := tokenizeCondition(expr)
	if err != nil {
		return false, types.WrapError(types.EVALUATION_ERROR,
			fmt.Sprintf("failed to tokenize expression %q", expr), err)
	}

	parser := &conditionParser{
		tokens:    tokens,
		variables: variables,
		evaluator: ce,
	}

	result, err := parser.parseExpression()
	if err != nil {
		return false, types.WrapError(types.EVALUATION_ERROR,
			fmt.Sprintf("failed to evaluate expression %q", expr), err)
	}
	if parser.current().typ != tokenEOF {
		return false, types.NewError(types.EVALUATION_ERROR,
			fmt.Sprintf("unexpected trailing input in expression %q", expr))
	}

	return truthy(result), nil
}

// truthy coerces a value to boolean: false, zero, "", nil, and empty
// collections are false, everything else true.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdentifier
	tokenNumber
	tokenString
	tokenBool
	tokenDot
	tokenComma
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenEQ
	tokenNE
	tokenLT
	tokenLE
	tokenGT
	tokenGE
	tokenAnd
	tokenOr
	tokenNot
)

type token struct {
	typ   tokenType
	value string
}

// tokenizeCondition converts an expression string into tokens.
func tokenizeCondition(expr string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(expr) {
		if expr[i] == ' ' || expr[i] == '\t' || expr[i] == '\n' || expr[i] == '\r' {
			i++
			continue
		}

		switch expr[i] {
		case '.':
			tokens = append(tokens, token{typ: tokenDot, value: "."})
			i++
			continue
		case ',':
			tokens = append(tokens, token{typ: tokenComma, value: ","})
			i++
			continue
		case '(':
			tokens = append(tokens, token{typ: tokenLParen, value: "("})
			i++
			continue
		case ')':
			tokens = append(tokens, token{typ: tokenRParen, value: ")"})
			i++
			continue
		case '[':
			tokens = append(tokens, token{typ: tokenLBracket, value: "["})
			i++
			continue
		case ']':
			tokens = append(tokens, token{typ: tokenRBracket, value: "]"})
			i++
			continue
		}

		if i+1 < len(expr) {
			switch expr[i : i+2] {
			case "==":
				tokens = append(tokens, token{typ: tokenEQ, value: "=="})
				i += 2
				continue
			case "!=":
				tokens = append(tokens, token{typ: tokenNE, value: "!="})
				i += 2
				continue
			case "<=":
				tokens = append(tokens, token{typ: tokenLE, value: "<="})
				i += 2
				continue
			case ">=":
				tokens = append(tokens, token{typ: tokenGE, value: ">="})
				i += 2
				continue
			case "&&":
				tokens = append(tokens, token{typ: tokenAnd, value: "&&"})
				i += 2
				continue
			case "||":
				tokens = append(tokens, token{typ: tokenOr, value: "||"})
				i += 2
				continue
			}
		}

		switch expr[i] {
		case '<':
			tokens = append(tokens, token{typ: tokenLT, value: "<"})
			i++
			continue
		case '>':
			tokens = append(tokens, token{typ: tokenGT, value: ">"})
			i++
			continue
		case '!':
			tokens = append(tokens, token{typ: tokenNot, value: "!"})
			i++
			continue
		}

		if expr[i] == '"' || expr[i] == '\'' {
			quote := expr[i]
			i++
			start := i
			for i < len(expr) && expr[i] != quote {
				if expr[i] == '\\' && i+1 < len(expr) {
					i += 2
				} else {
					i++
				}
			}
			if i >= len(expr) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{typ: tokenString, value: expr[start:i]})
			i++
			continue
		}

		if expr[i] >= '0' && expr[i] <= '9' {
			start := i
			for i < len(expr) && ((expr[i] >= '0' && expr[i] <= '9') || expr[i] == '.') {
				i++
			}
			tokens = append(tokens, token{typ: tokenNumber, value: expr[start:i]})
			continue
		}

		if isIdentStart(expr[i]) {
			start := i
			for i < len(expr) && isIdentPart(expr[i]) {
				i++
			}
			value := expr[start:i]
			if value == "true" || value == "false" {
				tokens = append(tokens, token{typ: tokenBool, value: value})
			} else {
				tokens = append(tokens, token{typ: tokenIdentifier, value: value})
			}
			continue
		}

		return nil, fmt.Errorf("unexpected character at position %d: %c", i, expr[i])
	}

	tokens = append(tokens, token{typ: tokenEOF})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// conditionParser implements a recursive descent parser that evaluates
// as it parses.
type conditionParser struct {
	tokens    []token
	pos       int
	variables map[string]any
	evaluator *ConditionEvaluator
}

func (p *conditionParser) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *conditionParser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *conditionParser) expect(typ tokenType) error {
	if p.current().typ != typ {
		return fmt.Errorf("expected token %v, got %v", typ, p.current().typ)
	}
	p.advance()
	return nil
}

// parseExpression parses the top-level expression (OR binds loosest).
func (p *conditionParser) parseExpression() (any, error) {
	return p.parseOr()
}

func (p *conditionParser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current().typ == tokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}

	return left, nil
}

func (p *conditionParser) parseAnd() (any, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.current().typ == tokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}

	return left, nil
}

func (p *conditionParser) parseNot() (any, error) {
	if p.current().typ == tokenNot {
		p.advance()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return !truthy(expr), nil
	}

	return p.parseComparison()
}

func (p *conditionParser) parseComparison() (any, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	tok := p.current()
	switch tok.typ {
	case tokenEQ, tokenNE, tokenLT, tokenLE, tokenGT, tokenGE:
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return compareValues(left, right, tok.typ)
	}

	return left, nil
}

func (p *conditionParser) parsePrimary() (any, error) {
	tok := p.current()

	switch tok.typ {
	case tokenBool:
		p.advance()
		return tok.value == "true", nil

	case tokenNumber:
		p.advance()
		return strconv.ParseFloat(tok.value, 64)

	case tokenString:
		p.advance()
		return tok.value, nil

	case tokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	case tokenIdentifier:
		return p.parseIdentifierOrFunction()

	default:
		return nil, fmt.Errorf("unexpected token: %v", tok.typ)
	}
}

func (p *conditionParser) parseIdentifierOrFunction() (any, error) {
	name := p.current().value
	p.advance()

	if p.current().typ == tokenLParen {
		return p.parseFunctionCall(name)
	}

	return p.resolvePath(name)
}

func (p *conditionParser) parseFunctionCall(name string) (any, error) {
	fn, ok := p.evaluator.functions[name]
	if !ok {
		return nil, fmt.Errorf("unknown function: %s", name)
	}

	p.advance() // consume '('

	var args []any
	if p.current().typ != tokenRParen {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.current().typ != tokenComma {
				break
			}
			p.advance()
		}
	}

	if err := p.expect(tokenRParen); err != nil {
		return nil, err
	}

	return fn(args)
}

// resolvePath resolves a name like "payload.items" against the workflow
// variables, with optional [] indexing along the way. Missing segments
// resolve to nil rather than failing, so exists() and empty() can probe
// them; only a missing root variable is an error.
func (p *conditionParser) resolvePath(name string) (any, error) {
	if p.variables == nil {
		return nil, fmt.Errorf("variable not found: %s", name)
	}
	current, ok := p.variables[name]
	if !ok {
		return nil, fmt.Errorf("variable not found: %s", name)
	}

	for {
		switch p.current().typ {
		case tokenDot:
			p.advance()
			if p.current().typ != tokenIdentifier {
				return nil, fmt.Errorf("expected identifier after '.'")
			}
			field := p.current().value
			p.advance()

			switch v := current.(type) {
			case map[string]any:
				current = v[field]
			case nil:
				current = nil
			default:
				return nil, fmt.Errorf("cannot access field %s on %T", field, v)
			}

		case tokenLBracket:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokenRBracket); err != nil {
				return nil, err
			}

			switch v := current.(type) {
			case map[string]any:
				key, ok := index.(string)
				if !ok {
					return nil, fmt.Errorf("map index must be string")
				}
				current = v[key]
			case []any:
				num, ok := index.(float64)
				if !ok {
					return nil, fmt.Errorf("array index must be number")
				}
				idx := int(num)
				if idx < 0 || idx >= len(v) {
					return nil, fmt.Errorf("array index out of bounds: %d", idx)
				}
				current = v[idx]
			default:
				return nil, fmt.Errorf("cannot index %T", v)
			}

		default:
			return current, nil
		}
	}
}

func compareValues(left, right any, op tokenType) (bool, error) {
	switch op {
	case tokenEQ:
		return valuesEqual(left, right), nil
	case tokenNE:
		return !valuesEqual(left, right), nil
	default:
		return compareOrdered(left, right, op)
	}
}

// valuesEqual compares values with numeric coercion so that an int
// variable equals a numeric literal.
func valuesEqual(left, right any) bool {
	if left == nil && right == nil {
		return true
	}
	if left == nil || right == nil {
		return false
	}

	if ln, lok := toNumber(left); lok {
		if rn, rok := toNumber(right); rok {
			return ln == rn
		}
	}

	switch l := left.(type) {
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	default:
		return false
	}
}

func compareOrdered(left, right any, op tokenType) (bool, error) {
	leftNum, leftOk := toNumber(left)
	rightNum, rightOk := toNumber(right)

	if !leftOk || !rightOk {
		leftStr, leftStrOk := left.(string)
		rightStr, rightStrOk := right.(string)
		if !leftStrOk || !rightStrOk {
			return false, fmt.Errorf("cannot compare %T and %T", left, right)
		}

		switch op {
		case tokenLT:
			return leftStr < rightStr, nil
		case tokenLE:
			return leftStr <= rightStr, nil
		case tokenGT:
			return leftStr > rightStr, nil
		case tokenGE:
			return leftStr >= rightStr, nil
		}
	}

	switch op {
	case tokenLT:
		return leftNum < rightNum, nil
	case tokenLE:
		return leftNum <= rightNum, nil
	case tokenGT:
		return leftNum > rightNum, nil
	case tokenGE:
		return leftNum >= rightNum, nil
	default:
		return false, fmt.Errorf("unknown comparison operator: %v", op)
	}
}

// toNumber converts a value to float64 when it is numeric. Strings are
// not coerced: "3" is not a number in comparisons.
func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}
