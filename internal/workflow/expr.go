// Package workflow - expr.go is a small, safe boolean expression evaluator
// for condition steps and condition triggers. It supports literals (numbers,
// quoted strings, true/false), comparisons, !, &&, ||, and parentheses.
// Nothing is ever executed; malformed input returns an error.
package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var substPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteExpr replaces ${name} tokens with literal values so the result
// stays parseable: strings are quoted and escaped, numbers and booleans are
// inserted verbatim. Unknown names are left untouched and will surface as
// parse errors.
func substituteExpr(expr string, lookup func(string) (any, bool)) string {
	return substPattern.ReplaceAllStringFunc(expr, func(token string) string {
		name := substPattern.FindStringSubmatch(token)[1]
		value, ok := lookup(name)
		if !ok {
			return token
		}
		switch v := value.(type) {
		case string:
			return strconv.Quote(v)
		case bool:
			return strconv.FormatBool(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case float32:
			return strconv.FormatFloat(float64(v), 'f', -1, 32)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		default:
			return strconv.Quote(fmt.Sprintf("%v", v))
		}
	})
}

// EvalCondition substitutes ${name} tokens from the execution context and
// evaluates the resulting expression to a boolean.
func EvalCondition(expr string, wctx *Context) (bool, error) {
	return evalBool(substituteExpr(expr, wctx.lookup))
}

func evalBool(expr string) (bool, error) {
	p := &parser{}
	if err := p.tokenize(expr); err != nil {
		return false, err
	}
	value, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if !p.eof() {
		return false, fmt.Errorf("unexpected token %q", p.peek())
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expression is not boolean: %v", value)
	}
	return b, nil
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) tokenize(expr string) error {
	i := 0
	for i < len(expr) {
		ch := expr[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n':
			i++
		case ch == '(' || ch == ')':
			p.tokens = append(p.tokens, string(ch))
			i++
		case strings.HasPrefix(expr[i:], "&&") || strings.HasPrefix(expr[i:], "||") ||
			strings.HasPrefix(expr[i:], "==") || strings.HasPrefix(expr[i:], "!=") ||
			strings.HasPrefix(expr[i:], ">=") || strings.HasPrefix(expr[i:], "<="):
			p.tokens = append(p.tokens, expr[i:i+2])
			i += 2
		case ch == '>' || ch == '<' || ch == '!':
			p.tokens = append(p.tokens, string(ch))
			i++
		case ch == '\'' || ch == '"':
			end := i + 1
			for end < len(expr) && expr[end] != ch {
				if expr[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(expr) {
				return fmt.Errorf("unterminated string literal at offset %d", i)
			}
			p.tokens = append(p.tokens, expr[i:end+1])
			i = end + 1
		case ch >= '0' && ch <= '9' || ch == '-' && i+1 < len(expr) && expr[i+1] >= '0' && expr[i+1] <= '9':
			end := i + 1
			for end < len(expr) && (expr[end] >= '0' && expr[end] <= '9' || expr[end] == '.') {
				end++
			}
			p.tokens = append(p.tokens, expr[i:end])
			i = end
		case isIdentStart(ch):
			end := i + 1
			for end < len(expr) && isIdentPart(expr[end]) {
				end++
			}
			p.tokens = append(p.tokens, expr[i:end])
			i = end
		default:
			return fmt.Errorf("unexpected character %q at offset %d", ch, i)
		}
	}
	return nil
}

func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9'
}

func (p *parser) eof() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() string {
	if p.eof() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) accept(token string) bool {
	if p.peek() == token {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		if !lok || !rok {
			return nil, fmt.Errorf("|| requires boolean operands")
		}
		left = lb || rb
	}
	return left, nil
}

func (p *parser) parseAnd() (any, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		if !lok || !rok {
			return nil, fmt.Errorf("&& requires boolean operands")
		}
		left = lb && rb
	}
	return left, nil
}

func (p *parser) parseNot() (any, error) {
	if p.accept("!") {
		value, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("! requires a boolean operand")
		}
		return !b, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (any, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	op := p.peek()
	switch op {
	case "==", "!=", ">", "<", ">=", "<=":
		p.pos++
	default:
		return left, nil
	}
	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return compare(op, left, right)
}

func compare(op string, left, right any) (bool, error) {
	if lf, lok := toNumber(left); lok {
		rf, rok := toNumber(right)
		if !rok {
			return false, fmt.Errorf("cannot compare number with %v", right)
		}
		switch op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case ">":
			return lf > rf, nil
		case "<":
			return lf < rf, nil
		case ">=":
			return lf >= rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}
	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if !rok {
			return false, fmt.Errorf("cannot compare string with %v", right)
		}
		switch op {
		case "==":
			return ls == rs, nil
		case "!=":
			return ls != rs, nil
		case ">":
			return ls > rs, nil
		case "<":
			return ls < rs, nil
		case ">=":
			return ls >= rs, nil
		case "<=":
			return ls <= rs, nil
		}
	}
	if lb, lok := left.(bool); lok {
		rb, rok := right.(bool)
		if !rok {
			return false, fmt.Errorf("cannot compare boolean with %v", right)
		}
		switch op {
		case "==":
			return lb == rb, nil
		case "!=":
			return lb != rb, nil
		}
		return false, fmt.Errorf("operator %s not defined for booleans", op)
	}
	return false, fmt.Errorf("cannot compare %v %s %v", left, op, right)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (p *parser) parseTerm() (any, error) {
	token := p.peek()
	switch {
	case token == "":
		return nil, fmt.Errorf("unexpected end of expression")
	case token == "(":
		p.pos++
		value, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(")") {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return value, nil
	case token == "true":
		p.pos++
		return true, nil
	case token == "false":
		p.pos++
		return false, nil
	case token[0] == '"':
		p.pos++
		s, err := strconv.Unquote(token)
		if err != nil {
			return nil, fmt.Errorf("invalid string literal %s", token)
		}
		return s, nil
	case token[0] == '\'':
		p.pos++
		body := token[1 : len(token)-1]
		body = strings.ReplaceAll(body, `\'`, `'`)
		body = strings.ReplaceAll(body, `\\`, `\`)
		return body, nil
	case token[0] >= '0' && token[0] <= '9' || token[0] == '-':
		p.pos++
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", token)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown identifier %q", token)
	}
}
