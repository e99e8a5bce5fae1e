package runtime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// ConditionEvaluator decides the branch of a condition step.
type ConditionEvaluator interface {
	Evaluate(expression string, data map[string]any) (bool, error)
}

// SafeEvaluator resolves templates in the expression and evaluates the
// result with a closed grammar: literals, bare words, comparison, boolean
// operators and parentheses. Nothing can be called, indexed or looked up,
// so a hostile expression has no way to reach the host.
//
// Values are substituted as raw text. A string holding spaces or
// punctuation only parses when the expression quotes it:
//
//	'${email}' == 'ada@example.com'
type SafeEvaluator struct{}

var _ ConditionEvaluator = SafeEvaluator{}

var errNotBoolean = errors.New("condition did not evaluate to a boolean")

func (SafeEvaluator) Evaluate(expression string, data map[string]any) (bool, error) {
	resolved := strings.TrimSpace(Resolve(expression, data))
	if resolved == "" {
		return false, errors.New("empty condition")
	}

	tree, err := parser.Parse(normalizeOperators(resolved))
	if err != nil {
		return false, fmt.Errorf("parse condition %q: %w", resolved, err)
	}

	v, err := evalNode(tree.Node)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", resolved, err)
	}

	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", errNotBoolean, v)
	}
	return b, nil
}

// normalizeOperators rewrites the strict equality operators === and !== to
// == and != outside of string literals.
func normalizeOperators(s string) string {
	if !strings.Contains(s, "==") {
		return s
	}

	var b strings.Builder
	var quote rune
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			b.WriteRune(r)
			if r == '\\' && i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			} else if r == quote {
				quote = 0
			}
			continue
		}
		switch {
		case r == '"' || r == '\'' || r == '`':
			quote = r
			b.WriteRune(r)
		case (r == '=' || r == '!') && i+2 < len(runes) && runes[i+1] == '=' && runes[i+2] == '=':
			b.WriteRune(r)
			b.WriteRune('=')
			i += 2
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func evalNode(node ast.Node) (any, error) {
	switch n := node.(type) {
	case *ast.NilNode:
		return nil, nil
	case *ast.BoolNode:
		return n.Value, nil
	case *ast.IntegerNode:
		return float64(n.Value), nil
	case *ast.FloatNode:
		return n.Value, nil
	case *ast.StringNode:
		return n.Value, nil
	case *ast.ConstantNode:
		return literal(n.Value)
	case *ast.IdentifierNode:
		// Unquoted words left behind by template substitution compare as strings.
		switch n.Value {
		case "null", "undefined":
			return nil, nil
		}
		return n.Value, nil
	case *ast.UnaryNode:
		return evalUnary(n)
	case *ast.BinaryNode:
		return evalBinary(n)
	default:
		return nil, fmt.Errorf("unsupported expression %T", node)
	}
}

func literal(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	}
	return nil, fmt.Errorf("unsupported constant %T", v)
}

func evalUnary(n *ast.UnaryNode) (any, error) {
	v, err := evalNode(n.Node)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "!", "not":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("operator %s needs a boolean, got %T", n.Operator, v)
		}
		return !b, nil
	case "-", "+":
		f, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("operator %s needs a number, got %T", n.Operator, v)
		}
		if n.Operator == "-" {
			return -f, nil
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", n.Operator)
}

func evalBinary(n *ast.BinaryNode) (any, error) {
	switch n.Operator {
	case "&&", "and":
		left, err := evalBool(n.Left)
		if err != nil || !left {
			return false, err
		}
		return evalBool(n.Right)
	case "||", "or":
		left, err := evalBool(n.Left)
		if err != nil || left {
			return left, err
		}
		return evalBool(n.Right)
	}

	left, err := evalNode(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := evalNode(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		c, err := compare(left, right)
		if err != nil {
			return nil, err
		}
		switch n.Operator {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator %q", n.Operator)
}

func evalBool(node ast.Node) (bool, error) {
	v, err := evalNode(node)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", errNotBoolean, v)
	}
	return b, nil
}

// looseEqual treats a number and a numeric string as comparable; any other
// pair of different types is unequal.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		if y, ok := b.(string); ok {
			return x == y
		}
	}

	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	return okA && okB && fa == fb
}

func compare(a, b any) (int, error) {
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	}

	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	if !okA || !okB {
		return 0, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	switch {
	case fa < fb:
		return -1, nil
	case fa > fb:
		return 1, nil
	}
	return 0, nil
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
