package query

import (
	"strings"
)

// Row is a flattened record: column name to normalized value.
type Row map[string]any

// Matches evaluates filter against row. A nil filter matches every row. A filter that
// evaluates to null, such as a comparison against a division by zero, does not match,
// as in a SQL WHERE clause.
func Matches(filter Expr, row Row) (bool, error) {
	if filter == nil {
		return true, nil
	}
	v, err := Evaluate(filter, row)
	if err != nil || v == nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, unsupported("filter yields %T, not bool", v)
	}
	return b, nil
}

// Evaluate computes e over row with the same column resolution the SQL translator uses.
// Division by zero yields nil, the SQL null, which propagates through arithmetic and
// comparisons; and/or follow SQL three-valued logic.
func Evaluate(e Expr, row Row) (any, error) {
	switch node := e.(type) {
	case Constant:
		return Normalize(node.Value)
	case Parameter, Member:
		column, err := ColumnOf(node)
		if err != nil {
			return nil, err
		}
		v, ok := row[column]
		if !ok {
			return nil, unsupported("unknown column %q", column)
		}
		return v, nil
	case Not:
		v, err := Evaluate(node.Operand, row)
		if err != nil || v == nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, unsupported("not applied to %T", v)
		}
		return !b, nil
	case Binary:
		return evaluateBinary(node, row)
	default:
		return nil, unsupported("expression %T", e)
	}
}

func evaluateBinary(node Binary, row Row) (any, error) {
	left, err := Evaluate(node.Left, row)
	if err != nil {
		return nil, err
	}
	right, err := Evaluate(node.Right, row)
	if err != nil {
		return nil, err
	}
	switch {
	case node.Op.IsLogical():
		return logical(node.Op, left, right)
	case left == nil || right == nil:
		if !node.Op.IsComparison() && !node.Op.IsArithmetic() {
			return nil, unsupported("operator %q", node.Op)
		}
		return nil, nil
	case node.Op.IsComparison():
		c, err := compare(left, right)
		if err != nil {
			return nil, err
		}
		switch node.Op {
		case OpEq:
			return c == 0, nil
		case OpNe:
			return c != 0, nil
		case OpLt:
			return c < 0, nil
		case OpLe:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case node.Op.IsArithmetic():
		return arithmetic(node.Op, left, right)
	default:
		return nil, unsupported("operator %q", node.Op)
	}
}

// logical applies and/or where nil is the unknown truth value.
func logical(op Op, left, right any) (any, error) {
	l, lok := left.(bool)
	r, rok := right.(bool)
	if (!lok && left != nil) || (!rok && right != nil) {
		return nil, unsupported("%s applied to %T and %T", op, left, right)
	}
	// The value that decides the result regardless of the other operand.
	decisive := op == OpOr
	if (lok && l == decisive) || (rok && r == decisive) {
		return decisive, nil
	}
	if left == nil || right == nil {
		return nil, nil
	}
	return !decisive, nil
}

func compare(left, right any) (int, error) {
	switch l := left.(type) {
	case int64:
		switch r := right.(type) {
		case int64:
			return cmp(l, r), nil
		case float64:
			return cmp(float64(l), r), nil
		}
	case float64:
		switch r := right.(type) {
		case int64:
			return cmp(l, float64(r)), nil
		case float64:
			return cmp(l, r), nil
		}
	case string:
		if r, ok := right.(string); ok {
			return strings.Compare(l, r), nil
		}
	case bool:
		if r, ok := right.(bool); ok {
			switch {
			case l == r:
				return 0, nil
			case !l:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, unsupported("comparison of %T and %T", left, right)
}

func arithmetic(op Op, left, right any) (any, error) {
	li, liok := left.(int64)
	ri, riok := right.(int64)
	if liok && riok {
		switch op {
		case OpAdd:
			return li + ri, nil
		case OpSub:
			return li - ri, nil
		case OpMul:
			return li * ri, nil
		default:
			if ri == 0 {
				return nil, nil
			}
			return li / ri, nil
		}
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, unsupported("%s applied to %T and %T", op, left, right)
	}
	switch op {
	case OpAdd:
		return lf + rf, nil
	case OpSub:
		return lf - rf, nil
	case OpMul:
		return lf * rf, nil
	default:
		if rf == 0 {
			return nil, nil
		}
		return lf / rf, nil
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cmp[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
