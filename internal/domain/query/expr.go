package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/numeric"
)

// ErrUnsupportedExpression is returned when a filter cannot be translated or evaluated.
var ErrUnsupportedExpression = errs.New("query", errs.CodeUnsupported)

// Expr is a filter expression over the fields of a record.
type Expr interface {
	isExpr()
}

// Op is a unary-free binary operator.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpGt  Op = ">"
	OpGe  Op = ">="
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
)

// IsComparison reports whether op yields a boolean from two operands of the same type.
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// IsLogical reports whether op combines two booleans.
func (op Op) IsLogical() bool { return op == OpAnd || op == OpOr }

// IsArithmetic reports whether op combines two numbers.
func (op Op) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return true
	}
	return false
}

type (
	// Constant is a literal value.
	Constant struct{ Value any }
	// Parameter is the record the filter is applied to.
	Parameter struct{ Name string }
	// Member accesses the named field of Of.
	Member struct {
		Of   Expr
		Name string
	}
	// Binary applies Op to two operands.
	Binary struct {
		Op          Op
		Left, Right Expr
	}
	// Not negates a boolean operand.
	Not struct{ Operand Expr }
)

func (Constant) isExpr()  {}
func (Parameter) isExpr() {}
func (Member) isExpr()    {}
func (Binary) isExpr()    {}
func (Not) isExpr()       {}

// Const returns a constant expression.
func Const(v any) Expr { return Constant{Value: v} }

// Field returns the member access chain path[0].path[1]...path[n], rooted at a
// parameter named path[0].
func Field(path ...string) Expr {
	if len(path) == 0 {
		return Parameter{}
	}
	var e Expr = Parameter{Name: path[0]}
	for _, name := range path[1:] {
		e = Member{Of: e, Name: name}
	}
	return e
}

func Eq(l, r Expr) Expr  { return Binary{Op: OpEq, Left: l, Right: r} }
func Ne(l, r Expr) Expr  { return Binary{Op: OpNe, Left: l, Right: r} }
func Lt(l, r Expr) Expr  { return Binary{Op: OpLt, Left: l, Right: r} }
func Le(l, r Expr) Expr  { return Binary{Op: OpLe, Left: l, Right: r} }
func Gt(l, r Expr) Expr  { return Binary{Op: OpGt, Left: l, Right: r} }
func Ge(l, r Expr) Expr  { return Binary{Op: OpGe, Left: l, Right: r} }
func Add(l, r Expr) Expr { return Binary{Op: OpAdd, Left: l, Right: r} }
func Sub(l, r Expr) Expr { return Binary{Op: OpSub, Left: l, Right: r} }
func Mul(l, r Expr) Expr { return Binary{Op: OpMul, Left: l, Right: r} }
func Div(l, r Expr) Expr { return Binary{Op: OpDiv, Left: l, Right: r} }

// And folds operands with logical and. No operands yields the constant true.
func And(operands ...Expr) Expr { return fold(OpAnd, true, operands) }

// Or folds operands with logical or. No operands yields the constant false.
func Or(operands ...Expr) Expr { return fold(OpOr, false, operands) }

// Negate returns the logical negation of e.
func Negate(e Expr) Expr { return Not{Operand: e} }

func fold(op Op, identity bool, operands []Expr) Expr {
	if len(operands) == 0 {
		return Constant{Value: identity}
	}
	out := operands[0]
	for _, next := range operands[1:] {
		out = Binary{Op: op, Left: out, Right: next}
	}
	return out
}

// virtualMembers name accesses into embedded structs that are flattened into the
// record's row rather than stored as columns of their own.
var virtualMembers = map[string]struct{}{
	"value":    {},
	"fields":   {},
	"security": {},
	"info":     {},
	"index":    {},
	"quote":    {},
}

// ColumnOf collapses a member access chain to the flat column it addresses. Virtual
// members are skipped and the remaining names are joined with underscores, so
// value.bid.price addresses bid_price.
func ColumnOf(e Expr) (string, error) {
	var names []string
	for {
		switch node := e.(type) {
		case Member:
			if _, virtual := virtualMembers[node.Name]; !virtual {
				names = append(names, node.Name)
			}
			e = node.Of
			continue
		case Parameter:
			if len(names) == 0 {
				return "", unsupported("member access %q names no column", node.Name)
			}
			for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
				names[i], names[j] = names[j], names[i]
			}
			return strings.ToLower(strings.Join(names, "_")), nil
		default:
			return "", unsupported("member access on %T", e)
		}
	}
}

// Normalize maps a constant to the representation its column is stored with: fixed
// point amounts become their raw int64, instants become unix nanoseconds, and codes
// become strings.
func Normalize(v any) (any, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case string:
		return value, nil
	case bool:
		return value, nil
	case int:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case int64:
		return value, nil
	case uint32:
		return int64(value), nil
	case float32:
		return float64(value), nil
	case float64:
		return value, nil
	case numeric.Money:
		return value.Raw(), nil
	case numeric.Quantity:
		return value.Raw(), nil
	case time.Time:
		return value.UnixNano(), nil
	case time.Duration:
		return int64(value), nil
	case marketdata.Sequence:
		return int64(value), nil
	case marketdata.Side:
		return int64(value), nil
	case region.MarketCode:
		return string(value), nil
	case region.CountryCode:
		return string(value), nil
	default:
		return nil, unsupported("constant of type %T", v)
	}
}

func unsupported(format string, args ...any) error {
	return errs.NotSupported("query", fmt.Sprintf(format, args...))
}
