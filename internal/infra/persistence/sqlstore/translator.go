package sqlstore

import (
	"strings"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/query"
)

// Fragment is a SQL snippet written with ? placeholders and its arguments.
type Fragment struct {
	SQL  string
	Args []any
}

func (f Fragment) isEmpty() bool { return f.SQL == "" }

// and joins the non-empty fragments with AND.
func and(fragments ...Fragment) Fragment {
	var (
		parts []string
		args  []any
	)
	for _, f := range fragments {
		if f.isEmpty() {
			continue
		}
		parts = append(parts, f.SQL)
		args = append(args, f.Args...)
	}
	if len(parts) == 0 {
		return Fragment{SQL: "TRUE"}
	}
	return Fragment{SQL: strings.Join(parts, " AND "), Args: args}
}

// Translator renders filter expressions as SQL over the columns of one table.
type Translator struct {
	columns map[string]struct{}
}

// NewTranslator returns a translator resolving member accesses to columns.
func NewTranslator(columns []string) Translator {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return Translator{columns: set}
}

// Translate renders e. Member access chains collapse to the column they address
// (value.bid.price is bid_price); Money and Quantity constants become their raw
// fixed-point integers and instants become unix nanoseconds. Expressions naming an
// unknown column or of an unsupported shape fail with query.ErrUnsupportedExpression.
func (t Translator) Translate(e query.Expr) (Fragment, error) {
	var (
		b    strings.Builder
		args []any
	)
	if err := t.write(&b, &args, e); err != nil {
		return Fragment{}, err
	}
	return Fragment{SQL: b.String(), Args: args}, nil
}

var sqlOperators = map[query.Op]string{
	query.OpEq:  "=",
	query.OpNe:  "<>",
	query.OpLt:  "<",
	query.OpLe:  "<=",
	query.OpGt:  ">",
	query.OpGe:  ">=",
	query.OpAnd: "AND",
	query.OpOr:  "OR",
	query.OpAdd: "+",
	query.OpSub: "-",
	query.OpMul: "*",
	query.OpDiv: "/",
}

func (t Translator) write(b *strings.Builder, args *[]any, e query.Expr) error {
	switch node := e.(type) {
	case query.Constant:
		v, err := query.Normalize(node.Value)
		if err != nil {
			return err
		}
		switch value := v.(type) {
		case nil:
			b.WriteString("NULL")
		case bool:
			if value {
				b.WriteString("TRUE")
			} else {
				b.WriteString("FALSE")
			}
		default:
			b.WriteByte('?')
			*args = append(*args, value)
		}
		return nil
	case query.Parameter, query.Member:
		column, err := query.ColumnOf(node)
		if err != nil {
			return err
		}
		if _, ok := t.columns[column]; !ok {
			return errs.New("query", errs.CodeUnsupported,
				errs.WithMessage("unknown column"),
				errs.WithField("column", column),
				errs.WithRemediation("filter on a column of the record kind being loaded"))
		}
		b.WriteString(column)
		return nil
	case query.Not:
		b.WriteString("(NOT ")
		if err := t.write(b, args, node.Operand); err != nil {
			return err
		}
		b.WriteByte(')')
		return nil
	case query.Binary:
		op, ok := sqlOperators[node.Op]
		if !ok {
			return unsupported("operator " + string(node.Op))
		}
		b.WriteByte('(')
		if err := t.write(b, args, node.Left); err != nil {
			return err
		}
		b.WriteString(" " + op + " ")
		if node.Op == query.OpDiv {
			// SQLite yields null on a zero divisor where PostgreSQL raises an error.
			b.WriteString("NULLIF(")
		}
		if err := t.write(b, args, node.Right); err != nil {
			return err
		}
		if node.Op == query.OpDiv {
			b.WriteString(", 0)")
		}
		b.WriteByte(')')
		return nil
	case nil:
		return unsupported("empty expression")
	default:
		return unsupported("expression shape")
	}
}

func unsupported(msg string) error {
	return errs.NotSupported("query", msg)
}
