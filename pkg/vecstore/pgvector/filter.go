package pgvector

import (
	"fmt"
	"strings"

	"github.com/veldt-io/vecstore/pkg/vecstore"
)

// compileFilter renders a filter tree as a parameterized SQL predicate over
// the documents.metadata JSONB column. Arguments are appended to args;
// placeholders continue from its current length. A nil filter compiles to
// "TRUE".
//
// Comparisons preserve the stored type: every predicate is guarded by
// jsonb_typeof on the stored field, so a stored number is never compared
// against a query string and a missing field matches nothing. Compile
// failures surface as vecstore.ErrInvalidFilter; they are never silently
// degraded to an unfiltered query.
func compileFilter(f vecstore.Filter, args *[]any) (string, error) {
	if f == nil {
		return "TRUE", nil
	}
	if err := vecstore.Validate(f); err != nil {
		return "", err
	}
	return compileNode(f, args)
}

func compileNode(f vecstore.Filter, args *[]any) (string, error) {
	switch node := f.(type) {
	case vecstore.Comparison:
		return compileComparison(node, args)
	case vecstore.Logical:
		parts := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			sql, err := compileNode(child, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, sql)
		}
		joiner := " AND "
		if node.Op == vecstore.OpOr {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	default:
		return "", fmt.Errorf("%w: unknown filter node %T", vecstore.ErrInvalidFilter, f)
	}
}

func compileComparison(c vecstore.Comparison, args *[]any) (string, error) {
	field := placeholder(args, c.Field)

	switch c.Op {
	case vecstore.OpEq:
		return scalarEq(field, c.Value, args)
	case vecstore.OpNe:
		eq, err := scalarEq(field, c.Value, args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(metadata ? %s AND NOT %s)", field, eq), nil
	case vecstore.OpLt, vecstore.OpLte, vecstore.OpGt, vecstore.OpGte:
		return ordering(field, sqlOp(c.Op), c.Value, args), nil
	case vecstore.OpIn:
		return membership(field, c.Value, args)
	case vecstore.OpNin:
		in, err := membership(field, c.Value, args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(metadata ? %s AND NOT %s)", field, in), nil
	case vecstore.OpBetween:
		bounds, err := elements(c.Value)
		if err != nil || len(bounds) != 2 {
			return "", fmt.Errorf("%w: $between on field %q requires a 2-element pair", vecstore.ErrInvalidFilter, c.Field)
		}
		lo := ordering(field, ">=", bounds[0], args)
		hi := ordering(field, "<=", bounds[1], args)
		return fmt.Sprintf("(%s AND %s)", lo, hi), nil
	case vecstore.OpLike, vecstore.OpILike:
		match := "LIKE"
		if c.Op == vecstore.OpILike {
			match = "ILIKE"
		}
		pattern := placeholder(args, c.Value)
		return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'string' AND metadata->>%s %s %s)", field, field, match, pattern), nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", vecstore.ErrInvalidFilter, c.Op)
	}
}

// scalarEq builds a type-guarded equality predicate for one scalar operand.
func scalarEq(field string, value any, args *[]any) (string, error) {
	arg := placeholder(args, normalize(value))
	switch vecstore.ScalarKind(value) {
	case vecstore.KindNumber:
		return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'number' AND (metadata->%s)::numeric = %s)", field, field, arg), nil
	case vecstore.KindString:
		return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'string' AND metadata->>%s = %s)", field, field, arg), nil
	case vecstore.KindBoolean:
		return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'boolean' AND (metadata->%s)::boolean = %s)", field, field, arg), nil
	default:
		return "", fmt.Errorf("%w: non-scalar operand %T", vecstore.ErrInvalidFilter, value)
	}
}

// ordering builds a type-guarded comparison; validation has already
// restricted the operand to a number or string.
func ordering(field, op string, value any, args *[]any) string {
	arg := placeholder(args, normalize(value))
	if vecstore.ScalarKind(value) == vecstore.KindNumber {
		return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'number' AND (metadata->%s)::numeric %s %s)", field, field, op, arg)
	}
	return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'string' AND metadata->>%s %s %s)", field, field, op, arg)
}

// membership builds a type-guarded ANY() predicate for $in lists.
// Validation guarantees a non-empty homogeneous list.
func membership(field string, value any, args *[]any) (string, error) {
	list, err := elements(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", vecstore.ErrInvalidFilter, err)
	}

	switch vecstore.ScalarKind(list[0]) {
	case vecstore.KindNumber:
		items := make([]float64, len(list))
		for i, item := range list {
			n, _ := vecstore.Number(item)
			items[i] = n
		}
		arg := placeholder(args, items)
		return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'number' AND (metadata->%s)::numeric = ANY(%s))", field, field, arg), nil
	case vecstore.KindString:
		items := make([]string, len(list))
		for i, item := range list {
			items[i] = item.(string)
		}
		arg := placeholder(args, items)
		return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'string' AND metadata->>%s = ANY(%s))", field, field, arg), nil
	case vecstore.KindBoolean:
		items := make([]bool, len(list))
		for i, item := range list {
			items[i] = item.(bool)
		}
		arg := placeholder(args, items)
		return fmt.Sprintf("(jsonb_typeof(metadata->%s) = 'boolean' AND (metadata->%s)::boolean = ANY(%s))", field, field, arg), nil
	default:
		return "", fmt.Errorf("%w: unsupported list element %T", vecstore.ErrInvalidFilter, list[0])
	}
}

// placeholder appends v to args and returns its positional placeholder.
func placeholder(args *[]any, v any) string {
	*args = append(*args, v)
	return fmt.Sprintf("$%d", len(*args))
}

// normalize widens numeric operands to float64 so pgx binds them uniformly.
func normalize(v any) any {
	if n, ok := vecstore.Number(v); ok {
		return n
	}
	return v
}

// elements flattens the supported list operand shapes.
func elements(v any) ([]any, error) {
	switch list := v.(type) {
	case []any:
		return list, nil
	case []string:
		items := make([]any, len(list))
		for i, s := range list {
			items[i] = s
		}
		return items, nil
	case []int:
		items := make([]any, len(list))
		for i, n := range list {
			items[i] = n
		}
		return items, nil
	case []float64:
		items := make([]any, len(list))
		for i, n := range list {
			items[i] = n
		}
		return items, nil
	}
	return nil, fmt.Errorf("requires a list value, got %T", v)
}

// sqlOp maps an ordering operator to its SQL spelling.
func sqlOp(op vecstore.CompareOp) string {
	switch op {
	case vecstore.OpLt:
		return "<"
	case vecstore.OpLte:
		return "<="
	case vecstore.OpGt:
		return ">"
	default:
		return ">="
	}
}
