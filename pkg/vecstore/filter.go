package vecstore

import (
	"fmt"
	"sort"
)

// CompareOp is a comparison operator in a filter leaf.
type CompareOp string

// Comparison operators, keyed by their wire-format sigil.
const (
	OpEq      CompareOp = "$eq"
	OpNe      CompareOp = "$ne"
	OpLt      CompareOp = "$lt"
	OpLte     CompareOp = "$lte"
	OpGt      CompareOp = "$gt"
	OpGte     CompareOp = "$gte"
	OpIn      CompareOp = "$in"
	OpNin     CompareOp = "$nin"
	OpBetween CompareOp = "$between"
	OpLike    CompareOp = "$like"
	OpILike   CompareOp = "$ilike"
)

// LogicalOp joins the children of a combinator node.
type LogicalOp string

const (
	OpAnd LogicalOp = "$and"
	OpOr  LogicalOp = "$or"
)

// Filter is a metadata filter expression tree: either a Comparison leaf or
// a Logical combinator. The type is sealed so compilers can switch
// exhaustively over the two variants.
type Filter interface {
	isFilter()
}

// Comparison is a leaf node comparing a metadata field against a value.
//
// Value types by operator: scalar (string, number, bool) for $eq/$ne and the
// ordering operators; a non-empty list for $in/$nin; a 2-element ordered
// pair for $between; a string pattern for $like/$ilike.
type Comparison struct {
	Field string
	Op    CompareOp
	Value any
}

// Logical is a combinator node joining one or more child filters.
type Logical struct {
	Op       LogicalOp
	Children []Filter
}

func (Comparison) isFilter() {}
func (Logical) isFilter()    {}

// ParseFilter turns the JSON-like wire format into a Filter tree and
// validates it. A nil or empty mapping yields a nil Filter (no filtering).
//
// A bare mapping of field to scalar value is sugar for an AND of equality
// leaves; the desugaring happens exactly once at the root, so operand
// values that are themselves mappings or lists (a $between pair, an $in
// list) are treated as data, never as nested filters.
func ParseFilter(raw map[string]any) (Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return parseNode(raw)
}

// parseNode parses one filter mapping: either a single logical combinator
// or a set of per-field conditions joined by an implicit AND.
func parseNode(raw map[string]any) (Filter, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty filter node", ErrInvalidFilter)
	}

	// Field iteration order is fixed so that compiled output is
	// deterministic and the bare-mapping sugar compiles identically to its
	// explicit $and form.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var nodes []Filter
	for _, key := range keys {
		value := raw[key]

		if key == string(OpAnd) || key == string(OpOr) {
			if len(raw) > 1 {
				return nil, fmt.Errorf("%w: combinator %q cannot be mixed with other keys", ErrInvalidFilter, key)
			}
			return parseLogical(LogicalOp(key), value)
		}
		if len(key) > 0 && key[0] == '$' {
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, key)
		}

		fieldNodes, err := parseField(key, value)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, fieldNodes...)
	}

	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return Logical{Op: OpAnd, Children: nodes}, nil
}

// parseLogical parses a $and/$or combinator whose value must be a non-empty
// list of filter mappings.
func parseLogical(op LogicalOp, value any) (Filter, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a list of filters, got %T", ErrInvalidFilter, op, value)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s has no children", ErrInvalidFilter, op)
	}

	children := make([]Filter, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s child %d is %T, want a filter mapping", ErrInvalidFilter, op, i, item)
		}
		child, err := parseNode(m)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return Logical{Op: op, Children: children}, nil
}

// parseField parses one field condition. A scalar value is an implicit
// equality; a mapping of operator sigils yields one leaf per operator.
func parseField(field string, value any) ([]Filter, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		leaf := Comparison{Field: field, Op: OpEq, Value: value}
		if err := leaf.validate(); err != nil {
			return nil, err
		}
		return []Filter{leaf}, nil
	}

	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: field %q has an empty operator mapping", ErrInvalidFilter, field)
	}

	opKeys := make([]string, 0, len(ops))
	for k := range ops {
		opKeys = append(opKeys, k)
	}
	sort.Strings(opKeys)

	var nodes []Filter
	for _, opKey := range opKeys {
		leaf := Comparison{Field: field, Op: CompareOp(opKey), Value: ops[opKey]}
		if err := leaf.validate(); err != nil {
			return nil, err
		}
		nodes = append(nodes, leaf)
	}
	return nodes, nil
}

// validate checks that the operator is known and the operand type is
// compatible with it.
func (c Comparison) validate() error {
	if c.Field == "" {
		return fmt.Errorf("%w: comparison with empty field name", ErrInvalidFilter)
	}

	switch c.Op {
	case OpEq, OpNe:
		if ScalarKind(c.Value) == "" {
			return fmt.Errorf("%w: %s on field %q requires a scalar value, got %T", ErrInvalidFilter, c.Op, c.Field, c.Value)
		}
	case OpLt, OpLte, OpGt, OpGte:
		switch ScalarKind(c.Value) {
		case KindNumber, KindString:
		default:
			return fmt.Errorf("%w: %s on field %q requires a number or string, got %T", ErrInvalidFilter, c.Op, c.Field, c.Value)
		}
	case OpIn, OpNin:
		list, err := scalarList(c.Value)
		if err != nil {
			return fmt.Errorf("%w: %s on field %q: %v", ErrInvalidFilter, c.Op, c.Field, err)
		}
		if len(list) == 0 {
			return fmt.Errorf("%w: %s on field %q requires a non-empty list", ErrInvalidFilter, c.Op, c.Field)
		}
		if !homogeneous(list) {
			return fmt.Errorf("%w: %s on field %q requires a list of one scalar type", ErrInvalidFilter, c.Op, c.Field)
		}
	case OpBetween:
		list, err := scalarList(c.Value)
		if err != nil {
			return fmt.Errorf("%w: %s on field %q: %v", ErrInvalidFilter, c.Op, c.Field, err)
		}
		if len(list) != 2 {
			return fmt.Errorf("%w: %s on field %q requires exactly 2 bounds, got %d", ErrInvalidFilter, c.Op, c.Field, len(list))
		}
		switch ScalarKind(list[0]) {
		case KindNumber, KindString:
		default:
			return fmt.Errorf("%w: %s on field %q requires number or string bounds", ErrInvalidFilter, c.Op, c.Field)
		}
		if !homogeneous(list) {
			return fmt.Errorf("%w: %s on field %q has mixed-type bounds", ErrInvalidFilter, c.Op, c.Field)
		}
	case OpLike, OpILike:
		if _, ok := c.Value.(string); !ok {
			return fmt.Errorf("%w: %s on field %q requires a string pattern, got %T", ErrInvalidFilter, c.Op, c.Field, c.Value)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q on field %q", ErrInvalidFilter, c.Op, c.Field)
	}
	return nil
}

// Validate checks a filter tree, including ones constructed directly rather
// than parsed from the wire format.
func Validate(f Filter) error {
	switch node := f.(type) {
	case nil:
		return nil
	case Comparison:
		return node.validate()
	case Logical:
		if node.Op != OpAnd && node.Op != OpOr {
			return fmt.Errorf("%w: unknown logical operator %q", ErrInvalidFilter, node.Op)
		}
		if len(node.Children) == 0 {
			return fmt.Errorf("%w: %s has no children", ErrInvalidFilter, node.Op)
		}
		for _, child := range node.Children {
			if child == nil {
				return fmt.Errorf("%w: %s has a nil child", ErrInvalidFilter, node.Op)
			}
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown filter node %T", ErrInvalidFilter, f)
	}
}

// Scalar kinds as reported by ScalarKind, matching jsonb_typeof output.
const (
	KindNumber  = "number"
	KindString  = "string"
	KindBoolean = "boolean"
)

// ScalarKind classifies a scalar operand as a number, string, or boolean.
// Returns "" for non-scalar values. All numeric widths produced by JSON
// decoding or by Go callers classify as numbers.
func ScalarKind(v any) string {
	switch v.(type) {
	case string:
		return KindString
	case bool:
		return KindBoolean
	case int, int32, int64, float32, float64:
		return KindNumber
	}
	return ""
}

// homogeneous reports whether all list elements share one scalar kind.
func homogeneous(list []any) bool {
	if len(list) == 0 {
		return true
	}
	kind := ScalarKind(list[0])
	for _, item := range list[1:] {
		if ScalarKind(item) != kind {
			return false
		}
	}
	return true
}

// scalarList coerces a list operand into its elements, rejecting non-list
// values and non-scalar elements.
func scalarList(v any) ([]any, error) {
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		items = make([]any, len(list))
		for i, s := range list {
			items[i] = s
		}
	case []int:
		items = make([]any, len(list))
		for i, n := range list {
			items[i] = n
		}
	case []float64:
		items = make([]any, len(list))
		for i, n := range list {
			items[i] = n
		}
	default:
		return nil, fmt.Errorf("requires a list value, got %T", v)
	}
	for i, item := range items {
		if ScalarKind(item) == "" {
			return nil, fmt.Errorf("element %d is %T, want a scalar", i, item)
		}
	}
	return items, nil
}

// Number converts any supported numeric operand to float64. The second
// return is false for non-numeric values.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
