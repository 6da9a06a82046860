package pgvector

import (
	"errors"
	"reflect"
	"testing"

	"github.com/veldt-io/vecstore/pkg/vecstore"
)

func compile(t *testing.T, raw map[string]any) (string, []any) {
	t.Helper()
	f, err := vecstore.ParseFilter(raw)
	if err != nil {
		t.Fatalf("parsing filter: %v", err)
	}
	var args []any
	sql, err := compileFilter(f, &args)
	if err != nil {
		t.Fatalf("compiling filter: %v", err)
	}
	return sql, args
}

func TestCompileFilterNil(t *testing.T) {
	var args []any
	sql, err := compileFilter(nil, &args)
	if err != nil {
		t.Fatalf("compileFilter(nil): %v", err)
	}
	if sql != "TRUE" {
		t.Errorf("got %q, want TRUE", sql)
	}
	if len(args) != 0 {
		t.Errorf("nil filter appended %d args", len(args))
	}
}

func TestCompileComparisons(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "eq string",
			raw:      map[string]any{"topic": "animals"},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'string' AND metadata->>$1 = $2)`,
			wantArgs: []any{"topic", "animals"},
		},
		{
			name:     "eq number widened",
			raw:      map[string]any{"id": 7},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'number' AND (metadata->$1)::numeric = $2)`,
			wantArgs: []any{"id", float64(7)},
		},
		{
			name:     "eq boolean",
			raw:      map[string]any{"live": true},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'boolean' AND (metadata->$1)::boolean = $2)`,
			wantArgs: []any{"live", true},
		},
		{
			name:     "ne requires presence",
			raw:      map[string]any{"topic": map[string]any{"$ne": "animals"}},
			wantSQL:  `(metadata ? $1 AND NOT (jsonb_typeof(metadata->$1) = 'string' AND metadata->>$1 = $2))`,
			wantArgs: []any{"topic", "animals"},
		},
		{
			name:     "lt number",
			raw:      map[string]any{"price": map[string]any{"$lt": 10.5}},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'number' AND (metadata->$1)::numeric < $2)`,
			wantArgs: []any{"price", 10.5},
		},
		{
			name:     "gte string",
			raw:      map[string]any{"name": map[string]any{"$gte": "m"}},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'string' AND metadata->>$1 >= $2)`,
			wantArgs: []any{"name", "m"},
		},
		{
			name:     "between",
			raw:      map[string]any{"id": map[string]any{"$between": []any{1, 5}}},
			wantSQL:  `((jsonb_typeof(metadata->$1) = 'number' AND (metadata->$1)::numeric >= $2) AND (jsonb_typeof(metadata->$1) = 'number' AND (metadata->$1)::numeric <= $3))`,
			wantArgs: []any{"id", float64(1), float64(5)},
		},
		{
			name:     "in numbers binds one slice",
			raw:      map[string]any{"id": map[string]any{"$in": []any{1, 5, 9}}},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'number' AND (metadata->$1)::numeric = ANY($2))`,
			wantArgs: []any{"id", []float64{1, 5, 9}},
		},
		{
			name:     "in strings",
			raw:      map[string]any{"location": map[string]any{"$in": []any{"pond", "market"}}},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'string' AND metadata->>$1 = ANY($2))`,
			wantArgs: []any{"location", []string{"pond", "market"}},
		},
		{
			name:     "nin requires presence",
			raw:      map[string]any{"location": map[string]any{"$nin": []any{"barn"}}},
			wantSQL:  `(metadata ? $1 AND NOT (jsonb_typeof(metadata->$1) = 'string' AND metadata->>$1 = ANY($2)))`,
			wantArgs: []any{"location", []string{"barn"}},
		},
		{
			name:     "like",
			raw:      map[string]any{"name": map[string]any{"$like": "al%"}},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'string' AND metadata->>$1 LIKE $2)`,
			wantArgs: []any{"name", "al%"},
		},
		{
			name:     "ilike",
			raw:      map[string]any{"name": map[string]any{"$ilike": "AL%"}},
			wantSQL:  `(jsonb_typeof(metadata->$1) = 'string' AND metadata->>$1 ILIKE $2)`,
			wantArgs: []any{"name", "AL%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compile(t, tt.raw)
			if sql != tt.wantSQL {
				t.Errorf("sql:\n got  %s\n want %s", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args: got %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}

func TestCompileLogical(t *testing.T) {
	sql, args := compile(t, map[string]any{
		"$or": []any{
			map[string]any{"topic": "animals"},
			map[string]any{"id": map[string]any{"$gt": 3}},
		},
	})
	want := `((jsonb_typeof(metadata->$1) = 'string' AND metadata->>$1 = $2) OR (jsonb_typeof(metadata->$3) = 'number' AND (metadata->$3)::numeric > $4))`
	if sql != want {
		t.Errorf("sql:\n got  %s\n want %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"topic", "animals", "id", float64(3)}) {
		t.Errorf("args: got %#v", args)
	}
}

func TestCompileBareMappingMatchesExplicitAnd(t *testing.T) {
	sugarSQL, sugarArgs := compile(t, map[string]any{
		"location": "pond",
		"id":       map[string]any{"$in": []any{1, 2}},
	})
	explicitSQL, explicitArgs := compile(t, map[string]any{
		"$and": []any{
			map[string]any{"id": map[string]any{"$in": []any{1, 2}}},
			map[string]any{"location": "pond"},
		},
	})
	if sugarSQL != explicitSQL {
		t.Errorf("forms differ:\n sugar    %s\n explicit %s", sugarSQL, explicitSQL)
	}
	if !reflect.DeepEqual(sugarArgs, explicitArgs) {
		t.Errorf("args differ: %#v vs %#v", sugarArgs, explicitArgs)
	}
}

func TestPlaceholdersContinueFromExistingArgs(t *testing.T) {
	f, err := vecstore.ParseFilter(map[string]any{"topic": "animals"})
	if err != nil {
		t.Fatalf("parsing filter: %v", err)
	}
	args := []any{"collection-uuid", "[1,2]"}
	sql, err := compileFilter(f, &args)
	if err != nil {
		t.Fatalf("compiling filter: %v", err)
	}
	want := `(jsonb_typeof(metadata->$3) = 'string' AND metadata->>$3 = $4)`
	if sql != want {
		t.Errorf("got %s, want %s", sql, want)
	}
	if len(args) != 4 {
		t.Errorf("args length %d, want 4", len(args))
	}
}

func TestCompileRejectsInvalidFilters(t *testing.T) {
	// Invalid trees are rejected up front, never degraded to an unfiltered
	// query.
	invalid := []map[string]any{
		{"id": map[string]any{"$in": []any{}}},
		{"id": map[string]any{"$between": []any{1}}},
		{"id": map[string]any{"$lt": true}},
		{"name": map[string]any{"$like": 5}},
		{"id": map[string]any{"$in": []any{1, "two"}}},
	}
	for _, raw := range invalid {
		if _, err := vecstore.ParseFilter(raw); !errors.Is(err, vecstore.ErrInvalidFilter) {
			t.Errorf("ParseFilter(%v) = %v, want ErrInvalidFilter", raw, err)
		}
	}

	var args []any
	if _, err := compileFilter(vecstore.Comparison{Field: "id", Op: "$regex", Value: "x"}, &args); !errors.Is(err, vecstore.ErrInvalidFilter) {
		t.Errorf("unknown operator: got %v, want ErrInvalidFilter", err)
	}
}
