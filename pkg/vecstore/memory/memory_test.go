package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/veldt-io/vecstore/pkg/vecstore"
)

// mapEmbedder returns predefined vectors per text, so distances in tests
// are chosen, not computed.
type mapEmbedder struct {
	dims    int
	vectors map[string][]float32
}

func (m *mapEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := m.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", text)
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mapEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func newTestStore(t *testing.T, vectors map[string][]float32) *Store {
	t.Helper()
	store, err := New(&mapEmbedder{dims: 2, vectors: vectors}, vecstore.MetricCosine, 2)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store
}

func mustParse(t *testing.T, raw map[string]any) vecstore.Filter {
	t.Helper()
	f, err := vecstore.ParseFilter(raw)
	if err != nil {
		t.Fatalf("parsing filter: %v", err)
	}
	return f
}

func TestAddDocumentsGeneratesIDs(t *testing.T) {
	store := newTestStore(t, map[string][]float32{"a": {1, 0}, "b": {0, 1}})

	ids, err := store.AddDocuments(context.Background(), []vecstore.Document{
		{Content: "a"},
		{Content: "b"},
	})
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if len(ids) != 2 || ids[0] == "" || ids[1] == "" || ids[0] == ids[1] {
		t.Errorf("got ids %v, want 2 distinct generated ids", ids)
	}
}

func TestAddDocumentsUpsertOverwrites(t *testing.T) {
	store := newTestStore(t, map[string][]float32{
		"old content": {1, 0},
		"new content": {0, 1},
	})
	ctx := context.Background()

	if _, err := store.AddDocuments(ctx, []vecstore.Document{
		{ID: "x", Content: "old content", Metadata: map[string]any{"v": 1}},
	}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := store.AddDocuments(ctx, []vecstore.Document{
		{ID: "x", Content: "new content", Metadata: map[string]any{"v": 2}},
	}); err != nil {
		t.Fatalf("second add: %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("store has %d documents, want 1", store.Len())
	}

	results, err := store.SimilaritySearch(ctx, "new content", 1, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "new content" {
		t.Fatalf("got %v, want the overwritten content", results)
	}
	if v, _ := vecstore.Number(results[0].Metadata["v"]); v != 2 {
		t.Errorf("metadata v = %v, want 2", results[0].Metadata["v"])
	}
}

func TestAddDocumentsDimensionMismatch(t *testing.T) {
	store := newTestStore(t, map[string][]float32{"bad": {1, 0, 0}})

	_, err := store.AddDocuments(context.Background(), []vecstore.Document{{Content: "bad"}})
	if !errors.Is(err, vecstore.ErrEmbedding) {
		t.Errorf("AddDocuments = %v, want ErrEmbedding", err)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d documents after failed batch, want 0", store.Len())
	}
}

func TestAddDocumentsBatchIsAllOrNothing(t *testing.T) {
	store := newTestStore(t, map[string][]float32{
		"good": {1, 0},
		"bad":  {1, 0, 0},
	})

	_, err := store.AddDocuments(context.Background(), []vecstore.Document{
		{ID: "g", Content: "good"},
		{ID: "b", Content: "bad"},
	})
	if !errors.Is(err, vecstore.ErrEmbedding) {
		t.Fatalf("AddDocuments = %v, want ErrEmbedding", err)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d documents, want 0 after failed batch", store.Len())
	}
}

func TestDeleteNonexistentIsNoOp(t *testing.T) {
	store := newTestStore(t, map[string][]float32{"a": {1, 0}})
	ctx := context.Background()

	if _, err := store.AddDocuments(ctx, []vecstore.Document{{ID: "a", Content: "a"}}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	if err := store.Delete(ctx, []string{"missing"}); err != nil {
		t.Errorf("deleting nonexistent id: %v, want nil", err)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d documents, want 1 (unchanged)", store.Len())
	}

	if err := store.Delete(ctx, []string{"a"}); err != nil {
		t.Errorf("deleting existing id: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d documents, want 0", store.Len())
	}
}

// pondDocs adds ten documents with ids 1..10 and location metadata, with
// vectors arranged so that lower ids are closer to the "kitty" query.
func pondDocs(t *testing.T, store *Store) {
	t.Helper()
	docs := make([]vecstore.Document, 10)
	for i := range docs {
		location := "pond"
		if i%2 == 0 {
			location = "market"
		}
		if i >= 8 {
			location = "barn"
		}
		docs[i] = vecstore.Document{
			ID:       fmt.Sprintf("%d", i+1),
			Content:  fmt.Sprintf("doc %d", i+1),
			Metadata: map[string]any{"id": i + 1, "location": location},
		}
	}
	if _, err := store.AddDocuments(context.Background(), docs); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
}

// pondVectors spreads doc vectors along a quarter circle so that "kitty"
// at (1, 0) is closest to doc 1, then doc 2, and so on.
func pondVectors() map[string][]float32 {
	vectors := map[string][]float32{
		"kitty": {1, 0},
		"ducks": {1, 0},
	}
	for i := 0; i < 10; i++ {
		angle := float32(i) * 0.15
		vectors[fmt.Sprintf("doc %d", i+1)] = []float32{cosApprox(angle), sinApprox(angle)}
	}
	return vectors
}

func cosApprox(x float32) float32 {
	return 1 - x*x/2 + x*x*x*x/24
}

func sinApprox(x float32) float32 {
	return x - x*x*x/6
}

func TestSimilaritySearchWithInFilter(t *testing.T) {
	store := newTestStore(t, pondVectors())
	pondDocs(t, store)

	filter := mustParse(t, map[string]any{"id": map[string]any{"$in": []any{1, 5, 2, 9}}})

	results, err := store.SimilaritySearch(context.Background(), "kitty", 10, filter)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	want := []string{"1", "2", "5", "9"} // distance order, best first
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, id := range want {
		if results[i].ID != id {
			t.Errorf("position %d: got id %s, want %s", i, results[i].ID, id)
		}
	}
}

func TestSimilaritySearchFilterIntersection(t *testing.T) {
	store := newTestStore(t, pondVectors())
	pondDocs(t, store)
	ctx := context.Background()

	sugar := mustParse(t, map[string]any{
		"id":       map[string]any{"$in": []any{1, 5, 2, 9}},
		"location": map[string]any{"$in": []any{"pond", "market"}},
	})
	explicit := mustParse(t, map[string]any{
		"$and": []any{
			map[string]any{"id": map[string]any{"$in": []any{1, 5, 2, 9}}},
			map[string]any{"location": map[string]any{"$in": []any{"pond", "market"}}},
		},
	})

	fromSugar, err := store.SimilaritySearch(ctx, "ducks", 10, sugar)
	if err != nil {
		t.Fatalf("search with sugar form: %v", err)
	}
	fromExplicit, err := store.SimilaritySearch(ctx, "ducks", 10, explicit)
	if err != nil {
		t.Fatalf("search with explicit form: %v", err)
	}

	// Docs 1, 5 are at "market", 2 at "pond"; 9 is at "barn" and drops out.
	want := []string{"1", "2", "5"}
	if len(fromSugar) != len(want) {
		t.Fatalf("got %d results, want %d", len(fromSugar), len(want))
	}
	for i := range want {
		if fromSugar[i].ID != want[i] {
			t.Errorf("sugar position %d: got %s, want %s", i, fromSugar[i].ID, want[i])
		}
		if fromSugar[i].ID != fromExplicit[i].ID {
			t.Errorf("position %d: sugar form returned %s, explicit form %s", i, fromSugar[i].ID, fromExplicit[i].ID)
		}
	}
}

func TestSimilaritySearchWithScoreSingleResult(t *testing.T) {
	store := newTestStore(t, map[string][]float32{
		"cats":   {1, 0},
		"feline": {0.9, 0.1},
		"truck":  {0, 1},
	})
	ctx := context.Background()

	if _, err := store.AddDocuments(ctx, []vecstore.Document{
		{ID: "f", Content: "feline"},
		{ID: "t", Content: "truck"},
	}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	results, err := store.SimilaritySearchWithScore(ctx, "cats", 1, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want exactly 1", len(results))
	}
	if results[0].ID != "f" {
		t.Errorf("got %s, want f", results[0].ID)
	}
	// Cosine distance is in [0, 2].
	if results[0].Score < 0 || results[0].Score > 2 {
		t.Errorf("score %v outside cosine distance range [0, 2]", results[0].Score)
	}
}

func TestSearchOperatorSemantics(t *testing.T) {
	store := newTestStore(t, map[string][]float32{"q": {1, 0}, "d": {1, 0}})
	ctx := context.Background()

	if _, err := store.AddDocuments(ctx, []vecstore.Document{
		{ID: "n", Content: "d", Metadata: map[string]any{"price": 10.0, "name": "alpha", "live": true}},
	}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	tests := []struct {
		name  string
		raw   map[string]any
		match bool
	}{
		{"eq number", map[string]any{"price": 10}, true},
		{"eq number miss", map[string]any{"price": 11}, false},
		{"eq across types", map[string]any{"price": "10"}, false},
		{"ne", map[string]any{"name": map[string]any{"$ne": "beta"}}, true},
		{"ne across types matches", map[string]any{"price": map[string]any{"$ne": "10"}}, true},
		{"lt", map[string]any{"price": map[string]any{"$lt": 11}}, true},
		{"lte boundary", map[string]any{"price": map[string]any{"$lte": 10}}, true},
		{"gt miss", map[string]any{"price": map[string]any{"$gt": 10}}, false},
		{"gte boundary", map[string]any{"price": map[string]any{"$gte": 10}}, true},
		{"between", map[string]any{"price": map[string]any{"$between": []any{5, 15}}}, true},
		{"between miss", map[string]any{"price": map[string]any{"$between": []any{11, 15}}}, false},
		{"in", map[string]any{"name": map[string]any{"$in": []any{"alpha", "beta"}}}, true},
		{"nin", map[string]any{"name": map[string]any{"$nin": []any{"beta"}}}, true},
		{"nin miss", map[string]any{"name": map[string]any{"$nin": []any{"alpha"}}}, false},
		{"like", map[string]any{"name": map[string]any{"$like": "al%"}}, true},
		{"like case sensitive", map[string]any{"name": map[string]any{"$like": "AL%"}}, false},
		{"ilike", map[string]any{"name": map[string]any{"$ilike": "AL%"}}, true},
		{"like underscore", map[string]any{"name": map[string]any{"$like": "alph_"}}, true},
		{"bool eq", map[string]any{"live": true}, true},
		{"missing field", map[string]any{"ghost": 1}, false},
		{"or", map[string]any{"$or": []any{map[string]any{"name": "beta"}, map[string]any{"price": 10}}}, true},
		{"or miss", map[string]any{"$or": []any{map[string]any{"name": "beta"}, map[string]any{"price": 11}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.SimilaritySearch(ctx, "q", 10, mustParse(t, tt.raw))
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if got := len(results) == 1; got != tt.match {
				t.Errorf("filter %v matched=%v, want %v", tt.raw, got, tt.match)
			}
		})
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	vectors := map[string][]float32{"q": {1, 0}}
	for i := 0; i < 20; i++ {
		vectors[fmt.Sprintf("doc%d", i)] = []float32{1, float32(i) * 0.01}
	}
	store := newTestStore(t, vectors)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.AddDocuments(ctx, []vecstore.Document{
				{ID: fmt.Sprintf("%d", i), Content: fmt.Sprintf("doc%d", i)},
			})
			if err != nil {
				t.Errorf("concurrent add: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.SimilaritySearchByVector(ctx, []float32{1, 0}, 5, nil); err != nil {
				t.Errorf("concurrent search: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.Len() != 20 {
		t.Errorf("store has %d documents, want 20", store.Len())
	}
}

func TestMemoryStoreAsRetriever(t *testing.T) {
	store := newTestStore(t, map[string][]float32{
		"q": {1, 0},
		"a": {1, 0},
		"b": {0, 1},
	})
	ctx := context.Background()

	if _, err := store.AddDocuments(ctx, []vecstore.Document{
		{ID: "a", Content: "a"},
		{ID: "b", Content: "b"},
	}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	r, err := store.AsRetriever(vecstore.StrategyMMR, vecstore.RetrieverOptions{K: 1, FetchK: 2})
	if err != nil {
		t.Fatalf("AsRetriever: %v", err)
	}
	docs, err := r.Retrieve(ctx, "q", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Errorf("got %v, want [a]", docs)
	}
}
