// Package memory provides an in-memory implementation of vecstore.Store for
// testing and lightweight deployments. Documents are kept in memory and
// lost when the process restarts; filters are evaluated in-process against
// document metadata.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/veldt-io/vecstore/pkg/vecstore"
	"github.com/veldt-io/vecstore/pkg/vecstore/distance"
)

// Store is an in-memory vecstore.Store bound to a single collection.
type Store struct {
	embedder vecstore.Embedder
	metric   vecstore.Metric
	dims     int

	mu   sync.RWMutex
	docs map[string]vecstore.Document
}

// Ensure Store implements vecstore.Store at compile time.
var _ vecstore.Store = (*Store)(nil)

// New creates an empty in-memory store with the given embedder, metric, and
// embedding dimensionality.
func New(embedder vecstore.Embedder, metric vecstore.Metric, dims int) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", vecstore.ErrConfiguration)
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: unknown distance metric %q", vecstore.ErrConfiguration, metric)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be > 0, got %d", vecstore.ErrConfiguration, dims)
	}
	return &Store{
		embedder: embedder,
		metric:   metric,
		dims:     dims,
		docs:     make(map[string]vecstore.Document),
	}, nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// AddDocuments embeds and upserts docs, returning their IDs in input order.
// The batch is all-or-nothing: embeddings are computed and validated for
// the whole batch before any document is written.
func (s *Store) AddDocuments(ctx context.Context, docs []vecstore.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d documents: %w", len(docs), err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", vecstore.ErrEmbedding, len(vectors), len(docs))
	}
	for i, vec := range vectors {
		if len(vec) != s.dims {
			return nil, fmt.Errorf("%w: document %d has %d dimensions, collection has %d", vecstore.ErrEmbedding, i, len(vec), s.dims)
		}
	}

	ids := make([]string, len(docs))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		doc.Embedding = vectors[i]
		s.docs[doc.ID] = doc
		ids[i] = doc.ID
	}
	return ids, nil
}

// Delete removes the documents with the given IDs. Unknown IDs are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// SimilaritySearch embeds query and returns the k nearest documents
// matching filter, best match first.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int, filter vecstore.Filter) ([]vecstore.Document, error) {
	scored, err := s.SimilaritySearchWithScore(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	docs := make([]vecstore.Document, len(scored))
	for i, sd := range scored {
		docs[i] = sd.Document
	}
	return docs, nil
}

// SimilaritySearchWithScore is SimilaritySearch with raw scores attached.
func (s *Store) SimilaritySearchWithScore(ctx context.Context, query string, k int, filter vecstore.Filter) ([]vecstore.ScoredDocument, error) {
	vector, err := s.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SimilaritySearchByVector(ctx, vector, k, filter)
}

// SimilaritySearchByVector searches with an already-computed query vector.
func (s *Store) SimilaritySearchByVector(ctx context.Context, vector []float32, k int, filter vecstore.Filter) ([]vecstore.ScoredDocument, error) {
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, collection has %d", vecstore.ErrEmbedding, len(vector), s.dims)
	}
	if err := vecstore.Validate(filter); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []vecstore.ScoredDocument
	for _, doc := range s.docs {
		match, err := evalFilter(filter, doc.Metadata)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		results = append(results, vecstore.ScoredDocument{
			Document: doc,
			Score:    s.score(vector, doc.Embedding),
		})
	}

	// Lower score is better for all three metrics; inner product is stored
	// negated the way the SQL backend's <#> operator reports it.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// EmbedQuery exposes the store's embedder.
func (s *Store) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, collection has %d", vecstore.ErrEmbedding, len(vector), s.dims)
	}
	return vector, nil
}

// AsRetriever wraps the store with a result-selection strategy.
func (s *Store) AsRetriever(strategy vecstore.Strategy, opts vecstore.RetrieverOptions) (*vecstore.Retriever, error) {
	return vecstore.NewRetriever(s, strategy, opts)
}

func (s *Store) score(query, doc []float32) float64 {
	switch s.metric {
	case vecstore.MetricL2:
		return distance.L2(query, doc)
	case vecstore.MetricInnerProduct:
		return -distance.Dot(query, doc)
	default:
		return distance.CosineDistance(query, doc)
	}
}

// evalFilter evaluates a filter tree against one document's metadata.
func evalFilter(f vecstore.Filter, metadata map[string]any) (bool, error) {
	switch node := f.(type) {
	case nil:
		return true, nil
	case vecstore.Comparison:
		return evalComparison(node, metadata)
	case vecstore.Logical:
		for _, child := range node.Children {
			match, err := evalFilter(child, metadata)
			if err != nil {
				return false, err
			}
			if node.Op == vecstore.OpAnd && !match {
				return false, nil
			}
			if node.Op == vecstore.OpOr && match {
				return true, nil
			}
		}
		return node.Op == vecstore.OpAnd, nil
	default:
		return false, fmt.Errorf("%w: unknown filter node %T", vecstore.ErrInvalidFilter, f)
	}
}

// evalComparison applies one leaf to the stored field value. Comparisons
// preserve the stored type: a stored number never matches a query string
// and vice versa. Missing fields match nothing.
func evalComparison(c vecstore.Comparison, metadata map[string]any) (bool, error) {
	stored, ok := metadata[c.Field]
	if !ok {
		return false, nil
	}

	switch c.Op {
	case vecstore.OpEq:
		return scalarEqual(stored, c.Value), nil
	case vecstore.OpNe:
		return !scalarEqual(stored, c.Value), nil
	case vecstore.OpLt, vecstore.OpLte, vecstore.OpGt, vecstore.OpGte:
		cmp, ok := compareScalars(stored, c.Value)
		if !ok {
			return false, nil
		}
		switch c.Op {
		case vecstore.OpLt:
			return cmp < 0, nil
		case vecstore.OpLte:
			return cmp <= 0, nil
		case vecstore.OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case vecstore.OpIn, vecstore.OpNin:
		list, err := listOperand(c.Value)
		if err != nil {
			return false, fmt.Errorf("%w: %s on field %q: %v", vecstore.ErrInvalidFilter, c.Op, c.Field, err)
		}
		found := false
		for _, item := range list {
			if scalarEqual(stored, item) {
				found = true
				break
			}
		}
		if c.Op == vecstore.OpIn {
			return found, nil
		}
		return !found, nil
	case vecstore.OpBetween:
		list, err := listOperand(c.Value)
		if err != nil || len(list) != 2 {
			return false, fmt.Errorf("%w: %s on field %q requires a 2-element pair", vecstore.ErrInvalidFilter, c.Op, c.Field)
		}
		lo, okLo := compareScalars(stored, list[0])
		hi, okHi := compareScalars(stored, list[1])
		return okLo && okHi && lo >= 0 && hi <= 0, nil
	case vecstore.OpLike, vecstore.OpILike:
		text, ok := stored.(string)
		if !ok {
			return false, nil
		}
		pattern := c.Value.(string)
		if c.Op == vecstore.OpILike {
			return matchLike(strings.ToLower(pattern), strings.ToLower(text)), nil
		}
		return matchLike(pattern, text), nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", vecstore.ErrInvalidFilter, c.Op)
	}
}

// scalarEqual compares two scalars without cross-type coercion, except that
// all numeric widths compare as numbers.
func scalarEqual(a, b any) bool {
	if na, ok := vecstore.Number(a); ok {
		nb, ok := vecstore.Number(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// compareScalars orders two scalars of the same kind. The second return is
// false for incomparable kinds.
func compareScalars(a, b any) (int, bool) {
	if na, ok := vecstore.Number(a); ok {
		nb, ok := vecstore.Number(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func listOperand(v any) ([]any, error) {
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

// matchLike evaluates a SQL LIKE pattern: % matches any run, _ a single
// character. Used only by the in-memory backend; the SQL backend hands the
// pattern to the engine.
func matchLike(pattern, text string) bool {
	return likeMatch([]rune(pattern), []rune(text))
}

func likeMatch(pattern, text []rune) bool {
	if len(pattern) == 0 {
		return len(text) == 0
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(text); i++ {
			if likeMatch(pattern[1:], text[i:]) {
				return true
			}
		}
		return false
	case '_':
		return len(text) > 0 && likeMatch(pattern[1:], text[1:])
	default:
		return len(text) > 0 && text[0] == pattern[0] && likeMatch(pattern[1:], text[1:])
	}
}
