package vecstore

import "context"

// Document is a single entry in a collection: text content, free-form
// metadata, and the embedding vector computed from the content.
//
// ID is the upsert key within a collection. A document added with an empty
// ID is assigned a generated one; re-adding an existing ID overwrites the
// prior content, metadata, and embedding.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// ScoredDocument pairs a search result with its raw distance or similarity
// score in the collection's configured metric.
type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}

// Metric selects the distance function used for nearest-neighbor ranking.
// It is fixed per collection, not per query.
type Metric string

const (
	// MetricCosine ranks by cosine distance (1 - cosine similarity).
	MetricCosine Metric = "cosine"
	// MetricL2 ranks by Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricInnerProduct ranks by negative inner product.
	MetricInnerProduct Metric = "inner_product"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricL2, MetricInnerProduct:
		return true
	}
	return false
}

// Embedder converts text into fixed-dimension vectors. Implementations must
// return vectors of the collection's configured dimensionality and preserve
// the input order in Embed.
type Embedder interface {
	// Embed converts a batch of texts into embedding vectors, one per input,
	// in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery converts a single query text into an embedding vector.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is a collection-bound vector store. Implementations are safe for
// concurrent use; reads may run fully in parallel, concurrent writes to the
// same document ID are last-write-wins.
type Store interface {
	// AddDocuments upserts documents into the collection and returns their
	// IDs in input order. Documents with an empty ID get a generated one.
	// The batch is all-or-nothing: on any error no document is written.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Delete removes the documents with the given IDs. IDs that do not
	// exist are ignored.
	Delete(ctx context.Context, ids []string) error

	// SimilaritySearch embeds query and returns the k nearest documents
	// matching filter (nil means no filter), best match first.
	SimilaritySearch(ctx context.Context, query string, k int, filter Filter) ([]Document, error)

	// SimilaritySearchWithScore is SimilaritySearch with the raw score of
	// each result in the collection's metric.
	SimilaritySearchWithScore(ctx context.Context, query string, k int, filter Filter) ([]ScoredDocument, error)

	// SimilaritySearchByVector searches with an already-computed query
	// vector. Results carry their stored embeddings.
	SimilaritySearchByVector(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredDocument, error)

	// EmbedQuery exposes the store's embedder for strategies that need the
	// query vector itself (e.g. MMR re-ranking).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
