package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/veldt-io/vecstore/pkg/credential"
	"github.com/veldt-io/vecstore/pkg/debug"
	"github.com/veldt-io/vecstore/pkg/observability"
	"github.com/veldt-io/vecstore/pkg/vecstore"
)

// embedBatchSize caps how many texts go into one embedder call; larger
// batches are split and embedded concurrently.
const embedBatchSize = 96

// embedConcurrency caps concurrent embedder calls per AddDocuments batch.
const embedConcurrency = 4

// Store is a PostgreSQL/pgvector-backed vecstore.Store bound to a single
// collection.
type Store struct {
	pool         *pgxpool.Pool
	embedder     vecstore.Embedder
	collection   string
	collectionID string
	dims         int
	metric       vecstore.Metric
}

// Ensure Store implements vecstore.Store at compile time.
var _ vecstore.Store = (*Store)(nil)

// New connects to PostgreSQL and binds the store to cfg.Collection,
// registering the collection if it does not exist. In token auth mode
// provider supplies per-connection credentials; in static mode it may be
// nil.
func New(ctx context.Context, cfg Config, embedder vecstore.Embedder, provider *credential.Provider) (*Store, error) {
	cfg.defaults()

	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", vecstore.ErrConfiguration)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", vecstore.ErrConfiguration)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be > 0, got %d", vecstore.ErrConfiguration, cfg.Dimensions)
	}
	if !cfg.Metric.Valid() {
		return nil, fmt.Errorf("%w: unknown distance metric %q", vecstore.ErrConfiguration, cfg.Metric)
	}

	pool, err := newPool(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}

	s := &Store{
		pool:       pool,
		embedder:   embedder,
		collection: cfg.Collection,
		dims:       cfg.Dimensions,
		metric:     cfg.Metric,
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, persist("connecting to database", err)
	}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, persist("running migrations", err)
		}
	}

	if err := s.ensureCollection(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// ensureCollection registers the collection on first use and verifies that
// an existing registration matches the configured dimensionality and
// metric.
func (s *Store) ensureCollection(ctx context.Context) error {
	var (
		id     string
		dims   int
		metric string
	)
	// The no-op DO UPDATE makes the RETURNING row available on conflict.
	err := s.pool.QueryRow(ctx, `
		INSERT INTO collections (name, dimensions, metric)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING uuid, dimensions, metric
	`, s.collection, s.dims, string(s.metric)).Scan(&id, &dims, &metric)
	if err != nil {
		return persist("registering collection", err)
	}

	if dims != s.dims {
		return fmt.Errorf("%w: collection %q has %d dimensions, configured %d", vecstore.ErrConfiguration, s.collection, dims, s.dims)
	}
	if metric != string(s.metric) {
		return fmt.Errorf("%w: collection %q uses metric %q, configured %q", vecstore.ErrConfiguration, s.collection, metric, s.metric)
	}

	s.collectionID = id
	return nil
}

// DropCollection removes the collection and all its documents.
func (s *Store) DropCollection(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM collections WHERE uuid = $1", s.collectionID); err != nil {
		return persist("dropping collection", err)
	}
	return nil
}

// AddDocuments embeds and upserts docs, returning their IDs in input
// order. Embeddings for the whole batch are computed and validated first,
// then all rows are written in one transaction: on any failure nothing is
// persisted.
func (s *Store) AddDocuments(ctx context.Context, docs []vecstore.Document) (ids []string, err error) {
	defer observe("add_documents", time.Now(), &err)

	if len(docs) == 0 {
		return nil, nil
	}

	vectors, err := s.embedAll(ctx, docs)
	if err != nil {
		return nil, err
	}

	ids = make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			ids[i] = uuid.NewString()
		} else {
			ids[i] = doc.ID
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, persist("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i, doc := range docs {
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata for document %q: %w", ids[i], err)
		}
		batch.Queue(`
			INSERT INTO documents (collection_uuid, id, content, metadata, embedding, updated_at)
			VALUES ($1, $2, $3, $4, $5::vector, now())
			ON CONFLICT (collection_uuid, id) DO UPDATE SET
				content = EXCLUDED.content,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding,
				updated_at = now()
		`, s.collectionID, ids[i], doc.Content, metadata, vectorLiteral(vectors[i]))
	}

	results := tx.SendBatch(ctx, batch)
	for i := range docs {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return nil, persist(fmt.Sprintf("upserting document %q", ids[i]), err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, persist("closing batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persist("committing batch", err)
	}
	return ids, nil
}

// embedAll computes embeddings for all documents, splitting large batches
// across concurrent embedder calls while keeping per-document
// correspondence, and validates every vector against the collection's
// dimensionality.
func (s *Store) embedAll(ctx context.Context, docs []vecstore.Document) ([][]float32, error) {
	vectors := make([][]float32, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = docs[i].Content
			}
			batch, err := s.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding documents %d..%d: %w", start, end-1, err)
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("%w: embedder returned %d vectors for %d texts", vecstore.ErrEmbedding, len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, vec := range vectors {
		if len(vec) != s.dims {
			return nil, fmt.Errorf("%w: document %d has %d dimensions, collection has %d", vecstore.ErrEmbedding, i, len(vec), s.dims)
		}
	}
	return vectors, nil
}

// Delete removes the documents with the given IDs. Unknown IDs are
// ignored.
func (s *Store) Delete(ctx context.Context, ids []string) (err error) {
	defer observe("delete", time.Now(), &err)

	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM documents WHERE collection_uuid = $1 AND id = ANY($2)",
		s.collectionID, ids,
	); err != nil {
		return persist("deleting documents", err)
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

// SimilaritySearchWithScore is SimilaritySearch with the raw distance of
// each result in the collection's metric.
func (s *Store) SimilaritySearchWithScore(ctx context.Context, query string, k int, filter vecstore.Filter) ([]vecstore.ScoredDocument, error) {
	vector, err := s.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SimilaritySearchByVector(ctx, vector, k, filter)
}

// SimilaritySearchByVector searches with an already-computed query vector.
func (s *Store) SimilaritySearchByVector(ctx context.Context, vector []float32, k int, filter vecstore.Filter) (results []vecstore.ScoredDocument, err error) {
	defer observe("similarity_search", time.Now(), &err)

	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, collection has %d", vecstore.ErrEmbedding, len(vector), s.dims)
	}
	if k <= 0 {
		return nil, nil
	}

	args := []any{s.collectionID, vectorLiteral(vector)}
	predicate, err := compileFilter(filter, &args)
	if err != nil {
		return nil, err
	}
	args = append(args, k)

	debug.Log("store", "similarity search", "collection", s.collection, "k", k, "predicate", debug.Truncate(predicate, 200))

	query := fmt.Sprintf(`
		SELECT id, content, metadata, embedding::text,
		       embedding %s $2::vector AS score
		FROM documents
		WHERE collection_uuid = $1 AND %s
		ORDER BY score, id
		LIMIT $%d
	`, s.distanceOp(), predicate, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persist("querying nearest documents", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			doc          vecstore.Document
			metadataJSON []byte
			embedding    string
			score        float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &embedding, &score); err != nil {
			return nil, persist("scanning result row", err)
		}
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, persist("unmarshaling metadata", err)
		}
		doc.Embedding, err = parseVector(embedding)
		if err != nil {
			return nil, persist("parsing embedding", err)
		}
		results = append(results, vecstore.ScoredDocument{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, persist("reading result rows", err)
	}
	return results, nil
}

// EmbedQuery exposes the store's embedder, validating the dimensionality.
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

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// distanceOp returns the pgvector operator for the collection's metric.
// All three order ascending, so best match comes first.
func (s *Store) distanceOp() string {
	switch s.metric {
	case vecstore.MetricL2:
		return "<->"
	case vecstore.MetricInnerProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

// vectorLiteral formats a vector in pgvector's input syntax.
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses pgvector's text output back into a vector.
func parseVector(text string) ([]float32, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// persist wraps a storage-engine failure with its operation context.
func persist(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", vecstore.ErrPersistence, op, err)
}

// observe records one store operation in the Prometheus metrics.
func observe(op string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	observability.OperationsTotal.WithLabelValues(op, status).Inc()
	observability.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
