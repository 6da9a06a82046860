package vecstore

import (
	"context"
	"fmt"

	"github.com/veldt-io/vecstore/pkg/vecstore/distance"
)

// Strategy selects how a Retriever turns a query into a final result set.
type Strategy string

const (
	// StrategySimilarity returns the plain top-k nearest documents.
	StrategySimilarity Strategy = "similarity"
	// StrategyMMR over-fetches a candidate pool and greedily re-ranks it
	// with maximal marginal relevance, trading relevance against diversity.
	StrategyMMR Strategy = "mmr"
)

// RetrieverOptions tunes a Retriever. Zero values take defaults.
type RetrieverOptions struct {
	// K is the number of documents to return. Default 4.
	K int

	// FetchK is the candidate pool size for MMR. Default 20, raised to K
	// when smaller.
	FetchK int

	// LambdaMult weights relevance against diversity for MMR: 1 is pure
	// relevance, 0 is pure diversity. Default 0.5.
	LambdaMult float64

	// lambdaSet distinguishes an explicit 0 from the unset zero value.
	lambdaSet bool
}

// WithLambda returns a copy of o with LambdaMult explicitly set, allowing a
// pure-diversity 0.
func (o RetrieverOptions) WithLambda(lambda float64) RetrieverOptions {
	o.LambdaMult = lambda
	o.lambdaSet = true
	return o
}

func (o *RetrieverOptions) defaults() {
	if o.K <= 0 {
		o.K = 4
	}
	if o.FetchK <= 0 {
		o.FetchK = 20
	}
	if o.FetchK < o.K {
		o.FetchK = o.K
	}
	if o.LambdaMult == 0 && !o.lambdaSet {
		o.LambdaMult = 0.5
	}
}

// Retriever is a thin strategy wrapper over a Store.
type Retriever struct {
	store    Store
	strategy Strategy
	opts     RetrieverOptions
}

// NewRetriever wraps store with the given result-selection strategy.
func NewRetriever(store Store, strategy Strategy, opts RetrieverOptions) (*Retriever, error) {
	switch strategy {
	case StrategySimilarity, StrategyMMR:
	default:
		return nil, fmt.Errorf("%w: unknown retrieval strategy %q", ErrConfiguration, strategy)
	}
	if opts.LambdaMult < 0 || opts.LambdaMult > 1 {
		return nil, fmt.Errorf("%w: lambda_mult must be in [0, 1], got %g", ErrConfiguration, opts.LambdaMult)
	}
	opts.defaults()
	return &Retriever{store: store, strategy: strategy, opts: opts}, nil
}

// Retrieve returns the documents selected by the configured strategy,
// restricted to rows matching filter (nil means no filter).
func (r *Retriever) Retrieve(ctx context.Context, query string, filter Filter) ([]Document, error) {
	switch r.strategy {
	case StrategyMMR:
		return r.retrieveMMR(ctx, query, filter)
	default:
		return r.store.SimilaritySearch(ctx, query, r.opts.K, filter)
	}
}

// retrieveMMR over-fetches FetchK candidates by plain similarity and
// re-ranks them with maximal marginal relevance.
func (r *Retriever) retrieveMMR(ctx context.Context, query string, filter Filter) ([]Document, error) {
	vector, err := r.store.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := r.store.SimilaritySearchByVector(ctx, vector, r.opts.FetchK, filter)
	if err != nil {
		return nil, err
	}

	selected := MaximalMarginalRelevance(vector, candidates, r.opts.K, r.opts.LambdaMult)
	docs := make([]Document, len(selected))
	for i, sd := range selected {
		docs[i] = sd.Document
	}
	return docs, nil
}

// MaximalMarginalRelevance greedily selects up to k candidates maximizing
// lambda-weighted query relevance minus similarity to already-selected
// results. Relevance and pairwise similarity both use cosine similarity on
// the candidate embeddings, independent of the collection's metric, so
// candidate pools from any backend re-rank identically.
//
// Candidates must arrive in relevance order (best first); ties break
// stably on that order, so the result is deterministic for a fixed pool.
func MaximalMarginalRelevance(query []float32, candidates []ScoredDocument, k int, lambda float64) []ScoredDocument {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = distance.CosineSimilarity(query, c.Embedding)
	}

	picked := make([]bool, len(candidates))
	// maxSim[i] tracks the highest similarity between candidate i and any
	// already-selected document.
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = -1
	}

	selected := make([]ScoredDocument, 0, k)

	// First pick is the most relevant candidate; diversity has no effect
	// before anything is selected.
	best := 0
	for i := 1; i < len(candidates); i++ {
		if relevance[i] > relevance[best] {
			best = i
		}
	}
	picked[best] = true
	selected = append(selected, candidates[best])

	for len(selected) < k {
		bestIdx := -1
		bestScore := 0.0

		for i := range candidates {
			if picked[i] {
				continue
			}
			if sim := distance.CosineSimilarity(candidates[i].Embedding, selected[len(selected)-1].Embedding); sim > maxSim[i] {
				maxSim[i] = sim
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim[i]
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}

		if bestIdx == -1 {
			break
		}
		picked[bestIdx] = true
		selected = append(selected, candidates[bestIdx])
	}

	return selected
}
