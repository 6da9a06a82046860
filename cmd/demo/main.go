// Command demo loads the configuration, connects the pgvector store, adds
// a few documents, and runs filtered similarity searches against them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/veldt-io/vecstore/pkg/config"
	"github.com/veldt-io/vecstore/pkg/credential"
	"github.com/veldt-io/vecstore/pkg/debug"
	"github.com/veldt-io/vecstore/pkg/embedding"
	"github.com/veldt-io/vecstore/pkg/observability"
	"github.com/veldt-io/vecstore/pkg/vecstore"
	"github.com/veldt-io/vecstore/pkg/vecstore/pgvector"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	query := flag.String("query", "a small cat", "query text")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	debug.Init("", "")

	if err := run(*configPath, *query, *metricsAddr); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, query, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if metricsAddr != "" && cfg.Observability.Metrics.Enabled {
		mux := http.NewServeMux()
		observability.Mount(mux, cfg.Observability.Metrics.Path)
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	embedder, err := embedding.NewOpenAIEmbedder(embedding.Config{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		return err
	}

	var provider *credential.Provider
	if cfg.Auth.Mode == "token" {
		issuer := &credential.ClientCredentialsIssuer{
			TokenURL:     cfg.Auth.Token.TokenURL,
			ClientID:     cfg.Auth.Token.ClientID,
			ClientSecret: cfg.Auth.Token.ClientSecret,
		}
		provider, err = credential.NewProvider(issuer, cfg.Auth.Token.Audience)
		if err != nil {
			return err
		}
	}

	store, err := pgvector.New(ctx, pgvector.Config{
		AuthMode:        pgvector.AuthMode(cfg.Auth.Mode),
		Host:            cfg.Store.Host,
		Port:            cfg.Store.Port,
		Database:        cfg.Store.Database,
		User:            cfg.Auth.User,
		Password:        cfg.Auth.Password,
		SSLMode:         cfg.Store.SSLMode,
		Collection:      cfg.Store.Collection,
		Dimensions:      cfg.Store.Dimensions,
		Metric:          vecstore.Metric(cfg.Store.Metric),
		MaxConns:        cfg.Store.MaxConns,
		MaxConnLifetime: cfg.Store.MaxConnLifetime,
		MigrateOnStart:  cfg.Store.MigrateOnStart,
	}, embedder, provider)
	if err != nil {
		return err
	}
	defer store.Close()

	ids, err := store.AddDocuments(ctx, []vecstore.Document{
		{Content: "a fluffy kitten curled up on the sofa", Metadata: map[string]any{"topic": "cats", "year": 2024}},
		{Content: "ducks paddling across the village pond", Metadata: map[string]any{"topic": "birds", "year": 2023}},
		{Content: "a recipe for sourdough bread", Metadata: map[string]any{"topic": "food", "year": 2024}},
	})
	if err != nil {
		return err
	}
	fmt.Printf("added %d documents\n", len(ids))

	filter, err := vecstore.ParseFilter(map[string]any{
		"year": map[string]any{"$gte": 2024},
	})
	if err != nil {
		return err
	}

	results, err := store.SimilaritySearchWithScore(ctx, query, 3, filter)
	if err != nil {
		return err
	}
	for i, r := range results {
		fmt.Printf("%d. %-45s score=%.4f metadata=%v\n", i+1, r.Content, r.Score, r.Metadata)
	}

	retriever, err := store.AsRetriever(vecstore.StrategyMMR, vecstore.RetrieverOptions{K: 2, FetchK: 3})
	if err != nil {
		return err
	}
	diverse, err := retriever.Retrieve(ctx, query, nil)
	if err != nil {
		return err
	}
	fmt.Println("mmr picks:")
	for _, d := range diverse {
		fmt.Printf("  - %s\n", d.Content)
	}

	return nil
}
