// Package pgvector implements vecstore.Store on PostgreSQL with the
// pgvector extension.
//
// It uses pgx/v5 connection pooling. In token auth mode the pool carries no
// credentials of its own: a connect-time hook resolves a fresh principal
// and bearer token for every new physical connection, so long-lived pools
// keep authenticating with unexpired tokens while existing connections are
// never touched. Metadata filters compile to parameterized SQL predicates
// over a JSONB column and are evaluated by the engine.
package pgvector
