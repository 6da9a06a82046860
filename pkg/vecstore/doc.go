// Package vecstore defines the core types of the vector store: documents,
// metadata filters, the Store interface, and the retrieval strategies
// layered on top of it.
//
// Two backends implement the Store interface: pgvector (PostgreSQL with the
// pgvector extension, see pkg/vecstore/pgvector) and memory (in-process,
// see pkg/vecstore/memory). Embedding computation is delegated to an
// Embedder collaborator; pkg/embedding provides an OpenAI-compatible client.
package vecstore
