// Package knowledge stores and retrieves chunks of study material.
//
// A Chunk is the smallest retrievable unit: a piece of curriculum text, a
// past conversation exchange, or a fragment of an uploaded document, together
// with its embedding and metadata. Chunks live in named collections and are
// immutable after ingestion.
//
// The Store exposes two query paths over each collection: semantic search
// (pgvector cosine distance) and keyword search (PostgreSQL full-text rank).
// The hybrid retriever in internal/retrieval merges the two.
//
// Database access goes through the Querier interface so tests can substitute
// mocks; PG is the production implementation backed by a pgxpool.Pool.
package knowledge
