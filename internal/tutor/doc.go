// Package tutor is the request orchestrator. It composes retrieval,
// reranking, expert routing, and memory into one pipeline per student query,
// serialized per session, and always resolves to a well-formed response.
package tutor
