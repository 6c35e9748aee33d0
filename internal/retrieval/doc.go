// Package retrieval implements hybrid search over the knowledge collections:
// concurrent semantic and keyword queries merged with a weighted score, an
// optional diversity pass, and a budget-aware rerank step.
package retrieval
