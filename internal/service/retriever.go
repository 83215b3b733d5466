package service

import (
	"context"
	"strings"

	"whatsapp-agent/backend/internal/docstore"
)

// ContextSeparator separates snippets in assembled context
const ContextSeparator = "\n\n---\n\n"

// DocumentSearcher finds relevant document chunks
type DocumentSearcher interface {
	Search(ctx context.Context, query string, k int) ([]docstore.Result, error)
}

// Retriever fetches reference snippets for a query
type Retriever struct {
	store DocumentSearcher
	k     int
}

// NewRetriever creates a retriever that returns k snippets for AssembleContext
func NewRetriever(store DocumentSearcher, k int) *Retriever {
	if k <= 0 {
		k = docstore.DefaultK
	}
	return &Retriever{store: store, k: k}
}

// Retrieve returns up to k snippets, most relevant first
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = r.k
	}
	results, err := r.store.Search(ctx, query, k)
	if err != nil {
		return nil, externalError("retrieve", err)
	}
	if len(results) > k {
		results = results[:k]
	}
	snippets := make([]string, 0, len(results))
	for _, res := range results {
		snippets = append(snippets, res.Text)
	}
	return snippets, nil
}

// AssembleContext joins the snippets for query. An empty string means no context was found.
func (r *Retriever) AssembleContext(ctx context.Context, query string) (string, error) {
	snippets, err := r.Retrieve(ctx, query, r.k)
	if err != nil {
		return "", err
	}
	if len(snippets) == 0 {
		return "", nil
	}
	return strings.Join(snippets, ContextSeparator), nil
}
