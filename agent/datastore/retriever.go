package datastore

import (
	"context"
	"fmt"

	contractx "github.com/chronicai/chronicai/agent/contract"
)

// DefaultSnippetCap bounds how much of each matched document reaches a
// specialist.
const DefaultSnippetCap = 800

// Retriever implements vector similarity search over the datastore's
// match_documents procedure. Snippets are capped before they are
// surfaced.
type Retriever struct {
	client     *Client
	embedder   contractx.Embedder
	snippetCap int
}

func NewRetriever(client *Client, embedder contractx.Embedder) (*Retriever, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: datastore client is required", contractx.ErrConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", contractx.ErrConfig)
	}
	return &Retriever{
		client:     client,
		embedder:   embedder,
		snippetCap: DefaultSnippetCap,
	}, nil
}

var _ contractx.Retriever = (*Retriever)(nil)

func (r *Retriever) SimilaritySearch(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = 3
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", contractx.ErrBackendUnavailable, err)
	}

	rows, err := r.client.MatchDocuments(ctx, embedding, k)
	if err != nil {
		return nil, err
	}

	snippets := make([]string, 0, len(rows))
	for _, row := range rows {
		text, _ := row["content"].(string)
		if text == "" {
			continue
		}
		if len(text) > r.snippetCap {
			text = text[:r.snippetCap]
		}
		snippets = append(snippets, text)
	}
	return snippets, nil
}
