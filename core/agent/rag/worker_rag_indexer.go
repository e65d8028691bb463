package rag

import (
	"context"
	"fmt"

	"campaign_worker/core/domain"
	"campaign_worker/pkg/logger"
)

// Indexer embeds knowledge documents into the vector store.
type Indexer struct {
	embedder *Embedder
	store    *VectorStore
}

func NewIndexer(embedder *Embedder, store *VectorStore) *Indexer {
	return &Indexer{embedder: embedder, store: store}
}

// Index embeds and upserts every document. Documents without an id are
// skipped. It stops at the first backend error.
func (i *Indexer) Index(ctx context.Context, docs []domain.Document) (int, error) {
	indexed := 0
	for _, doc := range docs {
		id := metaString(doc.Metadata, "id")
		if id == "" {
			continue
		}

		text := metaString(doc.Metadata, "title") + "\n" + doc.Content
		vec, err := i.embedder.Embed(ctx, text)
		if err != nil {
			return indexed, fmt.Errorf("embed snippet %s: %w", id, err)
		}

		rec := &SnippetRecord{
			ID:            id,
			Title:         metaString(doc.Metadata, "title"),
			Section:       metaString(doc.Metadata, "section"),
			Content:       doc.Content,
			URL:           metaString(doc.Metadata, "url"),
			PublishedDate: metaString(doc.Metadata, "published_date"),
			Source:        metaString(doc.Metadata, "source"),
			Embedding:     vec,
		}
		if err := i.store.Upsert(ctx, rec); err != nil {
			return indexed, fmt.Errorf("store snippet %s: %w", id, err)
		}
		indexed++
	}

	logger.WithField("component", "indexer").Info("indexed %d of %d knowledge snippets", indexed, len(docs))
	return indexed, nil
}
