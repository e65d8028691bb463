package rag

import (
	"context"
	"fmt"
	"strings"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/logger"
)

// DefaultTopK is the number of citations requested per run.
const DefaultTopK = 3

// Retriever assembles citations for a segment. It never fails: a missing
// or failing search backend yields an empty list.
type Retriever struct {
	search out.SimilaritySearch
	topK   int
	log    *logger.Logger
}

func NewRetriever(search out.SimilaritySearch, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		search: search,
		topK:   topK,
		log:    logger.WithField("component", "retriever"),
	}
}

// TopK returns the configured result count.
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve runs the segment query against the search backend. topK <= 0
// uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, seg *domain.SegmentResult, topK int) []domain.Citation {
	if topK <= 0 {
		topK = r.topK
	}
	if r.search == nil {
		return []domain.Citation{}
	}

	query := BuildQuery(seg)
	docs, err := r.safeSearch(ctx, query, topK)
	if err != nil {
		r.log.WithContext(ctx).WithError(err).Warn("similarity search failed, continuing without citations")
		return []domain.Citation{}
	}

	citations := make([]domain.Citation, 0, len(docs))
	for _, doc := range docs {
		citations = append(citations, ToCitation(doc))
	}
	return citations
}

// safeSearch converts a panicking backend into an error.
func (r *Retriever) safeSearch(ctx context.Context, query string, k int) (docs []domain.Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("search panicked: %v", rec)
		}
	}()
	return r.search.Search(ctx, query, k)
}

// ToCitation copies document metadata into a citation and redacts its text.
func ToCitation(doc domain.Document) domain.Citation {
	c := domain.Citation{
		ID:            metaString(doc.Metadata, "id"),
		Title:         metaString(doc.Metadata, "title"),
		Section:       metaString(doc.Metadata, "section"),
		Text:          doc.Content,
		RedactedText:  Redact(doc.Content),
		URL:           metaString(doc.Metadata, "url"),
		PublishedDate: metaString(doc.Metadata, "published_date"),
		Source:        metaString(doc.Metadata, "source"),
	}
	if c.Source == "" {
		c.Source = domain.DefaultCitationSource
	}
	return c
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
