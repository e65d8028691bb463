package rag

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"campaign_worker/core/domain"
	"campaign_worker/pkg/apperr"
)

// =============================================================================
// Local Corpus Search
// =============================================================================

// CorpusRecord is one line of the JSONL knowledge file.
type CorpusRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Section       string `json:"section"`
	Text          string `json:"text"`
	URL           string `json:"url"`
	PublishedDate string `json:"published_date"`
	Source        string `json:"source"`
}

// Document converts the record into a search hit.
func (r CorpusRecord) Document() domain.Document {
	meta := make(map[string]any, 6)
	for k, v := range map[string]string{
		"id":             r.ID,
		"title":          r.Title,
		"section":        r.Section,
		"url":            r.URL,
		"published_date": r.PublishedDate,
		"source":         r.Source,
	} {
		if v != "" {
			meta[k] = v
		}
	}
	return domain.Document{Content: r.Text, Metadata: meta}
}

// CorpusSearch is an in-process SimilaritySearch over a fixed document set.
// It is read-only after construction and safe for concurrent use.
type CorpusSearch struct {
	docs   []domain.Document
	ranker *Ranker
}

func NewCorpusSearch(docs []domain.Document) *CorpusSearch {
	return &CorpusSearch{
		docs:   docs,
		ranker: NewRanker(),
	}
}

// LoadCorpus reads a JSONL knowledge file. Blank lines are skipped.
func LoadCorpus(path string) (*CorpusSearch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.ConfigError("cannot open corpus file").WithError(err).WithDetail("path", path)
	}
	defer f.Close()

	var docs []domain.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec CorpusRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, apperr.ConfigError(fmt.Sprintf("corpus line %d is not valid JSON", line)).WithError(err)
		}
		docs = append(docs, rec.Document())
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.ConfigError("cannot read corpus file").WithError(err)
	}

	return NewCorpusSearch(docs), nil
}

// WithRanker replaces the default ranker.
func (c *CorpusSearch) WithRanker(r *Ranker) *CorpusSearch {
	c.ranker = r
	return c
}

// Len returns the number of documents.
func (c *CorpusSearch) Len() int {
	return len(c.docs)
}

// Documents returns the corpus, e.g. for indexing into a vector store.
func (c *CorpusSearch) Documents() []domain.Document {
	return c.docs
}

func (c *CorpusSearch) Search(ctx context.Context, query string, k int) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.ranker.Rank(query, c.docs, k), nil
}
