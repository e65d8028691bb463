package graph

import (
	"context"
	"fmt"
	"strings"

	"campaign_worker/core/agent/rag"
	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// =============================================================================
// Snippet Search
// =============================================================================

const snippetIndex = "snippet_text_index"

// SnippetSearch implements out.SimilaritySearch with a full-text index over
// (:Snippet {id, title, section, text, url, published_date, source}).
type SnippetSearch struct {
	driver neo4j.DriverWithContext
	dbName string
}

func NewSnippetSearch(driver neo4j.DriverWithContext, dbName string) *SnippetSearch {
	return &SnippetSearch{driver: driver, dbName: dbName}
}

// EnsureIndexes creates the uniqueness constraint and full-text index.
func (s *SnippetSearch) EnsureIndexes(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT snippet_id_unique IF NOT EXISTS FOR (n:Snippet) REQUIRE n.id IS UNIQUE`,
		"CREATE FULLTEXT INDEX " + snippetIndex + " IF NOT EXISTS FOR (n:Snippet) ON EACH [n.title, n.section, n.text]",
	}
	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create snippet index: %w", err)
		}
	}
	return nil
}

// Upsert merges corpus records as Snippet nodes.
func (s *SnippetSearch) Upsert(ctx context.Context, records []rag.CorpusRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName, AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	items := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		items = append(items, map[string]any{
			"id":             r.ID,
			"title":          r.Title,
			"section":        r.Section,
			"text":           r.Text,
			"url":            r.URL,
			"published_date": r.PublishedDate,
			"source":         r.Source,
		})
	}

	query := `
		UNWIND $items AS item
		MERGE (n:Snippet {id: item.id})
		SET n += item
	`
	if _, err := session.Run(ctx, query, map[string]any{"items": items}); err != nil {
		return 0, fmt.Errorf("failed to upsert snippets: %w", err)
	}
	return len(items), nil
}

// Search runs a full-text query. Ties in score are ordered by id.
func (s *SnippetSearch) Search(ctx context.Context, query string, k int) ([]domain.Document, error) {
	q := LuceneQuery(query)
	if q == "" || k <= 0 {
		return []domain.Document{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	cypher := `
		CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
		RETURN node.id AS id, node.title AS title, node.section AS section,
		       node.text AS text, node.url AS url,
		       node.published_date AS published_date, node.source AS source,
		       score
		ORDER BY score DESC, id ASC
		LIMIT $k
	`
	result, err := session.Run(ctx, cypher, map[string]any{
		"index": snippetIndex,
		"query": q,
		"k":     k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search snippets: %w", err)
	}

	docs := make([]domain.Document, 0, k)
	for result.Next(ctx) {
		record := result.Record()
		meta := make(map[string]any, 6)
		for _, key := range []string{"id", "title", "section", "url", "published_date", "source"} {
			if v := getStringValue(record, key); v != "" {
				meta[key] = v
			}
		}
		docs = append(docs, domain.Document{
			Content:  getStringValue(record, "text"),
			Metadata: meta,
			Score:    getFloatValue(record, "score"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snippet results: %w", err)
	}
	return docs, nil
}

// luceneSpecial are the characters Lucene query syntax reserves.
const luceneSpecial = `+-&|!(){}[]^"~*?:\/`

// LuceneQuery turns free text into an OR query of escaped terms.
func LuceneQuery(text string) string {
	var terms []string
	for _, field := range strings.Fields(text) {
		var b strings.Builder
		for _, r := range field {
			if strings.ContainsRune(luceneSpecial, r) {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
		}
		term := b.String()
		// 단독 연산자는 제외
		if strings.Trim(term, `\|&`) == "" {
			continue
		}
		terms = append(terms, term)
	}
	return strings.Join(terms, " OR ")
}

func getStringValue(record *neo4j.Record, key string) string {
	if v, ok := record.Get(key); ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getFloatValue(record *neo4j.Record, key string) float64 {
	if v, ok := record.Get(key); ok && v != nil {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return 0
}

var _ out.SimilaritySearch = (*SnippetSearch)(nil)
