package rag

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"campaign_worker/core/domain"
)

// =============================================================================
// pgvector Snippet Store
// =============================================================================

// SnippetSchema creates the knowledge_snippets table. The embedding width
// matches text-embedding-ada-002.
const SnippetSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS knowledge_snippets (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	section        TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	published_date TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	embedding      vector(1536),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

type VectorStore struct {
	db *pgxpool.Pool
}

func NewVectorStore(db *pgxpool.Pool) *VectorStore {
	return &VectorStore{db: db}
}

// SnippetRecord is one embedded knowledge snippet.
type SnippetRecord struct {
	ID            string
	Title         string
	Section       string
	Content       string
	URL           string
	PublishedDate string
	Source        string
	Embedding     []float32
}

// EnsureSchema creates the snippet table if missing.
func (s *VectorStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, SnippetSchema)
	return err
}

// Upsert stores or replaces a snippet and its embedding.
func (s *VectorStore) Upsert(ctx context.Context, r *SnippetRecord) error {
	query := `
		INSERT INTO knowledge_snippets (id, title, section, content, url, published_date, source, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			section = EXCLUDED.section,
			content = EXCLUDED.content,
			url = EXCLUDED.url,
			published_date = EXCLUDED.published_date,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
	`
	_, err := s.db.Exec(ctx, query,
		r.ID, r.Title, r.Section, r.Content, r.URL, r.PublishedDate, r.Source,
		pgVector(r.Embedding),
	)
	return err
}

// Search returns the k nearest snippets by cosine similarity.
func (s *VectorStore) Search(ctx context.Context, embedding []float32, k int, minScore float64) ([]domain.Document, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	query := `
		SELECT id, title, section, content, url, published_date, source,
			1 - (embedding <=> $1) AS score
		FROM knowledge_snippets
		WHERE embedding IS NOT NULL
	`
	if minScore > 0 {
		query += ` AND 1 - (embedding <=> $1) >= ` + strconv.FormatFloat(minScore, 'f', 2, 64)
	}
	query += ` ORDER BY embedding <=> $1, id LIMIT $2`

	rows, err := s.db.Query(ctx, query, pgVector(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, k)
	for rows.Next() {
		var r SnippetRecord
		var score float64
		if err := rows.Scan(&r.ID, &r.Title, &r.Section, &r.Content, &r.URL, &r.PublishedDate, &r.Source, &score); err != nil {
			return nil, err
		}
		doc := CorpusRecord{
			ID:            r.ID,
			Title:         r.Title,
			Section:       r.Section,
			Text:          r.Content,
			URL:           r.URL,
			PublishedDate: r.PublishedDate,
			Source:        r.Source,
		}.Document()
		doc.Score = score
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of embedded snippets.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_snippets WHERE embedding IS NOT NULL`).Scan(&n)
	return n, err
}

// =============================================================================
// VectorSearch
// =============================================================================

// VectorSearch is the pgvector SimilaritySearch backend.
type VectorSearch struct {
	embedder *Embedder
	store    *VectorStore
	minScore float64
}

func NewVectorSearch(embedder *Embedder, store *VectorStore, minScore float64) *VectorSearch {
	return &VectorSearch{embedder: embedder, store: store, minScore: minScore}
}

func (v *VectorSearch) Search(ctx context.Context, query string, k int) ([]domain.Document, error) {
	embedding, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return v.store.Search(ctx, embedding, k, v.minScore)
}

// pgVector converts a float32 slice to pgvector text format.
func pgVector(v []float32) string {
	if len(v) == 0 {
		return "[0]"
	}

	buf := make([]byte, 0, len(v)*13+2)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(f), 'f', 6, 32)
	}
	buf = append(buf, ']')
	return string(buf)
}
