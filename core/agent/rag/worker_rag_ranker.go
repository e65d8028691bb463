package rag

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"campaign_worker/core/domain"
)

// Ranker scores documents against a query by token overlap, with a small
// recency component taken from published_date.
type Ranker struct {
	overlapWeight float64
	recencyWeight float64
	now           func() time.Time
}

func NewRanker() *Ranker {
	return &Ranker{
		overlapWeight: 0.9,
		recencyWeight: 0.1,
		now:           time.Now,
	}
}

// WithWeights allows customizing ranking weights
func (r *Ranker) WithWeights(overlap, recency float64) *Ranker {
	total := overlap + recency
	if total > 0 {
		r.overlapWeight = overlap / total
		r.recencyWeight = recency / total
	}
	return r
}

// WithClock fixes the reference time used for recency.
func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	r.now = now
	return r
}

// Rank returns the top k documents with Score set, best first. Equal
// scores are ordered by metadata id.
func (r *Ranker) Rank(query string, docs []domain.Document, k int) []domain.Document {
	if len(docs) == 0 || k <= 0 {
		return []domain.Document{}
	}

	queryTokens := tokenSet(query)
	ranked := make([]domain.Document, len(docs))
	for i, doc := range docs {
		doc.Score = r.overlapWeight*overlapScore(queryTokens, doc) +
			r.recencyWeight*r.recencyScore(doc.Metadata)
		ranked[i] = doc
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return metaString(ranked[i].Metadata, "id") < metaString(ranked[j].Metadata, "id")
	})

	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

// overlapScore is the share of query tokens present in the document's
// title, section and text. Title hits count double.
func overlapScore(query map[string]struct{}, doc domain.Document) float64 {
	if len(query) == 0 {
		return 0
	}
	title := tokenSet(metaString(doc.Metadata, "title"))
	body := tokenSet(metaString(doc.Metadata, "section") + " " + doc.Content)

	var hits float64
	for tok := range query {
		if _, ok := title[tok]; ok {
			hits += 2
		} else if _, ok := body[tok]; ok {
			hits++
		}
	}
	score := hits / float64(2*len(query))
	if score > 1 {
		return 1
	}
	return score
}

// recencyScore returns 0.0 to 1.0, where 1.0 is published today.
func (r *Ranker) recencyScore(metadata map[string]any) float64 {
	raw := metaString(metadata, "published_date")
	if raw == "" {
		return 0.5
	}

	var published time.Time
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			published = t
			break
		}
	}
	if published.IsZero() {
		return 0.5
	}

	daysAgo := r.now().Sub(published).Hours() / 24
	if daysAgo <= 0 {
		return 1.0
	}

	// half-life of roughly 90 days, floored at 0.1
	score := 1.0 / (1.0 + daysAgo/90.0)
	if score < 0.1 {
		return 0.1
	}
	return score
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "but": {}, "did": {}, "for": {},
	"has": {}, "in": {}, "is": {}, "it": {}, "not": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "yet": {}, "your": {},
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}
