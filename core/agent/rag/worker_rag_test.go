package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
)

func TestBuildQuery(t *testing.T) {
	seg := &domain.SegmentResult{
		Segment:      "payment_plans:StartedFormOrFlow",
		UseCase:      "payment_plans",
		UseCaseLabel: "Payment Plans",
		FunnelStage:  domain.StageStartedFormOrFlow,
		IntentLevel:  domain.IntentMedium,
		Reasons:      []string{"interested in: Payment Plans", "started a form or flow but did not finish"},
	}

	want := "Payment Plans | StartedFormOrFlow | intent: medium | interested in: Payment Plans"
	if got := BuildQuery(seg); got != want {
		t.Errorf("BuildQuery() = %q, want %q", got, want)
	}

	seg.UseCaseLabel = ""
	if got := BuildQuery(seg); !strings.HasPrefix(got, "payment_plans | ") {
		t.Errorf("expected use_case when label missing, got %q", got)
	}
}

func TestBuildQueryFallback(t *testing.T) {
	for _, seg := range []*domain.SegmentResult{nil, {}, {Reasons: []string{"  "}}} {
		if got := BuildQuery(seg); got != DefaultQuery {
			t.Errorf("BuildQuery(%+v) = %q, want fallback", seg, got)
		}
	}
}

var rawPhone = regexp.MustCompile(`\d{3}-\d{3}-\d{4}`)

func TestRedactScenario(t *testing.T) {
	got := Redact("call 555-123-4567 or email a@b.com")

	if !strings.Contains(got, RedactedPhone) {
		t.Errorf("expected phone token in %q", got)
	}
	if !strings.Contains(got, RedactedEmail) {
		t.Errorf("expected email token in %q", got)
	}
	if rawPhone.MatchString(got) {
		t.Errorf("raw phone left in %q", got)
	}
}

func TestRedactKinds(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ssn 123-45-6789 on file", "ssn [REDACTED_SSN] on file"},
		{"reach me at +1 555.123.4567", "reach me at [REDACTED_PHONE]"},
		{"+1 555 123 4567", "[REDACTED_PHONE]"},
		{"+15551234567.", "[REDACTED_PHONE]."},
		{"(555) 123-4567", "[REDACTED_PHONE]"},
		{"1-800-555-0199", "[REDACTED_PHONE]"},
		{"order 12345551234567", "order 12345551234567"},
		{"write to first.last+tag@example.co.uk", "write to [REDACTED_EMAIL]"},
		{"no pii here", "no pii here"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Redact(tt.in); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactIdempotent(t *testing.T) {
	samples := []string{
		"call 555-123-4567 or email a@b.com",
		"ssn 123-45-6789, phone 555 123 4567, mail x.y@z.io",
		"123-45-6789@example.com",
		"[REDACTED_EMAIL] and [REDACTED_PHONE]",
		"plain text with numbers 42 and 2024",
		"+1-800-555-0199 toll free",
	}
	for _, s := range samples {
		once := Redact(s)
		if twice := Redact(once); twice != once {
			t.Errorf("Redact not idempotent for %q: %q then %q", s, once, twice)
		}
	}
}

func TestDetectPII(t *testing.T) {
	got := DetectPII("mail a@b.com, ssn 123-45-6789")
	if len(got) != 2 || got[0] != PIIEmail || got[1] != PIISSN {
		t.Errorf("DetectPII() = %v, want [email ssn]", got)
	}
	if got := DetectPII("call 555-123-4567"); len(got) != 1 || got[0] != PIIPhone {
		t.Errorf("DetectPII() = %v, want [phone]", got)
	}
	if got := DetectPII("nothing"); len(got) != 0 {
		t.Errorf("DetectPII() = %v, want none", got)
	}
}

// =============================================================================
// Retriever
// =============================================================================

func TestRetrieverAssemblesCitations(t *testing.T) {
	var gotQuery string
	var gotK int
	search := out.SimilaritySearchFunc(func(ctx context.Context, query string, k int) ([]domain.Document, error) {
		gotQuery, gotK = query, k
		return []domain.Document{
			{
				Content: "Questions? Call 555-123-4567.",
				Metadata: map[string]any{
					"id": "kb-1", "title": "Plans", "section": "FAQ",
					"url": "https://example.com/plans", "published_date": "2024-01-02",
				},
			},
			{Content: "", Metadata: map[string]any{"id": 7, "source": "pgvector"}},
		}, nil
	})

	r := NewRetriever(search, 0)
	got := r.Retrieve(context.Background(), &domain.SegmentResult{UseCase: "loans"}, 2)

	if gotK != 2 || gotQuery == "" {
		t.Fatalf("unexpected search call query=%q k=%d", gotQuery, gotK)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(got))
	}
	if got[0].ID != "kb-1" || got[0].Section != "FAQ" || got[0].URL != "https://example.com/plans" {
		t.Errorf("metadata not copied: %+v", got[0])
	}
	if got[0].Source != domain.DefaultCitationSource {
		t.Errorf("expected default source, got %q", got[0].Source)
	}
	if got[0].Text != "Questions? Call 555-123-4567." {
		t.Errorf("raw text should be kept, got %q", got[0].Text)
	}
	if strings.Contains(got[0].RedactedText, "555-123-4567") {
		t.Errorf("redacted text leaked phone: %q", got[0].RedactedText)
	}
	if got[1].ID != "7" || got[1].Source != "pgvector" {
		t.Errorf("unexpected second citation %+v", got[1])
	}
}

func TestRetrieverSwallowsFailures(t *testing.T) {
	tests := []struct {
		name   string
		search out.SimilaritySearch
	}{
		{"nil backend", nil},
		{"error", out.SimilaritySearchFunc(func(context.Context, string, int) ([]domain.Document, error) {
			return nil, errors.New("index offline")
		})},
		{"panic", out.SimilaritySearchFunc(func(context.Context, string, int) ([]domain.Document, error) {
			panic("boom")
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRetriever(tt.search, 3).Retrieve(context.Background(), nil, 0)
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty non-nil list, got %v", got)
			}
		})
	}
}

// =============================================================================
// Corpus + Ranker
// =============================================================================

func testCorpus() []domain.Document {
	return []domain.Document{
		CorpusRecord{ID: "b", Title: "Debt relief basics", Text: "How debt relief programs work."}.Document(),
		CorpusRecord{ID: "a", Title: "Payment plans", Section: "Overview", Text: "Split a balance into monthly payment plans."}.Document(),
		CorpusRecord{ID: "c", Title: "Contact us", Text: "Reach support any weekday."}.Document(),
		CorpusRecord{ID: "d", Title: "Contact hours", Text: "Reach support any weekday."}.Document(),
	}
}

func TestCorpusSearchRanksByOverlap(t *testing.T) {
	c := NewCorpusSearch(testCorpus())

	got, err := c.Search(context.Background(), "Payment Plans | StartedFormOrFlow", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(got))
	}
	if metaString(got[0].Metadata, "id") != "a" {
		t.Errorf("expected payment plans doc first, got %v", got[0].Metadata)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("expected descending scores, got %f then %f", got[0].Score, got[1].Score)
	}
}

func TestCorpusSearchTieBreaksByID(t *testing.T) {
	c := NewCorpusSearch(testCorpus())

	got, _ := c.Search(context.Background(), "weekday support", 4)
	if metaString(got[0].Metadata, "id") != "c" || metaString(got[1].Metadata, "id") != "d" {
		t.Errorf("expected c before d on equal scores, got %v, %v", got[0].Metadata, got[1].Metadata)
	}
}

func TestLoadCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.jsonl")
	data := `{"id":"kb-1","title":"Plans","text":"Monthly plans","url":"https://example.com"}

{"id":"kb-2","title":"Relief","text":"Relief options","source":"handbook"}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCorpus(path)
	if err != nil {
		t.Fatalf("LoadCorpus() error = %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 docs, got %d", c.Len())
	}
	if src := metaString(c.Documents()[1].Metadata, "source"); src != "handbook" {
		t.Errorf("expected source handbook, got %q", src)
	}
}

func TestLoadCorpusRejectsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.jsonl")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCorpus(path); err == nil {
		t.Error("expected error for malformed line")
	}
	if _, err := LoadCorpus(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}

// =============================================================================
// FallbackSearch
// =============================================================================

func TestFallbackSearch(t *testing.T) {
	secondaryHit := []domain.Document{{Content: "from corpus"}}
	secondary := out.SimilaritySearchFunc(func(context.Context, string, int) ([]domain.Document, error) {
		return secondaryHit, nil
	})

	tests := []struct {
		name    string
		primary out.SimilaritySearchFunc
		want    string
	}{
		{
			name: "primary ok",
			primary: func(context.Context, string, int) ([]domain.Document, error) {
				return []domain.Document{{Content: "from primary"}}, nil
			},
			want: "from primary",
		},
		{
			name: "primary error",
			primary: func(context.Context, string, int) ([]domain.Document, error) {
				return nil, errors.New("connection refused")
			},
			want: "from corpus",
		},
		{
			name: "primary empty",
			primary: func(context.Context, string, int) ([]domain.Document, error) {
				return nil, nil
			},
			want: "from corpus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFallbackSearch("test", tt.primary, secondary)
			got, err := s.Search(context.Background(), "q", 3)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 1 || got[0].Content != tt.want {
				t.Errorf("got %v, want %q", got, tt.want)
			}
		})
	}
}

func TestFallbackSearchOpensBreaker(t *testing.T) {
	calls := 0
	primary := out.SimilaritySearchFunc(func(context.Context, string, int) ([]domain.Document, error) {
		calls++
		return nil, errors.New("down")
	})
	secondary := out.SimilaritySearchFunc(func(context.Context, string, int) ([]domain.Document, error) {
		return []domain.Document{{Content: "ok"}}, nil
	})

	s := NewFallbackSearch("flaky", primary, secondary)
	for i := 0; i < 10; i++ {
		if _, err := s.Search(context.Background(), "q", 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if calls != 5 {
		t.Errorf("expected breaker to stop primary after 5 failures, got %d calls", calls)
	}
	if s.BreakerState() != "open" {
		t.Errorf("expected open breaker, got %s", s.BreakerState())
	}
}

// =============================================================================
// Embedding
// =============================================================================

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text)), 0.5}, nil
}

func TestEmbedderCachesQueries(t *testing.T) {
	backend := &countingEmbedder{}
	e := NewEmbedder(backend, NewEmbeddingCache(10, 0))

	for i := 0; i < 3; i++ {
		if _, err := e.Embed(context.Background(), "payment plans"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if backend.calls != 1 {
		t.Errorf("expected 1 backend call, got %d", backend.calls)
	}

	hits, misses := e.cache.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("expected 2 hits 1 miss, got %d/%d", hits, misses)
	}
}

func TestEmbeddingCacheEvictsOldest(t *testing.T) {
	c := NewEmbeddingCache(2, 0)
	c.Set("one", []float32{1})
	c.Set("two", []float32{2})
	c.Set("three", []float32{3})

	if len(c.entries) != 2 {
		t.Errorf("expected 2 entries after eviction, got %d", len(c.entries))
	}
	if _, ok := c.Get("three"); !ok {
		t.Error("newest entry should be kept")
	}
}

func TestPgVector(t *testing.T) {
	if got := pgVector(nil); got != "[0]" {
		t.Errorf("pgVector(nil) = %q", got)
	}
	if got := pgVector([]float32{0.5, -1}); got != "[0.500000,-1.000000]" {
		t.Errorf("pgVector() = %q", got)
	}
}
