package generation

import (
	"strings"

	"github.com/goccy/go-json"

	"campaign_worker/core/agent/rag"
	"campaign_worker/core/domain"
)

const SystemPrompt = "You are a helpful marketing and customer communications assistant. " +
	"You write clear, empathetic, and compliant email or message variants " +
	"based ONLY on the information you are given. " +
	"Do not invent benefits, guarantees, or facts. " +
	"Highlight next steps and options in a friendly, non-pushy way."

var promptInstructions = []string{
	"Use only the 'snippet' text from citations; do NOT invent new legal or tax claims.",
	"Be honest and non-guaranteeing (e.g., say 'may', 'can help', not 'will definitely').",
	"Tailor tone to the segment.intent_level (higher intent -> more direct next steps).",
	"Each variant must be a JSON object with keys: id, subject, body, meta.",
	"meta must include: type (short/medium/long), tone, and intent_level.",
	"id should be 'A', 'B', 'C', etc.",
}

// promptPayload is the minimized input sent to the model. It carries the
// customer's first name only and redacted citation snippets.
type promptPayload struct {
	Customer     promptCustomer        `json:"customer"`
	Segment      *domain.SegmentResult `json:"segment"`
	Citations    []promptCitation      `json:"citations"`
	Instructions []string              `json:"instructions"`
}

type promptCustomer struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name"`
}

type promptCitation struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Section string `json:"section"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

func buildPayload(customer *domain.CustomerEvent, seg *domain.SegmentResult, citations []domain.Citation) promptPayload {
	p := promptPayload{
		Customer:     promptCustomer{FirstName: customer.DisplayName()},
		Segment:      seg,
		Citations:    make([]promptCitation, 0, len(citations)),
		Instructions: promptInstructions,
	}
	if customer != nil {
		p.Customer.ID = strings.TrimSpace(customer.ID)
	}
	for _, c := range citations {
		p.Citations = append(p.Citations, promptCitation{
			ID:      c.ID,
			Title:   c.Title,
			Section: c.Section,
			Snippet: citationSnippet(c),
			URL:     c.URL,
			Source:  c.Source,
		})
	}
	return p
}

// BuildUserPrompt renders the user message for the LLM call.
func BuildUserPrompt(customer *domain.CustomerEvent, seg *domain.SegmentResult, citations []domain.Citation) (string, error) {
	raw, err := json.MarshalIndent(buildPayload(customer, seg, citations), "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Using the following JSON input, generate 2 or 3 message variants for the customer.\n\n")
	b.WriteString("INPUT JSON:\n")
	b.Write(raw)
	b.WriteString("\n\nOUTPUT:\n")
	b.WriteString("Return ONLY a JSON array of variant objects. Do not include any explanation or prose.")
	return b.String(), nil
}

// citationSnippet never returns raw citation text.
func citationSnippet(c domain.Citation) string {
	if c.RedactedText != "" {
		return c.RedactedText
	}
	return rag.Redact(c.Text)
}
