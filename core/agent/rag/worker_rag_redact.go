package rag

import "regexp"

// =============================================================================
// PII Redaction
// =============================================================================
//
// Best-effort scrubbing of emails, phone numbers and SSNs. Other entity
// types (names, addresses, account numbers) are not detected.

// PII kinds
const (
	PIIEmail = "email"
	PIIPhone = "phone"
	PIISSN   = "ssn"
)

// Replacement tokens
const (
	RedactedEmail = "[REDACTED_EMAIL]"
	RedactedPhone = "[REDACTED_PHONE]"
	RedactedSSN   = "[REDACTED_SSN]"
)

type piiPattern struct {
	kind        string
	re          *regexp.Regexp
	replacement string
}

// Applied in order. SSN runs before phone.
var piiPatterns = []piiPattern{
	{
		kind:        PIIEmail,
		re:          regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		replacement: RedactedEmail,
	},
	{
		kind:        PIISSN,
		re:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: RedactedSSN,
	},
	{
		kind:        PIIPhone,
		re:          regexp.MustCompile(`(?:(?:\+1[-.\s]?|\b1[-.\s]?)?\(\d{3}\)[-.\s]?|(?:\+1[-.\s]?|\b1[-.\s]?|\b)(?:\d{3}[-.\s]?)?)\d{3}[-.\s]?\d{4}\b`),
		replacement: RedactedPhone,
	},
}

// Redact replaces recognized PII with fixed tokens. Redact(Redact(x)) ==
// Redact(x).
func Redact(text string) string {
	if text == "" {
		return text
	}
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// DetectPII returns the kinds of PII found in text, in email, ssn, phone
// order. Each kind appears at most once.
func DetectPII(text string) []string {
	if text == "" {
		return nil
	}
	var kinds []string
	for _, p := range piiPatterns {
		if p.re.MatchString(text) {
			kinds = append(kinds, p.kind)
		}
	}
	return kinds
}
