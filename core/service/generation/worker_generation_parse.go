package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"campaign_worker/core/domain"
)

// MinVariants is the smallest variant set the generator may return.
const MinVariants = 2

var requiredVariantKeys = []string{"id", "subject", "body", "meta"}

// ParseVariants strictly parses an LLM reply as a JSON array of variants.
// Any malformed item rejects the whole reply.
func ParseVariants(raw string) ([]domain.Variant, error) {
	text := StripCodeFence(raw)
	if text == "" {
		return nil, errors.New("empty reply")
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("reply is not a JSON array: %w", err)
	}
	if len(items) < MinVariants {
		return nil, fmt.Errorf("reply has %d variants, need at least %d", len(items), MinVariants)
	}

	variants := make([]domain.Variant, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		v, err := parseVariant(item)
		if err != nil {
			return nil, fmt.Errorf("variant %d: %w", i, err)
		}
		if _, dup := seen[v.ID]; dup {
			return nil, fmt.Errorf("variant %d: duplicate id %q", i, v.ID)
		}
		seen[v.ID] = struct{}{}
		variants = append(variants, v)
	}
	return variants, nil
}

func parseVariant(item json.RawMessage) (domain.Variant, error) {
	var obj map[string]any
	if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
		return domain.Variant{}, errors.New("not an object")
	}
	for _, key := range requiredVariantKeys {
		if _, ok := obj[key]; !ok {
			return domain.Variant{}, fmt.Errorf("missing key %q", key)
		}
	}

	id, ok := obj["id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return domain.Variant{}, errors.New("id must be a non-empty string")
	}
	subject, ok := obj["subject"].(string)
	if !ok {
		return domain.Variant{}, errors.New("subject must be a string")
	}
	body, ok := obj["body"].(string)
	if !ok {
		return domain.Variant{}, errors.New("body must be a string")
	}

	meta := map[string]any{}
	switch m := obj["meta"].(type) {
	case nil:
	case map[string]any:
		meta = m
	default:
		return domain.Variant{}, errors.New("meta must be an object")
	}

	return domain.Variant{
		ID:      strings.TrimSpace(id),
		Subject: subject,
		Body:    body,
		Meta:    meta,
	}, nil
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the language tag line
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
