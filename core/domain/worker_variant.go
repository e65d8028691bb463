package domain

import "fmt"

// Variant meta keys
const (
	MetaType        = "type"
	MetaTone        = "tone"
	MetaContext     = "context"
	MetaIntentLevel = "intent_level"
	MetaGenerator   = "generator"
)

// Generator provenance tags
const (
	GeneratorLLM      = "llm"
	GeneratorTemplate = "template_fallback"
)

// Variant is one candidate outbound message.
type Variant struct {
	ID      string         `json:"id" bson:"id"`
	Subject string         `json:"subject" bson:"subject"`
	Body    string         `json:"body" bson:"body"`
	Meta    map[string]any `json:"meta" bson:"meta"`
}

// MetaString returns meta[key] as a string, or "" if absent.
func (v *Variant) MetaString(key string) string {
	if v == nil || v.Meta == nil {
		return ""
	}
	val, ok := v.Meta[key]
	if !ok || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprint(val)
}

// SetMeta sets meta[key], allocating the map if needed.
func (v *Variant) SetMeta(key string, value any) {
	if v.Meta == nil {
		v.Meta = make(map[string]any)
	}
	v.Meta[key] = value
}

// Text is the combined text scanned by the safety gate.
func (v *Variant) Text() string {
	return v.Subject + "\n" + v.Body
}

// Clone returns a copy with its own meta map.
func (v Variant) Clone() Variant {
	meta := make(map[string]any, len(v.Meta))
	for k, val := range v.Meta {
		meta[k] = val
	}
	v.Meta = meta
	return v
}

// VariantIDs returns ids in input order.
func VariantIDs(variants []Variant) []string {
	ids := make([]string, 0, len(variants))
	for _, v := range variants {
		ids = append(ids, v.ID)
	}
	return ids
}
