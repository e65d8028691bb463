package domain

import (
	"fmt"
	"strings"
)

// AnonymousCustomerID namespaces runs for events with neither id nor email.
const AnonymousCustomerID = "anonymous"

// CustomerEvent is a raw customer activity record. Flags are kept as
// received (string, bool, number or nil) and coerced by the segmenter.
type CustomerEvent struct {
	ID          string `json:"id,omitempty" bson:"id,omitempty"`
	Email       string `json:"email,omitempty" bson:"email,omitempty"`
	Name        string `json:"name,omitempty" bson:"name,omitempty"`
	FirstName   string `json:"first_name,omitempty" bson:"first_name,omitempty"`
	ViewedPage  string `json:"viewed_page,omitempty" bson:"viewed_page,omitempty"`
	FormStarted any    `json:"form_started,omitempty" bson:"form_started,omitempty"`
	Scheduled   any    `json:"scheduled,omitempty" bson:"scheduled,omitempty"`
	Attended    any    `json:"attended,omitempty" bson:"attended,omitempty"`
}

// CustomerID returns the key namespace for this customer.
func (c *CustomerEvent) CustomerID() string {
	if c == nil {
		return AnonymousCustomerID
	}
	if id := strings.TrimSpace(c.ID); id != "" {
		return id
	}
	if email := strings.TrimSpace(c.Email); email != "" {
		return email
	}
	return AnonymousCustomerID
}

// DisplayName prefers first_name, then name, then "there".
func (c *CustomerEvent) DisplayName() string {
	if c == nil {
		return "there"
	}
	if n := strings.TrimSpace(c.FirstName); n != "" {
		return n
	}
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return "there"
}

// CustomerEventFromMap builds an event from a loosely-typed record such as a
// CSV row or a decoded JSON object. Keys are matched case-insensitively and
// unknown keys are ignored. It never fails.
func CustomerEventFromMap(row map[string]any) CustomerEvent {
	norm := make(map[string]any, len(row))
	for k, v := range row {
		norm[strings.ToLower(strings.TrimSpace(k))] = v
	}

	str := func(key string) string {
		v, ok := norm[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}

	return CustomerEvent{
		ID:          firstNonEmpty(str("id"), str("customer_id"), str("user_id")),
		Email:       str("email"),
		Name:        str("name"),
		FirstName:   str("first_name"),
		ViewedPage:  str("viewed_page"),
		FormStarted: norm["form_started"],
		Scheduled:   norm["scheduled"],
		Attended:    norm["attended"],
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
