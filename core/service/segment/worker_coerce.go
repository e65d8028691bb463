package segment

import (
	"fmt"
	"strings"
	"unicode"
)

var truthy = map[string]struct{}{
	"yes":  {},
	"y":    {},
	"true": {},
	"1":    {},
}

// ToBool reports whether a loosely-typed flag is set. Only the trimmed,
// lowercased forms yes, y, true and 1 count as true.
func ToBool(value any) bool {
	if value == nil {
		return false
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return false
		}
		s = *v
	default:
		s = fmt.Sprint(v)
	}
	_, ok := truthy[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// PrettifySlug turns "payment_plans" into "Payment Plans". Empty input
// yields "Unknown".
func PrettifySlug(slug string) string {
	if slug == "" {
		return "Unknown"
	}
	spaced := strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	return titleCase(spaced)
}

// titleCase upper-cases the first letter of each run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
