package domain

// Safety reason prefixes
const (
	ReasonProhibitedTerm = "prohibited_term"
	ReasonPII            = "pii"
)

// BlockedVariant is a variant rejected by the safety gate.
type BlockedVariant struct {
	Variant Variant `json:"variant" bson:"variant"`
	Reason  string  `json:"reason" bson:"reason"`
}

// SafetyResult partitions variants into safe and blocked. Every input
// variant lands in exactly one of the two lists.
type SafetyResult struct {
	Safe    []Variant        `json:"safe" bson:"safe"`
	Blocked []BlockedVariant `json:"blocked" bson:"blocked"`
}

// SafeByID returns the safe variant with the given id.
func (r *SafetyResult) SafeByID(id string) (Variant, bool) {
	if r == nil {
		return Variant{}, false
	}
	for _, v := range r.Safe {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
