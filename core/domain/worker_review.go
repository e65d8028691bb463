package domain

import "time"

// ReviewStatus is the lifecycle state of a human review.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending_human_approval"
	ReviewNoVariants ReviewStatus = "no_variants"
	ReviewApproved   ReviewStatus = "approved"
	ReviewRejected   ReviewStatus = "rejected"
)

// ReviewTicket is the hitl stage output. ReviewID is empty when there was
// nothing to review.
type ReviewTicket struct {
	ReviewID    string       `json:"review_id,omitempty" bson:"review_id,omitempty"`
	Status      ReviewStatus `json:"status" bson:"status"`
	CustomerID  string       `json:"customer_id" bson:"customer_id"`
	Email       string       `json:"email,omitempty" bson:"email,omitempty"`
	NumVariants int          `json:"num_variants" bson:"num_variants"`
}

// Review is the persisted review job holding the safe variants.
type Review struct {
	ReviewID          string         `json:"review_id"`
	RunID             string         `json:"run_id"`
	Customer          *CustomerEvent `json:"customer"`
	Variants          []Variant      `json:"variants"`
	Status            ReviewStatus   `json:"status"`
	ApprovedVariantID string         `json:"approved_variant_id,omitempty"`
	Notes             string         `json:"notes,omitempty"`
	Reviewer          string         `json:"reviewer,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// HasVariant reports whether id is one of the reviewed variants.
func (r *Review) HasVariant(id string) bool {
	for _, v := range r.Variants {
		if v.ID == id {
			return true
		}
	}
	return false
}

// ReviewDecision is a reviewer's verdict. An empty Status means approve.
type ReviewDecision struct {
	Status            ReviewStatus `json:"status,omitempty"`
	ApprovedVariantID string       `json:"approved_variant_id,omitempty"`
	Notes             string       `json:"notes,omitempty"`
	Reviewer          string       `json:"reviewer,omitempty"`
}

// ReviewKey is the store key for a review job.
func ReviewKey(reviewID string) string {
	return "hitl:" + reviewID
}
