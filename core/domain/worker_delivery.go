package domain

// DeliveryStatus is the outcome of the delivery step.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryDryRun  DeliveryStatus = "dry_run"
	DeliverySkipped DeliveryStatus = "skipped"
	DeliveryError   DeliveryStatus = "error"
)

// Delivery skip reasons
const (
	SkipNoCustomer  = "no_customer"
	SkipNoRecipient = "no_recipient"
	SkipNoWinner    = "no_winner"
)

// OutboundMessage is what the pipeline hands to the external sender.
type OutboundMessage struct {
	RunID      string `json:"run_id,omitempty"`
	CustomerID string `json:"customer_id"`
	Recipient  string `json:"recipient"`
	VariantID  string `json:"variant_id"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// DeliveryResult is recorded under the delivery stage.
type DeliveryResult struct {
	Status     DeliveryStatus `json:"status" bson:"status"`
	Reason     string         `json:"reason,omitempty" bson:"reason,omitempty"`
	VariantID  string         `json:"variant_id,omitempty" bson:"variant_id,omitempty"`
	Recipient  string         `json:"recipient,omitempty" bson:"recipient,omitempty"`
	ProviderID string         `json:"provider_id,omitempty" bson:"provider_id,omitempty"`
}
