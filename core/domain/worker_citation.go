package domain

// DefaultCitationSource is used when a document carries no source.
const DefaultCitationSource = "corpus"

// Document is a raw similarity-search hit.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score,omitempty"`
}

// Citation is one retrieved knowledge snippet. RedactedText is the only
// text that may leave the retrieval stage towards an LLM.
type Citation struct {
	ID            string `json:"id" bson:"id"`
	Title         string `json:"title" bson:"title"`
	Section       string `json:"section" bson:"section"`
	Text          string `json:"text" bson:"text"`
	RedactedText  string `json:"redacted_text" bson:"redacted_text"`
	URL           string `json:"url" bson:"url"`
	PublishedDate string `json:"published_date" bson:"published_date"`
	Source        string `json:"source" bson:"source"`
}
