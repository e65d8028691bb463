package out

import "context"

// LLMCompleter LLM 호출 인터페이스 (system + user prompt -> raw text)
type LLMCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Embedder turns text into a vector for similarity search backends.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
