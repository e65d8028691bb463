// Package generation produces candidate message variants, preferring an
// LLM and falling back to deterministic templates.
package generation

import (
	"context"
	"time"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/logger"
)

// DefaultLLMTimeout bounds one generation call.
const DefaultLLMTimeout = 45 * time.Second

// FallbackObserver is told why the template path was used.
type FallbackObserver func(reason string)

// Fallback reasons
const (
	FallbackNoLLM    = "no_llm"
	FallbackLLMError = "llm_error"
	FallbackRejected = "rejected_output"
)

type Generator struct {
	llm        out.LLMCompleter
	timeout    time.Duration
	onFallback FallbackObserver
	log        *logger.Logger
}

// NewGenerator creates a generator. A nil completer means template-only.
func NewGenerator(llm out.LLMCompleter) *Generator {
	return &Generator{
		llm:     llm,
		timeout: DefaultLLMTimeout,
		log:     logger.WithField("component", "generator"),
	}
}

// WithTimeout sets the per-call LLM timeout.
func (g *Generator) WithTimeout(d time.Duration) *Generator {
	if d > 0 {
		g.timeout = d
	}
	return g
}

// OnFallback registers an observer for template fallbacks.
func (g *Generator) OnFallback(fn FallbackObserver) *Generator {
	g.onFallback = fn
	return g
}

// LLMEnabled reports whether an LLM completer is configured.
func (g *Generator) LLMEnabled() bool {
	return g.llm != nil
}

// Generate always returns at least two variants. LLM failures and
// malformed replies are logged and answered from templates.
func (g *Generator) Generate(ctx context.Context, customer *domain.CustomerEvent, seg *domain.SegmentResult, citations []domain.Citation) []domain.Variant {
	log := g.log.WithContext(ctx)

	if g.llm == nil {
		g.fallback(FallbackNoLLM)
		log.Debug("no LLM configured, using template variants")
		return TemplateVariants(customer, seg, citations)
	}

	variants, reason, err := g.generateWithLLM(ctx, customer, seg, citations)
	if err != nil {
		g.fallback(reason)
		log.WithError(err).WithField("reason", reason).Warn("LLM generation rejected, using template variants")
		return TemplateVariants(customer, seg, citations)
	}
	return variants
}

func (g *Generator) generateWithLLM(ctx context.Context, customer *domain.CustomerEvent, seg *domain.SegmentResult, citations []domain.Citation) ([]domain.Variant, string, error) {
	prompt, err := BuildUserPrompt(customer, seg, citations)
	if err != nil {
		return nil, FallbackLLMError, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply, err := g.llm.Complete(callCtx, SystemPrompt, prompt)
	if err != nil {
		return nil, FallbackLLMError, err
	}

	variants, err := ParseVariants(reply)
	if err != nil {
		return nil, FallbackRejected, err
	}

	var intent string
	if seg != nil {
		intent = string(seg.IntentLevel)
	}
	for i := range variants {
		if _, ok := variants[i].Meta[domain.MetaIntentLevel]; !ok || variants[i].Meta[domain.MetaIntentLevel] == nil {
			variants[i].SetMeta(domain.MetaIntentLevel, intent)
		}
		if variants[i].MetaString(domain.MetaGenerator) == "" {
			variants[i].SetMeta(domain.MetaGenerator, domain.GeneratorLLM)
		}
	}
	return variants, "", nil
}

func (g *Generator) fallback(reason string) {
	if g.onFallback != nil {
		g.onFallback(reason)
	}
}
