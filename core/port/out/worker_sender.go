package out

import (
	"context"

	"campaign_worker/core/domain"
)

// MessageSender 외부 발송 채널 (email, webhook, topic ...).
// It returns a provider-side message id on success.
type MessageSender interface {
	Name() string
	Send(ctx context.Context, msg *domain.OutboundMessage) (string, error)
}
