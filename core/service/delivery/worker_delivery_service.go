// Package delivery hands the winning variant to an outbound sender.
package delivery

import (
	"context"
	"errors"
	"strings"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/logger"
	"campaign_worker/pkg/metrics"
)

// ErrNoSender is reported when a live send is requested without a sender.
var ErrNoSender = errors.New("no message sender configured")

type Service struct {
	sender out.MessageSender
	dryRun bool
	log    *logger.Logger
}

func NewService(sender out.MessageSender, dryRun bool) *Service {
	return &Service{
		sender: sender,
		dryRun: dryRun,
		log:    logger.WithField("component", "delivery"),
	}
}

// DryRun reports the default mode.
func (s *Service) DryRun() bool {
	return s.dryRun
}

// Deliver uses the service's default dry-run mode.
func (s *Service) Deliver(ctx context.Context, state *domain.PipelineState) *domain.DeliveryResult {
	return s.DeliverWith(ctx, state, s.dryRun)
}

// DeliverWith sends the winner unless a skip condition applies. Checks run
// in order: customer, recipient, winner, dry-run, send.
func (s *Service) DeliverWith(ctx context.Context, state *domain.PipelineState, dryRun bool) *domain.DeliveryResult {
	res := s.deliver(ctx, state, dryRun)
	metrics.IncDelivery(string(res.Status))
	return res
}

func (s *Service) deliver(ctx context.Context, state *domain.PipelineState, dryRun bool) *domain.DeliveryResult {
	if state == nil || state.Customer == nil {
		return &domain.DeliveryResult{Status: domain.DeliverySkipped, Reason: domain.SkipNoCustomer}
	}

	recipient := strings.TrimSpace(state.Customer.Email)
	if recipient == "" {
		return &domain.DeliveryResult{Status: domain.DeliverySkipped, Reason: domain.SkipNoRecipient}
	}

	if !state.Analysis.HasWinner() {
		return &domain.DeliveryResult{Status: domain.DeliverySkipped, Reason: domain.SkipNoWinner, Recipient: recipient}
	}
	winner, ok := state.Safety.SafeByID(state.Analysis.Winner.VariantID)
	if !ok {
		return &domain.DeliveryResult{Status: domain.DeliverySkipped, Reason: domain.SkipNoWinner, Recipient: recipient}
	}

	res := &domain.DeliveryResult{VariantID: winner.ID, Recipient: recipient}
	if dryRun {
		res.Status = domain.DeliveryDryRun
		return res
	}
	if s.sender == nil {
		res.Status = domain.DeliveryError
		res.Reason = ErrNoSender.Error()
		return res
	}

	msg := &domain.OutboundMessage{
		RunID:      state.RunID,
		CustomerID: state.CustomerID,
		Recipient:  recipient,
		VariantID:  winner.ID,
		Subject:    winner.Subject,
		Body:       winner.Body,
	}
	providerID, err := s.sender.Send(ctx, msg)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("sender", s.sender.Name()).Error("delivery failed")
		res.Status = domain.DeliveryError
		res.Reason = err.Error()
		return res
	}

	res.Status = domain.DeliverySent
	res.ProviderID = providerID
	return res
}
