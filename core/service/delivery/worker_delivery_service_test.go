package delivery

import (
	"context"
	"errors"
	"testing"

	"campaign_worker/core/domain"
)

type fakeSender struct {
	sent []*domain.OutboundMessage
	err  error
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

func stateWithWinner(email string) *domain.PipelineState {
	winner := domain.Variant{ID: "A", Subject: "Hi", Body: "Body"}
	return &domain.PipelineState{
		RunID:      "run-1",
		CustomerID: "c1",
		Customer:   &domain.CustomerEvent{ID: "c1", Email: email},
		Safety:     &domain.SafetyResult{Safe: []domain.Variant{winner}},
		Analysis:   &domain.WinnerSelection{Winner: &domain.Winner{VariantID: "A", Score: 0.1}},
	}
}

func TestDeliverSkips(t *testing.T) {
	noWinner := stateWithWinner("a@b.com")
	noWinner.Analysis = &domain.WinnerSelection{}

	blockedWinner := stateWithWinner("a@b.com")
	blockedWinner.Safety = &domain.SafetyResult{}

	tests := []struct {
		name   string
		state  *domain.PipelineState
		reason string
	}{
		{"nil state", nil, domain.SkipNoCustomer},
		{"no customer", &domain.PipelineState{}, domain.SkipNoCustomer},
		{"no email", stateWithWinner("  "), domain.SkipNoRecipient},
		{"no winner", noWinner, domain.SkipNoWinner},
		{"winner not safe", blockedWinner, domain.SkipNoWinner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			got := NewService(sender, false).Deliver(context.Background(), tt.state)
			if got.Status != domain.DeliverySkipped || got.Reason != tt.reason {
				t.Errorf("got %+v, want skipped/%s", got, tt.reason)
			}
			if len(sender.sent) != 0 {
				t.Error("skipped delivery must not send")
			}
		})
	}
}

func TestDeliverDryRun(t *testing.T) {
	sender := &fakeSender{}
	got := NewService(sender, true).Deliver(context.Background(), stateWithWinner("a@b.com"))

	if got.Status != domain.DeliveryDryRun || got.VariantID != "A" || got.Recipient != "a@b.com" {
		t.Errorf("unexpected result %+v", got)
	}
	if len(sender.sent) != 0 {
		t.Error("dry run must not send")
	}
}

func TestDeliverSends(t *testing.T) {
	sender := &fakeSender{}
	got := NewService(sender, true).DeliverWith(context.Background(), stateWithWinner("a@b.com"), false)

	if got.Status != domain.DeliverySent || got.ProviderID != "msg-1" {
		t.Errorf("unexpected result %+v", got)
	}
	if len(sender.sent) != 1 || sender.sent[0].Subject != "Hi" || sender.sent[0].RunID != "run-1" {
		t.Errorf("unexpected outbound message %+v", sender.sent)
	}
}

func TestDeliverSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	got := NewService(sender, false).Deliver(context.Background(), stateWithWinner("a@b.com"))

	if got.Status != domain.DeliveryError || got.Reason != "smtp down" {
		t.Errorf("unexpected result %+v", got)
	}

	got = NewService(nil, false).Deliver(context.Background(), stateWithWinner("a@b.com"))
	if got.Status != domain.DeliveryError || got.Reason != ErrNoSender.Error() {
		t.Errorf("expected no-sender error, got %+v", got)
	}
}
