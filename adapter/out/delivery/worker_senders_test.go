package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"campaign_worker/core/domain"
)

func testMessage() *domain.OutboundMessage {
	return &domain.OutboundMessage{
		RunID:      "r1",
		CustomerID: "c1",
		Recipient:  "ana@example.com",
		VariantID:  "A",
		Subject:    "Hi Ana",
		Body:       "Hello",
	}
}

func TestMockSenderRecords(t *testing.T) {
	s := NewMockSender()
	id, err := s.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(id, "mock-") {
		t.Errorf("id = %q", id)
	}
	if sent := s.Sent(); len(sent) != 1 || sent[0].VariantID != "A" {
		t.Errorf("Sent = %+v", sent)
	}
}

func TestMockSenderHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockSender().Send(ctx, testMessage()); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestWebhookSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"provider-42"}`))
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second, nil)
	id, err := s.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "provider-42" {
		t.Errorf("id = %q", id)
	}
	if got["recipient"] != "ana@example.com" || got["message_id"] == "" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestWebhookSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := NewWebhookSender(srv.URL, time.Second, nil).Send(context.Background(), testMessage()); err == nil {
		t.Error("expected error on 400")
	}
}
