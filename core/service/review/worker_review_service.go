// Package review opens human review jobs for the variants that passed the
// safety gate and records reviewer decisions. A run never waits on a
// decision.
package review

import (
	"context"
	"strings"
	"sync"
	"time"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/apperr"
	"campaign_worker/pkg/logger"

	"github.com/google/uuid"
)

type Service struct {
	store   out.StateStore
	archive out.RunArchive

	// 같은 프로세스 안에서 결정이 겹치지 않도록
	mu sync.Mutex

	newID func() string
	now   func() time.Time
	log   *logger.Logger
}

func NewService(store out.StateStore) *Service {
	return &Service{
		store: store,
		newID: func() string { return "review_" + strings.ReplaceAll(uuid.NewString(), "-", "") },
		now:   time.Now,
		log:   logger.WithField("component", "review"),
	}
}

// WithArchive records decisions in the run audit trail.
func (s *Service) WithArchive(archive out.RunArchive) *Service {
	s.archive = archive
	return s
}

// =============================================================================
// Open
// =============================================================================

// Open persists a pending review for the safe variants and returns its
// ticket. With no safe variants nothing is stored and the ticket has
// status no_variants.
func (s *Service) Open(ctx context.Context, runID string, customer *domain.CustomerEvent, safe []domain.Variant) (*domain.ReviewTicket, error) {
	ticket := &domain.ReviewTicket{NumVariants: len(safe)}
	if customer != nil {
		ticket.CustomerID = customer.CustomerID()
		ticket.Email = customer.Email
	}

	if len(safe) == 0 {
		ticket.Status = domain.ReviewNoVariants
		s.log.WithField("customer_id", ticket.CustomerID).Info("no variants to review")
		return ticket, nil
	}

	variants := make([]domain.Variant, len(safe))
	for i, v := range safe {
		variants[i] = v.Clone()
	}

	now := s.now()
	r := &domain.Review{
		ReviewID:  s.newID(),
		RunID:     runID,
		Customer:  customer,
		Variants:  variants,
		Status:    domain.ReviewPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := domain.ReviewKey(r.ReviewID)
	if err := s.store.Set(ctx, key, r); err != nil {
		return nil, apperr.StoreError("set "+key, err)
	}

	ticket.ReviewID = r.ReviewID
	ticket.Status = domain.ReviewPending

	s.log.WithFields(map[string]any{
		"review_id":   r.ReviewID,
		"run_id":      runID,
		"customer_id": ticket.CustomerID,
		"variants":    len(variants),
	}).Info("review job created")
	return ticket, nil
}

// =============================================================================
// Read / Decide
// =============================================================================

func (s *Service) Get(ctx context.Context, reviewID string) (*domain.Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return nil, apperr.MissingField("review_id")
	}

	var r domain.Review
	found, err := s.store.Get(ctx, domain.ReviewKey(reviewID), &r)
	if err != nil {
		return nil, apperr.StoreError("get review", err)
	}
	if !found {
		return nil, apperr.NotFound("review")
	}
	return &r, nil
}

// Decide records a reviewer verdict on a pending review. Approving requires
// one of the reviewed variant ids. A review is decided once.
func (s *Service) Decide(ctx context.Context, reviewID string, d domain.ReviewDecision) (*domain.Review, error) {
	if d.Status == "" {
		d.Status = domain.ReviewApproved
	}
	d.ApprovedVariantID = strings.TrimSpace(d.ApprovedVariantID)

	switch d.Status {
	case domain.ReviewApproved:
		if d.ApprovedVariantID == "" {
			return nil, apperr.MissingField("approved_variant_id")
		}
	case domain.ReviewRejected:
		d.ApprovedVariantID = ""
	default:
		return nil, apperr.InvalidInput("status", "must be approved or rejected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if r.Status != domain.ReviewPending {
		return nil, apperr.Conflict("review already decided: " + string(r.Status))
	}
	if d.Status == domain.ReviewApproved && !r.HasVariant(d.ApprovedVariantID) {
		return nil, apperr.InvalidInput("approved_variant_id", "not one of the reviewed variants")
	}

	r.Status = d.Status
	r.ApprovedVariantID = d.ApprovedVariantID
	r.Notes = d.Notes
	r.Reviewer = d.Reviewer
	r.UpdatedAt = s.now()

	key := domain.ReviewKey(r.ReviewID)
	if err := s.store.Set(ctx, key, r); err != nil {
		return nil, apperr.StoreError("set "+key, err)
	}

	s.audit(ctx, r)
	return r, nil
}

// audit is best effort; the decision is already stored.
func (s *Service) audit(ctx context.Context, r *domain.Review) {
	if s.archive == nil {
		return
	}
	entry := &out.AuditEntry{
		RunID:  r.RunID,
		Action: "review." + string(r.Status),
		Metadata: map[string]any{
			"review_id":           r.ReviewID,
			"approved_variant_id": r.ApprovedVariantID,
			"notes_present":       r.Notes != "",
			"reviewer":            r.Reviewer,
		},
		Timestamp: r.UpdatedAt,
	}
	if r.Customer != nil {
		entry.CustomerID = r.Customer.CustomerID()
	}
	if err := s.archive.AppendAudit(ctx, entry); err != nil {
		s.log.WithError(err).WithField("review_id", r.ReviewID).Warn("failed to append review audit entry")
	}
}
