package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
	"github.com/forenvision/case-console/internal/metrics"
)

// DedupChecker abstracts the idempotency store (Redis).
type DedupChecker interface {
	MarkFirst(ctx context.Context, userID int64, to string, ts time.Time) (bool, error)
}

type auditService struct {
	repo  ports.AuditRepository
	dedup DedupChecker
	log   zerolog.Logger
}

// NewAuditService returns an AuditService. dedup may be nil when instances
// do not share a Redis.
func NewAuditService(repo ports.AuditRepository, dedup DedupChecker, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, dedup: dedup, log: log}
}

// Record stores one transition unless another instance already did.
func (s *auditService) Record(ctx context.Context, t domain.SessionTransition) error {
	// 1. Idempotency check: every tab observes the same logout.
	if s.dedup != nil {
		first, err := s.dedup.MarkFirst(ctx, t.IdentityID, string(t.To), t.At)
		if err != nil {
			s.log.Warn().Err(err).Int64("user_id", t.IdentityID).Msg("dedup check failed, recording anyway")
		} else if !first {
			metrics.AuditRecordsTotal.WithLabelValues("duplicate").Inc()
			s.log.Debug().Int64("user_id", t.IdentityID).Str("to", string(t.To)).Msg("duplicate transition skipped")
			return nil
		}
	}

	// 2. Persist.
	if err := s.repo.Insert(ctx, &t); err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("record transition: %w", err)
	}

	metrics.AuditRecordsTotal.WithLabelValues("stored").Inc()
	s.log.Debug().
		Int64("user_id", t.IdentityID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("transition recorded")
	return nil
}
