package ports

import (
	"context"

	"github.com/forenvision/case-console/internal/core/domain"
)

// AuditRepository persists session transitions.
type AuditRepository interface {
	Insert(ctx context.Context, t *domain.SessionTransition) error
}

// AuditService records one transition reported by a session machine.
type AuditService interface {
	Record(ctx context.Context, t domain.SessionTransition) error
}

// AuditHistory reads back recorded transitions.
type AuditHistory interface {
	ListByIdentity(ctx context.Context, identityID int64, limit int64) ([]domain.SessionTransition, error)
}
