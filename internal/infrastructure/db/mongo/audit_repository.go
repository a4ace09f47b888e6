package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

const auditCollection = "session_transitions"

var _ ports.AuditRepository = (*AuditRepository)(nil)

// AuditRepository implements ports.AuditRepository using MongoDB.
type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

type mongoTransition struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	From       string             `bson:"from"`
	To         string             `bson:"to"`
	IdentityID int64              `bson:"identity_id,omitempty"`
	Role       string             `bson:"role,omitempty"`
	Origin     string             `bson:"origin"`
	At         time.Time          `bson:"at"`
	RecordedAt time.Time          `bson:"recorded_at"`
}

// EnsureIndexes creates the lookup index used by per-user history queries.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity_id", Value: 1}, {Key: "at", Value: -1}},
		Options: options.Index().SetName("identity_at"),
	})
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

// Insert persists one transition to the session_transitions collection.
func (r *AuditRepository) Insert(ctx context.Context, t *domain.SessionTransition) error {
	doc := mongoTransition{
		From:       string(t.From),
		To:         string(t.To),
		IdentityID: t.IdentityID,
		Role:       string(t.Role),
		Origin:     t.Origin,
		At:         t.At.UTC(),
		RecordedAt: time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// ListByIdentity returns the most recent transitions of one user, newest first.
func (r *AuditRepository) ListByIdentity(ctx context.Context, identityID int64, limit int64) ([]domain.SessionTransition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"identity_id": identityID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find transitions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoTransition
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode transitions: %w", err)
	}

	out := make([]domain.SessionTransition, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.SessionTransition{
			From:       domain.SessionState(d.From),
			To:         domain.SessionState(d.To),
			IdentityID: d.IdentityID,
			Role:       domain.Role(d.Role),
			Origin:     d.Origin,
			At:         d.At,
		})
	}
	return out, nil
}
