package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = 10 * time.Second

// DedupChecker suppresses repeated audit records: every instance sharing a
// session observes the same transition and reports it.
// Key format: dedup:<user_id>:<to_state>:<unix_timestamp>
type DedupChecker struct {
	client *redis.Client
}

// NewDedupChecker creates a DedupChecker wrapping the given Redis client.
func NewDedupChecker(client *redis.Client) *DedupChecker {
	return &DedupChecker{client: client}
}

// MarkFirst records the transition and reports whether this caller was the
// first to see it within dedupTTL.
func (d *DedupChecker) MarkFirst(ctx context.Context, userID int64, to string, ts time.Time) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(userID, to, ts), "1", dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup mark: %w", err)
	}
	return ok, nil
}

func (d *DedupChecker) key(userID int64, to string, ts time.Time) string {
	return fmt.Sprintf("dedup:%d:%s:%d", userID, to, ts.Unix())
}
