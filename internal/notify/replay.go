package notify

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-sekolah/internal/branch"
)

// Deduper remembers which events already produced a notification so asynq
// redeliveries stay silent.
type Deduper interface {
	Claim(ctx context.Context, branchID, eventID string) (bool, error)
	Forget(ctx context.Context, branchID, eventID string) error
}

// RedisDeduper claims events under <branch>:notify:<event> for TTL. A zero
// TTL or missing client disables deduplication.
type RedisDeduper struct {
	Client *redis.Client
	TTL    time.Duration
}

func (d RedisDeduper) enabled() bool { return d.Client != nil && d.TTL > 0 }

// Claim reports whether this caller is the first to notify for the event.
func (d RedisDeduper) Claim(ctx context.Context, branchID, eventID string) (bool, error) {
	if !d.enabled() {
		return true, nil
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	claimed, err := d.Client.SetNX(ctx, branch.Key(branchID, "notify", eventID), stamp, d.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return claimed, nil
}

// Forget drops a claim after a failed delivery so the retry can notify.
func (d RedisDeduper) Forget(ctx context.Context, branchID, eventID string) error {
	if !d.enabled() {
		return nil
	}
	return d.Client.Del(ctx, branch.Key(branchID, "notify", eventID)).Err()
}
