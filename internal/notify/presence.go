package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which couriers currently have a reachable notification
// channel. Couriers heartbeat while their client is connected; the key
// expiring means the courier is unreachable and is skipped by broadcasts.
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresence(rdb *redis.Client, ttl time.Duration) *Presence {
	return &Presence{rdb: rdb, ttl: ttl}
}

func presenceKey(courierID string) string { return "presence:courier:" + courierID }

func (p *Presence) Heartbeat(ctx context.Context, courierID string) error {
	return p.rdb.Set(ctx, presenceKey(courierID), time.Now().Unix(), p.ttl).Err()
}

// Reachable filters ids down to couriers with a live heartbeat.
func (p *Presence) Reachable(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := p.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	var out []string
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			out = append(out, ids[i])
		}
	}
	return out, nil
}
