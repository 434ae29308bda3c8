package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each session as a JSON value under "<prefix><id>" with a TTL,
// plus a set "<prefix>index" of ids so List does not need SCAN.
//
// The TTL bounds how long a session lingers if its instance crashes before
// calling End. Expired ids are pruned from the index lazily by List.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "playground:session:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (r *Redis) key(id string) string { return r.prefix + id }
func (r *Redis) indexKey() string     { return r.prefix + "index" }

func (r *Redis) Begin(ctx context.Context, s Session) error {
	now := r.now().UTC()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.UpdatedAt = now
	return r.put(ctx, s)
}

func (r *Redis) Update(ctx context.Context, id, state string, pid int) error {
	s, err := r.get(ctx, id)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	s.State = state
	if pid != 0 {
		s.PID = pid
	}
	s.UpdatedAt = r.now().UTC()
	return r.put(ctx, s)
}

func (r *Redis) End(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(id))
	pipe.SRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tracker: ending session %s: %w", id, err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) ([]Session, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("tracker: listing sessions: %w", err)
	}
	if len(ids) == 0 {
		return []Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("tracker: listing sessions: %w", err)
	}

	out := make([]Session, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var s Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		r.client.SRem(ctx, r.indexKey(), stale...)
	}

	sortByStart(out)
	return out, nil
}

func (r *Redis) get(ctx context.Context, id string) (Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Result()
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, fmt.Errorf("tracker: decoding session %s: %w", id, err)
	}
	return s, nil
}

func (r *Redis) put(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(s.ID), data, r.ttl)
	pipe.SAdd(ctx, r.indexKey(), s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tracker: storing session %s: %w", s.ID, err)
	}
	return nil
}
