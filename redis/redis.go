package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/GetStream/channel-session/session"
	"github.com/redis/go-redis/v9"
)

// Redis provides draft storage in Redis.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

const (
	draftPrefix = "drafts"
	maxDrafts   = 100
)

func draftKey(id session.ChannelID) string {
	return fmt.Sprintf("%s:%s", draftPrefix, id)
}

// LoadDraft returns the draft stored for the channel, or session.ErrNoDraft.
func (r *Redis) LoadDraft(ctx context.Context, id session.ChannelID) (session.Draft, error) {
	cmd := r.cli.HGetAll(ctx, draftKey(id))
	vals, err := cmd.Result()
	if err != nil {
		return session.Draft{}, fmt.Errorf("hgetall: %w", err)
	}
	if len(vals) == 0 {
		return session.Draft{}, session.ErrNoDraft
	}

	var d draft
	if err := cmd.Scan(&d); err != nil {
		return session.Draft{}, fmt.Errorf("scan draft: %w", err)
	}
	return d.SessionDraft(), nil
}

// SaveDraft stores the draft under drafts:CHANNEL_ID and adds the key to a
// sorted set scored by update time.
func (r *Redis) SaveDraft(ctx context.Context, d session.Draft) error {
	m := newDraft(d)
	key := draftKey(d.ChannelID)

	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, m)
			pipe.ZAdd(ctx, draftPrefix, redis.Z{
				Score:  float64(m.UpdatedAt),
				Member: key,
			})
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("redis save draft: %w", err)
	}

	// Keep the index bounded by dropping the drafts untouched the longest.
	if err := r.evictOldest(ctx); err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

// DeleteDraft removes the channel's draft. Deleting a missing draft is not an
// error.
func (r *Redis) DeleteDraft(ctx context.Context, id session.ChannelID) error {
	key := draftKey(id)
	_, err := r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, draftPrefix, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete draft: %w", err)
	}
	return nil
}

// ListDrafts returns the stored drafts, most recently updated first.
func (r *Redis) ListDrafts(ctx context.Context) ([]session.Draft, error) {
	keys, err := r.cli.ZRevRange(ctx, draftPrefix, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange: %w", err)
	}

	out := make([]session.Draft, 0, len(keys))
	for _, key := range keys {
		var d draft
		cmd := r.cli.HGetAll(ctx, key)
		vals, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall: %w", err)
		}
		// The hash expired or was deleted between the two calls.
		if len(vals) == 0 {
			continue
		}
		if err := cmd.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		out = append(out, d.SessionDraft())
	}
	return out, nil
}

func (r *Redis) evictOldest(ctx context.Context) error {
	vals, err := r.cli.ZRange(ctx, draftPrefix, 0, int64(-maxDrafts-1)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}

	for _, key := range vals {
		_ = r.cli.ZRem(ctx, draftPrefix, key).Err()
		_ = r.cli.Del(ctx, key).Err()
	}
	return nil
}
