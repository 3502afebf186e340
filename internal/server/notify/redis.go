package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const DefaultStreamKey = "poapgate.posts"

// StreamClient is the part of *redis.Client used by RedisStream.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

// RedisStream publishes posts to a Redis stream and tails it with XREAD, so
// every server instance sees posts created by any other.
type RedisStream struct {
	rdb    StreamClient
	key    string
	maxLen int64
	block  time.Duration
	logger logging.Logger
}

func NewRedisStream(rdb StreamClient, key string, logger logging.Logger) *RedisStream {
	if key == "" {
		key = DefaultStreamKey
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RedisStream{
		rdb:    rdb,
		key:    key,
		maxLen: 10000,
		block:  5 * time.Second,
		logger: logger.With("module", "notify"),
	}
}

func (r *RedisStream) Publish(ctx context.Context, post *models.Post) error {
	payload, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encoding post: %w", err)
	}
	_, err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.key,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{"post": string(payload)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publishing post %s: %w", post.ID, err)
	}
	return nil
}

// Subscribe tails the stream after the entry id after, or after the current
// last entry when after is empty.
func (r *RedisStream) Subscribe(ctx context.Context, after string) (<-chan Event, error) {
	lastID := after
	if lastID == "" {
		id, err := r.lastEntryID(ctx)
		if err != nil {
			return nil, err
		}
		lastID = id
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			streams, err := r.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{r.key, lastID},
				Count:   100,
				Block:   r.block,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				r.logger.Warn(ctx, "reading post stream", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					lastID = msg.ID
					raw, _ := msg.Values["post"].(string)
					var post models.Post
					if err := json.Unmarshal([]byte(raw), &post); err != nil {
						r.logger.Warn(ctx, "skipping malformed stream entry", "id", msg.ID, "error", err)
						continue
					}
					select {
					case <-ctx.Done():
						return
					case out <- Event{ID: msg.ID, Post: post}:
					}
				}
			}
		}
	}()
	return out, nil
}

// lastEntryID returns the id of the newest entry, or 0-0 for an empty stream.
// Every XREAD then starts from a concrete id, so entries added between two
// blocking reads are not skipped.
func (r *RedisStream) lastEntryID(ctx context.Context) (string, error) {
	msgs, err := r.rdb.XRevRangeN(ctx, r.key, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("reading last entry of %s: %w", r.key, err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}
