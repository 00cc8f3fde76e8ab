package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store keeps the turns in a list under a key scoped to the
// process run, so a restarted process never sees the history of a previous run.
// The keys namespace is organized as follows:
// - `<prefix>/history/<runID>/turns` list of JSON encoded turns

// RedisOptions configures the Redis store
type RedisOptions struct {
	// Prefix of the keys
	Prefix string
	// RunID scopes the keys, generated if empty
	RunID string
	// TTL of the history key, refreshed on every append. Zero means no expiration.
	TTL time.Duration
	// MaxTurns limits the number of kept turns, zero means no limit.
	// An odd limit is rounded up to keep user and assistant turns in pairs.
	MaxTurns int
}

type redisStore struct {
	client redis.UniversalClient
	opts   RedisOptions
	key    string
}

// NewRedisStore returns HistoryStore backed by Redis
func NewRedisStore(client redis.UniversalClient, opts RedisOptions) HistoryStore {
	if opts.RunID == "" {
		opts.RunID = chatmodel.NewChatID()
	}
	opts.MaxTurns = turnsLimit(opts.MaxTurns)
	return &redisStore{
		client: client,
		opts:   opts,
		key:    path.Join(opts.Prefix, "history", opts.RunID, "turns"),
	}
}

func (m *redisStore) Turns(ctx context.Context) ([]chatmodel.ConversationTurn, error) {
	data, err := m.client.LRange(ctx, m.key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get turns from Redis")
	}

	turns := make([]chatmodel.ConversationTurn, 0, len(data))
	for _, item := range data {
		var turn chatmodel.ConversationTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "unmarshal_turn",
				"key", m.key,
				"err", err.Error())
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (m *redisStore) Append(ctx context.Context, turns ...chatmodel.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return errors.Wrap(err, "failed to marshal turn")
		}
		values = append(values, data)
	}

	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, m.key, values...)
	if m.opts.MaxTurns > 0 {
		pipe.LTrim(ctx, m.key, int64(-m.opts.MaxTurns), -1)
	}
	if m.opts.TTL > 0 {
		pipe.Expire(ctx, m.key, m.opts.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store turns in Redis")
	}
	return nil
}

func (m *redisStore) Reset(ctx context.Context) error {
	if err := m.client.Del(ctx, m.key).Err(); err != nil {
		return errors.Wrap(err, "failed to reset history in Redis")
	}
	return nil
}
