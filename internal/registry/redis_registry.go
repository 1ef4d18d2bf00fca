package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/lipsync/internal/logger"
)

const keyPrefix = "lipsync:sessions:"

// publishScript stores the record with a TTL and adds it to the active set
// in one step.
var publishScript = redis.NewScript(`
	local key = KEYS[1]
	local active_key = KEYS[2]
	local data = ARGV[1]
	local ttl = tonumber(ARGV[2])
	local id = ARGV[3]
	redis.call('SET', key, data, 'PX', ttl)
	redis.call('SADD', active_key, id)
	return 1
`)

// listScript returns every live record and prunes ids whose key expired.
var listScript = redis.NewScript(`
	local active_key = KEYS[1]
	local prefix = ARGV[1]
	local active = redis.call('SMEMBERS', active_key)
	local result = {}
	local to_remove = {}

	for i, id in ipairs(active) do
		local rec = redis.call('GET', prefix .. id)
		if rec then
			table.insert(result, rec)
		else
			table.insert(to_remove, id)
		end
	end

	for i, id in ipairs(to_remove) do
		redis.call('SREM', active_key, id)
	end

	return result
`)

// RedisRegistry implements Registry using Redis as backend
type RedisRegistry struct {
	client redis.UniversalClient
	logger logger.Logger
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisRegistry creates a new Redis-backed registry
func NewRedisRegistry(client redis.UniversalClient, log logger.Logger, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &RedisRegistry{
		client: client,
		logger: log.WithField("component", "registry"),
		prefix: keyPrefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *RedisRegistry) activeKey() string { return r.prefix + "active" }

// Publish stores rec, keeping the CreatedAt of an existing record.
func (r *RedisRegistry) Publish(ctx context.Context, rec *Record) error {
	key := r.prefix + rec.ID

	existing, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var prev Record
		if err := json.Unmarshal(existing, &prev); err == nil && !prev.CreatedAt.IsZero() {
			rec.CreatedAt = prev.CreatedAt
		}
	case errors.Is(err, redis.Nil):
		rec.CreatedAt = r.now()
	default:
		return fmt.Errorf("failed to check existing session: %w", err)
	}
	rec.LastHeartbeat = r.now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := publishScript.Run(ctx, r.client,
		[]string{key, r.activeKey()},
		string(data), r.ttl.Milliseconds(), rec.ID).Err(); err != nil {
		return fmt.Errorf("failed to publish session: %w", err)
	}

	r.logger.WithField("stream_id", rec.ID).Debug("Session published")
	return nil
}

// Remove deletes a record and drops it from the active set
func (r *RedisRegistry) Remove(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, r.prefix+id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	if err := r.client.SRem(ctx, r.activeKey(), id).Err(); err != nil {
		r.logger.WithError(err).Warnf("Failed to remove session %s from active set", id)
	}

	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	r.logger.WithField("stream_id", id).Info("Session removed from registry")
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Record, error) {
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &rec, nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]*Record, error) {
	res, err := listScript.Run(ctx, r.client, []string{r.activeKey()}, r.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type from script")
	}

	records := make([]*Record, 0, len(values))
	for _, val := range values {
		data, ok := val.(string)
		if !ok {
			r.logger.Warn("Invalid data type in result")
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			r.logger.WithError(err).Warn("Failed to unmarshal session")
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Close closes the underlying client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
