package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/logger"
)

const defaultWriteTimeout = 500 * time.Millisecond

// StreamKey is the Redis stream that receives a session's emissions.
func StreamKey(streamID string) string {
	return "lipsync:" + streamID + ":out"
}

// RedisStreamSink appends every emission to a capped Redis stream so
// downstream consumers can read the synchronized output with XREAD.
type RedisStreamSink struct {
	client  redis.Cmdable
	key     string
	maxLen  int64
	timeout time.Duration
	epoch   time.Time
	logger  logger.Logger
}

// NewRedisStreamSink writes to StreamKey(streamID), trimming the stream to
// roughly maxLen entries. Capture times are written as nanoseconds since
// epoch so they stay comparable across kinds.
func NewRedisStreamSink(client redis.Cmdable, streamID string, maxLen int64, epoch time.Time, log logger.Logger) *RedisStreamSink {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &RedisStreamSink{
		client:  client,
		key:     StreamKey(streamID),
		maxLen:  maxLen,
		timeout: defaultWriteTimeout,
		epoch:   epoch,
		logger:  log.WithField("component", "sink.redis_stream"),
	}
}

func (s *RedisStreamSink) Name() string { return "redis_stream" }

func (s *RedisStreamSink) Key() string { return s.key }

func (s *RedisStreamSink) Emit(p avsync.Packet) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":        p.Kind.String(),
			"captured_ns": strconv.FormatInt(p.CapturedAt.Sub(s.epoch).Nanoseconds(), 10),
			"payload":     p.Payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.key, err)
	}
	return nil
}

// Purge deletes the stream, used when a session is removed.
func (s *RedisStreamSink) Purge(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete stream %s: %w", s.key, err)
	}
	s.logger.WithField("stream", s.key).Debug("Output stream deleted")
	return nil
}
