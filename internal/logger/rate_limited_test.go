package logger

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitedSuppressesBursts(t *testing.T) {
	base, hook := test.NewNullLogger()
	rl := NewRateLimited(NewLogrusAdapter(base.WithField("component", "test")), time.Hour, 2)

	for i := 0; i < 10; i++ {
		rl.Warn("eviction", map[string]interface{}{"i": i}, "evicted stale packets")
	}

	assert.Len(t, hook.Entries, 2)
	assert.Equal(t, uint64(8), rl.Suppressed("eviction"))
	assert.Equal(t, uint64(10), rl.Total("eviction"))
	assert.Equal(t, "eviction", hook.LastEntry().Data["category"])
}

func TestRateLimitedCategoriesAreIndependent(t *testing.T) {
	base, hook := test.NewNullLogger()
	rl := NewRateLimited(NewLogrusAdapter(base.WithField("component", "test")), time.Hour, 1)

	rl.Warn("a", nil, "first a")
	rl.Warn("a", nil, "second a")
	rl.Error("b", nil, "first b")

	require.Len(t, hook.Entries, 2)
	assert.Equal(t, "first a", hook.Entries[0].Message)
	assert.Equal(t, "first b", hook.Entries[1].Message)
	assert.Equal(t, uint64(1), rl.Suppressed("a"))
	assert.Equal(t, uint64(0), rl.Suppressed("b"))
	assert.Equal(t, uint64(0), rl.Suppressed("unknown"))
}

func TestRateLimitedReportsSuppressedCount(t *testing.T) {
	base, hook := test.NewNullLogger()
	rl := NewRateLimited(NewLogrusAdapter(base.WithField("component", "test")), 20*time.Millisecond, 1)

	rl.Warn("ooo", nil, "out of order")
	rl.Warn("ooo", nil, "out of order")
	rl.Warn("ooo", nil, "out of order")

	time.Sleep(50 * time.Millisecond)
	rl.Warn("ooo", nil, "out of order")

	require.Len(t, hook.Entries, 2)
	assert.Equal(t, uint64(2), hook.LastEntry().Data["suppressed"])
	assert.Equal(t, uint64(0), rl.Suppressed("ooo"))
}
