package health

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zsiec/lipsync/internal/avsync"
)

// SessionSource is satisfied by the session hub.
type SessionSource interface {
	Snapshots() []avsync.Stats
}

// SessionChecker reports degraded while any session's ingest queue is close
// to full, meaning its producers are being held back.
type SessionChecker struct {
	source    SessionSource
	threshold float64
}

// NewSessionChecker flags sessions whose queue fill ratio reaches threshold
// (0.9 means 90%).
func NewSessionChecker(source SessionSource, threshold float64) *SessionChecker {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.9
	}
	return &SessionChecker{source: source, threshold: threshold}
}

func (s *SessionChecker) Name() string {
	return "sessions"
}

func (s *SessionChecker) Check(ctx context.Context) error {
	var saturated []string
	for _, st := range s.source.Snapshots() {
		if st.QueueCapacity == 0 {
			continue
		}
		if float64(st.QueueDepth)/float64(st.QueueCapacity) >= s.threshold {
			saturated = append(saturated, st.StreamID)
		}
	}
	if len(saturated) == 0 {
		return nil
	}
	sort.Strings(saturated)
	return fmt.Errorf("%w: ingest queue saturated for %s", ErrDegraded, strings.Join(saturated, ", "))
}
