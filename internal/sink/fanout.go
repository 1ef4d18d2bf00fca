package sink

import (
	"errors"
	"fmt"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/metrics"
)

// Fanout delivers each emission to every child sink in order. A failing
// child does not stop delivery to the others.
type Fanout struct {
	sinks []avsync.Sink
}

func NewFanout(sinks ...avsync.Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Emit(p avsync.Packet) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Emit(p); err != nil {
			name := nameOf(s)
			metrics.RecordSinkError(name)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func nameOf(s avsync.Sink) string {
	if n, ok := s.(avsync.Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
