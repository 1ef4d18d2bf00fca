package avsync

// Sink receives packets in emission order. Emit runs on the consumer
// goroutine, so a slow sink delays every later emission of its session.
type Sink interface {
	Emit(p Packet) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(p Packet) error

func (f SinkFunc) Emit(p Packet) error { return f(p) }

// Named is implemented by sinks that want their own label on error metrics.
type Named interface {
	Name() string
}

// Discard drops every packet.
var Discard Sink = SinkFunc(func(Packet) error { return nil })

func sinkName(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "sink"
}
