package audit

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

type bestEffort struct {
	inner Sink
}

// BestEffort wraps a sink so failures are logged at warn and never returned.
func BestEffort(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return bestEffort{inner: s}
}

func (b bestEffort) LogEvent(ctx context.Context, callID, kind string, data any) error {
	if err := b.inner.LogEvent(ctx, callID, kind, data); err != nil {
		log.Warn().Err(err).Str("component", "audit").Str("call_id", callID).Str("kind", kind).Msg("audit log failed")
	}
	return nil
}

type fanout []Sink

// Fanout delivers each event to every sink and returns the combined errors.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) LogEvent(ctx context.Context, callID, kind string, data any) error {
	var result *multierror.Error
	for _, s := range f {
		if err := s.LogEvent(ctx, callID, kind, data); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type discard struct{}

func (discard) LogEvent(context.Context, string, string, any) error { return nil }

// Discard drops every event.
var Discard Sink = discard{}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

var _ Sink = &MemorySink{}

func (m *MemorySink) LogEvent(_ context.Context, callID, kind string, data any) error {
	text, err := encodeData(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{CallID: callID, Kind: kind, Data: text})
	return nil
}

func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Kinds lists the kinds recorded for callID, in order.
func (m *MemorySink) Kinds(callID string) []string {
	var out []string
	for _, ev := range m.Events() {
		if ev.CallID == callID {
			out = append(out, ev.Kind)
		}
	}
	return out
}
