package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventWriter persists decoded events.
type EventWriter interface {
	Insert(ctx context.Context, ev Event) error
}

// Recorder drains the audit topic into an EventWriter.
type Recorder struct {
	sub    message.Subscriber
	topic  string
	writer EventWriter
}

func NewRecorder(sub message.Subscriber, topic string, writer EventWriter) *Recorder {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Recorder{sub: sub, topic: topic, writer: writer}
}

// Run consumes until ctx is done or the subscription closes. Undecodable
// messages and write failures are logged and acked.
func (r *Recorder) Run(ctx context.Context) error {
	ch, err := r.sub.Subscribe(ctx, r.topic)
	if err != nil {
		return errors.Wrap(err, "audit recorder: subscribe")
	}
	log.Info().Str("component", "audit").Str("topic", r.topic).Msg("audit recorder: started")
	for msg := range ch {
		r.handle(msg)
	}
	log.Info().Str("component", "audit").Str("topic", r.topic).Msg("audit recorder: stopped")
	return nil
}

func (r *Recorder) handle(msg *message.Message) {
	defer msg.Ack()

	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		log.Warn().Err(err).Str("component", "audit").Str("message_id", msg.UUID).Msg("audit recorder: failed to decode event")
		return
	}

	ctx := msg.Context()
	if ctx == nil || ctx.Err() != nil {
		// message contexts can be canceled during shutdown before the queue drains
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()
	}
	if err := r.writer.Insert(ctx, ev); err != nil {
		log.Warn().Err(err).Str("component", "audit").Str("call_id", ev.CallID).Str("kind", ev.Kind).Msg("audit recorder: insert failed")
	}
}
