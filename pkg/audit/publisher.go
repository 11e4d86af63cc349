package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultTopic = "veriwire.audit"

// PublisherSink publishes events as watermill messages. A Recorder on the
// other side of the topic persists them.
type PublisherSink struct {
	pub   message.Publisher
	topic string
	now   func() time.Time
}

var _ Sink = &PublisherSink{}

func NewPublisherSink(pub message.Publisher, topic string) *PublisherSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &PublisherSink{pub: pub, topic: topic, now: time.Now}
}

func (p *PublisherSink) LogEvent(ctx context.Context, callID, kind string, data any) error {
	text, err := encodeData(data)
	if err != nil {
		return err
	}
	ev := Event{
		ID:        uuid.NewString(),
		CallID:    callID,
		Kind:      kind,
		Data:      text,
		CreatedAt: p.now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "audit publisher: marshal event")
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("call_id", callID)
	msg.Metadata.Set("kind", kind)
	msg.SetContext(ctx)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return errors.Wrap(err, "audit publisher: publish")
	}
	return nil
}
