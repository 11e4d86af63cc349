// Package telephony speaks the Twilio Media Streams websocket protocol.
package telephony

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventDTMF      = "dtmf"
	EventMark      = "mark"
	EventStop      = "stop"
	EventClear     = "clear"

	TrackInbound  = "inbound"
	TrackOutbound = "outbound"
)

// Message is one Media Streams frame in either direction.
type Message struct {
	Event          string          `json:"event"`
	SequenceNumber string          `json:"sequenceNumber,omitempty"`
	StreamSid      string          `json:"streamSid,omitempty"`
	Protocol       string          `json:"protocol,omitempty"`
	Version        string          `json:"version,omitempty"`
	Start          *Start          `json:"start,omitempty"`
	Media          *Media          `json:"media,omitempty"`
	DTMF           *DTMF           `json:"dtmf,omitempty"`
	Mark           *Mark           `json:"mark,omitempty"`
	Stop           json.RawMessage `json:"stop,omitempty"`
}

type Start struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	AccountSid       string            `json:"accountSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	MediaFormat      *MediaFormat      `json:"mediaFormat,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type Media struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	// Payload is base64 8kHz mu-law audio.
	Payload string `json:"payload"`
}

type DTMF struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

type Mark struct {
	Name string `json:"name"`
}

var ErrMissingBody = errors.New("telephony: event is missing its body")

// Decode parses one frame. Malformed JSON, an empty event name and start or
// media events without their body are errors.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Wrap(err, "telephony: decode frame")
	}
	switch msg.Event {
	case "":
		return Message{}, errors.New("telephony: frame has no event")
	case EventStart:
		if msg.Start == nil || msg.Start.StreamSid == "" {
			return Message{}, errors.Wrap(ErrMissingBody, EventStart)
		}
	case EventMedia:
		if msg.Media == nil {
			return Message{}, errors.Wrap(ErrMissingBody, EventMedia)
		}
	case EventDTMF:
		if msg.DTMF == nil {
			return Message{}, errors.Wrap(ErrMissingBody, EventDTMF)
		}
	}
	return msg, nil
}

// Audio decodes the media payload.
func (m Media) Audio() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "telephony: decode media payload")
	}
	return b, nil
}

// IsInbound reports whether the media is caller audio. Twilio omits the track
// on single-track streams, which are inbound.
func (m Media) IsInbound() bool {
	return m.Track == "" || m.Track == TrackInbound
}

// EncodeMedia builds the outbound media frame that plays audio to the caller.
func EncodeMedia(streamSid string, audio []byte) ([]byte, error) {
	return json.Marshal(Message{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &Media{Payload: base64.StdEncoding.EncodeToString(audio)},
	})
}

// EncodeClear builds the frame that discards audio queued for playback.
func EncodeClear(streamSid string) ([]byte, error) {
	return json.Marshal(Message{Event: EventClear, StreamSid: streamSid})
}
