// Package audit records what happened on each call: an append-only event log
// plus one session row per call.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Event kinds written by the relay and dispatcher.
const (
	KindStart           = "start"
	KindStop            = "stop"
	KindFunctionCall    = "function_call"
	KindFunctionResult  = "function_result"
	KindUnknownFunction = "unknown_function"
	KindDTMF            = "dtmf"
	KindBargeIn         = "barge_in"
	KindAgentError      = "agent_error"
)

type Event struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Kind      string    `json:"kind"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

type CallSession struct {
	CallID    string    `json:"call_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives audit events. Implementations may fail; callers that must not
// be affected wrap them in BestEffort.
type Sink interface {
	LogEvent(ctx context.Context, callID, kind string, data any) error
}

// encodeData renders data as the stored text: strings and byte slices as-is,
// everything else as JSON.
func encodeData(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "audit: encode data")
	}
	return string(b), nil
}
