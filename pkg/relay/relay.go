// Package relay bridges a telephony media stream and a speech-agent
// connection for the duration of one call.
package relay

import (
	"context"
	"time"

	"github.com/go-go-golems/veriwire/pkg/agent"
	"github.com/go-go-golems/veriwire/pkg/audit"
	"github.com/go-go-golems/veriwire/pkg/dispatch"
	"github.com/go-go-golems/veriwire/pkg/session"
	"github.com/go-go-golems/veriwire/pkg/verify"
	"github.com/pkg/errors"
)

// Conn is the subset of a websocket connection the relay uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

type writeDeadliner interface {
	SetWriteDeadline(time.Time) error
}

// AgentDialer opens the speech-agent side of a call.
type AgentDialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type AgentDialerFunc func(ctx context.Context) (Conn, error)

func (f AgentDialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// WebsocketDialer adapts an agent.Dialer.
func WebsocketDialer(d *agent.Dialer) AgentDialer {
	return AgentDialerFunc(func(ctx context.Context) (Conn, error) {
		c, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

type Deps struct {
	Dialer     AgentDialer
	Settings   agent.Settings
	Machine    *verify.Machine
	Sessions   session.Store[verify.CallState]
	Dispatcher *dispatch.Dispatcher
	Audit      audit.Sink
}

// Relay serves calls. It is shared by every connection; per-call state lives
// in the call value created by Serve.
type Relay struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) (*Relay, error) {
	switch {
	case deps.Dialer == nil:
		return nil, errors.New("relay: agent dialer is required")
	case deps.Machine == nil:
		return nil, errors.New("relay: verification machine is required")
	case deps.Sessions == nil:
		return nil, errors.New("relay: session store is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("relay: dispatcher is required")
	}
	if deps.Settings == nil {
		s, err := agent.DefaultSettings()
		if err != nil {
			return nil, err
		}
		deps.Settings = s
	}
	deps.Audit = audit.BestEffort(deps.Audit)
	return &Relay{deps: deps, opts: opts.withDefaults()}, nil
}

// Serve relays one call until either side closes, the telephony stream stops
// or ctx is cancelled. Both connections are closed and the call's session is
// deleted before it returns.
func (r *Relay) Serve(ctx context.Context, tel Conn) error {
	ag, err := r.deps.Dialer.Dial(ctx)
	if err != nil {
		_ = tel.Close()
		return errors.Wrap(err, "relay: connect agent")
	}
	c := newCall(r, tel, ag)
	return c.run(ctx)
}
