package relay

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-go-golems/veriwire/pkg/agent"
	"github.com/go-go-golems/veriwire/pkg/audit"
	"github.com/go-go-golems/veriwire/pkg/dispatch"
	"github.com/go-go-golems/veriwire/pkg/telephony"
	"github.com/go-go-golems/veriwire/pkg/verify"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// call is the state of one relayed call. The telephony reader is the only
// producer of the audio queue and closes it on exit.
type call struct {
	r     *Relay
	tel   Conn
	agent Conn

	telMu   sync.Mutex
	agentMu sync.Mutex

	audio chan []byte
	text  chan []byte

	streamReady chan struct{}
	streamOnce  sync.Once
	streamID    string
	state       verify.CallState

	closeOnce sync.Once
}

func newCall(r *Relay, tel, ag Conn) *call {
	return &call{
		r:           r,
		tel:         tel,
		agent:       ag,
		audio:       make(chan []byte, r.opts.AudioQueueSize),
		text:        make(chan []byte, r.opts.TextQueueSize),
		streamReady: make(chan struct{}),
		state:       r.deps.Machine.Begin(verify.CallState{}),
	}
}

func (c *call) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	// The reader ends the call by closing the audio queue, so queued audio
	// still reaches the agent after a stop.
	g.Go(func() error { return c.readTelephony(gctx) })
	g.Go(func() error {
		defer cancel()
		return c.sendToAgent(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return c.readAgent(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		c.closeConns()
		return nil
	})

	err := g.Wait()
	c.closeConns()
	if sid := c.stream(); sid != "" {
		delCtx, delCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		if derr := c.r.deps.Sessions.Delete(delCtx, sid); derr != nil {
			log.Warn().Err(derr).Str("component", "relay").Str("call_id", sid).Msg("session delete failed")
		}
		delCancel()
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Str("call_id", c.stream()).Msg("call ended with error")
	}
	return err
}

func (c *call) closeConns() {
	c.closeOnce.Do(func() {
		_ = c.tel.Close()
		_ = c.agent.Close()
	})
}

func (c *call) setStream(id string) {
	c.streamOnce.Do(func() {
		c.streamID = id
		close(c.streamReady)
	})
}

// stream returns the stream id, or "" before the start event.
func (c *call) stream() string {
	select {
	case <-c.streamReady:
		return c.streamID
	default:
		return ""
	}
}

func (c *call) callCtx(ctx context.Context) context.Context {
	if sid := c.stream(); sid != "" {
		return dispatch.WithCallID(ctx, sid)
	}
	return ctx
}

func (c *call) logEvent(ctx context.Context, kind string, data any) {
	id := c.stream()
	if id == "" {
		id = dispatch.UnknownCallID
	}
	_ = c.r.deps.Audit.LogEvent(ctx, id, kind, data)
}

// readTelephony consumes caller frames: audio is chunked onto the audio queue,
// keypad input onto the text queue.
func (c *call) readTelephony(ctx context.Context) error {
	defer close(c.audio)
	chunker := telephony.NewChunker(c.r.opts.ChunkSize)

	for {
		_, data, err := c.tel.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return nil
			}
			return errors.Wrap(err, "relay: read telephony")
		}
		msg, err := telephony.Decode(data)
		if err != nil {
			return err
		}

		switch msg.Event {
		case telephony.EventConnected:
			log.Debug().Str("component", "relay").Msg("telephony connected")
		case telephony.EventStart:
			c.start(ctx, msg.Start)
		case telephony.EventMedia:
			if !msg.Media.IsInbound() {
				continue
			}
			audio, err := msg.Media.Audio()
			if err != nil {
				return err
			}
			for _, chunk := range chunker.Write(audio) {
				if !enqueue(ctx, c.audio, chunk) {
					return nil
				}
			}
		case telephony.EventDTMF:
			c.logEvent(ctx, audit.KindDTMF, map[string]any{"digit": msg.DTMF.Digit})
			if !c.r.opts.ForwardDTMF {
				continue
			}
			frame, err := agent.InjectUserMessage(msg.DTMF.Digit)
			if err != nil {
				return errors.Wrap(err, "relay: encode keypad input")
			}
			if !enqueue(ctx, c.text, frame) {
				return nil
			}
		case telephony.EventMark:
			log.Debug().Str("component", "relay").Str("call_id", c.stream()).Msg("playback mark")
		case telephony.EventStop:
			if c.r.opts.FlushPartialOnStop {
				if rest := chunker.Flush(); rest != nil {
					if !enqueue(ctx, c.audio, rest) {
						return nil
					}
				}
			}
			c.logEvent(ctx, audit.KindStop, map[string]any{"buffered": chunker.Buffered()})
			log.Info().Str("component", "relay").Str("call_id", c.stream()).Msg("telephony stream stopped")
			return nil
		}
	}
}

// start seeds the call's session, then publishes the stream id.
func (c *call) start(ctx context.Context, s *telephony.Start) {
	if sid := c.stream(); sid != "" {
		log.Warn().Str("component", "relay").Str("call_id", sid).Msg("duplicate start event ignored")
		return
	}
	st := c.state
	st.PaymentID = s.CustomParameters["payment_id"]
	if err := c.r.deps.Sessions.Set(ctx, s.StreamSid, st); err != nil {
		log.Warn().Err(err).Str("component", "relay").Str("call_id", s.StreamSid).Msg("session seed failed")
	}
	c.setStream(s.StreamSid)
	c.logEvent(ctx, audit.KindStart, map[string]any{
		"call_sid":   s.CallSid,
		"payment_id": st.PaymentID,
	})
	log.Info().Str("component", "relay").Str("call_id", s.StreamSid).Str("call_sid", s.CallSid).Msg("telephony stream started")
}

// sendToAgent writes the settings frame, then drains both queues in order
// until the audio queue closes.
func (c *call) sendToAgent(ctx context.Context) error {
	if err := c.sendSettings(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-c.audio:
			if !ok {
				c.drainText()
				return nil
			}
			if err := c.writeAgent(websocket.BinaryMessage, chunk); err != nil {
				return err
			}
		case frame := <-c.text:
			if err := c.writeAgent(websocket.TextMessage, frame); err != nil {
				return err
			}
		}
	}
}

func (c *call) drainText() {
	for {
		select {
		case frame := <-c.text:
			if err := c.writeAgent(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *call) sendSettings(ctx context.Context) error {
	timer := time.NewTimer(c.r.opts.StreamIDWait)
	defer timer.Stop()
	select {
	case <-c.streamReady:
	case <-timer.C:
		log.Warn().Str("component", "relay").Dur("wait", c.r.opts.StreamIDWait).Msg("no stream id before settings; greeting sent anyway")
	case <-ctx.Done():
		return nil
	}

	settings := c.r.deps.Settings.WithGreeting(verify.Greeting(c.state.Phrase))
	b, err := settings.Marshal()
	if err != nil {
		return err
	}
	return c.writeAgent(websocket.TextMessage, b)
}

// readAgent forwards agent audio to the caller and handles agent events.
func (c *call) readAgent(ctx context.Context) error {
	for {
		typ, data, err := c.agent.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return nil
			}
			return errors.Wrap(err, "relay: read agent")
		}
		if typ == websocket.BinaryMessage {
			if err := c.playAudio(data); err != nil {
				return err
			}
			continue
		}

		ev, err := agent.ParseEvent(data)
		if err != nil {
			return err
		}
		switch ev.Type {
		case agent.TypeUserStartedSpeaking:
			if err := c.bargeIn(ctx); err != nil {
				return err
			}
		case agent.TypeFunctionCallRequest:
			for _, resp := range c.r.deps.Dispatcher.DispatchAll(c.callCtx(ctx), ev.Functions) {
				b, err := json.Marshal(resp)
				if err != nil {
					return errors.Wrap(err, "relay: encode function response")
				}
				if !enqueue(ctx, c.text, b) {
					return nil
				}
			}
		case agent.TypeError:
			log.Warn().Str("component", "relay").Str("call_id", c.stream()).
				Str("code", ev.Code).Str("description", ev.Description).Msg("agent error")
			c.logEvent(ctx, audit.KindAgentError, map[string]any{"code": ev.Code, "description": ev.Description})
		case agent.TypeConversationText:
			log.Debug().Str("component", "relay").Str("call_id", c.stream()).Str("role", ev.Role).Msg("conversation text")
		default:
			log.Debug().Str("component", "relay").Str("call_id", c.stream()).Str("type", ev.Type).Msg("agent event")
		}
	}
}

func (c *call) playAudio(audio []byte) error {
	sid := c.stream()
	if sid == "" {
		log.Debug().Str("component", "relay").Int("bytes", len(audio)).Msg("agent audio before stream start dropped")
		return nil
	}
	frame, err := telephony.EncodeMedia(sid, audio)
	if err != nil {
		return errors.Wrap(err, "relay: encode media")
	}
	return c.writeTelephony(frame)
}

func (c *call) bargeIn(ctx context.Context) error {
	sid := c.stream()
	if sid == "" {
		return nil
	}
	frame, err := telephony.EncodeClear(sid)
	if err != nil {
		return errors.Wrap(err, "relay: encode clear")
	}
	c.logEvent(ctx, audit.KindBargeIn, nil)
	return c.writeTelephony(frame)
}

func (c *call) writeAgent(typ int, data []byte) error {
	c.agentMu.Lock()
	defer c.agentMu.Unlock()
	setDeadline(c.agent, c.r.opts.WriteTimeout)
	return errors.Wrap(c.agent.WriteMessage(typ, data), "relay: write agent")
}

func (c *call) writeTelephony(data []byte) error {
	c.telMu.Lock()
	defer c.telMu.Unlock()
	setDeadline(c.tel, c.r.opts.WriteTimeout)
	return errors.Wrap(c.tel.WriteMessage(websocket.TextMessage, data), "relay: write telephony")
}

func setDeadline(conn Conn, d time.Duration) {
	if wd, ok := conn.(writeDeadliner); ok {
		_ = wd.SetWriteDeadline(time.Now().Add(d))
	}
}

// enqueue blocks until the frame is queued or ctx is done.
func enqueue(ctx context.Context, q chan<- []byte, frame []byte) bool {
	select {
	case q <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
