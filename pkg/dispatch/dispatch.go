// Package dispatch routes speech-agent function calls to registered handlers
// and always produces exactly one response per request.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/go-go-golems/veriwire/pkg/audit"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// UnknownCallID is logged against when no call id can be derived.
const UnknownCallID = "unknown"

// Handler executes one function call. The returned value is JSON-encoded into
// the response content.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Call is one entry of a FunctionCallRequest.
type Call struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	// ClientSide is set by the agent for functions it expects the client to run.
	ClientSide *bool `json:"client_side,omitempty"`
}

// Response is the FunctionCallResponse frame sent back to the agent.
type Response struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type Dispatcher struct {
	registry *Registry
	sink     audit.Sink
}

func NewDispatcher(registry *Registry, sink audit.Sink) *Dispatcher {
	return &Dispatcher{registry: registry, sink: audit.BestEffort(sink)}
}

// Dispatch runs one call. Failures are returned to the agent as
// {"error": "..."} content, never as a Go error.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (resp Response) {
	id, name := call.ID, call.Name
	if id == "" {
		id = UnknownCallID
	}
	if name == "" {
		name = UnknownCallID
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("component", "dispatch").
				Str("function", name).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("function handler panicked")
			resp = errorResponse(id, name, fmt.Sprintf("Function call failed with: %v", rec))
		}
	}()

	args, err := parseArguments(call.Arguments)
	if err != nil {
		d.log(ctx, nil, audit.KindFunctionCall, map[string]any{"name": name, "error": err.Error()})
		return errorResponse(id, name, "Function call failed with: "+err.Error())
	}

	d.log(ctx, args, audit.KindFunctionCall, map[string]any{"name": name, "args": args})

	h, ok := d.registry.Lookup(call.Name)
	if !ok {
		d.log(ctx, args, audit.KindUnknownFunction, map[string]any{"name": name})
		log.Warn().Str("component", "dispatch").Str("function", name).Msg("unknown function")
		return resultResponse(id, name, map[string]any{"error": "Unknown function: " + call.Name})
	}

	result, err := h(ctx, args)
	if err != nil {
		log.Warn().Err(err).Str("component", "dispatch").Str("function", name).Msg("function call failed")
		d.log(ctx, args, audit.KindFunctionResult, map[string]any{"name": name, "error": err.Error()})
		return errorResponse(id, name, "Function call failed with: "+err.Error())
	}
	d.log(ctx, args, audit.KindFunctionResult, map[string]any{"name": name, "result": result})
	return resultResponse(id, name, result)
}

// DispatchAll answers every call of one request, in order.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []Call) []Response {
	out := make([]Response, 0, len(calls))
	for _, c := range calls {
		out = append(out, d.Dispatch(ctx, c))
	}
	return out
}

func (d *Dispatcher) log(ctx context.Context, args map[string]any, kind string, data any) {
	_ = d.sink.LogEvent(ctx, CallID(ctx, args), kind, data)
}

func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, errors.Wrap(err, "invalid arguments")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func resultResponse(id, name string, result any) Response {
	content, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, name, "Function call failed with: "+err.Error())
	}
	return Response{Type: "FunctionCallResponse", ID: id, Name: name, Content: string(content)}
}

func errorResponse(id, name, msg string) Response {
	content, _ := json.Marshal(map[string]string{"error": msg})
	return Response{Type: "FunctionCallResponse", ID: id, Name: name, Content: string(content)}
}
