package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-go-golems/veriwire/pkg/audit"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type brokenSink struct{}

func (brokenSink) LogEvent(context.Context, string, string, any) error {
	return errors.New("audit down")
}

func decodeContent(t *testing.T, r Response) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.Content), &m))
	return m
}

func TestDispatchRunsHandler(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"got": args["x"]}, nil
	})
	sink := &audit.MemorySink{}
	d := NewDispatcher(reg, sink)

	resp := d.Dispatch(WithCallID(context.Background(), "MZ1"), Call{ID: "fc-1", Name: "echo", Arguments: `{"x":"y"}`})
	require.Equal(t, "FunctionCallResponse", resp.Type)
	require.Equal(t, "fc-1", resp.ID)
	require.Equal(t, "echo", resp.Name)
	require.Equal(t, map[string]any{"got": "y"}, decodeContent(t, resp))
	require.Equal(t, []string{audit.KindFunctionCall, audit.KindFunctionResult}, sink.Kinds("MZ1"))
}

func TestDispatchUnknownFunction(t *testing.T) {
	sink := &audit.MemorySink{}
	d := NewDispatcher(NewRegistry(), sink)

	resp := d.Dispatch(context.Background(), Call{ID: "fc-2", Name: "transfer_all", Arguments: `{}`})
	require.Equal(t, "fc-2", resp.ID)
	require.Equal(t, map[string]any{"error": "Unknown function: transfer_all"}, decodeContent(t, resp))
	require.Equal(t, []string{audit.KindFunctionCall, audit.KindUnknownFunction}, sink.Kinds(UnknownCallID))
}

func TestDispatchHandlerError(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fail", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("bank unreachable")
	})
	d := NewDispatcher(reg, nil)

	resp := d.Dispatch(context.Background(), Call{ID: "fc-3", Name: "fail"})
	require.Equal(t, "fc-3", resp.ID)
	require.Equal(t, "fail", resp.Name)
	require.Equal(t, map[string]any{"error": "Function call failed with: bank unreachable"}, decodeContent(t, resp))
}

func TestDispatchHandlerPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register("boom", func(ctx context.Context, args map[string]any) (any, error) {
		panic("nil summary")
	})
	d := NewDispatcher(reg, nil)

	resp := d.Dispatch(context.Background(), Call{Name: "boom"})
	require.Equal(t, UnknownCallID, resp.ID)
	require.Equal(t, "boom", resp.Name)
	require.Equal(t, map[string]any{"error": "Function call failed with: nil summary"}, decodeContent(t, resp))
}

func TestDispatchBadArguments(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register("f", func(ctx context.Context, args map[string]any) (any, error) {
		called = true
		return nil, nil
	})
	d := NewDispatcher(reg, nil)

	resp := d.Dispatch(context.Background(), Call{ID: "fc-4", Name: "f", Arguments: `{not json`})
	require.False(t, called)
	require.Contains(t, decodeContent(t, resp)["error"], "Function call failed with: invalid arguments")
}

func TestDispatchSwallowsAuditFailures(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ok", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]bool{"ok": true}, nil
	})
	d := NewDispatcher(reg, brokenSink{})

	resp := d.Dispatch(context.Background(), Call{ID: "fc-5", Name: "ok"})
	require.Equal(t, map[string]any{"ok": true}, decodeContent(t, resp))
}

func TestDispatchAllAnswersEachCall(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", func(ctx context.Context, args map[string]any) (any, error) { return "A", nil })
	d := NewDispatcher(reg, nil)

	out := d.DispatchAll(context.Background(), []Call{{ID: "1", Name: "a"}, {ID: "2", Name: "missing"}})
	require.Len(t, out, 2)
	require.Equal(t, `"A"`, out[0].Content)
	require.Equal(t, "2", out[1].ID)
}

func TestCallIDResolution(t *testing.T) {
	ctx := WithCallID(context.Background(), "MZctx")
	require.Equal(t, "MZarg", CallID(ctx, map[string]any{"streamsid": "MZarg"}))
	require.Equal(t, "CA1", CallID(ctx, map[string]any{"call_id": "CA1"}))
	require.Equal(t, "MZctx", CallID(ctx, map[string]any{}))
	require.Equal(t, UnknownCallID, CallID(context.Background(), nil))
}

func TestSessionIDPrefersBoundCall(t *testing.T) {
	ctx := WithCallID(context.Background(), "MZctx")

	id, err := SessionID(ctx, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "MZctx", id)

	id, err = SessionID(ctx, map[string]any{"streamsid": "MZctx"})
	require.NoError(t, err)
	require.Equal(t, "MZctx", id)

	_, err = SessionID(ctx, map[string]any{"streamsid": "MZother"})
	require.ErrorIs(t, err, ErrCallMismatch)
	_, err = SessionID(ctx, map[string]any{"call_id": "MZother"})
	require.ErrorIs(t, err, ErrCallMismatch)

	id, err = SessionID(context.Background(), map[string]any{"call_id": "CA1"})
	require.NoError(t, err)
	require.Equal(t, "CA1", id)

	id, err = SessionID(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, UnknownCallID, id)
}

func TestStringArg(t *testing.T) {
	args := map[string]any{"s": " 4242 ", "n": float64(4242), "b": true}
	require.Equal(t, "4242", StringArg(args, "s"))
	require.Equal(t, "4242", StringArg(args, "n"))
	require.Equal(t, "true", StringArg(args, "b"))
	require.Equal(t, "", StringArg(args, "missing"))
}
