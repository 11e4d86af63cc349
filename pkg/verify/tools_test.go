package verify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-go-golems/veriwire/pkg/audit"
	"github.com/go-go-golems/veriwire/pkg/bank"
	"github.com/go-go-golems/veriwire/pkg/bank/sandbox"
	"github.com/go-go-golems/veriwire/pkg/dispatch"
	"github.com/go-go-golems/veriwire/pkg/risk"
	"github.com/go-go-golems/veriwire/pkg/session"
	"github.com/stretchr/testify/require"
)

type toolHarness struct {
	m     *Machine
	d     *dispatch.Dispatcher
	store *session.MemoryStore[CallState]
	sink  *audit.MemorySink
}

func newToolHarness(t *testing.T, client bank.Client, suspicious bool) *toolHarness {
	t.Helper()
	store := session.NewMemoryStore[CallState](time.Hour)
	m := NewMachine(client, risk.StaticGate{Suspicious: suspicious}, PhraseFunc(func() string { return "silver harbor 42" }))
	reg := dispatch.NewRegistry()
	NewTools(m, store, client).Register(reg)
	sink := &audit.MemorySink{}
	return &toolHarness{m: m, d: dispatch.NewDispatcher(reg, sink), store: store, sink: sink}
}

// begin seeds the call the way the relay does on a telephony start event.
func (h *toolHarness) begin(t *testing.T, callID string) {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(), callID, h.m.Begin(CallState{})))
}

func (h *toolHarness) call(t *testing.T, ctx context.Context, name string, args map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	resp := h.d.Dispatch(ctx, dispatch.Call{ID: "fc", Name: name, Arguments: string(raw)})
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Content), &out))
	return out
}

func TestToolsEndToEndAgainstSandbox(t *testing.T) {
	srv := httptest.NewServer(sandbox.NewHandler(sandbox.NewSeededLedger(time.Now())))
	defer srv.Close()
	client, err := bank.NewHTTPClient(bank.HTTPClientOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	h := newToolHarness(t, client, false)
	ctx := dispatch.WithCallID(context.Background(), "MZcall")

	out := h.call(t, ctx, "approve_wire", map[string]any{"payment_id": "09ne482130"})
	require.Contains(t, out["error"], "caller is not verified")

	h.begin(t, "MZcall")
	out = h.call(t, ctx, "verify_caller", map[string]any{"user_text": "silver harbor 42", "payment_id": "WIRE202509NE482130"})
	require.Equal(t, true, out["verified"])
	require.Equal(t, msgAskCard, out["say"])

	out = h.call(t, ctx, "verify_caller", map[string]any{"user_text": "one one one one"})
	require.Equal(t, false, out["card_verified"])

	out = h.call(t, ctx, "verify_caller", map[string]any{"user_text": "four two four two"})
	require.Equal(t, true, out["card_verified"])

	out = h.call(t, ctx, "verify_caller", map[string]any{"user_text": "five five five zero one two three"})
	require.Equal(t, true, out["phone_verified"])

	out = h.call(t, ctx, "approve_wire", map[string]any{})
	require.Equal(t, "Approved. Confirmation 09ne482130. Goodbye.", out["say"])
	require.Equal(t, true, out["done"])

	out = h.call(t, ctx, "get_payment_summary", map[string]any{})
	require.Equal(t, "APPROVED", out["status"])
	require.Equal(t, "$42,150.00 USD", out["amount_readable"])
	require.NotContains(t, out, "card_last4")
	require.NotContains(t, out, "customer_phone")

	require.Contains(t, h.sink.Kinds("MZcall"), audit.KindFunctionCall)
}

func TestApproveWireOnRiskFlaggedCallEscalates(t *testing.T) {
	fb := newFakeBank()
	h := newToolHarness(t, fb, true)
	ctx := dispatch.WithCallID(context.Background(), "MZrisk")
	h.begin(t, "MZrisk")

	for _, u := range []string{"silver harbor 42", "4242", "4155550123"} {
		h.call(t, ctx, "verify_caller", map[string]any{"user_text": u, "payment_id": "09ne482130"})
	}
	out := h.call(t, ctx, "approve_wire", map[string]any{})
	require.Equal(t, msgTransfer, out["say"])
	require.NotContains(t, fb.Calls(), "approve")
	require.NotContains(t, fb.Calls(), "cancel")
}

func TestActionRefusesDifferentPayment(t *testing.T) {
	fb := newFakeBank()
	h := newToolHarness(t, fb, false)
	ctx := dispatch.WithCallID(context.Background(), "MZ1")
	h.begin(t, "MZ1")

	for _, u := range []string{"silver harbor 42", "4242", "4155550123"} {
		h.call(t, ctx, "verify_caller", map[string]any{"user_text": u, "payment_id": "09ne482130"})
	}
	out := h.call(t, ctx, "cancel_wire", map[string]any{"payment_id": "10sf917264"})
	require.Contains(t, out["error"], "does not match")
	require.NotContains(t, fb.Calls(), "cancel")
}

func TestInformationalVerifyToolsDoNotUnlockActions(t *testing.T) {
	fb := newFakeBank()
	h := newToolHarness(t, fb, false)
	ctx := dispatch.WithCallID(context.Background(), "MZ2")

	out := h.call(t, ctx, "verify_last4", map[string]any{"payment_id": "09ne482130", "last4": "4242"})
	require.Equal(t, true, out["match"])
	out = h.call(t, ctx, "verify_phone", map[string]any{"payment_id": "09ne482130", "phone_digits": "1 415 555 0123"})
	require.Equal(t, true, out["match"])
	require.Equal(t, float64(10), out["expected_len"])
	out = h.call(t, ctx, "verify_phone", map[string]any{"payment_id": "09ne482130", "phone_digits": "9999999"})
	require.Equal(t, false, out["match"])

	st, _, ok, err := h.store.Peek(ctx, "MZ2")
	require.NoError(t, err)
	if ok {
		require.False(t, st.CardVerified)
		require.False(t, st.PhoneVerified)
	}

	out = h.call(t, ctx, "approve_wire", map[string]any{"payment_id": "09ne482130"})
	require.Contains(t, out["error"], "caller is not verified")
	require.NotContains(t, fb.Calls(), "approve")
}

func TestFreezeAndScheduleFallBackToCachedSummary(t *testing.T) {
	fb := newFakeBank()
	h := newToolHarness(t, fb, false)
	ctx := dispatch.WithCallID(context.Background(), "MZ3")
	h.begin(t, "MZ3")

	h.call(t, ctx, "verify_caller", map[string]any{"user_text": "silver harbor 42", "payment_id": "09ne482130"})

	out := h.call(t, ctx, "freeze_payee", map[string]any{})
	require.Equal(t, "NorthEast Home Title LLC", out["payee"])
	out = h.call(t, ctx, "schedule_fraud_specialist", map[string]any{})
	require.Equal(t, true, out["ok"])
	require.Contains(t, fb.Calls(), "schedule:+14155550123")
}

func TestSummaryWithoutPaymentID(t *testing.T) {
	h := newToolHarness(t, newFakeBank(), false)
	out := h.call(t, context.Background(), "get_payment_summary", map[string]any{})
	require.Equal(t, "Function call failed with: payment_id is required", out["error"])
}

func TestActionCannotTargetAnotherCallsSession(t *testing.T) {
	fb := newFakeBank()
	h := newToolHarness(t, fb, false)

	owner := dispatch.WithCallID(context.Background(), "MZowner")
	h.begin(t, "MZowner")
	for _, u := range []string{"silver harbor 42", "4242", "4155550123"} {
		h.call(t, owner, "verify_caller", map[string]any{"user_text": u, "payment_id": "09ne482130"})
	}

	other := dispatch.WithCallID(context.Background(), "MZother")
	h.begin(t, "MZother")
	out := h.call(t, other, "cancel_wire", map[string]any{"streamsid": "MZowner"})
	require.Contains(t, out["error"], dispatch.ErrCallMismatch.Error())
	out = h.call(t, other, "verify_caller", map[string]any{"call_id": "MZowner", "user_text": "cancel"})
	require.Contains(t, out["error"], dispatch.ErrCallMismatch.Error())
	out = h.call(t, other, "freeze_payee", map[string]any{"streamsid": "MZowner"})
	require.Contains(t, out["error"], dispatch.ErrCallMismatch.Error())

	require.NotContains(t, fb.Calls(), "cancel")
	st, _, ok, err := h.store.Peek(context.Background(), "MZowner")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, st.Done)
	require.Empty(t, st.Outcome)
	require.Empty(t, st.Intent)

	// The owning call may still name itself.
	out = h.call(t, owner, "cancel_wire", map[string]any{"streamsid": "MZowner"})
	require.Equal(t, "canceled", out["outcome"])
}

func TestApproveWireTwiceReportsOutcome(t *testing.T) {
	fb := newFakeBank()
	h := newToolHarness(t, fb, false)
	ctx := dispatch.WithCallID(context.Background(), "MZtwice")
	h.begin(t, "MZtwice")
	for _, u := range []string{"silver harbor 42", "4242", "4155550123"} {
		h.call(t, ctx, "verify_caller", map[string]any{"user_text": u, "payment_id": "09ne482130"})
	}

	first := h.call(t, ctx, "approve_wire", map[string]any{})
	require.Equal(t, "approved", first["outcome"])

	second := h.call(t, ctx, "approve_wire", map[string]any{})
	require.NotContains(t, second, "error")
	require.Equal(t, true, second["done"])
	require.Equal(t, "approved", second["outcome"])
	require.Equal(t, "09ne482130", second["id"])
	require.Equal(t, []string{"summary", "approve"}, fb.Calls())
}
