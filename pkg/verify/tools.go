package verify

import (
	"context"

	"github.com/go-go-golems/veriwire/pkg/bank"
	"github.com/go-go-golems/veriwire/pkg/dispatch"
	"github.com/go-go-golems/veriwire/pkg/session"
	"github.com/go-go-golems/veriwire/pkg/speech"
	"github.com/pkg/errors"
)

// Tools exposes the machine and the bank to the speech agent as named
// functions. Approve and cancel only go through Machine.RequestAction.
type Tools struct {
	machine *Machine
	store   session.Store[CallState]
	bank    bank.Client
}

func NewTools(machine *Machine, store session.Store[CallState], client bank.Client) *Tools {
	return &Tools{machine: machine, store: store, bank: client}
}

// Register adds every tool to the registry.
func (t *Tools) Register(r *dispatch.Registry) {
	r.Register("verify_caller", t.verifyCaller)
	r.Register("get_payment_summary", t.getPaymentSummary)
	r.Register("approve_wire", t.requestAction(IntentApprove))
	r.Register("cancel_wire", t.requestAction(IntentCancel))
	r.Register("freeze_payee", t.freezePayee)
	r.Register("schedule_fraud_specialist", t.scheduleSpecialist)
	r.Register("verify_last4", t.verifyLast4)
	r.Register("verify_phone", t.verifyPhone)
}

func progress(st CallState) map[string]any {
	return map[string]any{
		"stage":          st.stage(),
		"say":            st.Say,
		"verified":       st.Verified,
		"card_verified":  st.CardVerified,
		"phone_verified": st.PhoneVerified,
		"intent":         st.Intent,
		"done":           st.Done,
		"outcome":        st.Outcome,
	}
}

// bindPayment sets the call's payment id from the arguments. A call already
// bound to a different payment is refused.
func bindPayment(st *CallState, args map[string]any) error {
	pid := bank.NormalizePaymentID(dispatch.StringArg(args, "payment_id"))
	if pid == "" {
		return nil
	}
	if st.PaymentID == "" {
		st.PaymentID = pid
		return nil
	}
	if bank.NormalizePaymentID(st.PaymentID) != pid {
		return errors.New("payment_id does not match the payment under verification")
	}
	return nil
}

func (t *Tools) verifyCaller(ctx context.Context, args map[string]any) (any, error) {
	callID, err := dispatch.SessionID(ctx, args)
	if err != nil {
		return nil, err
	}
	var out CallState
	err = t.store.Update(ctx, callID, func(st *CallState) error {
		if err := bindPayment(st, args); err != nil {
			return err
		}
		*st = t.machine.Advance(ctx, *st, dispatch.StringArg(args, "user_text"))
		out = *st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progress(out), nil
}

func (t *Tools) requestAction(intent Intent) dispatch.Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		callID, err := dispatch.SessionID(ctx, args)
		if err != nil {
			return nil, err
		}
		var out CallState
		err = t.store.Update(ctx, callID, func(st *CallState) error {
			if err := bindPayment(st, args); err != nil {
				return err
			}
			next, err := t.machine.RequestAction(ctx, *st, intent)
			if err != nil {
				return err
			}
			*st = next
			out = next
			return nil
		})
		if err != nil {
			return nil, err
		}
		res := progress(out)
		res["id"] = out.PaymentID
		return res, nil
	}
}

func (t *Tools) paymentID(ctx context.Context, args map[string]any) (string, error) {
	if pid := dispatch.StringArg(args, "payment_id"); pid != "" {
		return pid, nil
	}
	callID, err := dispatch.SessionID(ctx, args)
	if err != nil {
		return "", err
	}
	st, _, ok, err := t.store.Peek(ctx, callID)
	if err != nil {
		return "", err
	}
	if !ok || st.PaymentID == "" {
		return "", bank.ErrPaymentIDRequired
	}
	return st.PaymentID, nil
}

// getPaymentSummary returns the redacted summary; card and phone digits are
// never handed to the agent.
func (t *Tools) getPaymentSummary(ctx context.Context, args map[string]any) (any, error) {
	pid, err := t.paymentID(ctx, args)
	if err != nil {
		return nil, err
	}
	p, err := t.bank.GetSummary(ctx, pid)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":              p.ID,
		"payee":           p.Payee,
		"amount_readable": p.AmountReadable(),
		"status":          p.Status,
	}, nil
}

func (t *Tools) freezePayee(ctx context.Context, args map[string]any) (any, error) {
	payee := dispatch.StringArg(args, "payee")
	if payee == "" {
		callID, err := dispatch.SessionID(ctx, args)
		if err != nil {
			return nil, err
		}
		st, _, ok, err := t.store.Peek(ctx, callID)
		if err != nil {
			return nil, err
		}
		if ok && st.Summary != nil {
			payee = st.Summary.Payee
		}
	}
	if payee == "" {
		return nil, errors.New("payee is required")
	}
	res, err := t.bank.FreezePayee(ctx, payee)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "payee": res.Payee, "ticket_id": res.TicketID}, nil
}

func (t *Tools) scheduleSpecialist(ctx context.Context, args map[string]any) (any, error) {
	phone := dispatch.StringArg(args, "customer_phone")
	if phone == "" {
		phone = dispatch.StringArg(args, "phone")
	}
	if phone == "" {
		callID, err := dispatch.SessionID(ctx, args)
		if err != nil {
			return nil, err
		}
		st, _, ok, err := t.store.Peek(ctx, callID)
		if err != nil {
			return nil, err
		}
		if ok && st.Summary != nil {
			phone = st.Summary.CustomerPhone
		}
	}
	if phone == "" {
		return nil, errors.New("customer_phone is required")
	}
	res, err := t.bank.ScheduleSpecialist(ctx, phone)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "scheduled_at": res.ScheduledAt}, nil
}

// verifyLast4 and verifyPhone only report a match. They never change the
// call's verification flags.
func (t *Tools) verifyLast4(ctx context.Context, args map[string]any) (any, error) {
	pid, err := t.paymentID(ctx, args)
	if err != nil {
		return nil, err
	}
	p, err := t.bank.GetSummary(ctx, pid)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "match": speech.MatchLast4(p.CardLast4, dispatch.StringArg(args, "last4"))}, nil
}

func (t *Tools) verifyPhone(ctx context.Context, args map[string]any) (any, error) {
	pid, err := t.paymentID(ctx, args)
	if err != nil {
		return nil, err
	}
	p, err := t.bank.GetSummary(ctx, pid)
	if err != nil {
		return nil, err
	}
	expected := speech.NormalizePhone(p.CustomerPhone)
	provided := speech.NormalizePhone(dispatch.StringArg(args, "phone_digits"))
	return map[string]any{
		"ok":           true,
		"match":        speech.MatchPhone(expected, provided),
		"expected_len": len(expected),
	}, nil
}
