package verify

import (
	"context"
	"strings"

	"github.com/go-go-golems/veriwire/pkg/bank"
	"github.com/go-go-golems/veriwire/pkg/liveness"
	"github.com/go-go-golems/veriwire/pkg/risk"
	"github.com/go-go-golems/veriwire/pkg/speech"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// maxSteps bounds one pass; a full pass visits at most every node twice.
const maxSteps = 16

var ErrNotVerified = errors.New("caller is not verified")

// PhraseSource yields liveness phrases.
type PhraseSource interface {
	Phrase() string
}

// PhraseFunc adapts a function to PhraseSource.
type PhraseFunc func() string

func (f PhraseFunc) Phrase() string { return f() }

// Machine is the verification state machine. It holds no per-call state; every
// call's progress lives in the CallState passed through Advance.
type Machine struct {
	bank    bank.Client
	gate    risk.Gate
	phrases PhraseSource
}

func NewMachine(client bank.Client, gate risk.Gate, phrases PhraseSource) *Machine {
	if gate == nil {
		gate = risk.NewRandomGate(risk.DefaultThreshold)
	}
	if phrases == nil {
		phrases = liveness.NewGenerator()
	}
	return &Machine{bank: client, gate: gate, phrases: phrases}
}

// Begin prepares a new call: a liveness phrase is issued if none is set.
func (m *Machine) Begin(st CallState) CallState {
	if st.Phrase == "" {
		st.Phrase = m.phrases.Phrase()
	}
	if st.Stage == "" {
		st.Stage = StageVerifyHuman
	}
	return st
}

// Advance runs the graph from the current stage, feeding it one caller
// utterance. The utterance is consumed by at most one node; a node that needs
// input once it has been consumed ends the pass. The returned state carries the
// message for the caller in Say.
func (m *Machine) Advance(ctx context.Context, st CallState, utterance string) CallState {
	input := strings.TrimSpace(utterance)
	fresh := input != ""
	st.Say = ""

	for i := 0; i < maxSteps; i++ {
		switch st.stage() {
		case StageVerifyHuman:
			st.Stage = StageVerifyHuman
			if st.Phrase == "" {
				st.Phrase = m.phrases.Phrase()
				st.Say = msgSayPhrase(st.Phrase)
				return st
			}
			if !fresh {
				if st.Say == "" {
					st.Say = msgSayPhrase(st.Phrase)
				}
				return st
			}
			fresh = false
			if liveness.Matches(st.Phrase, input) {
				st.Verified = true
				st.Say = ""
			} else {
				st.Phrase = m.phrases.Phrase()
				st.Say = msgRetryPhrase(st.Phrase)
			}
			st.Stage = StageDFCheck

		case StageDFCheck:
			st.RiskFlag, st.RiskScore = m.gate.Assess(ctx)
			if st.RiskFlag {
				log.Info().Str("component", "verify").Float64("risk_score", st.RiskScore).Msg("risk gate flagged call")
			}
			if st.Verified {
				st.Stage = StageExplain
			} else {
				st.Stage = StageVerifyHuman
			}

		case StageExplain:
			if !m.explain(ctx, &st) {
				return st
			}
			st.Stage = StageUnderstand

		case StageUnderstand:
			if !fresh {
				if st.Say == "" {
					st.Say = prompt(st)
				}
				return st
			}
			fresh = false
			m.understand(&st, input)
			if st.Done {
				return st
			}
			if st.Intent == IntentApprove || st.Intent == IntentCancel {
				st.Stage = StageAct
			} else {
				st.Stage = StageExplain
			}

		case StageAct:
			m.act(ctx, &st)
			return st

		case StageDone:
			st.Done = true
			return st

		default:
			st.Stage = StageVerifyHuman
		}
	}
	log.Warn().Str("component", "verify").Str("stage", string(st.Stage)).Msg("verification pass hit step limit")
	return st
}

// RequestAction is the only way an approve or cancel reaches the bank from
// outside the conversation graph. It refuses unless every verification step
// has passed; a risk-flagged call is routed to the fraud path instead. A
// finished call is returned as is so a repeated request reports its outcome.
func (m *Machine) RequestAction(ctx context.Context, st CallState, intent Intent) (CallState, error) {
	if intent != IntentApprove && intent != IntentCancel {
		return st, errors.Errorf("unsupported intent %q", intent)
	}
	if st.Done {
		return st, nil
	}
	if !st.IdentityConfirmed() || st.Summary == nil {
		st.Say = prompt(st)
		return st, ErrNotVerified
	}
	st.Intent = intent
	st.Stage = StageAct
	st.Say = ""
	m.act(ctx, &st)
	return st, nil
}

// explain caches the payment snapshot and sets the prompt for the next
// missing step. It returns false when the pass must stop here.
func (m *Machine) explain(ctx context.Context, st *CallState) bool {
	if st.Summary == nil {
		snap, err := m.bank.GetSummary(ctx, st.PaymentID)
		if err != nil {
			log.Warn().Err(err).Str("component", "verify").Str("payment_id", st.PaymentID).Msg("payment lookup failed")
			st.Say = msgLookupFailed
			return false
		}
		st.Summary = &snap
		st.TargetPhone = speech.NormalizePhone(snap.CustomerPhone)
	}
	if !st.Summary.IsPending() {
		st.Say = msgAlready(strings.ToUpper(string(st.Summary.Status)))
		st.Stage = StageDone
		st.Done = true
		st.Outcome = "already_" + strings.ToLower(string(st.Summary.Status))
		return false
	}
	if st.Summary.CardLast4 == "" || st.TargetPhone == "" {
		st.Say = msgNoVerificationData
		st.Stage = StageDone
		st.Done = true
		st.Outcome = "unverifiable"
		return false
	}
	if st.Say == "" {
		st.Say = prompt(*st)
	}
	return true
}

func (m *Machine) understand(st *CallState, text string) {
	lower := strings.ToLower(text)
	switch {
	case !st.CardVerified:
		if speech.MatchLast4(st.Summary.CardLast4, speech.ExtractDigits(lower)) {
			st.CardVerified = true
			st.Say = msgAskPhone
		} else {
			st.Say = msgCardRetry
		}
	case !st.PhoneVerified:
		if speech.MatchPhone(st.TargetPhone, speech.ExtractDigits(lower)) {
			st.PhoneVerified = true
			st.Say = msgAskIntent
		} else {
			st.Say = msgPhoneRetry
		}
	default:
		st.Intent = classifyIntent(lower)
		if st.Intent == IntentUnknown {
			st.Say = msgIntentRetry
		}
	}
}

func (m *Machine) act(ctx context.Context, st *CallState) {
	payee := "Unknown"
	phone := ""
	if st.Summary != nil {
		payee = st.Summary.Payee
		phone = st.Summary.CustomerPhone
	}

	if st.RiskFlag {
		if _, err := m.bank.FreezePayee(ctx, payee); err != nil {
			log.Warn().Err(err).Str("component", "verify").Str("payment_id", st.PaymentID).Msg("freeze payee failed")
		}
		st.Stage = StageDone
		st.Done = true
		st.Outcome = "escalated"
		if _, err := m.bank.ScheduleSpecialist(ctx, phone); err != nil {
			log.Warn().Err(err).Str("component", "verify").Str("payment_id", st.PaymentID).Msg("schedule specialist failed")
			st.Say = msgEscalationFailed
			return
		}
		st.Say = msgTransfer
		return
	}

	var (
		res    bank.ActionResult
		err    error
		target bank.Status
	)
	switch st.Intent {
	case IntentApprove:
		target = bank.StatusApproved
		res, err = m.bank.Approve(ctx, st.PaymentID)
	case IntentCancel:
		target = bank.StatusCanceled
		res, err = m.bank.Cancel(ctx, st.PaymentID)
	default:
		st.Stage = StageExplain
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "verify").Str("payment_id", st.PaymentID).Str("intent", string(st.Intent)).Msg("bank action failed")
		st.Say = msgActionFailed
		st.Intent = IntentNone
		st.Stage = StageUnderstand
		return
	}

	st.Stage = StageDone
	st.Done = true
	if !strings.EqualFold(string(res.Status), string(target)) {
		st.Say = msgAlready(strings.ToUpper(string(res.Status)))
		st.Outcome = "already_" + strings.ToLower(string(res.Status))
		return
	}
	if st.Intent == IntentApprove {
		st.Say = msgApproved(res.ID)
		st.Outcome = "approved"
	} else {
		st.Say = msgCanceled(res.ID)
		st.Outcome = "canceled"
	}
}

// prompt is the question for the next missing step.
func prompt(st CallState) string {
	switch {
	case !st.Verified:
		if st.Phrase == "" {
			return ""
		}
		return msgSayPhrase(st.Phrase)
	case !st.CardVerified:
		return msgAskCard
	case !st.PhoneVerified:
		return msgPhoneReprompt
	case st.Summary != nil:
		return msgConfirmPayment(st.Summary.AmountReadable(), st.Summary.Payee)
	}
	return msgIntentRetry
}

// classifyIntent accepts keypad digits 1 and 2 or the words approve, cancel
// and decline.
func classifyIntent(text string) Intent {
	t := strings.TrimSpace(text)
	switch {
	case t == "1" || strings.Contains(t, "approve"):
		return IntentApprove
	case t == "2" || strings.Contains(t, "cancel") || strings.Contains(t, "decline"):
		return IntentCancel
	}
	return IntentUnknown
}
