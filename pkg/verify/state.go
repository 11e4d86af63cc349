// Package verify drives the caller-verification conversation: liveness phrase,
// risk check, card and phone confirmation, then approve or cancel.
package verify

import (
	"github.com/go-go-golems/veriwire/pkg/bank"
)

type Stage string

const (
	StageVerifyHuman Stage = "verify_human"
	StageDFCheck     Stage = "df_check"
	StageExplain     Stage = "explain"
	StageUnderstand  Stage = "understand"
	StageAct         Stage = "act"
	StageDone        Stage = "done"
)

type Intent string

const (
	IntentNone    Intent = ""
	IntentApprove Intent = "approve"
	IntentCancel  Intent = "cancel"
	IntentUnknown Intent = "unknown"
)

// CallState is the per-call record kept in the session store. It is copied by
// value; Summary points at a snapshot that is never mutated after caching.
type CallState struct {
	Stage  Stage  `json:"stage"`
	Phrase string `json:"phrase,omitempty"`

	// Verified means the liveness phrase was repeated.
	Verified      bool `json:"verified"`
	CardVerified  bool `json:"card_verified"`
	PhoneVerified bool `json:"phone_verified"`

	Intent    Intent `json:"intent,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`

	Summary     *bank.PaymentSnapshot `json:"summary,omitempty"`
	TargetPhone string                `json:"target_phone,omitempty"`

	RiskFlag  bool    `json:"risk_flag"`
	RiskScore float64 `json:"risk_score"`

	// Say is the message for the caller produced by the last pass.
	Say  string `json:"say,omitempty"`
	Done bool   `json:"done"`
	// Outcome records the final action, e.g. "approved", "canceled", "escalated".
	Outcome string `json:"outcome,omitempty"`
}

// IdentityConfirmed reports whether every verification step has passed.
func (s CallState) IdentityConfirmed() bool {
	return s.Verified && s.CardVerified && s.PhoneVerified
}

func (s CallState) stage() Stage {
	if s.Stage == "" {
		return StageVerifyHuman
	}
	return s.Stage
}
