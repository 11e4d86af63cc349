// Package bank is the boundary to the external banking ledger: payment lookup,
// approve/cancel, payee freezes and fraud-specialist scheduling.
package bank

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusCanceled Status = "CANCELED"
)

// PaymentSnapshot is a read-only projection of a payment. CardLast4 and
// CustomerPhone are for verification only and must not be read back to the
// caller.
type PaymentSnapshot struct {
	ID            string `json:"id"`
	Payee         string `json:"payee"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Status        Status `json:"status"`
	CardLast4     string `json:"card_last4"`
	CustomerPhone string `json:"customer_phone"`
}

// AmountReadable renders the amount like "$9,700.00 USD".
func (p PaymentSnapshot) AmountReadable() string {
	cents := p.AmountCents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	cur := p.Currency
	if cur == "" {
		cur = "USD"
	}
	return fmt.Sprintf("%s$%s.%02d %s", sign, b.String(), cents%100, cur)
}

// IsPending compares case-insensitively; the ledger is not consistent about
// casing.
func (p PaymentSnapshot) IsPending() bool {
	return strings.EqualFold(string(p.Status), string(StatusPending))
}

// ActionResult is returned by Approve and Cancel. Changed is false when the
// payment was already final and the call had no effect.
type ActionResult struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Changed bool   `json:"changed"`
}

type FreezeResult struct {
	Payee    string `json:"payee"`
	TicketID string `json:"ticket_id"`
}

type ScheduleResult struct {
	ScheduledAt string `json:"scheduled_at"`
}

// Client is the set of banking actions the verification flow can invoke.
type Client interface {
	GetSummary(ctx context.Context, paymentID string) (PaymentSnapshot, error)
	Approve(ctx context.Context, paymentID string) (ActionResult, error)
	Cancel(ctx context.Context, paymentID string) (ActionResult, error)
	FreezePayee(ctx context.Context, payee string) (FreezeResult, error)
	ScheduleSpecialist(ctx context.Context, phone string) (ScheduleResult, error)
}

var ErrPaymentIDRequired = errors.New("payment_id is required")

// NormalizePaymentID keeps letters and digits and lowercases them, so
// "10SF-917 264" and "10sf917264" address the same payment.
func NormalizePaymentID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func requirePaymentID(id string) (string, error) {
	pid := NormalizePaymentID(id)
	if pid == "" {
		return "", ErrPaymentIDRequired
	}
	return pid, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("bank client: %s: status %d: %s", e.Op, e.Code, e.Detail)
	}
	return fmt.Sprintf("bank client: %s: status %d", e.Op, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
