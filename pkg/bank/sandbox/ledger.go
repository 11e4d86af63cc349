// Package sandbox is an in-memory banking ledger with the demo payments used by
// the bank-sandbox command and the end-to-end tests.
package sandbox

import (
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/veriwire/pkg/bank"
	"github.com/pkg/errors"
)

var ErrPaymentNotFound = errors.New("payment not found")

type Payment struct {
	bank.PaymentSnapshot
	CreatedAt time.Time `json:"created_at"`
}

// Ledger stores payments by normalized id. Aliases resolve to the same record.
type Ledger struct {
	mu       sync.Mutex
	payments map[string]*Payment
	aliases  map[string]string
}

func NewLedger() *Ledger {
	return &Ledger{
		payments: map[string]*Payment{},
		aliases:  map[string]string{},
	}
}

// NewSeededLedger returns a ledger preloaded with the demo payments.
func NewSeededLedger(now time.Time) *Ledger {
	l := NewLedger()
	for _, p := range []bank.PaymentSnapshot{
		{ID: "09ne482130", CustomerPhone: "+14155550123", CardLast4: "4242", Payee: "NorthEast Home Title LLC", AmountCents: 4215000},
		{ID: "10sf917264", CustomerPhone: "+14155550123", CardLast4: "1111", Payee: "ACME Escrow LLC", AmountCents: 970000},
		{ID: "10ny331842", CustomerPhone: "+13475550199", CardLast4: "9999", Payee: "Metro Equip Suppliers Inc", AmountCents: 1289000},
	} {
		p.Currency = "USD"
		p.Status = bank.StatusPending
		l.Put(p, now)
	}
	_ = l.Alias("WIRE202509NE482130", "09ne482130")
	_ = l.Alias("WIRE202510SF917264", "10sf917264")
	_ = l.Alias("WIRE202510NY331842", "10ny331842")
	_ = l.Alias("pending_wire_id", "10sf917264")
	_ = l.Alias("pending_payment", "10sf917264")
	return l
}

func (l *Ledger) Put(p bank.PaymentSnapshot, createdAt time.Time) {
	id := bank.NormalizePaymentID(p.ID)
	p.ID = id
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payments[id] = &Payment{PaymentSnapshot: p, CreatedAt: createdAt.UTC()}
}

func (l *Ledger) Alias(alias, target string) error {
	t := bank.NormalizePaymentID(target)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.payments[t]; !ok {
		return errors.Wrapf(ErrPaymentNotFound, "alias %s", alias)
	}
	l.aliases[bank.NormalizePaymentID(alias)] = t
	return nil
}

func (l *Ledger) Get(pid string) (Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.lookupLocked(pid)
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return *p, nil
}

// List returns every payment, sorted by id. Aliases are not repeated.
func (l *Ledger) List() []Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Payment, 0, len(l.payments))
	for _, p := range l.payments {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transition moves a pending payment to the target status. It returns the
// payment and whether it changed; a payment that is already final is returned
// unchanged.
func (l *Ledger) Transition(pid string, to bank.Status) (Payment, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.lookupLocked(pid)
	if !ok {
		return Payment{}, false, ErrPaymentNotFound
	}
	if !p.IsPending() {
		return *p, false, nil
	}
	p.Status = to
	return *p, true, nil
}

func (l *Ledger) lookupLocked(pid string) (*Payment, bool) {
	id := bank.NormalizePaymentID(pid)
	if t, ok := l.aliases[id]; ok {
		id = t
	}
	p, ok := l.payments[id]
	return p, ok
}
