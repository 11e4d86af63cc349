package sandbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/veriwire/pkg/bank"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*bank.HTTPClient, *Ledger) {
	t.Helper()
	ledger := NewSeededLedger(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	srv := httptest.NewServer(NewHandler(ledger))
	t.Cleanup(srv.Close)
	c, err := bank.NewHTTPClient(bank.HTTPClientOptions{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c, ledger
}

func TestSummaryResolvesAliases(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"10sf917264", "10SF917264", "WIRE202510SF917264", "pending_wire_id", "10-SF 917264"} {
		p, err := c.GetSummary(ctx, id)
		require.NoError(t, err, id)
		require.Equal(t, "10sf917264", p.ID)
		require.Equal(t, "ACME Escrow LLC", p.Payee)
		require.Equal(t, int64(970000), p.AmountCents)
		require.Equal(t, "1111", p.CardLast4)
		require.True(t, p.IsPending())
	}
}

func TestSummaryUnknownPaymentIsNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.GetSummary(context.Background(), "nope")
	require.Error(t, err)
	require.True(t, bank.IsStatus(err, http.StatusNotFound))
}

func TestApproveTwiceReportsCurrentStatus(t *testing.T) {
	c, ledger := newTestClient(t)
	ctx := context.Background()

	res, err := c.Approve(ctx, "09ne482130")
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, bank.StatusApproved, res.Status)

	res, err = c.Approve(ctx, "09NE482130")
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, bank.StatusApproved, res.Status)

	res, err = c.Cancel(ctx, "09ne482130")
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, bank.StatusApproved, res.Status)

	p, err := ledger.Get("09ne482130")
	require.NoError(t, err)
	require.Equal(t, bank.StatusApproved, p.Status)
}

func TestAliasSharesRecord(t *testing.T) {
	c, ledger := newTestClient(t)
	ctx := context.Background()

	_, err := c.Cancel(ctx, "pending_payment")
	require.NoError(t, err)

	p, err := ledger.Get("10sf917264")
	require.NoError(t, err)
	require.Equal(t, bank.StatusCanceled, p.Status)
}

func TestFreezeAndSchedule(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	fr, err := c.FreezePayee(ctx, "ACME Escrow LLC")
	require.NoError(t, err)
	require.Equal(t, "ACME Escrow LLC", fr.Payee)
	require.True(t, strings.HasPrefix(fr.TicketID, "TKT-"))
	require.Len(t, fr.TicketID, len("TKT-")+8)

	sr, err := c.ScheduleSpecialist(ctx, "+14155550123")
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339Nano, sr.ScheduledAt)
	require.NoError(t, err)
}

func TestEmptyPaymentIDRejectedBeforeRequest(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Approve(context.Background(), " - ")
	require.ErrorIs(t, err, bank.ErrPaymentIDRequired)
}
