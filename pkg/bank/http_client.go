package bank

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type HTTPClientOptions struct {
	BaseURL string
	// Timeout bounds each individual request.
	Timeout time.Duration
	// SummaryRetries is the number of extra attempts for GetSummary. State
	// changing calls are never retried.
	SummaryRetries uint64
	RetryInitial   time.Duration
	HTTPClient     *http.Client
}

// HTTPClient talks to the bank's JSON API.
type HTTPClient struct {
	base    *url.URL
	timeout time.Duration
	retries uint64
	initial time.Duration
	hc      *http.Client
}

var _ Client = &HTTPClient{}

func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("bank client: empty base url")
	}
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "bank client: parse base url")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 200 * time.Millisecond
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{
		base:    u,
		timeout: opts.Timeout,
		retries: opts.SummaryRetries,
		initial: opts.RetryInitial,
		hc:      hc,
	}, nil
}

type paymentResponse struct {
	ID            string `json:"id"`
	Payee         string `json:"payee"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Status        Status `json:"status"`
	CardLast4     string `json:"card_last4"`
	CustomerPhone string `json:"customer_phone"`
}

type actionResponse struct {
	OK     bool   `json:"ok"`
	ID     string `json:"id"`
	Status Status `json:"status"`
}

func (c *HTTPClient) GetSummary(ctx context.Context, paymentID string) (PaymentSnapshot, error) {
	pid, err := requirePaymentID(paymentID)
	if err != nil {
		return PaymentSnapshot{}, err
	}

	var b backoff.BackOff = backoff.WithMaxRetries(c.newBackOff(), c.retries)
	b = backoff.WithContext(b, ctx)

	var p paymentResponse
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(pid), nil, "get summary", &p)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		log.Debug().Err(err).Str("component", "bank").Str("payment_id", pid).Int("attempt", attempt).Msg("get summary failed, retrying")
		return err
	}, b)
	if err != nil {
		return PaymentSnapshot{}, err
	}
	return PaymentSnapshot(p), nil
}

func (c *HTTPClient) Approve(ctx context.Context, paymentID string) (ActionResult, error) {
	return c.transition(ctx, paymentID, "approve")
}

func (c *HTTPClient) Cancel(ctx context.Context, paymentID string) (ActionResult, error) {
	return c.transition(ctx, paymentID, "cancel")
}

// transition posts an approve/cancel once. A 409 means the payment is no longer
// pending; the current status is read back and reported unchanged.
func (c *HTTPClient) transition(ctx context.Context, paymentID, action string) (ActionResult, error) {
	pid, err := requirePaymentID(paymentID)
	if err != nil {
		return ActionResult{}, err
	}
	var resp actionResponse
	err = c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(pid)+"/"+action, nil, action, &resp)
	if IsStatus(err, http.StatusConflict) {
		snap, serr := c.GetSummary(ctx, pid)
		if serr != nil {
			return ActionResult{}, errors.Wrapf(serr, "bank client: %s: read back after conflict", action)
		}
		return ActionResult{ID: snap.ID, Status: snap.Status, Changed: false}, nil
	}
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{ID: resp.ID, Status: resp.Status, Changed: true}, nil
}

func (c *HTTPClient) FreezePayee(ctx context.Context, payee string) (FreezeResult, error) {
	q := url.Values{}
	q.Set("payee", payee)
	var resp struct {
		Payee    string `json:"payee"`
		TicketID string `json:"ticket_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/freeze_payee", q, "freeze payee", &resp); err != nil {
		return FreezeResult{}, err
	}
	return FreezeResult{Payee: resp.Payee, TicketID: resp.TicketID}, nil
}

func (c *HTTPClient) ScheduleSpecialist(ctx context.Context, phone string) (ScheduleResult, error) {
	q := url.Values{}
	q.Set("phone", phone)
	var resp struct {
		ScheduledAt string `json:"scheduled_at"`
	}
	if err := c.do(ctx, http.MethodPost, "/schedule_specialist", q, "schedule specialist", &resp); err != nil {
		return ScheduleResult{}, err
	}
	return ScheduleResult{ScheduledAt: resp.ScheduledAt}, nil
}

func (c *HTTPClient) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initial
	eb.MaxInterval = 2 * time.Second
	eb.MaxElapsedTime = 0
	return eb
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, op string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "bank client: %s: build request", op)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "bank client: %s", op)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrapf(err, "bank client: %s: read body", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode, Detail: errorDetail(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "bank client: %s: decode response", op)
	}
	return nil
}

func errorDetail(body []byte) string {
	var env struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Detail != "" {
		return env.Detail
	}
	return strings.TrimSpace(string(body))
}

// retryable treats transport failures and 5xx as transient.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}
