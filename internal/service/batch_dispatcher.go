package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/email"
	"github.com/edusignal/retention-backend/internal/model"
)

// RateConfig paces a dispatch to stay under the gateway's rate limit.
// The inter-batch delay is throttling, not correctness.
type RateConfig struct {
	BatchSize   int
	BatchDelay  time.Duration
	SendTimeout time.Duration
}

func DefaultRateConfig() RateConfig {
	return RateConfig{
		BatchSize:   10,
		BatchDelay:  1 * time.Second,
		SendTimeout: 10 * time.Second,
	}
}

// Recipient is the slice of a student record the dispatcher needs.
type Recipient struct {
	StudentID string
	Email     string
	Name      string
	Variables map[string]string
}

// RecipientOf builds a dispatch recipient from a student record.
func RecipientOf(s model.Student) Recipient {
	return Recipient{
		StudentID: s.ID,
		Email:     s.Email,
		Name:      strings.TrimSpace(s.FirstName + " " + s.LastName),
		Variables: StudentVars(s),
	}
}

// SendError is one recipient's failure, collected without aborting the
// dispatch.
type SendError struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// DispatchResult is the settled outcome for one recipient.
type DispatchResult struct {
	StudentID string
	MessageID string
	Err       error
}

// DispatchOutcome reports a whole dispatch: every recipient settled
// (success or failure) plus the success count.
type DispatchOutcome struct {
	Sent    int
	Results []DispatchResult
}

// Errors collects the per-recipient failures.
func (o *DispatchOutcome) Errors() []SendError {
	errs := []SendError{}
	for _, r := range o.Results {
		if r.Err != nil {
			errs = append(errs, SendError{StudentID: r.StudentID, Error: r.Err.Error()})
		}
	}
	return errs
}

// BatchDispatcher sends a recipient list through the notification
// gateway in fixed-size concurrent batches. Within a batch all sends run
// in parallel and the batch only advances once every member has settled;
// batches run in partition order with a pause in between.
type BatchDispatcher struct {
	Gateway email.Gateway
	Rate    RateConfig

	// Sleep is the inter-batch pause; replaceable in tests and by an
	// adaptive rate limiter later. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

func NewBatchDispatcher(gateway email.Gateway) *BatchDispatcher {
	return &BatchDispatcher{Gateway: gateway, Rate: DefaultRateConfig(), Sleep: time.Sleep}
}

// Dispatch renders and sends the templated message to every recipient.
// A single recipient's failure is recorded and never aborts the run; the
// returned error is reserved for total failures (empty template, gateway
// down), after which remaining recipients are not attempted.
func (d *BatchDispatcher) Dispatch(ctx context.Context, recipients []Recipient, subject, body string) (*DispatchOutcome, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, appErrors.NewValidation("subject template cannot be empty")
	}
	if strings.TrimSpace(body) == "" {
		return nil, appErrors.NewValidation("body template cannot be empty")
	}

	rate := d.Rate
	if rate.BatchSize < 1 {
		rate.BatchSize = 1
	}
	sleep := d.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	outcome := &DispatchOutcome{Results: make([]DispatchResult, 0, len(recipients))}

	for start := 0; start < len(recipients); start += rate.BatchSize {
		end := start + rate.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := recipients[start:end]

		results := make([]DispatchResult, len(batch))
		var wg sync.WaitGroup
		for i, rcpt := range batch {
			wg.Add(1)
			go func(i int, rcpt Recipient) {
				defer wg.Done()
				results[i] = d.sendOne(ctx, rcpt, subject, body, rate.SendTimeout)
			}(i, rcpt)
		}
		wg.Wait()

		var fatal error
		for _, res := range results {
			outcome.Results = append(outcome.Results, res)
			if res.Err == nil {
				outcome.Sent++
			} else if fatal == nil && errors.Is(res.Err, email.ErrGatewayUnavailable) {
				fatal = res.Err
			}
		}
		if fatal != nil {
			return outcome, fmt.Errorf("dispatch aborted: %w", fatal)
		}

		if end < len(recipients) {
			sleep(rate.BatchDelay)
		}
	}

	return outcome, nil
}

func (d *BatchDispatcher) sendOne(ctx context.Context, rcpt Recipient, subject, body string, timeout time.Duration) DispatchResult {
	sctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg := email.Message{
		To:      rcpt.Email,
		ToName:  rcpt.Name,
		Subject: RenderTemplate(subject, rcpt.Variables),
		Body:    RenderTemplate(body, rcpt.Variables),
	}

	id, err := d.Gateway.SendTemplated(sctx, msg)
	if err != nil {
		return DispatchResult{StudentID: rcpt.StudentID, Err: err}
	}
	return DispatchResult{StudentID: rcpt.StudentID, MessageID: id}
}
