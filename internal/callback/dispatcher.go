package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	app "github.com/kode4food/flowgate"
	"github.com/kode4food/flowgate/pkg/api"
	"github.com/kode4food/flowgate/pkg/log"
)

type (
	// Dispatcher POSTs completion payloads to the system of record
	Dispatcher struct {
		httpClient *http.Client
		sleep      SleepFunc
		backoff    time.Duration
	}

	// SleepFunc waits for d or until ctx is done
	SleepFunc func(ctx context.Context, d time.Duration) error

	// DeliveryError describes a failed delivery attempt. StatusCode is zero
	// when no response was received
	DeliveryError struct {
		Err        error
		StatusCode int
	}

	backoffCalculator func(base time.Duration, attempt int) time.Duration
)

const (
	// DefaultTimeout bounds a single delivery attempt
	DefaultTimeout = 5 * time.Second

	// DefaultBackoff is the wait before the first retry
	DefaultBackoff = time.Second

	maxErrorBody = 512
)

var (
	ErrHTTPStatus = errors.New("callback returned HTTP error")
	ErrNoURL      = errors.New("callback URL empty")
)

// UserAgent identifies this service on outbound callbacks
var UserAgent = app.Name + "/" + app.Version

var exponential backoffCalculator = func(
	base time.Duration, attempt int,
) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)))
}

// NewDispatcher creates a dispatcher with a per-attempt timeout and the base
// delay of its exponential backoff
func NewDispatcher(timeout, backoff time.Duration) *Dispatcher {
	return NewDispatcherWithSleep(timeout, backoff, Sleep)
}

// NewDispatcherWithSleep creates a dispatcher that waits between attempts
// with sleep
func NewDispatcherWithSleep(
	timeout, backoff time.Duration, sleep SleepFunc,
) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		sleep:      sleep,
		backoff:    backoff,
	}
}

// Sleep waits for d, returning early with the context's error when ctx is
// done first
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deliver makes one delivery attempt and returns the response status. Any
// 2xx status is a success
func (d *Dispatcher) Deliver(
	ctx context.Context, url string, payload *api.CallbackPayload,
) (int, error) {
	if url == "" {
		return 0, &DeliveryError{Err: ErrNoURL}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, &DeliveryError{Err: err}
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(body),
	)
	if err != nil {
		return 0, &DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	dur := time.Since(start)
	if err != nil {
		slog.Error("Callback request failed",
			log.URL(url),
			slog.Duration("duration", dur),
			log.Error(err))
		return 0, &DeliveryError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Error("Callback HTTP error",
			log.URL(url),
			log.StatusCode(resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return resp.StatusCode, &DeliveryError{
			Err: fmt.Errorf(
				"%w: HTTP %d", ErrHTTPStatus, resp.StatusCode,
			),
			StatusCode: resp.StatusCode,
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	slog.Debug("Callback delivered",
		log.URL(url),
		log.StatusCode(resp.StatusCode),
		slog.Duration("duration", dur))
	return resp.StatusCode, nil
}

// DeliverWithRetries makes up to maxRetries+1 attempts, waiting
// backoff*2^attempt between them. It returns the status of the first
// successful attempt, or the status and error of the last failed one
func (d *Dispatcher) DeliverWithRetries(
	ctx context.Context, url string, payload *api.CallbackPayload,
	maxRetries int,
) (int, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var code int
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		code, err = d.Deliver(ctx, url, payload)
		if err == nil {
			return code, nil
		}
		if attempt == maxRetries {
			break
		}

		delay := exponential(d.backoff, attempt)
		slog.Warn("Callback retry",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("delay", delay),
			log.URL(url),
			log.FlowToken(payload.FlowToken))
		if serr := d.sleep(ctx, delay); serr != nil {
			return code, &DeliveryError{
				Err:        errors.Join(err, serr),
				StatusCode: code,
			}
		}
	}
	return code, err
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("callback delivery failed (status %d): %v",
			e.StatusCode, e.Err)
	}
	return fmt.Sprintf("callback delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
