package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/leadchat/leadchat/pkg/events"
	"github.com/leadchat/leadchat/pkg/urlvalidation"
)

const maxBreakers = 1000

// Recorder persists the outcome of deliveries.
type Recorder interface {
	RecordDelivery(ctx context.Context, da *DeliveryAttempt) error
	CreateDeadLetter(ctx context.Context, dl *DeadLetter) error
}

// DelivererConfig holds delivery-related settings.
type DelivererConfig struct {
	MaxRetries      int
	Timeout         time.Duration
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	CBFailThreshold int
	CBResetTimeout  time.Duration
}

// Deliverer POSTs event envelopes to webhook endpoints.
type Deliverer struct {
	recorder     Recorder
	httpClient   *http.Client
	config       DelivererConfig
	pool         workerpool.WorkerPool
	validateOpts []urlvalidation.Option

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewDeliverer creates a new webhook deliverer. A nil recorder skips
// persistence of attempts and dead letters.
func NewDeliverer(recorder Recorder, cfg DelivererConfig, pool workerpool.WorkerPool, validateOpts ...urlvalidation.Option) *Deliverer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Deliverer{
		recorder: recorder,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:       cfg,
		pool:         pool,
		validateOpts: validateOpts,
		breakers:     make(map[string]*CircuitBreaker),
	}
}

// Breaker returns the circuit breaker guarding the endpoint.
func (d *Deliverer) Breaker(endpointID string) *CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.breakers[endpointID]
	if ok {
		return cb
	}

	// Evict an arbitrary entry if at capacity.
	if len(d.breakers) >= maxBreakers {
		for k := range d.breakers {
			delete(d.breakers, k)
			break
		}
	}

	cb = NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    d.config.CBFailThreshold,
		ResetTimeout:        d.config.CBResetTimeout,
		HalfOpenMaxAttempts: 1,
	})
	d.breakers[endpointID] = cb
	return cb
}

// Deliver attempts to POST an event envelope to an endpoint, retrying
// with exponential backoff. Retries outlive the caller's cancellation.
func (d *Deliverer) Deliver(ctx context.Context, ep Endpoint, env events.Envelope) {
	d.deliverWithRetry(context.WithoutCancel(ctx), ep, env, 1)
}

func (d *Deliverer) deliverWithRetry(ctx context.Context, ep Endpoint, env events.Envelope, attempt int) {
	if err := urlvalidation.ValidateWebhookURL(ep.URL, d.validateOpts...); err != nil {
		slog.ErrorContext(ctx, "webhook URL failed SSRF validation",
			slog.String("webhook_id", ep.ID),
			slog.String("url", ep.URL),
			slog.String("error", err.Error()))
		return
	}

	cb := d.Breaker(ep.ID)
	if !cb.AllowRequest() {
		d.handleFailure(ctx, ep, env, attempt, "circuit open")
		return
	}

	body, err := json.Marshal(env)
	if err != nil {
		d.handleFailure(ctx, ep, env, attempt, fmt.Sprintf("marshal: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		d.handleFailure(ctx, ep, env, attempt, fmt.Sprintf("create request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(ep.Secret, body))
	req.Header.Set(EventHeader, string(env.Type))
	req.Header.Set(DeliveryHeader, env.ID)

	start := time.Now()
	resp, err := d.httpClient.Do(req)

	da := &DeliveryAttempt{
		WebhookID:     ep.ID,
		EventID:       env.ID,
		EventType:     string(env.Type),
		SessionID:     env.SessionID,
		RequestBody:   string(body),
		AttemptNumber: attempt,
		DurationMs:    time.Since(start).Milliseconds(),
	}

	if err != nil {
		cb.RecordFailure()
		da.Status = StatusFailed
		da.Error = err.Error()
		d.record(ctx, da)
		d.handleFailure(ctx, ep, env, attempt, da.Error)
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	// Drain remainder for connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	da.ResponseCode = resp.StatusCode
	da.ResponseBody = string(respBody)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		cb.RecordSuccess()
		da.Status = StatusSuccess
		d.record(ctx, da)
		slog.InfoContext(ctx, "webhook delivered",
			slog.String("webhook_id", ep.ID),
			slog.String("event_id", env.ID),
			slog.Int("attempt", attempt))
		return
	}

	cb.RecordFailure()
	da.Status = StatusFailed
	da.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	d.record(ctx, da)
	d.handleFailure(ctx, ep, env, attempt, da.Error)
}

func (d *Deliverer) record(ctx context.Context, da *DeliveryAttempt) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordDelivery(ctx, da); err != nil {
		slog.ErrorContext(ctx, "record delivery failed", slog.String("error", err.Error()))
	}
}

func (d *Deliverer) handleFailure(ctx context.Context, ep Endpoint, env events.Envelope, attempt int, errMsg string) {
	if attempt >= d.config.MaxRetries {
		slog.WarnContext(ctx, "webhook delivery exhausted retries",
			slog.String("webhook_id", ep.ID),
			slog.String("event_id", env.ID),
			slog.String("error", errMsg))
		if d.recorder == nil {
			return
		}
		payload, _ := json.Marshal(env)
		if err := d.recorder.CreateDeadLetter(ctx, &DeadLetter{
			WebhookID:  ep.ID,
			EventID:    env.ID,
			EventType:  string(env.Type),
			Payload:    string(payload),
			LastError:  errMsg,
			Attempts:   attempt,
			Replayable: true,
		}); err != nil {
			slog.ErrorContext(ctx, "create dead letter failed", slog.String("error", err.Error()))
		}
		return
	}

	backoff := Backoff(d.config.BackoffInitial, d.config.BackoffMax, attempt)

	retryFunc := func() {
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.deliverWithRetry(ctx, ep, env, attempt+1)
		}
	}

	if d.pool != nil {
		if err := d.pool.Submit(ctx, retryFunc); err != nil {
			slog.WarnContext(ctx, "retry pool full, dropping retry",
				slog.String("webhook_id", ep.ID),
				slog.Int("attempt", attempt))
		}
	} else {
		time.AfterFunc(backoff, func() {
			d.deliverWithRetry(ctx, ep, env, attempt+1)
		})
	}
}

// Backoff returns the wait before retrying after the given attempt:
// initial doubled per attempt, capped at max.
func Backoff(initial, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := initial
	for range attempt - 1 {
		backoff *= 2
		if max > 0 && backoff >= max {
			return max
		}
	}
	if max > 0 && backoff > max {
		return max
	}
	return backoff
}
