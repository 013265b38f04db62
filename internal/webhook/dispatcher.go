package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	errs "github.com/frahmantamala/recurpay/internal"
	webhookdm "github.com/frahmantamala/recurpay/internal/core/datamodel/webhook"
	"github.com/frahmantamala/recurpay/internal/core/events"
	"github.com/frahmantamala/recurpay/pkg/delay"
	"github.com/frahmantamala/recurpay/pkg/redislock"
)

const sweepLockKey = "webhook-sweep"

var ErrSweepInProgress = errors.New("webhook: another sweep is running")

type Config struct {
	Timeout    time.Duration
	BatchSize  int
	InterDelay time.Duration
	LockTTL    time.Duration
}

type SweepSummary struct {
	Processed    int `json:"processed"`
	Delivered    int `json:"delivered"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
}

type Dispatcher struct {
	repo          RepositoryAPI
	organizations OrganizationSource
	client        *http.Client
	locker        redislock.Locker
	cfg           Config
	now           func() time.Time
	logger        *slog.Logger
}

func NewDispatcher(repo RepositoryAPI, organizations OrganizationSource, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Dispatcher{
		repo:          repo,
		organizations: organizations,
		client:        &http.Client{Timeout: cfg.Timeout},
		locker:        redislock.Noop{},
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// WithLocker serializes sweeps across processes.
func (d *Dispatcher) WithLocker(locker redislock.Locker) *Dispatcher {
	if locker != nil {
		d.locker = locker
	}
	return d
}

// Queue persists a pending notification. Delivery happens on the next sweep.
func (d *Dispatcher) Queue(ctx context.Context, organizationID, eventType string, data map[string]interface{}) (*webhookdm.Webhook, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	now := d.now()
	payload, err := json.Marshal(Envelope{Event: eventType, Timestamp: now, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	w := &webhookdm.Webhook{
		OrganizationID: organizationID,
		EventType:      eventType,
		Payload:        payload,
		Status:         webhookdm.StatusPending,
		NextAttemptAt:  now,
	}
	if err := d.repo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to queue webhook: %w", err)
	}

	d.logger.Debug("webhook queued", "webhook_id", w.ID, "organization_id", organizationID, "event_type", eventType)
	return w, nil
}

// DeliverOne makes a single delivery attempt. The bool reports a 2xx response; the error is
// reserved for ledger failures.
func (d *Dispatcher) DeliverOne(ctx context.Context, w *webhookdm.Webhook) (bool, error) {
	log := d.logger.With("webhook_id", w.ID, "organization_id", w.OrganizationID, "event_type", w.EventType)

	if w.DeadLettered() || w.Status == webhookdm.StatusSent {
		return w.Status == webhookdm.StatusSent, nil
	}
	if w.RetryCount >= MaxAttempts {
		log.Warn("webhook exceeded max attempts", "retry_count", w.RetryCount)
		return false, d.repo.DeadLetter(ctx, w.ID, "max attempts reached", d.now())
	}

	org, err := d.organizations.GetOrganization(ctx, w.OrganizationID)
	if err != nil {
		return false, fmt.Errorf("failed to load organization: %w", err)
	}
	if !org.HasWebhook() {
		log.Warn("webhook url not configured; dead-lettering")
		return false, d.repo.DeadLetter(ctx, w.ID, ErrMissingEndpoint.Error(), d.now())
	}

	attempt := d.post(ctx, org.WebhookURL, org.WebhookSecret, w)

	if attempt.StatusCode != nil && *attempt.StatusCode >= 200 && *attempt.StatusCode < 300 {
		if err := d.repo.MarkSent(ctx, w.ID, attempt); err != nil {
			return true, fmt.Errorf("failed to mark webhook sent: %w", err)
		}
		log.Info("webhook delivered", "status", *attempt.StatusCode, "attempt", w.RetryCount+1)
		return true, nil
	}

	failures := w.RetryCount + 1
	log.Warn("webhook delivery failed", "attempt", failures, "response", attempt.Body)

	if failures >= MaxAttempts {
		if err := d.repo.MarkFailed(ctx, w.ID, attempt, attempt.At); err != nil {
			return false, fmt.Errorf("failed to mark webhook failed: %w", err)
		}
		return false, d.repo.DeadLetter(ctx, w.ID, attempt.Body, attempt.At)
	}
	if err := d.repo.MarkFailed(ctx, w.ID, attempt, attempt.At.Add(Backoff(failures))); err != nil {
		return false, fmt.Errorf("failed to mark webhook failed: %w", err)
	}
	return false, nil
}

func (d *Dispatcher) post(ctx context.Context, url, secret string, w *webhookdm.Webhook) Attempt {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(w.Payload))
	if err != nil {
		return Attempt{Body: truncate(err.Error()), At: d.now()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, Sign(w.Payload, secret))
	req.Header.Set(HeaderEvent, w.EventType)
	req.Header.Set(HeaderID, w.ID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(d.now().Unix(), 10))

	resp, err := d.client.Do(req)
	if err != nil {
		return Attempt{Body: truncate(err.Error()), At: d.now()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+utf8.UTFMax))
	status := resp.StatusCode
	return Attempt{StatusCode: &status, Body: truncate(string(body)), At: d.now()}
}

// Sweep delivers due webhooks one at a time. A failed row never aborts the batch.
func (d *Dispatcher) Sweep(ctx context.Context, batchSize int) (SweepSummary, error) {
	if batchSize <= 0 {
		batchSize = d.cfg.BatchSize
	}

	lock, err := d.locker.Acquire(ctx, sweepLockKey, d.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			return SweepSummary{}, ErrSweepInProgress
		}
		return SweepSummary{}, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			d.logger.Warn("failed to release sweep lock", "error", err)
		}
	}()

	due, err := d.repo.FindDeliverable(ctx, d.now(), batchSize)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("failed to load deliverable webhooks: %w", err)
	}

	var summary SweepSummary
	for i, w := range due {
		if i > 0 {
			if err := delay.For(ctx, d.cfg.InterDelay); err != nil {
				return summary, err
			}
		}
		summary.Processed++

		itemCtx := context.WithoutCancel(ctx)
		if w.RetryCount >= MaxAttempts {
			if err := d.repo.DeadLetter(itemCtx, w.ID, "max attempts reached", d.now()); err != nil {
				d.logger.Error("failed to dead-letter webhook", "error", err, "webhook_id", w.ID)
			}
			summary.DeadLettered++
			continue
		}

		ok, err := d.DeliverOne(itemCtx, w)
		if err != nil {
			d.logger.Error("webhook delivery error", "error", err, "webhook_id", w.ID)
		}
		if ok {
			summary.Delivered++
		} else {
			summary.Failed++
		}
	}

	if summary.Processed > 0 {
		d.logger.Info("webhook sweep finished",
			"processed", summary.Processed,
			"delivered", summary.Delivered,
			"failed", summary.Failed,
			"dead_lettered", summary.DeadLettered)
	}
	return summary, nil
}

// SendTest queues a payment.test event and attempts delivery right away.
func (d *Dispatcher) SendTest(ctx context.Context, organizationID string) (*webhookdm.Webhook, bool, error) {
	org, err := d.organizations.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, false, err
	}
	if !org.HasWebhook() {
		return nil, false, errs.NewValidationError("organization has no webhook url configured", errs.ErrCodeWebhookMissing)
	}

	w, err := d.Queue(ctx, organizationID, events.EventTypePaymentTest, map[string]interface{}{
		"message": "This is a test webhook",
	})
	if err != nil {
		return nil, false, err
	}

	ok, err := d.DeliverOne(ctx, w)
	if err != nil {
		return w, false, err
	}

	stored, err := d.repo.GetByID(ctx, w.ID)
	if err != nil {
		return w, ok, nil
	}
	return stored, ok, nil
}

// RegisterHandlers queues a webhook for every merchant-facing event published on the bus.
func (d *Dispatcher) RegisterHandlers(bus *events.EventBus) {
	bus.SubscribeMany(events.MerchantEventTypes, func(ctx context.Context, event events.Event) error {
		orgEvent, ok := event.(events.OrganizationEvent)
		if !ok {
			return errors.New("webhook: event is not scoped to an organization")
		}
		data, _ := event.Payload().(map[string]interface{})
		_, err := d.Queue(ctx, orgEvent.OrganizationID(), event.EventType(), data)
		return err
	})
}
