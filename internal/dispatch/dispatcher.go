// Package dispatch runs the scheduled reminder sweep: it finds reminders
// due in the current minute and sends one payload-less web push per
// subscription, signed with the server's VAPID key.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mariannseck-design/mon-khatma/internal/metrics"
	"github.com/mariannseck-design/mon-khatma/internal/models"
	"github.com/mariannseck-design/mon-khatma/internal/vapid"
)

// Mode selects how minute matching is done.
type Mode string

const (
	// ModeWindow fires when the current minute is within Tolerance of the
	// reminder's minute. If the trigger drifts past the window the
	// reminder is skipped for the day.
	ModeWindow Mode = "window"
	// ModeCatchup fires when the reminder is due and has not yet fired
	// today, tracked through the cache. Tolerant of trigger drift.
	ModeCatchup Mode = "catchup"
)

// Store is the slice of persistence the dispatcher needs.
type Store interface {
	DueReminders(ctx context.Context, weekday time.Weekday) ([]models.ReadingReminder, error)
	SubscriptionsForUser(ctx context.Context, userID int) ([]models.PushSubscription, error)
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error
}

// Cache is optional; a nil Cache disables token reuse, catch-up firing
// and the delivery log.
type Cache interface {
	GetToken(ctx context.Context, audience string) (string, error)
	PutToken(ctx context.Context, audience, token string) error
	TryMarkFired(ctx context.Context, reminderID int, date string) (bool, error)
	AddDeliveryRecord(ctx context.Context, rec models.DeliveryRecord) error
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subject is the operator contact claim, e.g. "mailto:admin@example.com".
	Subject string
	Mode    Mode
	// Tolerance is the minute window around the reminder time. Widening
	// it causes duplicate sends when the trigger runs more than once
	// inside the window; narrowing it risks missed sends on drift.
	Tolerance int
}

// Result is the aggregate outcome of one run.
type Result struct {
	Sent   int      `json:"sent"`
	Errors []string `json:"errors,omitempty"`
}

type Dispatcher struct {
	store  Store
	cache  Cache
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func New(s Store, c Cache, cfg Config) *Dispatcher {
	if cfg.Tolerance == 0 {
		cfg.Tolerance = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeWindow
	}
	if cfg.Subject == "" {
		cfg.Subject = "mailto:admin@example.com"
	}
	return &Dispatcher{
		store: s,
		cache: c,
		cfg:   cfg,
		// One unresponsive push-service origin must not stall the run.
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Run performs one sweep. It is stateless and re-entrant: all reminder
// state is read fresh, and a failure on one subscription never aborts
// processing of the rest. Only missing VAPID keys abort the whole run.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	if d.cfg.VAPIDPublicKey == "" || d.cfg.VAPIDPrivateKey == "" {
		return Result{}, fmt.Errorf("vapid keys not configured")
	}

	metrics.DispatchRuns.Inc()

	now := d.now()
	minute := now.Hour()*60 + now.Minute()

	reminders, err := d.store.DueReminders(ctx, now.Weekday())
	if err != nil {
		return Result{}, fmt.Errorf("querying due reminders: %w", err)
	}

	var res Result
	for _, rem := range reminders {
		due, err := d.isDue(ctx, rem, now, minute)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("reminder %d: %v", rem.ID, err))
			continue
		}
		if !due {
			continue
		}

		subs, err := d.store.SubscriptionsForUser(ctx, rem.UserID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("reminder %d: loading subscriptions: %v", rem.ID, err))
			continue
		}

		for _, sub := range subs {
			d.deliver(ctx, rem, sub, &res)
		}
	}

	return res, nil
}

func (d *Dispatcher) isDue(ctx context.Context, rem models.ReadingReminder, now time.Time, minute int) (bool, error) {
	remMinute, err := rem.MinuteOfDay()
	if err != nil {
		return false, err
	}

	diff := minute - remMinute
	if diff < 0 {
		diff = -diff
	}

	if d.cfg.Mode == ModeCatchup && d.cache != nil {
		// Due once its minute has arrived (window slack included), fired
		// at most once per day regardless of trigger cadence.
		if minute+d.cfg.Tolerance < remMinute {
			return false, nil
		}
		first, err := d.cache.TryMarkFired(ctx, rem.ID, now.Format("2006-01-02"))
		if err != nil {
			return false, fmt.Errorf("checking fired marker: %w", err)
		}
		return first, nil
	}

	return diff <= d.cfg.Tolerance, nil
}

func (d *Dispatcher) deliver(ctx context.Context, rem models.ReadingReminder, sub models.PushSubscription, res *Result) {
	audience, err := vapid.Audience(sub.Endpoint)
	if err != nil {
		d.fail(ctx, rem, sub, 0, err.Error(), res)
		return
	}

	token, err := d.token(ctx, audience)
	if err != nil {
		d.fail(ctx, rem, sub, 0, fmt.Sprintf("signing for %s: %v", audience, err), res)
		return
	}

	// Payload-less push: no body, so no message encryption is needed.
	// The service worker renders a default notification.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, strings.NewReader(""))
	if err != nil {
		d.fail(ctx, rem, sub, 0, fmt.Sprintf("building request for %s: %v", sub.Endpoint, err), res)
		return
	}
	req.Header.Set("Authorization", fmt.Sprintf("vapid t=%s, k=%s", token, d.cfg.VAPIDPublicKey))
	req.Header.Set("TTL", "86400")
	req.Header.Set("Content-Length", "0")

	resp, err := d.client.Do(req)
	if err != nil {
		d.fail(ctx, rem, sub, 0, fmt.Sprintf("push to %s: %v", sub.Endpoint, err), res)
		return
	}
	resp.Body.Close()

	switch ClassifyStatus(resp.StatusCode) {
	case OutcomeDelivered:
		res.Sent++
		metrics.PushesSent.Inc()
		d.record(ctx, rem, sub, resp.StatusCode, true, "")
	case OutcomeGone:
		// The push service says this endpoint no longer exists; the row
		// is stale and gets dropped.
		if err := d.store.DeleteSubscriptionByEndpoint(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete stale subscription %s: %v", sub.Endpoint, err)
		}
		metrics.StaleSubscriptionsRemoved.Inc()
		d.record(ctx, rem, sub, resp.StatusCode, false, "subscription gone, removed")
	default:
		d.fail(ctx, rem, sub, resp.StatusCode, fmt.Sprintf("push to %s failed with status %d", sub.Endpoint, resp.StatusCode), res)
	}
}

// token returns a signed JWT for the origin, reusing a cached one when
// its validity window allows.
func (d *Dispatcher) token(ctx context.Context, audience string) (string, error) {
	if d.cache != nil {
		if cached, err := d.cache.GetToken(ctx, audience); err == nil && cached != "" {
			return cached, nil
		}
	}

	token, err := vapid.Sign(audience, d.cfg.Subject, d.cfg.VAPIDPrivateKey, d.cfg.VAPIDPublicKey)
	if err != nil {
		return "", err
	}

	if d.cache != nil {
		if err := d.cache.PutToken(ctx, audience, token); err != nil {
			log.Printf("Failed to cache vapid token for %s: %v", audience, err)
		}
	}
	return token, nil
}

func (d *Dispatcher) fail(ctx context.Context, rem models.ReadingReminder, sub models.PushSubscription, status int, msg string, res *Result) {
	res.Errors = append(res.Errors, msg)
	metrics.PushErrors.Inc()
	d.record(ctx, rem, sub, status, false, msg)
}

func (d *Dispatcher) record(ctx context.Context, rem models.ReadingReminder, sub models.PushSubscription, status int, ok bool, note string) {
	if d.cache == nil {
		return
	}
	err := d.cache.AddDeliveryRecord(ctx, models.DeliveryRecord{
		UserID:     rem.UserID,
		ReminderID: rem.ID,
		Endpoint:   sub.Endpoint,
		StatusCode: status,
		OK:         ok,
		Note:       note,
	})
	if err != nil {
		log.Printf("Failed to record delivery outcome: %v", err)
	}
}
