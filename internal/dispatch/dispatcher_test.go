package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariannseck-design/mon-khatma/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	reminders []models.ReadingReminder
	subs      map[int][]models.PushSubscription
	deleted   []string
}

func (f *fakeStore) DueReminders(_ context.Context, weekday time.Weekday) ([]models.ReadingReminder, error) {
	// Mirrors the SQL coarse filter: enabled and scheduled for today.
	var due []models.ReadingReminder
	for _, r := range f.reminders {
		if r.IsEnabled && r.FiresOn(weekday) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (f *fakeStore) SubscriptionsForUser(_ context.Context, userID int) ([]models.PushSubscription, error) {
	return f.subs[userID], nil
}

func (f *fakeStore) DeleteSubscriptionByEndpoint(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	tokens  map[string]string
	fired   map[string]bool
	records []models.DeliveryRecord
}

func newFakeCache() *fakeCache {
	return &fakeCache{tokens: map[string]string{}, fired: map[string]bool{}}
}

func (c *fakeCache) GetToken(_ context.Context, audience string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[audience], nil
}

func (c *fakeCache) PutToken(_ context.Context, audience, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[audience] = token
	return nil
}

func (c *fakeCache) TryMarkFired(_ context.Context, reminderID int, date string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fmt.Sprintf("%d:%s", reminderID, date)
	if c.fired[key] {
		return false, nil
	}
	c.fired[key] = true
	return true, nil
}

func (c *fakeCache) AddDeliveryRecord(_ context.Context, rec models.DeliveryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return Config{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		Subject:         "mailto:ops@example.com",
	}
}

// newDispatcher pins the clock to a fixed instant.
func newDispatcher(t *testing.T, s Store, c Cache, cfg Config, now time.Time) *Dispatcher {
	t.Helper()
	d := New(s, c, cfg)
	d.now = func() time.Time { return now }
	return d
}

func pushServer(t *testing.T, status int) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRunRequiresKeys(t *testing.T) {
	d := New(&fakeStore{}, nil, Config{})
	_, err := d.Run(context.Background())
	require.Error(t, err)
}

func TestDayAndTimeMatching(t *testing.T) {
	srv, hits := pushServer(t, http.StatusCreated)

	// 2024-01-03 is a Wednesday (weekday 3), 2024-01-02 a Tuesday.
	wednesday := func(hour, minute int) time.Time {
		return time.Date(2024, 1, 3, hour, minute, 30, 0, time.UTC)
	}
	tuesday := time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		wantSent int
	}{
		{"one minute early", wednesday(17, 59), 1},
		{"exact minute", wednesday(18, 0), 1},
		{"one minute late", wednesday(18, 1), 1},
		{"two minutes late", wednesday(18, 2), 0},
		{"two minutes early", wednesday(17, 58), 0},
		{"wrong weekday", tuesday, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeStore{
				reminders: []models.ReadingReminder{{
					ID: 1, UserID: 7, ReminderTime: "18:00", IsEnabled: true,
					DaysOfWeek: []int64{1, 3, 5},
				}},
				subs: map[int][]models.PushSubscription{
					7: {{ID: 1, UserID: 7, Endpoint: srv.URL + "/push/abc"}},
				},
			}

			*hits = 0
			d := newDispatcher(t, fs, nil, testConfig(t), tt.now)
			res, err := d.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantSent, res.Sent)
			assert.Equal(t, tt.wantSent, *hits)
			assert.Empty(t, res.Errors)
		})
	}
}

func TestDisabledReminderNeverFires(t *testing.T) {
	srv, hits := pushServer(t, http.StatusOK)

	fs := &fakeStore{
		reminders: []models.ReadingReminder{{
			ID: 1, UserID: 7, ReminderTime: "18:00", IsEnabled: false,
			DaysOfWeek: []int64{3},
		}},
		subs: map[int][]models.PushSubscription{
			7: {{ID: 1, UserID: 7, Endpoint: srv.URL + "/push/abc"}},
		},
	}

	d := newDispatcher(t, fs, nil, testConfig(t), time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC))
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.Zero(t, *hits)
}

func TestPartialFailureIsolation(t *testing.T) {
	okA, hitsA := pushServer(t, http.StatusOK)
	failB, hitsB := pushServer(t, http.StatusInternalServerError)
	okC, hitsC := pushServer(t, http.StatusCreated)

	fs := &fakeStore{
		reminders: []models.ReadingReminder{{
			ID: 1, UserID: 7, ReminderTime: "06:30", IsEnabled: true,
			DaysOfWeek: []int64{0, 1, 2, 3, 4, 5, 6},
		}},
		subs: map[int][]models.PushSubscription{
			7: {
				{ID: 1, UserID: 7, Endpoint: okA.URL + "/push/a"},
				{ID: 2, UserID: 7, Endpoint: failB.URL + "/push/b"},
				{ID: 3, UserID: 7, Endpoint: okC.URL + "/push/c"},
			},
		},
	}

	d := newDispatcher(t, fs, nil, testConfig(t), time.Date(2024, 1, 3, 6, 30, 0, 0, time.UTC))
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	// B's 500 must not stop A or C, and must not delete B's row.
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, *hitsA)
	assert.Equal(t, 1, *hitsB)
	assert.Equal(t, 1, *hitsC)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], failB.URL)
	assert.Contains(t, res.Errors[0], "500")
	assert.Empty(t, fs.deleted)
}

func TestGoneSubscriptionDeleted(t *testing.T) {
	gone, _ := pushServer(t, http.StatusGone)

	endpoint := gone.URL + "/push/stale"
	fs := &fakeStore{
		reminders: []models.ReadingReminder{{
			ID: 1, UserID: 7, ReminderTime: "06:30", IsEnabled: true,
			DaysOfWeek: []int64{0, 1, 2, 3, 4, 5, 6},
		}},
		subs: map[int][]models.PushSubscription{
			7: {{ID: 1, UserID: 7, Endpoint: endpoint}},
		},
	}

	d := newDispatcher(t, fs, nil, testConfig(t), time.Date(2024, 1, 3, 6, 30, 0, 0, time.UTC))
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.Sent)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{endpoint}, fs.deleted)
}

func TestPushRequestShape(t *testing.T) {
	cfg := testConfig(t)

	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body = make([]byte, 16)
		n, _ := r.Body.Read(body)
		body = body[:n]
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	fs := &fakeStore{
		reminders: []models.ReadingReminder{{
			ID: 1, UserID: 7, ReminderTime: "06:30", IsEnabled: true,
			DaysOfWeek: []int64{0, 1, 2, 3, 4, 5, 6},
		}},
		subs: map[int][]models.PushSubscription{
			7: {{ID: 1, UserID: 7, Endpoint: srv.URL + "/push/abc"}},
		},
	}

	d := newDispatcher(t, fs, nil, cfg, time.Date(2024, 1, 3, 6, 30, 0, 0, time.UTC))
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Sent)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "86400", got.Header.Get("TTL"))
	assert.Empty(t, body, "push must be payload-less")

	auth := got.Header.Get("Authorization")
	assert.True(t, len(auth) > 0)
	assert.Contains(t, auth, "vapid t=")
	assert.Contains(t, auth, ", k="+cfg.VAPIDPublicKey)
}

func TestTokenReusedPerOrigin(t *testing.T) {
	srv, _ := pushServer(t, http.StatusOK)

	fs := &fakeStore{
		reminders: []models.ReadingReminder{{
			ID: 1, UserID: 7, ReminderTime: "06:30", IsEnabled: true,
			DaysOfWeek: []int64{0, 1, 2, 3, 4, 5, 6},
		}},
		subs: map[int][]models.PushSubscription{
			7: {
				{ID: 1, UserID: 7, Endpoint: srv.URL + "/push/one"},
				{ID: 2, UserID: 7, Endpoint: srv.URL + "/push/two"},
			},
		},
	}

	cache := newFakeCache()
	d := newDispatcher(t, fs, cache, testConfig(t), time.Date(2024, 1, 3, 6, 30, 0, 0, time.UTC))
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)

	// Both endpoints share an origin, so exactly one token was signed.
	assert.Len(t, cache.tokens, 1)
	assert.Len(t, cache.records, 2)
}

func TestCatchupModeFiresOnceAfterWindow(t *testing.T) {
	srv, hits := pushServer(t, http.StatusOK)

	fs := &fakeStore{
		reminders: []models.ReadingReminder{{
			ID: 1, UserID: 7, ReminderTime: "06:30", IsEnabled: true,
			DaysOfWeek: []int64{0, 1, 2, 3, 4, 5, 6},
		}},
		subs: map[int][]models.PushSubscription{
			7: {{ID: 1, UserID: 7, Endpoint: srv.URL + "/push/abc"}},
		},
	}

	cfg := testConfig(t)
	cfg.Mode = ModeCatchup
	cache := newFakeCache()

	// The trigger drifted 40 minutes past the reminder time: window mode
	// would skip for the day, catch-up mode still fires once.
	late := time.Date(2024, 1, 3, 7, 10, 0, 0, time.UTC)
	d := newDispatcher(t, fs, cache, cfg, late)

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	// A second run in the same day must not fire again.
	res, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.Equal(t, 1, *hits)

	// Not yet due: a run before the reminder time fires nothing.
	early := time.Date(2024, 1, 4, 5, 0, 0, 0, time.UTC)
	d2 := newDispatcher(t, fs, cache, cfg, early)
	res, err = d2.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeDelivered},
		{201, OutcomeDelivered},
		{404, OutcomeGone},
		{410, OutcomeGone},
		{400, OutcomeFailed},
		{401, OutcomeFailed},
		{429, OutcomeFailed},
		{500, OutcomeFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatus(tt.status), "status %d", tt.status)
	}
}

func TestUnreachableEndpointIsTransientError(t *testing.T) {
	fs := &fakeStore{
		reminders: []models.ReadingReminder{{
			ID: 1, UserID: 7, ReminderTime: "06:30", IsEnabled: true,
			DaysOfWeek: []int64{0, 1, 2, 3, 4, 5, 6},
		}},
		subs: map[int][]models.PushSubscription{
			7: {{ID: 1, UserID: 7, Endpoint: "http://127.0.0.1:1/push/nope"}},
		},
	}

	d := newDispatcher(t, fs, nil, testConfig(t), time.Date(2024, 1, 3, 6, 30, 0, 0, time.UTC))
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.Sent)
	require.Len(t, res.Errors, 1)
	// Network failure is not proof of staleness; the row stays.
	assert.Empty(t, fs.deleted)
}
