// Package registrar negotiates a push subscription against the server's
// key provider and subscribe API on behalf of a client installation. The
// platform push API (permission prompt, subscription creation) is
// abstracted behind the Platform interface.
package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/mariannseck-design/mon-khatma/internal/vapid"
)

var (
	// ErrKeyFetch means the key provider call failed or returned an
	// implausibly short key.
	ErrKeyFetch = errors.New("registrar: fetching public key")

	// ErrPushUnsupported means the deployment has no VAPID key; push is
	// off and no subscription attempt is made.
	ErrPushUnsupported = errors.New("registrar: push not supported on this deployment")

	// ErrPermissionDenied means the user declined notification permission.
	ErrPermissionDenied = errors.New("registrar: notification permission denied")
)

// State tracks the one-shot registration lifecycle. A Registrar attempts
// registration at most once; repeated Register calls report the stored
// outcome instead of re-prompting the user.
type State int

const (
	StateNotAttempted State = iota
	StateInProgress
	StateSubscribed
	StateFailed
)

// Subscription is the platform push subscription: an opaque endpoint and
// the two base64url key materials the push service handed out.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Platform abstracts the browser push API.
type Platform interface {
	// Existing returns the current subscription for this installation,
	// or nil when there is none.
	Existing(ctx context.Context) (*Subscription, error)
	// RequestPermission prompts for notification permission.
	RequestPermission(ctx context.Context) (bool, error)
	// Subscribe creates a subscription bound to the 65-byte raw
	// application server key.
	Subscribe(ctx context.Context, applicationServerKey []byte) (*Subscription, error)
}

type Registrar struct {
	baseURL  string
	client   *http.Client
	platform Platform

	mu      sync.Mutex
	state   State
	lastErr error
}

// New builds a Registrar against the server at baseURL. Pass an
// http.Client carrying the session cookie; nil uses the default client.
func New(baseURL string, platform Platform, client *http.Client) *Registrar {
	if client == nil {
		client = http.DefaultClient
	}
	return &Registrar{baseURL: baseURL, client: client, platform: platform}
}

func (r *Registrar) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Register runs the whole flow once: fetch key, ensure a platform
// subscription, persist it server-side. Subsequent calls return the
// stored outcome without another attempt.
func (r *Registrar) Register(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateSubscribed:
		r.mu.Unlock()
		return nil
	case StateInProgress, StateFailed:
		err := r.lastErr
		r.mu.Unlock()
		return err
	}
	r.state = StateInProgress
	r.mu.Unlock()

	err := r.register(ctx)

	r.mu.Lock()
	if err != nil {
		r.state = StateFailed
		r.lastErr = err
	} else {
		r.state = StateSubscribed
	}
	r.mu.Unlock()
	return err
}

func (r *Registrar) register(ctx context.Context) error {
	key, err := r.FetchPublicKey(ctx)
	if err != nil {
		return err
	}

	rawKey, err := vapid.DecodePublicKey(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	sub, err := r.ensureSubscription(ctx, rawKey)
	if err != nil {
		return err
	}

	return r.Persist(ctx, sub)
}

// FetchPublicKey calls the key provider. An empty key means push is not
// provisioned on this deployment (ErrPushUnsupported, degrade quietly);
// a short one is rejected as a sanity check, not cryptographic validation.
func (r *Registrar) FetchPublicKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/push/key", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrKeyFetch, resp.StatusCode)
	}

	var body struct {
		VapidPublicKey string `json:"vapidPublicKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	if body.VapidPublicKey == "" {
		return "", ErrPushUnsupported
	}
	if len(body.VapidPublicKey) < 20 {
		return "", fmt.Errorf("%w: key is implausibly short", ErrKeyFetch)
	}

	return body.VapidPublicKey, nil
}

// ensureSubscription is idempotent: an existing platform subscription is
// reused; otherwise permission is requested and a new one created.
func (r *Registrar) ensureSubscription(ctx context.Context, applicationServerKey []byte) (*Subscription, error) {
	existing, err := r.platform.Existing(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking existing subscription: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	granted, err := r.platform.RequestPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting permission: %w", err)
	}
	if !granted {
		return nil, ErrPermissionDenied
	}

	sub, err := r.platform.Subscribe(ctx, applicationServerKey)
	if err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}
	return sub, nil
}

// Persist upserts the subscription server-side, keyed by endpoint.
func (r *Registrar) Persist(ctx context.Context, sub *Subscription) error {
	payload, err := json.Marshal(map[string]any{
		"endpoint": sub.Endpoint,
		"keys": map[string]string{
			"p256dh": sub.P256dh,
			"auth":   sub.Auth,
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/push/subscribe", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("saving subscription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("saving subscription: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
