package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mariannseck-design/mon-khatma/internal/models"
	"github.com/mariannseck-design/mon-khatma/internal/vapid"

	"github.com/redis/go-redis/v9"
)

const (
	// Cached tokens expire an hour before the JWT itself so a cache hit
	// is never a token the push service is about to reject.
	tokenTTL = vapid.TokenLifetime - time.Hour

	firedMarkerTTL = 36 * time.Hour
	deliveryLogTTL = 30 * 24 * time.Hour // 30 days
)

// RedisStore caches signed VAPID tokens per push-service origin, tracks
// which reminders already fired today, and keeps a short-lived delivery
// log per user.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	rdb := redis.NewClient(opts)
	return &RedisStore{client: rdb}
}

// GetToken returns the cached JWT for a push-service origin, or "" on miss.
func (s *RedisStore) GetToken(ctx context.Context, audience string) (string, error) {
	val, err := s.client.Get(ctx, "vapid:token:"+audience).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (s *RedisStore) PutToken(ctx context.Context, audience, token string) error {
	return s.client.Set(ctx, "vapid:token:"+audience, token, tokenTTL).Err()
}

// TryMarkFired records that a reminder fired on the given date (YYYY-MM-DD)
// and reports whether this call was the first to do so.
func (s *RedisStore) TryMarkFired(ctx context.Context, reminderID int, date string) (bool, error) {
	key := fmt.Sprintf("reminder:fired:%d:%s", reminderID, date)
	return s.client.SetNX(ctx, key, 1, firedMarkerTTL).Result()
}

// AddDeliveryRecord appends a push outcome to the owner's delivery log.
func (s *RedisStore) AddDeliveryRecord(ctx context.Context, rec models.DeliveryRecord) error {
	id, err := s.client.Incr(ctx, "delivery:next_id").Result()
	if err != nil {
		return err
	}

	rec.ID = int(id)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("delivery:%d", rec.ID)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, deliveryLogTTL)
	pipe.ZAdd(ctx, fmt.Sprintf("deliveries:user:%d", rec.UserID), redis.Z{
		Score:  float64(rec.CreatedAt.Unix()),
		Member: key,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// DeliveryRecords returns the user's recent push outcomes, newest first.
func (s *RedisStore) DeliveryRecords(ctx context.Context, userID int) ([]models.DeliveryRecord, error) {
	timeline := fmt.Sprintf("deliveries:user:%d", userID)
	keys, err := s.client.ZRevRange(ctx, timeline, 0, 99).Result()
	if err != nil {
		return nil, err
	}

	var records []models.DeliveryRecord
	for _, key := range keys {
		val, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			// Record expired, remove from timeline
			s.client.ZRem(ctx, timeline, key)
			continue
		} else if err != nil {
			continue
		}

		var rec models.DeliveryRecord
		if err := json.Unmarshal([]byte(val), &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records, nil
}
