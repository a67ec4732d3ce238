package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps session state in a Redis hash so recovery works across
// processes on the same machine or a shared host.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: rdb}
}

// NewRedisWithClient wraps an existing client, used by tests.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) SaveSession(ctx context.Context, rec SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if err := s.client.HSet(ctx, KeyActiveSessions, rec.SessionID, data).Err(); err != nil {
		return fmt.Errorf("hset session: %w", err)
	}
	return nil
}

func (s *Redis) ActiveSessions(ctx context.Context) ([]SessionRecord, error) {
	entries, err := s.client.HGetAll(ctx, KeyActiveSessions).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall sessions: %w", err)
	}
	recs := make([]SessionRecord, 0, len(entries))
	for id, raw := range entries {
		var rec SessionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// a corrupt entry must not poison recovery of the others
			_ = s.client.HDel(ctx, KeyActiveSessions, id).Err()
			continue
		}
		recs = append(recs, rec)
	}
	return sortRecords(filterFresh(recs, time.Now())), nil
}

func (s *Redis) RemoveSession(ctx context.Context, sessionID string) error {
	if err := s.client.HDel(ctx, KeyActiveSessions, sessionID).Err(); err != nil {
		return fmt.Errorf("hdel session: %w", err)
	}
	return nil
}

func (s *Redis) UpdateProgress(ctx context.Context, sessionID string, snap ProgressSnapshot) error {
	raw, err := s.client.HGet(ctx, KeyActiveSessions, sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("hget session: %w", err)
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("decode session record: %w", err)
	}
	rec.Progress = snap
	rec.LastUpdate = time.Now()
	if snap.Status != "" {
		rec.Status = snap.Status
	}
	return s.SaveSession(ctx, rec)
}

func (s *Redis) MarkForRestore(ctx context.Context, sessionID string) error {
	if err := s.client.Set(ctx, KeyRestoreSession, sessionID, RetentionWindow).Err(); err != nil {
		return fmt.Errorf("set restore marker: %w", err)
	}
	return nil
}

func (s *Redis) ConsumeRestoreMarker(ctx context.Context) (string, error) {
	marker, err := s.client.GetDel(ctx, KeyRestoreSession).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("getdel restore marker: %w", err)
	}
	return marker, nil
}

func (s *Redis) SetNotificationPermission(ctx context.Context, granted bool) error {
	if err := s.client.Set(ctx, KeyNotificationPermission, granted, 0).Err(); err != nil {
		return fmt.Errorf("set notification permission: %w", err)
	}
	return nil
}

func (s *Redis) NotificationPermission(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, KeyNotificationPermission).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get notification permission: %w", err)
	}
	return val == "1" || val == "true", nil
}
