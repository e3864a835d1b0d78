// Package archive persists summaries of evicted sessions to Redis so
// dashboards can review resolved exam attempts after the live store has
// released them.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"examwatch/pkg/models"
)

// RedisConfig configures Redis access for session archival.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Summary is the compact archived view of a resolved session.
type Summary struct {
	SessionID  string    `json:"session_id"`
	FusedScore int       `json:"fused_score"`
	RiskLevel  string    `json:"risk_level"`
	Triggers   []string  `json:"triggers,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// RedisStore writes and reads archived session summaries.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed archive store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "examwatch:archive"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis archive: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// ArchiveSessions stores summaries for a batch of evicted sessions.
func (s *RedisStore) ArchiveSessions(snapshots []models.SessionSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	ctx := context.Background()
	pipe := s.client.Pipeline()

	for _, snap := range snapshots {
		if strings.TrimSpace(snap.SessionID) == "" {
			continue
		}
		triggers, err := json.Marshal(snap.ActiveTriggers)
		if err != nil {
			triggers = []byte("[]")
		}
		resolved := snap.LastSeenAt
		key := s.sessionKey(snap.SessionID)

		pipe.HSet(ctx, key,
			"session_id", snap.SessionID,
			"fused_score", strconv.Itoa(snap.FusedScore),
			"risk_level", string(snap.RiskLevel),
			"triggers", string(triggers),
			"created_at", strconv.FormatInt(snap.CreatedAt.Unix(), 10),
			"resolved_at", strconv.FormatInt(resolved.Unix(), 10),
		)
		pipe.ZAdd(ctx, s.resolvedSetKey(), redis.Z{
			Score:  float64(resolved.Unix()),
			Member: snap.SessionID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("archive session summaries: %w", err)
	}
	return nil
}

// FetchResolvedSince returns summaries of sessions resolved since the given
// time, newest limit entries.
func (s *RedisStore) FetchResolvedSince(since time.Time, limit int64) ([]Summary, error) {
	if limit <= 0 {
		limit = 500
	}
	ctx := context.Background()
	ids, err := s.client.ZRangeByScore(ctx, s.resolvedSetKey(), &redis.ZRangeBy{
		Min:    fmt.Sprintf("%d", since.Unix()),
		Max:    "+inf",
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read resolved session ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		hash, err := s.client.HGetAll(ctx, s.sessionKey(id)).Result()
		if err != nil || len(hash) == 0 {
			continue
		}

		score, _ := strconv.Atoi(hash["fused_score"])
		createdUnix, _ := strconv.ParseInt(hash["created_at"], 10, 64)
		resolvedUnix, _ := strconv.ParseInt(hash["resolved_at"], 10, 64)

		var triggers []string
		if raw := hash["triggers"]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &triggers)
		}

		sum := Summary{
			SessionID:  id,
			FusedScore: score,
			RiskLevel:  hash["risk_level"],
			Triggers:   triggers,
		}
		if createdUnix > 0 {
			sum.CreatedAt = time.Unix(createdUnix, 0).UTC()
		}
		if resolvedUnix > 0 {
			sum.ResolvedAt = time.Unix(resolvedUnix, 0).UTC()
		}
		out = append(out, sum)
	}

	return out, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.prefix + ":session:" + sessionID
}

func (s *RedisStore) resolvedSetKey() string {
	return s.prefix + ":resolved"
}
