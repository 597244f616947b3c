package synclog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisLog implements ActionLog on a per-company sorted set scored by the
// action timestamp.
type RedisLog struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisLog creates a Redis-backed action log.
func NewRedisLog(rdb *redis.Client, logger *slog.Logger) *RedisLog {
	return &RedisLog{
		rdb:    rdb,
		logger: logger,
	}
}

func actionsKey(companyID string) string {
	return fmt.Sprintf("sync:%s:actions", companyID)
}

func (l *RedisLog) Store(ctx context.Context, action Action) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal sync action: %w", err)
	}

	key := actionsKey(action.CompanyID)

	// Append, trim to the newest MaxActionsPerCompany, refresh expiry. Not
	// transactional; a crash between steps leaves the key slightly over the
	// cap or with a stale TTL, which the soft bounds tolerate.
	pipe := l.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(action.Timestamp), Member: data})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-(MaxActionsPerCompany + 1)))
	pipe.Expire(ctx, key, ActionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store sync action: %w", err)
	}

	return nil
}

func (l *RedisLog) MissedSince(ctx context.Context, companyID string, since int64) ([]Action, error) {
	members, err := l.rdb.ZRangeByScore(ctx, actionsKey(companyID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sync actions: %w", err)
	}

	actions := make([]Action, 0, len(members))
	for _, member := range members {
		var action Action
		if err := json.Unmarshal([]byte(member), &action); err != nil {
			l.logger.Warn("Skipping undecodable sync action",
				slog.String("company_id", companyID),
				slog.String("error", err.Error()),
			)
			continue
		}
		actions = append(actions, action)
	}

	return actions, nil
}
