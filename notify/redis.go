package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"crm-clients/logger"
	"crm-clients/utils"
)

const redisKeyPrefix = "crm:toast:"

// Redis stores notifications as expiring keys so several processes share one feed.
type Redis struct {
	client utils.RedisClient
	ttl    time.Duration
}

func NewRedis(client utils.RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Notify(message string, severity Severity) {
	n := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	}
	payload, err := json.Marshal(n)
	if err != nil {
		logger.L().Error("failed to marshal notification", zap.Error(err))
		return
	}
	if err := r.client.SetToCache(context.Background(), redisKeyPrefix+n.ID, string(payload), r.ttl); err != nil {
		logger.L().Warn("failed to store notification", zap.Error(err))
	}
}

func (r *Redis) Active(ctx context.Context) []Notification {
	keys, err := r.client.ScanKeys(ctx, redisKeyPrefix+"*")
	if err != nil {
		logger.From(ctx).Warn("failed to list notifications", zap.Error(err))
		return []Notification{}
	}

	out := make([]Notification, 0, len(keys))
	for _, key := range keys {
		raw, err := r.client.GetFromCache(ctx, key)
		if errors.Is(err, redis.Nil) {
			// expired between scan and get
			continue
		}
		if err != nil {
			logger.From(ctx).Warn("failed to read notification", zap.String("key", key), zap.Error(err))
			continue
		}
		var n Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	sortByCreated(out)
	return out
}
