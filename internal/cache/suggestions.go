// Package cache holds read-through caches for read-mostly catalog data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aitoolflow/engine/internal/models"
	"github.com/aitoolflow/engine/pkg/logger"
)

// SuggestionCache stores resolved suggestion lists per node and limit.
// Implementations never fail loudly: a miss is always an acceptable answer.
type SuggestionCache interface {
	Get(ctx context.Context, nodeID uuid.UUID, limit int) ([]models.AITool, bool)
	Set(ctx context.Context, nodeID uuid.UUID, limit int, tools []models.AITool)
	Invalidate(ctx context.Context, nodeIDs ...uuid.UUID)
}

// Nop is used when Redis is not configured.
type Nop struct{}

func (Nop) Get(context.Context, uuid.UUID, int) ([]models.AITool, bool) { return nil, false }
func (Nop) Set(context.Context, uuid.UUID, int, []models.AITool)        {}
func (Nop) Invalidate(context.Context, ...uuid.UUID)                    {}

// RedisSuggestionCache keeps one hash per node, one field per limit, so a
// single DEL drops every cached variant of a node.
type RedisSuggestionCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisSuggestionCache(client redis.UniversalClient, ttl time.Duration) *RedisSuggestionCache {
	return &RedisSuggestionCache{client: client, ttl: ttl}
}

func key(nodeID uuid.UUID) string {
	return "suggestions:" + nodeID.String()
}

func (c *RedisSuggestionCache) Get(ctx context.Context, nodeID uuid.UUID, limit int) ([]models.AITool, bool) {
	raw, err := c.client.HGet(ctx, key(nodeID), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("suggestion cache read failed", zap.String("node_id", nodeID.String()), zap.Error(err))
		}
		return nil, false
	}
	var tools []models.AITool
	if err := json.Unmarshal(raw, &tools); err != nil {
		logger.L().Warn("suggestion cache entry corrupt", zap.String("node_id", nodeID.String()), zap.Error(err))
		return nil, false
	}
	return tools, true
}

func (c *RedisSuggestionCache) Set(ctx context.Context, nodeID uuid.UUID, limit int, tools []models.AITool) {
	raw, err := json.Marshal(tools)
	if err != nil {
		return
	}
	k := key(nodeID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, k, strconv.Itoa(limit), raw)
	if c.ttl > 0 {
		pipe.Expire(ctx, k, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.L().Warn("suggestion cache write failed", zap.String("node_id", nodeID.String()), zap.Error(err))
	}
}

func (c *RedisSuggestionCache) Invalidate(ctx context.Context, nodeIDs ...uuid.UUID) {
	if len(nodeIDs) == 0 {
		return
	}
	keys := make([]string, len(nodeIDs))
	for i, id := range nodeIDs {
		keys[i] = key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.L().Warn("suggestion cache invalidation failed", zap.Int("nodes", len(nodeIDs)), zap.Error(err))
	}
}
