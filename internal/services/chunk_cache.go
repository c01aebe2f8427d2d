package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paperhub/backend-go/internal/database"
	"github.com/paperhub/backend-go/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChunkCache 分块文本的Redis缓存
// 上下文拼接前先查缓存，未命中再回源Postgres。
// 键中带user_id，跨用户的键不可构造
type RedisChunkCache struct {
	client   *redis.Client
	enabled  bool
	ttl      time.Duration
	hitStats *cacheHitStats
}

type cacheHitStats struct {
	hits   int64
	misses int64
	mu     sync.RWMutex
}

// CachedChunk 缓存中的分块数据
type CachedChunk struct {
	ChunkID      uint
	DocumentID   uint
	DocumentName string
	Text         string
}

// NewRedisChunkCache 创建分块缓存，Redis未启用时返回禁用实例
func NewRedisChunkCache(ttlSeconds int) *RedisChunkCache {
	if database.RedisClient == nil {
		return &RedisChunkCache{enabled: false}
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisChunkCache{
		client:   database.RedisClient,
		enabled:  true,
		ttl:      ttl,
		hitStats: &cacheHitStats{},
	}
}

// Store 写入分块缓存
func (c *RedisChunkCache) Store(ctx context.Context, userID uint, chunk CachedChunk) error {
	if !c.enabled || c.client == nil {
		return nil
	}

	key := c.chunkKey(userID, chunk.ChunkID)
	data := map[string]interface{}{
		"chunk_id":      chunk.ChunkID,
		"document_id":   chunk.DocumentID,
		"document_name": chunk.DocumentName,
		"text":          chunk.Text,
	}

	if err := c.client.HSet(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to store chunk to redis: %w", err)
	}
	if err := c.client.Expire(ctx, key, c.ttl).Err(); err != nil {
		logger.Warn("failed to set TTL for cached chunk", zap.Error(err))
	}

	return nil
}

// Get 读取分块缓存，未命中返回错误
func (c *RedisChunkCache) Get(ctx context.Context, userID uint, chunkID uint) (*CachedChunk, error) {
	if !c.enabled || c.client == nil {
		c.recordMiss()
		return nil, fmt.Errorf("chunk cache not enabled")
	}

	data, err := c.client.HGetAll(ctx, c.chunkKey(userID, chunkID)).Result()
	if err != nil {
		c.recordMiss()
		return nil, fmt.Errorf("failed to get chunk from redis: %w", err)
	}
	if len(data) == 0 {
		c.recordMiss()
		return nil, fmt.Errorf("chunk not cached")
	}
	c.recordHit()

	chunk := &CachedChunk{
		DocumentName: data["document_name"],
		Text:         data["text"],
	}
	if val, ok := data["chunk_id"]; ok {
		fmt.Sscanf(val, "%d", &chunk.ChunkID)
	}
	if val, ok := data["document_id"]; ok {
		fmt.Sscanf(val, "%d", &chunk.DocumentID)
	}

	return chunk, nil
}

// InvalidateChunks 删除指定分块的缓存，文档删除后调用
func (c *RedisChunkCache) InvalidateChunks(ctx context.Context, userID uint, chunkIDs []uint) {
	if !c.enabled || c.client == nil {
		return
	}
	for _, chunkID := range chunkIDs {
		if err := c.client.Del(ctx, c.chunkKey(userID, chunkID)).Err(); err != nil {
			logger.Warn("failed to delete cached chunk",
				zap.Uint("chunk_id", chunkID),
				zap.Error(err))
		}
	}
}

func (c *RedisChunkCache) chunkKey(userID, chunkID uint) string {
	return fmt.Sprintf("chunk:%d:%d", userID, chunkID)
}

func (c *RedisChunkCache) recordHit() {
	if c.hitStats != nil {
		c.hitStats.mu.Lock()
		c.hitStats.hits++
		c.hitStats.mu.Unlock()
	}
}

func (c *RedisChunkCache) recordMiss() {
	if c.hitStats != nil {
		c.hitStats.mu.Lock()
		c.hitStats.misses++
		c.hitStats.mu.Unlock()
	}
}

// HitRate 缓存命中率
func (c *RedisChunkCache) HitRate() float64 {
	if c.hitStats == nil {
		return 0
	}
	c.hitStats.mu.RLock()
	defer c.hitStats.mu.RUnlock()

	total := c.hitStats.hits + c.hitStats.misses
	if total == 0 {
		return 0
	}
	return float64(c.hitStats.hits) / float64(total)
}
