package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

// Cache keeps the last post list the server returned, for cycles where the
// server is unreachable. Load returns an empty list when nothing was saved.
type Cache interface {
	Load(ctx context.Context) ([]models.Post, error)
	Save(ctx context.Context, posts []models.Post) error
}

// NewCache builds the backend named in cfg.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return &MemoryCache{}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisCache(client, cfg.Key), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// MemoryCache lives as long as the process.
type MemoryCache struct {
	mu    sync.Mutex
	posts []models.Post
}

func (c *MemoryCache) Load(context.Context) ([]models.Post, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Post{}, c.posts...), nil
}

func (c *MemoryCache) Save(_ context.Context, posts []models.Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append([]models.Post(nil), posts...)
	return nil
}

// RedisCache stores the list as one JSON value, so it survives restarts.
type RedisCache struct {
	client *redis.Client
	key    string
}

func NewRedisCache(client *redis.Client, key string) *RedisCache {
	if key == "" {
		key = "veille:scheduled_posts"
	}
	return &RedisCache{client: client, key: key}
}

func (c *RedisCache) Load(ctx context.Context) ([]models.Post, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.Post{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cached posts: %w", err)
	}

	var posts []models.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode cached posts: %w", err)
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

func (c *RedisCache) Save(ctx context.Context, posts []models.Post) error {
	data, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("failed to encode posts: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache posts: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
