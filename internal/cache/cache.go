package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Conversion Cache Operations

func conversionKey(checksum string, dest models.Application) string {
	return fmt.Sprintf("conversion:%s:%s", dest, checksum)
}

// SetConversion caches a converted scene under the source checksum
func (c *Cache) SetConversion(ctx context.Context, result *models.ConversionResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion: %w", err)
	}

	return c.client.Set(ctx, conversionKey(result.Checksum, result.Destination), data, ttl).Err()
}

// GetConversion retrieves a converted scene. A miss returns nil, nil.
func (c *Cache) GetConversion(ctx context.Context, checksum string, dest models.Application) (*models.ConversionResult, error) {
	data, err := c.client.Get(ctx, conversionKey(checksum, dest)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get conversion from cache: %w", err)
	}

	var result models.ConversionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversion: %w", err)
	}

	return &result, nil
}

// Scene Cache Operations

// SetSceneFile caches scene file metadata
func (c *Cache) SetSceneFile(ctx context.Context, scene *models.SceneFile, ttl time.Duration) error {
	data, err := json.Marshal(scene)
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}

	key := fmt.Sprintf("scene:%s", scene.ID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetSceneFile retrieves scene file metadata from cache
func (c *Cache) GetSceneFile(ctx context.Context, sceneID string) (*models.SceneFile, error) {
	key := fmt.Sprintf("scene:%s", sceneID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get scene from cache: %w", err)
	}

	var scene models.SceneFile
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scene: %w", err)
	}

	return &scene, nil
}

// DeleteSceneFile removes scene file metadata from cache
func (c *Cache) DeleteSceneFile(ctx context.Context, sceneID string) error {
	key := fmt.Sprintf("scene:%s", sceneID)
	return c.client.Del(ctx, key).Err()
}

// Job Cache Operations

// SetJob caches job metadata
func (c *Cache) SetJob(ctx context.Context, job *models.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	key := fmt.Sprintf("job:%s", job.ID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetJob retrieves job metadata from cache
func (c *Cache) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	key := fmt.Sprintf("job:%s", jobID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get job from cache: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// DeleteJob removes job from cache
func (c *Cache) DeleteJob(ctx context.Context, jobID string) error {
	key := fmt.Sprintf("job:%s", jobID)
	return c.client.Del(ctx, key).Err()
}

// SetJobProgress caches job progress for quick retrieval
func (c *Cache) SetJobProgress(ctx context.Context, jobID string, progress float64, ttl time.Duration) error {
	key := fmt.Sprintf("job:progress:%s", jobID)
	return c.client.Set(ctx, key, progress, ttl).Err()
}

// GetJobProgress retrieves job progress from cache
func (c *Cache) GetJobProgress(ctx context.Context, jobID string) (float64, error) {
	key := fmt.Sprintf("job:progress:%s", jobID)
	return c.client.Get(ctx, key).Float64()
}

// Output Cache Operations

// SetOutputs caches the exported files of a scene
func (c *Cache) SetOutputs(ctx context.Context, sceneID string, outputs []*models.Output, ttl time.Duration) error {
	data, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}

	key := fmt.Sprintf("outputs:%s", sceneID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetOutputs retrieves scene outputs from cache
func (c *Cache) GetOutputs(ctx context.Context, sceneID string) ([]*models.Output, error) {
	key := fmt.Sprintf("outputs:%s", sceneID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get outputs from cache: %w", err)
	}

	var outputs []*models.Output
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outputs: %w", err)
	}

	return outputs, nil
}

// DeleteOutputs removes outputs from cache
func (c *Cache) DeleteOutputs(ctx context.Context, sceneID string) error {
	key := fmt.Sprintf("outputs:%s", sceneID)
	return c.client.Del(ctx, key).Err()
}

// Locking Operations for Distributed Workers

// AcquireLock attempts to acquire a distributed lock
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
