package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"flight-radar/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const opTimeout = 5 * time.Second

// CacheManager is a two-tier cache: an in-process go-cache in front of an
// optional shared redis. Without redis it degrades to the local tier alone.
type CacheManager struct {
	redisClient *redis.Client
	localCache  *cache.Cache
	pubSub      *redis.PubSub
	channel     string
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	log         zerolog.Logger
}

type updateMessage struct {
	Action    string `json:"action"`
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
}

// NewCacheManager connects to redisURL and subscribes to channel for
// invalidations from peer replicas. An empty or unreachable redisURL leaves
// the manager in local-only mode.
func NewCacheManager(redisURL, channel string) *CacheManager {
	ctx, cancel := context.WithCancel(context.Background())
	cm := &CacheManager{
		localCache: cache.New(5*time.Minute, 10*time.Minute),
		channel:    channel,
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.Component("cache"),
	}
	if redisURL != "" {
		cm.connect(redisURL)
	}
	return cm
}

func (cm *CacheManager) connect(redisURL string) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{
			Addr: redisURL,
			DB:   0,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(cm.ctx, opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cm.log.Warn().Err(err).Msg("Redis connection failed, using local cache only")
		_ = client.Close()
		return
	}
	cm.log.Info().Str("addr", opts.Addr).Msg("Redis connection established")
	cm.redisClient = client

	if cm.channel != "" {
		cm.pubSub = client.Subscribe(cm.ctx, cm.channel)
		go cm.listenForUpdates()
	}
}

func (cm *CacheManager) listenForUpdates() {
	if cm.pubSub == nil {
		return
	}

	for msg := range cm.pubSub.Channel() {
		cm.handleUpdateMessage(msg.Payload)
	}
}

// handleUpdateMessage drops the local copy only; the publisher already
// removed the shared one.
func (cm *CacheManager) handleUpdateMessage(payload string) {
	var update updateMessage
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		cm.log.Warn().Err(err).Msg("Failed to parse update message")
		return
	}
	if update.Action != "invalidate" || update.Key == "" {
		return
	}

	cm.mu.Lock()
	cm.localCache.Delete(update.Key)
	cm.mu.Unlock()
}

func (cm *CacheManager) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.localCache.Set(key, json.RawMessage(data), ttl)

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, opTimeout)
		defer cancel()
		return cm.redisClient.Set(ctx, key, data, ttl).Err()
	}
	return nil
}

// Get decodes the cached value into target and reports whether it was found.
func (cm *CacheManager) Get(key string, target interface{}) (bool, error) {
	cm.mu.RLock()
	val, found := cm.localCache.Get(key)
	cm.mu.RUnlock()

	if found {
		raw, ok := val.(json.RawMessage)
		if !ok {
			return false, errors.New("cache: unexpected local value type")
		}
		return true, json.Unmarshal(raw, target)
	}

	if cm.redisClient == nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(cm.ctx, opTimeout)
	defer cancel()

	data, err := cm.redisClient.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	ttl := 5 * time.Minute
	if remaining, err := cm.redisClient.TTL(ctx, key).Result(); err == nil && remaining > 0 && remaining < ttl {
		ttl = remaining
	}
	cm.mu.Lock()
	cm.localCache.Set(key, json.RawMessage(data), ttl)
	cm.mu.Unlock()

	return true, json.Unmarshal(data, target)
}

func (cm *CacheManager) Delete(key string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.localCache.Delete(key)

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, opTimeout)
		defer cancel()
		return cm.redisClient.Del(ctx, key).Err()
	}
	return nil
}

// Increment adds value to a counter and returns the new total. The counter
// expires ttl after it was created.
func (cm *CacheManager) Increment(key string, value int64, ttl time.Duration) (int64, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, opTimeout)
		defer cancel()

		n, err := cm.redisClient.IncrBy(ctx, key, value).Result()
		if err != nil {
			return 0, err
		}
		if n == value {
			if err := cm.redisClient.Expire(ctx, key, ttl).Err(); err != nil {
				cm.log.Warn().Err(err).Str("key", key).Msg("Failed to set counter expiry")
			}
		}
		return n, nil
	}

	// Add is a no-op when the counter already exists.
	_ = cm.localCache.Add(key, int64(0), ttl)
	return cm.localCache.IncrementInt64(key, value)
}

// Invalidate removes key from both tiers and tells peer replicas to drop
// their local copy.
func (cm *CacheManager) Invalidate(key string) error {
	if err := cm.Delete(key); err != nil {
		return err
	}
	if cm.redisClient == nil || cm.channel == "" {
		return nil
	}

	data, err := json.Marshal(updateMessage{
		Action:    "invalidate",
		Key:       key,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cm.ctx, opTimeout)
	defer cancel()
	return cm.redisClient.Publish(ctx, cm.channel, data).Err()
}

// IsAvailable reports whether the shared redis tier is connected.
func (cm *CacheManager) IsAvailable() bool {
	return cm.redisClient != nil
}

func (cm *CacheManager) Close() error {
	cm.cancel()
	if cm.pubSub != nil {
		_ = cm.pubSub.Close()
	}
	if cm.redisClient != nil {
		return cm.redisClient.Close()
	}
	return nil
}
