package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the Redis connection shared by the rate limiter
// and the transcript archive queue.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// LPush prepends a value to a list key (queue producer side).
func LPush(key string, value interface{}) error {
	return GetClient().LPush(ctx, key, value).Err()
}

// BRPop pops the tail of a list key, blocking up to timeout. Returns
// redis.Nil wrapped error on timeout.
func BRPop(timeout time.Duration, key string) ([]string, error) {
	return GetClient().BRPop(ctx, timeout, key).Result()
}
