// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAttemptCounter implements [AttemptCounter] using Redis.
//
// Counters are shared across every API instance, so the throttle signal
// survives horizontal scaling and restarts. Callers treat failures as a
// degraded throttle, never as a reason to block a login.
type RedisAttemptCounter struct {
	client *redis.Client
}

// NewAttemptCounter creates a new Redis-backed AttemptCounter.
func NewAttemptCounter(client *redis.Client) *RedisAttemptCounter {
	return &RedisAttemptCounter{client: client}
}

// attemptKey builds the namespaced counter key for one identity.
func attemptKey(key string) string {
	return fmt.Sprintf("auth:attempts:%s", key)
}

/*
Incr bumps the counter for the key, opening the window on first use.

Description: INCR and EXPIRE run in one pipeline; the expiry is only set when
the increment created the key, so the window is anchored to the first attempt
and is not extended by later ones.

Parameters:
  - context: context.Context
  - key: string (normalized identity, e.g. lower-cased email)
  - window: time.Duration

Returns:
  - int64: Post-increment count inside the current window
  - error: Connectivity errors
*/
func (counter *RedisAttemptCounter) Incr(context context.Context, key string, window time.Duration) (int64, error) {

	// Run the increment and conditional expiry atomically
	pipeline := counter.client.TxPipeline()
	increment := pipeline.Incr(context, attemptKey(key))
	pipeline.ExpireNX(context, attemptKey(key), window)

	if _, err := pipeline.Exec(context); err != nil {
		return 0, fmt.Errorf("redis_attempt_counter_incr_failed: %w", err)
	}

	// Return the post-increment count
	return increment.Val(), nil
}

/*
Count returns the current value without modifying the window.

Returns:
  - int64: Zero when the key is absent or expired
  - error: Connectivity errors
*/
func (counter *RedisAttemptCounter) Count(context context.Context, key string) (int64, error) {

	// Read the current counter value
	value, err := counter.client.Get(context, attemptKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis_attempt_counter_get_failed: %w", err)
	}

	return value, nil
}

/*
Reset clears the counter for the key.

Description: Called after a successful authentication so earlier failures do
not haunt the next window.

Returns:
  - error: Deletion failures
*/
func (counter *RedisAttemptCounter) Reset(context context.Context, key string) error {

	// Delete the counter key
	if err := counter.client.Del(context, attemptKey(key)).Err(); err != nil {
		return fmt.Errorf("redis_attempt_counter_reset_failed: %w", err)
	}

	// Return nil on success
	return nil
}
