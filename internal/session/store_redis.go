// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khoiminh/torii/internal/platform/constants"
)

// RedisReuseMonitor implements ReuseMonitor backed by Redis.
//
// Each incident is written as a TTL-bounded key (for forensics on a specific
// hash) plus a per-owner counter (for alert thresholds). Both writes are
// batched in one pipeline round trip.
type RedisReuseMonitor struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReuseMonitor creates a monitor with the standard retention window.
func NewRedisReuseMonitor(client *redis.Client) *RedisReuseMonitor {
	return &RedisReuseMonitor{
		client: client,
		ttl:    constants.RefreshTokenRetention,
	}
}

/*
RecordIncident persists one reuse incident.

Parameters:
  - ctx: context.Context
  - ownerID: string (Principal whose family was revoked)
  - tokenHash: string (The replayed hash)

Returns:
  - error: Redis connectivity failures; callers log and continue
*/
func (monitor *RedisReuseMonitor) RecordIncident(ctx context.Context, ownerID, tokenHash string) error {
	incidentKey := constants.RedisPrefixReuseIncident + tokenHash
	countKey := constants.RedisPrefixReuseCount + ownerID

	pipe := monitor.client.Pipeline()
	pipe.Set(ctx, incidentKey, ownerID, monitor.ttl)
	pipe.Incr(ctx, countKey)
	pipe.Expire(ctx, countKey, monitor.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reuse monitor: record incident: %w", err)
	}

	return nil
}

/*
IncidentCount reports how many reuse incidents are on record for a principal
within the retention window. A missing counter reads as zero.

Parameters:
  - ctx: context.Context
  - ownerID: string

Returns:
  - int64: Incident count
  - error: Redis connectivity failures
*/
func (monitor *RedisReuseMonitor) IncidentCount(ctx context.Context, ownerID string) (int64, error) {
	count, err := monitor.client.Get(ctx, constants.RedisPrefixReuseCount+ownerID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reuse monitor: incident count: %w", err)
	}

	return count, nil
}
