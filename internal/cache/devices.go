package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/metrics"
	"towtrace-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	deviceKeyPrefix = "towtrace:device:"
	notFoundMarker  = "-"
)

// DeviceResolver is a Redis read-through cache in front of another resolver.
// Redis failures fall through to the backing resolver.
type DeviceResolver struct {
	client      *redis.Client
	next        hos.DeviceResolver
	ttl         time.Duration
	negativeTTL time.Duration
	logger      zerolog.Logger
}

// NewDeviceResolver wraps next. negativeTTL of zero disables caching of
// unknown devices.
func NewDeviceResolver(client *redis.Client, next hos.DeviceResolver, ttl, negativeTTL time.Duration, logger zerolog.Logger) *DeviceResolver {
	return &DeviceResolver{
		client:      client,
		next:        next,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		logger:      logger.With().Str("component", "device_cache").Logger(),
	}
}

func deviceKey(deviceID string) string {
	return deviceKeyPrefix + deviceID
}

// ResolveDevice implements hos.DeviceResolver
func (r *DeviceResolver) ResolveDevice(ctx context.Context, deviceID string) (*models.DeviceAssignment, error) {
	raw, err := r.client.Get(ctx, deviceKey(deviceID)).Result()
	switch {
	case err == nil && raw == notFoundMarker:
		metrics.DeviceCacheLookups.WithLabelValues("negative_hit").Inc()
		return nil, fmt.Errorf("%w: %s", hos.ErrDeviceNotFound, deviceID)
	case err == nil:
		var assignment models.DeviceAssignment
		if jsonErr := json.Unmarshal([]byte(raw), &assignment); jsonErr == nil {
			metrics.DeviceCacheLookups.WithLabelValues("hit").Inc()
			return &assignment, nil
		}
		r.logger.Warn().Str("device_id", deviceID).Msg("Discarding unreadable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Device cache unavailable, resolving directly")
		metrics.DeviceCacheLookups.WithLabelValues("error").Inc()
		return r.next.ResolveDevice(ctx, deviceID)
	}

	metrics.DeviceCacheLookups.WithLabelValues("miss").Inc()
	assignment, err := r.next.ResolveDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, hos.ErrDeviceNotFound) && r.negativeTTL > 0 {
			r.set(ctx, deviceID, notFoundMarker, r.negativeTTL)
		}
		return nil, err
	}

	data, err := json.Marshal(assignment)
	if err == nil {
		r.set(ctx, deviceID, string(data), r.ttl)
	}
	return assignment, nil
}

// Invalidate drops a device from the cache, e.g. after it is reassigned
func (r *DeviceResolver) Invalidate(ctx context.Context, deviceID string) error {
	return r.client.Del(ctx, deviceKey(deviceID)).Err()
}

func (r *DeviceResolver) set(ctx context.Context, deviceID, value string, ttl time.Duration) {
	if err := r.client.Set(ctx, deviceKey(deviceID), value, ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to cache device")
	}
}
