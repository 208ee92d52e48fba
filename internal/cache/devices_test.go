package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

// countingResolver is a map-backed resolver that counts lookups
type countingResolver struct {
	mu      sync.Mutex
	devices map[string]models.DeviceAssignment
	calls   int
}

func (r *countingResolver) ResolveDevice(ctx context.Context, deviceID string) (*models.DeviceAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	a, ok := r.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hos.ErrDeviceNotFound, deviceID)
	}
	return &a, nil
}

func setupTestResolver(t *testing.T) (*DeviceResolver, *countingResolver, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := Open(Options{Addr: mr.Addr(), PoolSize: 2})
	if err != nil {
		t.Fatalf("Failed to open Redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	vehicleID := "truck-1"
	backing := &countingResolver{devices: map[string]models.DeviceAssignment{
		"eld-1": {DeviceID: "eld-1", DriverID: "driver-1", VehicleID: &vehicleID, TenantID: "tenant-1"},
	}}
	return NewDeviceResolver(client, backing, time.Minute, 10*time.Second, zerolog.Nop()), backing, mr
}

func TestDeviceResolver_ReadThrough(t *testing.T) {
	resolver, backing, mr := setupTestResolver(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a, err := resolver.ResolveDevice(ctx, "eld-1")
		if err != nil {
			t.Fatalf("ResolveDevice failed: %v", err)
		}
		if a.DriverID != "driver-1" || a.TenantID != "tenant-1" {
			t.Errorf("Unexpected assignment %+v", a)
		}
		if a.VehicleID == nil || *a.VehicleID != "truck-1" {
			t.Error("Expected vehicle id to survive the cache round trip")
		}
	}

	if backing.calls != 1 {
		t.Errorf("Expected 1 backing lookup, got %d", backing.calls)
	}
	if !mr.Exists(deviceKey("eld-1")) {
		t.Error("Expected device to be cached")
	}
	if ttl := mr.TTL(deviceKey("eld-1")); ttl != time.Minute {
		t.Errorf("Expected TTL 1m, got %s", ttl)
	}
}

func TestDeviceResolver_NegativeCache(t *testing.T) {
	resolver, backing, mr := setupTestResolver(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := resolver.ResolveDevice(ctx, "eld-404"); !errors.Is(err, hos.ErrDeviceNotFound) {
			t.Fatalf("Expected ErrDeviceNotFound, got %v", err)
		}
	}
	if backing.calls != 1 {
		t.Errorf("Expected 1 backing lookup, got %d", backing.calls)
	}

	mr.FastForward(11 * time.Second)
	if _, err := resolver.ResolveDevice(ctx, "eld-404"); !errors.Is(err, hos.ErrDeviceNotFound) {
		t.Fatalf("Expected ErrDeviceNotFound, got %v", err)
	}
	if backing.calls != 2 {
		t.Errorf("Expected negative entry to expire, got %d backing lookups", backing.calls)
	}
}

func TestDeviceResolver_Invalidate(t *testing.T) {
	resolver, backing, _ := setupTestResolver(t)
	ctx := context.Background()

	if _, err := resolver.ResolveDevice(ctx, "eld-1"); err != nil {
		t.Fatalf("ResolveDevice failed: %v", err)
	}

	backing.mu.Lock()
	a := backing.devices["eld-1"]
	a.DriverID = "driver-2"
	backing.devices["eld-1"] = a
	backing.mu.Unlock()

	if err := resolver.Invalidate(ctx, "eld-1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	got, err := resolver.ResolveDevice(ctx, "eld-1")
	if err != nil {
		t.Fatalf("ResolveDevice failed: %v", err)
	}
	if got.DriverID != "driver-2" {
		t.Errorf("Expected reassigned driver-2, got %s", got.DriverID)
	}
}

func TestDeviceResolver_RedisDown(t *testing.T) {
	resolver, backing, mr := setupTestResolver(t)
	mr.Close()

	got, err := resolver.ResolveDevice(context.Background(), "eld-1")
	if err != nil {
		t.Fatalf("Expected fallback to backing resolver, got %v", err)
	}
	if got.DriverID != "driver-1" {
		t.Errorf("Unexpected assignment %+v", got)
	}
	if backing.calls != 1 {
		t.Errorf("Expected 1 backing lookup, got %d", backing.calls)
	}
}

func TestDeviceResolver_CorruptEntry(t *testing.T) {
	resolver, backing, mr := setupTestResolver(t)

	if err := mr.Set(deviceKey("eld-1"), "{not json"); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}
	got, err := resolver.ResolveDevice(context.Background(), "eld-1")
	if err != nil {
		t.Fatalf("ResolveDevice failed: %v", err)
	}
	if got.DriverID != "driver-1" || backing.calls != 1 {
		t.Errorf("Expected corrupt entry to be replaced from backing resolver")
	}
}
