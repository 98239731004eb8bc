package vehiclecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for the shared snapshot store.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisClient connects to redis and verifies the connection with a ping.
func NewRedisClient(config RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis at %s:%d: %w", config.Host, config.Port, err)
	}
	return client, nil
}

// WriteThrough wraps Memory and mirrors every snapshot into redis so other
// services can read vehicle positions without talking to this process. The
// in memory copy stays authoritative, redis failures are logged and ignored.
type WriteThrough struct {
	log    *log.Logger
	inner  *Memory
	client *redis.Client
	ttl    time.Duration
}

// NewWriteThrough builds a WriteThrough over inner using client.
func NewWriteThrough(log *log.Logger, inner *Memory, client *redis.Client, ttl time.Duration) *WriteThrough {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &WriteThrough{
		log:    log,
		inner:  inner,
		client: client,
		ttl:    ttl,
	}
}

// SnapshotKey generates the redis key for a vehicle's snapshot.
func SnapshotKey(vehicleId string) string {
	return fmt.Sprintf("vehicle:%s", vehicleId)
}

// Update stores the snapshot in memory and mirrors it into redis.
func (w *WriteThrough) Update(snapshot *avl.VehicleSnapshot) error {
	if err := w.inner.Update(snapshot); err != nil {
		return err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("unable to marshal snapshot for vehicle %s: %w", snapshot.VehicleId, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := w.client.Set(ctx, SnapshotKey(snapshot.VehicleId), data, w.ttl).Err(); err != nil {
		w.log.Printf("WARNING: unable to write snapshot for vehicle %s to redis: %v", snapshot.VehicleId, err)
	}
	return nil
}

// VehicleIdsForBlock answers from the in memory copy.
func (w *WriteThrough) VehicleIdsForBlock(blockId string) []string {
	return w.inner.VehicleIdsForBlock(blockId)
}

// Vehicle answers from the in memory copy.
func (w *WriteThrough) Vehicle(vehicleId string) (*avl.VehicleSnapshot, bool) {
	return w.inner.Vehicle(vehicleId)
}

// Vehicles answers from the in memory copy.
func (w *WriteThrough) Vehicles() []*avl.VehicleSnapshot {
	return w.inner.Vehicles()
}

// HealthCheck pings redis.
func (w *WriteThrough) HealthCheck(ctx context.Context) error {
	if err := w.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
