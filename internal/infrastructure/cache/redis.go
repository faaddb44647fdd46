package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/redis.v5"

	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/config"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

const keyPrefix = "netdiag"

const (
	dialTimeout  = 5 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	poolSize     = 20
)

// ViewCache implements topology.ViewCache on Redis.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

var _ topology.ViewCache = (*ViewCache)(nil)

// New connects to Redis and verifies the connection with PING.
func New(cfg config.RedisConfig, ttl time.Duration, logger *logging.Logger) (*ViewCache, error) {
	if logger == nil {
		logger = logging.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		PoolSize:     poolSize,
	})

	if err := client.Ping().Err(); err != nil {
		client.Close() //nolint:errcheck // best effort on failed connect
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return &ViewCache{
		client: client,
		ttl:    ttl,
		logger: logger.Component("view-cache"),
	}, nil
}

// Close releases the connection pool.
func (c *ViewCache) Close() error {
	return c.client.Close()
}

// HealthCheck pings the server.
func (c *ViewCache) HealthCheck(_ context.Context) error {
	return c.client.Ping().Err()
}

// noGeneration marks a generation that could not be read; SetView drops it.
const noGeneration = ^uint64(0)

func viewKey(areaID int64, gen uint64, rootID int64) string {
	return fmt.Sprintf("%s:view:%d:%d:%d", keyPrefix, areaID, gen, rootID)
}

func indexKey(areaID int64) string {
	return fmt.Sprintf("%s:views:%d", keyPrefix, areaID)
}

func generationKey(areaID int64) string {
	return fmt.Sprintf("%s:gen:%d", keyPrefix, areaID)
}

func (c *ViewCache) generation(areaID int64) (uint64, error) {
	gen, err := c.client.Get(generationKey(areaID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(gen), nil
}

// GetView returns a cached view of the area's current generation. Misses
// and decode failures report false.
func (c *ViewCache) GetView(_ context.Context, areaID, rootID int64) ([]topology.Node, uint64, bool) {
	gen, err := c.generation(areaID)
	if err != nil {
		c.logger.Warn("view cache generation read failed", "area_id", areaID, "error", err)
		return nil, noGeneration, false
	}

	data, err := c.client.Get(viewKey(areaID, gen, rootID)).Bytes()
	if err == redis.Nil {
		return nil, gen, false
	}
	if err != nil {
		c.logger.Warn("view cache read failed", "area_id", areaID, "root_id", rootID, "error", err)
		return nil, gen, false
	}

	var nodes []topology.Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		c.logger.Warn("discarding undecodable cached view", "area_id", areaID, "root_id", rootID, "error", err)
		return nil, gen, false
	}
	return nodes, gen, true
}

// SetView stores a view under gen and records its key in the area index.
func (c *ViewCache) SetView(_ context.Context, areaID, rootID int64, gen uint64, nodes []topology.Node) {
	if gen == noGeneration {
		return
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		c.logger.Warn("encoding view for cache", "area_id", areaID, "root_id", rootID, "error", err)
		return
	}

	key, index := viewKey(areaID, gen, rootID), indexKey(areaID)
	if err := c.client.Set(key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("view cache write failed", "area_id", areaID, "root_id", rootID, "error", err)
		return
	}
	if err := c.client.SAdd(index, key).Err(); err != nil {
		// Unindexed keys are only reclaimed by their TTL.
		c.client.Del(key) //nolint:errcheck // best effort
		c.logger.Warn("view cache index failed", "area_id", areaID, "error", err)
		return
	}
	if c.ttl > 0 {
		c.client.Expire(index, c.ttl) //nolint:errcheck // index expiry is housekeeping
	}
}

// InvalidateArea moves the area to a new generation and deletes the views
// cached so far. Views computed before the bump land under the old
// generation and are never read.
func (c *ViewCache) InvalidateArea(_ context.Context, areaID int64) error {
	if err := c.client.Incr(generationKey(areaID)).Err(); err != nil {
		return fmt.Errorf("bumping view generation of area %d: %w", areaID, err)
	}

	index := indexKey(areaID)
	keys, err := c.client.SMembers(index).Result()
	if err != nil {
		return fmt.Errorf("listing cached views of area %d: %w", areaID, err)
	}
	if err := c.client.Del(append(keys, index)...).Err(); err != nil {
		return fmt.Errorf("deleting cached views of area %d: %w", areaID, err)
	}
	return nil
}
