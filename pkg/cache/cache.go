// Package cache is the optional Redis-backed scan-result cache. A cache
// failure is never a scan failure: every error path degrades to a miss
// with a single warning log, and the pipeline recomputes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatescan/gatescan/pkg/report"
	"github.com/gatescan/gatescan/pkg/risk"
	"github.com/gatescan/gatescan/pkg/rules"
)

const keyPrefix = "gatescan:scan:"

// DefaultTTL is used when the configured TTL is negative.
const DefaultTTL = 5 * time.Minute

// Cache stores finished reports keyed by input digest and configuration
// fingerprint.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to the Redis instance at addr. A TTL of zero keeps
// entries until Redis evicts them.
func New(ctx context.Context, addr string, ttlSeconds int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttlSeconds < 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Key builds the cache key for one input under one configuration.
func Key(digest, fingerprint string) string {
	return keyPrefix + digest + ":" + fingerprint
}

// Fingerprint condenses everything that can change a scan outcome for
// the same input: thresholds, weights, overrides, and the catalog's rule
// names. Two deployments with the same fingerprint may share entries.
func Fingerprint(thresholds risk.Thresholds, weights risk.Weights, overrides rules.Overrides, catalogNames []string) string {
	type patch struct {
		Name     string  `json:"name"`
		Severity string  `json:"severity"`
		Desc     *string `json:"desc"`
	}
	patches := make([]patch, 0, len(overrides))
	for name, ov := range overrides {
		patches = append(patches, patch{Name: name, Severity: ov.Severity, Desc: ov.Description})
	}
	sort.Slice(patches, func(i, j int) bool { return patches[i].Name < patches[j].Name })

	names := append([]string(nil), catalogNames...)
	sort.Strings(names)

	payload, err := json.Marshal(struct {
		Thresholds risk.Thresholds `json:"thresholds"`
		Weights    risk.Weights    `json:"weights"`
		Overrides  []patch         `json:"overrides"`
		Catalog    []string        `json:"catalog"`
	}{thresholds, weights, patches, names})
	if err != nil {
		return "unfingerprinted"
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached report for key, or a miss.
func (c *Cache) Get(ctx context.Context, key string) (*report.Report, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[WARN] Cache read failed, treating as miss: %v", err)
		}
		return nil, false
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		log.Printf("[WARN] Cache entry for %s is not a valid report, treating as miss: %v", key, err)
		return nil, false
	}
	return &rep, true
}

// Put stores a finished report under key. Error reports are never
// cached: a fail-safe block describes one failed invocation, not the
// input itself.
func (c *Cache) Put(ctx context.Context, key string, rep *report.Report) {
	if rep == nil || rep.Error != nil {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		log.Printf("[WARN] Cache write skipped, report not marshalable: %v", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("[WARN] Cache write failed: %v", err)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
