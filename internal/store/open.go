package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Query parameters consumed here rather than by the backend driver.
const (
	paramCacheSize = "cache_size"
	paramPrefix    = "prefix"
	paramLeaseTTL  = "lease_ttl"
	paramInMemory  = "in_memory"
	paramDatabase  = "database"
)

// Open builds a store from a DSN:
//
//	inmemory://
//	badger:///var/lib/fixgate?in_memory=false
//	redis://127.0.0.1:6379/0?prefix=fixgate&lease_ttl=15s
//	mongodb://127.0.0.1:27017/?database=fixgate
//
// Any DSN may carry cache_size=N to front the backend with an LRU cache.
func Open(ctx context.Context, dsn string) (Store, error) {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDSN, err)
	}
	q := u.Query()

	var st Store
	switch strings.ToLower(u.Scheme) {
	case "inmemory", "memory":
		st = NewMemoryStore()
	case "badger":
		path := u.Host + u.Path
		inMemory, _ := strconv.ParseBool(q.Get(paramInMemory))
		if path == "" && !inMemory {
			return nil, fmt.Errorf("%w: badger path required", ErrUnsupportedDSN)
		}
		st, err = OpenBadger(BadgerOptions{Path: path, InMemory: inMemory, SyncWrites: true})
	case "redis", "rediss":
		var opts *redis.Options
		opts, err = redis.ParseURL(stripParams(u, paramCacheSize, paramPrefix, paramLeaseTTL))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedDSN, err)
		}
		var ttl time.Duration
		if raw := q.Get(paramLeaseTTL); raw != "" {
			if ttl, err = time.ParseDuration(raw); err != nil {
				return nil, fmt.Errorf("%w: lease_ttl: %v", ErrUnsupportedDSN, err)
			}
		}
		st, err = OpenRedis(ctx, opts, q.Get(paramPrefix), ttl)
	case "mongodb", "mongodb+srv":
		database := q.Get(paramDatabase)
		if database == "" {
			database = "fixgate"
		}
		st, err = OpenMongo(ctx, stripParams(u, paramCacheSize, paramDatabase), database)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedDSN, u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	if raw := q.Get(paramCacheSize); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			_ = st.Close()
			return nil, fmt.Errorf("%w: cache_size %q", ErrUnsupportedDSN, raw)
		}
		cached, err := NewCachedStore(st, size)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		return cached, nil
	}
	return st, nil
}

func stripParams(u *url.URL, keys ...string) string {
	c := *u
	q := c.Query()
	for _, k := range keys {
		q.Del(k)
	}
	c.RawQuery = q.Encode()
	return c.String()
}
