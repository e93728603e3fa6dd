package mw

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// CachedResponse is a captured GET response.
type CachedResponse struct {
	Status  int         `json:"status"`
	Headers http.Header `json:"headers"`
	Body    []byte      `json:"body"`
	// Generation is the cache generation observed before the handler ran.
	Generation int64 `json:"generation"`
}

// ResponseCache stores captured responses keyed by request URI.
//
// Flush starts a new generation. Get only returns entries stamped with the
// current generation, so a response computed from data read before a Flush
// is never served after it, even when it is stored late.
type ResponseCache interface {
	Get(ctx context.Context, key string) (CachedResponse, bool)
	Set(ctx context.Context, key string, resp CachedResponse, ttl time.Duration)
	Generation(ctx context.Context) int64
	Flush(ctx context.Context)
}

// MemoryCache keeps responses in process memory.
type MemoryCache struct {
	store *cache.Cache
	gen   atomic.Int64
}

// NewMemoryCache creates an in-memory cache cleaned up every cleanup interval.
func NewMemoryCache(defaultTTL, cleanup time.Duration) *MemoryCache {
	return &MemoryCache{store: cache.New(defaultTTL, cleanup)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (CachedResponse, bool) {
	v, found := m.store.Get(key)
	if !found {
		return CachedResponse{}, false
	}
	resp := v.(CachedResponse)
	if resp.Generation != m.gen.Load() {
		return CachedResponse{}, false
	}
	return resp, true
}

func (m *MemoryCache) Set(_ context.Context, key string, resp CachedResponse, ttl time.Duration) {
	if resp.Generation != m.gen.Load() {
		return
	}
	m.store.Set(key, resp, ttl)
}

func (m *MemoryCache) Generation(_ context.Context) int64 {
	return m.gen.Load()
}

func (m *MemoryCache) Flush(_ context.Context) {
	m.gen.Add(1)
	m.store.Flush()
}

// RedisCache shares cached responses between replicas. The generation
// counter lives in redis too, so a Flush on one replica invalidates the
// entries written by all of them.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache stores entries under prefix in the given client.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (r *RedisCache) entryKey(key string) string { return r.prefix + "r:" + key }
func (r *RedisCache) genKey() string             { return r.prefix + "gen" }

func (r *RedisCache) Get(ctx context.Context, key string) (CachedResponse, bool) {
	vals, err := r.client.MGet(ctx, r.entryKey(key), r.genKey()).Result()
	if err != nil {
		slog.Warn("redis cache get failed", "key", key, "error", err)
		return CachedResponse{}, false
	}
	raw, ok := vals[0].(string)
	if !ok {
		return CachedResponse{}, false
	}
	var resp CachedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		slog.Warn("redis cache entry is corrupt", "key", key, "error", err)
		return CachedResponse{}, false
	}
	if resp.Generation != parseGeneration(vals[1]) {
		return CachedResponse{}, false
	}
	return resp, true
}

func (r *RedisCache) Set(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) {
	raw, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("redis cache encode failed", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, r.entryKey(key), raw, ttl).Err(); err != nil {
		slog.Warn("redis cache set failed", "key", key, "error", err)
	}
}

func (r *RedisCache) Generation(ctx context.Context) int64 {
	v, err := r.client.Get(ctx, r.genKey()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("redis cache generation read failed", "error", err)
		}
		return 0
	}
	return parseGeneration(v)
}

func (r *RedisCache) Flush(ctx context.Context) {
	if err := r.client.Incr(ctx, r.genKey()).Err(); err != nil {
		slog.Warn("redis cache generation bump failed", "error", err)
	}

	// Old-generation entries are already unreachable; deleting them frees memory.
	iter := r.client.Scan(ctx, 0, r.entryKey("*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("redis cache scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("redis cache flush failed", "error", err)
	}
}

func parseGeneration(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache is a middleware for caching of GET requests.
func Cache(store ResponseCache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if cached, found := store.Get(c.Request.Context(), key); found {
			for k, v := range cached.Headers {
				if k == RequestIDHeader {
					continue
				}
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.Status)
			c.Writer.Write(cached.Body)
			c.Abort()
			return
		}

		gen := store.Generation(c.Request.Context())
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() >= 200 && blw.Status() < 300 {
			store.Set(c.Request.Context(), key, CachedResponse{
				Status:     blw.Status(),
				Headers:    blw.Header().Clone(),
				Body:       blw.body.Bytes(),
				Generation: gen,
			}, duration)
		}
	}
}
