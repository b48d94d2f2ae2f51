// Package rediscas stores objects in Redis.
//
// Each object lives under <prefix>obj:<text ID>. Raw IDs are also added to
// the sorted set <prefix>ids with score 0, so the set's lexicographic member
// order is ID order.
package rediscas

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

const (
	DefaultURL     = "redis://localhost:6379"
	DefaultPrefix  = "ocid:"
	defaultTimeout = 5 * time.Second
)

type Options struct {
	URL    string
	Prefix string
	// Timeout bounds each Redis round trip. Zero means 5s.
	Timeout time.Duration
}

type CAS struct {
	client  *redis.Client
	alg     digest.Algorithm
	prefix  string
	timeout time.Duration
}

var (
	_ storage.CAS    = (*CAS)(nil)
	_ storage.Lister = (*CAS)(nil)
)

// New connects to Redis and pings it once.
func New(opts Options, alg digest.Algorithm) (*CAS, error) {
	url := opts.URL
	if url == "" {
		url = DefaultURL
	}
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("rediscas: parse url: %w", err)
	}
	c := NewWithClient(redis.NewClient(ropts), opts, alg)
	ctx, cancel := c.ctx()
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("rediscas: connect: %w", err)
	}
	return c, nil
}

// NewWithClient wraps an existing client. opts.URL is ignored.
func NewWithClient(client *redis.Client, opts Options, alg digest.Algorithm) *CAS {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CAS{client: client, alg: alg.OrDefault(), prefix: prefix, timeout: timeout}
}

// Close closes the underlying Redis client.
func (c *CAS) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *CAS) Put(data []byte) (ocid.V0, error) {
	id, err := storage.Address(data, c.alg)
	if err != nil {
		return ocid.V0{}, err
	}
	ctx, cancel := c.ctx()
	defer cancel()

	raw := id.Bytes()
	stored, err := c.client.Eval(ctx, putScript, []string{c.objectKey(id), c.indexKey()}, data, raw[:]).Int()
	if err != nil {
		return ocid.V0{}, fmt.Errorf("rediscas: put: %w", err)
	}
	if stored == 0 {
		return ocid.V0{}, storage.ErrImmutable
	}
	return id, nil
}

// putScript writes the object and its index entry together. The index key
// type is checked before anything is written so a failing ZADD cannot leave
// an unindexed object behind. Re-putting identical bytes repairs the index.
const putScript = `
local t = redis.call("TYPE", KEYS[2])
if type(t) == "table" then
  t = t.ok
end
if t ~= "none" and t ~= "zset" then
  return redis.error_reply("WRONGTYPE index key holds " .. t)
end
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  if redis.call("GET", KEYS[1]) ~= ARGV[1] then
    return 0
  end
end
redis.call("ZADD", KEYS[2], 0, ARGV[2])
return 1
`

func (c *CAS) Get(id ocid.V0) ([]byte, error) {
	if id.IsEmpty() {
		return nil, storage.ErrInvalidID
	}
	ctx, cancel := c.ctx()
	defer cancel()
	b, err := c.client.Get(ctx, c.objectKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("rediscas: get: %w", err)
	}
	if err := storage.Verify(id, b, c.alg); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *CAS) Has(id ocid.V0) bool {
	if id.IsEmpty() {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()
	n, err := c.client.Exists(ctx, c.objectKey(id)).Result()
	return err == nil && n > 0
}

// List returns the indexed IDs in raw byte order.
func (c *CAS) List() ([]ocid.V0, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	members, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("rediscas: list: %w", err)
	}
	ids := make([]ocid.V0, 0, len(members))
	for _, m := range members {
		var id ocid.V0
		if err := id.UnmarshalBinary([]byte(m)); err != nil {
			return nil, fmt.Errorf("rediscas: corrupt index member: %w", err)
		}
		ids = append(ids, id)
	}
	slices.SortFunc(ids, ocid.V0.Compare)
	return ids, nil
}

func (c *CAS) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *CAS) objectKey(id ocid.V0) string { return c.prefix + "obj:" + id.String() }
func (c *CAS) indexKey() string            { return c.prefix + "ids" }
