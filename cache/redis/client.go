package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds Redis connection settings. Prefix namespaces every key and
// channel so several deployments can share one Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Client is the shared cache and pub/sub used when several server instances
// run behind one load balancer.
type Client struct {
	rdb    *goredis.Client
	prefix string
}

// Open connects to Redis and pings it.
func Open(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb, prefix: cfg.Prefix}, nil
}

// Close releases the connection pool.
func (r *Client) Close() error { return r.rdb.Close() }

func (r *Client) key(k string) string { return r.prefix + k }

// ---- KV ----

func (r *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Client) Del(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.rdb.Del(ctx, full...).Err()
}

// Expire resets the TTL of an existing key; ttl <= 0 removes the expiry.
func (r *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var ok bool
	var err error
	if ttl <= 0 {
		ok, err = r.rdb.Persist(ctx, r.key(key)).Result()
		if err == nil && !ok {
			// PERSIST also reports false for keys without a TTL
			n, existsErr := r.rdb.Exists(ctx, r.key(key)).Result()
			ok, err = n > 0, existsErr
		}
	} else {
		ok, err = r.rdb.Expire(ctx, r.key(key), ttl).Result()
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ---- List ----

func (r *Client) LPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return r.rdb.LPush(ctx, r.key(key), args...).Err()
}

func (r *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.rdb.LRange(ctx, r.key(key), start, stop).Result()
}

func (r *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	return r.rdb.LTrim(ctx, r.key(key), start, stop).Err()
}

// ---- PubSub ----

// Message is a payload received from a subscribed channel. Channel has the
// prefix stripped.
type Message struct {
	Channel string
	Payload string
}

func (r *Client) Publish(ctx context.Context, channel, message string) error {
	return r.rdb.Publish(ctx, r.key(channel), message).Err()
}

// Subscribe waits for the subscription to be confirmed, so messages
// published after it returns are not missed.
func (r *Client) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	full := make([]string, len(channels))
	for i, c := range channels {
		full[i] = r.key(c)
	}
	ps := r.rdb.Subscribe(ctx, full...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	ch := make(chan *Message, 256)
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			ch <- &Message{Channel: strings.TrimPrefix(msg.Channel, r.prefix), Payload: msg.Payload}
		}
	}()
	return ch, func() { _ = ps.Close() }, nil
}
