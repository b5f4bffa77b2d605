// Package pubsub publishes build lifecycle events to Redis so an external
// dashboard or ops tool can observe cache hits/misses and terminal outcomes
// across every gateway replica, without those replicas sharing any cache
// state (each instance's singleflight.Cache is still authoritative only for
// itself — see spec.md §9's note on global mutable state).
//
// Grounded on the teacher's pkg/cache/redis.go client construction, trimmed
// to the one operation this module needs: Publish.
package pubsub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/go-arcade/cadflight/internal/taskrun"
	"github.com/go-arcade/cadflight/pkg/log"
)

// Config is the connection configuration for the lifecycle-event publisher.
type Config struct {
	Enable       bool
	Address      string
	Password     string
	DB           int
	UseTLS       bool
	Channel      string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Event is one build lifecycle notification.
type Event struct {
	Kind      string `json:"kind"` // "hit" | "miss" | "complete" | "cancelled" | "error"
	Endpoint  string `json:"endpoint"`
	Assembly  string `json:"assembly"`
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher publishes Events to a Redis channel. The zero value is not
// usable; use New, or leave a *Publisher nil to disable publishing
// entirely (New returns nil, nil when cfg.Enable is false).
type Publisher struct {
	client  *redis.Client
	channel string
}

// New connects to cfg.Address and verifies it with Ping. Returns (nil, nil)
// if cfg.Enable is false, so callers can treat a nil *Publisher as a no-op
// the same way internal/buildlog treats a nil *Store.
func New(cfg Config) (*Publisher, error) {
	if !cfg.Enable {
		return nil, nil
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "cadflight:builds"
	}
	log.Infow("pubsub connected", "address", cfg.Address, "channel", channel)
	return &Publisher{client: client, channel: channel}, nil
}

// Publish fires ev to the configured channel on a background goroutine: a
// slow or unreachable Redis must never add latency to the SSE hot path
// that calls Publish from internal/gateway's OnHit/OnMiss/finish hooks.
func (p *Publisher) Publish(ev Event) {
	if p == nil {
		return
	}
	taskrun.Go(context.Background(), func(ctx context.Context) {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Errorf("pubsub: marshal event: %v", err)
			return
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			log.Debugw("pubsub: publish failed", "error", err)
		}
	})
}

// Close releases the underlying Redis connection pool.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
