// Package kv provides a distributed counter store backed by Valkey,
// implementing ports.RateLimitKV and ports.QuotaKV for multi-instance
// deployments (config.KVConfig.Mode == "valkey").
package kv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/svcgate/gateway/ports"
)

// Config configures the Valkey connection.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	DB        int
	TLS       bool
}

// CounterStore is a Valkey-backed counter store shared by the rate
// limiter (60s fixed window) and the quota tracker (daily/monthly
// boundary TTLs). Both reduce to the same "increment, set TTL only on
// creation, read without side effects" contract.
type CounterStore struct {
	client valkey.Client
}

// NewCounterStore dials Valkey and verifies connectivity with a PING.
func NewCounterStore(cfg Config) (*CounterStore, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("kv: at least one address required")
	}

	option := valkey.ClientOption{
		InitAddress:       cfg.Addresses,
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}
	if cfg.TLS {
		option.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("kv: create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: ping: %w", err)
	}

	return &CounterStore{client: client}, nil
}

// Incr increments the counter at key and returns the new value. The TTL
// is attached only when this call creates the key (INCR returns 1),
// matching the fixed-window and quota-boundary semantics: an existing
// window is never extended by a later request.
func (s *CounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	resp := s.client.Do(ctx, s.client.B().Incr().Key(key).Build())
	n, err := resp.ToInt64()
	if err != nil {
		return 0, fmt.Errorf("kv: incr %s: %w", key, err)
	}
	if n == 1 && ttl > 0 {
		expireCmd := s.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build()
		if err := s.client.Do(ctx, expireCmd).Error(); err != nil {
			return n, fmt.Errorf("kv: expire %s: %w", key, err)
		}
	}
	return n, nil
}

// Get reads the current counter value without incrementing it, returning
// 0 for a missing key.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("kv: get %s: %w", key, err)
	}
	n, err := resp.ToInt64()
	if err != nil {
		return 0, fmt.Errorf("kv: get %s parse: %w", key, err)
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (s *CounterStore) Close() error {
	s.client.Close()
	return nil
}

// HealthCheck pings Valkey, for the gateway's /readyz probe.
func (s *CounterStore) HealthCheck(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

var (
	_ ports.RateLimitKV = (*CounterStore)(nil)
	_ ports.QuotaKV     = (*CounterStore)(nil)
)
