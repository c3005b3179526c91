package lock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another holder is never released by us.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript extends the lease only while the key still holds our token.
var renewScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// ValkeyLocker implements Locker across processes using Valkey leases
type ValkeyLocker struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewValkeyLocker connects to Valkey and returns a locker whose leases expire
// after ttl if the holder dies. Held leases are renewed every ttl/3 until
// released.
func NewValkeyLocker(addr string, ttl time.Duration) (*ValkeyLocker, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	slog.Info("Initialized Valkey locker", "address", addr, "ttl", ttl)
	return NewValkeyLockerWithClient(client, ttl), nil
}

// NewValkeyLockerWithClient wraps an existing client
func NewValkeyLockerWithClient(client valkey.Client, ttl time.Duration) *ValkeyLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &ValkeyLocker{
		client: client,
		prefix: "portal:lock:",
		ttl:    ttl,
		retry:  50 * time.Millisecond,
	}
}

// Lock acquires key with SET NX PX, polling until ctx is done
func (l *ValkeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	for {
		cmd := l.client.B().Set().Key(fullKey).Value(token).Nx().PxMilliseconds(l.ttl.Milliseconds()).Build()
		err := l.client.Do(ctx, cmd).Error()
		if err == nil {
			break
		}
		if !valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, l.ttl/3, func(rctx context.Context) (bool, error) {
			n, err := renewScript.Exec(rctx, l.client, []string{fullKey},
				[]string{token, strconv.FormatInt(l.ttl.Milliseconds(), 10)}).AsInt64()
			return n == 1, err
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// Release must happen even if the request context is already cancelled.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Exec(rctx, l.client, []string{fullKey}, []string{token}).Error(); err != nil {
				slog.Warn("Failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

// keepAlive calls renew every interval until stop is closed or renew reports
// that the lease is no longer ours.
func keepAlive(stop <-chan struct{}, interval time.Duration, renew func(context.Context) (bool, error)) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := renew(ctx)
		cancel()
		if err != nil {
			slog.Warn("Failed to renew lock lease", "error", err)
			continue
		}
		if !held {
			slog.Warn("Lock lease lost before release")
			return
		}
	}
}

// Close closes the underlying client
func (l *ValkeyLocker) Close() error {
	l.client.Close()
	return nil
}
