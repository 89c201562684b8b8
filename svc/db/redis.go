package db

import (
	"clipstash/cfg"
	"clipstash/metrics"
	"clipstash/pkg/domain"
	"clipstash/svc/util"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client       *redis.Client
	timeout      time.Duration
	pingInterval time.Duration
	connected    atomic.Bool
	quit         chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
}

// NewRedis builds the client and starts the connection monitor. An
// unreachable server is not an error: the tier starts disconnected and the
// monitor flips it once a ping succeeds.
func NewRedis(ctx context.Context, url string, c *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.PoolTimeout = c.DurableTimeout
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.DialTimeout = c.DurableTimeout
	opt.ReadTimeout = c.DurableTimeout
	opt.WriteTimeout = c.DurableTimeout
	opt.MaxRetries = c.DurableMaxRetries
	opt.MinRetryBackoff = c.DurableRetryBackoff
	opt.MaxRetryBackoff = c.DurableRetryBackoff
	if c.DurableTLS {
		if opt.TLSConfig, err = redisTLS(opt.TLSConfig, c); err != nil {
			return nil, err
		}
	}
	if c.DurableUsername != "" {
		opt.Username = c.DurableUsername
	}
	if c.DurablePassword.Value() != "" {
		opt.Password = c.DurablePassword.Value()
	}
	r := &Redis{
		client:       redis.NewClient(opt),
		timeout:      c.DurableTimeout,
		pingInterval: c.DurablePingInterval,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if r.pingInterval <= 0 {
		r.pingInterval = 10 * time.Second
	}
	r.client.AddHook(lifecycleHook{r: r})
	metrics.DurableConnected.Set(0)
	if err := r.Ping(ctx); err != nil {
		util.Warn().Err(err).Str("addr", opt.Addr).Msg("redis unreachable at startup, continuing fast-tier-only")
	}
	go r.monitor()
	return r, nil
}
// redisTLS extends base (set by ParseURL for rediss://) with the configured
// server name and CA bundle. Without a bundle the system roots apply.
func redisTLS(base *tls.Config, c *cfg.Cfg) (*tls.Config, error) {
	tc := base
	if tc == nil {
		tc = &tls.Config{}
	}
	tc.MinVersion = tls.VersionTLS12
	if c.DurableTLSServerName != "" {
		tc.ServerName = c.DurableTLSServerName
	}
	if c.DurableTLSCACert == "" {
		return tc, nil
	}
	pem, err := os.ReadFile(c.DurableTLSCACert)
	if err != nil {
		return nil, errors.Wrap(err, "read DURABLE_TLS_CA_CERT")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Errorf("DURABLE_TLS_CA_CERT %s holds no PEM certificates", c.DurableTLSCACert)
	}
	tc.RootCAs = pool
	return tc, nil
}

// errTierTimeout is the cancellation cause of deadlines the tier sets itself.
// Only those count against the connection; a caller's own deadline does not.
var errTierTimeout = errors.New("durable tier timeout")

func (r *Redis) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, r.timeout, errTierTimeout)
}
func (r *Redis) Name() string { return "redis" }
func (r *Redis) Connected() bool {
	return r.connected.Load()
}
func (r *Redis) setConnected(up bool) {
	if r.connected.Swap(up) == up {
		return
	}
	if up {
		metrics.DurableConnected.Set(1)
		util.Info().Msg("durable tier connected")
		return
	}
	metrics.DurableConnected.Set(0)
	util.Warn().Msg("durable tier disconnected")
}
func (r *Redis) monitor() {
	defer close(r.done)
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.Ping(context.Background()); err != nil {
				util.Debug().Err(err).Msg("durable tier ping failed")
			}
		case <-r.quit:
			return
		}
	}
}
func (r *Redis) Put(ctx context.Context, clip *domain.Clip, ttl time.Duration) error {
	if ttl < time.Second {
		ttl = time.Second
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	data, err := json.Marshal(clip)
	if err != nil {
		return errors.Wrap(err, "marshal clip")
	}
	return errors.Wrap(r.client.Set(ctx, keyPrefix+clip.ID, data, ttl.Truncate(time.Second)).Err(), "set clip")
}
func (r *Redis) Get(ctx context.Context, id string) (*domain.Clip, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	data, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get clip")
	}
	var clip domain.Clip
	if err := json.Unmarshal(data, &clip); err != nil {
		return nil, errors.Wrap(err, "unmarshal clip")
	}
	return &clip, nil
}
func (r *Redis) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	n, err := r.client.Del(ctx, keyPrefix+id).Result()
	if err != nil {
		return false, errors.Wrap(err, "delete clip")
	}
	return n > 0, nil
}

// Count uses KEYS, which is O(n) on the server. Clips are short-lived and the
// stats endpoint is the only caller.
func (r *Redis) Count(ctx context.Context) (int, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	keys, err := r.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return 0, errors.Wrap(err, "keys")
	}
	return len(keys), nil
}
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Close stops the monitor and closes the pool. In-flight commands finish or
// fail with redis.ErrClosed.
func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.quit)
		<-r.done
		err = r.client.Close()
		r.setConnected(false)
	})
	return err
}
