package db

import (
	"clipstash/cfg"
	"clipstash/pkg/domain"
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const keyPrefix = "clip:"

// Durable is the optional second tier. Implementations own their connection
// lifecycle and report it through Connected; the store skips every call
// while it is false.
type Durable interface {
	Name() string
	Connected() bool
	Put(ctx context.Context, clip *domain.Clip, ttl time.Duration) error
	// Get returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, id string) (*domain.Clip, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open picks the durable tier from DURABLE_URL. An empty URL selects Disabled.
func Open(ctx context.Context, c *cfg.Cfg) (Durable, error) {
	u := c.DurableURL
	switch {
	case u == "":
		return Disabled{}, nil
	case strings.HasPrefix(u, "redis://"), strings.HasPrefix(u, "rediss://"):
		return NewRedis(ctx, u, c)
	case strings.HasPrefix(u, "sqlite://"):
		return NewSQLite(strings.TrimPrefix(u, "sqlite://"), c)
	}
	return nil, errors.Errorf("unsupported DURABLE_URL scheme: %s", u)
}

var ErrDisabled = errors.New("durable tier disabled")

// Disabled is the fast-tier-only mode.
type Disabled struct{}

func (Disabled) Name() string    { return "disabled" }
func (Disabled) Connected() bool { return false }
func (Disabled) Put(context.Context, *domain.Clip, time.Duration) error {
	return nil
}
func (Disabled) Get(context.Context, string) (*domain.Clip, error) { return nil, nil }
func (Disabled) Delete(context.Context, string) (bool, error)      { return false, nil }
func (Disabled) Count(context.Context) (int, error)                { return 0, nil }
func (Disabled) Ping(context.Context) error                        { return ErrDisabled }
func (Disabled) Close() error                                      { return nil }
