package db

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// lifecycleHook derives the connected flag from what the client observes:
// dials and command results. Server replies (including redis.Nil) prove the
// connection is alive; transport failures mark it down.
type lifecycleHook struct {
	r *Redis
}

func (h lifecycleHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			if !callerGaveUp(ctx) {
				h.r.setConnected(false)
			}
			return nil, err
		}
		h.r.setConnected(true)
		return conn, nil
	}
}
func (h lifecycleHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		h.observe(ctx, err)
		return err
	}
}
func (h lifecycleHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		h.observe(ctx, err)
		return err
	}
}
// observe leaves the flag alone when the command died with the caller's
// context, so a request deadline or a disconnecting client says nothing about
// the server.
func (h lifecycleHook) observe(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil && callerGaveUp(ctx) {
		return
	}
	if isTransportErr(err) {
		h.r.setConnected(false)
		return
	}
	h.r.setConnected(true)
}
func isTransportErr(err error) bool {
	if err == nil || err == redis.Nil || errors.Is(err, context.Canceled) {
		return false
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return false
	}
	return true
}
func callerGaveUp(ctx context.Context) bool {
	return ctx.Err() != nil && context.Cause(ctx) != errTierTimeout
}
