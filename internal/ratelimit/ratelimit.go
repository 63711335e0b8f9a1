// Package ratelimit throttles writes to a key-value store.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/thingswise/etcdstat/internal/kv"
)

// Limiter admits a steady number of writes per second. A zero or negative
// rate disables throttling.
type Limiter struct {
	limiter *rate.Limiter
}

func New(writesPerSecond float64) *Limiter {
	if writesPerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(writesPerSecond), 1)}
}

func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetLimit changes the rate at runtime.
func (l *Limiter) SetLimit(writesPerSecond float64) {
	if writesPerSecond <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(writesPerSecond))
}

// Limit returns the configured rate, 0 when unlimited.
func (l *Limiter) Limit() float64 {
	limit := l.limiter.Limit()
	if limit == rate.Inf {
		return 0
	}
	return float64(limit)
}

// Writer wraps w so every Put and Append first waits for l.
func Writer(w kv.Writer, l *Limiter) kv.Writer {
	if l == nil || l.Limit() == 0 {
		return w
	}
	return &limitedWriter{w: w, l: l}
}

type limitedWriter struct {
	w kv.Writer
	l *Limiter
}

func (lw *limitedWriter) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := lw.l.Wait(ctx); err != nil {
		return err
	}
	return lw.w.Put(ctx, key, value, ttl)
}

func (lw *limitedWriter) Append(ctx context.Context, dir, value string, ttl time.Duration) (string, error) {
	if err := lw.l.Wait(ctx); err != nil {
		return "", err
	}
	return lw.w.Append(ctx, dir, value, ttl)
}
