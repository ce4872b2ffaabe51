package labelscan

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"k8s.io/klog/v2"

	"github.com/go-lvm/lvmcache/pkg/lvmcache"
)

// BreakerScanner wraps a Scanner with a circuit breaker, grounded on the
// teacher's pkg/circuitbreaker.VolumeCircuitBreaker. There the breaker
// guards per-volume RDS array calls; here it guards the single blocking
// scan call a command makes (spec §5: the cache itself never retries),
// so a host whose label scan is wedged or repeatedly failing stops being
// hammered every command invocation.
type BreakerScanner struct {
	inner   Scanner
	breaker *gobreaker.CircuitBreaker
}

// Scanner is the subset of lvmcache.Scanner BreakerScanner wraps.
type Scanner interface {
	ScanDevices(ctx context.Context, c *lvmcache.Cache, devices []lvmcache.Device) error
}

const (
	defaultConsecutiveFailures = 3
	defaultOpenTimeout         = 5 * time.Minute
	defaultClosedInterval      = 1 * time.Minute
)

// NewBreakerScanner wraps inner with the teacher's default breaker
// shape: three consecutive failures trip it open for five minutes.
func NewBreakerScanner(inner Scanner) *BreakerScanner {
	settings := gobreaker.Settings{
		Name:        "labelscan",
		MaxRequests: 1,
		Interval:    defaultClosedInterval,
		Timeout:     defaultOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			klog.Infof("labelscan: circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &BreakerScanner{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// ScanDevices implements lvmcache.Scanner.
func (b *BreakerScanner) ScanDevices(ctx context.Context, c *lvmcache.Cache, devices []lvmcache.Device) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.inner.ScanDevices(ctx, c, devices)
	})
	if err == gobreaker.ErrOpenState {
		return fmt.Errorf("labelscan: circuit open after repeated scan failures, not retrying")
	}
	if err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("labelscan: scan already in progress (half-open)")
	}
	return err
}
