package geodata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Service names used for throttling and in APIError.
const (
	ServiceNominatim  = "nominatim"
	ServiceOverpass   = "overpass"
	ServiceElevation  = "elevation"
	ServiceWeather    = "weather"
	ServiceAirQuality = "airquality"
)

// RateLimiter holds one token bucket per upstream service. Services with
// several mirrors (Overpass) get one bucket per endpoint host, each with the
// service's policy, so a busy mirror never starves the fallbacks. Each Client
// owns its own RateLimiter so tests and separate binaries never share a
// budget.
type RateLimiter struct {
	mu        sync.RWMutex
	limiters  map[string]*rate.Limiter
	endpoints map[string]*rate.Limiter // service + "|" + host
}

// NewRateLimiter applies the public usage policies:
//
//	Nominatim: 1 request per second
//	Overpass:  1 request per 5 seconds, bursts of 4, per mirror
//	others:    5 per second
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: map[string]*rate.Limiter{
			ServiceNominatim:  rate.NewLimiter(rate.Every(time.Second), 1),
			ServiceOverpass:   rate.NewLimiter(rate.Every(5*time.Second), 4),
			ServiceElevation:  rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
			ServiceWeather:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
			ServiceAirQuality: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		},
		endpoints: make(map[string]*rate.Limiter),
	}
}

// NewUnlimitedRateLimiter never blocks. Meant for tests and self-hosted
// upstreams.
func NewUnlimitedRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		endpoints: make(map[string]*rate.Limiter),
	}
	for _, s := range []string{ServiceNominatim, ServiceOverpass, ServiceElevation, ServiceWeather, ServiceAirQuality} {
		rl.limiters[s] = rate.NewLimiter(rate.Inf, 0)
	}
	return rl
}

// Set replaces the limiter for service. Per-endpoint buckets derived from
// the old policy are dropped.
func (rl *RateLimiter) Set(service string, l *rate.Limiter) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters[service] = l
	prefix := service + "|"
	for k := range rl.endpoints {
		if strings.HasPrefix(k, prefix) {
			delete(rl.endpoints, k)
		}
	}
}

// Wait blocks until service may be called or ctx is done. If the wait would
// outlast ctx's deadline it fails immediately.
func (rl *RateLimiter) Wait(ctx context.Context, service string) error {
	rl.mu.RLock()
	limiter, ok := rl.limiters[service]
	rl.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no rate limiter defined for service: %s", service)
	}
	return limiter.Wait(ctx)
}

// WaitEndpoint is Wait against the bucket of one endpoint host of service.
// The bucket is created on first use with the service's limit and burst.
func (rl *RateLimiter) WaitEndpoint(ctx context.Context, service, endpoint string) error {
	limiter, err := rl.endpointLimiter(service, endpoint)
	if err != nil {
		return err
	}
	return limiter.Wait(ctx)
}

func (rl *RateLimiter) endpointLimiter(service, endpoint string) (*rate.Limiter, error) {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}
	key := service + "|" + host

	rl.mu.RLock()
	l, ok := rl.endpoints[key]
	rl.mu.RUnlock()
	if ok {
		return l, nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.endpoints[key]; ok {
		return l, nil
	}
	policy, ok := rl.limiters[service]
	if !ok {
		return nil, fmt.Errorf("no rate limiter defined for service: %s", service)
	}
	l = rate.NewLimiter(policy.Limit(), policy.Burst())
	rl.endpoints[key] = l
	return l, nil
}
