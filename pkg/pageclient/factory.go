package pageclient

import (
	"time"

	"runwayscraper/pkg/config"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/ratelimit"
)

// Factory builds page clients. Every worker gets its own client from New so
// no two goroutines ever share a collector or browser; the rate limit is the
// only thing they share, keeping the aggregate request rate bounded no
// matter how many workers run.
type Factory struct {
	source   config.SourceConfig
	limiter  ratelimit.Limiter
	observer FetchObserver
	log      logger.Logger
}

// NewFactory builds a factory with a shared token-bucket limiter sized from
// the rate limit config.
func NewFactory(source config.SourceConfig, rate config.RateLimitConfig, log logger.Logger) *Factory {
	// The bucket refills to capacity each period, so a burst of B at R
	// requests per minute needs a period of B/R minutes.
	refill := time.Minute * time.Duration(rate.BurstSize) / time.Duration(rate.RequestsPerMinute)
	return &Factory{
		source:  source,
		limiter: ratelimit.NewTokenBucket(rate.BurstSize, refill),
		log:     log,
	}
}

// SetObserver registers a fetch observer applied to every client the factory
// builds from then on.
func (f *Factory) SetObserver(observer FetchObserver) {
	f.observer = observer
}

// New constructs a fresh client for one worker.
func (f *Factory) New() (PageClient, error) {
	var client PageClient

	switch f.source.Client {
	case "http", "":
		httpClient, err := NewHTTPClient(f.source, f.limiter, f.log)
		if err != nil {
			return nil, err
		}
		httpClient.observer = f.observer
		client = httpClient
	case "browser":
		browserClient, err := NewBrowserClient(f.source, f.limiter, f.log)
		if err != nil {
			return nil, err
		}
		browserClient.observer = f.observer
		client = browserClient
	default:
		return nil, errors.Validation("unknown page client %q", f.source.Client)
	}

	if f.source.PageCacheSize > 0 {
		cached, err := NewCachingClient(client, f.source.PageCacheSize)
		if err != nil {
			return nil, err
		}
		cached.observer = f.observer
		return cached, nil
	}
	return client, nil
}
