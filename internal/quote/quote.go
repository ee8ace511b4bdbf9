// Package quote fetches authoritative banner prices from the backend. Quotes
// are cached by configuration, identical in-flight requests share one call,
// and a backend failure degrades to the local estimate.
package quote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/pricing"
)

// PriceSource returns the authoritative price for a configuration.
type PriceSource interface {
	CalculatePrice(ctx context.Context, cfg domain.BannerConfig) (decimal.Decimal, error)
}

type Quote struct {
	Config domain.BannerConfig
	Price  decimal.Decimal
	// Estimate is set when Price came from the local estimator.
	Estimate bool
}

type Quoter struct {
	source  PriceSource
	cache   Cache
	logger  *slog.Logger
	timeout time.Duration
	sfg     singleflight.Group
}

func NewQuoter(source PriceSource, cache Cache, timeout time.Duration, logger *slog.Logger) *Quoter {
	return &Quoter{source: source, cache: cache, timeout: timeout, logger: logger}
}

// Quote prices cfg. Invalid configurations return their validation error;
// every other failure falls back to the local estimate.
func (q *Quoter) Quote(ctx context.Context, cfg domain.BannerConfig) (Quote, error) {
	if err := cfg.Validate(); err != nil {
		return Quote{}, err
	}
	key := cfg.Key()

	if price, err := q.cache.Get(ctx, key); err == nil {
		return Quote{Config: cfg, Price: price}, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		q.logger.Warn("quote cache read failed", "error", err)
	}

	// The shared fetch outlives any single caller so one cancelled request
	// does not fail the others waiting on it.
	ch := q.sfg.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		defer cancel()

		price, err := q.source.CalculatePrice(fetchCtx, cfg)
		if err != nil {
			return nil, err
		}
		if err := q.cache.Set(fetchCtx, key, price); err != nil {
			q.logger.Warn("quote cache write failed", "error", err)
		}
		return price, nil
	})

	select {
	case <-ctx.Done():
		return Quote{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			q.logger.Warn("server quote failed, using estimate", "config", key, "error", res.Err)
			return Quote{Config: cfg, Price: pricing.Estimate(cfg), Estimate: true}, nil
		}
		return Quote{Config: cfg, Price: res.Val.(decimal.Decimal)}, nil
	}
}
