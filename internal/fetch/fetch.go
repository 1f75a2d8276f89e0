// Package fetch runs one gamma exposure fetch end to end: token exchange,
// feed handshake, spot discovery, bounded collection, aggregation. Each
// fetch opens and fully tears down its own feed connection.
package fetch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/auth"
	"github.com/dgnsrekt/gexstream/internal/chain"
	"github.com/dgnsrekt/gexstream/internal/collect"
	"github.com/dgnsrekt/gexstream/internal/config"
	"github.com/dgnsrekt/gexstream/internal/dxlink"
	"github.com/dgnsrekt/gexstream/internal/gex"
)

// Params selects one underlying/expiration to fetch. Prefix and Increment
// override the preset for custom underlyings; SpotOverride skips live
// spot discovery.
type Params struct {
	Underlying   string
	Expiration   string // YYMMDD
	StrikesAbove int
	StrikesBelow int

	Prefix       string
	Increment    float64
	SpotOverride float64
}

func (p *Params) resolve(cfg config.FeedConfig) (Params, error) {
	out := *p
	if out.Underlying == "" {
		return out, fmt.Errorf("underlying is required")
	}
	if err := config.ValidateExpiration(out.Expiration); err != nil {
		return out, err
	}
	if out.StrikesAbove == 0 {
		out.StrikesAbove = cfg.StrikesAbove
	}
	if out.StrikesBelow == 0 {
		out.StrikesBelow = cfg.StrikesBelow
	}

	preset, ok := config.PresetFor(out.Underlying)
	if out.Prefix == "" {
		if !ok {
			return out, fmt.Errorf("no preset for %q, prefix required", out.Underlying)
		}
		out.Prefix = preset.Prefix
	}
	if out.Increment <= 0 {
		if !ok {
			return out, fmt.Errorf("no preset for %q, increment required", out.Underlying)
		}
		out.Increment = preset.Increment
	}
	return out, nil
}

// Fetcher executes fetches against one credential set. The token manager
// is the only state shared between fetches.
type Fetcher struct {
	tokens *auth.Manager
	cfg    config.FeedConfig
	logger *zap.Logger
}

// New creates a fetcher.
func New(tokens *auth.Manager, cfg config.FeedConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
	}
}

// spotWatch tracks the best available underlying price during the spot
// discovery phase. A trade print beats a quote midpoint.
type spotWatch struct {
	mu      sync.Mutex
	trade   float64
	mid     float64
	tradeCh chan struct{}
	once    sync.Once
}

func newSpotWatch() *spotWatch {
	return &spotWatch{tradeCh: make(chan struct{})}
}

func (w *spotWatch) observe(ev dxlink.Event) {
	switch e := ev.(type) {
	case dxlink.TradeEvent:
		if !math.IsNaN(e.Price) && e.Price > 0 {
			w.mu.Lock()
			w.trade = e.Price
			w.mu.Unlock()
			w.once.Do(func() { close(w.tradeCh) })
		}
	case dxlink.QuoteEvent:
		mid := e.Mid()
		if !math.IsNaN(mid) && mid > 0 {
			w.mu.Lock()
			w.mid = mid
			w.mu.Unlock()
		}
	}
}

func (w *spotWatch) best() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.trade > 0 {
		return w.trade
	}
	return w.mid
}

// Fetch performs one complete fetch and returns the aggregated snapshot.
// Cancellation or window expiry before completeness still yields a
// snapshot, flagged Complete=false, as long as the chain was built; a
// cancellation during spot discovery returns the context error.
func (f *Fetcher) Fetch(ctx context.Context, params Params) (*gex.Snapshot, error) {
	p, err := params.resolve(f.cfg)
	if err != nil {
		return nil, err
	}

	token, wsURL, err := f.tokens.StreamerToken(ctx, false)
	if err != nil {
		return nil, err
	}

	client := dxlink.NewClient(dxlink.Options{
		URL:              wsURL,
		Token:            token.Value,
		KeepaliveTimeout: time.Duration(f.cfg.KeepaliveSec) * time.Second,
		AuthTimeout:      time.Duration(f.cfg.AuthTimeoutSec) * time.Second,
		Logger:           f.logger,
	})
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Close()

	watch := newSpotWatch()
	var collectorMu sync.Mutex
	var collector *collect.Collector
	completeCh := make(chan struct{})
	var completeOnce sync.Once

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErr := make(chan error, 1)
	go func() {
		runErr <- client.Run(runCtx, func(ev dxlink.Event) {
			if ev.EventSymbol() == p.Underlying {
				watch.observe(ev)
			}
			collectorMu.Lock()
			c := collector
			collectorMu.Unlock()
			if c != nil {
				c.Apply(ev)
				if c.Complete() {
					completeOnce.Do(func() { close(completeCh) })
				}
			}
		})
	}()

	spot, err := f.resolveSpot(ctx, client, p, watch, runErr)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("spot resolved",
		zap.String("underlying", p.Underlying),
		zap.Float64("spot", spot),
	)

	ch, err := chain.Build(p.Underlying, p.Prefix, p.Expiration, spot, p.StrikesAbove, p.StrikesBelow, p.Increment)
	if err != nil {
		return nil, err
	}

	c := collect.New(ch.Symbols())
	collectorMu.Lock()
	collector = c
	collectorMu.Unlock()

	subs := make([]dxlink.Subscription, 0, 4*len(ch.Symbols())+4)
	kinds := []dxlink.EventKind{dxlink.KindQuote, dxlink.KindTrade, dxlink.KindGreeks, dxlink.KindSummary}
	for _, kind := range kinds {
		subs = append(subs, dxlink.Subscription{Symbol: p.Underlying, Type: kind})
	}
	for _, sym := range ch.Symbols() {
		for _, kind := range kinds {
			subs = append(subs, dxlink.Subscription{Symbol: sym, Type: kind})
		}
	}
	if err := client.Subscribe(subs); err != nil {
		return nil, err
	}

	window := time.NewTimer(time.Duration(f.cfg.WindowSec) * time.Second)
	defer window.Stop()

	complete := false
	runDone := false
	select {
	case <-completeCh:
		complete = true
	case <-window.C:
	case <-ctx.Done():
	case err := <-runErr:
		runDone = true
		if err != nil {
			return nil, err
		}
	}
	cancelRun()
	if !runDone {
		<-runErr
	}

	if !complete {
		missing := c.Missing()
		f.logger.Warn("collection window closed incomplete",
			zap.String("underlying", p.Underlying),
			zap.Int("missing", len(missing)),
			zap.Int("applied", c.Applied()),
		)
	}

	return gex.Aggregate(spot, c.Snapshot(), ch, complete), nil
}

// resolveSpot returns the center price for the chain: the explicit
// override, a live trade print, a quote midpoint observed within the spot
// timeout, or the preset default, in that order.
func (f *Fetcher) resolveSpot(ctx context.Context, client *dxlink.Client, p Params, watch *spotWatch, runErr <-chan error) (float64, error) {
	if p.SpotOverride > 0 {
		return p.SpotOverride, nil
	}

	subs := []dxlink.Subscription{
		{Symbol: p.Underlying, Type: dxlink.KindTrade},
		{Symbol: p.Underlying, Type: dxlink.KindQuote},
	}
	if err := client.Subscribe(subs); err != nil {
		return 0, err
	}

	timeout := time.NewTimer(time.Duration(f.cfg.SpotTimeoutSec) * time.Second)
	defer timeout.Stop()

	select {
	case <-watch.tradeCh:
	case <-timeout.C:
	case <-ctx.Done():
		return 0, ctx.Err()
	case err := <-runErr:
		if err == nil {
			err = fmt.Errorf("%w: feed closed during spot discovery", dxlink.ErrConnection)
		}
		return 0, err
	}

	if spot := watch.best(); spot > 0 {
		return spot, nil
	}

	preset, ok := config.PresetFor(p.Underlying)
	if !ok || preset.DefaultPrice <= 0 {
		return 0, fmt.Errorf("no live price for %q and no preset default", p.Underlying)
	}
	f.logger.Warn("no live price, using preset default",
		zap.String("underlying", p.Underlying),
		zap.Float64("default", preset.DefaultPrice),
	)
	return preset.DefaultPrice, nil
}
