package aggregator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradedesk/internal/cache"
	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
	"tradedesk/internal/ratelimit"
	"tradedesk/internal/sources"
)

const (
	// DefaultQuoteTTL bounds how long a fetched quote stays usable.
	DefaultQuoteTTL = 30 * time.Second
	// DefaultSourceTimeout caps a single source call during fan-out.
	DefaultSourceTimeout = 12 * time.Second
)

// Aggregator fans a quote request out to every source serving the chain
// family, tolerates partial failure, and ranks what comes back.
type Aggregator struct {
	registry *sources.Registry
	cache    *cache.Cache[string, []model.Quote]
	limiter  *ratelimit.Limiter
	log      *zap.Logger
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// Result is one aggregation round: ranked quotes plus per-source outcomes.
type Result struct {
	Quotes  []model.Quote        `json:"quotes"`
	Sources []model.SourceStatus `json:"sources"`
	Cache   model.CacheStatus    `json:"cache"`
}

type Option func(*Aggregator)

func WithTTL(ttl time.Duration) Option {
	return func(a *Aggregator) {
		a.ttl = ttl
		a.cache = cache.New[string, []model.Quote](ttl)
	}
}

func WithSourceTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func New(registry *sources.Registry, limiter *ratelimit.Limiter, log *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: registry,
		cache:    cache.New[string, []model.Quote](DefaultQuoteTTL),
		limiter:  limiter,
		log:      log,
		ttl:      DefaultQuoteTTL,
		timeout:  DefaultSourceTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cache.WithClock(a.now)
	return a
}

// Quotes returns ranked quotes for the request. Validation failures never
// reach a source; a cache hit within the TTL short-circuits the fan-out.
func (a *Aggregator) Quotes(ctx context.Context, family chain.Family, req sources.Request) (Result, error) {
	if err := validate(family, req); err != nil {
		return Result{}, err
	}

	key := cacheKey(family, req)
	if quotes, age, ok := a.cache.Get(key); ok {
		return Result{
			Quotes: quotes,
			Cache:  model.CacheStatus{Status: model.CacheHit, AgeMS: age.Milliseconds()},
		}, nil
	}

	candidates := a.registry.ForFamily(family)
	if len(candidates) == 0 {
		return Result{}, apperr.New(apperr.CodeUnsupportedChain, fmt.Sprintf("no quote sources registered for %s", family))
	}

	quotes, statuses := a.fanOut(ctx, candidates, req)
	result := Result{
		Sources: statuses,
		Cache:   model.CacheStatus{Status: model.CacheMiss},
	}
	if len(quotes) == 0 {
		return result, apperr.New(apperr.CodeAllSourcesFailed, "no quote source returned a usable quote")
	}

	rank(quotes)
	result.Quotes = quotes
	a.cache.Set(key, quotes)
	return result, nil
}

// Invalidate drops any cached round for the request.
func (a *Aggregator) Invalidate(family chain.Family, req sources.Request) {
	a.cache.Delete(cacheKey(family, req))
}

func (a *Aggregator) fanOut(ctx context.Context, candidates []sources.Source, req sources.Request) ([]model.Quote, []model.SourceStatus) {
	var (
		mu       sync.Mutex
		quotes   []model.Quote
		statuses = make([]model.SourceStatus, len(candidates))
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range candidates {
		i, src := i, src
		g.Go(func() error {
			statuses[i] = a.querySource(ctx, src, req, func(q model.Quote) {
				mu.Lock()
				quotes = append(quotes, q)
				mu.Unlock()
			})
			return nil
		})
	}
	_ = g.Wait()
	return quotes, statuses
}

func (a *Aggregator) querySource(ctx context.Context, src sources.Source, req sources.Request, accept func(model.Quote)) model.SourceStatus {
	name := src.Name()
	if err := a.limiter.Allow(name); err != nil {
		a.log.Debug("source call rejected by local rate limit", zap.String("source", name))
		return model.SourceStatus{Name: name, Status: model.SourceRateLimited, Error: err.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := a.now()
	quote, err := src.Quote(callCtx, req)
	latency := a.now().Sub(start).Milliseconds()
	if err != nil {
		status := model.SourceFailed
		switch {
		case apperr.Is(err, apperr.CodeTimeout):
			status = model.SourceTimeout
		case apperr.Is(err, apperr.CodeRateLimited):
			status = model.SourceRateLimited
		}
		a.log.Warn("quote source failed",
			zap.String("source", name),
			zap.Int64("latency_ms", latency),
			zap.Error(err))
		return model.SourceStatus{Name: name, Status: status, LatencyMS: latency, Error: err.Error()}
	}

	quote.ValidUntil = quote.FetchedAt.Add(a.ttl)
	accept(quote)
	return model.SourceStatus{Name: name, Status: model.SourceOK, LatencyMS: latency}
}

func validate(family chain.Family, req sources.Request) error {
	if !family.Valid() {
		return apperr.New(apperr.CodeUnsupportedChain, fmt.Sprintf("unsupported chain family: %s", family))
	}
	if req.FromToken.IsZero() || req.ToToken.IsZero() {
		return apperr.New(apperr.CodeValidation, "both tokens are required")
	}
	if req.FromToken.Family != family || req.ToToken.Family != family {
		return apperr.New(apperr.CodeValidation, "tokens must belong to the requested chain family")
	}
	if chain.AddressEqual(family, req.FromToken.Address, req.ToToken.Address) {
		return apperr.New(apperr.CodeValidation, "from and to tokens must differ")
	}
	amount, ok := new(big.Int).SetString(req.AmountBaseUnits, 10)
	if !ok || amount.Sign() <= 0 {
		return apperr.New(apperr.CodeValidation, "amount must be greater than zero")
	}
	return nil
}

func cacheKey(family chain.Family, req sources.Request) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d",
		family, req.FromToken.ID, req.ToToken.ID, req.AmountBaseUnits, req.SlippageBps)))
	return hex.EncodeToString(sum[:])
}

// rank orders quotes best-first: highest output amount wins, price impact
// breaks ties, source name keeps the order deterministic.
func rank(quotes []model.Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		a, aok := new(big.Int).SetString(quotes[i].ToAmount.AmountBaseUnits, 10)
		b, bok := new(big.Int).SetString(quotes[j].ToAmount.AmountBaseUnits, 10)
		if aok && bok {
			if cmp := a.Cmp(b); cmp != 0 {
				return cmp > 0
			}
		} else if aok != bok {
			return aok
		}
		if quotes[i].PriceImpactPct != quotes[j].PriceImpactPct {
			return quotes[i].PriceImpactPct < quotes[j].PriceImpactPct
		}
		return quotes[i].Source < quotes[j].Source
	})
}
