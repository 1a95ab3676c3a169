// Package engine orchestrates quote generation: per-member fan-out over
// the rate-limited marketplace collaborators, the single group-level
// affordability calculation, aggregation, caching and offline
// re-filtering of stored quotes.
package engine

import (
	"context"
	"sync"
	"time"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/common/metrics"
	"ichra-quotes/internal/models"
)

// QuoteStore persists assembled quotes beyond the cache TTL.
type QuoteStore interface {
	Save(ctx context.Context, quote *models.QuoteResult) error
	Get(ctx context.Context, quoteID string) (*models.QuoteResult, error)
}

// ComplianceProvider yields the group's affordability calculation. The
// coordinator submits at most once per group and may return a pending
// snapshot when the external service has not finished.
type ComplianceProvider interface {
	Ensure(ctx context.Context, group *models.Group, waitSync bool) (*models.AffordabilityCalculation, error)
}

// Options tunes the engine.
type Options struct {
	// MemberFanOut bounds concurrent per-member pipelines.
	MemberFanOut int
}

// Engine is the exposed quote surface.
type Engine struct {
	builder    *MemberQuoteBuilder
	compliance ComplianceProvider
	aggregator *QuoteAggregator
	reapplier  *FilterReapplier
	cache      QuoteCache
	store      QuoteStore
	opts       Options
	log        logger.Logger
}

func New(
	builder *MemberQuoteBuilder,
	compliance ComplianceProvider,
	aggregator *QuoteAggregator,
	reapplier *FilterReapplier,
	cache QuoteCache,
	store QuoteStore,
	opts Options,
	log logger.Logger,
) *Engine {
	if opts.MemberFanOut <= 0 {
		opts.MemberFanOut = 8
	}
	return &Engine{
		builder:    builder,
		compliance: compliance,
		aggregator: aggregator,
		reapplier:  reapplier,
		cache:      cache,
		store:      store,
		opts:       opts,
		log:        log.WithFields(map[string]interface{}{"component": "quote-engine"}),
	}
}

// memberOutcome carries one fan-out task's result back in input order.
type memberOutcome struct {
	index  int
	result *models.MemberQuoteResult
	skip   *models.MemberSkip
	err    error
}

// GenerateGroupQuote runs the full pipeline for a group. A cached quote
// for the same (group, filters) pair is returned as-is without touching
// any external service.
func (e *Engine) GenerateGroupQuote(ctx context.Context, group *models.Group, filters models.PlanFilters) (*models.QuoteResult, error) {
	if err := validateOfferFilters(filters); err != nil {
		return nil, err
	}
	filters = normalizeFilters(filters)

	if cached, ok := e.cache.Get(ctx, group.ID, filters); ok {
		e.log.Info("quote served from cache", map[string]interface{}{
			"groupId": group.ID,
			"quoteId": cached.ID,
		})
		return cached, nil
	}

	start := time.Now()

	// The affordability submission is a group-level resource shared by
	// the run; it proceeds alongside the member fan-out.
	type complianceOutcome struct {
		calc *models.AffordabilityCalculation
		err  error
	}
	complianceCh := make(chan complianceOutcome, 1)
	go func() {
		calc, err := e.compliance.Ensure(ctx, group, true)
		complianceCh <- complianceOutcome{calc: calc, err: err}
	}()

	results, skips, err := e.fanOutMembers(ctx, group, filters)
	if err != nil {
		metrics.QuotesGenerated.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(results) == 0 {
		metrics.QuotesGenerated.WithLabelValues("error").Inc()
		return nil, errs.NewNoPlansAvailableError("every member in group " + group.ID + " was dropped")
	}

	compliance := <-complianceCh
	if compliance.err != nil {
		metrics.QuotesGenerated.WithLabelValues("error").Inc()
		return nil, compliance.err
	}

	quote, err := e.aggregator.Aggregate(group, filters, results, skips, compliance.calc)
	if err != nil {
		metrics.QuotesGenerated.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := e.store.Save(ctx, quote); err != nil {
		metrics.QuotesGenerated.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := e.cache.Set(ctx, quote); err != nil {
		// The quote is already persisted; a cache write failure only
		// costs the next caller a regeneration.
		e.log.WithError(err).Warn("quote cache write failed", map[string]interface{}{
			"quoteId": quote.ID,
		})
	}

	metrics.QuotesGenerated.WithLabelValues("success").Inc()
	e.log.Info("group quote generated", map[string]interface{}{
		"groupId":    group.ID,
		"quoteId":    quote.ID,
		"members":    len(results),
		"skipped":    len(skips),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return quote, nil
}

// ApplyFiltersToQuote re-derives a comparison view from a stored quote
// under a new filter set. Purely offline; no pricing or compliance call
// is made.
func (e *Engine) ApplyFiltersToQuote(ctx context.Context, quoteID string, filters models.PlanFilters) (*models.FilteredQuoteView, error) {
	quote, err := e.store.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status == models.QuoteStatusExpired || time.Now().After(quote.ExpiresAt) {
		return nil, errs.NewQuoteExpiredError(quoteID)
	}
	return e.reapplier.Reapply(quote, filters)
}

// InvalidateGroup drops the group's cached quotes after an administrative
// pricing-data change. Stored quotes are unaffected.
func (e *Engine) InvalidateGroup(ctx context.Context, groupID string) error {
	return e.cache.InvalidateGroup(ctx, groupID)
}

// fanOutMembers runs the per-member pipeline concurrently, bounded by
// MemberFanOut, and reassembles results in input order. Presentation
// order mirrors the roster; computation order is unspecified.
func (e *Engine) fanOutMembers(ctx context.Context, group *models.Group, filters models.PlanFilters) ([]models.MemberQuoteResult, []models.MemberSkip, error) {
	outcomes := make([]memberOutcome, len(group.Members))
	sem := make(chan struct{}, e.opts.MemberFanOut)
	var wg sync.WaitGroup

	for i, member := range group.Members {
		wg.Add(1)
		go func(i int, member models.Member) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, skip, err := e.builder.Build(ctx, group, member, filters)
			outcomes[i] = memberOutcome{index: i, result: result, skip: skip, err: err}
		}(i, member)
	}
	wg.Wait()

	var results []models.MemberQuoteResult
	var skips []models.MemberSkip
	for _, out := range outcomes {
		if out.err != nil {
			return nil, nil, out.err
		}
		if out.skip != nil {
			skips = append(skips, *out.skip)
			continue
		}
		results = append(results, *out.result)
	}
	return results, skips, nil
}

// normalizeFilters fills market defaults: neither flag set means both
// markets are candidates.
func normalizeFilters(filters models.PlanFilters) models.PlanFilters {
	if !filters.OnMarket && !filters.OffMarket {
		filters.OnMarket = true
		filters.OffMarket = true
	}
	return filters
}
