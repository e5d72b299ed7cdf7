package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"auction_scout/internal/config"
	"auction_scout/internal/domain"
	"auction_scout/internal/matcher"
	"auction_scout/internal/ratelimit"
	"auction_scout/internal/valuation"
)

// A run is aborted after this many store failures in a row.
const maxConsecutiveStoreErrors = 3

var hundred = decimal.NewFromInt(100)

// Error kinds summarized in a session's error message.
const (
	errKindFetch   = "fetch"
	errKindParse   = "parse"
	errKindListing = "listing"
	errKindStore   = "store"
	errKindPublish = "publish"
)

type slotReporter interface {
	Status() ratelimit.Status
}

type IngestDeps struct {
	Source     Source
	Parser     PageParser
	Governor   Governor
	Reconciler *Reconciler
	Matcher    *matcher.Matcher
	Valuer     Valuer
	Estimator  *valuation.Estimator
	Watchlist  WatchlistStore
	Analyses   ProfitAnalysisStore
	Items      ItemStore
	Sessions   SessionStore
	TxManager  TransactionManager
	// Publisher is optional, alerts are skipped when nil.
	Publisher Publisher
}

// IngestService runs the listing pipeline: fetch, parse, reconcile, match,
// estimate and record, one page and one listing at a time.
type IngestService struct {
	source     Source
	parser     PageParser
	governor   Governor
	reconciler *Reconciler
	matcher    *matcher.Matcher
	valuer     Valuer
	estimator  *valuation.Estimator
	watchlist  WatchlistStore
	analyses   ProfitAnalysisStore
	items      ItemStore
	sessions   SessionStore
	txManager  TransactionManager
	publisher  Publisher
	logger     *slog.Logger
	config     config.SourceConfig
	now        func() time.Time
}

func NewIngestService(deps IngestDeps, logger *slog.Logger, cfg config.SourceConfig) *IngestService {
	return &IngestService{
		source:     deps.Source,
		parser:     deps.Parser,
		governor:   deps.Governor,
		reconciler: deps.Reconciler,
		matcher:    deps.Matcher,
		valuer:     deps.Valuer,
		estimator:  deps.Estimator,
		watchlist:  deps.Watchlist,
		analyses:   deps.Analyses,
		items:      deps.Items,
		sessions:   deps.Sessions,
		txManager:  deps.TxManager,
		publisher:  deps.Publisher,
		logger:     logger.With("source", deps.Source.ID()),
		config:     cfg,
		now:        time.Now,
	}
}

type runState struct {
	tracker           *SessionTracker
	stats             *domain.RunStats
	rules             []domain.WatchRule
	consecutiveErrors int
}

// Run performs one ingestion run under its own scrape session. Cancelling ctx
// stops the run between listings and closes the session as cancelled.
func (s *IngestService) Run(ctx context.Context) (*domain.RunStats, error) {
	startTime := time.Now()
	s.logger.Info("starting ingestion run",
		"source_name", s.source.Name(),
		"max_pages", s.config.MaxPages,
	)

	tracker := NewSessionTracker(s.sessions, s.logger)
	sessionID, err := tracker.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	run := &runState{
		tracker: tracker,
		stats:   &domain.RunStats{SessionID: sessionID},
	}
	runErr := s.ingest(ctx, run)

	// The session is closed even when ctx is done.
	closeCtx := context.WithoutCancel(ctx)

	status := domain.SessionCompleted
	switch {
	case runErr == nil:
		expired, err := s.Sweep(closeCtx)
		if err != nil {
			s.recordStoreError(run, "sweep expired items", err)
		}
		run.stats.Expired = expired
	case ctx.Err() != nil && errors.Is(runErr, ctx.Err()):
		status = domain.SessionCancelled
	default:
		status = domain.SessionFailed
	}

	stats := run.stats
	stats.Status = status
	stats.Found, stats.Flagged = tracker.Counters()

	if err := tracker.Close(closeCtx, status, runErr); err != nil {
		return stats, fmt.Errorf("close session: %w", err)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("ingestion run finished",
		"session_id", sessionID,
		"status", status,
		"pages", stats.Pages,
		"found", stats.Found,
		"created", stats.Created,
		"bid_updated", stats.BidUpdated,
		"deactivated", stats.Deactivated,
		"flagged", stats.Flagged,
		"analyses", stats.Analyses,
		"published", stats.Published,
		"fetch_failures", stats.FetchFailures,
		"parse_errors", stats.ParseErrors,
		"store_errors", stats.StoreErrors,
		"duration", stats.Duration,
	)

	if runErr != nil {
		return stats, fmt.Errorf("ingestion run: %w", runErr)
	}
	return stats, nil
}

// Sweep deactivates every active item whose auction end has passed.
func (s *IngestService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.items.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, &domain.StoreError{Op: "deactivate expired items", Err: err}
	}
	if n > 0 {
		s.logger.Info("deactivated expired items", "count", n)
	}
	return n, nil
}

func (s *IngestService) ingest(ctx context.Context, run *runState) error {
	rules, err := s.watchlist.ListActive(ctx)
	if err != nil {
		return &domain.StoreError{Op: "list watch rules", Err: err}
	}
	run.rules = rules
	s.logger.Debug("loaded watch rules", "count", len(rules))

	for number := 1; number <= s.config.MaxPages; number++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.governor.AwaitNextSlot(ctx); err != nil {
			return err
		}
		if r, ok := s.governor.(slotReporter); ok {
			st := r.Status()
			s.logger.Debug("request slot granted",
				"page", number,
				"in_window", st.InWindow,
				"ceiling", st.Ceiling,
			)
		}

		page, err := s.source.FetchPage(ctx, number)
		if errors.Is(err, domain.ErrNoMorePages) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			run.stats.FetchFailures++
			run.tracker.RecordError(errKindFetch)
			s.logger.Warn("page fetch failed, skipping", "page", number, "error", err)
			continue
		}
		run.stats.Pages++

		listings, err := s.parser.Parse(page)
		if err != nil {
			run.stats.ParseErrors++
			run.tracker.RecordError(errKindParse)
			s.logger.Warn("page not parseable, skipping", "page", number, "url", page.URL, "error", err)
			continue
		}

		blocks, err := s.processListings(ctx, run, listings)
		if flushErr := s.flush(ctx, run); flushErr != nil && err == nil {
			err = s.checkStoreErrors(run, flushErr)
		}
		if err != nil {
			return err
		}

		s.logger.Debug("page processed", "page", number, "listings", blocks)
		if blocks == 0 {
			s.logger.Info("page has no listings, stopping", "page", number)
			break
		}
	}

	return nil
}

func (s *IngestService) processListings(ctx context.Context, run *runState, listings iter.Seq2[domain.ListingRecord, error]) (int, error) {
	var blocks int
	for rec, err := range listings {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return blocks, ctxErr
		}
		blocks++

		if err != nil {
			run.stats.Skipped++
			run.tracker.RecordError(errKindListing)
			s.logger.Warn("skipping listing", "error", err)
			continue
		}

		run.tracker.RecordFound(1)
		if err := s.processRecord(ctx, run, rec); err != nil {
			return blocks, err
		}
	}
	return blocks, nil
}

// processRecord writes one listing's item, bid history and profit analysis in
// a single transaction. The transaction is not cancelled with ctx.
func (s *IngestService) processRecord(ctx context.Context, run *runState, rec domain.ListingRecord) error {
	match := s.matcher.Evaluate(rec, run.rules)

	var (
		result   domain.ReconcileResult
		analysis *domain.ProfitAnalysis
	)
	err := s.txManager.WithTransaction(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		analysis = nil

		var err error
		result, err = s.reconciler.Reconcile(txCtx, rec)
		if err != nil {
			return err
		}

		if !match.Flagged() || (result.Kind != domain.ChangeCreated && result.Kind != domain.ChangeBidUpdated) {
			return nil
		}

		analysis, err = s.analyze(txCtx, result.ItemID, rec)
		return err
	})
	if err != nil {
		s.recordStoreError(run, "store listing "+rec.AuctionID, err)
		return s.checkStoreErrors(run, err)
	}
	run.consecutiveErrors = 0

	s.countChange(run.stats, result.Kind)

	if match.IsRedFlagged {
		run.stats.RedFlagged++
		s.logger.Debug("listing red flagged",
			"auction_id", rec.AuctionID,
			"red_flags", match.RedFlags,
		)
	}

	if match.Flagged() {
		run.tracker.RecordFlagged(1)
		s.logger.Info("listing matched watchlist",
			"auction_id", rec.AuctionID,
			"title", rec.Title,
			"keywords", match.Keywords(),
			"change", result.Kind,
		)
	}

	if analysis != nil {
		run.stats.Analyses++
		s.alert(ctx, run, rec, result.ItemID, match, analysis)
	}

	return nil
}

func (s *IngestService) analyze(ctx context.Context, itemID int64, rec domain.ListingRecord) (*domain.ProfitAnalysis, error) {
	v, err := s.valuer.Value(ctx, itemID, rec)
	if err != nil {
		return nil, &domain.StoreError{Op: "value item", Err: err}
	}

	a := s.estimator.Estimate(rec, v)
	a.ItemID = itemID

	id, err := s.analyses.Insert(ctx, &a)
	if err != nil {
		return nil, &domain.StoreError{Op: "insert profit analysis", Err: err}
	}
	a.ID = id

	return &a, nil
}

// alert publishes an actionable analysis whose margin meets the profit
// threshold of at least one matched rule.
func (s *IngestService) alert(ctx context.Context, run *runState, rec domain.ListingRecord, itemID int64, match domain.MatchResult, a *domain.ProfitAnalysis) {
	if s.publisher == nil || !a.Actionable() || !a.ProfitMargin.Valid {
		return
	}

	percent := a.ProfitMargin.Decimal.Mul(hundred)
	var keywords []string
	for _, rule := range match.MatchedRules {
		if percent.GreaterThanOrEqual(rule.MinProfitThreshold) {
			keywords = append(keywords, rule.Keyword)
		}
	}
	if len(keywords) == 0 {
		return
	}

	item := domain.NewItem(rec, a.AnalysisDate)
	item.ID = itemID

	if err := s.publisher.Publish(ctx, &domain.Alert{Kind: domain.AlertMatch, Item: *item, Analysis: *a, Keywords: keywords}); err != nil {
		run.stats.PublishErrors++
		run.tracker.RecordError(errKindPublish)
		s.logger.Error("failed to publish alert", "auction_id", rec.AuctionID, "error", err)
		return
	}
	run.stats.Published++
}

func (s *IngestService) flush(ctx context.Context, run *runState) error {
	if err := run.tracker.Flush(context.WithoutCancel(ctx)); err != nil {
		s.recordStoreError(run, "flush session counters", err)
		return err
	}
	return nil
}

// checkStoreErrors returns an abort error once the run has hit too many store
// failures in a row.
func (s *IngestService) checkStoreErrors(run *runState, err error) error {
	if run.consecutiveErrors < maxConsecutiveStoreErrors {
		return nil
	}
	return fmt.Errorf("aborting after %d consecutive store errors: %w", run.consecutiveErrors, err)
}

func (s *IngestService) recordStoreError(run *runState, op string, err error) {
	run.consecutiveErrors++
	run.stats.StoreErrors++
	run.tracker.RecordError(errKindStore)
	s.logger.Error("store operation failed", "op", op, "error", err)
}

func (s *IngestService) countChange(stats *domain.RunStats, kind domain.ChangeKind) {
	switch kind {
	case domain.ChangeCreated:
		stats.Created++
	case domain.ChangeBidUpdated:
		stats.BidUpdated++
	case domain.ChangeDeactivated:
		stats.Deactivated++
	default:
		stats.Unchanged++
	}
}
