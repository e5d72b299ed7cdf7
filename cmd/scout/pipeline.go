package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"auction_scout/internal/config"
	"auction_scout/internal/matcher"
	"auction_scout/internal/parser"
	"auction_scout/internal/publisher"
	"auction_scout/internal/ratelimit"
	"auction_scout/internal/service"
	"auction_scout/internal/source/auctionsite"
	"auction_scout/internal/storage/postgres"
	"auction_scout/internal/valuation"
)

// pipeline holds the ingest and urgent services and the resources they own.
type pipeline struct {
	ingest  *service.IngestService
	urgent  *service.UrgentService
	closers []func() error
}

func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

func buildPipeline(db *sqlx.DB, cfg *config.Config) (*pipeline, error) {
	p := &pipeline{}

	fetcher, err := newFetcher(cfg.Source)
	if err != nil {
		return nil, err
	}
	if b, ok := fetcher.(*auctionsite.BrowserFetcher); ok {
		p.closers = append(p.closers, func() error { b.Close(); return nil })
	}

	src, err := auctionsite.New(auctionsite.Config{
		BaseURL:        cfg.Source.BaseURL,
		ListingPath:    cfg.Source.ListingPath,
		MaxPages:       cfg.Source.MaxPages,
		MaxAttempts:    cfg.Source.Retry.MaxAttempts,
		InitialBackoff: cfg.Source.Retry.InitialBackoff,
		MaxBackoff:     cfg.Source.Retry.MaxBackoff,
	}, fetcher, logger)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("create source: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Parser.Timezone)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	pageParser := parser.New(
		parser.WithSelectors(parser.DefaultSelectors().Override(parser.Selectors(cfg.Parser.Selectors))),
		parser.WithLocation(loc),
	)

	governor := ratelimit.New(ratelimit.Config{
		MinDelay:          cfg.Rate.MinDelay,
		MaxDelay:          cfg.Rate.MaxDelay,
		RequestsPerMinute: cfg.Rate.RequestsPerMinute,
	})

	items := postgres.NewItemStore(db)
	history := postgres.NewBidHistoryStore(db)

	valuer, err := valuation.NewComparables(
		postgres.NewComparableSaleStore(db),
		valuation.Heuristic{
			Multiplier: decimal.NewFromFloat(cfg.Profit.Heuristic.Multiplier),
			Floor:      decimal.NewFromFloat(cfg.Profit.Heuristic.Floor),
			Confidence: cfg.Profit.Heuristic.Confidence,
		},
		cfg.Profit.CacheSize,
		cfg.Profit.CacheTTL,
		logger.With("component", "valuation"),
	)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	estimator := valuation.NewEstimator(
		valuation.MarketplaceFees{
			FinalValueRate: decimal.NewFromFloat(cfg.Profit.Fees.FinalValueRate),
			PaymentRate:    decimal.NewFromFloat(cfg.Profit.Fees.PaymentRate),
			FixedFee:       decimal.NewFromFloat(cfg.Profit.Fees.FixedFee),
		},
		valuation.Policy{
			MinProfitPercentage:       decimal.NewFromFloat(cfg.Profit.MinPercentage),
			StrongBuyProfitPercentage: decimal.NewFromFloat(cfg.Profit.StrongBuyPercentage),
			ShippingCost:              decimal.NewFromFloat(cfg.Profit.ShippingCost),
		},
	)

	deps := service.IngestDeps{
		Source:     src,
		Parser:     pageParser,
		Governor:   governor,
		Reconciler: service.NewReconciler(items, history, logger),
		Matcher:    matcher.New(cfg.Watch.RedFlags),
		Valuer:     valuer,
		Estimator:  estimator,
		Watchlist:  postgres.NewWatchlistStore(db),
		Analyses:   postgres.NewProfitAnalysisStore(db),
		Items:      items,
		Sessions:   postgres.NewSessionStore(db),
		TxManager:  postgres.NewTransactionManager(db),
	}

	if cfg.Alerts.Enabled {
		rabbitMQ, err := newPublisher(cfg.Alerts)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.closers = append(p.closers, rabbitMQ.Close)
		deps.Publisher = rabbitMQ
	}

	p.ingest = service.NewIngestService(deps, logger, cfg.Source)
	p.urgent = service.NewUrgentService(
		postgres.NewProfitAnalysisStore(db),
		deps.Publisher,
		cfg.Monitor.UrgentWindow(),
		cfg.Profit.MinPercentage,
		logger,
	)
	return p, nil
}

func newPublisher(alerts config.AlertsConfig) (*publisher.RabbitMQ, error) {
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        alerts.URL,
		Exchange:   alerts.Exchange,
		RoutingKey: alerts.RoutingKey,
		QueueName:  alerts.QueueName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return rabbitMQ, nil
}

func newFetcher(src config.SourceConfig) (auctionsite.Fetcher, error) {
	if src.Driver == "http" {
		return auctionsite.NewHTTPFetcher(src.Timeout, src.UserAgent), nil
	}

	fetcher, err := auctionsite.NewBrowserFetcher(auctionsite.BrowserConfig{
		Headless:     *src.Headless,
		UserAgent:    src.UserAgent,
		Timeout:      src.Timeout,
		WaitSelector: src.WaitSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("create browser fetcher: %w", err)
	}
	return fetcher, nil
}
