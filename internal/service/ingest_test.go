package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"auction_scout/internal/config"
	"auction_scout/internal/domain"
	"auction_scout/internal/matcher"
	"auction_scout/internal/parser"
	"auction_scout/internal/service/mocks"
	"auction_scout/internal/valuation"
)

type IngestServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockSource
	governor  *mocks.MockGovernor
	items     *mocks.MockItemStore
	history   *mocks.MockBidHistoryStore
	analyses  *mocks.MockProfitAnalysisStore
	watchlist *mocks.MockWatchlistStore
	sessions  *mocks.MockSessionStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	logger   *slog.Logger
	cfg      config.SourceConfig
	closed   domain.ScrapeSession
	flushErr error
}

func (s *IngestServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.governor = mocks.NewMockGovernor(s.ctrl)
	s.items = mocks.NewMockItemStore(s.ctrl)
	s.history = mocks.NewMockBidHistoryStore(s.ctrl)
	s.analyses = mocks.NewMockProfitAnalysisStore(s.ctrl)
	s.watchlist = mocks.NewMockWatchlistStore(s.ctrl)
	s.sessions = mocks.NewMockSessionStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.cfg = config.SourceConfig{MaxPages: 5}
	s.closed = domain.ScrapeSession{}
	s.flushErr = nil

	s.source.EXPECT().ID().Return("test-source").AnyTimes()
	s.source.EXPECT().Name().Return("Test Source").AnyTimes()
	s.governor.EXPECT().AwaitNextSlot(gomock.Any()).Return(nil).AnyTimes()
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()

	s.sessions.EXPECT().Create(gomock.Any(), gomock.Any()).Return(int64(1), nil)
	s.sessions.EXPECT().UpdateCounters(gomock.Any(), int64(1), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, int64, int, int) error {
			return s.flushErr
		},
	).AnyTimes()
	s.sessions.EXPECT().Close(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, session *domain.ScrapeSession) error {
			s.closed = *session
			return nil
		},
	)
}

func (s *IngestServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestIngestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(IngestServiceTestSuite))
}

func (s *IngestServiceTestSuite) newService(publisher Publisher) *IngestService {
	return NewIngestService(IngestDeps{
		Source:     s.source,
		Parser:     parser.New(),
		Governor:   s.governor,
		Reconciler: NewReconciler(s.items, s.history, s.logger),
		Matcher:    matcher.New(config.DefaultRedFlags),
		Valuer:     valuation.DefaultHeuristic(),
		Estimator:  valuation.NewEstimator(valuation.DefaultFees(), valuation.DefaultPolicy()),
		Watchlist:  s.watchlist,
		Analyses:   s.analyses,
		Items:      s.items,
		Sessions:   s.sessions,
		TxManager:  s.txManager,
		Publisher:  publisher,
	}, s.logger, s.cfg)
}

func listingBlock(id, title, bid string) string {
	return fmt.Sprintf(`<div class="lot-item" data-lot-id="%s">
  <h3 class="lot-title">%s</h3>
  <p>current bid %s, ends in 2 days</p>
</div>`, id, title, bid)
}

func page(number int, blocks ...string) *domain.RawPage {
	return &domain.RawPage{
		URL:       fmt.Sprintf("https://example.com/auctions?page=%d", number),
		Number:    number,
		Content:   `<div class="lot-list">` + strings.Join(blocks, "\n") + `</div>`,
		FetchedAt: time.Now(),
	}
}

func (s *IngestServiceTestSuite) expectPages(pages ...*domain.RawPage) {
	for i, p := range pages {
		s.source.EXPECT().FetchPage(gomock.Any(), i+1).Return(p, nil)
	}
	s.source.EXPECT().FetchPage(gomock.Any(), len(pages)+1).Return(nil, domain.ErrNoMorePages)
}

func (s *IngestServiceTestSuite) expectNewItem(auctionID string, itemID int64) {
	s.items.EXPECT().GetByAuctionID(gomock.Any(), auctionID).Return(nil, nil)
	s.items.EXPECT().Create(gomock.Any(), gomock.Any()).Return(itemID, nil)
	s.history.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
}

func sterlingRule() domain.WatchRule {
	rule := domain.NewWatchRule("sterling silver")
	rule.ID = 1
	rule.MinProfitThreshold = decimal.NewFromInt(60)
	return rule
}

func (s *IngestServiceTestSuite) TestRun_EndToEnd() {
	ctx := context.Background()

	s.watchlist.EXPECT().ListActive(gomock.Any()).Return([]domain.WatchRule{sterlingRule()}, nil)
	s.expectPages(page(1, listingBlock("1001", "Sterling Silver Tray", "$40.00")))
	s.expectNewItem("1001", 42)

	var inserted domain.ProfitAnalysis
	s.analyses.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, a *domain.ProfitAnalysis) (int64, error) {
			inserted = *a
			return 7, nil
		},
	)

	var published *domain.Alert
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, alert *domain.Alert) error {
			published = alert
			return nil
		},
	)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(ctx)

	s.Require().NoError(err)
	s.Equal(domain.SessionCompleted, stats.Status)
	s.Equal(1, stats.Pages)
	s.Equal(1, stats.Found)
	s.Equal(1, stats.Created)
	s.Equal(1, stats.Flagged)
	s.Equal(1, stats.Analyses)
	s.Equal(1, stats.Published)

	s.Equal(int64(42), inserted.ItemID)
	s.True(inserted.CurrentBid.Equal(decimal.RequireFromString("40")))
	s.True(inserted.EstimatedValue.Equal(decimal.RequireFromString("100")))
	s.True(inserted.PotentialProfit.Equal(decimal.RequireFromString("43.75")))
	s.Require().True(inserted.ProfitMargin.Valid)
	s.True(inserted.ProfitMargin.Decimal.Equal(decimal.RequireFromString("1.0938")))
	s.Equal(domain.RecommendStrongBuy, inserted.Recommendation)

	s.Require().NotNil(published)
	s.Equal([]string{"sterling silver"}, published.Keywords)
	s.Equal(int64(42), published.Item.ID)
	s.Equal(int64(7), published.Analysis.ID)

	s.Equal(domain.SessionCompleted, s.closed.Status)
	s.Equal(1, s.closed.ItemsFound)
	s.Equal(1, s.closed.ItemsFlagged)
	s.Nil(s.closed.ErrorMessage)
}

func (s *IngestServiceTestSuite) TestRun_PublisherNil() {
	s.watchlist.EXPECT().ListActive(gomock.Any()).Return([]domain.WatchRule{sterlingRule()}, nil)
	s.expectPages(page(1, listingBlock("1001", "Sterling Silver Tray", "$40.00")))
	s.expectNewItem("1001", 42)
	s.analyses.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(int64(7), nil)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.Equal(1, stats.Analyses)
	s.Equal(0, stats.Published)
}

func (s *IngestServiceTestSuite) TestRun_BelowRuleThresholdNotPublished() {
	rule := sterlingRule()
	rule.MinProfitThreshold = decimal.NewFromInt(200)

	s.watchlist.EXPECT().ListActive(gomock.Any()).Return([]domain.WatchRule{rule}, nil)
	s.expectPages(page(1, listingBlock("1001", "Sterling Silver Tray", "$40.00")))
	s.expectNewItem("1001", 42)
	s.analyses.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(int64(7), nil)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(0, stats.Published)
}

func (s *IngestServiceTestSuite) TestRun_PublishFailureIsCounted() {
	s.watchlist.EXPECT().ListActive(gomock.Any()).Return([]domain.WatchRule{sterlingRule()}, nil)
	s.expectPages(page(1, listingBlock("1001", "Sterling Silver Tray", "$40.00")))
	s.expectNewItem("1001", 42)
	s.analyses.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(int64(7), nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, stats.PublishErrors)
	s.Require().NotNil(s.closed.ErrorMessage)
	s.Contains(*s.closed.ErrorMessage, "publish errors: 1")
}

func (s *IngestServiceTestSuite) TestRun_UnchangedListingNotReestimated() {
	s.watchlist.EXPECT().ListActive(gomock.Any()).Return([]domain.WatchRule{sterlingRule()}, nil)
	s.expectPages(page(1, listingBlock("1001", "Sterling Silver Tray", "$40.00")))
	s.items.EXPECT().GetByAuctionID(gomock.Any(), "1001").Return(&domain.Item{
		ID:         42,
		AuctionID:  "1001",
		CurrentBid: decimal.RequireFromString("40.00"),
		AuctionEnd: time.Now().Add(48 * time.Hour),
		IsActive:   true,
	}, nil)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, stats.Unchanged)
	s.Equal(1, stats.Flagged)
	s.Equal(0, stats.Analyses)
}

func (s *IngestServiceTestSuite) TestRun_RedFlagVetoesMatch() {
	s.watchlist.EXPECT().ListActive(gomock.Any()).Return([]domain.WatchRule{sterlingRule()}, nil)
	s.expectPages(page(1, listingBlock("1001", "Replica Sterling Silver Tray", "$40.00")))
	s.expectNewItem("1001", 42)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, stats.Found)
	s.Equal(0, stats.Flagged)
	s.Equal(1, stats.RedFlagged)
	s.Equal(0, stats.Analyses)
	s.Equal(0, s.closed.ItemsFlagged)
}

func (s *IngestServiceTestSuite) TestRun_FetchFailureSkipsPage() {
	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, nil)
	s.source.EXPECT().FetchPage(gomock.Any(), 1).Return(nil, &domain.FetchFailure{URL: "https://example.com/auctions?page=1", Reason: "status 503"})
	s.source.EXPECT().FetchPage(gomock.Any(), 2).Return(page(2, listingBlock("1001", "Brass Lamp", "$12")), nil)
	s.source.EXPECT().FetchPage(gomock.Any(), 3).Return(nil, domain.ErrNoMorePages)
	s.expectNewItem("1001", 42)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, stats.FetchFailures)
	s.Equal(1, stats.Pages)
	s.Equal(1, stats.Found)
	s.Equal(domain.SessionCompleted, s.closed.Status)
	s.Require().NotNil(s.closed.ErrorMessage)
	s.Equal("fetch errors: 1", *s.closed.ErrorMessage)
}

func (s *IngestServiceTestSuite) TestRun_ParseErrorSkipsPage() {
	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, nil)
	s.source.EXPECT().FetchPage(gomock.Any(), 1).Return(&domain.RawPage{
		URL:       "https://example.com/auctions?page=1",
		Content:   "<html><body><p>Down for maintenance</p></body></html>",
		FetchedAt: time.Now(),
	}, nil)
	s.source.EXPECT().FetchPage(gomock.Any(), 2).Return(nil, domain.ErrNoMorePages)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(3), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, stats.ParseErrors)
	s.Equal(0, stats.Found)
	s.Equal(int64(3), stats.Expired)
	s.Equal(domain.SessionCompleted, s.closed.Status)
	s.Equal("parse errors: 1", *s.closed.ErrorMessage)
}

func (s *IngestServiceTestSuite) TestRun_MalformedListingSkipped() {
	malformed := `<div class="lot-item" data-lot-id="999"><h3 class="lot-title">No Price</h3></div>`

	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, nil)
	s.expectPages(page(1, malformed, listingBlock("1001", "Brass Lamp", "$12")))
	s.expectNewItem("1001", 42)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, stats.Skipped)
	s.Equal(1, stats.Found)
	s.Equal("listing errors: 1", *s.closed.ErrorMessage)
}

func (s *IngestServiceTestSuite) TestRun_StopsOnEmptyPage() {
	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, nil)
	s.source.EXPECT().FetchPage(gomock.Any(), 1).Return(page(1), nil)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, stats.Pages)
	s.Equal(0, stats.Found)
}

func (s *IngestServiceTestSuite) TestRun_ConsecutiveStoreErrorsFailRun() {
	dbErr := errors.New("connection refused")

	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, nil)
	s.source.EXPECT().FetchPage(gomock.Any(), 1).Return(page(1,
		listingBlock("1", "Lamp", "$1"),
		listingBlock("2", "Lamp", "$1"),
		listingBlock("3", "Lamp", "$1"),
		listingBlock("4", "Lamp", "$1"),
	), nil)
	s.items.EXPECT().GetByAuctionID(gomock.Any(), gomock.Any()).Return(nil, dbErr).Times(3)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.Require().Error(err)
	s.ErrorIs(err, dbErr)
	s.Equal(domain.SessionFailed, stats.Status)
	s.Equal(3, stats.StoreErrors)
	s.Equal(3, stats.Found)
	s.Equal(domain.SessionFailed, s.closed.Status)
	s.Require().NotNil(s.closed.ErrorMessage)
	s.Contains(*s.closed.ErrorMessage, "consecutive store errors")
	s.Contains(*s.closed.ErrorMessage, "store errors: 3")
}

func (s *IngestServiceTestSuite) TestRun_CounterFlushFailureCountsTowardAbort() {
	dbErr := errors.New("connection reset by peer")
	s.flushErr = dbErr

	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, nil)
	// page 2 is never requested
	s.source.EXPECT().FetchPage(gomock.Any(), 1).Return(page(1,
		listingBlock("1", "Lamp", "$1"),
		listingBlock("2", "Lamp", "$1"),
	), nil)
	s.items.EXPECT().GetByAuctionID(gomock.Any(), gomock.Any()).Return(nil, dbErr).Times(2)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.Require().Error(err)
	s.ErrorIs(err, dbErr)
	s.Equal(domain.SessionFailed, stats.Status)
	s.Equal(3, stats.StoreErrors)
	s.Require().NotNil(s.closed.ErrorMessage)
	s.Contains(*s.closed.ErrorMessage, "consecutive store errors")
}

func (s *IngestServiceTestSuite) TestRun_StoreErrorThenRecovery() {
	dbErr := errors.New("deadlock detected")

	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, nil)
	s.expectPages(page(1,
		listingBlock("1", "Lamp", "$1"),
		listingBlock("2", "Lamp", "$1"),
		listingBlock("3", "Lamp", "$1"),
		listingBlock("4", "Lamp", "$1"),
	))
	s.items.EXPECT().GetByAuctionID(gomock.Any(), "1").Return(nil, dbErr)
	s.items.EXPECT().GetByAuctionID(gomock.Any(), "2").Return(nil, dbErr)
	s.expectNewItem("3", 30)
	s.items.EXPECT().GetByAuctionID(gomock.Any(), "4").Return(nil, dbErr)
	s.items.EXPECT().DeactivateExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(domain.SessionCompleted, stats.Status)
	s.Equal(3, stats.StoreErrors)
	s.Equal(1, stats.Created)
}

func (s *IngestServiceTestSuite) TestRun_CancelledBetweenListings() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, nil)
	s.source.EXPECT().FetchPage(gomock.Any(), 1).Return(page(1,
		listingBlock("1001", "Brass Lamp", "$12"),
		listingBlock("1002", "Brass Lamp", "$14"),
	), nil)
	s.items.EXPECT().GetByAuctionID(gomock.Any(), "1001").Return(nil, nil)
	s.items.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(txCtx context.Context, _ *domain.Item) (int64, error) {
			cancel()
			// the record's transaction is not interrupted
			s.NoError(txCtx.Err())
			return 42, nil
		},
	)
	s.history.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.newService(s.publisher).Run(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Equal(domain.SessionCancelled, stats.Status)
	s.Equal(1, stats.Found)
	s.Equal(1, stats.Created)
	s.Equal(domain.SessionCancelled, s.closed.Status)
	s.Equal(1, s.closed.ItemsFound)
}

func (s *IngestServiceTestSuite) TestRun_WatchlistUnavailable() {
	s.watchlist.EXPECT().ListActive(gomock.Any()).Return(nil, errors.New("relation \"watchlist\" does not exist"))

	stats, err := s.newService(s.publisher).Run(context.Background())

	s.Error(err)
	s.Equal(domain.SessionFailed, stats.Status)
	s.Equal(domain.SessionFailed, s.closed.Status)
}
