package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"auction_scout/internal/domain"
	"auction_scout/internal/service/mocks"
)

type UrgentServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	store     *mocks.MockUrgentStore
	publisher *mocks.MockPublisher
	logger    *slog.Logger
	now       time.Time
}

func (s *UrgentServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockUrgentStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
}

func (s *UrgentServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestUrgentServiceTestSuite(t *testing.T) {
	suite.Run(t, new(UrgentServiceTestSuite))
}

func (s *UrgentServiceTestSuite) newService(publisher Publisher) *UrgentService {
	svc := NewUrgentService(s.store, publisher, 24*time.Hour, 50, s.logger)
	svc.now = func() time.Time { return s.now }
	return svc
}

func (s *UrgentServiceTestSuite) rows() []domain.RankedItem {
	return []domain.RankedItem{
		{
			ItemID:         1,
			AuctionID:      "1001",
			Title:          "Leica M3",
			AuctionEnd:     s.now.Add(40 * time.Minute),
			CurrentBid:     decimal.NewFromInt(120),
			ProfitMargin:   decimal.NewNullDecimal(decimal.RequireFromString("1.2")),
			Recommendation: domain.RecommendStrongBuy,
		},
		{
			ItemID:         2,
			AuctionID:      "1002",
			Title:          "Griswold Skillet",
			AuctionEnd:     s.now.Add(5 * time.Hour),
			CurrentBid:     decimal.NewFromInt(20),
			ProfitMargin:   decimal.NewNullDecimal(decimal.RequireFromString("0.6")),
			Recommendation: domain.RecommendBid,
		},
	}
}

func (s *UrgentServiceTestSuite) TestCheck_PublishesMostUrgentFirst() {
	ctx := context.Background()

	s.store.EXPECT().EndingSoon(ctx, s.now, s.now.Add(24*time.Hour), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ time.Time, minMargin decimal.Decimal) ([]domain.RankedItem, error) {
			s.True(minMargin.Equal(decimal.RequireFromString("0.5")))
			return s.rows(), nil
		},
	)

	var published []string
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, alert *domain.Alert) error {
			s.Equal(domain.AlertUrgent, alert.Kind)
			s.Equal(alert.Item.ID, alert.Analysis.ItemID)
			published = append(published, alert.Item.AuctionID)
			return nil
		},
	).Times(2)

	items, err := s.newService(s.publisher).Check(ctx)

	s.Require().NoError(err)
	s.Len(items, 2)
	s.Equal([]string{"1001", "1002"}, published)
}

func (s *UrgentServiceTestSuite) TestCheck_NothingUrgent() {
	s.store.EXPECT().EndingSoon(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	items, err := s.newService(s.publisher).Check(context.Background())

	s.NoError(err)
	s.Empty(items)
}

func (s *UrgentServiceTestSuite) TestCheck_WithoutPublisher() {
	s.store.EXPECT().EndingSoon(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(s.rows(), nil)

	items, err := s.newService(nil).Check(context.Background())

	s.NoError(err)
	s.Len(items, 2)
}

func (s *UrgentServiceTestSuite) TestCheck_PublishFailureContinues() {
	brokerErr := errors.New("channel closed")

	s.store.EXPECT().EndingSoon(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(s.rows(), nil)
	gomock.InOrder(
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(brokerErr),
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil),
	)

	items, err := s.newService(s.publisher).Check(context.Background())

	s.ErrorIs(err, brokerErr)
	s.Contains(err.Error(), "1 of 2")
	s.Len(items, 2)
}

func (s *UrgentServiceTestSuite) TestCheck_StoreError() {
	dbErr := errors.New("connection refused")
	s.store.EXPECT().EndingSoon(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, dbErr)

	_, err := s.newService(s.publisher).Check(context.Background())

	var storeErr *domain.StoreError
	s.ErrorAs(err, &storeErr)
	s.ErrorIs(err, dbErr)
}
