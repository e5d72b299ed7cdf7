package valuation

import (
	"time"

	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

const (
	moneyPlaces  = 2
	marginPlaces = 4
)

var hundred = decimal.NewFromInt(100)

// Policy sets the recommendation thresholds. Percentages are margins times 100,
// so 50 means a profit of half the current bid.
type Policy struct {
	MinProfitPercentage       decimal.Decimal
	StrongBuyProfitPercentage decimal.Decimal
	ShippingCost              decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		MinProfitPercentage:       decimal.NewFromInt(50),
		StrongBuyProfitPercentage: decimal.NewFromInt(100),
		ShippingCost:              decimal.Zero,
	}
}

type Estimator struct {
	fees   FeeSchedule
	policy Policy
	now    func() time.Time
}

func NewEstimator(fees FeeSchedule, policy Policy) *Estimator {
	return &Estimator{
		fees:   fees,
		policy: policy,
		now:    time.Now,
	}
}

// Estimate computes the profit analysis for buying rec at its current bid and
// reselling at the valuation's value. The returned analysis has no item id.
func (e *Estimator) Estimate(rec domain.ListingRecord, v domain.Valuation) domain.ProfitAnalysis {
	net := e.fees.Net(v.Value).Sub(e.policy.ShippingCost)
	profit := net.Sub(rec.CurrentBid)

	a := domain.ProfitAnalysis{
		EstimatedValue:  v.Value.Round(moneyPlaces),
		CurrentBid:      rec.CurrentBid,
		NetProceeds:     net.Round(moneyPlaces),
		PotentialProfit: profit.Round(moneyPlaces),
		ConfidenceScore: clamp(v.Confidence, 0, 1),
		Recommendation:  domain.RecommendSkip,
		AnalysisDate:    e.now(),
	}

	if rec.CurrentBid.IsPositive() {
		margin := profit.Div(rec.CurrentBid).Round(marginPlaces)
		a.ProfitMargin = decimal.NewNullDecimal(margin)
		a.Recommendation = e.recommend(margin)
	}

	return a
}

func (e *Estimator) recommend(margin decimal.Decimal) domain.Recommendation {
	percent := margin.Mul(hundred)
	switch {
	case percent.GreaterThanOrEqual(e.policy.StrongBuyProfitPercentage):
		return domain.RecommendStrongBuy
	case percent.GreaterThanOrEqual(e.policy.MinProfitPercentage):
		return domain.RecommendBid
	default:
		return domain.RecommendSkip
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
