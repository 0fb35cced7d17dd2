package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func yearEnd(y int) time.Time {
	return time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC)
}

// 以百万为单位
func sampleStatements() model.FinancialStatements {
	return model.FinancialStatements{
		CompanyName: "Test Corp",
		Ticker:      "TST",
		FiscalYear:  2023,
		Currency:    model.CurrencyUSD,
		IncomeStatements: []model.IncomeStatement{
			{
				PeriodEnd:                yearEnd(2022),
				Revenue:                  model.F(900),
				CostOfRevenue:            model.F(540),
				NetIncome:                model.F(120),
				SharesOutstandingDiluted: model.F(100),
			},
			{
				PeriodEnd:                yearEnd(2023),
				Revenue:                  model.F(1000),
				CostOfRevenue:            model.F(580),
				NetIncome:                model.F(150),
				SharesOutstandingDiluted: model.F(100),
			},
		},
		BalanceSheets: []model.BalanceSheet{
			{
				PeriodEnd:               yearEnd(2022),
				CashAndEquivalents:      model.F(150),
				TotalCurrentAssets:      model.F(400),
				TotalAssets:             model.F(1100),
				TotalCurrentLiabilities: model.F(140),
				LongTermDebt:            model.F(260),
				TotalLiabilities:        model.F(450),
				TotalShareholdersEquity: model.F(650),
			},
			{
				PeriodEnd:               yearEnd(2023),
				CashAndEquivalents:      model.F(200),
				TotalCurrentAssets:      model.F(450),
				TotalAssets:             model.F(1200),
				TotalCurrentLiabilities: model.F(150),
				LongTermDebt:            model.F(250),
				TotalLiabilities:        model.F(450),
				TotalShareholdersEquity: model.F(750),
			},
		},
		CashFlowStatements: []model.CashFlowStatement{
			{PeriodEnd: yearEnd(2022), NetIncome: model.F(120), CashEndOfPeriod: model.F(150)},
			{PeriodEnd: yearEnd(2023), NetIncome: model.F(150), CashEndOfPeriod: model.F(200)},
		},
	}
}

func newEngine() *Engine {
	return NewEngine(config.Default().Model, zap.NewNop())
}

func TestRunEndToEnd(t *testing.T) {
	m, err := newEngine().Run(context.Background(), sampleStatements(), Request{
		Scenario:     model.ScenarioBase,
		CurrentPrice: model.F(12),
	})
	require.NoError(t, err)

	assert.True(t, m.IsBalanced)
	assert.Len(t, m.HistoricalIncomeStatements, 2)
	assert.Len(t, m.ForecastIncomeStatements, config.Default().Model.Forecast.DefaultYears)
	require.NotNil(t, m.Assumptions)
	assert.Equal(t, model.ScenarioBase, m.Assumptions.Scenario)
	// base 情景以历史增长为锚
	assert.InDelta(t, 1000.0/900-1, m.Assumptions.RevenueGrowthRate, 1e-9)

	require.NotNil(t, m.DCFValuation)
	assert.True(t, m.DCFValuation.Available)
	require.NotNil(t, m.TargetPrice)
	require.NotNil(t, m.UpsidePotential)
	assert.NotEqual(t, model.RecommendationNA, m.Recommendation)
	assert.NotEmpty(t, m.InvestmentThesis)
}

func TestRunRescalesInput(t *testing.T) {
	in := sampleStatements()
	m, err := newEngine().Run(context.Background(), in, Request{
		SourceScale: model.ScaleMillions,
		TargetScale: model.ScaleUnits,
	})
	require.NoError(t, err)

	latest, ok := m.LatestIncome()
	require.True(t, ok)
	assert.InDelta(t, 1_000_000_000, model.Val(latest.Revenue), 1e-3)
	// 股数不换算
	assert.Equal(t, 100.0, model.Val(latest.SharesOutstandingDiluted))
	// 输入未被修改
	assert.Equal(t, 1000.0, model.Val(in.IncomeStatements[1].Revenue))
}

func TestRunStructuralError(t *testing.T) {
	_, err := newEngine().Run(context.Background(), model.FinancialStatements{CompanyName: "Empty"}, Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStructural))

	var mbe *apperrors.ModelBuildError
	assert.True(t, errors.As(err, &mbe))
}

func TestRunUnknownScenario(t *testing.T) {
	_, err := newEngine().Run(context.Background(), sampleStatements(), Request{Scenario: "bullish"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAssumptionsInvalid))
}

func TestRecalculateLeavesHistoryUntouched(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	history, err := e.Build(ctx, sampleStatements(), Request{CurrentPrice: model.F(12)})
	require.NoError(t, err)
	require.False(t, history.HasForecast())
	before := history.Clone()

	base, err := e.Recalculate(ctx, history, Request{Scenario: model.ScenarioBase})
	require.NoError(t, err)
	aggressive, err := e.Recalculate(ctx, history, Request{Scenario: model.ScenarioAggressive})
	require.NoError(t, err)

	assert.Equal(t, before, history)
	assert.False(t, history.HasForecast())

	baseRev := model.Val(base.ForecastIncomeStatements[4].Revenue)
	aggRev := model.Val(aggressive.ForecastIncomeStatements[4].Revenue)
	assert.Greater(t, aggRev, baseRev)

	// 行情价格沿用历史模型
	require.NotNil(t, base.CurrentPrice)
	assert.Equal(t, 12.0, *base.CurrentPrice)
}

func TestRecalculateDiscardsPreviousForecast(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	first, err := e.Run(ctx, sampleStatements(), Request{Years: 10})
	require.NoError(t, err)
	require.Len(t, first.ForecastIncomeStatements, 10)

	second, err := e.Recalculate(ctx, first, Request{Years: 3})
	require.NoError(t, err)
	assert.Len(t, second.ForecastIncomeStatements, 3)
	assert.Len(t, second.DCFValuation.Rows, 3)
	assert.Len(t, first.ForecastIncomeStatements, 10)
}

func TestRecalculateRecordsAssumptionWarnings(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	history, err := e.Build(ctx, sampleStatements(), Request{})
	require.NoError(t, err)
	warningsBefore := len(history.ValidationErrors)
	clampedBefore := testutil.ToFloat64(metrics.ValidationWarnings.WithLabelValues("assumption_clamped"))

	m, err := e.Recalculate(ctx, history, Request{Assumptions: model.PartialAssumptions{
		WACC:               model.F(0.02),
		TerminalGrowthRate: model.F(0.03),
	}})
	require.NoError(t, err)

	assert.Greater(t, len(m.ValidationErrors), warningsBefore)
	assert.Equal(t, clampedBefore+1, testutil.ToFloat64(metrics.ValidationWarnings.WithLabelValues("assumption_clamped")))
	assert.InDelta(t, 0.04, m.Assumptions.WACC, 1e-9)
	assert.True(t, m.DCFValuation.Available)
	assert.Len(t, history.ValidationErrors, warningsBefore)
}

func TestRecalculateDropsStaleAssumptionWarnings(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	first, err := e.Run(ctx, sampleStatements(), Request{Assumptions: model.PartialAssumptions{
		WACC:               model.F(0.02),
		TerminalGrowthRate: model.F(0.03),
	}})
	require.NoError(t, err)
	require.Greater(t, len(first.ValidationErrors), first.HistoryWarnings)

	second, err := e.Recalculate(ctx, first, Request{Assumptions: model.PartialAssumptions{
		WACC:               model.F(0.12),
		TerminalGrowthRate: model.F(0.02),
	}})
	require.NoError(t, err)
	assert.InDelta(t, 0.12, second.Assumptions.WACC, 1e-12)
	for _, w := range second.ValidationErrors {
		assert.NotContains(t, w, "clamped")
	}
	assert.Len(t, second.ValidationErrors, first.HistoryWarnings)

	// 连续重算不累积同一条警告
	clamp := Request{Assumptions: model.PartialAssumptions{
		WACC:               model.F(0.02),
		TerminalGrowthRate: model.F(0.03),
	}}
	third, err := e.Recalculate(ctx, first, clamp)
	require.NoError(t, err)
	fourth, err := e.Recalculate(ctx, third, clamp)
	require.NoError(t, err)
	assert.Equal(t, len(third.ValidationErrors), len(fourth.ValidationErrors))
}

func TestRunNonFiniteDiscountRateFallsBack(t *testing.T) {
	for name, req := range map[string]model.PartialAssumptions{
		"wacc":            {WACC: model.F(math.NaN())},
		"terminal growth": {TerminalGrowthRate: model.F(math.NaN())},
	} {
		t.Run(name, func(t *testing.T) {
			m, err := newEngine().Run(context.Background(), sampleStatements(), Request{Assumptions: req})
			require.NoError(t, err)

			require.NotNil(t, m.DCFValuation)
			assert.True(t, m.DCFValuation.Available)
			assert.False(t, math.IsNaN(m.DCFValuation.EnterpriseValue))
			assert.False(t, math.IsNaN(m.Assumptions.WACC))
			assert.False(t, math.IsNaN(m.Assumptions.TerminalGrowthRate))
			assert.Greater(t, len(m.ValidationErrors), m.HistoryWarnings)
		})
	}
}

func TestRecalculateRequiresHistory(t *testing.T) {
	_, err := newEngine().Recalculate(context.Background(), nil, Request{})
	assert.True(t, errors.Is(err, apperrors.ErrStructural))

	_, err = newEngine().Recalculate(context.Background(), &model.LinkedModel{}, Request{})
	assert.True(t, errors.Is(err, apperrors.ErrStructural))
}

func TestRecalculateConcurrent(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	history, err := e.Build(ctx, sampleStatements(), Request{})
	require.NoError(t, err)

	growths := []float64{0.02, 0.05, 0.08, 0.11}
	results := make([]*model.LinkedModel, len(growths))
	errs := make([]error, len(growths))

	var wg sync.WaitGroup
	for i, g := range growths {
		wg.Add(1)
		go func(i int, g float64) {
			defer wg.Done()
			results[i], errs[i] = e.Recalculate(ctx, history, Request{
				Assumptions: model.PartialAssumptions{RevenueGrowthRate: model.F(g)},
			})
		}(i, g)
	}
	wg.Wait()

	for i, g := range growths {
		require.NoError(t, errs[i])
		assert.InDelta(t, 1000*(1+g), model.Val(results[i].ForecastIncomeStatements[0].Revenue), 1e-6)
	}
	assert.False(t, history.HasForecast())
}

func TestSensitivity(t *testing.T) {
	e := newEngine()
	m, err := e.Run(context.Background(), sampleStatements(), Request{})
	require.NoError(t, err)

	grid, ok := e.Sensitivity(m)
	require.True(t, ok)
	assert.Len(t, grid.WACCs, 5)
	assert.Len(t, grid.Growths, 5)

	_, ok = e.Sensitivity(&model.LinkedModel{})
	assert.False(t, ok)
}
