package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatements() FinancialStatements {
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	return FinancialStatements{
		CompanyName: "Test Corp",
		Ticker:      "TEST",
		FiscalYear:  2023,
		Currency:    CurrencyUSD,
		IncomeStatements: []IncomeStatement{{
			PeriodEnd:                end,
			Revenue:                  F(1000),
			NetIncome:                F(150),
			SharesOutstandingDiluted: F(10),
			DilutedEPS:               F(15),
		}},
		BalanceSheets: []BalanceSheet{{
			PeriodEnd:               end,
			TotalAssets:             F(1200),
			TotalLiabilities:        F(450),
			TotalShareholdersEquity: F(750),
		}},
		CashFlowStatements: []CashFlowStatement{{
			PeriodEnd: end,
			NetIncome: F(150),
		}},
	}
}

func TestRescaleRoundTrip(t *testing.T) {
	src := sampleStatements()

	scaled, err := Rescale(src, ScaleMillions, ScaleUnits)
	require.NoError(t, err)

	assert.Equal(t, 1000e6, *scaled.IncomeStatements[0].Revenue)
	assert.Equal(t, 1200e6, *scaled.BalanceSheets[0].TotalAssets)
	assert.Equal(t, 150e6, *scaled.CashFlowStatements[0].NetIncome)
	// 股数与 EPS 不换算
	assert.Equal(t, 10.0, *scaled.IncomeStatements[0].SharesOutstandingDiluted)
	assert.Equal(t, 15.0, *scaled.IncomeStatements[0].DilutedEPS)

	// 输入不被修改
	assert.Equal(t, 1000.0, *src.IncomeStatements[0].Revenue)

	back, err := Rescale(scaled, ScaleUnits, ScaleMillions)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, *back.IncomeStatements[0].Revenue, 1e-9)
	assert.Nil(t, back.IncomeStatements[0].CostOfRevenue)
}

func TestRescaleUnknownScale(t *testing.T) {
	_, err := Rescale(sampleStatements(), "lakhs", ScaleUnits)
	assert.Error(t, err)
}

func TestParseUnitScale(t *testing.T) {
	cases := map[string]UnitScale{
		"":          ScaleUnits,
		"K":         ScaleThousands,
		"millions":  ScaleMillions,
		" bn ":      ScaleBillions,
		"thousands": ScaleThousands,
	}
	for in, want := range cases {
		got, err := ParseUnitScale(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseUnitScale("crore")
	assert.Error(t, err)
}

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario(" Aggressive ")
	require.NoError(t, err)
	assert.Equal(t, ScenarioAggressive, s)

	s, err = ParseScenario("")
	require.NoError(t, err)
	assert.Equal(t, ScenarioNone, s)

	_, err = ParseScenario("bullish")
	assert.Error(t, err)
}

func TestStatementsCloneDoesNotAlias(t *testing.T) {
	src := sampleStatements()
	cp := src.Clone()

	*cp.IncomeStatements[0].Revenue = 1
	*cp.BalanceSheets[0].TotalAssets = 1

	assert.Equal(t, 1000.0, *src.IncomeStatements[0].Revenue)
	assert.Equal(t, 1200.0, *src.BalanceSheets[0].TotalAssets)
}

func TestLinkedModelClone(t *testing.T) {
	m := &LinkedModel{
		CompanyName:                "Test Corp",
		HistoricalIncomeStatements: []IncomeStatement{{Revenue: F(100)}},
		HistoricalRatios:           []Ratios{{GrossMargin: F(0.4)}},
		ValidationErrors:           []string{"warn"},
		DerivedFields:              []PeriodDerivation{{PeriodIndex: 0, Rules: []DerivationRule{RuleGrossFromNet}}},
		Assumptions:                &ForecastAssumptions{WACC: 0.1, DepreciationSchedule: []float64{1, 2}},
		DCFValuation:               &DCFValuation{Rows: []CashFlowRow{{Year: 2024}}, ImpliedPricePerShare: F(12)},
		TargetPrice:                F(12),
	}

	cp := m.Clone()
	*cp.HistoricalIncomeStatements[0].Revenue = 1
	*cp.HistoricalRatios[0].GrossMargin = 0
	cp.ValidationErrors[0] = "changed"
	cp.DerivedFields[0].Rules[0] = RuleEBITFromNet
	cp.Assumptions.DepreciationSchedule[0] = 99
	cp.DCFValuation.Rows[0].Year = 1
	*cp.TargetPrice = 0

	assert.Equal(t, 100.0, *m.HistoricalIncomeStatements[0].Revenue)
	assert.Equal(t, 0.4, *m.HistoricalRatios[0].GrossMargin)
	assert.Equal(t, "warn", m.ValidationErrors[0])
	assert.Equal(t, RuleGrossFromNet, m.DerivedFields[0].Rules[0])
	assert.Equal(t, 1.0, m.Assumptions.DepreciationSchedule[0])
	assert.Equal(t, 2024, m.DCFValuation.Rows[0].Year)
	assert.Equal(t, 12.0, *m.TargetPrice)

	var nilModel *LinkedModel
	assert.Nil(t, nilModel.Clone())
}

func TestClearForecastKeepsHistoryWarnings(t *testing.T) {
	m := &LinkedModel{
		HistoricalIncomeStatements: []IncomeStatement{{Revenue: F(100)}},
		ValidationErrors:           []string{"imbalance 2023", "wacc clamped"},
		HistoryWarnings:            1,
		Assumptions:                &ForecastAssumptions{WACC: 0.04},
		ForecastIncomeStatements:   []IncomeStatement{{Revenue: F(110)}},
		Recommendation:             RecommendationBuy,
	}
	before := m.ValidationErrors

	m.ClearForecast()
	assert.Equal(t, []string{"imbalance 2023"}, m.ValidationErrors)
	assert.Nil(t, m.Assumptions)
	assert.False(t, m.HasForecast())
	assert.Empty(t, m.Recommendation)

	// 截断后追加不覆盖原底层数组
	m.AddWarning("new")
	assert.Equal(t, "wacc clamped", before[1])
}

func TestNonFinite(t *testing.T) {
	s := sampleStatements()
	assert.Empty(t, s.NonFinite())

	s.BalanceSheets[0].Inventory = F(math.NaN())
	assert.Equal(t, "balance_sheets", s.NonFinite())
}

func TestValuationSubjectVariants(t *testing.T) {
	full := FullModel{Model: &LinkedModel{Ticker: "TEST", TargetPrice: F(120), CurrentPrice: F(100)}}
	quote := QuoteOnlyModel{Ticker: "QUO", CurrentPrice: F(50)}

	for _, s := range []ValuationSubject{full, quote} {
		switch v := s.(type) {
		case FullModel:
			assert.Equal(t, "TEST", v.SubjectTicker())
			require.NotNil(t, Upside(v))
			assert.InDelta(t, 0.2, *Upside(v), 1e-12)
		case QuoteOnlyModel:
			assert.Equal(t, "QUO", v.SubjectTicker())
			assert.Nil(t, Upside(v))
		default:
			t.Fatalf("unexpected subject %T", v)
		}
	}
}

func TestSummary(t *testing.T) {
	m := &LinkedModel{
		CompanyName:                "Test Corp",
		FiscalYear:                 2023,
		IsBalanced:                 true,
		HistoricalIncomeStatements: []IncomeStatement{{Revenue: F(1000), NetIncome: F(150)}},
		HistoricalRatios:           []Ratios{{NetMargin: F(0.15), ROE: F(0.2)}},
		DCFValuation:               &DCFValuation{Available: true, EnterpriseValue: 5000},
	}

	s := m.Summary()
	assert.Equal(t, "Test Corp", s.Company)
	assert.Equal(t, 1000.0, *s.Revenue)
	assert.Equal(t, 0.15, *s.NetMargin)
	assert.Equal(t, 5000.0, *s.EnterpriseValue)
	assert.True(t, s.IsBalanced)
}

func TestOptionalHelpers(t *testing.T) {
	assert.Equal(t, 0.0, Val(nil))
	assert.False(t, Known(nil))
	assert.False(t, Known(F(0)))
	assert.True(t, Known(F(-3)))
	assert.Nil(t, Finite(math.Inf(1)))
	assert.Equal(t, 2.0, *Finite(2))
	assert.Nil(t, Copy(nil))
}
