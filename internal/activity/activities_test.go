package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/internal/pipeline"
	"github.com/ploxoy666/finanalyzer/pkg/cache"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"
)

func yearEnd(y int) time.Time {
	return time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC)
}

func sampleStatements() model.FinancialStatements {
	return model.FinancialStatements{
		CompanyName: "Test Corp",
		Ticker:      "TST",
		FiscalYear:  2023,
		IncomeStatements: []model.IncomeStatement{{
			PeriodEnd:                yearEnd(2023),
			Revenue:                  model.F(1_000_000_000),
			NetIncome:                model.F(150_000_000),
			SharesOutstandingDiluted: model.F(100_000_000),
		}},
		BalanceSheets: []model.BalanceSheet{{
			PeriodEnd:               yearEnd(2023),
			CashAndEquivalents:      model.F(200_000_000),
			TotalAssets:             model.F(1_200_000_000),
			LongTermDebt:            model.F(250_000_000),
			TotalLiabilities:        model.F(450_000_000),
			TotalShareholdersEquity: model.F(750_000_000),
		}},
		CashFlowStatements: []model.CashFlowStatement{{
			PeriodEnd: yearEnd(2023),
			NetIncome: model.F(150_000_000),
		}},
	}
}

type fixture struct {
	acts *Activities
	mock redismock.ClientMock
	env  *testsuite.TestActivityEnvironment
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := config.Default()
	db, mock := redismock.NewClientMock()
	llmClient, err := llm.NewClient(config.LLMConfig{Enabled: false})
	require.NoError(t, err)

	acts := NewActivitiesWithDeps(cfg, zap.NewNop(), cache.NewRedisCacheFromClient(db, cfg.Storage.Redis), llmClient)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)
	return fixture{acts: acts, mock: mock, env: env}
}

func TestStatementsHashIsStable(t *testing.T) {
	h1, err := StatementsHash(sampleStatements(), pipeline.Request{})
	require.NoError(t, err)
	h2, err := StatementsHash(sampleStatements(), pipeline.Request{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	scaled, err := StatementsHash(sampleStatements(), pipeline.Request{SourceScale: model.ScaleMillions, TargetScale: model.ScaleUnits})
	require.NoError(t, err)
	assert.NotEqual(t, h1, scaled)

	other := sampleStatements()
	other.IncomeStatements[0].Revenue = model.F(2_000_000_000)
	h3, err := StatementsHash(other, pipeline.Request{})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestRequestHashSeparatesOverrides(t *testing.T) {
	base := pipeline.Request{Scenario: model.ScenarioBase}
	cheap := pipeline.Request{Scenario: model.ScenarioBase, Assumptions: model.PartialAssumptions{WACC: model.F(0.08)}}
	dear := pipeline.Request{Scenario: model.ScenarioBase, Assumptions: model.PartialAssumptions{WACC: model.F(0.12)}}

	h1, err := RequestHash(base)
	require.NoError(t, err)
	h2, err := RequestHash(cheap)
	require.NoError(t, err)
	h3, err := RequestHash(dear)
	require.NoError(t, err)
	again, err := RequestHash(pipeline.Request{Scenario: model.ScenarioBase, Assumptions: model.PartialAssumptions{WACC: model.F(0.12)}})
	require.NoError(t, err)

	assert.Len(t, h1, 16)
	assert.NotEqual(t, h2, h3)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, h3, again)
	assert.NotEqual(t,
		cache.ValuationKey("abc", string(model.ScenarioBase), h2),
		cache.ValuationKey("abc", string(model.ScenarioBase), h3),
	)
}

func TestBuildModelActivityCacheMiss(t *testing.T) {
	f := newFixture(t)
	hash, err := StatementsHash(sampleStatements(), pipeline.Request{})
	require.NoError(t, err)
	f.mock.ExpectGet(cache.ModelKey(hash)).RedisNil()

	val, err := f.env.ExecuteActivity(f.acts.BuildModelActivity, BuildModelInput{Statements: sampleStatements()})
	require.NoError(t, err)

	var res BuildModelResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, hash, res.ModelHash)
	assert.False(t, res.CacheHit)
	require.NotNil(t, res.Model)
	assert.True(t, res.Model.IsBalanced)
	assert.False(t, res.Model.HasForecast())
}

func TestBuildModelActivityCacheHit(t *testing.T) {
	f := newFixture(t)
	hash, err := StatementsHash(sampleStatements(), pipeline.Request{})
	require.NoError(t, err)

	cached, err := pipeline.NewEngine(config.Default().Model, zap.NewNop()).Build(context.Background(), sampleStatements(), pipeline.Request{})
	require.NoError(t, err)
	cached.CompanyName = "Cached Corp"
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	f.mock.ExpectGet(cache.ModelKey(hash)).SetVal(string(data))

	val, err := f.env.ExecuteActivity(f.acts.BuildModelActivity, BuildModelInput{
		Statements: sampleStatements(),
		Request:    pipeline.Request{CurrentPrice: model.F(30)},
	})
	require.NoError(t, err)

	var res BuildModelResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.CacheHit)
	assert.Equal(t, "Cached Corp", res.Model.CompanyName)
	require.NotNil(t, res.Model.CurrentPrice)
	assert.Equal(t, 30.0, *res.Model.CurrentPrice)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBuildModelActivityStructuralErrorIsNonRetryable(t *testing.T) {
	f := newFixture(t)
	s := sampleStatements()
	s.BalanceSheets = nil

	_, err := f.env.ExecuteActivity(f.acts.BuildModelActivity, BuildModelInput{Statements: s})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.TypeStructuralError, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestForecastValuationActivity(t *testing.T) {
	f := newFixture(t)
	history, err := pipeline.NewEngine(config.Default().Model, zap.NewNop()).Build(context.Background(), sampleStatements(), pipeline.Request{})
	require.NoError(t, err)

	val, err := f.env.ExecuteActivity(f.acts.ForecastValuationActivity, ForecastValuationInput{
		ModelHash: "abc",
		History:   history,
		Request: pipeline.Request{
			Scenario:     model.ScenarioConservative,
			Years:        5,
			CurrentPrice: model.F(25),
		},
	})
	require.NoError(t, err)

	var res ForecastValuationResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, "abc", res.ModelHash)
	assert.Equal(t, model.ScenarioConservative, res.Scenario)
	require.NotNil(t, res.Model)
	assert.Len(t, res.Model.ForecastIncomeStatements, 5)
	require.NotNil(t, res.Model.DCFValuation)
	assert.True(t, res.Model.DCFValuation.Available)
	assert.NotNil(t, res.Summary.EnterpriseValue)
	require.NotNil(t, res.Sensitivity)
	assert.Len(t, res.Sensitivity.Cells, 5)
	// 事件流未配置期望，发布失败不影响结果
	assert.Empty(t, res.EventID)
	assert.False(t, history.HasForecast())
}

func TestForecastValuationActivityUnknownScenario(t *testing.T) {
	f := newFixture(t)
	history, err := pipeline.NewEngine(config.Default().Model, zap.NewNop()).Build(context.Background(), sampleStatements(), pipeline.Request{})
	require.NoError(t, err)

	_, err = f.env.ExecuteActivity(f.acts.ForecastValuationActivity, ForecastValuationInput{
		History: history,
		Request: pipeline.Request{Scenario: "moonshot"},
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.TypeValidationError, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestInvestmentThesisActivityFallsBack(t *testing.T) {
	f := newFixture(t)
	m, err := pipeline.NewEngine(config.Default().Model, zap.NewNop()).Run(context.Background(), sampleStatements(), pipeline.Request{})
	require.NoError(t, err)

	val, err := f.env.ExecuteActivity(f.acts.InvestmentThesisActivity, InvestmentThesisInput{Model: m})
	require.NoError(t, err)

	var res InvestmentThesisResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, ThesisSourceDeterministic, res.Source)
	assert.Equal(t, m.InvestmentThesis, res.Thesis)
}

func TestCleanupCacheActivity(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectScan(0, "finmodel:valuation:abc*", 100).SetVal([]string{"finmodel:valuation:abc:base"}, 0)
	f.mock.ExpectDel("finmodel:valuation:abc:base").SetVal(1)
	f.mock.ExpectDel("finmodel:model:abc").SetVal(1)

	_, err := f.env.ExecuteActivity(f.acts.CleanupCacheActivity, "abc")
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestNotifyCompensationFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.env.ExecuteActivity(f.acts.NotifyCompensationFailure, "cache", "boom")
	assert.NoError(t, err)
}
