// 现金流折现估值
package valuation

import (
	"fmt"
	"math"

	"github.com/ploxoy666/finanalyzer/internal/forecast"
	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/metrics"
	"go.uber.org/zap"
)

// Discounted 一组现金流的折现结果
type Discounted struct {
	Factors         []float64
	PresentValues   []float64
	SumPV           float64
	TerminalValue   float64
	PVTerminalValue float64
}

// DiscountCashFlows 按 1/(1+wacc)^t 折现并以 Gordon 模型计算终值
//
// wacc <= g、wacc <= -1、输入或结果非有限、没有现金流时返回 ErrValuationUnavailable。
func DiscountCashFlows(fcfs []float64, wacc, g float64) (Discounted, error) {
	if len(fcfs) == 0 {
		return Discounted{}, fmt.Errorf("%w: no forecast cash flows", apperrors.ErrValuationUnavailable)
	}
	if !finite(wacc) || !finite(g) {
		return Discounted{}, fmt.Errorf("%w: wacc %v and terminal growth %v must be finite", apperrors.ErrValuationUnavailable, wacc, g)
	}
	if wacc <= g {
		return Discounted{}, fmt.Errorf("%w: wacc %.4f must exceed terminal growth %.4f", apperrors.ErrValuationUnavailable, wacc, g)
	}
	if wacc <= -1 {
		return Discounted{}, fmt.Errorf("%w: wacc %.4f is not a valid discount rate", apperrors.ErrValuationUnavailable, wacc)
	}

	d := Discounted{
		Factors:       make([]float64, len(fcfs)),
		PresentValues: make([]float64, len(fcfs)),
	}
	factor := 1.0
	for i, fcf := range fcfs {
		factor /= 1 + wacc
		d.Factors[i] = factor
		d.PresentValues[i] = fcf * factor
		d.SumPV += d.PresentValues[i]
	}

	last := fcfs[len(fcfs)-1]
	d.TerminalValue = last * (1 + g) / (wacc - g)
	d.PVTerminalValue = d.TerminalValue * factor
	if !finite(d.SumPV + d.PVTerminalValue) {
		return Discounted{}, fmt.Errorf("%w: enterprise value is not finite", apperrors.ErrValuationUnavailable)
	}
	return d, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Valuator DCFValuator
type Valuator struct {
	cfg          config.ValuationConfig
	defaultYears int
	projector    *forecast.Projector
	logger       *zap.Logger
}

// New 创建估值器；模型尚无预测期时使用 projector 补齐
func New(cfg config.ModelConfig, projector *forecast.Projector, logger *zap.Logger) *Valuator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if projector == nil {
		projector = forecast.New(cfg, logger)
	}
	return &Valuator{
		cfg:          cfg.Valuation,
		defaultYears: cfg.Forecast.DefaultYears,
		projector:    projector,
		logger:       logger.With(zap.String("component", "valuation")),
	}
}

// Value 计算 DCF 估值并写回模型（目标价、上涨空间、评级）
//
// 不可计算的估值以 Available=false 表示，不返回错误；只有模型缺失或预测失败才返回错误。
func (v *Valuator) Value(m *model.LinkedModel, a model.ForecastAssumptions) (*model.DCFValuation, error) {
	if m == nil {
		return nil, apperrors.NewModelBuildError("", "valuation requires a linked model")
	}
	if !m.HasForecast() {
		if _, err := v.projector.Project(m, a, v.defaultYears); err != nil {
			return nil, err
		}
	}

	val := &model.DCFValuation{
		WACCUsed:           a.WACC,
		TerminalGrowthUsed: a.TerminalGrowthRate,
		Rows:               cashFlowRows(m, a.TaxRate),
	}

	fcfs := make([]float64, len(val.Rows))
	for i, r := range val.Rows {
		fcfs[i] = r.FreeCashFlow
	}

	d, err := DiscountCashFlows(fcfs, a.WACC, a.TerminalGrowthRate)
	if err != nil {
		val.UnavailableReason = err.Error()
		metrics.UnavailableMetrics.WithLabelValues("enterprise_value").Inc()
		v.logger.Warn("Valuation unavailable",
			zap.String("company", m.CompanyName),
			zap.Error(err),
		)
		v.attach(m, val)
		return val, nil
	}

	for i := range val.Rows {
		val.Rows[i].DiscountFactor = d.Factors[i]
		val.Rows[i].PVFreeCashFlow = d.PresentValues[i]
	}
	val.SumPVFCF = d.SumPV
	val.TerminalValue = d.TerminalValue
	val.PVTerminalValue = d.PVTerminalValue
	val.EnterpriseValue = d.SumPV + d.PVTerminalValue
	val.NetDebt = netDebt(m)
	val.EquityValue = val.EnterpriseValue - val.NetDebt
	val.Available = true

	val.SharesOutstanding = sharesOutstanding(m)
	if val.SharesOutstanding != nil {
		val.ImpliedPricePerShare = model.Finite(val.EquityValue / *val.SharesOutstanding)
	}
	if val.ImpliedPricePerShare == nil {
		val.UnavailableReason = "implied price unavailable: diluted shares outstanding missing or zero"
		metrics.UnavailableMetrics.WithLabelValues("implied_price_per_share").Inc()
	}

	v.attach(m, val)

	v.logger.Info("Valuation completed",
		zap.String("company", m.CompanyName),
		zap.Float64("enterprise_value", val.EnterpriseValue),
		zap.Float64("equity_value", val.EquityValue),
		zap.String("recommendation", string(m.Recommendation)),
	)
	return val, nil
}

// attach 写回估值与派生的标量输出
func (v *Valuator) attach(m *model.LinkedModel, val *model.DCFValuation) {
	m.DCFValuation = val
	m.TargetPrice = model.Copy(val.ImpliedPricePerShare)
	m.UpsidePotential = model.Upside(model.FullModel{Model: m})
	m.Recommendation = Recommend(m.UpsidePotential, v.cfg)
	m.InvestmentThesis = Thesis(m)
	metrics.Recommendations.WithLabelValues(string(m.Recommendation)).Inc()
}

// cashFlowRows FCF = EBIT·(1 - t) + D&A - Capex - ΔWC
func cashFlowRows(m *model.LinkedModel, taxRate float64) []model.CashFlowRow {
	rows := make([]model.CashFlowRow, len(m.ForecastIncomeStatements))
	for i, is := range m.ForecastIncomeStatements {
		var capex, dwc float64
		if i < len(m.ForecastCashFlows) {
			cf := m.ForecastCashFlows[i]
			capex = math.Abs(model.Val(cf.CapitalExpenditures))
			dwc = -model.Val(cf.ChangesInWorkingCapital)
		}

		ebit := model.Val(is.EBIT)
		if is.EBIT == nil {
			ebit = model.Val(is.OperatingIncome)
		}
		da := model.Val(is.DepreciationAmortization)
		nopat := ebit * (1 - taxRate)

		rows[i] = model.CashFlowRow{
			Year:                 forecastYear(m, is, i),
			Revenue:              model.Val(is.Revenue),
			EBIT:                 ebit,
			NOPAT:                nopat,
			DepreciationAmort:    da,
			CapitalExpenditures:  capex,
			ChangeWorkingCapital: dwc,
			FreeCashFlow:         nopat + da - capex - dwc,
		}
	}
	return rows
}

func forecastYear(m *model.LinkedModel, is model.IncomeStatement, i int) int {
	if !is.PeriodEnd.IsZero() {
		return is.PeriodEnd.Year()
	}
	if m.FiscalYear > 0 {
		return m.FiscalYear + i + 1
	}
	return i + 1
}

// netDebt 总借款 - 现金，取最近一期含借款或现金数据的历史资产负债表，
// 历史期均无此类数据时取最后一期预测资产负债表
func netDebt(m *model.LinkedModel) float64 {
	for i := len(m.HistoricalBalanceSheets) - 1; i >= 0; i-- {
		bs := m.HistoricalBalanceSheets[i]
		if bs.ShortTermDebt != nil || bs.LongTermDebt != nil || bs.CashAndEquivalents != nil {
			return bs.TotalDebt() - model.Val(bs.CashAndEquivalents)
		}
	}
	if n := len(m.ForecastBalanceSheets); n > 0 {
		bs := m.ForecastBalanceSheets[n-1]
		return bs.TotalDebt() - model.Val(bs.CashAndEquivalents)
	}
	return 0
}

// sharesOutstanding 最近一期稀释股数，缺失时退回基本股数；非正数视为不可用
func sharesOutstanding(m *model.LinkedModel) *float64 {
	for i := len(m.HistoricalIncomeStatements) - 1; i >= 0; i-- {
		is := m.HistoricalIncomeStatements[i]
		for _, s := range []*float64{is.SharesOutstandingDiluted, is.SharesOutstandingBasic} {
			if s != nil && *s > 0 {
				return model.Copy(s)
			}
		}
	}
	return nil
}
