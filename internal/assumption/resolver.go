// 预测假设解析
// 优先级：调用方显式值 > 情景预设 > 全局默认值
package assumption

import (
	"fmt"
	"math"

	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/metrics"
	"go.uber.org/zap"
)

// 取值范围
const (
	MinGrowth = -1.0
	MaxGrowth = 5.0
	MinMargin = -1.0
	MaxMargin = 1.0

	daysPerYear = 365.0
)

// Resolution 解析结果与过程中产生的警告
type Resolution struct {
	Assumptions model.ForecastAssumptions
	Warnings    []string
}

// Resolver AssumptionResolver
type Resolver struct {
	cfg    config.AssumptionsConfig
	logger *zap.Logger
}

// New 创建解析器
func New(cfg config.AssumptionsConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, logger: logger.With(zap.String("component", "assumption"))}
}

// Resolve 合并显式假设、情景预设与默认值，并校验取值范围
//
// 越界值被截断并记录警告；非有限的 WACC 与终值增长率回退到预设值；
// wacc <= terminal_growth 时 WACC 被调整为 terminal_growth + epsilon。
// 只有未知情景返回 ErrAssumptionsInvalid。history 只读，可为 nil。
func (r *Resolver) Resolve(requested model.PartialAssumptions, scenario model.Scenario, history *model.LinkedModel) (Resolution, error) {
	preset, err := r.Preset(scenario, history)
	if err != nil {
		return Resolution{}, err
	}

	a := preset
	override(&a.RevenueGrowthRate, requested.RevenueGrowthRate)
	override(&a.GrossMargin, requested.GrossMargin)
	override(&a.OperatingMargin, requested.OperatingMargin)
	override(&a.TaxRate, requested.TaxRate)
	override(&a.CapexPercentOfRevenue, requested.CapexPercentOfRevenue)
	override(&a.DaysSalesOutstanding, requested.DaysSalesOutstanding)
	override(&a.DaysInventoryOutstanding, requested.DaysInventoryOutstanding)
	override(&a.DaysPayableOutstanding, requested.DaysPayableOutstanding)
	override(&a.DividendPayoutRatio, requested.DividendPayoutRatio)
	override(&a.WACC, requested.WACC)
	override(&a.TerminalGrowthRate, requested.TerminalGrowthRate)
	if requested.DepreciationSchedule != nil {
		a.DepreciationSchedule = append([]float64(nil), requested.DepreciationSchedule...)
	}

	res := Resolution{}
	r.finiteOr(&res, "wacc", &a.WACC, preset.WACC)
	r.finiteOr(&res, "terminal_growth_rate", &a.TerminalGrowthRate, preset.TerminalGrowthRate)
	r.validate(&a, &res)

	r.logger.Debug("Resolved forecast assumptions",
		zap.String("scenario", string(scenario)),
		zap.Float64("growth", a.RevenueGrowthRate),
		zap.Float64("wacc", a.WACC),
		zap.Float64("terminal_growth", a.TerminalGrowthRate),
		zap.Int("warnings", len(res.Warnings)),
	)

	res.Assumptions = a
	return res, nil
}

// Preset 情景预设
//
// 未指定情景时直接使用全局默认值。base 情景优先以最近历史期的增长、利润率、
// 营运资本天数与资本开支比例为锚；aggressive/conservative 在 base 上叠加偏移。
func (r *Resolver) Preset(scenario model.Scenario, history *model.LinkedModel) (model.ForecastAssumptions, error) {
	a := r.globalDefaults()
	a.Scenario = scenario

	switch scenario {
	case model.ScenarioNone:
		return a, nil
	case model.ScenarioBase:
	case model.ScenarioAggressive, model.ScenarioConservative:
	default:
		return model.ForecastAssumptions{}, fmt.Errorf("%w: unknown scenario %q", apperrors.ErrAssumptionsInvalid, string(scenario))
	}

	anchorToHistory(&a, history)

	var bias config.ScenarioBias
	switch scenario {
	case model.ScenarioAggressive:
		bias = r.cfg.Aggressive
	case model.ScenarioConservative:
		bias = r.cfg.Conservative
	}
	a.RevenueGrowthRate += bias.GrowthDelta
	a.GrossMargin += bias.MarginDelta
	a.OperatingMargin += bias.MarginDelta

	return a, nil
}

func (r *Resolver) globalDefaults() model.ForecastAssumptions {
	c := r.cfg
	return model.ForecastAssumptions{
		RevenueGrowthRate:        c.RevenueGrowthRate,
		GrossMargin:              c.GrossMargin,
		OperatingMargin:          c.OperatingMargin,
		TaxRate:                  c.TaxRate,
		CapexPercentOfRevenue:    c.CapexPercentOfRevenue,
		DaysSalesOutstanding:     c.DaysSalesOutstanding,
		DaysInventoryOutstanding: c.DaysInventoryOutstanding,
		DaysPayableOutstanding:   c.DaysPayableOutstanding,
		DividendPayoutRatio:      c.DividendPayoutRatio,
		WACC:                     c.WACC,
		TerminalGrowthRate:       c.TerminalGrowthRate,
	}
}

// anchorToHistory 用最近一期可计算的历史指标覆盖默认值
func anchorToHistory(a *model.ForecastAssumptions, history *model.LinkedModel) {
	if history == nil || len(history.HistoricalIncomeStatements) == 0 {
		return
	}
	n := len(history.HistoricalIncomeStatements)
	is := history.HistoricalIncomeStatements[n-1]

	if n >= 2 {
		prev := model.Val(history.HistoricalIncomeStatements[n-2].Revenue)
		if prev > 0 && model.Known(is.Revenue) {
			setIf(&a.RevenueGrowthRate, *is.Revenue/prev-1, MinGrowth, MaxGrowth)
		}
	}

	if len(history.HistoricalRatios) == n {
		ratios := history.HistoricalRatios[n-1]
		if ratios.GrossMargin != nil {
			setIf(&a.GrossMargin, *ratios.GrossMargin, MinMargin, MaxMargin)
		}
		if ratios.OperatingMargin != nil {
			setIf(&a.OperatingMargin, *ratios.OperatingMargin, MinMargin, MaxMargin)
		}
	}

	rev := model.Val(is.Revenue)
	cogs := model.Val(is.CostOfRevenue)
	if bs, ok := history.LatestBalance(); ok {
		if rev > 0 && model.Known(bs.AccountsReceivable) {
			setIf(&a.DaysSalesOutstanding, *bs.AccountsReceivable/rev*daysPerYear, 0, daysPerYear)
		}
		if cogs > 0 && model.Known(bs.Inventory) {
			setIf(&a.DaysInventoryOutstanding, *bs.Inventory/cogs*daysPerYear, 0, daysPerYear)
		}
		if cogs > 0 && model.Known(bs.AccountsPayable) {
			setIf(&a.DaysPayableOutstanding, *bs.AccountsPayable/cogs*daysPerYear, 0, daysPerYear)
		}
	}
	if cf, ok := history.LatestCashFlow(); ok && rev > 0 && model.Known(cf.CapitalExpenditures) {
		setIf(&a.CapexPercentOfRevenue, math.Abs(*cf.CapitalExpenditures)/rev, 0, 1)
	}
}

// setIf 值有限且在区间内时写入
func setIf(dst *float64, v, lo, hi float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
		return
	}
	*dst = v
}

func override(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func (r *Resolver) validate(a *model.ForecastAssumptions, res *Resolution) {
	r.clamp(res, "revenue_growth_rate", &a.RevenueGrowthRate, MinGrowth, MaxGrowth)
	r.clamp(res, "gross_margin", &a.GrossMargin, MinMargin, MaxMargin)
	r.clamp(res, "operating_margin", &a.OperatingMargin, MinMargin, MaxMargin)
	r.clamp(res, "tax_rate", &a.TaxRate, 0, 1)
	r.clamp(res, "capex_percent_of_revenue", &a.CapexPercentOfRevenue, 0, 1)
	r.clamp(res, "days_sales_outstanding", &a.DaysSalesOutstanding, 0, daysPerYear)
	r.clamp(res, "days_inventory_outstanding", &a.DaysInventoryOutstanding, 0, daysPerYear)
	r.clamp(res, "days_payable_outstanding", &a.DaysPayableOutstanding, 0, daysPerYear)
	r.clamp(res, "dividend_payout_ratio", &a.DividendPayoutRatio, 0, 1)

	if a.OperatingMargin > a.GrossMargin {
		r.warn(res, fmt.Sprintf("operating margin %.4f exceeds gross margin %.4f", a.OperatingMargin, a.GrossMargin))
	}

	if a.WACC <= a.TerminalGrowthRate {
		adjusted := a.TerminalGrowthRate + r.cfg.WACCEpsilon
		r.warn(res, fmt.Sprintf("wacc %.4f must exceed terminal growth %.4f; wacc clamped to %.4f",
			a.WACC, a.TerminalGrowthRate, adjusted))
		a.WACC = adjusted
	}
}

// finiteOr 非有限的显式值回退到预设值
func (r *Resolver) finiteOr(res *Resolution, name string, v *float64, fallback float64) {
	if !math.IsNaN(*v) && !math.IsInf(*v, 0) {
		return
	}
	r.warn(res, fmt.Sprintf("%s %v is not a finite number; using %.4f", name, *v, fallback))
	*v = fallback
}

func (r *Resolver) clamp(res *Resolution, name string, v *float64, lo, hi float64) {
	orig := *v
	switch {
	case math.IsNaN(orig):
		*v = lo
	case orig < lo:
		*v = lo
	case orig > hi:
		*v = hi
	default:
		return
	}
	r.warn(res, fmt.Sprintf("%s %.4f outside [%g, %g]; clamped to %g", name, orig, lo, hi, *v))
}

func (r *Resolver) warn(res *Resolution, msg string) {
	res.Warnings = append(res.Warnings, msg)
	metrics.ValidationWarnings.WithLabelValues("assumption_clamped").Inc()
	r.logger.Warn(msg)
}
