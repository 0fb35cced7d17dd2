// 预测假设
package model

import (
	"fmt"
	"strings"
)

// Scenario 情景标签
type Scenario string

const (
	ScenarioNone         Scenario = ""
	ScenarioBase         Scenario = "base"
	ScenarioAggressive   Scenario = "aggressive"
	ScenarioConservative Scenario = "conservative"
)

// ParseScenario 解析情景标签，大小写不敏感；空串表示未指定情景
func ParseScenario(s string) (Scenario, error) {
	switch Scenario(strings.ToLower(strings.TrimSpace(s))) {
	case ScenarioNone:
		return ScenarioNone, nil
	case ScenarioBase:
		return ScenarioBase, nil
	case ScenarioAggressive:
		return ScenarioAggressive, nil
	case ScenarioConservative:
		return ScenarioConservative, nil
	default:
		return ScenarioNone, fmt.Errorf("unknown scenario %q", s)
	}
}

// ForecastAssumptions 解析完成的预测假设
//
// 附着到某次预测后视为不可变；新的假设会产生新的预测。
type ForecastAssumptions struct {
	RevenueGrowthRate        float64  `json:"revenue_growth_rate"`
	GrossMargin              float64  `json:"gross_margin"`
	OperatingMargin          float64  `json:"operating_margin"`
	TaxRate                  float64  `json:"tax_rate"`
	CapexPercentOfRevenue    float64  `json:"capex_percent_of_revenue"`
	DaysSalesOutstanding     float64  `json:"days_sales_outstanding"`
	DaysInventoryOutstanding float64  `json:"days_inventory_outstanding"`
	DaysPayableOutstanding   float64  `json:"days_payable_outstanding"`
	DividendPayoutRatio      float64  `json:"dividend_payout_ratio"`
	WACC                     float64  `json:"wacc"`
	TerminalGrowthRate       float64  `json:"terminal_growth_rate"`
	Scenario                 Scenario `json:"scenario"`

	// DepreciationSchedule 显式折旧计划，按预测年排列；为空时按 EBIT 比例估算
	DepreciationSchedule []float64 `json:"depreciation_schedule,omitempty"`
}

// Clone 深拷贝
func (a ForecastAssumptions) Clone() ForecastAssumptions {
	out := a
	if a.DepreciationSchedule != nil {
		out.DepreciationSchedule = append([]float64(nil), a.DepreciationSchedule...)
	}
	return out
}

// PartialAssumptions 调用方显式提供的假设，nil 字段由情景或默认值补齐
type PartialAssumptions struct {
	RevenueGrowthRate        *float64 `json:"revenue_growth_rate,omitempty"`
	GrossMargin              *float64 `json:"gross_margin,omitempty"`
	OperatingMargin          *float64 `json:"operating_margin,omitempty"`
	TaxRate                  *float64 `json:"tax_rate,omitempty"`
	CapexPercentOfRevenue    *float64 `json:"capex_percent_of_revenue,omitempty"`
	DaysSalesOutstanding     *float64 `json:"days_sales_outstanding,omitempty"`
	DaysInventoryOutstanding *float64 `json:"days_inventory_outstanding,omitempty"`
	DaysPayableOutstanding   *float64 `json:"days_payable_outstanding,omitempty"`
	DividendPayoutRatio      *float64 `json:"dividend_payout_ratio,omitempty"`
	WACC                     *float64 `json:"wacc,omitempty"`
	TerminalGrowthRate       *float64 `json:"terminal_growth_rate,omitempty"`

	DepreciationSchedule []float64 `json:"depreciation_schedule,omitempty"`
}
