package linker

import (
	"github.com/ploxoy666/finanalyzer/internal/model"
	"go.uber.org/zap"
)

// deriveIncome 按固定顺序补全利润表
//
//	a. 毛利 = 收入 - 成本，或反推成本
//	b. 毛利低于收入 1% 视为解析错误并丢弃
//	c. 毛利未知时由净利润或默认毛利率估算
//	d. EBIT 未知时由净利润或毛利估算
//
// 之后补齐 D&A 与 EBITDA。"已知" 指存在且非零。
func (l *Linker) deriveIncome(is *model.IncomeStatement, m *model.LinkedModel, label string) []model.DerivationRule {
	var rules []model.DerivationRule
	cfg := l.cfg

	rev := is.Revenue
	derivedCost := false

	// a
	switch {
	case !model.Known(is.GrossProfit) && model.Known(rev) && model.Known(is.CostOfRevenue):
		is.GrossProfit = model.F(*rev - *is.CostOfRevenue)
		rules = append(rules, model.RuleGrossFromCost)
	case model.Known(is.GrossProfit) && model.Known(rev) && !model.Known(is.CostOfRevenue):
		is.CostOfRevenue = model.F(*rev - *is.GrossProfit)
		derivedCost = true
		rules = append(rules, model.RuleCostFromGross)
	}

	// b
	if model.Known(is.GrossProfit) && model.Val(rev) > cfg.SanityRevenueFloor &&
		*is.GrossProfit < *rev*cfg.MinGrossMargin {
		l.warn(m, "gross_profit_rejected",
			l.printer.Sprintf("period %s: gross profit %.0f is below %.0f%% of revenue %.0f and was ignored",
				label, *is.GrossProfit, cfg.MinGrossMargin*100, *rev),
			zap.String("period", label),
			zap.Float64("gross_profit", *is.GrossProfit),
		)
		is.GrossProfit = nil
		if derivedCost {
			is.CostOfRevenue = nil
		}
		rules = append(rules, model.RuleGrossRejected)
	}

	// c
	if !model.Known(is.GrossProfit) && model.Val(rev) > 0 {
		if model.Known(is.NetIncome) {
			is.GrossProfit = model.F(*is.NetIncome + *rev*cfg.GrossFromNetRevenueShare)
			rules = append(rules, model.RuleGrossFromNet)
		} else {
			is.GrossProfit = model.F(*rev * cfg.DefaultGrossMargin)
			rules = append(rules, model.RuleGrossDefaultMargin)
		}
		is.CostOfRevenue = model.F(*rev - *is.GrossProfit)
	}

	// d
	if !model.Known(is.OperatingIncome) && model.Known(is.EBIT) {
		is.OperatingIncome = model.Copy(is.EBIT)
	}
	if !model.Known(is.OperatingIncome) {
		switch {
		case model.Known(is.NetIncome):
			is.OperatingIncome = model.F(*is.NetIncome * cfg.OperatingFromNetMultiple)
			rules = append(rules, model.RuleEBITFromNet)
		case model.Known(is.GrossProfit):
			is.OperatingIncome = model.F(*is.GrossProfit * cfg.OperatingFromGrossShare)
			rules = append(rules, model.RuleEBITFromGross)
		}
	}
	if !model.Known(is.EBIT) && model.Known(is.OperatingIncome) {
		is.EBIT = model.Copy(is.OperatingIncome)
	}

	if !model.Known(is.DepreciationAmortization) && model.Val(is.EBIT) > 0 {
		is.DepreciationAmortization = model.F(*is.EBIT * cfg.DepreciationShareOfEBIT)
		rules = append(rules, model.RuleDepreciationFromEBIT)
	}
	if !model.Known(is.EBITDA) && model.Known(is.EBIT) {
		is.EBITDA = model.F(*is.EBIT + model.Val(is.DepreciationAmortization))
		rules = append(rules, model.RuleEBITDAFromEBIT)
	}

	return rules
}

// deriveBalance 权益缺失时以 资产 - 负债 补齐
func deriveBalance(bs *model.BalanceSheet) []model.DerivationRule {
	if !model.Known(bs.TotalShareholdersEquity) &&
		model.Known(bs.TotalAssets) && model.Known(bs.TotalLiabilities) {
		bs.TotalShareholdersEquity = model.F(*bs.TotalAssets - *bs.TotalLiabilities)
		return []model.DerivationRule{model.RuleEquityFromBalance}
	}
	return nil
}

// deriveCashFlow 现金流量表的净利润与折旧缺失时取利润表数值
func deriveCashFlow(cf *model.CashFlowStatement, is *model.IncomeStatement) []model.DerivationRule {
	var rules []model.DerivationRule
	if !model.Known(cf.NetIncome) && model.Known(is.NetIncome) {
		cf.NetIncome = model.Copy(is.NetIncome)
		rules = append(rules, model.RuleCashFlowNetIncome)
	}
	if !model.Known(cf.DepreciationAmortization) && model.Known(is.DepreciationAmortization) {
		cf.DepreciationAmortization = model.Copy(is.DepreciationAmortization)
		rules = append(rules, model.RuleCashFlowDepreciation)
	}
	return rules
}
