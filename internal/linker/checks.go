package linker

import (
	"math"

	"github.com/ploxoy666/finanalyzer/internal/model"
	"go.uber.org/zap"
)

// BalanceTolerance 允许的 资产 - (负债 + 权益) 差额
func BalanceTolerance(absolute, relative, totalAssets float64) float64 {
	return math.Max(absolute, relative*math.Abs(totalAssets))
}

// checkBalance 校验 资产 = 负债 + 权益，缺失字段按 0 处理
func (l *Linker) checkBalance(bs model.BalanceSheet, label string, m *model.LinkedModel) bool {
	assets := model.Val(bs.TotalAssets)
	rhs := model.Val(bs.TotalLiabilities) + model.Val(bs.TotalShareholdersEquity)
	diff := assets - rhs

	tol := BalanceTolerance(l.cfg.BalanceAbsoluteTolerance, l.cfg.BalanceRelativeTolerance, assets)
	if math.Abs(diff) <= tol {
		return true
	}

	l.warn(m, "imbalance",
		l.printer.Sprintf("period %s: balance sheet does not balance, total assets %.0f vs liabilities + equity %.0f (difference %.2f)",
			label, assets, rhs, diff),
		zap.String("period", label),
		zap.Float64("difference", diff),
	)
	return false
}

// checkLinkage 跨表勾稽：利润表净利润 = 现金流量表净利润，期末现金 = 资产负债表现金
//
// 只产生警告，不影响 IsBalanced。
func (l *Linker) checkLinkage(is model.IncomeStatement, cf model.CashFlowStatement, bs model.BalanceSheet, label string, m *model.LinkedModel) {
	if is.NetIncome != nil && cf.NetIncome != nil {
		if diff := *is.NetIncome - *cf.NetIncome; !l.withinLinkage(diff, *is.NetIncome, *cf.NetIncome) {
			l.warn(m, "linkage",
				l.printer.Sprintf("period %s: income statement net income %.0f differs from cash flow net income %.0f",
					label, *is.NetIncome, *cf.NetIncome),
				zap.String("period", label),
				zap.Float64("difference", diff),
			)
		}
	}

	if cf.CashEndOfPeriod != nil && bs.CashAndEquivalents != nil {
		if diff := *cf.CashEndOfPeriod - *bs.CashAndEquivalents; !l.withinLinkage(diff, *cf.CashEndOfPeriod, *bs.CashAndEquivalents) {
			l.warn(m, "linkage",
				l.printer.Sprintf("period %s: cash flow ending cash %.0f differs from balance sheet cash %.0f",
					label, *cf.CashEndOfPeriod, *bs.CashAndEquivalents),
				zap.String("period", label),
				zap.Float64("difference", diff),
			)
		}
	}
}

func (l *Linker) withinLinkage(diff, a, b float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(diff) <= math.Max(l.cfg.BalanceAbsoluteTolerance, l.cfg.LinkageRelativeTolerance*scale)
}
