package forecast

import (
	"math"
	"time"

	"github.com/ploxoy666/finanalyzer/internal/model"
)

// periodState 单期滚动状态
//
// 资产 = 现金 + 应收 + 存货 + 其他流动资产 + 固定资产 + 其他非流动资产，
// 负债 = 应付 + 短期借款 + 其他流动负债 + 长期借款 + 其他非流动负债。
// 其他项按最近历史期持平，因此历史期平衡时预测期同样平衡。
type periodState struct {
	start, end time.Time

	revenue, cogs, grossProfit, operatingIncome float64
	depreciation, interest, pretax, tax         float64
	netIncome, dividends, capex                 float64
	sharesBasic, sharesDiluted                  *float64

	cash, receivables, inventory, otherCurrent float64
	ppe, intangibles, otherNonCurrent          float64
	payables, shortDebt, otherCurrentLiab      float64
	longDebt, otherNonCurrentLiab              float64
	retainedEarnings, equity                   float64

	deltaWorkingCapital float64
	cashBegin           float64
}

func (s periodState) workingCapital() float64 {
	return s.receivables + s.inventory - s.payables
}

func (s periodState) currentAssets() float64 {
	return s.cash + s.receivables + s.inventory + s.otherCurrent
}

func (s periodState) totalAssets() float64 {
	return s.currentAssets() + s.ppe + s.otherNonCurrent
}

func (s periodState) currentLiabilities() float64 {
	return s.payables + s.shortDebt + s.otherCurrentLiab
}

func (s periodState) totalLiabilities() float64 {
	return s.currentLiabilities() + s.longDebt + s.otherNonCurrentLiab
}

// baseState 由最近一期历史报表得到第 0 期状态
func (p *Projector) baseState(m *model.LinkedModel, a model.ForecastAssumptions) periodState {
	is, _ := m.LatestIncome()
	bs, _ := m.LatestBalance()

	s := periodState{
		end:           is.PeriodEnd,
		revenue:       model.Val(is.Revenue),
		cogs:          model.Val(is.CostOfRevenue),
		interest:      math.Abs(model.Val(is.InterestExpense)),
		sharesBasic:   model.Copy(is.SharesOutstandingBasic),
		sharesDiluted: model.Copy(is.SharesOutstandingDiluted),

		cash:             model.Val(bs.CashAndEquivalents),
		ppe:              model.Val(bs.PropertyPlantEquipmentNet),
		intangibles:      model.Val(bs.IntangibleAssets),
		shortDebt:        model.Val(bs.ShortTermDebt),
		longDebt:         model.Val(bs.LongTermDebt),
		retainedEarnings: model.Val(bs.RetainedEarnings),
		equity:           model.Val(bs.TotalShareholdersEquity),
	}
	if s.end.IsZero() && !bs.PeriodEnd.IsZero() {
		s.end = bs.PeriodEnd
	}
	if s.end.IsZero() && m.FiscalYear > 0 {
		s.end = time.Date(m.FiscalYear, 12, 31, 0, 0, 0, 0, time.UTC)
	}

	// 历史期没有任何营运资本科目时，以假设天数推算基期余额，避免首年营运资本跳变
	if bs.AccountsReceivable != nil || bs.Inventory != nil || bs.AccountsPayable != nil {
		s.receivables = model.Val(bs.AccountsReceivable)
		s.inventory = model.Val(bs.Inventory)
		s.payables = model.Val(bs.AccountsPayable)
	} else {
		s.receivables = s.revenue / daysPerYear * a.DaysSalesOutstanding
		s.inventory = s.cogs / daysPerYear * a.DaysInventoryOutstanding
		s.payables = s.cogs / daysPerYear * a.DaysPayableOutstanding
	}

	knownCurrent := s.cash + s.receivables + s.inventory
	if bs.TotalCurrentAssets != nil {
		s.otherCurrent = *bs.TotalCurrentAssets - knownCurrent
	}
	assets := s.currentAssets() + s.ppe
	if bs.TotalAssets != nil {
		s.otherNonCurrent = *bs.TotalAssets - assets
	}

	if bs.TotalCurrentLiabilities != nil {
		s.otherCurrentLiab = *bs.TotalCurrentLiabilities - s.payables - s.shortDebt
	}
	if bs.TotalLiabilities != nil {
		s.otherNonCurrentLiab = *bs.TotalLiabilities - s.currentLiabilities() - s.longDebt
	}

	return s
}

// step 由上一期状态推出第 t 期
func (p *Projector) step(prev periodState, a model.ForecastAssumptions, t int) periodState {
	s := prev
	if !prev.end.IsZero() {
		s.start = prev.end.AddDate(0, 0, 1)
		s.end = prev.end.AddDate(1, 0, 0)
	}

	// 利润表
	s.revenue = prev.revenue * (1 + a.RevenueGrowthRate)
	s.grossProfit = s.revenue * a.GrossMargin
	s.cogs = s.revenue - s.grossProfit
	s.operatingIncome = s.revenue * a.OperatingMargin
	if t <= len(a.DepreciationSchedule) {
		s.depreciation = a.DepreciationSchedule[t-1]
	} else {
		s.depreciation = p.depreciationShare * math.Max(s.operatingIncome, 0)
	}
	// 税基为营业利润，利息只在净利润中扣除
	s.pretax = s.operatingIncome - s.interest
	s.tax = math.Max(0, s.operatingIncome) * a.TaxRate
	s.netIncome = s.operatingIncome - s.interest - s.tax
	s.dividends = math.Max(s.netIncome, 0) * a.DividendPayoutRatio

	// 营运资本
	s.receivables = s.revenue / daysPerYear * a.DaysSalesOutstanding
	s.inventory = s.cogs / daysPerYear * a.DaysInventoryOutstanding
	s.payables = s.cogs / daysPerYear * a.DaysPayableOutstanding
	s.deltaWorkingCapital = s.workingCapital() - prev.workingCapital()

	// 资本开支与固定资产
	s.capex = a.CapexPercentOfRevenue * s.revenue
	s.ppe = prev.ppe + s.capex - s.depreciation

	// 现金滚动
	s.cashBegin = prev.cash
	s.cash = prev.cash + s.netChangeInCash()

	s.retainedEarnings = prev.retainedEarnings + s.netIncome - s.dividends
	s.equity = prev.equity + s.netIncome - s.dividends

	return s
}

func (s periodState) cashFromOperations() float64 {
	return s.netIncome + s.depreciation - s.deltaWorkingCapital
}

func (s periodState) netChangeInCash() float64 {
	return s.cashFromOperations() - s.capex - s.dividends
}

// statements 将状态展开为三张预测报表
func (s periodState) statements() (model.IncomeStatement, model.BalanceSheet, model.CashFlowStatement) {
	is := model.IncomeStatement{
		PeriodStart:              s.start,
		PeriodEnd:                s.end,
		Revenue:                  model.F(s.revenue),
		CostOfRevenue:            model.F(s.cogs),
		GrossProfit:              model.F(s.grossProfit),
		OperatingExpenses:        model.F(s.grossProfit - s.operatingIncome),
		OperatingIncome:          model.F(s.operatingIncome),
		DepreciationAmortization: model.F(s.depreciation),
		EBITDA:                   model.F(s.operatingIncome + s.depreciation),
		EBIT:                     model.F(s.operatingIncome),
		IncomeBeforeTax:          model.F(s.pretax),
		IncomeTaxExpense:         model.F(s.tax),
		NetIncome:                model.F(s.netIncome),
		SharesOutstandingBasic:   model.Copy(s.sharesBasic),
		SharesOutstandingDiluted: model.Copy(s.sharesDiluted),
		IsProjected:              true,
	}
	if s.interest != 0 {
		is.InterestExpense = model.F(s.interest)
	}
	if s.sharesDiluted != nil && *s.sharesDiluted > 0 {
		is.DilutedEPS = model.F(s.netIncome / *s.sharesDiluted)
	}

	bs := model.BalanceSheet{
		PeriodEnd:                 s.end,
		CashAndEquivalents:        model.F(s.cash),
		AccountsReceivable:        model.F(s.receivables),
		Inventory:                 model.F(s.inventory),
		TotalCurrentAssets:        model.F(s.currentAssets()),
		PropertyPlantEquipmentNet: model.F(s.ppe),
		IntangibleAssets:          model.F(s.intangibles),
		TotalAssets:               model.F(s.totalAssets()),
		AccountsPayable:           model.F(s.payables),
		ShortTermDebt:             model.F(s.shortDebt),
		TotalCurrentLiabilities:   model.F(s.currentLiabilities()),
		LongTermDebt:              model.F(s.longDebt),
		TotalLiabilities:          model.F(s.totalLiabilities()),
		RetainedEarnings:          model.F(s.retainedEarnings),
		TotalShareholdersEquity:   model.F(s.equity),
		IsProjected:               true,
	}

	cf := model.CashFlowStatement{
		PeriodStart:              s.start,
		PeriodEnd:                s.end,
		NetIncome:                model.F(s.netIncome),
		DepreciationAmortization: model.F(s.depreciation),
		ChangesInWorkingCapital:  model.F(-s.deltaWorkingCapital),
		CashFromOperations:       model.F(s.cashFromOperations()),
		CapitalExpenditures:      model.F(-s.capex),
		CashFromInvesting:        model.F(-s.capex),
		DividendsPaid:            model.F(-s.dividends),
		CashFromFinancing:        model.F(-s.dividends),
		NetChangeInCash:          model.F(s.netChangeInCash()),
		CashBeginningOfPeriod:    model.F(s.cashBegin),
		CashEndOfPeriod:          model.F(s.cash),
		IsProjected:              true,
	}

	return is, bs, cf
}
