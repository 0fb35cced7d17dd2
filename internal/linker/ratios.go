package linker

import "github.com/ploxoy666/finanalyzer/internal/model"

// ComputeRatios 计算单期比率
//
// 分子缺失、分母缺失或为零、结果非有限时该比率为 nil。历史期与预测期共用。
func ComputeRatios(is model.IncomeStatement, bs model.BalanceSheet) model.Ratios {
	operating := is.OperatingIncome
	if operating == nil {
		operating = is.EBIT
	}

	var quickAssets *float64
	if bs.TotalCurrentAssets != nil {
		quickAssets = model.F(*bs.TotalCurrentAssets - model.Val(bs.Inventory))
	}

	var debt *float64
	if bs.ShortTermDebt != nil || bs.LongTermDebt != nil {
		debt = model.F(bs.TotalDebt())
	}

	return model.Ratios{
		GrossMargin:     ratio(is.GrossProfit, is.Revenue),
		OperatingMargin: ratio(operating, is.Revenue),
		NetMargin:       ratio(is.NetIncome, is.Revenue),
		EBITDAMargin:    ratio(is.EBITDA, is.Revenue),
		CurrentRatio:    ratio(bs.TotalCurrentAssets, bs.TotalCurrentLiabilities),
		QuickRatio:      ratio(quickAssets, bs.TotalCurrentLiabilities),
		ROE:             ratio(is.NetIncome, bs.TotalShareholdersEquity),
		ROA:             ratio(is.NetIncome, bs.TotalAssets),
		DebtToEquity:    ratio(debt, bs.TotalShareholdersEquity),
		AssetTurnover:   ratio(is.Revenue, bs.TotalAssets),
	}
}

func ratio(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	return model.Finite(*num / *den)
}
