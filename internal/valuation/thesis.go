package valuation

import (
	"strings"

	"github.com/ploxoy666/finanalyzer/internal/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Thesis 由预测与估值结果生成确定性的投资论点文本
func Thesis(m *model.LinkedModel) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	name := m.CompanyName
	if m.Ticker != "" {
		name = p.Sprintf("%s (%s)", m.CompanyName, m.Ticker)
	}

	if a := m.Assumptions; a != nil {
		b.WriteString(p.Sprintf("%s is projected to grow revenue %.1f%% per year with a %.1f%% gross margin and a %.1f%% operating margin.",
			name, a.RevenueGrowthRate*100, a.GrossMargin*100, a.OperatingMargin*100))
	} else {
		b.WriteString(p.Sprintf("%s has no forecast assumptions attached.", name))
	}

	v := m.DCFValuation
	switch {
	case v == nil:
		b.WriteString(" No valuation has been computed.")
		return b.String()
	case !v.Available:
		b.WriteString(" The DCF valuation is unavailable: ")
		b.WriteString(v.UnavailableReason)
		b.WriteString(".")
		return b.String()
	}

	b.WriteString(p.Sprintf(" Discounting at a %.1f%% WACC with %.1f%% terminal growth gives an enterprise value of %.0f %s",
		v.WACCUsed*100, v.TerminalGrowthUsed*100, v.EnterpriseValue, currency(m)))
	if v.EnterpriseValue != 0 {
		b.WriteString(p.Sprintf(", %.0f%% of which comes from the terminal value.", v.PVTerminalValue/v.EnterpriseValue*100))
	} else {
		b.WriteString(".")
	}

	if v.ImpliedPricePerShare != nil {
		b.WriteString(p.Sprintf(" Equity value of %.0f implies %.2f per share", v.EquityValue, *v.ImpliedPricePerShare))
		if m.UpsidePotential != nil && m.CurrentPrice != nil {
			b.WriteString(p.Sprintf(" against a market price of %.2f (%+.1f%%)", *m.CurrentPrice, *m.UpsidePotential*100))
		}
		b.WriteString(".")
	}

	if m.Recommendation != "" && m.Recommendation != model.RecommendationNA {
		b.WriteString(p.Sprintf(" Recommendation: %s.", m.Recommendation))
	}
	if !m.IsBalanced {
		b.WriteString(" Note: the historical balance sheet did not balance; treat the result with caution.")
	}
	return b.String()
}

func currency(m *model.LinkedModel) string {
	if m.Currency == "" {
		return string(model.CurrencyUSD)
	}
	return string(m.Currency)
}
