// 链接模型
package model

// Ratios 单期派生比率，nil 表示不可计算
type Ratios struct {
	GrossMargin     *float64 `json:"gross_margin,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty"`
	NetMargin       *float64 `json:"net_margin,omitempty"`
	EBITDAMargin    *float64 `json:"ebitda_margin,omitempty"`
	CurrentRatio    *float64 `json:"current_ratio,omitempty"`
	QuickRatio      *float64 `json:"quick_ratio,omitempty"`
	ROE             *float64 `json:"roe,omitempty"`
	ROA             *float64 `json:"roa,omitempty"`
	DebtToEquity    *float64 `json:"debt_to_equity,omitempty"`
	AssetTurnover   *float64 `json:"asset_turnover,omitempty"`
}

// DerivationRule 补全规则标识
type DerivationRule string

const (
	RuleGrossFromCost        DerivationRule = "gross_profit_from_cost"
	RuleCostFromGross        DerivationRule = "cost_from_gross_profit"
	RuleGrossRejected        DerivationRule = "gross_profit_rejected"
	RuleGrossFromNet         DerivationRule = "gross_profit_from_net_income"
	RuleGrossDefaultMargin   DerivationRule = "gross_profit_default_margin"
	RuleEBITFromNet          DerivationRule = "ebit_from_net_income"
	RuleEBITFromGross        DerivationRule = "ebit_from_gross_profit"
	RuleDepreciationFromEBIT DerivationRule = "depreciation_from_ebit"
	RuleEBITDAFromEBIT       DerivationRule = "ebitda_from_ebit"
	RuleEquityFromBalance    DerivationRule = "equity_from_assets_less_liabilities"
	RuleCashFlowNetIncome    DerivationRule = "cash_flow_net_income_from_income_statement"
	RuleCashFlowDepreciation DerivationRule = "cash_flow_depreciation_from_income_statement"
)

// PeriodDerivation 某一期触发的补全规则，供下游区分抽取值与推断值
type PeriodDerivation struct {
	PeriodIndex int              `json:"period_index"`
	PeriodLabel string           `json:"period_label"`
	Rules       []DerivationRule `json:"rules"`
}

// LinkedModel 链接后的财务模型
//
// 历史报表从输入深拷贝而来；预测与估值阶段在其上追加输出。
// 每次构建独立，不与其他构建共享可变状态。
type LinkedModel struct {
	CompanyName        string             `json:"company_name"`
	Ticker             string             `json:"ticker,omitempty"`
	FiscalYear         int                `json:"fiscal_year"`
	AccountingStandard AccountingStandard `json:"accounting_standard"`
	ReportType         ReportType         `json:"report_type"`
	Currency           Currency           `json:"currency"`

	HistoricalIncomeStatements []IncomeStatement   `json:"historical_income_statements"`
	HistoricalBalanceSheets    []BalanceSheet      `json:"historical_balance_sheets"`
	HistoricalCashFlows        []CashFlowStatement `json:"historical_cash_flows"`
	HistoricalRatios           []Ratios            `json:"historical_ratios"`

	IsBalanced       bool               `json:"is_balanced"`
	ValidationErrors []string           `json:"validation_errors"`
	DerivedFields    []PeriodDerivation `json:"derived_fields,omitempty"`
	// HistoryWarnings ValidationErrors 中属于历史链接阶段的条数，之后的条目随预测一起丢弃
	HistoryWarnings int `json:"history_warnings"`

	Assumptions *ForecastAssumptions `json:"assumptions,omitempty"`

	ForecastIncomeStatements []IncomeStatement   `json:"forecast_income_statements,omitempty"`
	ForecastBalanceSheets    []BalanceSheet      `json:"forecast_balance_sheets,omitempty"`
	ForecastCashFlows        []CashFlowStatement `json:"forecast_cash_flows,omitempty"`
	ForecastRatios           []Ratios            `json:"forecast_ratios,omitempty"`

	DCFValuation     *DCFValuation  `json:"dcf_valuation,omitempty"`
	CurrentPrice     *float64       `json:"current_price,omitempty"`
	TargetPrice      *float64       `json:"target_price,omitempty"`
	UpsidePotential  *float64       `json:"upside_potential,omitempty"`
	Recommendation   Recommendation `json:"recommendation,omitempty"`
	InvestmentThesis string         `json:"investment_thesis,omitempty"`
}

// HasForecast 是否已生成预测期
func (m *LinkedModel) HasForecast() bool {
	return len(m.ForecastIncomeStatements) > 0
}

// AddWarning 追加校验警告
func (m *LinkedModel) AddWarning(msg string) {
	m.ValidationErrors = append(m.ValidationErrors, msg)
}

// LatestIncome 最近一期历史利润表
func (m *LinkedModel) LatestIncome() (IncomeStatement, bool) {
	if len(m.HistoricalIncomeStatements) == 0 {
		return IncomeStatement{}, false
	}
	return m.HistoricalIncomeStatements[len(m.HistoricalIncomeStatements)-1], true
}

// LatestBalance 最近一期历史资产负债表
func (m *LinkedModel) LatestBalance() (BalanceSheet, bool) {
	if len(m.HistoricalBalanceSheets) == 0 {
		return BalanceSheet{}, false
	}
	return m.HistoricalBalanceSheets[len(m.HistoricalBalanceSheets)-1], true
}

// LatestCashFlow 最近一期历史现金流量表
func (m *LinkedModel) LatestCashFlow() (CashFlowStatement, bool) {
	if len(m.HistoricalCashFlows) == 0 {
		return CashFlowStatement{}, false
	}
	return m.HistoricalCashFlows[len(m.HistoricalCashFlows)-1], true
}

// ClearForecast 丢弃预测与估值输出及其警告，保留历史部分
func (m *LinkedModel) ClearForecast() {
	if n := m.HistoryWarnings; n >= 0 && n < len(m.ValidationErrors) {
		m.ValidationErrors = m.ValidationErrors[:n:n]
	}
	m.Assumptions = nil
	m.ForecastIncomeStatements = nil
	m.ForecastBalanceSheets = nil
	m.ForecastCashFlows = nil
	m.ForecastRatios = nil
	m.DCFValuation = nil
	m.TargetPrice = nil
	m.UpsidePotential = nil
	m.Recommendation = ""
	m.InvestmentThesis = ""
}

// Clone 深拷贝模型，重算时在副本上进行
func (m *LinkedModel) Clone() *LinkedModel {
	if m == nil {
		return nil
	}
	out := *m

	out.HistoricalIncomeStatements = cloneIncome(m.HistoricalIncomeStatements)
	out.HistoricalBalanceSheets = cloneBalance(m.HistoricalBalanceSheets)
	out.HistoricalCashFlows = cloneCashFlow(m.HistoricalCashFlows)
	out.HistoricalRatios = cloneRatios(m.HistoricalRatios)
	out.ForecastIncomeStatements = cloneIncome(m.ForecastIncomeStatements)
	out.ForecastBalanceSheets = cloneBalance(m.ForecastBalanceSheets)
	out.ForecastCashFlows = cloneCashFlow(m.ForecastCashFlows)
	out.ForecastRatios = cloneRatios(m.ForecastRatios)

	if m.ValidationErrors != nil {
		out.ValidationErrors = append([]string(nil), m.ValidationErrors...)
	}
	if m.DerivedFields != nil {
		out.DerivedFields = make([]PeriodDerivation, len(m.DerivedFields))
		for i, d := range m.DerivedFields {
			d.Rules = append([]DerivationRule(nil), d.Rules...)
			out.DerivedFields[i] = d
		}
	}
	if m.Assumptions != nil {
		a := m.Assumptions.Clone()
		out.Assumptions = &a
	}
	if m.DCFValuation != nil {
		v := m.DCFValuation.Clone()
		out.DCFValuation = &v
	}
	out.CurrentPrice = Copy(m.CurrentPrice)
	out.TargetPrice = Copy(m.TargetPrice)
	out.UpsidePotential = Copy(m.UpsidePotential)
	return &out
}

func cloneIncome(in []IncomeStatement) []IncomeStatement {
	if in == nil {
		return nil
	}
	out := make([]IncomeStatement, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneBalance(in []BalanceSheet) []BalanceSheet {
	if in == nil {
		return nil
	}
	out := make([]BalanceSheet, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneCashFlow(in []CashFlowStatement) []CashFlowStatement {
	if in == nil {
		return nil
	}
	out := make([]CashFlowStatement, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneRatios(in []Ratios) []Ratios {
	if in == nil {
		return nil
	}
	out := make([]Ratios, len(in))
	for i, r := range in {
		out[i] = Ratios{
			GrossMargin:     Copy(r.GrossMargin),
			OperatingMargin: Copy(r.OperatingMargin),
			NetMargin:       Copy(r.NetMargin),
			EBITDAMargin:    Copy(r.EBITDAMargin),
			CurrentRatio:    Copy(r.CurrentRatio),
			QuickRatio:      Copy(r.QuickRatio),
			ROE:             Copy(r.ROE),
			ROA:             Copy(r.ROA),
			DebtToEquity:    Copy(r.DebtToEquity),
			AssetTurnover:   Copy(r.AssetTurnover),
		}
	}
	return out
}

// SummaryMetrics 关键指标摘要
type SummaryMetrics struct {
	Company         string         `json:"company"`
	Ticker          string         `json:"ticker,omitempty"`
	FiscalYear      int            `json:"fiscal_year"`
	Revenue         *float64       `json:"revenue,omitempty"`
	NetIncome       *float64       `json:"net_income,omitempty"`
	NetMargin       *float64       `json:"net_margin,omitempty"`
	ROE             *float64       `json:"roe,omitempty"`
	IsBalanced      bool           `json:"is_balanced"`
	EnterpriseValue *float64       `json:"enterprise_value,omitempty"`
	TargetPrice     *float64       `json:"target_price,omitempty"`
	Recommendation  Recommendation `json:"recommendation,omitempty"`
}

// Summary 取最近一期历史数据生成摘要
func (m *LinkedModel) Summary() SummaryMetrics {
	s := SummaryMetrics{
		Company:        m.CompanyName,
		Ticker:         m.Ticker,
		FiscalYear:     m.FiscalYear,
		IsBalanced:     m.IsBalanced,
		TargetPrice:    Copy(m.TargetPrice),
		Recommendation: m.Recommendation,
	}
	if is, ok := m.LatestIncome(); ok {
		s.Revenue = Copy(is.Revenue)
		s.NetIncome = Copy(is.NetIncome)
	}
	if n := len(m.HistoricalRatios); n > 0 {
		s.NetMargin = Copy(m.HistoricalRatios[n-1].NetMargin)
		s.ROE = Copy(m.HistoricalRatios[n-1].ROE)
	}
	if m.DCFValuation != nil && m.DCFValuation.Available {
		s.EnterpriseValue = F(m.DCFValuation.EnterpriseValue)
	}
	return s
}
