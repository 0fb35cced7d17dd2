// 三张报表数据模型
// 所有金额字段均为可选：nil 表示原始数据缺失
package model

import (
	"math"
	"sort"
	"time"
)

// AccountingStandard 会计准则
type AccountingStandard string

const (
	StandardGAAP    AccountingStandard = "US GAAP"
	StandardIFRS    AccountingStandard = "IFRS"
	StandardUnknown AccountingStandard = "Unknown"
)

// ReportType 报告类型
type ReportType string

const (
	ReportForm10K      ReportType = "10-K"
	ReportForm10Q      ReportType = "10-Q"
	ReportIFRSAnnual   ReportType = "IFRS Annual Report"
	ReportAnnualReport ReportType = "Annual Report"
)

// Currency 货币代码
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyRUB Currency = "RUB"
	CurrencyKZT Currency = "KZT"
)

// IncomeStatement 利润表
type IncomeStatement struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	Revenue                  *float64 `json:"revenue,omitempty"`
	CostOfRevenue            *float64 `json:"cost_of_revenue,omitempty"`
	GrossProfit              *float64 `json:"gross_profit,omitempty"`
	OperatingExpenses        *float64 `json:"operating_expenses,omitempty"`
	OperatingIncome          *float64 `json:"operating_income,omitempty"`
	DepreciationAmortization *float64 `json:"depreciation_amortization,omitempty"`
	EBITDA                   *float64 `json:"ebitda,omitempty"`
	EBIT                     *float64 `json:"ebit,omitempty"`
	InterestExpense          *float64 `json:"interest_expense,omitempty"`
	IncomeBeforeTax          *float64 `json:"income_before_tax,omitempty"`
	IncomeTaxExpense         *float64 `json:"income_tax_expense,omitempty"`
	NetIncome                *float64 `json:"net_income,omitempty"`
	SharesOutstandingBasic   *float64 `json:"shares_outstanding_basic,omitempty"`
	SharesOutstandingDiluted *float64 `json:"shares_outstanding_diluted,omitempty"`
	DilutedEPS               *float64 `json:"diluted_eps,omitempty"`

	IsProjected bool `json:"is_projected"`
}

// BalanceSheet 资产负债表
type BalanceSheet struct {
	PeriodEnd time.Time `json:"period_end"`

	CashAndEquivalents        *float64 `json:"cash_and_equivalents,omitempty"`
	AccountsReceivable        *float64 `json:"accounts_receivable,omitempty"`
	Inventory                 *float64 `json:"inventory,omitempty"`
	TotalCurrentAssets        *float64 `json:"total_current_assets,omitempty"`
	PropertyPlantEquipmentNet *float64 `json:"property_plant_equipment_net,omitempty"`
	IntangibleAssets          *float64 `json:"intangible_assets,omitempty"`
	TotalAssets               *float64 `json:"total_assets,omitempty"`
	AccountsPayable           *float64 `json:"accounts_payable,omitempty"`
	ShortTermDebt             *float64 `json:"short_term_debt,omitempty"`
	TotalCurrentLiabilities   *float64 `json:"total_current_liabilities,omitempty"`
	LongTermDebt              *float64 `json:"long_term_debt,omitempty"`
	TotalLiabilities          *float64 `json:"total_liabilities,omitempty"`
	RetainedEarnings          *float64 `json:"retained_earnings,omitempty"`
	TotalShareholdersEquity   *float64 `json:"total_shareholders_equity,omitempty"`

	IsProjected bool `json:"is_projected"`
}

// TotalDebt 短期 + 长期借款
func (b BalanceSheet) TotalDebt() float64 {
	return Val(b.ShortTermDebt) + Val(b.LongTermDebt)
}

// NetWorkingCapital 经营性营运资本 = 应收 + 存货 - 应付
func (b BalanceSheet) NetWorkingCapital() float64 {
	return Val(b.AccountsReceivable) + Val(b.Inventory) - Val(b.AccountsPayable)
}

// CashFlowStatement 现金流量表
type CashFlowStatement struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	NetIncome                *float64 `json:"net_income,omitempty"`
	DepreciationAmortization *float64 `json:"depreciation_amortization,omitempty"`
	ChangesInWorkingCapital  *float64 `json:"changes_in_working_capital,omitempty"`
	CashFromOperations       *float64 `json:"cash_from_operations,omitempty"`
	CapitalExpenditures      *float64 `json:"capital_expenditures,omitempty"` // 负数表示流出
	CashFromInvesting        *float64 `json:"cash_from_investing,omitempty"`
	DividendsPaid            *float64 `json:"dividends_paid,omitempty"`
	CashFromFinancing        *float64 `json:"cash_from_financing,omitempty"`
	NetChangeInCash          *float64 `json:"net_change_in_cash,omitempty"`
	CashBeginningOfPeriod    *float64 `json:"cash_beginning_of_period,omitempty"`
	CashEndOfPeriod          *float64 `json:"cash_end_of_period,omitempty"`

	IsProjected bool `json:"is_projected"`
}

// FinancialStatements 上游抽取得到的原始报表（只读输入）
type FinancialStatements struct {
	CompanyName        string             `json:"company_name"`
	Ticker             string             `json:"ticker,omitempty"`
	FiscalYear         int                `json:"fiscal_year"`
	AccountingStandard AccountingStandard `json:"accounting_standard"`
	ReportType         ReportType         `json:"report_type"`
	Currency           Currency           `json:"currency"`

	IncomeStatements   []IncomeStatement   `json:"income_statements"`
	BalanceSheets      []BalanceSheet      `json:"balance_sheets"`
	CashFlowStatements []CashFlowStatement `json:"cash_flow_statements"`
}

// Clone 深拷贝，保证链接后的模型不与输入共享指针
func (s FinancialStatements) Clone() FinancialStatements {
	out := s
	out.IncomeStatements = make([]IncomeStatement, len(s.IncomeStatements))
	for i, is := range s.IncomeStatements {
		out.IncomeStatements[i] = is.Clone()
	}
	out.BalanceSheets = make([]BalanceSheet, len(s.BalanceSheets))
	for i, bs := range s.BalanceSheets {
		out.BalanceSheets[i] = bs.Clone()
	}
	out.CashFlowStatements = make([]CashFlowStatement, len(s.CashFlowStatements))
	for i, cf := range s.CashFlowStatements {
		out.CashFlowStatements[i] = cf.Clone()
	}
	return out
}

// Clone 深拷贝利润表
func (s IncomeStatement) Clone() IncomeStatement {
	out := s
	for _, f := range out.fields() {
		*f = Copy(*f)
	}
	return out
}

// Clone 深拷贝资产负债表
func (b BalanceSheet) Clone() BalanceSheet {
	out := b
	for _, f := range out.fields() {
		*f = Copy(*f)
	}
	return out
}

// Clone 深拷贝现金流量表
func (c CashFlowStatement) Clone() CashFlowStatement {
	out := c
	for _, f := range out.fields() {
		*f = Copy(*f)
	}
	return out
}

// fields 返回全部数值字段的地址
func (s *IncomeStatement) fields() []**float64 {
	return append(s.monetaryFields(),
		&s.SharesOutstandingBasic, &s.SharesOutstandingDiluted, &s.DilutedEPS)
}

// monetaryFields 金额字段，不含股数与每股数据
func (s *IncomeStatement) monetaryFields() []**float64 {
	return []**float64{
		&s.Revenue, &s.CostOfRevenue, &s.GrossProfit, &s.OperatingExpenses,
		&s.OperatingIncome, &s.DepreciationAmortization, &s.EBITDA, &s.EBIT,
		&s.InterestExpense, &s.IncomeBeforeTax, &s.IncomeTaxExpense, &s.NetIncome,
	}
}

func (b *BalanceSheet) fields() []**float64 {
	return []**float64{
		&b.CashAndEquivalents, &b.AccountsReceivable, &b.Inventory, &b.TotalCurrentAssets,
		&b.PropertyPlantEquipmentNet, &b.IntangibleAssets, &b.TotalAssets, &b.AccountsPayable,
		&b.ShortTermDebt, &b.TotalCurrentLiabilities, &b.LongTermDebt, &b.TotalLiabilities,
		&b.RetainedEarnings, &b.TotalShareholdersEquity,
	}
}

func (c *CashFlowStatement) fields() []**float64 {
	return []**float64{
		&c.NetIncome, &c.DepreciationAmortization, &c.ChangesInWorkingCapital,
		&c.CashFromOperations, &c.CapitalExpenditures, &c.CashFromInvesting,
		&c.DividendsPaid, &c.CashFromFinancing, &c.NetChangeInCash,
		&c.CashBeginningOfPeriod, &c.CashEndOfPeriod,
	}
}

// NonFinite 返回第一个 NaN/Inf 字段所在的报表名，全部有限时返回空串
func (s FinancialStatements) NonFinite() string {
	for i := range s.IncomeStatements {
		if hasNonFinite(s.IncomeStatements[i].fields()) {
			return "income_statements"
		}
	}
	for i := range s.BalanceSheets {
		if hasNonFinite(s.BalanceSheets[i].fields()) {
			return "balance_sheets"
		}
	}
	for i := range s.CashFlowStatements {
		if hasNonFinite(s.CashFlowStatements[i].fields()) {
			return "cash_flow_statements"
		}
	}
	return ""
}

func hasNonFinite(fields []**float64) bool {
	for _, f := range fields {
		if *f != nil && (math.IsNaN(**f) || math.IsInf(**f, 0)) {
			return true
		}
	}
	return false
}

// SortByPeriod 按 period_end 升序排序（稳定排序，保持同日期的原有顺序）
func (s *FinancialStatements) SortByPeriod() {
	sort.SliceStable(s.IncomeStatements, func(i, j int) bool {
		return s.IncomeStatements[i].PeriodEnd.Before(s.IncomeStatements[j].PeriodEnd)
	})
	sort.SliceStable(s.BalanceSheets, func(i, j int) bool {
		return s.BalanceSheets[i].PeriodEnd.Before(s.BalanceSheets[j].PeriodEnd)
	})
	sort.SliceStable(s.CashFlowStatements, func(i, j int) bool {
		return s.CashFlowStatements[i].PeriodEnd.Before(s.CashFlowStatements[j].PeriodEnd)
	})
}

// F 返回 v 的指针
func F(v float64) *float64 {
	return &v
}

// Val 缺失值按 0 处理
func Val(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Known 存在且非零
func Known(p *float64) bool {
	return p != nil && *p != 0
}

// Copy 复制指针指向的值
func Copy(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Finite 仅当 v 为有限数时返回其指针，否则返回 nil（不可用）
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
