// 估值输出
package model

// Recommendation 投资评级
type Recommendation string

const (
	RecommendationBuy  Recommendation = "BUY"
	RecommendationHold Recommendation = "HOLD"
	RecommendationSell Recommendation = "SELL"
	RecommendationNA   Recommendation = "N/A"
)

// CashFlowRow 单个预测年的现金流与折现
type CashFlowRow struct {
	Year                 int     `json:"year"`
	Revenue              float64 `json:"revenue"`
	EBIT                 float64 `json:"ebit"`
	NOPAT                float64 `json:"nopat"`
	DepreciationAmort    float64 `json:"depreciation_amortization"`
	CapitalExpenditures  float64 `json:"capital_expenditures"`
	ChangeWorkingCapital float64 `json:"change_in_working_capital"`
	FreeCashFlow         float64 `json:"free_cash_flow"`
	DiscountFactor       float64 `json:"discount_factor"`
	PVFreeCashFlow       float64 `json:"pv_free_cash_flow"`
}

// DCFValuation 现金流折现估值结果
//
// Available 为 false 时聚合字段全部置零，UnavailableReason 说明原因。
// 股数缺失时 ImpliedPricePerShare 为 nil 并在 UnavailableReason 中说明，其余字段仍然有效。
type DCFValuation struct {
	Rows []CashFlowRow `json:"rows"`

	SumPVFCF             float64  `json:"sum_pv_fcf"`
	TerminalValue        float64  `json:"terminal_value"`
	PVTerminalValue      float64  `json:"pv_terminal_value"`
	EnterpriseValue      float64  `json:"enterprise_value"`
	NetDebt              float64  `json:"net_debt"`
	EquityValue          float64  `json:"equity_value"`
	SharesOutstanding    *float64 `json:"shares_outstanding,omitempty"`
	ImpliedPricePerShare *float64 `json:"implied_price_per_share,omitempty"`

	WACCUsed           float64 `json:"wacc_used"`
	TerminalGrowthUsed float64 `json:"terminal_growth_used"`

	Available         bool   `json:"available"`
	UnavailableReason string `json:"unavailable_reason,omitempty"`
}

// Clone 深拷贝
func (v DCFValuation) Clone() DCFValuation {
	out := v
	if v.Rows != nil {
		out.Rows = append([]CashFlowRow(nil), v.Rows...)
	}
	out.SharesOutstanding = Copy(v.SharesOutstanding)
	out.ImpliedPricePerShare = Copy(v.ImpliedPricePerShare)
	return out
}

// SensitivityCell 敏感性矩阵单元
type SensitivityCell struct {
	WACC                 float64  `json:"wacc"`
	TerminalGrowth       float64  `json:"terminal_growth"`
	EnterpriseValue      *float64 `json:"enterprise_value,omitempty"`
	ImpliedPricePerShare *float64 `json:"implied_price_per_share,omitempty"`
}

// SensitivityGrid WACC × 永续增长率矩阵，Cells[i][j] 对应 WACCs[i]、Growths[j]
type SensitivityGrid struct {
	WACCs   []float64           `json:"waccs"`
	Growths []float64           `json:"growths"`
	Cells   [][]SensitivityCell `json:"cells"`
}
