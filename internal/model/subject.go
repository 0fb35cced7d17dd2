// 估值对象变体
package model

// ValuationSubject 下游报告消费的估值对象
//
// 只有两种实现：FullModel 与 QuoteOnlyModel。调用方通过类型分支区分，
// 不应探测字段是否存在。
type ValuationSubject interface {
	SubjectTicker() string
	SubjectTargetPrice() *float64
	SubjectCurrentPrice() *float64

	isValuationSubject()
}

// FullModel 完整的链接、预测与估值模型
type FullModel struct {
	Model *LinkedModel
}

func (f FullModel) SubjectTicker() string { return f.Model.Ticker }

func (f FullModel) SubjectTargetPrice() *float64 { return f.Model.TargetPrice }

func (f FullModel) SubjectCurrentPrice() *float64 { return f.Model.CurrentPrice }

func (FullModel) isValuationSubject() {}

// QuoteOnlyModel 仅有行情数据（无报表）时的估值对象
type QuoteOnlyModel struct {
	Ticker       string   `json:"ticker"`
	CompanyName  string   `json:"company_name,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	TargetPrice  *float64 `json:"target_price,omitempty"`
}

func (q QuoteOnlyModel) SubjectTicker() string { return q.Ticker }

func (q QuoteOnlyModel) SubjectTargetPrice() *float64 { return q.TargetPrice }

func (q QuoteOnlyModel) SubjectCurrentPrice() *float64 { return q.CurrentPrice }

func (QuoteOnlyModel) isValuationSubject() {}

// Upside 根据估值对象计算上涨空间，价格缺失或当前价非正时不可用
func Upside(s ValuationSubject) *float64 {
	target, current := s.SubjectTargetPrice(), s.SubjectCurrentPrice()
	if target == nil || current == nil || *current <= 0 {
		return nil
	}
	t, c := *target, *current
	return Finite(t/c - 1)
}
