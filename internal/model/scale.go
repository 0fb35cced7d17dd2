// 报告单位换算
package model

import (
	"fmt"
	"strings"
)

// UnitScale 原始报表的金额单位
type UnitScale string

const (
	ScaleUnits     UnitScale = "units"
	ScaleThousands UnitScale = "thousands"
	ScaleMillions  UnitScale = "millions"
	ScaleBillions  UnitScale = "billions"
)

// Factor 单位对应的倍数
func (u UnitScale) Factor() (float64, error) {
	switch u {
	case ScaleUnits, "":
		return 1, nil
	case ScaleThousands:
		return 1e3, nil
	case ScaleMillions:
		return 1e6, nil
	case ScaleBillions:
		return 1e9, nil
	default:
		return 0, fmt.Errorf("unknown unit scale %q", string(u))
	}
}

// ParseUnitScale 解析单位，接受 "k"/"m"/"b" 等简写
func ParseUnitScale(s string) (UnitScale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1", "units", "unit":
		return ScaleUnits, nil
	case "k", "thousand", "thousands", "1000":
		return ScaleThousands, nil
	case "m", "mm", "million", "millions", "1000000":
		return ScaleMillions, nil
	case "b", "bn", "billion", "billions", "1000000000":
		return ScaleBillions, nil
	default:
		return "", fmt.Errorf("unknown unit scale %q", s)
	}
}

// Rescale 将报表金额从 from 单位换算到 to 单位，返回新值，不修改输入
//
// 股数与每股收益不参与换算。Rescale(Rescale(s, a, b), b, a) 还原原值（浮点误差内）。
// 必须在 StatementLinker 之前调用。
func Rescale(s FinancialStatements, from, to UnitScale) (FinancialStatements, error) {
	ff, err := from.Factor()
	if err != nil {
		return FinancialStatements{}, err
	}
	tf, err := to.Factor()
	if err != nil {
		return FinancialStatements{}, err
	}

	out := s.Clone()
	if ff == tf {
		return out, nil
	}
	ratio := ff / tf

	for i := range out.IncomeStatements {
		scaleFields(out.IncomeStatements[i].monetaryFields(), ratio)
	}
	for i := range out.BalanceSheets {
		scaleFields(out.BalanceSheets[i].fields(), ratio)
	}
	for i := range out.CashFlowStatements {
		scaleFields(out.CashFlowStatements[i].fields(), ratio)
	}
	return out, nil
}

func scaleFields(fields []**float64, ratio float64) {
	for _, f := range fields {
		if *f != nil {
			v := **f * ratio
			*f = &v
		}
	}
}
