package linker

import (
	"fmt"
	"time"

	"github.com/ploxoy666/finanalyzer/internal/model"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type alignedStatements struct {
	income   []model.IncomeStatement
	balance  []model.BalanceSheet
	cashFlow []model.CashFlowStatement
}

// align 以利润表序列为主轴对齐三张表
//
// 日期齐全时按 period_end 匹配，否则按下标匹配。主轴上缺失的期补空表，
// 多余的期丢弃，两者都记录警告。
func (l *Linker) align(src model.FinancialStatements, m *model.LinkedModel) alignedStatements {
	src.IncomeStatements = l.dedupeIncome(src.IncomeStatements, m)
	spine := make([]time.Time, len(src.IncomeStatements))
	for i, is := range src.IncomeStatements {
		spine[i] = is.PeriodEnd
	}

	bsDates := make([]time.Time, len(src.BalanceSheets))
	for i, bs := range src.BalanceSheets {
		bsDates[i] = bs.PeriodEnd
	}
	cfDates := make([]time.Time, len(src.CashFlowStatements))
	for i, cf := range src.CashFlowStatements {
		cfDates[i] = cf.PeriodEnd
	}

	bsIdx := l.matchPeriods(spine, bsDates, "balance sheet", m)
	cfIdx := l.matchPeriods(spine, cfDates, "cash flow statement", m)

	out := alignedStatements{
		income:   src.IncomeStatements,
		balance:  make([]model.BalanceSheet, len(spine)),
		cashFlow: make([]model.CashFlowStatement, len(spine)),
	}
	for i := range spine {
		if j := bsIdx[i]; j >= 0 {
			out.balance[i] = src.BalanceSheets[j]
		} else {
			out.balance[i] = model.BalanceSheet{PeriodEnd: spine[i]}
		}
		if j := cfIdx[i]; j >= 0 {
			out.cashFlow[i] = src.CashFlowStatements[j]
		} else {
			out.cashFlow[i] = model.CashFlowStatement{
				PeriodStart: src.IncomeStatements[i].PeriodStart,
				PeriodEnd:   spine[i],
			}
		}
	}
	return out
}

// dedupeIncome 同一 period_end 的利润表只保留第一份
func (l *Linker) dedupeIncome(in []model.IncomeStatement, m *model.LinkedModel) []model.IncomeStatement {
	seen := make(map[string]bool, len(in))
	out := make([]model.IncomeStatement, 0, len(in))
	for _, is := range in {
		if !is.PeriodEnd.IsZero() {
			key := is.PeriodEnd.Format(dateLayout)
			if seen[key] {
				l.warn(m, "alignment", fmt.Sprintf("duplicate income statement for period %s ignored", key),
					zap.String("period", key))
				continue
			}
			seen[key] = true
		}
		out = append(out, is)
	}
	return out
}

// matchPeriods 返回主轴每一期在 other 中的下标，未匹配为 -1
func (l *Linker) matchPeriods(spine, other []time.Time, name string, m *model.LinkedModel) []int {
	idx := make([]int, len(spine))
	used := make([]bool, len(other))

	if allDated(spine) && allDated(other) {
		byDate := make(map[string]int, len(other))
		for j, d := range other {
			key := d.Format(dateLayout)
			if _, dup := byDate[key]; dup {
				l.warn(m, "alignment", fmt.Sprintf("duplicate %s for period %s ignored", name, key),
					zap.String("period", key))
				continue
			}
			byDate[key] = j
		}
		for i, d := range spine {
			j, ok := byDate[d.Format(dateLayout)]
			if !ok {
				idx[i] = -1
				continue
			}
			idx[i] = j
			used[j] = true
		}
	} else {
		for i := range spine {
			if i < len(other) {
				idx[i] = i
				used[i] = true
			} else {
				idx[i] = -1
			}
		}
	}

	for i, j := range idx {
		if j < 0 {
			label := periodLabel(spine[i], i)
			l.warn(m, "alignment", fmt.Sprintf("no %s for period %s; fields treated as missing", name, label),
				zap.String("period", label))
		}
	}
	for j, ok := range used {
		if !ok && !isDuplicate(other, j) {
			label := periodLabel(other[j], j)
			l.warn(m, "alignment", fmt.Sprintf("%s for period %s has no matching income statement and was dropped", name, label),
				zap.String("period", label))
		}
	}
	return idx
}

func allDated(ds []time.Time) bool {
	for _, d := range ds {
		if d.IsZero() {
			return false
		}
	}
	return true
}

// isDuplicate 当前下标之前存在同日期的记录
func isDuplicate(ds []time.Time, j int) bool {
	if ds[j].IsZero() {
		return false
	}
	key := ds[j].Format(dateLayout)
	for k := 0; k < j; k++ {
		if ds[k].Format(dateLayout) == key {
			return true
		}
	}
	return false
}

func periodLabel(end time.Time, i int) string {
	if end.IsZero() {
		return fmt.Sprintf("#%d", i+1)
	}
	return end.Format(dateLayout)
}
