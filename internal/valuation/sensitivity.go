package valuation

import "github.com/ploxoy666/finanalyzer/internal/model"

// Sensitivity 对已计算的 FCF 重新折现，得到 WACC × 永续增长率矩阵
//
// wacc <= g 的单元不可用。不修改 v。
func Sensitivity(v *model.DCFValuation, waccs, growths []float64) model.SensitivityGrid {
	grid := model.SensitivityGrid{
		WACCs:   append([]float64(nil), waccs...),
		Growths: append([]float64(nil), growths...),
		Cells:   make([][]model.SensitivityCell, len(waccs)),
	}

	var fcfs []float64
	if v != nil {
		fcfs = make([]float64, len(v.Rows))
		for i, r := range v.Rows {
			fcfs[i] = r.FreeCashFlow
		}
	}

	for i, w := range waccs {
		grid.Cells[i] = make([]model.SensitivityCell, len(growths))
		for j, g := range growths {
			cell := model.SensitivityCell{WACC: w, TerminalGrowth: g}
			if d, err := DiscountCashFlows(fcfs, w, g); err == nil {
				ev := d.SumPV + d.PVTerminalValue
				cell.EnterpriseValue = model.Finite(ev)
				if v.SharesOutstanding != nil && *v.SharesOutstanding > 0 {
					cell.ImpliedPricePerShare = model.Finite((ev - v.NetDebt) / *v.SharesOutstanding)
				}
			}
			grid.Cells[i][j] = cell
		}
	}
	return grid
}

// DefaultSensitivityAxes 以当前 WACC 与增长率为中心、步长 1% 的 5×5 网格
func DefaultSensitivityAxes(wacc, g float64) (waccs, growths []float64) {
	for k := -2; k <= 2; k++ {
		waccs = append(waccs, wacc+float64(k)*0.01)
		growths = append(growths, g+float64(k)*0.005)
	}
	return waccs, growths
}
