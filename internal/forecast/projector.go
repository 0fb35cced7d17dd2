// 三表联动预测
package forecast

import (
	"fmt"

	"github.com/ploxoy666/finanalyzer/internal/linker"
	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"go.uber.org/zap"
)

const daysPerYear = 365.0

// Projector ForecastProjector
//
// 纯计算，无随机性，不依赖时钟；相同输入得到逐字段相同的输出。
type Projector struct {
	depreciationShare float64
	maxYears          int
	logger            *zap.Logger
}

// New 创建预测器
func New(cfg config.ModelConfig, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		depreciationShare: cfg.Linker.DepreciationShareOfEBIT,
		maxYears:          cfg.Forecast.MaxYears,
		logger:            logger.With(zap.String("component", "forecast")),
	}
}

// Project 在 m 上生成 years 个预测期并返回 m
//
// 已有的预测与估值输出会被替换。历史部分只读。
func (p *Projector) Project(m *model.LinkedModel, a model.ForecastAssumptions, years int) (*model.LinkedModel, error) {
	if m == nil || len(m.HistoricalIncomeStatements) == 0 {
		return nil, apperrors.NewModelBuildError("income_statements", "forecast requires at least one historical period")
	}
	if years < 1 || (p.maxYears > 0 && years > p.maxYears) {
		return nil, fmt.Errorf("%w: forecast years %d outside [1, %d]", apperrors.ErrAssumptionsInvalid, years, p.maxYears)
	}

	base := p.baseState(m, a)
	m.ClearForecast()
	assumptions := a.Clone()
	m.Assumptions = &assumptions

	prev := base
	for t := 1; t <= years; t++ {
		cur := p.step(prev, a, t)
		is, bs, cf := cur.statements()

		m.ForecastIncomeStatements = append(m.ForecastIncomeStatements, is)
		m.ForecastBalanceSheets = append(m.ForecastBalanceSheets, bs)
		m.ForecastCashFlows = append(m.ForecastCashFlows, cf)
		m.ForecastRatios = append(m.ForecastRatios, linker.ComputeRatios(is, bs))
		prev = cur
	}

	p.logger.Debug("Projected forecast periods",
		zap.String("company", m.CompanyName),
		zap.Int("years", years),
		zap.Float64("base_revenue", base.revenue),
		zap.Float64("final_revenue", prev.revenue),
	)
	return m, nil
}
