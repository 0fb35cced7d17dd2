// 模型流水线
// 链接 → 假设解析 → 预测 → 估值，每次调用显式传入全部上下文
package pipeline

import (
	"context"
	"time"

	"github.com/ploxoy666/finanalyzer/internal/assumption"
	"github.com/ploxoy666/finanalyzer/internal/forecast"
	"github.com/ploxoy666/finanalyzer/internal/linker"
	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/internal/valuation"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/metrics"
	"github.com/ploxoy666/finanalyzer/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// 阶段名
const (
	StageLink    = "link"
	StageResolve = "resolve"
	StageProject = "project"
	StageValue   = "value"
)

// Request 一次预测与估值请求
type Request struct {
	Assumptions model.PartialAssumptions `json:"assumptions"`
	Scenario    model.Scenario           `json:"scenario"`
	// Years 为 0 时使用配置的默认预测年数
	Years int `json:"years"`

	// SourceScale/TargetScale 均非空时先换算报表单位
	SourceScale model.UnitScale `json:"source_scale,omitempty"`
	TargetScale model.UnitScale `json:"target_scale,omitempty"`

	CurrentPrice *float64 `json:"current_price,omitempty"`
}

// Engine 模型流水线
//
// Engine 本身无可变状态，可在多个 goroutine 间共享。
type Engine struct {
	cfg       config.ModelConfig
	linker    *linker.Linker
	resolver  *assumption.Resolver
	projector *forecast.Projector
	valuator  *valuation.Valuator
	logger    *zap.Logger
}

// NewEngine 创建流水线
func NewEngine(cfg config.ModelConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	projector := forecast.New(cfg, logger)
	return &Engine{
		cfg:       cfg,
		linker:    linker.New(cfg.Linker, logger),
		resolver:  assumption.New(cfg.Assumptions, logger),
		projector: projector,
		valuator:  valuation.New(cfg, projector, logger),
		logger:    logger.With(zap.String("component", "pipeline")),
	}
}

// Build 只执行链接阶段
func (e *Engine) Build(ctx context.Context, statements model.FinancialStatements, req Request) (*model.LinkedModel, error) {
	if req.SourceScale != "" && req.TargetScale != "" {
		scaled, err := model.Rescale(statements, req.SourceScale, req.TargetScale)
		if err != nil {
			return nil, err
		}
		statements = scaled
	}

	var m *model.LinkedModel
	err := e.stage(ctx, StageLink, func(ctx context.Context) error {
		var err error
		m, err = e.linker.Build(statements)
		if err == nil {
			tracing.SetAttributes(ctx,
				attribute.String("company", m.CompanyName),
				attribute.Int("periods", len(m.HistoricalIncomeStatements)),
				attribute.Bool("balanced", m.IsBalanced),
			)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	m.CurrentPrice = model.Copy(req.CurrentPrice)
	return m, nil
}

// Run 从原始报表完整执行四个阶段
func (e *Engine) Run(ctx context.Context, statements model.FinancialStatements, req Request) (*model.LinkedModel, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.run")
	defer span.End()

	m, err := e.Build(ctx, statements, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if err := e.forecastAndValue(ctx, m, req); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return m, nil
}

// Recalculate 基于已链接的历史模型重新预测与估值
//
// history 不会被修改；返回的模型是其深拷贝，旧的预测与估值被丢弃。
func (e *Engine) Recalculate(ctx context.Context, history *model.LinkedModel, req Request) (*model.LinkedModel, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.recalculate")
	defer span.End()

	if history == nil || len(history.HistoricalIncomeStatements) == 0 {
		err := apperrors.NewModelBuildError("", "recalculation requires a linked model with historical periods")
		tracing.RecordError(ctx, err)
		return nil, err
	}

	m := history.Clone()
	m.ClearForecast()
	if req.CurrentPrice != nil {
		m.CurrentPrice = model.Copy(req.CurrentPrice)
	}
	if err := e.forecastAndValue(ctx, m, req); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return m, nil
}

// ResolveAssumptions 只执行假设解析，history 可为 nil
func (e *Engine) ResolveAssumptions(ctx context.Context, history *model.LinkedModel, req Request) (assumption.Resolution, error) {
	var res assumption.Resolution
	err := e.stage(ctx, StageResolve, func(ctx context.Context) error {
		var err error
		res, err = e.resolver.Resolve(req.Assumptions, req.Scenario, history)
		return err
	})
	return res, err
}

// Sensitivity 以模型当前估值为中心生成敏感性矩阵
func (e *Engine) Sensitivity(m *model.LinkedModel) (model.SensitivityGrid, bool) {
	if m == nil || m.DCFValuation == nil || !m.DCFValuation.Available {
		return model.SensitivityGrid{}, false
	}
	waccs, growths := valuation.DefaultSensitivityAxes(m.DCFValuation.WACCUsed, m.DCFValuation.TerminalGrowthUsed)
	return valuation.Sensitivity(m.DCFValuation, waccs, growths), true
}

func (e *Engine) forecastAndValue(ctx context.Context, m *model.LinkedModel, req Request) error {
	res, err := e.ResolveAssumptions(ctx, m, req)
	if err != nil {
		return err
	}

	years := req.Years
	if years == 0 {
		years = e.cfg.Forecast.DefaultYears
	}

	err = e.stage(ctx, StageProject, func(ctx context.Context) error {
		tracing.SetAttributes(ctx,
			attribute.Int("years", years),
			attribute.String("scenario", string(res.Assumptions.Scenario)),
		)
		_, err := e.projector.Project(m, res.Assumptions, years)
		return err
	})
	if err != nil {
		return err
	}
	// 预测阶段会清空上一轮的警告，本轮假设警告在其后写入
	for _, w := range res.Warnings {
		m.AddWarning(w)
		tracing.AddEvent(ctx, "assumption_warning", attribute.String("message", w))
	}

	err = e.stage(ctx, StageValue, func(ctx context.Context) error {
		val, err := e.valuator.Value(m, res.Assumptions)
		if err == nil {
			tracing.SetAttributes(ctx,
				attribute.Bool("available", val.Available),
				attribute.Float64("enterprise_value", val.EnterpriseValue),
				attribute.String("recommendation", string(m.Recommendation)),
			)
		}
		return err
	})
	if err != nil {
		return err
	}

	e.logger.Info("Model recalculated",
		zap.String("company", m.CompanyName),
		zap.String("scenario", string(res.Assumptions.Scenario)),
		zap.Int("years", years),
		zap.Int("warnings", len(m.ValidationErrors)),
	)
	return nil
}

// stage 包装单个阶段：span、耗时指标、错误记录
func (e *Engine) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "failure"
		tracing.RecordError(ctx, err)
		classified := apperrors.ClassifyError(err)
		metrics.ErrorsTotal.WithLabelValues(classified.Level.String(), classified.Code).Inc()
		e.logger.Error("Pipeline stage failed",
			zap.String("stage", name),
			zap.String("code", classified.Code),
			zap.Error(err),
		)
	}
	metrics.StageDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
	return err
}
