// Activity 实现
// 封装流水线各阶段，并负责缓存、事件流与投资论点生成
package activity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/internal/pipeline"
	"github.com/ploxoy666/finanalyzer/internal/valuation"
	"github.com/ploxoy666/finanalyzer/pkg/cache"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/llm"
	"github.com/ploxoy666/finanalyzer/pkg/logging"
	"github.com/ploxoy666/finanalyzer/pkg/metrics"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// Activities 包含所有 Activity 的依赖
type Activities struct {
	config    *config.Config
	logger    *zap.Logger
	engine    *pipeline.Engine
	llmClient *llm.Client
	cache     *cache.RedisCache
}

// NewActivities 创建 Activities 实例
func NewActivities(cfg *config.Config, logger *zap.Logger) (*Activities, error) {
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	redisCache, err := cache.NewRedisCache(cfg.Storage.Redis)
	if err != nil {
		_ = llmClient.Close()
		return nil, fmt.Errorf("failed to create Redis cache: %w", err)
	}

	return NewActivitiesWithDeps(cfg, logger, redisCache, llmClient), nil
}

// NewActivitiesWithDeps 使用已构建的依赖创建 Activities
func NewActivitiesWithDeps(cfg *config.Config, logger *zap.Logger, c *cache.RedisCache, llmClient *llm.Client) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		config:    cfg,
		logger:    logger,
		engine:    pipeline.NewEngine(cfg.Model, logger),
		llmClient: llmClient,
		cache:     c,
	}
}

// Close 关闭资源
func (a *Activities) Close() error {
	var errs []error
	if a.llmClient != nil {
		errs = append(errs, a.llmClient.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}

// StatementsHash 报表内容哈希，作为链接模型的缓存键
func StatementsHash(statements model.FinancialStatements, req pipeline.Request) (string, error) {
	data, err := json.Marshal(struct {
		Statements  model.FinancialStatements `json:"statements"`
		SourceScale model.UnitScale           `json:"source_scale"`
		TargetScale model.UnitScale           `json:"target_scale"`
	}{statements, req.SourceScale, req.TargetScale})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RequestHash 影响估值结果的请求参数哈希 (显式假设、预测年数、行情价格)
func RequestHash(req pipeline.Request) (string, error) {
	data, err := json.Marshal(struct {
		Assumptions  model.PartialAssumptions `json:"assumptions"`
		Years        int                      `json:"years"`
		CurrentPrice *float64                 `json:"current_price,omitempty"`
	}{req.Assumptions, req.Years, req.CurrentPrice})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// BuildModelActivity 链接历史报表，结果按内容哈希缓存
func (a *Activities) BuildModelActivity(ctx context.Context, input BuildModelInput) (*BuildModelResult, error) {
	logger := logging.ForCompany(a.logger.With(zap.String("activity", "BuildModel")),
		input.Statements.CompanyName, input.Statements.Ticker)

	startTime := time.Now()
	status := "success"
	defer func() {
		metrics.ActivityDuration.WithLabelValues("BuildModel", status).Observe(time.Since(startTime).Seconds())
	}()

	// 含非有限值的输入无法序列化，跳过缓存直接交给链接阶段报错
	hash, hashErr := StatementsHash(input.Statements, input.Request)
	if hashErr == nil {
		var cached model.LinkedModel
		hit, err := a.cache.GetJSON(ctx, cache.ModelKey(hash), &cached)
		if err != nil {
			logger.Warn("Model cache lookup failed", zap.Error(err))
		}
		if hit {
			logger.Info("Cache hit for linked model", zap.String("model_hash", hash))
			if input.Request.CurrentPrice != nil {
				cached.CurrentPrice = model.Copy(input.Request.CurrentPrice)
			}
			return &BuildModelResult{ModelHash: hash, Model: &cached, CacheHit: true}, nil
		}
	}

	activity.RecordHeartbeat(ctx, "Linking historical statements...")

	m, err := a.engine.Build(ctx, input.Statements, input.Request)
	if err != nil {
		status = "failure"
		logger.Error("Model build failed", zap.Error(err))
		return nil, toApplicationError(err)
	}

	if hashErr == nil {
		if err := a.cache.SetJSON(ctx, cache.ModelKey(hash), m, 0); err != nil {
			logger.Warn("Failed to cache linked model", zap.Error(err))
		}
	}

	logger.Info("Linked model built",
		zap.String("model_hash", hash),
		zap.Int("periods", len(m.HistoricalIncomeStatements)),
		zap.Bool("balanced", m.IsBalanced),
		zap.Int("warnings", len(m.ValidationErrors)),
	)
	return &BuildModelResult{ModelHash: hash, Model: m}, nil
}

// ForecastValuationActivity 对已链接模型执行假设解析、预测与估值，并发布估值事件
func (a *Activities) ForecastValuationActivity(ctx context.Context, input ForecastValuationInput) (*ForecastValuationResult, error) {
	logger := a.logger.With(
		zap.String("activity", "ForecastValuation"),
		zap.String("model_hash", input.ModelHash),
		zap.String("scenario", string(input.Request.Scenario)),
	)

	startTime := time.Now()
	status := "success"
	defer func() {
		metrics.ActivityDuration.WithLabelValues("ForecastValuation", status).Observe(time.Since(startTime).Seconds())
	}()

	activity.RecordHeartbeat(ctx, "Projecting and valuing...")

	m, err := a.engine.Recalculate(ctx, input.History, input.Request)
	if err != nil {
		status = "failure"
		logger.Error("Forecast/valuation failed", zap.Error(err))
		return nil, toApplicationError(err)
	}

	result := &ForecastValuationResult{
		ModelHash:   input.ModelHash,
		Scenario:    m.Assumptions.Scenario,
		Model:       m,
		Summary:     m.Summary(),
		CompletedAt: time.Now(),
	}
	if grid, ok := a.engine.Sensitivity(m); ok {
		result.Sensitivity = &grid
	}

	variant, err := RequestHash(input.Request)
	if err == nil {
		err = a.cache.SetJSON(ctx, cache.ValuationKey(input.ModelHash, string(result.Scenario), variant), result, 0)
	}
	if err != nil {
		logger.Warn("Failed to cache valuation", zap.Error(err))
	}

	event, err := json.Marshal(newValuationEvent(input.ModelHash, m))
	if err == nil {
		result.EventID, err = a.cache.Publish(ctx, map[string]interface{}{"payload": string(event)})
	}
	if err != nil {
		logger.Warn("Failed to publish valuation event", zap.Error(err))
	}

	logger.Info("Valuation completed",
		zap.Bool("available", m.DCFValuation.Available),
		zap.Float64("enterprise_value", m.DCFValuation.EnterpriseValue),
		zap.String("recommendation", string(m.Recommendation)),
	)
	return result, nil
}

// InvestmentThesisActivity 生成投资论点
//
// LLM Bridge 未启用或调用失败时使用确定性论点。
func (a *Activities) InvestmentThesisActivity(ctx context.Context, input InvestmentThesisInput) (*InvestmentThesisResult, error) {
	if input.Model == nil {
		return nil, toApplicationError(apperrors.NewModelBuildError("", "thesis requires a model"))
	}
	logger := a.logger.With(zap.String("activity", "InvestmentThesis"), zap.String("company", input.Model.CompanyName))

	startTime := time.Now()
	defer func() {
		metrics.ActivityDuration.WithLabelValues("InvestmentThesis", "success").Observe(time.Since(startTime).Seconds())
	}()

	fallback := &InvestmentThesisResult{Thesis: valuation.Thesis(input.Model), Source: ThesisSourceDeterministic}
	if !a.llmClient.Enabled() {
		return fallback, nil
	}

	activity.RecordHeartbeat(ctx, "Drafting investment thesis...")

	summary, err := json.Marshal(input.Model.Summary())
	if err != nil {
		return fallback, nil
	}
	resp, err := a.llmClient.InferWithRetry(ctx, &llm.InferRequest{
		TraceID:      activity.GetInfo(ctx).WorkflowExecution.RunID,
		AgentID:      "ThesisWriter",
		SystemPrompt: thesisSystemPrompt,
		UserPrompt:   fmt.Sprintf("Model summary:\n%s\n\nBaseline thesis:\n%s", summary, fallback.Thesis),
	})
	if err != nil || resp.FinalAnswer == "" {
		logger.Warn("LLM thesis unavailable, using deterministic thesis", zap.Error(err))
		return fallback, nil
	}
	return &InvestmentThesisResult{Thesis: resp.FinalAnswer, Source: ThesisSourceLLM}, nil
}

// CleanupCacheActivity 删除某个模型的缓存（补偿步骤）
func (a *Activities) CleanupCacheActivity(ctx context.Context, modelHash string) error {
	n, err := a.cache.DeletePrefix(ctx, cache.ValuationKeyPrefix+modelHash)
	if err != nil {
		return fmt.Errorf("cleanup valuations for %s: %w", modelHash, err)
	}
	if err := a.cache.Delete(ctx, cache.ModelKey(modelHash)); err != nil {
		return fmt.Errorf("cleanup model %s: %w", modelHash, err)
	}
	a.logger.Info("Cache cleaned up", zap.String("model_hash", modelHash), zap.Int("valuations", n))
	return nil
}

// NotifyCompensationFailure 通知补偿失败
func (a *Activities) NotifyCompensationFailure(ctx context.Context, stepName string, errorMsg string) error {
	metrics.ErrorsTotal.WithLabelValues(apperrors.L2Intervention.String(), "COMPENSATION_FAILED").Inc()
	a.logger.Error("Compensation failed, manual intervention required",
		zap.String("step", stepName),
		zap.String("error", errorMsg),
	)
	return nil
}

// toApplicationError 结构性错误与非法假设不可重试，其他错误交由重试策略
func toApplicationError(err error) error {
	classified := apperrors.ClassifyError(err)
	metrics.ErrorsTotal.WithLabelValues(classified.Level.String(), classified.Code).Inc()

	switch {
	case errors.Is(err, apperrors.ErrStructural):
		return temporal.NewNonRetryableApplicationError(err.Error(), apperrors.TypeStructuralError, err)
	case errors.Is(err, apperrors.ErrAssumptionsInvalid):
		return temporal.NewNonRetryableApplicationError(err.Error(), apperrors.TypeValidationError, err)
	case !classified.Retryable:
		return temporal.NewNonRetryableApplicationError(err.Error(), classified.Code, err)
	default:
		return err
	}
}

func newValuationEvent(hash string, m *model.LinkedModel) ValuationEvent {
	ev := ValuationEvent{
		ModelHash:      hash,
		CompanyName:    m.CompanyName,
		Ticker:         m.Ticker,
		Recommendation: m.Recommendation,
		Upside:         model.Copy(m.UpsidePotential),
		Warnings:       len(m.ValidationErrors),
	}
	if m.Assumptions != nil {
		ev.Scenario = m.Assumptions.Scenario
	}
	if v := m.DCFValuation; v != nil {
		ev.Available = v.Available
		ev.EnterpriseValue = v.EnterpriseValue
		ev.ImpliedPrice = model.Copy(v.ImpliedPricePerShare)
	}
	return ev
}

const thesisSystemPrompt = `You are an equity research analyst. Rewrite the baseline thesis as a concise investment thesis.
Use only the figures provided in the model summary and baseline thesis; do not introduce new numbers.
Keep the recommendation unchanged.`
