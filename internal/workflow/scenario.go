// 情景估值子工作流
package workflow

import (
	"time"

	"github.com/ploxoy666/finanalyzer/internal/activity"
	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/internal/pipeline"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ScenarioValuationInput 单个情景的估值输入
type ScenarioValuationInput struct {
	ModelHash string             `json:"model_hash"`
	History   *model.LinkedModel `json:"history"`
	Request   pipeline.Request   `json:"request"`
}

// ScenarioValuationWorkflow 对一个情景执行预测与估值
func ScenarioValuationWorkflow(ctx workflow.Context, input ScenarioValuationInput) (*activity.ForecastValuationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting scenario valuation",
		"model_hash", input.ModelHash,
		"scenario", string(input.Request.Scenario),
	)

	ctx = workflow.WithActivityOptions(ctx, valuationActivityOptions())

	var result activity.ForecastValuationResult
	err := workflow.ExecuteActivity(ctx, "ForecastValuationActivity",
		activity.ForecastValuationInput{
			ModelHash: input.ModelHash,
			History:   input.History,
			Request:   input.Request,
		}).Get(ctx, &result)
	if err != nil {
		logger.Error("ForecastValuationActivity failed", "scenario", string(input.Request.Scenario), "error", err)
		return nil, err
	}

	logger.Info("Scenario valuation completed",
		"scenario", string(result.Scenario),
		"recommendation", string(result.Summary.Recommendation),
	)
	return &result, nil
}

func valuationActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{apperrors.TypeStructuralError, apperrors.TypeValidationError},
		},
	}
}
