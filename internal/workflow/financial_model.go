// 财务模型主工作流
// 链接历史报表 → 主情景预测与估值 → 其余情景子工作流 → 投资论点
package workflow

import (
	"fmt"
	"time"

	"github.com/ploxoy666/finanalyzer/internal/activity"
	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/internal/pipeline"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// 步骤名
const (
	StepBuildModel = "BuildModel"
	StepValuation  = "ForecastValuation"
	StepScenarios  = "Scenarios"
	StepThesis     = "InvestmentThesis"
)

// 进度状态
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// WorkflowInput 工作流输入
type WorkflowInput struct {
	Statements model.FinancialStatements `json:"statements"`
	Request    pipeline.Request          `json:"request"`
	// ExtraScenarios 主请求之外需要并行估值的情景
	ExtraScenarios []model.Scenario `json:"extra_scenarios,omitempty"`
}

// WorkflowOutput 工作流输出
type WorkflowOutput struct {
	ModelHash    string                                               `json:"model_hash"`
	CacheHit     bool                                                 `json:"cache_hit"`
	Primary      *activity.ForecastValuationResult                    `json:"primary"`
	Scenarios    map[model.Scenario]*activity.ForecastValuationResult `json:"scenarios,omitempty"`
	Thesis       string                                               `json:"thesis"`
	ThesisSource activity.ThesisSource                                `json:"thesis_source"`
	TraceID      string                                               `json:"trace_id"`
	CompletedAt  time.Time                                            `json:"completed_at"`
}

// ProgressInfo 进度信息 (用于 Query)
type ProgressInfo struct {
	CurrentStep      string                    `json:"current_step"`
	CompletedSteps   []string                  `json:"completed_steps"`
	TotalSteps       int                       `json:"total_steps"`
	Progress         float64                   `json:"progress"`
	ScenarioProgress map[model.Scenario]string `json:"scenario_progress"`
	Paused           bool                      `json:"paused"`
}

// InterventionSignal 人工干预信号
type InterventionSignal struct {
	Type string `json:"type"` // pause, resume
}

// 查询与信号名
const (
	ProgressQuery          = "progress"
	InterventionSignalName = "human-intervention"
)

// FinancialModelWorkflow 财务模型主工作流
func FinancialModelWorkflow(ctx workflow.Context, input WorkflowInput) (*WorkflowOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting financial model workflow",
		"company", input.Statements.CompanyName,
		"ticker", input.Statements.Ticker,
	)

	saga := NewSagaCompensation()

	var currentStep string
	completedSteps := make([]string, 0, 4)
	scenarioProgress := make(map[model.Scenario]string, len(input.ExtraScenarios))
	for _, sc := range input.ExtraScenarios {
		scenarioProgress[sc] = StatusPending
	}
	isPaused := false

	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (ProgressInfo, error) {
		totalSteps := 3 + len(scenarioProgress)
		done := 0
		for _, s := range completedSteps {
			if s != StepScenarios {
				done++
			}
		}
		for _, st := range scenarioProgress {
			if st == StatusCompleted || st == StatusFailed {
				done++
			}
		}
		return ProgressInfo{
			CurrentStep:      currentStep,
			CompletedSteps:   completedSteps,
			TotalSteps:       totalSteps,
			Progress:         float64(done) / float64(totalSteps) * 100,
			ScenarioProgress: scenarioProgress,
			Paused:           isPaused,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set query handler: %w", err)
	}

	signalChan := workflow.GetSignalChannel(ctx, InterventionSignalName)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			var signal InterventionSignal
			signalChan.Receive(gCtx, &signal)
			switch signal.Type {
			case "pause":
				isPaused = true
				logger.Info("Workflow paused by signal")
			case "resume":
				isPaused = false
				logger.Info("Workflow resumed by signal")
			}
		}
	})
	waitForResume := func() {
		_ = workflow.Await(ctx, func() bool { return !isPaused })
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{apperrors.TypeStructuralError, apperrors.TypeValidationError},
		},
	})

	output := &WorkflowOutput{
		TraceID:   workflow.GetInfo(ctx).WorkflowExecution.RunID,
		Scenarios: make(map[model.Scenario]*activity.ForecastValuationResult, len(input.ExtraScenarios)),
	}

	// ============== Step 1: 链接历史报表 ==============
	currentStep = StepBuildModel

	var built activity.BuildModelResult
	if err := workflow.ExecuteActivity(ctx, "BuildModelActivity",
		activity.BuildModelInput{
			Statements: input.Statements,
			Request:    input.Request,
		}).Get(ctx, &built); err != nil {
		logger.Error("BuildModelActivity failed", "error", err)
		return nil, fmt.Errorf("model build failed: %w", err)
	}
	completedSteps = append(completedSteps, StepBuildModel)
	output.ModelHash = built.ModelHash
	output.CacheHit = built.CacheHit
	saga.AddCompensation("cache", func(ctx workflow.Context) error {
		return workflow.ExecuteActivity(ctx, "CleanupCacheActivity", built.ModelHash).Get(ctx, nil)
	})

	if isPaused {
		waitForResume()
	}

	// ============== Step 2: 主情景预测与估值 ==============
	currentStep = StepValuation

	var primary activity.ForecastValuationResult
	if err := workflow.ExecuteActivity(ctx, "ForecastValuationActivity",
		activity.ForecastValuationInput{
			ModelHash: built.ModelHash,
			History:   built.Model,
			Request:   input.Request,
		}).Get(ctx, &primary); err != nil {
		logger.Error("Primary valuation failed, compensating", "error", err)
		saga.Execute(ctx)
		return nil, fmt.Errorf("valuation failed: %w", err)
	}
	completedSteps = append(completedSteps, StepValuation)
	output.Primary = &primary

	if isPaused {
		waitForResume()
	}

	// ============== Step 3: 其余情景 (Child Workflow) ==============
	if len(input.ExtraScenarios) > 0 {
		currentStep = StepScenarios
		runScenarios(ctx, input, built, scenarioProgress, output)
		completedSteps = append(completedSteps, StepScenarios)
	}

	if isPaused {
		waitForResume()
	}

	// ============== Step 4: 投资论点 ==============
	currentStep = StepThesis

	output.Thesis = primary.Model.InvestmentThesis
	output.ThesisSource = activity.ThesisSourceDeterministic

	var thesis activity.InvestmentThesisResult
	thesisCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	if err := workflow.ExecuteActivity(thesisCtx, "InvestmentThesisActivity",
		activity.InvestmentThesisInput{Model: primary.Model}).Get(ctx, &thesis); err != nil {
		logger.Warn("InvestmentThesisActivity failed, keeping deterministic thesis", "error", err)
	} else {
		output.Thesis = thesis.Thesis
		output.ThesisSource = thesis.Source
	}
	completedSteps = append(completedSteps, StepThesis)
	currentStep = ""

	output.CompletedAt = workflow.Now(ctx)
	logger.Info("Financial model workflow completed",
		"model_hash", output.ModelHash,
		"recommendation", string(primary.Summary.Recommendation),
		"scenarios", len(output.Scenarios),
	)
	return output, nil
}

// runScenarios 并行启动各情景子工作流；单个情景失败只记录，不影响主结果
func runScenarios(ctx workflow.Context, input WorkflowInput, built activity.BuildModelResult,
	progress map[model.Scenario]string, output *WorkflowOutput) {
	logger := workflow.GetLogger(ctx)
	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID

	selector := workflow.NewSelector(ctx)
	started := make(map[model.Scenario]bool, len(input.ExtraScenarios))
	pending := 0
	for _, scenario := range input.ExtraScenarios {
		if started[scenario] {
			continue
		}
		started[scenario] = true
		progress[scenario] = StatusInProgress

		req := input.Request
		req.Scenario = scenario
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("scenario-%s-%s-%s", built.ModelHash[:min(12, len(built.ModelHash))], scenario, runID),
		})
		future := workflow.ExecuteChildWorkflow(childCtx, ScenarioValuationWorkflow, ScenarioValuationInput{
			ModelHash: built.ModelHash,
			History:   built.Model,
			Request:   req,
		})

		s := scenario
		pending++
		selector.AddFuture(future, func(f workflow.Future) {
			var result activity.ForecastValuationResult
			if err := f.Get(ctx, &result); err != nil {
				logger.Error("Scenario valuation failed", "scenario", string(s), "error", err)
				progress[s] = StatusFailed
				return
			}
			output.Scenarios[s] = &result
			progress[s] = StatusCompleted
		})
	}

	for i := 0; i < pending; i++ {
		selector.Select(ctx)
	}
}
