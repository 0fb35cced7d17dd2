// Saga 补偿
// 工作流失败时按 LIFO 顺序撤销已完成步骤的副作用（缓存、事件）
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// CompensationStep 补偿步骤
type CompensationStep struct {
	Name string
	Fn   func(ctx workflow.Context) error
}

// SagaCompensation Saga 补偿管理器
type SagaCompensation struct {
	steps []CompensationStep
}

// NewSagaCompensation 创建补偿管理器
func NewSagaCompensation() *SagaCompensation {
	return &SagaCompensation{}
}

// AddCompensation 登记补偿步骤，后登记的先执行
func (s *SagaCompensation) AddCompensation(name string, fn func(ctx workflow.Context) error) {
	s.steps = append(s.steps, CompensationStep{Name: name, Fn: fn})
}

// Execute 执行全部补偿
//
// 使用脱离取消的上下文，工作流被取消时补偿仍会执行。单步失败只通知人工介入，不中断其余步骤。
// 返回失败的步骤数。
func (s *SagaCompensation) Execute(ctx workflow.Context) int {
	logger := workflow.GetLogger(ctx)
	ctx, _ = workflow.NewDisconnectedContext(ctx)
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})

	failed := 0
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		logger.Info("Executing compensation", "step", step.Name)

		if err := step.Fn(ctx); err != nil {
			failed++
			logger.Error("Compensation failed", "step", step.Name, "error", err)
			_ = workflow.ExecuteActivity(ctx, "NotifyCompensationFailure", step.Name, err.Error()).Get(ctx, nil)
			continue
		}
		logger.Info("Compensation completed", "step", step.Name)
	}
	s.steps = nil
	return failed
}

// Len 已登记的补偿步骤数
func (s *SagaCompensation) Len() int {
	return len(s.steps)
}
