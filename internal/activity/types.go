// Activity 类型定义
package activity

import (
	"time"

	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/internal/pipeline"
)

// ============== Build Model ==============

// BuildModelInput 链接历史报表
type BuildModelInput struct {
	Statements model.FinancialStatements `json:"statements"`
	Request    pipeline.Request          `json:"request"`
}

// BuildModelResult 链接结果
type BuildModelResult struct {
	ModelHash string             `json:"model_hash"`
	Model     *model.LinkedModel `json:"model"`
	CacheHit  bool               `json:"cache_hit"`
}

// ============== Forecast & Valuation ==============

// ForecastValuationInput 预测与估值输入
type ForecastValuationInput struct {
	ModelHash string             `json:"model_hash"`
	History   *model.LinkedModel `json:"history"`
	Request   pipeline.Request   `json:"request"`
}

// ForecastValuationResult 预测与估值结果
type ForecastValuationResult struct {
	ModelHash   string                 `json:"model_hash"`
	Scenario    model.Scenario         `json:"scenario"`
	Model       *model.LinkedModel     `json:"model"`
	Summary     model.SummaryMetrics   `json:"summary"`
	Sensitivity *model.SensitivityGrid `json:"sensitivity,omitempty"`
	EventID     string                 `json:"event_id,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}

// ============== Investment Thesis ==============

// ThesisSource 投资论点来源
type ThesisSource string

const (
	ThesisSourceLLM           ThesisSource = "llm"
	ThesisSourceDeterministic ThesisSource = "deterministic"
)

// InvestmentThesisInput 投资论点输入
type InvestmentThesisInput struct {
	Model *model.LinkedModel `json:"model"`
}

// InvestmentThesisResult 投资论点结果
type InvestmentThesisResult struct {
	Thesis string       `json:"thesis"`
	Source ThesisSource `json:"source"`
}

// ============== Valuation Event ==============

// ValuationEvent 写入估值事件流的记录
type ValuationEvent struct {
	ModelHash       string               `json:"model_hash"`
	CompanyName     string               `json:"company_name"`
	Ticker          string               `json:"ticker,omitempty"`
	Scenario        model.Scenario       `json:"scenario"`
	Available       bool                 `json:"available"`
	EnterpriseValue float64              `json:"enterprise_value"`
	ImpliedPrice    *float64             `json:"implied_price,omitempty"`
	Upside          *float64             `json:"upside,omitempty"`
	Recommendation  model.Recommendation `json:"recommendation"`
	Warnings        int                  `json:"warnings"`
}
