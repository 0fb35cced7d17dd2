// 历史报表链接器
// 补全缺失科目、计算比率、校验会计恒等式，输出 LinkedModel
package linker

import (
	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Linker StatementLinker
//
// 无内部可变状态，可在多个构建间并发复用。
type Linker struct {
	cfg     config.LinkerConfig
	logger  *zap.Logger
	printer *message.Printer
}

// New 创建链接器
func New(cfg config.LinkerConfig, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "linker")),
		printer: message.NewPrinter(language.English),
	}
}

// Build 由原始报表构建链接模型
//
// 输入不会被修改。只有结构性问题（某类报表为空、数值非有限）返回 *errors.ModelBuildError，
// 其余数据问题降级为 ValidationErrors 中的警告。
func (l *Linker) Build(statements model.FinancialStatements) (*model.LinkedModel, error) {
	if err := checkStructure(statements); err != nil {
		return nil, err
	}

	src := statements.Clone()
	src.SortByPeriod()

	m := &model.LinkedModel{
		CompanyName:        src.CompanyName,
		Ticker:             src.Ticker,
		FiscalYear:         src.FiscalYear,
		AccountingStandard: src.AccountingStandard,
		ReportType:         src.ReportType,
		Currency:           src.Currency,
		ValidationErrors:   []string{},
	}

	aligned := l.align(src, m)
	m.HistoricalIncomeStatements = aligned.income
	m.HistoricalBalanceSheets = aligned.balance
	m.HistoricalCashFlows = aligned.cashFlow

	log := l.logger.With(zap.String("company", m.CompanyName))

	balanced := true
	for i := range m.HistoricalIncomeStatements {
		is := &m.HistoricalIncomeStatements[i]
		bs := &m.HistoricalBalanceSheets[i]
		cf := &m.HistoricalCashFlows[i]
		label := periodLabel(is.PeriodEnd, i)

		rules := l.deriveIncome(is, m, label)
		rules = append(rules, deriveBalance(bs)...)
		rules = append(rules, deriveCashFlow(cf, is)...)
		if len(rules) > 0 {
			m.DerivedFields = append(m.DerivedFields, model.PeriodDerivation{
				PeriodIndex: i,
				PeriodLabel: label,
				Rules:       rules,
			})
			for _, r := range rules {
				metrics.DerivedFields.WithLabelValues(string(r)).Inc()
			}
			log.Debug("Derived missing fields",
				zap.String("period", label),
				zap.Int("rules", len(rules)),
			)
		}

		if !l.checkBalance(*bs, label, m) {
			balanced = false
		}
		l.checkLinkage(*is, *cf, *bs, label, m)

		m.HistoricalRatios = append(m.HistoricalRatios, ComputeRatios(*is, *bs))
	}
	m.IsBalanced = balanced
	m.HistoryWarnings = len(m.ValidationErrors)

	log.Info("Linked historical statements",
		zap.Int("periods", len(m.HistoricalIncomeStatements)),
		zap.Bool("balanced", m.IsBalanced),
		zap.Int("warnings", len(m.ValidationErrors)),
	)

	return m, nil
}

// warn 记录校验警告：写入模型、日志与指标
func (l *Linker) warn(m *model.LinkedModel, kind, msg string, fields ...zap.Field) {
	m.AddWarning(msg)
	metrics.ValidationWarnings.WithLabelValues(kind).Inc()
	l.logger.Warn(msg, append(fields, zap.String("kind", kind))...)
}

func checkStructure(s model.FinancialStatements) error {
	switch {
	case len(s.IncomeStatements) == 0:
		return apperrors.NewModelBuildError("income_statements", "no periods supplied")
	case len(s.BalanceSheets) == 0:
		return apperrors.NewModelBuildError("balance_sheets", "no periods supplied")
	case len(s.CashFlowStatements) == 0:
		return apperrors.NewModelBuildError("cash_flow_statements", "no periods supplied")
	}
	if name := s.NonFinite(); name != "" {
		return apperrors.NewModelBuildError(name, "non-finite numeric value")
	}
	return nil
}
