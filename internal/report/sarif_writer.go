package report

import (
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"jniscan/internal/core"
)

// SARIFWriter 输出 SARIF 2.1.0 报告，供 CI 平台与 IDE 消费
type SARIFWriter struct {
	w     io.Writer
	rules map[string]string
}

// NewSARIFWriter 创建 SARIF 写入器
func NewSARIFWriter(w io.Writer, rules map[string]string) *SARIFWriter {
	return &SARIFWriter{w: w, rules: rules}
}

// Write 输出 SARIF 报告
func (s *SARIFWriter) Write(result *core.ScanResult) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI("jniscan", "https://github.com/jniscan/jniscan")

	// 同一规则 ID 只注册一次
	registered := make(map[string]bool)
	for _, f := range result.Findings {
		if !registered[f.RuleID] {
			registered[f.RuleID] = true
			desc := s.rules[f.RuleID]
			if desc == "" {
				desc = f.RuleID
			}
			run.AddRule(f.RuleID).
				WithDescription(desc).
				WithDefaultConfiguration(&sarif.ReportingConfiguration{
					Level: toSarifLevel(f.Severity),
				})
		}

		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.File)).
				WithRegion(sarif.NewRegion().WithStartLine(f.Line).WithStartColumn(f.Column)),
		)

		run.AddResult(sarif.NewRuleResult(f.RuleID).
			WithMessage(sarif.NewTextMessage(f.Message)).
			WithLevel(toSarifLevel(f.Severity)).
			WithLocations([]*sarif.Location{location}))
	}
	report.AddRun(run)

	return report.PrettyWrite(s.w)
}

// toSarifLevel 把发现级别映射到 SARIF level
func toSarifLevel(severity core.Severity) string {
	switch severity {
	case core.SeverityError:
		return "error"
	case core.SeverityWarning:
		return "warning"
	case core.SeverityAdvisory:
		return "note"
	default:
		return "none"
	}
}
