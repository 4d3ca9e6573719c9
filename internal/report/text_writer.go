package report

import (
	"fmt"
	"io"
	"time"

	"jniscan/internal/core"
)

// TextWriter 按「路径:行号: 级别: 消息」的逐行格式输出
type TextWriter struct {
	w io.Writer
}

// NewTextWriter 创建文本写入器
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

// Write 输出文本报告
func (t *TextWriter) Write(result *core.ScanResult) error {
	for _, f := range result.Findings {
		if _, err := fmt.Fprintf(t.w, "%s:%d: %s: %s\n", f.File, f.Line, f.Severity, f.Message); err != nil {
			return err
		}
	}

	for _, d := range result.Diagnostics {
		if _, err := fmt.Fprintf(t.w, "%s:%d: diagnostic(%s): %s\n", d.File, d.Line, d.Kind, d.Message); err != nil {
			return err
		}
	}

	var errors, warnings, advisories int
	for _, f := range result.Findings {
		switch f.Severity {
		case core.SeverityError:
			errors++
		case core.SeverityWarning:
			warnings++
		case core.SeverityAdvisory:
			advisories++
		}
	}

	_, err := fmt.Fprintf(t.w, "\n%d file(s) scanned in %s: %d error(s), %d warning(s), %d advisory(s)\n",
		result.FilesScanned, result.Duration.Round(time.Millisecond), errors, warnings, advisories)
	return err
}
