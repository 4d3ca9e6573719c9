package report

import (
	"encoding/json"
	"io"

	"jniscan/internal/core"
)

// JSONWriter 输出机器可读的 JSON 报告
type JSONWriter struct {
	w io.Writer
}

// NewJSONWriter 创建 JSON 写入器
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

// Write 输出 JSON 报告
func (j *JSONWriter) Write(result *core.ScanResult) error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
