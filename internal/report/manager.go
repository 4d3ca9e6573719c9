package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jniscan/internal/core"
)

// Format 报告格式类型
type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatSARIF Format = "sarif"
	FormatAll   Format = "all"
)

// Writer 报告写入器接口
type Writer interface {
	Write(result *core.ScanResult) error
}

// Manager 报告管理器
type Manager struct {
	format    Format
	outputDir string
	timestamp bool
	filename  string
	rules     map[string]string // 规则 ID -> 说明，SARIF 输出需要
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithFormat 设置报告格式
func WithFormat(format Format) ManagerOption {
	return func(m *Manager) {
		m.format = format
	}
}

// WithOutputDir 设置输出目录
func WithOutputDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.outputDir = dir
	}
}

// WithTimestamp 添加时间戳到文件名
func WithTimestamp() ManagerOption {
	return func(m *Manager) {
		m.timestamp = true
	}
}

// WithFilename 设置自定义文件名
func WithFilename(filename string) ManagerOption {
	return func(m *Manager) {
		m.filename = filename
	}
}

// WithRuleDescriptions 设置规则说明表
func WithRuleDescriptions(rules map[string]string) ManagerOption {
	return func(m *Manager) {
		m.rules = rules
	}
}

// NewManager 创建新的报告管理器
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		format:    FormatText,
		outputDir: ".",
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// CreateWriter 创建报告写入器
func (m *Manager) CreateWriter(format Format, w io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(w), nil
	case FormatText:
		return NewTextWriter(w), nil
	case FormatSARIF:
		return NewSARIFWriter(w, m.rules), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteTo 将报告按单一格式写入给定输出（通常是标准输出）
func (m *Manager) WriteTo(result *core.ScanResult, format Format, w io.Writer) error {
	writer, err := m.CreateWriter(format, w)
	if err != nil {
		return err
	}
	return writer.Write(result)
}

// Generate 按配置格式生成报告文件，返回写出的文件路径
func (m *Manager) Generate(result *core.ScanResult) ([]string, error) {
	var outputFiles []string

	formats := []Format{m.format}
	if m.format == FormatAll {
		formats = []Format{FormatJSON, FormatText, FormatSARIF}
	}

	for _, format := range formats {
		file, err := m.generateSingleFormat(result, format)
		if err != nil {
			return nil, err
		}
		outputFiles = append(outputFiles, file)
	}
	return outputFiles, nil
}

// generateSingleFormat 生成单个格式的报告文件
func (m *Manager) generateSingleFormat(result *core.ScanResult, format Format) (string, error) {
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filePath := filepath.Join(m.outputDir, m.generateFilename(format))
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer, err := m.CreateWriter(format, file)
	if err != nil {
		return "", err
	}
	if err := writer.Write(result); err != nil {
		return "", fmt.Errorf("failed to write %s report: %w", format, err)
	}
	return filePath, nil
}

// generateFilename 生成文件名
func (m *Manager) generateFilename(format Format) string {
	if m.filename != "" {
		return m.filename
	}

	baseName := "jniscan_report"
	if m.timestamp {
		return fmt.Sprintf("%s_%s.%s", baseName, time.Now().Format("20060102_150405"), format)
	}
	return fmt.Sprintf("%s.%s", baseName, format)
}

// ParseFormat 解析格式字符串
func ParseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(formatStr) {
	case "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "sarif":
		return FormatSARIF, nil
	case "all":
		return FormatAll, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", formatStr)
	}
}

// SupportedFormats 获取支持的格式列表
func SupportedFormats() []Format {
	return []Format{FormatJSON, FormatText, FormatSARIF, FormatAll}
}
