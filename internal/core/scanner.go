package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// DefaultIncludeGlobs 是默认扫描的源文件模式
var DefaultIncludeGlobs = []string{
	"**/*.c",
	"**/*.h",
	"**/*.cc",
	"**/*.cpp",
	"**/*.cxx",
	"**/*.hpp",
	"**/*.hh",
}

// defaultExcludedDirs 返回默认排除的目录名集合
// 项目规模探测与实际扫描使用同一份列表
func defaultExcludedDirs() map[string]bool {
	return map[string]bool{
		// 构建产物
		"build": true, "dist": true, "target": true, "cmake-build": true, ".cmake": true,
		// 依赖管理
		"vendor": true, "node_modules": true, "third_party": true, "thirdparty": true,
		"3rdparty": true, "deps": true, "external": true, "externals": true,
		// 版本控制
		".git": true, ".svn": true, ".hg": true,
		// IDE 和编辑器
		".cache": true, ".idea": true, ".vscode": true,
	}
}

// ScanOptions 控制一次扫描的行为
type ScanOptions struct {
	Workers      int
	EnabledRules []string // 为空时启用全部规则
	IncludeGlobs []string // 为空时用 DefaultIncludeGlobs
	ExcludeDirs  []string // 追加在默认排除目录之上
	Logger       hclog.Logger
}

// ScanStatus 表示扫描的整体状态
type ScanStatus string

const (
	StatusCompleted ScanStatus = "completed"
	StatusPartial   ScanStatus = "partial" // 被取消/超时，已收集的发现仍然有效
)

// ScanResult 是一次扫描的全部产出
type ScanResult struct {
	ID           string         `json:"id"`
	Status       ScanStatus     `json:"status"`
	Findings     []Finding      `json:"findings"`
	Diagnostics  []Diagnostic   `json:"diagnostics,omitempty"`
	FilesScanned int            `json:"files_scanned"`
	FilesSkipped int            `json:"files_skipped"`
	StartedAt    time.Time      `json:"started_at"`
	Duration     time.Duration  `json:"duration"`
	RuleCounts   map[string]int `json:"rule_counts,omitempty"`
}

// HasErrors 判断结果中是否存在 ERROR 级发现（决定 CLI 退出码）
func (r *ScanResult) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Scanner 驱动文件发现、并行分析与结果聚合
// 每次 Scan 调用都是无状态且幂等的：相同输入必然产出相同的有序结果
type Scanner struct {
	engine   *RuleEngine
	workers  int
	includes []string
	excluded map[string]bool
	logger   hclog.Logger
}

// NewScanner 创建扫描器
func NewScanner(rules []Rule, opts ScanOptions) *Scanner {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	includes := opts.IncludeGlobs
	if len(includes) == 0 {
		includes = DefaultIncludeGlobs
	}

	excluded := defaultExcludedDirs()
	for _, dir := range opts.ExcludeDirs {
		excluded[dir] = true
	}

	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Scanner{
		engine:   NewRuleEngine(rules).WithEnabled(opts.EnabledRules),
		workers:  workers,
		includes: includes,
		excluded: excluded,
		logger:   logger,
	}
}

// Scan 分析给定路径（目录递归展开）下的所有源文件
// 取消/超时不丢弃已收集的发现：部分结果是有效输出而非错误
func (s *Scanner) Scan(ctx context.Context, paths []string) (*ScanResult, error) {
	result := &ScanResult{
		ID:        uuid.NewString(),
		Status:    StatusCompleted,
		StartedAt: time.Now(),
	}

	files, skipped, err := s.collectFiles(paths)
	if err != nil {
		return nil, err
	}
	result.FilesSkipped = skipped

	s.logger.Debug("starting scan", "id", result.ID, "files", len(files), "workers", s.workers)

	// 唯一的聚合点；worker 之间不共享其他可变状态
	var mu sync.Mutex

	pool := NewWorkerPool(ctx, s.workers, len(files)+1)
	pool.Start()

	for _, file := range files {
		job := &fileJob{
			scanner: s,
			path:    file,
			collect: func(fs []Finding, ds []Diagnostic) {
				mu.Lock()
				defer mu.Unlock()
				result.Findings = append(result.Findings, fs...)
				result.Diagnostics = append(result.Diagnostics, ds...)
				result.FilesScanned++
			},
			diagnose: func(d Diagnostic) {
				mu.Lock()
				defer mu.Unlock()
				result.Diagnostics = append(result.Diagnostics, d)
			},
		}
		if err := pool.Submit(job); err != nil {
			// 取消发生在文件之间；在途任务正常收尾
			result.Status = StatusPartial
			break
		}
	}
	pool.Wait()

	if ctx.Err() != nil {
		result.Status = StatusPartial
	}

	s.finalize(result)

	s.logger.Debug("scan finished", "id", result.ID, "status", result.Status,
		"findings", len(result.Findings), "diagnostics", len(result.Diagnostics))

	return result, nil
}

// finalize 排序并统计，保证不同 worker 完成顺序下输出逐字节一致
func (s *Scanner) finalize(result *ScanResult) {
	SortFindings(result.Findings)
	sort.Slice(result.Diagnostics, func(i, j int) bool {
		a, b := result.Diagnostics[i], result.Diagnostics[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Message < b.Message
	})

	result.RuleCounts = make(map[string]int)
	for _, f := range result.Findings {
		result.RuleCounts[f.RuleID]++
	}
	result.Duration = time.Since(result.StartedAt)
}

// collectFiles 展开输入路径为待分析的源文件列表
func (s *Scanner) collectFiles(paths []string) ([]string, int, error) {
	var files []string
	skipped := 0
	seen := make(map[string]bool)

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, 0, fmt.Errorf("cannot stat %s: %w", root, err)
		}

		if !info.IsDir() {
			if s.matchesInclude(filepath.Base(root)) {
				add(root)
			} else {
				skipped++
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && s.excluded[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = d.Name()
			}
			if s.matchesInclude(filepath.ToSlash(rel)) {
				add(path)
			} else {
				skipped++
			}
			return nil
		})
		if err != nil {
			return nil, 0, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	// 文件顺序只影响调度，不影响输出顺序
	sort.Strings(files)
	return files, skipped, nil
}

// matchesInclude 用 doublestar 模式判断文件是否在扫描范围内
func (s *Scanner) matchesInclude(relPath string) bool {
	for _, glob := range s.includes {
		if ok, err := doublestar.Match(glob, relPath); err == nil && ok {
			return true
		}
		// 直接传入文件路径时也允许只按文件名匹配
		if ok, err := doublestar.Match(glob, "/"+relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// fileJob 是单个文件的分析任务
type fileJob struct {
	scanner  *Scanner
	path     string
	collect  func([]Finding, []Diagnostic)
	diagnose func(Diagnostic)
}

// ID 返回任务标识
func (j *fileJob) ID() string {
	return j.path
}

// Run 解析并分析单个文件
// 解析失败只产生诊断；单个文件的失败不影响其余文件
func (j *fileJob) Run(ctx context.Context) error {
	unit, err := ParseFile(ctx, j.path)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		j.scanner.logger.Warn("parse failed", "file", j.path, "error", err)
		j.diagnose(Diagnostic{Kind: DiagParseError, File: j.path, Message: err.Error()})
		return err
	}

	actx := NewAnalysisContext(unit)
	findings, diags := j.scanner.engine.Run(actx)
	j.collect(findings, diags)
	return nil
}
