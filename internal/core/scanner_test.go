package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRules 返回一条简化的「FindClass 之后必须 DeleteLocalRef」规则
func testRules() []Rule {
	return []Rule{{
		ID:       "test-delete-local-ref",
		Kind:     KindRequireOnAllPaths,
		Severity: SeverityWarning,
		Message:  "$VAR is never released",
		Trigger: &Pattern{
			Callee: "FindClass",
		},
		RequireAssignment: true,
		Companions: []*Pattern{{
			Callee: "DeleteLocalRef",
			Args:   []Arg{{Kind: ArgAny}, {Kind: ArgMetaVar, Var: "$VAR"}},
		}},
		RequireAtExit: true,
	}}
}

const leakySource = `
void f(JNIEnv *env) {
    jclass cls = (*env)->FindClass(env, "x");
}
`

const cleanSource = `
void f(JNIEnv *env) {
    jclass cls = (*env)->FindClass(env, "x");
    (*env)->DeleteLocalRef(env, cls);
}
`

// writeTree 在临时目录下写入测试文件树
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func TestScanFindsViolations(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"leaky.c": leakySource,
		"clean.c": cleanSource,
	})

	scanner := NewScanner(testRules(), ScanOptions{Workers: 2})
	result, err := scanner.Scan(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.FilesScanned)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, filepath.Join(dir, "leaky.c"), result.Findings[0].File)
	assert.Equal(t, 1, result.RuleCounts["test-delete-local-ref"])
	assert.NotEmpty(t, result.ID)
}

// 不同 worker 数（不同完成顺序）下结果必须逐条一致
func TestScanDeterministicAcrossWorkerCounts(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"a.c", "b.c", "c.c", "d.c", "sub/e.c", "sub/f.c"} {
		files[name] = leakySource
	}
	dir := writeTree(t, files)

	var baseline []Finding
	for _, workers := range []int{1, 2, 8} {
		scanner := NewScanner(testRules(), ScanOptions{Workers: workers})
		result, err := scanner.Scan(context.Background(), []string{dir})
		require.NoError(t, err)
		require.Len(t, result.Findings, 6)

		if baseline == nil {
			baseline = result.Findings
			continue
		}
		assert.Equal(t, baseline, result.Findings, "workers=%d changed finding order", workers)
	}
}

func TestScanSkipsExcludedDirs(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src.c":          leakySource,
		"vendor/dep.c":   leakySource,
		"build/gen.c":    leakySource,
		"mydir/inner.c":  leakySource,
		"skipme/other.c": leakySource,
	})

	scanner := NewScanner(testRules(), ScanOptions{
		Workers:     1,
		ExcludeDirs: []string{"skipme"},
	})
	result, err := scanner.Scan(context.Background(), []string{dir})
	require.NoError(t, err)

	// vendor/ 和 build/ 按默认排除，skipme/ 按选项排除
	assert.Equal(t, 2, result.FilesScanned)
}

func TestScanSkipsNonSourceFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.c":        leakySource,
		"README.md":  "# readme",
		"notes.txt":  "notes",
		"Makefile":   "all:",
		"header.hpp": cleanSource,
	})

	scanner := NewScanner(testRules(), ScanOptions{Workers: 1})
	result, err := scanner.Scan(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesScanned)
	assert.Equal(t, 3, result.FilesSkipped)
}

func TestScanSingleFilePath(t *testing.T) {
	dir := writeTree(t, map[string]string{"only.c": leakySource})

	scanner := NewScanner(testRules(), ScanOptions{Workers: 1})
	result, err := scanner.Scan(context.Background(), []string{filepath.Join(dir, "only.c")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesScanned)
	assert.Len(t, result.Findings, 1)
}

func TestScanMissingPathFails(t *testing.T) {
	scanner := NewScanner(testRules(), ScanOptions{Workers: 1})
	_, err := scanner.Scan(context.Background(), []string{"/nonexistent/path"})
	assert.Error(t, err)
}

func TestScanCancelledReportsPartial(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 20; i++ {
		files[filepath.Join("d", string(rune('a'+i))+".c")] = leakySource
	}
	dir := writeTree(t, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := NewScanner(testRules(), ScanOptions{Workers: 2})
	result, err := scanner.Scan(ctx, []string{dir})
	require.NoError(t, err)

	// 已取消的扫描给出部分结果，不是错误
	assert.Equal(t, StatusPartial, result.Status)
}

func TestHasErrors(t *testing.T) {
	r := &ScanResult{Findings: []Finding{{Severity: SeverityWarning}}}
	assert.False(t, r.HasErrors())

	r.Findings = append(r.Findings, Finding{Severity: SeverityError})
	assert.True(t, r.HasErrors())
}
