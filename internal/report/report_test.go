package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jniscan/internal/core"
)

func sampleResult() *core.ScanResult {
	return &core.ScanResult{
		ID:     "test-run",
		Status: core.StatusCompleted,
		Findings: []core.Finding{
			{
				RuleID:   "jni-missing-delete-local-ref",
				File:     "native/foo.c",
				Line:     42,
				Column:   5,
				Severity: core.SeverityWarning,
				Message:  "local reference cls from FindClass is not released with DeleteLocalRef on every path",
			},
			{
				RuleID:   "jni-exception-check-in-loop",
				File:     "native/loop.c",
				Line:     10,
				Column:   9,
				Severity: core.SeverityError,
				Message:  "GetObjectArrayElement called inside a loop with no exception check anywhere in the enclosing function",
			},
		},
		FilesScanned: 2,
		Duration:     125 * time.Millisecond,
	}
}

func TestTextWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextWriter(&buf).Write(sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "native/foo.c:42: WARNING: local reference cls from FindClass")
	assert.Contains(t, out, "native/loop.c:10: ERROR: GetObjectArrayElement")
	assert.Contains(t, out, "2 file(s) scanned")
	assert.Contains(t, out, "1 error(s), 1 warning(s), 0 advisory(s)")
}

func TestJSONWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter(&buf).Write(sampleResult()))

	var decoded core.ScanResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "test-run", decoded.ID)
	require.Len(t, decoded.Findings, 2)
	assert.Equal(t, core.SeverityWarning, decoded.Findings[0].Severity)
}

func TestSARIFWriterStructure(t *testing.T) {
	var buf bytes.Buffer
	w := NewSARIFWriter(&buf, map[string]string{
		"jni-missing-delete-local-ref": "Stored local references must be released",
	})
	require.NoError(t, w.Write(sampleResult()))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2.1.0", doc["version"])

	runs, ok := doc["runs"].([]interface{})
	require.True(t, ok)
	require.Len(t, runs, 1)

	out := buf.String()
	assert.Contains(t, out, "jni-missing-delete-local-ref")
	assert.Contains(t, out, `"level": "error"`)
	assert.Contains(t, out, `"level": "warning"`)
}

func TestManagerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(
		WithFormat(FormatAll),
		WithOutputDir(dir),
	)

	files, err := m.Generate(sampleResult())
	require.NoError(t, err)
	require.Len(t, files, 3)

	suffixes := map[string]bool{}
	for _, f := range files {
		parts := strings.Split(f, ".")
		suffixes[parts[len(parts)-1]] = true
	}
	assert.True(t, suffixes["json"] && suffixes["text"] && suffixes["sarif"])
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "json", want: FormatJSON},
		{in: "TEXT", want: FormatText},
		{in: "sarif", want: FormatSARIF},
		{in: "all", want: FormatAll},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
