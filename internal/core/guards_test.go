package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sitter "github.com/smacker/go-tree-sitter"
)

// firstCondition 返回文件中第一个 if 语句的条件表达式节点
func firstCondition(t *testing.T, ctx *AnalysisContext) *sitter.Node {
	t.Helper()
	var cond *sitter.Node
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || cond != nil {
			return
		}
		if n.Type() == "if_statement" {
			cond = n.ChildByFieldName("condition")
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(ctx.Unit.Root)
	require.NotNil(t, cond, "if condition not found")
	return cond
}

func TestIsNullGuardCondition(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		varName string
		want    bool
	}{
		{
			name:    "equals NULL",
			src:     `void f(jclass cls) { if (cls == NULL) {} }`,
			varName: "cls",
			want:    true,
		},
		{
			name:    "not equals NULL",
			src:     `void f(jclass cls) { if (cls != NULL) {} }`,
			varName: "cls",
			want:    true,
		},
		{
			name:    "negation",
			src:     `void f(jclass cls) { if (!cls) {} }`,
			varName: "cls",
			want:    true,
		},
		{
			name:    "bare identifier",
			src:     `void f(jclass cls) { if (cls) {} }`,
			varName: "cls",
			want:    true,
		},
		{
			name:    "nullptr comparison",
			src:     `void f(jclass cls) { if (cls == nullptr) {} }`,
			varName: "cls",
			want:    true,
		},
		{
			name:    "compound condition",
			src:     `void f(jclass cls, int x) { if (x > 0 && cls == NULL) {} }`,
			varName: "cls",
			want:    true,
		},
		{
			name:    "different variable",
			src:     `void f(jclass cls, jclass other) { if (other == NULL) {} }`,
			varName: "cls",
			want:    false,
		},
		{
			name:    "unrelated comparison",
			src:     `void f(int x) { if (x > 3) {} }`,
			varName: "x",
			want:    false,
		},
		{
			name:    "assignment inside condition",
			src:     `void f(JNIEnv *env) { jclass cls; if ((cls = FindClass(env, "x")) == NULL) {} }`,
			varName: "cls",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := parseC(t, tt.src)
			got := IsNullGuardCondition(ctx, firstCondition(t, ctx), tt.varName)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainsExceptionCheck(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{
			name: "ExceptionCheck call",
			src:  `void f(JNIEnv *env) { if ((*env)->ExceptionCheck(env)) { return; } }`,
			want: true,
		},
		{
			name: "ExceptionOccurred call",
			src:  `void f(JNIEnv *env) { jthrowable e = (*env)->ExceptionOccurred(env); }`,
			want: true,
		},
		{
			name: "no check",
			src:  `void f(JNIEnv *env) { (*env)->FindClass(env, "x"); }`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := parseC(t, tt.src)
			assert.Equal(t, tt.want, ContainsExceptionCheck(ctx, ctx.Unit.Root))
		})
	}
}

func TestIsTerminatorStatement(t *testing.T) {
	tests := []struct {
		name string
		src  string
		typ  string
		want bool
	}{
		{name: "return", src: `void f(void) { return; }`, typ: "return_statement", want: true},
		{name: "goto", src: `void f(void) { goto out; out: ; }`, typ: "goto_statement", want: true},
		{name: "exit call", src: `void f(void) { exit(1); }`, typ: "expression_statement", want: true},
		{name: "plain statement", src: `void f(int x) { x = 1; }`, typ: "expression_statement", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := parseC(t, tt.src)
			var stmt *sitter.Node
			var walk func(*sitter.Node)
			walk = func(n *sitter.Node) {
				if n == nil || stmt != nil {
					return
				}
				if n.Type() == tt.typ {
					stmt = n
					return
				}
				for i := 0; i < int(n.ChildCount()); i++ {
					walk(n.Child(i))
				}
			}
			walk(ctx.Unit.Root)
			require.NotNil(t, stmt)
			assert.Equal(t, tt.want, IsTerminatorStatement(ctx, stmt))
		})
	}
}

func TestInsideNullGuardThen(t *testing.T) {
	ctx := parseC(t, `
void f(JNIEnv *env) {
    jclass cls = (*env)->FindClass(env, "x");
    if (cls == NULL) {
        return;
    }
    return;
}`)

	var returns []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "return_statement" {
			returns = append(returns, n)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(ctx.Unit.Root)
	require.Len(t, returns, 2)

	assert.True(t, InsideNullGuardThen(ctx, returns[0], "cls"))
	assert.False(t, InsideNullGuardThen(ctx, returns[1], "cls"))
}
