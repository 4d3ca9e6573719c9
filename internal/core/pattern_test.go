package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sitter "github.com/smacker/go-tree-sitter"
)

// parseC 解析内存中的 C 片段并返回分析上下文
func parseC(t *testing.T, src string) *AnalysisContext {
	t.Helper()
	unit, err := ParseBytes(context.Background(), "test.c", []byte(src), "c")
	require.NoError(t, err)
	return NewAnalysisContext(unit)
}

// firstCall 返回文件中第 n 个 call_expression（从 0 计）
func firstCall(t *testing.T, ctx *AnalysisContext, n int) *sitter.Node {
	t.Helper()
	var calls []*sitter.Node
	walkCalls(ctx.Unit.Root, func(c *sitter.Node) {
		calls = append(calls, c)
	})
	require.Greater(t, len(calls), n, "expected at least %d calls", n+1)
	return calls[n]
}

func TestExtractCallNormalization(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		callee   string
		receiver string
		argCount int
	}{
		{
			name:     "pointer deref style",
			src:      `void f(JNIEnv *env) { (*env)->FindClass(env, "java/lang/String"); }`,
			callee:   "FindClass",
			receiver: "env",
			argCount: 2,
		},
		{
			name:     "cpp member style",
			src:      `void f(JNIEnv *env) { env->FindClass("java/lang/String"); }`,
			callee:   "FindClass",
			receiver: "env",
			argCount: 1,
		},
		{
			name:     "plain call with env first",
			src:      `void f(JNIEnv *env) { FindClass(env, "java/lang/String"); }`,
			callee:   "FindClass",
			receiver: "env",
			argCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := parseC(t, tt.src)
			shape, ok := ExtractCall(ctx, firstCall(t, ctx, 0))
			require.True(t, ok)
			assert.Equal(t, tt.callee, shape.Callee)
			assert.Equal(t, tt.receiver, shape.Receiver)
			assert.Len(t, shape.Args, tt.argCount)
		})
	}
}

func TestMatchCallCalleeSetBindsMetaVar(t *testing.T) {
	ctx := parseC(t, `void f(JNIEnv *env) { (*env)->GetMethodID(env, cls, "m", "()V"); }`)

	p := &Pattern{
		CalleeSet: []string{"FindClass", "GetMethodID"},
		CalleeVar: "$JNI_FUNC",
	}
	b, ok := p.MatchCall(ctx, firstCall(t, ctx, 0), nil)
	require.True(t, ok)
	assert.Equal(t, "GetMethodID", b["$JNI_FUNC"])

	miss := &Pattern{CalleeSet: []string{"FindClass"}}
	_, ok = miss.MatchCall(ctx, firstCall(t, ctx, 0), nil)
	assert.False(t, ok)
}

func TestMatchCallUnification(t *testing.T) {
	ctx := parseC(t, `void f(JNIEnv *env) { (*env)->DeleteLocalRef(env, cls); }`)

	p := &Pattern{
		Callee: "DeleteLocalRef",
		Args: []Arg{
			{Kind: ArgAny},
			{Kind: ArgMetaVar, Var: "$VAR"},
		},
	}

	// 预绑定一致时匹配成功
	b, ok := p.MatchCall(ctx, firstCall(t, ctx, 0), Bindings{"$VAR": "cls"})
	require.True(t, ok)
	assert.Equal(t, "cls", b["$VAR"])

	// 预绑定冲突时合一失败
	_, ok = p.MatchCall(ctx, firstCall(t, ctx, 0), Bindings{"$VAR": "other"})
	assert.False(t, ok)
}

func TestMatchCallTypeParameter(t *testing.T) {
	ctx := parseC(t, `void f(JNIEnv *env, jintArray a) { (*env)->GetIntArrayElements(env, a, NULL); }`)

	p := &Pattern{
		CalleePrefix: "Get",
		CalleeSuffix: "ArrayElements",
		TypeVar:      "$TYPE",
		TypeSet:      []string{"Int", "Long"},
	}
	b, ok := p.MatchCall(ctx, firstCall(t, ctx, 0), nil)
	require.True(t, ok)
	assert.Equal(t, "Int", b["$TYPE"])

	// 类型不在集合内时不匹配
	narrow := &Pattern{
		CalleePrefix: "Get",
		CalleeSuffix: "ArrayElements",
		TypeVar:      "$TYPE",
		TypeSet:      []string{"Long"},
	}
	_, ok = narrow.MatchCall(ctx, firstCall(t, ctx, 0), nil)
	assert.False(t, ok)
}

func TestMatchArgsEllipsis(t *testing.T) {
	ctx := parseC(t, `void f(JNIEnv *env) { (*env)->CallObjectMethod(env, obj, mid, 1, 2, 3); }`)

	p := &Pattern{
		Callee: "CallObjectMethod",
		Args: []Arg{
			{Kind: ArgAny},
			{Kind: ArgMetaVar, Var: "$OBJ"},
			{Kind: ArgEllipsis},
		},
	}
	b, ok := p.MatchCall(ctx, firstCall(t, ctx, 0), nil)
	require.True(t, ok)
	assert.Equal(t, "obj", b["$OBJ"])

	// 没有省略号时参数个数必须一致
	exact := &Pattern{
		Callee: "CallObjectMethod",
		Args:   []Arg{{Kind: ArgAny}, {Kind: ArgAny}},
	}
	_, ok = exact.MatchCall(ctx, firstCall(t, ctx, 0), nil)
	assert.False(t, ok)
}

func TestAssignedVariable(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "declaration with initializer",
			src:  `void f(JNIEnv *env) { jclass cls = (*env)->FindClass(env, "x"); }`,
			want: "cls",
		},
		{
			name: "plain assignment",
			src:  `void f(JNIEnv *env) { jclass cls; cls = (*env)->FindClass(env, "x"); }`,
			want: "cls",
		},
		{
			name: "assignment through cast",
			src:  `void f(JNIEnv *env) { void *p; p = (void *)(*env)->GetDirectBufferAddress(env, buf); }`,
			want: "p",
		},
		{
			name: "expression statement has no variable",
			src:  `void f(JNIEnv *env) { (*env)->FindClass(env, "x"); }`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := parseC(t, tt.src)
			assert.Equal(t, tt.want, AssignedVariable(ctx, firstCall(t, ctx, 0)))
		})
	}
}

func TestContainsMatchRespectsBindings(t *testing.T) {
	ctx := parseC(t, `
void f(JNIEnv *env) {
    jclass a = (*env)->FindClass(env, "A");
    jclass b = (*env)->FindClass(env, "B");
    (*env)->DeleteLocalRef(env, b);
}`)

	release := []*Pattern{{
		Callee: "DeleteLocalRef",
		Args:   []Arg{{Kind: ArgAny}, {Kind: ArgMetaVar, Var: "$VAR"}},
	}}

	body := ctx.FindFunctionDefinition("f")
	require.NotNil(t, body)

	assert.True(t, ContainsMatch(ctx, release, body, Bindings{"$VAR": "b"}))
	assert.False(t, ContainsMatch(ctx, release, body, Bindings{"$VAR": "a"}))
}
