package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sitter "github.com/smacker/go-tree-sitter"
)

// releaseQuery 构造「后续路径必须出现 DeleteLocalRef($VAR)」式的查询
func releaseQuery(ctx *AnalysisContext, varName string) PathQuery {
	release := []*Pattern{{
		Callee: "DeleteLocalRef",
		Args:   []Arg{{Kind: ArgAny}, {Kind: ArgMetaVar, Var: "$VAR"}},
	}}
	b := Bindings{"$VAR": varName}
	return PathQuery{
		RequireAtExit: true,
		Satisfies: func(n *CFGNode) bool {
			return n.Stmt != nil && ContainsMatch(ctx, release, n.Stmt, b)
		},
	}
}

// triggerNode 定位第一个 FindClass 调用对应的 CFG 节点
func triggerNode(t *testing.T, ctx *AnalysisContext, cfg *CFG) *CFGNode {
	t.Helper()
	var call *sitter.Node
	walkCalls(ctx.Unit.Root, func(c *sitter.Node) {
		if call != nil {
			return
		}
		if shape, ok := ExtractCall(ctx, c); ok && shape.Callee == "FindClass" {
			call = c
		}
	})
	require.NotNil(t, call, "FindClass call not found")
	node := cfg.NodeForAST(call)
	require.NotNil(t, node)
	return node
}

func TestAllPathsSatisfyStraightLine(t *testing.T) {
	ctx, cfg := buildCFG(t, `
void f(JNIEnv *env) {
    jclass cls = (*env)->FindClass(env, "x");
    (*env)->DeleteLocalRef(env, cls);
}`)

	v := AllPathsSatisfy(cfg, triggerNode(t, ctx, cfg), releaseQuery(ctx, "cls"))
	assert.Nil(t, v)
}

func TestAllPathsSatisfyMissingEntirely(t *testing.T) {
	ctx, cfg := buildCFG(t, `
void f(JNIEnv *env) {
    jclass cls = (*env)->FindClass(env, "x");
    int a = 1;
}`)

	v := AllPathsSatisfy(cfg, triggerNode(t, ctx, cfg), releaseQuery(ctx, "cls"))
	require.NotNil(t, v)
	assert.True(t, v.AtExit)
}

// 释放只出现在一个分支里：词法上「函数内存在释放」，但缺释放的分支仍是违规
func TestAllPathsSatisfyBranchCoverage(t *testing.T) {
	ctx, cfg := buildCFG(t, `
void f(JNIEnv *env, int flag) {
    jclass cls = (*env)->FindClass(env, "x");
    if (flag) {
        (*env)->DeleteLocalRef(env, cls);
    }
    flag = 0;
}`)

	v := AllPathsSatisfy(cfg, triggerNode(t, ctx, cfg), releaseQuery(ctx, "cls"))
	assert.NotNil(t, v, "branch without release must be a violation")
}

func TestAllPathsSatisfyBothBranches(t *testing.T) {
	ctx, cfg := buildCFG(t, `
void f(JNIEnv *env, int flag) {
    jclass cls = (*env)->FindClass(env, "x");
    if (flag) {
        (*env)->DeleteLocalRef(env, cls);
        return;
    }
    (*env)->DeleteLocalRef(env, cls);
}`)

	v := AllPathsSatisfy(cfg, triggerNode(t, ctx, cfg), releaseQuery(ctx, "cls"))
	assert.Nil(t, v)
}

// 提前 return 发生在释放之前是违规；发生在释放之后不是
func TestAllPathsSatisfyEarlyReturnOrdering(t *testing.T) {
	ctx, cfg := buildCFG(t, `
void f(JNIEnv *env, int flag) {
    jclass cls = (*env)->FindClass(env, "x");
    if (flag) {
        return;
    }
    (*env)->DeleteLocalRef(env, cls);
}`)

	v := AllPathsSatisfy(cfg, triggerNode(t, ctx, cfg), releaseQuery(ctx, "cls"))
	assert.NotNil(t, v, "return before release must be a violation")
}

func TestAllPathsSatisfyLoopTerminates(t *testing.T) {
	ctx, cfg := buildCFG(t, `
void f(JNIEnv *env, int n) {
    jclass cls = (*env)->FindClass(env, "x");
    while (n > 0) {
        n = n - 1;
    }
    (*env)->DeleteLocalRef(env, cls);
}`)

	// 有回边的图上遍历必须终止且给出正确结论
	v := AllPathsSatisfy(cfg, triggerNode(t, ctx, cfg), releaseQuery(ctx, "cls"))
	assert.Nil(t, v)
}

func TestAllPathsSatisfyDeadline(t *testing.T) {
	ctx, cfg := buildCFG(t, `
void f(JNIEnv *env) {
    jclass cls = (*env)->FindClass(env, "x");
    use(cls);
    (*env)->DeleteLocalRef(env, cls);
}`)

	q := releaseQuery(ctx, "cls")
	q.Deadline = func(n *CFGNode) bool {
		return n.Stmt != nil && UsesIdentifier(ctx, n.Stmt, "cls")
	}

	// use(cls) 在释放之前出现，构成截止点违规
	v := AllPathsSatisfy(cfg, triggerNode(t, ctx, cfg), q)
	require.NotNil(t, v)
	assert.False(t, v.AtExit)
}
