package detectors

import "jniscan/internal/core"

// releaseCompanions 为释放类调用生成两种参数布局的伴随模式
// C 写法 (*env)->Release(env, obj, $VAR, ...) 与 C++ 写法 env->Release(obj, $VAR, ...)
// 的实参个数差一个 env；$VAR 的合一约束保证短布局不会误吃 C 写法的实参
func releaseCompanions(callee string, varIndex int) []*core.Pattern {
	long := make([]core.Arg, 0, varIndex+2)
	for i := 0; i < varIndex; i++ {
		long = append(long, core.Arg{Kind: core.ArgAny})
	}
	long = append(long, core.Arg{Kind: core.ArgMetaVar, Var: "$VAR"}, core.Arg{Kind: core.ArgEllipsis})

	// 短布局少一个前导实参
	short := make([]core.Arg, 0, varIndex+1)
	for i := 0; i < varIndex-1; i++ {
		short = append(short, core.Arg{Kind: core.ArgAny})
	}
	short = append(short, core.Arg{Kind: core.ArgMetaVar, Var: "$VAR"}, core.Arg{Kind: core.ArgEllipsis})

	return []*core.Pattern{
		{Callee: callee, Args: long},
		{Callee: callee, Args: short},
	}
}

// typedReleaseCompanions 同 releaseCompanions，但被调名按 Release<Type>... 前后缀
// 匹配并要求 $TYPE 与触发点绑定一致
func typedReleaseCompanions(prefix, suffix string, types []string, varIndex int) []*core.Pattern {
	base := releaseCompanions("", varIndex)
	for _, p := range base {
		p.CalleePrefix = prefix
		p.CalleeSuffix = suffix
		p.TypeVar = "$TYPE"
		p.TypeSet = types
	}
	return base
}
