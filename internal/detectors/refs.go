package detectors

import "jniscan/internal/core"

// RefRules 返回引用生命周期规则
// 局部/全局引用未释放会耗尽引用表；null-guard 分支内的提前返回是
// 公认的豁免形态（引用创建失败时无需释放）
func RefRules() []core.Rule {
	rules := []core.Rule{
		{
			ID:       "jni-missing-delete-local-ref",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "local reference $VAR from $JNI_FUNC is not released with DeleteLocalRef on every path",
			Trigger: &core.Pattern{
				CalleeSet: localRefProducers,
				CalleeVar: "$JNI_FUNC",
			},
			RequireAssignment:  true,
			Companions:         releaseCompanions("DeleteLocalRef", 1),
			AllowNullGuardExit: true,
			RequireAtExit:      true,
		},
	}

	// 强/弱全局引用各自要求成对的删除调用，不能互相替代
	globalPairs := []struct{ create, del string }{
		{"NewGlobalRef", "DeleteGlobalRef"},
		{"NewWeakGlobalRef", "DeleteWeakGlobalRef"},
	}
	for _, pair := range globalPairs {
		rules = append(rules, core.Rule{
			ID:       "jni-missing-delete-global-ref",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "global reference $VAR from " + pair.create + " is not released with " + pair.del + " on every path",
			Trigger: &core.Pattern{
				Callee: pair.create,
			},
			RequireAssignment:  true,
			Companions:         releaseCompanions(pair.del, 1),
			AllowNullGuardExit: true,
			RequireAtExit:      true,
		})
	}
	return rules
}
