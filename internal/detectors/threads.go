package detectors

import "jniscan/internal/core"

// ThreadRules 返回线程挂接规则
// 未 Detach 的本地线程退出会让 JVM 永久挂起等待；配对只在函数内检查，
// 跨函数的 attach/detach 约定超出分析范围
func ThreadRules() []core.Rule {
	return []core.Rule{
		{
			ID:       "jni-missing-detach-thread",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "$JNI_FUNC is not paired with DetachCurrentThread on every path to function exit",
			Trigger: &core.Pattern{
				CalleeSet: []string{"AttachCurrentThread", "AttachCurrentThreadAsDaemon"},
				CalleeVar: "$JNI_FUNC",
			},
			Companions: []*core.Pattern{
				{Callee: "DetachCurrentThread"},
			},
			RequireAtExit: true,
		},
	}
}
