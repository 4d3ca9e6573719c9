package detectors

import "jniscan/internal/core"

// NullCheckRules 返回空值保护类规则
// 返回引用的访问器失败时返回 NULL，保存的结果在首次解引用/传参前必须有空值检查
func NullCheckRules() []core.Rule {
	return []core.Rule{
		{
			ID:       "jni-missing-null-check",
			Kind:     core.KindGuardBeforeUse,
			Severity: core.SeverityWarning,
			Message:  "$VAR returned by $JNI_FUNC is not null-checked before first use",
			Trigger: &core.Pattern{
				CalleeSet: fallibleRefAccessors,
				CalleeVar: "$JNI_FUNC",
			},
			RequireAssignment: true,
		},
		{
			// GetDirectBufferAddress 在非直接缓冲区或 JVM 不支持时返回 NULL
			ID:       "jni-missing-direct-buffer-check",
			Kind:     core.KindGuardBeforeUse,
			Severity: core.SeverityWarning,
			Message:  "$VAR from GetDirectBufferAddress is not null-checked before first use",
			Trigger: &core.Pattern{
				Callee: "GetDirectBufferAddress",
			},
			RequireAssignment: true,
		},
	}
}
