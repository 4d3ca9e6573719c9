package detectors

import "jniscan/internal/core"

// ExceptionRules 返回异常生命周期相关规则
// 可失败的 JNI 调用会挂起 Java 异常，挂起期间再调用多数 JNI 函数是未定义行为，
// 因此调用之后的所有路径都必须在结果被使用之前、且在函数退出之前出现异常检测
func ExceptionRules() []core.Rule {
	return []core.Rule{
		{
			ID:       "jni-missing-exception-check",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "JNI call $JNI_FUNC may leave a pending exception that is never checked",
			Trigger: &core.Pattern{
				CalleeSet: fallibleAccessors,
				CalleeVar: "$JNI_FUNC",
			},
			SatisfyOnExceptionCheck: true,
			UseIsDeadline:           true,
			RequireAtExit:           true,
		},
		{
			// GetArrayLength 对无效数组会挂起 ArrayIndexOutOfBounds 类异常，
			// 返回值本身无法区分失败，只能靠异常检测
			ID:       "jni-get-array-length-exception",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "GetArrayLength result used without checking for a pending exception",
			Trigger: &core.Pattern{
				Callee: "GetArrayLength",
			},
			SatisfyOnExceptionCheck: true,
			UseIsDeadline:           true,
			RequireAtExit:           true,
		},
	}
}
