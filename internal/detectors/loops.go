package detectors

import "jniscan/internal/core"

// LoopRules 返回循环相关规则
// 两条检查互相独立：异常检测缺失是正确性问题（唯一的 ERROR 级规则），
// 循环不变调用是性能建议
func LoopRules() []core.Rule {
	return []core.Rule{
		{
			ID:          "jni-exception-check-in-loop",
			Kind:        core.KindLoopExceptionCheck,
			Severity:    core.SeverityError,
			Message:     "$JNI_FUNC called inside a loop with no exception check anywhere in the enclosing function",
			LoopCallees: jniCallNames(),
		},
		{
			ID:               "jni-invariant-call-in-loop",
			Kind:             core.KindLoopInvariantCall,
			Severity:         core.SeverityAdvisory,
			Message:          "$JNI_FUNC result does not change across iterations; hoist it out of the loop",
			InvariantCallees: lookupAccessors,
		},
	}
}
