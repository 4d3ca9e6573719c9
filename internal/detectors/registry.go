package detectors

import "jniscan/internal/core"

// AllRules 返回全部内置规则
// 同一规则 ID 允许对应多个实例（按创建/释放函数配对拆分），上报时共用 ID
func AllRules() []core.Rule {
	var rules []core.Rule
	rules = append(rules, ExceptionRules()...)
	rules = append(rules, NullCheckRules()...)
	rules = append(rules, RefRules()...)
	rules = append(rules, ArrayRules()...)
	rules = append(rules, LoopRules()...)
	rules = append(rules, ThreadRules()...)
	return rules
}

// RuleIDs 返回去重后的规则 ID 列表，保持注册顺序
func RuleIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range AllRules() {
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// RuleDescriptions 返回规则 ID 到说明文本的映射，供报告输出使用
func RuleDescriptions() map[string]string {
	return map[string]string{
		"jni-missing-exception-check":        "Fallible JNI calls must be followed by an exception check on every path",
		"jni-missing-null-check":             "References returned by fallible JNI accessors must be null-checked before use",
		"jni-missing-delete-local-ref":       "Stored local references must be released with DeleteLocalRef on every path",
		"jni-missing-delete-global-ref":      "Global references must be released with the matching delete call on every path",
		"jni-get-array-length-exception":     "GetArrayLength requires an exception check before its result is used",
		"jni-missing-release-byte-array":     "GetByteArrayElements results must be released with ReleaseByteArrayElements",
		"jni-missing-release-string-utf":     "String characters must be released with the matching Release call",
		"jni-missing-release-array-elements": "Typed array elements must be released with the matching typed Release call",
		"jni-exception-check-in-loop":        "JNI calls inside loops require an exception check in the enclosing function",
		"jni-invariant-call-in-loop":         "Loop-invariant JNI lookups should be hoisted out of the loop",
		"jni-missing-direct-buffer-check":    "GetDirectBufferAddress results must be null-checked before use",
		"jni-missing-detach-thread":          "AttachCurrentThread must be paired with DetachCurrentThread on every exit path",
	}
}
