package detectors

import "jniscan/internal/core"

// ArrayRules 返回数组/字符串句柄释放规则
// 取出的元素指针可能是 JVM 堆的拷贝也可能是钉住的原始内存，
// 两种情况都要求成对的 Release 调用，否则泄漏或长期阻塞 GC
func ArrayRules() []core.Rule {
	rules := []core.Rule{
		{
			ID:       "jni-missing-release-byte-array",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "elements $VAR from GetByteArrayElements are not released with ReleaseByteArrayElements on every path",
			Trigger: &core.Pattern{
				Callee: "GetByteArrayElements",
			},
			RequireAssignment:  true,
			Companions:         releaseCompanions("ReleaseByteArrayElements", 2),
			AllowNullGuardExit: true,
			RequireAtExit:      true,
		},
		{
			// Get<Type>ArrayElements 家族按 $TYPE 合一配对；
			// ReleaseIntArrayElements 不能释放 GetLongArrayElements 的结果
			ID:       "jni-missing-release-array-elements",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "elements $VAR from Get$TYPEArrayElements are not released with Release$TYPEArrayElements on every path",
			Trigger: &core.Pattern{
				CalleePrefix: "Get",
				CalleeSuffix: "ArrayElements",
				TypeVar:      "$TYPE",
				TypeSet:      elementTypes,
			},
			RequireAssignment:  true,
			Companions:         typedReleaseCompanions("Release", "ArrayElements", elementTypes, 2),
			AllowNullGuardExit: true,
			RequireAtExit:      true,
		},
		{
			// critical 区间内大多数 JNI 调用被禁止，未释放的后果更重
			ID:       "jni-missing-release-array-elements",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "critical elements $VAR from GetPrimitiveArrayCritical are not released with ReleasePrimitiveArrayCritical on every path",
			Trigger: &core.Pattern{
				Callee: "GetPrimitiveArrayCritical",
			},
			RequireAssignment:  true,
			Companions:         releaseCompanions("ReleasePrimitiveArrayCritical", 2),
			AllowNullGuardExit: true,
			RequireAtExit:      true,
		},
	}

	// 字符串访问器与释放器一一配对，同一规则 ID 下的三个实例
	stringPairs := []struct{ get, release string }{
		{"GetStringUTFChars", "ReleaseStringUTFChars"},
		{"GetStringChars", "ReleaseStringChars"},
		{"GetStringCritical", "ReleaseStringCritical"},
	}
	for _, pair := range stringPairs {
		rules = append(rules, core.Rule{
			ID:       "jni-missing-release-string-utf",
			Kind:     core.KindRequireOnAllPaths,
			Severity: core.SeverityWarning,
			Message:  "characters $VAR from " + pair.get + " are not released with " + pair.release + " on every path",
			Trigger: &core.Pattern{
				Callee: pair.get,
			},
			RequireAssignment:  true,
			Companions:         releaseCompanions(pair.release, 2),
			AllowNullGuardExit: true,
			RequireAtExit:      true,
		})
	}
	return rules
}
