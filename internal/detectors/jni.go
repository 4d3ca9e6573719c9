package detectors

// 本文件集中维护各规则引用的 JNI 函数名集合
// 所有集合都是封闭枚举，按集合成员判定，不做字符串模式匹配

// fallibleAccessors 是可能挂起异常的 JNI 调用集合
// 调用之后必须在所有路径上出现异常检测
var fallibleAccessors = []string{
	"FindClass",
	"GetMethodID",
	"GetStaticMethodID",
	"GetFieldID",
	"GetStaticFieldID",
	"NewObject",
	"NewObjectV",
	"NewObjectA",
	"CallObjectMethod",
	"CallStaticObjectMethod",
	"CallVoidMethod",
	"CallStaticVoidMethod",
	"CallIntMethod",
	"CallStaticIntMethod",
	"CallBooleanMethod",
	"CallLongMethod",
	"GetObjectArrayElement",
	"GetObjectField",
	"GetStaticObjectField",
	"NewString",
	"NewStringUTF",
	"ToReflectedMethod",
	"ToReflectedField",
}

// fallibleRefAccessors 是返回引用、失败时返回 NULL 的子集
// 赋值结果在首次使用前必须有空值检查
var fallibleRefAccessors = []string{
	"FindClass",
	"GetMethodID",
	"GetStaticMethodID",
	"GetFieldID",
	"GetStaticFieldID",
	"NewObject",
	"NewObjectV",
	"NewObjectA",
	"CallObjectMethod",
	"CallStaticObjectMethod",
	"GetObjectArrayElement",
	"GetObjectField",
	"GetStaticObjectField",
	"NewString",
	"NewStringUTF",
	"ToReflectedMethod",
	"ToReflectedField",
}

// localRefProducers 是创建局部引用的调用集合
// 结果被保存后必须在所有退出路径上 DeleteLocalRef
var localRefProducers = []string{
	"FindClass",
	"GetObjectClass",
	"NewObject",
	"NewObjectV",
	"NewObjectA",
	"NewLocalRef",
	"AllocObject",
	"CallObjectMethod",
	"CallStaticObjectMethod",
	"GetObjectArrayElement",
	"GetObjectField",
	"GetStaticObjectField",
	"NewString",
	"NewStringUTF",
	"NewObjectArray",
	"ToReflectedMethod",
	"ToReflectedField",
}

// lookupAccessors 是幂等查找类调用，参数不变时结果不变
// 出现在循环内且参数与迭代无关时建议提升
var lookupAccessors = []string{
	"FindClass",
	"GetMethodID",
	"GetStaticMethodID",
	"GetFieldID",
	"GetStaticFieldID",
}

// elementTypes 是 Get<Type>ArrayElements 家族的类型参数取值范围
// Byte 单独成规则上报，此处排除以免同一调用点重复命中
var elementTypes = []string{
	"Boolean",
	"Char",
	"Short",
	"Int",
	"Long",
	"Float",
	"Double",
}

// jniCallNames 返回循环异常检测规则视作 JNI 调用的全集
func jniCallNames() []string {
	seen := make(map[string]bool)
	var all []string
	add := func(names ...string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				all = append(all, n)
			}
		}
	}
	add(fallibleAccessors...)
	add(localRefProducers...)
	add(
		"GetArrayLength",
		"GetByteArrayElements",
		"GetStringUTFChars",
		"GetStringChars",
		"GetStringCritical",
		"GetPrimitiveArrayCritical",
		"SetObjectArrayElement",
		"SetIntField",
		"SetObjectField",
		"GetIntField",
		"GetLongField",
		"GetDirectBufferAddress",
	)
	for _, t := range elementTypes {
		add("Get" + t + "ArrayElements")
	}
	return all
}
