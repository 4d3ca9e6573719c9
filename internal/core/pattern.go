package core

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Bindings 表示一次匹配尝试中元变量到具体文本的映射
// 作用域仅限单条规则的一次求值，规则之间不共享
type Bindings map[string]string

// Clone 复制绑定集（匹配分支各自持有独立副本）
func (b Bindings) Clone() Bindings {
	nb := make(Bindings, len(b))
	for k, v := range b {
		nb[k] = v
	}
	return nb
}

// Bind 绑定元变量；同名元变量再次出现时必须与已有绑定一致（合一）
func (b Bindings) Bind(name, value string) bool {
	if prev, ok := b[name]; ok {
		return prev == value
	}
	b[name] = value
	return true
}

// ArgKind 表示参数模式的种类
type ArgKind int

const (
	ArgLiteral  ArgKind = iota // 与参数文本逐字比较（空白归一化后）
	ArgMetaVar                 // 捕获参数文本到元变量
	ArgAny                     // 匹配任意单个参数
	ArgEllipsis                // 匹配剩余全部参数（含零个）
)

// Arg 表示调用模式中的单个参数
type Arg struct {
	Kind ArgKind
	Text string // ArgLiteral 的字面值
	Var  string // ArgMetaVar 的元变量名，如 "$VAR"
}

// Pattern 表示一个声明式的调用形态模式
// Callee / CalleeSet / CalleeVar / CalleePrefix+CalleeSuffix 四种方式指定被调函数，
// 同时只使用其中一种
type Pattern struct {
	Callee    string   // 函数名字面量
	CalleeSet []string // 封闭函数名集合（按集合成员判定，非字符串模式）
	CalleeVar string   // 捕获函数名的元变量，与 CalleeSet 联用可做合一

	// Get$TYPEArrayElements / Release$TYPEArrayElements 这类带类型参数的函数族
	CalleePrefix string
	CalleeSuffix string
	TypeVar      string   // 绑定 $TYPE
	TypeSet      []string // $TYPE 的取值范围

	// 接收者约束："env"、"jvm" 等字面量；"$ENV" 形式的元变量；空串表示不限
	Receiver string

	Args []Arg
}

// CallShape 是从 AST 调用节点归一化出的调用形态
// (*env)->F(env, x)、env->F(x)、F(env, x) 统一归一到相同的 Callee/Receiver 视角
type CallShape struct {
	Node     *sitter.Node
	Callee   string
	Receiver string
	Args     []*sitter.Node
}

// ExtractCall 从 call_expression 节点提取调用形态
// 无法识别的调用（函数指针表达式等）返回 ok=false
func ExtractCall(ctx *AnalysisContext, node *sitter.Node) (CallShape, bool) {
	shape := CallShape{Node: node}

	if node == nil || node.Type() != "call_expression" {
		return shape, false
	}

	funcNode := node.ChildByFieldName("function")
	if funcNode == nil {
		return shape, false
	}

	switch funcNode.Type() {
	case "identifier":
		// F(env, ...)
		shape.Callee = ctx.GetSourceText(funcNode)

	case "field_expression":
		// (*env)->F(...) 或 env->F(...) 或 obj.F(...)
		field := funcNode.ChildByFieldName("field")
		if field == nil {
			return shape, false
		}
		shape.Callee = ctx.GetSourceText(field)
		shape.Receiver = receiverIdentifier(ctx, funcNode.ChildByFieldName("argument"))

	default:
		return shape, false
	}

	if shape.Callee == "" {
		return shape, false
	}

	args := node.ChildByFieldName("arguments")
	if args != nil {
		for i := 0; i < int(args.ChildCount()); i++ {
			child := args.Child(i)
			if child == nil {
				continue
			}
			t := child.Type()
			if t == "(" || t == ")" || t == "," || t == "comment" {
				continue
			}
			shape.Args = append(shape.Args, child)
		}
	}

	// C 风格调用 F(env, ...) 的首参即接收者
	if shape.Receiver == "" && len(shape.Args) > 0 && shape.Args[0].Type() == "identifier" {
		shape.Receiver = ctx.GetSourceText(shape.Args[0])
	}

	return shape, true
}

// receiverIdentifier 从 field_expression 的 argument 中提取接收者标识符
// 处理 (*env) 这种先解引用再取成员的写法
func receiverIdentifier(ctx *AnalysisContext, node *sitter.Node) string {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return ctx.GetSourceText(node)
		case "parenthesized_expression":
			node = node.NamedChild(0)
		case "pointer_expression":
			node = node.ChildByFieldName("argument")
		default:
			return ""
		}
	}
	return ""
}

// normalizeText 归一化表达式文本（折叠空白），用于参数字面量比较
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// IsMetaVar 判断名称是否为元变量占位符
func IsMetaVar(name string) bool {
	return strings.HasPrefix(name, "$")
}

// MatchCall 将模式与单个 call_expression 匹配
// 成功时返回扩展后的绑定集副本；传入的 bindings 不被修改
func (p *Pattern) MatchCall(ctx *AnalysisContext, node *sitter.Node, bindings Bindings) (Bindings, bool) {
	shape, ok := ExtractCall(ctx, node)
	if !ok {
		return nil, false
	}
	return p.matchShape(ctx, shape, bindings)
}

func (p *Pattern) matchShape(ctx *AnalysisContext, shape CallShape, bindings Bindings) (Bindings, bool) {
	b := Bindings{}
	if bindings != nil {
		b = bindings.Clone()
	}

	// 被调函数名
	switch {
	case p.Callee != "":
		if shape.Callee != p.Callee {
			return nil, false
		}

	case p.CalleePrefix != "" || p.CalleeSuffix != "":
		if !strings.HasPrefix(shape.Callee, p.CalleePrefix) || !strings.HasSuffix(shape.Callee, p.CalleeSuffix) {
			return nil, false
		}
		mid := shape.Callee[len(p.CalleePrefix) : len(shape.Callee)-len(p.CalleeSuffix)]
		if len(p.TypeSet) > 0 && !containsString(p.TypeSet, mid) {
			return nil, false
		}
		if p.TypeVar != "" && !b.Bind(p.TypeVar, mid) {
			return nil, false
		}

	case len(p.CalleeSet) > 0:
		if !containsString(p.CalleeSet, shape.Callee) {
			return nil, false
		}
		if p.CalleeVar != "" && !b.Bind(p.CalleeVar, shape.Callee) {
			return nil, false
		}

	case p.CalleeVar != "":
		if !b.Bind(p.CalleeVar, shape.Callee) {
			return nil, false
		}
	}

	// 接收者
	if p.Receiver != "" {
		if IsMetaVar(p.Receiver) {
			if shape.Receiver == "" || !b.Bind(p.Receiver, shape.Receiver) {
				return nil, false
			}
		} else if shape.Receiver != p.Receiver {
			return nil, false
		}
	}

	// 参数列表
	if !matchArgs(ctx, p.Args, shape.Args, b) {
		return nil, false
	}

	return b, true
}

// matchArgs 按位置匹配参数模式，尾部 ArgEllipsis 吞掉剩余参数
func matchArgs(ctx *AnalysisContext, patterns []Arg, args []*sitter.Node, b Bindings) bool {
	if len(patterns) == 0 {
		return true
	}

	for i, ap := range patterns {
		if ap.Kind == ArgEllipsis {
			// 省略号只允许出现在尾部
			return true
		}
		if i >= len(args) {
			return false
		}

		argText := ctx.GetSourceText(args[i])
		switch ap.Kind {
		case ArgLiteral:
			if normalizeText(argText) != normalizeText(ap.Text) {
				return false
			}
		case ArgMetaVar:
			if !b.Bind(ap.Var, normalizeText(argText)) {
				return false
			}
		case ArgAny:
			// 任意单参
		}
	}

	// 没有省略号时参数个数必须一致
	return len(patterns) == len(args)
}

// Match 在子树内收集模式的全部匹配，返回绑定集列表
// 同一模式可能在不同位置匹配多次，每次匹配产生一个独立的绑定集
func Match(ctx *AnalysisContext, p *Pattern, subtree *sitter.Node) []Bindings {
	var results []Bindings
	walkCalls(subtree, func(call *sitter.Node) {
		if b, ok := p.MatchCall(ctx, call, nil); ok {
			results = append(results, b)
		}
	})
	return results
}

// MatchEither 依次尝试多个模式（pattern-either），返回所有成功分支绑定集的并集
func MatchEither(ctx *AnalysisContext, patterns []*Pattern, node *sitter.Node, bindings Bindings) []Bindings {
	var results []Bindings
	for _, p := range patterns {
		if b, ok := p.MatchCall(ctx, node, bindings); ok {
			results = append(results, b)
		}
	}
	return results
}

// ContainsMatch 判断子树内是否存在任一模式的匹配（绑定集须与传入绑定合一）
func ContainsMatch(ctx *AnalysisContext, patterns []*Pattern, subtree *sitter.Node, bindings Bindings) bool {
	found := false
	walkCalls(subtree, func(call *sitter.Node) {
		if found {
			return
		}
		for _, p := range patterns {
			if _, ok := p.MatchCall(ctx, call, bindings); ok {
				found = true
				return
			}
		}
	})
	return found
}

// Inside 判断节点是否位于某个匹配了任一模式的调用所在语句的祖先块内
// （pattern-inside：匹配结果必须出现在指定结构之内才保留）
func Inside(ctx *AnalysisContext, node *sitter.Node, patterns []*Pattern, bindings Bindings) bool {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Type() != "compound_statement" && cur.Type() != "if_statement" &&
			cur.Type() != "labeled_statement" {
			continue
		}
		if ContainsMatch(ctx, patterns, cur, bindings) {
			return true
		}
	}
	return false
}

// NotInside 是 Inside 的取反过滤（pattern-not-inside）
func NotInside(ctx *AnalysisContext, node *sitter.Node, patterns []*Pattern, bindings Bindings) bool {
	return !Inside(ctx, node, patterns, bindings)
}

// walkCalls 深度优先遍历子树中所有 call_expression
func walkCalls(node *sitter.Node, visit func(*sitter.Node)) {
	if node == nil {
		return
	}
	if node.Type() == "call_expression" {
		visit(node)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkCalls(node.Child(i), visit)
	}
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// AssignedVariable 返回调用结果被赋给的变量名；调用结果未被保存时返回空串
// 覆盖两种写法：
//  1. jclass cls = (*env)->FindClass(env, "x");   （init_declarator）
//  2. cls = (*env)->FindClass(env, "x");          （assignment_expression）
func AssignedVariable(ctx *AnalysisContext, call *sitter.Node) string {
	parent := call.Parent()
	for parent != nil {
		switch parent.Type() {
		case "init_declarator":
			decl := parent.ChildByFieldName("declarator")
			return declaredIdentifier(ctx, decl)
		case "assignment_expression":
			left := parent.ChildByFieldName("left")
			if left != nil && left.Type() == "identifier" {
				return ctx.GetSourceText(left)
			}
			return ""
		case "cast_expression", "parenthesized_expression":
			parent = parent.Parent()
			continue
		}
		return ""
	}
	return ""
}

// declaredIdentifier 从声明符中剥掉指针/数组层取出标识符
func declaredIdentifier(ctx *AnalysisContext, node *sitter.Node) string {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return ctx.GetSourceText(node)
		case "pointer_declarator", "array_declarator":
			node = node.ChildByFieldName("declarator")
		default:
			return ""
		}
	}
	return ""
}
