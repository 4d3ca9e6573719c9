package core

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// exceptionCheckCallees 是 JNI 异常检测/处理调用的封闭集合
var exceptionCheckCallees = []string{
	"ExceptionCheck",
	"ExceptionOccurred",
	"ExceptionClear",
	"ExceptionDescribe",
}

// terminatorCallees 是不再返回的终止调用
var terminatorCallees = []string{
	"exit",
	"_exit",
	"_Exit",
	"abort",
}

// ContainsExceptionCheck 判断子树内是否出现异常检测/处理调用
func ContainsExceptionCheck(ctx *AnalysisContext, subtree *sitter.Node) bool {
	found := false
	walkCalls(subtree, func(call *sitter.Node) {
		if found {
			return
		}
		if shape, ok := ExtractCall(ctx, call); ok && containsString(exceptionCheckCallees, shape.Callee) {
			found = true
		}
	})
	return found
}

// IsTerminatorCall 判断调用是否为 exit/abort 这类终止调用
func IsTerminatorCall(ctx *AnalysisContext, call *sitter.Node) bool {
	shape, ok := ExtractCall(ctx, call)
	return ok && containsString(terminatorCallees, shape.Callee)
}

// ContainsTerminatorCall 判断子树内是否出现终止调用
func ContainsTerminatorCall(ctx *AnalysisContext, subtree *sitter.Node) bool {
	found := false
	walkCalls(subtree, func(call *sitter.Node) {
		if found {
			return
		}
		if IsTerminatorCall(ctx, call) {
			found = true
		}
	})
	return found
}

// IsTerminatorStatement 判断语句是否让控制流离开当前函数
// （return、goto、exit 调用；goto 的目标由 CFG 负责）
func IsTerminatorStatement(ctx *AnalysisContext, stmt *sitter.Node) bool {
	if stmt == nil {
		return false
	}
	switch stmt.Type() {
	case "return_statement", "goto_statement":
		return true
	}
	return ContainsTerminatorCall(ctx, stmt)
}

// IsNullCondition 判断条件表达式是否对变量做空指针判定
// 接受 $VAR == NULL、NULL == $VAR、!$VAR 以及等价的 0/nullptr 写法
func IsNullCondition(ctx *AnalysisContext, cond *sitter.Node, varName string) bool {
	cond = stripParens(cond)
	if cond == nil {
		return false
	}

	switch cond.Type() {
	case "binary_expression":
		op := cond.ChildByFieldName("operator")
		if op == nil || ctx.GetSourceText(op) != "==" {
			return false
		}
		left := stripParens(cond.ChildByFieldName("left"))
		right := stripParens(cond.ChildByFieldName("right"))
		return (refersToVar(ctx, left, varName) && isNullLiteral(ctx, right)) ||
			(isNullLiteral(ctx, left) && refersToVar(ctx, right, varName))

	case "unary_expression":
		op := cond.ChildByFieldName("operator")
		if op == nil || ctx.GetSourceText(op) != "!" {
			return false
		}
		return refersToVar(ctx, stripParens(cond.ChildByFieldName("argument")), varName)
	}

	return false
}

// refersToVar 判断表达式是否指代变量本身
// 接受裸标识符以及「(cls = ...)」这类赋值表达式
func refersToVar(ctx *AnalysisContext, node *sitter.Node, varName string) bool {
	node = stripParens(node)
	if node == nil {
		return false
	}
	if node.Type() == "assignment_expression" {
		return isIdent(ctx, stripParens(node.ChildByFieldName("left")), varName)
	}
	return isIdent(ctx, node, varName)
}

// IsNullGuardCondition 判断条件是否构成对变量的空值检查（任意极性）
// != NULL / 条件位置的裸变量 同样视作已做检查
func IsNullGuardCondition(ctx *AnalysisContext, cond *sitter.Node, varName string) bool {
	cond = stripParens(cond)
	if cond == nil {
		return false
	}

	if IsNullCondition(ctx, cond, varName) {
		return true
	}

	switch cond.Type() {
	case "binary_expression":
		op := cond.ChildByFieldName("operator")
		if op == nil {
			return false
		}
		left := stripParens(cond.ChildByFieldName("left"))
		right := stripParens(cond.ChildByFieldName("right"))
		switch ctx.GetSourceText(op) {
		case "!=":
			return (refersToVar(ctx, left, varName) && isNullLiteral(ctx, right)) ||
				(isNullLiteral(ctx, left) && refersToVar(ctx, right, varName))
		case "&&", "||":
			// 复合条件中任一操作数构成检查即可
			return IsNullGuardCondition(ctx, left, varName) ||
				IsNullGuardCondition(ctx, right, varName)
		}
		return false

	case "identifier":
		return ctx.GetSourceText(cond) == varName
	}

	return false
}

// WithinNullGuardCondition 判断调用是否位于对变量做空值检查的 if 条件内部
// 覆盖 if ((cls = FindClass(env, "x")) == NULL) 这种赋值与检查合一的写法
func WithinNullGuardCondition(ctx *AnalysisContext, node *sitter.Node, varName string) bool {
	for cur := node; cur != nil; cur = cur.Parent() {
		parent := cur.Parent()
		if parent == nil || parent.Type() != "if_statement" {
			continue
		}
		cond := parent.ChildByFieldName("condition")
		if cond != nil && cond.ID() == cur.ID() {
			return IsNullGuardCondition(ctx, cond, varName)
		}
	}
	return false
}

// IsNullGuardStatement 判断语句是否为对变量的空值检查 if 语句
func IsNullGuardStatement(ctx *AnalysisContext, stmt *sitter.Node, varName string) bool {
	if stmt == nil || stmt.Type() != "if_statement" {
		return false
	}
	return IsNullGuardCondition(ctx, stmt.ChildByFieldName("condition"), varName)
}

// InsideNullGuardThen 判断节点是否位于「if ($VAR == NULL) { ... }」的 then 分支内
// 该分支上引用尚未成功创建，提前 return/goto 属于可接受的处理形态
func InsideNullGuardThen(ctx *AnalysisContext, node *sitter.Node, varName string) bool {
	for cur := node; cur != nil; cur = cur.Parent() {
		parent := cur.Parent()
		if parent == nil || parent.Type() != "if_statement" {
			continue
		}
		consequence := parent.ChildByFieldName("consequence")
		if consequence == nil || consequence.ID() != cur.ID() {
			continue
		}
		if IsNullCondition(ctx, parent.ChildByFieldName("condition"), varName) {
			return true
		}
	}
	return false
}

// UsesIdentifier 判断语句/表达式子树是否引用了指定变量
func UsesIdentifier(ctx *AnalysisContext, subtree *sitter.Node, varName string) bool {
	if subtree == nil || varName == "" {
		return false
	}
	if subtree.Type() == "identifier" {
		return ctx.GetSourceText(subtree) == varName
	}
	for i := 0; i < int(subtree.ChildCount()); i++ {
		if UsesIdentifier(ctx, subtree.Child(i), varName) {
			return true
		}
	}
	return false
}

// stripParens 剥掉 parenthesized_expression 包装
func stripParens(node *sitter.Node) *sitter.Node {
	for node != nil && node.Type() == "parenthesized_expression" {
		node = node.NamedChild(0)
	}
	return node
}

func isIdent(ctx *AnalysisContext, node *sitter.Node, name string) bool {
	return node != nil && node.Type() == "identifier" && ctx.GetSourceText(node) == name
}

func isNullLiteral(ctx *AnalysisContext, node *sitter.Node) bool {
	if node == nil {
		return false
	}
	switch node.Type() {
	case "null", "nullptr":
		return true
	}
	text := ctx.GetSourceText(node)
	return text == "NULL" || text == "0" || text == "nullptr"
}
