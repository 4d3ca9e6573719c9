package core

import (
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnresolvedLabel 表示函数体内存在无法解析的 goto 目标
// 这是工具级诊断，不作为安全发现上报
var ErrUnresolvedLabel = errors.New("unresolved goto label")

// BlockType 表示基本块的类型
type BlockType int

const (
	BlockEntry BlockType = iota
	BlockExit
	BlockStatement
	BlockCondition
	BlockLoop
	BlockLabel
)

// CFGNode 表示控制流图中的一个节点
// 语句级粒度：每条语句 / 条件表达式一个节点，路径分析无需再切分
type CFGNode struct {
	ID           int
	Type         BlockType
	Stmt         *sitter.Node // 语句或条件表达式；合成节点为 nil
	Label        string       // BlockLabel 节点的标签名
	Predecessors []*CFGNode
	Successors   []*CFGNode
}

// CFG 表示单个函数的控制流图
type CFG struct {
	FuncName    string
	Entry       *CFGNode
	Exit        *CFGNode
	Nodes       []*CFGNode
	Unreachable []*CFGNode // 从入口不可达的节点，单独标记

	nodeByStmt map[uintptr]*CFGNode
}

// NodeForStmt 返回语句对应的 CFG 节点
func (cfg *CFG) NodeForStmt(stmt *sitter.Node) *CFGNode {
	if stmt == nil {
		return nil
	}
	return cfg.nodeByStmt[stmt.ID()]
}

// NodeForAST 返回包含 AST 节点的最内层 CFG 节点
// 先按所在语句查找，语句本身未建节点时（如 if 条件内的调用）沿祖先回溯
func (cfg *CFG) NodeForAST(node *sitter.Node) *CFGNode {
	for cur := node; cur != nil; cur = cur.Parent() {
		if n, ok := cfg.nodeByStmt[cur.ID()]; ok {
			return n
		}
	}
	return nil
}

// GetReachableNodes 获取从给定节点可达的所有节点
func (cfg *CFG) GetReachableNodes(start *CFGNode) []*CFGNode {
	visited := make(map[int]bool)
	worklist := []*CFGNode{start}
	var reachable []*CFGNode

	for len(worklist) > 0 {
		current := worklist[0]
		worklist = worklist[1:]

		if visited[current.ID] {
			continue
		}

		visited[current.ID] = true
		reachable = append(reachable, current)

		for _, successor := range current.Successors {
			if !visited[successor.ID] {
				worklist = append(worklist, successor)
			}
		}
	}

	return reachable
}

// pendingGoto 记录待解析的 goto 边
type pendingGoto struct {
	from  *CFGNode
	label string
	line  int
}

// cfgBuilder 用于构建 CFG 的辅助结构
type cfgBuilder struct {
	ctx     *AnalysisContext
	cfg     *CFG
	counter int

	labels          map[string]*CFGNode
	pendingGotos    []pendingGoto
	breakTargets    []*CFGNode
	continueTargets []*CFGNode
}

// BuildFunctionCFG 为单个函数定义构建控制流图
// goto 目标缺失时返回包装了 ErrUnresolvedLabel 的错误
func BuildFunctionCFG(ctx *AnalysisContext, funcDef *sitter.Node) (*CFG, error) {
	if funcDef == nil || funcDef.Type() != "function_definition" {
		return nil, fmt.Errorf("not a function definition")
	}

	body := funcDef.ChildByFieldName("body")
	if body == nil {
		return nil, fmt.Errorf("function has no body")
	}

	b := &cfgBuilder{
		ctx: ctx,
		cfg: &CFG{
			FuncName:   ctx.ExtractFunctionNameFromDef(funcDef),
			nodeByStmt: make(map[uintptr]*CFGNode),
		},
		labels: make(map[string]*CFGNode),
	}

	b.cfg.Entry = b.newNode(BlockEntry, nil, nil)
	b.cfg.Exit = b.newNode(BlockExit, nil, nil)

	last := b.buildStmt(body, b.cfg.Entry)
	if last != nil {
		b.addEdge(last, b.cfg.Exit)
	}

	if err := b.resolveGotos(); err != nil {
		return nil, err
	}

	b.markUnreachable()

	return b.cfg, nil
}

// newNode 创建新节点并从 from 连边（from 为 nil 表示前驱不可达）
func (b *cfgBuilder) newNode(t BlockType, stmt *sitter.Node, from *CFGNode) *CFGNode {
	node := &CFGNode{
		ID:   b.counter,
		Type: t,
		Stmt: stmt,
	}
	b.counter++
	b.cfg.Nodes = append(b.cfg.Nodes, node)

	if stmt != nil {
		b.cfg.nodeByStmt[stmt.ID()] = node
	}
	if from != nil {
		b.addEdge(from, node)
	}
	return node
}

// addEdge 添加 CFG 边
func (b *cfgBuilder) addEdge(from, to *CFGNode) {
	from.Successors = append(from.Successors, to)
	to.Predecessors = append(to.Predecessors, from)
}

// buildStmt 构建单条语句的 CFG，返回顺序出口节点
// 返回 nil 表示控制流不会落到下一条语句（return/goto/break/continue/exit）
func (b *cfgBuilder) buildStmt(node *sitter.Node, cur *CFGNode) *CFGNode {
	if node == nil {
		return cur
	}

	switch node.Type() {
	case "compound_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child == nil || child.Type() == "comment" {
				continue
			}
			cur = b.buildStmt(child, cur)
		}
		return cur

	case "if_statement":
		return b.buildIf(node, cur)

	case "while_statement":
		return b.buildWhile(node, cur)

	case "do_statement":
		return b.buildDoWhile(node, cur)

	case "for_statement":
		return b.buildFor(node, cur)

	case "switch_statement":
		return b.buildSwitch(node, cur)

	case "labeled_statement":
		return b.buildLabeled(node, cur)

	case "goto_statement":
		stmt := b.newNode(BlockStatement, node, cur)
		label := ""
		if l := node.ChildByFieldName("label"); l != nil {
			label = b.ctx.GetSourceText(l)
		}
		b.pendingGotos = append(b.pendingGotos, pendingGoto{from: stmt, label: label, line: Line(node)})
		return nil

	case "return_statement":
		stmt := b.newNode(BlockStatement, node, cur)
		b.addEdge(stmt, b.cfg.Exit)
		return nil

	case "break_statement":
		stmt := b.newNode(BlockStatement, node, cur)
		if n := len(b.breakTargets); n > 0 {
			b.addEdge(stmt, b.breakTargets[n-1])
		} else {
			b.addEdge(stmt, b.cfg.Exit)
		}
		return nil

	case "continue_statement":
		stmt := b.newNode(BlockStatement, node, cur)
		if n := len(b.continueTargets); n > 0 {
			b.addEdge(stmt, b.continueTargets[n-1])
		} else {
			b.addEdge(stmt, b.cfg.Exit)
		}
		return nil

	default:
		stmt := b.newNode(BlockStatement, node, cur)
		// exit()/abort() 之后控制流不再继续
		if ContainsTerminatorCall(b.ctx, node) {
			b.addEdge(stmt, b.cfg.Exit)
			return nil
		}
		return stmt
	}
}

// buildIf 构建 if 语句：条件节点产生 true/false 两条出边，在后继语句处汇合
func (b *cfgBuilder) buildIf(node *sitter.Node, cur *CFGNode) *CFGNode {
	cond := b.newNode(BlockCondition, node.ChildByFieldName("condition"), cur)

	var exits []*CFGNode

	thenExit := b.buildStmt(node.ChildByFieldName("consequence"), cond)
	if thenExit != nil {
		exits = append(exits, thenExit)
	}

	if alt := node.ChildByFieldName("alternative"); alt != nil {
		// cpp 语法下 alternative 是 else_clause 包装
		inner := alt
		if alt.Type() == "else_clause" {
			inner = alt.NamedChild(0)
		}
		elseExit := b.buildStmt(inner, cond)
		if elseExit != nil {
			exits = append(exits, elseExit)
		}
	} else {
		// 没有 else 分支，条件为假直接落到汇合点
		exits = append(exits, cond)
	}

	if len(exits) == 0 {
		return nil
	}

	merge := b.newNode(BlockStatement, nil, nil)
	for _, e := range exits {
		b.addEdge(e, merge)
	}
	return merge
}

// buildWhile 构建 while 循环：条件节点既是循环头也是回边目标
func (b *cfgBuilder) buildWhile(node *sitter.Node, cur *CFGNode) *CFGNode {
	cond := b.newNode(BlockCondition, node.ChildByFieldName("condition"), cur)
	exit := b.newNode(BlockStatement, nil, nil)
	b.addEdge(cond, exit)

	b.breakTargets = append(b.breakTargets, exit)
	b.continueTargets = append(b.continueTargets, cond)

	bodyExit := b.buildStmt(node.ChildByFieldName("body"), cond)
	if bodyExit != nil {
		b.addEdge(bodyExit, cond) // 回边
	}

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	return exit
}

// buildDoWhile 构建 do-while 循环：先进入循环体，条件在尾部
func (b *cfgBuilder) buildDoWhile(node *sitter.Node, cur *CFGNode) *CFGNode {
	header := b.newNode(BlockLoop, nil, cur)
	exit := b.newNode(BlockStatement, nil, nil)
	cond := b.newNode(BlockCondition, node.ChildByFieldName("condition"), nil)

	b.addEdge(cond, header) // 回边
	b.addEdge(cond, exit)

	b.breakTargets = append(b.breakTargets, exit)
	b.continueTargets = append(b.continueTargets, cond)

	bodyExit := b.buildStmt(node.ChildByFieldName("body"), header)
	if bodyExit != nil {
		b.addEdge(bodyExit, cond)
	}

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	return exit
}

// buildFor 构建 for 循环：initializer → condition → body → update → condition
func (b *cfgBuilder) buildFor(node *sitter.Node, cur *CFGNode) *CFGNode {
	if init := node.ChildByFieldName("initializer"); init != nil {
		cur = b.newNode(BlockStatement, init, cur)
	}

	condExpr := node.ChildByFieldName("condition")
	cond := b.newNode(BlockCondition, condExpr, cur)

	exit := b.newNode(BlockStatement, nil, nil)
	b.addEdge(cond, exit)

	var update *CFGNode
	if upd := node.ChildByFieldName("update"); upd != nil {
		update = b.newNode(BlockStatement, upd, nil)
		b.addEdge(update, cond) // 回边
	}

	continueTarget := cond
	if update != nil {
		continueTarget = update
	}

	b.breakTargets = append(b.breakTargets, exit)
	b.continueTargets = append(b.continueTargets, continueTarget)

	bodyExit := b.buildStmt(node.ChildByFieldName("body"), cond)
	if bodyExit != nil {
		b.addEdge(bodyExit, continueTarget)
	}

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	return exit
}

// buildSwitch 构建 switch 语句：header 向每个 case 连边，case 之间保留贯穿边
func (b *cfgBuilder) buildSwitch(node *sitter.Node, cur *CFGNode) *CFGNode {
	header := b.newNode(BlockCondition, node.ChildByFieldName("condition"), cur)
	exit := b.newNode(BlockStatement, nil, nil)

	b.breakTargets = append(b.breakTargets, exit)

	body := node.ChildByFieldName("body")
	hasDefault := false
	var prevExit *CFGNode

	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			child := body.NamedChild(i)
			if child == nil || child.Type() != "case_statement" {
				continue
			}
			if child.ChildByFieldName("value") == nil {
				hasDefault = true
			}

			caseEntry := b.newNode(BlockStatement, nil, nil)
			b.addEdge(header, caseEntry)
			if prevExit != nil {
				b.addEdge(prevExit, caseEntry) // fallthrough
			}

			caseExit := caseEntry
			for j := 0; j < int(child.NamedChildCount()); j++ {
				stmt := child.NamedChild(j)
				if stmt == nil || stmt.ID() == childValueID(child) {
					continue
				}
				caseExit = b.buildStmt(stmt, caseExit)
			}
			prevExit = caseExit
		}
	}

	if prevExit != nil {
		b.addEdge(prevExit, exit)
	}
	if !hasDefault {
		// 没有 default 时可能不进入任何 case
		b.addEdge(header, exit)
	}

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]

	return exit
}

// childValueID 返回 case 标签表达式的节点 ID（default 分支返回 0）
func childValueID(caseStmt *sitter.Node) uintptr {
	if v := caseStmt.ChildByFieldName("value"); v != nil {
		return v.ID()
	}
	return 0
}

// buildLabeled 构建带标签的语句：标签节点是 goto 的落点
func (b *cfgBuilder) buildLabeled(node *sitter.Node, cur *CFGNode) *CFGNode {
	name := ""
	if l := node.ChildByFieldName("label"); l != nil {
		name = b.ctx.GetSourceText(l)
	}

	labelNode := b.getOrCreateLabel(name, node)
	if cur != nil {
		b.addEdge(cur, labelNode)
	}

	// 标签后跟随的语句是最后一个命名子节点
	inner := node.NamedChild(int(node.NamedChildCount()) - 1)
	if inner != nil && inner.Type() != "statement_identifier" {
		return b.buildStmt(inner, labelNode)
	}
	return labelNode
}

// getOrCreateLabel 返回标签节点（goto 可能先于标签出现，节点按需预创建）
func (b *cfgBuilder) getOrCreateLabel(name string, stmt *sitter.Node) *CFGNode {
	if node, ok := b.labels[name]; ok {
		if node.Stmt == nil && stmt != nil {
			node.Stmt = stmt
			b.cfg.nodeByStmt[stmt.ID()] = node
		}
		return node
	}
	node := b.newNode(BlockLabel, stmt, nil)
	node.Label = name
	b.labels[name] = node
	return node
}

// resolveGotos 在函数体遍历完成后解析全部 goto 边
func (b *cfgBuilder) resolveGotos() error {
	for _, g := range b.pendingGotos {
		target, ok := b.labels[g.label]
		if !ok || target.Stmt == nil {
			return fmt.Errorf("%w: %q at line %d in %s", ErrUnresolvedLabel, g.label, g.line, b.cfg.FuncName)
		}
		b.addEdge(g.from, target)
	}
	return nil
}

// markUnreachable 标记从入口不可达的节点
func (b *cfgBuilder) markUnreachable() {
	reachable := make(map[int]bool)
	for _, n := range b.cfg.GetReachableNodes(b.cfg.Entry) {
		reachable[n.ID] = true
	}
	for _, n := range b.cfg.Nodes {
		if !reachable[n.ID] && n.Type != BlockExit {
			b.cfg.Unreachable = append(b.cfg.Unreachable, n)
		}
	}
}

// EnclosingStatement 返回包含节点的最内层语句
// （调用表达式 → 所在的 expression_statement / declaration / return_statement …）
func EnclosingStatement(node *sitter.Node) *sitter.Node {
	for cur := node; cur != nil; cur = cur.Parent() {
		parent := cur.Parent()
		if parent == nil {
			return nil
		}
		switch parent.Type() {
		case "compound_statement", "labeled_statement", "case_statement",
			"if_statement", "while_statement", "do_statement", "for_statement",
			"else_clause", "translation_unit":
			if isStatementNode(cur) {
				return cur
			}
		}
	}
	return nil
}

// isStatementNode 判断节点是否是语句级节点
func isStatementNode(node *sitter.Node) bool {
	if node == nil {
		return false
	}
	switch node.Type() {
	case "expression_statement", "declaration", "compound_statement",
		"return_statement", "break_statement", "continue_statement",
		"goto_statement", "if_statement", "for_statement", "while_statement",
		"do_statement", "switch_statement", "labeled_statement":
		return true
	}
	return false
}
