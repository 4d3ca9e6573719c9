package core

import (
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Severity 表示发现的严重级别
type Severity string

const (
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
	SeverityAdvisory Severity = "ADVISORY"
)

// Finding 表示一条确认的规则违规，创建后不可变
type Finding struct {
	RuleID   string            `json:"rule_id"`
	File     string            `json:"file"`
	Line     int               `json:"line"`
	Column   int               `json:"column"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Bindings map[string]string `json:"bindings,omitempty"`
}

// DiagnosticKind 区分工具级诊断的类别
type DiagnosticKind string

const (
	DiagParseError          DiagnosticKind = "parse-error"
	DiagUnresolvedControl   DiagnosticKind = "unresolved-control-flow"
	DiagRuleEvaluationError DiagnosticKind = "rule-evaluation-error"
	DiagUnsupportedFile     DiagnosticKind = "unsupported-file"
)

// Diagnostic 表示分析器自身的问题（解析失败、控制流无法解析等）
// 与 Finding 分开上报，不参与退出码判定
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	File    string         `json:"file"`
	Line    int            `json:"line,omitempty"`
	Message string         `json:"message"`
}

// RuleKind 表示规则的求值方式
type RuleKind int

const (
	// KindRequireOnAllPaths 触发调用之后的所有路径都必须出现伴随模式
	KindRequireOnAllPaths RuleKind = iota
	// KindGuardBeforeUse 赋值触发，绑定变量首次使用之前必须有空值检查
	KindGuardBeforeUse
	// KindLoopExceptionCheck 循环体内的 JNI 调用要求所在函数存在异常检查
	KindLoopExceptionCheck
	// KindLoopInvariantCall 循环不变调用建议提升到循环外
	KindLoopInvariantCall
)

// Rule 是一条声明式规则：触发模式 + 伴随要求 + 严重级别 + 消息模板
// 规则实例是不可变的值描述，由统一的求值器执行
type Rule struct {
	ID       string
	Kind     RuleKind
	Severity Severity
	Message  string // 模板，可引用 $VAR、$JNI_FUNC、$TYPE 等元变量

	Trigger *Pattern

	// RequireAssignment 为真时只有结果被保存的调用才构成触发，
	// 变量名绑定到 $VAR
	RequireAssignment bool

	// Companions 是满足要求的伴随调用形态（pattern-either 语义），
	// 匹配时与触发绑定合一
	Companions []*Pattern

	// SatisfyOnExceptionCheck 为真时任何异常检测调用都满足要求
	SatisfyOnExceptionCheck bool

	// AllowNullGuardExit 为真时，null-guard 分支内的提前终止视作满足
	// （该路径上引用未创建成功，无需释放）
	AllowNullGuardExit bool

	// UseIsDeadline 为真时，$VAR 的首次使用构成截止点
	UseIsDeadline bool

	// RequireAtExit 为真时，到达函数出口仍未满足记为违规
	RequireAtExit bool

	// NotInside 触发点位于这些模式的结构内时被丢弃（pattern-not-inside）
	NotInside []*Pattern

	// InvariantCallees 是 KindLoopInvariantCall 检查的可提升调用集合
	InvariantCallees []string

	// LoopCallees 是 KindLoopExceptionCheck 视作 JNI 调用的封闭集合
	LoopCallees []string
}

// RuleEngine 对单个文件依次执行一组规则
type RuleEngine struct {
	rules []Rule
}

// NewRuleEngine 创建规则引擎
func NewRuleEngine(rules []Rule) *RuleEngine {
	return &RuleEngine{rules: rules}
}

// WithEnabled 返回仅保留指定规则 ID 的引擎；ids 为空保留全部
func (e *RuleEngine) WithEnabled(ids []string) *RuleEngine {
	if len(ids) == 0 {
		return e
	}
	enabled := make(map[string]bool, len(ids))
	for _, id := range ids {
		enabled[id] = true
	}
	var kept []Rule
	for _, r := range e.rules {
		if enabled[r.ID] {
			kept = append(kept, r)
		}
	}
	return &RuleEngine{rules: kept}
}

// Rules 返回引擎当前装载的规则
func (e *RuleEngine) Rules() []Rule {
	return e.rules
}

// Run 对一个解析单元执行全部规则
// 规则彼此独立且与顺序无关；任何单条规则的失败只影响该规则在该函数上的求值
func (e *RuleEngine) Run(ctx *AnalysisContext) ([]Finding, []Diagnostic) {
	var findings []Finding
	var diags []Diagnostic

	funcs, err := ctx.FindFunctionDefinitions()
	if err != nil {
		diags = append(diags, Diagnostic{
			Kind:    DiagRuleEvaluationError,
			File:    ctx.Unit.FilePath,
			Message: fmt.Sprintf("function discovery failed: %v", err),
		})
		return findings, diags
	}

	for _, funcDef := range funcs {
		fa := newFunctionAnalysis(ctx, funcDef)
		for i := range e.rules {
			rule := &e.rules[i]
			fs, ds := evaluateRuleSafely(fa, rule)
			findings = append(findings, fs...)
			diags = append(diags, ds...)
		}
		// CFG 无法解析时每个函数只上报一次诊断
		if fa.cfgDiag != nil {
			diags = append(diags, *fa.cfgDiag)
		}
	}

	SortFindings(findings)
	return findings, diags
}

// evaluateRuleSafely 执行单条规则并把内部不变量破坏转化为诊断
// 引擎缺陷不允许中断其余规则和其余函数的分析
func evaluateRuleSafely(fa *functionAnalysis, rule *Rule) (findings []Finding, diags []Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			diags = append(diags, Diagnostic{
				Kind:    DiagRuleEvaluationError,
				File:    fa.ctx.Unit.FilePath,
				Line:    Line(fa.funcDef),
				Message: fmt.Sprintf("rule %s panicked in %s: %v", rule.ID, fa.funcName, r),
			})
		}
	}()

	switch rule.Kind {
	case KindRequireOnAllPaths:
		return fa.evalRequireOnAllPaths(rule)
	case KindGuardBeforeUse:
		return fa.evalGuardBeforeUse(rule)
	case KindLoopExceptionCheck:
		return fa.evalLoopExceptionCheck(rule), nil
	case KindLoopInvariantCall:
		return fa.evalLoopInvariantCall(rule), nil
	default:
		return nil, []Diagnostic{{
			Kind:    DiagRuleEvaluationError,
			File:    fa.ctx.Unit.FilePath,
			Message: fmt.Sprintf("rule %s has unknown kind %d", rule.ID, rule.Kind),
		}}
	}
}

// functionAnalysis 承载单个函数的分析状态；CFG 按需构建、函数分析结束即丢弃
type functionAnalysis struct {
	ctx      *AnalysisContext
	funcDef  *sitter.Node
	funcName string

	cfg      *CFG
	cfgErr   error
	cfgBuilt bool
	cfgDiag  *Diagnostic
}

func newFunctionAnalysis(ctx *AnalysisContext, funcDef *sitter.Node) *functionAnalysis {
	return &functionAnalysis{
		ctx:      ctx,
		funcDef:  funcDef,
		funcName: ctx.ExtractFunctionNameFromDef(funcDef),
	}
}

// CFG 懒构建函数 CFG；失败时记录一次性诊断
// 路径敏感规则在 CFG 不可用时跳过该函数，纯语法规则不受影响
func (fa *functionAnalysis) CFG() *CFG {
	if !fa.cfgBuilt {
		fa.cfgBuilt = true
		fa.cfg, fa.cfgErr = BuildFunctionCFG(fa.ctx, fa.funcDef)
		if fa.cfgErr != nil {
			fa.cfg = nil
			fa.cfgDiag = &Diagnostic{
				Kind:    DiagUnresolvedControl,
				File:    fa.ctx.Unit.FilePath,
				Line:    Line(fa.funcDef),
				Message: fmt.Sprintf("skipping path-sensitive rules for %s: %v", fa.funcName, fa.cfgErr),
			}
		}
	}
	return fa.cfg
}

// triggerSites 收集触发模式在函数体内的全部匹配点
func (fa *functionAnalysis) triggerSites(rule *Rule) []triggerSite {
	body := fa.funcDef.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	var sites []triggerSite
	walkCalls(body, func(call *sitter.Node) {
		b, ok := rule.Trigger.MatchCall(fa.ctx, call, nil)
		if !ok {
			return
		}

		varName := ""
		if rule.RequireAssignment || rule.UseIsDeadline {
			varName = AssignedVariable(fa.ctx, call)
			if varName == "" && rule.RequireAssignment {
				return
			}
			// UseIsDeadline 的规则不要求赋值；结果被保存时才有首次使用截止点
			if varName != "" && !b.Bind("$VAR", varName) {
				return
			}
		}

		if len(rule.NotInside) > 0 && Inside(fa.ctx, call, rule.NotInside, b) {
			return
		}

		sites = append(sites, triggerSite{call: call, bindings: b, varName: varName})
	})
	return sites
}

// triggerSite 表示一个触发点及其绑定
type triggerSite struct {
	call     *sitter.Node
	bindings Bindings
	varName  string
}

// evalRequireOnAllPaths 求值「所有路径须出现伴随模式」类规则
func (fa *functionAnalysis) evalRequireOnAllPaths(rule *Rule) ([]Finding, []Diagnostic) {
	sites := fa.triggerSites(rule)
	if len(sites) == 0 {
		return nil, nil
	}

	cfg := fa.CFG()
	if cfg == nil {
		return nil, nil
	}

	var findings []Finding
	for _, site := range sites {
		trigger := cfg.NodeForAST(site.call)
		if trigger == nil {
			return nil, []Diagnostic{{
				Kind:    DiagRuleEvaluationError,
				File:    fa.ctx.Unit.FilePath,
				Line:    Line(site.call),
				Message: fmt.Sprintf("rule %s: trigger statement not in CFG of %s", rule.ID, fa.funcName),
			}}
		}

		site := site
		query := PathQuery{
			RequireAtExit: rule.RequireAtExit,
			Satisfies: func(n *CFGNode) bool {
				if n.Stmt == nil {
					return false
				}
				if rule.SatisfyOnExceptionCheck && ContainsExceptionCheck(fa.ctx, n.Stmt) {
					return true
				}
				if len(rule.Companions) > 0 && ContainsMatch(fa.ctx, rule.Companions, n.Stmt, site.bindings) {
					return true
				}
				if rule.AllowNullGuardExit && site.varName != "" &&
					IsTerminatorStatement(fa.ctx, n.Stmt) &&
					InsideNullGuardThen(fa.ctx, n.Stmt, site.varName) {
					return true
				}
				return false
			},
		}
		if rule.UseIsDeadline && site.varName != "" {
			query.Deadline = func(n *CFGNode) bool {
				return n.Stmt != nil && UsesIdentifier(fa.ctx, n.Stmt, site.varName)
			}
		}

		if v := AllPathsSatisfy(cfg, trigger, query); v != nil {
			findings = append(findings, fa.newFinding(rule, site))
		}
	}
	return findings, nil
}

// evalGuardBeforeUse 求值「首次使用前须有空值检查」类规则
func (fa *functionAnalysis) evalGuardBeforeUse(rule *Rule) ([]Finding, []Diagnostic) {
	sites := fa.triggerSites(rule)
	if len(sites) == 0 {
		return nil, nil
	}

	cfg := fa.CFG()
	if cfg == nil {
		return nil, nil
	}

	var findings []Finding
	for _, site := range sites {
		// 赋值与检查写在同一个 if 条件里的情况天然满足
		if WithinNullGuardCondition(fa.ctx, site.call, site.varName) {
			continue
		}

		trigger := cfg.NodeForAST(site.call)
		if trigger == nil {
			return nil, []Diagnostic{{
				Kind:    DiagRuleEvaluationError,
				File:    fa.ctx.Unit.FilePath,
				Line:    Line(site.call),
				Message: fmt.Sprintf("rule %s: trigger statement not in CFG of %s", rule.ID, fa.funcName),
			}}
		}

		site := site
		query := PathQuery{
			Satisfies: func(n *CFGNode) bool {
				if n.Stmt == nil {
					return false
				}
				if n.Type == BlockCondition {
					return IsNullGuardCondition(fa.ctx, n.Stmt, site.varName)
				}
				return IsNullGuardStatement(fa.ctx, n.Stmt, site.varName)
			},
			Deadline: func(n *CFGNode) bool {
				return n.Stmt != nil && UsesIdentifier(fa.ctx, n.Stmt, site.varName)
			},
		}

		if v := AllPathsSatisfy(cfg, trigger, query); v != nil {
			findings = append(findings, fa.newFinding(rule, site))
		}
	}
	return findings, nil
}

// evalLoopExceptionCheck 循环体内 JNI 调用、所在函数无任何异常检查 → ERROR
func (fa *functionAnalysis) evalLoopExceptionCheck(rule *Rule) []Finding {
	if ContainsExceptionCheck(fa.ctx, fa.funcDef) {
		return nil
	}

	var findings []Finding
	for _, loop := range fa.loops() {
		body := loop.ChildByFieldName("body")
		if body == nil {
			continue
		}
		walkCalls(body, func(call *sitter.Node) {
			// 嵌套循环时调用只归属最内层循环，避免同一调用点重复上报
			if !isNearestLoop(call, loop) {
				return
			}
			shape, ok := ExtractCall(fa.ctx, call)
			if !ok || !containsString(rule.LoopCallees, shape.Callee) {
				return
			}
			findings = append(findings, fa.newFinding(rule, triggerSite{
				call:     call,
				bindings: Bindings{"$JNI_FUNC": shape.Callee},
			}))
		})
	}
	return findings
}

// evalLoopInvariantCall 循环内参数不随迭代变化的查找类调用 → ADVISORY
func (fa *functionAnalysis) evalLoopInvariantCall(rule *Rule) []Finding {
	var findings []Finding
	for _, loop := range fa.loops() {
		body := loop.ChildByFieldName("body")
		if body == nil {
			continue
		}

		variant := fa.loopVariantIdentifiers(loop)

		walkCalls(body, func(call *sitter.Node) {
			if !isNearestLoop(call, loop) {
				return
			}
			shape, ok := ExtractCall(fa.ctx, call)
			if !ok || !containsString(rule.InvariantCallees, shape.Callee) {
				return
			}
			// 任一实参依赖循环变量即不可提升
			for _, arg := range shape.Args {
				if referencesAny(fa.ctx, arg, variant) {
					return
				}
			}
			findings = append(findings, fa.newFinding(rule, triggerSite{
				call:     call,
				bindings: Bindings{"$JNI_FUNC": shape.Callee},
			}))
		})
	}
	return findings
}

// isNearestLoop 判断 loop 是否是调用点最近的外层循环
// tree-sitter 节点指针不保证稳定，按字节区间比较
func isNearestLoop(call *sitter.Node, loop *sitter.Node) bool {
	for cur := call.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "for_statement", "while_statement", "do_statement":
			return cur.StartByte() == loop.StartByte() && cur.EndByte() == loop.EndByte()
		}
	}
	return false
}

// loops 返回函数体内的全部循环语句节点
func (fa *functionAnalysis) loops() []*sitter.Node {
	var loops []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		switch node.Type() {
		case "for_statement", "while_statement", "do_statement":
			loops = append(loops, node)
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(fa.funcDef.ChildByFieldName("body"))
	return loops
}

// loopVariantIdentifiers 收集在循环内被赋值/自增的标识符（近似的迭代相关集合）
func (fa *functionAnalysis) loopVariantIdentifiers(loop *sitter.Node) map[string]bool {
	variant := make(map[string]bool)

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		switch node.Type() {
		case "assignment_expression":
			if left := stripParens(node.ChildByFieldName("left")); left != nil && left.Type() == "identifier" {
				variant[fa.ctx.GetSourceText(left)] = true
			}
		case "update_expression":
			if arg := stripParens(node.ChildByFieldName("argument")); arg != nil && arg.Type() == "identifier" {
				variant[fa.ctx.GetSourceText(arg)] = true
			}
		case "init_declarator":
			if id := declaredIdentifier(fa.ctx, node.ChildByFieldName("declarator")); id != "" {
				variant[id] = true
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(loop)
	return variant
}

// referencesAny 判断子树是否引用集合中的任一标识符
func referencesAny(ctx *AnalysisContext, subtree *sitter.Node, names map[string]bool) bool {
	if subtree == nil || len(names) == 0 {
		return false
	}
	if subtree.Type() == "identifier" && names[ctx.GetSourceText(subtree)] {
		return true
	}
	for i := 0; i < int(subtree.ChildCount()); i++ {
		if referencesAny(ctx, subtree.Child(i), names) {
			return true
		}
	}
	return false
}

// newFinding 在触发点处创建发现
func (fa *functionAnalysis) newFinding(rule *Rule, site triggerSite) Finding {
	return Finding{
		RuleID:   rule.ID,
		File:     fa.ctx.Unit.FilePath,
		Line:     Line(site.call),
		Column:   Column(site.call),
		Severity: rule.Severity,
		Message:  RenderMessage(rule.Message, site.bindings),
		Bindings: site.bindings,
	}
}

// RenderMessage 用绑定值替换消息模板中的元变量
func RenderMessage(template string, b Bindings) string {
	if len(b) == 0 {
		return template
	}

	// 先替换长名称，避免 $VAR 吃掉 $VARIANT 之类的前缀
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	out := template
	for _, k := range keys {
		out = strings.ReplaceAll(out, k, b[k])
	}
	return out
}

// SortFindings 按文件、行号、规则 ID 排序，保证并行扫描结果确定有序
func SortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Column < b.Column
	})
}
