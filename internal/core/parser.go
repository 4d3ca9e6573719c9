package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// ParserPool 管理 tree-sitter Parser 实例池
// 使用 sync.Pool 允许每个 goroutine 获取独立的 Parser，消除全局锁瓶颈
type ParserPool struct {
	cPool   sync.Pool
	cppPool sync.Pool
}

// NewParserPool 创建新的 Parser Pool
func NewParserPool() *ParserPool {
	return &ParserPool{
		cPool: sync.Pool{
			New: func() interface{} {
				parser := sitter.NewParser()
				parser.SetLanguage(c.GetLanguage())
				return parser
			},
		},
		cppPool: sync.Pool{
			New: func() interface{} {
				parser := sitter.NewParser()
				parser.SetLanguage(cpp.GetLanguage())
				return parser
			},
		},
	}
}

// globalParserPool 全局 Parser Pool 实例
var globalParserPool = NewParserPool()

// GetParser 从 Pool 获取对应语言的 Parser（无需锁）
func GetParser(language string) *sitter.Parser {
	if language == "cpp" {
		return globalParserPool.cppPool.Get().(*sitter.Parser)
	}
	return globalParserPool.cPool.Get().(*sitter.Parser)
}

// PutParser 将 Parser 归还到 Pool
func PutParser(language string, parser *sitter.Parser) {
	parser.Reset()
	if language == "cpp" {
		globalParserPool.cppPool.Put(parser)
	} else {
		globalParserPool.cPool.Put(parser)
	}
}

// queryCache 全局 Query 缓存（避免重复创建 Query 对象）
// key: language:queryPattern -> *sitter.Query
var queryCache sync.Map

// queryCreateMu 保护相同 Query 的并发创建
var queryCreateMu sync.Mutex

// GetQueryFromCache 从缓存获取或创建 Query
func GetQueryFromCache(queryPattern string, language string) (*sitter.Query, error) {
	key := language + ":" + queryPattern

	// 快速路径，无锁
	if cached, ok := queryCache.Load(key); ok {
		return cached.(*sitter.Query), nil
	}

	queryCreateMu.Lock()
	defer queryCreateMu.Unlock()

	// 双重检查：可能在等待锁期间已被其他 goroutine 创建
	if cached, ok := queryCache.Load(key); ok {
		return cached.(*sitter.Query), nil
	}

	var lang *sitter.Language
	if language == "c" {
		lang = c.GetLanguage()
	} else {
		lang = cpp.GetLanguage()
	}

	query, err := sitter.NewQuery([]byte(queryPattern), lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}

	queryCache.Store(key, query)
	return query, nil
}

// ParsedUnit 表示一个已解析的代码单元
type ParsedUnit struct {
	FilePath string
	Root     *sitter.Node
	Source   []byte
	Tree     *sitter.Tree
	Language string
}

// Copy 创建 ParsedUnit 的副本（克隆 Tree 以支持并发访问）
func (u *ParsedUnit) Copy() *ParsedUnit {
	treeCopy := u.Tree.Copy()
	return &ParsedUnit{
		FilePath: u.FilePath,
		Root:     treeCopy.RootNode(),
		Source:   u.Source, // 源码只读，可以共享
		Tree:     treeCopy,
		Language: u.Language,
	}
}

// QueryMatch 表示查询匹配的结果
type QueryMatch struct {
	Node     *sitter.Node
	Captures map[string]*sitter.Node
	Pattern  string
}

// AnalysisContext 提供单个文件分析所需的上下文
// 每个 worker 独占自己的 AnalysisContext，无需加锁
type AnalysisContext struct {
	Unit *ParsedUnit

	// 函数定义缓存：函数名 -> 定义节点
	funcDefinitionCache  map[string]*sitter.Node
	funcCacheInitialized bool
}

// NewAnalysisContext 创建新的分析上下文
func NewAnalysisContext(unit *ParsedUnit) *AnalysisContext {
	return &AnalysisContext{
		Unit: unit,
	}
}

// languageForExt 根据文件扩展名判断解析语言
func languageForExt(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".c":
		return "c", nil
	case ".cpp", ".cxx", ".cc", ".c++", ".hpp", ".hxx", ".hh", ".h++":
		return "cpp", nil
	case ".h":
		// JNI 头文件中的调用形态 C/C++ 相同，.h 统一按 C++ 解析
		return "cpp", nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// ParseFile 解析单个文件
func ParseFile(ctx context.Context, filePath string) (*ParsedUnit, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	language, err := languageForExt(filePath)
	if err != nil {
		return nil, err
	}

	return ParseBytes(ctx, filePath, source, language)
}

// ParseBytes 解析内存中的源码（测试与 ParseFile 共用）
func ParseBytes(ctx context.Context, filePath string, source []byte, language string) (*ParsedUnit, error) {
	parser := GetParser(language)
	defer PutParser(language, parser)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}

	root := tree.RootNode()

	// tree-sitter 对任何输入都会产出语法树，解析失败要看树的形态判定
	if !looksParsable(root) {
		return nil, fmt.Errorf("failed to parse file %s: source is not valid C", filePath)
	}

	return &ParsedUnit{
		FilePath: filePath,
		Root:     root,
		Source:   source,
		Tree:     tree,
		Language: language,
	}, nil
}

// looksParsable 判断语法树是否至少切分出了一个正常的顶层节点
// 垃圾输入通常被包成带 ERROR 子节点的 translation_unit，而不是 ERROR 根；
// 根节点本身是 ERROR，或所有顶层命名节点都是 ERROR，按解析失败处理
func looksParsable(root *sitter.Node) bool {
	if root.Type() == "ERROR" {
		return false
	}
	n := int(root.NamedChildCount())
	if n == 0 {
		return true
	}
	for i := 0; i < n; i++ {
		if root.NamedChild(i).Type() != "ERROR" {
			return true
		}
	}
	return false
}

// Query 执行查询并返回详细的匹配结果（使用 Query 缓存）
func (ctx *AnalysisContext) Query(queryPattern string) ([]QueryMatch, error) {
	query, err := GetQueryFromCache(queryPattern, ctx.Unit.Language)
	if err != nil {
		return nil, err
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()

	cursor.Exec(query, ctx.Unit.Root)

	var matches []QueryMatch
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}

		if len(match.Captures) == 0 {
			continue
		}

		qm := QueryMatch{
			Node:     match.Captures[0].Node,
			Captures: make(map[string]*sitter.Node),
			Pattern:  queryPattern,
		}

		for _, capture := range match.Captures {
			captureName := query.CaptureNameForId(capture.Index)
			qm.Captures[captureName] = capture.Node
		}

		matches = append(matches, qm)
	}

	return matches, nil
}

// QueryNodes 执行查询并返回所有捕获节点
func (ctx *AnalysisContext) QueryNodes(queryPattern string) ([]*sitter.Node, error) {
	matches, err := ctx.Query(queryPattern)
	if err != nil {
		return nil, err
	}

	var nodes []*sitter.Node
	for _, m := range matches {
		nodes = append(nodes, m.Node)
	}
	return nodes, nil
}

// GetSourceText 获取节点的源代码文本
func (ctx *AnalysisContext) GetSourceText(node *sitter.Node) string {
	if node == nil {
		return ""
	}

	start := node.StartByte()
	end := node.EndByte()

	// 边界检查，防止越界
	if end > uint32(len(ctx.Unit.Source)) {
		end = uint32(len(ctx.Unit.Source))
	}
	if start > end {
		start = 0
	}

	if start >= uint32(len(ctx.Unit.Source)) {
		return ""
	}

	return string(ctx.Unit.Source[start:end])
}

// FindFunctionDefinitions 查找文件中所有函数定义节点
func (ctx *AnalysisContext) FindFunctionDefinitions() ([]*sitter.Node, error) {
	return ctx.QueryNodes(`(function_definition) @def`)
}

// FindFunctionDefinition 按函数名查找定义节点（使用缓存）
func (ctx *AnalysisContext) FindFunctionDefinition(funcName string) *sitter.Node {
	if funcName == "" {
		return nil
	}

	ctx.ensureFunctionCache()

	if ctx.funcDefinitionCache != nil {
		return ctx.funcDefinitionCache[funcName]
	}

	return nil
}

// ensureFunctionCache 初始化函数定义缓存（只执行一次）
func (ctx *AnalysisContext) ensureFunctionCache() {
	if ctx.funcCacheInitialized {
		return
	}

	matches, err := ctx.FindFunctionDefinitions()
	if err != nil || len(matches) == 0 {
		ctx.funcCacheInitialized = true
		return
	}

	ctx.funcDefinitionCache = make(map[string]*sitter.Node)

	for _, match := range matches {
		name := ctx.ExtractFunctionNameFromDef(match)
		if name != "" {
			ctx.funcDefinitionCache[name] = match
		}
	}

	ctx.funcCacheInitialized = true
}

// ExtractFunctionNameFromDef 从函数定义节点中提取函数名
// 处理多种情况：
// 1. jint func() - declarator 是 function_declarator
// 2. jobject* func() - declarator 是 pointer_declarator，其子节点是 function_declarator
func (ctx *AnalysisContext) ExtractFunctionNameFromDef(funcDef *sitter.Node) string {
	if funcDef == nil || funcDef.Type() != "function_definition" {
		return ""
	}

	declarator := funcDef.ChildByFieldName("declarator")
	if declarator == nil {
		return ""
	}

	return ctx.findFunctionDeclaratorName(declarator)
}

// findFunctionDeclaratorName 递归查找 function_declarator 并提取函数名
func (ctx *AnalysisContext) findFunctionDeclaratorName(node *sitter.Node) string {
	if node == nil {
		return ""
	}

	if node.Type() == "function_declarator" {
		identifier := node.ChildByFieldName("declarator")
		if identifier != nil && identifier.Type() == "identifier" {
			return ctx.GetSourceText(identifier)
		}
		return ""
	}

	if node.Type() == "pointer_declarator" || node.Type() == "array_declarator" {
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "function_declarator" || child.Type() == "pointer_declarator" {
				return ctx.findFunctionDeclaratorName(child)
			}
		}
	}

	return ""
}

// GetContainingFunction 获取节点所在的函数定义节点
func (ctx *AnalysisContext) GetContainingFunction(node *sitter.Node) *sitter.Node {
	current := node
	for current != nil {
		if current.Type() == "function_definition" {
			return current
		}
		current = current.Parent()
	}
	return nil
}

// GetContainingFunctionName 获取节点所在的函数名
func (ctx *AnalysisContext) GetContainingFunctionName(node *sitter.Node) string {
	funcDef := ctx.GetContainingFunction(node)
	if funcDef == nil {
		return ""
	}
	return ctx.ExtractFunctionNameFromDef(funcDef)
}

// Line 返回节点的 1 基行号
func Line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// Column 返回节点的 1 基列号
func Column(node *sitter.Node) int {
	return int(node.StartPoint().Column) + 1
}
