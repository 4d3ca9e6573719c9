package core

// PathQuery 描述一次路径覆盖查询
// 从触发点出发的每条路径都必须在 Deadline 命中之前命中 Satisfies；
// RequireAtExit 为真时，到达函数出口仍未满足同样记为违规
type PathQuery struct {
	Satisfies     func(*CFGNode) bool
	Deadline      func(*CFGNode) bool
	RequireAtExit bool
}

// PathViolation 表示一条违规路径及其失败位置
type PathViolation struct {
	Node   *CFGNode
	AtExit bool // 在出口处失败（资源未释放）而非在截止语句处失败
}

// pathState 是路径遍历的状态：所在节点 + 是否已满足要求
// 在状态图上做一次遍历等价于枚举所有「每个块至多访问一次」的路径，
// 既保证循环回边下的终止性，也保证结论精确
type pathState struct {
	node      int
	satisfied bool
}

// AllPathsSatisfy 判断从 trigger 之后的所有路径是否满足查询要求
// 返回 nil 表示全部路径满足；否则返回首个发现的违规
func AllPathsSatisfy(cfg *CFG, trigger *CFGNode, q PathQuery) *PathViolation {
	if cfg == nil || trigger == nil {
		return nil
	}

	visited := make(map[pathState]bool)
	var worklist []pathState

	push := func(n *CFGNode, satisfied bool) {
		s := pathState{node: n.ID, satisfied: satisfied}
		if !visited[s] {
			visited[s] = true
			worklist = append(worklist, s)
		}
	}

	nodeByID := make(map[int]*CFGNode, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		nodeByID[n.ID] = n
	}

	// 遍历从触发语句之后开始；触发语句本身不参与判定
	for _, succ := range trigger.Successors {
		push(succ, false)
	}

	for len(worklist) > 0 {
		s := worklist[0]
		worklist = worklist[1:]

		n := nodeByID[s.node]
		satisfied := s.satisfied

		if !satisfied && q.Satisfies != nil && q.Satisfies(n) {
			satisfied = true
		}

		if !satisfied && q.Deadline != nil && q.Deadline(n) {
			return &PathViolation{Node: n}
		}

		if n.Type == BlockExit {
			if !satisfied && q.RequireAtExit {
				return &PathViolation{Node: n, AtExit: true}
			}
			continue
		}

		for _, succ := range n.Successors {
			push(succ, satisfied)
		}
	}

	return nil
}
