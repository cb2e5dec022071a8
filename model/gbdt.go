package model

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TreeNode 是 XGBoost JSON dump（dump_format="json"）中的一个节点。
// 叶子节点只有 Leaf；内部节点满足 value < SplitCondition 时走 Yes，否则走 No，缺失值走 Missing。
type TreeNode struct {
	NodeID         int         `json:"nodeid"`
	Split          string      `json:"split,omitempty"`
	SplitCondition float64     `json:"split_condition,omitempty"`
	Yes            int         `json:"yes,omitempty"`
	No             int         `json:"no,omitempty"`
	Missing        int         `json:"missing,omitempty"`
	Leaf           *float64    `json:"leaf,omitempty"`
	Children       []*TreeNode `json:"children,omitempty"`
}

// flatNode 是按 nodeid 展平后的节点
type flatNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	yes       int
	no        int
	missing   int
}

type flatTree []flatNode

// GBDTModel 是梯度提升树回归模型：y = BaseScore + sum(tree_i(x))
type GBDTModel struct {
	BaseScore float64
	trees     []flatTree
	width     int
}

// NewGBDTModel 把树展平并把分裂特征解析为向量下标。
// 分裂特征既可以是 schema 中的特征名，也可以是 XGBoost 默认的 f<下标>。
func NewGBDTModel(baseScore float64, trees []*TreeNode, columns []string) (*GBDTModel, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("gbdt model has no trees")
	}
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	m := &GBDTModel{BaseScore: baseScore, width: len(columns)}
	for t, root := range trees {
		ft, err := flatten(root, idx, len(columns))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", t, err)
		}
		m.trees = append(m.trees, ft)
	}
	return m, nil
}

func flatten(root *TreeNode, idx map[string]int, width int) (flatTree, error) {
	if root == nil {
		return nil, fmt.Errorf("empty tree")
	}
	nodes := map[int]*TreeNode{}
	maxID := 0
	stack := []*TreeNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			return nil, fmt.Errorf("nil node")
		}
		if _, dup := nodes[n.NodeID]; dup {
			return nil, fmt.Errorf("duplicate nodeid %d", n.NodeID)
		}
		if n.NodeID < 0 {
			return nil, fmt.Errorf("negative nodeid %d", n.NodeID)
		}
		nodes[n.NodeID] = n
		if n.NodeID > maxID {
			maxID = n.NodeID
		}
		stack = append(stack, n.Children...)
	}
	if root.NodeID != 0 {
		return nil, fmt.Errorf("root nodeid must be 0, got %d", root.NodeID)
	}

	ft := make(flatTree, maxID+1)
	for id, n := range nodes {
		if n.Leaf != nil {
			ft[id] = flatNode{leaf: true, value: *n.Leaf}
			continue
		}
		feat, ok := resolveFeature(n.Split, idx, width)
		if !ok {
			return nil, fmt.Errorf("node %d: unknown split feature %q", id, n.Split)
		}
		for _, child := range []int{n.Yes, n.No, n.Missing} {
			if _, ok := nodes[child]; !ok {
				return nil, fmt.Errorf("node %d: child %d not found", id, child)
			}
		}
		ft[id] = flatNode{feature: feat, threshold: n.SplitCondition, yes: n.Yes, no: n.No, missing: n.Missing}
	}
	// 保证遍历一定终止：子节点 id 必须大于父节点 id
	for id, n := range ft {
		if _, ok := nodes[id]; !ok || n.leaf {
			continue
		}
		if n.yes <= id || n.no <= id || n.missing <= id {
			return nil, fmt.Errorf("node %d: child id must be greater than parent", id)
		}
	}
	return ft, nil
}

func resolveFeature(name string, idx map[string]int, width int) (int, bool) {
	if i, ok := idx[name]; ok {
		return i, true
	}
	if strings.HasPrefix(name, "f") {
		if i, err := strconv.Atoi(name[1:]); err == nil && i >= 0 && i < width {
			return i, true
		}
	}
	return 0, false
}

func (t flatTree) eval(vec []float64) float64 {
	id := 0
	for {
		n := t[id]
		if n.leaf {
			return n.value
		}
		v := vec[n.feature]
		switch {
		case math.IsNaN(v):
			id = n.missing
		case v < n.threshold:
			id = n.yes
		default:
			id = n.no
		}
	}
}

func (m *GBDTModel) Name() string { return "gbdt" }

// Trees 返回树的数量
func (m *GBDTModel) Trees() int { return len(m.trees) }

func (m *GBDTModel) PredictBatch(ctx context.Context, vectors [][]float64) ([]float64, error) {
	out := make([]float64, len(vectors))
	for r, vec := range vectors {
		if len(vec) != m.width {
			return nil, fmt.Errorf("row %d: %d features, model expects %d", r, len(vec), m.width)
		}
		score := m.BaseScore
		for _, t := range m.trees {
			score += t.eval(vec)
		}
		out[r] = score
	}
	return out, nil
}
