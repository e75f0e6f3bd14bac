package department

import (
	"sort"
	"strings"
)

// Node é um departamento com seus filhos visíveis.
type Node struct {
	Department
	Depth    int     `json:"depth"`
	Children []*Node `json:"children"`
}

// BuildTree monta a hierarquia a partir da lista plana. Departamentos cujo pai
// não está na lista viram raízes; ciclos nos dados são quebrados no primeiro nó
// revisitado.
func BuildTree(depts []Department) []*Node {
	nodes := make(map[int64]*Node, len(depts))
	for _, d := range depts {
		nodes[d.ID] = &Node{Department: d, Children: []*Node{}}
	}

	var roots []*Node
	for _, d := range depts {
		node := nodes[d.ID]
		if d.ParentID != nil {
			if parent, ok := nodes[*d.ParentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	visited := make(map[int64]bool, len(nodes))
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		visited[n.ID] = true
		n.Depth = depth
		kept := n.Children[:0]
		for _, child := range n.Children {
			if visited[child.ID] {
				continue
			}
			kept = append(kept, child)
		}
		n.Children = kept
		sortNodes(n.Children)
		for _, child := range n.Children {
			walk(child, depth+1)
		}
	}

	sortNodes(roots)
	for _, root := range roots {
		walk(root, 0)
	}

	// nós presos em ciclo nunca são alcançados a partir de uma raiz
	var stranded []*Node
	for _, d := range depts {
		if !visited[d.ID] {
			stranded = append(stranded, nodes[d.ID])
		}
	}
	sortNodes(stranded)
	for _, n := range stranded {
		if visited[n.ID] {
			continue
		}
		walk(n, 0)
		roots = append(roots, n)
	}

	if roots == nil {
		roots = []*Node{}
	}
	return roots
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := strings.ToLower(nodes[i].Title), strings.ToLower(nodes[j].Title)
		if a != b {
			return a < b
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// WouldCycle indica se mover id para baixo de newParent criaria um ciclo.
func WouldCycle(depts []Department, id, newParent int64) bool {
	parents := make(map[int64]*int64, len(depts))
	for _, d := range depts {
		parents[d.ID] = d.ParentID
	}

	seen := map[int64]bool{}
	current := &newParent
	for current != nil {
		if *current == id {
			return true
		}
		if seen[*current] {
			return true
		}
		seen[*current] = true
		current = parents[*current]
	}
	return false
}
