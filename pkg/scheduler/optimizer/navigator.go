// Package optimizer 提供排班优化算法
package optimizer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Knee 前沿膝点：以前沿各维最小值为理想点，等权切比雪夫值最小的解
func Knee(frontier []*Solution) *Solution {
	if len(frontier) == 0 {
		return nil
	}
	m := len(frontier[0].Normalized)
	if m == 0 {
		return frontier[0]
	}

	ideal := make([]float64, m)
	for i := range ideal {
		ideal[i] = math.Inf(1)
	}
	for _, s := range frontier {
		if len(s.Normalized) != m {
			continue
		}
		for i, z := range s.Normalized {
			if z < ideal[i] {
				ideal[i] = z
			}
		}
	}

	weight := make([]float64, m)
	for i := range weight {
		weight[i] = 1.0 / float64(m)
	}

	tch := Tchebycheff{}
	best := frontier[0]
	bestVal := math.Inf(1)
	for _, s := range frontier {
		if len(s.Normalized) != m {
			continue
		}
		if v := tch.Scalarize(s.Normalized, weight, ideal); v < bestVal {
			bestVal = v
			best = s
		}
	}
	return best
}

// TradeOff 前沿解相对当前解的边际变化
type TradeOff struct {
	Solution *Solution
	Deltas   map[string]float64 // 目标名到归一化变化量，正值表示该目标变差
}

// NavigationResult 前沿导航结果
type NavigationResult struct {
	Selected  *Solution
	TradeOffs []TradeOff
}

// Navigator 在已求出的前沿上按偏好移动，不重新求解
type Navigator struct {
	objectives []*Objective
}

// NewNavigator 创建前沿导航器
func NewNavigator(objectives []*Objective) *Navigator {
	return &Navigator{objectives: objectives}
}

// Navigate 按偏好从当前解移动到前沿上的另一个解
// prefs 键为目标名：负值要求该目标严格改善，正值允许该目标变差且不计入扰动距离，
// 未提及的目标尽量保持不动。没有满足偏好的候选时停留在当前解。
func (n *Navigator) Navigate(frontier []*Solution, current *Solution, prefs map[string]float64) *NavigationResult {
	if len(frontier) == 0 {
		return &NavigationResult{Selected: current}
	}
	if current == nil {
		current = Knee(frontier)
	}

	position := make(map[string]int, len(n.objectives))
	for i, obj := range n.objectives {
		position[obj.Name] = i
	}

	free := make(map[int]bool, len(prefs))
	for name := range prefs {
		if p, ok := position[name]; ok {
			free[p] = true
		}
	}

	var candidates []*Solution
	for _, s := range frontier {
		if s.Hash() == current.Hash() || len(s.Normalized) != len(current.Normalized) {
			continue
		}
		ok := true
		for name, want := range prefs {
			p, exists := position[name]
			if !exists || p >= len(s.Normalized) {
				ok = false
				break
			}
			if want < 0 && s.Normalized[p] >= current.Normalized[p]-1e-12 {
				ok = false
				break
			}
		}
		if ok {
			candidates = append(candidates, s)
		}
	}

	selected := current
	if len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool {
			di := n.disturbance(candidates[i], current, free)
			dj := n.disturbance(candidates[j], current, free)
			if di != dj {
				return di < dj
			}
			return lessVector(candidates[i].Normalized, candidates[j].Normalized)
		})
		selected = candidates[0]
	}

	result := &NavigationResult{Selected: selected}
	for _, s := range frontier {
		if s.Hash() == selected.Hash() || len(s.Normalized) != len(selected.Normalized) {
			continue
		}
		deltas := make(map[string]float64, len(n.objectives))
		for i, obj := range n.objectives {
			if i >= len(s.Normalized) {
				break
			}
			deltas[obj.Name] = s.Normalized[i] - selected.Normalized[i]
		}
		result.TradeOffs = append(result.TradeOffs, TradeOff{Solution: s, Deltas: deltas})
	}
	sort.Slice(result.TradeOffs, func(i, j int) bool {
		return lessVector(result.TradeOffs[i].Solution.Normalized, result.TradeOffs[j].Solution.Normalized)
	})
	return result
}

// disturbance 偏好未涉及的目标维度上的欧氏距离
func (n *Navigator) disturbance(s, current *Solution, free map[int]bool) float64 {
	var a, b []float64
	for i := range s.Normalized {
		if free[i] || i >= len(current.Normalized) {
			continue
		}
		a = append(a, s.Normalized[i])
		b = append(b, current.Normalized[i])
	}
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, 2)
}

func lessVector(a, b []float64) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
