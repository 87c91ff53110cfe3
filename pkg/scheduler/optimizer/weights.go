// Package optimizer 提供排班优化算法
package optimizer

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// simplexLattice 生成单纯形格点权重向量
// m 个目标、H 等分，产出所有分量和为 1 且分量为 k/H 的向量，
// 共 C(H+m-1, m-1) 个，字典序排列保证可复现。
func simplexLattice(divisions, objectives int) [][]float64 {
	if objectives <= 0 {
		return nil
	}
	if objectives == 1 {
		return [][]float64{{1.0}}
	}
	if divisions <= 0 {
		divisions = 1
	}

	var result [][]float64
	current := make([]int, objectives)

	var compose func(pos, remaining int)
	compose = func(pos, remaining int) {
		if pos == objectives-1 {
			current[pos] = remaining
			w := make([]float64, objectives)
			for i, k := range current {
				w[i] = float64(k) / float64(divisions)
			}
			result = append(result, w)
			return
		}
		for k := 0; k <= remaining; k++ {
			current[pos] = k
			compose(pos+1, remaining-k)
		}
	}
	compose(0, divisions)
	return result
}

// nearestNeighbors 计算每个权重向量的 T 近邻（按欧氏距离，含自身）
// 距离相同按下标升序决出，结果对相同输入完全一致。
func nearestNeighbors(weights [][]float64, t int) [][]int {
	n := len(weights)
	if t <= 0 || t > n {
		t = n
	}

	neighborhoods := make([][]int, n)
	for i := range weights {
		type distIdx struct {
			dist float64
			idx  int
		}
		dists := make([]distIdx, n)
		for j := range weights {
			dists[j] = distIdx{floats.Distance(weights[i], weights[j], 2), j}
		}
		sort.Slice(dists, func(a, b int) bool {
			if dists[a].dist != dists[b].dist {
				return dists[a].dist < dists[b].dist
			}
			return dists[a].idx < dists[b].idx
		})

		neighborhood := make([]int, t)
		for k := 0; k < t; k++ {
			neighborhood[k] = dists[k].idx
		}
		neighborhoods[i] = neighborhood
	}
	return neighborhoods
}
