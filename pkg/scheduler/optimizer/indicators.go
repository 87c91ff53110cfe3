// Package optimizer 提供排班优化算法
package optimizer

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Hypervolume2D 二维超体积精确值
// 归一化最小化空间，参考点须劣于全部前沿点，越大代表前沿越好。
func Hypervolume2D(front []*Solution, ref []float64) float64 {
	if len(ref) != 2 {
		return 0
	}

	type point struct{ x, y float64 }
	var pts []point
	for _, s := range front {
		if len(s.Normalized) != 2 {
			continue
		}
		x, y := s.Normalized[0], s.Normalized[1]
		if x >= ref[0] || y >= ref[1] {
			continue
		}
		pts = append(pts, point{x, y})
	}
	if len(pts) == 0 {
		return 0
	}

	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})

	// 扫描线只保留非支配点，x 递增时 y 必须严格下降
	kept := pts[:1]
	for _, p := range pts[1:] {
		if p.y >= kept[len(kept)-1].y {
			continue
		}
		kept = append(kept, p)
	}

	hv := 0.0
	for i, p := range kept {
		nextX := ref[0]
		if i+1 < len(kept) {
			nextX = kept[i+1].x
		}
		hv += (nextX - p.x) * (ref[1] - p.y)
	}
	return hv
}

// HypervolumeMC 蒙特卡洛估计超体积，适用于三个及以上目标
// 在原点与参考点围成的盒内均匀采样，统计被前沿支配的比例，种子固定则结果可复现。
func HypervolumeMC(front []*Solution, ref []float64, samples int, seed int64) float64 {
	m := len(ref)
	if m == 0 || samples <= 0 {
		return 0
	}

	var points [][]float64
	for _, s := range front {
		if len(s.Normalized) != m {
			continue
		}
		points = append(points, s.Normalized)
	}
	if len(points) == 0 {
		return 0
	}

	rng := rand.New(rand.NewSource(seed))
	sample := make([]float64, m)
	hits := 0
	for i := 0; i < samples; i++ {
		for d := 0; d < m; d++ {
			sample[d] = rng.Float64() * ref[d]
		}
		for _, p := range points {
			dominated := true
			for d := 0; d < m; d++ {
				if p[d] > sample[d] {
					dominated = false
					break
				}
			}
			if dominated {
				hits++
				break
			}
		}
	}

	volume := 1.0
	for d := 0; d < m; d++ {
		volume *= ref[d]
	}
	return volume * float64(hits) / float64(samples)
}

// GenerationalDistance 前沿到参考集的平均最近距离，越小越贴近参考前沿
func GenerationalDistance(front []*Solution, reference [][]float64) float64 {
	if len(front) == 0 || len(reference) == 0 {
		return 0
	}

	total := 0.0
	count := 0
	for _, s := range front {
		if len(s.Normalized) == 0 {
			continue
		}
		best := math.Inf(1)
		for _, r := range reference {
			if len(r) != len(s.Normalized) {
				continue
			}
			if d := floats.Distance(s.Normalized, r, 2); d < best {
				best = d
			}
		}
		if !math.IsInf(best, 1) {
			total += best
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// Spread 前沿分布均匀度
// 按第一目标排序后取相邻点间距，返回间距的平均绝对偏差与均值之比，0 为完全均匀。
func Spread(front []*Solution) float64 {
	var pts [][]float64
	for _, s := range front {
		if len(s.Normalized) > 0 {
			pts = append(pts, s.Normalized)
		}
	}
	if len(pts) < 3 {
		return 0
	}

	sort.Slice(pts, func(i, j int) bool {
		for d := range pts[i] {
			if d >= len(pts[j]) {
				break
			}
			if pts[i][d] != pts[j][d] {
				return pts[i][d] < pts[j][d]
			}
		}
		return false
	})

	dists := make([]float64, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		if len(pts[i]) != len(pts[i-1]) {
			continue
		}
		dists = append(dists, floats.Distance(pts[i-1], pts[i], 2))
	}
	if len(dists) == 0 {
		return 0
	}

	mean := floats.Sum(dists) / float64(len(dists))
	if mean <= 0 {
		return 0
	}
	deviation := 0.0
	for _, d := range dists {
		deviation += math.Abs(d - mean)
	}
	return deviation / (float64(len(dists)) * mean)
}
