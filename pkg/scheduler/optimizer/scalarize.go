// Package optimizer 提供排班优化算法
package optimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Scalarizer 把归一化目标向量折算成单一适应度（越小越优）
type Scalarizer interface {
	Name() string
	Scalarize(normalized, weight, ideal []float64) float64
}

// WeightedSum 加权和标量化
type WeightedSum struct{}

// Name 返回标量化方法名称
func (WeightedSum) Name() string { return "weighted_sum" }

// Scalarize 计算加权和
func (WeightedSum) Scalarize(normalized, weight, _ []float64) float64 {
	var sum float64
	for i := range normalized {
		sum += weight[i] * normalized[i]
	}
	return sum
}

// Tchebycheff 切比雪夫标量化（以理想点为参照）
type Tchebycheff struct{}

// Name 返回标量化方法名称
func (Tchebycheff) Name() string { return "tchebycheff" }

// Scalarize 计算加权切比雪夫距离
// 权重分量为零时用极小值代替，避免该目标完全失去约束力。
func (Tchebycheff) Scalarize(normalized, weight, ideal []float64) float64 {
	var worst float64
	for i := range normalized {
		w := weight[i]
		if w <= 0 {
			w = 1e-6
		}
		d := w * math.Abs(normalized[i]-idealAt(ideal, i))
		if d > worst {
			worst = d
		}
	}
	return worst
}

// PBI 罚分边界交叉标量化
type PBI struct {
	Theta float64 // 偏离罚系数，常用 5.0
}

// Name 返回标量化方法名称
func (p PBI) Name() string { return "pbi" }

// Scalarize 计算沿权重方向的投影距离加偏离罚分
func (p PBI) Scalarize(normalized, weight, ideal []float64) float64 {
	norm := floats.Norm(weight, 2)
	if norm == 0 {
		return WeightedSum{}.Scalarize(normalized, weight, ideal)
	}

	diff := make([]float64, len(normalized))
	for i := range normalized {
		diff[i] = normalized[i] - idealAt(ideal, i)
	}

	d1 := math.Abs(floats.Dot(diff, weight)) / norm

	perp := make([]float64, len(diff))
	for i := range diff {
		perp[i] = diff[i] - d1*weight[i]/norm
	}
	d2 := floats.Norm(perp, 2)

	return d1 + p.Theta*d2
}

// idealAt 读取理想点分量，理想点缺省按 0 处理
func idealAt(ideal []float64, i int) float64 {
	if i < len(ideal) {
		return ideal[i]
	}
	return 0
}

// newScalarizer 按名称创建标量化器，未知名称回退到切比雪夫
func newScalarizer(name string, theta float64) Scalarizer {
	switch name {
	case "weighted_sum":
		return WeightedSum{}
	case "pbi":
		if theta <= 0 {
			theta = 5.0
		}
		return PBI{Theta: theta}
	default:
		return Tchebycheff{}
	}
}
