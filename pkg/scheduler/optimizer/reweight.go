// Package optimizer 提供排班优化算法
package optimizer

import (
	"log"

	"gonum.org/v1/gonum/floats"
)

// FeedbackSource 外部反馈信号源
// 在代边界被轮询，返回目标名 → 期望倍率；空返回表示无调整。
type FeedbackSource interface {
	Poll() map[string]float64
}

// Reweighter 运行中软目标侧重调整器
// 按反馈倍率缩放所有子问题权重向量里对应目标的分量后重新归一，
// 只影响软目标间的取舍，硬约束处理完全不受影响。
type Reweighter struct {
	source     FeedbackSource
	objectives []*Objective
	minFactor  float64
	maxFactor  float64
}

// NewReweighter 创建调整器，source 为 nil 时 Adjust 恒为无操作
func NewReweighter(source FeedbackSource, objectives []*Objective) *Reweighter {
	return &Reweighter{
		source:     source,
		objectives: objectives,
		minFactor:  0.1,
		maxFactor:  10.0,
	}
}

// Adjust 轮询反馈并就地调整权重向量，返回是否发生调整
func (r *Reweighter) Adjust(weights [][]float64) bool {
	if r.source == nil {
		return false
	}
	feedback := r.source.Poll()
	if len(feedback) == 0 {
		return false
	}

	factors := make([]float64, len(r.objectives))
	adjusted := false
	for i, obj := range r.objectives {
		factors[i] = 1.0
		f, ok := feedback[obj.Name]
		if !ok || f <= 0 {
			continue
		}
		if f < r.minFactor {
			f = r.minFactor
		}
		if f > r.maxFactor {
			f = r.maxFactor
		}
		factors[i] = f
		adjusted = true
	}
	if !adjusted {
		return false
	}

	for _, w := range weights {
		for i := range w {
			w[i] *= factors[i]
		}
		if sum := floats.Sum(w); sum > 0 {
			floats.Scale(1/sum, w)
		}
	}

	log.Printf("软目标权重已按外部反馈调整: factors=%v", factors)
	return true
}
