// Package optimizer 提供排班优化算法
package optimizer

import (
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/stats"
)

// Direction 目标优化方向
type Direction int

const (
	Minimize Direction = iota // 越小越好
	Maximize                  // 越大越好
)

// EvaluateFunc 在给定上下文与工作集上计算目标原始值
type EvaluateFunc func(ctx *constraint.Context, set *constraint.AssignmentSet) float64

// Objective 优化目标
// Reference 为最优端点（归一化后为 0），Nadir 为最劣端点（归一化后为 1）。
// 支配关系与标量化都在归一化空间进行，方向差异由端点取向消化。
type Objective struct {
	Name      string
	Direction Direction
	Reference float64
	Nadir     float64
	Evaluate  EvaluateFunc
}

// Normalize 把原始目标值映射到 [0,1]，越小越优
func (o *Objective) Normalize(value float64) float64 {
	span := o.Nadir - o.Reference
	if span == 0 {
		return 0
	}
	z := (value - o.Reference) / span
	if z < 0 {
		return 0
	}
	if z > 1 {
		return 1
	}
	return z
}

// CoverageObjective 覆盖率目标（最大化时段填充率）
func CoverageObjective() *Objective {
	return &Objective{
		Name:      "coverage",
		Direction: Maximize,
		Reference: 1.0,
		Nadir:     0.0,
		Evaluate: func(ctx *constraint.Context, set *constraint.AssignmentSet) float64 {
			return stats.AnalyzeCoverage(ctx, set).FillRate
		},
	}
}

// EquityObjective 均衡性目标（最小化工时分布的基尼系数）
func EquityObjective() *Objective {
	return &Objective{
		Name:      "equity",
		Direction: Minimize,
		Reference: 0.0,
		Nadir:     1.0,
		Evaluate: func(ctx *constraint.Context, set *constraint.AssignmentSet) float64 {
			return stats.AnalyzeFairness(ctx, set).Gini
		},
	}
}

// PreferenceObjective 偏好目标（最小化偏好约束罚分）
// 最劣端点按时段规模估算，超出部分在归一化时截断。
func PreferenceObjective(manager *constraint.Manager, schedCtx *constraint.Context) *Objective {
	nadir := 10.0 * float64(len(schedCtx.Slots))
	if nadir <= 0 {
		nadir = 10.0
	}
	return &Objective{
		Name:      "preference",
		Direction: Minimize,
		Reference: 0.0,
		Nadir:     nadir,
		Evaluate:  constraintPenaltyFunc(manager, constraint.TypePreference),
	}
}

// ContinuityObjective 连续性目标（最小化模板切换罚分）
func ContinuityObjective(manager *constraint.Manager, schedCtx *constraint.Context) *Objective {
	nadir := 8.0 * float64(len(schedCtx.Slots))
	if nadir <= 0 {
		nadir = 8.0
	}
	return &Objective{
		Name:      "continuity",
		Direction: Minimize,
		Reference: 0.0,
		Nadir:     nadir,
		Evaluate:  constraintPenaltyFunc(manager, constraint.TypeContinuity),
	}
}

// constraintPenaltyFunc 把某个软约束的全量罚分包装成目标函数
// 约束未注册时目标恒为 0。
func constraintPenaltyFunc(manager *constraint.Manager, t constraint.Type) EvaluateFunc {
	return func(ctx *constraint.Context, set *constraint.AssignmentSet) float64 {
		c := manager.GetConstraint(t)
		if c == nil {
			return 0
		}
		_, penalty, _ := c.Evaluate(ctx, set)
		return penalty
	}
}

// DefaultObjectives 返回内置目标集：覆盖率、均衡性、偏好、连续性
func DefaultObjectives(manager *constraint.Manager, schedCtx *constraint.Context) []*Objective {
	return []*Objective{
		CoverageObjective(),
		EquityObjective(),
		PreferenceObjective(manager, schedCtx),
		ContinuityObjective(manager, schedCtx),
	}
}
