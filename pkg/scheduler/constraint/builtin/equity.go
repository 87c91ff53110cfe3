package builtin

import (
	"fmt"
	"math"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// WorkloadEquityConstraint 工作量均衡约束
// 软约束。人员实际工时偏离目标工时超过容差比例时产生罚分，
// 未设置目标工时的人员以全员平均工时为基准。
type WorkloadEquityConstraint struct {
	*BaseConstraint
	tolerance float64 // 允许的偏差比例，超出部分计罚
}

// NewWorkloadEquityConstraint 创建工作量均衡约束
func NewWorkloadEquityConstraint(tolerance float64) *WorkloadEquityConstraint {
	if tolerance <= 0 {
		tolerance = 0.15
	}
	return &WorkloadEquityConstraint{
		BaseConstraint: NewBaseConstraint(
			"工作量均衡",
			constraint.TypeWorkloadEquity,
			constraint.CategorySoft,
			60,
		),
		tolerance: tolerance,
	}
}

// targetHoursFor 返回人员的基准工时
func targetHoursFor(person *model.Person, average float64) float64 {
	if person.TargetHours > 0 {
		return person.TargetHours
	}
	return average
}

// averageHours 计算全员平均工时
func averageHours(ctx *constraint.Context, set *constraint.AssignmentSet) float64 {
	if len(ctx.People) == 0 {
		return 0
	}
	var sum float64
	for _, person := range ctx.People {
		sum += set.TotalHours(person.ID)
	}
	return sum / float64(len(ctx.People))
}

// Evaluate 评估整个分配集合，软约束始终返回有效
func (c *WorkloadEquityConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64

	avg := averageHours(ctx, set)

	for _, person := range ctx.People {
		target := targetHoursFor(person, avg)
		if target <= 0 {
			continue
		}

		actual := set.TotalHours(person.ID)
		deviation := math.Abs(actual-target) / target
		if deviation <= c.tolerance {
			continue
		}

		excess := deviation - c.tolerance
		penalty := c.Weight() * excess
		totalPenalty += penalty

		violations = append(violations, c.CreateViolation(person.ID, "",
			fmt.Sprintf("人员 %s 实际工时 %.1f 偏离目标 %.1f 达 %.0f%%，超出容差 %.0f%%",
				person.Name, actual, target, deviation*100, c.tolerance*100),
			excess, penalty))
	}

	return true, totalPenalty, violations
}

// EvaluateAssignment 增量评估：候选加入后该人员的偏差变化
func (c *WorkloadEquityConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	person := ctx.GetPerson(candidate.PersonID)
	if person == nil {
		return true, 0
	}

	avg := averageHours(ctx, set)
	target := targetHoursFor(person, avg)
	if target <= 0 {
		return true, 0
	}

	actual := set.TotalHours(person.ID) + candidate.WorkingHours()
	deviation := math.Abs(actual-target) / target
	if deviation <= c.tolerance {
		return true, 0
	}
	return true, c.Weight() * (deviation - c.tolerance)
}
