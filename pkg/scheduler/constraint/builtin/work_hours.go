package builtin

import (
	"fmt"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// 浮点比较容差
const hoursEpsilon = 1e-9

// WorkHourCeilingConstraint 滚动窗口工时上限约束
// 对每个人滑动 N 个连续周期的窗口，窗口内周期平均工时不得超过上限。
// 只评估完整落在计划期周期范围内的窗口，边界上的不完整窗口跳过。
type WorkHourCeilingConstraint struct {
	*BaseConstraint
	windowPeriods int     // 窗口长度（周期数）
	ceilingHours  float64 // 单周期平均工时上限
}

// NewWorkHourCeilingConstraint 创建滚动窗口工时上限约束
func NewWorkHourCeilingConstraint(windowPeriods int, ceilingHours float64) *WorkHourCeilingConstraint {
	if windowPeriods < 1 {
		windowPeriods = 1
	}
	return &WorkHourCeilingConstraint{
		BaseConstraint: NewBaseConstraint(
			"滚动窗口工时上限",
			constraint.TypeWorkHourCeiling,
			constraint.CategoryHard,
			100,
		),
		windowPeriods: windowPeriods,
		ceilingHours:  ceilingHours,
	}
}

// periodSpan 返回计划期内出现的最小/最大周期编号
func (c *WorkHourCeilingConstraint) periodSpan(ctx *constraint.Context) (int, int, bool) {
	if len(ctx.Slots) == 0 {
		return 0, 0, false
	}
	minP, maxP := ctx.Slots[0].PeriodNumber, ctx.Slots[0].PeriodNumber
	for _, s := range ctx.Slots {
		if s.PeriodNumber < minP {
			minP = s.PeriodNumber
		}
		if s.PeriodNumber > maxP {
			maxP = s.PeriodNumber
		}
	}
	return minP, maxP, true
}

// firstDateOfPeriod 返回某周期编号内最早的时段日期（违反详情定位用）
func firstDateOfPeriod(ctx *constraint.Context, period int) string {
	first := ""
	for _, s := range ctx.Slots {
		if s.PeriodNumber != period {
			continue
		}
		if first == "" || s.Date < first {
			first = s.Date
		}
	}
	return first
}

// Evaluate 评估整个分配集合
func (c *WorkHourCeilingConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64
	isValid := true

	minP, maxP, ok := c.periodSpan(ctx)
	if !ok || maxP-minP+1 < c.windowPeriods {
		// 周期跨度不足一个完整窗口，无可评估内容
		return true, 0, nil
	}

	for _, person := range ctx.People {
		hours := set.HoursByPeriod(ctx, person.ID)

		for w := minP; w+c.windowPeriods-1 <= maxP; w++ {
			var sum float64
			for p := w; p < w+c.windowPeriods; p++ {
				sum += hours[p]
			}
			avg := sum / float64(c.windowPeriods)
			if avg > c.ceilingHours+hoursEpsilon {
				isValid = false
				excess := avg - c.ceilingHours
				penalty := c.Weight() * excess
				totalPenalty += penalty

				v := c.CreateViolation(person.ID, firstDateOfPeriod(ctx, w),
					fmt.Sprintf("人员 %s 在周期 %d-%d 的平均工时 %.1f 小时，超过上限 %.1f 小时",
						person.Name, w, w+c.windowPeriods-1, avg, c.ceilingHours),
					excess, penalty)
				v.EndDate = firstDateOfPeriod(ctx, w+c.windowPeriods-1)
				violations = append(violations, v)
			}
		}
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 增量评估：候选加入后是否会击穿包含其周期的任一完整窗口
func (c *WorkHourCeilingConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	slot := ctx.GetSlot(candidate.SlotID)
	if slot == nil {
		return true, 0
	}

	minP, maxP, ok := c.periodSpan(ctx)
	if !ok || maxP-minP+1 < c.windowPeriods {
		return true, 0
	}

	hours := set.HoursByPeriod(ctx, candidate.PersonID)
	hours[slot.PeriodNumber] += candidate.WorkingHours()

	// 只需检查包含候选周期的窗口
	p := slot.PeriodNumber
	for w := p - c.windowPeriods + 1; w <= p; w++ {
		if w < minP || w+c.windowPeriods-1 > maxP {
			continue
		}
		var sum float64
		for q := w; q < w+c.windowPeriods; q++ {
			sum += hours[q]
		}
		avg := sum / float64(c.windowPeriods)
		if avg > c.ceilingHours+hoursEpsilon {
			return false, c.Weight() * (avg - c.ceilingHours)
		}
	}

	return true, 0
}
