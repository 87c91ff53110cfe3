package builtin

import (
	"fmt"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// MinimumRestConstraint 最小休息约束
// 按日历日扫描每个人的连续工作日段，超过 maxConsecutive 天仍无合格休息日
// （当天没有任何分配的日历日）即违反。每个连续段最多记一次违反。
type MinimumRestConstraint struct {
	*BaseConstraint
	maxConsecutive int // 允许的最大连续工作天数，超过即违反
}

// NewMinimumRestConstraint 创建最小休息约束
func NewMinimumRestConstraint(maxConsecutive int) *MinimumRestConstraint {
	if maxConsecutive < 1 {
		maxConsecutive = 6
	}
	return &MinimumRestConstraint{
		BaseConstraint: NewBaseConstraint(
			"最小休息",
			constraint.TypeMinimumRest,
			constraint.CategoryHard,
			95,
		),
		maxConsecutive: maxConsecutive,
	}
}

// workRuns 把升序日期序列切分为最大连续段
func workRuns(dates []string) [][]string {
	var runs [][]string
	var current []string
	for i, d := range dates {
		if i == 0 || model.IsConsecutiveDate(dates[i-1], d) {
			current = append(current, d)
			continue
		}
		runs = append(runs, current)
		current = []string{d}
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

// Evaluate 评估整个分配集合
func (c *MinimumRestConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64
	isValid := true

	for _, person := range ctx.People {
		dates := set.WorkedDates(person.ID)
		if len(dates) <= c.maxConsecutive {
			continue
		}

		for _, run := range workRuns(dates) {
			if len(run) <= c.maxConsecutive {
				continue
			}
			isValid = false
			over := float64(len(run) - c.maxConsecutive)
			penalty := c.Weight() * over
			totalPenalty += penalty

			v := c.CreateViolation(person.ID, run[0],
				fmt.Sprintf("人员 %s 自 %s 起连续工作 %d 天，未安排合格休息日（允许最多 %d 天）",
					person.Name, run[0], len(run), c.maxConsecutive),
				over, penalty)
			v.EndDate = run[len(run)-1]
			violations = append(violations, v)
		}
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 增量评估：加入候选日期后是否会形成超长连续段
func (c *MinimumRestConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	worked := make(map[string]bool)
	for _, a := range set.ByPerson(candidate.PersonID) {
		worked[a.Date] = true
	}
	if worked[candidate.Date] {
		// 当天已有分配，连续段结构不变
		return true, 0
	}

	// 向前、向后延伸统计候选日期并入后的连续段长度
	countBefore := 0
	d := candidate.Date
	for {
		d = model.PreviousDate(d)
		if !worked[d] {
			break
		}
		countBefore++
		if countBefore > 366 {
			break
		}
	}

	countAfter := 0
	d = candidate.Date
	for {
		d = model.NextDate(d)
		if !worked[d] {
			break
		}
		countAfter++
		if countAfter > 366 {
			break
		}
	}

	total := countBefore + 1 + countAfter
	if total > c.maxConsecutive {
		over := float64(total - c.maxConsecutive)
		return false, c.Weight() * over
	}
	return true, 0
}
