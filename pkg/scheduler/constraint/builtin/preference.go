package builtin

import (
	"fmt"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// PreferenceConstraint 个人偏好约束
// 软约束。安排到人员想避开的时段或星期计罚分，安排到偏好的时段或
// 模板给予负罚分作为奖励。整体评估时聚合罚分不会低于零。
type PreferenceConstraint struct {
	*BaseConstraint
	avoidPenalty float64 // 命中避开项的单次罚分
	preferBonus  float64 // 命中偏好项的单次奖励
}

// NewPreferenceConstraint 创建个人偏好约束
func NewPreferenceConstraint() *PreferenceConstraint {
	return &PreferenceConstraint{
		BaseConstraint: NewBaseConstraint(
			"个人偏好",
			constraint.TypePreference,
			constraint.CategorySoft,
			50,
		),
		avoidPenalty: 10,
		preferBonus:  5,
	}
}

// scoreAssignment 返回单条分配的偏好罚分，负值表示奖励
func (c *PreferenceConstraint) scoreAssignment(ctx *constraint.Context, person *model.Person, a *model.Assignment) (float64, string) {
	if person.Preferences == nil {
		return 0, ""
	}
	slot := ctx.GetSlot(a.SlotID)
	if slot == nil {
		return 0, ""
	}

	var score float64
	var reason string

	if person.AvoidsTimeOfDay(slot.TimeOfDay) {
		score += c.avoidPenalty
		reason = fmt.Sprintf("人员 %s 希望避开%s班", person.Name, slot.TimeOfDay)
	} else if person.PrefersTimeOfDay(slot.TimeOfDay) {
		score -= c.preferBonus
	}

	if weekday, ok := model.WeekdayOf(a.Date); ok {
		if person.AvoidsWeekday(weekday) {
			score += c.avoidPenalty
			reason = fmt.Sprintf("人员 %s 希望避开%s值班", person.Name, weekday)
		} else if person.PrefersWeekday(weekday) {
			score -= c.preferBonus
		}
	}

	for _, tplID := range person.Preferences.PreferredTemplates {
		if tplID == slot.TemplateID {
			score -= c.preferBonus
			break
		}
	}

	return score, reason
}

// Evaluate 评估整个分配集合，软约束始终返回有效
func (c *PreferenceConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64

	for _, person := range ctx.People {
		if person.Preferences == nil {
			continue
		}
		for _, a := range set.ByPerson(person.ID) {
			score, reason := c.scoreAssignment(ctx, person, a)
			totalPenalty += score
			if score <= 0 || reason == "" {
				continue
			}
			violations = append(violations, c.CreateViolation(person.ID, a.Date, reason, 1, score))
		}
	}

	// 奖励可以抵扣罚分但不产生负的总罚分
	if totalPenalty < 0 {
		totalPenalty = 0
	}

	return true, totalPenalty, violations
}

// EvaluateAssignment 增量评估：返回候选分配的偏好罚分，负值表示奖励
func (c *PreferenceConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	person := ctx.GetPerson(candidate.PersonID)
	if person == nil {
		return true, 0
	}
	score, _ := c.scoreAssignment(ctx, person, candidate)
	return true, score
}
