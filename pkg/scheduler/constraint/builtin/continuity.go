package builtin

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// ContinuityConstraint 排班连续性约束
// 软约束。相邻两个工作日之间更换值班模板计罚分，沿用同一模板给予
// 少量奖励，鼓励同一人员在连续日期承担同类班次。
type ContinuityConstraint struct {
	*BaseConstraint
	switchPenalty float64
	stayBonus     float64
}

// NewContinuityConstraint 创建排班连续性约束
func NewContinuityConstraint() *ContinuityConstraint {
	return &ContinuityConstraint{
		BaseConstraint: NewBaseConstraint(
			"排班连续性",
			constraint.TypeContinuity,
			constraint.CategorySoft,
			40,
		),
		switchPenalty: 8,
		stayBonus:     2,
	}
}

// templatesOn 返回某人某日所值模板的集合
func templatesOn(ctx *constraint.Context, set *constraint.AssignmentSet, personID uuid.UUID, date string) map[uuid.UUID]bool {
	templates := make(map[uuid.UUID]bool)
	for _, a := range set.ByPerson(personID) {
		if a.Date != date {
			continue
		}
		if slot := ctx.GetSlot(a.SlotID); slot != nil {
			templates[slot.TemplateID] = true
		}
	}
	return templates
}

// sharesTemplate 判断两个模板集合是否有交集
func sharesTemplate(a, b map[uuid.UUID]bool) bool {
	for tpl := range a {
		if b[tpl] {
			return true
		}
	}
	return false
}

// Evaluate 评估整个分配集合，软约束始终返回有效
func (c *ContinuityConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64

	for _, person := range ctx.People {
		dates := set.WorkedDates(person.ID)
		for i := 1; i < len(dates); i++ {
			if !model.IsConsecutiveDate(dates[i-1], dates[i]) {
				continue
			}
			prev := templatesOn(ctx, set, person.ID, dates[i-1])
			curr := templatesOn(ctx, set, person.ID, dates[i])
			if sharesTemplate(prev, curr) {
				totalPenalty -= c.stayBonus
				continue
			}

			totalPenalty += c.switchPenalty
			violations = append(violations, c.CreateViolation(person.ID, dates[i],
				fmt.Sprintf("人员 %s 在 %s 与前一日值班模板不同", person.Name, dates[i]),
				1, c.switchPenalty))
		}
	}

	if totalPenalty < 0 {
		totalPenalty = 0
	}

	return true, totalPenalty, violations
}

// EvaluateAssignment 增量评估：候选与前后相邻日的模板衔接情况
func (c *ContinuityConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	slot := ctx.GetSlot(candidate.SlotID)
	if slot == nil {
		return true, 0
	}

	var score float64
	for _, neighbor := range []string{model.PreviousDate(candidate.Date), model.NextDate(candidate.Date)} {
		templates := templatesOn(ctx, set, candidate.PersonID, neighbor)
		if len(templates) == 0 {
			continue
		}
		if templates[slot.TemplateID] {
			score -= c.stayBonus
		} else {
			score += c.switchPenalty
		}
	}
	return true, score
}
