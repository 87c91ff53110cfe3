package builtin

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// AbsenceConflictConstraint 缺勤冲突约束
// 人员在请假或其他缺勤期间不得被安排值班；
// 不允许休假的轮转在其值班区间内不得出现休假类缺勤。
type AbsenceConflictConstraint struct {
	*BaseConstraint
}

// NewAbsenceConflictConstraint 创建缺勤冲突约束
func NewAbsenceConflictConstraint() *AbsenceConflictConstraint {
	return &AbsenceConflictConstraint{
		BaseConstraint: NewBaseConstraint(
			"缺勤冲突",
			constraint.TypeAbsenceConflict,
			constraint.CategoryHard,
			75,
		),
	}
}

// Evaluate 评估整个分配集合
func (c *AbsenceConflictConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64
	isValid := true

	for _, person := range ctx.People {
		assignments := set.ByPerson(person.ID)

		for _, a := range assignments {
			if !ctx.IsAbsent(person.ID, a.Date) {
				continue
			}

			isValid = false
			penalty := c.Weight()
			totalPenalty += penalty

			violations = append(violations, c.CreateViolation(person.ID, a.Date,
				fmt.Sprintf("人员 %s 在 %s 处于缺勤状态仍被排班", person.Name, a.Date),
				1, penalty))
		}

		// 不允许休假的轮转：休假类缺勤落入该人员在此轮转的值班区间即违反，
		// 即便休假日恰好避开了具体值班日。与具体值班日的冲突已在上面计过，不重复计。
		for _, tpl := range ctx.Templates {
			if tpl.LeaveEligible {
				continue
			}
			minDate, maxDate := rotationSpan(assignments, tpl.ID)
			if minDate == "" {
				continue
			}
			for _, ab := range ctx.AbsencesOf(person.ID) {
				if !ab.IsLeave() || ab.StartDate > maxDate || ab.EndDate < minDate {
					continue
				}
				if coversAnyDuty(ab, assignments) {
					continue
				}

				isValid = false
				penalty := c.Weight()
				totalPenalty += penalty

				v := c.CreateViolation(person.ID, ab.StartDate,
					fmt.Sprintf("人员 %s 在不可休假的轮转 %s 期间请假", person.Name, tpl.Name),
					1, penalty)
				v.EndDate = ab.EndDate
				violations = append(violations, v)
			}
		}
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 增量评估：候选日期是否落在缺勤区间内；
// 若模板不允许休假，还检查该轮转区间内有无休假类缺勤
func (c *AbsenceConflictConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	if ctx.IsAbsent(candidate.PersonID, candidate.Date) {
		return false, c.Weight()
	}

	tpl := ctx.GetTemplate(candidate.TemplateID)
	if tpl == nil || tpl.LeaveEligible {
		return true, 0
	}

	minDate, maxDate := candidate.Date, candidate.Date
	for _, a := range set.ByPerson(candidate.PersonID) {
		if a.TemplateID != candidate.TemplateID {
			continue
		}
		if a.Date < minDate {
			minDate = a.Date
		}
		if a.Date > maxDate {
			maxDate = a.Date
		}
	}
	for _, ab := range ctx.AbsencesOf(candidate.PersonID) {
		if ab.IsLeave() && ab.StartDate <= maxDate && ab.EndDate >= minDate {
			return false, c.Weight()
		}
	}
	return true, 0
}

// rotationSpan 返回人员在指定模板上最早与最晚的值班日期，无值班时返回空串
func rotationSpan(assignments []*model.Assignment, templateID uuid.UUID) (string, string) {
	var minDate, maxDate string
	for _, a := range assignments {
		if a.TemplateID != templateID {
			continue
		}
		if minDate == "" || a.Date < minDate {
			minDate = a.Date
		}
		if a.Date > maxDate {
			maxDate = a.Date
		}
	}
	return minDate, maxDate
}

// coversAnyDuty 判断缺勤区间是否覆盖任一值班日
func coversAnyDuty(ab *model.Absence, assignments []*model.Assignment) bool {
	for _, a := range assignments {
		if ab.Covers(a.Date) {
			return true
		}
	}
	return false
}

// DoubleBookingConstraint 重复排班约束
// 同一人不得在同一槽位出现两次，也不得被安排到时间上重叠的两个班次。
type DoubleBookingConstraint struct {
	*BaseConstraint
}

// NewDoubleBookingConstraint 创建重复排班约束
func NewDoubleBookingConstraint() *DoubleBookingConstraint {
	return &DoubleBookingConstraint{
		BaseConstraint: NewBaseConstraint(
			"重复排班",
			constraint.TypeDoubleBooking,
			constraint.CategoryHard,
			70,
		),
	}
}

// Evaluate 评估整个分配集合
func (c *DoubleBookingConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64
	isValid := true

	for _, person := range ctx.People {
		assignments := set.ByPerson(person.ID)
		seenSlot := make(map[string]bool)

		for i, a := range assignments {
			key := a.SlotID.String()
			if seenSlot[key] {
				isValid = false
				penalty := c.Weight()
				totalPenalty += penalty
				v := c.CreateViolation(person.ID, a.Date,
					fmt.Sprintf("人员 %s 在同一槽位被重复分配", person.Name),
					1, penalty)
				v.SlotID = a.SlotID
				violations = append(violations, v)
				continue
			}
			seenSlot[key] = true

			for j := i + 1; j < len(assignments); j++ {
				b := assignments[j]
				if b.SlotID == a.SlotID || !a.Overlaps(b) {
					continue
				}
				isValid = false
				penalty := c.Weight()
				totalPenalty += penalty
				v := c.CreateViolation(person.ID, a.Date,
					fmt.Sprintf("人员 %s 在 %s 的两个班次时间重叠", person.Name, a.Date),
					1, penalty)
				v.SlotID = a.SlotID
				violations = append(violations, v)
			}
		}
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 增量评估：候选是否与现有分配重复或重叠
func (c *DoubleBookingConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	if set.HasPersonOnSlot(candidate.PersonID, candidate.SlotID) {
		return false, c.Weight()
	}
	for _, a := range set.ByPerson(candidate.PersonID) {
		if a.Overlaps(candidate) {
			return false, c.Weight()
		}
	}
	return true, 0
}

// SpecialtyMatchConstraint 专业匹配约束
// 模板声明了专业要求时，被安排人员必须具备该专业。
type SpecialtyMatchConstraint struct {
	*BaseConstraint
}

// NewSpecialtyMatchConstraint 创建专业匹配约束
func NewSpecialtyMatchConstraint() *SpecialtyMatchConstraint {
	return &SpecialtyMatchConstraint{
		BaseConstraint: NewBaseConstraint(
			"专业匹配",
			constraint.TypeSpecialtyMatch,
			constraint.CategoryHard,
			65,
		),
	}
}

// Evaluate 评估整个分配集合
func (c *SpecialtyMatchConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64
	isValid := true

	for _, person := range ctx.People {
		for _, a := range set.ByPerson(person.ID) {
			slot := ctx.GetSlot(a.SlotID)
			if slot == nil {
				continue
			}
			tpl := ctx.GetTemplate(slot.TemplateID)
			if tpl == nil || tpl.Specialty == "" {
				continue
			}
			if person.HasSpecialty(tpl.Specialty) {
				continue
			}

			isValid = false
			penalty := c.Weight()
			totalPenalty += penalty

			v := c.CreateViolation(person.ID, a.Date,
				fmt.Sprintf("人员 %s 不具备 %s 班次要求的专业 %s", person.Name, tpl.Name, tpl.Specialty),
				1, penalty)
			v.SlotID = slot.ID
			violations = append(violations, v)
		}
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 增量评估：候选人员是否满足模板的专业要求
func (c *SpecialtyMatchConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	slot := ctx.GetSlot(candidate.SlotID)
	if slot == nil {
		return true, 0
	}
	tpl := ctx.GetTemplate(slot.TemplateID)
	if tpl == nil || tpl.Specialty == "" {
		return true, 0
	}
	person := ctx.GetPerson(candidate.PersonID)
	if person == nil || person.HasSpecialty(tpl.Specialty) {
		return true, 0
	}
	return false, c.Weight()
}
