package builtin

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// CoverageConstraint 覆盖约束
// 每个需要覆盖的班次槽位至少要有一条分配。标记了豁免的槽位跳过检查。
type CoverageConstraint struct {
	*BaseConstraint
}

// NewCoverageConstraint 创建覆盖约束
func NewCoverageConstraint() *CoverageConstraint {
	return &CoverageConstraint{
		BaseConstraint: NewBaseConstraint(
			"班次覆盖",
			constraint.TypeCoverage,
			constraint.CategoryHard,
			85,
		),
	}
}

// Evaluate 评估整个分配集合
func (c *CoverageConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64
	isValid := true

	for _, slot := range ctx.Slots {
		if !slot.NeedsCoverage() {
			continue
		}
		if set.CountForSlot(slot.ID) > 0 {
			continue
		}

		isValid = false
		penalty := c.Weight()
		totalPenalty += penalty

		tplName := "未知模板"
		if tpl := ctx.GetTemplate(slot.TemplateID); tpl != nil {
			tplName = tpl.Name
		}
		v := c.CreateViolation(uuid.Nil, slot.Date,
			fmt.Sprintf("%s %s %s 班次无人值守", slot.Date, slot.TimeOfDay, tplName),
			1, penalty)
		v.SlotID = slot.ID
		violations = append(violations, v)
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 增量评估：新增分配只会改善覆盖，恒为可行
func (c *CoverageConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	return true, 0
}

// SlotCapacityConstraint 槽位容量约束
// 单个班次槽位的分配人数不得超过模板容量。
type SlotCapacityConstraint struct {
	*BaseConstraint
}

// NewSlotCapacityConstraint 创建槽位容量约束
func NewSlotCapacityConstraint() *SlotCapacityConstraint {
	return &SlotCapacityConstraint{
		BaseConstraint: NewBaseConstraint(
			"槽位容量",
			constraint.TypeSlotCapacity,
			constraint.CategoryHard,
			80,
		),
	}
}

// capacityOf 返回槽位可容纳的人数，模板缺失或未配置时默认 1
func capacityOf(ctx *constraint.Context, slot *model.TimeSlot) int {
	tpl := ctx.GetTemplate(slot.TemplateID)
	if tpl == nil || tpl.Capacity < 1 {
		return 1
	}
	return tpl.Capacity
}

// Evaluate 评估整个分配集合
func (c *SlotCapacityConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64
	isValid := true

	for _, slot := range ctx.Slots {
		count := set.CountForSlot(slot.ID)
		capacity := capacityOf(ctx, slot)
		if count <= capacity {
			continue
		}

		isValid = false
		over := float64(count - capacity)
		penalty := c.Weight() * over
		totalPenalty += penalty

		v := c.CreateViolation(uuid.Nil, slot.Date,
			fmt.Sprintf("%s %s 班次分配 %d 人，超出容量 %d 人",
				slot.Date, slot.TimeOfDay, count, capacity),
			over, penalty)
		v.SlotID = slot.ID
		violations = append(violations, v)
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 增量评估：加入候选后槽位是否超员
func (c *SlotCapacityConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	slot := ctx.GetSlot(candidate.SlotID)
	if slot == nil {
		return true, 0
	}
	if set.CountForSlot(slot.ID)+1 > capacityOf(ctx, slot) {
		return false, c.Weight()
	}
	return true, 0
}
