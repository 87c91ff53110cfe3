package builtin

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// SupervisionRatioConstraint 监督比例约束
// 同一模板、同一日期、同一时段的分配构成一个同时在岗组。组内下级人数
// 与监督者人数之比不得超过模板配置的比例 R，即监督者人数至少为
// ceil(下级人数 / R)。监督者资格由人员级别与模板的监督级别比较得出。
type SupervisionRatioConstraint struct {
	*BaseConstraint
}

// NewSupervisionRatioConstraint 创建监督比例约束
func NewSupervisionRatioConstraint() *SupervisionRatioConstraint {
	return &SupervisionRatioConstraint{
		BaseConstraint: NewBaseConstraint(
			"监督比例",
			constraint.TypeSupervisionRatio,
			constraint.CategoryHard,
			90,
		),
	}
}

// dutyGroupKey 同时在岗组的标识
type dutyGroupKey struct {
	TemplateID uuid.UUID
	Date       string
	TimeOfDay  model.TimeOfDay
}

// dutyGroup 组内监督者与下级的统计
type dutyGroup struct {
	supervisors int
	subordinate int
	firstSlotID uuid.UUID
}

// collectGroups 按模板/日期/时段聚合分配，统计监督者与下级人数
func collectGroups(ctx *constraint.Context, set *constraint.AssignmentSet) map[dutyGroupKey]*dutyGroup {
	groups := make(map[dutyGroupKey]*dutyGroup)
	for _, a := range set.All() {
		slot := ctx.GetSlot(a.SlotID)
		if slot == nil {
			continue
		}
		tpl := ctx.GetTemplate(slot.TemplateID)
		if tpl == nil || !tpl.RequiresSupervision() {
			continue
		}
		person := ctx.GetPerson(a.PersonID)
		if person == nil {
			continue
		}

		key := dutyGroupKey{TemplateID: tpl.ID, Date: a.Date, TimeOfDay: slot.TimeOfDay}
		g, ok := groups[key]
		if !ok {
			g = &dutyGroup{firstSlotID: slot.ID}
			groups[key] = g
		}
		if tpl.IsSupervisor(person) {
			g.supervisors++
		} else {
			g.subordinate++
		}
	}
	return groups
}

// requiredSupervisors 按比例计算所需监督者人数
func requiredSupervisors(subordinates, ratio int) int {
	if subordinates == 0 || ratio <= 0 {
		return 0
	}
	return int(math.Ceil(float64(subordinates) / float64(ratio)))
}

// Evaluate 评估整个分配集合
func (c *SupervisionRatioConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	var totalPenalty float64
	isValid := true

	groups := collectGroups(ctx, set)

	// map 遍历顺序不稳定，先取键排序保证违规输出可复现
	keys := make([]dutyGroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		if keys[i].TimeOfDay != keys[j].TimeOfDay {
			return keys[i].TimeOfDay < keys[j].TimeOfDay
		}
		return keys[i].TemplateID.String() < keys[j].TemplateID.String()
	})

	for _, key := range keys {
		g := groups[key]
		tpl := ctx.GetTemplate(key.TemplateID)
		if tpl == nil {
			continue
		}
		need := requiredSupervisors(g.subordinate, tpl.SupervisionRatio)
		if g.supervisors >= need {
			continue
		}

		isValid = false
		shortfall := float64(need - g.supervisors)
		penalty := c.Weight() * shortfall
		totalPenalty += penalty

		v := c.CreateViolation(uuid.Nil, key.Date,
			fmt.Sprintf("%s %s %s 班组有 %d 名下级仅 %d 名监督者，按比例 1:%d 需要 %d 名",
				key.Date, key.TimeOfDay, tpl.Name,
				g.subordinate, g.supervisors, tpl.SupervisionRatio, need),
			shortfall, penalty)
		v.SlotID = g.firstSlotID
		violations = append(violations, v)
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 增量评估：加入候选后该班组的比例是否仍可满足
// 对下级候选立即检查可迫使贪心先为每个班组安排监督者。
func (c *SupervisionRatioConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	slot := ctx.GetSlot(candidate.SlotID)
	if slot == nil {
		return true, 0
	}
	tpl := ctx.GetTemplate(slot.TemplateID)
	if tpl == nil || !tpl.RequiresSupervision() {
		return true, 0
	}
	person := ctx.GetPerson(candidate.PersonID)
	if person == nil {
		return true, 0
	}

	supervisors := 0
	subordinates := 0
	for _, a := range set.OnDate(candidate.Date) {
		s := ctx.GetSlot(a.SlotID)
		if s == nil || s.TemplateID != tpl.ID || s.TimeOfDay != slot.TimeOfDay {
			continue
		}
		p := ctx.GetPerson(a.PersonID)
		if p == nil {
			continue
		}
		if tpl.IsSupervisor(p) {
			supervisors++
		} else {
			subordinates++
		}
	}

	if tpl.IsSupervisor(person) {
		supervisors++
	} else {
		subordinates++
	}

	need := requiredSupervisors(subordinates, tpl.SupervisionRatio)
	if supervisors < need {
		return false, c.Weight() * float64(need-supervisors)
	}
	return true, 0
}
