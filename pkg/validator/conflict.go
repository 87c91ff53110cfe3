// Package validator 对排班结果做发布前的独立复核
// 约束引擎的评估结果不直接采信，复核时重新运行全部约束，
// 并额外做一层不依赖约束注册状态的结构性检查。
package validator

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// ConflictType 结构性冲突类型
type ConflictType string

const (
	ConflictOverlap    ConflictType = "overlap"     // 同一人员时间重叠
	ConflictDuplicate  ConflictType = "duplicate"   // 同一人员同一时段重复分配
	ConflictCapacity   ConflictType = "capacity"    // 超出时段容量
	ConflictAbsence    ConflictType = "absence"     // 缺勤期间被排班
	ConflictInactive   ConflictType = "inactive"    // 非在岗人员被排班
	ConflictUnknownRef ConflictType = "unknown_ref" // 引用了上下文之外的人员或时段
)

// Conflict 结构性冲突记录
type Conflict struct {
	Type        ConflictType `json:"type"`
	Severity    string       `json:"severity"` // error/warning
	PersonID    uuid.UUID    `json:"person_id,omitempty"`
	SlotID      uuid.UUID    `json:"slot_id,omitempty"`
	Date        string       `json:"date,omitempty"`
	Message     string       `json:"message"`
	Assignments []uuid.UUID  `json:"assignments,omitempty"` // 相关的分配ID
}

// DetectConflicts 对完整分配集合做结构性检查
// 遍历顺序固定（先按人员、再按时段），结果可复现
func DetectConflicts(schedCtx *constraint.Context, set *constraint.AssignmentSet) []Conflict {
	var conflicts []Conflict

	conflicts = append(conflicts, detectReferences(schedCtx, set)...)
	for _, person := range schedCtx.People {
		assignments := set.ByPerson(person.ID)
		if len(assignments) == 0 {
			continue
		}
		conflicts = append(conflicts, detectDuplicates(person, assignments)...)
		conflicts = append(conflicts, detectOverlaps(person, assignments)...)
		conflicts = append(conflicts, detectAbsences(schedCtx, person, assignments)...)
	}
	conflicts = append(conflicts, detectCapacity(schedCtx, set)...)

	return conflicts
}

// CheckAssignment 检查单个候选分配加入集合后是否引入结构性冲突
// 候选尚未加入集合，供换班和人工调整前的即时校验使用
func CheckAssignment(schedCtx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) []Conflict {
	var conflicts []Conflict

	person := schedCtx.GetPerson(candidate.PersonID)
	slot := schedCtx.GetSlot(candidate.SlotID)
	if person == nil {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictUnknownRef,
			Severity: "error",
			PersonID: candidate.PersonID,
			Date:     candidate.Date,
			Message:  "候选分配引用了上下文之外的人员",
		})
		return conflicts
	}
	if slot == nil {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictUnknownRef,
			Severity: "error",
			PersonID: candidate.PersonID,
			SlotID:   candidate.SlotID,
			Date:     candidate.Date,
			Message:  "候选分配引用了上下文之外的时段",
		})
		return conflicts
	}

	if !person.IsActive() {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictInactive,
			Severity: "error",
			PersonID: person.ID,
			Date:     candidate.Date,
			Message:  fmt.Sprintf("人员 %s 当前不在岗", person.Name),
		})
	}

	if schedCtx.IsAbsent(person.ID, candidate.Date) {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictAbsence,
			Severity: "error",
			PersonID: person.ID,
			SlotID:   slot.ID,
			Date:     candidate.Date,
			Message:  fmt.Sprintf("人员 %s 在 %s 处于缺勤状态", person.Name, candidate.Date),
		})
	}

	if set.HasPersonOnSlot(person.ID, slot.ID) {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictDuplicate,
			Severity: "error",
			PersonID: person.ID,
			SlotID:   slot.ID,
			Date:     candidate.Date,
			Message:  fmt.Sprintf("人员 %s 已被分配到该时段", person.Name),
		})
	}

	if set.CountForSlot(slot.ID) >= slotCapacity(schedCtx, slot) {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictCapacity,
			Severity: "error",
			SlotID:   slot.ID,
			Date:     slot.Date,
			Message:  fmt.Sprintf("%s %s 时段容量已满", slot.Date, slot.TimeOfDay),
		})
	}

	for _, existing := range set.ByPerson(person.ID) {
		if existing.SlotID == candidate.SlotID {
			continue
		}
		if candidate.Overlaps(existing) {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictOverlap,
				Severity:    "error",
				PersonID:    person.ID,
				Date:        candidate.Date,
				Message:     fmt.Sprintf("人员 %s 与 %s 的既有排班时间重叠", person.Name, existing.Date),
				Assignments: []uuid.UUID{candidate.ID, existing.ID},
			})
		}
	}

	return conflicts
}

// detectReferences 检查分配引用的人员和时段是否都在上下文内
func detectReferences(schedCtx *constraint.Context, set *constraint.AssignmentSet) []Conflict {
	var conflicts []Conflict

	for _, a := range set.All() {
		person := schedCtx.GetPerson(a.PersonID)
		if person == nil {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictUnknownRef,
				Severity:    "error",
				PersonID:    a.PersonID,
				Date:        a.Date,
				Message:     "分配引用了上下文之外的人员",
				Assignments: []uuid.UUID{a.ID},
			})
			continue
		}
		if schedCtx.GetSlot(a.SlotID) == nil {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictUnknownRef,
				Severity:    "error",
				PersonID:    a.PersonID,
				SlotID:      a.SlotID,
				Date:        a.Date,
				Message:     "分配引用了上下文之外的时段",
				Assignments: []uuid.UUID{a.ID},
			})
			continue
		}
		if !person.IsActive() {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictInactive,
				Severity:    "error",
				PersonID:    a.PersonID,
				Date:        a.Date,
				Message:     fmt.Sprintf("人员 %s 当前不在岗仍被排班", person.Name),
				Assignments: []uuid.UUID{a.ID},
			})
		}
	}

	return conflicts
}

// detectDuplicates 检测同一人员被重复分配到同一时段
func detectDuplicates(person *model.Person, assignments []*model.Assignment) []Conflict {
	var conflicts []Conflict

	seen := make(map[uuid.UUID]bool, len(assignments))
	for _, a := range assignments {
		if seen[a.SlotID] {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictDuplicate,
				Severity:    "error",
				PersonID:    person.ID,
				SlotID:      a.SlotID,
				Date:        a.Date,
				Message:     fmt.Sprintf("人员 %s 在同一时段被重复分配", person.Name),
				Assignments: []uuid.UUID{a.ID},
			})
		}
		seen[a.SlotID] = true
	}

	return conflicts
}

// detectOverlaps 检测同一人员的排班时间重叠
func detectOverlaps(person *model.Person, assignments []*model.Assignment) []Conflict {
	var conflicts []Conflict

	sorted := make([]*model.Assignment, len(assignments))
	copy(sorted, assignments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			if !sorted[j].StartTime.Before(sorted[i].EndTime) {
				break
			}
			if sorted[i].SlotID == sorted[j].SlotID {
				continue // 重复分配由 detectDuplicates 上报
			}
			conflicts = append(conflicts, Conflict{
				Type:        ConflictOverlap,
				Severity:    "error",
				PersonID:    person.ID,
				Date:        sorted[i].Date,
				Message:     fmt.Sprintf("人员 %s 在 %s 存在时间重叠的排班", person.Name, sorted[i].Date),
				Assignments: []uuid.UUID{sorted[i].ID, sorted[j].ID},
			})
		}
	}

	return conflicts
}

// detectAbsences 检测缺勤期间的排班
func detectAbsences(schedCtx *constraint.Context, person *model.Person, assignments []*model.Assignment) []Conflict {
	var conflicts []Conflict

	for _, a := range assignments {
		if !schedCtx.IsAbsent(person.ID, a.Date) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:        ConflictAbsence,
			Severity:    "error",
			PersonID:    person.ID,
			SlotID:      a.SlotID,
			Date:        a.Date,
			Message:     fmt.Sprintf("人员 %s 在 %s 处于缺勤状态仍被排班", person.Name, a.Date),
			Assignments: []uuid.UUID{a.ID},
		})
	}

	return conflicts
}

// detectCapacity 检测时段分配数超出模板容量
func detectCapacity(schedCtx *constraint.Context, set *constraint.AssignmentSet) []Conflict {
	var conflicts []Conflict

	for _, slot := range schedCtx.Slots {
		count := set.CountForSlot(slot.ID)
		capacity := slotCapacity(schedCtx, slot)
		if count <= capacity {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:     ConflictCapacity,
			Severity: "error",
			SlotID:   slot.ID,
			Date:     slot.Date,
			Message:  fmt.Sprintf("%s %s 时段分配 %d 人，超出容量 %d 人", slot.Date, slot.TimeOfDay, count, capacity),
		})
	}

	return conflicts
}

// slotCapacity 返回时段模板容量，模板缺失或非法时按 1 处理
func slotCapacity(schedCtx *constraint.Context, slot *model.TimeSlot) int {
	tpl := schedCtx.TemplateOf(slot)
	if tpl == nil || tpl.Capacity < 1 {
		return 1
	}
	return tpl.Capacity
}
