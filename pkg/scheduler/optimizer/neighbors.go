// Package optimizer 提供排班优化算法
package optimizer

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// MoveType 邻域移动类型
type MoveType int

const (
	MoveSwap     MoveType = iota // 交换两个分配的人员
	MoveReassign                 // 把一个分配换给其他合格人员
	MoveInsert                   // 为未覆盖时段补充分配
	MoveRemove                   // 移除分配
	MoveDaySwap                  // 交换两天的在岗人员
	MoveChain                    // 链式轮换多个分配的人员
)

// NeighborhoodGenerator 邻域生成器
type NeighborhoodGenerator struct {
	rng         *rand.Rand
	moveWeights map[MoveType]float64
	moveOrder   []MoveType
}

// NewNeighborhoodGenerator 创建邻域生成器
// 随机源由调用方注入，相同种子下移动序列完全可复现。
func NewNeighborhoodGenerator(rng *rand.Rand) *NeighborhoodGenerator {
	return &NeighborhoodGenerator{
		rng: rng,
		moveWeights: map[MoveType]float64{
			MoveSwap:     0.35, // 35% 交换
			MoveReassign: 0.30, // 30% 换人
			MoveInsert:   0.15, // 15% 插入
			MoveRemove:   0.10, // 10% 移除
			MoveDaySwap:  0.05, // 5% 日交换
			MoveChain:    0.05, // 5% 链式轮换
		},
		moveOrder: []MoveType{MoveSwap, MoveReassign, MoveInsert, MoveRemove, MoveDaySwap, MoveChain},
	}
}

// GenerateNeighbor 生成邻域解，无法构造时返回 nil
func (n *NeighborhoodGenerator) GenerateNeighbor(current *Solution, schedCtx *constraint.Context) *Solution {
	if current == nil {
		return nil
	}

	switch n.selectMoveType() {
	case MoveSwap:
		return n.generateSwapMove(current, schedCtx)
	case MoveReassign:
		return n.generateReassignMove(current, schedCtx)
	case MoveInsert:
		return n.generateInsertMove(current, schedCtx)
	case MoveRemove:
		return n.generateRemoveMove(current, schedCtx)
	case MoveDaySwap:
		return n.generateDaySwapMove(current, schedCtx)
	case MoveChain:
		return n.generateChainMove(current, schedCtx)
	default:
		return n.generateSwapMove(current, schedCtx)
	}
}

// selectMoveType 按权重选择移动类型，遍历固定顺序保证可复现
func (n *NeighborhoodGenerator) selectMoveType() MoveType {
	r := n.rng.Float64()
	cumulative := 0.0

	for _, moveType := range n.moveOrder {
		cumulative += n.moveWeights[moveType]
		if r < cumulative {
			return moveType
		}
	}
	return MoveSwap
}

// adjustableIndices 返回可参与移动的分配下标
// 落在保护时段上的分配不参与任何邻域调整
func (n *NeighborhoodGenerator) adjustableIndices(current *Solution, schedCtx *constraint.Context) []int {
	idxs := make([]int, 0, len(current.Assignments))
	for i, a := range current.Assignments {
		if slot := schedCtx.GetSlot(a.SlotID); slot != nil && slot.Protected {
			continue
		}
		idxs = append(idxs, i)
	}
	return idxs
}

// generateSwapMove 生成交换移动
// 交换两个分配上的人员
func (n *NeighborhoodGenerator) generateSwapMove(current *Solution, schedCtx *constraint.Context) *Solution {
	idxs := n.adjustableIndices(current, schedCtx)
	if len(idxs) < 2 {
		return nil
	}

	neighbor := current.Clone()

	i := idxs[n.rng.Intn(len(idxs))]
	j := idxs[n.rng.Intn(len(idxs))]
	for j == i {
		j = idxs[n.rng.Intn(len(idxs))]
	}
	if neighbor.Assignments[i].PersonID == neighbor.Assignments[j].PersonID {
		return nil
	}

	pi := schedCtx.GetPerson(neighbor.Assignments[i].PersonID)
	pj := schedCtx.GetPerson(neighbor.Assignments[j].PersonID)
	if pi == nil || pj == nil {
		return nil
	}
	setPerson(neighbor.Assignments[i], pj)
	setPerson(neighbor.Assignments[j], pi)

	return neighbor
}

// generateReassignMove 生成换人移动
// 把某个分配交给该时段的其他合格人员
func (n *NeighborhoodGenerator) generateReassignMove(current *Solution, schedCtx *constraint.Context) *Solution {
	idxs := n.adjustableIndices(current, schedCtx)
	if len(idxs) == 0 {
		return nil
	}

	neighbor := current.Clone()

	idx := idxs[n.rng.Intn(len(idxs))]
	assignment := neighbor.Assignments[idx]

	slot := schedCtx.GetSlot(assignment.SlotID)
	if slot == nil {
		return nil
	}

	var candidates []*model.Person
	for _, p := range schedCtx.EligiblePeople(slot) {
		if p.ID != assignment.PersonID {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	setPerson(assignment, candidates[n.rng.Intn(len(candidates))])
	return neighbor
}

// generateInsertMove 生成插入移动
// 为尚未覆盖的时段补一个分配，锁定分配占用的时段与保护时段不算缺口
func (n *NeighborhoodGenerator) generateInsertMove(current *Solution, schedCtx *constraint.Context) *Solution {
	if len(schedCtx.Slots) == 0 {
		return nil
	}

	covered := make(map[uuid.UUID]bool, len(current.Assignments)+len(schedCtx.Locked))
	for _, a := range current.Assignments {
		covered[a.SlotID] = true
	}
	for _, a := range schedCtx.Locked {
		covered[a.SlotID] = true
	}

	var openSlots []*model.TimeSlot
	for _, s := range schedCtx.Slots {
		if !covered[s.ID] && !s.Protected && len(schedCtx.EligiblePeople(s)) > 0 {
			openSlots = append(openSlots, s)
		}
	}
	if len(openSlots) == 0 {
		return nil
	}

	slot := openSlots[n.rng.Intn(len(openSlots))]
	people := schedCtx.EligiblePeople(slot)
	person := people[n.rng.Intn(len(people))]

	neighbor := current.Clone()
	neighbor.Assignments = append(neighbor.Assignments, makeAssignment(schedCtx, person, slot))
	return neighbor
}

// generateRemoveMove 生成移除移动
func (n *NeighborhoodGenerator) generateRemoveMove(current *Solution, schedCtx *constraint.Context) *Solution {
	idxs := n.adjustableIndices(current, schedCtx)
	if len(current.Assignments) <= 1 || len(idxs) == 0 {
		return nil
	}

	neighbor := current.Clone()

	idx := idxs[n.rng.Intn(len(idxs))]
	neighbor.Assignments = append(neighbor.Assignments[:idx], neighbor.Assignments[idx+1:]...)

	return neighbor
}

// generateDaySwapMove 生成日交换移动
// 把两天里模板与时段类型相同的分配两两配对，互换人员
func (n *NeighborhoodGenerator) generateDaySwapMove(current *Solution, schedCtx *constraint.Context) *Solution {
	byDate := make(map[string][]int)
	for i, a := range current.Assignments {
		byDate[a.Date] = append(byDate[a.Date], i)
	}
	if len(byDate) < 2 {
		return nil
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	i := n.rng.Intn(len(dates))
	j := n.rng.Intn(len(dates))
	for j == i {
		j = n.rng.Intn(len(dates))
	}

	neighbor := current.Clone()
	swapped := false
	used := make(map[int]bool)

	for _, ai := range byDate[dates[i]] {
		a := neighbor.Assignments[ai]
		for _, bj := range byDate[dates[j]] {
			if used[bj] {
				continue
			}
			b := neighbor.Assignments[bj]
			slotA := schedCtx.GetSlot(a.SlotID)
			slotB := schedCtx.GetSlot(b.SlotID)
			if slotA == nil || slotB == nil {
				continue
			}
			if slotA.Protected || slotB.Protected {
				continue
			}
			if slotA.TemplateID != slotB.TemplateID || slotA.TimeOfDay != slotB.TimeOfDay {
				continue
			}
			pa := schedCtx.GetPerson(a.PersonID)
			pb := schedCtx.GetPerson(b.PersonID)
			if pa == nil || pb == nil || pa.ID == pb.ID {
				continue
			}
			setPerson(a, pb)
			setPerson(b, pa)
			used[bj] = true
			swapped = true
			break
		}
	}

	if !swapped {
		return nil
	}
	return neighbor
}

// generateChainMove 生成链式轮换移动
// 随机选 2-4 个互不重复的分配，人员依次后移一位
func (n *NeighborhoodGenerator) generateChainMove(current *Solution, schedCtx *constraint.Context) *Solution {
	idxs := n.adjustableIndices(current, schedCtx)
	if len(idxs) < 3 {
		return nil
	}

	neighbor := current.Clone()

	chainLen := 2 + n.rng.Intn(3)
	if chainLen > len(idxs) {
		chainLen = len(idxs)
	}

	perm := n.rng.Perm(len(idxs))
	indices := make([]int, chainLen)
	for k := 0; k < chainLen; k++ {
		indices[k] = idxs[perm[k]]
	}

	people := make([]*model.Person, chainLen)
	for k, idx := range indices {
		people[k] = schedCtx.GetPerson(neighbor.Assignments[idx].PersonID)
		if people[k] == nil {
			return nil
		}
	}

	for k, idx := range indices {
		setPerson(neighbor.Assignments[idx], people[(k+1)%chainLen])
	}

	return neighbor
}

// Crossover 均匀交叉
// 以时段为基因位：每个时段的分配整体取自随机一方父代。
func (n *NeighborhoodGenerator) Crossover(a, b *Solution) *Solution {
	bySlotA := groupBySlot(a.Assignments)
	bySlotB := groupBySlot(b.Assignments)

	slotIDs := make([]string, 0, len(bySlotA)+len(bySlotB))
	seen := make(map[string]bool)
	for id := range bySlotA {
		slotIDs = append(slotIDs, id)
		seen[id] = true
	}
	for id := range bySlotB {
		if !seen[id] {
			slotIDs = append(slotIDs, id)
		}
	}
	sort.Strings(slotIDs)

	child := &Solution{}
	for _, id := range slotIDs {
		var src []*model.Assignment
		if n.rng.Float64() < 0.5 {
			src = bySlotA[id]
		} else {
			src = bySlotB[id]
		}
		for _, assignment := range src {
			child.Assignments = append(child.Assignments, assignment.Clone())
		}
	}
	return child
}

// GenerateBatch 批量生成邻域解
func (n *NeighborhoodGenerator) GenerateBatch(current *Solution, schedCtx *constraint.Context, count int) []*Solution {
	results := make([]*Solution, 0, count)

	for i := 0; i < count; i++ {
		neighbor := n.GenerateNeighbor(current, schedCtx)
		if neighbor != nil {
			results = append(results, neighbor)
		}
	}

	return results
}

// SetMoveWeights 设置移动类型权重
func (n *NeighborhoodGenerator) SetMoveWeights(weights map[MoveType]float64) {
	n.moveWeights = weights
}

// setPerson 把分配改派给指定人员，同步角色与职级快照
func setPerson(a *model.Assignment, p *model.Person) {
	a.PersonID = p.ID
	a.Role = p.Role
	a.Level = p.Level
}

// groupBySlot 按时段分组分配
func groupBySlot(assignments []*model.Assignment) map[string][]*model.Assignment {
	grouped := make(map[string][]*model.Assignment)
	for _, a := range assignments {
		key := a.SlotID.String()
		grouped[key] = append(grouped[key], a)
	}
	return grouped
}

// makeAssignment 为人员与时段构造新分配
func makeAssignment(schedCtx *constraint.Context, person *model.Person, slot *model.TimeSlot) *model.Assignment {
	a := &model.Assignment{
		BaseModel:  model.BaseModel{ID: uuid.New()},
		OrgID:      schedCtx.OrgID,
		PersonID:   person.ID,
		SlotID:     slot.ID,
		TemplateID: slot.TemplateID,
		Date:       slot.Date,
		Role:       person.Role,
		Level:      person.Level,
		Status:     "scheduled",
	}
	if tr, err := slot.TimeRange(); err == nil {
		a.StartTime = tr.Start
		a.EndTime = tr.End
	}
	return a
}
