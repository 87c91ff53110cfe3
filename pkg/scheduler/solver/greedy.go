package solver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/logger"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// GreedySolver 贪心求解器
// 班次按难度降序处理（候选人越少越先排），每个席位选择软约束罚分
// 最低的可行人选，罚分相同时取累计工时最少者，再相同按人员 ID 取稳定序。
type GreedySolver struct {
	manager *constraint.Manager
	logger  *logger.SolveLogger
}

// NewGreedySolver 创建贪心求解器
func NewGreedySolver(cm *constraint.Manager) *GreedySolver {
	return &GreedySolver{
		manager: cm,
		logger:  logger.NewSolveLogger(),
	}
}

// Name 返回求解器名称
func (s *GreedySolver) Name() string {
	return "greedy"
}

// slotOrder 按求解难度对班次排序
// 候选人少的在前，必排在前，随后按日期、时段、ID 保证稳定
func slotOrder(schedCtx *constraint.Context) []*model.TimeSlot {
	slots := make([]*model.TimeSlot, len(schedCtx.Slots))
	copy(slots, schedCtx.Slots)

	candidateCount := make(map[uuid.UUID]int, len(slots))
	for _, slot := range slots {
		candidateCount[slot.ID] = len(schedCtx.EligiblePeople(slot))
	}

	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if candidateCount[a.ID] != candidateCount[b.ID] {
			return candidateCount[a.ID] < candidateCount[b.ID]
		}
		if a.NeedsCoverage() != b.NeedsCoverage() {
			return a.NeedsCoverage()
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.TimeOfDay != b.TimeOfDay {
			return a.TimeOfDay < b.TimeOfDay
		}
		return a.ID.String() < b.ID.String()
	})
	return slots
}

// Solve 使用贪心算法生成排班
func (s *GreedySolver) Solve(ctx context.Context, schedCtx *constraint.Context, opts Options) (*Result, error) {
	startTime := time.Now()
	s.logger.StartSolve(schedCtx.OrgID.String(), s.Name(), len(schedCtx.People), len(schedCtx.Slots))

	result := &Result{
		Status:      StatusPartial,
		Assignments: make([]*model.Assignment, 0),
		Statistics:  &Statistics{},
	}

	if len(schedCtx.People) == 0 {
		return result, fmt.Errorf("没有可用人员")
	}
	if len(schedCtx.Slots) == 0 {
		result.Status = StatusSuccess
		result.Message = "没有排班需求"
		result.Duration = time.Since(startTime)
		result.ConstraintResult = s.manager.Evaluate(schedCtx, constraint.NewAssignmentSet(schedCtx.Locked))
		return result, nil
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}

	// 锁定分配作为既定事实进入工作集
	set := constraint.NewAssignmentSet(schedCtx.Locked)

	// 累计工时跟踪，锁定分配的工时计入
	personHours := make(map[uuid.UUID]float64, len(schedCtx.People))
	for _, p := range schedCtx.People {
		personHours[p.ID] = set.TotalHours(p.ID)
	}

	iterations := 0
	slots := slotOrder(schedCtx)

	for _, slot := range slots {
		// 迭代边界协作式检查超时与取消
		if err := ctx.Err(); err != nil {
			return s.interrupted(result, schedCtx, set, startTime, err), nil
		}

		iterations++
		if iterations > opts.MaxIterations {
			break
		}

		capacity := 1
		if tpl := schedCtx.GetTemplate(slot.TemplateID); tpl != nil && tpl.Capacity > 0 {
			capacity = tpl.Capacity
		}

		for seat := set.CountForSlot(slot.ID); seat < capacity; seat++ {
			pick := s.pickCandidate(schedCtx, set, slot, personHours)
			if pick == nil {
				break
			}
			set.Add(pick)
			result.Assignments = append(result.Assignments, pick)
			personHours[pick.PersonID] += pick.WorkingHours()
		}
	}

	result.ConstraintResult = s.manager.Evaluate(schedCtx, set)
	result.Gaps = computeGaps(schedCtx, set)
	result.Status = classify(result.ConstraintResult)
	result.Duration = time.Since(startTime)
	result.Statistics.Iterations = iterations
	fillStatistics(result, schedCtx, set)

	if result.Status == StatusSuccess {
		result.Message = fmt.Sprintf("排班成功，覆盖率 %.1f%%", result.Statistics.FillRate)
	} else {
		result.Message = fmt.Sprintf("存在 %d 个硬约束违反，%d 个班次未覆盖",
			len(result.ConstraintResult.HardViolations), len(result.Gaps))
	}

	s.logger.SolveComplete(schedCtx.OrgID.String(), string(result.Status), result.Duration, result.ConstraintResult.Score)
	return result, nil
}

// pickCandidate 为班次挑选最优可行人选
func (s *GreedySolver) pickCandidate(schedCtx *constraint.Context, set *constraint.AssignmentSet, slot *model.TimeSlot, hours map[uuid.UUID]float64) *model.Assignment {
	var best *model.Assignment
	var bestPerson *model.Person
	var bestPenalty float64

	for _, person := range schedCtx.EligiblePeople(slot) {
		candidate := newAssignment(schedCtx, person, slot)

		ok, reason := s.manager.CanAssign(schedCtx, set, candidate)
		if !ok {
			s.logger.ConstraintViolation("分配检查", fmt.Sprintf("人员 %s: %s", person.Name, reason))
			continue
		}

		penalty := s.manager.SoftPenalty(schedCtx, set, candidate)

		if best == nil || penalty < bestPenalty ||
			(penalty == bestPenalty && hours[person.ID] < hours[bestPerson.ID]) ||
			(penalty == bestPenalty && hours[person.ID] == hours[bestPerson.ID] &&
				person.ID.String() < bestPerson.ID.String()) {
			best = candidate
			bestPerson = person
			bestPenalty = penalty
		}
	}

	return best
}

// interrupted 处理超时与取消：超时返回当前中间结果，取消废弃已排内容
func (s *GreedySolver) interrupted(result *Result, schedCtx *constraint.Context, set *constraint.AssignmentSet, startTime time.Time, err error) *Result {
	result.Status = interruptStatus(err)
	result.Duration = time.Since(startTime)

	if result.Status == StatusCancelled {
		result.Assignments = nil
		result.Message = "求解被取消，已排内容废弃"
		return result
	}

	result.ConstraintResult = s.manager.Evaluate(schedCtx, set)
	result.Gaps = computeGaps(schedCtx, set)
	fillStatistics(result, schedCtx, set)
	result.Message = fmt.Sprintf("求解超时，返回当前中间结果，%d 个班次未覆盖", len(result.Gaps))
	return result
}
