package solver

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/logger"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// CPSolver 约束搜索求解器
// 先做线性松弛探测排除明显不可行的输入，再对必排班次做深度优先回溯
// 搜索。搜索完备遍历仍无解即判定不可行；节点预算耗尽或超时返回当前
// 最深的部分解。相同种子产生相同的搜索路径与结果。
type CPSolver struct {
	manager *constraint.Manager
	logger  *logger.SolveLogger
}

// NewCPSolver 创建约束搜索求解器
func NewCPSolver(cm *constraint.Manager) *CPSolver {
	return &CPSolver{
		manager: cm,
		logger:  logger.NewSolveLogger(),
	}
}

// Name 返回求解器名称
func (s *CPSolver) Name() string {
	return "cp_search"
}

// searchState 回溯搜索的可变状态
type searchState struct {
	goCtx      context.Context
	schedCtx   *constraint.Context
	set        *constraint.AssignmentSet
	order      []*model.TimeSlot
	candidates map[uuid.UUID][]*model.Person
	picked     []*model.Assignment

	nodes      int
	backtracks int
	maxNodes   int

	best      []*model.Assignment // 最深部分解的拷贝
	bestDepth int

	interrupted error
	limitHit    bool
}

// Solve 执行松弛探测与回溯搜索
func (s *CPSolver) Solve(ctx context.Context, schedCtx *constraint.Context, opts Options) (*Result, error) {
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

	// 锁定分配已覆盖的班次不再是搜索对象
	required := openSlots(schedCtx)
	if len(required) == 0 {
		set := constraint.NewAssignmentSet(schedCtx.Locked)
		result.ConstraintResult = s.manager.Evaluate(schedCtx, set)
		result.Status = classify(result.ConstraintResult)
		if opts.FeasibilityOnly && result.Status == StatusSuccess {
			result.Status = StatusFeasible
		}
		result.Message = "没有待覆盖的必排班次"
		result.Duration = time.Since(startTime)
		fillStatistics(result, schedCtx, set)
		return result, nil
	}

	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultOptions().MaxNodes
	}

	// 松弛探测：上界不足时直接判不可行，省去无谓搜索
	probe := relaxationProbe(schedCtx)
	if probe.Infeasible {
		result.Status = StatusInfeasible
		result.Message = fmt.Sprintf("线性松弛判定不可行：%s（松弛上界 %.1f，必排班次 %d）",
			probe.Reason, probe.MaxCoverage, len(required))
		result.Duration = time.Since(startTime)
		s.logger.SolveComplete(schedCtx.OrgID.String(), string(result.Status), result.Duration, 0)
		return result, nil
	}

	st := &searchState{
		goCtx:      ctx,
		schedCtx:   schedCtx,
		set:        constraint.NewAssignmentSet(schedCtx.Locked),
		order:      searchOrder(schedCtx, required),
		candidates: candidateLists(schedCtx, required, opts.Seed),
		maxNodes:   opts.MaxNodes,
	}

	found := s.search(st, 0)

	result.Statistics.Nodes = st.nodes
	result.Statistics.Backtracks = st.backtracks
	result.Duration = time.Since(startTime)

	switch {
	case found:
		result.Assignments = st.picked
		result.ConstraintResult = s.manager.Evaluate(schedCtx, st.set)
		result.Gaps = computeGaps(schedCtx, st.set)
		result.Status = classify(result.ConstraintResult)
		if opts.FeasibilityOnly && result.Status == StatusSuccess {
			result.Status = StatusFeasible
		}
		result.Message = fmt.Sprintf("搜索成功，访问 %d 个节点", st.nodes)
		fillStatistics(result, schedCtx, st.set)

	case st.interrupted != nil:
		result.Status = interruptStatus(st.interrupted)
		if result.Status == StatusCancelled {
			result.Assignments = nil
			result.Message = "搜索被取消，已排内容废弃"
		} else {
			s.adoptInterim(result, schedCtx, st)
			result.Message = fmt.Sprintf("搜索超时，返回最深部分解（%d/%d 个班次）", st.bestDepth, len(st.order))
		}

	case st.limitHit:
		result.Status = StatusTimeout
		s.adoptInterim(result, schedCtx, st)
		result.Message = fmt.Sprintf("搜索节点数达到上限 %d，返回最深部分解（%d/%d 个班次）",
			st.maxNodes, st.bestDepth, len(st.order))

	default:
		result.Status = StatusInfeasible
		result.Message = fmt.Sprintf("回溯搜索完备遍历 %d 个节点，无可行方案", st.nodes)
	}

	score := 0.0
	if result.ConstraintResult != nil {
		score = result.ConstraintResult.Score
	}
	s.logger.SolveComplete(schedCtx.OrgID.String(), string(result.Status), result.Duration, score)
	return result, nil
}

// search 深度优先回溯，返回是否找到完整方案
func (s *CPSolver) search(st *searchState, depth int) bool {
	// 节点边界协作式检查超时与取消
	if err := st.goCtx.Err(); err != nil {
		st.interrupted = err
		return false
	}
	if depth == len(st.order) {
		return true
	}
	if st.nodes >= st.maxNodes {
		st.limitHit = true
		return false
	}

	slot := st.order[depth]
	for _, person := range st.candidates[slot.ID] {
		st.nodes++

		candidate := newAssignment(st.schedCtx, person, slot)
		if ok, _ := s.manager.CanAssign(st.schedCtx, st.set, candidate); !ok {
			continue
		}

		st.set.Add(candidate)
		st.picked = append(st.picked, candidate)
		if len(st.picked) > st.bestDepth {
			st.bestDepth = len(st.picked)
			st.best = model.CloneAssignments(st.picked)
		}

		if s.search(st, depth+1) {
			return true
		}
		if st.interrupted != nil || st.limitHit {
			return false
		}

		st.set.Remove(candidate.ID)
		st.picked = st.picked[:len(st.picked)-1]
		st.backtracks++
	}

	return false
}

// adoptInterim 把最深部分解写入结果
func (s *CPSolver) adoptInterim(result *Result, schedCtx *constraint.Context, st *searchState) {
	result.Assignments = st.best
	interim := constraint.NewAssignmentSet(schedCtx.Locked)
	for _, a := range st.best {
		interim.Add(a)
	}
	result.ConstraintResult = s.manager.Evaluate(schedCtx, interim)
	result.Gaps = computeGaps(schedCtx, interim)
	fillStatistics(result, schedCtx, interim)
}

// searchOrder 必排班次的静态搜索顺序：候选人少的在前
func searchOrder(schedCtx *constraint.Context, required []*model.TimeSlot) []*model.TimeSlot {
	order := make([]*model.TimeSlot, len(required))
	copy(order, required)

	count := make(map[uuid.UUID]int, len(order))
	for _, slot := range order {
		count[slot.ID] = len(schedCtx.EligiblePeople(slot))
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if count[a.ID] != count[b.ID] {
			return count[a.ID] < count[b.ID]
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.ID.String() < b.ID.String()
	})
	return order
}

// candidateLists 预生成每个班次的候选序，种子决定取值顺序
func candidateLists(schedCtx *constraint.Context, required []*model.TimeSlot, seed int64) map[uuid.UUID][]*model.Person {
	rng := rand.New(rand.NewSource(seed))
	lists := make(map[uuid.UUID][]*model.Person, len(required))

	// 按排序后的班次顺序消费随机数，保证相同种子产生相同候选序
	ordered := make([]*model.TimeSlot, len(required))
	copy(ordered, required)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Date != ordered[j].Date {
			return ordered[i].Date < ordered[j].Date
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	for _, slot := range ordered {
		people := schedCtx.EligiblePeople(slot)
		shuffled := make([]*model.Person, len(people))
		copy(shuffled, people)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		lists[slot.ID] = shuffled
	}
	return lists
}
