// Package optimizer 提供排班优化算法
package optimizer

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// penaltyScale 把硬约束原始罚分折算到归一化目标量纲的分母
const penaltyScale = 100.0

// 约束处理模式
const (
	HandlerStatic     = "static"
	HandlerDynamic    = "dynamic"
	HandlerAdaptive   = "adaptive"
	HandlerRepair     = "repair"
	HandlerRelaxation = "relaxation"
)

// ConstraintHandler 进化过程中的硬约束处理器
// 处理器只决定违反如何折算进适应度（或如何修复），
// 从不停用任何硬约束，违反的解永远进不了可行归档。
type ConstraintHandler interface {
	Name() string
	// Apply 根据方案当前的硬约束状态填写 Penalty，修复模式可改写分配
	Apply(schedCtx *constraint.Context, sol *Solution, generation int)
}

// StaticPenalty 固定系数罚分
type StaticPenalty struct {
	Factor float64
}

// Name 返回处理模式名称
func (h *StaticPenalty) Name() string { return HandlerStatic }

// Apply 按固定系数折算罚分
func (h *StaticPenalty) Apply(_ *constraint.Context, sol *Solution, _ int) {
	sol.Penalty = h.Factor * sol.HardPenalty / penaltyScale
}

// DynamicPenalty 随代数增长的罚分
// 早期允许不可行解参与搜索，后期逐步收紧。
type DynamicPenalty struct {
	Base   float64
	Growth float64 // 每代增长比例
}

// Name 返回处理模式名称
func (h *DynamicPenalty) Name() string { return HandlerDynamic }

// Apply 按当前代数折算罚分
func (h *DynamicPenalty) Apply(_ *constraint.Context, sol *Solution, generation int) {
	factor := h.Base * (1 + h.Growth*float64(generation))
	sol.Penalty = factor * sol.HardPenalty / penaltyScale
}

// AdaptivePenalty 自适应罚分
// 跟踪最近一个窗口的可行解占比，占比低于目标时加重罚分，高于时放松。
type AdaptivePenalty struct {
	factor      float64
	targetRatio float64
	windowSize  int

	seen     int
	feasible int
}

// NewAdaptivePenalty 创建自适应罚分处理器
func NewAdaptivePenalty(initialFactor, targetRatio float64, windowSize int) *AdaptivePenalty {
	if initialFactor <= 0 {
		initialFactor = 2.0
	}
	if targetRatio <= 0 || targetRatio >= 1 {
		targetRatio = 0.4
	}
	if windowSize <= 0 {
		windowSize = 50
	}
	return &AdaptivePenalty{
		factor:      initialFactor,
		targetRatio: targetRatio,
		windowSize:  windowSize,
	}
}

// Name 返回处理模式名称
func (h *AdaptivePenalty) Name() string { return HandlerAdaptive }

// Apply 折算罚分并更新可行率窗口
// 进化主循环串行调用，无需加锁。
func (h *AdaptivePenalty) Apply(_ *constraint.Context, sol *Solution, _ int) {
	sol.Penalty = h.factor * sol.HardPenalty / penaltyScale

	h.seen++
	if sol.Feasible {
		h.feasible++
	}
	if h.seen < h.windowSize {
		return
	}

	ratio := float64(h.feasible) / float64(h.seen)
	if ratio < h.targetRatio {
		h.factor *= 1.5
		if h.factor > 100 {
			h.factor = 100
		}
	} else {
		h.factor *= 0.9
		if h.factor < 0.5 {
			h.factor = 0.5
		}
	}
	h.seen = 0
	h.feasible = 0
}

// Factor 返回当前罚分系数
func (h *AdaptivePenalty) Factor() float64 { return h.factor }

// RepairHandler 修复处理器
// 先做定向修复：对每条硬违反涉及的分配尝试换成通过硬约束过滤的候选人，
// 换不动就整条移除；仍不可行时用短程局部搜索压硬罚分，残余违反回退静态罚分。
type RepairHandler struct {
	manager   *constraint.Manager
	evaluator *ParallelEvaluator
	rng       *rand.Rand
	fallback  StaticPenalty
	maxPasses int
}

// NewRepairHandler 创建修复处理器
func NewRepairHandler(manager *constraint.Manager, evaluator *ParallelEvaluator, rng *rand.Rand) *RepairHandler {
	return &RepairHandler{
		manager:   manager,
		evaluator: evaluator,
		rng:       rng,
		fallback:  StaticPenalty{Factor: 2.0},
		maxPasses: 3,
	}
}

// Name 返回处理模式名称
func (h *RepairHandler) Name() string { return HandlerRepair }

// Apply 尝试修复硬违反，修复后重新评估方案
func (h *RepairHandler) Apply(schedCtx *constraint.Context, sol *Solution, generation int) {
	if sol.Feasible {
		sol.Penalty = 0
		return
	}

	for pass := 0; pass < h.maxPasses && !sol.Feasible; pass++ {
		if !h.repairPass(schedCtx, sol) {
			break
		}
		h.evaluator.Evaluate(sol, schedCtx)
	}

	if !sol.Feasible {
		h.escapeSearch(schedCtx, sol)
	}

	if sol.Feasible {
		sol.Penalty = 0
		return
	}
	h.fallback.Apply(schedCtx, sol, generation)
}

// repairPass 执行一轮定向修复，返回是否有改动
func (h *RepairHandler) repairPass(schedCtx *constraint.Context, sol *Solution) bool {
	set := workingSet(schedCtx, sol)
	details := hardDetails(h.manager, schedCtx, set)
	if len(details) == 0 {
		return false
	}

	changed := false
	for _, d := range details {
		idx := locateAssignment(sol, d)
		if idx < 0 {
			continue
		}
		orig := sol.Assignments[idx]
		set.Remove(orig.ID)

		replaced := false
		if slot := schedCtx.GetSlot(orig.SlotID); slot != nil {
			for _, p := range schedCtx.EligiblePeople(slot) {
				if p.ID == orig.PersonID {
					continue
				}
				cand := makeAssignment(schedCtx, p, slot)
				if ok, _ := h.manager.CanAssign(schedCtx, set, cand); ok {
					sol.Assignments[idx] = cand
					set.Add(cand)
					replaced = true
					changed = true
					break
				}
			}
		}
		if !replaced {
			// 没有可行候选人，放弃这条分配换取硬可行
			sol.Assignments = append(sol.Assignments[:idx], sol.Assignments[idx+1:]...)
			changed = true
		}
	}
	return changed
}

// escapeSearch 定向修复卡住时的短程局部搜索，目标是硬罚分
func (h *RepairHandler) escapeSearch(schedCtx *constraint.Context, sol *Solution) {
	cfg := &OptimizationConfig{
		MaxIterations:    40,
		MaxTime:          2 * time.Second,
		InitialTemp:      10.0,
		CoolingRate:      0.95,
		TabuSize:         20,
		NeighborhoodSize: 10,
		StopOnPlateau:    true,
		PlateauThreshold: 15,
	}
	score := func(s *Solution) float64 {
		p, _ := evaluateHard(h.manager, schedCtx, workingSet(schedCtx, s))
		return p
	}

	ls := NewLocalSearchOptimizer(cfg, score, h.rng)
	improved, err := ls.Optimize(context.Background(), schedCtx, sol)
	if err != nil || improved == nil {
		return
	}
	if score(improved) < sol.HardPenalty {
		sol.Assignments = improved.Assignments
		h.evaluator.Evaluate(sol, schedCtx)
	}
}

// RelaxationHandler 松弛处理器
// 不向适应度注入罚分，只把违反量记录在方案上供报告使用。
type RelaxationHandler struct {
	manager *constraint.Manager
}

// NewRelaxationHandler 创建松弛处理器
func NewRelaxationHandler(manager *constraint.Manager) *RelaxationHandler {
	return &RelaxationHandler{manager: manager}
}

// Name 返回处理模式名称
func (h *RelaxationHandler) Name() string { return HandlerRelaxation }

// Apply 记录违反量，不折算罚分
func (h *RelaxationHandler) Apply(schedCtx *constraint.Context, sol *Solution, _ int) {
	sol.Penalty = 0
	if sol.Feasible {
		sol.RelaxedAmounts = nil
		return
	}

	amounts := make(map[string]float64)
	for _, d := range hardDetails(h.manager, schedCtx, workingSet(schedCtx, sol)) {
		amounts[d.ConstraintName] += d.Magnitude
	}
	sol.RelaxedAmounts = amounts
}

// hardDetails 收集启用硬约束的违反明细
func hardDetails(manager *constraint.Manager, schedCtx *constraint.Context, set *constraint.AssignmentSet) []constraint.ViolationDetail {
	var details []constraint.ViolationDetail
	for _, c := range manager.GetByCategory(constraint.CategoryHard) {
		valid, _, ds := c.Evaluate(schedCtx, set)
		if !valid {
			details = append(details, ds...)
		}
	}
	return details
}

// locateAssignment 找到违反明细涉及的分配下标
// 优先匹配 (人员, 时段)，其次 (人员, 日期)，最后仅按人员。
func locateAssignment(sol *Solution, d constraint.ViolationDetail) int {
	if d.PersonID == uuid.Nil {
		return -1
	}
	byPersonDate := -1
	byPerson := -1
	for i, a := range sol.Assignments {
		if a.PersonID != d.PersonID {
			continue
		}
		if d.SlotID != uuid.Nil && a.SlotID == d.SlotID {
			return i
		}
		if byPersonDate < 0 && d.Date != "" && a.Date == d.Date {
			byPersonDate = i
		}
		if byPerson < 0 {
			byPerson = i
		}
	}
	if d.SlotID != uuid.Nil {
		// 指向时段的违反退而匹配同日分配，冲突另一方可能是锁定分配
		if byPersonDate >= 0 {
			return byPersonDate
		}
		return -1
	}
	if byPersonDate >= 0 {
		return byPersonDate
	}
	return byPerson
}

// newConstraintHandler 按模式创建约束处理器
func newConstraintHandler(mode string, manager *constraint.Manager, evaluator *ParallelEvaluator, rng *rand.Rand, factor float64) ConstraintHandler {
	if factor <= 0 {
		factor = 2.0
	}
	switch mode {
	case HandlerDynamic:
		return &DynamicPenalty{Base: factor, Growth: 0.1}
	case HandlerAdaptive:
		return NewAdaptivePenalty(factor, 0.4, 50)
	case HandlerRepair:
		return NewRepairHandler(manager, evaluator, rng)
	case HandlerRelaxation:
		return NewRelaxationHandler(manager)
	default:
		return &StaticPenalty{Factor: factor}
	}
}
