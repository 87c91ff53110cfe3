package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/rotaplan/rotaplan/pkg/logger"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// HybridSolver 混合求解器
// 先用贪心快速构造热启动方案，未能全覆盖时把贪心结果固定为锁定分配，
// 只对残余班次做有界回溯搜索。残余搜索失败则回退到贪心的部分解。
type HybridSolver struct {
	greedy *GreedySolver
	cp     *CPSolver
	logger *logger.SolveLogger
}

// NewHybridSolver 创建混合求解器
func NewHybridSolver(cm *constraint.Manager) *HybridSolver {
	return &HybridSolver{
		greedy: NewGreedySolver(cm),
		cp:     NewCPSolver(cm),
		logger: logger.NewSolveLogger(),
	}
}

// Name 返回求解器名称
func (s *HybridSolver) Name() string {
	return "hybrid"
}

// Solve 贪心热启动加残余搜索
func (s *HybridSolver) Solve(ctx context.Context, schedCtx *constraint.Context, opts Options) (*Result, error) {
	startTime := time.Now()
	s.logger.StartSolve(schedCtx.OrgID.String(), s.Name(), len(schedCtx.People), len(schedCtx.Slots))

	greedyRes, err := s.greedy.Solve(ctx, schedCtx, opts)
	if err != nil {
		return greedyRes, err
	}

	// 贪心已成功或已被中断时没有残余搜索的余地
	switch greedyRes.Status {
	case StatusSuccess, StatusCancelled, StatusTimeout:
		greedyRes.Duration = time.Since(startTime)
		return greedyRes, nil
	}

	if len(greedyRes.Gaps) == 0 {
		greedyRes.Duration = time.Since(startTime)
		return greedyRes, nil
	}

	// 贪心结果固定为锁定分配，只搜索残余班次
	warmLocked := make([]*model.Assignment, 0, len(schedCtx.Locked)+len(greedyRes.Assignments))
	warmLocked = append(warmLocked, schedCtx.Locked...)
	warmLocked = append(warmLocked, greedyRes.Assignments...)
	residualCtx := schedCtx.WithLocked(warmLocked)

	cpRes, err := s.cp.Solve(ctx, residualCtx, opts)
	if err != nil {
		greedyRes.Duration = time.Since(startTime)
		return greedyRes, nil
	}

	switch cpRes.Status {
	case StatusSuccess, StatusFeasible:
		return s.merge(schedCtx, greedyRes, cpRes, opts, startTime), nil

	case StatusCancelled:
		cpRes.Duration = time.Since(startTime)
		return cpRes, nil

	case StatusTimeout:
		// 残余搜索的中间结果合并后仍是超时态的最优中间结果
		merged := s.merge(schedCtx, greedyRes, cpRes, opts, startTime)
		merged.Status = StatusTimeout
		merged.Message = fmt.Sprintf("残余搜索超时，合并贪心与搜索中间结果，%d 个班次未覆盖", len(merged.Gaps))
		return merged, nil

	default:
		// 残余不可行只说明贪心的既定选择堵死了出路，不构成全局不可行证明
		greedyRes.Duration = time.Since(startTime)
		greedyRes.Message = fmt.Sprintf("热启动下残余搜索无解，保留贪心部分解，%d 个班次未覆盖", len(greedyRes.Gaps))
		return greedyRes, nil
	}
}

// merge 合并贪心与残余搜索的分配并重新评估
func (s *HybridSolver) merge(schedCtx *constraint.Context, greedyRes, cpRes *Result, opts Options, startTime time.Time) *Result {
	merged := &Result{
		Assignments: make([]*model.Assignment, 0, len(greedyRes.Assignments)+len(cpRes.Assignments)),
		Statistics:  &Statistics{},
	}
	merged.Assignments = append(merged.Assignments, greedyRes.Assignments...)
	merged.Assignments = append(merged.Assignments, cpRes.Assignments...)

	set := constraint.NewAssignmentSet(schedCtx.Locked)
	for _, a := range merged.Assignments {
		set.Add(a)
	}

	merged.ConstraintResult = s.manager().Evaluate(schedCtx, set)
	merged.Gaps = computeGaps(schedCtx, set)
	merged.Status = classify(merged.ConstraintResult)
	if opts.FeasibilityOnly && merged.Status == StatusSuccess {
		merged.Status = StatusFeasible
	}
	merged.Duration = time.Since(startTime)
	merged.Statistics.Iterations = greedyRes.Statistics.Iterations
	merged.Statistics.Nodes = cpRes.Statistics.Nodes
	merged.Statistics.Backtracks = cpRes.Statistics.Backtracks
	fillStatistics(merged, schedCtx, set)

	if merged.Status == StatusSuccess {
		merged.Message = fmt.Sprintf("热启动加残余搜索成功，覆盖率 %.1f%%", merged.Statistics.FillRate)
	}
	return merged
}

// manager 返回底层约束管理器
func (s *HybridSolver) manager() *constraint.Manager {
	return s.greedy.manager
}
