// Package optimizer 提供排班优化算法
package optimizer

import (
	"context"
	"sync"

	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// ParallelEvaluator 并行评估器
// 用有界工作池批量计算方案的目标向量与硬约束状态，评估互不依赖，
// 结果按方案就地写回，调用方在返回后串行消费。
type ParallelEvaluator struct {
	workers    int
	manager    *constraint.Manager
	objectives []*Objective
}

// NewParallelEvaluator 创建并行评估器
func NewParallelEvaluator(workers int, manager *constraint.Manager, objectives []*Objective) *ParallelEvaluator {
	if workers <= 0 {
		workers = 4
	}
	return &ParallelEvaluator{
		workers:    workers,
		manager:    manager,
		objectives: objectives,
	}
}

// EvaluateBatch 并行评估一批方案
func (p *ParallelEvaluator) EvaluateBatch(ctx context.Context, solutions []*Solution, schedCtx *constraint.Context) {
	if len(solutions) == 0 {
		return
	}

	jobChan := make(chan *Solution, len(solutions))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sol := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
					p.Evaluate(sol, schedCtx)
				}
			}
		}()
	}

	for _, sol := range solutions {
		jobChan <- sol
	}
	close(jobChan)

	wg.Wait()
}

// Evaluate 评估单个方案：目标原始值、归一化向量与硬约束违反
func (p *ParallelEvaluator) Evaluate(sol *Solution, schedCtx *constraint.Context) {
	set := workingSet(schedCtx, sol)

	sol.Objectives = make([]float64, len(p.objectives))
	sol.Normalized = make([]float64, len(p.objectives))
	for i, obj := range p.objectives {
		v := obj.Evaluate(schedCtx, set)
		sol.Objectives[i] = v
		sol.Normalized[i] = obj.Normalize(v)
	}

	sol.HardPenalty, sol.HardViolations = evaluateHard(p.manager, schedCtx, set)
	sol.Feasible = sol.HardViolations == 0
}

// workingSet 把方案分配与锁定分配合并成评估用工作集
func workingSet(schedCtx *constraint.Context, sol *Solution) *constraint.AssignmentSet {
	set := constraint.NewAssignmentSet(schedCtx.Locked)
	for _, a := range sol.Assignments {
		set.Add(a)
	}
	return set
}

// evaluateHard 评估启用的硬约束，返回罚分总和与违反条数
func evaluateHard(manager *constraint.Manager, schedCtx *constraint.Context, set *constraint.AssignmentSet) (float64, int) {
	var penalty float64
	var count int
	for _, c := range manager.GetByCategory(constraint.CategoryHard) {
		valid, p, details := c.Evaluate(schedCtx, set)
		if !valid {
			penalty += p
			count += len(details)
		}
	}
	return penalty, count
}
