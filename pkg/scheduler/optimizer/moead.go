// Package optimizer 提供排班优化算法
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/rotaplan/rotaplan/pkg/logger"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/scheduler/solver"
)

// MOEAConfig MOEA/D 配置
type MOEAConfig struct {
	Divisions        int     `json:"divisions"`         // 权重格点等分数 H
	NeighborhoodSize int     `json:"neighborhood_size"` // 子问题近邻数 T
	Generations      int     `json:"generations"`       // 进化代数
	Delta            float64 `json:"delta"`             // 从近邻取父代的概率
	MaxReplacements  int     `json:"max_replacements"`  // 单个子代最多替换的近邻数
	CrossoverRate    float64 `json:"crossover_rate"`    // 交叉概率
	MutationRate     float64 `json:"mutation_rate"`     // 变异概率
	InitFillRate     float64 `json:"init_fill_rate"`    // 随机初始化的时段填充概率
	Workers          int     `json:"workers"`           // 并行评估工作数
	Seed             int64   `json:"seed"`              // 随机种子
	Scalarizer       string  `json:"scalarizer"`        // weighted_sum / tchebycheff / pbi
	PBITheta         float64 `json:"pbi_theta"`         // PBI 偏离罚系数
	ConstraintMode   string  `json:"constraint_mode"`   // static / dynamic / adaptive / repair / relaxation
	PenaltyFactor    float64 `json:"penalty_factor"`    // 罚分系数
	ArchiveCapacity  int     `json:"archive_capacity"`  // 归档容量
	ArchiveMode      string  `json:"archive_mode"`      // crowding / epsilon
	ArchiveEpsilon   float64 `json:"archive_epsilon"`   // epsilon 网格边长
}

// DefaultMOEAConfig 默认 MOEA/D 配置
func DefaultMOEAConfig() *MOEAConfig {
	return &MOEAConfig{
		Divisions:        6,
		NeighborhoodSize: 10,
		Generations:      100,
		Delta:            0.9,
		MaxReplacements:  2,
		CrossoverRate:    0.9,
		MutationRate:     0.3,
		InitFillRate:     0.8,
		Workers:          4,
		Seed:             1,
		Scalarizer:       "tchebycheff",
		PBITheta:         5.0,
		ConstraintMode:   HandlerStatic,
		PenaltyFactor:    2.0,
		ArchiveCapacity:  50,
		ArchiveMode:      ArchiveCrowding,
		ArchiveEpsilon:   0.05,
	}
}

// RunResult 多目标优化结果
type RunResult struct {
	Status      solver.Status
	Frontier    []*Solution // 可行非支配前沿
	Recommended *Solution   // 等权切比雪夫膝点
	Generations int         // 实际完成代数
	Evaluations int         // 评估次数
	Ideal       []float64   // 在线维护的理想点（归一化空间）
	Nadir       []float64   // 在线维护的最劣点（归一化空间）
	Duration    time.Duration
	Message     string
}

// MOEAD 分解式多目标进化优化器
// 把多目标问题分解为一组权重向量子问题，近邻子问题间共享优良子代，
// 可行非支配解进入外部归档，终止时输出前沿与推荐解。
type MOEAD struct {
	config     *MOEAConfig
	manager    *constraint.Manager
	objectives []*Objective
	scalarizer Scalarizer
	handler    ConstraintHandler
	evaluator  *ParallelEvaluator
	moves      *NeighborhoodGenerator
	reweighter *Reweighter
	rng        *rand.Rand
	progress   *logger.SolveLogger
}

// NewMOEAD 创建 MOEA/D 优化器
func NewMOEAD(config *MOEAConfig, manager *constraint.Manager, objectives []*Objective) *MOEAD {
	if config == nil {
		config = DefaultMOEAConfig()
	}
	rng := rand.New(rand.NewSource(config.Seed))
	evaluator := NewParallelEvaluator(config.Workers, manager, objectives)
	return &MOEAD{
		config:     config,
		manager:    manager,
		objectives: objectives,
		scalarizer: newScalarizer(config.Scalarizer, config.PBITheta),
		handler:    newConstraintHandler(config.ConstraintMode, manager, evaluator, rng, config.PenaltyFactor),
		evaluator:  evaluator,
		moves:      NewNeighborhoodGenerator(rng),
		rng:        rng,
		progress:   logger.NewSolveLogger(),
	}
}

// SetFeedback 挂接外部反馈源，代边界轮询并调整软目标侧重
func (m *MOEAD) SetFeedback(source FeedbackSource) {
	m.reweighter = NewReweighter(source, m.objectives)
}

// Run 执行多目标优化
// warmStart 为单目标求解器产出的热启动分配，可为空。
func (m *MOEAD) Run(ctx context.Context, schedCtx *constraint.Context, warmStart []*model.Assignment) (*RunResult, error) {
	start := time.Now()

	if len(m.objectives) < 2 {
		return nil, fmt.Errorf("多目标优化至少需要两个目标，当前 %d 个", len(m.objectives))
	}
	if len(schedCtx.People) == 0 {
		return nil, fmt.Errorf("没有可用人员")
	}

	weights := simplexLattice(m.config.Divisions, len(m.objectives))
	n := len(weights)
	neighborhoods := nearestNeighbors(weights, m.config.NeighborhoodSize)
	archive := NewArchive(m.config.ArchiveCapacity, m.config.ArchiveMode, m.config.ArchiveEpsilon)

	log.Printf("开始 MOEA/D 优化: subproblems=%d, objectives=%d, generations=%d, scalarizer=%s, constraint_mode=%s",
		n, len(m.objectives), m.config.Generations, m.scalarizer.Name(), m.handler.Name())

	population := m.initPopulation(schedCtx, n, warmStart)
	m.evaluator.EvaluateBatch(ctx, population, schedCtx)
	if err := ctx.Err(); err != nil {
		return m.interrupted(err, archive, 0, 0, nil, nil, start), nil
	}

	ideal := make([]float64, len(m.objectives))
	nadir := make([]float64, len(m.objectives))
	for i := range ideal {
		ideal[i] = math.Inf(1)
		nadir[i] = math.Inf(-1)
	}
	for _, sol := range population {
		m.handler.Apply(schedCtx, sol, 0)
		updatePoint(ideal, nadir, sol.Normalized)
		archive.Add(sol)
	}
	evaluations := n

	allIndices := make([]int, n)
	for i := range allIndices {
		allIndices[i] = i
	}

	completed := 0
	for gen := 1; gen <= m.config.Generations; gen++ {
		// 代边界协作式检查超时与取消
		if err := ctx.Err(); err != nil {
			return m.interrupted(err, archive, completed, evaluations, ideal, nadir, start), nil
		}

		if m.reweighter != nil {
			m.reweighter.Adjust(weights)
		}

		// 串行生成子代，随机数消费顺序固定，同种子可复现
		children := make([]*Solution, n)
		for i := 0; i < n; i++ {
			pool := neighborhoods[i]
			if m.rng.Float64() >= m.config.Delta {
				pool = allIndices
			}
			p1 := population[pool[m.rng.Intn(len(pool))]]
			p2 := population[pool[m.rng.Intn(len(pool))]]

			var child *Solution
			if m.rng.Float64() < m.config.CrossoverRate {
				child = m.moves.Crossover(p1, p2)
			} else {
				child = p1.Clone()
			}
			if m.rng.Float64() < m.config.MutationRate {
				if mutated := m.moves.GenerateNeighbor(child, schedCtx); mutated != nil {
					child = mutated
				}
			}
			children[i] = child
		}

		m.evaluator.EvaluateBatch(ctx, children, schedCtx)
		evaluations += n
		if err := ctx.Err(); err != nil {
			return m.interrupted(err, archive, completed, evaluations, ideal, nadir, start), nil
		}

		// 串行：约束处理、理想点维护、近邻替换、归档
		for i := 0; i < n; i++ {
			child := children[i]
			m.handler.Apply(schedCtx, child, gen)
			updatePoint(ideal, nadir, child.Normalized)

			replaced := 0
			for _, j := range neighborhoods[i] {
				if replaced >= m.config.MaxReplacements {
					break
				}
				if m.fitness(child, weights[j], ideal) < m.fitness(population[j], weights[j], ideal) {
					population[j] = child.Clone()
					replaced++
				}
			}
			archive.Add(child)
		}
		completed = gen

		if gen%10 == 0 || gen == m.config.Generations {
			m.progress.GenerationProgress(schedCtx.OrgID.String(), gen, archive.Len())
		}
	}

	result := &RunResult{
		Status:      solver.StatusSuccess,
		Frontier:    archive.Solutions(),
		Generations: completed,
		Evaluations: evaluations,
		Ideal:       ideal,
		Nadir:       nadir,
		Duration:    time.Since(start),
	}
	result.Recommended = Knee(result.Frontier)
	if len(result.Frontier) == 0 {
		result.Status = solver.StatusPartial
		result.Message = "进化结束时归档为空，没有可行解进入前沿"
	} else {
		result.Message = fmt.Sprintf("多目标优化完成，前沿规模 %d，评估 %d 次", len(result.Frontier), evaluations)
	}

	log.Printf("MOEA/D 优化完成: generations=%d, evaluations=%d, frontier=%d, elapsed=%s",
		completed, evaluations, len(result.Frontier), result.Duration)
	return result, nil
}

// fitness 子问题适应度：标量化值加约束罚分
func (m *MOEAD) fitness(sol *Solution, weight, ideal []float64) float64 {
	if len(sol.Normalized) == 0 {
		return math.Inf(1)
	}
	return m.scalarizer.Scalarize(sol.Normalized, weight, ideal) + sol.Penalty
}

// initPopulation 构造初始种群，热启动解占据第一个位置
func (m *MOEAD) initPopulation(schedCtx *constraint.Context, n int, warmStart []*model.Assignment) []*Solution {
	population := make([]*Solution, n)

	idx := 0
	if len(warmStart) > 0 {
		population[0] = &Solution{Assignments: model.CloneAssignments(warmStart)}
		idx = 1
	}
	for ; idx < n; idx++ {
		population[idx] = m.randomSolution(schedCtx)
	}
	return population
}

// randomSolution 随机构造一个方案
// 锁定分配已覆盖的时段不再生成，候选人从合格人员中等概率选取。
func (m *MOEAD) randomSolution(schedCtx *constraint.Context) *Solution {
	lockedSlots := make(map[string]bool, len(schedCtx.Locked))
	for _, a := range schedCtx.Locked {
		lockedSlots[a.SlotID.String()] = true
	}

	sol := &Solution{}
	for _, slot := range schedCtx.Slots {
		if lockedSlots[slot.ID.String()] {
			continue
		}
		if m.rng.Float64() >= m.config.InitFillRate {
			continue
		}
		people := schedCtx.EligiblePeople(slot)
		if len(people) == 0 {
			continue
		}
		person := people[m.rng.Intn(len(people))]
		sol.Assignments = append(sol.Assignments, makeAssignment(schedCtx, person, slot))
	}
	return sol
}

// interrupted 处理超时与取消：超时保留当前前沿，取消废弃
func (m *MOEAD) interrupted(err error, archive *Archive, generations, evaluations int, ideal, nadir []float64, start time.Time) *RunResult {
	result := &RunResult{
		Generations: generations,
		Evaluations: evaluations,
		Ideal:       ideal,
		Nadir:       nadir,
		Duration:    time.Since(start),
	}

	if errors.Is(err, context.DeadlineExceeded) {
		result.Status = solver.StatusTimeout
		result.Frontier = archive.Solutions()
		result.Recommended = Knee(result.Frontier)
		result.Message = fmt.Sprintf("优化超时，返回第 %d 代的中间前沿（规模 %d）", generations, len(result.Frontier))
		return result
	}

	result.Status = solver.StatusCancelled
	result.Message = "优化被取消，中间前沿废弃"
	return result
}

// updatePoint 在线维护理想点与最劣点
func updatePoint(ideal, nadir, normalized []float64) {
	for i, z := range normalized {
		if i >= len(ideal) {
			break
		}
		if z < ideal[i] {
			ideal[i] = z
		}
		if z > nadir[i] {
			nadir[i] = z
		}
	}
}
