// Package scheduler 排班求解引擎门面
// Engine 把一次求解的完整生命周期组织为状态机：
// INIT → BUILD_CONTEXT → SOLVE → VALIDATE → 终态。
// 输入校验失败快速返回不进入求解；策略内部 panic 在策略边界恢复，
// 以 FAILED 报告返回；不可行与超时是终态而不是错误。
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/errors"
	"github.com/rotaplan/rotaplan/pkg/explain"
	"github.com/rotaplan/rotaplan/pkg/logger"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint/builtin"
	"github.com/rotaplan/rotaplan/pkg/scheduler/optimizer"
	"github.com/rotaplan/rotaplan/pkg/scheduler/solver"
	"github.com/rotaplan/rotaplan/pkg/validator"
)

// 求解算法名称，按配置值选择策略
const (
	AlgorithmGreedy   = "greedy"
	AlgorithmCPSearch = "cpsearch"
	AlgorithmHybrid   = "hybrid"
)

// 状态机阶段
const (
	StateInit         = "INIT"
	StateBuildContext = "BUILD_CONTEXT"
	StateSolve        = "SOLVE"
	StateValidate     = "VALIDATE"
)

// StrategyBuilder 按约束管理器构造求解策略
type StrategyBuilder func(cm *constraint.Manager) solver.Solver

// SolveConfig 单次求解配置
type SolveConfig struct {
	Algorithm       string                 `json:"algorithm"`                  // greedy / cpsearch / hybrid
	Constraints     map[string]interface{} `json:"constraints,omitempty"`      // 约束参数（工时上限、连班天数、均衡容差等）
	Disabled        []constraint.Type      `json:"disabled,omitempty"`         // 本次求解停用的约束
	Seed            int64                  `json:"seed"`                       // 随机种子，0 取默认值
	MaxIterations   int                    `json:"max_iterations,omitempty"`   // 贪心迭代上限
	MaxNodes        int                    `json:"max_nodes,omitempty"`        // 搜索节点上限
	Timeout         time.Duration          `json:"timeout,omitempty"`          // 求解超时，0 表示不另设
	FeasibilityOnly bool                   `json:"feasibility_only,omitempty"` // 可行性探测模式
	Explain         bool                   `json:"explain,omitempty"`          // 附带逐分配决策说明
	MultiObjective  bool                   `json:"multi_objective,omitempty"`  // 多目标模式
	MOEA            *optimizer.MOEAConfig  `json:"moea,omitempty"`             // 多目标参数，nil 用默认
}

// DefaultSolveConfig 默认求解配置
func DefaultSolveConfig() SolveConfig {
	return SolveConfig{
		Algorithm:     AlgorithmGreedy,
		Seed:          1,
		MaxIterations: 10000,
		MaxNodes:      200000,
		Timeout:       30 * time.Second,
	}
}

// SolveReport 求解报告
// Assignments 只包含本次新增分配，锁定分配始终保留在上下文中
type SolveReport struct {
	SolveID      string                    `json:"solve_id"`
	Status       solver.Status             `json:"status"`
	Assignments  []*model.Assignment       `json:"assignments"`
	Gaps         []*model.TimeSlot         `json:"gaps,omitempty"`
	Validation   *validator.Report         `json:"validation,omitempty"`
	Explanations []*explain.DecisionRecord `json:"explanations,omitempty"`
	Frontier     []*optimizer.Solution     `json:"frontier,omitempty"`
	Recommended  *optimizer.Solution       `json:"recommended,omitempty"`
	Statistics   *solver.Statistics        `json:"statistics,omitempty"`
	Diagnostics  *errors.AppError          `json:"diagnostics,omitempty"`
	Duration     time.Duration             `json:"duration"`
	Message      string                    `json:"message,omitempty"`
}

// Engine 排班引擎
// 两次调用之间不保留任何求解状态，相同上下文、配置与种子产出相同结果
type Engine struct {
	log        *logger.SolveLogger
	mu         sync.RWMutex
	strategies map[string]StrategyBuilder
}

// NewEngine 创建排班引擎并注册内置策略
func NewEngine() *Engine {
	e := &Engine{
		log:        logger.NewSolveLogger(),
		strategies: make(map[string]StrategyBuilder),
	}
	e.RegisterStrategy(AlgorithmGreedy, func(cm *constraint.Manager) solver.Solver {
		return solver.NewGreedySolver(cm)
	})
	e.RegisterStrategy(AlgorithmCPSearch, func(cm *constraint.Manager) solver.Solver {
		return solver.NewCPSolver(cm)
	})
	e.RegisterStrategy(AlgorithmHybrid, func(cm *constraint.Manager) solver.Solver {
		return solver.NewHybridSolver(cm)
	})
	return e
}

// RegisterStrategy 注册求解策略，同名替换
// 策略名即配置中 algorithm 的取值
func (e *Engine) RegisterStrategy(name string, builder StrategyBuilder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[name] = builder
}

// Solve 执行一次完整求解
// 返回错误仅发生在求解开始之前：输入不合法、算法未注册、
// 生产模式下试图停用硬约束。求解开始后一切结局都以报告返回，
// 策略 panic 恢复后记入报告的 Diagnostics。
func (e *Engine) Solve(ctx context.Context, schedCtx *constraint.Context, config SolveConfig) (*SolveReport, error) {
	start := time.Now()
	solveID := uuid.New().String()
	if config.Algorithm == "" {
		config.Algorithm = AlgorithmGreedy
	}

	people, slots := 0, 0
	if schedCtx != nil {
		people, slots = len(schedCtx.People), len(schedCtx.Slots)
	}
	e.log.StartSolve(solveID, config.Algorithm, people, slots)
	state := StateInit

	// 输入不合法不进入求解
	if err := ValidateContext(schedCtx); err != nil {
		e.log.SolveComplete(solveID, string(solver.StatusFailed), time.Since(start), 0)
		return nil, err
	}

	state = e.advance(solveID, state, StateBuildContext)
	manager, err := e.buildManager(config)
	if err != nil {
		e.log.SolveComplete(solveID, string(solver.StatusFailed), time.Since(start), 0)
		return nil, err
	}
	applyConstraintConfig(schedCtx, config.Constraints)

	strategy, appErr := e.strategyFor(config.Algorithm, manager)
	if appErr != nil {
		e.log.SolveComplete(solveID, string(solver.StatusFailed), time.Since(start), 0)
		return nil, appErr
	}

	state = e.advance(solveID, state, StateSolve)
	solveCtx := ctx
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	report := &SolveReport{SolveID: solveID}

	result, runErr := e.runStrategy(solveCtx, strategy, schedCtx, solverOptions(config))
	if runErr != nil {
		report.Status = solver.StatusFailed
		report.Diagnostics = asAppError(strategy.Name(), runErr)
		report.Message = report.Diagnostics.Error()
		return e.finish(solveID, state, report, start), nil
	}

	report.Status = result.Status
	report.Assignments = result.Assignments
	report.Gaps = result.Gaps
	report.Statistics = result.Statistics
	report.Message = result.Message

	// 多目标模式以单目标结果热启动
	if config.MultiObjective && !config.FeasibilityOnly &&
		(report.Status == solver.StatusSuccess || report.Status == solver.StatusPartial) {
		e.runOptimizer(solveCtx, solveID, schedCtx, manager, config, report)
	}

	// 取消、不可行与内部失败没有可复核的排班
	switch report.Status {
	case solver.StatusCancelled, solver.StatusInfeasible, solver.StatusFailed:
		return e.finish(solveID, state, report, start), nil
	}

	state = e.advance(solveID, state, StateValidate)
	report.Validation = validator.NewValidator(manager).Validate(schedCtx, report.Assignments)
	if report.Status == solver.StatusSuccess && !report.Validation.Valid {
		report.Status = solver.StatusPartial
		report.Message = fmt.Sprintf("复核发现 %d 个硬约束违反、%d 个结构冲突，结果降级为部分解",
			report.Validation.HardCount, len(report.Validation.Conflicts))
	}

	if config.Explain && len(report.Assignments) > 0 {
		set := mergedSet(schedCtx, report.Assignments)
		report.Explanations = explain.NewExplainer(manager).ExplainAll(schedCtx, set)
	}

	return e.finish(solveID, state, report, start), nil
}

// Probe 可行性探测
// 只挂硬约束求首个可行解，disabled 中的硬约束在本次探测中放宽，
// 用于定位哪组硬约束联合导致不可行。
func (e *Engine) Probe(ctx context.Context, schedCtx *constraint.Context, config SolveConfig, disabled ...constraint.Type) (*SolveReport, error) {
	config.FeasibilityOnly = true
	config.MultiObjective = false
	config.Explain = false
	config.Disabled = append(config.Disabled, disabled...)
	if config.Algorithm == "" || config.Algorithm == AlgorithmGreedy {
		config.Algorithm = AlgorithmCPSearch
	}
	return e.Solve(ctx, schedCtx, config)
}

// advance 记录状态迁移并返回新状态
func (e *Engine) advance(solveID, from, to string) string {
	e.log.StateChange(solveID, from, to)
	return to
}

// finish 记录终态迁移与完成日志
func (e *Engine) finish(solveID, state string, report *SolveReport, start time.Time) *SolveReport {
	report.Duration = time.Since(start)
	score := 0.0
	if report.Validation != nil {
		score = report.Validation.Score
	}
	e.advance(solveID, state, strings.ToUpper(string(report.Status)))
	e.log.SolveComplete(solveID, string(report.Status), report.Duration, score)
	return report
}

// buildManager 注册约束并应用启停配置
// 常规求解处于生产模式，硬约束不可停用；可行性探测只挂硬约束
// 且允许停用其中一部分，以定位不可行的约束组合。
func (e *Engine) buildManager(config SolveConfig) (*constraint.Manager, error) {
	manager := constraint.NewManager()
	if config.FeasibilityOnly {
		builtin.RegisterHardConstraints(manager, config.Constraints)
	} else {
		builtin.RegisterDefaultConstraints(manager, config.Constraints)
		manager.SetProductionMode(true)
	}
	for _, t := range config.Disabled {
		if err := manager.SetEnabled(t, false); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// strategyFor 按算法名取已注册的策略
func (e *Engine) strategyFor(algorithm string, manager *constraint.Manager) (solver.Solver, *errors.AppError) {
	e.mu.RLock()
	builder, ok := e.strategies[algorithm]
	e.mu.RUnlock()
	if !ok {
		return nil, errors.UnknownAlgorithm(algorithm)
	}
	return builder(manager), nil
}

// runStrategy 在策略边界执行求解并恢复 panic
func (e *Engine) runStrategy(ctx context.Context, strategy solver.Solver, schedCtx *constraint.Context, opts solver.Options) (result *solver.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.SolverInternal(strategy.Name(), fmt.Errorf("%v", r))
		}
	}()
	return strategy.Solve(ctx, schedCtx, opts)
}

// runOptimizer 以单目标解热启动多目标优化
// 推荐解替换报告中的分配；取消废弃全部结果，超时保留当前前沿。
func (e *Engine) runOptimizer(ctx context.Context, solveID string, schedCtx *constraint.Context, manager *constraint.Manager, config SolveConfig, report *SolveReport) {
	moeaCfg := config.MOEA
	if moeaCfg == nil {
		moeaCfg = optimizer.DefaultMOEAConfig()
		if config.Seed != 0 {
			moeaCfg.Seed = config.Seed
		}
	}

	moead := optimizer.NewMOEAD(moeaCfg, manager, optimizer.DefaultObjectives(manager, schedCtx))
	runResult, err := moead.Run(ctx, schedCtx, report.Assignments)
	if err != nil {
		// 多目标失败不推翻已有的单目标解
		report.Message = "多目标优化未完成，保留单目标结果: " + err.Error()
		return
	}

	if runResult.Status == solver.StatusCancelled {
		report.Status = solver.StatusCancelled
		report.Assignments = nil
		report.Gaps = nil
		report.Message = "求解被取消，已排内容废弃"
		return
	}

	report.Frontier = runResult.Frontier
	report.Recommended = runResult.Recommended
	if runResult.Status == solver.StatusTimeout {
		report.Status = solver.StatusTimeout
	}

	if runResult.Recommended != nil {
		report.Assignments = runResult.Recommended.Assignments
		set := mergedSet(schedCtx, report.Assignments)
		report.Gaps = uncoveredSlots(schedCtx, set)
		refreshStatistics(report, schedCtx, set)
		report.Message = fmt.Sprintf("多目标优化完成，前沿 %d 个解，%d 代 %d 次评估",
			len(runResult.Frontier), runResult.Generations, runResult.Evaluations)
	} else if runResult.Message != "" {
		report.Message = runResult.Message
	}
	e.log.GenerationProgress(solveID, runResult.Generations, len(runResult.Frontier))
}

// ValidateContext 校验排班上下文
// 返回的错误携带逐字段的失败原因，任何一项不过求解都不会开始
func ValidateContext(schedCtx *constraint.Context) error {
	if schedCtx == nil {
		return errors.New(errors.CodeInvalidInput, "排班上下文不能为空")
	}

	ve := &errors.ValidationErrors{}

	startOK, endOK := false, false
	var startDay, endDay time.Time
	if schedCtx.StartDate == "" {
		ve.Add("start_date", "开始日期不能为空")
	} else if d, err := time.Parse("2006-01-02", schedCtx.StartDate); err != nil {
		ve.Add("start_date", "日期格式无效，应为YYYY-MM-DD")
	} else {
		startDay, startOK = d, true
	}
	if schedCtx.EndDate == "" {
		ve.Add("end_date", "结束日期不能为空")
	} else if d, err := time.Parse("2006-01-02", schedCtx.EndDate); err != nil {
		ve.Add("end_date", "日期格式无效，应为YYYY-MM-DD")
	} else {
		endDay, endOK = d, true
	}
	if startOK && endOK && endDay.Before(startDay) {
		ve.Add("end_date", "结束日期不能早于开始日期")
	}

	if len(schedCtx.People) == 0 {
		ve.Add("people", "人员列表不能为空")
	}
	if len(schedCtx.Slots) == 0 {
		ve.Add("slots", "时段列表不能为空")
	}

	for _, s := range schedCtx.Slots {
		if schedCtx.GetTemplate(s.TemplateID) == nil {
			ve.Add("slots", fmt.Sprintf("时段 %s 引用了未知模板 %s", s.ID, s.TemplateID))
		}
	}
	for _, a := range schedCtx.Locked {
		if schedCtx.GetPerson(a.PersonID) == nil {
			ve.Add("locked_assignments", fmt.Sprintf("锁定分配 %s 引用了未知人员 %s", a.ID, a.PersonID))
		}
		if schedCtx.GetSlot(a.SlotID) == nil {
			ve.Add("locked_assignments", fmt.Sprintf("锁定分配 %s 引用了未知时段 %s", a.ID, a.SlotID))
		}
	}

	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// applyConstraintConfig 把约束参数并入上下文配置
// 松弛探测等组件从上下文读取同一组参数，保持与注册约束一致
func applyConstraintConfig(schedCtx *constraint.Context, params map[string]interface{}) {
	if len(params) == 0 {
		return
	}
	if schedCtx.Config == nil {
		schedCtx.Config = make(map[string]interface{}, len(params))
	}
	for k, v := range params {
		schedCtx.Config[k] = v
	}
}

// solverOptions 由求解配置构造策略选项
func solverOptions(config SolveConfig) solver.Options {
	opts := solver.DefaultOptions()
	if config.Seed != 0 {
		opts.Seed = config.Seed
	}
	if config.MaxIterations > 0 {
		opts.MaxIterations = config.MaxIterations
	}
	if config.MaxNodes > 0 {
		opts.MaxNodes = config.MaxNodes
	}
	opts.FeasibilityOnly = config.FeasibilityOnly
	return opts
}

// asAppError 把策略返回的错误规整为应用错误
func asAppError(strategy string, err error) *errors.AppError {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr
	}
	return errors.SolverInternal(strategy, err)
}

// mergedSet 锁定分配与新增分配合并为完整集合，重复项跳过
func mergedSet(schedCtx *constraint.Context, assignments []*model.Assignment) *constraint.AssignmentSet {
	set := constraint.NewAssignmentSet(schedCtx.Locked)
	for _, a := range assignments {
		if set.HasPersonOnSlot(a.PersonID, a.SlotID) {
			continue
		}
		set.Add(a)
	}
	return set
}

// uncoveredSlots 返回仍未覆盖的必排班次
func uncoveredSlots(schedCtx *constraint.Context, set *constraint.AssignmentSet) []*model.TimeSlot {
	var gaps []*model.TimeSlot
	for _, s := range schedCtx.Slots {
		if s.NeedsCoverage() && set.CountForSlot(s.ID) == 0 {
			gaps = append(gaps, s)
		}
	}
	return gaps
}

// refreshStatistics 采纳多目标推荐解后重算统计
// 迭代与节点计数保留单目标求解的值
func refreshStatistics(report *SolveReport, schedCtx *constraint.Context, set *constraint.AssignmentSet) {
	stats := &solver.Statistics{}
	if report.Statistics != nil {
		stats.Iterations = report.Statistics.Iterations
		stats.Nodes = report.Statistics.Nodes
		stats.Backtracks = report.Statistics.Backtracks
	}

	required, filled := 0, 0
	for _, s := range schedCtx.Slots {
		if !s.NeedsCoverage() {
			continue
		}
		required++
		if set.CountForSlot(s.ID) > 0 {
			filled++
		}
	}
	stats.TotalAssignments = len(report.Assignments)
	stats.FilledSlots = filled
	stats.TotalSlots = required
	if required > 0 {
		stats.FillRate = float64(filled) / float64(required) * 100
	}

	var totalHours float64
	active := 0
	for _, p := range schedCtx.People {
		h := set.TotalHours(p.ID)
		totalHours += h
		if h > 0 {
			active++
		}
	}
	stats.TotalHours = totalHours
	if active > 0 {
		stats.AvgHoursPerPerson = totalHours / float64(active)
	}
	report.Statistics = stats
}
