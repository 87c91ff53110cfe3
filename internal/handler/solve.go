// Package handler 提供HTTP请求处理器
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/internal/config"
	"github.com/rotaplan/rotaplan/internal/constraints"
	"github.com/rotaplan/rotaplan/internal/database"
	"github.com/rotaplan/rotaplan/internal/metrics"
	"github.com/rotaplan/rotaplan/internal/repository"
	"github.com/rotaplan/rotaplan/pkg/errors"
	"github.com/rotaplan/rotaplan/pkg/explain"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint/builtin"
	"github.com/rotaplan/rotaplan/pkg/scheduler/optimizer"
	"github.com/rotaplan/rotaplan/pkg/scheduler/solver"
	"github.com/rotaplan/rotaplan/pkg/validator"
)

// SolveHandler 求解处理器
// db 与 repo 为 nil 时归档停用，求解本身不受影响。
type SolveHandler struct {
	engine  *scheduler.Engine
	cfg     *config.Config
	db      *database.DB
	repo    *repository.RosterRepository
	metrics *metrics.Metrics
}

// NewSolveHandler 创建求解处理器
func NewSolveHandler(engine *scheduler.Engine, cfg *config.Config, db *database.DB, repo *repository.RosterRepository, m *metrics.Metrics) *SolveHandler {
	return &SolveHandler{engine: engine, cfg: cfg, db: db, repo: repo, metrics: m}
}

// SolveRequest 排班求解请求
// 人员、时段、模板直接使用领域模型的JSON形态，ID为UUID字符串
type SolveRequest struct {
	OrgID       string                    `json:"org_id"`
	StartDate   string                    `json:"start_date"`     // YYYY-MM-DD
	EndDate     string                    `json:"end_date"`       // YYYY-MM-DD，闭区间
	Name        string                    `json:"name,omitempty"` // 归档名称，空则自动生成
	People      []*model.Person           `json:"people"`
	Slots       []*model.TimeSlot         `json:"slots"`
	Templates   []*model.RotationTemplate `json:"templates,omitempty"`
	Absences    []*model.Absence          `json:"absences,omitempty"`
	Locked      []*model.Assignment       `json:"locked_assignments,omitempty"`
	Constraints map[string]interface{}    `json:"constraints,omitempty"` // 约束参数，覆盖服务端默认
	Disabled    []string                  `json:"disabled,omitempty"`    // 本次停用的软约束
	Options     *SolveOptions             `json:"options,omitempty"`
	Archive     bool                      `json:"archive,omitempty"` // 求解后归档，需要配置数据库
}

// SolveOptions 求解选项
type SolveOptions struct {
	Algorithm       string `json:"algorithm,omitempty"` // greedy/cpsearch/hybrid
	Seed            int64  `json:"seed,omitempty"`
	MaxIterations   int    `json:"max_iterations,omitempty"`
	MaxNodes        int    `json:"max_nodes,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
	FeasibilityOnly bool   `json:"feasibility_only,omitempty"` // 只探测可行性，不产出完整排班
	Explain         bool   `json:"explain,omitempty"`          // 附带逐分配决策说明
	MultiObjective  bool   `json:"multi_objective,omitempty"`  // 多目标优化
	Generations     int    `json:"generations,omitempty"`      // 多目标进化代数，0用服务端默认
}

// FrontierPoint 前沿方案摘要
// 完整分配列表只在推荐解上返回，其余方案给出目标向量与规模
type FrontierPoint struct {
	Objectives      []float64 `json:"objectives"`
	Normalized      []float64 `json:"normalized,omitempty"`
	Feasible        bool      `json:"feasible"`
	HardViolations  int       `json:"hard_violations,omitempty"`
	AssignmentCount int       `json:"assignment_count"`
	Recommended     bool      `json:"recommended,omitempty"`
}

// SolveResponse 排班求解响应
type SolveResponse struct {
	SolveID      string                    `json:"solve_id"`
	RosterID     string                    `json:"roster_id,omitempty"` // 归档成功时返回
	Status       solver.Status             `json:"status"`
	Message      string                    `json:"message,omitempty"`
	Assignments  []*model.Assignment       `json:"assignments"`
	Gaps         []*model.TimeSlot         `json:"gaps,omitempty"`
	Statistics   *solver.Statistics        `json:"statistics,omitempty"`
	Validation   *validator.Report         `json:"validation,omitempty"`
	Explanations []*explain.DecisionRecord `json:"explanations,omitempty"`
	Frontier     []FrontierPoint           `json:"frontier,omitempty"`
	ArchiveError string                    `json:"archive_error,omitempty"` // 归档失败不推翻求解结果
	Duration     string                    `json:"duration"`
}

// Solve 执行排班求解
func (h *SolveHandler) Solve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		respondError(w, err)
		return
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的组织ID格式"))
		return
	}

	schedCtx := buildSolveContext(orgID, &req)
	solveCfg := h.solveConfig(&req)

	report, err := h.engine.Solve(r.Context(), schedCtx, solveCfg)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	h.recordSolveMetrics(req.OrgID, solveCfg.Algorithm, report)

	resp := solveResponse(report)
	if req.Archive {
		h.archiveSolve(r.Context(), orgID, &req, solveCfg.Algorithm, report, resp)
	}
	respondJSON(w, http.StatusOK, resp)
}

// validateSolveRequest 验证求解请求
func validateSolveRequest(req *SolveRequest) *errors.AppError {
	ve := &errors.ValidationErrors{}

	if req.OrgID == "" {
		ve.Add("org_id", "组织ID不能为空")
	}
	if req.StartDate == "" {
		ve.Add("start_date", "开始日期不能为空")
	}
	if req.EndDate == "" {
		ve.Add("end_date", "结束日期不能为空")
	}
	if len(req.People) == 0 {
		ve.Add("people", "人员列表不能为空")
	}
	if len(req.Slots) == 0 {
		ve.Add("slots", "时段列表不能为空")
	}

	if req.StartDate != "" {
		if _, err := time.Parse("2006-01-02", req.StartDate); err != nil {
			ve.Add("start_date", "日期格式无效，应为YYYY-MM-DD")
		}
	}
	if req.EndDate != "" {
		if _, err := time.Parse("2006-01-02", req.EndDate); err != nil {
			ve.Add("end_date", "日期格式无效，应为YYYY-MM-DD")
		}
	}
	if req.Options != nil && req.Options.Algorithm != "" {
		switch req.Options.Algorithm {
		case scheduler.AlgorithmGreedy, scheduler.AlgorithmCPSearch, scheduler.AlgorithmHybrid:
		default:
			ve.Add("options.algorithm", "未知算法: "+req.Options.Algorithm)
		}
	}

	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// buildSolveContext 把请求数据装入排班上下文
func buildSolveContext(orgID uuid.UUID, req *SolveRequest) *constraint.Context {
	schedCtx := constraint.NewContext(orgID, req.StartDate, req.EndDate)
	schedCtx.SetPeople(req.People)
	schedCtx.SetSlots(req.Slots)
	schedCtx.SetTemplates(req.Templates)
	schedCtx.SetAbsences(req.Absences)
	schedCtx.SetLocked(req.Locked)
	return schedCtx
}

// solveConfig 合成本次求解配置，服务端默认值被请求级选项覆盖
func (h *SolveHandler) solveConfig(req *SolveRequest) scheduler.SolveConfig {
	cfg := scheduler.DefaultSolveConfig()
	if h.cfg != nil {
		cfg.Timeout = h.cfg.Scheduler.DefaultTimeout
		cfg.MaxIterations = h.cfg.Scheduler.MaxIterations
		cfg.MaxNodes = h.cfg.Scheduler.MaxNodes
		cfg.Seed = h.cfg.Scheduler.Seed
	}
	cfg.Constraints = h.constraintConfig(req.Constraints)
	for _, name := range req.Disabled {
		cfg.Disabled = append(cfg.Disabled, constraint.Type(name))
	}

	opts := req.Options
	if opts == nil {
		return cfg
	}
	if opts.Algorithm != "" {
		cfg.Algorithm = opts.Algorithm
	}
	if opts.Seed != 0 {
		cfg.Seed = opts.Seed
	}
	if opts.MaxIterations > 0 {
		cfg.MaxIterations = opts.MaxIterations
	}
	if opts.MaxNodes > 0 {
		cfg.MaxNodes = opts.MaxNodes
	}
	if opts.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	cfg.FeasibilityOnly = opts.FeasibilityOnly
	cfg.Explain = opts.Explain
	cfg.MultiObjective = opts.MultiObjective
	if opts.MultiObjective {
		cfg.MOEA = h.moeaConfig(opts)
	}
	return cfg
}

// constraintConfig 以服务端约束参数为底，应用请求级覆盖
func (h *SolveHandler) constraintConfig(overrides map[string]interface{}) map[string]interface{} {
	return mergeConstraintConfig(h.cfg, overrides)
}

// moeaConfig 以服务端优化器配置为底构造多目标参数
func (h *SolveHandler) moeaConfig(opts *SolveOptions) *optimizer.MOEAConfig {
	moea := optimizer.DefaultMOEAConfig()
	if h.cfg != nil {
		oc := h.cfg.Optimizer
		if oc.Divisions > 0 {
			moea.Divisions = oc.Divisions
		}
		if oc.NeighborhoodSize > 0 {
			moea.NeighborhoodSize = oc.NeighborhoodSize
		}
		if oc.Generations > 0 {
			moea.Generations = oc.Generations
		}
		if oc.Workers > 0 {
			moea.Workers = oc.Workers
		}
		if oc.Scalarizer != "" {
			moea.Scalarizer = oc.Scalarizer
		}
		if oc.ArchiveCapacity > 0 {
			moea.ArchiveCapacity = oc.ArchiveCapacity
		}
	}
	if opts.Generations > 0 {
		moea.Generations = opts.Generations
	}
	if opts.Seed != 0 {
		moea.Seed = opts.Seed
	}
	return moea
}

// recordSolveMetrics 上报求解指标
func (h *SolveHandler) recordSolveMetrics(orgID, algorithm string, report *scheduler.SolveReport) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordSolve(algorithm, string(report.Status), report.Duration)
	v := report.Validation
	if v == nil {
		return
	}
	h.metrics.SetSolutionScore(orgID, v.Score)
	h.metrics.SetHardViolations(orgID, v.HardCount)
	if v.Coverage != nil {
		h.metrics.SetCoverageRate(orgID, v.Coverage.RequiredRate)
	}
	if v.Workload != nil {
		h.metrics.SetFairnessGini(orgID, "hours", v.Workload.Gini)
		h.metrics.SetFairnessGini(orgID, "night", v.Workload.NightGini)
		h.metrics.SetFairnessGini(orgID, "weekend", v.Workload.WeekendGini)
	}
	h.metrics.SetFrontierSize(orgID, len(report.Frontier))
}

// solveResponse 把求解报告整形为API响应
func solveResponse(report *scheduler.SolveReport) *SolveResponse {
	resp := &SolveResponse{
		SolveID:      report.SolveID,
		Status:       report.Status,
		Message:      report.Message,
		Assignments:  report.Assignments,
		Gaps:         report.Gaps,
		Statistics:   report.Statistics,
		Validation:   report.Validation,
		Explanations: report.Explanations,
		Duration:     report.Duration.String(),
	}
	if resp.Assignments == nil {
		resp.Assignments = []*model.Assignment{}
	}
	for _, sol := range report.Frontier {
		resp.Frontier = append(resp.Frontier, FrontierPoint{
			Objectives:      sol.Objectives,
			Normalized:      sol.Normalized,
			Feasible:        sol.Feasible,
			HardViolations:  sol.HardViolations,
			AssignmentCount: len(sol.Assignments),
			Recommended:     sol == report.Recommended,
		})
	}
	return resp
}

// archiveSolve 在单事务内归档排班结果与前沿快照
// 归档失败只写入响应的 archive_error，不推翻求解结果
func (h *SolveHandler) archiveSolve(ctx context.Context, orgID uuid.UUID, req *SolveRequest, algorithm string, report *scheduler.SolveReport, resp *SolveResponse) {
	if h.db == nil || h.repo == nil {
		resp.ArchiveError = "归档功能未启用，请配置数据库"
		return
	}
	switch report.Status {
	case solver.StatusCancelled, solver.StatusInfeasible, solver.StatusFailed:
		resp.ArchiveError = "求解状态为 " + string(report.Status) + "，没有可归档的排班"
		return
	}

	record := &repository.RosterRecord{
		OrgID:       orgID,
		Name:        req.Name,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Status:      "draft",
		Version:     1,
		SolveID:     report.SolveID,
		Algorithm:   algorithm,
		SolveStatus: string(report.Status),
		Stats:       rosterStats(report),
		DurationMs:  report.Duration.Milliseconds(),
		Message:     report.Message,
	}
	if record.Name == "" {
		record.Name = fmt.Sprintf("排班 %s ~ %s", req.StartDate, req.EndDate)
	}

	err := h.db.ArchiveTransaction(ctx, orgID, func(tx *sql.Tx) error {
		txRepo := h.repo.WithTx(tx)
		// 同窗口已有归档不阻止归档，计入元数据供调用方甄别
		overlap, err := txRepo.CountByDateRange(ctx, orgID, req.StartDate, req.EndDate)
		if err != nil {
			return err
		}
		if overlap > 0 {
			record.Metadata = map[string]any{"overlapping_rosters": overlap}
		}
		if err := txRepo.Create(ctx, record); err != nil {
			return err
		}
		if err := txRepo.SaveAssignments(ctx, record.ID, report.Assignments); err != nil {
			return err
		}
		if len(report.Frontier) > 0 {
			return txRepo.SaveFrontier(ctx, record.ID, report.Frontier, report.Recommended)
		}
		return nil
	})
	if err != nil {
		resp.ArchiveError = err.Error()
		return
	}
	resp.RosterID = record.ID.String()
}

// rosterStats 从求解报告提炼归档统计
func rosterStats(report *scheduler.SolveReport) model.RosterStats {
	var rs model.RosterStats
	rs.TotalAssignments = len(report.Assignments)
	rs.UnfilledSlots = len(report.Gaps)

	people := make(map[uuid.UUID]struct{})
	for _, a := range report.Assignments {
		people[a.PersonID] = struct{}{}
	}
	rs.TotalPeople = len(people)

	if st := report.Statistics; st != nil {
		rs.TotalHours = st.TotalHours
	}
	v := report.Validation
	if v == nil {
		return rs
	}
	rs.ConstraintScore = v.Score
	if v.Coverage != nil {
		rs.CoverageRate = v.Coverage.RequiredRate
	}
	if v.Workload != nil {
		rs.FairnessScore = v.Workload.Score
	}
	rs.PreferenceScore = preferenceScore(v.SoftViolations, rs.TotalAssignments)
	return rs
}

// preferenceScore 以偏好违反条数占分配总数的比例估算满足率 0-100
func preferenceScore(violations []constraint.ViolationDetail, total int) float64 {
	if total == 0 {
		return 100
	}
	violated := 0
	for _, v := range violations {
		if v.ConstraintType == constraint.TypePreference {
			violated++
		}
	}
	score := 100 * (1 - float64(violated)/float64(total))
	if score < 0 {
		return 0
	}
	return score
}

// ValidateRequest 排班复核请求
// 对一份给定的分配列表重新评估全部约束，不触发求解
type ValidateRequest struct {
	OrgID       string                    `json:"org_id"`
	StartDate   string                    `json:"start_date"`
	EndDate     string                    `json:"end_date"`
	People      []*model.Person           `json:"people"`
	Slots       []*model.TimeSlot         `json:"slots"`
	Templates   []*model.RotationTemplate `json:"templates,omitempty"`
	Absences    []*model.Absence          `json:"absences,omitempty"`
	Locked      []*model.Assignment       `json:"locked_assignments,omitempty"`
	Assignments []*model.Assignment       `json:"assignments"`
	Constraints map[string]interface{}    `json:"constraints,omitempty"`
}

// Validate 复核一份排班
func (h *SolveHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}

	ve := &errors.ValidationErrors{}
	if req.OrgID == "" {
		ve.Add("org_id", "组织ID不能为空")
	}
	if req.StartDate == "" {
		ve.Add("start_date", "开始日期不能为空")
	}
	if req.EndDate == "" {
		ve.Add("end_date", "结束日期不能为空")
	}
	if len(req.People) == 0 {
		ve.Add("people", "人员列表不能为空")
	}
	if len(req.Slots) == 0 {
		ve.Add("slots", "时段列表不能为空")
	}
	if ve.HasErrors() {
		respondError(w, ve.ToAppError())
		return
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的组织ID格式"))
		return
	}

	schedCtx := constraint.NewContext(orgID, req.StartDate, req.EndDate)
	schedCtx.SetPeople(req.People)
	schedCtx.SetSlots(req.Slots)
	schedCtx.SetTemplates(req.Templates)
	schedCtx.SetAbsences(req.Absences)
	schedCtx.SetLocked(req.Locked)

	cm := constraint.NewManager()
	builtin.RegisterDefaultConstraints(cm, h.constraintConfig(req.Constraints))

	report := validator.NewValidator(cm).Validate(schedCtx, req.Assignments)
	respondJSON(w, http.StatusOK, report)
}

// Library 返回可用约束目录
func (h *SolveHandler) Library(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}
	respondJSON(w, http.StatusOK, constraints.LibraryResponse{Library: constraints.GetLibrary()})
}

// toAppError 保留引擎返回的业务错误码
func toAppError(err error) *errors.AppError {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr
	}
	return errors.Wrap(err, errors.CodeInternal, "排班求解失败")
}

// mergeConstraintConfig 以服务端约束参数为底，应用请求级覆盖
func mergeConstraintConfig(cfg *config.Config, overrides map[string]interface{}) map[string]interface{} {
	var merged map[string]interface{}
	if cfg != nil {
		merged = cfg.Scheduler.ConstraintConfig()
	} else {
		merged = make(map[string]interface{}, len(overrides))
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	body := map[string]interface{}{
		"error":   true,
		"code":    err.Code,
		"message": err.Message,
	}
	if err.Details != "" {
		body["details"] = err.Details
	}
	if len(err.Fields) > 0 {
		body["fields"] = err.Fields
	}
	json.NewEncoder(w).Encode(body)
}
