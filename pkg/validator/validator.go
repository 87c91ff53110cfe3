package validator

import (
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/stats"
)

// Report 复核报告
// Valid 表示无硬违反且无结构性冲突，排班可以发布
type Report struct {
	Valid bool `json:"valid"`

	HardCount   int     `json:"hard_count"`   // 硬约束违反条数
	SoftPenalty float64 `json:"soft_penalty"` // 软约束惩罚合计
	Score       float64 `json:"score"`        // 约束满足得分 0-100

	HardViolations []constraint.ViolationDetail `json:"hard_violations,omitempty"`
	SoftViolations []constraint.ViolationDetail `json:"soft_violations,omitempty"`
	Conflicts      []Conflict                   `json:"conflicts,omitempty"`

	// Compliance 按约束类别统计的达标率（类别内完全满足的约束占比 0-1）
	Compliance map[string]float64 `json:"compliance"`

	Coverage *stats.CoverageReport `json:"coverage"`
	Workload *stats.FairnessReport `json:"workload"`
}

// Validator 排班结果复核器
type Validator struct {
	manager *constraint.Manager
}

// NewValidator 创建复核器
func NewValidator(manager *constraint.Manager) *Validator {
	return &Validator{manager: manager}
}

// Validate 复核排班结果
// assignments 为求解器产出的新增分配，复核时与上下文中的锁定分配合并成完整排班
func (v *Validator) Validate(schedCtx *constraint.Context, assignments []*model.Assignment) *Report {
	set := constraint.NewAssignmentSet(schedCtx.Locked)
	for _, a := range assignments {
		if set.HasPersonOnSlot(a.PersonID, a.SlotID) {
			continue
		}
		set.Add(a)
	}
	return v.ValidateSet(schedCtx, set)
}

// ValidateSet 复核已合并的完整分配集合
func (v *Validator) ValidateSet(schedCtx *constraint.Context, set *constraint.AssignmentSet) *Report {
	result := v.manager.Evaluate(schedCtx, set)

	report := &Report{
		HardCount:      len(result.HardViolations),
		SoftPenalty:    result.TotalPenalty,
		Score:          result.Score,
		HardViolations: result.HardViolations,
		SoftViolations: result.SoftViolations,
		Conflicts:      DetectConflicts(schedCtx, set),
		Compliance:     v.complianceByCategory(schedCtx, set),
		Coverage:       stats.AnalyzeCoverage(schedCtx, set),
		Workload:       stats.AnalyzeFairness(schedCtx, set),
	}
	report.Valid = report.HardCount == 0 && len(report.Conflicts) == 0
	return report
}

// complianceByCategory 统计各类别内完全满足的约束占比
// 类别内没有启用约束时视为全部达标
func (v *Validator) complianceByCategory(schedCtx *constraint.Context, set *constraint.AssignmentSet) map[string]float64 {
	compliance := make(map[string]float64, 2)
	for _, cat := range []constraint.Category{constraint.CategoryHard, constraint.CategorySoft} {
		constraints := v.manager.GetByCategory(cat)
		if len(constraints) == 0 {
			compliance[string(cat)] = 1.0
			continue
		}
		satisfied := 0
		for _, c := range constraints {
			valid, penalty, _ := c.Evaluate(schedCtx, set)
			if valid && penalty == 0 {
				satisfied++
			}
		}
		compliance[string(cat)] = float64(satisfied) / float64(len(constraints))
	}
	return compliance
}
