// Package swap 提供换班评估与推荐
// 换班在已发布排班上做 what-if 模拟：克隆分配集合、执行交换、
// 重新评估全部约束，不修改原集合。
package swap

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/validator"
)

// SwapEvaluator 换班评估器
type SwapEvaluator struct {
	manager *constraint.Manager
}

// NewSwapEvaluator 创建换班评估器
func NewSwapEvaluator(manager *constraint.Manager) *SwapEvaluator {
	return &SwapEvaluator{manager: manager}
}

// SwapRequest 换班请求
// TargetAssignment 非空时为互换：目标人员的该班次转给源人员
type SwapRequest struct {
	SourceAssignment *model.Assignment `json:"source_assignment"`
	TargetPerson     *model.Person     `json:"target_person"`
	TargetAssignment *model.Assignment `json:"target_assignment,omitempty"`
}

// SwapEvaluation 换班评估结果
type SwapEvaluation struct {
	Feasible       bool        `json:"feasible"`
	Score          float64     `json:"score"` // 换班后的约束满足得分 0-100
	Issues         []SwapIssue `json:"issues"`
	Impact         *SwapImpact `json:"impact"`
	Recommendation string      `json:"recommendation"`
}

// SwapIssue 换班问题
type SwapIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // error/warning
	Message  string `json:"message"`
}

// SwapImpact 换班影响
type SwapImpact struct {
	SourcePersonImpact *PersonImpact `json:"source_person_impact"`
	TargetPersonImpact *PersonImpact `json:"target_person_impact"`
	OverallScoreChange float64       `json:"overall_score_change"` // 换班前后得分差
}

// PersonImpact 人员影响
type PersonImpact struct {
	HoursChange         float64 `json:"hours_change"`
	OverTargetChange    float64 `json:"over_target_change"` // 超出目标工时部分的变化
	PreferenceSatisfied bool    `json:"preference_satisfied"`
	NewConflicts        int     `json:"new_conflicts"`
}

// EvaluateSwap 评估换班可行性与影响
func (e *SwapEvaluator) EvaluateSwap(schedCtx *constraint.Context, set *constraint.AssignmentSet, request *SwapRequest) *SwapEvaluation {
	result := &SwapEvaluation{
		Feasible: true,
		Score:    100,
		Issues:   make([]SwapIssue, 0),
		Impact: &SwapImpact{
			SourcePersonImpact: &PersonImpact{},
			TargetPersonImpact: &PersonImpact{},
		},
	}

	source := request.SourceAssignment
	target := request.TargetPerson

	if source == nil || target == nil {
		result.Feasible = false
		result.Issues = append(result.Issues, SwapIssue{
			Type:     "invalid_request",
			Severity: "error",
			Message:  "换班请求缺少源分配或目标人员",
		})
		return result
	}

	if source.Locked {
		result.Feasible = false
		result.Issues = append(result.Issues, SwapIssue{
			Type:     "locked_assignment",
			Severity: "error",
			Message:  "锁定分配不可换班",
		})
		return result
	}
	if request.TargetAssignment != nil && request.TargetAssignment.Locked {
		result.Feasible = false
		result.Issues = append(result.Issues, SwapIssue{
			Type:     "locked_assignment",
			Severity: "error",
			Message:  "目标班次为锁定分配，不可互换",
		})
		return result
	}

	if slot := schedCtx.GetSlot(source.SlotID); slot != nil && slot.Protected {
		result.Feasible = false
		result.Issues = append(result.Issues, SwapIssue{
			Type:     "protected_slot",
			Severity: "error",
			Message:  "保护时段不参与换班调整",
		})
		return result
	}
	if request.TargetAssignment != nil {
		if slot := schedCtx.GetSlot(request.TargetAssignment.SlotID); slot != nil && slot.Protected {
			result.Feasible = false
			result.Issues = append(result.Issues, SwapIssue{
				Type:     "protected_slot",
				Severity: "error",
				Message:  "目标班次位于保护时段，不可互换",
			})
			return result
		}
	}

	if !target.IsActive() {
		result.Feasible = false
		result.Issues = append(result.Issues, SwapIssue{
			Type:     "person_inactive",
			Severity: "error",
			Message:  fmt.Sprintf("目标人员 %s 不在岗", target.Name),
		})
		return result
	}

	// 专业方向筛查
	if slot := schedCtx.GetSlot(source.SlotID); slot != nil {
		if tpl := schedCtx.TemplateOf(slot); tpl != nil && tpl.Specialty != "" && !target.HasSpecialty(tpl.Specialty) {
			result.Feasible = false
			result.Issues = append(result.Issues, SwapIssue{
				Type:     "specialty_mismatch",
				Severity: "error",
				Message:  fmt.Sprintf("目标人员 %s 不具备 %s 要求的专业 %s", target.Name, tpl.Name, tpl.Specialty),
			})
		}
	}

	// 模拟换班并做结构性检查
	sim, takeOver, giveBack := e.simulateSwap(schedCtx, set, request)
	result.Impact.TargetPersonImpact.NewConflicts = e.appendConflicts(result, validator.CheckAssignment(schedCtx, sim, takeOver))
	sim.Add(takeOver)
	if giveBack != nil {
		result.Impact.SourcePersonImpact.NewConflicts = e.appendConflicts(result, validator.CheckAssignment(schedCtx, sim, giveBack))
		sim.Add(giveBack)
	}

	// 约束管理器重评估，只追究换班涉及人员的硬违反
	if e.manager != nil {
		involved := map[uuid.UUID]bool{target.ID: true}
		if giveBack != nil {
			involved[source.PersonID] = true
		}

		baseline := e.manager.Evaluate(schedCtx, set)
		simResult := e.manager.Evaluate(schedCtx, sim)

		for _, v := range simResult.HardViolations {
			if !involved[v.PersonID] {
				continue
			}
			result.Feasible = false
			result.Issues = append(result.Issues, SwapIssue{
				Type:     string(v.ConstraintType),
				Severity: "error",
				Message:  v.Message,
			})
		}

		result.Score = simResult.Score
		result.Impact.OverallScoreChange = simResult.Score - baseline.Score
	}

	e.calculateImpact(schedCtx, set, sim, request, result)
	result.Recommendation = e.generateRecommendation(result)
	return result
}

// EvaluateSwapWithout 临时停用部分约束后评估换班（what-if 诊断）
// 约束启用状态在评估结束后恢复；生产模式下硬约束停用会被注册表拒绝，按保持启用处理
func (e *SwapEvaluator) EvaluateSwapWithout(schedCtx *constraint.Context, set *constraint.AssignmentSet, request *SwapRequest, disabled []constraint.Type) *SwapEvaluation {
	if e.manager == nil {
		return e.EvaluateSwap(schedCtx, set, request)
	}

	snapshot := e.manager.Snapshot()
	defer e.manager.Restore(snapshot)

	for _, t := range disabled {
		_ = e.manager.SetEnabled(t, false)
	}
	return e.EvaluateSwap(schedCtx, set, request)
}

// CanSwap 快速检查能否换班
func (e *SwapEvaluator) CanSwap(schedCtx *constraint.Context, set *constraint.AssignmentSet, request *SwapRequest) (bool, string) {
	result := e.EvaluateSwap(schedCtx, set, request)
	if !result.Feasible {
		if len(result.Issues) > 0 {
			return false, result.Issues[0].Message
		}
		return false, "无法进行换班"
	}
	return true, ""
}

// simulateSwap 构造换班后的分配集合
// 返回的集合尚未加入新分配，便于先做候选级结构检查
func (e *SwapEvaluator) simulateSwap(schedCtx *constraint.Context, set *constraint.AssignmentSet, request *SwapRequest) (*constraint.AssignmentSet, *model.Assignment, *model.Assignment) {
	sim := set.Clone()
	sim.Remove(request.SourceAssignment.ID)

	takeOver := request.SourceAssignment.Clone()
	takeOver.ID = uuid.New()
	takeOver.PersonID = request.TargetPerson.ID
	takeOver.Role = request.TargetPerson.Role
	takeOver.Level = request.TargetPerson.Level
	takeOver.Locked = false

	var giveBack *model.Assignment
	if request.TargetAssignment != nil {
		sim.Remove(request.TargetAssignment.ID)
		giveBack = request.TargetAssignment.Clone()
		giveBack.ID = uuid.New()
		giveBack.PersonID = request.SourceAssignment.PersonID
		giveBack.Locked = false
		if p := schedCtx.GetPerson(request.SourceAssignment.PersonID); p != nil {
			giveBack.Role = p.Role
			giveBack.Level = p.Level
		}
	}

	return sim, takeOver, giveBack
}

// appendConflicts 把结构性冲突转为换班问题，返回错误级冲突数
func (e *SwapEvaluator) appendConflicts(result *SwapEvaluation, conflicts []validator.Conflict) int {
	count := 0
	for _, c := range conflicts {
		result.Issues = append(result.Issues, SwapIssue{
			Type:     string(c.Type),
			Severity: c.Severity,
			Message:  c.Message,
		})
		if c.Severity == "error" {
			result.Feasible = false
			count++
		}
	}
	return count
}

// calculateImpact 计算换班对双方工时与偏好的影响
func (e *SwapEvaluator) calculateImpact(schedCtx *constraint.Context, before, after *constraint.AssignmentSet, request *SwapRequest, result *SwapEvaluation) {
	source := schedCtx.GetPerson(request.SourceAssignment.PersonID)
	target := request.TargetPerson
	if source == nil || target == nil {
		return
	}

	fillImpact := func(p *model.Person, impact *PersonImpact) {
		oldHours := before.TotalHours(p.ID)
		newHours := after.TotalHours(p.ID)
		impact.HoursChange = newHours - oldHours

		if p.TargetHours > 0 {
			overBefore := oldHours - p.TargetHours
			if overBefore < 0 {
				overBefore = 0
			}
			overAfter := newHours - p.TargetHours
			if overAfter < 0 {
				overAfter = 0
			}
			impact.OverTargetChange = overAfter - overBefore
		}
	}

	fillImpact(source, result.Impact.SourcePersonImpact)
	fillImpact(target, result.Impact.TargetPersonImpact)

	if slot := schedCtx.GetSlot(request.SourceAssignment.SlotID); slot != nil {
		result.Impact.TargetPersonImpact.PreferenceSatisfied = target.PrefersTimeOfDay(slot.TimeOfDay)
	}
}

// generateRecommendation 按可行性与得分生成建议
func (e *SwapEvaluator) generateRecommendation(result *SwapEvaluation) string {
	if !result.Feasible {
		return "不建议进行此换班，存在硬约束冲突"
	}

	switch {
	case result.Score >= 90:
		return "推荐，换班后整体效果良好"
	case result.Score >= 70:
		return "可以进行，但存在一些软约束问题"
	case result.Score >= 50:
		return "谨慎进行，可能影响整体排班质量"
	default:
		return "不推荐，虽然可行但会显著降低排班质量"
	}
}
