package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/internal/config"
	"github.com/rotaplan/rotaplan/pkg/errors"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint/builtin"
	"github.com/rotaplan/rotaplan/pkg/swap"
)

// SwapHandler 换班评估处理器
type SwapHandler struct {
	cfg *config.Config
}

// NewSwapHandler 创建换班评估处理器
func NewSwapHandler(cfg *config.Config) *SwapHandler {
	return &SwapHandler{cfg: cfg}
}

// WhatIfRequest 换班评估请求
// 对一份现行排班做what-if模拟：source_assignment_id 指向的班次转给
// target_person_id，给出 target_assignment_id 时为互换。
// recommend 为 true 时不做定向评估，而是为源分配推荐可行的换班对象。
type WhatIfRequest struct {
	OrgID       string                    `json:"org_id"`
	StartDate   string                    `json:"start_date"`
	EndDate     string                    `json:"end_date"`
	People      []*model.Person           `json:"people"`
	Slots       []*model.TimeSlot         `json:"slots"`
	Templates   []*model.RotationTemplate `json:"templates,omitempty"`
	Absences    []*model.Absence          `json:"absences,omitempty"`
	Assignments []*model.Assignment       `json:"assignments"`
	Constraints map[string]interface{}    `json:"constraints,omitempty"`
	Disabled    []string                  `json:"disabled,omitempty"`

	SourceAssignmentID string `json:"source_assignment_id"`
	TargetPersonID     string `json:"target_person_id,omitempty"`
	TargetAssignmentID string `json:"target_assignment_id,omitempty"`

	Recommend          bool `json:"recommend,omitempty"`
	MaxRecommendations int  `json:"max_recommendations,omitempty"`
}

// WhatIfResponse 换班评估响应
type WhatIfResponse struct {
	Evaluation      *swap.SwapEvaluation   `json:"evaluation,omitempty"`
	Recommendations []*swap.Recommendation `json:"recommendations,omitempty"`
}

// WhatIf 评估或推荐换班
func (h *SwapHandler) WhatIf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req WhatIfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if err := validateWhatIfRequest(&req); err != nil {
		respondError(w, err)
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

	set := constraint.NewAssignmentSet(req.Assignments)

	source := findAssignment(req.Assignments, req.SourceAssignmentID)
	if source == nil {
		respondError(w, errors.NotFound("分配", req.SourceAssignmentID))
		return
	}

	cm := constraint.NewManager()
	builtin.RegisterDefaultConstraints(cm, mergeConstraintConfig(h.cfg, req.Constraints))

	if req.Recommend {
		options := swap.DefaultRecommendOptions()
		if req.MaxRecommendations > 0 {
			options.MaxRecommendations = req.MaxRecommendations
		}
		recs := swap.NewRecommender(cm).RecommendSwapTargets(schedCtx, set, source, options)
		respondJSON(w, http.StatusOK, WhatIfResponse{Recommendations: recs})
		return
	}

	personID, err := uuid.Parse(req.TargetPersonID)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的目标人员ID格式"))
		return
	}
	target := schedCtx.GetPerson(personID)
	if target == nil {
		respondError(w, errors.NotFound("人员", req.TargetPersonID))
		return
	}

	var targetAssignment *model.Assignment
	if req.TargetAssignmentID != "" {
		targetAssignment = findAssignment(req.Assignments, req.TargetAssignmentID)
		if targetAssignment == nil {
			respondError(w, errors.NotFound("分配", req.TargetAssignmentID))
			return
		}
	}

	swapReq := &swap.SwapRequest{
		SourceAssignment: source,
		TargetPerson:     target,
		TargetAssignment: targetAssignment,
	}

	evaluator := swap.NewSwapEvaluator(cm)
	var eval *swap.SwapEvaluation
	if len(req.Disabled) > 0 {
		disabled := make([]constraint.Type, 0, len(req.Disabled))
		for _, name := range req.Disabled {
			disabled = append(disabled, constraint.Type(name))
		}
		eval = evaluator.EvaluateSwapWithout(schedCtx, set, swapReq, disabled)
	} else {
		eval = evaluator.EvaluateSwap(schedCtx, set, swapReq)
	}

	respondJSON(w, http.StatusOK, WhatIfResponse{Evaluation: eval})
}

// validateWhatIfRequest 验证换班评估请求
func validateWhatIfRequest(req *WhatIfRequest) *errors.AppError {
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
	if len(req.Assignments) == 0 {
		ve.Add("assignments", "现行排班不能为空")
	}
	if req.SourceAssignmentID == "" {
		ve.Add("source_assignment_id", "源分配ID不能为空")
	}
	if !req.Recommend && req.TargetPersonID == "" {
		ve.Add("target_person_id", "目标人员ID不能为空")
	}

	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// findAssignment 按ID在分配列表中查找
func findAssignment(assignments []*model.Assignment, id string) *model.Assignment {
	for _, a := range assignments {
		if a.ID.String() == id {
			return a
		}
	}
	return nil
}
