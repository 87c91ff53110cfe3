package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/demand"
	"github.com/rotaplan/rotaplan/pkg/errors"
	"github.com/rotaplan/rotaplan/pkg/model"
)

// DemandHandler 需求展开处理器
// 把轮转模板的覆盖需求展开为可直接提交求解的时段列表
type DemandHandler struct {
	planner *demand.Planner
}

// NewDemandHandler 创建需求展开处理器
func NewDemandHandler() *DemandHandler {
	return &DemandHandler{planner: demand.NewPlanner()}
}

// DemandRequest 需求展开请求
// 每项需求给出覆盖模式名（weekday_day/day_evening/around_the_clock）
// 或显式班次模式，二者择一，显式模式优先
type DemandRequest struct {
	OrgID      string          `json:"org_id"`
	StartDate  string          `json:"start_date"` // YYYY-MM-DD
	EndDate    string          `json:"end_date"`   // YYYY-MM-DD，闭区间
	PeriodDays int             `json:"period_days,omitempty"`
	Demands    []*DemandItem   `json:"demands"`
	People     []*model.Person `json:"people,omitempty"` // 提供时附带人手预估
}

// DemandItem 单个模板的需求定义
type DemandItem struct {
	Template      *model.RotationTemplate `json:"template"`
	CoverageModel string                  `json:"coverage_model,omitempty"`
	Patterns      []demand.ShiftPattern   `json:"patterns,omitempty"`
}

// DemandResponse 需求展开响应
type DemandResponse struct {
	Slots    []*model.TimeSlot        `json:"slots"`
	Forecast *demand.StaffingForecast `json:"forecast,omitempty"`
}

// Expand 展开轮转需求为时段
func (h *DemandHandler) Expand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req DemandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if err := validateDemandRequest(&req); err != nil {
		respondError(w, err)
		return
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的组织ID格式"))
		return
	}

	planner := h.planner
	if req.PeriodDays > 0 {
		planner = demand.NewPlanner()
		planner.SetPeriodDays(req.PeriodDays)
	}

	demands := make([]*demand.TemplateDemand, 0, len(req.Demands))
	templates := make([]*model.RotationTemplate, 0, len(req.Demands))
	for _, item := range req.Demands {
		td, err := buildTemplateDemand(planner, item)
		if err != nil {
			respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "需求定义无效"))
			return
		}
		demands = append(demands, td)
		templates = append(templates, item.Template)
	}

	slots, err := planner.ExpandSlots(orgID, demands, req.StartDate, req.EndDate)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "需求展开失败"))
		return
	}

	resp := &DemandResponse{Slots: slots}
	if len(req.People) > 0 {
		resp.Forecast = planner.ForecastStaffing(slots, templates, req.People)
	}
	respondJSON(w, http.StatusOK, resp)
}

// validateDemandRequest 验证需求展开请求
func validateDemandRequest(req *DemandRequest) *errors.AppError {
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
	if len(req.Demands) == 0 {
		ve.Add("demands", "需求列表不能为空")
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
	for i, item := range req.Demands {
		if item == nil || item.Template == nil {
			ve.Add("demands", fmt.Sprintf("第 %d 项需求缺少轮转模板", i+1))
			continue
		}
		if item.CoverageModel == "" && len(item.Patterns) == 0 {
			ve.Add("demands", fmt.Sprintf("第 %d 项需求需要覆盖模式或显式班次模式", i+1))
		}
	}

	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// buildTemplateDemand 由请求项构造模板需求
func buildTemplateDemand(planner *demand.Planner, item *DemandItem) (*demand.TemplateDemand, error) {
	if len(item.Patterns) > 0 {
		return &demand.TemplateDemand{Template: item.Template, Patterns: item.Patterns}, nil
	}
	return planner.CreateDemand(item.Template, item.CoverageModel)
}
