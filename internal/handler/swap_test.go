package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
)

func TestSwapHandler_WhatIf_TakeOver(t *testing.T) {
	h := NewSwapHandler(testConfig())
	req, _, _ := whatIfFixture()

	rec := doJSON(t, h.WhatIf, http.MethodPost, "/api/v1/whatif", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp WhatIfResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Evaluation == nil {
		t.Fatal("定向评估应返回 evaluation")
	}
	if !resp.Evaluation.Feasible {
		t.Errorf("空闲人员接班应可行, issues: %+v", resp.Evaluation.Issues)
	}
	if resp.Evaluation.Impact == nil {
		t.Error("评估应带影响分析")
	}
}

func TestSwapHandler_WhatIf_LockedSource(t *testing.T) {
	h := NewSwapHandler(testConfig())
	req, source, _ := whatIfFixture()
	source.Locked = true

	rec := doJSON(t, h.WhatIf, http.MethodPost, "/api/v1/whatif", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp WhatIfResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Evaluation == nil || resp.Evaluation.Feasible {
		t.Error("锁定分配不应可换班")
	}

	found := false
	for _, issue := range resp.Evaluation.Issues {
		if issue.Type == "locked_assignment" {
			found = true
		}
	}
	if !found {
		t.Errorf("应报告 locked_assignment 问题, 得到 %+v", resp.Evaluation.Issues)
	}
}

func TestSwapHandler_WhatIf_Recommend(t *testing.T) {
	h := NewSwapHandler(testConfig())
	req, _, target := whatIfFixture()
	req.Recommend = true
	req.TargetPersonID = ""

	rec := doJSON(t, h.WhatIf, http.MethodPost, "/api/v1/whatif", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp WhatIfResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(resp.Recommendations) == 0 {
		t.Fatal("空闲人员在场时应有换班推荐")
	}
	if resp.Recommendations[0].TargetPerson.ID != target.ID {
		t.Errorf("首位推荐 = %s, want %s", resp.Recommendations[0].TargetPerson.Name, target.Name)
	}
}

func TestSwapHandler_WhatIf_SourceNotFound(t *testing.T) {
	h := NewSwapHandler(testConfig())
	req, _, _ := whatIfFixture()
	req.SourceAssignmentID = uuid.New().String()

	rec := doJSON(t, h.WhatIf, http.MethodPost, "/api/v1/whatif", req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusNotFound)
	}
	assertErrorCode(t, rec, "NOT_FOUND")
}

func TestSwapHandler_WhatIf_MissingFields(t *testing.T) {
	h := NewSwapHandler(testConfig())

	rec := doJSON(t, h.WhatIf, http.MethodPost, "/api/v1/whatif", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rec, "VALIDATION_FAILED")
}

// 辅助函数

// whatIfFixture 甲值早班、乙空闲，评估把甲的班转给乙
// 返回请求与源分配、目标人员，便于用例微调
func whatIfFixture() (*WhatIfRequest, *model.Assignment, *model.Person) {
	tpl := requestTemplate("值班", 1)
	p1 := requestPerson("甲", 1)
	p2 := requestPerson("乙", 1)
	slot := requestSlot(tpl, "2024-01-01", model.TimeOfDayDay, "08:00", "16:00")
	source := requestAssignment(p1, slot)

	req := &WhatIfRequest{
		OrgID:              uuid.New().String(),
		StartDate:          "2024-01-01",
		EndDate:            "2024-01-07",
		People:             []*model.Person{p1, p2},
		Slots:              []*model.TimeSlot{slot},
		Templates:          []*model.RotationTemplate{tpl},
		Assignments:        []*model.Assignment{source},
		SourceAssignmentID: source.ID.String(),
		TargetPersonID:     p2.ID.String(),
	}
	return req, source, p2
}
