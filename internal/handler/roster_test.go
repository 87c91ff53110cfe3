package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/internal/repository"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/optimizer"
)

func TestRosterHandler_List(t *testing.T) {
	repo := newMockRosterRepo()
	orgID := uuid.New()
	repo.listItems = []*repository.RosterRecord{
		{ID: uuid.New(), OrgID: orgID, Name: "一月排班"},
		{ID: uuid.New(), OrgID: orgID, Name: "二月排班"},
	}
	repo.listTotal = 5
	h := NewRosterHandler(repo)

	rec := doJSON(t, h.List, http.MethodGet,
		"/api/v1/rosters?org_id="+orgID.String()+"&status=draft&limit=2&offset=0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp RosterListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Total != 5 {
		t.Errorf("Total = %d, want 5", resp.Total)
	}
	if len(resp.Items) != 2 {
		t.Errorf("条目数 = %d, want 2", len(resp.Items))
	}

	if repo.lastFilter.OrgID == nil || *repo.lastFilter.OrgID != orgID {
		t.Error("org_id 过滤条件未传递到仓储")
	}
	if repo.lastFilter.Status != "draft" {
		t.Errorf("status 过滤 = %s, want draft", repo.lastFilter.Status)
	}
	if repo.lastFilter.Limit != 2 {
		t.Errorf("limit = %d, want 2", repo.lastFilter.Limit)
	}
}

func TestRosterHandler_List_BadOrgID(t *testing.T) {
	h := NewRosterHandler(newMockRosterRepo())

	rec := doJSON(t, h.List, http.MethodGet, "/api/v1/rosters?org_id=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rec, "INVALID_INPUT")
}

func TestRosterHandler_Get(t *testing.T) {
	repo := newMockRosterRepo()
	record := archivedRoster("draft")
	repo.records[record.ID] = record
	repo.assignments[record.ID] = []*model.Assignment{
		{BaseModel: model.BaseModel{ID: uuid.New()}, RosterID: record.ID},
	}
	repo.frontier[record.ID] = []*repository.FrontierSolution{
		{ID: uuid.New(), RosterID: record.ID, Rank: 1, Objectives: []float64{0.1, 0.2, 0.3}, Recommended: true},
	}
	h := NewRosterHandler(repo)

	rec := doJSON(t, h.Roster, http.MethodGet, "/api/v1/rosters/"+record.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp RosterDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Roster == nil || resp.Roster.ID != record.ID {
		t.Error("详情应返回归档记录")
	}
	if len(resp.Assignments) != 1 {
		t.Errorf("分配数 = %d, want 1", len(resp.Assignments))
	}
	if len(resp.Frontier) != 1 || !resp.Frontier[0].Recommended {
		t.Error("应返回带推荐标记的前沿快照")
	}
}

func TestRosterHandler_Get_NotFound(t *testing.T) {
	h := NewRosterHandler(newMockRosterRepo())

	rec := doJSON(t, h.Roster, http.MethodGet, "/api/v1/rosters/"+uuid.New().String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusNotFound)
	}
	assertErrorCode(t, rec, "NOT_FOUND")
}

func TestRosterHandler_Get_BadID(t *testing.T) {
	h := NewRosterHandler(newMockRosterRepo())

	rec := doJSON(t, h.Roster, http.MethodGet, "/api/v1/rosters/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRosterHandler_Latest(t *testing.T) {
	repo := newMockRosterRepo()
	record := archivedRoster("published")
	repo.latest = record
	h := NewRosterHandler(repo)

	rec := doJSON(t, h.Roster, http.MethodGet,
		"/api/v1/rosters/latest?org_id="+record.OrgID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusOK)
	}

	var got repository.RosterRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if got.ID != record.ID {
		t.Errorf("返回归档 = %s, want %s", got.ID, record.ID)
	}
}

func TestRosterHandler_Latest_MissingOrgID(t *testing.T) {
	h := NewRosterHandler(newMockRosterRepo())

	rec := doJSON(t, h.Roster, http.MethodGet, "/api/v1/rosters/latest", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRosterHandler_Publish(t *testing.T) {
	repo := newMockRosterRepo()
	record := archivedRoster("draft")
	repo.records[record.ID] = record
	h := NewRosterHandler(repo)

	rec := doJSON(t, h.Roster, http.MethodPost,
		"/api/v1/rosters/"+record.ID.String()+"/publish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var got repository.RosterRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if got.Status != "published" {
		t.Errorf("Status = %s, want published", got.Status)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
	if len(repo.updated) != 1 {
		t.Errorf("仓储 Update 调用次数 = %d, want 1", len(repo.updated))
	}
}

func TestRosterHandler_Publish_Idempotent(t *testing.T) {
	repo := newMockRosterRepo()
	record := archivedRoster("published")
	repo.records[record.ID] = record
	h := NewRosterHandler(repo)

	rec := doJSON(t, h.Roster, http.MethodPost,
		"/api/v1/rosters/"+record.ID.String()+"/publish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(repo.updated) != 0 {
		t.Error("重复发布不应触发仓储更新")
	}
}

func TestRosterHandler_Publish_Archived(t *testing.T) {
	repo := newMockRosterRepo()
	record := archivedRoster("archived")
	repo.records[record.ID] = record
	h := NewRosterHandler(repo)

	rec := doJSON(t, h.Roster, http.MethodPost,
		"/api/v1/rosters/"+record.ID.String()+"/publish", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusConflict)
	}
	assertErrorCode(t, rec, "ROSTER_CONFLICT")
}

func TestRosterHandler_Delete(t *testing.T) {
	repo := newMockRosterRepo()
	record := archivedRoster("draft")
	repo.records[record.ID] = record
	h := NewRosterHandler(repo)

	rec := doJSON(t, h.Roster, http.MethodDelete, "/api/v1/rosters/"+record.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != record.ID {
		t.Error("仓储 Delete 未被调用")
	}
}

func TestRosterHandler_PersonAssignments(t *testing.T) {
	repo := newMockRosterRepo()
	personID := uuid.New()
	repo.personAssignments[personID] = []*model.Assignment{
		{BaseModel: model.BaseModel{ID: uuid.New()}, PersonID: personID, Date: "2024-01-01"},
		{BaseModel: model.BaseModel{ID: uuid.New()}, PersonID: personID, Date: "2024-01-03"},
	}
	h := NewRosterHandler(repo)

	rec := doJSON(t, h.PersonAssignments, http.MethodGet,
		"/api/v1/people/"+personID.String()+"/assignments?start_date=2024-01-01&end_date=2024-01-07", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		PersonID    string              `json:"person_id"`
		Assignments []*model.Assignment `json:"assignments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.PersonID != personID.String() {
		t.Errorf("person_id = %s, want %s", resp.PersonID, personID)
	}
	if len(resp.Assignments) != 2 {
		t.Errorf("分配数 = %d, want 2", len(resp.Assignments))
	}
}

func TestRosterHandler_PersonAssignments_MissingDates(t *testing.T) {
	h := NewRosterHandler(newMockRosterRepo())

	rec := doJSON(t, h.PersonAssignments, http.MethodGet,
		"/api/v1/people/"+uuid.New().String()+"/assignments", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// 辅助函数

func archivedRoster(status string) *repository.RosterRecord {
	now := time.Now()
	return &repository.RosterRecord{
		ID:          uuid.New(),
		OrgID:       uuid.New(),
		Name:        "测试排班",
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-07",
		Status:      status,
		Version:     1,
		SolveID:     uuid.New().String(),
		Algorithm:   "greedy",
		SolveStatus: "success",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// mockRosterRepo 内存实现，记录调用参数供断言
type mockRosterRepo struct {
	records           map[uuid.UUID]*repository.RosterRecord
	assignments       map[uuid.UUID][]*model.Assignment
	frontier          map[uuid.UUID][]*repository.FrontierSolution
	personAssignments map[uuid.UUID][]*model.Assignment
	latest            *repository.RosterRecord

	listItems  []*repository.RosterRecord
	listTotal  int
	lastFilter repository.ListFilter

	updated []*repository.RosterRecord
	deleted []uuid.UUID
}

func newMockRosterRepo() *mockRosterRepo {
	return &mockRosterRepo{
		records:           make(map[uuid.UUID]*repository.RosterRecord),
		assignments:       make(map[uuid.UUID][]*model.Assignment),
		frontier:          make(map[uuid.UUID][]*repository.FrontierSolution),
		personAssignments: make(map[uuid.UUID][]*model.Assignment),
	}
}

func (m *mockRosterRepo) Create(ctx context.Context, record *repository.RosterRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	m.records[record.ID] = record
	return nil
}

func (m *mockRosterRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.RosterRecord, error) {
	return m.records[id], nil
}

func (m *mockRosterRepo) Update(ctx context.Context, record *repository.RosterRecord) error {
	m.updated = append(m.updated, record)
	m.records[record.ID] = record
	return nil
}

func (m *mockRosterRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	delete(m.records, id)
	return nil
}

func (m *mockRosterRepo) List(ctx context.Context, filter repository.ListFilter) ([]*repository.RosterRecord, int, error) {
	m.lastFilter = filter
	return m.listItems, m.listTotal, nil
}

func (m *mockRosterRepo) SaveAssignments(ctx context.Context, rosterID uuid.UUID, assignments []*model.Assignment) error {
	m.assignments[rosterID] = assignments
	return nil
}

func (m *mockRosterRepo) GetAssignments(ctx context.Context, rosterID uuid.UUID) ([]*model.Assignment, error) {
	return m.assignments[rosterID], nil
}

func (m *mockRosterRepo) GetAssignmentsByPerson(ctx context.Context, personID uuid.UUID, startDate, endDate string) ([]*model.Assignment, error) {
	return m.personAssignments[personID], nil
}

func (m *mockRosterRepo) SaveFrontier(ctx context.Context, rosterID uuid.UUID, solutions []*optimizer.Solution, recommended *optimizer.Solution) error {
	return nil
}

func (m *mockRosterRepo) GetFrontier(ctx context.Context, rosterID uuid.UUID) ([]*repository.FrontierSolution, error) {
	return m.frontier[rosterID], nil
}

func (m *mockRosterRepo) GetLatest(ctx context.Context, orgID uuid.UUID) (*repository.RosterRecord, error) {
	return m.latest, nil
}

func (m *mockRosterRepo) CountByDateRange(ctx context.Context, orgID uuid.UUID, startDate, endDate string) (int, error) {
	return 0, nil
}
