package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/internal/repository"
	"github.com/rotaplan/rotaplan/pkg/errors"
	"github.com/rotaplan/rotaplan/pkg/model"
)

// RosterHandler 排班归档查询处理器
type RosterHandler struct {
	repo repository.RosterRepositoryInterface
}

// NewRosterHandler 创建归档查询处理器
func NewRosterHandler(repo repository.RosterRepositoryInterface) *RosterHandler {
	return &RosterHandler{repo: repo}
}

// RosterListResponse 归档列表响应
type RosterListResponse struct {
	Total  int                        `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
	Items  []*repository.RosterRecord `json:"items"`
}

// RosterDetailResponse 归档详情响应
type RosterDetailResponse struct {
	Roster      *repository.RosterRecord       `json:"roster"`
	Assignments []*model.Assignment            `json:"assignments"`
	Frontier    []*repository.FrontierSolution `json:"frontier,omitempty"`
}

// List 分页查询归档 GET /api/v1/rosters
func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}

	filter := repository.DefaultListFilter()
	q := r.URL.Query()

	if v := q.Get("org_id"); v != "" {
		orgID, err := uuid.Parse(v)
		if err != nil {
			respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的组织ID格式"))
			return
		}
		filter = filter.WithOrgID(orgID)
	}
	if v := q.Get("status"); v != "" {
		filter = filter.WithStatus(v)
	}
	if v := q.Get("algorithm"); v != "" {
		filter = filter.WithAlgorithm(v)
	}
	if start, end := q.Get("start_date"), q.Get("end_date"); start != "" || end != "" {
		filter = filter.WithDateRange(start, end)
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter = filter.WithLimit(limit)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			filter = filter.WithOffset(offset)
		}
	}

	records, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询归档列表失败"))
		return
	}
	if records == nil {
		records = []*repository.RosterRecord{}
	}

	respondJSON(w, http.StatusOK, RosterListResponse{
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
		Items:  records,
	})
}

// Roster 处理 /api/v1/rosters/{id} 及其子路径
// GET {id} 查详情，DELETE {id} 删归档，POST {id}/publish 发布，
// GET latest?org_id= 查组织最近一次归档。
func (h *RosterHandler) Roster(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/rosters/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	if parts[0] == "latest" {
		h.latest(w, r)
		return
	}

	rosterID, err := uuid.Parse(parts[0])
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的归档ID格式"))
		return
	}

	if len(parts) == 2 && parts[1] == "publish" {
		h.publish(w, r, rosterID)
		return
	}
	if len(parts) > 1 {
		respondError(w, errors.New(errors.CodeNotFound, "未知的归档子路径"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, rosterID)
	case http.MethodDelete:
		h.delete(w, r, rosterID)
	default:
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET和DELETE方法"))
	}
}

// get 查询归档详情，带分配列表与前沿快照
func (h *RosterHandler) get(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询归档失败"))
		return
	}
	if record == nil {
		respondError(w, errors.NotFound("排班归档", id.String()))
		return
	}

	assignments, err := h.repo.GetAssignments(r.Context(), id)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询归档分配失败"))
		return
	}
	frontier, err := h.repo.GetFrontier(r.Context(), id)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询前沿快照失败"))
		return
	}
	if assignments == nil {
		assignments = []*model.Assignment{}
	}

	respondJSON(w, http.StatusOK, RosterDetailResponse{
		Roster:      record,
		Assignments: assignments,
		Frontier:    frontier,
	})
}

// latest 查询组织最近一次归档
func (h *RosterHandler) latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}
	v := r.URL.Query().Get("org_id")
	if v == "" {
		respondError(w, errors.New(errors.CodeInvalidInput, "org_id参数不能为空"))
		return
	}
	orgID, err := uuid.Parse(v)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的组织ID格式"))
		return
	}

	record, err := h.repo.GetLatest(r.Context(), orgID)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询归档失败"))
		return
	}
	if record == nil {
		respondError(w, errors.NotFound("排班归档", "org_id="+v))
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// publish 把草稿归档发布为现行排班
// 重复发布幂等返回当前记录
func (h *RosterHandler) publish(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}
	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询归档失败"))
		return
	}
	if record == nil {
		respondError(w, errors.NotFound("排班归档", id.String()))
		return
	}
	if record.Status == "published" {
		respondJSON(w, http.StatusOK, record)
		return
	}
	if record.Status == "archived" {
		respondError(w, errors.New(errors.CodeRosterConflict, "已封存的归档不能发布"))
		return
	}

	record.Status = "published"
	record.Version++
	if err := h.repo.Update(r.Context(), record); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "更新归档失败"))
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// delete 删除归档及其分配与前沿快照
func (h *RosterHandler) delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询归档失败"))
		return
	}
	if record == nil {
		respondError(w, errors.NotFound("排班归档", id.String()))
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "删除归档失败"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id.String()})
}

// PersonAssignments 查询人员在给定日期范围内的归档分配
// GET /api/v1/people/{id}/assignments?start_date=&end_date=
func (h *RosterHandler) PersonAssignments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/people/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "assignments" {
		respondError(w, errors.New(errors.CodeNotFound, "未知的人员子路径"))
		return
	}
	personID, err := uuid.Parse(parts[0])
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的人员ID格式"))
		return
	}

	q := r.URL.Query()
	startDate, endDate := q.Get("start_date"), q.Get("end_date")
	if startDate == "" || endDate == "" {
		respondError(w, errors.New(errors.CodeInvalidInput, "start_date和end_date参数不能为空"))
		return
	}

	assignments, err := h.repo.GetAssignmentsByPerson(r.Context(), personID, startDate, endDate)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询人员归档分配失败"))
		return
	}
	if assignments == nil {
		assignments = []*model.Assignment{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"person_id":   personID.String(),
		"start_date":  startDate,
		"end_date":    endDate,
		"assignments": assignments,
	})
}
