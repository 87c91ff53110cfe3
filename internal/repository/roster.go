package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/optimizer"
)

// RosterRecord 排班表归档记录
type RosterRecord struct {
	ID          uuid.UUID         `json:"id"`
	OrgID       uuid.UUID         `json:"org_id"`
	Name        string            `json:"name"`
	StartDate   string            `json:"start_date"`
	EndDate     string            `json:"end_date"`
	Status      string            `json:"status"` // draft/published/archived
	Version     int               `json:"version"`
	SolveID     string            `json:"solve_id"`
	Algorithm   string            `json:"algorithm"`
	SolveStatus string            `json:"solve_status"` // 求解终态
	Stats       model.RosterStats `json:"statistics"`
	DurationMs  int64             `json:"duration_ms"`
	Message     string            `json:"message,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// FrontierSolution 帕累托前沿方案快照
// 只保留目标向量与规模信息，完整分配列表不入档
type FrontierSolution struct {
	ID              uuid.UUID `json:"id"`
	RosterID        uuid.UUID `json:"roster_id"`
	Rank            int       `json:"rank"`
	Objectives      []float64 `json:"objectives"`
	Normalized      []float64 `json:"normalized,omitempty"`
	AssignmentCount int       `json:"assignment_count"`
	Recommended     bool      `json:"recommended"`
	CreatedAt       time.Time `json:"created_at"`
}

// schemaDDL 归档表结构，可重复执行
const schemaDDL = `
CREATE TABLE IF NOT EXISTS rosters (
	id UUID PRIMARY KEY,
	org_id UUID NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	version INT NOT NULL DEFAULT 1,
	solve_id TEXT NOT NULL DEFAULT '',
	algorithm TEXT NOT NULL DEFAULT '',
	solve_status TEXT NOT NULL DEFAULT '',
	total_assignments INT NOT NULL DEFAULT 0,
	total_people INT NOT NULL DEFAULT 0,
	total_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
	unfilled_slots INT NOT NULL DEFAULT 0,
	coverage_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	constraint_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	fairness_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	preference_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rosters_org_created ON rosters (org_id, created_at DESC);

CREATE TABLE IF NOT EXISTS roster_assignments (
	id UUID PRIMARY KEY,
	roster_id UUID NOT NULL,
	org_id UUID NOT NULL,
	person_id UUID NOT NULL,
	slot_id UUID NOT NULL,
	template_id UUID NOT NULL,
	date TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	role TEXT NOT NULL DEFAULT '',
	level INT NOT NULL DEFAULT 0,
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	locked BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL DEFAULT 'scheduled',
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_roster_assignments_roster ON roster_assignments (roster_id);
CREATE INDEX IF NOT EXISTS idx_roster_assignments_person ON roster_assignments (person_id, date);

CREATE TABLE IF NOT EXISTS roster_frontier (
	id UUID PRIMARY KEY,
	roster_id UUID NOT NULL,
	rank INT NOT NULL,
	objectives JSONB NOT NULL,
	normalized JSONB,
	assignment_count INT NOT NULL DEFAULT 0,
	recommended BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_roster_frontier_roster ON roster_frontier (roster_id, rank);
`

// EnsureSchema 创建归档表（若不存在）
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("初始化归档表失败: %w", err)
	}
	return nil
}

// RosterRepositoryInterface 排班归档仓储接口
type RosterRepositoryInterface interface {
	// 排班表操作
	Create(ctx context.Context, record *RosterRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*RosterRecord, error)
	Update(ctx context.Context, record *RosterRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]*RosterRecord, int, error)

	// 分配操作
	SaveAssignments(ctx context.Context, rosterID uuid.UUID, assignments []*model.Assignment) error
	GetAssignments(ctx context.Context, rosterID uuid.UUID) ([]*model.Assignment, error)
	GetAssignmentsByPerson(ctx context.Context, personID uuid.UUID, startDate, endDate string) ([]*model.Assignment, error)

	// 前沿快照操作
	SaveFrontier(ctx context.Context, rosterID uuid.UUID, solutions []*optimizer.Solution, recommended *optimizer.Solution) error
	GetFrontier(ctx context.Context, rosterID uuid.UUID) ([]*FrontierSolution, error)

	// 查询统计
	GetLatest(ctx context.Context, orgID uuid.UUID) (*RosterRecord, error)
	CountByDateRange(ctx context.Context, orgID uuid.UUID, startDate, endDate string) (int, error)
}

// RosterRepository 排班归档仓储实现
type RosterRepository struct {
	db DB
}

// NewRosterRepository 创建排班归档仓储
func NewRosterRepository(db DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *RosterRepository) WithTx(tx Tx) *RosterRepository {
	return &RosterRepository{db: tx}
}

// rosterColumns 与 scanRoster 的扫描顺序一致
const rosterColumns = `id, org_id, name, start_date, end_date, status, version,
	solve_id, algorithm, solve_status,
	total_assignments, total_people, total_hours, unfilled_slots,
	coverage_rate, constraint_score, fairness_score, preference_score,
	duration_ms, message, metadata, created_at, updated_at`

// Create 写入排班归档
func (r *RosterRepository) Create(ctx context.Context, record *RosterRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	metadataJSON, _ := json.Marshal(record.Metadata)

	query := `
		INSERT INTO rosters (` + rosterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.OrgID, record.Name, record.StartDate, record.EndDate, record.Status, record.Version,
		record.SolveID, record.Algorithm, record.SolveStatus,
		record.Stats.TotalAssignments, record.Stats.TotalPeople, record.Stats.TotalHours, record.Stats.UnfilledSlots,
		record.Stats.CoverageRate, record.Stats.ConstraintScore, record.Stats.FairnessScore, record.Stats.PreferenceScore,
		record.DurationMs, record.Message, metadataJSON, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("归档排班表失败: %w", err)
	}

	return nil
}

// GetByID 根据ID获取排班归档
func (r *RosterRepository) GetByID(ctx context.Context, id uuid.UUID) (*RosterRecord, error) {
	query := `SELECT ` + rosterColumns + ` FROM rosters WHERE id = $1`
	return scanRoster(r.db.QueryRowContext(ctx, query, id))
}

// Update 更新排班归档（状态流转、统计修正）
func (r *RosterRepository) Update(ctx context.Context, record *RosterRecord) error {
	record.UpdatedAt = time.Now()
	metadataJSON, _ := json.Marshal(record.Metadata)

	query := `
		UPDATE rosters SET
			name = $2, status = $3, version = $4,
			total_assignments = $5, total_people = $6, total_hours = $7, unfilled_slots = $8,
			coverage_rate = $9, constraint_score = $10, fairness_score = $11, preference_score = $12,
			message = $13, metadata = $14, updated_at = $15
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.Name, record.Status, record.Version,
		record.Stats.TotalAssignments, record.Stats.TotalPeople, record.Stats.TotalHours, record.Stats.UnfilledSlots,
		record.Stats.CoverageRate, record.Stats.ConstraintScore, record.Stats.FairnessScore, record.Stats.PreferenceScore,
		record.Message, metadataJSON, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("更新排班归档失败: %w", err)
	}

	return nil
}

// Delete 删除排班归档及其分配与前沿快照
func (r *RosterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	// 先删除从表
	if _, err := r.db.ExecContext(ctx, "DELETE FROM roster_assignments WHERE roster_id = $1", id); err != nil {
		return fmt.Errorf("删除归档分配失败: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM roster_frontier WHERE roster_id = $1", id); err != nil {
		return fmt.Errorf("删除前沿快照失败: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM rosters WHERE id = $1", id); err != nil {
		return fmt.Errorf("删除排班归档失败: %w", err)
	}

	return nil
}

// List 列出排班归档
func (r *RosterRepository) List(ctx context.Context, filter ListFilter) ([]*RosterRecord, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.OrgID != nil {
		conditions = append(conditions, fmt.Sprintf("org_id = $%d", argNum))
		args = append(args, *filter.OrgID)
		argNum++
	}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, filter.Status)
		argNum++
	}

	if filter.Algorithm != "" {
		conditions = append(conditions, fmt.Sprintf("algorithm = $%d", argNum))
		args = append(args, filter.Algorithm)
		argNum++
	}

	if filter.StartDate != "" {
		conditions = append(conditions, fmt.Sprintf("start_date >= $%d", argNum))
		args = append(args, filter.StartDate)
		argNum++
	}

	if filter.EndDate != "" {
		conditions = append(conditions, fmt.Sprintf("end_date <= $%d", argNum))
		args = append(args, filter.EndDate)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// 计数
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM rosters %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计排班归档数量失败: %w", err)
	}

	// 查询
	query := fmt.Sprintf(`
		SELECT `+rosterColumns+`
		FROM rosters %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereClause, filter.OrderBy, filter.OrderDir, argNum, argNum+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询排班归档列表失败: %w", err)
	}
	defer rows.Close()

	var records []*RosterRecord
	for rows.Next() {
		rec, err := scanRoster(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	return records, total, nil
}

// assignmentColumns 与 scanAssignment 的扫描顺序一致
const assignmentColumns = `id, roster_id, org_id, person_id, slot_id, template_id,
	date, start_time, end_time, role, level, score, locked, status, notes,
	created_at, updated_at`

// SaveAssignments 批量归档排班分配
func (r *RosterRepository) SaveAssignments(ctx context.Context, rosterID uuid.UUID, assignments []*model.Assignment) error {
	query := `
		INSERT INTO roster_assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	now := time.Now()
	for _, a := range assignments {
		id := a.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		_, err := r.db.ExecContext(ctx, query,
			id, rosterID, a.OrgID, a.PersonID, a.SlotID, a.TemplateID,
			a.Date, a.StartTime, a.EndTime, a.Role, a.Level, a.Score, a.Locked, a.Status, a.Notes,
			createdAt, now,
		)
		if err != nil {
			return fmt.Errorf("归档排班分配失败: %w", err)
		}
	}

	return nil
}

// GetAssignments 获取归档的排班分配
func (r *RosterRepository) GetAssignments(ctx context.Context, rosterID uuid.UUID) ([]*model.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM roster_assignments
		WHERE roster_id = $1
		ORDER BY date, start_time
	`

	rows, err := r.db.QueryContext(ctx, query, rosterID)
	if err != nil {
		return nil, fmt.Errorf("查询归档分配失败: %w", err)
	}
	defer rows.Close()

	var assignments []*model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	return assignments, nil
}

// GetAssignmentsByPerson 获取指定人员在日期范围内的归档分配
func (r *RosterRepository) GetAssignmentsByPerson(ctx context.Context, personID uuid.UUID, startDate, endDate string) ([]*model.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM roster_assignments
		WHERE person_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, start_time
	`

	rows, err := r.db.QueryContext(ctx, query, personID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("查询人员归档分配失败: %w", err)
	}
	defer rows.Close()

	var assignments []*model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	return assignments, nil
}

// SaveFrontier 归档帕累托前沿快照
// recommended 指向前沿中被推荐采纳的方案，可为 nil
func (r *RosterRepository) SaveFrontier(ctx context.Context, rosterID uuid.UUID, solutions []*optimizer.Solution, recommended *optimizer.Solution) error {
	query := `
		INSERT INTO roster_frontier (id, roster_id, rank, objectives, normalized, assignment_count, recommended, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	for i, sol := range solutions {
		objectivesJSON, _ := json.Marshal(sol.Objectives)
		normalizedJSON, _ := json.Marshal(sol.Normalized)

		_, err := r.db.ExecContext(ctx, query,
			uuid.New(), rosterID, i, objectivesJSON, normalizedJSON,
			len(sol.Assignments), sol == recommended, now,
		)
		if err != nil {
			return fmt.Errorf("归档前沿方案失败: %w", err)
		}
	}

	return nil
}

// GetFrontier 获取归档的前沿快照
func (r *RosterRepository) GetFrontier(ctx context.Context, rosterID uuid.UUID) ([]*FrontierSolution, error) {
	query := `
		SELECT id, roster_id, rank, objectives, normalized, assignment_count, recommended, created_at
		FROM roster_frontier
		WHERE roster_id = $1
		ORDER BY rank
	`

	rows, err := r.db.QueryContext(ctx, query, rosterID)
	if err != nil {
		return nil, fmt.Errorf("查询前沿快照失败: %w", err)
	}
	defer rows.Close()

	var solutions []*FrontierSolution
	for rows.Next() {
		fs := &FrontierSolution{}
		var objectivesJSON, normalizedJSON []byte
		if err := rows.Scan(
			&fs.ID, &fs.RosterID, &fs.Rank, &objectivesJSON, &normalizedJSON,
			&fs.AssignmentCount, &fs.Recommended, &fs.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("扫描前沿快照失败: %w", err)
		}

		if len(objectivesJSON) > 0 {
			json.Unmarshal(objectivesJSON, &fs.Objectives)
		}
		if len(normalizedJSON) > 0 {
			json.Unmarshal(normalizedJSON, &fs.Normalized)
		}

		solutions = append(solutions, fs)
	}

	return solutions, nil
}

// GetLatest 获取组织最近一次归档
func (r *RosterRepository) GetLatest(ctx context.Context, orgID uuid.UUID) (*RosterRecord, error) {
	query := `
		SELECT ` + rosterColumns + `
		FROM rosters
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanRoster(r.db.QueryRowContext(ctx, query, orgID))
}

// CountByDateRange 统计日期范围内的归档数
func (r *RosterRepository) CountByDateRange(ctx context.Context, orgID uuid.UUID, startDate, endDate string) (int, error) {
	query := `
		SELECT COUNT(*) FROM rosters
		WHERE org_id = $1 AND start_date >= $2 AND end_date <= $3
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, orgID, startDate, endDate).Scan(&count); err != nil {
		return 0, fmt.Errorf("统计排班归档数量失败: %w", err)
	}
	return count, nil
}

// scanRoster 扫描单行归档记录，单行查询无结果时返回 (nil, nil)
func scanRoster(s Scanner) (*RosterRecord, error) {
	rec := &RosterRecord{}
	var metadataJSON []byte

	err := s.Scan(
		&rec.ID, &rec.OrgID, &rec.Name, &rec.StartDate, &rec.EndDate, &rec.Status, &rec.Version,
		&rec.SolveID, &rec.Algorithm, &rec.SolveStatus,
		&rec.Stats.TotalAssignments, &rec.Stats.TotalPeople, &rec.Stats.TotalHours, &rec.Stats.UnfilledSlots,
		&rec.Stats.CoverageRate, &rec.Stats.ConstraintScore, &rec.Stats.FairnessScore, &rec.Stats.PreferenceScore,
		&rec.DurationMs, &rec.Message, &metadataJSON, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描排班归档失败: %w", err)
	}

	if len(metadataJSON) > 0 {
		json.Unmarshal(metadataJSON, &rec.Metadata)
	}

	return rec, nil
}

// scanAssignment 扫描单行归档分配
func scanAssignment(s Scanner) (*model.Assignment, error) {
	a := &model.Assignment{}

	err := s.Scan(
		&a.ID, &a.RosterID, &a.OrgID, &a.PersonID, &a.SlotID, &a.TemplateID,
		&a.Date, &a.StartTime, &a.EndTime, &a.Role, &a.Level, &a.Score, &a.Locked, &a.Status, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描归档分配失败: %w", err)
	}

	return a, nil
}
