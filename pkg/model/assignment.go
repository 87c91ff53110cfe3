// Package model 定义值班排班引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// Assignment 排班分配（人员与时段的绑定）
type Assignment struct {
	BaseModel
	OrgID      uuid.UUID `json:"org_id" db:"org_id"`
	RosterID   uuid.UUID `json:"roster_id" db:"roster_id"`
	PersonID   uuid.UUID `json:"person_id" db:"person_id"`
	SlotID     uuid.UUID `json:"slot_id" db:"slot_id"`
	TemplateID uuid.UUID `json:"template_id" db:"template_id"`
	Date       string    `json:"date" db:"date"` // YYYY-MM-DD
	StartTime  time.Time `json:"start_time" db:"start_time"`
	EndTime    time.Time `json:"end_time" db:"end_time"`

	Role   string  `json:"role,omitempty" db:"role"` // 分配时的角色
	Level  int     `json:"level" db:"level"`         // 分配时的职级
	Score  float64 `json:"score" db:"score"`         // 求解器给出的分配得分
	Locked bool    `json:"locked" db:"locked"`       // 锁定分配（求解前已存在，必须保留）
	Status string  `json:"status" db:"status"`       // scheduled/confirmed/cancelled
	Notes  string  `json:"notes,omitempty" db:"notes"`
}

// WorkingHours 计算分配的工作时长（小时）
func (a *Assignment) WorkingHours() float64 {
	return a.EndTime.Sub(a.StartTime).Hours()
}

// IsOnDate 检查分配是否在指定日期
func (a *Assignment) IsOnDate(date string) bool {
	return a.Date == date
}

// Overlaps 检查两个分配的时间是否重叠
func (a *Assignment) Overlaps(other *Assignment) bool {
	return a.StartTime.Before(other.EndTime) && other.StartTime.Before(a.EndTime)
}

// Clone 返回分配的浅拷贝
func (a *Assignment) Clone() *Assignment {
	c := *a
	return &c
}

// Roster 排班表（一次求解的产出）
type Roster struct {
	BaseModel
	OrgID       uuid.UUID     `json:"org_id" db:"org_id"`
	Name        string        `json:"name" db:"name"`
	StartDate   string        `json:"start_date" db:"start_date"`
	EndDate     string        `json:"end_date" db:"end_date"`
	Status      string        `json:"status" db:"status"` // draft/published/archived
	Version     int           `json:"version" db:"version"`
	Assignments []*Assignment `json:"assignments,omitempty" db:"-"`
	Statistics  *RosterStats  `json:"statistics,omitempty" db:"-"`
}

// RosterStats 排班统计
type RosterStats struct {
	TotalAssignments int     `json:"total_assignments"`
	TotalPeople      int     `json:"total_people"`
	TotalHours       float64 `json:"total_hours"`
	UnfilledSlots    int     `json:"unfilled_slots"`
	CoverageRate     float64 `json:"coverage_rate"`    // 必须覆盖时段的填充率
	ConstraintScore  float64 `json:"constraint_score"` // 约束满足得分 0-100
	FairnessScore    float64 `json:"fairness_score"`   // 公平性得分 0-100
	PreferenceScore  float64 `json:"preference_score"` // 偏好满足率 0-100
}

// CloneAssignments 深拷贝分配列表
func CloneAssignments(assignments []*Assignment) []*Assignment {
	cloned := make([]*Assignment, len(assignments))
	for i, a := range assignments {
		cloned[i] = a.Clone()
	}
	return cloned
}
