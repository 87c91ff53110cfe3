// Package model 定义值班排班引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// Person 可排班人员
type Person struct {
	BaseModel
	OrgID  uuid.UUID `json:"org_id" db:"org_id"`
	Name   string    `json:"name" db:"name"`
	Code   string    `json:"code" db:"code"`
	Status string    `json:"status" db:"status"` // active/inactive/leave

	// 排班相关
	Role        string   `json:"role" db:"role"`                 // 岗位角色
	Level       int      `json:"level" db:"level"`               // 职级，达到轮转模板的监督职级即视为监督者
	TargetHours float64  `json:"target_hours" db:"target_hours"` // 计划期内目标工时
	Specialties []string `json:"specialties,omitempty" db:"specialties"`

	// 工作偏好
	Preferences *PersonPreferences `json:"preferences,omitempty" db:"preferences"`
}

// PersonPreferences 人员排班偏好
type PersonPreferences struct {
	PreferredTimesOfDay []TimeOfDay    `json:"preferred_times_of_day,omitempty"` // 偏好时段
	AvoidTimesOfDay     []TimeOfDay    `json:"avoid_times_of_day,omitempty"`     // 避免时段
	PreferredDays       []time.Weekday `json:"preferred_days,omitempty"`         // 偏好工作日
	AvoidDays           []time.Weekday `json:"avoid_days,omitempty"`             // 避免工作日
	PreferredTemplates  []uuid.UUID    `json:"preferred_templates,omitempty"`    // 偏好轮转模板
	MaxHoursPerPeriod   float64        `json:"max_hours_per_period,omitempty"`   // 期望的单周期最大工时
}

// IsActive 检查人员是否可参与排班
func (p *Person) IsActive() bool {
	return p.Status == "active"
}

// HasSpecialty 检查人员是否具备某专业方向
func (p *Person) HasSpecialty(specialty string) bool {
	for _, s := range p.Specialties {
		if s == specialty {
			return true
		}
	}
	return false
}

// PrefersTimeOfDay 检查人员是否偏好某时段
func (p *Person) PrefersTimeOfDay(tod TimeOfDay) bool {
	if p.Preferences == nil {
		return false
	}
	for _, t := range p.Preferences.PreferredTimesOfDay {
		if t == tod {
			return true
		}
	}
	return false
}

// AvoidsTimeOfDay 检查人员是否避免某时段
func (p *Person) AvoidsTimeOfDay(tod TimeOfDay) bool {
	if p.Preferences == nil {
		return false
	}
	for _, t := range p.Preferences.AvoidTimesOfDay {
		if t == tod {
			return true
		}
	}
	return false
}

// AvoidsWeekday 检查人员是否避免某工作日
func (p *Person) AvoidsWeekday(day time.Weekday) bool {
	if p.Preferences == nil {
		return false
	}
	for _, d := range p.Preferences.AvoidDays {
		if d == day {
			return true
		}
	}
	return false
}

// PrefersWeekday 检查人员是否偏好某工作日
func (p *Person) PrefersWeekday(day time.Weekday) bool {
	if p.Preferences == nil {
		return false
	}
	for _, d := range p.Preferences.PreferredDays {
		if d == day {
			return true
		}
	}
	return false
}

// Absence 缺勤/不可用窗口
type Absence struct {
	BaseModel
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	PersonID  uuid.UUID `json:"person_id" db:"person_id"`
	StartDate string    `json:"start_date" db:"start_date"` // YYYY-MM-DD
	EndDate   string    `json:"end_date" db:"end_date"`     // YYYY-MM-DD，闭区间
	Type      string    `json:"type" db:"type"`             // leave/sick/training/other
	Reason    string    `json:"reason,omitempty" db:"reason"`
}

// Covers 检查缺勤是否覆盖某日期
func (a *Absence) Covers(date string) bool {
	return date >= a.StartDate && date <= a.EndDate
}

// IsLeave 检查缺勤是否属于休假类
// 病假、培训等非自主安排的缺勤不受轮转休假资格限制
func (a *Absence) IsLeave() bool {
	return a.Type == "leave" || a.Type == "annual_leave"
}
