// Package model 定义值班排班引擎的核心数据模型
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RotationTemplate 轮转模板（时段所属的工作类别）
type RotationTemplate struct {
	BaseModel
	OrgID       uuid.UUID `json:"org_id" db:"org_id"`
	Name        string    `json:"name" db:"name"`
	Code        string    `json:"code" db:"code"`
	Description string    `json:"description,omitempty" db:"description"`

	Capacity         int     `json:"capacity" db:"capacity"`                   // 单时段容量
	SupervisionRatio int     `json:"supervision_ratio" db:"supervision_ratio"` // 每名监督者最多带的下级人数，0 表示无需监督
	SupervisorLevel  int     `json:"supervisor_level" db:"supervisor_level"`   // 达到该职级视为监督者
	LeaveEligible    bool    `json:"leave_eligible" db:"leave_eligible"`       // 该轮转期间是否允许休假
	HoursPerSlot     float64 `json:"hours_per_slot" db:"hours_per_slot"`       // 单时段计入工时
	Specialty        string  `json:"specialty,omitempty" db:"specialty"`       // 必需专业方向，空表示不限
}

// RequiresSupervision 检查模板是否要求监督
func (t *RotationTemplate) RequiresSupervision() bool {
	return t.SupervisionRatio > 0
}

// IsSupervisor 检查人员在该模板下是否算监督者
func (t *RotationTemplate) IsSupervisor(p *Person) bool {
	return p != nil && p.Level >= t.SupervisorLevel
}

// TimeSlot 可排班时段
type TimeSlot struct {
	BaseModel
	OrgID      uuid.UUID `json:"org_id" db:"org_id"`
	TemplateID uuid.UUID `json:"template_id" db:"template_id"`
	Date       string    `json:"date" db:"date"` // YYYY-MM-DD
	TimeOfDay  TimeOfDay `json:"time_of_day" db:"time_of_day"`
	StartTime  string    `json:"start_time" db:"start_time"` // HH:MM
	EndTime    string    `json:"end_time" db:"end_time"`     // HH:MM，早于开始时间表示跨夜

	PeriodNumber     int  `json:"period_number" db:"period_number"`         // 周期编号（滚动窗口检查使用）
	Required         bool `json:"required" db:"required"`                   // 是否必须覆盖
	Protected        bool `json:"protected" db:"protected"`                 // 保护时段（教学/休整，不参与自动调整）
	CoverageOverride bool `json:"coverage_override" db:"coverage_override"` // 显式豁免覆盖检查
}

// TimeRange 返回时段对应的绝对时间范围（跨夜自动加一天）
func (s *TimeSlot) TimeRange() (TimeRange, error) {
	day, err := time.Parse("2006-01-02", s.Date)
	if err != nil {
		return TimeRange{}, fmt.Errorf("非法日期 %q: %w", s.Date, err)
	}
	start, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return TimeRange{}, fmt.Errorf("非法开始时间 %q: %w", s.StartTime, err)
	}
	end, err := time.Parse("15:04", s.EndTime)
	if err != nil {
		return TimeRange{}, fmt.Errorf("非法结束时间 %q: %w", s.EndTime, err)
	}

	startAt := time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, time.UTC)
	endAt := time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, time.UTC)
	if !endAt.After(startAt) {
		// 跨夜时段
		endAt = endAt.AddDate(0, 0, 1)
	}
	return TimeRange{Start: startAt, End: endAt}, nil
}

// DurationHours 返回时段时长（小时）
func (s *TimeSlot) DurationHours() float64 {
	tr, err := s.TimeRange()
	if err != nil {
		return 0
	}
	return tr.Duration().Hours()
}

// IsNight 检查是否为大夜班时段
func (s *TimeSlot) IsNight() bool {
	return s.TimeOfDay == TimeOfDayNight
}

// NeedsCoverage 检查时段是否仍需覆盖检查
func (s *TimeSlot) NeedsCoverage() bool {
	return s.Required && !s.CoverageOverride
}
