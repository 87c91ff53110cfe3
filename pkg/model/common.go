// Package model 定义值班排班引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// ConstraintCategory 约束类别
type ConstraintCategory string

const (
	ConstraintHard ConstraintCategory = "hard" // 硬约束（必须满足）
	ConstraintSoft ConstraintCategory = "soft" // 软约束（尽量满足）
)

// TimeOfDay 时段类型
type TimeOfDay string

const (
	TimeOfDayDay     TimeOfDay = "day"     // 白班
	TimeOfDayEvening TimeOfDay = "evening" // 小夜班
	TimeOfDayNight   TimeOfDay = "night"   // 大夜班
)

// BaseModel 基础模型（包含通用字段）
type BaseModel struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// NewBaseModel 创建新的基础模型
func NewBaseModel() BaseModel {
	now := time.Now()
	return BaseModel{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Organization 组织/机构
type Organization struct {
	BaseModel
	Name     string  `json:"name" db:"name"`
	Code     string  `json:"code" db:"code"`
	Settings JSONMap `json:"settings" db:"settings"`
}

// JSONMap 用于存储 JSONB 数据
type JSONMap map[string]interface{}

// TimeRange 时间范围
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration 返回时间范围的持续时间
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Overlaps 检查两个时间范围是否重叠
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// Contains 检查时间范围是否包含某个时间点
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// DateRange 日期范围
type DateRange struct {
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`   // YYYY-MM-DD
}

// Covers 检查日期范围是否包含某个日期
// 日期为固定宽度的 YYYY-MM-DD 格式，可直接按字典序比较
func (dr DateRange) Covers(date string) bool {
	return date >= dr.StartDate && date <= dr.EndDate
}

// DatesBetween 返回闭区间内的所有日期（YYYY-MM-DD）
func DatesBetween(startDate, endDate string) []string {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates
}

// NextDate 返回下一天的日期
func NextDate(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, 1).Format("2006-01-02")
}

// PreviousDate 返回前一天的日期
func PreviousDate(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, -1).Format("2006-01-02")
}

// IsConsecutiveDate 检查 b 是否为 a 的次日
func IsConsecutiveDate(a, b string) bool {
	ta, err1 := time.Parse("2006-01-02", a)
	tb, err2 := time.Parse("2006-01-02", b)
	if err1 != nil || err2 != nil {
		return false
	}
	return tb.Sub(ta) == 24*time.Hour
}

// WeekdayOf 返回日期对应的星期
func WeekdayOf(date string) (time.Weekday, bool) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Sunday, false
	}
	return d.Weekday(), true
}
