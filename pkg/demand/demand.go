// Package demand 把轮转需求展开为计划期内的具体时段
// 求解器只认 TimeSlot，这里负责从覆盖模式生成它们：
// 哪些模板在哪些日期需要哪些班次，以及容量加权的用人预估。
package demand

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
)

// 内置覆盖模式
const (
	CoverageWeekdayDay     = "weekday_day"      // 工作日白班
	CoverageDayEvening     = "day_evening"      // 每日白班加小夜
	CoverageAroundTheClock = "around_the_clock" // 全天三班连续覆盖
)

// ShiftPattern 单个班次模式
type ShiftPattern struct {
	TimeOfDay model.TimeOfDay `json:"time_of_day"`
	StartTime string          `json:"start_time"`         // HH:MM
	EndTime   string          `json:"end_time"`           // HH:MM，不晚于开始时间表示跨夜
	Weekdays  []time.Weekday  `json:"weekdays,omitempty"` // 空表示每天
	Required  bool            `json:"required"`
}

// appliesTo 检查模式是否覆盖某个工作日
func (sp ShiftPattern) appliesTo(day time.Weekday) bool {
	if len(sp.Weekdays) == 0 {
		return true
	}
	for _, d := range sp.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// TemplateDemand 某轮转模板在计划期内的用人需求
type TemplateDemand struct {
	Template *model.RotationTemplate `json:"template"`
	Patterns []ShiftPattern          `json:"patterns"`
}

// Planner 需求展开器
type Planner struct {
	periodDays int // 周期长度（天），PeriodNumber 按此切分
	coverage   map[string][]ShiftPattern
}

// NewPlanner 创建需求展开器
func NewPlanner() *Planner {
	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}
	return &Planner{
		periodDays: 7,
		coverage: map[string][]ShiftPattern{
			CoverageWeekdayDay: {
				{TimeOfDay: model.TimeOfDayDay, StartTime: "08:00", EndTime: "16:00", Weekdays: weekdays, Required: true},
			},
			CoverageDayEvening: {
				{TimeOfDay: model.TimeOfDayDay, StartTime: "08:00", EndTime: "16:00", Required: true},
				{TimeOfDay: model.TimeOfDayEvening, StartTime: "16:00", EndTime: "00:00", Required: true},
			},
			CoverageAroundTheClock: {
				{TimeOfDay: model.TimeOfDayDay, StartTime: "08:00", EndTime: "16:00", Required: true},
				{TimeOfDay: model.TimeOfDayEvening, StartTime: "16:00", EndTime: "00:00", Required: true},
				{TimeOfDay: model.TimeOfDayNight, StartTime: "00:00", EndTime: "08:00", Required: true},
			},
		},
	}
}

// SetPeriodDays 设置周期长度（天）
func (p *Planner) SetPeriodDays(days int) {
	if days > 0 {
		p.periodDays = days
	}
}

// CreateDemand 按内置覆盖模式生成模板需求
func (p *Planner) CreateDemand(template *model.RotationTemplate, coverageModel string) (*TemplateDemand, error) {
	if template == nil {
		return nil, fmt.Errorf("轮转模板不能为空")
	}

	patterns, ok := p.coverage[coverageModel]
	if !ok {
		return nil, fmt.Errorf("未知的覆盖模式 %q", coverageModel)
	}

	demand := &TemplateDemand{
		Template: template,
		Patterns: make([]ShiftPattern, len(patterns)),
	}
	copy(demand.Patterns, patterns)
	return demand, nil
}

// ValidateDemand 校验需求定义
func (p *Planner) ValidateDemand(demand *TemplateDemand) []string {
	var problems []string

	if demand.Template == nil {
		problems = append(problems, "缺少轮转模板")
	} else if demand.Template.Capacity < 1 {
		problems = append(problems, "模板容量必须大于 0")
	}

	if len(demand.Patterns) == 0 {
		problems = append(problems, "班次模式不能为空")
	}

	for i, pattern := range demand.Patterns {
		if _, err := time.Parse("15:04", pattern.StartTime); err != nil {
			problems = append(problems, fmt.Sprintf("模式 %d 开始时间格式错误", i+1))
		}
		if _, err := time.Parse("15:04", pattern.EndTime); err != nil {
			problems = append(problems, fmt.Sprintf("模式 %d 结束时间格式错误", i+1))
		}
		switch pattern.TimeOfDay {
		case model.TimeOfDayDay, model.TimeOfDayEvening, model.TimeOfDayNight:
		default:
			problems = append(problems, fmt.Sprintf("模式 %d 时段类型未知", i+1))
		}
	}

	return problems
}

// ExpandSlots 把需求展开为计划期内的时段
// 日期为闭区间，时段按需求、日期、模式的顺序生成，展开结果可复现
func (p *Planner) ExpandSlots(orgID uuid.UUID, demands []*TemplateDemand, startDate, endDate string) ([]*model.TimeSlot, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("开始日期格式错误: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("结束日期格式错误: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("结束日期 %s 早于开始日期 %s", endDate, startDate)
	}

	for _, demand := range demands {
		if problems := p.ValidateDemand(demand); len(problems) > 0 {
			name := "<nil>"
			if demand.Template != nil {
				name = demand.Template.Name
			}
			return nil, fmt.Errorf("模板 %s 的需求定义无效: %s", name, strings.Join(problems, "；"))
		}
	}

	var slots []*model.TimeSlot
	for _, demand := range demands {
		for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
			offset := int(current.Sub(start).Hours() / 24)
			period := offset/p.periodDays + 1

			for _, pattern := range demand.Patterns {
				if !pattern.appliesTo(current.Weekday()) {
					continue
				}
				slots = append(slots, &model.TimeSlot{
					BaseModel:    model.NewBaseModel(),
					OrgID:        orgID,
					TemplateID:   demand.Template.ID,
					Date:         current.Format("2006-01-02"),
					TimeOfDay:    pattern.TimeOfDay,
					StartTime:    pattern.StartTime,
					EndTime:      pattern.EndTime,
					PeriodNumber: period,
					Required:     pattern.Required,
				})
			}
		}
	}

	return slots, nil
}

// StaffingForecast 需求工时与人手供给的对照
type StaffingForecast struct {
	TotalSlots     int     `json:"total_slots"`
	NightSlots     int     `json:"night_slots"`
	RequiredHours  float64 `json:"required_hours"`  // 容量加权的需求工时
	AvailableHours float64 `json:"available_hours"` // 在岗人员目标工时合计
	Shortfall      float64 `json:"shortfall"`       // 需求超出供给的部分
	Sufficient     bool    `json:"sufficient"`
}

// ForecastStaffing 对比展开后的需求工时与人员目标工时
// 模板设置 HoursPerSlot 时以其为准，否则按时段实际时长计
func (p *Planner) ForecastStaffing(slots []*model.TimeSlot, templates []*model.RotationTemplate, people []*model.Person) *StaffingForecast {
	templatesByID := make(map[uuid.UUID]*model.RotationTemplate, len(templates))
	for _, tpl := range templates {
		templatesByID[tpl.ID] = tpl
	}

	forecast := &StaffingForecast{}
	for _, slot := range slots {
		forecast.TotalSlots++
		if slot.IsNight() {
			forecast.NightSlots++
		}

		capacity := 1
		hours := slot.DurationHours()
		if tpl := templatesByID[slot.TemplateID]; tpl != nil {
			if tpl.Capacity > 0 {
				capacity = tpl.Capacity
			}
			if tpl.HoursPerSlot > 0 {
				hours = tpl.HoursPerSlot
			}
		}
		forecast.RequiredHours += hours * float64(capacity)
	}

	for _, person := range people {
		if person.IsActive() {
			forecast.AvailableHours += person.TargetHours
		}
	}

	if forecast.RequiredHours > forecast.AvailableHours {
		forecast.Shortfall = forecast.RequiredHours - forecast.AvailableHours
	}
	forecast.Sufficient = forecast.Shortfall == 0
	return forecast
}
