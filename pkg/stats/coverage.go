// Package stats 提供排班结果的覆盖率与公平性分析
package stats

import (
	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// CoverageReport 覆盖率分析结果
type CoverageReport struct {
	TotalSlots      int     `json:"total_slots"`
	FilledSlots     int     `json:"filled_slots"`
	RequiredSlots   int     `json:"required_slots"`
	CoveredRequired int     `json:"covered_required"`
	FillRate        float64 `json:"fill_rate"`     // 全部时段的填充率 0-1
	RequiredRate    float64 `json:"required_rate"` // 必排时段的覆盖率 0-1

	ByDate         map[string]*DayCoverage     `json:"by_date,omitempty"`          // 日期 → 当日覆盖明细
	ByTimeOfDay    map[model.TimeOfDay]float64 `json:"by_time_of_day,omitempty"`   // 班段 → 填充率 0-1
	GapsByDate     map[string]int              `json:"gaps_by_date,omitempty"`     // 日期 → 未覆盖必排时段数
	GapsByTemplate map[uuid.UUID]int           `json:"gaps_by_template,omitempty"` // 模板 → 未覆盖必排时段数
}

// DayCoverage 单日覆盖明细
type DayCoverage struct {
	Date         string  `json:"date"`
	TotalSlots   int     `json:"total_slots"`
	FilledSlots  int     `json:"filled_slots"`
	CoverageRate float64 `json:"coverage_rate"` // 0-1
	PeopleOnDuty int     `json:"people_on_duty"`
	TotalHours   float64 `json:"total_hours"`
}

// AnalyzeCoverage 统计时段覆盖情况
func AnalyzeCoverage(ctx *constraint.Context, set *constraint.AssignmentSet) *CoverageReport {
	report := &CoverageReport{
		TotalSlots:     len(ctx.Slots),
		ByDate:         make(map[string]*DayCoverage),
		ByTimeOfDay:    make(map[model.TimeOfDay]float64),
		GapsByDate:     make(map[string]int),
		GapsByTemplate: make(map[uuid.UUID]int),
	}

	todTotal := make(map[model.TimeOfDay]int)
	todFilled := make(map[model.TimeOfDay]int)

	for _, slot := range ctx.Slots {
		filled := set.CountForSlot(slot.ID) > 0
		if filled {
			report.FilledSlots++
		}

		day, exists := report.ByDate[slot.Date]
		if !exists {
			day = &DayCoverage{Date: slot.Date}
			report.ByDate[slot.Date] = day
		}
		day.TotalSlots++
		if filled {
			day.FilledSlots++
		}

		todTotal[slot.TimeOfDay]++
		if filled {
			todFilled[slot.TimeOfDay]++
		}

		if !slot.NeedsCoverage() {
			continue
		}
		report.RequiredSlots++
		if filled {
			report.CoveredRequired++
			continue
		}
		report.GapsByDate[slot.Date]++
		report.GapsByTemplate[slot.TemplateID]++
	}

	for date, day := range report.ByDate {
		if day.TotalSlots > 0 {
			day.CoverageRate = float64(day.FilledSlots) / float64(day.TotalSlots)
		}
		onDuty := make(map[uuid.UUID]struct{})
		for _, a := range set.OnDate(date) {
			onDuty[a.PersonID] = struct{}{}
			day.TotalHours += a.WorkingHours()
		}
		day.PeopleOnDuty = len(onDuty)
	}

	for tod, total := range todTotal {
		if total > 0 {
			report.ByTimeOfDay[tod] = float64(todFilled[tod]) / float64(total)
		}
	}

	if report.TotalSlots > 0 {
		report.FillRate = float64(report.FilledSlots) / float64(report.TotalSlots)
	}
	if report.RequiredSlots > 0 {
		report.RequiredRate = float64(report.CoveredRequired) / float64(report.RequiredSlots)
	} else {
		report.RequiredRate = 1.0
	}
	return report
}
