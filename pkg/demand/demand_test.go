package demand

import (
	"testing"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
)

func TestPlanner_CreateDemand(t *testing.T) {
	planner := NewPlanner()
	tpl := newTestTemplate("普通病房", 1)

	tests := []struct {
		name         string
		template     *model.RotationTemplate
		coverage     string
		wantError    bool
		wantPatterns int
	}{
		{"工作日白班", tpl, CoverageWeekdayDay, false, 1},
		{"白班加小夜", tpl, CoverageDayEvening, false, 2},
		{"全天三班", tpl, CoverageAroundTheClock, false, 3},
		{"未知覆盖模式", tpl, "every_other_day", true, 0},
		{"缺少模板", nil, CoverageWeekdayDay, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			demand, err := planner.CreateDemand(tt.template, tt.coverage)
			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(demand.Patterns) != tt.wantPatterns {
				t.Errorf("模式数量 = %d, want %d", len(demand.Patterns), tt.wantPatterns)
			}
		})
	}
}

func TestPlanner_ValidateDemand(t *testing.T) {
	planner := NewPlanner()

	tests := []struct {
		name   string
		demand *TemplateDemand
		hasErr bool
	}{
		{
			name: "有效需求",
			demand: &TemplateDemand{
				Template: newTestTemplate("普通病房", 2),
				Patterns: []ShiftPattern{
					{TimeOfDay: model.TimeOfDayDay, StartTime: "08:00", EndTime: "16:00", Required: true},
				},
			},
			hasErr: false,
		},
		{
			name: "容量为零",
			demand: &TemplateDemand{
				Template: newTestTemplate("普通病房", 0),
				Patterns: []ShiftPattern{
					{TimeOfDay: model.TimeOfDayDay, StartTime: "08:00", EndTime: "16:00"},
				},
			},
			hasErr: true,
		},
		{
			name: "没有班次模式",
			demand: &TemplateDemand{
				Template: newTestTemplate("普通病房", 1),
			},
			hasErr: true,
		},
		{
			name: "时间格式错误",
			demand: &TemplateDemand{
				Template: newTestTemplate("普通病房", 1),
				Patterns: []ShiftPattern{
					{TimeOfDay: model.TimeOfDayDay, StartTime: "8点", EndTime: "16:00"},
				},
			},
			hasErr: true,
		},
		{
			name: "时段类型未知",
			demand: &TemplateDemand{
				Template: newTestTemplate("普通病房", 1),
				Patterns: []ShiftPattern{
					{TimeOfDay: "afternoon", StartTime: "08:00", EndTime: "16:00"},
				},
			},
			hasErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := planner.ValidateDemand(tt.demand)
			hasProblems := len(problems) > 0
			if hasProblems != tt.hasErr {
				t.Errorf("ValidateDemand() hasProblems = %v, expected %v, problems: %v", hasProblems, tt.hasErr, problems)
			}
		})
	}
}

func TestPlanner_ExpandSlots_WeekdayDay(t *testing.T) {
	planner := NewPlanner()
	tpl := newTestTemplate("普通病房", 1)
	demand, err := planner.CreateDemand(tpl, CoverageWeekdayDay)
	if err != nil {
		t.Fatalf("CreateDemand 出错: %v", err)
	}

	// 2024-03-04 是周一，2024-03-10 是周日
	slots, err := planner.ExpandSlots(uuid.New(), []*TemplateDemand{demand}, "2024-03-04", "2024-03-10")
	if err != nil {
		t.Fatalf("ExpandSlots 出错: %v", err)
	}

	if len(slots) != 5 {
		t.Fatalf("时段数量 = %d, want 5 (周一到周五)", len(slots))
	}
	if slots[0].Date != "2024-03-04" || slots[4].Date != "2024-03-08" {
		t.Errorf("时段日期 = %s..%s, want 2024-03-04..2024-03-08", slots[0].Date, slots[4].Date)
	}
	for _, slot := range slots {
		if slot.TimeOfDay != model.TimeOfDayDay {
			t.Errorf("时段类型 = %s, want day", slot.TimeOfDay)
		}
		if !slot.Required {
			t.Errorf("%s 的时段应为必须覆盖", slot.Date)
		}
		if slot.PeriodNumber != 1 {
			t.Errorf("%s 的周期编号 = %d, want 1", slot.Date, slot.PeriodNumber)
		}
		if slot.TemplateID != tpl.ID {
			t.Errorf("时段模板 = %v, want %v", slot.TemplateID, tpl.ID)
		}
	}
}

func TestPlanner_ExpandSlots_AroundTheClock(t *testing.T) {
	planner := NewPlanner()
	tpl := newTestTemplate("重症监护", 1)
	demand, err := planner.CreateDemand(tpl, CoverageAroundTheClock)
	if err != nil {
		t.Fatalf("CreateDemand 出错: %v", err)
	}

	slots, err := planner.ExpandSlots(uuid.New(), []*TemplateDemand{demand}, "2024-03-04", "2024-03-10")
	if err != nil {
		t.Fatalf("ExpandSlots 出错: %v", err)
	}

	if len(slots) != 21 {
		t.Fatalf("时段数量 = %d, want 21 (7 天 x 3 班)", len(slots))
	}

	nights := 0
	for _, slot := range slots {
		if slot.IsNight() {
			nights++
		}
		if slot.DurationHours() != 8 {
			t.Errorf("%s %s 时长 = %v, want 8 (跨夜自动顺延)", slot.Date, slot.TimeOfDay, slot.DurationHours())
		}
	}
	if nights != 7 {
		t.Errorf("大夜班数量 = %d, want 7", nights)
	}
}

func TestPlanner_ExpandSlots_PeriodNumbers(t *testing.T) {
	planner := NewPlanner()
	tpl := newTestTemplate("普通病房", 1)
	demand, _ := planner.CreateDemand(tpl, CoverageWeekdayDay)

	slots, err := planner.ExpandSlots(uuid.New(), []*TemplateDemand{demand}, "2024-03-04", "2024-03-17")
	if err != nil {
		t.Fatalf("ExpandSlots 出错: %v", err)
	}

	byPeriod := make(map[int]int)
	for _, slot := range slots {
		byPeriod[slot.PeriodNumber]++
	}
	if byPeriod[1] != 5 || byPeriod[2] != 5 {
		t.Errorf("按周期分布 = %v, want map[1:5 2:5]", byPeriod)
	}
}

func TestPlanner_ExpandSlots_Errors(t *testing.T) {
	planner := NewPlanner()
	tpl := newTestTemplate("普通病房", 1)
	demand, _ := planner.CreateDemand(tpl, CoverageWeekdayDay)

	if _, err := planner.ExpandSlots(uuid.New(), []*TemplateDemand{demand}, "2024/03/04", "2024-03-10"); err == nil {
		t.Error("非法开始日期应返回错误")
	}
	if _, err := planner.ExpandSlots(uuid.New(), []*TemplateDemand{demand}, "2024-03-10", "2024-03-04"); err == nil {
		t.Error("结束日期早于开始日期应返回错误")
	}

	broken := &TemplateDemand{Template: newTestTemplate("坏模板", 0), Patterns: demand.Patterns}
	if _, err := planner.ExpandSlots(uuid.New(), []*TemplateDemand{broken}, "2024-03-04", "2024-03-10"); err == nil {
		t.Error("无效需求定义应返回错误")
	}
}

func TestPlanner_ForecastStaffing(t *testing.T) {
	planner := NewPlanner()
	tpl := newTestTemplate("重症监护", 1)
	demand, _ := planner.CreateDemand(tpl, CoverageAroundTheClock)
	slots, err := planner.ExpandSlots(uuid.New(), []*TemplateDemand{demand}, "2024-03-04", "2024-03-10")
	if err != nil {
		t.Fatalf("ExpandSlots 出错: %v", err)
	}

	people := []*model.Person{
		newTestPerson("甲", 40),
		newTestPerson("乙", 40),
	}
	inactive := newTestPerson("丙", 1000)
	inactive.Status = "inactive"
	people = append(people, inactive)

	forecast := planner.ForecastStaffing(slots, []*model.RotationTemplate{tpl}, people)

	if forecast.TotalSlots != 21 {
		t.Errorf("总时段数 = %d, want 21", forecast.TotalSlots)
	}
	if forecast.NightSlots != 7 {
		t.Errorf("大夜班数 = %d, want 7", forecast.NightSlots)
	}
	if forecast.RequiredHours != 168 {
		t.Errorf("需求工时 = %v, want 168 (21 班 x 8 小时)", forecast.RequiredHours)
	}
	if forecast.AvailableHours != 80 {
		t.Errorf("供给工时 = %v, want 80 (不在岗人员不计)", forecast.AvailableHours)
	}
	if forecast.Shortfall != 88 {
		t.Errorf("缺口 = %v, want 88", forecast.Shortfall)
	}
	if forecast.Sufficient {
		t.Error("人手不足时 Sufficient 应为 false")
	}
}

func TestPlanner_ForecastStaffing_HoursPerSlotOverride(t *testing.T) {
	planner := NewPlanner()
	tpl := newTestTemplate("教学门诊", 2)
	tpl.HoursPerSlot = 10

	demand, _ := planner.CreateDemand(tpl, CoverageWeekdayDay)
	slots, err := planner.ExpandSlots(uuid.New(), []*TemplateDemand{demand}, "2024-03-04", "2024-03-10")
	if err != nil {
		t.Fatalf("ExpandSlots 出错: %v", err)
	}

	people := []*model.Person{
		newTestPerson("甲", 40),
		newTestPerson("乙", 40),
		newTestPerson("丙", 40),
	}
	forecast := planner.ForecastStaffing(slots, []*model.RotationTemplate{tpl}, people)

	// 5 班 x 10 小时 x 容量 2
	if forecast.RequiredHours != 100 {
		t.Errorf("需求工时 = %v, want 100", forecast.RequiredHours)
	}
	if !forecast.Sufficient {
		t.Errorf("供给 %v 覆盖需求 %v 时 Sufficient 应为 true", forecast.AvailableHours, forecast.RequiredHours)
	}
	if forecast.Shortfall != 0 {
		t.Errorf("缺口 = %v, want 0", forecast.Shortfall)
	}
}

// 辅助函数

func newTestTemplate(name string, capacity int) *model.RotationTemplate {
	return &model.RotationTemplate{
		BaseModel: model.BaseModel{ID: uuid.New()},
		Name:      name,
		Capacity:  capacity,
	}
}

func newTestPerson(name string, targetHours float64) *model.Person {
	return &model.Person{
		BaseModel:   model.BaseModel{ID: uuid.New()},
		Name:        name,
		Status:      "active",
		TargetHours: targetHours,
	}
}
