package builtin

import (
	"testing"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// restFixture 构建一段连续日期的 12 小时白班时段
func restFixture(dates []string) (*constraint.Context, *model.Person, map[string]*model.TimeSlot) {
	tpl := newTestTemplate("急诊值班", 1)
	person := newTestPerson("李医生", 1)

	slotByDate := make(map[string]*model.TimeSlot)
	var slots []*model.TimeSlot
	for i, d := range dates {
		slot := newTestSlot(tpl, d, model.TimeOfDayDay, i/7+1, "08:00", "20:00")
		slots = append(slots, slot)
		slotByDate[d] = slot
	}

	ctx := newTestContext([]*model.Person{person}, []*model.RotationTemplate{tpl}, slots)
	return ctx, person, slotByDate
}

func TestMinimumRestConstraint_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		workDates  []string
		wantValid  bool
		wantCount  int
		wantStart  string
		wantEnd    string
		wantExcess float64
	}{
		{
			name: "连续六天工作，应通过",
			workDates: []string{
				"2024-01-01", "2024-01-02", "2024-01-03",
				"2024-01-04", "2024-01-05", "2024-01-06",
			},
			wantValid: true,
		},
		{
			name: "连续七天无休息，应记一次违反",
			workDates: []string{
				"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04",
				"2024-01-05", "2024-01-06", "2024-01-07",
			},
			wantValid:  false,
			wantCount:  1,
			wantStart:  "2024-01-01",
			wantEnd:    "2024-01-07",
			wantExcess: 1,
		},
		{
			name: "中间休息一天重新计数，应通过",
			workDates: []string{
				"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04",
				"2024-01-06", "2024-01-07", "2024-01-08", "2024-01-09",
			},
			wantValid: true,
		},
		{
			name: "连续九天记一次违反且幅度为超出天数",
			workDates: []string{
				"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05",
				"2024-01-06", "2024-01-07", "2024-01-08", "2024-01-09",
			},
			wantValid:  false,
			wantCount:  1,
			wantStart:  "2024-01-01",
			wantEnd:    "2024-01-09",
			wantExcess: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, person, slotByDate := restFixture(tt.workDates)

			set := constraint.NewAssignmentSet(nil)
			for _, d := range tt.workDates {
				set.Add(assignTo(person, slotByDate[d]))
			}

			c := NewMinimumRestConstraint(6)
			valid, _, violations := c.Evaluate(ctx, set)

			if valid != tt.wantValid {
				t.Errorf("Evaluate() valid = %v, want %v", valid, tt.wantValid)
			}
			if tt.wantValid {
				return
			}
			if len(violations) != tt.wantCount {
				t.Fatalf("违反条数 = %d, want %d", len(violations), tt.wantCount)
			}
			v := violations[0]
			if v.Date != tt.wantStart || v.EndDate != tt.wantEnd {
				t.Errorf("违反区间 = %s~%s, want %s~%s", v.Date, v.EndDate, tt.wantStart, tt.wantEnd)
			}
			if v.Magnitude != tt.wantExcess {
				t.Errorf("违反幅度 = %v, want %v", v.Magnitude, tt.wantExcess)
			}
		})
	}
}

func TestMinimumRestConstraint_EvaluateAssignment(t *testing.T) {
	allDates := []string{
		"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04",
		"2024-01-05", "2024-01-06", "2024-01-07", "2024-01-08",
	}
	ctx, person, slotByDate := restFixture(allDates)

	c := NewMinimumRestConstraint(6)

	// 已连续工作 1 月 1 日至 6 日
	set := constraint.NewAssignmentSet(nil)
	for _, d := range allDates[:6] {
		set.Add(assignTo(person, slotByDate[d]))
	}

	// 第七天继续工作，应失败
	if valid, _ := c.EvaluateAssignment(ctx, set, assignTo(person, slotByDate["2024-01-07"])); valid {
		t.Error("第七个连续工作日应失败")
	}

	// 隔一天休息后再上班，应通过
	if valid, _ := c.EvaluateAssignment(ctx, set, assignTo(person, slotByDate["2024-01-08"])); !valid {
		t.Error("休息一天后再上班应通过")
	}
}

func TestMinimumRestConstraint_BridgeRuns(t *testing.T) {
	allDates := []string{
		"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04",
		"2024-01-05", "2024-01-06", "2024-01-07",
	}
	ctx, person, slotByDate := restFixture(allDates)

	c := NewMinimumRestConstraint(6)

	// 1~3 日与 5~7 日已排班，4 日把两段连成七天
	set := constraint.NewAssignmentSet(nil)
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-05", "2024-01-06", "2024-01-07"} {
		set.Add(assignTo(person, slotByDate[d]))
	}

	if valid, _ := c.EvaluateAssignment(ctx, set, assignTo(person, slotByDate["2024-01-04"])); valid {
		t.Error("候选日期连接两段形成七天连续工作，应失败")
	}
}
