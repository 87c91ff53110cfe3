package swap

import (
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint/builtin"
)

func TestSwapEvaluator_TakeOver(t *testing.T) {
	f := newSwapFixture()
	a1 := assignTo(f.alice, f.s1)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1})

	eval := f.evaluator.EvaluateSwap(f.ctx, set, &SwapRequest{
		SourceAssignment: a1,
		TargetPerson:     f.bob,
	})

	if !eval.Feasible {
		t.Fatalf("空闲人员接班应可行, 问题: %+v", eval.Issues)
	}
	if len(eval.Issues) != 0 {
		t.Errorf("干净接班不应有问题, 得到 %+v", eval.Issues)
	}
	if got := eval.Impact.SourcePersonImpact.HoursChange; got != -8 {
		t.Errorf("源人员工时变化 = %v, want -8", got)
	}
	if got := eval.Impact.TargetPersonImpact.HoursChange; got != 8 {
		t.Errorf("目标人员工时变化 = %v, want 8", got)
	}
	if !eval.Impact.TargetPersonImpact.PreferenceSatisfied {
		t.Errorf("乙偏好白班，接白班应满足偏好")
	}
	// 前后工时分布相同，整体得分不变
	if eval.Impact.OverallScoreChange != 0 {
		t.Errorf("对称换班的得分变化 = %v, want 0", eval.Impact.OverallScoreChange)
	}
	if eval.Recommendation != "推荐，换班后整体效果良好" {
		t.Errorf("高分换班的建议 = %q", eval.Recommendation)
	}
}

func TestSwapEvaluator_InfeasibleTargets(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest)
		issueType string
	}{
		{
			name: "目标人员不在岗",
			setup: func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest) {
				a1 := assignTo(f.alice, f.s1)
				set := constraint.NewAssignmentSet([]*model.Assignment{a1})
				return set, &SwapRequest{SourceAssignment: a1, TargetPerson: f.carol}
			},
			issueType: "person_inactive",
		},
		{
			name: "目标人员缺勤",
			setup: func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest) {
				f.ctx.SetAbsences([]*model.Absence{{
					BaseModel: model.BaseModel{ID: uuid.New()},
					PersonID:  f.dave.ID,
					StartDate: "2024-03-01",
					EndDate:   "2024-03-01",
					Type:      "sick",
				}})
				a1 := assignTo(f.alice, f.s1)
				set := constraint.NewAssignmentSet([]*model.Assignment{a1})
				return set, &SwapRequest{SourceAssignment: a1, TargetPerson: f.dave}
			},
			issueType: "absence",
		},
		{
			name: "与目标人员已有班次时间重叠",
			setup: func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest) {
				a1 := assignTo(f.alice, f.s1)
				a2 := assignTo(f.bob, f.s1b)
				set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})
				return set, &SwapRequest{SourceAssignment: a1, TargetPerson: f.bob}
			},
			issueType: "overlap",
		},
		{
			name: "源分配锁定",
			setup: func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest) {
				a1 := assignTo(f.alice, f.s1)
				a1.Locked = true
				set := constraint.NewAssignmentSet([]*model.Assignment{a1})
				return set, &SwapRequest{SourceAssignment: a1, TargetPerson: f.bob}
			},
			issueType: "locked_assignment",
		},
		{
			name: "目标分配锁定",
			setup: func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest) {
				a1 := assignTo(f.alice, f.s1)
				a2 := assignTo(f.bob, f.s2)
				a2.Locked = true
				set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})
				return set, &SwapRequest{SourceAssignment: a1, TargetPerson: f.bob, TargetAssignment: a2}
			},
			issueType: "locked_assignment",
		},
		{
			name: "源班次位于保护时段",
			setup: func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest) {
				f.s1.Protected = true
				a1 := assignTo(f.alice, f.s1)
				set := constraint.NewAssignmentSet([]*model.Assignment{a1})
				return set, &SwapRequest{SourceAssignment: a1, TargetPerson: f.bob}
			},
			issueType: "protected_slot",
		},
		{
			name: "目标班次位于保护时段",
			setup: func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest) {
				f.s2.Protected = true
				a1 := assignTo(f.alice, f.s1)
				a2 := assignTo(f.bob, f.s2)
				set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})
				return set, &SwapRequest{SourceAssignment: a1, TargetPerson: f.bob, TargetAssignment: a2}
			},
			issueType: "protected_slot",
		},
		{
			name: "专业方向不匹配",
			setup: func(f *swapFixture) (*constraint.AssignmentSet, *SwapRequest) {
				a3 := assignTo(f.alice, f.s3)
				set := constraint.NewAssignmentSet([]*model.Assignment{a3})
				return set, &SwapRequest{SourceAssignment: a3, TargetPerson: f.bob}
			},
			issueType: "specialty_mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSwapFixture()
			set, request := tt.setup(f)

			eval := f.evaluator.EvaluateSwap(f.ctx, set, request)

			if eval.Feasible {
				t.Fatalf("换班应不可行")
			}
			if !hasIssue(eval.Issues, tt.issueType) {
				t.Errorf("缺少问题类型 %q, 得到 %+v", tt.issueType, eval.Issues)
			}
		})
	}
}

func TestSwapEvaluator_Exchange(t *testing.T) {
	f := newSwapFixture()
	a1 := assignTo(f.alice, f.s1)
	a2 := assignTo(f.bob, f.s2)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})

	eval := f.evaluator.EvaluateSwap(f.ctx, set, &SwapRequest{
		SourceAssignment: a1,
		TargetPerson:     f.bob,
		TargetAssignment: a2,
	})

	if !eval.Feasible {
		t.Fatalf("不同日期的班次互换应可行, 问题: %+v", eval.Issues)
	}
	if got := eval.Impact.SourcePersonImpact.HoursChange; got != 0 {
		t.Errorf("互换后源人员工时变化 = %v, want 0", got)
	}
	if got := eval.Impact.TargetPersonImpact.HoursChange; got != 0 {
		t.Errorf("互换后目标人员工时变化 = %v, want 0", got)
	}
	if eval.Impact.OverallScoreChange != 0 {
		t.Errorf("等工时互换的得分变化 = %v, want 0", eval.Impact.OverallScoreChange)
	}
}

func TestSwapEvaluator_ScoreImprovement(t *testing.T) {
	f := newSwapFixture()
	a1 := assignTo(f.alice, f.s1)
	a2 := assignTo(f.alice, f.s2)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})

	// 甲连排两天，乙接走一天后工时更均衡
	eval := f.evaluator.EvaluateSwap(f.ctx, set, &SwapRequest{
		SourceAssignment: a1,
		TargetPerson:     f.bob,
	})

	if !eval.Feasible {
		t.Fatalf("接班应可行, 问题: %+v", eval.Issues)
	}
	if eval.Impact.OverallScoreChange <= 0 {
		t.Errorf("均衡化换班的得分变化 = %v, 期望为正", eval.Impact.OverallScoreChange)
	}
}

func TestSwapEvaluator_EvaluateSwapWithout(t *testing.T) {
	f := newSwapFixture()
	f.manager.Register(builtin.NewWorkHourCeilingConstraint(1, 8))

	a1 := assignTo(f.alice, f.s1)
	a2 := assignTo(f.bob, f.s2)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})
	request := &SwapRequest{SourceAssignment: a1, TargetPerson: f.bob}

	// 乙接班后同一周期内 16 小时，触发工时上限
	eval := f.evaluator.EvaluateSwap(f.ctx, set, request)
	if eval.Feasible {
		t.Fatalf("超出工时上限的接班应不可行")
	}
	if !hasIssue(eval.Issues, string(constraint.TypeWorkHourCeiling)) {
		t.Errorf("缺少工时上限问题, 得到 %+v", eval.Issues)
	}

	// 停用工时上限后重评
	relaxed := f.evaluator.EvaluateSwapWithout(f.ctx, set, request,
		[]constraint.Type{constraint.TypeWorkHourCeiling})
	if !relaxed.Feasible {
		t.Errorf("停用工时上限后应可行, 问题: %+v", relaxed.Issues)
	}

	// 评估结束后约束恢复启用
	if !f.manager.IsEnabled(constraint.TypeWorkHourCeiling) {
		t.Errorf("what-if 评估后工时上限约束应恢复启用")
	}
}

func TestRecommender_RanksTargets(t *testing.T) {
	f := newSwapFixture()
	a1 := assignTo(f.alice, f.s1)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1})

	recommender := NewRecommender(f.manager)
	recs := recommender.RecommendSwapTargets(f.ctx, set, a1, &RecommendOptions{
		MaxRecommendations: 5,
		PreferredPeople:    []uuid.UUID{f.dave.ID},
		MinScore:           60,
	})

	if len(recs) != 2 {
		t.Fatalf("推荐数量 = %d, want 2 (丙不在岗应被跳过)", len(recs))
	}
	if recs[0].TargetPerson.ID != f.dave.ID {
		t.Errorf("第一推荐 = %s, want 丁 (优先人员加分)", recs[0].TargetPerson.Name)
	}
	if recs[1].TargetPerson.ID != f.bob.ID {
		t.Errorf("第二推荐 = %s, want 乙", recs[1].TargetPerson.Name)
	}
	if recs[0].Rank != 1 || recs[1].Rank != 2 {
		t.Errorf("名次 = %d, %d, want 1, 2", recs[0].Rank, recs[1].Rank)
	}
	// 两人条件相同，差值即优先加分
	if diff := recs[0].Score - recs[1].Score; math.Abs(diff-10) > 1e-9 {
		t.Errorf("优先人员加分 = %v, want 10", diff)
	}
	for _, rec := range recs {
		if rec.SwapType != "take_over" {
			t.Errorf("未开启互换时推荐类型 = %q, want take_over", rec.SwapType)
		}
	}
}

func TestRecommender_PrefersExchangeWhenBalanced(t *testing.T) {
	f := newSwapFixture()
	a1 := assignTo(f.alice, f.s1)
	a2 := assignTo(f.bob, f.s2)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})

	recommender := NewRecommender(f.manager)
	recs := recommender.RecommendSwapTargets(f.ctx, set, a1, &RecommendOptions{
		MaxRecommendations: 5,
		AllowExchange:      true,
		MinScore:           60,
		ExcludePeople:      []uuid.UUID{f.dave.ID},
	})

	if len(recs) != 2 {
		t.Fatalf("推荐数量 = %d, want 2 (接班与互换各一)", len(recs))
	}
	// 互换保持双方工时均衡，得分高于单向接班
	if recs[0].SwapType != "exchange" {
		t.Errorf("第一推荐类型 = %q, want exchange", recs[0].SwapType)
	}
	if recs[0].Assignment == nil || recs[0].Assignment.ID != a2.ID {
		t.Errorf("互换推荐应带上目标人员让出的班次")
	}
	if recs[1].SwapType != "take_over" {
		t.Errorf("第二推荐类型 = %q, want take_over", recs[1].SwapType)
	}
	if !strings.Contains(recs[0].Reason, "互换") {
		t.Errorf("互换推荐理由 = %q, 应提到互换", recs[0].Reason)
	}
}

func TestRecommender_SkipsLockedExchange(t *testing.T) {
	f := newSwapFixture()
	a1 := assignTo(f.alice, f.s1)
	a2 := assignTo(f.bob, f.s2)
	a2.Locked = true
	set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})

	recommender := NewRecommender(f.manager)
	recs := recommender.RecommendSwapTargets(f.ctx, set, a1, &RecommendOptions{
		MaxRecommendations: 5,
		AllowExchange:      true,
		MinScore:           60,
		ExcludePeople:      []uuid.UUID{f.dave.ID},
	})

	for _, rec := range recs {
		if rec.SwapType == "exchange" {
			t.Errorf("锁定班次不应进入互换推荐")
		}
	}
}

func TestRecommender_SkipsProtectedExchange(t *testing.T) {
	f := newSwapFixture()
	f.s2.Protected = true
	a1 := assignTo(f.alice, f.s1)
	a2 := assignTo(f.bob, f.s2)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1, a2})

	recommender := NewRecommender(f.manager)
	recs := recommender.RecommendSwapTargets(f.ctx, set, a1, &RecommendOptions{
		MaxRecommendations: 5,
		AllowExchange:      true,
		MinScore:           60,
		ExcludePeople:      []uuid.UUID{f.dave.ID},
	})

	for _, rec := range recs {
		if rec.SwapType == "exchange" {
			t.Errorf("保护时段上的班次不应进入互换推荐")
		}
	}
}

func TestRecommender_FindBestSwapMatch(t *testing.T) {
	f := newSwapFixture()
	f.ctx.SetAbsences([]*model.Absence{{
		BaseModel: model.BaseModel{ID: uuid.New()},
		PersonID:  f.alice.ID,
		StartDate: "2024-03-01",
		EndDate:   "2024-03-01",
		Type:      "sick",
	}})
	a1 := assignTo(f.alice, f.s1)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1})

	recommender := NewRecommender(f.manager)
	rec, err := recommender.FindBestSwapMatch(f.ctx, set, f.alice.ID, "2024-03-01")
	if err != nil {
		t.Fatalf("FindBestSwapMatch 出错: %v", err)
	}
	if rec.TargetPerson.ID != f.bob.ID {
		t.Errorf("最佳接班人 = %s, want 乙", rec.TargetPerson.Name)
	}
	if rec.SwapType != "take_over" {
		t.Errorf("顶班推荐类型 = %q, want take_over", rec.SwapType)
	}

	// 当天没有班次时报错
	if _, err := recommender.FindBestSwapMatch(f.ctx, set, f.alice.ID, "2024-03-05"); err == nil {
		t.Errorf("无班次日期应返回错误")
	}
}

func TestRecommender_AutoAssignSwap(t *testing.T) {
	f := newSwapFixture()
	a1 := assignTo(f.alice, f.s1)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1})

	recommender := NewRecommender(f.manager)
	replacement, err := recommender.AutoAssignSwap(f.ctx, set, a1)
	if err != nil {
		t.Fatalf("AutoAssignSwap 出错: %v", err)
	}
	if replacement.PersonID != f.bob.ID {
		t.Errorf("替换分配人员 = %v, want 乙", replacement.PersonID)
	}
	if replacement.ID == a1.ID {
		t.Errorf("替换分配应使用新 ID")
	}
	if replacement.SlotID != f.s1.ID {
		t.Errorf("替换分配时段 = %v, want 原时段", replacement.SlotID)
	}
	if replacement.Notes != "自动换班，接替 甲" {
		t.Errorf("替换分配备注 = %q", replacement.Notes)
	}
	if replacement.Score < 70 {
		t.Errorf("自动换班得分 = %v, 不应低于 70", replacement.Score)
	}
}

func TestRecommender_AutoAssignSwapNoCandidate(t *testing.T) {
	f := newSwapFixture()
	f.bob.Status = "inactive"
	f.ctx.SetAbsences([]*model.Absence{{
		BaseModel: model.BaseModel{ID: uuid.New()},
		PersonID:  f.dave.ID,
		StartDate: "2024-03-01",
		EndDate:   "2024-03-01",
		Type:      "leave",
	}})
	a1 := assignTo(f.alice, f.s1)
	set := constraint.NewAssignmentSet([]*model.Assignment{a1})

	recommender := NewRecommender(f.manager)
	if _, err := recommender.AutoAssignSwap(f.ctx, set, a1); err == nil {
		t.Errorf("没有可行人选时应返回错误")
	}
}

// 辅助函数

// swapFixture 换班测试场景
// 甲持有 3 月 1 日白班，候选对象：乙空闲且偏好白班、丙不在岗、丁空闲。
// s3 属于要求监护专业的模板，只有甲具备该专业。
type swapFixture struct {
	ctx       *constraint.Context
	manager   *constraint.Manager
	evaluator *SwapEvaluator
	alice     *model.Person
	bob       *model.Person
	carol     *model.Person
	dave      *model.Person
	s1        *model.TimeSlot
	s1b       *model.TimeSlot
	s2        *model.TimeSlot
	s3        *model.TimeSlot
}

func newSwapFixture() *swapFixture {
	tpl := newTestTemplate("普通病房", 1)
	icu := newTestTemplate("重症监护", 1)
	icu.Specialty = "监护"

	alice := newTestPerson("甲", 3)
	alice.Specialties = []string{"监护"}
	bob := newTestPerson("乙", 3)
	bob.Preferences = &model.PersonPreferences{
		PreferredTimesOfDay: []model.TimeOfDay{model.TimeOfDayDay},
	}
	carol := newTestPerson("丙", 3)
	carol.Status = "inactive"
	dave := newTestPerson("丁", 3)

	s1 := newTestSlot(tpl, "2024-03-01", model.TimeOfDayDay, 1, "08:00", "16:00")
	s1b := newTestSlot(tpl, "2024-03-01", model.TimeOfDayEvening, 1, "12:00", "20:00")
	s2 := newTestSlot(tpl, "2024-03-02", model.TimeOfDayDay, 1, "08:00", "16:00")
	s3 := newTestSlot(icu, "2024-03-03", model.TimeOfDayDay, 2, "08:00", "16:00")

	ctx := constraint.NewContext(uuid.New(), "2024-03-01", "2024-03-07")
	ctx.SetPeople([]*model.Person{alice, bob, carol, dave})
	ctx.SetTemplates([]*model.RotationTemplate{tpl, icu})
	ctx.SetSlots([]*model.TimeSlot{s1, s1b, s2, s3})

	manager := constraint.NewManager()
	manager.Register(builtin.NewAbsenceConflictConstraint())
	manager.Register(builtin.NewDoubleBookingConstraint())
	manager.Register(builtin.NewSlotCapacityConstraint())
	manager.Register(builtin.NewWorkloadEquityConstraint(0.25))

	return &swapFixture{
		ctx:       ctx,
		manager:   manager,
		evaluator: NewSwapEvaluator(manager),
		alice:     alice,
		bob:       bob,
		carol:     carol,
		dave:      dave,
		s1:        s1,
		s1b:       s1b,
		s2:        s2,
		s3:        s3,
	}
}

func hasIssue(issues []SwapIssue, issueType string) bool {
	for _, issue := range issues {
		if issue.Type == issueType {
			return true
		}
	}
	return false
}

func newTestTemplate(name string, capacity int) *model.RotationTemplate {
	return &model.RotationTemplate{
		BaseModel: model.BaseModel{ID: uuid.New()},
		Name:      name,
		Capacity:  capacity,
	}
}

func newTestPerson(name string, level int) *model.Person {
	return &model.Person{
		BaseModel: model.BaseModel{ID: uuid.New()},
		Name:      name,
		Status:    "active",
		Level:     level,
	}
}

func newTestSlot(tpl *model.RotationTemplate, date string, tod model.TimeOfDay, period int, start, end string) *model.TimeSlot {
	return &model.TimeSlot{
		BaseModel:    model.BaseModel{ID: uuid.New()},
		TemplateID:   tpl.ID,
		Date:         date,
		TimeOfDay:    tod,
		StartTime:    start,
		EndTime:      end,
		PeriodNumber: period,
		Required:     true,
	}
}

func assignTo(person *model.Person, slot *model.TimeSlot) *model.Assignment {
	tr, _ := slot.TimeRange()
	return &model.Assignment{
		BaseModel:  model.BaseModel{ID: uuid.New()},
		PersonID:   person.ID,
		SlotID:     slot.ID,
		TemplateID: slot.TemplateID,
		Date:       slot.Date,
		StartTime:  tr.Start,
		EndTime:    tr.End,
		Status:     "scheduled",
	}
}
