package optimizer

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint/builtin"
	"github.com/rotaplan/rotaplan/pkg/scheduler/solver"
)

// coverageEquityFixture 两人三班的取舍场景
// 甲全程可用，乙后两天缺勤：全覆盖必然工时不均（最好 16:8，基尼 1/6），
// 完全均衡（各一班）则第三班必空缺，覆盖与均衡构成真实的帕累托取舍。
type coverageEquityFixture struct {
	ctx        *constraint.Context
	manager    *constraint.Manager
	objectives []*Objective
	alice      *model.Person
	bob        *model.Person
	slots      []*model.TimeSlot
}

func newCoverageEquityFixture() *coverageEquityFixture {
	tpl := newTestTemplate("普诊值班", 1)
	alice := newTestPerson("甲医生", 1)
	bob := newTestPerson("乙医生", 1)

	var slots []*model.TimeSlot
	for _, date := range []string{"2024-02-01", "2024-02-02", "2024-02-03"} {
		s := newTestSlot(tpl, date, model.TimeOfDayDay, 1, "08:00", "16:00")
		s.Required = false
		slots = append(slots, s)
	}

	ctx := constraint.NewContext(uuid.New(), "2024-02-01", "2024-02-03")
	ctx.SetPeople([]*model.Person{alice, bob})
	ctx.SetTemplates([]*model.RotationTemplate{tpl})
	ctx.SetSlots(slots)
	ctx.SetAbsences([]*model.Absence{{
		BaseModel: model.BaseModel{ID: uuid.New()},
		PersonID:  bob.ID,
		StartDate: "2024-02-02",
		EndDate:   "2024-02-03",
		Type:      "leave",
	}})

	manager := constraint.NewManager()
	manager.Register(builtin.NewAbsenceConflictConstraint())
	manager.Register(builtin.NewDoubleBookingConstraint())
	manager.Register(builtin.NewSlotCapacityConstraint())

	return &coverageEquityFixture{
		ctx:        ctx,
		manager:    manager,
		objectives: []*Objective{CoverageObjective(), EquityObjective()},
		alice:      alice,
		bob:        bob,
		slots:      slots,
	}
}

// fullCoverage 全覆盖热启动方案：乙顶可用的第一天，甲顶其余两天
func (f *coverageEquityFixture) fullCoverage() []*model.Assignment {
	return []*model.Assignment{
		assignTo(f.bob, f.slots[0]),
		assignTo(f.alice, f.slots[1]),
		assignTo(f.alice, f.slots[2]),
	}
}

func TestMOEAD_CoverageEquityFrontier(t *testing.T) {
	fix := newCoverageEquityFixture()

	cfg := DefaultMOEAConfig()
	cfg.Divisions = 6
	cfg.Generations = 40
	cfg.Workers = 2
	cfg.Seed = 3

	m := NewMOEAD(cfg, fix.manager, fix.objectives)
	result, err := m.Run(context.Background(), fix.ctx, fix.fullCoverage())
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if result.Status != solver.StatusSuccess {
		t.Fatalf("状态 = %v, want %v", result.Status, solver.StatusSuccess)
	}
	if len(result.Frontier) == 0 {
		t.Fatal("前沿不应为空")
	}
	if result.Generations != 40 {
		t.Errorf("完成代数 = %d, want 40", result.Generations)
	}

	// 该场景可达的非支配目标向量只有三种：
	// 全覆盖 (0, 1/6)、两班分担 (1/3, 0)、空方案 (1, 0)
	allowed := [][]float64{{0, 1.0 / 6}, {1.0 / 3, 0}, {1, 0}}
	hasFull := false
	for _, sol := range result.Frontier {
		if !sol.Feasible {
			t.Errorf("前沿出现不可行解 %v", sol.Normalized)
		}
		known := false
		for _, v := range allowed {
			if sameVector(sol.Normalized, v) {
				known = true
				break
			}
		}
		if !known {
			t.Errorf("前沿出现该场景不可达的目标向量 %v", sol.Normalized)
		}
		if sameVector(sol.Normalized, allowed[0]) {
			hasFull = true
		}
	}
	if !hasFull {
		t.Error("热启动注入的全覆盖解应保留在前沿上")
	}

	// 前沿内部互不支配
	for i, a := range result.Frontier {
		for j, b := range result.Frontier {
			if i != j && a.Dominates(b) {
				t.Errorf("前沿成员 %v 支配了 %v", a.Normalized, b.Normalized)
			}
		}
	}

	// 等权切比雪夫膝点：全覆盖点 1/12 小于均衡点 1/6
	if result.Recommended == nil || !sameVector(result.Recommended.Normalized, allowed[0]) {
		t.Errorf("推荐解应为全覆盖方案, got %+v", result.Recommended)
	}

	if len(result.Ideal) != 2 || result.Ideal[0] > 1e-9 {
		t.Errorf("理想点覆盖维应到达 0, got %v", result.Ideal)
	}
	if result.Evaluations == 0 {
		t.Error("评估次数不应为 0")
	}
}

func TestMOEAD_Deterministic(t *testing.T) {
	fix := newCoverageEquityFixture()

	run := func() *RunResult {
		cfg := DefaultMOEAConfig()
		cfg.Divisions = 4
		cfg.Generations = 12
		cfg.Workers = 3
		cfg.Seed = 42

		m := NewMOEAD(cfg, fix.manager, fix.objectives)
		result, err := m.Run(context.Background(), fix.ctx, fix.fullCoverage())
		if err != nil {
			t.Fatalf("Run 失败: %v", err)
		}
		return result
	}

	first := run()
	second := run()

	if first.Evaluations != second.Evaluations {
		t.Errorf("评估次数不一致: %d vs %d", first.Evaluations, second.Evaluations)
	}
	if len(first.Frontier) != len(second.Frontier) {
		t.Fatalf("前沿规模不一致: %d vs %d", len(first.Frontier), len(second.Frontier))
	}
	for i := range first.Frontier {
		if first.Frontier[i].Hash() != second.Frontier[i].Hash() {
			t.Errorf("前沿第 %d 个解指纹不一致", i)
		}
		if !sameVector(first.Frontier[i].Normalized, second.Frontier[i].Normalized) {
			t.Errorf("前沿第 %d 个解目标向量不一致: %v vs %v",
				i, first.Frontier[i].Normalized, second.Frontier[i].Normalized)
		}
	}
}

func TestMOEAD_Interrupt(t *testing.T) {
	fix := newCoverageEquityFixture()
	cfg := DefaultMOEAConfig()
	cfg.Divisions = 4
	cfg.Generations = 50

	t.Run("超时", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		m := NewMOEAD(cfg, fix.manager, fix.objectives)
		result, err := m.Run(ctx, fix.ctx, fix.fullCoverage())
		if err != nil {
			t.Fatalf("超时应返回结果而非错误: %v", err)
		}
		if result.Status != solver.StatusTimeout {
			t.Errorf("状态 = %v, want %v", result.Status, solver.StatusTimeout)
		}
		if result.Frontier == nil {
			t.Error("超时应保留中间前沿（可为空但不为 nil）")
		}
		if result.Message == "" {
			t.Error("超时结果应带说明")
		}
	})

	t.Run("取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		m := NewMOEAD(cfg, fix.manager, fix.objectives)
		result, err := m.Run(ctx, fix.ctx, fix.fullCoverage())
		if err != nil {
			t.Fatalf("取消应返回结果而非错误: %v", err)
		}
		if result.Status != solver.StatusCancelled {
			t.Errorf("状态 = %v, want %v", result.Status, solver.StatusCancelled)
		}
		if result.Frontier != nil {
			t.Error("取消时中间前沿应废弃")
		}
	})
}

func TestMOEAD_RequiresTwoObjectives(t *testing.T) {
	fix := newCoverageEquityFixture()

	m := NewMOEAD(nil, fix.manager, []*Objective{CoverageObjective()})
	if _, err := m.Run(context.Background(), fix.ctx, nil); err == nil {
		t.Error("单目标输入应报错")
	}

	empty := constraint.NewContext(uuid.New(), "2024-02-01", "2024-02-03")
	m = NewMOEAD(nil, fix.manager, fix.objectives)
	if _, err := m.Run(context.Background(), empty, nil); err == nil {
		t.Error("没有人员应报错")
	}
}

func TestStaticPenalty(t *testing.T) {
	h := &StaticPenalty{Factor: 2.0}

	sol := &Solution{HardPenalty: 300, Feasible: false}
	h.Apply(nil, sol, 0)
	if math.Abs(sol.Penalty-6.0) > 1e-9 {
		t.Errorf("罚分 = %v, want 6", sol.Penalty)
	}

	ok := &Solution{HardPenalty: 0, Feasible: true}
	h.Apply(nil, ok, 0)
	if ok.Penalty != 0 {
		t.Errorf("可行解罚分 = %v, want 0", ok.Penalty)
	}
}

func TestDynamicPenalty(t *testing.T) {
	h := &DynamicPenalty{Base: 1.0, Growth: 0.1}
	sol := &Solution{HardPenalty: 100, Feasible: false}

	h.Apply(nil, sol, 0)
	early := sol.Penalty
	h.Apply(nil, sol, 10)
	late := sol.Penalty

	if math.Abs(early-1.0) > 1e-9 {
		t.Errorf("第 0 代罚分 = %v, want 1", early)
	}
	if math.Abs(late-2.0) > 1e-9 {
		t.Errorf("第 10 代罚分 = %v, want 2", late)
	}
}

func TestAdaptivePenalty_FactorTracksFeasibility(t *testing.T) {
	h := NewAdaptivePenalty(2.0, 0.4, 4)

	// 一个窗口全不可行，可行率 0 低于目标，系数应上调 1.5 倍
	for i := 0; i < 4; i++ {
		h.Apply(nil, &Solution{HardPenalty: 100, Feasible: false}, i)
	}
	if math.Abs(h.Factor()-3.0) > 1e-9 {
		t.Fatalf("不可行窗口后系数 = %v, want 3", h.Factor())
	}

	// 一个窗口全可行，系数应回落 0.9 倍
	for i := 0; i < 4; i++ {
		h.Apply(nil, &Solution{Feasible: true}, i)
	}
	if math.Abs(h.Factor()-2.7) > 1e-9 {
		t.Fatalf("可行窗口后系数 = %v, want 2.7", h.Factor())
	}
}

func TestRepairHandler_RestoresFeasibility(t *testing.T) {
	fix := newCoverageEquityFixture()
	evaluator := NewParallelEvaluator(1, fix.manager, fix.objectives)

	// 乙被排在缺勤日，唯一可行修复是换成甲
	sol := &Solution{Assignments: []*model.Assignment{assignTo(fix.bob, fix.slots[1])}}
	evaluator.Evaluate(sol, fix.ctx)
	if sol.Feasible {
		t.Fatal("缺勤日排班应不可行")
	}

	h := NewRepairHandler(fix.manager, evaluator, rand.New(rand.NewSource(1)))
	h.Apply(fix.ctx, sol, 1)

	if !sol.Feasible {
		t.Fatal("定向修复后应可行")
	}
	if len(sol.Assignments) != 1 || sol.Assignments[0].PersonID != fix.alice.ID {
		t.Errorf("应换成当日可用的甲, got %+v", sol.Assignments)
	}
	if sol.Penalty != 0 {
		t.Errorf("可行解罚分 = %v, want 0", sol.Penalty)
	}
}

func TestRelaxationHandler_RecordsAmounts(t *testing.T) {
	fix := newCoverageEquityFixture()
	evaluator := NewParallelEvaluator(1, fix.manager, fix.objectives)

	sol := &Solution{Assignments: []*model.Assignment{assignTo(fix.bob, fix.slots[1])}}
	evaluator.Evaluate(sol, fix.ctx)

	h := NewRelaxationHandler(fix.manager)
	h.Apply(fix.ctx, sol, 0)

	if sol.Penalty != 0 {
		t.Errorf("松弛模式不应注入罚分, got %v", sol.Penalty)
	}
	if got := sol.RelaxedAmounts["缺勤冲突"]; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("缺勤松弛量 = %v, want 1", got)
	}

	// 可行解不携带松弛记录
	ok := &Solution{Assignments: []*model.Assignment{assignTo(fix.alice, fix.slots[1])}}
	evaluator.Evaluate(ok, fix.ctx)
	h.Apply(fix.ctx, ok, 0)
	if ok.RelaxedAmounts != nil {
		t.Errorf("可行解松弛记录应为空, got %v", ok.RelaxedAmounts)
	}
}

type fakeFeedback struct {
	factors map[string]float64
}

func (f *fakeFeedback) Poll() map[string]float64 { return f.factors }

func TestReweighter_Adjust(t *testing.T) {
	objectives := []*Objective{CoverageObjective(), EquityObjective()}
	weights := [][]float64{{0.5, 0.5}}

	r := NewReweighter(&fakeFeedback{factors: map[string]float64{"coverage": 4.0}}, objectives)
	if !r.Adjust(weights) {
		t.Fatal("有反馈时应发生调整")
	}
	// 覆盖分量放大 4 倍后重新归一：{2.0, 0.5} -> {0.8, 0.2}
	if math.Abs(weights[0][0]-0.8) > 1e-9 || math.Abs(weights[0][1]-0.2) > 1e-9 {
		t.Errorf("调整后权重 = %v, want [0.8 0.2]", weights[0])
	}

	quiet := NewReweighter(&fakeFeedback{}, objectives)
	if quiet.Adjust(weights) {
		t.Error("空反馈不应调整")
	}
	if NewReweighter(nil, objectives).Adjust(weights) {
		t.Error("无反馈源不应调整")
	}
}

func TestWeightProfiles_OppositeSelection(t *testing.T) {
	// 同一条前沿：全覆盖端点 (0, 1/6) 与均衡端点 (1/3, 0)
	covPoint := []float64{0, 1.0 / 6}
	eqPoint := []float64{1.0 / 3, 0}
	ideal := []float64{0, 0}
	tch := Tchebycheff{}

	coverageFirst := []float64{0.9, 0.1}
	if tch.Scalarize(covPoint, coverageFirst, ideal) >= tch.Scalarize(eqPoint, coverageFirst, ideal) {
		t.Error("覆盖优先的权重下应偏向全覆盖端点")
	}

	equityFirst := []float64{0.1, 0.9}
	if tch.Scalarize(eqPoint, equityFirst, ideal) >= tch.Scalarize(covPoint, equityFirst, ideal) {
		t.Error("均衡优先的权重下应偏向均衡端点")
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

func newTestContext(people []*model.Person, templates []*model.RotationTemplate, slots []*model.TimeSlot) *constraint.Context {
	ctx := constraint.NewContext(uuid.New(), "2024-01-01", "2024-03-31")
	ctx.SetPeople(people)
	ctx.SetTemplates(templates)
	ctx.SetSlots(slots)
	return ctx
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

func sameVector(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}
