package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/errors"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
	"github.com/rotaplan/rotaplan/pkg/scheduler/optimizer"
	"github.com/rotaplan/rotaplan/pkg/scheduler/solver"
	"github.com/rotaplan/rotaplan/pkg/validator"
)

// TestEngine_SupervisionWeek 一周并发值班走完整状态机，贪心排满并通过复核
func TestEngine_SupervisionWeek(t *testing.T) {
	e := NewEngine()
	schedCtx := supervisionWeekContext()

	report, err := e.Solve(context.Background(), schedCtx, DefaultSolveConfig())
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	if report.Status != solver.StatusSuccess {
		t.Fatalf("status = %s, want %s（%s）", report.Status, solver.StatusSuccess, report.Message)
	}
	if report.SolveID == "" {
		t.Error("报告缺少求解标识")
	}
	if len(report.Assignments) != 28 {
		t.Errorf("分配数 = %d, want 28", len(report.Assignments))
	}
	if len(report.Gaps) != 0 {
		t.Errorf("缺口数 = %d, want 0", len(report.Gaps))
	}
	if report.Validation == nil {
		t.Fatal("成功报告应携带复核结果")
	}
	if !report.Validation.Valid {
		t.Errorf("复核未通过：%d 个硬违反，%d 个冲突",
			report.Validation.HardCount, len(report.Validation.Conflicts))
	}
	if report.Statistics == nil || report.Statistics.FillRate != 100 {
		t.Errorf("统计 = %+v, want 覆盖率 100", report.Statistics)
	}
	if report.Duration <= 0 {
		t.Error("报告缺少耗时")
	}
}

// TestEngine_TenPersonFourToOneWeek 十人科室按 1:4 督导比排满一周
// 2 名主任带 8 名住院医，每天 4 个单人班，共 28 班
func TestEngine_TenPersonFourToOneWeek(t *testing.T) {
	tpl := testTemplate("ICU 值班", 1, 4, 3)

	people := []*model.Person{
		testPerson("主任甲", 3),
		testPerson("主任乙", 3),
	}
	for _, name := range []string{"住院医一", "住院医二", "住院医三", "住院医四",
		"住院医五", "住院医六", "住院医七", "住院医八"} {
		people = append(people, testPerson(name, 1))
	}

	var slots []*model.TimeSlot
	for _, d := range model.DatesBetween("2024-01-01", "2024-01-07") {
		for i := 0; i < 4; i++ {
			slots = append(slots, testSlot(tpl, d, model.TimeOfDayDay, 1, "08:00", "16:00"))
		}
	}

	schedCtx := testContext("2024-01-01", "2024-01-07", people,
		[]*model.RotationTemplate{tpl}, slots)

	e := NewEngine()
	report, err := e.Solve(context.Background(), schedCtx, DefaultSolveConfig())
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	if report.Status != solver.StatusSuccess {
		t.Fatalf("status = %s, want %s（%s）", report.Status, solver.StatusSuccess, report.Message)
	}
	if len(report.Assignments) != 28 {
		t.Errorf("分配数 = %d, want 28", len(report.Assignments))
	}
	if len(report.Gaps) != 0 {
		t.Errorf("缺口数 = %d, want 0", len(report.Gaps))
	}
	if report.Validation == nil || !report.Validation.Valid {
		t.Fatalf("复核应通过, got %+v", report.Validation)
	}
	if report.Statistics == nil || report.Statistics.FillRate != 100 {
		t.Errorf("统计 = %+v, want 覆盖率 100", report.Statistics)
	}
}

// TestEngine_Idempotent 相同上下文、配置与种子两次求解产出相同排班
func TestEngine_Idempotent(t *testing.T) {
	e := NewEngine()
	schedCtx := supervisionWeekContext()

	config := DefaultSolveConfig()
	config.Seed = 42

	first, err := e.Solve(context.Background(), schedCtx, config)
	if err != nil {
		t.Fatalf("第一次 Solve() error = %v", err)
	}
	second, err := e.Solve(context.Background(), schedCtx, config)
	if err != nil {
		t.Fatalf("第二次 Solve() error = %v", err)
	}

	if first.Status != second.Status {
		t.Fatalf("两次求解状态不同：%s vs %s", first.Status, second.Status)
	}
	if len(first.Assignments) != len(second.Assignments) {
		t.Fatalf("两次求解分配数不同：%d vs %d", len(first.Assignments), len(second.Assignments))
	}

	pick := func(assignments []*model.Assignment) map[uuid.UUID]uuid.UUID {
		m := make(map[uuid.UUID]uuid.UUID, len(assignments))
		for _, a := range assignments {
			m[a.SlotID] = a.PersonID
		}
		return m
	}
	a, b := pick(first.Assignments), pick(second.Assignments)
	for slotID, personID := range a {
		if b[slotID] != personID {
			t.Errorf("班次 %s 两次求解人选不同", slotID)
		}
	}
}

// TestEngine_InputValidation 输入不合法时快速失败，不进入求解
func TestEngine_InputValidation(t *testing.T) {
	tpl := testTemplate("值班", 1, 0, 0)
	person := testPerson("甲", 1)
	slot := testSlot(tpl, "2024-01-01", model.TimeOfDayDay, 1, "08:00", "16:00")

	danglingLocked := testContext("2024-01-01", "2024-01-07", []*model.Person{person},
		[]*model.RotationTemplate{tpl}, []*model.TimeSlot{slot})
	stranger := testPerson("编外", 1)
	danglingLocked.SetLocked([]*model.Assignment{assignTo(stranger, slot)})

	tests := []struct {
		name     string
		ctx      *constraint.Context
		wantCode errors.Code
		field    string
	}{
		{
			name:     "空上下文",
			ctx:      nil,
			wantCode: errors.CodeInvalidInput,
		},
		{
			name: "人员列表为空",
			ctx: testContext("2024-01-01", "2024-01-07", nil,
				[]*model.RotationTemplate{tpl}, []*model.TimeSlot{slot}),
			wantCode: errors.CodeValidationFail,
			field:    "people",
		},
		{
			name: "时段列表为空",
			ctx: testContext("2024-01-01", "2024-01-07", []*model.Person{person},
				[]*model.RotationTemplate{tpl}, nil),
			wantCode: errors.CodeValidationFail,
			field:    "slots",
		},
		{
			name: "开始日期格式错误",
			ctx: testContext("2024/01/01", "2024-01-07", []*model.Person{person},
				[]*model.RotationTemplate{tpl}, []*model.TimeSlot{slot}),
			wantCode: errors.CodeValidationFail,
			field:    "start_date",
		},
		{
			name: "日期顺序颠倒",
			ctx: testContext("2024-01-07", "2024-01-01", []*model.Person{person},
				[]*model.RotationTemplate{tpl}, []*model.TimeSlot{slot}),
			wantCode: errors.CodeValidationFail,
			field:    "end_date",
		},
		{
			name: "时段引用未知模板",
			ctx: testContext("2024-01-01", "2024-01-07", []*model.Person{person},
				nil, []*model.TimeSlot{slot}),
			wantCode: errors.CodeValidationFail,
			field:    "slots",
		},
		{
			name:     "锁定分配引用未知人员",
			ctx:      danglingLocked,
			wantCode: errors.CodeValidationFail,
			field:    "locked_assignments",
		},
	}

	e := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := e.Solve(context.Background(), tt.ctx, DefaultSolveConfig())
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if report != nil {
				t.Error("校验失败不应产生报告")
			}
			if got := errors.GetCode(err); got != tt.wantCode {
				t.Errorf("错误码 = %s, want %s", got, tt.wantCode)
			}
			if tt.field != "" {
				appErr, ok := err.(*errors.AppError)
				if !ok {
					t.Fatalf("错误类型 = %T, want *errors.AppError", err)
				}
				if _, present := appErr.Fields[tt.field]; !present {
					t.Errorf("缺少字段 %q 的失败原因，got %v", tt.field, appErr.Fields)
				}
			}
		})
	}
}

// TestEngine_UnknownAlgorithm 未注册的算法名直接拒绝
func TestEngine_UnknownAlgorithm(t *testing.T) {
	e := NewEngine()
	schedCtx := smallContext()

	config := DefaultSolveConfig()
	config.Algorithm = "simulated_annealing"

	report, err := e.Solve(context.Background(), schedCtx, config)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if report != nil {
		t.Error("未知算法不应产生报告")
	}
	if got := errors.GetCode(err); got != errors.CodeUnknownAlgorithm {
		t.Errorf("错误码 = %s, want %s", got, errors.CodeUnknownAlgorithm)
	}
}

// TestEngine_DisableConstraint 常规求解处于生产模式，硬约束不可停用，软约束可以
func TestEngine_DisableConstraint(t *testing.T) {
	e := NewEngine()

	t.Run("停用硬约束被拒绝", func(t *testing.T) {
		config := DefaultSolveConfig()
		config.Disabled = []constraint.Type{constraint.TypeDoubleBooking}

		report, err := e.Solve(context.Background(), smallContext(), config)
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if report != nil {
			t.Error("非法配置不应产生报告")
		}
		if got := errors.GetCode(err); got != errors.CodeConstraintViolation {
			t.Errorf("错误码 = %s, want %s", got, errors.CodeConstraintViolation)
		}
	})

	t.Run("停用软约束正常求解", func(t *testing.T) {
		config := DefaultSolveConfig()
		config.Disabled = []constraint.Type{constraint.TypePreference}

		report, err := e.Solve(context.Background(), smallContext(), config)
		if err != nil {
			t.Fatalf("Solve() error = %v", err)
		}
		if report.Status != solver.StatusSuccess {
			t.Errorf("status = %s, want %s（%s）", report.Status, solver.StatusSuccess, report.Message)
		}
	})
}

// TestEngine_PanicRecovered 策略内部 panic 在策略边界恢复，以 FAILED 报告返回
func TestEngine_PanicRecovered(t *testing.T) {
	e := NewEngine()
	e.RegisterStrategy("panic", func(cm *constraint.Manager) solver.Solver {
		return &panicSolver{}
	})

	config := DefaultSolveConfig()
	config.Algorithm = "panic"

	report, err := e.Solve(context.Background(), smallContext(), config)
	if err != nil {
		t.Fatalf("panic 应折叠进报告而不是返回错误，got %v", err)
	}
	if report.Status != solver.StatusFailed {
		t.Errorf("status = %s, want %s", report.Status, solver.StatusFailed)
	}
	if report.Diagnostics == nil {
		t.Fatal("失败报告应携带诊断信息")
	}
	if report.Diagnostics.Code != errors.CodeSolverInternal {
		t.Errorf("诊断错误码 = %s, want %s", report.Diagnostics.Code, errors.CodeSolverInternal)
	}
	if report.Validation != nil {
		t.Error("失败结局不应进入复核")
	}
}

// TestEngine_Cancelled 取消是终态不是错误，已排内容废弃
func TestEngine_Cancelled(t *testing.T) {
	e := NewEngine()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Solve(cancelled, supervisionWeekContext(), DefaultSolveConfig())
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if report.Status != solver.StatusCancelled {
		t.Errorf("status = %s, want %s", report.Status, solver.StatusCancelled)
	}
	if report.Assignments != nil {
		t.Error("取消应废弃已排内容")
	}
	if report.Validation != nil {
		t.Error("取消结局不应进入复核")
	}
}

// TestEngine_TimeoutValidatesInterim 超时保留中间结果并照常复核
func TestEngine_TimeoutValidatesInterim(t *testing.T) {
	e := NewEngine()
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	config := DefaultSolveConfig()
	config.Timeout = 0 // 截止时间由调用方上下文携带

	report, err := e.Solve(expired, supervisionWeekContext(), config)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if report.Status != solver.StatusTimeout {
		t.Errorf("status = %s, want %s", report.Status, solver.StatusTimeout)
	}
	if report.Validation == nil {
		t.Fatal("超时保留的中间结果应进入复核")
	}
	if report.Validation.Valid {
		t.Error("中间结果覆盖不全，复核不应通过")
	}
}

// TestEngine_CPInfeasible 重叠班次单人无解，搜索证明不可行后不再复核
func TestEngine_CPInfeasible(t *testing.T) {
	e := NewEngine()
	schedCtx := overlapContext()

	config := DefaultSolveConfig()
	config.Algorithm = AlgorithmCPSearch

	report, err := e.Solve(context.Background(), schedCtx, config)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if report.Status != solver.StatusInfeasible {
		t.Fatalf("status = %s, want %s（%s）", report.Status, solver.StatusInfeasible, report.Message)
	}
	if len(report.Assignments) != 0 {
		t.Errorf("不可行结局分配数 = %d, want 0", len(report.Assignments))
	}
	if report.Validation != nil {
		t.Error("不可行结局不应进入复核")
	}
	if report.Message == "" {
		t.Error("不可行报告应说明原因")
	}
}

// TestEngine_RestLimitPartial 连班上限卡住最后一天，报告部分解与缺口
func TestEngine_RestLimitPartial(t *testing.T) {
	tpl := testTemplate("值班", 1, 0, 0)
	person := testPerson("独苗", 1)

	var slots []*model.TimeSlot
	for _, d := range model.DatesBetween("2024-01-01", "2024-01-07") {
		slots = append(slots, testSlot(tpl, d, model.TimeOfDayDay, 1, "08:00", "16:00"))
	}
	schedCtx := testContext("2024-01-01", "2024-01-07",
		[]*model.Person{person}, []*model.RotationTemplate{tpl}, slots)

	e := NewEngine()
	report, err := e.Solve(context.Background(), schedCtx, DefaultSolveConfig())
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	if report.Status != solver.StatusPartial {
		t.Fatalf("status = %s, want %s（%s）", report.Status, solver.StatusPartial, report.Message)
	}
	if len(report.Assignments) != 6 {
		t.Errorf("分配数 = %d, want 6", len(report.Assignments))
	}
	if len(report.Gaps) != 1 {
		t.Errorf("缺口数 = %d, want 1", len(report.Gaps))
	}
	if report.Validation == nil {
		t.Fatal("部分解应进入复核")
	}
	if report.Validation.Valid {
		t.Error("存在未覆盖必排班次，复核不应通过")
	}
	if report.Validation.HardCount == 0 {
		t.Error("复核应报告覆盖硬违反")
	}
}

// TestEngine_MultiObjective 多目标模式以单目标解热启动，采纳推荐解
func TestEngine_MultiObjective(t *testing.T) {
	e := NewEngine()
	schedCtx := smallContext()

	config := DefaultSolveConfig()
	config.MultiObjective = true
	config.MOEA = &optimizer.MOEAConfig{
		Divisions:        2,
		NeighborhoodSize: 3,
		Generations:      3,
		Delta:            0.9,
		MaxReplacements:  1,
		CrossoverRate:    0.9,
		MutationRate:     0.3,
		InitFillRate:     0.8,
		Workers:          2,
		Seed:             7,
		Scalarizer:       "tchebycheff",
		PBITheta:         5.0,
		ConstraintMode:   optimizer.HandlerStatic,
		PenaltyFactor:    2.0,
		ArchiveCapacity:  20,
		ArchiveMode:      optimizer.ArchiveCrowding,
		ArchiveEpsilon:   0.05,
	}

	report, err := e.Solve(context.Background(), schedCtx, config)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	if report.Status != solver.StatusSuccess {
		t.Fatalf("status = %s, want %s（%s）", report.Status, solver.StatusSuccess, report.Message)
	}
	if len(report.Frontier) == 0 {
		t.Fatal("热启动可行时前沿不应为空")
	}
	if report.Recommended == nil {
		t.Fatal("前沿非空时应给出推荐解")
	}
	if !strings.Contains(report.Message, "多目标优化完成") {
		t.Errorf("message = %q, 应说明多目标结局", report.Message)
	}
	if report.Validation == nil || !report.Validation.Valid {
		t.Error("归档解均满足硬约束，采纳后复核应通过")
	}
	if report.Statistics == nil || report.Statistics.TotalAssignments != len(report.Assignments) {
		t.Errorf("统计 = %+v, 应与采纳的推荐解一致", report.Statistics)
	}
	if len(report.Gaps) != 0 {
		t.Errorf("缺口数 = %d, want 0", len(report.Gaps))
	}
}

// TestEngine_Probe 可行性探测定位不可行的硬约束组合
func TestEngine_Probe(t *testing.T) {
	e := NewEngine()

	t.Run("全量硬约束判不可行", func(t *testing.T) {
		report, err := e.Probe(context.Background(), overlapContext(), DefaultSolveConfig())
		if err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
		if report.Status != solver.StatusInfeasible {
			t.Errorf("status = %s, want %s（%s）", report.Status, solver.StatusInfeasible, report.Message)
		}
	})

	t.Run("放宽重复排班后可行", func(t *testing.T) {
		report, err := e.Probe(context.Background(), overlapContext(), DefaultSolveConfig(),
			constraint.TypeDoubleBooking)
		if err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
		if report.Status != solver.StatusFeasible {
			t.Fatalf("status = %s, want %s（%s）", report.Status, solver.StatusFeasible, report.Message)
		}
		// 放宽只影响求解，结构冲突在复核中原样暴露
		if report.Validation == nil {
			t.Fatal("可行解应进入复核")
		}
		if report.Validation.Valid {
			t.Error("重叠排班复核不应通过")
		}
		found := false
		for _, c := range report.Validation.Conflicts {
			if c.Type == validator.ConflictOverlap {
				found = true
			}
		}
		if !found {
			t.Errorf("复核应报告时间重叠冲突，got %v", report.Validation.Conflicts)
		}
	})
}

// TestEngine_InactiveLockedDowngrades 锁定分配属于不在岗人员，求解成功后复核降级
func TestEngine_InactiveLockedDowngrades(t *testing.T) {
	tpl := testTemplate("值班", 1, 0, 0)
	active := testPerson("甲", 1)
	inactive := testPerson("乙", 1)
	inactive.Status = "inactive"

	slot1 := testSlot(tpl, "2024-01-01", model.TimeOfDayDay, 1, "08:00", "16:00")
	slot2 := testSlot(tpl, "2024-01-02", model.TimeOfDayDay, 1, "08:00", "16:00")

	schedCtx := testContext("2024-01-01", "2024-01-07",
		[]*model.Person{active, inactive},
		[]*model.RotationTemplate{tpl}, []*model.TimeSlot{slot1, slot2})
	locked := assignTo(inactive, slot1)
	locked.Locked = true
	schedCtx.SetLocked([]*model.Assignment{locked})

	e := NewEngine()
	report, err := e.Solve(context.Background(), schedCtx, DefaultSolveConfig())
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	if report.Status != solver.StatusPartial {
		t.Fatalf("status = %s, want %s（%s）", report.Status, solver.StatusPartial, report.Message)
	}
	if !strings.Contains(report.Message, "降级") {
		t.Errorf("message = %q, 应说明降级原因", report.Message)
	}
	if len(report.Assignments) != 1 {
		t.Errorf("新增分配数 = %d, want 1", len(report.Assignments))
	}
	if report.Validation.HardCount != 0 {
		t.Errorf("硬违反数 = %d, want 0", report.Validation.HardCount)
	}
	if len(report.Validation.Conflicts) != 1 {
		t.Fatalf("冲突数 = %d, want 1", len(report.Validation.Conflicts))
	}
	if report.Validation.Conflicts[0].Type != validator.ConflictInactive {
		t.Errorf("冲突类型 = %s, want %s",
			report.Validation.Conflicts[0].Type, validator.ConflictInactive)
	}
}

// 辅助函数

// panicSolver 越过策略边界抛出 panic，验证引擎的恢复路径
type panicSolver struct{}

func (p *panicSolver) Solve(ctx context.Context, schedCtx *constraint.Context, opts solver.Options) (*solver.Result, error) {
	panic("策略内部越界")
}

func (p *panicSolver) Name() string { return "panic" }

// supervisionWeekContext 一周 × 每天四个并发单人班次，两名监督者带六名下级
func supervisionWeekContext() *constraint.Context {
	tpl := testTemplate("ICU 值班", 1, 3, 3)

	people := []*model.Person{
		testPerson("主任甲", 3),
		testPerson("主任乙", 3),
		testPerson("住院医一", 1),
		testPerson("住院医二", 1),
		testPerson("住院医三", 1),
		testPerson("住院医四", 1),
		testPerson("住院医五", 1),
		testPerson("住院医六", 1),
	}

	var slots []*model.TimeSlot
	for _, d := range model.DatesBetween("2024-01-01", "2024-01-07") {
		for i := 0; i < 4; i++ {
			slots = append(slots, testSlot(tpl, d, model.TimeOfDayDay, 1, "08:00", "16:00"))
		}
	}

	return testContext("2024-01-01", "2024-01-07", people,
		[]*model.RotationTemplate{tpl}, slots)
}

// smallContext 三人两天四班，用于不关心规模的用例
func smallContext() *constraint.Context {
	tpl := testTemplate("值班", 1, 0, 0)
	people := []*model.Person{
		testPerson("甲", 1),
		testPerson("乙", 1),
		testPerson("丙", 1),
	}
	slots := []*model.TimeSlot{
		testSlot(tpl, "2024-01-01", model.TimeOfDayDay, 1, "08:00", "16:00"),
		testSlot(tpl, "2024-01-01", model.TimeOfDayEvening, 1, "16:00", "22:00"),
		testSlot(tpl, "2024-01-02", model.TimeOfDayDay, 1, "08:00", "16:00"),
		testSlot(tpl, "2024-01-02", model.TimeOfDayEvening, 1, "16:00", "22:00"),
	}
	return testContext("2024-01-01", "2024-01-02", people,
		[]*model.RotationTemplate{tpl}, slots)
}

// overlapContext 单人两个时间重叠的必排班次，任何完整分配都违反重复排班
func overlapContext() *constraint.Context {
	tpl := testTemplate("值班", 1, 0, 0)
	person := testPerson("独苗", 1)

	slots := []*model.TimeSlot{
		testSlot(tpl, "2024-01-01", model.TimeOfDayDay, 1, "08:00", "16:00"),
		testSlot(tpl, "2024-01-01", model.TimeOfDayDay, 1, "12:00", "20:00"),
	}

	return testContext("2024-01-01", "2024-01-07",
		[]*model.Person{person}, []*model.RotationTemplate{tpl}, slots)
}

func testTemplate(name string, capacity, ratio, supervisorLevel int) *model.RotationTemplate {
	return &model.RotationTemplate{
		BaseModel:        model.BaseModel{ID: uuid.New()},
		Name:             name,
		Capacity:         capacity,
		SupervisionRatio: ratio,
		SupervisorLevel:  supervisorLevel,
	}
}

func testPerson(name string, level int) *model.Person {
	return &model.Person{
		BaseModel: model.BaseModel{ID: uuid.New()},
		Name:      name,
		Status:    "active",
		Level:     level,
	}
}

func testSlot(tpl *model.RotationTemplate, date string, tod model.TimeOfDay, period int, start, end string) *model.TimeSlot {
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

func testContext(startDate, endDate string, people []*model.Person, templates []*model.RotationTemplate, slots []*model.TimeSlot) *constraint.Context {
	ctx := constraint.NewContext(uuid.New(), startDate, endDate)
	ctx.SetPeople(people)
	ctx.SetTemplates(templates)
	ctx.SetSlots(slots)
	return ctx
}

func assignTo(person *model.Person, slot *model.TimeSlot) *model.Assignment {
	a := &model.Assignment{
		BaseModel:  model.BaseModel{ID: uuid.New()},
		PersonID:   person.ID,
		SlotID:     slot.ID,
		TemplateID: slot.TemplateID,
		Date:       slot.Date,
		Status:     "scheduled",
	}
	if tr, err := slot.TimeRange(); err == nil {
		a.StartTime = tr.Start
		a.EndTime = tr.End
	}
	return a
}
