// Package constraint 定义约束接口和管理器
package constraint

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/model"
)

// Type 约束类型标识
type Type string

const (
	// 硬约束类型
	TypeWorkHourCeiling  Type = "work_hour_ceiling" // 滚动窗口工时上限
	TypeMinimumRest      Type = "minimum_rest"      // 最小休息（连续工作天数）
	TypeSupervisionRatio Type = "supervision_ratio" // 监督比例
	TypeCoverage         Type = "coverage"          // 必须覆盖
	TypeSlotCapacity     Type = "slot_capacity"     // 时段容量
	TypeAbsenceConflict  Type = "absence_conflict"  // 缺勤冲突
	TypeDoubleBooking    Type = "double_booking"    // 重复排班
	TypeSpecialtyMatch   Type = "specialty_match"   // 专业方向匹配

	// 软约束类型
	TypeWorkloadEquity Type = "workload_equity" // 工作量均衡
	TypePreference     Type = "preference"      // 人员偏好
	TypeContinuity     Type = "continuity"      // 轮转连续性

	// 组合约束
	TypeComposite Type = "composite"
)

// Category 约束类别
type Category string

const (
	CategoryHard Category = "hard" // 硬约束（必须满足）
	CategorySoft Category = "soft" // 软约束（尽量满足）
)

// Constraint 约束接口
type Constraint interface {
	// Name 返回约束名称
	Name() string

	// Type 返回约束类型
	Type() Type

	// Category 返回约束类别
	Category() Category

	// Weight 返回约束权重
	Weight() float64

	// Evaluate 评估整个分配集合
	// 返回：是否满足、惩罚值、违反详情
	Evaluate(ctx *Context, set *AssignmentSet) (valid bool, penalty float64, details []ViolationDetail)

	// EvaluateAssignment 增量评估单个候选分配（候选尚未加入集合）
	// 返回：是否满足、惩罚值
	EvaluateAssignment(ctx *Context, set *AssignmentSet, candidate *model.Assignment) (valid bool, penalty float64)
}

// ViolationDetail 约束违反详情
type ViolationDetail struct {
	ConstraintType Type      `json:"constraint_type"`
	ConstraintName string    `json:"constraint_name"`
	PersonID       uuid.UUID `json:"person_id,omitempty"`
	SlotID         uuid.UUID `json:"slot_id,omitempty"`
	Date           string    `json:"date,omitempty"`     // 违反起始日期
	EndDate        string    `json:"end_date,omitempty"` // 违反结束日期（区间违反时）
	Magnitude      float64   `json:"magnitude"`          // 违反幅度（超出小时数、缺口人数等）
	Message        string    `json:"message"`
	Severity       string    `json:"severity"` // error/warning
	Penalty        float64   `json:"penalty"`
}

// Context 排班上下文（一次求解的不可变输入快照）
// 通过 Set* 方法构建，求解开始后只读
type Context struct {
	OrgID     uuid.UUID `json:"org_id"`
	StartDate string    `json:"start_date"` // YYYY-MM-DD
	EndDate   string    `json:"end_date"`   // YYYY-MM-DD

	People    []*model.Person           `json:"people"`
	Slots     []*model.TimeSlot         `json:"slots"`
	Templates []*model.RotationTemplate `json:"templates"`
	Absences  []*model.Absence          `json:"absences"`
	Locked    []*model.Assignment       `json:"locked_assignments"`

	// 索引缓存
	personMap        map[uuid.UUID]*model.Person
	slotMap          map[uuid.UUID]*model.TimeSlot
	templateMap      map[uuid.UUID]*model.RotationTemplate
	absencesByPerson map[uuid.UUID][]*model.Absence
	slotsByDate      map[string][]*model.TimeSlot

	// 额外配置（硬约束参数、求解选项）
	Config map[string]interface{} `json:"config,omitempty"`
}

// NewContext 创建新的排班上下文
func NewContext(orgID uuid.UUID, startDate, endDate string) *Context {
	return &Context{
		OrgID:            orgID,
		StartDate:        startDate,
		EndDate:          endDate,
		People:           make([]*model.Person, 0),
		Slots:            make([]*model.TimeSlot, 0),
		Templates:        make([]*model.RotationTemplate, 0),
		Absences:         make([]*model.Absence, 0),
		Locked:           make([]*model.Assignment, 0),
		personMap:        make(map[uuid.UUID]*model.Person),
		slotMap:          make(map[uuid.UUID]*model.TimeSlot),
		templateMap:      make(map[uuid.UUID]*model.RotationTemplate),
		absencesByPerson: make(map[uuid.UUID][]*model.Absence),
		slotsByDate:      make(map[string][]*model.TimeSlot),
		Config:           make(map[string]interface{}),
	}
}

// SetPeople 设置人员列表
func (c *Context) SetPeople(people []*model.Person) {
	c.People = people
	c.personMap = make(map[uuid.UUID]*model.Person)
	for _, p := range people {
		c.personMap[p.ID] = p
	}
}

// SetSlots 设置时段列表
func (c *Context) SetSlots(slots []*model.TimeSlot) {
	c.Slots = slots
	c.slotMap = make(map[uuid.UUID]*model.TimeSlot)
	c.slotsByDate = make(map[string][]*model.TimeSlot)
	for _, s := range slots {
		c.slotMap[s.ID] = s
		c.slotsByDate[s.Date] = append(c.slotsByDate[s.Date], s)
	}
}

// SetTemplates 设置轮转模板列表
func (c *Context) SetTemplates(templates []*model.RotationTemplate) {
	c.Templates = templates
	c.templateMap = make(map[uuid.UUID]*model.RotationTemplate)
	for _, t := range templates {
		c.templateMap[t.ID] = t
	}
}

// SetAbsences 设置缺勤列表
func (c *Context) SetAbsences(absences []*model.Absence) {
	c.Absences = absences
	c.absencesByPerson = make(map[uuid.UUID][]*model.Absence)
	for _, a := range absences {
		c.absencesByPerson[a.PersonID] = append(c.absencesByPerson[a.PersonID], a)
	}
}

// SetLocked 设置锁定分配（求解前已存在，必须保留）
func (c *Context) SetLocked(locked []*model.Assignment) {
	c.Locked = locked
}

// WithLocked 返回替换锁定分配后的浅拷贝，其余输入与索引共享
func (c *Context) WithLocked(locked []*model.Assignment) *Context {
	clone := *c
	clone.Locked = locked
	return &clone
}

// GetPerson 获取人员
func (c *Context) GetPerson(id uuid.UUID) *model.Person {
	return c.personMap[id]
}

// GetSlot 获取时段
func (c *Context) GetSlot(id uuid.UUID) *model.TimeSlot {
	return c.slotMap[id]
}

// GetTemplate 获取轮转模板
func (c *Context) GetTemplate(id uuid.UUID) *model.RotationTemplate {
	return c.templateMap[id]
}

// TemplateOf 获取时段所属的轮转模板
func (c *Context) TemplateOf(slot *model.TimeSlot) *model.RotationTemplate {
	if slot == nil {
		return nil
	}
	return c.templateMap[slot.TemplateID]
}

// SlotsOnDate 获取某日期的所有时段
func (c *Context) SlotsOnDate(date string) []*model.TimeSlot {
	return c.slotsByDate[date]
}

// AbsencesOf 获取人员的缺勤列表
func (c *Context) AbsencesOf(personID uuid.UUID) []*model.Absence {
	return c.absencesByPerson[personID]
}

// IsAbsent 检查人员在某日期是否缺勤
func (c *Context) IsAbsent(personID uuid.UUID, date string) bool {
	for _, a := range c.absencesByPerson[personID] {
		if a.Covers(date) {
			return true
		}
	}
	return false
}

// Days 返回计划期内的所有日期
func (c *Context) Days() []string {
	return model.DatesBetween(c.StartDate, c.EndDate)
}

// EligiblePeople 返回某时段的候选人员（在职、专业匹配、当日未缺勤）
// 结果保持 People 的稳定顺序
func (c *Context) EligiblePeople(slot *model.TimeSlot) []*model.Person {
	tmpl := c.TemplateOf(slot)
	var eligible []*model.Person
	for _, p := range c.People {
		if !p.IsActive() {
			continue
		}
		if c.IsAbsent(p.ID, slot.Date) {
			continue
		}
		if tmpl != nil && tmpl.Specialty != "" && !p.HasSpecialty(tmpl.Specialty) {
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible
}

// AssignmentSet 求解过程中的工作分配集合
// Context 保持只读，可变的工作状态全部集中在这里
type AssignmentSet struct {
	assignments []*model.Assignment
	byPerson    map[uuid.UUID][]*model.Assignment
	byDate      map[string][]*model.Assignment
	bySlot      map[uuid.UUID][]*model.Assignment
}

// NewAssignmentSet 创建分配集合
func NewAssignmentSet(assignments []*model.Assignment) *AssignmentSet {
	s := &AssignmentSet{
		assignments: make([]*model.Assignment, 0, len(assignments)),
		byPerson:    make(map[uuid.UUID][]*model.Assignment),
		byDate:      make(map[string][]*model.Assignment),
		bySlot:      make(map[uuid.UUID][]*model.Assignment),
	}
	for _, a := range assignments {
		s.Add(a)
	}
	return s
}

// Add 添加分配
func (s *AssignmentSet) Add(a *model.Assignment) {
	s.assignments = append(s.assignments, a)
	s.byPerson[a.PersonID] = append(s.byPerson[a.PersonID], a)
	s.byDate[a.Date] = append(s.byDate[a.Date], a)
	s.bySlot[a.SlotID] = append(s.bySlot[a.SlotID], a)
}

// Remove 移除分配
func (s *AssignmentSet) Remove(id uuid.UUID) {
	for i, a := range s.assignments {
		if a.ID == id {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			break
		}
	}
	s.rebuildIndexes()
}

// rebuildIndexes 重建索引
func (s *AssignmentSet) rebuildIndexes() {
	s.byPerson = make(map[uuid.UUID][]*model.Assignment)
	s.byDate = make(map[string][]*model.Assignment)
	s.bySlot = make(map[uuid.UUID][]*model.Assignment)
	for _, a := range s.assignments {
		s.byPerson[a.PersonID] = append(s.byPerson[a.PersonID], a)
		s.byDate[a.Date] = append(s.byDate[a.Date], a)
		s.bySlot[a.SlotID] = append(s.bySlot[a.SlotID], a)
	}
}

// All 返回全部分配
func (s *AssignmentSet) All() []*model.Assignment {
	return s.assignments
}

// Len 返回分配数量
func (s *AssignmentSet) Len() int {
	return len(s.assignments)
}

// ByPerson 获取人员的所有分配
func (s *AssignmentSet) ByPerson(personID uuid.UUID) []*model.Assignment {
	return s.byPerson[personID]
}

// OnDate 获取某日期的所有分配
func (s *AssignmentSet) OnDate(date string) []*model.Assignment {
	return s.byDate[date]
}

// ForSlot 获取某时段的所有分配
func (s *AssignmentSet) ForSlot(slotID uuid.UUID) []*model.Assignment {
	return s.bySlot[slotID]
}

// CountForSlot 获取某时段的分配数量
func (s *AssignmentSet) CountForSlot(slotID uuid.UUID) int {
	return len(s.bySlot[slotID])
}

// HasPersonOnSlot 检查人员是否已分配到某时段
func (s *AssignmentSet) HasPersonOnSlot(personID, slotID uuid.UUID) bool {
	for _, a := range s.bySlot[slotID] {
		if a.PersonID == personID {
			return true
		}
	}
	return false
}

// HoursOnDate 获取人员某天的工作时长
func (s *AssignmentSet) HoursOnDate(personID uuid.UUID, date string) float64 {
	var hours float64
	for _, a := range s.byPerson[personID] {
		if a.Date == date {
			hours += a.WorkingHours()
		}
	}
	return hours
}

// HoursInRange 获取人员在日期范围内的工作时长
func (s *AssignmentSet) HoursInRange(personID uuid.UUID, startDate, endDate string) float64 {
	var hours float64
	for _, a := range s.byPerson[personID] {
		if a.Date >= startDate && a.Date <= endDate {
			hours += a.WorkingHours()
		}
	}
	return hours
}

// TotalHours 获取人员的总工时
func (s *AssignmentSet) TotalHours(personID uuid.UUID) float64 {
	var hours float64
	for _, a := range s.byPerson[personID] {
		hours += a.WorkingHours()
	}
	return hours
}

// HoursByPeriod 按周期编号统计人员工时（滚动窗口检查使用）
func (s *AssignmentSet) HoursByPeriod(ctx *Context, personID uuid.UUID) map[int]float64 {
	hours := make(map[int]float64)
	for _, a := range s.byPerson[personID] {
		slot := ctx.GetSlot(a.SlotID)
		if slot == nil {
			continue
		}
		hours[slot.PeriodNumber] += a.WorkingHours()
	}
	return hours
}

// WorkedDates 返回人员的工作日期（升序去重）
func (s *AssignmentSet) WorkedDates(personID uuid.UUID) []string {
	seen := make(map[string]bool)
	var dates []string
	for _, a := range s.byPerson[personID] {
		if !seen[a.Date] {
			seen[a.Date] = true
			dates = append(dates, a.Date)
		}
	}
	sort.Strings(dates)
	return dates
}

// Clone 深拷贝分配集合
func (s *AssignmentSet) Clone() *AssignmentSet {
	return NewAssignmentSet(model.CloneAssignments(s.assignments))
}

// Result 约束评估结果
type Result struct {
	IsValid        bool              `json:"is_valid"`
	TotalPenalty   float64           `json:"total_penalty"`
	HardViolations []ViolationDetail `json:"hard_violations"`
	SoftViolations []ViolationDetail `json:"soft_violations"`
	Score          float64           `json:"score"` // 0-100
}

// CalculateScore 计算约束满足度得分
func (r *Result) CalculateScore(maxPenalty float64) {
	if maxPenalty <= 0 {
		r.Score = 100.0
		return
	}
	r.Score = 100.0 * (maxPenalty - r.TotalPenalty) / maxPenalty
	if r.Score < 0 {
		r.Score = 0
	}
}
