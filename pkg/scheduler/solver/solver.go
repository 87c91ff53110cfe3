// Package solver 提供排班求解策略
package solver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// Status 求解结果状态
type Status string

const (
	StatusSuccess    Status = "success"    // 全部必排班次覆盖且无硬约束违反
	StatusPartial    Status = "partial"    // 部分班次未覆盖，已排部分无其他硬违反
	StatusFeasible   Status = "feasible"   // 可行性探测：存在可行方案
	StatusInfeasible Status = "infeasible" // 已证明无可行方案
	StatusTimeout    Status = "timeout"    // 超时，返回当前最优中间结果
	StatusCancelled  Status = "cancelled"  // 被调用方取消，中间结果废弃
	StatusFailed     Status = "failed"     // 求解器内部错误
)

// Options 求解选项
type Options struct {
	Seed            int64 `json:"seed"`             // 随机种子，相同种子产生相同结果
	MaxIterations   int   `json:"max_iterations"`   // 贪心最大迭代次数
	MaxNodes        int   `json:"max_nodes"`        // 搜索节点上限
	FeasibilityOnly bool  `json:"feasibility_only"` // 只判定可行性，找到首个可行解即返回
}

// DefaultOptions 默认求解选项
func DefaultOptions() Options {
	return Options{
		Seed:          1,
		MaxIterations: 10000,
		MaxNodes:      200000,
	}
}

// Result 求解结果
type Result struct {
	Status           Status              `json:"status"`
	Assignments      []*model.Assignment `json:"assignments"`
	Gaps             []*model.TimeSlot   `json:"gaps,omitempty"` // 未覆盖的必排班次
	ConstraintResult *constraint.Result  `json:"constraint_result,omitempty"`
	Statistics       *Statistics         `json:"statistics"`
	Duration         time.Duration       `json:"duration"`
	Message          string              `json:"message,omitempty"`
}

// Statistics 求解统计
type Statistics struct {
	TotalAssignments  int     `json:"total_assignments"`
	FilledSlots       int     `json:"filled_slots"`
	TotalSlots        int     `json:"total_slots"`
	FillRate          float64 `json:"fill_rate"`
	TotalHours        float64 `json:"total_hours"`
	AvgHoursPerPerson float64 `json:"avg_hours_per_person"`
	Iterations        int     `json:"iterations"`
	Nodes             int     `json:"nodes,omitempty"`
	Backtracks        int     `json:"backtracks,omitempty"`
}

// Solver 求解器接口
type Solver interface {
	// Solve 生成排班方案
	Solve(ctx context.Context, schedCtx *constraint.Context, opts Options) (*Result, error)

	// Name 返回求解器名称
	Name() string
}

// interruptStatus 区分超时与取消：超时保留中间结果，取消废弃
func interruptStatus(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	return StatusCancelled
}

// newAssignment 由人员与时段构造分配
func newAssignment(schedCtx *constraint.Context, person *model.Person, slot *model.TimeSlot) *model.Assignment {
	a := &model.Assignment{
		BaseModel:  model.BaseModel{ID: uuid.New()},
		OrgID:      schedCtx.OrgID,
		PersonID:   person.ID,
		SlotID:     slot.ID,
		TemplateID: slot.TemplateID,
		Date:       slot.Date,
		Role:       person.Role,
		Level:      person.Level,
		Status:     "scheduled",
	}
	if tr, err := slot.TimeRange(); err == nil {
		a.StartTime = tr.Start
		a.EndTime = tr.End
	}
	return a
}

// requiredSlots 返回需要覆盖的班次
func requiredSlots(schedCtx *constraint.Context) []*model.TimeSlot {
	var required []*model.TimeSlot
	for _, s := range schedCtx.Slots {
		if s.NeedsCoverage() {
			required = append(required, s)
		}
	}
	return required
}

// openSlots 返回需要覆盖且尚未被锁定分配占用的班次
func openSlots(schedCtx *constraint.Context) []*model.TimeSlot {
	locked := constraint.NewAssignmentSet(schedCtx.Locked)
	var open []*model.TimeSlot
	for _, s := range schedCtx.Slots {
		if s.NeedsCoverage() && locked.CountForSlot(s.ID) == 0 {
			open = append(open, s)
		}
	}
	return open
}

// computeGaps 返回仍未覆盖的必排班次
func computeGaps(schedCtx *constraint.Context, set *constraint.AssignmentSet) []*model.TimeSlot {
	var gaps []*model.TimeSlot
	for _, s := range schedCtx.Slots {
		if s.NeedsCoverage() && set.CountForSlot(s.ID) == 0 {
			gaps = append(gaps, s)
		}
	}
	return gaps
}

// fillStatistics 填充结果统计
func fillStatistics(result *Result, schedCtx *constraint.Context, set *constraint.AssignmentSet) {
	required := requiredSlots(schedCtx)
	filled := 0
	for _, s := range required {
		if set.CountForSlot(s.ID) > 0 {
			filled++
		}
	}

	result.Statistics.TotalAssignments = len(result.Assignments)
	result.Statistics.FilledSlots = filled
	result.Statistics.TotalSlots = len(required)
	if len(required) > 0 {
		result.Statistics.FillRate = float64(filled) / float64(len(required)) * 100
	}

	var totalHours float64
	active := 0
	for _, p := range schedCtx.People {
		h := set.TotalHours(p.ID)
		totalHours += h
		if h > 0 {
			active++
		}
	}
	result.Statistics.TotalHours = totalHours
	if active > 0 {
		result.Statistics.AvgHoursPerPerson = totalHours / float64(active)
	}
}

// classify 根据评估结果归类终态
// 不可行需要搜索证明，构造式求解只区分成功与部分解
func classify(evalResult *constraint.Result) Status {
	if evalResult.IsValid {
		return StatusSuccess
	}
	return StatusPartial
}
