// Package constraint 定义约束接口和管理器
package constraint

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rotaplan/rotaplan/pkg/errors"
	"github.com/rotaplan/rotaplan/pkg/logger"
	"github.com/rotaplan/rotaplan/pkg/model"
)

// Manager 约束管理器
// 注册表支持逐条启用/禁用（what-if 诊断），生产模式下硬约束不可禁用
type Manager struct {
	constraints []Constraint
	disabled    map[Type]bool
	production  bool
	mu          sync.RWMutex
	logger      *logger.SolveLogger
}

// NewManager 创建约束管理器
func NewManager() *Manager {
	return &Manager{
		constraints: make([]Constraint, 0),
		disabled:    make(map[Type]bool),
		logger:      logger.NewSolveLogger(),
	}
}

// Register 注册约束（同类型替换）
func (m *Manager) Register(c Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.constraints {
		if existing.Type() == c.Type() {
			m.constraints[i] = c
			return
		}
	}

	m.constraints = append(m.constraints, c)
	m.sortLocked()
}

// sortLocked 按类别、权重、类型排序，保证确定的评估顺序
// 调用方必须持有写锁
func (m *Manager) sortLocked() {
	sort.Slice(m.constraints, func(i, j int) bool {
		ci, cj := m.constraints[i], m.constraints[j]
		if ci.Category() != cj.Category() {
			return ci.Category() == CategoryHard
		}
		if ci.Weight() != cj.Weight() {
			return ci.Weight() > cj.Weight()
		}
		return ci.Type() < cj.Type()
	})
}

// Unregister 注销约束
func (m *Manager) Unregister(t Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.constraints {
		if c.Type() == t {
			m.constraints = append(m.constraints[:i], m.constraints[i+1:]...)
			delete(m.disabled, t)
			return
		}
	}
}

// SetProductionMode 设置生产模式
// 生产模式下硬约束始终生效，已禁用的硬约束会被重新启用
func (m *Manager) SetProductionMode(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.production = on
	if !on {
		return
	}
	for _, c := range m.constraints {
		if c.Category() == CategoryHard {
			delete(m.disabled, c.Type())
		}
	}
}

// IsProductionMode 检查是否为生产模式
func (m *Manager) IsProductionMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.production
}

// SetEnabled 启用/禁用单个约束
// 生产模式下禁用硬约束返回错误
func (m *Manager) SetEnabled(t Type, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target Constraint
	for _, c := range m.constraints {
		if c.Type() == t {
			target = c
			break
		}
	}
	if target == nil {
		return errors.New(errors.CodeUnknownConstraint, fmt.Sprintf("约束 '%s' 未注册", t))
	}

	if !enabled && m.production && target.Category() == CategoryHard {
		return errors.New(errors.CodeConstraintViolation,
			fmt.Sprintf("生产模式下不允许禁用硬约束 '%s'", t))
	}

	if enabled {
		delete(m.disabled, t)
	} else {
		m.disabled[t] = true
	}
	return nil
}

// IsEnabled 检查约束是否启用
func (m *Manager) IsEnabled(t Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.disabled[t]
}

// Snapshot 保存当前启用状态（what-if 实验前调用）
func (m *Manager) Snapshot() map[Type]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := make(map[Type]bool, len(m.disabled))
	for t, d := range m.disabled {
		snap[t] = d
	}
	return snap
}

// Restore 恢复启用状态（what-if 实验后调用）
func (m *Manager) Restore(snap map[Type]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disabled = make(map[Type]bool, len(snap))
	for t, d := range snap {
		m.disabled[t] = d
	}
}

// GetConstraint 获取约束
func (m *Manager) GetConstraint(t Type) Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.constraints {
		if c.Type() == t {
			return c
		}
	}
	return nil
}

// GetAll 获取所有约束
func (m *Manager) GetAll() []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Constraint, len(m.constraints))
	copy(result, m.constraints)
	return result
}

// GetByCategory 按类别获取启用的约束
func (m *Manager) GetByCategory(cat Category) []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Constraint
	for _, c := range m.constraints {
		if c.Category() == cat && !m.disabled[c.Type()] {
			result = append(result, c)
		}
	}
	return result
}

// activeConstraints 返回启用约束的快照
func (m *Manager) activeConstraints() []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Constraint, 0, len(m.constraints))
	for _, c := range m.constraints {
		if !m.disabled[c.Type()] {
			result = append(result, c)
		}
	}
	return result
}

// Evaluate 评估所有启用约束
// 任一硬约束违反即整体失败，软约束惩罚累加进总惩罚
func (m *Manager) Evaluate(ctx *Context, set *AssignmentSet) *Result {
	constraints := m.activeConstraints()

	result := &Result{
		IsValid:        true,
		TotalPenalty:   0,
		HardViolations: make([]ViolationDetail, 0),
		SoftViolations: make([]ViolationDetail, 0),
	}

	var maxPenalty float64

	for _, c := range constraints {
		valid, penalty, details := c.Evaluate(ctx, set)

		// 累加最大可能惩罚值（用于计算得分）
		maxPenalty += c.Weight() * 100

		if !valid || penalty > 0 {
			result.TotalPenalty += penalty

			for _, d := range details {
				if c.Category() == CategoryHard {
					result.IsValid = false
					result.HardViolations = append(result.HardViolations, d)
					m.logger.ConstraintViolation(c.Name(), d.Message)
				} else {
					result.SoftViolations = append(result.SoftViolations, d)
				}
			}
		}
	}

	result.CalculateScore(maxPenalty)
	return result
}

// EvaluateAssignment 增量评估单个候选分配
func (m *Manager) EvaluateAssignment(ctx *Context, set *AssignmentSet, candidate *model.Assignment) (bool, float64, []ViolationDetail) {
	constraints := m.activeConstraints()

	var violations []ViolationDetail
	var totalPenalty float64
	isValid := true

	for _, c := range constraints {
		valid, penalty := c.EvaluateAssignment(ctx, set, candidate)
		if !valid || penalty > 0 {
			totalPenalty += penalty
			violations = append(violations, ViolationDetail{
				ConstraintType: c.Type(),
				ConstraintName: c.Name(),
				PersonID:       candidate.PersonID,
				SlotID:         candidate.SlotID,
				Date:           candidate.Date,
				Message:        fmt.Sprintf("违反约束: %s", c.Name()),
				Severity:       string(c.Category()),
				Penalty:        penalty,
			})

			if !valid && c.Category() == CategoryHard {
				isValid = false
			}
		}
	}

	return isValid, totalPenalty, violations
}

// CanAssign 检查候选分配是否满足全部启用的硬约束
func (m *Manager) CanAssign(ctx *Context, set *AssignmentSet, candidate *model.Assignment) (bool, string) {
	for _, c := range m.GetByCategory(CategoryHard) {
		valid, _ := c.EvaluateAssignment(ctx, set, candidate)
		if !valid {
			return false, fmt.Sprintf("违反硬约束: %s", c.Name())
		}
	}
	return true, ""
}

// SoftPenalty 计算候选分配的软约束惩罚
func (m *Manager) SoftPenalty(ctx *Context, set *AssignmentSet, candidate *model.Assignment) float64 {
	var penalty float64
	for _, c := range m.GetByCategory(CategorySoft) {
		_, p := c.EvaluateAssignment(ctx, set, candidate)
		penalty += p
	}
	return penalty
}

// Clear 清除所有约束
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints = make([]Constraint, 0)
	m.disabled = make(map[Type]bool)
}

// Count 返回约束数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.constraints)
}

// Summary 返回约束摘要
func (m *Manager) Summary() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hard := 0
	soft := 0
	disabled := 0
	for _, c := range m.constraints {
		if c.Category() == CategoryHard {
			hard++
		} else {
			soft++
		}
		if m.disabled[c.Type()] {
			disabled++
		}
	}

	return map[string]interface{}{
		"total":    len(m.constraints),
		"hard":     hard,
		"soft":     soft,
		"disabled": disabled,
	}
}
