package builtin

import (
	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// CompositeConstraint 组合约束
// 将多个子约束组合为一个整体，逐一递归评估并聚合结果。任一子约束为
// 硬约束时组合整体按硬约束对待。组合可以嵌套组合。
type CompositeConstraint struct {
	name     string
	weight   float64
	children []constraint.Constraint
}

// NewCompositeConstraint 创建组合约束
func NewCompositeConstraint(name string, children ...constraint.Constraint) *CompositeConstraint {
	return &CompositeConstraint{
		name:     name,
		weight:   compositeWeight(children),
		children: children,
	}
}

// compositeWeight 取子约束的最大权重作为组合权重
func compositeWeight(children []constraint.Constraint) float64 {
	var max float64
	for _, child := range children {
		if child.Weight() > max {
			max = child.Weight()
		}
	}
	return max
}

// Name 返回约束名称
func (c *CompositeConstraint) Name() string {
	return c.name
}

// Type 返回约束类型，带名称后缀避免注册时相互覆盖
func (c *CompositeConstraint) Type() constraint.Type {
	return constraint.Type(string(constraint.TypeComposite) + ":" + c.name)
}

// Category 任一子约束为硬约束时返回硬约束
func (c *CompositeConstraint) Category() constraint.Category {
	for _, child := range c.children {
		if child.Category() == constraint.CategoryHard {
			return constraint.CategoryHard
		}
	}
	return constraint.CategorySoft
}

// Weight 返回组合权重
func (c *CompositeConstraint) Weight() float64 {
	return c.weight
}

// Children 返回子约束列表
func (c *CompositeConstraint) Children() []constraint.Constraint {
	return c.children
}

// Add 追加子约束
func (c *CompositeConstraint) Add(child constraint.Constraint) {
	c.children = append(c.children, child)
	if child.Weight() > c.weight {
		c.weight = child.Weight()
	}
}

// Evaluate 递归评估所有子约束并聚合违规
func (c *CompositeConstraint) Evaluate(ctx *constraint.Context, set *constraint.AssignmentSet) (bool, float64, []constraint.ViolationDetail) {
	isValid := true
	var totalPenalty float64
	var violations []constraint.ViolationDetail

	for _, child := range c.children {
		valid, penalty, details := child.Evaluate(ctx, set)
		if !valid {
			isValid = false
		}
		totalPenalty += penalty
		violations = append(violations, details...)
	}

	return isValid, totalPenalty, violations
}

// EvaluateAssignment 递归增量评估所有子约束
func (c *CompositeConstraint) EvaluateAssignment(ctx *constraint.Context, set *constraint.AssignmentSet, candidate *model.Assignment) (bool, float64) {
	isValid := true
	var totalPenalty float64

	for _, child := range c.children {
		valid, penalty := child.EvaluateAssignment(ctx, set, candidate)
		if !valid {
			isValid = false
		}
		totalPenalty += penalty
	}

	return isValid, totalPenalty
}
