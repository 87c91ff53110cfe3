// Package builtin 提供内置约束实现
package builtin

import (
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// RegisterDefaultConstraints 注册默认约束到管理器
func RegisterDefaultConstraints(manager *constraint.Manager, config map[string]interface{}) {
	// 从配置中获取参数，使用默认值
	windowPeriods := getConfigInt(config, "ceiling_window_periods", 4)
	ceilingHours := getConfigFloat(config, "ceiling_hours_per_period", 80.0)
	maxConsecutiveDays := getConfigInt(config, "max_consecutive_work_days", 6)
	workloadTolerance := getConfigFloat(config, "workload_tolerance", 0.15)

	// 注册硬约束
	manager.Register(NewWorkHourCeilingConstraint(windowPeriods, ceilingHours))
	manager.Register(NewMinimumRestConstraint(maxConsecutiveDays))
	manager.Register(NewSupervisionRatioConstraint())
	manager.Register(NewCoverageConstraint())
	manager.Register(NewSlotCapacityConstraint())
	manager.Register(NewAbsenceConflictConstraint())
	manager.Register(NewDoubleBookingConstraint())
	manager.Register(NewSpecialtyMatchConstraint())

	// 注册软约束
	manager.Register(NewWorkloadEquityConstraint(workloadTolerance))
	manager.Register(NewPreferenceConstraint())
	manager.Register(NewContinuityConstraint())
}

// RegisterHardConstraints 只注册硬约束，用于可行性探测
func RegisterHardConstraints(manager *constraint.Manager, config map[string]interface{}) {
	windowPeriods := getConfigInt(config, "ceiling_window_periods", 4)
	ceilingHours := getConfigFloat(config, "ceiling_hours_per_period", 80.0)
	maxConsecutiveDays := getConfigInt(config, "max_consecutive_work_days", 6)

	manager.Register(NewWorkHourCeilingConstraint(windowPeriods, ceilingHours))
	manager.Register(NewMinimumRestConstraint(maxConsecutiveDays))
	manager.Register(NewSupervisionRatioConstraint())
	manager.Register(NewCoverageConstraint())
	manager.Register(NewSlotCapacityConstraint())
	manager.Register(NewAbsenceConflictConstraint())
	manager.Register(NewDoubleBookingConstraint())
	manager.Register(NewSpecialtyMatchConstraint())
}

// getConfigInt 从配置中获取整数
func getConfigInt(config map[string]interface{}, key string, defaultVal int) int {
	if config == nil {
		return defaultVal
	}
	if val, ok := config[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case float64:
			return int(v)
		case int64:
			return int(v)
		}
	}
	return defaultVal
}

// getConfigFloat 从配置中获取浮点数
func getConfigFloat(config map[string]interface{}, key string, defaultVal float64) float64 {
	if config == nil {
		return defaultVal
	}
	if val, ok := config[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return defaultVal
}
