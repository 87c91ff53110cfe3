// Package constraints 提供约束目录，供API层查询可用约束及其参数
package constraints

// ConstraintParam 约束参数定义
type ConstraintParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // int, float, string, bool
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
	Min         string `json:"min,omitempty"`
	Max         string `json:"max,omitempty"`
}

// ConstraintDefinition 约束定义
type ConstraintDefinition struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Type        string            `json:"type"`     // hard 硬约束, soft 软约束
	Category    string            `json:"category"` // 分类
	Description string            `json:"description"`
	Disableable bool              `json:"disableable"` // 常规求解中是否允许停用
	Params      []ConstraintParam `json:"params"`
}

// LibraryResponse 约束库响应
type LibraryResponse struct {
	Library []ConstraintDefinition `json:"library"`
}

// GetLibrary 获取完整的约束库
// Name 与求解配置中 constraints/disabled 使用的约束类型标识一致，
// 参数名与求解配置 constraints 映射的键一致
func GetLibrary() []ConstraintDefinition {
	return []ConstraintDefinition{
		// =====================================================
		// 硬约束
		// =====================================================
		{
			Name:        "work_hour_ceiling",
			DisplayName: "滚动窗口工时上限",
			Type:        "hard",
			Category:    "工时限制",
			Description: "对每个人滑动 N 个连续周期的窗口，窗口内周期平均工时不得超过上限。只评估完整落在计划期内的窗口。",
			Params: []ConstraintParam{
				{Name: "ceiling_window_periods", Type: "int", Description: "窗口长度(周期数)", Default: "4", Min: "1", Max: "12"},
				{Name: "ceiling_hours_per_period", Type: "float", Description: "单周期平均工时上限(小时)", Default: "80", Min: "20", Max: "120"},
			},
		},
		{
			Name:        "minimum_rest",
			DisplayName: "最小休息保障",
			Type:        "hard",
			Category:    "休息保障",
			Description: "限制连续工作天数，达到上限后必须休息一天。",
			Params: []ConstraintParam{
				{Name: "max_consecutive_work_days", Type: "int", Description: "最大连续工作天数", Default: "6", Min: "1", Max: "14"},
			},
		},
		{
			Name:        "supervision_ratio",
			DisplayName: "监督比例",
			Type:        "hard",
			Category:    "资质要求",
			Description: "同一模板、同一日期、同一时段的在岗组内，下级人数与监督者人数之比不得超过模板配置的比例。比例与监督职级取自轮转模板，无需额外参数。",
			Params:      []ConstraintParam{},
		},
		{
			Name:        "coverage",
			DisplayName: "必须覆盖",
			Type:        "hard",
			Category:    "覆盖保障",
			Description: "标记为必须覆盖的时段至少要有一人值守，空缺即违反。",
			Params:      []ConstraintParam{},
		},
		{
			Name:        "slot_capacity",
			DisplayName: "时段容量",
			Type:        "hard",
			Category:    "覆盖保障",
			Description: "单个时段的分配人数不得超过模板配置的容量。",
			Params:      []ConstraintParam{},
		},
		{
			Name:        "absence_conflict",
			DisplayName: "缺勤冲突",
			Type:        "hard",
			Category:    "时间限制",
			Description: "人员登记缺勤(请假/休假)的日期内不得安排值班；不允许休假的轮转区间内不得出现休假类缺勤。",
			Params:      []ConstraintParam{},
		},
		{
			Name:        "double_booking",
			DisplayName: "重复排班",
			Type:        "hard",
			Category:    "时间限制",
			Description: "同一人员的两条分配时间不得重叠，跨午夜班次按真实时间区间判断。",
			Params:      []ConstraintParam{},
		},
		{
			Name:        "specialty_match",
			DisplayName: "专业方向匹配",
			Type:        "hard",
			Category:    "资质要求",
			Description: "模板声明专业方向时，只有具备该专业的人员可以被分配。",
			Params:      []ConstraintParam{},
		},

		// =====================================================
		// 软约束
		// =====================================================
		{
			Name:        "workload_equity",
			DisplayName: "工作量均衡",
			Type:        "soft",
			Category:    "公平性",
			Disableable: true,
			Description: "人员实际工时偏离目标工时超过容差比例时计罚分，未设置目标工时的人员以全员平均为基准。",
			Params: []ConstraintParam{
				{Name: "workload_tolerance", Type: "float", Description: "容忍偏差比例", Default: "0.15", Min: "0", Max: "0.5"},
			},
		},
		{
			Name:        "preference",
			DisplayName: "个人偏好",
			Type:        "soft",
			Category:    "偏好",
			Disableable: true,
			Description: "安排到人员想避开的时段或星期计罚分，安排到偏好的时段或模板给予奖励。",
			Params:      []ConstraintParam{},
		},
		{
			Name:        "continuity",
			DisplayName: "排班连续性",
			Type:        "soft",
			Category:    "排班模式",
			Disableable: true,
			Description: "相邻工作日之间更换值班模板计罚分，鼓励同一人员在连续日期承担同类班次。",
			Params:      []ConstraintParam{},
		},
	}
}

// GetDefinition 按约束类型标识查找定义
func GetDefinition(name string) (ConstraintDefinition, bool) {
	for _, def := range GetLibrary() {
		if def.Name == name {
			return def, true
		}
	}
	return ConstraintDefinition{}, false
}
