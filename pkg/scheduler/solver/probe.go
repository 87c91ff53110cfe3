package solver

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// probeVar 松弛变量：候选 (班次, 人员) 对
type probeVar struct {
	slotIdx  int
	personID uuid.UUID
	hours    float64
	period   int
}

// probeOutcome 松弛探测结论
type probeOutcome struct {
	Infeasible  bool    // 松弛上界已排除所有整数解
	MaxCoverage float64 // 松弛最优可覆盖班次数
	Reason      string
}

// lpSolve 指向实际的单纯形求解函数，测试中可替换以模拟求解失败
var lpSolve = solveCoverageLP

// relaxationProbe 线性松弛可行性探测
// 把"覆盖所有待排班次"松弛为线性规划：变量为候选对的分配比例，
// 约束为单班次一个席位与人员滚动窗口工时预算（扣除锁定分配占用）。
// 松弛最优覆盖数都小于待排班次数时整数解必然不存在，可直接判定不可行。
func relaxationProbe(schedCtx *constraint.Context) probeOutcome {
	required := openSlots(schedCtx)
	if len(required) == 0 {
		return probeOutcome{MaxCoverage: 0}
	}

	// 无候选人的必排班次永远无法覆盖
	var vars []probeVar
	for i, slot := range required {
		people := schedCtx.EligiblePeople(slot)
		if len(people) == 0 {
			return probeOutcome{
				Infeasible: true,
				Reason:     "存在无候选人的必排班次 " + slot.Date,
			}
		}
		for _, p := range people {
			vars = append(vars, probeVar{
				slotIdx:  i,
				personID: p.ID,
				hours:    slot.DurationHours(),
				period:   slot.PeriodNumber,
			})
		}
	}

	coverage, err := lpSolve(schedCtx, required, vars)
	if err != nil {
		// 求解失败时探测不下结论，交给回溯搜索
		return probeOutcome{MaxCoverage: float64(len(required))}
	}

	if coverage < float64(len(required))-1e-6 {
		return probeOutcome{
			Infeasible:  true,
			MaxCoverage: coverage,
			Reason:      "松弛上界不足以覆盖全部必排班次",
		}
	}
	return probeOutcome{MaxCoverage: coverage}
}

// solveCoverageLP 构建并求解覆盖松弛线性规划，返回最优覆盖数
func solveCoverageLP(schedCtx *constraint.Context, required []*model.TimeSlot, vars []probeVar) (float64, error) {
	n := len(vars)

	ceilingHours := configFloat(schedCtx.Config, "ceiling_hours_per_period", 80.0)
	windowPeriods := configInt(schedCtx.Config, "ceiling_window_periods", 4)

	minP, maxP, hasSpan := slotPeriodSpan(schedCtx)
	windowed := hasSpan && maxP-minP+1 >= windowPeriods

	// 行数：每班次一个席位行 + 每变量一个非负行 + 人员×窗口的工时预算行
	var windowRows int
	personIdx := make(map[uuid.UUID]int)
	var personIDs []uuid.UUID
	for _, v := range vars {
		if _, ok := personIdx[v.personID]; !ok {
			personIdx[v.personID] = len(personIDs)
			personIDs = append(personIDs, v.personID)
		}
	}
	if windowed {
		windowRows = len(personIDs) * (maxP - minP + 2 - windowPeriods)
	}

	rows := len(required) + n + windowRows
	g := mat.NewDense(rows, n, nil)
	h := make([]float64, rows)

	// 每个必排班次至多一个松弛席位
	for j, v := range vars {
		g.Set(v.slotIdx, j, 1)
	}
	for i := range required {
		h[i] = 1
	}

	// 变量非负
	for j := 0; j < n; j++ {
		g.Set(len(required)+j, j, -1)
		h[len(required)+j] = 0
	}

	// 人员滚动窗口工时预算，锁定分配占用的工时先行扣除
	if windowed {
		locked := constraint.NewAssignmentSet(schedCtx.Locked)
		row := len(required) + n
		for _, pid := range personIDs {
			lockedHours := locked.HoursByPeriod(schedCtx, pid)
			for w := minP; w+windowPeriods-1 <= maxP; w++ {
				var lockedInWindow float64
				for p := w; p < w+windowPeriods; p++ {
					lockedInWindow += lockedHours[p]
				}
				budget := ceilingHours*float64(windowPeriods) - lockedInWindow
				if budget < 0 {
					budget = 0
				}
				for j, v := range vars {
					if v.personID == pid && v.period >= w && v.period < w+windowPeriods {
						g.Set(row, j, v.hours)
					}
				}
				h[row] = budget
				row++
			}
		}
	}

	// 最大化覆盖数
	c := make([]float64, n)
	for j := range c {
		c[j] = -1
	}

	cStd, aStd, bStd := lp.Convert(c, g, h, nil, nil)
	optF, _, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	if err != nil {
		return 0, err
	}
	return -optF, nil
}

// slotPeriodSpan 返回全部时段的周期编号范围
func slotPeriodSpan(schedCtx *constraint.Context) (int, int, bool) {
	if len(schedCtx.Slots) == 0 {
		return 0, 0, false
	}
	minP, maxP := schedCtx.Slots[0].PeriodNumber, schedCtx.Slots[0].PeriodNumber
	for _, s := range schedCtx.Slots {
		if s.PeriodNumber < minP {
			minP = s.PeriodNumber
		}
		if s.PeriodNumber > maxP {
			maxP = s.PeriodNumber
		}
	}
	return minP, maxP, true
}

// configFloat 读取上下文配置中的浮点参数
func configFloat(config map[string]interface{}, key string, defaultVal float64) float64 {
	if config == nil {
		return defaultVal
	}
	switch v := config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return defaultVal
}

// configInt 读取上下文配置中的整数参数
func configInt(config map[string]interface{}, key string, defaultVal int) int {
	if config == nil {
		return defaultVal
	}
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultVal
}
