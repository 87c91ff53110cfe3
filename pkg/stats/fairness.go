package stats

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// 综合公平性评分的各项权重
const (
	workloadWeight = 0.4
	nightWeight    = 0.25
	weekendWeight  = 0.25
	spreadWeight   = 0.1
)

// FairnessReport 工作量公平性分析结果
type FairnessReport struct {
	HoursByPerson map[uuid.UUID]float64 `json:"hours_by_person"`
	TotalHours    float64               `json:"total_hours"`
	MeanHours     float64               `json:"mean_hours"`
	StdDev        float64               `json:"std_dev"`
	Gini          float64               `json:"gini"` // 基尼系数 0-1，0 为完全均衡
	MinHours      float64               `json:"min_hours"`
	MaxHours      float64               `json:"max_hours"`

	NightGini   float64      `json:"night_gini"`   // 夜班分布基尼系数
	WeekendGini float64      `json:"weekend_gini"` // 周末班分布基尼系数
	Score       float64      `json:"score"`        // 综合公平性评分 0-100
	PersonStats []PersonStat `json:"person_stats,omitempty"`
}

// PersonStat 单人工作量明细，按工时降序
type PersonStat struct {
	PersonID     uuid.UUID `json:"person_id"`
	Name         string    `json:"name"`
	Hours        float64   `json:"hours"`
	SlotCount    int       `json:"slot_count"`
	NightSlots   int       `json:"night_slots"`
	WeekendSlots int       `json:"weekend_slots"`
	DeviationPct float64   `json:"deviation_pct"` // 相对平均工时的偏差百分比
}

// AnalyzeFairness 统计人员工时分布与均衡度
func AnalyzeFairness(ctx *constraint.Context, set *constraint.AssignmentSet) *FairnessReport {
	report := &FairnessReport{
		HoursByPerson: make(map[uuid.UUID]float64, len(ctx.People)),
	}
	if len(ctx.People) == 0 {
		return report
	}

	hours := make([]float64, 0, len(ctx.People))
	nights := make([]float64, 0, len(ctx.People))
	weekends := make([]float64, 0, len(ctx.People))
	report.PersonStats = make([]PersonStat, 0, len(ctx.People))

	for _, p := range ctx.People {
		ps := PersonStat{PersonID: p.ID, Name: p.Name}
		for _, a := range set.ByPerson(p.ID) {
			ps.Hours += a.WorkingHours()
			ps.SlotCount++
			if slot := ctx.GetSlot(a.SlotID); slot != nil && slot.IsNight() {
				ps.NightSlots++
			}
			if isWeekend(a.Date) {
				ps.WeekendSlots++
			}
		}
		report.HoursByPerson[p.ID] = ps.Hours
		hours = append(hours, ps.Hours)
		nights = append(nights, float64(ps.NightSlots))
		weekends = append(weekends, float64(ps.WeekendSlots))
		report.PersonStats = append(report.PersonStats, ps)
	}

	report.TotalHours = floats.Sum(hours)
	report.MeanHours = stat.Mean(hours, nil)
	if len(hours) > 1 {
		report.StdDev = stat.StdDev(hours, nil)
	}
	report.MinHours = floats.Min(hours)
	report.MaxHours = floats.Max(hours)
	report.Gini = giniCoefficient(hours)
	report.NightGini = giniCoefficient(nights)
	report.WeekendGini = giniCoefficient(weekends)

	for i := range report.PersonStats {
		if report.MeanHours > 0 {
			report.PersonStats[i].DeviationPct = (report.PersonStats[i].Hours - report.MeanHours) / report.MeanHours * 100
		}
	}
	sort.Slice(report.PersonStats, func(i, j int) bool {
		if report.PersonStats[i].Hours != report.PersonStats[j].Hours {
			return report.PersonStats[i].Hours > report.PersonStats[j].Hours
		}
		return report.PersonStats[i].Name < report.PersonStats[j].Name
	})

	report.Score = fairnessScore(report.Gini, report.NightGini, report.WeekendGini,
		report.StdDev, report.MeanHours)
	return report
}

// giniCoefficient 计算工时分布的基尼系数
// 全员工时相同（含全零）时为 0，全部工时集中在一人时趋近 1。
func giniCoefficient(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	total := floats.Sum(sorted)
	if total <= 0 {
		return 0
	}

	var weighted float64
	for i, v := range sorted {
		weighted += float64(2*(i+1)-n-1) * v
	}
	return weighted / (float64(n) * total)
}

// fairnessScore 基尼系数与变异系数加权折算为 0-100 评分
func fairnessScore(workloadGini, nightGini, weekendGini, stdDev, meanHours float64) float64 {
	spreadScore := 100.0
	if meanHours > 0 {
		cv := stdDev / meanHours
		spreadScore = math.Max(0, 100-cv*200)
	}

	score := workloadWeight*(1-workloadGini)*100 +
		nightWeight*(1-nightGini)*100 +
		weekendWeight*(1-weekendGini)*100 +
		spreadWeight*spreadScore
	return math.Max(0, math.Min(100, score))
}

func isWeekend(date string) bool {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false
	}
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}
