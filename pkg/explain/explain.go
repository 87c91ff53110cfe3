// Package explain 生成排班决策的可解释记录
// 对每条分配重演决策时刻：把该分配移出集合后评估全部候选人，
// 给出因素级评分拆解、落选候选与置信度档位。
package explain

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// 置信度档位，按当选者与次优可行候选的归一化分差划分
const (
	ConfidenceHigh   = "high"   // 分差 ≥ 0.25
	ConfidenceMedium = "medium" // 分差 ≥ 0.10
	ConfidenceLow    = "low"
)

// ReasonOutscored 落选原因码：可行但总分劣于当选者
const ReasonOutscored = "outscored"

const defaultTopAlternatives = 3

// Factor 单个约束对总分的贡献（正值为罚分，负值为奖励）
type Factor struct {
	Name  string          `json:"name"`
	Type  constraint.Type `json:"type"`
	Score float64         `json:"score"`
}

// Alternative 落选候选人
// Reasons 为机器可读原因码：违反的约束类型，或 outscored
type Alternative struct {
	PersonID   uuid.UUID `json:"person_id"`
	PersonName string    `json:"person_name"`
	Score      float64   `json:"score"`
	Feasible   bool      `json:"feasible"`
	Reasons    []string  `json:"reasons"`
}

// DecisionRecord 一条分配的决策记录
type DecisionRecord struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
	SlotID       uuid.UUID `json:"slot_id"`
	PersonID     uuid.UUID `json:"person_id"`
	PersonName   string    `json:"person_name"`
	Date         string    `json:"date"`

	Feasible   bool     `json:"feasible"`
	TotalScore float64  `json:"total_score"` // 因素得分之和，越低越好
	Factors    []Factor `json:"factors,omitempty"`

	Alternatives []Alternative `json:"alternatives,omitempty"`
	Considered   int           `json:"considered"` // 参与比较的候选人数
	Margin       float64       `json:"margin"`     // 与次优可行候选的归一化分差 0-1
	Confidence   string        `json:"confidence"`
}

// Explainer 决策解释器
type Explainer struct {
	manager *constraint.Manager
	topN    int
}

// NewExplainer 创建决策解释器
func NewExplainer(manager *constraint.Manager) *Explainer {
	return &Explainer{
		manager: manager,
		topN:    defaultTopAlternatives,
	}
}

// SetTopAlternatives 设置每条记录保留的落选候选数量
func (e *Explainer) SetTopAlternatives(n int) {
	if n > 0 {
		e.topN = n
	}
}

// ExplainAll 为集合中求解器决定的分配生成决策记录
// 锁定分配是求解前的既定事实，不产生记录；
// 输出按日期、时段、人员排序，与分配 ID 的生成顺序无关
func (e *Explainer) ExplainAll(schedCtx *constraint.Context, set *constraint.AssignmentSet) []*DecisionRecord {
	all := set.All()
	ordered := make([]*model.Assignment, len(all))
	copy(ordered, all)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Date != ordered[j].Date {
			return ordered[i].Date < ordered[j].Date
		}
		if ordered[i].SlotID != ordered[j].SlotID {
			return ordered[i].SlotID.String() < ordered[j].SlotID.String()
		}
		return ordered[i].PersonID.String() < ordered[j].PersonID.String()
	})

	records := make([]*DecisionRecord, 0, len(ordered))
	for _, a := range ordered {
		if a.Locked {
			continue
		}
		if rec := e.ExplainAssignment(schedCtx, set, a); rec != nil {
			records = append(records, rec)
		}
	}
	return records
}

// ExplainAssignment 重演单条分配的决策
// 引用的时段或人员不在上下文内时无法解释，返回 nil
func (e *Explainer) ExplainAssignment(schedCtx *constraint.Context, set *constraint.AssignmentSet, a *model.Assignment) *DecisionRecord {
	slot := schedCtx.GetSlot(a.SlotID)
	chosen := schedCtx.GetPerson(a.PersonID)
	if slot == nil || chosen == nil {
		return nil
	}

	// 移出该分配，还原决策时刻的集合
	base := set.Clone()
	base.Remove(a.ID)

	// 当选者可能已不在候选名单内（如放宽求解的产物），仍参与比较
	candidates := schedCtx.EligiblePeople(slot)
	found := false
	for _, p := range candidates {
		if p.ID == chosen.ID {
			found = true
			break
		}
	}
	if !found {
		candidates = append([]*model.Person{chosen}, candidates...)
	}

	scores := make([]candidateScore, 0, len(candidates))
	var chosenScore candidateScore
	rest := make([]candidateScore, 0, len(candidates))
	for _, p := range candidates {
		cs := e.scoreCandidate(schedCtx, base, p, slot)
		scores = append(scores, cs)
		if p.ID == chosen.ID {
			chosenScore = cs
		} else {
			rest = append(rest, cs)
		}
	}

	// 可行解优先，其余按分数升序
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].feasible != rest[j].feasible {
			return rest[i].feasible
		}
		return rest[i].total < rest[j].total
	})

	record := &DecisionRecord{
		AssignmentID: a.ID,
		SlotID:       slot.ID,
		PersonID:     chosen.ID,
		PersonName:   chosen.Name,
		Date:         slot.Date,
		Feasible:     chosenScore.feasible,
		TotalScore:   chosenScore.total,
		Factors:      chosenScore.factors,
		Considered:   len(scores),
	}

	record.Margin = marginOf(chosenScore, rest)
	record.Confidence = confidenceFor(record.Margin)
	record.Alternatives = topAlternatives(rest, e.topN)
	return record
}

// candidateScore 候选人评分中间结果
type candidateScore struct {
	person   *model.Person
	total    float64
	feasible bool
	factors  []Factor
	violated []string
}

// scoreCandidate 对单个候选人做增量约束评估
// 总分严格等于各因素得分之和
func (e *Explainer) scoreCandidate(schedCtx *constraint.Context, set *constraint.AssignmentSet, person *model.Person, slot *model.TimeSlot) candidateScore {
	cand := candidateAssignment(schedCtx, person, slot)
	cs := candidateScore{person: person, feasible: true}

	for _, c := range e.manager.GetByCategory(constraint.CategoryHard) {
		valid, penalty := c.EvaluateAssignment(schedCtx, set, cand)
		if !valid {
			cs.feasible = false
			cs.violated = append(cs.violated, string(c.Type()))
		}
		if penalty != 0 {
			cs.factors = append(cs.factors, Factor{Name: c.Name(), Type: c.Type(), Score: penalty})
			cs.total += penalty
		}
	}
	for _, c := range e.manager.GetByCategory(constraint.CategorySoft) {
		_, penalty := c.EvaluateAssignment(schedCtx, set, cand)
		if penalty != 0 {
			cs.factors = append(cs.factors, Factor{Name: c.Name(), Type: c.Type(), Score: penalty})
			cs.total += penalty
		}
	}
	return cs
}

// marginOf 当选者领先次优可行候选的幅度，归一到 [0,1]
// 分差除以两者分数量级（下限 1，避免近零分数虚高），
// 没有其他可行候选时记满幅 1
func marginOf(chosen candidateScore, rest []candidateScore) float64 {
	next := math.Inf(1)
	for _, s := range rest {
		if !s.feasible {
			continue
		}
		if s.total < next {
			next = s.total
		}
	}
	if math.IsInf(next, 1) {
		return 1.0
	}

	scale := math.Max(math.Max(math.Abs(chosen.total), math.Abs(next)), 1.0)
	margin := (next - chosen.total) / scale
	if margin < 0 {
		return 0
	}
	if margin > 1 {
		return 1
	}
	return margin
}

// confidenceFor 归一化分差映射到置信度档位
func confidenceFor(margin float64) string {
	switch {
	case margin >= 0.25:
		return ConfidenceHigh
	case margin >= 0.10:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// topAlternatives 取前 n 个落选候选并标注原因码
func topAlternatives(rest []candidateScore, n int) []Alternative {
	if len(rest) > n {
		rest = rest[:n]
	}
	alternatives := make([]Alternative, 0, len(rest))
	for _, s := range rest {
		alt := Alternative{
			PersonID:   s.person.ID,
			PersonName: s.person.Name,
			Score:      s.total,
			Feasible:   s.feasible,
		}
		if s.feasible {
			alt.Reasons = []string{ReasonOutscored}
		} else {
			alt.Reasons = s.violated
		}
		alternatives = append(alternatives, alt)
	}
	return alternatives
}

// candidateAssignment 为候选人构造临时分配用于增量评估
func candidateAssignment(schedCtx *constraint.Context, person *model.Person, slot *model.TimeSlot) *model.Assignment {
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
