package swap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/pkg/model"
	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// Recommender 换班推荐器
type Recommender struct {
	evaluator *SwapEvaluator
}

// NewRecommender 创建换班推荐器
func NewRecommender(cm *constraint.Manager) *Recommender {
	return &Recommender{
		evaluator: NewSwapEvaluator(cm),
	}
}

// Recommendation 换班推荐
type Recommendation struct {
	TargetPerson  *model.Person     `json:"target_person"`
	Assignment    *model.Assignment `json:"assignment,omitempty"` // 互换时目标人员让出的班次
	Score         float64           `json:"score"`
	Reason        string            `json:"reason"`
	SwapType      string            `json:"swap_type"` // take_over/exchange
	ImpactSummary string            `json:"impact_summary"`
	Rank          int               `json:"rank"`
}

// RecommendOptions 推荐选项
type RecommendOptions struct {
	MaxRecommendations int         `json:"max_recommendations"`
	PreferredPeople    []uuid.UUID `json:"preferred_people"`
	ExcludePeople      []uuid.UUID `json:"exclude_people"`
	AllowExchange      bool        `json:"allow_exchange"`
	MinScore           float64     `json:"min_score"`
}

// DefaultRecommendOptions 默认推荐选项
func DefaultRecommendOptions() *RecommendOptions {
	return &RecommendOptions{
		MaxRecommendations: 5,
		AllowExchange:      true,
		MinScore:           60,
	}
}

// RecommendSwapTargets 为源分配推荐换班对象
// 候选按换班后得分降序排列，同分保持人员注册顺序
func (r *Recommender) RecommendSwapTargets(schedCtx *constraint.Context, set *constraint.AssignmentSet, source *model.Assignment, options *RecommendOptions) []*Recommendation {
	if options == nil {
		options = DefaultRecommendOptions()
	}

	excluded := make(map[uuid.UUID]bool, len(options.ExcludePeople))
	for _, id := range options.ExcludePeople {
		excluded[id] = true
	}
	preferred := make(map[uuid.UUID]bool, len(options.PreferredPeople))
	for _, id := range options.PreferredPeople {
		preferred[id] = true
	}

	recommendations := make([]*Recommendation, 0)
	for _, person := range schedCtx.People {
		if person.ID == source.PersonID || excluded[person.ID] || !person.IsActive() {
			continue
		}

		// 直接接班
		takeOver := r.evaluator.EvaluateSwap(schedCtx, set, &SwapRequest{
			SourceAssignment: source,
			TargetPerson:     person,
		})
		if takeOver.Feasible && takeOver.Score >= options.MinScore {
			score := takeOver.Score
			if preferred[person.ID] {
				score += 10
			}
			recommendations = append(recommendations, &Recommendation{
				TargetPerson:  person,
				Score:         score,
				Reason:        r.generateReason(takeOver, "take_over"),
				SwapType:      "take_over",
				ImpactSummary: r.generateImpactSummary(takeOver),
			})
		}

		if !options.AllowExchange {
			continue
		}

		// 班次互换：目标人员让出一个不同日期的班次
		for _, candidate := range r.findExchangeCandidates(schedCtx, set, person.ID, source) {
			exchange := r.evaluator.EvaluateSwap(schedCtx, set, &SwapRequest{
				SourceAssignment: source,
				TargetPerson:     person,
				TargetAssignment: candidate,
			})
			if !exchange.Feasible || exchange.Score < options.MinScore {
				continue
			}
			score := exchange.Score
			if preferred[person.ID] {
				score += 10
			}
			recommendations = append(recommendations, &Recommendation{
				TargetPerson:  person,
				Assignment:    candidate,
				Score:         score,
				Reason:        r.generateReason(exchange, "exchange"),
				SwapType:      "exchange",
				ImpactSummary: r.generateImpactSummary(exchange),
			})
		}
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Score > recommendations[j].Score
	})

	if len(recommendations) > options.MaxRecommendations {
		recommendations = recommendations[:options.MaxRecommendations]
	}
	for i, rec := range recommendations {
		rec.Rank = i + 1
	}
	return recommendations
}

// FindBestSwapMatch 为某人某天的班次找最佳接班人
// 用于缺勤顶班场景，只考虑直接接班
func (r *Recommender) FindBestSwapMatch(schedCtx *constraint.Context, set *constraint.AssignmentSet, personID uuid.UUID, date string) (*Recommendation, error) {
	var source *model.Assignment
	for _, a := range set.ByPerson(personID) {
		if a.IsOnDate(date) {
			source = a
			break
		}
	}
	if source == nil {
		return nil, fmt.Errorf("人员 %s 在 %s 没有班次", personID, date)
	}

	recommendations := r.RecommendSwapTargets(schedCtx, set, source, &RecommendOptions{
		MaxRecommendations: 1,
		AllowExchange:      false,
		MinScore:           50,
	})
	if len(recommendations) == 0 {
		return nil, fmt.Errorf("没有找到合适的接班人选")
	}
	return recommendations[0], nil
}

// AutoAssignSwap 自动执行换班：取最佳接班人并生成替换分配
// 只在推荐得分不低于 70 时执行，返回的分配尚未写入集合
func (r *Recommender) AutoAssignSwap(schedCtx *constraint.Context, set *constraint.AssignmentSet, source *model.Assignment) (*model.Assignment, error) {
	recommendations := r.RecommendSwapTargets(schedCtx, set, source, &RecommendOptions{
		MaxRecommendations: 1,
		AllowExchange:      false,
		MinScore:           70,
	})
	if len(recommendations) == 0 {
		return nil, fmt.Errorf("没有满足自动换班条件的人选")
	}

	best := recommendations[0]
	replacement := source.Clone()
	replacement.ID = uuid.New()
	replacement.PersonID = best.TargetPerson.ID
	replacement.Role = best.TargetPerson.Role
	replacement.Level = best.TargetPerson.Level
	replacement.Locked = false
	replacement.Score = best.Score
	replacement.Status = "scheduled"
	if p := schedCtx.GetPerson(source.PersonID); p != nil {
		replacement.Notes = fmt.Sprintf("自动换班，接替 %s", p.Name)
	}
	return replacement, nil
}

// findExchangeCandidates 找目标人员可让出的班次
// 跳过与源分配同一天的班次、锁定班次和保护时段上的班次
func (r *Recommender) findExchangeCandidates(schedCtx *constraint.Context, set *constraint.AssignmentSet, personID uuid.UUID, source *model.Assignment) []*model.Assignment {
	candidates := make([]*model.Assignment, 0)
	for _, a := range set.ByPerson(personID) {
		if a.Date == source.Date || a.Locked {
			continue
		}
		if slot := schedCtx.GetSlot(a.SlotID); slot != nil && slot.Protected {
			continue
		}
		candidates = append(candidates, a)
	}
	return candidates
}

// generateReason 生成推荐理由
func (r *Recommender) generateReason(eval *SwapEvaluation, swapType string) string {
	reasons := make([]string, 0, 3)
	if swapType == "exchange" {
		reasons = append(reasons, "双方互换班次，工时保持均衡")
	}
	if eval.Impact.TargetPersonImpact.PreferenceSatisfied {
		reasons = append(reasons, "符合目标人员时段偏好")
	}
	if len(eval.Issues) == 0 {
		reasons = append(reasons, "无约束冲突")
	}
	if len(reasons) == 0 {
		return "可接受的换班选择"
	}
	return strings.Join(reasons, "；")
}

// generateImpactSummary 生成影响摘要
func (r *Recommender) generateImpactSummary(eval *SwapEvaluation) string {
	return fmt.Sprintf("目标人员工时 %+.1f 小时，整体得分变化 %+.1f",
		eval.Impact.TargetPersonImpact.HoursChange,
		eval.Impact.OverallScoreChange)
}
