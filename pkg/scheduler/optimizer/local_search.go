// Package optimizer 提供排班优化算法
package optimizer

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rotaplan/rotaplan/pkg/scheduler/constraint"
)

// OptimizationConfig 局部搜索配置
type OptimizationConfig struct {
	MaxIterations    int           `json:"max_iterations"`    // 最大迭代次数
	MaxTime          time.Duration `json:"max_time"`          // 最大运行时间
	InitialTemp      float64       `json:"initial_temp"`      // 模拟退火初始温度
	CoolingRate      float64       `json:"cooling_rate"`      // 冷却速率
	TabuSize         int           `json:"tabu_size"`         // 禁忌表大小
	NeighborhoodSize int           `json:"neighborhood_size"` // 邻域大小
	StopOnPlateau    bool          `json:"stop_on_plateau"`   // 平台期停止
	PlateauThreshold int           `json:"plateau_threshold"` // 平台期阈值（无改进迭代次数）
}

// DefaultOptConfig 默认局部搜索配置
func DefaultOptConfig() *OptimizationConfig {
	return &OptimizationConfig{
		MaxIterations:    1000,
		MaxTime:          30 * time.Second,
		InitialTemp:      100.0,
		CoolingRate:      0.99,
		TabuSize:         50,
		NeighborhoodSize: 20,
		StopOnPlateau:    true,
		PlateauThreshold: 100,
	}
}

// ScoreFunc 对方案打分，越小越优
type ScoreFunc func(sol *Solution) float64

// LocalSearchOptimizer 局部搜索优化器
// 禁忌表加模拟退火接受准则的单解改进，评分函数由调用方注入。
type LocalSearchOptimizer struct {
	config    *OptimizationConfig
	score     ScoreFunc
	neighbors *NeighborhoodGenerator
	tabuList  *TabuList
	rng       *rand.Rand
	mu        sync.Mutex
}

// NewLocalSearchOptimizer 创建局部搜索优化器
func NewLocalSearchOptimizer(config *OptimizationConfig, score ScoreFunc, rng *rand.Rand) *LocalSearchOptimizer {
	if config == nil {
		config = DefaultOptConfig()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &LocalSearchOptimizer{
		config:    config,
		score:     score,
		neighbors: NewNeighborhoodGenerator(rng),
		tabuList:  NewTabuList(config.TabuSize),
		rng:       rng,
	}
}

// Optimize 优化排班方案
func (o *LocalSearchOptimizer) Optimize(ctx context.Context, schedCtx *constraint.Context, initial *Solution) (*Solution, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()

	current := initial.Clone()
	currentScore := o.score(current)
	best := current.Clone()
	bestScore := currentScore

	temperature := o.config.InitialTemp
	noImprovementCount := 0

	log.Printf("开始局部搜索优化: max_iterations=%d, max_time=%s, initial_score=%.2f",
		o.config.MaxIterations, o.config.MaxTime, currentScore)

	for i := 0; i < o.config.MaxIterations; i++ {
		// 检查超时和取消
		select {
		case <-ctx.Done():
			log.Println("局部搜索被中断")
			return best, ctx.Err()
		default:
		}

		if time.Since(start) > o.config.MaxTime {
			log.Println("局部搜索达到最大运行时间")
			break
		}

		// 生成并评分邻域解
		neighbors := o.neighbors.GenerateBatch(current, schedCtx, o.config.NeighborhoodSize)
		if len(neighbors) == 0 {
			continue
		}

		bestNeighbor, neighborScore := o.pickBestNeighbor(neighbors)
		if bestNeighbor == nil {
			continue
		}

		// 检查是否在禁忌表中
		inTabu := o.tabuList.Contains(bestNeighbor.Hash())

		// 模拟退火接受准则
		accept := false
		if neighborScore < currentScore {
			accept = true
		} else if !inTabu {
			delta := neighborScore - currentScore
			if o.rng.Float64() < boltzmannProbability(delta, temperature) {
				accept = true
			}
		}

		if accept {
			current = bestNeighbor
			currentScore = neighborScore
			o.tabuList.Add(current.Hash())

			if currentScore < bestScore {
				best = current.Clone()
				bestScore = currentScore
				noImprovementCount = 0
			} else {
				noImprovementCount++
			}
		} else {
			noImprovementCount++
		}

		// 检查平台期
		if o.config.StopOnPlateau && noImprovementCount >= o.config.PlateauThreshold {
			log.Printf("局部搜索达到平台期阈值: iterations=%d, no_improvement=%d", i, noImprovementCount)
			break
		}

		// 降温
		temperature *= o.config.CoolingRate
	}

	log.Printf("局部搜索完成: initial=%.2f, final=%.2f, elapsed=%s",
		o.score(initial), bestScore, time.Since(start))

	return best, nil
}

// pickBestNeighbor 评分并返回最优邻域解
func (o *LocalSearchOptimizer) pickBestNeighbor(neighbors []*Solution) (*Solution, float64) {
	var best *Solution
	bestScore := math.Inf(1)

	for _, neighbor := range neighbors {
		s := o.score(neighbor)
		if s < bestScore {
			best = neighbor
			bestScore = s
		}
	}
	return best, bestScore
}

// boltzmannProbability 计算模拟退火的接受概率
// delta: 能量差 (new - old)
// temperature: 当前温度
func boltzmannProbability(delta, temperature float64) float64 {
	if delta <= 0 {
		return 1.0 // 更优解总是接受
	}
	if temperature <= 0 {
		return 0.0 // 温度为0时不接受更差的解
	}
	return math.Exp(-delta / temperature)
}

// TabuList 禁忌表（使用uint64哈希作为键提高性能）
type TabuList struct {
	items   map[uint64]struct{}
	order   []uint64
	maxSize int
	mu      sync.RWMutex
}

// NewTabuList 创建禁忌表
func NewTabuList(size int) *TabuList {
	if size <= 0 {
		size = 50
	}
	return &TabuList{
		items:   make(map[uint64]struct{}),
		order:   make([]uint64, 0, size),
		maxSize: size,
	}
}

// Add 添加到禁忌表
func (t *TabuList) Add(key uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[key]; exists {
		return
	}

	// 超出容量时移除最旧的
	if len(t.order) >= t.maxSize {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.items, oldest)
	}

	t.items[key] = struct{}{}
	t.order = append(t.order, key)
}

// Contains 检查是否在禁忌表中
func (t *TabuList) Contains(key uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.items[key]
	return exists
}

// Clear 清空禁忌表
func (t *TabuList) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[uint64]struct{})
	t.order = t.order[:0]
}
