// Package optimizer 提供排班优化算法
package optimizer

import (
	"bytes"
	"hash/fnv"
	"sort"

	"github.com/rotaplan/rotaplan/pkg/model"
)

// Solution 表示一个候选排班方案
// Assignments 不含锁定分配，评估时与上下文的锁定分配合并。
type Solution struct {
	Assignments []*model.Assignment

	Objectives []float64 // 各目标的原始值，与目标列表同序
	Normalized []float64 // 归一化到 [0,1]，0 为最优端

	HardPenalty    float64            // 硬约束违反的原始罚分
	HardViolations int                // 硬约束违反条数
	Penalty        float64            // 约束处理器折算进适应度的罚分
	Feasible       bool               // 无硬约束违反
	RelaxedAmounts map[string]float64 // 松弛模式下记录的违反量，约束名 → 总幅度
}

// Clone 深拷贝方案
func (s *Solution) Clone() *Solution {
	clone := &Solution{
		Assignments:    model.CloneAssignments(s.Assignments),
		Objectives:     make([]float64, len(s.Objectives)),
		Normalized:     make([]float64, len(s.Normalized)),
		HardPenalty:    s.HardPenalty,
		HardViolations: s.HardViolations,
		Penalty:        s.Penalty,
		Feasible:       s.Feasible,
	}
	copy(clone.Objectives, s.Objectives)
	copy(clone.Normalized, s.Normalized)
	if s.RelaxedAmounts != nil {
		clone.RelaxedAmounts = make(map[string]float64, len(s.RelaxedAmounts))
		for k, v := range s.RelaxedAmounts {
			clone.RelaxedAmounts[k] = v
		}
	}
	return clone
}

// Dominates 检查帕累托支配关系
// 归一化空间全部目标取最小化方向：所有分量不劣且至少一个分量严格更优。
func (s *Solution) Dominates(other *Solution) bool {
	if len(s.Normalized) == 0 || len(s.Normalized) != len(other.Normalized) {
		return false
	}
	strictly := false
	for i := range s.Normalized {
		if s.Normalized[i] > other.Normalized[i] {
			return false
		}
		if s.Normalized[i] < other.Normalized[i] {
			strictly = true
		}
	}
	return strictly
}

// Hash 计算方案的指纹，用于归档去重与禁忌判断
func (s *Solution) Hash() uint64 {
	return hashAssignments(s.Assignments)
}

// hashAssignments 计算分配集合的哈希 (使用FNV-1a算法)
// 先按 (时段, 人员) 排序再哈希，分配顺序不影响指纹。
func hashAssignments(assignments []*model.Assignment) uint64 {
	if len(assignments) == 0 {
		return 0
	}
	keys := make([][]byte, 0, len(assignments))
	for _, a := range assignments {
		key := make([]byte, 0, 32)
		key = append(key, a.SlotID[:]...)
		key = append(key, a.PersonID[:]...)
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})

	h := fnv.New64a()
	for _, key := range keys {
		h.Write(key)
	}
	return h.Sum64()
}
