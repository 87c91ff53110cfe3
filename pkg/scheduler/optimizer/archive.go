// Package optimizer 提供排班优化算法
package optimizer

import (
	"math"
	"sort"
)

// 归档容量控制模式
const (
	ArchiveCrowding = "crowding" // 超容时淘汰拥挤距离最小的解
	ArchiveEpsilon  = "epsilon"  // epsilon 支配网格，每格保留一个解
)

// Archive 外部归档：可行且互不支配的解集合
type Archive struct {
	capacity  int
	mode      string
	epsilon   float64
	solutions []*Solution
	seen      map[uint64]struct{}
}

// NewArchive 创建外部归档
func NewArchive(capacity int, mode string, epsilon float64) *Archive {
	if capacity <= 0 {
		capacity = 50
	}
	if mode != ArchiveEpsilon {
		mode = ArchiveCrowding
	}
	if epsilon <= 0 {
		epsilon = 0.05
	}
	return &Archive{
		capacity: capacity,
		mode:     mode,
		epsilon:  epsilon,
		seen:     make(map[uint64]struct{}),
	}
}

// Add 尝试把解加入归档，返回是否收录
// 不可行解一律拒绝；被现有成员支配或指纹重复的也拒绝；
// 收录时剔除被新解支配的成员，超容按模式裁剪。
func (ar *Archive) Add(sol *Solution) bool {
	if sol == nil || !sol.Feasible || len(sol.Normalized) == 0 {
		return false
	}

	hash := sol.Hash()
	if _, dup := ar.seen[hash]; dup {
		return false
	}

	for _, member := range ar.solutions {
		if member.Dominates(sol) || equalVectors(member.Normalized, sol.Normalized) {
			return false
		}
	}

	if ar.mode == ArchiveEpsilon && ar.blockedByEpsilonBox(sol) {
		return false
	}

	// 剔除被新解支配的成员
	kept := ar.solutions[:0]
	for _, member := range ar.solutions {
		if sol.Dominates(member) {
			delete(ar.seen, member.Hash())
			continue
		}
		kept = append(kept, member)
	}
	ar.solutions = append(kept, sol.Clone())
	ar.seen[hash] = struct{}{}

	if len(ar.solutions) > ar.capacity {
		ar.truncate()
	}
	return true
}

// blockedByEpsilonBox 检查新解所在 epsilon 网格是否已有更靠近格点原点的占位者
func (ar *Archive) blockedByEpsilonBox(sol *Solution) bool {
	box := ar.boxOf(sol.Normalized)
	for _, member := range ar.solutions {
		if !sameBox(box, ar.boxOf(member.Normalized)) {
			continue
		}
		if boxCornerDistance(member.Normalized, box, ar.epsilon) <= boxCornerDistance(sol.Normalized, box, ar.epsilon) {
			return true
		}
		// 新解更靠近格点原点，占位者出局
		delete(ar.seen, member.Hash())
		ar.removeSolution(member)
		return false
	}
	return false
}

// boxOf 计算归一化向量所属的 epsilon 网格坐标
func (ar *Archive) boxOf(normalized []float64) []int {
	box := make([]int, len(normalized))
	for i, z := range normalized {
		box[i] = int(math.Floor(z / ar.epsilon))
	}
	return box
}

func sameBox(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// boxCornerDistance 计算到所属网格最优角点的欧氏距离
func boxCornerDistance(normalized []float64, box []int, epsilon float64) float64 {
	var sum float64
	for i, z := range normalized {
		d := z - float64(box[i])*epsilon
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (ar *Archive) removeSolution(target *Solution) {
	for i, member := range ar.solutions {
		if member == target {
			ar.solutions = append(ar.solutions[:i], ar.solutions[i+1:]...)
			return
		}
	}
}

// truncate 超容裁剪：淘汰拥挤距离最小的成员保持前沿分布
func (ar *Archive) truncate() {
	for len(ar.solutions) > ar.capacity {
		distances := crowdingDistances(ar.solutions)
		worst := 0
		for i := 1; i < len(distances); i++ {
			if distances[i] < distances[worst] {
				worst = i
			}
		}
		delete(ar.seen, ar.solutions[worst].Hash())
		ar.solutions = append(ar.solutions[:worst], ar.solutions[worst+1:]...)
	}
}

// Solutions 返回归档内容的快照
func (ar *Archive) Solutions() []*Solution {
	out := make([]*Solution, len(ar.solutions))
	copy(out, ar.solutions)
	return out
}

// Len 返回归档内解数量
func (ar *Archive) Len() int {
	return len(ar.solutions)
}

// crowdingDistances 计算每个解的拥挤距离
// 每个目标维度上排序后，边界解取无穷大，内部解累加相邻间隔。
func crowdingDistances(solutions []*Solution) []float64 {
	n := len(solutions)
	distances := make([]float64, n)
	if n <= 2 {
		for i := range distances {
			distances[i] = math.Inf(1)
		}
		return distances
	}

	m := len(solutions[0].Normalized)
	indices := make([]int, n)

	for obj := 0; obj < m; obj++ {
		for i := range indices {
			indices[i] = i
		}
		sort.Slice(indices, func(a, b int) bool {
			return solutions[indices[a]].Normalized[obj] < solutions[indices[b]].Normalized[obj]
		})

		lo := solutions[indices[0]].Normalized[obj]
		hi := solutions[indices[n-1]].Normalized[obj]
		span := hi - lo

		distances[indices[0]] = math.Inf(1)
		distances[indices[n-1]] = math.Inf(1)
		if span == 0 {
			continue
		}
		for k := 1; k < n-1; k++ {
			prev := solutions[indices[k-1]].Normalized[obj]
			next := solutions[indices[k+1]].Normalized[obj]
			distances[indices[k]] += (next - prev) / span
		}
	}
	return distances
}

func equalVectors(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			return false
		}
	}
	return true
}
