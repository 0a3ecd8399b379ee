package knowledge

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Metric 距离度量，构建时确定
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric 解析配置中的度量名称
func ParseMetric(name string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(name))) {
	case MetricCosine, "":
		return MetricCosine, nil
	case MetricEuclidean, "l2":
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", name)
	}
}

// Score 将距离转换为越大越相关的分数
// cosine: 1 - distance，即余弦相似度；euclidean: 1 / (1 + distance)
func (m Metric) Score(distance float64) float64 {
	if m == MetricEuclidean {
		return 1 / (1 + distance)
	}
	return 1 - distance
}

// Neighbor 近邻查询结果
type Neighbor struct {
	Position int
	Distance float64
}

// FlatIndex 精确暴力检索索引，构建后只读，可并发查询
type FlatIndex struct {
	vectors   [][]float32
	norms     []float64
	dimension int
	metric    Metric
}

// NewFlatIndex 一次性构建索引，所有向量维度必须一致
func NewFlatIndex(embeddings [][]float32, metric Metric) (*FlatIndex, error) {
	idx := &FlatIndex{
		vectors: embeddings,
		norms:   make([]float64, len(embeddings)),
		metric:  metric,
	}
	for i, vec := range embeddings {
		if i == 0 {
			idx.dimension = len(vec)
		} else if len(vec) != idx.dimension {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(vec), idx.dimension)
		}
		idx.norms[i] = norm(vec)
	}
	return idx, nil
}

// Len 索引大小
func (x *FlatIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.vectors)
}

// Metric 索引使用的度量
func (x *FlatIndex) Metric() Metric {
	return x.metric
}

// Query 返回距离最近的k个位置，按距离升序，距离相同按位置升序
func (x *FlatIndex) Query(vec []float32, k int) ([]Neighbor, error) {
	if x.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}
	if len(vec) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vec), x.dimension)
	}

	queryNorm := norm(vec)
	all := make([]Neighbor, len(x.vectors))
	for i, candidate := range x.vectors {
		all[i] = Neighbor{Position: i, Distance: x.distance(vec, queryNorm, candidate, x.norms[i])}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance == all[j].Distance {
			return all[i].Position < all[j].Position
		}
		return all[i].Distance < all[j].Distance
	})

	if k > len(all) {
		k = len(all)
	}
	return all[:k], nil
}

func (x *FlatIndex) distance(a []float32, normA float64, b []float32, normB float64) float64 {
	if x.metric == MetricEuclidean {
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	}

	if normA == 0 || normB == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	sim := dot / (normA * normB)
	// 浮点误差可能使相似度略超出[-1,1]
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}
