package pointcloud

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a point found by a spatial query, addressed by its index in the source cloud.
type Neighbor struct {
	Index    int
	P        r3.Vector
	Distance float64
}

// KDTree is a static spatial index over the valid points of a cloud. It is read-only once
// built and safe for concurrent queries.
type KDTree struct {
	tree *kdtree.Tree
	size int
}

// NewKDTree builds a KDTree over the valid points of the cloud.
func NewKDTree(cloud PointCloud) *KDTree {
	points := make(kdPoints, 0, cloud.Size())
	cloud.Iterate(0, 0, func(i int, p r3.Vector, _ Data) bool {
		if IsValid(p) {
			points = append(points, kdPoint{Vector: p, index: i})
		}
		return true
	})
	kd := &KDTree{size: len(points)}
	if len(points) > 0 {
		kd.tree = kdtree.New(points, false)
	}
	return kd
}

// Size returns the number of indexed points.
func (kd *KDTree) Size() int {
	return kd.size
}

// KNearestNeighbors returns the k nearest indexed points to p, closest first.
// If self is a valid index, the point with that index is left out of the result.
func (kd *KDTree) KNearestNeighbors(p r3.Vector, k, self int) []Neighbor {
	if kd.tree == nil || k <= 0 {
		return nil
	}
	want := k
	if self >= 0 {
		want++
	}
	keeper := kdtree.NewNKeeper(want)
	kd.tree.NearestSet(keeper, kdPoint{Vector: p, index: -1})
	neighbors := collect(keeper.Heap, self)
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// RadiusNearestNeighbors returns every indexed point within distance r of p (inclusive),
// closest first. If self is a valid index, the point with that index is left out of the result.
func (kd *KDTree) RadiusNearestNeighbors(p r3.Vector, r float64, self int) []Neighbor {
	if kd.tree == nil || r < 0 {
		return nil
	}
	keeper := kdtree.NewDistKeeper(r * r)
	kd.tree.NearestSet(keeper, kdPoint{Vector: p, index: -1})
	return collect(keeper.Heap, self)
}

// collect turns a keeper heap into neighbors sorted by distance then index. The keepers seed
// their heap with a sentinel that has no Comparable; it is skipped here.
func collect(heap kdtree.Heap, self int) []Neighbor {
	neighbors := make([]Neighbor, 0, len(heap))
	for _, c := range heap {
		if c.Comparable == nil {
			continue
		}
		kp := c.Comparable.(kdPoint)
		if kp.index == self {
			continue
		}
		neighbors = append(neighbors, Neighbor{Index: kp.index, P: kp.Vector, Distance: math.Sqrt(c.Dist)})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Index < neighbors[j].Index
	})
	return neighbors
}

type kdPoint struct {
	r3.Vector
	index int
}

// Compare returns the signed distance of p from the plane passing through c and
// perpendicular to the dimension d.
func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p kdPoint) Dims() int { return 3 }

// Distance is the squared euclidean distance, as gonum's own point types use.
func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	return p.Sub(q.Vector).Norm2()
}

type kdPoints []kdPoint

func (kp kdPoints) Index(i int) kdtree.Comparable         { return kp[i] }
func (kp kdPoints) Len() int                               { return len(kp) }
func (kp kdPoints) Pivot(d kdtree.Dim) int                 { return kdPlane{Dim: d, kdPoints: kp}.Pivot() }
func (kp kdPoints) Slice(start, end int) kdtree.Interface { return kp[start:end] }

type kdPlane struct {
	kdtree.Dim
	kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	return p.kdPoints[i].Compare(p.kdPoints[j], p.Dim) < 0
}
func (p kdPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.kdPoints = p.kdPoints[start:end]
	return p
}
func (p kdPlane) Swap(i, j int) {
	p.kdPoints[i], p.kdPoints[j] = p.kdPoints[j], p.kdPoints[i]
}
