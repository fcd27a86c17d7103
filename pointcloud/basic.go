package pointcloud

import (
	"github.com/golang/geo/r3"
)

// PointAndData is a tiny struct to facilitate returning nearest neighbors in a neat way.
type PointAndData struct {
	P r3.Vector
	D Data
}

// basicPointCloud is the basic implementation of the PointCloud interface backed by
// a slice of points kept in insertion order.
type basicPointCloud struct {
	points []PointAndData
	width  int
	height int
	meta   MetaData
}

// New returns an empty PointCloud backed by a basicPointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointCloud backed by a basicPointCloud.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points: make([]PointAndData, 0, size),
		meta:   NewMetaData(),
	}
}

// NewOrganized returns an empty PointCloud that expects width*height points appended row by row.
func NewOrganized(width, height int) PointCloud {
	return &basicPointCloud{
		points: make([]PointAndData, 0, width*height),
		width:  width,
		height: height,
		meta:   NewMetaData(),
	}
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(i int) (r3.Vector, Data) {
	pd := cloud.points[i]
	return pd.P, pd.D
}

func (cloud *basicPointCloud) Append(p r3.Vector, d Data) {
	cloud.points = append(cloud.points, PointAndData{P: p, D: d})
	cloud.meta.Merge(p, d)
}

func (cloud *basicPointCloud) Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector, d Data) bool) {
	lowerBound := 0
	upperBound := len(cloud.points)

	if numBatches > 0 {
		batchSize := (len(cloud.points) + numBatches - 1) / numBatches
		lowerBound = myBatch * batchSize
		upperBound = lowerBound + batchSize
	}
	if upperBound > len(cloud.points) {
		upperBound = len(cloud.points)
	}

	for i := lowerBound; i < upperBound; i++ {
		if !fn(i, cloud.points[i].P, cloud.points[i].D) {
			return
		}
	}
}

func (cloud *basicPointCloud) Width() int {
	if cloud.height > 1 {
		return cloud.width
	}
	return len(cloud.points)
}

func (cloud *basicPointCloud) Height() int {
	if cloud.height > 1 {
		return cloud.height
	}
	return 1
}
