// Package pointcloud defines an ordered point cloud and provides an implementation for one.
//
// Clouds are ordered sequences. A position may hold an invalid point (any coordinate NaN or
// infinite) meaning the sensor reported no reading there; such points keep their index so
// that two captures from the same viewpoint stay index aligned.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud. Bounds only account for valid points.
type MetaData struct {
	HasColor     bool
	HasIntensity bool
	ValidCount   int

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData creates a new MetaData with bounds that any valid point will expand.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the meta data with the new point. Invalid points are ignored.
func (meta *MetaData) Merge(v r3.Vector, data Data) {
	if !IsValid(v) {
		return
	}
	meta.ValidCount++
	if data != nil {
		if data.HasColor() {
			meta.HasColor = true
		}
		if data.HasIntensity() {
			meta.HasIntensity = true
		}
	}

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// Center returns the center of the bounding box of the valid points.
func (meta MetaData) Center() r3.Vector {
	if meta.ValidCount == 0 {
		return r3.Vector{}
	}
	return r3.Vector{
		X: (meta.MaxX + meta.MinX) / 2,
		Y: (meta.MaxY + meta.MinY) / 2,
		Z: (meta.MaxZ + meta.MinZ) / 2,
	}
}

// Extent returns the side lengths of the bounding box of the valid points.
func (meta MetaData) Extent() r3.Vector {
	if meta.ValidCount == 0 {
		return r3.Vector{}
	}
	return r3.Vector{X: meta.MaxX - meta.MinX, Y: meta.MaxY - meta.MinY, Z: meta.MaxZ - meta.MinZ}
}

// PointCloud is an ordered container of points. Points are addressed by index; the index of
// a point is significant when comparing two organized captures of the same scene.
type PointCloud interface {
	// Size returns the number of points in the cloud, valid or not.
	Size() int

	// MetaData returns meta data
	MetaData() MetaData

	// At returns the point and its data at index i.
	At(i int) (r3.Vector, Data)

	// Append adds a point at the end of the cloud.
	Append(p r3.Vector, d Data)

	// Iterate iterates over all points in the cloud in index order and calls the given
	// function for each point. If the supplied function returns false,
	// iteration will stop after the function returns.
	// numBatches lets you divide up the work. 0 means don't divide
	// myBatch is used iff numBatches > 0 and is which batch you want
	Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector, d Data) bool)

	// Width is the number of points in a row for organized clouds, the size otherwise.
	Width() int

	// Height is the number of rows for organized clouds, 1 otherwise.
	Height() int
}

// IsOrganized returns whether the cloud carries a 2D sensor grid layout.
func IsOrganized(cloud PointCloud) bool {
	return cloud.Height() > 1 && cloud.Width()*cloud.Height() == cloud.Size()
}
