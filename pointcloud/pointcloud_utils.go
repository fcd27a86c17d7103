package pointcloud

import (
	"github.com/golang/geo/r3"
)

// Clone returns an independent copy of the cloud, keeping its organization.
func Clone(cloud PointCloud) PointCloud {
	var out PointCloud
	if IsOrganized(cloud) {
		out = NewOrganized(cloud.Width(), cloud.Height())
	} else {
		out = NewWithPrealloc(cloud.Size())
	}
	cloud.Iterate(0, 0, func(_ int, p r3.Vector, d Data) bool {
		out.Append(p, d)
		return true
	})
	return out
}

// Subset returns a new unorganized cloud holding the points at the given indices, in the
// order the indices are given.
func Subset(cloud PointCloud, indices []int) PointCloud {
	out := NewWithPrealloc(len(indices))
	for _, idx := range indices {
		p, d := cloud.At(idx)
		out.Append(p, d)
	}
	return out
}

// Invalidate returns a copy of the cloud of the same length and organization where the
// points at the given indices are replaced by invalid points. Their data is dropped.
func Invalidate(cloud PointCloud, indices []int) PointCloud {
	drop := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		drop[idx] = struct{}{}
	}
	var out PointCloud
	if IsOrganized(cloud) {
		out = NewOrganized(cloud.Width(), cloud.Height())
	} else {
		out = NewWithPrealloc(cloud.Size())
	}
	cloud.Iterate(0, 0, func(i int, p r3.Vector, d Data) bool {
		if _, ok := drop[i]; ok {
			out.Append(InvalidVector(), nil)
		} else {
			out.Append(p, d)
		}
		return true
	})
	return out
}

// ValidIndices returns the indices of all valid points in index order.
func ValidIndices(cloud PointCloud) []int {
	indices := make([]int, 0, cloud.Size())
	cloud.Iterate(0, 0, func(i int, p r3.Vector, _ Data) bool {
		if IsValid(p) {
			indices = append(indices, i)
		}
		return true
	})
	return indices
}

// RemoveInvalid returns a new cloud holding only the valid points.
func RemoveInvalid(cloud PointCloud) PointCloud {
	return Subset(cloud, ValidIndices(cloud))
}

// CloudCentroid returns the centroid of the valid points of a pointcloud as a vector.
func CloudCentroid(pc PointCloud) r3.Vector {
	if pc.MetaData().ValidCount == 0 {
		// This is done to match the centroid of an empty pointcloud to the zero vector
		return r3.Vector{}
	}
	var sum r3.Vector
	pc.Iterate(0, 0, func(_ int, p r3.Vector, _ Data) bool {
		if IsValid(p) {
			sum = sum.Add(p)
		}
		return true
	})
	return sum.Mul(1 / float64(pc.MetaData().ValidCount))
}

// Positions extracts the positions of the given indices.
func Positions(cloud PointCloud, indices []int) []r3.Vector {
	positions := make([]r3.Vector, len(indices))
	for i, idx := range indices {
		positions[i], _ = cloud.At(idx)
	}
	return positions
}
