package pointcloud

import "github.com/golang/geo/r3"

// Plane describes a plane in a point cloud together with the points that were found to lie on it.
type Plane interface {
	// Equation returns the coefficients of ax + by + cz + d = 0.
	Equation() [4]float64
	// Normal returns the normal vector (a, b, c) of the plane.
	Normal() r3.Vector
	// Center returns the centroid of the points on the plane.
	Center() r3.Vector
	// Offset returns d of the plane equation.
	Offset() float64
	// Distance returns the signed distance of a point to the plane.
	Distance(p r3.Vector) float64
	// PointCloud returns the points on the plane.
	PointCloud() (PointCloud, error)
	// Inliers returns the indices of the plane points in the source cloud.
	Inliers() []int
}

type pointcloudPlane struct {
	source   PointCloud
	indices  []int
	equation [4]float64
	center   r3.Vector
}

// NewEmptyPlane initializes an empty plane object.
func NewEmptyPlane() Plane {
	return &pointcloudPlane{source: New()}
}

// NewPlaneFromIndices returns a plane whose points are the given indices of the source cloud.
// The points are only copied out when PointCloud is called.
func NewPlaneFromIndices(source PointCloud, equation [4]float64, indices []int) Plane {
	var sum r3.Vector
	for _, idx := range indices {
		p, _ := source.At(idx)
		sum = sum.Add(p)
	}
	center := r3.Vector{}
	if len(indices) > 0 {
		center = sum.Mul(1 / float64(len(indices)))
	}
	return &pointcloudPlane{source: source, indices: indices, equation: equation, center: center}
}

func (p *pointcloudPlane) Equation() [4]float64 {
	return p.equation
}

func (p *pointcloudPlane) Normal() r3.Vector {
	return r3.Vector{X: p.equation[0], Y: p.equation[1], Z: p.equation[2]}
}

func (p *pointcloudPlane) Center() r3.Vector {
	return p.center
}

func (p *pointcloudPlane) Offset() float64 {
	return p.equation[3]
}

func (p *pointcloudPlane) Distance(pt r3.Vector) float64 {
	norm := p.Normal().Norm()
	if norm == 0 {
		return 0
	}
	return (p.Normal().Dot(pt) + p.equation[3]) / norm
}

func (p *pointcloudPlane) PointCloud() (PointCloud, error) {
	return Subset(p.source, p.indices), nil
}

func (p *pointcloudPlane) Inliers() []int {
	return p.indices
}
