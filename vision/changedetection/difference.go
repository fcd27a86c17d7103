package changedetection

import (
	"math"

	"github.com/pkg/errors"

	"github.com/scenediff/scenediff/pointcloud"
)

// Difference compares two index aligned clouds and returns the points of cloud2 that are new or
// moved: those whose counterpart in cloud1 is invalid, and those farther than threshold from their
// counterpart. Invalid points of cloud2 are never returned. The result keeps the order of cloud2.
func Difference(cloud1, cloud2 pointcloud.PointCloud, threshold float64) (pointcloud.PointCloud, error) {
	if cloud1 == nil || cloud2 == nil {
		return nil, errors.Wrap(ErrPreconditionViolation, "cannot compare a nil cloud")
	}
	if cloud1.Size() != cloud2.Size() {
		return nil, errors.Wrapf(ErrPreconditionViolation,
			"clouds must be the same size to compare, got %d and %d", cloud1.Size(), cloud2.Size())
	}
	if cloud1.Size() == 0 {
		return nil, errors.Wrap(ErrPreconditionViolation, "cannot compare empty clouds")
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, errors.Wrapf(ErrPreconditionViolation, "distance threshold must not be negative, got %v", threshold)
	}

	out := pointcloud.New()
	for i := 0; i < cloud2.Size(); i++ {
		p2, d2 := cloud2.At(i)
		if !pointcloud.IsValid(p2) {
			continue
		}
		p1, _ := cloud1.At(i)
		if !pointcloud.IsValid(p1) || p1.Distance(p2) > threshold {
			out.Append(p2, d2)
		}
	}
	return out, nil
}
