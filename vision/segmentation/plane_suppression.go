package segmentation

import (
	"context"

	"go.opencensus.io/trace"

	"github.com/scenediff/scenediff/pointcloud"
)

// SuppressPlanes strips the dominant planes from a cloud. Planes are fit one at a time with
// SegmentPlane and their inliers removed from a working copy, for as long as the working copy
// holds more than SizeFloor of the original valid points and each new plane has more than
// InlierFloor inliers. The input cloud is not modified. The result holds no invalid points.
// A cloud without valid points gives pointcloud.ErrEmptyCloud.
func SuppressPlanes(ctx context.Context, cloud pointcloud.PointCloud, cfg PlaneSuppressionConfig) (pointcloud.PointCloud, error) {
	_, remaining, err := FindPlanesInPointCloud(ctx, cloud, cfg)
	return remaining, err
}

// MaskPlanes is SuppressPlanes for index aligned comparisons: plane inliers are replaced by
// invalid points instead of being removed, so the result has the same length and organization
// as the input.
func MaskPlanes(ctx context.Context, cloud pointcloud.PointCloud, cfg PlaneSuppressionConfig) (pointcloud.PointCloud, error) {
	_, remaining, err := findPlanes(ctx, cloud, cfg, true)
	return remaining, err
}

// FindPlanesInPointCloud takes in a point cloud and outputs an array of the planes that were
// removed and a point cloud of the leftover points.
func FindPlanesInPointCloud(
	ctx context.Context,
	cloud pointcloud.PointCloud,
	cfg PlaneSuppressionConfig,
) ([]pointcloud.Plane, pointcloud.PointCloud, error) {
	return findPlanes(ctx, cloud, cfg, false)
}

func findPlanes(
	ctx context.Context,
	cloud pointcloud.PointCloud,
	cfg PlaneSuppressionConfig,
	mask bool,
) ([]pointcloud.Plane, pointcloud.PointCloud, error) {
	ctx, span := trace.StartSpan(ctx, "segmentation::findPlanes")
	defer span.End()

	if err := cfg.CheckValid(); err != nil {
		return nil, nil, err
	}
	if cloud.MetaData().ValidCount == 0 {
		return nil, nil, pointcloud.ErrEmptyCloud
	}

	var working pointcloud.PointCloud
	if mask {
		working = pointcloud.Clone(cloud)
	} else {
		working = pointcloud.RemoveInvalid(cloud)
	}
	floor := cfg.SizeFloor * float64(cloud.MetaData().ValidCount)

	planes := make([]pointcloud.Plane, 0)
	for float64(working.MetaData().ValidCount) > floor {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		plane, err := SegmentPlane(ctx, working, cfg)
		if err != nil {
			return nil, nil, err
		}
		inliers := plane.Inliers()
		if len(inliers) <= cfg.InlierFloor {
			break
		}
		planes = append(planes, plane)
		if mask {
			working = pointcloud.Invalidate(working, inliers)
		} else {
			working = removeIndices(working, inliers)
		}
	}
	span.AddAttributes(
		trace.Int64Attribute("planes", int64(len(planes))),
		trace.Int64Attribute("remaining", int64(working.MetaData().ValidCount)),
	)
	return planes, working, nil
}

// removeIndices returns the points of cloud not in indices. indices must be ascending.
func removeIndices(cloud pointcloud.PointCloud, indices []int) pointcloud.PointCloud {
	keep := make([]int, 0, cloud.Size()-len(indices))
	next := 0
	for i := 0; i < cloud.Size(); i++ {
		if next < len(indices) && indices[next] == i {
			next++
			continue
		}
		keep = append(keep, i)
	}
	return pointcloud.Subset(cloud, keep)
}
