package pointcloud

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/scenediff/scenediff/utils"
)

// StatisticalOutlierFilter implements the function from PCL to remove noisy points from a point cloud.
// https://pcl.readthedocs.io/projects/tutorials/en/latest/statistical_outlier.html
// This returns a function that can be used to filter on point clouds.
// meanK is the number of neighbors used to compute the mean distance of a point. stdDevThresh is the
// multiplier on the standard deviation of those mean distances above which a point is an outlier.
func StatisticalOutlierFilter(meanK int, stdDevThresh float64) (func(PointCloud) (PointCloud, error), error) {
	if meanK < 1 {
		return nil, errors.Errorf("argument meanK must be a positive int, got %d", meanK)
	}
	if stdDevThresh < 0.0 {
		return nil, errors.Errorf("argument stdDevThresh must be non-negative, got %.3f", stdDevThresh)
	}
	filterFunc := func(pc PointCloud) (PointCloud, error) {
		return FilterOutliers(context.Background(), pc, meanK, stdDevThresh)
	}
	return filterFunc, nil
}

// FilterOutliers removes the points whose mean distance to their meanK nearest neighbors lies
// more than stdDevThresh standard deviations above the mean over the whole cloud. Kept points
// stay in their original order with their data; invalid points are dropped.
func FilterOutliers(ctx context.Context, pc PointCloud, meanK int, stdDevThresh float64) (PointCloud, error) {
	ctx, span := trace.StartSpan(ctx, "pointcloud::FilterOutliers")
	defer span.End()

	if meanK < 1 {
		return nil, errors.Errorf("argument meanK must be a positive int, got %d", meanK)
	}
	if stdDevThresh < 0.0 {
		return nil, errors.Errorf("argument stdDevThresh must be non-negative, got %.3f", stdDevThresh)
	}
	valid := ValidIndices(pc)
	if len(valid) == 0 {
		return nil, ErrEmptyCloud
	}
	kd := NewKDTree(pc)

	// mean distance of each valid point to its neighbors, ordered like valid
	meanDistances := make([]float64, len(valid))
	err := utils.GroupWorkParallel(
		ctx,
		len(valid),
		nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				idx := valid[workNum]
				p, _ := pc.At(idx)
				meanDistances[workNum] = meanNeighborDistance(kd, p, meanK, idx)
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}

	avgDistance, err := stats.Mean(meanDistances)
	if err != nil {
		return nil, err
	}
	stdDev := 0.0
	if len(meanDistances) > 1 {
		stdDev, err = stats.StandardDeviationSample(meanDistances)
		if err != nil {
			return nil, err
		}
	}
	threshold := avgDistance + stdDevThresh*stdDev

	filtered := NewWithPrealloc(len(valid))
	for i, idx := range valid {
		if meanDistances[i] <= threshold {
			p, d := pc.At(idx)
			filtered.Append(p, d)
		}
	}
	return filtered, nil
}

// meanNeighborDistance sums neighbor distances closest first so results do not depend on
// the order the tree reports them in.
func meanNeighborDistance(kd *KDTree, p r3.Vector, k, self int) float64 {
	neighbors := kd.KNearestNeighbors(p, k, self)
	if len(neighbors) == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range neighbors {
		sum += n.Distance
	}
	return sum / float64(len(neighbors))
}
