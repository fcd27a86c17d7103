package segmentation

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/scenediff/scenediff/pointcloud"
)

// ClusterConfig holds the parameters of euclidean cluster extraction.
type ClusterConfig struct {
	// Tolerance is the largest distance between two points of the same cluster.
	Tolerance float64 `json:"tolerance"`
	// MinSize is the smallest number of points a cluster must have to be returned.
	MinSize int `json:"min_size"`
	// MaxSize is the largest number of points a cluster may have to be returned. 0 means no limit.
	MaxSize int `json:"max_size"`
}

// DefaultClusterConfig returns the tolerance and size limits used for tabletop sized objects.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{Tolerance: 0.02, MinSize: 1000}
}

// CheckValid returns an error describing the first invalid parameter, if any.
func (cfg ClusterConfig) CheckValid() error {
	if cfg.Tolerance <= 0 {
		return errors.Errorf("cluster tolerance must be positive, got %v", cfg.Tolerance)
	}
	if cfg.MinSize < 0 {
		return errors.Errorf("cluster min size must be non-negative, got %d", cfg.MinSize)
	}
	if cfg.MaxSize < 0 {
		return errors.Errorf("cluster max size must be non-negative, got %d", cfg.MaxSize)
	}
	if cfg.MaxSize > 0 && cfg.MaxSize < cfg.MinSize {
		return errors.Errorf("cluster max size %d is smaller than min size %d", cfg.MaxSize, cfg.MinSize)
	}
	return nil
}

// ExtractClusters uses radius based nearest neighbors to segment the cloud, and then prunes away
// segments that do not pass the size limits. Clusters are returned largest first, ties broken by
// the lowest source index they contain.
func ExtractClusters(ctx context.Context, cloud pointcloud.PointCloud, cfg ClusterConfig) ([]pointcloud.PointCloud, error) {
	ctx, span := trace.StartSpan(ctx, "segmentation::ExtractClusters")
	defer span.End()

	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	if cloud.MetaData().ValidCount == 0 {
		return nil, pointcloud.ErrEmptyCloud
	}
	clusters, err := RadiusBasedNearestNeighbors(ctx, cloud, cfg.Tolerance)
	if err != nil {
		return nil, err
	}

	kept := make([][]int, 0, clusters.N())
	for _, members := range clusters.Members {
		if len(members) < cfg.MinSize {
			continue
		}
		if cfg.MaxSize > 0 && len(members) > cfg.MaxSize {
			continue
		}
		kept = append(kept, members)
	}
	// every cluster is seeded from its lowest index, so members[0] is its first source index
	sort.SliceStable(kept, func(i, j int) bool {
		if len(kept[i]) != len(kept[j]) {
			return len(kept[i]) > len(kept[j])
		}
		return kept[i][0] < kept[j][0]
	})
	clusters.Members = kept
	span.AddAttributes(trace.Int64Attribute("clusters", int64(len(kept))))
	return clusters.PointClouds(cloud), nil
}

// RadiusBasedNearestNeighbors partitions the valid points of the cloud, grouping points within a given
// radius of each other. Described in the paper "A Clustering Method for Efficient Segmentation of 3D Laser
// Data" by Klasing et al. 2008. Clusters are grown breadth first from seeds taken in index order.
func RadiusBasedNearestNeighbors(ctx context.Context, cloud pointcloud.PointCloud, radius float64) (*Clusters, error) {
	kd := pointcloud.NewKDTree(cloud)
	clusters := NewClusters(cloud.Size())
	queue := make([]int, 0)
	for seed := 0; seed < cloud.Size(); seed++ {
		p, _ := cloud.At(seed)
		// skip if point already is assigned cluster
		if !pointcloud.IsValid(p) || clusters.Assigned(seed) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label := clusters.N()
		clusters.AssignCluster(seed, label)
		queue = append(queue[:0], seed)
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			pt, _ := cloud.At(idx)
			for _, n := range kd.RadiusNearestNeighbors(pt, radius, idx) {
				if clusters.Assigned(n.Index) {
					continue
				}
				clusters.AssignCluster(n.Index, label)
				queue = append(queue, n.Index)
			}
		}
	}
	return clusters, nil
}
