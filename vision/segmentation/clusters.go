package segmentation

import (
	"sort"

	"github.com/scenediff/scenediff/pointcloud"
)

// Clusters is a struct for keeping track of the individual segments of a point cloud as they are being built.
// Members holds the source indices of each segment, and Labels assigns each source index to the segment it is
// a part of (-1 when unassigned).
type Clusters struct {
	Members [][]int
	Labels  []int
}

// NewClusters creates an empty new Clusters struct for a cloud of the given size.
func NewClusters(size int) *Clusters {
	labels := make([]int, size)
	for i := range labels {
		labels[i] = -1
	}
	return &Clusters{Members: make([][]int, 0), Labels: labels}
}

// N gives the number of clusters in the partition of the point cloud.
func (c *Clusters) N() int {
	return len(c.Members)
}

// Assigned returns whether the point at the given index belongs to a cluster.
func (c *Clusters) Assigned(index int) bool {
	return c.Labels[index] >= 0
}

// AssignCluster assigns the point at the given index to the cluster with the given label.
func (c *Clusters) AssignCluster(index, label int) {
	for label >= len(c.Members) {
		c.Members = append(c.Members, make([]int, 0))
	}
	c.Labels[index] = label
	c.Members[label] = append(c.Members[label], index)
}

// PointClouds copies every cluster out of the source cloud. Points of a cluster keep their
// source order.
func (c *Clusters) PointClouds(cloud pointcloud.PointCloud) []pointcloud.PointCloud {
	clouds := make([]pointcloud.PointCloud, 0, len(c.Members))
	for _, members := range c.Members {
		sorted := append([]int(nil), members...)
		sort.Ints(sorted)
		clouds = append(clouds, pointcloud.Subset(cloud, sorted))
	}
	return clouds
}
