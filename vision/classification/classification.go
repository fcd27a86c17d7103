// Package classification implements classifiers that label the objects found in a scene.
package classification

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/scenediff/scenediff/pointcloud"
)

// Classification returns a confidence score of the classification and a label of the class.
type Classification interface {
	Score() float64
	Label() string
}

// Classifications is a list of the Classification object.
type Classifications []Classification

// Classifier labels a point cloud segment. Classifications are returned best first.
type Classifier interface {
	Classify(ctx context.Context, cloud pointcloud.PointCloud) (Classifications, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, cloud pointcloud.PointCloud) (Classifications, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, cloud pointcloud.PointCloud) (Classifications, error) {
	return f(ctx, cloud)
}

// NewClassification creates a simple classification.
func NewClassification(score float64, label string) Classification {
	return &classification{score, label}
}

type classification struct {
	score float64
	label string
}

// Score returns a confidence score of the classification.
func (c *classification) Score() float64 {
	return c.score
}

// Label returns the class label of the object.
func (c *classification) Label() string {
	return c.label
}

// TopN finds the N classifications with the highest confidence scores. Ties keep their input order.
func (cc Classifications) TopN(n int) (Classifications, error) {
	if n < 1 {
		return nil, errors.Errorf("argument n must be a positive int, got %d", n)
	}
	sorted := make(Classifications, len(cc))
	copy(sorted, cc)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted, nil
}
