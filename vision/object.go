// Package vision holds the objects found by comparing scenes.
package vision

import (
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	pc "github.com/scenediff/scenediff/pointcloud"
	"github.com/scenediff/scenediff/vision/classification"
)

// BoundingBox is an axis aligned box.
type BoundingBox struct {
	Center r3.Vector
	Extent r3.Vector
}

// Object extends PointCloud with respective metadata, like the center coordinate.
type Object struct {
	pc.PointCloud
	ID          string
	Centroid    r3.Vector
	BoundingBox *BoundingBox
	Predictions classification.Classifications
}

// NewObject calculates the metadata for an input pointcloud.
func NewObject(cloud pc.PointCloud) (*Object, error) {
	if cloud == nil {
		return NewEmptyObject(), nil
	}
	obj := &Object{PointCloud: cloud, ID: uuid.NewString(), Centroid: pc.CloudCentroid(cloud)}
	if meta := cloud.MetaData(); meta.ValidCount > 0 {
		obj.BoundingBox = &BoundingBox{Center: meta.Center(), Extent: meta.Extent()}
	}
	return obj, nil
}

// NewEmptyObject creates a new empty point cloud with metadata.
func NewEmptyObject() *Object {
	cloud := pc.New()
	return &Object{PointCloud: cloud, ID: uuid.NewString()}
}

// Distance calculates and returns the distance from the center point of the object to the origin.
func (o *Object) Distance() (float64, error) {
	if o.BoundingBox == nil {
		return -1, errors.New("no bounding box on object")
	}
	return o.BoundingBox.Center.Norm(), nil
}

// Label returns the best prediction for the object, or "" when it was not classified.
func (o *Object) Label() string {
	if len(o.Predictions) == 0 {
		return ""
	}
	return o.Predictions[0].Label()
}
