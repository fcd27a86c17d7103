package classification

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/scenediff/scenediff/pointcloud"
)

func TestTopN(t *testing.T) {
	cc := Classifications{
		NewClassification(0.2, "a"),
		NewClassification(0.9, "b"),
		NewClassification(0.5, "c"),
		NewClassification(0.9, "d"),
	}
	top, err := cc.TopN(3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(top), test.ShouldEqual, 3)
	test.That(t, top[0].Label(), test.ShouldEqual, "b")
	test.That(t, top[1].Label(), test.ShouldEqual, "d")
	test.That(t, top[2].Label(), test.ShouldEqual, "c")
	// input untouched
	test.That(t, cc[0].Label(), test.ShouldEqual, "a")

	all, err := cc.TopN(10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(all), test.ShouldEqual, 4)

	_, err = cc.TopN(0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestClassifierFunc(t *testing.T) {
	var c Classifier = ClassifierFunc(func(ctx context.Context, cloud pointcloud.PointCloud) (Classifications, error) {
		return Classifications{NewClassification(float64(cloud.Size()), "size")}, nil
	})
	cloud := pointcloud.New()
	cloud.Append(pointcloud.NewVector(0, 0, 0), nil)
	got, err := c.Classify(context.Background(), cloud)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got[0].Score(), test.ShouldEqual, 1.0)
	test.That(t, got[0].Label(), test.ShouldEqual, "size")
}
