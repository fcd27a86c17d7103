package pointcloud

import (
	"context"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

// squares returns n unit squares spaced far apart; with meanK 2 every corner sees its two
// neighbors at distance 1, so every mean distance is exactly 1.
func squares(n int) PointCloud {
	cloud := New()
	for i := 0; i < n; i++ {
		x := float64(i) * 10
		cloud.Append(NewVector(x, 0, 0), NewColoredData(color.NRGBA{uint8(i), 0, 0, 255}))
		cloud.Append(NewVector(x+1, 0, 0), nil)
		cloud.Append(NewVector(x+1, 1, 0), nil)
		cloud.Append(NewVector(x, 1, 0), nil)
	}
	return cloud
}

func TestStatisticalOutlierFilterArgs(t *testing.T) {
	_, err := StatisticalOutlierFilter(0, 1.0)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "meanK")
	_, err = StatisticalOutlierFilter(3, -1.0)
	test.That(t, err, test.ShouldNotBeNil)
	filter, err := StatisticalOutlierFilter(3, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filter, test.ShouldNotBeNil)
}

func TestStatisticalOutlierFilterFixedPoint(t *testing.T) {
	cloud := squares(5)
	filter, err := StatisticalOutlierFilter(2, 1.0)
	test.That(t, err, test.ShouldBeNil)

	filtered, err := filter(cloud)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filtered.Size(), test.ShouldEqual, cloud.Size())

	again, err := filter(filtered)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.Size(), test.ShouldEqual, filtered.Size())

	// order and data are kept
	for i := 0; i < cloud.Size(); i++ {
		p0, d0 := cloud.At(i)
		p1, d1 := again.At(i)
		test.That(t, p1, test.ShouldResemble, p0)
		test.That(t, d1, test.ShouldResemble, d0)
	}
}

func TestStatisticalOutlierFilterRemovesOutlier(t *testing.T) {
	cloud := squares(5)
	cloud.Append(NewVector(1000, 1000, 1000), nil)
	cloud.Append(InvalidVector(), nil)

	filtered, err := FilterOutliers(context.Background(), cloud, 2, 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filtered.Size(), test.ShouldEqual, 20)
	test.That(t, filtered.Size(), test.ShouldBeLessThanOrEqualTo, cloud.Size())
	test.That(t, filtered.MetaData().MaxX, test.ShouldEqual, 41.0)
}

func TestStatisticalOutlierFilterEmpty(t *testing.T) {
	_, err := FilterOutliers(context.Background(), New(), 2, 1.0)
	test.That(t, err, test.ShouldEqual, ErrEmptyCloud)
	test.That(t, errors.Is(err, ErrPreconditionViolation), test.ShouldBeTrue)

	onlyInvalid := New()
	onlyInvalid.Append(InvalidVector(), nil)
	_, err = FilterOutliers(context.Background(), onlyInvalid, 2, 1.0)
	test.That(t, err, test.ShouldEqual, ErrEmptyCloud)
}

func TestStatisticalOutlierFilterSinglePoint(t *testing.T) {
	cloud := New()
	cloud.Append(NewVector(1, 2, 3), nil)
	filtered, err := FilterOutliers(context.Background(), cloud, 5, 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filtered.Size(), test.ShouldEqual, 1)
}

func TestStatisticalOutlierFilterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FilterOutliers(ctx, squares(3), 2, 1.0)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}
