package segmentation

import (
	"context"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	pc "github.com/scenediff/scenediff/pointcloud"
)

// twoPlanes is a 12000 point floor at z=0 followed by a 5100 point wall at x=2.
func twoPlanes() pc.PointCloud {
	cloud := pc.New()
	appendGrid(cloud, r3.Vector{}, xAxis, yAxis, 120, 100, 0.01)
	appendGrid(cloud, r3.Vector{X: 2, Z: 0.1}, yAxis, zAxis, 100, 51, 0.01)
	return cloud
}

func blobCloud(n int, seed int64) pc.PointCloud {
	r := rand.New(rand.NewSource(seed))
	cloud := pc.NewWithPrealloc(n)
	for i := 0; i < n; i++ {
		cloud.Append(r3.Vector{X: r.Float64(), Y: r.Float64(), Z: r.Float64()}, nil)
	}
	return cloud
}

func TestSuppressPlanesSizeFloorPrecedence(t *testing.T) {
	cloud := twoPlanes()
	cfg := DefaultPlaneSuppressionConfig()
	cfg.InlierFloor = 5000

	// the floor is removed, which leaves 5100 <= 0.3*17100 points so the wall stays
	// even though it is larger than the inlier floor
	planes, remaining, err := FindPlanesInPointCloud(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(planes), test.ShouldEqual, 1)
	test.That(t, len(planes[0].Inliers()), test.ShouldEqual, 12000)
	test.That(t, remaining.Size(), test.ShouldEqual, 5100)
	test.That(t, remaining.MetaData().MinX, test.ShouldEqual, 2.0)
	test.That(t, remaining.MetaData().MaxX, test.ShouldEqual, 2.0)

	// without a size floor both planes go
	cfg.SizeFloor = 0
	planes, remaining, err = FindPlanesInPointCloud(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(planes), test.ShouldEqual, 2)
	test.That(t, remaining.Size(), test.ShouldEqual, 0)

	// input untouched
	test.That(t, cloud.Size(), test.ShouldEqual, 17100)
}

func TestSuppressPlanesInlierFloor(t *testing.T) {
	cloud := twoPlanes()
	cfg := DefaultPlaneSuppressionConfig()
	cfg.InlierFloor = 12000

	out, err := SuppressPlanes(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Size(), test.ShouldEqual, cloud.Size())

	cfg.InlierFloor = 11999
	out, err = SuppressPlanes(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Size(), test.ShouldEqual, 5100)
}

func TestSuppressPlanesIdempotentWithoutPlanes(t *testing.T) {
	cloud := blobCloud(2000, 3)
	cfg := DefaultPlaneSuppressionConfig()
	cfg.InlierFloor = 500

	once, err := SuppressPlanes(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, once.Size(), test.ShouldEqual, cloud.Size())
	twice, err := SuppressPlanes(context.Background(), once, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, twice.Size(), test.ShouldEqual, once.Size())
	for i := 0; i < cloud.Size(); i++ {
		p0, _ := cloud.At(i)
		p2, _ := twice.At(i)
		test.That(t, p2, test.ShouldResemble, p0)
	}
}

func TestMaskPlanesKeepsAlignment(t *testing.T) {
	cloud := twoPlanes()
	cloud.Append(pc.InvalidVector(), nil)
	cfg := DefaultPlaneSuppressionConfig()
	cfg.InlierFloor = 5000

	masked, err := MaskPlanes(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, masked.Size(), test.ShouldEqual, cloud.Size())
	test.That(t, masked.MetaData().ValidCount, test.ShouldEqual, 5100)
	for i := 0; i < cloud.Size(); i++ {
		p, _ := masked.At(i)
		if i < 12000 || i == cloud.Size()-1 {
			test.That(t, pc.IsValid(p), test.ShouldBeFalse)
			continue
		}
		orig, _ := cloud.At(i)
		test.That(t, p, test.ShouldResemble, orig)
	}

	// removal drops the invalid point too
	removed, err := SuppressPlanes(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed.Size(), test.ShouldEqual, 5100)
}

func TestSuppressPlanesMaskedInputUsesValidCount(t *testing.T) {
	// 12000 invalid slots do not count towards the size floor
	cloud := pc.New()
	for i := 0; i < 12000; i++ {
		cloud.Append(pc.InvalidVector(), nil)
	}
	appendGrid(cloud, r3.Vector{X: 2, Z: 0.1}, yAxis, zAxis, 100, 51, 0.01)
	cfg := DefaultPlaneSuppressionConfig()
	cfg.InlierFloor = 5000

	masked, err := MaskPlanes(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, masked.MetaData().ValidCount, test.ShouldEqual, 0)
}

func TestSuppressPlanesErrors(t *testing.T) {
	cfg := DefaultPlaneSuppressionConfig()
	cfg.SizeFloor = -0.1
	_, err := SuppressPlanes(context.Background(), twoPlanes(), cfg)
	test.That(t, err, test.ShouldNotBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = MaskPlanes(ctx, twoPlanes(), DefaultPlaneSuppressionConfig())
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestSuppressPlanesEmpty(t *testing.T) {
	_, err := SuppressPlanes(context.Background(), pc.New(), DefaultPlaneSuppressionConfig())
	test.That(t, err, test.ShouldEqual, pc.ErrEmptyCloud)
	test.That(t, errors.Is(err, pc.ErrPreconditionViolation), test.ShouldBeTrue)

	noReadings := pc.New()
	for i := 0; i < 10; i++ {
		noReadings.Append(pc.InvalidVector(), nil)
	}
	_, err = MaskPlanes(context.Background(), noReadings, DefaultPlaneSuppressionConfig())
	test.That(t, errors.Is(err, pc.ErrPreconditionViolation), test.ShouldBeTrue)
}
