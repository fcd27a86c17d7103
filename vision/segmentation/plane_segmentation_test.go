package segmentation

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	pc "github.com/scenediff/scenediff/pointcloud"
)

// appendGrid appends an nx by ny grid of points spaced by step, spanning the two given axes from origin.
func appendGrid(cloud pc.PointCloud, origin, axis1, axis2 r3.Vector, nx, ny int, step float64) {
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			p := origin.Add(axis1.Mul(float64(i) * step)).Add(axis2.Mul(float64(j) * step))
			cloud.Append(p, nil)
		}
	}
}

// appendBlock appends an nx by ny by nz block of points spaced by step starting at origin.
func appendBlock(cloud pc.PointCloud, origin r3.Vector, nx, ny, nz int, step float64) {
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				cloud.Append(origin.Add(r3.Vector{X: float64(i) * step, Y: float64(j) * step, Z: float64(k) * step}), nil)
			}
		}
	}
}

var (
	xAxis = r3.Vector{X: 1}
	yAxis = r3.Vector{Y: 1}
	zAxis = r3.Vector{Z: 1}
)

func TestPlaneSuppressionConfig(t *testing.T) {
	cfg := DefaultPlaneSuppressionConfig()
	test.That(t, cfg.CheckValid(), test.ShouldBeNil)

	bad := cfg
	bad.MaxIterations = 0
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "max iterations")
	bad = cfg
	bad.DistanceTolerance = 0
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "distance tolerance")
	bad = cfg
	bad.SizeFloor = 1.5
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "size floor must be in [0, 1]")
	bad = cfg
	bad.InlierFloor = -1
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "inlier floor")
	bad = cfg
	bad.Probability = 1
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "probability")
}

func TestSegmentPlane(t *testing.T) {
	cloud := pc.New()
	appendGrid(cloud, r3.Vector{Z: 0.5}, xAxis, yAxis, 50, 50, 0.01)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		cloud.Append(r3.Vector{X: r.Float64(), Y: r.Float64(), Z: 0.6 + 0.4*r.Float64()}, nil)
	}

	plane, err := SegmentPlane(context.Background(), cloud, DefaultPlaneSuppressionConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(plane.Inliers()), test.ShouldEqual, 2500)
	test.That(t, math.Abs(plane.Normal().Dot(zAxis)), test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, math.Abs(plane.Distance(r3.Vector{Z: 0.5})), test.ShouldBeLessThan, 1e-9)
	for i, idx := range plane.Inliers() {
		test.That(t, idx, test.ShouldEqual, i)
	}
	test.That(t, plane.Center().Z, test.ShouldAlmostEqual, 0.5)
}

func TestSegmentPlaneIsDeterministic(t *testing.T) {
	cloud := pc.New()
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 3000; i++ {
		cloud.Append(r3.Vector{X: r.Float64(), Y: r.Float64(), Z: 0.01 * r.Float64()}, nil)
	}
	cfg := DefaultPlaneSuppressionConfig()
	cfg.OptimizeCoefficients = false
	plane1, err := SegmentPlane(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	plane2, err := SegmentPlane(context.Background(), cloud, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plane1.Equation(), test.ShouldResemble, plane2.Equation())
	test.That(t, plane1.Inliers(), test.ShouldResemble, plane2.Inliers())
}

func TestSegmentPlaneSkipsInvalidPoints(t *testing.T) {
	cloud := pc.New()
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			if (i+j)%3 == 0 {
				cloud.Append(pc.InvalidVector(), nil)
				continue
			}
			cloud.Append(r3.Vector{X: float64(i) * 0.01, Y: float64(j) * 0.01}, nil)
		}
	}
	plane, err := SegmentPlane(context.Background(), cloud, DefaultPlaneSuppressionConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(plane.Inliers()), test.ShouldEqual, cloud.MetaData().ValidCount)
	for _, idx := range plane.Inliers() {
		p, _ := cloud.At(idx)
		test.That(t, pc.IsValid(p), test.ShouldBeTrue)
	}
}

func TestSegmentPlaneDegenerate(t *testing.T) {
	cfg := DefaultPlaneSuppressionConfig()

	tiny := pc.New()
	tiny.Append(r3.Vector{}, nil)
	tiny.Append(r3.Vector{X: 1}, nil)
	tiny.Append(pc.InvalidVector(), nil)
	plane, err := SegmentPlane(context.Background(), tiny, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plane.Inliers(), test.ShouldBeEmpty)

	line := pc.New()
	for i := 0; i < 100; i++ {
		line.Append(r3.Vector{X: float64(i) * 0.01}, nil)
	}
	plane, err = SegmentPlane(context.Background(), line, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plane.Inliers(), test.ShouldBeEmpty)
}

func TestSegmentPlaneCancelled(t *testing.T) {
	cloud := pc.New()
	appendGrid(cloud, r3.Vector{}, xAxis, yAxis, 10, 10, 0.01)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SegmentPlane(ctx, cloud, DefaultPlaneSuppressionConfig())
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestFitPlane(t *testing.T) {
	pts := []r3.Vector{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0.5, Y: 0.5, Z: 1}}
	eq, ok := fitPlane(pts)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(eq[2]), test.ShouldAlmostEqual, 1.0)
	test.That(t, distance(eq, r3.Vector{X: 3, Y: -2, Z: 1}), test.ShouldAlmostEqual, 0.0)
}

func TestRequiredTrials(t *testing.T) {
	test.That(t, requiredTrials(0, 0.99, 100), test.ShouldEqual, 100.0)
	test.That(t, requiredTrials(1, 0.99, 100), test.ShouldBeLessThan, 1.0)
	half := requiredTrials(0.5, 0.99, 1000)
	test.That(t, half, test.ShouldAlmostEqual, math.Log(0.01)/math.Log(0.875))
}
