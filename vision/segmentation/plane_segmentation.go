// Package segmentation implements plane and object segmentation algorithms for point clouds.
package segmentation

import (
	"context"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/scenediff/scenediff/pointcloud"
	"github.com/scenediff/scenediff/utils"
)

// PlaneSuppressionConfig holds the parameters of the RANSAC plane fit and of the loop that strips
// planes from a cloud.
type PlaneSuppressionConfig struct {
	// MaxIterations caps the number of RANSAC trials per fit.
	MaxIterations int `json:"max_iterations"`
	// DistanceTolerance is the half width of the inlier band around a plane.
	DistanceTolerance float64 `json:"distance_tolerance"`
	// SizeFloor is the fraction of the original valid points at or below which no new plane is fit.
	SizeFloor float64 `json:"size_floor"`
	// InlierFloor is the number of inliers a plane must exceed to be removed.
	InlierFloor int `json:"inlier_floor"`
	// OptimizeCoefficients refits the best model to its inliers by least squares.
	OptimizeCoefficients bool `json:"optimize_coefficients"`
	// Probability of drawing at least one outlier free sample, used to stop early.
	Probability float64 `json:"probability"`
	// Seed seeds the sampler of every fit so results are reproducible.
	Seed int64 `json:"seed"`
}

// DefaultPlaneSuppressionConfig returns the parameters used for indoor scenes captured by a depth camera.
func DefaultPlaneSuppressionConfig() PlaneSuppressionConfig {
	return PlaneSuppressionConfig{
		MaxIterations:        100,
		DistanceTolerance:    0.02,
		SizeFloor:            0.3,
		InlierFloor:          50000,
		OptimizeCoefficients: true,
		Probability:          0.99,
		Seed:                 1,
	}
}

// CheckValid returns an error describing the first invalid parameter, if any.
func (cfg PlaneSuppressionConfig) CheckValid() error {
	if cfg.MaxIterations < 1 {
		return errors.Errorf("plane max iterations must be at least 1, got %d", cfg.MaxIterations)
	}
	if cfg.DistanceTolerance <= 0 {
		return errors.Errorf("plane distance tolerance must be positive, got %v", cfg.DistanceTolerance)
	}
	if cfg.SizeFloor < 0 || cfg.SizeFloor > 1 {
		return errors.Errorf("plane size floor must be in [0, 1], got %v", cfg.SizeFloor)
	}
	if cfg.InlierFloor < 0 {
		return errors.Errorf("plane inlier floor must be non-negative, got %d", cfg.InlierFloor)
	}
	if cfg.Probability <= 0 || cfg.Probability >= 1 {
		return errors.Errorf("plane probability must be in (0, 1), got %v", cfg.Probability)
	}
	return nil
}

// collinearEpsilon is the smallest cross product norm accepted for a sample of three points.
const collinearEpsilon = 1e-12

// SegmentPlane segments the biggest plane in the 3D Pointcloud.
// MaxIterations is the number of iteration for ransac; fewer are run once
// nIter = log(1-p)/log(1-(1-e)^s) trials are enough, where p is the configured probability, e is the
// outlier ratio of the best model so far and s is subset size (3 for plane).
// DistanceTolerance is the maximum allowed distance to the found plane for a point to belong to it.
// Only valid points are sampled and tested. The returned plane holds the indices of its inliers in
// the input cloud. When no plane can be fit (fewer than 3 valid points, only collinear samples) the
// returned plane has no inliers; that is not an error.
func SegmentPlane(ctx context.Context, cloud pointcloud.PointCloud, cfg PlaneSuppressionConfig) (pointcloud.Plane, error) {
	ctx, span := trace.StartSpan(ctx, "segmentation::SegmentPlane")
	defer span.End()

	valid := pointcloud.ValidIndices(cloud)
	nPoints := len(valid)
	if nPoints < 3 { // if point cloud does not have even 3 points, return a plane with no points
		return pointcloud.NewEmptyPlane(), nil
	}
	pts := pointcloud.Positions(cloud, valid)
	r := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec

	var bestEquation [4]float64
	bestInliers := 0
	found := false

	maxTrials := float64(cfg.MaxIterations)
	maxSkips := 10 * cfg.MaxIterations
	skips := 0
	for trial := 0; float64(trial) < maxTrials && trial < cfg.MaxIterations; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// sample 3 Points from the slice of 3D Points
		n1 := utils.SampleRandomIntRange(0, nPoints-1, r)
		n2 := utils.SampleRandomIntRange(0, nPoints-1, r)
		n3 := utils.SampleRandomIntRange(0, nPoints-1, r)
		equation, ok := equationFromSample(pts[n1], pts[n2], pts[n3])
		if n1 == n2 || n1 == n3 || n2 == n3 || !ok {
			skips++
			if skips >= maxSkips {
				break
			}
			continue
		}
		trial++

		currentInliers := countInliers(equation, pts, cfg.DistanceTolerance)
		// if the current plane contains more points than the previously stored one, save this one as the biggest plane
		if currentInliers > bestInliers || !found {
			bestEquation = equation
			bestInliers = currentInliers
			found = true
			maxTrials = requiredTrials(float64(bestInliers)/float64(nPoints), cfg.Probability, cfg.MaxIterations)
		}
	}
	if !found {
		return pointcloud.NewEmptyPlane(), nil
	}

	inliers := selectInliers(bestEquation, pts, valid, cfg.DistanceTolerance)
	if cfg.OptimizeCoefficients && len(inliers) >= 3 {
		if refined, ok := fitPlane(pointcloud.Positions(cloud, inliers)); ok {
			bestEquation = refined
			inliers = selectInliers(bestEquation, pts, valid, cfg.DistanceTolerance)
		}
	}
	span.AddAttributes(trace.Int64Attribute("inliers", int64(len(inliers))))
	return pointcloud.NewPlaneFromIndices(cloud, bestEquation, inliers), nil
}

// equationFromSample returns the plane through three points with a unit normal. It fails when
// the points are collinear.
func equationFromSample(p1, p2, p3 r3.Vector) ([4]float64, bool) {
	// get 2 vectors that are going to define the plane
	v1 := p2.Sub(p1)
	v2 := p3.Sub(p1)
	// cross product to get the normal unit vector to the plane (v1, v2)
	cross := v1.Cross(v2)
	if cross.Norm() < collinearEpsilon {
		return [4]float64{}, false
	}
	vec := cross.Normalize()
	// to find d, we just need to pick a point and deduce d from the plane equation (vec orth to p1, p2, p3)
	d := -vec.Dot(p1)
	return [4]float64{vec.X, vec.Y, vec.Z, d}, true
}

func distance(equation [4]float64, pt r3.Vector) float64 {
	return equation[0]*pt.X + equation[1]*pt.Y + equation[2]*pt.Z + equation[3]
}

func countInliers(equation [4]float64, pts []r3.Vector, threshold float64) int {
	count := 0
	for _, pt := range pts {
		if math.Abs(distance(equation, pt)) < threshold {
			count++
		}
	}
	return count
}

// selectInliers returns the source indices of the points strictly within threshold of the plane.
func selectInliers(equation [4]float64, pts []r3.Vector, indices []int, threshold float64) []int {
	inliers := make([]int, 0, len(pts))
	for i, pt := range pts {
		if math.Abs(distance(equation, pt)) < threshold {
			inliers = append(inliers, indices[i])
		}
	}
	return inliers
}

// requiredTrials is the number of trials after which a sample made only of inliers has been drawn
// with the given probability, capped at maxIterations.
func requiredTrials(inlierRatio, probability float64, maxIterations int) float64 {
	pNoOutliers := 1 - math.Pow(inlierRatio, 3)
	pNoOutliers = math.Max(math.SmallestNonzeroFloat64, pNoOutliers)
	pNoOutliers = math.Min(1-1e-16, pNoOutliers)
	k := math.Log(1-probability) / math.Log(pNoOutliers)
	return math.Min(k, float64(maxIterations))
}

// fitPlane is the least squares plane through the points: the normal is the eigenvector of the
// smallest eigenvalue of their covariance.
func fitPlane(pts []r3.Vector) ([4]float64, bool) {
	data := mat.NewDense(len(pts), 3, nil)
	var centroid r3.Vector
	for i, p := range pts {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
		data.Set(i, 2, p.Z)
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))

	cov := mat.NewSymDense(3, nil)
	stat.CovarianceMatrix(cov, data, nil)
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return [4]float64{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// eigenvalues are in ascending order
	normal := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	if normal.Norm() == 0 {
		return [4]float64{}, false
	}
	normal = normal.Normalize()
	return [4]float64{normal.X, normal.Y, normal.Z, -normal.Dot(centroid)}, true
}
