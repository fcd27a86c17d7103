package classification

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/scenediff/scenediff/logging"
	"github.com/scenediff/scenediff/pointcloud"
	"github.com/scenediff/scenediff/utils"
)

// ShapeClassifierConfig holds the parameters of the shape distribution classifier.
type ShapeClassifierConfig struct {
	// NN is the number of nearest training examples consulted per query.
	NN int `json:"nn"`
	// Bins is the number of histogram bins of a shape signature.
	Bins int `json:"bins"`
	// Samples is the number of random point pairs drawn per signature.
	Samples int `json:"samples"`
	// Seed seeds the pair sampler.
	Seed int64 `json:"seed"`
}

// DefaultShapeClassifierConfig returns the classifier parameters used by the CLI.
func DefaultShapeClassifierConfig() ShapeClassifierConfig {
	return ShapeClassifierConfig{NN: 1, Bins: 64, Samples: 20000, Seed: 1}
}

// CheckValid returns an error describing the first invalid parameter, if any.
func (cfg ShapeClassifierConfig) CheckValid() error {
	if cfg.NN < 1 {
		return errors.Errorf("nn must be at least 1, got %d", cfg.NN)
	}
	if cfg.Bins < 1 {
		return errors.Errorf("bins must be at least 1, got %d", cfg.Bins)
	}
	if cfg.Samples < 1 {
		return errors.Errorf("samples must be at least 1, got %d", cfg.Samples)
	}
	return nil
}

type shapeExample struct {
	label     string
	signature []float64
}

// ShapeClassifier is a nearest neighbor classifier over D2 shape distributions: the histogram of
// distances between random pairs of points of a segment, scaled by the diagonal of its bounding box
// so that the signature does not depend on the size of the object. Signatures are compared with the
// L1 distance, which lies in [0, 2] for two normalized histograms; a distance d gives a confidence of
// 1 - d/2.
type ShapeClassifier struct {
	cfg ShapeClassifierConfig

	mu       sync.RWMutex
	examples []shapeExample
}

// NewShapeClassifier returns a classifier without any training examples.
func NewShapeClassifier(cfg ShapeClassifierConfig) (*ShapeClassifier, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	return &ShapeClassifier{cfg: cfg}, nil
}

// NewShapeClassifierFromDir trains a classifier from a directory holding one subdirectory per label,
// each containing .pcd or .las example clouds.
func NewShapeClassifierFromDir(
	ctx context.Context,
	dir string,
	cfg ShapeClassifierConfig,
	logger logging.Logger,
) (*ShapeClassifier, error) {
	sc, err := NewShapeClassifier(cfg)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type labeledFile struct {
		label string
		path  string
	}
	var files []labeledFile
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		examples, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, example := range examples {
			ext := strings.ToLower(filepath.Ext(example.Name()))
			if example.IsDir() || (ext != ".pcd" && ext != ".las") {
				continue
			}
			files = append(files, labeledFile{entry.Name(), filepath.Join(dir, entry.Name(), example.Name())})
		}
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no training examples found in %q", dir)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(utils.ParallelFactor)
	for _, f := range files {
		f := f
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cloud, err := pointcloud.NewFromFile(f.path, logger)
			if err != nil {
				return err
			}
			return errors.Wrapf(sc.AddExample(f.label, cloud), "training example %q", f.path)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	sc.sortExamples()
	logger.Infow("trained shape classifier", "dir", dir, "examples", len(files), "labels", sc.Labels())
	return sc, nil
}

// AddExample adds a labeled example cloud.
func (sc *ShapeClassifier) AddExample(label string, cloud pointcloud.PointCloud) error {
	if label == "" {
		return errors.New("example label cannot be empty")
	}
	signature, err := ShapeDistribution(cloud, sc.cfg.Bins, sc.cfg.Samples, sc.cfg.Seed)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.examples = append(sc.examples, shapeExample{label: label, signature: signature})
	return nil
}

// sortExamples orders examples by label so results do not depend on loading order.
func (sc *ShapeClassifier) sortExamples() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sort.SliceStable(sc.examples, func(i, j int) bool {
		return sc.examples[i].label < sc.examples[j].label
	})
}

// Labels returns the sorted distinct labels the classifier was trained with.
func (sc *ShapeClassifier) Labels() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	labels := lo.Uniq(lo.Map(sc.examples, func(e shapeExample, _ int) string { return e.label }))
	sort.Strings(labels)
	return labels
}

// Classify returns one classification per label among the NN nearest training examples, scored by
// the closest example of that label, best first.
func (sc *ShapeClassifier) Classify(ctx context.Context, cloud pointcloud.PointCloud) (Classifications, error) {
	_, span := trace.StartSpan(ctx, "classification::ShapeClassifier::Classify")
	defer span.End()

	signature, err := ShapeDistribution(cloud, sc.cfg.Bins, sc.cfg.Samples, sc.cfg.Seed)
	if err != nil {
		return nil, err
	}

	sc.mu.RLock()
	type scored struct {
		label    string
		distance float64
	}
	neighbors := make([]scored, 0, len(sc.examples))
	for _, e := range sc.examples {
		neighbors = append(neighbors, scored{e.label, floats.Distance(signature, e.signature, 1)})
	}
	sc.mu.RUnlock()
	if len(neighbors) == 0 {
		return nil, errors.New("shape classifier has no training examples")
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].distance < neighbors[j].distance
	})
	if len(neighbors) > sc.cfg.NN {
		neighbors = neighbors[:sc.cfg.NN]
	}
	// neighbors are sorted, so the first hit of a label is its closest example
	out := make(Classifications, 0, len(neighbors))
	for _, n := range lo.UniqBy(neighbors, func(n scored) string { return n.label }) {
		out = append(out, NewClassification(1-n.distance/2, n.label))
	}
	return out, nil
}

// ShapeDistribution computes the D2 shape signature of the valid points of a cloud: a normalized
// histogram of the distances between samples random pairs of points, divided by the bounding box
// diagonal.
func ShapeDistribution(cloud pointcloud.PointCloud, bins, samples int, seed int64) ([]float64, error) {
	valid := pointcloud.ValidIndices(cloud)
	if len(valid) < 2 {
		return nil, errors.Wrap(pointcloud.ErrEmptyCloud, "shape distribution needs at least 2 points")
	}
	pts := pointcloud.Positions(cloud, valid)
	diagonal := cloud.MetaData().Extent().Norm()

	histogram := make([]float64, bins)
	if diagonal == 0 {
		// every point is the same, all distances are 0
		histogram[0] = 1
		return histogram, nil
	}

	var ratios []float64
	addPair := func(a, b r3.Vector) {
		ratios = append(ratios, math.Min(a.Distance(b)/diagonal, 1))
	}
	if pairs := len(pts) * (len(pts) - 1) / 2; pairs <= samples {
		ratios = make([]float64, 0, pairs)
		for i := range pts {
			for j := i + 1; j < len(pts); j++ {
				addPair(pts[i], pts[j])
			}
		}
	} else {
		ratios = make([]float64, 0, samples)
		r := rand.New(rand.NewSource(seed)) //nolint:gosec
		for s := 0; s < samples; s++ {
			i := r.Intn(len(pts))
			j := r.Intn(len(pts) - 1)
			if j >= i {
				j++
			}
			addPair(pts[i], pts[j])
		}
	}
	sort.Float64s(ratios)

	// the last divider sits just above 1 so the diagonal itself falls in the last bin
	dividers := floats.Span(make([]float64, bins+1), 0, 1)
	dividers[bins] = math.Nextafter(1, 2)
	stat.Histogram(histogram, dividers, ratios, nil)
	floats.Scale(1/float64(len(ratios)), histogram)
	return histogram, nil
}
