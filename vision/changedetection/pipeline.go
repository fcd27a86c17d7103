// Package changedetection finds the objects that appeared or moved between two captures of the
// same scene: dominant planes are stripped from both clouds, the clouds are compared point by
// point, sparse noise is filtered out of the difference and what remains is split into clusters.
package changedetection

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"

	"github.com/scenediff/scenediff/logging"
	"github.com/scenediff/scenediff/pointcloud"
	"github.com/scenediff/scenediff/utils"
	"github.com/scenediff/scenediff/vision"
	"github.com/scenediff/scenediff/vision/classification"
	"github.com/scenediff/scenediff/vision/segmentation"
)

// Stage names used to wrap the errors of each step of Run.
const (
	StagePlaneSuppression  = "plane suppression"
	StageDifference        = "difference"
	StageOutlierFilter     = "outlier filter"
	StageClusterExtraction = "cluster extraction"
	StageClassification    = "classification"
)

// Option configures optional parts of a Pipeline.
type Option func(*Pipeline)

// WithClassifier labels the objects returned by Detect.
func WithClassifier(classifier classification.Classifier) Option {
	return func(p *Pipeline) {
		p.classifier = classifier
	}
}

// WithPostprocessor runs after the confidence, label and top N filters of the config.
func WithPostprocessor(postprocessor classification.Postprocessor) Option {
	return func(p *Pipeline) {
		p.extraPostprocessors = append(p.extraPostprocessors, postprocessor)
	}
}

// Pipeline detects changes between two clouds of the same scene. A Pipeline only holds
// immutable state and may be used by several goroutines at once.
type Pipeline struct {
	cfg    Config
	logger logging.Logger

	classifier          classification.Classifier
	extraPostprocessors []classification.Postprocessor
	postprocess         classification.Postprocessor
}

// NewPipeline validates the config and returns a pipeline.
func NewPipeline(cfg Config, logger logging.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	postprocessors := []classification.Postprocessor{
		classification.NewScoreFilter(cfg.ClassifierMinConfidence),
		classification.NewLabelConfidenceFilter(cfg.ClassifierLabelConfidences),
		classification.NewTopNFilter(cfg.ClassifierTopN),
	}
	p.postprocess = classification.Chain(append(postprocessors, p.extraPostprocessors...)...)
	return p, nil
}

// Config returns the configuration of the pipeline.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run returns the clusters of points of cloud2 that are not explained by cloud1, biggest first.
// No change gives an empty result and a nil error. Errors are wrapped with the name of the stage
// that failed.
func (p *Pipeline) Run(ctx context.Context, cloud1, cloud2 pointcloud.PointCloud) ([]pointcloud.PointCloud, error) {
	ctx, span := trace.StartSpan(ctx, "changedetection::Run")
	defer span.End()

	if cloud1 == nil || cloud2 == nil {
		return nil, errors.Wrap(ErrPreconditionViolation, "cannot compare a nil cloud")
	}
	if cloud1.Size() == 0 || cloud2.Size() == 0 {
		return nil, errors.Wrapf(ErrPreconditionViolation,
			"cannot compare empty clouds, got sizes %d and %d", cloud1.Size(), cloud2.Size())
	}
	if p.cfg.PreserveAlignment && cloud1.Size() != cloud2.Size() {
		return nil, errors.Wrapf(ErrPreconditionViolation,
			"clouds must be the same size to compare, got %d and %d", cloud1.Size(), cloud2.Size())
	}
	span.AddAttributes(trace.Int64Attribute("input_size", int64(cloud2.Size())))

	suppressed1, suppressed2, err := p.suppressPlanes(ctx, cloud1, cloud2)
	if err != nil {
		return nil, errors.Wrap(err, StagePlaneSuppression)
	}
	p.logger.CDebugw(ctx, "suppressed planes",
		"size1", cloud1.Size(), "remaining1", suppressed1.MetaData().ValidCount,
		"size2", cloud2.Size(), "remaining2", suppressed2.MetaData().ValidCount)
	if suppressed1.Size() == 0 && suppressed2.Size() == 0 {
		return []pointcloud.PointCloud{}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	diff, err := Difference(suppressed1, suppressed2, p.cfg.DiffDistanceThreshold)
	if err != nil {
		return nil, errors.Wrap(err, StageDifference)
	}
	p.logger.CDebugw(ctx, "computed difference", "points", diff.Size())
	if diff.Size() == 0 {
		return []pointcloud.PointCloud{}, nil
	}

	filtered, err := pointcloud.FilterOutliers(ctx, diff, p.cfg.OutlierNeighborhoodSize, p.cfg.OutlierStdDevMultiplier)
	if err != nil {
		return nil, errors.Wrap(err, StageOutlierFilter)
	}
	p.logger.CDebugw(ctx, "filtered outliers", "before", diff.Size(), "after", filtered.Size())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clusters, err := segmentation.ExtractClusters(ctx, filtered, p.cfg.ClusterConfig())
	if err != nil {
		return nil, errors.Wrap(err, StageClusterExtraction)
	}
	span.AddAttributes(trace.Int64Attribute("clusters", int64(len(clusters))))
	p.logger.CDebugw(ctx, "extracted clusters", "clusters", len(clusters),
		"sizes", lo.Map(clusters, func(c pointcloud.PointCloud, _ int) int { return c.Size() }))
	return clusters, nil
}

// suppressPlanes strips planes from both clouds concurrently. Each side works on its own copy.
func (p *Pipeline) suppressPlanes(
	ctx context.Context,
	cloud1, cloud2 pointcloud.PointCloud,
) (pointcloud.PointCloud, pointcloud.PointCloud, error) {
	suppress := segmentation.SuppressPlanes
	if p.cfg.PreserveAlignment {
		suppress = segmentation.MaskPlanes
	}
	planeCfg := p.cfg.PlaneSuppressionConfig()

	inputs := []pointcloud.PointCloud{cloud1, cloud2}
	outputs := make([]pointcloud.PointCloud, len(inputs))
	fs := make([]utils.SimpleFunc, 0, len(inputs))
	for i, in := range inputs {
		i, in := i, in
		fs = append(fs, func(ctx context.Context) error {
			out, err := suppress(ctx, in, planeCfg)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	elapsed, err := utils.RunInParallel(ctx, fs)
	if err != nil {
		return nil, nil, err
	}
	p.logger.CDebugw(ctx, "plane suppression done", "elapsed", elapsed)

	if outputs[0].Size() != outputs[1].Size() {
		return nil, nil, errors.Wrapf(ErrPreconditionViolation,
			"clouds differ in size after plane suppression, got %d and %d", outputs[0].Size(), outputs[1].Size())
	}
	return outputs[0], outputs[1], nil
}

// Detect runs the pipeline and turns every cluster into an object. When the pipeline has a
// classifier every object is labeled, the predictions filtered by the classifier settings of the
// config.
func (p *Pipeline) Detect(ctx context.Context, cloud1, cloud2 pointcloud.PointCloud) ([]*vision.Object, error) {
	ctx, span := trace.StartSpan(ctx, "changedetection::Detect")
	defer span.End()

	clusters, err := p.Run(ctx, cloud1, cloud2)
	if err != nil {
		return nil, err
	}
	objects := make([]*vision.Object, len(clusters))
	for i, cluster := range clusters {
		obj, err := vision.NewObject(cluster)
		if err != nil {
			return nil, err
		}
		objects[i] = obj
	}
	if p.classifier == nil || len(objects) == 0 {
		return objects, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(utils.ParallelFactor)
	for _, obj := range objects {
		obj := obj
		group.Go(func() error {
			predictions, err := p.classifier.Classify(groupCtx, obj.PointCloud)
			if err != nil {
				return errors.Wrapf(err, "object %s", obj.ID)
			}
			obj.Predictions = p.postprocess(predictions)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.Wrap(err, StageClassification)
	}
	p.logger.Infow("classified objects",
		"labels", lo.Map(objects, func(o *vision.Object, _ int) string { return o.Label() }))
	return objects, nil
}
