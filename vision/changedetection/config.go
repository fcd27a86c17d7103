package changedetection

import (
	"encoding/json"
	"math"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/scenediff/scenediff/vision/segmentation"
)

// EnvPrefix is the prefix of environment variables that override configuration keys, e.g.
// SCENEDIFF_DIFF_DISTANCE_THRESHOLD.
const EnvPrefix = "SCENEDIFF_"

// Config holds every tunable of a Pipeline.
type Config struct {
	PlaneDistanceTolerance    float64 `json:"plane_distance_tolerance" yaml:"plane_distance_tolerance"`
	PlaneSizeFloor            float64 `json:"plane_size_floor" yaml:"plane_size_floor"`
	PlaneInlierFloor          int     `json:"plane_inlier_floor" yaml:"plane_inlier_floor"`
	PlaneMaxIterations        int     `json:"plane_max_iterations" yaml:"plane_max_iterations"`
	PlaneProbability          float64 `json:"plane_probability" yaml:"plane_probability"`
	PlaneOptimizeCoefficients bool    `json:"plane_optimize_coefficients" yaml:"plane_optimize_coefficients"`
	RandomSeed                int64   `json:"random_seed" yaml:"random_seed"`
	DiffDistanceThreshold     float64 `json:"diff_distance_threshold" yaml:"diff_distance_threshold"`
	OutlierNeighborhoodSize   int     `json:"outlier_neighborhood_size" yaml:"outlier_neighborhood_size"`
	OutlierStdDevMultiplier   float64 `json:"outlier_std_dev_multiplier" yaml:"outlier_std_dev_multiplier"`
	ClusterProximityTolerance float64 `json:"cluster_proximity_tolerance" yaml:"cluster_proximity_tolerance"`
	ClusterMinSize            int     `json:"cluster_min_size" yaml:"cluster_min_size"`
	ClusterMaxSize            int     `json:"cluster_max_size" yaml:"cluster_max_size"`
	// PreserveAlignment masks planes instead of removing them so both clouds stay index aligned.
	PreserveAlignment       bool    `json:"preserve_alignment" yaml:"preserve_alignment"`
	ClassifierMinConfidence float64 `json:"classifier_min_confidence" yaml:"classifier_min_confidence"`
	// ClassifierTopN keeps the N best predictions per object, 0 keeps all of them.
	ClassifierTopN int `json:"classifier_top_n" yaml:"classifier_top_n"`
	// ClassifierLabelConfidences keeps only the listed labels, each above its own minimum score.
	// Labels match case insensitively. Empty keeps every label.
	ClassifierLabelConfidences map[string]float64 `json:"classifier_label_confidences,omitempty" yaml:"classifier_label_confidences,omitempty"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	planes := segmentation.DefaultPlaneSuppressionConfig()
	clusters := segmentation.DefaultClusterConfig()
	return Config{
		PlaneDistanceTolerance:    planes.DistanceTolerance,
		PlaneSizeFloor:            planes.SizeFloor,
		PlaneInlierFloor:          planes.InlierFloor,
		PlaneMaxIterations:        planes.MaxIterations,
		PlaneProbability:          planes.Probability,
		PlaneOptimizeCoefficients: planes.OptimizeCoefficients,
		RandomSeed:                planes.Seed,
		DiffDistanceThreshold:     0.01,
		OutlierNeighborhoodSize:   50,
		OutlierStdDevMultiplier:   1.0,
		ClusterProximityTolerance: clusters.Tolerance,
		ClusterMinSize:            clusters.MinSize,
		ClusterMaxSize:            clusters.MaxSize,
		PreserveAlignment:         true,
	}
}

// PlaneSuppressionConfig returns the plane suppression parameters of the config.
func (cfg Config) PlaneSuppressionConfig() segmentation.PlaneSuppressionConfig {
	return segmentation.PlaneSuppressionConfig{
		MaxIterations:        cfg.PlaneMaxIterations,
		DistanceTolerance:    cfg.PlaneDistanceTolerance,
		SizeFloor:            cfg.PlaneSizeFloor,
		InlierFloor:          cfg.PlaneInlierFloor,
		OptimizeCoefficients: cfg.PlaneOptimizeCoefficients,
		Probability:          cfg.PlaneProbability,
		Seed:                 cfg.RandomSeed,
	}
}

// ClusterConfig returns the cluster extraction parameters of the config.
func (cfg Config) ClusterConfig() segmentation.ClusterConfig {
	return segmentation.ClusterConfig{
		Tolerance: cfg.ClusterProximityTolerance,
		MinSize:   cfg.ClusterMinSize,
		MaxSize:   cfg.ClusterMaxSize,
	}
}

// CheckValid returns an error describing the first invalid parameter, if any.
func (cfg Config) CheckValid() error {
	if cfg.PlaneSizeFloor < 0 || cfg.PlaneSizeFloor > 1 || math.IsNaN(cfg.PlaneSizeFloor) {
		return errors.Wrapf(ErrPreconditionViolation, "plane_size_floor must be in [0, 1], got %v", cfg.PlaneSizeFloor)
	}
	if !(cfg.PlaneDistanceTolerance > 0) {
		return errors.Wrapf(ErrPreconditionViolation,
			"plane_distance_tolerance must be positive, got %v", cfg.PlaneDistanceTolerance)
	}
	if cfg.PlaneInlierFloor < 0 {
		return errors.Wrapf(ErrPreconditionViolation, "plane_inlier_floor must not be negative, got %d", cfg.PlaneInlierFloor)
	}
	if cfg.PlaneMaxIterations < 1 {
		return errors.Wrapf(ErrPreconditionViolation, "plane_max_iterations must be at least 1, got %d", cfg.PlaneMaxIterations)
	}
	if cfg.PlaneProbability <= 0 || cfg.PlaneProbability >= 1 {
		return errors.Wrapf(ErrPreconditionViolation, "plane_probability must be in (0, 1), got %v", cfg.PlaneProbability)
	}
	if cfg.DiffDistanceThreshold < 0 || math.IsNaN(cfg.DiffDistanceThreshold) {
		return errors.Wrapf(ErrPreconditionViolation,
			"diff_distance_threshold must not be negative, got %v", cfg.DiffDistanceThreshold)
	}
	if cfg.OutlierNeighborhoodSize < 1 {
		return errors.Wrapf(ErrPreconditionViolation,
			"outlier_neighborhood_size must be at least 1, got %d", cfg.OutlierNeighborhoodSize)
	}
	if cfg.OutlierStdDevMultiplier < 0 || math.IsNaN(cfg.OutlierStdDevMultiplier) {
		return errors.Wrapf(ErrPreconditionViolation,
			"outlier_std_dev_multiplier must not be negative, got %v", cfg.OutlierStdDevMultiplier)
	}
	if !(cfg.ClusterProximityTolerance > 0) {
		return errors.Wrapf(ErrPreconditionViolation,
			"cluster_proximity_tolerance must be positive, got %v", cfg.ClusterProximityTolerance)
	}
	if cfg.ClusterMinSize < 1 {
		return errors.Wrapf(ErrPreconditionViolation, "cluster_min_size must be at least 1, got %d", cfg.ClusterMinSize)
	}
	if cfg.ClusterMaxSize != 0 && cfg.ClusterMaxSize < cfg.ClusterMinSize {
		return errors.Wrapf(ErrPreconditionViolation,
			"cluster_max_size %d is smaller than cluster_min_size %d", cfg.ClusterMaxSize, cfg.ClusterMinSize)
	}
	if cfg.ClassifierMinConfidence < 0 || cfg.ClassifierMinConfidence > 1 {
		return errors.Wrapf(ErrPreconditionViolation,
			"classifier_min_confidence must be in [0, 1], got %v", cfg.ClassifierMinConfidence)
	}
	if cfg.ClassifierTopN < 0 {
		return errors.Wrapf(ErrPreconditionViolation, "classifier_top_n must not be negative, got %d", cfg.ClassifierTopN)
	}
	for label, conf := range cfg.ClassifierLabelConfidences {
		if conf < 0 || conf > 1 || math.IsNaN(conf) {
			return errors.Wrapf(ErrPreconditionViolation,
				"classifier_label_confidences[%q] must be in [0, 1], got %v", label, conf)
		}
	}
	return nil
}

// ConvertAttributes overlays an attribute map keyed like the json form of the config.
func (cfg *Config) ConvertAttributes(attributes map[string]interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: cfg})
	if err != nil {
		return err
	}
	return decoder.Decode(attributes)
}

// LoadConfig layers the defaults, an optional JSON or YAML file and SCENEDIFF_ environment
// variables, then validates the result. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	defaults, err := json.Marshal(DefaultConfig())
	if err != nil {
		return Config{}, err
	}
	// json is a subset of yaml
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return Config{}, errors.Wrap(err, "loading defaults")
	}

	if path != "" {
		//nolint:gosec
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "reading config file")
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "parsing config file %q", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, errors.Wrap(err, "loading environment")
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.CheckValid(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Schema returns the JSON schema of Config.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}
