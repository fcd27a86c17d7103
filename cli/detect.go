package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"github.com/scenediff/scenediff/logging"
	"github.com/scenediff/scenediff/pointcloud"
	"github.com/scenediff/scenediff/vision"
	"github.com/scenediff/scenediff/vision/changedetection"
	"github.com/scenediff/scenediff/vision/classification"
)

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// newLogger returns a logger writing to the error stream of the app and, when asked, to a rotated
// log file. The closer releases the log file.
func newLogger(c *cli.Context) (logging.Logger, io.Closer, error) {
	level, err := logging.LevelFromString(c.String(logLevelFlag))
	if err != nil {
		return nil, nil, err
	}
	if c.Bool(debugFlag) {
		level = logging.DEBUG
	}
	logger := logging.NewBlankLogger("scenediff")
	logger.SetLevel(level)
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if fn := c.String(logFileFlag); fn != "" {
		appender, closer := logging.NewFileAppender(fn)
		logger.AddAppender(appender)
		return logger, closer, nil
	}
	return logger, io.NopCloser(nil), nil
}

// DetectAction runs the change detection pipeline on two clouds and prints the objects found.
func DetectAction(c *cli.Context) error {
	logger, closer, err := newLogger(c)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(closer.Close)

	cfg, err := changedetection.LoadConfig(c.String(configFlag))
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	var opts []changedetection.Option
	if dir := c.String(trainingFlag); dir != "" {
		classifierCfg := classification.DefaultShapeClassifierConfig()
		classifierCfg.NN = c.Int(nnFlag)
		classifierCfg.Seed = cfg.RandomSeed
		classifier, err := classification.NewShapeClassifierFromDir(c.Context, dir, classifierCfg, logger)
		if err != nil {
			return errors.Wrap(err, "training classifier")
		}
		opts = append(opts, changedetection.WithClassifier(classifier))
	}

	pipeline, err := changedetection.NewPipeline(cfg, logger.Sublogger("pipeline"), opts...)
	if err != nil {
		return err
	}

	before, err := pointcloud.NewFromFile(c.String(cloud1Flag), logger)
	if err != nil {
		return errors.Wrapf(err, "reading %q", c.String(cloud1Flag))
	}
	after, err := pointcloud.NewFromFile(c.String(cloud2Flag), logger)
	if err != nil {
		return errors.Wrapf(err, "reading %q", c.String(cloud2Flag))
	}

	objects, err := pipeline.Detect(c.Context, before, after)
	if err != nil {
		return err
	}
	logger.Infow("detection done", "objects", len(objects))
	printf(c.App.Writer, "%s", objectsTable(objects))

	if fn := c.String(plotFlag); fn != "" {
		if err := RenderScene(after, objects, fn); err != nil {
			return errors.Wrap(err, "rendering scene")
		}
		logger.Infow("wrote plot", "file", fn)
	}
	return nil
}

// objectsTable renders one row per object. Distance is measured from the sensor origin to the
// center of the bounding box.
func objectsTable(objects []*vision.Object) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "ID", "Points", "Centroid", "Extent", "Distance", "Label", "Score"})
	for i, obj := range objects {
		extent := ""
		if obj.BoundingBox != nil {
			e := obj.BoundingBox.Extent
			extent = fmt.Sprintf("%.3f x %.3f x %.3f", e.X, e.Y, e.Z)
		}
		distance := ""
		if d, err := obj.Distance(); err == nil {
			distance = fmt.Sprintf("%.3f", d)
		}
		score := ""
		if len(obj.Predictions) > 0 {
			score = fmt.Sprintf("%.2f", obj.Predictions[0].Score())
		}
		t.AppendRow([]interface{}{
			fmt.Sprintf("%d", i+1),
			obj.ID,
			obj.Size(),
			fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", obj.Centroid.X, obj.Centroid.Y, obj.Centroid.Z),
			extent,
			distance,
			obj.Label(),
			score,
		})
	}
	t.AppendFooter(table.Row{"", "Total", len(objects)})
	return t.Render()
}

// ConfigSchemaAction prints the json schema of the pipeline configuration.
func ConfigSchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(changedetection.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

// VersionAction prints the version of the binary.
func VersionAction(c *cli.Context) error {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return errors.New("error reading build info")
	}
	if c.Bool(debugFlag) {
		printf(c.App.Writer, "%s", info.String())
	}
	version := "?"
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 8 {
			version = setting.Value[:8]
		}
	}
	printf(c.App.Writer, "Version %s Git=%s", strings.TrimSpace(info.Main.Version), version)
	return nil
}
