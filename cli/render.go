package cli

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/scenediff/scenediff/pointcloud"
	"github.com/scenediff/scenediff/vision"
	"github.com/scenediff/scenediff/vision/classification"
)

// maxScenePoints bounds the number of background points drawn.
const maxScenePoints = 20000

// RenderScene writes a top down (x, y) scatter plot of the scene with every object drawn in its own
// color and labeled with its predictions at its centroid. The image format follows the extension
// of fn.
func RenderScene(scene pointcloud.PointCloud, objects []*vision.Object, fn string) error {
	p := plot.New()
	p.Title.Text = "scene changes"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	if xys := topDown(scene, maxScenePoints); len(xys) > 0 {
		background, err := plotter.NewScatter(xys)
		if err != nil {
			return err
		}
		background.GlyphStyle.Color = color.Gray{Y: 180}
		background.GlyphStyle.Radius = vg.Points(0.5)
		background.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(background)
	}

	labels := plotter.XYLabels{}
	for i, obj := range objects {
		s, err := plotter.NewScatter(topDown(obj.PointCloud, 0))
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = objectColor(i, len(objects))
		s.GlyphStyle.Radius = vg.Points(1)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)

		labels.XYs = append(labels.XYs, plotter.XY{X: obj.Centroid.X, Y: obj.Centroid.Y})
		labels.Labels = append(labels.Labels, objectLabel(obj))
	}
	if len(objects) > 0 {
		l, err := plotter.NewLabels(labels)
		if err != nil {
			return err
		}
		p.Add(l)
	}
	return p.Save(8*vg.Inch, 8*vg.Inch, fn)
}

// objectLabel lists every prediction of the object with its score, one per line, best first.
// Unclassified objects are named by the start of their ID.
func objectLabel(obj *vision.Object) string {
	if len(obj.Predictions) == 0 {
		return obj.ID[:8]
	}
	return strings.Join(lo.Map(obj.Predictions, func(c classification.Classification, _ int) string {
		return fmt.Sprintf("%s %.2f", c.Label(), c.Score())
	}), "\n")
}

// topDown projects the valid points of a cloud on the xy plane, keeping at most limit points
// spread evenly over the cloud. A limit of 0 keeps every point.
func topDown(cloud pointcloud.PointCloud, limit int) plotter.XYs {
	valid := pointcloud.ValidIndices(cloud)
	step := 1
	if limit > 0 && len(valid) > limit {
		step = (len(valid) + limit - 1) / limit
	}
	xys := make(plotter.XYs, 0, len(valid)/step+1)
	for i := 0; i < len(valid); i += step {
		p, _ := cloud.At(valid[i])
		xys = append(xys, plotter.XY{X: p.X, Y: p.Y})
	}
	return xys
}

// objectColor spreads n hues around the color wheel.
func objectColor(i, n int) color.Color {
	return colorful.Hsv(360*float64(i)/float64(n), 0.85, 0.9)
}
