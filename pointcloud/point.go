package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// InvalidVector returns the position stored for a point without a sensor reading.
func InvalidVector() r3.Vector {
	nan := math.NaN()
	return r3.Vector{X: nan, Y: nan, Z: nan}
}

// IsValid returns whether every coordinate of the position is finite.
func IsValid(p r3.Vector) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsNaN(p.Z) &&
		!math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0) && !math.IsInf(p.Z, 0)
}

// Data describes data associated single point within a PointCloud. Data is immutable, so the
// same value may be shared by copies of a cloud.
type Data interface {
	// HasColor returns whether or not this point is colored.
	HasColor() bool

	// RGB255 returns, if colored, the RGB components of the color. There
	// is no alpha channel right now and as such the data can be assumed to be
	// premultiplied.
	RGB255() (uint8, uint8, uint8)

	// Color returns the native color of the point.
	Color() color.Color

	// HasIntensity returns whether or not this point carries a return intensity.
	HasIntensity() bool

	// Intensity returns the intensity value, if it exists.
	Intensity() uint16
}

type basicData struct {
	hasColor bool
	c        color.NRGBA

	hasIntensity bool
	intensity    uint16
}

// NewBasicData returns a point that is solely positionally based.
func NewBasicData() Data {
	return basicData{}
}

// NewColoredData returns a point that has both position and color.
func NewColoredData(c color.NRGBA) Data {
	return basicData{c: c, hasColor: true}
}

// NewIntensityData returns a point that has both position and an intensity.
func NewIntensityData(i uint16) Data {
	return basicData{intensity: i, hasIntensity: true}
}

// NewColoredIntensityData returns a point with color and intensity.
func NewColoredIntensityData(c color.NRGBA, i uint16) Data {
	return basicData{c: c, hasColor: true, intensity: i, hasIntensity: true}
}

func (bd basicData) HasColor() bool {
	return bd.hasColor
}

func (bd basicData) RGB255() (uint8, uint8, uint8) {
	return bd.c.R, bd.c.G, bd.c.B
}

func (bd basicData) Color() color.Color {
	return bd.c
}

func (bd basicData) HasIntensity() bool {
	return bd.hasIntensity
}

func (bd basicData) Intensity() uint16 {
	return bd.intensity
}
