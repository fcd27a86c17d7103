package pointcloud

import (
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()
	test.That(t, pc.Size(), test.ShouldEqual, 0)
	test.That(t, pc.MetaData().ValidCount, test.ShouldEqual, 0)

	p0 := NewVector(0, 0, 0)
	d0 := NewIntensityData(5)
	pc.Append(p0, d0)

	p1 := NewVector(1, 0, 1)
	d1 := NewColoredData(color.NRGBA{255, 0, 0, 255})
	pc.Append(p1, d1)

	pc.Append(InvalidVector(), nil)

	p2 := NewVector(-1, -2, 1)
	pc.Append(p2, nil)

	test.That(t, pc.Size(), test.ShouldEqual, 4)
	p, d := pc.At(1)
	test.That(t, p, test.ShouldResemble, p1)
	test.That(t, d, test.ShouldResemble, d1)
	test.That(t, d, test.ShouldNotResemble, d0)

	p, d = pc.At(2)
	test.That(t, IsValid(p), test.ShouldBeFalse)
	test.That(t, d, test.ShouldBeNil)

	count := 0
	pc.Iterate(0, 0, func(i int, p r3.Vector, d Data) bool {
		test.That(t, i, test.ShouldEqual, count)
		count++
		return true
	})
	test.That(t, count, test.ShouldEqual, 4)

	count = 0
	pc.Iterate(0, 0, func(i int, p r3.Vector, d Data) bool {
		count++
		return i < 1
	})
	test.That(t, count, test.ShouldEqual, 2)

	test.That(t, pc.Width(), test.ShouldEqual, 4)
	test.That(t, pc.Height(), test.ShouldEqual, 1)
	test.That(t, IsOrganized(pc), test.ShouldBeFalse)
}

func TestPointCloudMetaData(t *testing.T) {
	pc := New()
	pc.Append(NewVector(1, 2, 3), NewBasicData())
	pc.Append(NewVector(-1, 5, 0), NewIntensityData(3))
	pc.Append(r3.Vector{X: math.Inf(1), Y: 100, Z: 100}, NewColoredData(color.NRGBA{1, 2, 3, 255}))

	meta := pc.MetaData()
	test.That(t, meta.ValidCount, test.ShouldEqual, 2)
	test.That(t, meta.HasIntensity, test.ShouldBeTrue)
	// the colored point is invalid so it does not count
	test.That(t, meta.HasColor, test.ShouldBeFalse)
	test.That(t, meta.MinX, test.ShouldEqual, -1.0)
	test.That(t, meta.MaxX, test.ShouldEqual, 1.0)
	test.That(t, meta.MinY, test.ShouldEqual, 2.0)
	test.That(t, meta.MaxY, test.ShouldEqual, 5.0)
	test.That(t, meta.MinZ, test.ShouldEqual, 0.0)
	test.That(t, meta.MaxZ, test.ShouldEqual, 3.0)
	test.That(t, meta.Center(), test.ShouldResemble, r3.Vector{X: 0, Y: 3.5, Z: 1.5})
	test.That(t, meta.Extent(), test.ShouldResemble, r3.Vector{X: 2, Y: 3, Z: 3})

	empty := NewMetaData()
	test.That(t, empty.Center(), test.ShouldResemble, r3.Vector{})
	test.That(t, empty.Extent(), test.ShouldResemble, r3.Vector{})
}

func TestIsValid(t *testing.T) {
	test.That(t, IsValid(NewVector(0, 0, 0)), test.ShouldBeTrue)
	test.That(t, IsValid(InvalidVector()), test.ShouldBeFalse)
	test.That(t, IsValid(NewVector(0, math.NaN(), 0)), test.ShouldBeFalse)
	test.That(t, IsValid(NewVector(0, 0, math.Inf(-1))), test.ShouldBeFalse)
}

func TestOrganizedCloud(t *testing.T) {
	pc := NewOrganized(3, 2)
	for i := 0; i < 6; i++ {
		if i == 4 {
			pc.Append(InvalidVector(), nil)
			continue
		}
		pc.Append(NewVector(float64(i%3), float64(i/3), 1), nil)
	}
	test.That(t, pc.Width(), test.ShouldEqual, 3)
	test.That(t, pc.Height(), test.ShouldEqual, 2)
	test.That(t, IsOrganized(pc), test.ShouldBeTrue)
	test.That(t, pc.MetaData().ValidCount, test.ShouldEqual, 5)

	// a partially filled organized cloud does not claim a grid layout
	partial := NewOrganized(3, 2)
	partial.Append(NewVector(0, 0, 0), nil)
	test.That(t, IsOrganized(partial), test.ShouldBeFalse)
}

func TestIterateBatches(t *testing.T) {
	pc := New()
	for i := 0; i < 10; i++ {
		pc.Append(NewVector(float64(i), 0, 0), nil)
	}
	seen := make([]int, 10)
	for batch := 0; batch < 3; batch++ {
		pc.Iterate(3, batch, func(i int, p r3.Vector, d Data) bool {
			test.That(t, p.X, test.ShouldEqual, float64(i))
			seen[i]++
			return true
		})
	}
	for _, s := range seen {
		test.That(t, s, test.ShouldEqual, 1)
	}
}

func TestData(t *testing.T) {
	d := NewBasicData()
	test.That(t, d.HasColor(), test.ShouldBeFalse)
	test.That(t, d.HasIntensity(), test.ShouldBeFalse)

	d = NewColoredIntensityData(color.NRGBA{10, 20, 30, 255}, 400)
	test.That(t, d.HasColor(), test.ShouldBeTrue)
	test.That(t, d.HasIntensity(), test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{10, 20, 30})
	test.That(t, d.Intensity(), test.ShouldEqual, uint16(400))
	test.That(t, d.Color(), test.ShouldResemble, color.NRGBA{10, 20, 30, 255})
}
