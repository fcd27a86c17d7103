package utils

import (
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestSampleRandomIntRange(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := SampleRandomIntRange(3, 7, r)
		test.That(t, v, test.ShouldBeBetweenOrEqual, 3, 7)
	}
	test.That(t, SampleRandomIntRange(4, 4, r), test.ShouldEqual, 4)
}

func TestSmallMath(t *testing.T) {
	test.That(t, MinInt(2, -3), test.ShouldEqual, -3)
	test.That(t, Square(-3), test.ShouldEqual, 9.0)
	test.That(t, Float64AlmostEqual(1, 1+1e-9, 1e-6), test.ShouldBeTrue)
	test.That(t, Float64AlmostEqual(1, 1.1, 1e-6), test.ShouldBeFalse)
}
