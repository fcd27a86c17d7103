package classification

import (
	"testing"

	"go.viam.com/test"
)

func labels(cc Classifications) []string {
	out := make([]string, 0, len(cc))
	for _, c := range cc {
		out = append(out, c.Label())
	}
	return out
}

func TestPostprocessors(t *testing.T) {
	cc := Classifications{
		NewClassification(0.3, "Chair"),
		NewClassification(0.8, "box"),
		NewClassification(0.6, "bottle"),
	}

	test.That(t, labels(NewScoreFilter(0.5)(cc)), test.ShouldResemble, []string{"box", "bottle"})
	test.That(t, labels(NewLabelFilter("chair", "BOTTLE")(cc)), test.ShouldResemble, []string{"Chair", "bottle"})
	test.That(t, labels(NewLabelFilter()(cc)), test.ShouldResemble, []string{"Chair", "box", "bottle"})

	confFilter := NewLabelConfidenceFilter(map[string]float64{"CHAIR": 0.5, "bottle": 0.5})
	test.That(t, labels(confFilter(cc)), test.ShouldResemble, []string{"bottle"})
	test.That(t, labels(NewLabelConfidenceFilter(nil)(cc)), test.ShouldResemble, []string{"Chair", "box", "bottle"})

	test.That(t, labels(NewTopNFilter(1)(cc)), test.ShouldResemble, []string{"box"})
	test.That(t, labels(NewTopNFilter(0)(cc)), test.ShouldResemble, []string{"Chair", "box", "bottle"})

	chained := Chain(NewScoreFilter(0.5), NewTopNFilter(1))
	test.That(t, labels(chained(cc)), test.ShouldResemble, []string{"box"})
	test.That(t, labels(Chain()(cc)), test.ShouldResemble, []string{"Chair", "box", "bottle"})
}
