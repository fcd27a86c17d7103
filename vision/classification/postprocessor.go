package classification

import "strings"

// Postprocessor defines a function that filters/modifies on an incoming array of Classifications.
// Postprocessors keep the order of their input.
type Postprocessor func(Classifications) Classifications

// NewScoreFilter returns a function that filters out classifications below a certain confidence
// score.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in Classifications) Classifications {
		out := make(Classifications, 0, len(in))
		for _, c := range in {
			if c.Score() >= conf {
				out = append(out, c)
			}
		}
		return out
	}
}

// NewLabelFilter returns a function that filters out classifications without one of the chosen labels.
// Labels are matched case insensitively. Does not filter when no labels are given.
func NewLabelFilter(labels ...string) Postprocessor {
	theLabels := make(map[string]struct{}, len(labels))
	for _, name := range labels {
		theLabels[strings.ToLower(name)] = struct{}{}
	}
	return func(in Classifications) Classifications {
		if len(theLabels) < 1 {
			return in
		}
		out := make(Classifications, 0, len(in))
		for _, c := range in {
			if _, ok := theLabels[strings.ToLower(c.Label())]; ok {
				out = append(out, c)
			}
		}
		return out
	}
}

// NewLabelConfidenceFilter returns a function that filters out classifications based on label map.
// Does not filter when input is empty.
func NewLabelConfidenceFilter(labels map[string]float64) Postprocessor {
	// ensure all the label names are lower case
	theLabels := make(map[string]float64)
	for name, conf := range labels {
		theLabels[strings.ToLower(name)] = conf
	}
	return func(in Classifications) Classifications {
		if len(theLabels) < 1 {
			return in
		}
		out := make(Classifications, 0, len(in))
		for _, c := range in {
			if conf, ok := theLabels[strings.ToLower(c.Label())]; ok {
				if c.Score() >= conf {
					out = append(out, c)
				}
			}
		}
		return out
	}
}

// NewTopNFilter returns a function that keeps the n classifications with the highest scores.
// Does not filter when n is not positive.
func NewTopNFilter(n int) Postprocessor {
	return func(in Classifications) Classifications {
		if n < 1 {
			return in
		}
		out, err := in.TopN(n)
		if err != nil {
			return in
		}
		return out
	}
}

// Chain applies the postprocessors in order.
func Chain(postprocessors ...Postprocessor) Postprocessor {
	return func(in Classifications) Classifications {
		for _, p := range postprocessors {
			in = p(in)
		}
		return in
	}
}
