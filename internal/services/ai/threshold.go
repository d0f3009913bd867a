package ai

import "lungdetect/internal/labels"

// DefaultThreshold is the probability a class has to exceed to be reported.
const DefaultThreshold = 0.5

// Threshold marks every unit whose probability is strictly above cutoff.
func Threshold(probs []float32, cutoff float32) []bool {
	out := make([]bool, len(probs))
	for i, p := range probs {
		out[i] = p > cutoff
	}
	return out
}

// Positives maps the units above cutoff to abnormality labels, in index
// order. The "no finding" unit and anything past it are ignored.
func Positives(probs []float32, cutoff float32) []labels.Label {
	var found []labels.Label
	for i, on := range Threshold(probs, cutoff) {
		if !on {
			continue
		}
		if l, ok := labels.ByIndex(i); ok {
			found = append(found, l)
		}
	}
	return found
}
