package engine

import "testing"

// TestFFMWeightInitDeterministic checks that two independently built
// weight tables with the same configuration are bit-identical before any
// training touches them.
func TestFFMWeightInitDeterministic(t *testing.T) {
	opt := SGD{LearningRate: 0.1}
	init := WeightInit{} // width 0: the sqrt-based default sampler

	a := NewFFMWeights[SGD](6, 3, 4, init, opt)
	b := NewFFMWeights[SGD](6, 3, 4, init, opt)

	if len(a.Cells) != len(b.Cells) {
		t.Fatalf("cell counts differ: %d vs %d", len(a.Cells), len(b.Cells))
	}
	for i := range a.Cells {
		if a.Cells[i] != b.Cells[i] {
			t.Fatalf("cell %d differs: %v vs %v", i, a.Cells[i], b.Cells[i])
		}
	}
}

// TestFFMWeightInitBandModeDeterministic repeats the same check for the
// explicit width/center/zero-band sampler.
func TestFFMWeightInitBandModeDeterministic(t *testing.T) {
	opt := SGD{LearningRate: 0.1}
	init := WeightInit{Width: 0.2, Center: 0, ZeroBand: 0.1}

	a := NewFFMWeights[SGD](6, 2, 2, init, opt)
	b := NewFFMWeights[SGD](6, 2, 2, init, opt)

	for i := range a.Cells {
		if a.Cells[i] != b.Cells[i] {
			t.Fatalf("cell %d differs: %v vs %v", i, a.Cells[i], b.Cells[i])
		}
	}
}

// TestSampleBandWeightExcludesZeroBand checks every sampled weight under a
// band init falls outside the zero-exclusion gap around the center.
func TestSampleBandWeightExcludesZeroBand(t *testing.T) {
	width := float32(1.0)
	center := float32(0.0)
	zeroBand := float32(0.2) // gap = zeroBand * width/2 = 0.1

	for i := uint32(0); i < 1000; i++ {
		w := sampleBandWeight(i, width, center, zeroBand)
		gap := zeroBand * (width / 2)
		if w > center-gap && w < center+gap {
			t.Fatalf("sample %d: weight %v falls inside the excluded zero band (+-%v)", i, w, gap)
		}
	}
}

// TestLRWeightsStartAtZero checks the LR table's documented "no FFM-style
// random init" rule.
func TestLRWeightsStartAtZero(t *testing.T) {
	w := NewLRWeights[SGD](6, SGD{LearningRate: 0.1})
	for i, c := range w.Cells {
		if c != 0 {
			t.Fatalf("LR cell %d = %v, want 0", i, c)
		}
	}
}
