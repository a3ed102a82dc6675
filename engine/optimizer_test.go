package engine

import "testing"

func TestSGDExactUpdate(t *testing.T) {
	s := SGD{LearningRate: 0.1}
	var data OptimizerData
	got := s.Update(2.0, &data)
	want := float32(0.2)
	if got != want {
		t.Fatalf("SGD.Update(2.0) = %v, want %v", got, want)
	}
	// SGD carries no state: repeated updates with the same gradient always
	// produce the same delta.
	got2 := s.Update(2.0, &data)
	if got2 != want {
		t.Fatalf("second SGD.Update(2.0) = %v, want %v (stateless)", got2, want)
	}
}

func TestAdaGradFlexPowerTZeroIsSGD(t *testing.T) {
	a := AdaGradFlex{LearningRate: 0.1, PowerT: 0}
	s := SGD{LearningRate: 0.1}

	var adata, sdata OptimizerData
	for _, g := range []float32{1, -2, 0.5, 3} {
		got := a.Update(g, &adata)
		want := s.Update(g, &sdata)
		if got != want {
			t.Fatalf("AdaGradFlex(power_t=0).Update(%v) = %v, want %v (degenerate SGD)", g, got, want)
		}
	}
}

func TestAdaGradFlexAccumulatesSquaredGradient(t *testing.T) {
	a := AdaGradFlex{LearningRate: 0.1, PowerT: 0.5}
	data := OptimizerData{}
	a.Update(3, &data)
	if data.AccG != 9 {
		t.Fatalf("AccG after one update with gradient 3 = %v, want 9", data.AccG)
	}
	a.Update(4, &data)
	if data.AccG != 25 {
		t.Fatalf("AccG after second update with gradient 4 = %v, want 25", data.AccG)
	}
}

// TestAdaGradLUTMatchesFlexAtPowerTZero checks the table-lookup optimizer
// degenerates to the same denom=1 special case as AdaGradFlex, since the
// table is never consulted when PowerT == 0.
func TestAdaGradLUTMatchesFlexAtPowerTZero(t *testing.T) {
	lut := NewAdaGradLUT(0.1, 0, 0)
	flex := AdaGradFlex{LearningRate: 0.1, PowerT: 0}

	var ldata, fdata OptimizerData
	for _, g := range []float32{1, -2, 0.5, 3} {
		gotL := lut.Update(g, &ldata)
		gotF := flex.Update(g, &fdata)
		if gotL != gotF {
			t.Fatalf("AdaGradLUT vs AdaGradFlex at power_t=0, gradient %v: %v != %v", g, gotL, gotF)
		}
	}
}

// TestAdaGradLUTApproximatesFlex checks the table-based exponent
// approximation tracks the exact math.Pow computation closely for a
// representative accumulator range, at a nonzero power_t where the table is
// actually consulted.
func TestAdaGradLUTApproximatesFlex(t *testing.T) {
	lut := NewAdaGradLUT(0.1, 0.5, 0)
	flex := AdaGradFlex{LearningRate: 0.1, PowerT: 0.5}

	ldata := OptimizerData{AccG: 4}
	fdata := OptimizerData{AccG: 4}
	gotL := lut.Update(2, &ldata)
	gotF := flex.Update(2, &fdata)

	const tolerance = 1e-4
	diff := gotL - gotF
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Fatalf("AdaGradLUT.Update = %v, AdaGradFlex.Update = %v, diff %v exceeds tolerance", gotL, gotF, diff)
	}
}
