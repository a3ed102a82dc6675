package engine

import (
	"math"
	"testing"
)

func closeEnoughF32(t *testing.T, label string, got, want float32) {
	t.Helper()
	const tolerance = 1e-4
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Fatalf("%s = %v, want %v (diff %v > %v)", label, got, want, diff, tolerance)
	}
}

func TestLeakyReLUBlock(t *testing.T) {
	b := NewLeakyReLUBlock(0, 3)
	b.SetOutputOffset(3)
	pb := NewPortBuffer(6)
	copy(pb.Slice(0, 3), []float32{2, -4, 0})
	b.SetInputOffsets([]int{0})

	ex := &Example{}
	b.Forward(ex, pb)
	out := pb.Slice(3, 3)
	closeEnoughF32(t, "leaky relu forward[0]", out[0], 2)
	closeEnoughF32(t, "leaky relu forward[1]", out[1], -1.2)
	closeEnoughF32(t, "leaky relu forward[2]", out[2], 0) // x == 0 takes the positive branch

	copy(pb.Slice(3, 3), []float32{10, 10, 10}) // upstream gradient
	b.Backward(ex, pb)
	in := pb.Slice(0, 3)
	closeEnoughF32(t, "leaky relu backward[0]", in[0], 10)   // x > 0: pass through
	closeEnoughF32(t, "leaky relu backward[1]", in[1], 3)    // x < 0: scaled by 0.3
	closeEnoughF32(t, "leaky relu backward[2]", in[2], 10)   // x == 0: positive branch
}

// TestNormalizeBlockNonTextbookVariance pins the deliberately
// non-textbook variance proxy: mean(x^2 - 2*meansq*x + meansq^2) with
// meansq = mean(x)^2, which differs from mean(x^2) - mean(x)^2 for any
// input whose mean isn't 0 or 1.
func TestNormalizeBlockNonTextbookVariance(t *testing.T) {
	b := NewNormalizeBlock(0, 2)
	b.SetOutputOffset(2)
	b.SetInputOffsets([]int{0})
	pb := NewPortBuffer(4)
	copy(pb.Slice(0, 2), []float32{1, 2})

	ex := &Example{}
	b.Forward(ex, pb)

	// mean = 1.5, meansq = 2.25
	// variance = mean(x^2 - 2*2.25*x + 2.25^2) = mean(2.5 ... ) = 0.8125
	// (the textbook mean(x^2)-mean(x)^2 would give 0.25 instead)
	wantVariance := 0.8125
	wantScale := float32(1 / math.Sqrt(wantVariance+1e-6))

	out := pb.Slice(2, 2)
	closeEnoughF32(t, "normalize forward[0]", out[0], 1*wantScale)
	closeEnoughF32(t, "normalize forward[1]", out[1], 2*wantScale)
}

func TestStopGradientBlockBlocksBackward(t *testing.T) {
	b := NewStopGradientBlock(0, 2)
	b.SetOutputOffset(2)
	b.SetInputOffsets([]int{0})
	pb := NewPortBuffer(4)
	copy(pb.Slice(0, 2), []float32{5, 6})

	ex := &Example{}
	b.Forward(ex, pb)
	if got := pb.Slice(2, 2); got[0] != 5 || got[1] != 6 {
		t.Fatalf("forward output = %v, want [5 6]", got)
	}

	copy(pb.Slice(2, 2), []float32{100, 200}) // pretend upstream gradient
	b.Backward(ex, pb)
	in := pb.Slice(0, 2)
	if in[0] != 0 || in[1] != 0 {
		t.Fatalf("input gradient after stop-gradient backward = %v, want [0 0]", in)
	}
}

// TestCopyBlockSumsGradients checks that the copy block's backward pass
// sums its two output gradients into the single input gradient.
func TestCopyBlockSumsGradients(t *testing.T) {
	b := NewCopyBlock(0, 2)
	b.SetOutputOffset(2)
	b.SetInputOffsets([]int{0})
	pb := NewPortBuffer(6)
	copy(pb.Slice(0, 2), []float32{1, 2})

	ex := &Example{}
	b.Forward(ex, pb)
	out := pb.Slice(2, 4)
	if out[0] != 1 || out[1] != 2 || out[2] != 1 || out[3] != 2 {
		t.Fatalf("copy forward = %v, want [1 2 1 2]", out)
	}

	copy(pb.Slice(2, 4), []float32{10, 20, 100, 200}) // two independent upstream gradients
	b.Backward(ex, pb)
	in := pb.Slice(0, 2)
	if in[0] != 110 || in[1] != 220 {
		t.Fatalf("copy backward input grad = %v, want [110 220] (sum of both output grads)", in)
	}
}

func TestJoinBlockRoundTrip(t *testing.T) {
	b := NewJoinBlock(0, 1, 2, 1)
	b.SetOutputOffset(3)
	b.SetInputOffsets([]int{0, 2})
	pb := NewPortBuffer(6)
	copy(pb.Slice(0, 2), []float32{1, 2}) // input A
	pb.Slice(2, 1)[0] = 9                 // input B

	ex := &Example{}
	b.Forward(ex, pb)
	out := pb.Slice(3, 3)
	if out[0] != 1 || out[1] != 2 || out[2] != 9 {
		t.Fatalf("join forward = %v, want [1 2 9]", out)
	}

	copy(pb.Slice(3, 3), []float32{11, 12, 19})
	b.Backward(ex, pb)
	inA := pb.Slice(0, 2)
	inB := pb.Slice(2, 1)
	if inA[0] != 11 || inA[1] != 12 || inB[0] != 19 {
		t.Fatalf("join backward = A:%v B:%v, want A:[11 12] B:[19]", inA, inB)
	}
}
