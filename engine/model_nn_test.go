package engine

import (
	"fmt"
	"math"
	"testing"
)

// validProbability checks a prediction is a finite value in [0,1] — it
// does not assert a strict interior bound, since a deep enough stack of
// randomly initialized layers can legitimately saturate the loss block's
// clamp and round to exactly 0 or 1 at float32 precision.
func validProbability(t *testing.T, label string, p float32) {
	t.Helper()
	if math.IsNaN(float64(p)) || p < 0 || p > 1 {
		t.Fatalf("%s = %v, want a finite value in [0,1]", label, p)
	}
}

// newNNRegressor builds a two-field regressor with one dense layer stacked
// ahead of the loss block, wiring NeuronBlock and the given activation
// through the real graph rather than in isolation.
func newNNRegressor(t *testing.T, layer NNLayerSpec) *Regressor[SGD] {
	t.Helper()
	model := ModelInstance{
		LRBitPrecision:  8,
		FFMBitPrecision: 18,
		FFMK:            1,
		Fields:          []FieldDef{{Name: "a"}, {Name: "b"}},
		NNLayers:        []NNLayerSpec{layer},
	}
	r, err := NewRegressor[SGD](model, SGD{LearningRate: 0.1})
	if err != nil {
		t.Fatalf("NewRegressor: %v", err)
	}
	return r
}

func nnTestExample() *Example {
	return &Example{
		HasLabel: true, Label: 1, Importance: 1, Serial: 7, FFMFieldsCount: 2,
		FFM: []FFMFeature{
			{Hash: 1, Value: 1, ContraFieldIndex: 0},
			{Hash: 100, Value: 1, ContraFieldIndex: 1},
		},
	}
}

func TestRegressorWithNeuronLayerLearns(t *testing.T) {
	r := newNNRegressor(t, NNLayerSpec{Width: 3, Init: NeuronInitGaussian})

	nb, ok := r.graph.Block(r.lossIdx - 1).(*NeuronBlock[SGD]) // the neuron block sits directly before the loss block
	if !ok {
		t.Fatalf("block before loss = %T, want *NeuronBlock[SGD]", r.graph.Block(r.lossIdx-1))
	}
	before := make([]float32, len(nb.weights))
	copy(before, nb.weights)

	pb := r.NewWorkerBuffer()
	prediction := r.Learn(nnTestExample(), pb)
	validProbability(t, "prediction", prediction)

	changed := false
	for i, w := range nb.weights {
		if w != before[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Fatalf("neuron weights unchanged after Learn: gradient did not reach the nn layer through join+loss")
	}
}

func TestRegressorWithEachActivationProducesValidPrediction(t *testing.T) {
	cases := []NNActivation{
		NNActivationNone,
		NNActivationLeakyReLU,
		NNActivationNormalize,
		NNActivationStopGradient,
	}
	for _, activation := range cases {
		r := newNNRegressor(t, NNLayerSpec{Width: 4, Init: NeuronInitGaussian, Activation: activation})
		pb := r.NewWorkerBuffer()
		got := r.Learn(nnTestExample(), pb)
		validProbability(t, fmt.Sprintf("activation %q", activation), got)
	}
}

// TestRegressorWithDoubleLayerExercisesCopyBlock checks the Double knob
// routes the layer's output through CopyBlock before the loss block, and
// that training still produces a valid prediction (rather than panicking
// on a mis-sized tape region).
func TestRegressorWithDoubleLayerExercisesCopyBlock(t *testing.T) {
	r := newNNRegressor(t, NNLayerSpec{Width: 2, Init: NeuronInitGaussian, Double: true})

	copyBlock, ok := r.graph.Block(r.lossIdx - 1).(*CopyBlock)
	if !ok {
		t.Fatalf("block before loss = %T, want *CopyBlock", r.graph.Block(r.lossIdx-1))
	}
	if copyBlock.NumOutputs() != 4 {
		t.Fatalf("copy block output width = %d, want 4 (2x the layer width)", copyBlock.NumOutputs())
	}

	pb := r.NewWorkerBuffer()
	got := r.Learn(nnTestExample(), pb)
	validProbability(t, "prediction", got)
}

func TestRegressorWithStackedNNLayers(t *testing.T) {
	model := ModelInstance{
		LRBitPrecision:  8,
		FFMBitPrecision: 18,
		FFMK:            1,
		Fields:          []FieldDef{{Name: "a"}, {Name: "b"}},
		NNLayers: []NNLayerSpec{
			{Width: 6, Init: NeuronInitGaussian, Activation: NNActivationLeakyReLU},
			{Width: 3, Init: NeuronInitGaussian, Activation: NNActivationNormalize},
		},
	}
	r, err := NewRegressor[SGD](model, SGD{LearningRate: 0.1})
	if err != nil {
		t.Fatalf("NewRegressor: %v", err)
	}
	pb := r.NewWorkerBuffer()
	got := r.Learn(nnTestExample(), pb)
	validProbability(t, "prediction", got)
}
