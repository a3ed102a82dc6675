package engine

import (
	"math"
	"testing"
)

// newConstantRegressor builds a regressor whose every FFM weight starts at
// 1.0 — the fixture every prediction scenario below starts from.
func newConstantRegressor[O Optimizer](t *testing.T, numFields, k int, opt O) *Regressor[O] {
	t.Helper()
	model := ModelInstance{
		LRBitPrecision:  8,
		FFMBitPrecision: 18,
		FFMK:            k,
	}
	for i := 0; i < numFields; i++ {
		model.Fields = append(model.Fields, FieldDef{Name: string(rune('a' + i))})
	}
	r, err := NewRegressor[O](model, opt)
	if err != nil {
		t.Fatalf("NewRegressor: %v", err)
	}
	for i := range r.shared.FFM.Cells {
		r.shared.FFM.Cells[i] = 1
	}
	return r
}

func closeEnough(t *testing.T, label string, got, want float32) {
	t.Helper()
	if math.Abs(float64(got-want)) > 2e-4 {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}

// One field, one feature — a single-field FFM
// cannot learn, so the diagonal self-cancellation makes every cached
// gradient zero and the prediction never moves.
func TestScenario1_SingleFieldCannotLearn(t *testing.T) {
	r := newConstantRegressor(t, 1, 1, &AdaGradLUT{LearningRate: 0.1, PowerT: 0})
	ex := &Example{HasLabel: true, Label: 0, Importance: 1, Serial: 1, FFMFieldsCount: 1,
		FFM: []FFMFeature{{Hash: 1, Value: 1, ContraFieldIndex: 0}}}

	pb := r.NewWorkerBuffer()
	before := r.Learn(ex, pb)
	closeEnough(t, "before", before, 0.5)

	after := r.Predict(ex, pb)
	closeEnough(t, "after", after, 0.5)
}

// Two fields, AdaGrad-Flex, value=1.0 on both
// features; label -1 (internal Label=0).
func TestScenario2_TwoFieldsAdaGradFlex(t *testing.T) {
	r := newConstantRegressor(t, 2, 1, AdaGradFlex{LearningRate: 0.1, PowerT: 0})
	ex := &Example{HasLabel: true, Label: 0, Importance: 1, Serial: 1, FFMFieldsCount: 2,
		FFM: []FFMFeature{
			{Hash: 1, Value: 1, ContraFieldIndex: 0},
			{Hash: 100, Value: 1, ContraFieldIndex: 1},
		}}

	pb := r.NewWorkerBuffer()
	before := r.Learn(ex, pb)
	closeEnough(t, "before", before, 0.7310586)

	after := r.Predict(ex, pb)
	closeEnough(t, "after", after, 0.7024794)
}

// Same topology, AdaGrad-LUT (default), value=2.0.
func TestScenario3_TwoFieldsAdaGradLUTValue2(t *testing.T) {
	r := newConstantRegressor(t, 2, 1, &AdaGradLUT{LearningRate: 0.1, PowerT: 0})
	ex := &Example{HasLabel: true, Label: 0, Importance: 1, Serial: 1, FFMFieldsCount: 2,
		FFM: []FFMFeature{
			{Hash: 1, Value: 2, ContraFieldIndex: 0},
			{Hash: 100, Value: 2, ContraFieldIndex: 1},
		}}

	pb := r.NewWorkerBuffer()
	before := r.Learn(ex, pb)
	closeEnough(t, "before", before, 0.98201376)

	after := r.Predict(ex, pb)
	closeEnough(t, "after", after, 0.81377685)
}

// k=4, value=1.0.
func TestScenario4_K4Value1(t *testing.T) {
	r := newConstantRegressor(t, 2, 4, &AdaGradLUT{LearningRate: 0.1, PowerT: 0})
	ex := &Example{HasLabel: true, Label: 0, Importance: 1, Serial: 1, FFMFieldsCount: 2,
		FFM: []FFMFeature{
			{Hash: 1, Value: 1, ContraFieldIndex: 0},
			{Hash: 100, Value: 1, ContraFieldIndex: 4},
		}}

	pb := r.NewWorkerBuffer()
	before := r.Learn(ex, pb)
	closeEnough(t, "before", before, 0.98201376)

	after := r.Predict(ex, pb)
	closeEnough(t, "after", after, 0.96277946)
}

// k=4, value=2.0.
func TestScenario5_K4Value2(t *testing.T) {
	r := newConstantRegressor(t, 2, 4, &AdaGradLUT{LearningRate: 0.1, PowerT: 0})
	ex := &Example{HasLabel: true, Label: 0, Importance: 1, Serial: 1, FFMFieldsCount: 2,
		FFM: []FFMFeature{
			{Hash: 1, Value: 2, ContraFieldIndex: 0},
			{Hash: 100, Value: 2, ContraFieldIndex: 4},
		}}

	pb := r.NewWorkerBuffer()
	before := r.Learn(ex, pb)
	closeEnough(t, "before", before, 0.9999999)

	after := r.Predict(ex, pb)
	closeEnough(t, "after", after, 0.99685884)
}

// Three fields, only the middle one has features —
// still no interaction is possible, so prediction stays at 0.5.
func TestScenario6_OnlyMiddleFieldPopulated(t *testing.T) {
	r := newConstantRegressor(t, 3, 1, &AdaGradLUT{LearningRate: 0.1, PowerT: 0})
	ex := &Example{FFMFieldsCount: 3,
		FFM: []FFMFeature{{Hash: 1, Value: 1, ContraFieldIndex: 1}}}

	pb := r.NewWorkerBuffer()
	got := r.Predict(ex, pb)
	closeEnough(t, "prediction", got, 0.5)
}
