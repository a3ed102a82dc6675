package engine

import "math"

// OptimizerData is the per-weight scalar state an optimizer carries
// alongside each weight cell. SGD leaves it at its zero value; the AdaGrad
// variants use AccG as the accumulated squared gradient.
type OptimizerData struct {
	AccG float32
}

// Optimizer is the per-weight update rule. Concrete variants are value
// types so that blocks parameterized over them (via Go generics) get a
// monomorphized copy with no interface indirection on the hot path — see
// block_ffm.go and block_neuron.go, which take an Optimizer type parameter
// rather than storing an Optimizer interface value per weight.
type Optimizer interface {
	// InitialData returns the starting state for a freshly allocated weight.
	InitialData() OptimizerData
	// Update returns the scalar to subtract from the weight for the given
	// gradient, and advances data in place.
	Update(gradient float32, data *OptimizerData) float32
}

// SGD is plain stochastic gradient descent: stateless, update = g * lr.
type SGD struct {
	LearningRate float32
}

func (s SGD) InitialData() OptimizerData { return OptimizerData{} }

func (s SGD) Update(gradient float32, data *OptimizerData) float32 {
	return gradient * s.LearningRate
}

// AdaGradFlex is per-weight AdaGrad with a configurable power-t exponent.
// power_t = 0.5 is classical AdaGrad; power_t = 0 disables adaptation
// entirely (denominator is always 1, so it degenerates to SGD).
type AdaGradFlex struct {
	LearningRate    float32
	PowerT          float32
	InitAccGradient float32
}

func (a AdaGradFlex) InitialData() OptimizerData {
	return OptimizerData{AccG: a.InitAccGradient}
}

func (a AdaGradFlex) Update(gradient float32, data *OptimizerData) float32 {
	var denom float32
	if a.PowerT == 0 {
		denom = 1
	} else {
		denom = float32(math.Pow(float64(data.AccG), float64(a.PowerT)))
	}
	update := gradient * a.LearningRate / denom
	data.AccG += gradient * gradient
	return update
}

// adaGradLUTSize covers float32 binary exponents (roughly -149..127);
// exponents are biased by adaGradLUTBias to index into the table.
const (
	adaGradLUTBias = 160
	adaGradLUTSize = 320
)

// AdaGradLUT has identical semantics to AdaGradFlex but replaces the
// accumulator^power_t computation with a table lookup on the accumulator's
// binary exponent (the mantissa, confined to [0.5, 1), is still raised to
// power_t directly — that part is cheap since its domain is tiny). The
// exponent is the expensive wide-range operation and is precomputed once per
// optimizer configuration, while the narrow-range mantissa part stays exact.
type AdaGradLUT struct {
	LearningRate    float32
	PowerT          float32
	InitAccGradient float32

	table [adaGradLUTSize]float32
}

// NewAdaGradLUT builds the optimizer together with its exponent table.
func NewAdaGradLUT(learningRate, powerT, initAccGradient float32) *AdaGradLUT {
	a := &AdaGradLUT{
		LearningRate:    learningRate,
		PowerT:          powerT,
		InitAccGradient: initAccGradient,
	}
	for e := 0; e < adaGradLUTSize; e++ {
		exp := e - adaGradLUTBias
		a.table[e] = float32(math.Pow(2, float64(exp)*float64(powerT)))
	}
	return a
}

func (a *AdaGradLUT) InitialData() OptimizerData {
	return OptimizerData{AccG: a.InitAccGradient}
}

func (a *AdaGradLUT) Update(gradient float32, data *OptimizerData) float32 {
	var denom float32
	if a.PowerT == 0 {
		denom = 1
	} else {
		frac, exp := math.Frexp(float64(data.AccG))
		idx := exp + adaGradLUTBias
		var expPart float32
		switch {
		case idx < 0:
			expPart = a.table[0]
		case idx >= adaGradLUTSize:
			expPart = a.table[adaGradLUTSize-1]
		default:
			expPart = a.table[idx]
		}
		fracPart := float32(math.Pow(frac, float64(a.PowerT)))
		denom = expPart * fracPart
	}
	update := gradient * a.LearningRate / denom
	data.AccG += gradient * gradient
	return update
}
