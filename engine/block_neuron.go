package engine

import (
	"math"
	"sync/atomic"
)

// NeuronInit selects how NewNeuronBlock fills the initial weight matrix.
type NeuronInit int

const (
	// NeuronInitGaussian draws each weight from N(0, 2/n_in) (He init).
	NeuronInitGaussian NeuronInit = iota
	// NeuronInitFirstOne sets neuron 0's weights to 1 and every bias to 0;
	// every other neuron starts at all-zero weights. Useful for a
	// single-output layer meant to start as a plain passthrough sum.
	NeuronInitFirstOne
	// NeuronInitAllOnes sets every weight and bias to 1.0.
	NeuronInitAllOnes
)

// neuronDropoutCoin mixes a neuron index and an example's serial number
// (squared, per spec) into a reproducible pseudo-random bit stream — not a
// real RNG, so replaying the same example reproduces the same dropout
// pattern. Collisions of exampleNumber^2 mod 2^64 would repeat a pattern;
// this is expected to be rare in practice.
func neuronDropoutCoin(neuronIndex int, exampleNumber uint64) uint64 {
	x := uint64(neuronIndex) ^ (exampleNumber * exampleNumber)
	x *= 0x9E3779B97F4A7C15
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return x
}

func neuronDropped(neuronIndex int, exampleNumber uint64, p float32) bool {
	coin := neuronDropoutCoin(neuronIndex, exampleNumber)
	u := float64(coin>>11) * (1.0 / (1 << 53))
	return u < float64(p)
}

// NeuronBlock is a dense affine n_in -> n_out layer with per-neuron bias.
// Activation is never bundled here — chain an activation block after it
// in the graph. Generic over the optimizer variant.
type NeuronBlock[O Optimizer] struct {
	BlockBase
	nIn, nOut int
	dropout   float32 // 0 disables
	maxNorm   float32 // 0 disables

	weights []float32 // [nOut*nIn], row j = neuron j's input weights
	bias    []float32 // [nOut]
	optData []OptimizerData
	opt     O

	exampleCount atomic.Uint64
}

// NewNeuronBlock builds a neuron layer over dep's n_in-wide output.
func NewNeuronBlock[O Optimizer](dep int, nIn, nOut int, init NeuronInit, dropout, maxNorm float32, opt O) *NeuronBlock[O] {
	b := &NeuronBlock[O]{
		BlockBase: NewBlockBase(dep),
		nIn:       nIn,
		nOut:      nOut,
		dropout:   dropout,
		maxNorm:   maxNorm,
		weights:   make([]float32, nOut*nIn),
		bias:      make([]float32, nOut),
		optData:   make([]OptimizerData, nOut*nIn+nOut),
		opt:       opt,
	}
	initData := opt.InitialData()
	for i := range b.optData {
		b.optData[i] = initData
	}
	switch init {
	case NeuronInitGaussian:
		stdev := float32(math.Sqrt(2 / float64(nIn)))
		for i := range b.weights {
			b.weights[i] = sampleGaussian(uint32(i), stdev)
		}
	case NeuronInitFirstOne:
		for i := 0; i < nIn; i++ {
			b.weights[i] = 1
		}
	case NeuronInitAllOnes:
		for i := range b.weights {
			b.weights[i] = 1
		}
		for i := range b.bias {
			b.bias[i] = 1
		}
	}
	return b
}

func (b *NeuronBlock[O]) NumOutputs() int { return b.nOut }

// Forward computes the affine map, then applies dropout: during training
// each neuron's coin is re-derived from (neuronIndex, example serial), so
// no dropout mask needs to be stored for Backward to pick back up; at
// inference every neuron's output is instead scaled by (1-dropout).
func (b *NeuronBlock[O]) Forward(ex *Example, pb *PortBuffer) {
	in := pb.Slice(b.InputOffset(), b.nIn)
	out := pb.Slice(b.OutputOffset(), b.nOut)
	training := ex.Trainable()

	for j := 0; j < b.nOut; j++ {
		row := b.weights[j*b.nIn : j*b.nIn+b.nIn]
		var sum float32
		for i, x := range in {
			sum += row[i] * x
		}
		sum += b.bias[j]

		if b.dropout > 0 {
			if training {
				if neuronDropped(j, ex.Serial, b.dropout) {
					sum = 0
				}
			} else {
				sum *= 1 - b.dropout
			}
		}
		out[j] = sum
	}
}

// Backward updates every non-dropped neuron's weights and bias, then
// writes the upstream gradient (computed from pre-update weights) into the
// input region. Every 10 examples it additionally rescales any neuron
// whose weight vector exceeds maxNorm back down to exactly maxNorm.
func (b *NeuronBlock[O]) Backward(ex *Example, pb *PortBuffer) {
	in := pb.Slice(b.InputOffset(), b.nIn)
	out := pb.Slice(b.OutputOffset(), b.nOut)

	upstream := make([]float32, b.nIn)
	for j := 0; j < b.nOut; j++ {
		if b.dropout > 0 && neuronDropped(j, ex.Serial, b.dropout) {
			continue
		}
		g := out[j]
		row := b.weights[j*b.nIn : j*b.nIn+b.nIn]
		for i := range in {
			upstream[i] += row[i] * g
		}
		for i, x := range in {
			idx := j*b.nIn + i
			row[i] -= b.opt.Update(g*x, &b.optData[idx])
		}
		biasIdx := b.nOut*b.nIn + j
		b.bias[j] -= b.opt.Update(g, &b.optData[biasIdx])
	}
	copy(in, upstream)

	if b.maxNorm > 0 && b.exampleCount.Add(1)%10 == 0 {
		b.renormalize()
	}
}

func (b *NeuronBlock[O]) renormalize() {
	for j := 0; j < b.nOut; j++ {
		row := b.weights[j*b.nIn : j*b.nIn+b.nIn]
		var sumSq float32
		for _, w := range row {
			sumSq += w * w
		}
		norm := float32(math.Sqrt(float64(sumSq)))
		if norm > b.maxNorm {
			scale := b.maxNorm / norm
			for i := range row {
				row[i] *= scale
			}
		}
	}
}
