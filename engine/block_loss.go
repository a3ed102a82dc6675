package engine

import (
	"log/slog"
	"math"
	"sync/atomic"
)

// LossBlock is the terminal logistic loss: it sums its input region,
// applies a clamped sigmoid, and appends the prediction to pb.Results.
// ClampEvents and NaNEvents count the numeric-guard trips so callers can
// notice upstream blocks producing runaway values instead of that getting
// masked silently.
type LossBlock struct {
	BlockBase
	n int

	clampEvents atomic.Int64
	nanEvents   atomic.Int64
}

func NewLossBlock(dep int, n int) *LossBlock {
	return &LossBlock{BlockBase: NewBlockBase(dep), n: n}
}

func (b *LossBlock) NumOutputs() int { return 1 }

func (b *LossBlock) ClampEvents() int64 { return b.clampEvents.Load() }
func (b *LossBlock) NaNEvents() int64   { return b.nanEvents.Load() }

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func (b *LossBlock) Forward(ex *Example, pb *PortBuffer) {
	in := pb.Slice(b.InputOffset(), b.n)
	var wsum float32
	for _, x := range in {
		wsum += x
	}

	var prediction float32
	switch {
	case math.IsNaN(float64(wsum)):
		b.nanEvents.Add(1)
		slog.Warn("loss: NaN input, predicting sigmoid(0)", "error", &NumericGuardError{Block: "loss", Value: wsum})
		prediction = sigmoid(0)
	case wsum > 50:
		b.clampEvents.Add(1)
		slog.Warn("loss: input clamped to +50", "error", &NumericGuardError{Block: "loss", Value: wsum})
		prediction = sigmoid(50)
	case wsum < -50:
		b.clampEvents.Add(1)
		slog.Warn("loss: input clamped to -50", "error", &NumericGuardError{Block: "loss", Value: wsum})
		prediction = sigmoid(-50)
	default:
		prediction = sigmoid(wsum)
	}

	pb.Results = append(pb.Results, prediction)
	pb.Slice(b.OutputOffset(), 1)[0] = prediction
}

// Backward zero-gradients the clamped/NaN cases, otherwise emits the
// standard logistic derivative -(label-prediction)*importance into every
// cell of the input region.
func (b *LossBlock) Backward(ex *Example, pb *PortBuffer) {
	in := pb.Slice(b.InputOffset(), b.n)
	prediction := pb.Slice(b.OutputOffset(), 1)[0]

	var wsum float32
	for _, x := range in {
		wsum += x
	}

	var generalGradient float32
	if !math.IsNaN(float64(wsum)) && wsum >= -50 && wsum <= 50 {
		generalGradient = -(ex.Label - prediction) * ex.Importance
	}

	for i := range in {
		in[i] = generalGradient
	}
}
