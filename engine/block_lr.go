package engine

// LRBlock sums the plain logistic-regression term: one weight per hashed
// feature, no interaction. Like FFMBlock it has no graph dependencies — it
// reads features straight off the Example.
type LRBlock[O Optimizer] struct {
	BlockBase
	weights *LRWeights[O]
}

// NewLRBlock builds an LR block over a shared weight table.
func NewLRBlock[O Optimizer](weights *LRWeights[O]) *LRBlock[O] {
	return &LRBlock[O]{BlockBase: NewBlockBase(), weights: weights}
}

func (b *LRBlock[O]) NumOutputs() int { return 1 }

func (b *LRBlock[O]) Forward(ex *Example, pb *PortBuffer) {
	cells := b.weights.Cells
	mask := b.weights.Mask
	var sum float32
	for _, f := range ex.LR {
		sum += cells[f.Hash&mask] * f.Value
	}
	pb.Slice(b.OutputOffset(), 1)[0] = sum
}

// Backward applies the same general gradient to every touched weight,
// scaled by that feature's value — the standard linear-term derivative.
func (b *LRBlock[O]) Backward(ex *Example, pb *PortBuffer) {
	if len(ex.LR) == 0 {
		return
	}
	g := pb.Slice(b.OutputOffset(), 1)[0]
	for _, f := range ex.LR {
		b.weights.Update(f.Hash, g*f.Value)
	}
}
