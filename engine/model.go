package engine

import "fmt"

// FieldDef names one FFM field. Field identity beyond position in
// ModelInstance.Fields is not needed by the graph itself — namespace-to-field
// mapping lives in the parser, which is what turns a field name into the
// contra_field_index baked into each FFMFeature.
type FieldDef struct {
	Name string
}

// NNActivation selects the activation block chained after one NNLayerSpec's
// dense layer.
type NNActivation string

const (
	NNActivationNone         NNActivation = ""
	NNActivationLeakyReLU    NNActivation = "leaky-relu"
	NNActivationNormalize    NNActivation = "normalize"
	NNActivationStopGradient NNActivation = "stop-gradient"
)

// NNLayerSpec configures one dense layer stacked between the LR/FFM join
// and the loss block: a wide-and-deep style deepening of the plain linear
// combination. Layers are applied in slice order, each consuming the
// previous stage's output width.
type NNLayerSpec struct {
	Width      int
	Init       NeuronInit
	Dropout    float32
	MaxNorm    float32
	Activation NNActivation

	// Double fans this layer's (post-activation) output out to two equal
	// copies via CopyBlock before the next stage, doubling its width — a
	// residual-style duplication knob, not a real widening of capacity.
	Double bool
}

// ModelInstance is the frozen, static configuration of one regressor:
// hash-space sizes, FFM embedding width, declared fields, weight
// initialization, and any optional dense layers. The optimizer and its
// hyperparameters are carried separately as Regressor's type parameter and
// constructor argument, since Go generics can't be a struct field's own
// type parameter.
type ModelInstance struct {
	LRBitPrecision  uint
	FFMBitPrecision uint
	FFMK            int
	Fields          []FieldDef
	Init            WeightInit
	NNLayers        []NNLayerSpec
}

// Regressor wires an LR block and an FFM block in parallel, joins their
// outputs, and terminates the graph in a logistic loss block. Generic over
// the optimizer variant, which is threaded straight through to every
// weight table and block that needs it.
type Regressor[O Optimizer] struct {
	model  ModelInstance
	shared *SharedWeights[O]
	graph  *Graph

	lrIdx   int
	ffmIdx  int
	joinIdx int
	lossIdx int
}

// NewRegressor allocates weight tables, builds the block graph, and
// finalizes it. The returned Regressor is immutable except for the weight
// cells its blocks mutate during Learn.
func NewRegressor[O Optimizer](model ModelInstance, opt O) (*Regressor[O], error) {
	numFields := len(model.Fields)

	lrWeights := NewLRWeights[O](model.LRBitPrecision, opt)
	ffmWeights := NewFFMWeights[O](model.FFMBitPrecision, numFields, model.FFMK, model.Init, opt)
	shared := NewSharedWeights[O](lrWeights, ffmWeights)

	g := NewGraph()
	lrIdx := g.AddBlock(NewLRBlock[O](lrWeights))

	ffmBlock, err := NewFFMBlock[O](ffmWeights, numFields, model.FFMK)
	if err != nil {
		return nil, err
	}
	ffmIdx := g.AddBlock(ffmBlock)

	ffmWidth := numFields * numFields
	joinIdx := g.AddBlock(NewJoinBlock(lrIdx, ffmIdx, 1, ffmWidth))

	lastIdx, lastWidth := joinIdx, 1+ffmWidth
	for _, layer := range model.NNLayers {
		neuronIdx := g.AddBlock(NewNeuronBlock[O](lastIdx, lastWidth, layer.Width, layer.Init, layer.Dropout, layer.MaxNorm, opt))
		lastIdx, lastWidth = neuronIdx, layer.Width

		switch layer.Activation {
		case NNActivationNone:
		case NNActivationLeakyReLU:
			lastIdx = g.AddBlock(NewLeakyReLUBlock(lastIdx, lastWidth))
		case NNActivationNormalize:
			lastIdx = g.AddBlock(NewNormalizeBlock(lastIdx, lastWidth))
		case NNActivationStopGradient:
			lastIdx = g.AddBlock(NewStopGradientBlock(lastIdx, lastWidth))
		default:
			return nil, fmt.Errorf("engine: unknown nn layer activation %q", layer.Activation)
		}

		if layer.Double {
			lastIdx = g.AddBlock(NewCopyBlock(lastIdx, lastWidth))
			lastWidth *= 2
		}
	}

	lossIdx := g.AddBlock(NewLossBlock(lastIdx, lastWidth))

	if err := g.Finalize(); err != nil {
		return nil, err
	}

	return &Regressor[O]{
		model:   model,
		shared:  shared,
		graph:   g,
		lrIdx:   lrIdx,
		ffmIdx:  ffmIdx,
		joinIdx: joinIdx,
		lossIdx: lossIdx,
	}, nil
}

// NewWorkerBuffer allocates a tape for one Hogwild worker. Each worker
// must own a private buffer — never share one across goroutines.
func (r *Regressor[O]) NewWorkerBuffer() *PortBuffer { return r.graph.NewPortBuffer() }

// SharedWeights returns the lock-free Hogwild-shared weight tables.
func (r *Regressor[O]) SharedWeights() *SharedWeights[O] { return r.shared }

// LossBlock exposes the terminal block for clamp/NaN event observability.
func (r *Regressor[O]) LossBlock() *LossBlock { return r.graph.Block(r.lossIdx).(*LossBlock) }

// Predict runs the forward pass and returns the scalar prediction. It never
// touches weights.
func (r *Regressor[O]) Predict(ex *Example, pb *PortBuffer) float32 {
	pb.Reset()
	r.graph.Forward(ex, pb)
	return pb.Results[len(pb.Results)-1]
}

// Learn runs forward, then backward only if the example is trainable —
// the single place the zero-importance / no-label skip rule is enforced;
// every block's own Backward assumes it is only ever called for a
// trainable example.
func (r *Regressor[O]) Learn(ex *Example, pb *PortBuffer) float32 {
	prediction := r.Predict(ex, pb)
	if ex.Trainable() {
		r.graph.Backward(ex, pb)
	}
	return prediction
}
