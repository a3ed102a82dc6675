package engine

import "math"

// WeightInit controls FFM weight initialization. Width == 0 selects the
// sqrt-based default; otherwise weights are sampled from a symmetric band
// with a zero-exclusion gap, then shifted by Center.
type WeightInit struct {
	Width    float32
	Center   float32
	ZeroBand float32
}

const (
	lcgMultiplier = 0x5DEECE66D
	lcgIncrement  = 0xB
	lcgMask       = (uint64(1) << 48) - 1
)

// lcgUniform advances a 48-bit linear congruential generator and returns a
// value uniformly distributed in [0, 1). Seeding deterministically by weight
// index (rather than a shared stream) is what makes initialization
// reproducible across runs and across Hogwild worker counts.
func lcgUniform(seed uint64) (float32, uint64) {
	seed = (seed*lcgMultiplier + lcgIncrement) & lcgMask
	return float32(seed>>24) / float32(uint64(1)<<24), seed
}

func initialSeed(index uint32) uint64 {
	return (uint64(index) ^ lcgMultiplier) & lcgMask
}

// sampleDefaultWeight implements the width=0 default: (U[0,1)-0.5) * (1/sqrt(k)) / 50.
func sampleDefaultWeight(index uint32, k int) float32 {
	u, _ := lcgUniform(initialSeed(index))
	return (u - 0.5) * float32(1/math.Sqrt(float64(k))) / 50
}

// sampleBandWeight implements the explicit width/center/zero-band mode: a
// symmetric band [-w/2, +w/2] with a zero-exclusion gap of relative width z,
// shifted by center. The uniform draw is split across the two half-bands so
// the excluded region around zero is never sampled.
func sampleBandWeight(index uint32, width, center, zeroBand float32) float32 {
	u, _ := lcgUniform(initialSeed(index))
	half := width / 2
	gap := zeroBand * half
	span := half - gap
	if span < 0 {
		span = 0
	}
	if u < 0.5 {
		t := u / 0.5
		return center - (gap + t*span)
	}
	t := (u - 0.5) / 0.5
	return center + gap + t*span
}

// sampleGaussian draws a standard Box-Muller normal sample, scaled by
// stdev, from the same deterministic per-index LCG stream as the FFM
// samplers — used by the neuron layer's Gaussian init mode so its weight
// tables are reproducible the same way.
func sampleGaussian(index uint32, stdev float32) float32 {
	u1, seed := lcgUniform(initialSeed(index))
	u2, _ := lcgUniform(seed)
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	r := math.Sqrt(-2 * math.Log(float64(u1)))
	theta := 2 * math.Pi * float64(u2)
	return stdev * float32(r*math.Cos(theta))
}

// LRWeights is the flat logistic-regression weight table, indexed by
// hash & Mask. It is generic over the optimizer variant so that
// weight-cell updates are a direct, inlinable method call rather than an
// interface dispatch repeated on every training example's every feature.
// LR weights start at zero — there is no FFM-style random-init mode for
// this table.
type LRWeights[O Optimizer] struct {
	Mask    uint32
	Cells   []float32
	OptData []OptimizerData
	Opt     O
}

// NewLRWeights allocates an LR weight table for the given bit precision.
func NewLRWeights[O Optimizer](bitPrecision uint, opt O) *LRWeights[O] {
	size := uint32(1) << bitPrecision
	w := &LRWeights[O]{
		Mask:    size - 1,
		Cells:   make([]float32, size),
		OptData: make([]OptimizerData, size),
		Opt:     opt,
	}
	init := opt.InitialData()
	for i := range w.OptData {
		w.OptData[i] = init
	}
	return w
}

// Index maps a feature hash to its weight-table slot.
func (w *LRWeights[O]) Index(hash uint32) uint32 { return hash & w.Mask }

// Update subtracts the optimizer's computed delta from the weight at hash.
func (w *LRWeights[O]) Update(hash uint32, gradient float32) {
	idx := w.Index(hash)
	w.Cells[idx] -= w.Opt.Update(gradient, &w.OptData[idx])
}

// FFMWeights is the flat FFM weight table: length
// (1<<ffmBitPrecision) + numFields*k, the extra numFields*k cells being a
// spillover region so Base()+targetField*K never runs off the end of the
// slice even for the highest-numbered field. Generic over the optimizer
// variant for the same reason as LRWeights.
type FFMWeights[O Optimizer] struct {
	Mask      uint32
	NumFields int
	K         int
	Cells     []float32
	OptData   []OptimizerData
	Opt       O
}

// NewFFMWeights allocates and initializes the FFM weight table.
func NewFFMWeights[O Optimizer](ffmBitPrecision uint, numFields, k int, init WeightInit, opt O) *FFMWeights[O] {
	base := uint32(1) << ffmBitPrecision
	spill := uint32(numFields * k)
	total := base + spill

	w := &FFMWeights[O]{
		Mask:      base - 1,
		NumFields: numFields,
		K:         k,
		Cells:     make([]float32, total),
		OptData:   make([]OptimizerData, total),
		Opt:       opt,
	}
	optInit := opt.InitialData()
	for i := range w.Cells {
		if init.Width == 0 {
			w.Cells[i] = sampleDefaultWeight(uint32(i), k)
		} else {
			w.Cells[i] = sampleBandWeight(uint32(i), init.Width, init.Center, init.ZeroBand)
		}
		w.OptData[i] = optInit
	}
	return w
}

// Base maps a feature hash to the base index of its per-field weight block
// (field-0 layout); callers add targetField*K to reach the sub-vector for a
// specific interacting field — the spillover region guarantees that never
// overflows the slice even for the highest-numbered field.
func (w *FFMWeights[O]) Base(hash uint32) uint32 { return hash & w.Mask }

// Update applies the optimizer's delta to a single weight coordinate.
func (w *FFMWeights[O]) Update(index uint32, gradient float32) {
	w.Cells[index] -= w.Opt.Update(gradient, &w.OptData[index])
}

// SharedWeights bundles the LR and FFM weight and optimizer-state tables
// that all Hogwild workers share, and documents the intentional data race:
// every worker runs the same Regressor, whose LRBlock and FFMBlock hold
// pointers to these same tables, so their backing arrays are written from
// all goroutines without locking. Concurrent writes to the same cell lose
// at most one update, which the algorithm tolerates by design. The bundle
// does not wrap the blocks' own access, and dense-layer weights live in
// their NeuronBlocks, shared the same way but outside this type.
type SharedWeights[O Optimizer] struct {
	LR  *LRWeights[O]
	FFM *FFMWeights[O]
}

// NewSharedWeights bundles already-allocated tables for Hogwild sharing.
func NewSharedWeights[O Optimizer](lr *LRWeights[O], ffm *FFMWeights[O]) *SharedWeights[O] {
	return &SharedWeights[O]{LR: lr, FFM: ffm}
}
