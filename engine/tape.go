package engine

import "math"

// UnassignedOffset is the sentinel stored in a BlockBase before Finalize
// runs.
const UnassignedOffset = math.MaxInt32

// PortBuffer is the per-worker "tape": a single linear f32 scratch vector
// shared across all blocks in a graph, plus the Results sequence that
// collects final scalar predictions. It is allocated once per worker and
// reused across examples — Reset truncates Results but never frees Tape.
type PortBuffer struct {
	Tape    []float32
	Results []float32

	// ffmContra and ffmGrad are FFMBlock's per-worker scratch: the
	// interaction accumulator and the per-feature gradient cache bridging
	// its Forward and Backward calls. Keeping them here instead of on the
	// block itself is what makes the block safe to share, lock-free,
	// across Hogwild workers — each worker's own PortBuffer owns its own
	// copy, regrown on demand, so there is nothing to contend over.
	ffmContra []float32
	ffmGrad   []float32
}

// NewPortBuffer allocates a tape of the given size (the graph's total
// output width after Finalize).
func NewPortBuffer(size int) *PortBuffer {
	return &PortBuffer{Tape: make([]float32, size)}
}

// growFloat32 returns buf resized to length n, reusing its backing array
// when it already has the capacity.
func growFloat32(buf []float32, n int) []float32 {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]float32, n)
}

// Reset prepares the port buffer for the next example. The tape itself is
// not cleared: every block fully overwrites its own output range on every
// forward pass, so stale values never leak into a fresh example.
func (pb *PortBuffer) Reset() {
	pb.Results = pb.Results[:0]
}

// Slice returns the tape region [offset, offset+width).
func (pb *PortBuffer) Slice(offset, width int) []float32 {
	return pb.Tape[offset : offset+width]
}

// Block is one node of the computation graph. Inputs are never a block's
// own allocation: SetInputOffsets always receives the output offsets of the
// blocks named by Deps, in the same order, so a block's forward value and
// its backward gradient share one tape region.
type Block interface {
	NumOutputs() int
	Deps() []int
	SetInputOffsets(offsets []int)
	SetOutputOffset(offset int)
	OutputOffset() int
	Forward(ex *Example, pb *PortBuffer)
	// Backward updates this block's own weights (if any) and overwrites its
	// input tape region(s) with the upstream gradient. Only called when the
	// example is trainable.
	Backward(ex *Example, pb *PortBuffer)
}

// BlockBase carries the offset bookkeeping every concrete block shares.
// Embed it and call NewBlockBase in the block's constructor.
type BlockBase struct {
	deps         []int
	inputOffsets []int
	outputOffset int
}

// NewBlockBase records this block's producer dependencies, in the order
// its Forward/Backward implementation expects to read them.
func NewBlockBase(deps ...int) BlockBase {
	return BlockBase{deps: deps, outputOffset: UnassignedOffset}
}

func (b *BlockBase) Deps() []int                     { return b.deps }
func (b *BlockBase) SetInputOffsets(offsets []int)   { b.inputOffsets = offsets }
func (b *BlockBase) InputOffsets() []int             { return b.inputOffsets }
func (b *BlockBase) SetOutputOffset(offset int)      { b.outputOffset = offset }
func (b *BlockBase) OutputOffset() int                { return b.outputOffset }

// InputOffset is a convenience for single-input blocks.
func (b *BlockBase) InputOffset() int {
	if len(b.inputOffsets) == 0 {
		return UnassignedOffset
	}
	return b.inputOffsets[0]
}
