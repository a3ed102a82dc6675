package engine

// ffmContraBufLen bounds the per-call interaction scratch: k*numFields^2
// must fit within it. Unlike the per-example gradient cache, whose length
// depends on the example's feature count, this scratch's size is known at
// configuration time, so it is validated once in NewFFMBlock. Both live in
// the worker's PortBuffer and are regrown there on demand.
const ffmContraBufLen = 16384

// FFMBlock computes the field-aware factorization machine interaction
// matrix for one example: an numFields*numFields tape region whose cell
// (F,G) holds
//
//	0.5 * <contra[F][G], contra[G][F]>   (F != G)
//	0.5 * (||contra[F][F]||^2 - selfSq[F])  (F == G)
//
// where contra[F][G][t] = sum over features f in field F of
// w_{f,G}[t]*value_f, and selfSq[F] = sum over features f in field F of
// value_f^2 * ||w_{f,F}||^2 (each feature's self-interaction, excluded from
// the diagonal). FFMBlock has no graph dependencies: it reads features
// straight off the Example, like a source block.
//
// Generic over the optimizer variant so weight updates are a direct method
// call rather than an interface dispatch repeated per feature per field.
type FFMBlock[O Optimizer] struct {
	BlockBase
	k         int
	numFields int
	weights   *FFMWeights[O]
}

// NewFFMBlock validates the interaction scratch budget and builds the block.
func NewFFMBlock[O Optimizer](weights *FFMWeights[O], numFields, k int) (*FFMBlock[O], error) {
	if k*numFields*numFields > ffmContraBufLen {
		return nil, configErrorf("ffm: k=%d numFields=%d exceeds interaction scratch budget (%d)", k, numFields, ffmContraBufLen)
	}
	return &FFMBlock[O]{
		BlockBase: NewBlockBase(),
		k:         k,
		numFields: numFields,
		weights:   weights,
	}, nil
}

func (b *FFMBlock[O]) NumOutputs() int { return b.numFields * b.numFields }

// Forward builds the contra accumulator, then in the same pass computes
// each output cell and caches the per-feature gradient term Backward needs.
// The cache is computed unconditionally, even when the example turns out
// not to be trainable: the cost is one multiply-add per feature/field/k,
// cheap next to the contra construction pass it shares.
func (b *FFMBlock[O]) Forward(ex *Example, pb *PortBuffer) {
	m, k := b.numFields, b.k
	out := pb.Slice(b.OutputOffset(), m*m)
	for i := range out {
		out[i] = 0
	}
	if len(ex.FFM) == 0 {
		return
	}

	pb.ffmContra = growFloat32(pb.ffmContra, m*m*k)
	contra := pb.ffmContra
	for i := range contra {
		contra[i] = 0
	}

	cells := b.weights.Cells
	fc := m * k // stride of the target-field dimension in contra

	// contra[targetField][ownField][t] += w_{f,targetField}[t] * value_f
	// for every feature f in ownField.
	for _, feat := range ex.FFM {
		base := int(b.weights.Base(feat.Hash))
		v := feat.Value
		for z := 0; z < m; z++ {
			wbase := base + z*k
			cbase := z*fc + feat.ContraFieldIndex
			for t := 0; t < k; t++ {
				contra[cbase+t] += cells[wbase+t] * v
			}
		}
	}

	pb.ffmGrad = growFloat32(pb.ffmGrad, len(ex.FFM)*m*k)
	grad := pb.ffmGrad
	idx := 0
	for _, feat := range ex.FFM {
		ownField := feat.ContraFieldIndex / k
		base := int(b.weights.Base(feat.Hash))
		v := feat.Value
		for z := 0; z < m; z++ {
			wbase := base + z*k
			// contra[ownField][z]: field z's features aimed at ownField.
			cbase := ownField*fc + z*k
			var correction float32
			if z == ownField {
				// Self-interaction: subtract this feature's own
				// contribution out of contra[F][F] before using it.
				for t := 0; t < k; t++ {
					w := cells[wbase+t]
					cw := contra[cbase+t] - w*v
					g := v * cw
					grad[idx+t] = g
					correction += w * g
				}
			} else {
				for t := 0; t < k; t++ {
					cw := contra[cbase+t]
					g := v * cw
					grad[idx+t] = g
					correction += cells[wbase+t] * g
				}
			}
			out[ownField*m+z] += correction * 0.5
			idx += k
		}
	}
}

// Backward applies the optimizer update to every weight this example
// touched. out still holds, cell for cell, the upstream gradient the
// consuming block wrote into this block's own output range during its own
// Backward — FFMBlock has no input offsets to overwrite in turn, since it
// reads features off the Example rather than off another block's output.
func (b *FFMBlock[O]) Backward(ex *Example, pb *PortBuffer) {
	if len(ex.FFM) == 0 {
		return
	}
	m, k := b.numFields, b.k
	out := pb.Slice(b.OutputOffset(), m*m)
	grad := pb.ffmGrad

	idx := 0
	for _, feat := range ex.FFM {
		ownField := feat.ContraFieldIndex / k
		base := b.weights.Base(feat.Hash)
		for z := 0; z < m; z++ {
			upstream := out[ownField*m+z]
			wbase := base + uint32(z*k)
			for t := 0; t < k; t++ {
				b.weights.Update(wbase+uint32(t), upstream*grad[idx+t])
			}
			idx += k
		}
	}
}
