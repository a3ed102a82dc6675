// Package persist reads and writes weight/optimizer-state files in a raw,
// header-less format.
package persist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/happyhackingspace/ffml/engine"
)

// Write concatenates, in declaration order, the LR weights, LR optimizer
// state, FFM weights, and FFM optimizer state as raw little-endian f32s.
// No header, no checksum, no length prefix.
func Write[O engine.Optimizer](w io.Writer, shared *engine.SharedWeights[O]) error {
	bw := bufio.NewWriter(w)
	if err := writeFloats(bw, shared.LR.Cells); err != nil {
		return fmt.Errorf("persist: writing LR weights: %w", err)
	}
	if err := writeOptData(bw, shared.LR.OptData); err != nil {
		return fmt.Errorf("persist: writing LR optimizer state: %w", err)
	}
	if err := writeFloats(bw, shared.FFM.Cells); err != nil {
		return fmt.Errorf("persist: writing FFM weights: %w", err)
	}
	if err := writeOptData(bw, shared.FFM.OptData); err != nil {
		return fmt.Errorf("persist: writing FFM optimizer state: %w", err)
	}
	return bw.Flush()
}

// Read fills shared's weight cells from r, in the same declaration order
// Write uses. Three shapes are accepted: LR weights only (a partial write),
// both weight sections with both optimizer-state sections omitted entirely
// (the realistic forward-only export), or all four sections. The shape is
// picked from the total trailing byte count after the LR weights rather than
// from "ran out of bytes mid-section": the LR optimizer-state section is
// exactly as long as the FFM weights section that immediately follows it, so
// a short read of the former would otherwise silently consume bytes that
// belong to the latter instead of signaling that it's absent.
func Read[O engine.Optimizer](r io.Reader, shared *engine.SharedWeights[O]) error {
	lrWeightsLen := 4 * len(shared.LR.Cells)
	lrOptLen := 4 * len(shared.LR.OptData)
	ffmWeightsLen := 4 * len(shared.FFM.Cells)
	ffmOptLen := 4 * len(shared.FFM.OptData)

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("persist: reading weight file: %w", err)
	}

	if len(data) < lrWeightsLen {
		return fmt.Errorf("persist: reading LR weights: %w", io.ErrUnexpectedEOF)
	}
	if err := readFloats(bytes.NewReader(data[:lrWeightsLen]), shared.LR.Cells); err != nil {
		return fmt.Errorf("persist: reading LR weights: %w", err)
	}
	data = data[lrWeightsLen:]

	if len(data) == 0 {
		return nil // forward-only: LR weights only, nothing else was written
	}

	withOptState := lrOptLen + ffmWeightsLen + ffmOptLen
	switch len(data) {
	case ffmWeightsLen:
		// forward-only: both weight sections present, both optimizer-state
		// sections omitted entirely.
	case withOptState:
		if err := readOptData(bytes.NewReader(data[:lrOptLen]), shared.LR.OptData); err != nil {
			return fmt.Errorf("persist: reading LR optimizer state: %w", err)
		}
		data = data[lrOptLen:]
	default:
		return fmt.Errorf("persist: weight file has %d trailing bytes after LR weights, want %d (forward-only) or %d (with optimizer state)",
			len(data), ffmWeightsLen, withOptState)
	}

	if err := readFloats(bytes.NewReader(data[:ffmWeightsLen]), shared.FFM.Cells); err != nil {
		return fmt.Errorf("persist: reading FFM weights: %w", err)
	}
	data = data[ffmWeightsLen:]

	if len(data) == 0 {
		return nil // forward-only: no FFM optimizer state present
	}
	if err := readOptData(bytes.NewReader(data[:ffmOptLen]), shared.FFM.OptData); err != nil {
		return fmt.Errorf("persist: reading FFM optimizer state: %w", err)
	}
	return nil
}

func writeFloats(w io.Writer, cells []float32) error {
	buf := make([]byte, 4*len(cells))
	for i, v := range cells {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func readFloats(r io.Reader, cells []float32) error {
	buf := make([]byte, 4*len(cells))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range cells {
		cells[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return nil
}

func writeOptData(w io.Writer, data []engine.OptimizerData) error {
	buf := make([]byte, 4*len(data))
	for i, d := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(d.AccG))
	}
	_, err := w.Write(buf)
	return err
}

// readOptData returns a non-nil error (including io.EOF / io.ErrUnexpectedEOF)
// if fewer bytes than a full optimizer-state section were available.
func readOptData(r io.Reader, data []engine.OptimizerData) error {
	buf := make([]byte, 4*len(data))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range data {
		data[i] = engine.OptimizerData{AccG: math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))}
	}
	return nil
}
