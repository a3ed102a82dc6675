// Package cache reads and writes pre-parsed examples in a raw, header-less
// frame format: the same little-endian, no-checksum philosophy persist
// uses for weight files, applied to engine.Example instead. A cache file
// lets a training run skip re-tokenizing and re-hashing text records it
// has already seen once.
package cache

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/happyhackingspace/ffml/engine"
)

// WriteExample appends one frame to w: hasLabel, label, importance, serial,
// the LR feature list, the FFM feature list, then the FFM field count.
// Frames are simply concatenated; the file has no header or index, so
// reading means replaying WriteExample's order with ReadExample until EOF.
func WriteExample(w *bufio.Writer, ex *engine.Example) error {
	var hasLabel uint8
	if ex.HasLabel {
		hasLabel = 1
	}
	if err := w.WriteByte(hasLabel); err != nil {
		return err
	}
	if err := writeF32(w, ex.Label); err != nil {
		return err
	}
	if err := writeF32(w, ex.Importance); err != nil {
		return err
	}
	if err := writeU64(w, ex.Serial); err != nil {
		return err
	}

	if err := writeU32(w, uint32(len(ex.LR))); err != nil {
		return err
	}
	for _, f := range ex.LR {
		if err := writeU32(w, f.Hash); err != nil {
			return err
		}
		if err := writeF32(w, f.Value); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(ex.FFM))); err != nil {
		return err
	}
	for _, f := range ex.FFM {
		if err := writeU32(w, f.Hash); err != nil {
			return err
		}
		if err := writeF32(w, f.Value); err != nil {
			return err
		}
		if err := writeU32(w, uint32(f.ContraFieldIndex)); err != nil {
			return err
		}
	}

	return writeU32(w, uint32(ex.FFMFieldsCount))
}

// ReadExample decodes one frame written by WriteExample. It returns
// io.EOF (unwrapped, so callers can test with errors.Is) only when r is
// exhausted exactly at a frame boundary; a frame cut short anywhere else
// is reported as a wrapped io.ErrUnexpectedEOF.
func ReadExample(r *bufio.Reader) (*engine.Example, error) {
	hasLabel, err := r.ReadByte()
	if err != nil {
		return nil, err // clean EOF between frames
	}

	ex := &engine.Example{HasLabel: hasLabel != 0}
	if ex.Label, err = readF32(r); err != nil {
		return nil, fmt.Errorf("cache: reading label: %w", err)
	}
	if ex.Importance, err = readF32(r); err != nil {
		return nil, fmt.Errorf("cache: reading importance: %w", err)
	}
	if ex.Serial, err = readU64(r); err != nil {
		return nil, fmt.Errorf("cache: reading serial: %w", err)
	}

	lrCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("cache: reading LR count: %w", err)
	}
	ex.LR = make([]engine.LRFeature, lrCount)
	for i := range ex.LR {
		if ex.LR[i].Hash, err = readU32(r); err != nil {
			return nil, fmt.Errorf("cache: reading LR feature %d: %w", i, err)
		}
		if ex.LR[i].Value, err = readF32(r); err != nil {
			return nil, fmt.Errorf("cache: reading LR feature %d: %w", i, err)
		}
	}

	ffmCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("cache: reading FFM count: %w", err)
	}
	ex.FFM = make([]engine.FFMFeature, ffmCount)
	for i := range ex.FFM {
		if ex.FFM[i].Hash, err = readU32(r); err != nil {
			return nil, fmt.Errorf("cache: reading FFM feature %d: %w", i, err)
		}
		if ex.FFM[i].Value, err = readF32(r); err != nil {
			return nil, fmt.Errorf("cache: reading FFM feature %d: %w", i, err)
		}
		contra, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("cache: reading FFM feature %d: %w", i, err)
		}
		ex.FFM[i].ContraFieldIndex = int(contra)
	}

	fieldsCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("cache: reading FFM fields count: %w", err)
	}
	ex.FFMFieldsCount = int(fieldsCount)

	return ex, nil
}

func writeF32(w io.ByteWriter, v float32) error {
	return writeU32From(w, math.Float32bits(v))
}

func readF32(r io.ByteReader) (float32, error) {
	bits, err := readU32(r)
	return math.Float32frombits(bits), err
}

func writeU32(w io.ByteWriter, v uint32) error { return writeU32From(w, v) }

func writeU32From(w io.ByteWriter, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	for _, b := range buf {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

func readU32(r io.ByteReader) (uint32, error) {
	var buf [4]byte
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			// Every readU32 call sits inside a frame, so EOF here is a cut-short frame.
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		buf[i] = b
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeU64(w io.ByteWriter, v uint64) error {
	if err := writeU32From(w, uint32(v)); err != nil {
		return err
	}
	return writeU32From(w, uint32(v>>32))
}

func readU64(r io.ByteReader) (uint64, error) {
	lo, err := readU32(r)
	if err != nil {
		return 0, err
	}
	hi, err := readU32(r)
	if err != nil {
		return 0, err
	}
	return uint64(lo) | uint64(hi)<<32, nil
}
