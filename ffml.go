// Package ffml is the top-level entry point for building and running a
// field-aware factorization machine regressor: it picks an optimizer at
// runtime and boxes the resulting generic Regressor behind a plain
// interface, so CLI code never needs a type parameter of its own.
package ffml

import (
	"fmt"
	"io"

	"github.com/happyhackingspace/ffml/engine"
	"github.com/happyhackingspace/ffml/hogwild"
	"github.com/happyhackingspace/ffml/persist"
)

// OptimizerKind names one of the per-weight update rules a Model can use.
type OptimizerKind string

const (
	SGD         OptimizerKind = "sgd"
	AdaGradFlex OptimizerKind = "adagrad-flex"
	AdaGradLUT  OptimizerKind = "adagrad-lut"
)

// Config is the fully-resolved configuration for New: CLI flags and an
// optional config file have already been merged by the caller.
type Config struct {
	Model engine.ModelInstance

	Optimizer       OptimizerKind
	LearningRate    float32
	PowerT          float32
	InitAccGradient float32
}

// Model is a regressor boxed behind its optimizer's concrete type.
type Model interface {
	Predict(ex *engine.Example, pb *engine.PortBuffer) float32
	Learn(ex *engine.Example, pb *engine.PortBuffer) float32
	NewWorkerBuffer() *engine.PortBuffer
	LossBlock() *engine.LossBlock
	WriteWeights(w io.Writer) error
	ReadWeights(r io.Reader) error
	NewPool(numWorkers, channelDepth int) hogwild.Dispatcher
}

type model[O engine.Optimizer] struct {
	r *engine.Regressor[O]
}

func (m *model[O]) Predict(ex *engine.Example, pb *engine.PortBuffer) float32 {
	return m.r.Predict(ex, pb)
}

func (m *model[O]) Learn(ex *engine.Example, pb *engine.PortBuffer) float32 {
	return m.r.Learn(ex, pb)
}

func (m *model[O]) NewWorkerBuffer() *engine.PortBuffer { return m.r.NewWorkerBuffer() }
func (m *model[O]) LossBlock() *engine.LossBlock        { return m.r.LossBlock() }

func (m *model[O]) WriteWeights(w io.Writer) error { return persist.Write(w, m.r.SharedWeights()) }
func (m *model[O]) ReadWeights(r io.Reader) error  { return persist.Read(r, m.r.SharedWeights()) }

func (m *model[O]) NewPool(numWorkers, channelDepth int) hogwild.Dispatcher {
	return hogwild.NewPool(m.r, numWorkers, channelDepth)
}

func newModel[O engine.Optimizer](cfg Config, opt O) (Model, error) {
	r, err := engine.NewRegressor(cfg.Model, opt)
	if err != nil {
		return nil, fmt.Errorf("ffml: %w", err)
	}
	return &model[O]{r: r}, nil
}

// New builds a Model using the optimizer named in cfg.Optimizer.
func New(cfg Config) (Model, error) {
	switch cfg.Optimizer {
	case SGD, "":
		return newModel(cfg, engine.SGD{LearningRate: cfg.LearningRate})
	case AdaGradFlex:
		return newModel(cfg, engine.AdaGradFlex{
			LearningRate:    cfg.LearningRate,
			PowerT:          cfg.PowerT,
			InitAccGradient: cfg.InitAccGradient,
		})
	case AdaGradLUT:
		return newModel(cfg, engine.NewAdaGradLUT(cfg.LearningRate, cfg.PowerT, cfg.InitAccGradient))
	default:
		return nil, fmt.Errorf("ffml: unknown optimizer %q", cfg.Optimizer)
	}
}
