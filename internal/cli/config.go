package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/happyhackingspace/ffml"
	"github.com/happyhackingspace/ffml/engine"
	"github.com/happyhackingspace/ffml/parser"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fieldSpec names one FFM field and the namespaces that feed it, as
// written in a YAML config file's "fields" list.
type fieldSpec struct {
	Name       string   `yaml:"name"`
	Namespaces []string `yaml:"namespaces"`
}

// fileConfig is what --config loads. resolve applies only namespaces,
// fields and nn_layers from it, each only when the matching flag was left
// empty; the other keys are decoded but have no effect, so those settings
// always come from their flags.
type fileConfig struct {
	Namespaces      string      `yaml:"namespaces"`
	Fields          []fieldSpec `yaml:"fields"`
	LRBits          uint        `yaml:"lr_bits"`
	FFMBits         uint        `yaml:"ffm_bits"`
	FFMK            int         `yaml:"ffm_k"`
	Optimizer       string      `yaml:"optimizer"`
	LearningRate    float32     `yaml:"learning_rate"`
	PowerT          float32     `yaml:"power_t"`
	InitAccGradient float32     `yaml:"init_acc_gradient"`
	InitWidth       float32     `yaml:"init_width"`
	InitCenter      float32     `yaml:"init_center"`
	InitZeroBand    float32     `yaml:"init_zero_band"`
	Workers         int         `yaml:"workers"`
	ChannelDepth    int         `yaml:"channel_depth"`
	NNLayers        []string    `yaml:"nn_layers"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cli: reading config %q: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("cli: parsing config %q: %w", path, err)
	}
	return &fc, nil
}

// modelFlags is the flag set shared by train, predict, and daemon — each
// command registers it on its own cobra.Command so the flags can carry
// per-command defaults and help text.
type modelFlags struct {
	configPath      string
	namespacesPath  string
	fields          []string // "name=ns1,ns2" repeated
	lrBits          uint
	ffmBits         uint
	ffmK            int
	optimizer       string
	learningRate    float32
	powerT          float32
	initAccGradient float32
	initWidth       float32
	initCenter      float32
	initZeroBand    float32
	workers         int
	channelDepth    int
	nnLayers        []string // "width:activation:dropout:maxnorm:double", repeatable
}

func (mf *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&mf.configPath, "config", "", "YAML config file (flags override its values)")
	cmd.Flags().StringVar(&mf.namespacesPath, "namespaces", "", "Namespace declaration CSV (name,verbose,[f32])")
	cmd.Flags().StringArrayVar(&mf.fields, "field", nil, "FFM field definition \"name=ns1,ns2\" (repeatable)")
	cmd.Flags().UintVar(&mf.lrBits, "lr-bits", 22, "LR weight table bit precision")
	cmd.Flags().UintVar(&mf.ffmBits, "ffm-bits", 22, "FFM weight table bit precision")
	cmd.Flags().IntVar(&mf.ffmK, "ffm-k", 4, "FFM embedding width")
	cmd.Flags().StringVar(&mf.optimizer, "optimizer", string(ffml.AdaGradLUT), "sgd | adagrad-flex | adagrad-lut")
	cmd.Flags().Float32Var(&mf.learningRate, "learning-rate", 0.1, "Optimizer learning rate")
	cmd.Flags().Float32Var(&mf.powerT, "power-t", 0.5, "AdaGrad accumulator power")
	cmd.Flags().Float32Var(&mf.initAccGradient, "init-acc-gradient", 0, "AdaGrad initial accumulator value")
	cmd.Flags().Float32Var(&mf.initWidth, "init-width", 0, "FFM weight init band width (0 = sqrt-based default)")
	cmd.Flags().Float32Var(&mf.initCenter, "init-center", 0, "FFM weight init band center")
	cmd.Flags().Float32Var(&mf.initZeroBand, "init-zero-band", 0, "FFM weight init zero-exclusion fraction")
	cmd.Flags().IntVar(&mf.workers, "workers", 1, "Hogwild worker count")
	cmd.Flags().IntVar(&mf.channelDepth, "channel-depth", 1024, "Hogwild dispatch channel depth")
	cmd.Flags().StringArrayVar(&mf.nnLayers, "nn-layer",
		nil, "Dense layer \"width:activation:dropout:maxnorm:double\" stacked ahead of the loss block (repeatable); "+
			"activation is one of none|leaky-relu|normalize|stop-gradient, double is true|false")
}

// resolve merges an optional --config file underneath whatever flags the
// user actually set, then builds the parser and model the merged values
// describe.
func (mf *modelFlags) resolve() (ffml.Model, *parser.Parser, error) {
	fieldGroups, err := mf.parseFieldGroups()
	if err != nil {
		return nil, nil, err
	}

	if mf.configPath != "" {
		fc, err := loadFileConfig(mf.configPath)
		if err != nil {
			return nil, nil, err
		}
		if mf.namespacesPath == "" {
			mf.namespacesPath = fc.Namespaces
		}
		if len(fieldGroups) == 0 {
			for _, f := range fc.Fields {
				fieldGroups = append(fieldGroups, f.Namespaces)
			}
		}
		if len(mf.nnLayers) == 0 {
			mf.nnLayers = fc.NNLayers
		}
	}

	nnLayers, err := parseNNLayers(mf.nnLayers)
	if err != nil {
		return nil, nil, err
	}

	if mf.namespacesPath == "" {
		return nil, nil, fmt.Errorf("cli: --namespaces (or --config) is required")
	}

	fieldOf := map[string]int{}
	for i, names := range fieldGroups {
		for _, name := range names {
			fieldOf[name] = i
		}
	}

	f, err := os.Open(mf.namespacesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cli: opening namespaces file: %w", err)
	}
	defer f.Close()

	namespaces, err := parser.LoadNamespaces(f, fieldOf)
	if err != nil {
		return nil, nil, err
	}

	cfg := ffml.Config{
		Model: engine.ModelInstance{
			LRBitPrecision:  mf.lrBits,
			FFMBitPrecision: mf.ffmBits,
			FFMK:            mf.ffmK,
			Init: engine.WeightInit{
				Width:    mf.initWidth,
				Center:   mf.initCenter,
				ZeroBand: mf.initZeroBand,
			},
			NNLayers: nnLayers,
		},
		Optimizer:       ffml.OptimizerKind(mf.optimizer),
		LearningRate:    mf.learningRate,
		PowerT:          mf.powerT,
		InitAccGradient: mf.initAccGradient,
	}
	for i := range fieldGroups {
		cfg.Model.Fields = append(cfg.Model.Fields, engine.FieldDef{Name: fmt.Sprintf("field%d", i)})
	}

	model, err := ffml.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	p := parser.NewParser(namespaces, mf.ffmK)
	return model, p, nil
}

func (mf *modelFlags) parseFieldGroups() ([][]string, error) {
	groups := make([][]string, 0, len(mf.fields))
	for _, spec := range mf.fields {
		name, names, ok := strings.Cut(spec, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("cli: malformed --field %q, want name=ns1,ns2", spec)
		}
		groups = append(groups, strings.Split(names, ","))
	}
	return groups, nil
}

// parseNNLayers decodes repeated "width:activation:dropout:maxnorm:double"
// specs into NNLayerSpecs, in the order given — that order is the stacking
// order applied ahead of the loss block. Every field past width is
// optional and defaults to "off".
func parseNNLayers(specs []string) ([]engine.NNLayerSpec, error) {
	layers := make([]engine.NNLayerSpec, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) == 0 || len(parts) > 5 {
			return nil, fmt.Errorf("cli: malformed --nn-layer %q, want width[:activation[:dropout[:maxnorm[:double]]]]", spec)
		}

		width, err := strconv.Atoi(parts[0])
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("cli: malformed --nn-layer width %q in %q", parts[0], spec)
		}
		layer := engine.NNLayerSpec{Width: width, Init: engine.NeuronInitGaussian}

		if len(parts) >= 2 && parts[1] != "" {
			switch parts[1] {
			case "none":
				layer.Activation = engine.NNActivationNone
			case "leaky-relu":
				layer.Activation = engine.NNActivationLeakyReLU
			case "normalize":
				layer.Activation = engine.NNActivationNormalize
			case "stop-gradient":
				layer.Activation = engine.NNActivationStopGradient
			default:
				return nil, fmt.Errorf("cli: unknown --nn-layer activation %q in %q", parts[1], spec)
			}
		}
		if len(parts) >= 3 && parts[2] != "" {
			d, err := strconv.ParseFloat(parts[2], 32)
			if err != nil {
				return nil, fmt.Errorf("cli: malformed --nn-layer dropout %q in %q", parts[2], spec)
			}
			layer.Dropout = float32(d)
		}
		if len(parts) >= 4 && parts[3] != "" {
			m, err := strconv.ParseFloat(parts[3], 32)
			if err != nil {
				return nil, fmt.Errorf("cli: malformed --nn-layer maxnorm %q in %q", parts[3], spec)
			}
			layer.MaxNorm = float32(m)
		}
		if len(parts) >= 5 && parts[4] != "" {
			double, err := strconv.ParseBool(parts[4])
			if err != nil {
				return nil, fmt.Errorf("cli: malformed --nn-layer double %q in %q", parts[4], spec)
			}
			layer.Double = double
		}

		layers = append(layers, layer)
	}
	return layers, nil
}
