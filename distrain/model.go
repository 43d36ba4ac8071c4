package distrain

import (
	"encoding/json"
	"fmt"
)

// Sample is one (features, label) pair of a training or evaluation dataset.
type Sample struct {
	X []float64
	Y []float64
}

// History records one local training run, keyed by metric name
// ("loss", "val_loss", ...) with one value per epoch.
type History map[string][]float64

// TrainingConfig is everything a worker needs to compile and train a
// reconstructed model. It is immutable once dispatched to a partition.
type TrainingConfig struct {
	Epochs          int      `json:"epochs"`
	BatchSize       int      `json:"batch_size"`
	Verbose         int      `json:"verbose"`
	ValidationSplit float64  `json:"validation_split"`
	Optimizer       string   `json:"optimizer"`
	Loss            string   `json:"loss"`
	Metrics         []string `json:"metrics"`
}

// Trainable is the opaque model the coordinator works against. Any numeric
// model can be substituted as long as it can ship its architecture as JSON
// and its parameters as a WeightSet.
type Trainable interface {
	GetWeights() WeightSet
	SetWeights(w WeightSet) error
	Compile(optimizer string, loss string, metrics []string) error
	Fit(samples []Sample, cfg TrainingConfig) (History, error)
	Predict(x [][]float64) ([][]float64, error)
	// Evaluate returns the loss followed by one value per compiled metric.
	Evaluate(samples []Sample) ([]float64, error)
	ToJSON() ([]byte, error)
}

// Builder reconstructs a Trainable from its architecture config JSON.
type Builder func(config json.RawMessage) (Trainable, error)

// CustomObjects supplies builders for non-standard model classes that are
// not in the global registry, keyed by class name.
type CustomObjects map[string]Builder

var modelBuilders = make(map[string]Builder)

// RegisterModel registers a builder under a model class name. Typically
// called from init() of the package providing the model.
func RegisterModel(className string, builder Builder) {
	modelBuilders[className] = builder
}

// archEnvelope is the shape of every architecture JSON document.
type archEnvelope struct {
	ClassName string          `json:"class_name"`
	Config    json.RawMessage `json:"config"`
}

// MarshalArch builds an architecture JSON document for a model class.
func MarshalArch(className string, config interface{}) ([]byte, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(archEnvelope{ClassName: className, Config: raw})
}

// FromJSON reconstructs a model instance from architecture JSON, consulting
// custom objects before the global registry.
func FromJSON(archJSON []byte, custom CustomObjects) (Trainable, error) {
	var env archEnvelope
	if err := json.Unmarshal(archJSON, &env); err != nil {
		return nil, SerializationError{Reason: fmt.Sprintf("bad architecture JSON: %v", err)}
	}
	builder := custom[env.ClassName]
	if builder == nil {
		builder = modelBuilders[env.ClassName]
	}
	if builder == nil {
		return nil, SerializationError{Reason: fmt.Sprintf("unknown model class %q", env.ClassName)}
	}
	return builder(env.Config)
}

// ModelDescriptor is the transport-safe form of a Trainable: its
// architecture JSON plus its current weights.
type ModelDescriptor struct {
	Arch    json.RawMessage `json:"arch"`
	Weights WeightSet       `json:"weights"`
}

// EncodeModel converts a model into a descriptor for shipping or saving.
func EncodeModel(m Trainable) (ModelDescriptor, error) {
	arch, err := m.ToJSON()
	if err != nil {
		return ModelDescriptor{}, err
	}
	return ModelDescriptor{
		Arch:    arch,
		Weights: m.GetWeights(),
	}, nil
}

// DecodeModel reconstructs a model from a descriptor and restores its
// weights.
func DecodeModel(desc ModelDescriptor, custom CustomObjects) (Trainable, error) {
	m, err := FromJSON(desc.Arch, custom)
	if err != nil {
		return nil, err
	}
	if err := m.SetWeights(desc.Weights); err != nil {
		return nil, err
	}
	return m, nil
}
