// Package models provides built-in Trainable implementations. Blank-import
// it to register them with the model registry.
package models

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/skyhookml/distrain/distrain"
)

func init() {
	distrain.RegisterModel("dense", func(config json.RawMessage) (distrain.Trainable, error) {
		var cfg DenseConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, distrain.SerializationError{Reason: fmt.Sprintf("bad dense config: %v", err)}
		}
		if cfg.In <= 0 || cfg.Out <= 0 {
			return nil, distrain.ConfigError{Reason: fmt.Sprintf("dense layer needs positive dims, got %dx%d", cfg.In, cfg.Out)}
		}
		return NewDense(cfg), nil
	})
}

type DenseConfig struct {
	In  int     `json:"in"`
	Out int     `json:"out"`
	LR  float64 `json:"lr"`
}

// Dense is a single fully-connected linear layer (y = Wx + b) trained with
// mini-batch SGD on half-MSE. It is the reference Trainable for the CLI and
// for exercising the coordinator end to end.
type Dense struct {
	cfg DenseConfig

	// weights[0] is W with shape [out, in], weights[1] is b with shape [out]
	w distrain.Tensor
	b distrain.Tensor

	optimizer string
	loss      string
	metrics   []string
}

func NewDense(cfg DenseConfig) *Dense {
	if cfg.LR == 0 {
		cfg.LR = 0.01
	}
	return &Dense{
		cfg: cfg,
		w:   distrain.NewTensor(cfg.Out, cfg.In),
		b:   distrain.NewTensor(cfg.Out),
	}
}

// RandomizeWeights initializes W with small random values.
func (d *Dense) RandomizeWeights(rnd *rand.Rand) {
	for i := range d.w.Data {
		d.w.Data[i] = rnd.NormFloat64() * 0.1
	}
}

func (d *Dense) GetWeights() distrain.WeightSet {
	return distrain.WeightSet{d.w, d.b}.Copy()
}

func (d *Dense) SetWeights(w distrain.WeightSet) error {
	if len(w) != 2 || w[0].Size() != d.cfg.In*d.cfg.Out || w[1].Size() != d.cfg.Out {
		return distrain.InputError{Reason: "weight set does not match dense layer shape"}
	}
	d.w = w[0].Copy()
	d.b = w[1].Copy()
	return nil
}

func (d *Dense) Compile(optimizer string, loss string, metrics []string) error {
	if optimizer != "sgd" {
		return distrain.ConfigError{Reason: fmt.Sprintf("dense supports only the sgd optimizer, got %q", optimizer)}
	}
	if loss != "mse" {
		return distrain.ConfigError{Reason: fmt.Sprintf("dense supports only the mse loss, got %q", loss)}
	}
	for _, m := range metrics {
		if m != "mae" {
			return distrain.ConfigError{Reason: fmt.Sprintf("unknown metric %q", m)}
		}
	}
	d.optimizer = optimizer
	d.loss = loss
	d.metrics = metrics
	return nil
}

func (d *Dense) forward(x []float64) []float64 {
	out := make([]float64, d.cfg.Out)
	for j := 0; j < d.cfg.Out; j++ {
		sum := d.b.Data[j]
		row := d.w.Data[j*d.cfg.In : (j+1)*d.cfg.In]
		for i, xi := range x {
			sum += row[i] * xi
		}
		out[j] = sum
	}
	return out
}

// trainBatch does one SGD step on a mini-batch and returns its mean loss.
func (d *Dense) trainBatch(batch []distrain.Sample) (float64, error) {
	gradW := make([]float64, len(d.w.Data))
	gradB := make([]float64, len(d.b.Data))
	loss := 0.0
	for _, sample := range batch {
		if len(sample.X) != d.cfg.In || len(sample.Y) != d.cfg.Out {
			return 0, distrain.InputError{Reason: fmt.Sprintf("sample shape (%d,%d) does not match layer (%d,%d)", len(sample.X), len(sample.Y), d.cfg.In, d.cfg.Out)}
		}
		pred := d.forward(sample.X)
		for j := range pred {
			e := pred[j] - sample.Y[j]
			loss += 0.5 * e * e
			gradB[j] += e
			for i, xi := range sample.X {
				gradW[j*d.cfg.In+i] += e * xi
			}
		}
	}
	n := float64(len(batch))
	step := d.cfg.LR / n
	for i := range d.w.Data {
		d.w.Data[i] -= step * gradW[i]
	}
	for j := range d.b.Data {
		d.b.Data[j] -= step * gradB[j]
	}
	return loss / n, nil
}

func (d *Dense) meanLoss(samples []distrain.Sample) float64 {
	loss := 0.0
	for _, sample := range samples {
		pred := d.forward(sample.X)
		for j := range pred {
			e := pred[j] - sample.Y[j]
			loss += 0.5 * e * e
		}
	}
	return loss / float64(len(samples))
}

func (d *Dense) Fit(samples []distrain.Sample, cfg distrain.TrainingConfig) (distrain.History, error) {
	if d.loss == "" {
		return nil, distrain.ConfigError{Reason: "dense model not compiled"}
	}
	train := samples
	var val []distrain.Sample
	if cfg.ValidationSplit > 0 && cfg.ValidationSplit < 1 {
		cut := len(samples) - int(float64(len(samples))*cfg.ValidationSplit)
		if cut < 1 {
			cut = 1
		}
		train, val = samples[:cut], samples[cut:]
	}

	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(train)
	}

	history := distrain.History{}
	for epoch := 0; epoch < epochs; epoch++ {
		epochLoss := 0.0
		numBatches := 0
		for start := 0; start < len(train); start += batchSize {
			end := start + batchSize
			if end > len(train) {
				end = len(train)
			}
			batchLoss, err := d.trainBatch(train[start:end])
			if err != nil {
				return nil, err
			}
			epochLoss += batchLoss
			numBatches++
		}
		if numBatches > 0 {
			epochLoss /= float64(numBatches)
		}
		history["loss"] = append(history["loss"], epochLoss)
		if len(val) > 0 {
			history["val_loss"] = append(history["val_loss"], d.meanLoss(val))
		}
		if cfg.Verbose > 0 {
			fmt.Printf("epoch %d/%d: loss=%.6f\n", epoch+1, epochs, epochLoss)
		}
	}
	return history, nil
}

func (d *Dense) Predict(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, features := range x {
		if len(features) != d.cfg.In {
			return nil, distrain.InputError{Reason: fmt.Sprintf("feature vector %d has %d values, want %d", i, len(features), d.cfg.In)}
		}
		out[i] = d.forward(features)
	}
	return out, nil
}

func (d *Dense) Evaluate(samples []distrain.Sample) ([]float64, error) {
	if d.loss == "" {
		return nil, distrain.ConfigError{Reason: "dense model not compiled"}
	}
	if len(samples) == 0 {
		return nil, distrain.InputError{Reason: "evaluate on empty sample set"}
	}
	values := []float64{d.meanLoss(samples)}
	for _, metric := range d.metrics {
		if metric == "mae" {
			mae := 0.0
			for _, sample := range samples {
				pred := d.forward(sample.X)
				for j := range pred {
					diff := pred[j] - sample.Y[j]
					if diff < 0 {
						diff = -diff
					}
					mae += diff
				}
			}
			values = append(values, mae/float64(len(samples)))
		}
	}
	return values, nil
}

func (d *Dense) ToJSON() ([]byte, error) {
	return distrain.MarshalArch("dense", d.cfg)
}
