// Package worker implements the per-partition training entry points. Each
// entry point is pure with respect to the coordinator: everything it needs
// arrives in a Task value, and its only outputs are the returned outcome
// (synchronous) or parameter-server traffic (asynchronous/hogwild).
package worker

import (
	"fmt"

	"github.com/skyhookml/distrain/distrain"
)

// Task carries the broadcast model state and training configuration into a
// partition.
type Task struct {
	// architecture JSON of the master model
	Arch []byte
	// broadcast initial weights
	Weights distrain.WeightSet
	Config  distrain.TrainingConfig
	Custom  distrain.CustomObjects
}

// Outcome is a synchronous partition's single result: the negated update
// (initial - final weights) plus the local training history.
type Outcome struct {
	Gradient distrain.WeightSet
	History  distrain.History
}

// rebuild reconstructs, compiles, and initializes a local model copy from
// the task's broadcast state.
func rebuild(task Task) (distrain.Trainable, error) {
	model, err := distrain.FromJSON(task.Arch, task.Custom)
	if err != nil {
		return nil, fmt.Errorf("reconstructing model: %v", err)
	}
	if err := model.Compile(task.Config.Optimizer, task.Config.Loss, task.Config.Metrics); err != nil {
		return nil, fmt.Errorf("compiling model: %v", err)
	}
	if err := model.SetWeights(task.Weights); err != nil {
		return nil, err
	}
	return model, nil
}

// Samples converts a partition's raw items into samples.
func Samples(items []interface{}) ([]distrain.Sample, error) {
	samples := make([]distrain.Sample, len(items))
	for i, item := range items {
		sample, ok := item.(distrain.Sample)
		if !ok {
			return nil, distrain.InputError{Reason: fmt.Sprintf("partition item %d is %T, want Sample", i, item)}
		}
		samples[i] = sample
	}
	return samples, nil
}

// Train is the synchronous per-partition entry point. It trains a local
// model copy on the partition's samples and returns exactly one outcome, or
// nil for an empty partition.
func Train(task Task, samples []distrain.Sample) (*Outcome, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	model, err := rebuild(task)
	if err != nil {
		return nil, err
	}

	initial := task.Weights.Copy()
	history, err := model.Fit(samples, task.Config)
	if err != nil {
		return nil, fmt.Errorf("training: %v", err)
	}

	gradient, err := distrain.SubtractParams(initial, model.GetWeights())
	if err != nil {
		return nil, err
	}
	return &Outcome{Gradient: gradient, History: history}, nil
}
