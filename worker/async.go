package worker

import (
	"fmt"

	"github.com/skyhookml/distrain/distrain"
	"github.com/skyhookml/distrain/params"
)

// TrainAsync is the asynchronous/hogwild per-partition entry point. At every
// synchronization period (one local epoch or one mini-batch, per freq) it
// pushes the delta accumulated since the last period to the parameter server
// and refreshes its local weights from the current global snapshot. The
// parameter store is the channel of record; nothing is returned.
//
// The difference between asynchronous and hogwild lives entirely in the
// store's locking discipline on the server side, not here.
func TrainAsync(task Task, freq distrain.Frequency, client params.Client, samples []distrain.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	model, err := rebuild(task)
	if err != nil {
		return err
	}

	cfg := task.Config
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}

	// train one period, push the delta, pull the fresh snapshot
	syncPeriod := func(periodSamples []distrain.Sample, periodCfg distrain.TrainingConfig) error {
		before := model.GetWeights()
		if _, err := model.Fit(periodSamples, periodCfg); err != nil {
			return fmt.Errorf("training: %v", err)
		}
		delta, err := distrain.SubtractParams(before, model.GetWeights())
		if err != nil {
			return err
		}
		if err := client.SendDelta(delta); err != nil {
			return err
		}
		refreshed, err := client.GetParameters()
		if err != nil {
			return err
		}
		return model.SetWeights(refreshed)
	}

	switch freq {
	case distrain.PerEpoch:
		epochCfg := cfg
		epochCfg.Epochs = 1
		for epoch := 0; epoch < epochs; epoch++ {
			if err := syncPeriod(samples, epochCfg); err != nil {
				return err
			}
		}
	case distrain.PerBatch:
		batchCfg := cfg
		batchCfg.Epochs = 1
		batchCfg.ValidationSplit = 0
		batchSize := cfg.BatchSize
		if batchSize <= 0 {
			batchSize = len(samples)
		}
		for epoch := 0; epoch < epochs; epoch++ {
			for start := 0; start < len(samples); start += batchSize {
				end := start + batchSize
				if end > len(samples) {
					end = len(samples)
				}
				if err := syncPeriod(samples[start:end], batchCfg); err != nil {
					return err
				}
			}
		}
	default:
		return distrain.ConfigError{Reason: fmt.Sprintf("unknown frequency %q", freq)}
	}
	return nil
}
