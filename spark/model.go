// Package spark implements the orchestrator: it owns the master model and
// the parameter-server session, dispatches per-partition workers through a
// distributed engine, and reconciles their updates into the master weights
// under the configured mode.
package spark

import (
	"fmt"
	"log"
	"sort"

	"github.com/skyhookml/distrain/distrain"
	"github.com/skyhookml/distrain/engine"
	"github.com/skyhookml/distrain/params"
	"github.com/skyhookml/distrain/worker"
)

// DefaultPort is the parameter server port used when Config.Port is unset.
const DefaultPort = 4000

type Config struct {
	// one of asynchronous, synchronous, hogwild (default asynchronous)
	Mode distrain.Mode
	// epoch or batch synchronization granularity (default epoch)
	Frequency distrain.Frequency
	// parameter server transport, http or socket (default http)
	ParameterServerMode string
	// repartition the input to this many partitions before dispatch
	NumWorkers int
	// parameter server port (0 uses DefaultPort, negative picks a free port)
	Port int
	// extra configuration carried through save/load untouched
	Extra map[string]interface{}
}

func (cfg *Config) applyDefaults() {
	if cfg.Mode == "" {
		cfg.Mode = distrain.Asynchronous
	}
	if cfg.Frequency == "" {
		cfg.Frequency = distrain.PerEpoch
	}
	if cfg.ParameterServerMode == "" {
		cfg.ParameterServerMode = params.TransportHTTP
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
}

// SparkModel coordinates distributed training of one master model. It
// exclusively owns the master weights and the parameter-server session;
// workers only ever talk to it through updates.
type SparkModel struct {
	master distrain.Trainable
	train  distrain.TrainingConfig
	cfg    Config
	custom distrain.CustomObjects
	eng    engine.Engine

	// live parameter store, only for mode != synchronous
	store *params.Store

	histories []distrain.History
}

// New builds an orchestrator around a master model. The training config must
// carry the compile settings (optimizer and loss); constructing from an
// uncompiled model is an error, matching the contract that the master is
// compiled before distribution.
func New(model distrain.Trainable, train distrain.TrainingConfig, cfg Config, custom distrain.CustomObjects, eng engine.Engine) (*SparkModel, error) {
	if train.Optimizer == "" || train.Loss == "" {
		return nil, distrain.ConfigError{Reason: "compile the master model (set optimizer and loss) before constructing"}
	}
	cfg.applyDefaults()
	m := &SparkModel{
		master: model,
		train:  train,
		cfg:    cfg,
		custom: custom,
		eng:    eng,
	}
	if cfg.Mode != distrain.Synchronous {
		m.store = params.NewStore(cfg.Mode, model.GetWeights())
	}
	return m, nil
}

func (m *SparkModel) Master() distrain.Trainable {
	return m.master
}

func (m *SparkModel) TrainingHistories() []distrain.History {
	return m.histories
}

// GetConfig returns the distributed configuration, sufficient to
// reconstruct this orchestrator on load.
func (m *SparkModel) GetConfig() map[string]interface{} {
	config := map[string]interface{}{
		"parameter_server_mode": m.cfg.ParameterServerMode,
		"mode":                  m.cfg.Mode,
		"frequency":             m.cfg.Frequency,
		"num_workers":           m.cfg.NumWorkers,
		"batch_size":            m.train.BatchSize,
	}
	for k, v := range m.cfg.Extra {
		config[k] = v
	}
	return config
}

// Fit trains the master model on a dataset of distrain.Sample items.
func (m *SparkModel) Fit(dataset engine.Dataset) error {
	if !m.cfg.Mode.Valid() {
		return distrain.ConfigError{Reason: fmt.Sprintf("mode %q: choose from asynchronous, synchronous or hogwild", m.cfg.Mode)}
	}
	if m.cfg.NumWorkers > 0 {
		dataset = dataset.Repartition(m.cfg.NumWorkers)
	}

	if err := m.master.Compile(m.train.Optimizer, m.train.Loss, m.train.Metrics); err != nil {
		return err
	}
	arch, err := m.master.ToJSON()
	if err != nil {
		return err
	}
	initial := m.eng.Broadcast(m.master.GetWeights())
	task := worker.Task{
		Arch:    arch,
		Weights: initial.Value().(distrain.WeightSet),
		Config:  m.train,
		Custom:  m.custom,
	}

	log.Printf("[spark] fit: mode=%s, %d partitions", m.cfg.Mode, dataset.NumPartitions())
	if m.cfg.Mode == distrain.Synchronous {
		return m.fitSynchronous(dataset, task)
	}
	return m.fitAsynchronous(dataset, task)
}

// fitSynchronous collects one (gradient, history) outcome per non-empty
// partition and folds the uniformly averaged gradients into the master
// weights. Accumulation order across partitions does not change the result
// beyond floating-point rounding.
func (m *SparkModel) fitSynchronous(dataset engine.Dataset, task worker.Task) error {
	collected, err := dataset.MapPartitions(func(partition int, items []interface{}) ([]interface{}, error) {
		samples, err := worker.Samples(items)
		if err != nil {
			return nil, err
		}
		outcome, err := worker.Train(task, samples)
		if err != nil {
			return nil, err
		}
		if outcome == nil {
			return nil, nil
		}
		return []interface{}{outcome}, nil
	})
	if err != nil {
		return err
	}

	newParams := m.master.GetWeights()
	numSubModels := len(collected)
	for _, item := range collected {
		outcome := item.(*worker.Outcome)
		m.histories = append(m.histories, outcome.History)
		scaled := distrain.DivideBy(outcome.Gradient, float64(numSubModels))
		newParams, err = distrain.SubtractParams(newParams, scaled)
		if err != nil {
			return err
		}
	}
	log.Printf("[spark] synchronous training complete (%d sub-models)", numSubModels)
	return m.master.SetWeights(newParams)
}

// fitAsynchronous runs the parameter-server session around the dispatch:
// workers stream deltas while training, and the final global snapshot
// becomes the new master weights.
func (m *SparkModel) fitAsynchronous(dataset engine.Dataset, task worker.Task) error {
	m.store.Set(task.Weights)
	port := m.cfg.Port
	if port < 0 {
		port = 0
	}
	server, err := params.NewServer(m.cfg.ParameterServerMode, port, m.store)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		server.Stop()
		return err
	}
	defer server.Stop()

	client, err := params.NewClient(m.cfg.ParameterServerMode, server.Addr())
	if err != nil {
		return err
	}

	freq := m.cfg.Frequency
	_, err = dataset.MapPartitions(func(partition int, items []interface{}) ([]interface{}, error) {
		samples, err := worker.Samples(items)
		if err != nil {
			return nil, err
		}
		return nil, worker.TrainAsync(task, freq, client, samples)
	})
	if err != nil {
		return err
	}

	final, err := client.GetParameters()
	if err != nil {
		return err
	}
	log.Printf("[spark] %s training complete", m.cfg.Mode)
	return m.master.SetWeights(final)
}

// Predict runs distributed inference on a dataset of []float64 feature
// vectors, preserving input ordering even when repartitioning shuffles
// elements across workers.
func (m *SparkModel) Predict(dataset engine.Dataset) ([][]float64, error) {
	arch, err := m.master.ToJSON()
	if err != nil {
		return nil, err
	}
	weights := m.eng.Broadcast(m.master.GetWeights())
	broadcastWeights := weights.Value().(distrain.WeightSet)
	custom := m.custom

	if m.cfg.NumWorkers > 1 {
		// repartitioning does not preserve ordering, so tag each element
		// with its index first and sort the predictions afterwards
		tagged := dataset.ZipWithIndex().Repartition(m.cfg.NumWorkers)
		collected, err := tagged.MapPartitions(func(partition int, items []interface{}) ([]interface{}, error) {
			if len(items) == 0 {
				return nil, nil
			}
			x := make([][]float64, len(items))
			indices := make([]int, len(items))
			for i, item := range items {
				indexed, ok := item.(engine.Indexed)
				if !ok {
					return nil, distrain.InputError{Reason: fmt.Sprintf("partition item %d is %T, want Indexed", i, item)}
				}
				features, ok := indexed.Item.([]float64)
				if !ok {
					return nil, distrain.InputError{Reason: fmt.Sprintf("partition item %d is %T, want []float64", i, indexed.Item)}
				}
				x[i] = features
				indices[i] = indexed.Index
			}
			model, err := distrain.FromJSON(arch, custom)
			if err != nil {
				return nil, err
			}
			if err := model.SetWeights(broadcastWeights); err != nil {
				return nil, err
			}
			preds, err := model.Predict(x)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, len(preds))
			for i, pred := range preds {
				out[i] = engine.Indexed{Index: indices[i], Item: pred}
			}
			return out, nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(collected, func(i, j int) bool {
			return collected[i].(engine.Indexed).Index < collected[j].(engine.Indexed).Index
		})
		predictions := make([][]float64, len(collected))
		for i, item := range collected {
			predictions[i] = item.(engine.Indexed).Item.([]float64)
		}
		return predictions, nil
	}

	// with at most one worker no shuffling happens, so ordering is
	// naturally preserved
	collected, err := dataset.MapPartitions(func(partition int, items []interface{}) ([]interface{}, error) {
		if len(items) == 0 {
			return nil, nil
		}
		x := make([][]float64, len(items))
		for i, item := range items {
			features, ok := item.([]float64)
			if !ok {
				return nil, distrain.InputError{Reason: fmt.Sprintf("partition item %d is %T, want []float64", i, item)}
			}
			x[i] = features
		}
		model, err := distrain.FromJSON(arch, custom)
		if err != nil {
			return nil, err
		}
		if err := model.SetWeights(broadcastWeights); err != nil {
			return nil, err
		}
		preds, err := model.Predict(x)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(preds))
		for i, pred := range preds {
			out[i] = pred
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	predictions := make([][]float64, len(collected))
	for i, item := range collected {
		predictions[i] = item.([]float64)
	}
	return predictions, nil
}

// partitionEval is one partition's evaluation result: loss and metric
// values plus the number of samples they cover.
type partitionEval struct {
	Values []float64
	Count  int
}

// Evaluate runs distributed evaluation on a dataset of distrain.Sample
// items. Partition results are combined with a size-weighted mean, so
// unevenly sized partitions are weighted correctly. The returned slice is
// the loss followed by the compiled metrics.
func (m *SparkModel) Evaluate(dataset engine.Dataset) ([]float64, error) {
	arch, err := m.master.ToJSON()
	if err != nil {
		return nil, err
	}
	weights := m.eng.Broadcast(m.master.GetWeights())
	broadcastWeights := weights.Value().(distrain.WeightSet)
	train := m.train
	custom := m.custom

	if m.cfg.NumWorkers > 0 {
		dataset = dataset.Repartition(m.cfg.NumWorkers)
	}

	collected, err := dataset.MapPartitions(func(partition int, items []interface{}) ([]interface{}, error) {
		samples, err := worker.Samples(items)
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			return nil, nil
		}
		model, err := distrain.FromJSON(arch, custom)
		if err != nil {
			return nil, err
		}
		if err := model.Compile(train.Optimizer, train.Loss, train.Metrics); err != nil {
			return nil, err
		}
		if err := model.SetWeights(broadcastWeights); err != nil {
			return nil, err
		}
		values, err := model.Evaluate(samples)
		if err != nil {
			return nil, err
		}
		return []interface{}{partitionEval{Values: values, Count: len(samples)}}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(collected) == 0 {
		return nil, distrain.InputError{Reason: "evaluate on empty dataset"}
	}

	first := collected[0].(partitionEval)
	sums := make([]float64, len(first.Values))
	totalCount := 0
	for _, item := range collected {
		res := item.(partitionEval)
		if len(res.Values) != len(sums) {
			return nil, distrain.InputError{Reason: "partitions returned differing metric counts"}
		}
		for i, v := range res.Values {
			sums[i] += v * float64(res.Count)
		}
		totalCount += res.Count
	}
	for i := range sums {
		sums[i] /= float64(totalCount)
	}
	return sums, nil
}
