package worker

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/skyhookml/distrain/distrain"
	"github.com/skyhookml/distrain/params"
)

// stubModel moves every weight element down by step once per Fit call, so
// tests can predict gradients exactly.
type stubModel struct {
	weights distrain.WeightSet
	step    float64
}

type stubConfig struct {
	Size int     `json:"size"`
	Step float64 `json:"step"`
}

func (s *stubModel) GetWeights() distrain.WeightSet { return s.weights.Copy() }
func (s *stubModel) SetWeights(w distrain.WeightSet) error {
	s.weights = w.Copy()
	return nil
}
func (s *stubModel) Compile(optimizer string, loss string, metrics []string) error { return nil }
func (s *stubModel) Fit(samples []distrain.Sample, cfg distrain.TrainingConfig) (distrain.History, error) {
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	history := distrain.History{}
	for epoch := 0; epoch < epochs; epoch++ {
		for i := range s.weights {
			for j := range s.weights[i].Data {
				s.weights[i].Data[j] -= s.step
			}
		}
		history["loss"] = append(history["loss"], s.step)
	}
	return history, nil
}
func (s *stubModel) Predict(x [][]float64) ([][]float64, error) { return x, nil }
func (s *stubModel) Evaluate(samples []distrain.Sample) ([]float64, error) {
	return []float64{0}, nil
}
func (s *stubModel) ToJSON() ([]byte, error) {
	return distrain.MarshalArch("worker-test-stub", stubConfig{Size: s.weights[0].Size(), Step: s.step})
}

func init() {
	distrain.RegisterModel("worker-test-stub", func(config json.RawMessage) (distrain.Trainable, error) {
		var cfg stubConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
		return &stubModel{
			weights: distrain.WeightSet{distrain.NewTensor(cfg.Size)},
			step:    cfg.Step,
		}, nil
	})
}

func stubTask(t *testing.T, step float64, initial ...float64) Task {
	t.Helper()
	arch, err := distrain.MarshalArch("worker-test-stub", stubConfig{Size: len(initial), Step: step})
	if err != nil {
		t.Fatalf("MarshalArch: %v", err)
	}
	return Task{
		Arch:    arch,
		Weights: distrain.WeightSet{{Shape: []int{len(initial)}, Data: initial}},
		Config: distrain.TrainingConfig{
			Epochs:    1,
			Optimizer: "sgd",
			Loss:      "mse",
		},
	}
}

func samples(n int) []distrain.Sample {
	out := make([]distrain.Sample, n)
	for i := range out {
		out[i] = distrain.Sample{X: []float64{float64(i)}, Y: []float64{0}}
	}
	return out
}

func checkValues(t *testing.T, w distrain.WeightSet, want ...float64) {
	t.Helper()
	if len(w) != 1 || len(w[0].Data) != len(want) {
		t.Fatalf("got %v; want single tensor %v", w, want)
	}
	for i := range want {
		if math.Abs(w[0].Data[i]-want[i]) > 1e-12 {
			t.Fatalf("got %v; want %v", w[0].Data, want)
		}
	}
}

func TestTrainZeroGradient(t *testing.T) {
	// a pre-converged model moves nowhere, so the gradient is zero
	outcome, err := Train(stubTask(t, 0, 5, 5), samples(4))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if outcome == nil {
		t.Fatalf("Train returned no outcome")
	}
	checkValues(t, outcome.Gradient, 0, 0)
	if len(outcome.History["loss"]) != 1 {
		t.Errorf("history = %v; want one loss entry", outcome.History)
	}
}

func TestTrainGradientIsInitialMinusFinal(t *testing.T) {
	outcome, err := Train(stubTask(t, 0.5, 10, 20), samples(4))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	checkValues(t, outcome.Gradient, 0.5, 0.5)
}

func TestTrainEmptyPartition(t *testing.T) {
	outcome, err := Train(stubTask(t, 1, 1), nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if outcome != nil {
		t.Errorf("empty partition produced outcome %v", outcome)
	}
}

func TestSamplesRejectsBadItems(t *testing.T) {
	_, err := Samples([]interface{}{distrain.Sample{}, "not a sample"})
	if err == nil {
		t.Fatalf("Samples with bad item succeeded")
	}
	if _, ok := err.(distrain.InputError); !ok {
		t.Errorf("error is %T; want InputError", err)
	}
}

// storeClient runs the client protocol directly against a store, counting
// synchronization calls.
type storeClient struct {
	store *params.Store
	sends int
	gets  int
	fail  bool
}

func (c *storeClient) SendDelta(delta distrain.WeightSet) error {
	if c.fail {
		return fmt.Errorf("connection refused")
	}
	c.sends++
	return c.store.ApplyDelta(delta)
}

func (c *storeClient) GetParameters() (distrain.WeightSet, error) {
	if c.fail {
		return nil, fmt.Errorf("connection refused")
	}
	c.gets++
	return c.store.Get(), nil
}

func TestTrainAsyncEpochFrequency(t *testing.T) {
	task := stubTask(t, 1, 10)
	task.Config.Epochs = 2
	client := &storeClient{store: params.NewStore(distrain.Asynchronous, task.Weights)}

	if err := TrainAsync(task, distrain.PerEpoch, client, samples(4)); err != nil {
		t.Fatalf("TrainAsync: %v", err)
	}
	// one push and one refresh per epoch
	if client.sends != 2 || client.gets != 2 {
		t.Errorf("sends=%d gets=%d; want 2 and 2", client.sends, client.gets)
	}
	// each epoch moved the weights down by step
	checkValues(t, client.store.Get(), 8)
}

func TestTrainAsyncBatchFrequency(t *testing.T) {
	task := stubTask(t, 1, 10)
	task.Config.Epochs = 1
	task.Config.BatchSize = 2
	client := &storeClient{store: params.NewStore(distrain.Asynchronous, task.Weights)}

	if err := TrainAsync(task, distrain.PerBatch, client, samples(5)); err != nil {
		t.Fatalf("TrainAsync: %v", err)
	}
	// 5 samples at batch size 2 is 3 synchronization periods
	if client.sends != 3 {
		t.Errorf("sends=%d; want 3", client.sends)
	}
	checkValues(t, client.store.Get(), 7)
}

func TestTrainAsyncEmptyPartition(t *testing.T) {
	client := &storeClient{store: params.NewStore(distrain.Asynchronous, vecWeights(1))}
	if err := TrainAsync(stubTask(t, 1, 1), distrain.PerEpoch, client, nil); err != nil {
		t.Fatalf("TrainAsync: %v", err)
	}
	if client.sends != 0 {
		t.Errorf("empty partition pushed %d deltas", client.sends)
	}
}

func TestTrainAsyncClientFailureFailsTask(t *testing.T) {
	client := &storeClient{store: params.NewStore(distrain.Asynchronous, vecWeights(1)), fail: true}
	if err := TrainAsync(stubTask(t, 1, 1), distrain.PerEpoch, client, samples(2)); err == nil {
		t.Errorf("TrainAsync with failing client succeeded")
	}
}

func TestTrainAsyncUnknownFrequency(t *testing.T) {
	client := &storeClient{store: params.NewStore(distrain.Asynchronous, vecWeights(1))}
	err := TrainAsync(stubTask(t, 1, 1), distrain.Frequency("hourly"), client, samples(2))
	if err == nil {
		t.Fatalf("TrainAsync with unknown frequency succeeded")
	}
	if _, ok := err.(distrain.ConfigError); !ok {
		t.Errorf("error is %T; want ConfigError", err)
	}
}

func vecWeights(values ...float64) distrain.WeightSet {
	return distrain.WeightSet{{Shape: []int{len(values)}, Data: values}}
}
