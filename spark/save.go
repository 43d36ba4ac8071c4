package spark

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	gouuid "github.com/google/uuid"

	"github.com/skyhookml/distrain/distrain"
	"github.com/skyhookml/distrain/engine"
)

// Saved model files are JSON documents holding the model descriptor plus a
// distributed_config metadata block, so loading reconstructs the
// orchestrator without re-specifying its configuration.
type savedConfig struct {
	ClassName string                 `json:"class_name"`
	Config    map[string]interface{} `json:"config"`
}

type savedFile struct {
	Model             distrain.ModelDescriptor `json:"model"`
	DistributedConfig *savedConfig             `json:"distributed_config"`
}

func checkExtension(fileName string) error {
	ext := filepath.Ext(fileName)
	if ext != ".json" && ext != ".distrain" {
		return distrain.ConfigError{Reason: fmt.Sprintf("file name must end with '.json' or '.distrain', got %q", fileName)}
	}
	return nil
}

func tempFileName(fileName string) string {
	return gouuid.New().String() + "-temp-model-file" + filepath.Ext(fileName)
}

// Save writes the master model plus the distributed configuration. With
// toCluster the file is written to a local temp path first and moved onto
// the cluster filesystem; the temp file is cleaned up on every path.
// Without overwrite, an existing destination is an error.
func (m *SparkModel) Save(fileName string, overwrite bool, toCluster bool) error {
	if err := checkExtension(fileName); err != nil {
		return err
	}

	desc, err := distrain.EncodeModel(m.master)
	if err != nil {
		return err
	}
	config := m.GetConfig()
	config["training"] = m.train
	doc := savedFile{
		Model: desc,
		DistributedConfig: &savedConfig{
			ClassName: "SparkModel",
			Config:    config,
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	if !toCluster {
		if !overwrite && distrain.FileExists(fileName) {
			return distrain.ConfigError{Reason: fmt.Sprintf("%s already exists (pass overwrite to replace it)", fileName)}
		}
		return ioutil.WriteFile(fileName, data, 0644)
	}

	tempName := tempFileName(fileName)
	if err := ioutil.WriteFile(tempName, data, 0644); err != nil {
		return err
	}
	defer os.Remove(tempName)

	args := []string{"fs", "-moveFromLocal"}
	if overwrite {
		args = append(args, "-f")
	}
	args = append(args, tempName, fileName)
	return distrain.RunCommand("hadoop", "hadoop", args...)
}

// Load reads a saved model file and reconstructs the orchestrator from the
// embedded distributed_config block. With fromCluster the file is copied to
// a local temp path first; the temp file is removed afterwards.
func Load(fileName string, custom distrain.CustomObjects, eng engine.Engine, fromCluster bool) (*SparkModel, error) {
	if err := checkExtension(fileName); err != nil {
		return nil, err
	}

	localName := fileName
	if fromCluster {
		localName = tempFileName(fileName)
		if err := distrain.RunCommand("hadoop", "hadoop", "fs", "-copyToLocal", fileName, localName); err != nil {
			os.Remove(localName)
			return nil, err
		}
		defer os.Remove(localName)
	}

	data, err := ioutil.ReadFile(localName)
	if err != nil {
		return nil, err
	}
	var doc savedFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, distrain.SerializationError{Reason: fmt.Sprintf("corrupt model file: %v", err)}
	}
	if doc.DistributedConfig == nil {
		return nil, distrain.SerializationError{Reason: "model file has no distributed_config block"}
	}

	model, err := distrain.DecodeModel(doc.Model, custom)
	if err != nil {
		return nil, err
	}

	cfg, train, err := parseConfig(doc.DistributedConfig.Config)
	if err != nil {
		return nil, err
	}
	return New(model, train, cfg, custom, eng)
}

// parseConfig splits the persisted config map back into the orchestrator
// config and the training config, keeping unknown keys as extra kwargs.
func parseConfig(config map[string]interface{}) (Config, distrain.TrainingConfig, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return Config{}, distrain.TrainingConfig{}, err
	}
	var known struct {
		ParameterServerMode string                  `json:"parameter_server_mode"`
		Mode                distrain.Mode           `json:"mode"`
		Frequency           distrain.Frequency      `json:"frequency"`
		NumWorkers          int                     `json:"num_workers"`
		Training            distrain.TrainingConfig `json:"training"`
	}
	if err := json.Unmarshal(raw, &known); err != nil {
		return Config{}, distrain.TrainingConfig{}, distrain.SerializationError{Reason: fmt.Sprintf("bad distributed_config: %v", err)}
	}

	extra := make(map[string]interface{})
	for k, v := range config {
		switch k {
		case "parameter_server_mode", "mode", "frequency", "num_workers", "batch_size", "training":
		default:
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		extra = nil
	}

	cfg := Config{
		Mode:                known.Mode,
		Frequency:           known.Frequency,
		ParameterServerMode: known.ParameterServerMode,
		NumWorkers:          known.NumWorkers,
		Extra:               extra,
	}
	return cfg, known.Training, nil
}
