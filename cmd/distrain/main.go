package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"

	"github.com/skyhookml/distrain/app"
	"github.com/skyhookml/distrain/distrain"
	"github.com/skyhookml/distrain/engine"
	"github.com/skyhookml/distrain/models"
	"github.com/skyhookml/distrain/spark"
)

// Trains the built-in dense model on a CSV dataset (last column is the
// label) and records the run in the job database.
func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: ./distrain [mode] [csv file] [num workers] [epochs]")
		fmt.Println("example: ./distrain asynchronous data.csv 4 10")
		return
	}
	mode := distrain.Mode(os.Args[1])
	csvFname := os.Args[2]
	numWorkers := 4
	if len(os.Args) >= 4 {
		numWorkers = distrain.ParseInt(os.Args[3])
	}
	epochs := 10
	if len(os.Args) >= 5 {
		epochs = distrain.ParseInt(os.Args[4])
	}

	samples, numFeatures, err := readCSV(csvFname)
	if err != nil {
		panic(err)
	}
	log.Printf("[distrain] loaded %d samples with %d features from %s", len(samples), numFeatures, csvFname)

	model := models.NewDense(models.DenseConfig{In: numFeatures, Out: 1, LR: 0.01})
	model.RandomizeWeights(rand.New(rand.NewSource(42)))

	train := distrain.TrainingConfig{
		Epochs:    epochs,
		BatchSize: 32,
		Optimizer: "sgd",
		Loss:      "mse",
		Metrics:   []string{"mae"},
	}
	cfg := spark.Config{
		Mode:       mode,
		NumWorkers: numWorkers,
	}
	eng := engine.NewLocalEngine(numWorkers)
	sm, err := spark.New(model, train, cfg, nil, eng)
	if err != nil {
		panic(err)
	}

	app.Init("./distrain.sqlite3")
	config := sm.GetConfig()
	job := app.NewJob(csvFname, string(mode), config["parameter_server_mode"].(string), numWorkers, string(distrain.JsonMarshal(config)))

	// job API for monitoring runs while training is in progress
	apiAddr := os.Getenv("DISTRAIN_API")
	if apiAddr == "" {
		apiAddr = "127.0.0.1:8080"
	}
	go func() {
		log.Printf("[distrain] job API on %s", apiAddr)
		if err := http.ListenAndServe(apiAddr, app.Router); err != nil {
			log.Printf("[distrain] job API: %v", err)
		}
	}()

	items := make([]interface{}, len(samples))
	for i, s := range samples {
		items[i] = s
	}
	dataset := eng.Parallelize(items, numWorkers)

	if err := sm.Fit(dataset); err != nil {
		job.SetDone(err.Error())
		panic(err)
	}
	job.AppendHistories(sm.TrainingHistories())
	job.SetDone("")

	values, err := sm.Evaluate(dataset)
	if err != nil {
		panic(err)
	}
	log.Printf("[distrain] evaluation: loss=%.6f metrics=%v", values[0], values[1:])
}

func readCSV(fname string) ([]distrain.Sample, int, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, 0, err
	}
	if len(records) == 0 {
		return nil, 0, distrain.InputError{Reason: "empty CSV file"}
	}

	numFeatures := len(records[0]) - 1
	if numFeatures < 1 {
		return nil, 0, distrain.InputError{Reason: "CSV needs at least one feature column and one label column"}
	}
	samples := make([]distrain.Sample, 0, len(records))
	for i, record := range records {
		if len(record) != numFeatures+1 {
			return nil, 0, distrain.InputError{Reason: fmt.Sprintf("row %d has %d columns, want %d", i, len(record), numFeatures+1)}
		}
		sample := distrain.Sample{
			X: make([]float64, numFeatures),
			Y: make([]float64, 1),
		}
		bad := false
		for j, field := range record {
			x, err := strconv.ParseFloat(field, 64)
			if err != nil {
				// probably a header row
				if i == 0 {
					bad = true
					break
				}
				return nil, 0, distrain.InputError{Reason: fmt.Sprintf("row %d column %d: %v", i, j, err)}
			}
			if j < numFeatures {
				sample.X[j] = x
			} else {
				sample.Y[0] = x
			}
		}
		if !bad {
			samples = append(samples, sample)
		}
	}
	return samples, numFeatures, nil
}
