package engine

import (
	"sync"

	"github.com/skyhookml/distrain/distrain"
)

// LocalEngine runs partitions as goroutines inside the current process, one
// goroutine per partition. It exists so the coordinator (and its tests) have
// a real engine to run against without a cluster.
type LocalEngine struct {
	// DefaultParallelism is used by Parallelize when the caller does not
	// specify a partition count.
	DefaultParallelism int
}

func NewLocalEngine(defaultParallelism int) *LocalEngine {
	if defaultParallelism <= 0 {
		defaultParallelism = 1
	}
	return &LocalEngine{DefaultParallelism: defaultParallelism}
}

func (e *LocalEngine) Parallelize(items []interface{}, numPartitions int) Dataset {
	if numPartitions <= 0 {
		numPartitions = e.DefaultParallelism
	}
	return &localDataset{partitions: split(items, numPartitions)}
}

func (e *LocalEngine) Broadcast(value interface{}) Broadcast {
	return localBroadcast{value: value}
}

type localBroadcast struct {
	value interface{}
}

func (b localBroadcast) Value() interface{} {
	return b.value
}

// split deals items round-robin into n partitions. Like a cluster shuffle,
// this does not preserve the original element ordering across partitions.
func split(items []interface{}, n int) [][]interface{} {
	if n <= 0 {
		n = 1
	}
	partitions := make([][]interface{}, n)
	for i, item := range items {
		p := i % n
		partitions[p] = append(partitions[p], item)
	}
	return partitions
}

type localDataset struct {
	partitions [][]interface{}
}

func (d *localDataset) NumPartitions() int {
	return len(d.partitions)
}

func (d *localDataset) Collect() []interface{} {
	var out []interface{}
	for _, part := range d.partitions {
		out = append(out, part...)
	}
	return out
}

func (d *localDataset) Repartition(n int) Dataset {
	return &localDataset{partitions: split(d.Collect(), n)}
}

func (d *localDataset) ZipWithIndex() Dataset {
	partitions := make([][]interface{}, len(d.partitions))
	index := 0
	for i, part := range d.partitions {
		partitions[i] = make([]interface{}, len(part))
		for j, item := range part {
			partitions[i][j] = Indexed{Index: index, Item: item}
			index++
		}
	}
	return &localDataset{partitions: partitions}
}

func (d *localDataset) MapPartitions(fn PartitionFunc) ([]interface{}, error) {
	outputs := make([][]interface{}, len(d.partitions))
	errors := make([]error, len(d.partitions))

	var wg sync.WaitGroup
	for i := range d.partitions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outputs[i], errors[i] = fn(i, d.partitions[i])
		}(i)
	}
	wg.Wait()

	// a single failed partition aborts the whole dispatch
	for i, err := range errors {
		if err != nil {
			return nil, distrain.TaskError{Partition: i, Err: err}
		}
	}

	var collected []interface{}
	for _, out := range outputs {
		collected = append(collected, out...)
	}
	return collected, nil
}
