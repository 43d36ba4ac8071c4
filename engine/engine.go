// Package engine defines the distributed-engine primitives the coordinator
// depends on: partitioned datasets, per-partition map, repartitioning, index
// tagging, and broadcast. The coordinator only uses these primitives, so any
// engine implementing them can be plugged in.
package engine

// PartitionFunc runs against one partition's items and returns that
// partition's output items.
type PartitionFunc func(partition int, items []interface{}) ([]interface{}, error)

type Dataset interface {
	// NumPartitions returns how many partitions the dataset currently has.
	NumPartitions() int
	// Repartition redistributes the items into n partitions. Element
	// ordering is not preserved.
	Repartition(n int) Dataset
	// ZipWithIndex tags each element with its current global index,
	// producing a dataset of Indexed items.
	ZipWithIndex() Dataset
	// MapPartitions applies fn to every partition and returns the collected
	// outputs in partition order. Any partition error fails the whole call;
	// there are no partial results.
	MapPartitions(fn PartitionFunc) ([]interface{}, error)
	// Collect returns all items in partition order.
	Collect() []interface{}
}

// Indexed is an element tagged with its original position, used to restore
// input ordering after repartitioning.
type Indexed struct {
	Index int
	Item  interface{}
}

// Broadcast is a read-only handle on a value shared with all partitions.
type Broadcast interface {
	Value() interface{}
}

type Engine interface {
	// Parallelize splits items into numPartitions partitions
	// (numPartitions <= 0 uses the engine default).
	Parallelize(items []interface{}, numPartitions int) Dataset
	Broadcast(value interface{}) Broadcast
}
