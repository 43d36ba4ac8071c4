package distrain

// Mode selects the update-reconciliation strategy. It is fixed when the
// orchestrator is constructed.
type Mode string

const (
	// Asynchronous workers stream deltas to the parameter server, which
	// applies them under mutual exclusion.
	Asynchronous Mode = "asynchronous"
	// Synchronous workers return their gradients and the orchestrator
	// averages them after all partitions finish.
	Synchronous Mode = "synchronous"
	// Hogwild is asynchronous without locking on the parameter store;
	// concurrent updates may race and lose, trading consistency for
	// throughput.
	Hogwild Mode = "hogwild"
)

func (m Mode) Valid() bool {
	return m == Asynchronous || m == Synchronous || m == Hogwild
}

// Frequency is the granularity at which an asynchronous worker synchronizes
// with the parameter server.
type Frequency string

const (
	PerEpoch Frequency = "epoch"
	PerBatch Frequency = "batch"
)
