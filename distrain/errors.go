package distrain

import (
	"fmt"
)

// ConfigError indicates a bad configuration value caught at call time,
// e.g. an unsupported mode string or a bad save filename extension.
// It is never retried.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// SerializationError indicates a corrupt or incompatible payload, either on
// the wire or in a saved model file.
type SerializationError struct {
	Reason string
}

func (e SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %s", e.Reason)
}

// InputError indicates mismatched shapes passed to arithmetic or
// prediction/evaluation helpers.
type InputError struct {
	Reason string
}

func (e InputError) Error() string {
	return fmt.Sprintf("input error: %s", e.Reason)
}

// TaskError is a failure inside one partition's task. It fails the whole
// distributed dispatch; there are no partial results.
type TaskError struct {
	Partition int
	Err       error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("partition %d: %v", e.Partition, e.Err)
}

func (e TaskError) Unwrap() error {
	return e.Err
}
