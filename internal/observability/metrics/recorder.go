package metrics

// Recorder is a minimal interface for recording operation metrics. Components
// depend on it instead of a concrete metrics type.
type Recorder interface {
	// RecordOperation records an operation with its status, success or error.
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error of the given category.
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string)     {}
