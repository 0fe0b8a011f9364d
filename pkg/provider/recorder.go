package provider

import "time"

// Transfer directions reported to a Recorder.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Recorder observes completed storage operations.
//
// Implementations must be safe for concurrent use. Recorders never affect
// the outcome of the operation they observe.
type Recorder interface {
	// ObserveOperation records one operation attempt and its outcome.
	ObserveOperation(op string, err error, elapsed time.Duration)

	// AddTransferred records bytes moved in the given direction.
	AddTransferred(direction string, n int64)

	// AddDeleted records objects removed from a store.
	AddDeleted(n int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

// ObserveOperation implements Recorder.
func (NopRecorder) ObserveOperation(string, error, time.Duration) {}

// AddTransferred implements Recorder.
func (NopRecorder) AddTransferred(string, int64) {}

// AddDeleted implements Recorder.
func (NopRecorder) AddDeleted(int) {}

var _ Recorder = NopRecorder{}
