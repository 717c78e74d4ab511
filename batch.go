package grimoire

import (
	"time"

	"github.com/Virace/GrimoireVFS/internal/progress"
)

// OnErrorPolicy controls how a batch operation responds to a per-file
// error.
type OnErrorPolicy int

const (
	// OnErrorRaise propagates the first per-file error immediately.
	OnErrorRaise OnErrorPolicy = iota
	// OnErrorSkip records the failure in BatchResult.FailedFiles and
	// continues processing.
	OnErrorSkip
	// OnErrorAbort behaves like OnErrorSkip for the file that failed, but
	// stops the batch afterward and returns the partial result.
	OnErrorAbort
)

// ProgressInfo is a batch-operation progress update.
type ProgressInfo = progress.Info

// ProgressFunc receives ProgressInfo updates. Implementations must be
// safe to call synchronously from the worker driving the batch.
type ProgressFunc = progress.Func

// FailedFile records one per-file failure from a batch operation.
type FailedFile struct {
	Path      string
	ErrorKind error
	Detail    string
}

// BatchResult summarizes the outcome of a batch operation.
// SuccessCount+FailedCount equals the number of files attempted.
// TotalBytes is the sum of the sizes of the files that succeeded; failed
// files carry no byte count.
type BatchResult struct {
	SuccessCount int
	FailedCount  int
	FailedFiles  []FailedFile
	TotalBytes   uint64
	Elapsed      time.Duration
}

// batchOptions configures a batch call.
type batchOptions struct {
	onError     OnErrorPolicy
	progress    ProgressFunc
	excludes    []string
	concurrency int
}

// BatchOption configures AddFilesBatch, AddDirBatch, and ExtractAll.
type BatchOption func(*batchOptions)

// WithOnError sets the per-file error policy. The default is OnErrorRaise.
func WithOnError(p OnErrorPolicy) BatchOption {
	return func(o *batchOptions) { o.onError = p }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) BatchOption {
	return func(o *batchOptions) { o.progress = fn }
}

// WithExcludes sets shell-style glob exclude patterns, matched against
// each file's path relative to the walk root.
func WithExcludes(patterns ...string) BatchOption {
	return func(o *batchOptions) { o.excludes = append(o.excludes, patterns...) }
}

// WithConcurrency bounds how many files a batch operation processes at
// once. Zero (the default) picks GOMAXPROCS automatically; a negative
// value forces strictly serial processing. AddFilesBatch and AddDirBatch
// ignore this option, since a Writer is not safe for concurrent staging;
// Reader.ExtractAll honors it.
func WithConcurrency(n int) BatchOption {
	return func(o *batchOptions) { o.concurrency = n }
}

func newBatchOptions(opts []BatchOption) batchOptions {
	o := batchOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
