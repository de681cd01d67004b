package rag

// IndexingError reports a failed ingestion. No partial state is implied
// beyond what the error wraps; the caller owns compensation (deleting the
// bookmark the ingestion belonged to).
type IndexingError struct {
	ContentID string
	Err       error
}

func (e *IndexingError) Error() string { return "indexing " + e.ContentID + ": " + e.Err.Error() }
func (e *IndexingError) Unwrap() error { return e.Err }

// PipelineError reports a read-path failure. The external contract is one
// generic failure; the wrapped error keeps the stage detail for logs.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string { return "rag pipeline (" + e.Stage + "): " + e.Err.Error() }
func (e *PipelineError) Unwrap() error { return e.Err }

// ExternalServiceError reports an unavailable backing service.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string { return e.Service + " unavailable: " + e.Err.Error() }
func (e *ExternalServiceError) Unwrap() error { return e.Err }
