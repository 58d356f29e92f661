package export

import "context"

// Artifact is the in-memory output of a producer run.
type Artifact struct {
	// Rows is the number of data rows in the artifact, at most the cap the
	// producer was called with.
	Rows int

	// Content is the serialized artifact.
	Content []byte
}

// Producer generates export artifacts. Implementations must honor ctx
// cancellation and never materialize more than maxRows rows.
type Producer interface {
	Produce(ctx context.Context, format Format, params map[string]any, maxRows int) (*Artifact, error)
}
