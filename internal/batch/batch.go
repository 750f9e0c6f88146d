// Package batch is the narrow view of the grid batch system used to launch
// merge jobs. Job liveness is never polled here; the engine infers it from
// the catalog project.
package batch

import (
	"context"
	"errors"
)

// ErrNoJobID is returned when the submit command succeeded but printed no
// recognizable job identifier.
var ErrNoJobID = errors.New("batch: no job id in submit output")

type Request struct {
	// Script is the URL of the worker script (file://...).
	Script string
	// Archive is a local gzip tar holding the job configuration and helpers.
	Archive string
	// Options are scheduler options placed before the script.
	Options []string
	// ScriptArgs are passed through to the worker script.
	ScriptArgs []string
}

type Result struct {
	JobID     string
	ClusterID string
	Output    string
}

type Gateway interface {
	Submit(ctx context.Context, req Request) (Result, error)
}
