package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that the resource could not be located.
	ErrNotFound = errors.New("resource not found")
	// ErrAmbiguousResource reports that the name resolved to a directory rather than a document.
	ErrAmbiguousResource = errors.New("resource is a directory")
	// ErrTransport covers network failures, timeouts and non-2xx responses.
	ErrTransport = errors.New("transport failure")
	// ErrSerialization reports a document that is not valid JSON.
	ErrSerialization = errors.New("invalid document")
)

// Stage identifies which hop of the two-step fetch failed.
type Stage string

const (
	StageMetadata Stage = "metadata"
	StageDownload Stage = "download"
)

// Error carries the failing stage and resource alongside one of the sentinel errors.
type Error struct {
	Stage    Stage
	Resource string
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %v: %v", e.Stage, e.Resource, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Resource, e.Kind)
}

// Is lets errors.Is match the sentinel kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
