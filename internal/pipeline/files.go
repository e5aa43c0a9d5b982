package pipeline

import (
	"context"
	"errors"

	"rocketcore/pkg/model"
)

// ErrFileNotFound is returned by a FileLookup when a referenced file id doesn't exist.
var ErrFileNotFound = errors.New("file not found")

// FileLookup resolves a bare file id to its metadata. File storage is an out-of-scope
// collaborator per §1 — rocketcore only consumes this narrow interface (§4.6 step 4).
type FileLookup interface {
	Lookup(ctx context.Context, id string) (*model.FileMetadata, error)
}
