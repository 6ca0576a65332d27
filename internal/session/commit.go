package session

import (
	"context"

	"github.com/rbright/voxcap/internal/recorder"
)

// Committer persists a finalized recording and returns where it landed.
type Committer interface {
	Commit(context.Context, recorder.File) (string, error)
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(context.Context, recorder.File) (string, error)

func (f CommitFunc) Commit(ctx context.Context, file recorder.File) (string, error) {
	return f(ctx, file)
}
