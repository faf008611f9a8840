package ports

import (
	"context"
	"errors"

	"github.com/weftworks/weft/pkg/domain/run"
)

// ErrRunNotFound is returned when no snapshot exists for a run id.
var ErrRunNotFound = errors.New("run not found")

// RunStore persists run snapshots. Implementations must be safe for
// concurrent use and must not retain the snapshots they are given.
type RunStore interface {
	SaveRun(ctx context.Context, snapshot *run.Snapshot) error
	LoadRun(ctx context.Context, id string) (*run.Snapshot, error)
	DeleteRun(ctx context.Context, id string) error
	ListRuns(ctx context.Context) ([]*run.Snapshot, error)
}
