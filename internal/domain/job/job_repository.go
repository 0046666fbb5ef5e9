package job

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides persistence operations for Job entities.
//
//go:generate mockgen --destination=../../../internal/gen/mock/job/job_mock.go --package=mock . Repository
type Repository interface {
	Create(ctx context.Context, j *Job) (*Job, error)
	Update(ctx context.Context, id uuid.UUID, j *Job) (*Job, error)
	Find(ctx context.Context, id uuid.UUID) (*Job, error)
	ListQueuedByKind(ctx context.Context, kind Kind) ([]*Job, error)
	ListDispatchedToWorker(ctx context.Context, workerID uuid.UUID) ([]*Job, error)
	ListDispatchedOrphans(ctx context.Context, liveWorkerIDs []uuid.UUID) ([]*Job, error)
}
