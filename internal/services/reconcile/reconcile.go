// Package reconcile runs the startup consistency pass: a crash between
// inserting a Version row and promoting its blob, or a process restart
// losing the in-memory Worker Registry, both leave durable state that looks
// inconsistent but is recoverable by re-deriving it from what IS durable
// (the Metadata DB and the Blob Store). Runs once before serving traffic.
package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/domain/indexentry"
	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/ports/blob"
	"github.com/cratery/cratery/internal/ports/index"
)

// JobRequeuer is the subset of internal/services/scheduler.Scheduler the
// reconciler needs to requeue a Dispatched job orphaned by a Worker
// Registry that never persists across restarts.
type JobRequeuer interface {
	HandleWorkerLoss(ctx context.Context, jobID uuid.UUID)
}

// Reconciler runs the startup repair pass.
type Reconciler struct {
	Crates   crate.Repository
	Versions version.Repository
	Jobs     job.Repository
	Index    index.Repository
	Blobs    blob.Store
	Requeuer JobRequeuer
	Logger   mlog.Logger
}

// New constructs a Reconciler.
func New(crates crate.Repository, versions version.Repository, jobs job.Repository, idx index.Repository, blobs blob.Store, logger mlog.Logger) *Reconciler {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Reconciler{Crates: crates, Versions: versions, Jobs: jobs, Index: idx, Blobs: blobs, Logger: logger}
}

// Report summarizes what the reconciler found and fixed, for a startup log
// line and for tests to assert against.
type Report struct {
	OrphanedVersionsFixed   int
	OrphanedVersionsDeleted int
	DispatchedJobsOrphaned  int
}

// Run performs the full startup pass: orphaned Version rows (step 6's crash
// window), then Dispatched jobs with no live worker.
func (r *Reconciler) Run(ctx context.Context, liveWorkerIDs []uuid.UUID) (Report, error) {
	var report Report

	orphans, err := r.Versions.ListOrphaned(ctx)
	if err != nil {
		return report, fmt.Errorf("list orphaned versions: %w", err)
	}

	for _, v := range orphans {
		fixed, err := r.reconcileOrphanedVersion(ctx, v)
		if err != nil {
			r.Logger.Errorf("reconcile: version %s: %v", v.ID, err)
			continue
		}

		if fixed {
			report.OrphanedVersionsFixed++
		} else {
			report.OrphanedVersionsDeleted++
		}
	}

	dispatchedOrphans, err := r.Jobs.ListDispatchedOrphans(ctx, liveWorkerIDs)
	if err != nil {
		return report, fmt.Errorf("list dispatched orphans: %w", err)
	}

	report.DispatchedJobsOrphaned = len(dispatchedOrphans)

	if r.Requeuer != nil {
		for _, j := range dispatchedOrphans {
			r.Requeuer.HandleWorkerLoss(ctx, j.ID)
		}
	}

	return report, nil
}

// reconcileOrphanedVersion handles one Version row whose blob promotion may
// never have completed: if the blob exists under its final content-addressed
// key the crate's index file is rewritten from the DB; otherwise the row is
// deleted as unrecoverable. Temp upload keys are not consulted.
func (r *Reconciler) reconcileOrphanedVersion(ctx context.Context, v *version.Version) (fixed bool, err error) {
	finalKey := blob.CratesKey(v.ContentHash)

	exists, err := r.Blobs.Exists(ctx, finalKey)
	if err != nil {
		return false, err
	}

	if exists {
		return r.repairIndexFor(ctx, v)
	}

	if err := r.Versions.Delete(ctx, v.ID); err != nil {
		return false, err
	}

	return false, nil
}

func (r *Reconciler) repairIndexFor(ctx context.Context, v *version.Version) (bool, error) {
	c, err := r.Crates.Find(ctx, v.CrateID)
	if err != nil {
		return false, err
	}

	if c == nil {
		return false, fmt.Errorf("crate %s not found for version %s", v.CrateID, v.ID)
	}

	versions, err := r.Versions.ListByCrate(ctx, v.CrateID)
	if err != nil {
		return false, err
	}

	entries := make([]indexentry.Entry, 0, len(versions))
	for _, ver := range versions {
		entries = append(entries, indexentry.FromVersion(c.Name, ver))
	}

	if err := r.Index.Rewrite(ctx, c.Name, entries); err != nil {
		return false, err
	}

	return true, nil
}
