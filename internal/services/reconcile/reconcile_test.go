package reconcile_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/adapters/fsblob"
	"github.com/cratery/cratery/internal/adapters/fsindex"
	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/ports/blob"
	"github.com/cratery/cratery/internal/services/reconcile"
)

type fakeCrateRepo struct {
	crates map[uuid.UUID]*crate.Crate
}

func (f *fakeCrateRepo) Create(_ context.Context, c *crate.Crate) (*crate.Crate, error) { return c, nil }
func (f *fakeCrateRepo) Update(_ context.Context, _ uuid.UUID, c *crate.Crate) (*crate.Crate, error) {
	return c, nil
}

func (f *fakeCrateRepo) Find(_ context.Context, id uuid.UUID) (*crate.Crate, error) {
	return f.crates[id], nil
}

func (f *fakeCrateRepo) FindByNormalizedName(_ context.Context, name string) (*crate.Crate, error) {
	for _, c := range f.crates {
		if c.NormalizedName == name {
			return c, nil
		}
	}

	return nil, nil
}

func (f *fakeCrateRepo) Search(_ context.Context, _ string, _ string, _ int) ([]*crate.Crate, error) {
	return nil, nil
}

type fakeVersionRepo struct {
	orphans []*version.Version
	byCrate map[uuid.UUID][]*version.Version
	deleted []uuid.UUID
}

func (f *fakeVersionRepo) Create(_ context.Context, v *version.Version) (*version.Version, error) {
	return v, nil
}

func (f *fakeVersionRepo) Update(_ context.Context, _ uuid.UUID, v *version.Version) (*version.Version, error) {
	return v, nil
}

func (f *fakeVersionRepo) Find(_ context.Context, _ uuid.UUID) (*version.Version, error) {
	return nil, nil
}

func (f *fakeVersionRepo) FindByCrateAndSemver(_ context.Context, _ uuid.UUID, _ string) (*version.Version, error) {
	return nil, nil
}

func (f *fakeVersionRepo) ListByCrate(_ context.Context, crateID uuid.UUID) ([]*version.Version, error) {
	return f.byCrate[crateID], nil
}

func (f *fakeVersionRepo) ListByContentHash(_ context.Context, _ string) ([]*version.Version, error) {
	return nil, nil
}

func (f *fakeVersionRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeVersionRepo) ListOrphaned(_ context.Context) ([]*version.Version, error) {
	return f.orphans, nil
}

type fakeJobRepo struct {
	dispatchedOrphans []*job.Job
}

func (f *fakeJobRepo) Create(_ context.Context, j *job.Job) (*job.Job, error) { return j, nil }
func (f *fakeJobRepo) Update(_ context.Context, _ uuid.UUID, j *job.Job) (*job.Job, error) {
	return j, nil
}
func (f *fakeJobRepo) Find(_ context.Context, _ uuid.UUID) (*job.Job, error) { return nil, nil }
func (f *fakeJobRepo) ListQueuedByKind(_ context.Context, _ job.Kind) ([]*job.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) ListDispatchedToWorker(_ context.Context, _ uuid.UUID) ([]*job.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) ListDispatchedOrphans(_ context.Context, _ []uuid.UUID) ([]*job.Job, error) {
	return f.dispatchedOrphans, nil
}

type fakeRequeuer struct {
	requeued []uuid.UUID
}

func (f *fakeRequeuer) HandleWorkerLoss(_ context.Context, jobID uuid.UUID) {
	f.requeued = append(f.requeued, jobID)
}

func TestRunDeletesVersionRowWithMissingBlob(t *testing.T) {
	ctx := context.Background()

	v := &version.Version{
		ID:          uuid.Must(uuid.NewV7()),
		CrateID:     uuid.Must(uuid.NewV7()),
		Semver:      "0.1.0",
		ContentHash: "deadbeef",
	}

	versions := &fakeVersionRepo{orphans: []*version.Version{v}}

	r := reconcile.New(
		&fakeCrateRepo{crates: map[uuid.UUID]*crate.Crate{}},
		versions,
		&fakeJobRepo{},
		fsindex.New(t.TempDir()),
		fsblob.New(t.TempDir()),
		&mlog.GoLogger{},
	)

	report, err := r.Run(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrphanedVersionsDeleted)
	assert.Equal(t, []uuid.UUID{v.ID}, versions.deleted)
}

func TestRunRepairsIndexWhenBlobExists(t *testing.T) {
	ctx := context.Background()

	crateID := uuid.Must(uuid.NewV7())
	c := &crate.Crate{ID: crateID, Name: "widgets", NormalizedName: "widgets"}

	v := &version.Version{
		ID:          uuid.Must(uuid.NewV7()),
		CrateID:     crateID,
		Semver:      "0.1.0",
		ContentHash: "deadbeef",
	}

	blobs := fsblob.New(t.TempDir())
	require.NoError(t, blobs.Put(ctx, blob.CratesKey(v.ContentHash), bytes.NewReader([]byte("tarball"))))

	idx := fsindex.New(t.TempDir())

	versions := &fakeVersionRepo{
		orphans: []*version.Version{v},
		byCrate: map[uuid.UUID][]*version.Version{crateID: {v}},
	}

	r := reconcile.New(
		&fakeCrateRepo{crates: map[uuid.UUID]*crate.Crate{crateID: c}},
		versions,
		&fakeJobRepo{},
		idx,
		blobs,
		&mlog.GoLogger{},
	)

	report, err := r.Run(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrphanedVersionsFixed)
	assert.Empty(t, versions.deleted)

	entries, err := idx.Read(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "deadbeef", entries[0].Cksum)
}

func TestRunRequeuesDispatchedOrphans(t *testing.T) {
	ctx := context.Background()

	orphan := &job.Job{ID: uuid.Must(uuid.NewV7()), Kind: job.KindBuildDocs, State: job.StateDispatched}

	requeuer := &fakeRequeuer{}

	r := reconcile.New(
		&fakeCrateRepo{crates: map[uuid.UUID]*crate.Crate{}},
		&fakeVersionRepo{},
		&fakeJobRepo{dispatchedOrphans: []*job.Job{orphan}},
		fsindex.New(t.TempDir()),
		fsblob.New(t.TempDir()),
		&mlog.GoLogger{},
	)
	r.Requeuer = requeuer

	report, err := r.Run(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DispatchedJobsOrphaned)
	assert.Equal(t, []uuid.UUID{orphan.ID}, requeuer.requeued)
}
