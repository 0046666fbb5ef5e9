package command_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/adapters/fsblob"
	"github.com/cratery/cratery/internal/adapters/fsindex"
	"github.com/cratery/cratery/internal/domain/auth"
	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/command"
	"github.com/cratery/cratery/internal/services/eventbus"
)

type fakeCrateRepo struct {
	mu     sync.Mutex
	crates map[uuid.UUID]*crate.Crate
}

func newFakeCrateRepo() *fakeCrateRepo { return &fakeCrateRepo{crates: make(map[uuid.UUID]*crate.Crate)} }

func (f *fakeCrateRepo) Create(_ context.Context, c *crate.Crate) (*crate.Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c.ID = uuid.Must(uuid.NewV7())
	c.NormalizedName = crate.NormalizeName(c.Name)
	cp := *c
	f.crates[c.ID] = &cp

	return &cp, nil
}

func (f *fakeCrateRepo) Update(_ context.Context, id uuid.UUID, c *crate.Crate) (*crate.Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *c
	cp.ID = id
	f.crates[id] = &cp

	return &cp, nil
}

func (f *fakeCrateRepo) Find(_ context.Context, id uuid.UUID) (*crate.Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.crates[id]
	if !ok {
		return nil, nil
	}

	cp := *c

	return &cp, nil
}

func (f *fakeCrateRepo) FindByNormalizedName(_ context.Context, normalizedName string) (*crate.Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.crates {
		if c.NormalizedName == normalizedName {
			cp := *c
			return &cp, nil
		}
	}

	return nil, nil
}

func (f *fakeCrateRepo) Search(_ context.Context, query string, afterName string, limit int) ([]*crate.Crate, error) {
	return nil, nil
}

type fakeVersionRepo struct {
	mu       sync.Mutex
	versions map[uuid.UUID]*version.Version
}

func newFakeVersionRepo() *fakeVersionRepo {
	return &fakeVersionRepo{versions: make(map[uuid.UUID]*version.Version)}
}

func (f *fakeVersionRepo) Create(_ context.Context, v *version.Version) (*version.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v.ID = uuid.Must(uuid.NewV7())
	cp := *v
	f.versions[v.ID] = &cp

	return &cp, nil
}

func (f *fakeVersionRepo) Update(_ context.Context, id uuid.UUID, v *version.Version) (*version.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *v
	cp.ID = id
	f.versions[id] = &cp

	return &cp, nil
}

func (f *fakeVersionRepo) Find(_ context.Context, id uuid.UUID) (*version.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.versions[id]
	if !ok {
		return nil, nil
	}

	cp := *v

	return &cp, nil
}

func (f *fakeVersionRepo) FindByCrateAndSemver(_ context.Context, crateID uuid.UUID, semver string) (*version.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range f.versions {
		if v.CrateID == crateID && v.Semver == semver {
			cp := *v
			return &cp, nil
		}
	}

	return nil, nil
}

func (f *fakeVersionRepo) ListByCrate(_ context.Context, crateID uuid.UUID) ([]*version.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*version.Version

	for _, v := range f.versions {
		if v.CrateID == crateID {
			cp := *v
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (f *fakeVersionRepo) ListByContentHash(_ context.Context, contentHash string) ([]*version.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*version.Version

	for _, v := range f.versions {
		if v.ContentHash == contentHash {
			cp := *v
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (f *fakeVersionRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.versions, id)

	return nil
}

func (f *fakeVersionRepo) ListOrphaned(_ context.Context) ([]*version.Version, error) {
	return nil, nil
}

type fakeOwnershipRepo struct {
	mu     sync.Mutex
	owners map[uuid.UUID]map[uuid.UUID]bool
}

func newFakeOwnershipRepo() *fakeOwnershipRepo {
	return &fakeOwnershipRepo{owners: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (f *fakeOwnershipRepo) Add(_ context.Context, crateID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.owners[crateID] == nil {
		f.owners[crateID] = make(map[uuid.UUID]bool)
	}

	f.owners[crateID][userID] = true

	return nil
}

func (f *fakeOwnershipRepo) Remove(_ context.Context, crateID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.owners[crateID], userID)

	return nil
}

func (f *fakeOwnershipRepo) IsOwner(_ context.Context, crateID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.owners[crateID][userID], nil
}

func (f *fakeOwnershipRepo) Count(_ context.Context, crateID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.owners[crateID]), nil
}

func (f *fakeOwnershipRepo) ListOwners(_ context.Context, crateID uuid.UUID) ([]*user.User, error) {
	return nil, nil
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []job.Payload
}

func (f *fakeScheduler) Submit(_ context.Context, kind job.Kind, payload job.Payload, caps []string, deadline *time.Time) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs = append(f.jobs, payload)

	return &job.Job{ID: uuid.Must(uuid.NewV7()), Kind: kind, Payload: payload}, nil
}

type alwaysResolvable struct{}

func (alwaysResolvable) DependencyExists(_ context.Context, _ string) (bool, error) { return true, nil }

func newTestService(t *testing.T) (*command.Service, *fakeScheduler) {
	t.Helper()

	idx := fsindex.New(t.TempDir())
	blobs := fsblob.New(t.TempDir())
	bus := eventbus.New(&mlog.GoLogger{})
	sched := &fakeScheduler{}

	svc := command.NewService(
		newFakeCrateRepo(),
		newFakeVersionRepo(),
		newFakeOwnershipRepo(),
		idx,
		blobs,
		sched,
		bus,
		&mlog.GoLogger{},
	)

	return svc, sched
}

func testPrincipal(userID uuid.UUID) auth.Principal {
	return auth.Principal{User: &user.User{ID: userID, Role: user.RoleUser}}
}

func TestPublishCreatesImplicitOwnerAndSubmitsJob(t *testing.T) {
	svc, sched := newTestService(t)
	ctx := context.Background()
	alice := uuid.Must(uuid.NewV7())

	v, err := svc.Publish(ctx, alice, testPrincipal(alice), command.PublishInput{
		Name:           "widgets",
		Semver:         "0.1.0",
		DeclaredLength: 5,
		Tarball:        bytes.NewReader([]byte("hello")),
	}, alwaysResolvable{})
	require.NoError(t, err)
	assert.Equal(t, version.StateActive, v.State)
	assert.Equal(t, version.DocsPending, v.DocsState)

	isOwner, err := svc.Owners.IsOwner(ctx, v.CrateID, alice)
	require.NoError(t, err)
	assert.True(t, isOwner)

	entries, err := svc.Index.Read(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Yanked)

	assert.Len(t, sched.jobs, 2)
}

func TestPublishRejectsDuplicateVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	alice := uuid.Must(uuid.NewV7())

	in := command.PublishInput{Name: "widgets", Semver: "0.1.0", DeclaredLength: 5, Tarball: bytes.NewReader([]byte("hello"))}

	_, err := svc.Publish(ctx, alice, testPrincipal(alice), in, alwaysResolvable{})
	require.NoError(t, err)

	in.Tarball = bytes.NewReader([]byte("hello"))
	_, err = svc.Publish(ctx, alice, testPrincipal(alice), in, alwaysResolvable{})
	require.Error(t, err)
}

func TestPublishRejectsNonOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	alice := uuid.Must(uuid.NewV7())
	bob := uuid.Must(uuid.NewV7())

	_, err := svc.Publish(ctx, alice, testPrincipal(alice), command.PublishInput{
		Name: "widgets", Semver: "0.1.0", DeclaredLength: 5, Tarball: bytes.NewReader([]byte("hello")),
	}, alwaysResolvable{})
	require.NoError(t, err)

	_, err = svc.Publish(ctx, bob, testPrincipal(bob), command.PublishInput{
		Name: "widgets", Semver: "0.1.1", DeclaredLength: 3, Tarball: bytes.NewReader([]byte("bye")),
	}, alwaysResolvable{})
	require.Error(t, err)
}

func TestYankIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	alice := uuid.Must(uuid.NewV7())
	principal := testPrincipal(alice)

	_, err := svc.Publish(ctx, alice, principal, command.PublishInput{
		Name: "widgets", Semver: "0.1.0", DeclaredLength: 5, Tarball: bytes.NewReader([]byte("hello")),
	}, alwaysResolvable{})
	require.NoError(t, err)

	require.NoError(t, svc.Yank(ctx, principal, "widgets", "0.1.0"))
	require.NoError(t, svc.Yank(ctx, principal, "widgets", "0.1.0"))

	entries, err := svc.Index.Read(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Yanked)

	require.NoError(t, svc.Unyank(ctx, principal, "widgets", "0.1.0"))

	entries, err = svc.Index.Read(ctx, "widgets")
	require.NoError(t, err)
	assert.False(t, entries[0].Yanked)
}

func TestRemoveLastOwnerRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	alice := uuid.Must(uuid.NewV7())
	principal := testPrincipal(alice)

	_, err := svc.Publish(ctx, alice, principal, command.PublishInput{
		Name: "widgets", Semver: "0.1.0", DeclaredLength: 5, Tarball: bytes.NewReader([]byte("hello")),
	}, alwaysResolvable{})
	require.NoError(t, err)

	err = svc.RemoveOwner(ctx, principal, "widgets", alice)
	require.Error(t, err)
}
