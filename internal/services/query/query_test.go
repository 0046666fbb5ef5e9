package query_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/adapters/fsindex"
	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/domain/indexentry"
	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/services/query"
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

	if c, ok := f.crates[id]; ok {
		cp := *c
		return &cp, nil
	}

	return nil, nil
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

func (f *fakeCrateRepo) Search(_ context.Context, q string, afterName string, limit int) ([]*crate.Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*crate.Crate

	for _, c := range f.crates {
		if q != "" && !strings.Contains(c.NormalizedName, crate.NormalizeName(q)) {
			continue
		}

		if afterName != "" && c.NormalizedName <= afterName {
			continue
		}

		cp := *c
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
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
	return v, nil
}

func (f *fakeVersionRepo) Find(_ context.Context, id uuid.UUID) (*version.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v, ok := f.versions[id]; ok {
		cp := *v
		return &cp, nil
	}

	return nil, nil
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
	return nil, nil
}

func (f *fakeVersionRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.versions, id)

	return nil
}

func (f *fakeVersionRepo) ListOrphaned(_ context.Context) ([]*version.Version, error) { return nil, nil }

type fakeOwnershipRepo struct {
	mu     sync.Mutex
	owners map[uuid.UUID]map[uuid.UUID]bool
	users  map[uuid.UUID]*user.User
}

func newFakeOwnershipRepo() *fakeOwnershipRepo {
	return &fakeOwnershipRepo{owners: make(map[uuid.UUID]map[uuid.UUID]bool), users: make(map[uuid.UUID]*user.User)}
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
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*user.User

	for userID := range f.owners[crateID] {
		if u, ok := f.users[userID]; ok {
			out = append(out, u)
		}
	}

	return out, nil
}

func setup(t *testing.T) (*query.Service, *fakeCrateRepo, *fakeVersionRepo, *fakeOwnershipRepo) {
	t.Helper()

	crates := newFakeCrateRepo()
	versions := newFakeVersionRepo()
	owners := newFakeOwnershipRepo()
	idx := fsindex.New(t.TempDir())

	return query.NewService(crates, versions, owners, idx, nil), crates, versions, owners
}

func TestSearchFiltersByNormalizedNameSubstring(t *testing.T) {
	svc, crates, _, _ := setup(t)
	ctx := context.Background()

	_, err := crates.Create(ctx, &crate.Crate{Name: "widgets"})
	require.NoError(t, err)

	_, err = crates.Create(ctx, &crate.Crate{Name: "gadgets"})
	require.NoError(t, err)

	results, next, err := svc.Search(ctx, "widg", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "widgets", results[0].Crate.Name)
	assert.Empty(t, next)
}

func TestSearchPaginatesByOpaqueCursor(t *testing.T) {
	svc, crates, _, _ := setup(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "bravo", "charlie"} {
		_, err := crates.Create(ctx, &crate.Crate{Name: name})
		require.NoError(t, err)
	}

	first, next, err := svc.Search(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, "alpha", first[0].Crate.Name)
	assert.Equal(t, "bravo", first[1].Crate.Name)

	second, next, err := svc.Search(ctx, "", next, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "charlie", second[0].Crate.Name)
	assert.Empty(t, next)
}

func TestSearchRejectsForeignCursor(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, _, err := svc.Search(context.Background(), "", "not&base64!", 10)
	require.Error(t, err)
}

func TestGetCrateNotFound(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, err := svc.GetCrate(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestIndexEntriesEmptyForUnpublishedCrate(t *testing.T) {
	svc, _, _, _ := setup(t)

	entries, err := svc.IndexEntries(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIndexEntriesReflectsRewrites(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	entry := indexentry.Entry{Name: "widgets", Vers: "0.1.0", Cksum: "abc", SchemaVers: 2}
	require.NoError(t, svc.Index.Append(ctx, "widgets", entry))

	entries, err := svc.IndexEntries(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0.1.0", entries[0].Vers)
}

func TestListOwnersAndIsOwner(t *testing.T) {
	svc, crates, _, owners := setup(t)
	ctx := context.Background()

	c, err := crates.Create(ctx, &crate.Crate{Name: "widgets"})
	require.NoError(t, err)

	alice := uuid.Must(uuid.NewV7())
	owners.users[alice] = &user.User{ID: alice, DisplayName: "alice"}
	require.NoError(t, owners.Add(ctx, c.ID, alice))

	isOwner, err := svc.IsOwner(ctx, "widgets", alice)
	require.NoError(t, err)
	assert.True(t, isOwner)

	list, err := svc.ListOwners(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].DisplayName)
}

func TestFindVersionNotFound(t *testing.T) {
	svc, crates, _, _ := setup(t)
	ctx := context.Background()

	_, err := crates.Create(ctx, &crate.Crate{Name: "widgets"})
	require.NoError(t, err)

	_, _, err = svc.FindVersion(ctx, "widgets", "9.9.9")
	require.Error(t, err)
}
