// Package command implements the Package Service's write operations:
// Publish, Yank/Unyank, Deprecate, Remove, and ownership mutation. Every
// crate-scoped mutation is serialized per crate name through keyedmutex
// (validate, authorize, persist, emit).
package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/auth"
	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/domain/indexentry"
	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/ownership"
	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/keyedmutex"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/motel"
	"github.com/cratery/cratery/internal/ports/blob"
	"github.com/cratery/cratery/internal/ports/index"
	"github.com/cratery/cratery/internal/services/eventbus"
)

// JobSubmitter is the subset of internal/services/scheduler.Scheduler
// Publish needs to enqueue a BuildDocs job.
type JobSubmitter interface {
	Submit(ctx context.Context, kind job.Kind, payload job.Payload, requiredCaps []string, deadline *time.Time) (*job.Job, error)
}

// AuditEntry is what the command layer hands its AuditLogger for a single
// recorded mutation; internal/adapters/mongodb/audit.Entry satisfies this
// shape without the command package importing the Mongo adapter directly.
type AuditEntry struct {
	Action     string
	CrateName  string
	Version    string
	ActorID    uuid.UUID
	Detail     string
	OccurredAt time.Time
}

// AuditLogger is the append-only audit log: every ownership mutation,
// yank/unyank, deprecate and remove is recorded. Best-effort from the
// command layer's perspective, a failed audit write is logged, never a
// reason to fail the mutation itself.
type AuditLogger interface {
	Record(ctx context.Context, e AuditEntry) error
}

type noopAuditLogger struct{}

func (noopAuditLogger) Record(context.Context, AuditEntry) error { return nil }

// Service implements the Package Service's command surface.
type Service struct {
	Crates     crate.Repository
	Versions   version.Repository
	Owners     ownership.Repository
	Index      index.Repository
	Blobs      blob.Store
	Scheduler  JobSubmitter
	Bus        *eventbus.Bus
	Audit      AuditLogger
	Logger     mlog.Logger
	writeLocks *keyedmutex.Map
}

// audit records e, logging (not returning) any failure: see AuditLogger.
func (s *Service) audit(ctx context.Context, e AuditEntry) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	if err := s.Audit.Record(ctx, e); err != nil {
		s.Logger.Warnf("audit: record %s for %s: %v", e.Action, e.CrateName, err)
	}
}

// NewService constructs a command Service with its own per-crate write lock
// table.
func NewService(
	crates crate.Repository,
	versions version.Repository,
	owners ownership.Repository,
	idx index.Repository,
	blobs blob.Store,
	scheduler JobSubmitter,
	bus *eventbus.Bus,
	logger mlog.Logger,
) *Service {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Service{
		Crates:     crates,
		Versions:   versions,
		Owners:     owners,
		Index:      idx,
		Blobs:      blobs,
		Scheduler:  scheduler,
		Bus:        bus,
		Audit:      noopAuditLogger{},
		Logger:     logger,
		writeLocks: keyedmutex.New(),
	}
}

// ManifestDependency is a declared dependency parsed out of a publish
// envelope's metadata header.
type ManifestDependency struct {
	Name            string
	VersionReq      string
	Optional        bool
	DefaultFeatures bool
	Features        []string
	Kind            version.DependencyKind
}

// PublishInput is the parsed publish envelope.
type PublishInput struct {
	Name                string
	Semver              string
	Dependencies        []ManifestDependency
	Features            map[string][]string
	Links               *string
	BinaryTargets       []string
	RequestedTargets    []string
	RequestedToolchains []string
	DeclaredLength      int64
	Tarball             io.Reader
}

// ResolvedDependencyChecker looks up whether a named dependency is known to
// this registry or the configured upstream allow-list.
type ResolvedDependencyChecker interface {
	DependencyExists(ctx context.Context, name string) (bool, error)
}

// Publish runs the full publish pipeline. uploaderID
// identifies the authenticated principal; resolver answers whether declared
// dependencies are known.
func (s *Service) Publish(ctx context.Context, uploaderID uuid.UUID, principal auth.Principal, in PublishInput, resolver ResolvedDependencyChecker) (*version.Version, error) {
	tracer := motel.NewTracerFromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.publish")
	defer span.End()

	// Step 1: validate shape.
	if !crate.ValidName(in.Name) {
		return nil, apperr.ValidateBusinessError(constant.ErrInvalidPackageName, "Crate")
	}

	parsedSemver, err := semver.NewVersion(in.Semver)
	if err != nil {
		return nil, apperr.ValidateBusinessError(constant.ErrInvalidSemver, "Version")
	}

	for _, dep := range in.Dependencies {
		ok, err := resolver.DependencyExists(ctx, dep.Name)
		if err != nil {
			motel.HandleSpanError(&span, "resolve dependency", err)
			return nil, apperr.StorageError{Message: err.Error(), Err: err}
		}

		if !ok {
			return nil, apperr.ValidateBusinessError(constant.ErrDependencyNotFound, "Version", dep.Name)
		}
	}

	normalized := crate.NormalizeName(in.Name)

	unlock := s.writeLocks.Lock(normalized)
	defer unlock()

	// Step 2: find-or-create the crate, sole-owner on create.
	c, err := s.Crates.FindByNormalizedName(ctx, normalized)
	if err != nil {
		motel.HandleSpanError(&span, "find crate", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	if c == nil {
		c, err = s.Crates.Create(ctx, &crate.Crate{Name: in.Name, CreatedAt: time.Now(), UpdatedAt: time.Now()})
		if err != nil {
			return nil, err
		}

		if err := s.Owners.Add(ctx, c.ID, uploaderID); err != nil {
			return nil, err
		}
	} else {
		isOwner, err := s.Owners.IsOwner(ctx, c.ID, uploaderID)
		if err != nil {
			return nil, apperr.StorageError{Message: err.Error(), Err: err}
		}

		if err := auth.Authorize(principal, auth.OperationWritePackage, auth.Resource{CrateName: c.Name}, isOwner); err != nil {
			return nil, err
		}

		if c.IsTrustedReExport() {
			// A trusted re-export shadows direct publishes entirely
			// rather than merging with them: a direct publish against a
			// re-export crate is rejected.
			return nil, apperr.ValidateBusinessError(constant.ErrTrustedReExport, "Crate", c.Name)
		}
	}

	// Step 3: reject republication, including of yanked versions.
	existing, err := s.Versions.FindByCrateAndSemver(ctx, c.ID, parsedSemver.String())
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	if existing != nil {
		return nil, apperr.ValidateBusinessError(constant.ErrVersionAlreadyExists, "Version")
	}

	// Step 4: stream to a temp blob key while hashing, verify length.
	uploadID := uuid.Must(uuid.NewV7()).String()
	tempKey := blob.TempKey(uploadID)

	hasher := sha256.New()
	counted := &countingReader{r: io.TeeReader(in.Tarball, hasher)}

	if err := s.Blobs.Put(ctx, tempKey, counted); err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	if in.DeclaredLength != 0 && counted.n != in.DeclaredLength {
		_ = s.Blobs.Delete(ctx, tempKey)
		return nil, apperr.ValidateBusinessError(constant.ErrContentLengthMismatch, "Version")
	}

	contentHash := hex.EncodeToString(hasher.Sum(nil))

	// Step 5: insert the Version row, state=Active, docs-state=Pending.
	v := &version.Version{
		CrateID:       c.ID,
		Semver:        parsedSemver.String(),
		UploadedAt:    time.Now(),
		UploaderID:    uploaderID,
		State:         version.StateActive,
		ContentHash:   contentHash,
		SizeBytes:     counted.n,
		Dependencies:  toDomainDependencies(in.Dependencies),
		Features:      in.Features,
		Links:         in.Links,
		BinaryTargets: in.BinaryTargets,
		DocsState:     version.DocsPending,
	}

	created, err := s.Versions.Create(ctx, v)
	if err != nil {
		_ = s.Blobs.Delete(ctx, tempKey)
		return nil, err
	}

	// Step 6: promote the temp blob to its final content-addressed key. A
	// crash here is exactly the orphan case internal/services/reconcile
	// detects on startup.
	finalKey := blob.CratesKey(contentHash)
	if err := s.Blobs.Move(ctx, tempKey, finalKey); err != nil {
		motel.HandleSpanError(&span, "promote blob", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	// Step 7: append to the index.
	entry := indexentry.FromVersion(c.Name, created)
	if err := s.Index.Append(ctx, c.Name, entry); err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	// Step 8: submit the BuildDocs job.
	requiredCaps := deriveCapabilities(in.RequestedTargets, in.RequestedToolchains)

	deadline := time.Now().Add(30 * time.Minute)

	if _, err := s.Scheduler.Submit(ctx, job.KindBuildDocs, job.Payload{
		CrateID:           c.ID,
		VersionID:         created.ID,
		RequestedTargets:  in.RequestedTargets,
		RequestedFeatures: featureNames(in.Features),
	}, requiredCaps, &deadline); err != nil {
		s.Logger.Errorf("publish: submit build_docs job for %s@%s: %v", c.Name, created.Semver, err)
	}

	if _, err := s.Scheduler.Submit(ctx, job.KindAnalyzeDeps, job.Payload{
		CrateID:   c.ID,
		VersionID: created.ID,
	}, nil, &deadline); err != nil {
		s.Logger.Errorf("publish: submit analyze_deps job for %s@%s: %v", c.Name, created.Semver, err)
	}

	// Step 9: emit a package-published event.
	s.Bus.Publish(eventbus.Event{Topic: eventbus.TopicPackage, Kind: "PackagePublished", Payload: created})

	s.audit(ctx, AuditEntry{Action: "publish", CrateName: c.Name, Version: created.Semver, ActorID: uploaderID})

	return created, nil
}

func deriveCapabilities(targets, toolchains []string) []string {
	caps := make([]string, 0, len(targets)+len(toolchains))
	caps = append(caps, targets...)
	caps = append(caps, toolchains...)

	return caps
}

func featureNames(features map[string][]string) []string {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}

	return names
}

func toDomainDependencies(deps []ManifestDependency) []version.Dependency {
	out := make([]version.Dependency, len(deps))
	for i, d := range deps {
		out[i] = version.Dependency{
			Name:            d.Name,
			VersionReq:      d.VersionReq,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Features:        d.Features,
			Kind:            d.Kind,
		}
	}

	return out
}

// countingReader wraps an io.Reader, counting bytes read, so Publish can
// verify the declared content length against what was actually streamed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	return n, err
}
