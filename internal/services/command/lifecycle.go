package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/auth"
	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/domain/indexentry"
	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/ports/blob"
	"github.com/cratery/cratery/internal/services/eventbus"
)

// Yank transitions a Version to Yanked, rewrites the crate's index file and
// emits an event. Idempotent: yanking an already-yanked version is a no-op
// success.
func (s *Service) Yank(ctx context.Context, principal auth.Principal, crateName, semver string) error {
	return s.setYanked(ctx, principal, crateName, semver, true)
}

// Unyank transitions a Version back to Active. Idempotent symmetrically
// with Yank.
func (s *Service) Unyank(ctx context.Context, principal auth.Principal, crateName, semver string) error {
	return s.setYanked(ctx, principal, crateName, semver, false)
}

func (s *Service) setYanked(ctx context.Context, principal auth.Principal, crateName, ver string, yanked bool) error {
	normalized := normalizedNameOf(crateName)

	unlock := s.writeLocks.Lock(normalized)
	defer unlock()

	c, v, isOwner, err := s.loadCrateVersion(ctx, principal, crateName, ver)
	if err != nil {
		return err
	}

	if err := auth.Authorize(principal, auth.OperationWritePackage, auth.Resource{CrateName: c.Name}, isOwner); err != nil {
		return err
	}

	wantState := version.StateActive
	if yanked {
		wantState = version.StateYanked
	}

	if v.State == wantState {
		// Already in the desired state: idempotent no-op.
		return nil
	}

	v.State = wantState

	updated, err := s.Versions.Update(ctx, v.ID, v)
	if err != nil {
		return err
	}

	if err := s.rewriteIndex(ctx, c.ID, c.Name); err != nil {
		return err
	}

	kind := "VersionYanked"
	action := "yank"
	if !yanked {
		kind = "VersionUnyanked"
		action = "unyank"
	}

	s.Bus.Publish(eventbus.Event{Topic: eventbus.TopicPackage, Kind: kind, Payload: updated})

	s.audit(ctx, AuditEntry{Action: action, CrateName: c.Name, Version: ver, ActorID: principal.User.ID})

	return nil
}

// Deprecate sets or clears a Crate's deprecation notice, orthogonal to any
// per-version yank state.
func (s *Service) Deprecate(ctx context.Context, principal auth.Principal, crateName string, notice *string) error {
	normalized := normalizedNameOf(crateName)

	unlock := s.writeLocks.Lock(normalized)
	defer unlock()

	c, err := s.Crates.FindByNormalizedName(ctx, normalized)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	if c == nil {
		return apperr.ValidateBusinessError(constant.ErrPackageNotFound, "Crate", crateName)
	}

	isOwner, err := s.Owners.IsOwner(ctx, c.ID, principal.User.ID)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	if err := auth.Authorize(principal, auth.OperationWritePackage, auth.Resource{CrateName: c.Name}, isOwner); err != nil {
		return err
	}

	c.DeprecationNotice = notice
	c.UpdatedAt = time.Now()

	updated, err := s.Crates.Update(ctx, c.ID, c)
	if err != nil {
		return err
	}

	s.Bus.Publish(eventbus.Event{Topic: eventbus.TopicPackage, Kind: "PackageDeprecationChanged", Payload: updated})

	deadline := time.Now().Add(30 * time.Minute)
	if _, err := s.Scheduler.Submit(ctx, job.KindCheckDeprecation, job.Payload{CrateID: c.ID}, nil, &deadline); err != nil {
		s.Logger.Errorf("deprecate: submit check_deprecation job for %s: %v", c.Name, err)
	}

	s.audit(ctx, AuditEntry{Action: "deprecate", CrateName: c.Name, ActorID: principal.User.ID})

	return nil
}

// Remove hard-deletes a Version (admin-only): drops the row, the blob (only
// if no other Version shares its content hash), and rewrites the index file
// omitting the line.
func (s *Service) Remove(ctx context.Context, principal auth.Principal, crateName, ver string) error {
	if err := auth.Authorize(principal, auth.OperationAdminGlobal, auth.Resource{}, false); err != nil {
		return err
	}

	normalized := normalizedNameOf(crateName)

	unlock := s.writeLocks.Lock(normalized)
	defer unlock()

	c, err := s.Crates.FindByNormalizedName(ctx, normalized)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	if c == nil {
		return apperr.ValidateBusinessError(constant.ErrPackageNotFound, "Crate", crateName)
	}

	v, err := s.Versions.FindByCrateAndSemver(ctx, c.ID, ver)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	if v == nil {
		return apperr.ValidateBusinessError(constant.ErrVersionNotFound, "Version", ver)
	}

	if err := s.Versions.Delete(ctx, v.ID); err != nil {
		return err
	}

	others, err := s.Versions.ListByContentHash(ctx, v.ContentHash)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	if len(others) == 0 {
		if err := s.Blobs.Delete(ctx, blobKeyForVersion(v)); err != nil {
			return apperr.StorageError{Message: err.Error(), Err: err}
		}
	}

	if err := s.rewriteIndex(ctx, c.ID, c.Name); err != nil {
		return err
	}

	s.Bus.Publish(eventbus.Event{Topic: eventbus.TopicPackage, Kind: "VersionRemoved", Payload: v})

	s.audit(ctx, AuditEntry{Action: "remove", CrateName: c.Name, Version: ver, ActorID: principal.User.ID})

	return nil
}

func (s *Service) loadCrateVersion(ctx context.Context, principal auth.Principal, crateName, ver string) (*crate.Crate, *version.Version, bool, error) {
	normalized := normalizedNameOf(crateName)

	c, err := s.Crates.FindByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, nil, false, apperr.StorageError{Message: err.Error(), Err: err}
	}

	if c == nil {
		return nil, nil, false, apperr.ValidateBusinessError(constant.ErrPackageNotFound, "Crate", crateName)
	}

	v, err := s.Versions.FindByCrateAndSemver(ctx, c.ID, ver)
	if err != nil {
		return nil, nil, false, apperr.StorageError{Message: err.Error(), Err: err}
	}

	if v == nil {
		return nil, nil, false, apperr.ValidateBusinessError(constant.ErrVersionNotFound, "Version", ver)
	}

	isOwner, err := s.Owners.IsOwner(ctx, c.ID, principal.User.ID)
	if err != nil {
		return nil, nil, false, apperr.StorageError{Message: err.Error(), Err: err}
	}

	return c, v, isOwner, nil
}

func (s *Service) rewriteIndex(ctx context.Context, crateID uuid.UUID, crateName string) error {
	versions, err := s.Versions.ListByCrate(ctx, crateID)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	entries := make([]indexentry.Entry, 0, len(versions))
	for _, v := range versions {
		entries = append(entries, indexentry.FromVersion(crateName, v))
	}

	if err := s.Index.Rewrite(ctx, crateName, entries); err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	return nil
}

func blobKeyForVersion(v *version.Version) string {
	return blob.CratesKey(v.ContentHash)
}

func normalizedNameOf(name string) string {
	return crate.NormalizeName(name)
}
