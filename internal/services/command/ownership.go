package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/auth"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/services/eventbus"
)

// AddOwner grants ownership of crateName to userID. Requires the caller to
// already be an Owner.
func (s *Service) AddOwner(ctx context.Context, principal auth.Principal, crateName string, userID uuid.UUID) error {
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

	alreadyOwner, err := s.Owners.IsOwner(ctx, c.ID, userID)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	if alreadyOwner {
		return apperr.ValidateBusinessError(constant.ErrOwnerAlreadyPresent, "Ownership")
	}

	if err := s.Owners.Add(ctx, c.ID, userID); err != nil {
		return err
	}

	s.Bus.Publish(eventbus.Event{Topic: eventbus.TopicPackage, Kind: "OwnerAdded", Payload: ownerChange{CrateID: c.ID, UserID: userID}})

	s.audit(ctx, AuditEntry{Action: "owner_add", CrateName: c.Name, ActorID: principal.User.ID, Detail: userID.String()})

	return nil
}

// RemoveOwner revokes userID's ownership of crateName. The last-owner
// invariant is enforced by checking
// the count immediately before the removal, inside the same per-crate write
// lock that serializes every other mutation on this crate.
func (s *Service) RemoveOwner(ctx context.Context, principal auth.Principal, crateName string, userID uuid.UUID) error {
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

	count, err := s.Owners.Count(ctx, c.ID)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	if count <= 1 {
		return apperr.ValidateBusinessError(constant.ErrLastOwner, "Ownership")
	}

	if err := s.Owners.Remove(ctx, c.ID, userID); err != nil {
		return err
	}

	s.Bus.Publish(eventbus.Event{Topic: eventbus.TopicPackage, Kind: "OwnerRemoved", Payload: ownerChange{CrateID: c.ID, UserID: userID}})

	s.audit(ctx, AuditEntry{Action: "owner_remove", CrateName: c.Name, ActorID: principal.User.ID, Detail: userID.String()})

	return nil
}

type ownerChange struct {
	CrateID uuid.UUID
	UserID  uuid.UUID
}
