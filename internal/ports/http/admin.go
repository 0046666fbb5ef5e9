// admin.go implements the admin-facing endpoints of the Public API Surface:
// user provisioning, token issuance, worker visibility and the live
// worker/job event stream. These are never wire-compatible with package
// tooling, so every handler here uses nethttp.WithError rather than
// nethttp.WithWireError.
package http

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/auth"
	"github.com/cratery/cratery/internal/domain/token"
	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/domain/worker"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/authn"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/nethttp"
	"github.com/cratery/cratery/internal/services/eventbus"
)

func (h *Handler) requireAdmin(c *fiber.Ctx) (auth.Principal, bool) {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		_ = nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
		return auth.Principal{}, false
	}

	if err := auth.Authorize(principal, auth.OperationAdminGlobal, auth.Resource{}, false); err != nil {
		_ = nethttp.WithError(c, err)
		return auth.Principal{}, false
	}

	return principal, true
}

// CreateUser handles POST /api/v1/admin/users: admin-only direct
// provisioning.
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	if _, ok := h.requireAdmin(c); !ok {
		return nil
	}

	var in user.CreateInput
	if err := c.BodyParser(&in); err != nil {
		return nethttp.WithError(c, apperr.ValidationError{Code: "G0001", Title: "Bad Request", Message: "malformed request body"})
	}

	if err := nethttp.ValidateStruct(&in); err != nil {
		return nethttp.WithError(c, err)
	}

	now := time.Now()

	created, err := h.Users.Create(c.UserContext(), &user.User{
		DisplayName: in.DisplayName,
		Email:       in.Email,
		Role:        in.Role,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nethttp.WithError(c, apperr.StorageError{Message: err.Error(), Err: err})
	}

	return nethttp.Created(c, created)
}

// ListUsers handles GET /api/v1/admin/users.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	if _, ok := h.requireAdmin(c); !ok {
		return nil
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("per_page", 50)

	users, err := h.Users.FindAll(c.UserContext(), page, limit)
	if err != nil {
		return nethttp.WithError(c, apperr.StorageError{Message: err.Error(), Err: err})
	}

	return nethttp.OK(c, users)
}

// DisableUser handles DELETE /api/v1/admin/users/{id}: disables a user
// without deleting their ownership history.
func (h *Handler) DisableUser(c *fiber.Ctx) error {
	if _, ok := h.requireAdmin(c); !ok {
		return nil
	}

	id, ok := nethttp.ParseUUIDParam(c, "id")
	if !ok {
		return nil
	}

	if err := h.Users.Disable(c.UserContext(), id); err != nil {
		return nethttp.WithError(c, apperr.StorageError{Message: err.Error(), Err: err})
	}

	return nethttp.NoContent(c)
}

// CreateToken handles POST /api/v1/tokens: the authenticated caller mints a
// Token for themself, scoped by the requested capabilities and crate names.
// The clear secret is returned exactly once.
func (h *Handler) CreateToken(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	var in token.CreateInput
	if err := c.BodyParser(&in); err != nil {
		return nethttp.WithError(c, apperr.ValidationError{Code: "G0001", Title: "Bad Request", Message: "malformed request body"})
	}

	if err := nethttp.ValidateStruct(&in); err != nil {
		return nethttp.WithError(c, err)
	}

	clearSecret, prefix, hash, err := authn.GenerateSecret()
	if err != nil {
		return nethttp.WithError(c, apperr.InternalError{Message: err.Error(), Err: err})
	}

	created, err := h.Tokens.Create(c.UserContext(), &token.Token{
		UserID:       principal.User.ID,
		Name:         in.Name,
		SecretPrefix: prefix,
		SecretHash:   hash,
		Capabilities: in.Capabilities,
		CrateScope:   in.CrateScope,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return nethttp.WithError(c, apperr.StorageError{Message: err.Error(), Err: err})
	}

	return nethttp.Created(c, token.CreateOutput{Token: created, ClearSecret: clearSecret})
}

// ListTokens handles GET /api/v1/tokens: the caller's own tokens.
func (h *Handler) ListTokens(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	tokens, err := h.Tokens.ListByUser(c.UserContext(), principal.User.ID)
	if err != nil {
		return nethttp.WithError(c, apperr.StorageError{Message: err.Error(), Err: err})
	}

	return nethttp.OK(c, tokens)
}

// RevokeToken handles DELETE /api/v1/tokens/{id}.
func (h *Handler) RevokeToken(c *fiber.Ctx) error {
	if _, ok := authn.PrincipalFromContext(c); !ok {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	id, ok := nethttp.ParseUUIDParam(c, "id")
	if !ok {
		return nil
	}

	if err := h.Tokens.Revoke(c.UserContext(), id); err != nil {
		return nethttp.WithError(c, apperr.StorageError{Message: err.Error(), Err: err})
	}

	return nethttp.NoContent(c)
}

// workerView is the admin-facing projection of a connected Worker.
type workerView struct {
	ID              uuid.UUID         `json:"id"`
	Descriptor      worker.Descriptor `json:"descriptor"`
	State           worker.State      `json:"state"`
	JobID           *uuid.UUID        `json:"jobId,omitempty"`
	ConnectedAt     time.Time         `json:"connectedAt"`
	LastKeepAlive   time.Time         `json:"lastKeepAlive"`
	SeenElsewhere   *bool             `json:"seenElsewhereInFleet,omitempty"`
}

// ListWorkers handles GET /api/v1/admin/workers.
// When h.LivenessQuery is configured, each entry is annotated with whether
// a peer instance has also seen that worker heartbeat recently.
func (h *Handler) ListWorkers(c *fiber.Ctx) error {
	if _, ok := h.requireAdmin(c); !ok {
		return nil
	}

	workers := h.Registry.ListAll()

	views := make([]workerView, 0, len(workers))
	for _, w := range workers {
		v := workerView{
			ID:            w.ID,
			Descriptor:    w.Descriptor,
			State:         w.State,
			JobID:         w.JobID,
			ConnectedAt:   w.ConnectedAt,
			LastKeepAlive: w.LastKeepAlive,
		}

		if h.LivenessQuery != nil {
			alive := h.LivenessQuery.Alive(c.UserContext(), w.ID)
			v.SeenElsewhere = &alive
		}

		views = append(views, v)
	}

	return nethttp.OK(c, views)
}

// DrainWorker handles POST /api/v1/admin/workers/{id}/drain.
func (h *Handler) DrainWorker(c *fiber.Ctx) error {
	if _, ok := h.requireAdmin(c); !ok {
		return nil
	}

	id, ok := nethttp.ParseUUIDParam(c, "id")
	if !ok {
		return nil
	}

	if err := h.Registry.Drain(id); err != nil {
		return nethttp.WithError(c, apperr.ValidateBusinessError(err, "Worker"))
	}

	return nethttp.NoContent(c)
}

// WorkerUpdates handles GET /api/v1/admin/workers/updates: a Server-Sent
// Events stream of worker and job lifecycle events, for the admin UI's live
// view.
func (h *Handler) WorkerUpdates(c *fiber.Ctx) error {
	if _, ok := h.requireAdmin(c); !ok {
		return nil
	}

	sub := h.Bus.Subscribe(eventbus.TopicWorker)
	defer sub.Unsubscribe()

	jobSub := h.Bus.Subscribe(eventbus.TopicJob)
	defer jobSub.Unsubscribe()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	ctx := c.UserContext()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sub.Events():
				if !ok {
					return
				}

				if !writeSSEEvent(w, evt) {
					return
				}
			case evt, ok := <-jobSub.Events():
				if !ok {
					return
				}

				if !writeSSEEvent(w, evt) {
					return
				}
			}
		}
	})

	return nil
}

// writeSSEEvent writes one eventbus.Event as a single SSE "data:" line,
// reporting whether the write (and flush) succeeded.
func writeSSEEvent(w *bufio.Writer, evt eventbus.Event) bool {
	payload, err := json.Marshal(evt)
	if err != nil {
		return true
	}

	if _, err := w.WriteString("data: "); err != nil {
		return false
	}

	if _, err := w.Write(payload); err != nil {
		return false
	}

	if _, err := w.WriteString("\n\n"); err != nil {
		return false
	}

	return w.Flush() == nil
}
