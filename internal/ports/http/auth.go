package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/authn"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/nethttp"
)

// stateCookieName carries the CSRF state value between the login redirect
// and the provider's callback.
const stateCookieName = "cratery_oauth_state"

// Login handles GET /auth/login: starts the authorization-code flow by
// redirecting the browser to the configured identity provider.
func (h *Handler) Login(c *fiber.Ctx) error {
	if h.IdP == nil {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrExternalAuthFailed, "Auth"))
	}

	state, err := authn.NewState()
	if err != nil {
		return nethttp.WithError(c, apperr.ValidateInternalError(err, c.Get("X-Correlation-ID")))
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect(h.IdP.AuthCodeURL(state), fiber.StatusFound)
}

// Callback handles GET /auth/callback: verifies the state value, exchanges
// the authorization code for an external identity, creates-or-locates the
// User by stable external subject, and mints a session cookie.
func (h *Handler) Callback(c *fiber.Ctx) error {
	if h.IdP == nil {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrExternalAuthFailed, "Auth"))
	}

	ctx := c.UserContext()

	state := c.Query("state")
	if state == "" || state != c.Cookies(stateCookieName) {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrExternalAuthFailed, "Auth"))
	}

	c.Cookie(&fiber.Cookie{Name: stateCookieName, Expires: time.Now().Add(-time.Hour), HTTPOnly: true})

	code := c.Query("code")
	if code == "" {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrExternalAuthFailed, "Auth"))
	}

	identity, err := h.IdP.Exchange(ctx, code)
	if err != nil {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrExternalAuthFailed, "Auth"))
	}

	u, err := h.Users.FindByExternalSubject(ctx, identity.Subject)
	if err != nil {
		return nethttp.WithError(c, apperr.ValidateInternalError(err, c.Get("X-Correlation-ID")))
	}

	if u == nil {
		subject := identity.Subject

		u, err = h.Users.Create(ctx, &user.User{
			DisplayName:     identity.DisplayName,
			Email:           identity.Email,
			Role:            user.RoleUser,
			ExternalSubject: &subject,
		})
		if err != nil {
			return nethttp.WithError(c, apperr.ValidateInternalError(err, c.Get("X-Correlation-ID")))
		}
	}

	if u.Disabled {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrForbidden, "User"))
	}

	session, err := h.Sessions.Issue(u)
	if err != nil {
		return nethttp.WithError(c, apperr.ValidateInternalError(err, c.Get("X-Correlation-ID")))
	}

	c.Cookie(&fiber.Cookie{
		Name:     authn.SessionCookieName,
		Value:    session,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect("/", fiber.StatusFound)
}

// Logout handles POST /auth/logout: expires the session cookie. The signed
// session itself stays valid until its expiry; rotation on privilege change
// is handled by re-issuing, not by a server-side revocation list.
func (h *Handler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     authn.SessionCookieName,
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})

	return nethttp.NoContent(c)
}
