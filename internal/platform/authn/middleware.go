package authn

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cratery/cratery/internal/domain/auth"
	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/nethttp"
)

type principalContextKey struct{}

// bearerChallenge is the WWW-Authenticate value sent with every 401 for a
// request that carried no credentials at all.
const bearerChallenge = `Bearer realm="cratery"`

// Middleware resolves a Fiber request's Principal via whichever of the
// bearer-token or session-cookie ingress modes is present.
type Middleware struct {
	Verifier *TokenVerifier
	Sessions *SessionManager
	Users    user.Repository
}

// Authenticate resolves the request's Principal and stores it in Locals, or
// fails the request with 401 if neither ingress mode yields one.
func (m *Middleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		l := mlog.NewLoggerFromContext(ctx)

		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			secret, ok := ExtractBearer(header)
			if !ok {
				return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrTokenInvalid, "Token"))
			}

			t, err := m.Verifier.Verify(ctx, secret)
			if err != nil {
				return nethttp.WithError(c, apperr.ValidateBusinessError(err, "Token"))
			}

			u, err := m.Users.Find(ctx, t.UserID)
			if err != nil {
				l.Errorf("authn: load user for token: %v", err)
				return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrTokenInvalid, "Token"))
			}

			c.Locals(principalContextKey{}, auth.Principal{User: u, Token: t})

			return c.Next()
		}

		if cookie := c.Cookies(SessionCookieName); cookie != "" {
			sp, err := m.Sessions.Verify(cookie)
			if err != nil {
				return nethttp.WithError(c, apperr.ValidateBusinessError(err, "Session"))
			}

			u, err := m.Users.Find(ctx, sp.UserID)
			if err != nil {
				l.Errorf("authn: load user for session: %v", err)
				return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrSessionExpired, "Session"))
			}

			c.Locals(principalContextKey{}, auth.Principal{User: u})

			return c.Next()
		}

		c.Set(fiber.HeaderWWWAuthenticate, bearerChallenge)

		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}
}

// PrincipalFromContext retrieves the Principal Authenticate stored, if any.
func PrincipalFromContext(c *fiber.Ctx) (auth.Principal, bool) {
	p, ok := c.Locals(principalContextKey{}).(auth.Principal)
	return p, ok
}

// AuthenticateWire is Authenticate for the crates.io-compatible endpoints:
// same resolution, but failures are written in the `{"errors":[...]}`
// envelope package tooling expects rather than the admin ResponseError shape.
func (m *Middleware) AuthenticateWire() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		l := mlog.NewLoggerFromContext(ctx)

		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			secret, ok := ExtractBearer(header)
			if !ok {
				return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenInvalid, "Token"))
			}

			t, err := m.Verifier.Verify(ctx, secret)
			if err != nil {
				return nethttp.WithWireError(c, apperr.ValidateBusinessError(err, "Token"))
			}

			u, err := m.Users.Find(ctx, t.UserID)
			if err != nil {
				l.Errorf("authn: load user for token: %v", err)
				return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenInvalid, "Token"))
			}

			c.Locals(principalContextKey{}, auth.Principal{User: u, Token: t})

			return c.Next()
		}

		if cookie := c.Cookies(SessionCookieName); cookie != "" {
			sp, err := m.Sessions.Verify(cookie)
			if err != nil {
				return nethttp.WithWireError(c, apperr.ValidateBusinessError(err, "Session"))
			}

			u, err := m.Users.Find(ctx, sp.UserID)
			if err != nil {
				l.Errorf("authn: load user for session: %v", err)
				return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrSessionExpired, "Session"))
			}

			c.Locals(principalContextKey{}, auth.Principal{User: u})

			return c.Next()
		}

		c.Set(fiber.HeaderWWWAuthenticate, bearerChallenge)

		return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}
}
