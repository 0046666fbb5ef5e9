package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/cratery/cratery/internal/platform/constant"
)

// ExternalIdentity is the subset of an identity provider's userinfo response
// Cratery needs to create-or-locate a User. Subject is
// the provider's stable identifier and is what's matched against
// user.User.ExternalSubject — DisplayName/Email are used only when
// provisioning a new User.
type ExternalIdentity struct {
	Subject     string `json:"sub"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
}

// IdentityProvider drives the authorization-code flow against a configured
// external identity provider. It wraps oauth2.Config rather than a
// provider-specific SDK, so any OIDC-compatible provider can be configured
// without a code change.
type IdentityProvider struct {
	config      oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewIdentityProvider constructs an IdentityProvider. authURL/tokenURL/
// userInfoURL come from the provider's OIDC discovery document.
func NewIdentityProvider(clientID, clientSecret, authURL, tokenURL, userInfoURL, redirectURL string, scopes []string) *IdentityProvider {
	return &IdentityProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
		httpClient:  http.DefaultClient,
	}
}

// NewState generates an opaque CSRF-protection value for the authorization
// request; the caller stores it (session, short-lived cookie) and compares
// it against the value returned to the callback.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// AuthCodeURL builds the URL the browser is redirected to, to start the
// authorization-code flow.
func (p *IdentityProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for the caller's identity, by
// exchanging it for an access token and then fetching the provider's
// userinfo endpoint.
func (p *IdentityProvider) Exchange(ctx context.Context, code string) (*ExternalIdentity, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange authorization code: %v", constant.ErrExternalAuthFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build userinfo request: %v", constant.ErrExternalAuthFailed, err)
	}

	tok.SetAuthHeader(req)

	client := p.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch userinfo: %v", constant.ErrExternalAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned status %d", constant.ErrExternalAuthFailed, resp.StatusCode)
	}

	var identity ExternalIdentity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", constant.ErrExternalAuthFailed, err)
	}

	if identity.Subject == "" {
		return nil, fmt.Errorf("%w: userinfo response carries no subject", constant.ErrExternalAuthFailed)
	}

	return &identity, nil
}
