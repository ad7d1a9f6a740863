package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hollowfen/pasture/pkg/clock"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/storage"
)

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"

	// Local store keys caching the identity for offline reference.
	KeyUserID       = "auth_user_id"
	KeyRefreshToken = "auth_refresh_token"
	KeyEmail        = "auth_email"

	// refreshLeeway is how long before expiry a token is refreshed.
	refreshLeeway = time.Minute
)

// User is the stable identity exposed to the rest of the application.
type User struct {
	ID        string
	Email     string
	Anonymous bool
}

// Session holds the tokens backing the current identity.
type Session struct {
	User         User
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Gateway establishes an identity against the Firebase Auth REST API.
// Anonymous identities can later be upgraded in place with LinkWithEmail.
// Every operation converts failures into returned errors; nothing panics
// past this boundary.
type Gateway struct {
	apiKey      string
	identityURL string
	tokenURL    string
	httpClient  *http.Client
	store       storage.Store
	clk         clock.Clock

	lock    sync.Mutex
	session *Session
}

type NewGatewayOptions struct {
	// APIKey is the Firebase web API key. Empty means auth is not
	// configured and the game runs offline-only.
	APIKey string
	// IdentityURL overrides the Identity Toolkit endpoint (tests).
	IdentityURL string
	// TokenURL overrides the secure token endpoint (tests).
	TokenURL string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Store caches the user id and refresh token locally.
	Store storage.Store
	// Clock defaults to the system clock.
	Clock clock.Clock
}

func NewGateway(opts NewGatewayOptions) *Gateway {
	identityURL := opts.IdentityURL
	if identityURL == "" {
		identityURL = DefaultIdentityURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Gateway{
		apiKey:      opts.APIKey,
		identityURL: identityURL,
		tokenURL:    tokenURL,
		httpClient:  httpClient,
		store:       opts.Store,
		clk:         clk,
	}
}

// Configured reports whether backend credentials are present. When false
// every sign-in operation fails with ErrNotConfigured and the rest of
// the app stays in offline-only mode.
func (g *Gateway) Configured() bool {
	return g.apiKey != ""
}

// CurrentUser returns the signed-in user, or nil when there is none.
func (g *Gateway) CurrentUser() *User {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.session == nil {
		return nil
	}
	user := g.session.User
	return &user
}

// CurrentSession returns a copy of the active session, or nil.
func (g *Gateway) CurrentSession() *Session {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.session == nil {
		return nil
	}
	session := *g.session
	return &session
}

// Initialize restores an identity on app start: an existing session via
// the cached refresh token when possible, anonymous sign-in otherwise.
func (g *Gateway) Initialize(ctx context.Context) (*User, error) {
	if !g.Configured() {
		return nil, &ErrNotConfigured{}
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	if g.session != nil {
		user := g.session.User
		return &user, nil
	}

	if refreshToken := g.cachedKey(ctx, KeyRefreshToken); refreshToken != "" {
		if err := g.refreshLocked(ctx, refreshToken); err != nil {
			log.Warn("Failed to restore session from cached refresh token: %v", err)
		} else {
			user := g.session.User
			return &user, nil
		}
	}

	return g.signInAnonymouslyLocked(ctx)
}

// SignInAnonymously requests an anonymous identity. Idempotent: an
// already signed-in user is returned as-is.
func (g *Gateway) SignInAnonymously(ctx context.Context) (*User, error) {
	if !g.Configured() {
		return nil, &ErrNotConfigured{}
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	if g.session != nil {
		user := g.session.User
		return &user, nil
	}
	return g.signInAnonymouslyLocked(ctx)
}

func (g *Gateway) signInAnonymouslyLocked(ctx context.Context) (*User, error) {
	respBody := &SignUpResponseBody{}
	url := fmt.Sprintf("%s/accounts:signUp?key=%s", g.identityURL, g.apiKey)
	if err := g.post(ctx, url, &SignUpRequestBody{ReturnSecureToken: true}, respBody); err != nil {
		return nil, fmt.Errorf("failed to sign in anonymously: %v", err)
	}

	g.setSessionLocked(ctx, &Session{
		User:         User{ID: respBody.LocalID, Anonymous: true},
		IDToken:      respBody.IDToken,
		RefreshToken: respBody.RefreshToken,
		ExpiresAt:    g.expiresAt(respBody.ExpiresIn),
	})
	user := g.session.User
	return &user, nil
}

// SignUpWithEmail creates a new email/password identity.
func (g *Gateway) SignUpWithEmail(ctx context.Context, email, password string) (*User, error) {
	if !g.Configured() {
		return nil, &ErrNotConfigured{}
	}

	respBody := &SignUpResponseBody{}
	url := fmt.Sprintf("%s/accounts:signUp?key=%s", g.identityURL, g.apiKey)
	req := &SignUpRequestBody{Email: email, Password: password, ReturnSecureToken: true}
	if err := g.post(ctx, url, req, respBody); err != nil {
		return nil, fmt.Errorf("failed to sign up: %v", err)
	}

	g.lock.Lock()
	defer g.lock.Unlock()
	g.setSessionLocked(ctx, &Session{
		User:         User{ID: respBody.LocalID, Email: respBody.Email},
		IDToken:      respBody.IDToken,
		RefreshToken: respBody.RefreshToken,
		ExpiresAt:    g.expiresAt(respBody.ExpiresIn),
	})
	user := g.session.User
	return &user, nil
}

// SignInWithEmail signs in with existing email/password credentials.
func (g *Gateway) SignInWithEmail(ctx context.Context, email, password string) (*User, error) {
	if !g.Configured() {
		return nil, &ErrNotConfigured{}
	}

	respBody := &SignInResponseBody{}
	url := fmt.Sprintf("%s/accounts:signInWithPassword?key=%s", g.identityURL, g.apiKey)
	req := &SignInRequestBody{Email: email, Password: password, ReturnSecureToken: true}
	if err := g.post(ctx, url, req, respBody); err != nil {
		return nil, fmt.Errorf("failed to sign in: %v", err)
	}

	g.lock.Lock()
	defer g.lock.Unlock()
	g.setSessionLocked(ctx, &Session{
		User:         User{ID: respBody.LocalID, Email: respBody.Email},
		IDToken:      respBody.IDToken,
		RefreshToken: respBody.RefreshToken,
		ExpiresAt:    g.expiresAt(respBody.ExpiresIn),
	})
	user := g.session.User
	return &user, nil
}

// LinkWithEmail upgrades the current anonymous identity in place by
// attaching email/password credentials. The user id is preserved, so the
// remote save row stays with the account.
func (g *Gateway) LinkWithEmail(ctx context.Context, email, password string) (*User, error) {
	if !g.Configured() {
		return nil, &ErrNotConfigured{}
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	if g.session == nil {
		return nil, &ErrNotAuthenticated{}
	}

	respBody := &LinkResponseBody{}
	url := fmt.Sprintf("%s/accounts:update?key=%s", g.identityURL, g.apiKey)
	req := &LinkRequestBody{
		IDToken:           g.session.IDToken,
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}
	if err := g.post(ctx, url, req, respBody); err != nil {
		return nil, fmt.Errorf("failed to link account: %v", err)
	}

	g.setSessionLocked(ctx, &Session{
		User:         User{ID: respBody.LocalID, Email: respBody.Email},
		IDToken:      respBody.IDToken,
		RefreshToken: respBody.RefreshToken,
		ExpiresAt:    g.expiresAt(respBody.ExpiresIn),
	})
	user := g.session.User
	return &user, nil
}

// SignOut clears the session and the locally cached identity.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.session = nil
	if g.store == nil {
		return nil
	}
	for _, key := range []string{KeyUserID, KeyRefreshToken, KeyEmail} {
		if err := g.store.DeleteKey(ctx, key); err != nil {
			return fmt.Errorf("failed to clear cached identity: %v", err)
		}
	}
	return nil
}

// Token returns a valid ID token for the current session, refreshing it
// when it is about to expire. Returns ErrNotAuthenticated when there is
// no session.
func (g *Gateway) Token(ctx context.Context) (string, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.session == nil {
		return "", &ErrNotAuthenticated{}
	}
	if g.clk.Now().Add(refreshLeeway).Before(g.session.ExpiresAt) {
		return g.session.IDToken, nil
	}
	if err := g.refreshLocked(ctx, g.session.RefreshToken); err != nil {
		return "", fmt.Errorf("failed to refresh token: %v", err)
	}
	return g.session.IDToken, nil
}

func (g *Gateway) refreshLocked(ctx context.Context, refreshToken string) error {
	respBody := &RefreshResponseBody{}
	url := fmt.Sprintf("%s/token?key=%s", g.tokenURL, g.apiKey)
	req := &RefreshRequestBody{GrantType: "refresh_token", RefreshToken: refreshToken}
	if err := g.post(ctx, url, req, respBody); err != nil {
		return err
	}

	email := g.cachedKey(ctx, KeyEmail)
	g.setSessionLocked(ctx, &Session{
		User:         User{ID: respBody.UserID, Email: email, Anonymous: email == ""},
		IDToken:      respBody.IDToken,
		RefreshToken: respBody.RefreshToken,
		ExpiresAt:    g.expiresAt(respBody.ExpiresIn),
	})
	return nil
}

func (g *Gateway) setSessionLocked(ctx context.Context, session *Session) {
	g.session = session
	if g.store == nil {
		return
	}
	// Caching is best effort; a failed write only loses offline reference.
	if err := g.store.SetKey(ctx, KeyUserID, session.User.ID); err != nil {
		log.Warn("Failed to cache user id: %v", err)
	}
	if err := g.store.SetKey(ctx, KeyRefreshToken, session.RefreshToken); err != nil {
		log.Warn("Failed to cache refresh token: %v", err)
	}
	if err := g.store.SetKey(ctx, KeyEmail, session.User.Email); err != nil {
		log.Warn("Failed to cache email: %v", err)
	}
}

func (g *Gateway) cachedKey(ctx context.Context, key string) string {
	if g.store == nil {
		return ""
	}
	value, err := g.store.GetKey(ctx, key)
	if err != nil {
		if !storage.IsNotFound(err) {
			log.Warn("Failed to read cached key %s: %v", key, err)
		}
		return ""
	}
	return value
}

func (g *Gateway) expiresAt(expiresIn string) time.Time {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil {
		seconds = 3600
	}
	return g.clk.Now().Add(time.Duration(seconds) * time.Second)
}

func (g *Gateway) post(ctx context.Context, url string, reqBody any, respBody any) error {
	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(reqBody); err != nil {
		return fmt.Errorf("error encoding request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorResponse := &ErrorResponseBody{}
		if err := json.NewDecoder(resp.Body).Decode(errorResponse); err != nil {
			return fmt.Errorf("error response status: %s", resp.Status)
		}
		return fmt.Errorf("auth error: %s", errorResponse.Error.Message)
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("error decoding response: %v", err)
	}
	return nil
}
