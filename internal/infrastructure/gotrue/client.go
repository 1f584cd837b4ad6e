// Package gotrue is a REST client for a GoTrue-compatible identity provider.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/memberhub/memberdash/internal/core/domain"
	"github.com/memberhub/memberdash/internal/core/ports"
)

// SessionKey is the local store key holding the persisted session.
const SessionKey = "auth-token"

const (
	defaultTimeout       = 10 * time.Second
	defaultRefreshMargin = 30 * time.Second
	maxErrorBody         = 4 << 10
)

// Config configures a Client.
type Config struct {
	URL           string
	APIKey        string
	Timeout       time.Duration
	RefreshMargin time.Duration
}

// Client implements ports.IdentityProvider over the GoTrue REST API.
type Client struct {
	baseURL       string
	apiKey        string
	http          *http.Client
	store         ports.LocalStore
	refreshMargin time.Duration
	log           zerolog.Logger
	now           func() time.Time

	refreshes singleflight.Group

	subsMu sync.RWMutex
	subs   map[uint64]ports.AuthStateHandler
	nextID uint64
}

// New returns a client persisting its session in store.
func New(cfg Config, store ports.LocalStore, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = defaultRefreshMargin
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		apiKey:        cfg.APIKey,
		http:          &http.Client{Timeout: cfg.Timeout},
		store:         store,
		refreshMargin: cfg.RefreshMargin,
		log:           log,
		now:           time.Now,
		subs:          make(map[uint64]ports.AuthStateHandler),
	}
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         domain.User `json:"user"`
}

type errorResponse struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// GetSession returns the persisted session, refreshing it first when it expires
// within the refresh margin.
func (c *Client) GetSession(ctx context.Context) (*domain.Session, error) {
	sess, err := c.loadSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	if !sess.ExpiresWithin(c.now(), c.refreshMargin) {
		return sess, nil
	}
	return c.refresh(ctx, sess.RefreshToken)
}

// GetUser verifies the persisted access token with the provider.
func (c *Client) GetUser(ctx context.Context) (*domain.User, error) {
	sess, err := c.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("get user: %w", domain.ErrSessionInvalid)
	}

	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", sess.AccessToken, nil, &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// SignInWithPassword exchanges credentials for a session and emits SIGNED_IN.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]string{"email": email, "password": password}
	sess, err := c.token(ctx, "password", body)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if err := c.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	c.emit(domain.EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the session provider side, forgets it locally and emits
// SIGNED_OUT. Revocation failures for an already dead token are ignored.
func (c *Client) SignOut(ctx context.Context) error {
	sess, loadErr := c.loadSession(ctx)

	var revokeErr error
	if sess != nil && sess.AccessToken != "" {
		err := c.do(ctx, http.MethodPost, "/auth/v1/logout", sess.AccessToken, nil, nil)
		var ae *domain.AuthError
		if err != nil && !(errors.As(err, &ae) && isDeadTokenStatus(ae.Status)) {
			revokeErr = fmt.Errorf("sign out: %w", err)
		}
	}

	if err := c.store.Delete(ctx, SessionKey); err != nil {
		return errors.Join(revokeErr, fmt.Errorf("sign out: forget session: %w", err))
	}
	c.emit(domain.EventSignedOut, nil)

	if loadErr != nil {
		c.log.Warn().Err(loadErr).Msg("persisted session unreadable during sign out")
	}
	return revokeErr
}

func isDeadTokenStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound
}

// OnAuthStateChange registers handler for auth events. Handlers run inline on
// the emitting goroutine and must not block.
func (c *Client) OnAuthStateChange(handler ports.AuthStateHandler) ports.Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.nextID++
	id := c.nextID
	c.subs[id] = handler
	return &subscription{client: c, id: id}
}

// StartAutoRefresh refreshes the persisted session on every tick where it is
// about to expire, until ctx is cancelled.
func (c *Client) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.GetSession(ctx); err != nil {
					c.log.Warn().Err(err).Msg("auto refresh failed")
				}
			}
		}
	}()
}

// refresh exchanges refreshToken for a new session and emits TOKEN_REFRESHED.
// Concurrent refreshes of the same token share one request: GoTrue rejects a
// reused refresh token.
func (c *Client) refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh: %w", domain.ErrSessionInvalid)
	}
	v, err, _ := c.refreshes.Do(refreshToken, func() (any, error) {
		sess, err := c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
		if err != nil {
			return nil, err
		}
		if err := c.saveSession(ctx, sess); err != nil {
			return nil, err
		}
		c.log.Debug().Str("user_id", sess.User.ID).Msg("session refreshed")
		c.emit(domain.EventTokenRefreshed, sess)
		return sess, nil
	})
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return v.(*domain.Session), nil
}

func (c *Client) token(ctx context.Context, grantType string, body any) (*domain.Session, error) {
	var resp tokenResponse
	path := "/auth/v1/token?grant_type=" + url.QueryEscape(grantType)
	if err := c.do(ctx, http.MethodPost, path, "", body, &resp); err != nil {
		return nil, err
	}
	return c.sessionFromToken(resp)
}

func (c *Client) sessionFromToken(resp tokenResponse) (*domain.Session, error) {
	if resp.AccessToken == "" {
		return nil, &domain.AuthError{Message: "token response without access token"}
	}
	sess := &domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		User:         resp.User,
	}
	switch {
	case resp.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		sess.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}

	if sess.ExpiresAt.IsZero() || sess.User.ID == "" {
		claims, err := ParseClaims(resp.AccessToken)
		if err != nil {
			return nil, err
		}
		if sess.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
			sess.ExpiresAt = claims.ExpiresAt.UTC()
		}
		if sess.User.ID == "" {
			sess.User.ID = claims.Subject
		}
	}
	return sess, nil
}

// Claims is the subset of GoTrue access token claims the service relies on.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes an access token without verifying its signature. The
// provider verifies tokens; this only reads what it issued.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, &domain.AuthError{Code: "bad_jwt", Message: "malformed access token: " + err.Error()}
	}
	return claims, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	ae := &domain.AuthError{Status: resp.StatusCode, Body: string(raw)}

	var er errorResponse
	if json.Unmarshal(raw, &er) == nil {
		ae.Code = er.ErrorCode
		for _, m := range []string{er.Msg, er.Message, er.ErrorDescription, er.Error} {
			if m != "" {
				ae.Message = m
				break
			}
		}
	}
	if ae.Message == "" {
		ae.Message = http.StatusText(resp.StatusCode)
	}
	return ae
}

func (c *Client) loadSession(ctx context.Context) (*domain.Session, error) {
	raw, err := c.store.Get(ctx, SessionKey)
	if errors.Is(err, ports.ErrLocalKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		c.log.Warn().Err(err).Msg("discarding unreadable persisted session")
		_ = c.store.Delete(ctx, SessionKey)
		return nil, nil
	}
	return &sess, nil
}

func (c *Client) saveSession(ctx context.Context, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := c.store.Set(ctx, SessionKey, raw); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (c *Client) emit(eventType domain.AuthEventType, sess *domain.Session) {
	c.subsMu.RLock()
	handlers := make([]ports.AuthStateHandler, 0, len(c.subs))
	for _, h := range c.subs {
		handlers = append(handlers, h)
	}
	c.subsMu.RUnlock()

	event := domain.AuthEvent{Type: eventType, Session: sess, At: c.now().UTC()}
	for _, h := range handlers {
		h(event)
	}
}

type subscription struct {
	client *Client
	id     uint64
}

func (s *subscription) Unsubscribe() {
	s.client.subsMu.Lock()
	delete(s.client.subs, s.id)
	s.client.subsMu.Unlock()
}
