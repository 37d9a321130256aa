// Package middleware integrates the oauthclient engine with net/http: it
// wraps a handler, sends unauthenticated users through the authorization
// flow, and keeps the resulting token and claims in an encrypted cookie
// session.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"github.com/pardot/oauthclient"
)

type claimsContextKey struct{}

const (
	defaultSessionName = "oauthclient-middleware"

	sessionKeyReturnTo    = "oauth-return-to"
	sessionKeyToken       = "oauth-token"
	sessionKeyClaims      = "oauth-claims"
	sessionKeyStatePrefix = "oauth-state-"
)

// Handler wraps another http.Handler, protecting it with the authorization
// flow of the configured provider.
type Handler struct {
	// Client drives the flow against the provider.
	Client *oauthclient.Client
	// BaseURL is the base URL for this relying party. If it is not safe to
	// redirect the user to their original destination, they will be
	// redirected to this URL.
	BaseURL string
	// RedirectURL is the callback URL registered with the provider for
	// this relying party.
	RedirectURL string

	// SessionAuthenticationKey is a 32 or 64 byte random key used to
	// authenticate the session.
	SessionAuthenticationKey []byte
	// SessionEncryptionKey is a 16, 24 or 32 byte random key used to
	// encrypt the session. If nil, the session is not encrypted.
	SessionEncryptionKey []byte
	// SessionName is a name used for the session. If empty, a default
	// session name is used.
	SessionName string

	sessionStore   sessions.Store
	sessionStoreMu sync.Mutex

	clock func() time.Time
}

// Wrap returns an http.Handler that requires an authenticated user before
// invoking next. Claims for the user are made available via
// ClaimsFromContext.
func (h *Handler) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := h.getSession(r)

		// Check for a user that's already authenticated
		claims, err := h.authenticateExisting(r, session)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		} else if claims != nil {
			if err := sessions.Save(r, w); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			// Authentication successful
			r = r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims))
			next.ServeHTTP(w, r)
			return
		}

		// Check for an authentication request finishing
		returnTo, err := h.authenticateCallback(r, session)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		} else if returnTo != "" {
			if err := sessions.Save(r, w); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			http.Redirect(w, r, returnTo, http.StatusSeeOther)
			return
		}

		// Not authenticated. Kick off an auth flow.
		redirectURL, err := h.startAuthentication(r, session)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err := sessions.Save(r, w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, redirectURL, http.StatusSeeOther)
	})
}

// authenticateExisting returns (claims, nil) if the user is authenticated,
// (nil, error) if a fatal error occurs, or (nil, nil) if the user is not
// authenticated but no fatal error occurred.
//
// This function may modify the session if a token is refreshed, so it must
// be saved afterward.
func (h *Handler) authenticateExisting(r *http.Request, session *sessions.Session) (*oauthclient.Claims, error) {
	ctx := r.Context()

	rawClaims, ok := session.Values[sessionKeyClaims].(string)
	if !ok {
		return nil, nil
	}

	claims := &oauthclient.Claims{}
	if err := json.Unmarshal([]byte(rawClaims), claims); err != nil {
		return nil, nil
	}

	if claims.Expiry.Time().Before(h.now()) {
		// Attempt to refresh the token
		rawToken, ok := session.Values[sessionKeyToken].(string)
		if !ok {
			return nil, nil
		}
		token := &oauthclient.Token{}
		if err := json.Unmarshal([]byte(rawToken), token); err != nil {
			return nil, nil
		}
		if token.RefreshToken == "" {
			return nil, nil
		}

		newToken, err := h.Client.RefreshToken(ctx, token.RefreshToken)
		if err != nil {
			return nil, nil
		}

		// Refreshed ID tokens are not bound to the original nonce
		newClaims, err := h.Client.ParseIDToken(ctx, newToken)
		if err != nil || newClaims == nil {
			return nil, nil
		}

		if err := h.saveLogin(session, newToken, newClaims); err != nil {
			return nil, err
		}
		claims = newClaims
	}

	return claims, nil
}

// authenticateCallback returns (returnTo, nil) if the user is
// authenticated, ("", error) if a fatal error occurs, or ("", nil) if this
// request is not a provider callback.
func (h *Handler) authenticateCallback(r *http.Request, session *sessions.Session) (string, error) {
	if r.Method != http.MethodGet {
		return "", nil
	}

	q := r.URL.Query()
	if qerr := q.Get("error"); qerr != "" {
		return "", fmt.Errorf("%s: %s", qerr, q.Get("error_description"))
	}

	// If code or state are missing, this is not a callback
	if q.Get("code") == "" || q.Get("state") == "" {
		return "", nil
	}

	token, claims, err := h.Client.AuthorizeAccessToken(r, &sessionStateStore{session: session})
	if err != nil {
		return "", err
	}

	if err := h.saveLogin(session, token, claims); err != nil {
		return "", err
	}

	returnTo, ok := session.Values[sessionKeyReturnTo].(string)
	if !ok {
		returnTo = h.BaseURL
	}
	delete(session.Values, sessionKeyReturnTo)

	return returnTo, nil
}

func (h *Handler) startAuthentication(r *http.Request, session *sessions.Session) (string, error) {
	delete(session.Values, sessionKeyToken)
	delete(session.Values, sessionKeyClaims)

	delete(session.Values, sessionKeyReturnTo)
	if r.Method == http.MethodGet {
		session.Values[sessionKeyReturnTo] = r.URL.RequestURI()
	}

	ar, err := h.Client.CreateAuthorizationURL(r.Context(), h.RedirectURL, nil)
	if err != nil {
		return "", err
	}

	store := &sessionStateStore{session: session}
	if err := store.Save(r.Context(), ar.State, &oauthclient.AuthorizationRequestState{
		State:        ar.State,
		Nonce:        ar.Nonce,
		RedirectURI:  ar.RedirectURI,
		RequestToken: ar.RequestToken,
	}); err != nil {
		return "", err
	}

	return ar.URL, nil
}

func (h *Handler) saveLogin(session *sessions.Session, token *oauthclient.Token, claims *oauthclient.Claims) error {
	tb, err := json.Marshal(token)
	if err != nil {
		return err
	}
	cb, err := json.Marshal(claims)
	if err != nil {
		return err
	}

	session.Values[sessionKeyToken] = string(tb)
	session.Values[sessionKeyClaims] = string(cb)
	return nil
}

func (h *Handler) getSession(r *http.Request) *sessions.Session {
	sessionName := h.SessionName
	if sessionName == "" {
		sessionName = defaultSessionName
	}

	if h.sessionStore != nil {
		session, _ := h.sessionStore.Get(r, sessionName)
		return session
	}

	h.sessionStoreMu.Lock()
	defer h.sessionStoreMu.Unlock()

	// Check again, holding lock
	if h.sessionStore != nil {
		session, _ := h.sessionStore.Get(r, sessionName)
		return session
	}

	h.sessionStore = sessions.NewCookieStore(h.SessionAuthenticationKey, h.SessionEncryptionKey)

	session, _ := h.sessionStore.Get(r, sessionName)
	return session
}

func (h *Handler) now() time.Time {
	if h.clock != nil {
		return h.clock()
	}
	return time.Now()
}

// ClaimsFromContext returns the claims of the authenticated user, for
// requests that passed through the handler.
func ClaimsFromContext(ctx context.Context) *oauthclient.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*oauthclient.Claims)
	return claims
}

// sessionStateStore keeps authorization round-trip state in the session
// itself, so the flow survives load balancing across instances.
type sessionStateStore struct {
	session *sessions.Session
}

var _ oauthclient.StateStore = (*sessionStateStore)(nil)

func (s *sessionStateStore) Save(_ context.Context, key string, state *oauthclient.AuthorizationRequestState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.session.Values[sessionKeyStatePrefix+key] = string(b)
	return nil
}

func (s *sessionStateStore) Load(_ context.Context, key string) (*oauthclient.AuthorizationRequestState, error) {
	raw, ok := s.session.Values[sessionKeyStatePrefix+key].(string)
	if !ok {
		return nil, nil
	}
	state := &oauthclient.AuthorizationRequestState{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *sessionStateStore) Delete(_ context.Context, key string) error {
	delete(s.session.Values, sessionKeyStatePrefix+key)
	return nil
}
